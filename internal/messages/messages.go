// Package messages resolves user-facing error texts from embedded YAML catalogs.
package messages

import (
	"embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	GeneralHafas     = "exception.generalHafas"
	Hafas502         = "exception.hafas.502"
	NotSupported     = "exception.notSupported"
	NotFound         = "exception.notFound"
	WikidataType     = "exception.wikidata.unsupportedType"
	WikidataIBNRUsed = "exception.wikidata.ibnrInUse"
)

//go:embed lang/*.yml
var catalogs embed.FS

type Catalog struct {
	locale   string
	messages map[string]string
	fallback *Catalog
}

// Load returns the catalog for locale, falling back to English for missing keys.
func Load(locale string) (*Catalog, error) {
	en, err := load("en")
	if err != nil {
		return nil, err
	}
	if locale == "" || locale == "en" {
		return en, nil
	}
	c, err := load(locale)
	if err != nil {
		return nil, err
	}
	c.fallback = en
	return c, nil
}

func load(locale string) (*Catalog, error) {
	data, err := catalogs.ReadFile("lang/" + locale + ".yml")
	if err != nil {
		return nil, fmt.Errorf("unknown locale %q: %w", locale, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", locale, err)
	}
	c := &Catalog{locale: locale, messages: make(map[string]string)}
	flatten("", raw, c.messages)
	return c, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// Get returns the message for key, or the key itself when no catalog has it.
func (c *Catalog) Get(key string) string {
	if c == nil {
		return key
	}
	if m, ok := c.messages[key]; ok {
		return m
	}
	if c.fallback != nil {
		return c.fallback.Get(key)
	}
	return key
}

func (c *Catalog) Locale() string {
	if c == nil {
		return ""
	}
	return strings.ToLower(c.locale)
}
