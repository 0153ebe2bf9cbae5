package wikidata

import (
	"encoding/json"
	"strconv"
	"strings"
)

type Entity struct {
	ID     string                 `json:"id"`
	Labels map[string]label       `json:"labels"`
	Claims map[string][]statement `json:"claims"`
}

type label struct {
	Language string `json:"language"`
	Value    string `json:"value"`
}

type statement struct {
	Mainsnak struct {
		Datavalue struct {
			Value json.RawMessage `json:"value"`
		} `json:"datavalue"`
	} `json:"mainsnak"`
}

func (e *Entity) first(prop string) json.RawMessage {
	claims := e.Claims[prop]
	if len(claims) == 0 {
		return nil
	}
	return claims[0].Mainsnak.Datavalue.Value
}

// String returns the first value of prop when it is a plain string.
func (e *Entity) String(prop string) string {
	var s string
	if raw := e.first(prop); raw != nil && json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	return ""
}

// Supported reports whether any instance-of claim names a station-like type.
func (e *Entity) Supported() bool {
	for _, c := range e.Claims[propInstanceOf] {
		var v struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(c.Mainsnak.Datavalue.Value, &v) == nil && supportedTypes[v.ID] {
			return true
		}
	}
	return false
}

// Name prefers the official name, then the German and English labels.
func (e *Entity) Name() string {
	var official struct {
		Text string `json:"text"`
	}
	if raw := e.first(propOfficialName); raw != nil && json.Unmarshal(raw, &official) == nil && official.Text != "" {
		return official.Text
	}
	for _, lang := range []string{"de", "en"} {
		if l, ok := e.Labels[lang]; ok && l.Value != "" {
			return l.Value
		}
	}
	return ""
}

func (e *Entity) Coordinates() (lat, lon float64, ok bool) {
	raw := e.first(propCoordinates)
	if raw == nil {
		return 0, 0, false
	}
	var v struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if json.Unmarshal(raw, &v) != nil || v.Latitude == nil || v.Longitude == nil {
		return 0, 0, false
	}
	return *v.Latitude, *v.Longitude, true
}

// IBNR is 0 when the entity has none or it is not numeric.
func (e *Entity) IBNR() int64 {
	n, err := strconv.ParseInt(e.String(propIBNR), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
