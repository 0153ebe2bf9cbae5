// Package builder selects the configured provider variant and optionally
// wraps it with the cache.
package builder

import (
	"fmt"
	"strings"
	"time"

	"transit-reconciler/internal/cache"
	"transit-reconciler/internal/config"
	"transit-reconciler/internal/messages"
	"transit-reconciler/internal/provider"
	"transit-reconciler/internal/provider/bahn"
	"transit-reconciler/internal/provider/cached"
	"transit-reconciler/internal/provider/hafas"
)

const (
	Bahn  = "bahn"
	Hafas = "hafas"
)

// Store satisfies both variants.
type Store interface {
	hafas.Store
	bahn.Store
}

type Options struct {
	Provider string
	Cache    bool
	TTL      time.Duration
	// CacheStore backs both the decorator and the journey associations.
	CacheStore cache.Store
	Hafas      hafas.Options
	Bahn       bahn.Options
	Metrics    provider.Metrics
}

// FromConfig derives Options from cfg.
func FromConfig(cfg *config.Config, msgs *messages.Catalog, store cache.Store, m provider.Metrics) Options {
	return Options{
		Provider:   cfg.DataProvider,
		Cache:      cfg.CacheEnabled,
		TTL:        cfg.CacheTTL,
		CacheStore: store,
		Metrics:    m,
		Hafas: hafas.Options{
			BaseURL:   cfg.DBRestURL,
			Timeout:   cfg.DBRestTimeout,
			UserAgent: cfg.UserAgent,
			Zone:      cfg.ReferenceZone,
			Messages:  msgs,
			Metrics:   m,
			Cache:     store,
		},
		Bahn: bahn.Options{
			BaseURL:   cfg.BahnWebAPIURL,
			Timeout:   cfg.BahnTimeout,
			UserAgent: cfg.UserAgent,
			Zone:      cfg.ReferenceZone,
			Messages:  msgs,
			Metrics:   m,
			Cache:     store,
		},
	}
}

// Build returns the variant named by opts.Provider, wrapped by the cache when enabled.
func Build(store Store, opts Options) (provider.Provider, error) {
	var p provider.Provider
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case Bahn, "":
		p = bahn.New(store, opts.Bahn)
	case Hafas:
		p = hafas.New(store, opts.Hafas)
	default:
		return nil, fmt.Errorf("%w: %q", provider.ErrUnknownProvider, opts.Provider)
	}
	if !opts.Cache {
		return p, nil
	}
	cs := opts.CacheStore
	if cs == nil {
		cs = cache.New(10000)
	}
	return cached.New(p, cs, opts.TTL, opts.Metrics), nil
}
