package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseDriver string `validate:"oneof=pgx sqlite"`
	DatabaseURL    string `validate:"required"`

	DataProvider string `validate:"oneof=bahn hafas"`
	CacheEnabled bool
	CacheSize    int           `validate:"gt=0"`
	CacheTTL     time.Duration `validate:"gt=0"`

	DBRestURL       string        `validate:"required,url"`
	DBRestTimeout   time.Duration `validate:"gt=0"`
	BahnWebAPIURL   string        `validate:"required,url"`
	BahnTimeout     time.Duration `validate:"gt=0"`
	WikidataURL     string        `validate:"required,url"`
	WikidataTimeout time.Duration `validate:"gt=0"`
	ReferenceZone   *time.Location
	Locale          string `validate:"oneof=en de"`
	UserAgent       string

	NATSURL           string `validate:"required"`
	RefreshSubject    string `validate:"required"`
	RefreshPerMinute  int    `validate:"gt=0"`
	RefreshMaxRetries int    `validate:"gte=0"`

	MetricsAddr string
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.DatabaseDriver = strings.ToLower(getenvDefault("DATABASE_DRIVER", "pgx"))

	// Prefer DATABASE_URL / PG_DSN, else build from PG* vars
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" && cfg.DatabaseDriver == "pgx" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		db := os.Getenv("PGDATABASE")
		if db == "" {
			return nil, errors.New("PGDATABASE or DATABASE_URL must be set")
		}
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
		} else {
			dsn = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
		}
	}
	if dsn == "" && cfg.DatabaseDriver == "sqlite" {
		dsn = "transit.db"
	}
	cfg.DatabaseURL = dsn

	cfg.DataProvider = strings.ToLower(getenvDefault("DATA_PROVIDER", "bahn"))

	var err error
	if cfg.CacheEnabled, err = boolEnv("CACHE_HAFAS", true); err != nil {
		return nil, err
	}
	if cfg.CacheSize, err = intEnv("CACHE_SIZE", 10000); err != nil {
		return nil, err
	}
	ttl, err := intEnv("CACHE_TTL_MINUTES", 15)
	if err != nil {
		return nil, err
	}
	cfg.CacheTTL = time.Duration(ttl) * time.Minute

	cfg.DBRestURL = getenvDefault("DB_REST", "https://v5.db.transport.rest/")
	sec, err := intEnv("DB_REST_TIMEOUT", 3)
	if err != nil {
		return nil, err
	}
	cfg.DBRestTimeout = time.Duration(sec) * time.Second

	cfg.BahnWebAPIURL = getenvDefault("BAHN_WEB_API", "https://www.bahn.de/web/api/reiseloesung")
	if sec, err = intEnv("BAHN_WEB_API_TIMEOUT", 10); err != nil {
		return nil, err
	}
	cfg.BahnTimeout = time.Duration(sec) * time.Second

	cfg.WikidataURL = getenvDefault("WIKIDATA_URL", "https://www.wikidata.org/wiki/Special:EntityData")
	if sec, err = intEnv("WIKIDATA_TIMEOUT", 10); err != nil {
		return nil, err
	}
	cfg.WikidataTimeout = time.Duration(sec) * time.Second

	tzName := getenvDefault("REFERENCE_TZ", "Europe/Berlin")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid REFERENCE_TZ: %v", err)
	}
	cfg.ReferenceZone = loc

	cfg.Locale = strings.ToLower(getenvDefault("LOCALE", "en"))
	cfg.UserAgent = getenvDefault("USER_AGENT", "transit-reconciler/1.0")

	cfg.NATSURL = getenvDefault("NATS_URL", "nats://127.0.0.1:4222")
	cfg.RefreshSubject = getenvDefault("REFRESH_SUBJECT", "transit.refresh.stopover")
	if cfg.RefreshPerMinute, err = intEnv("REFRESH_PER_MINUTE", 6); err != nil {
		return nil, err
	}
	if cfg.RefreshMaxRetries, err = intEnv("REFRESH_MAX_RETRIES", 2); err != nil {
		return nil, err
	}

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func intEnv(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return n, nil
}

func boolEnv(k string, def bool) (bool, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid %s: %q", k, v)
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
