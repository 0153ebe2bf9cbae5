package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

var ErrNotFound = errors.New("db: not found")

func Open(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// a single connection keeps ":memory:" databases shared and serializes writers
		db.SetMaxOpenConns(1)
		return db, nil
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// Store persists reconciled entities with upsert-by-natural-key statements.
// Every time value is written in UTC.
type Store struct {
	db     *sql.DB
	driver string
}

func NewStore(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

func (s *Store) DB() *sql.DB { return s.db }

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	id := "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
	ts := "TIMESTAMPTZ"
	if s.driver == DriverSQLite {
		id = "INTEGER PRIMARY KEY"
		ts = "TIMESTAMP"
	}
	r := strings.NewReplacer("{{id}}", id, "{{ts}}", ts)
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, r.Replace(stmt)); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS train_stations (
  id {{id}},
  ibnr BIGINT UNIQUE,
  ril_identifier TEXT,
  name TEXT NOT NULL,
  latitude DOUBLE PRECISION NOT NULL DEFAULT 0,
  longitude DOUBLE PRECISION NOT NULL DEFAULT 0,
  time_offset INTEGER,
  shift_time BOOLEAN NOT NULL DEFAULT TRUE,
  source TEXT,
  wikidata_id TEXT
)`,
	`CREATE INDEX IF NOT EXISTS train_stations_ril_idx ON train_stations (ril_identifier)`,
	`CREATE TABLE IF NOT EXISTS hafas_operators (
  id {{id}},
  hafas_id TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS poly_lines (
  id {{id}},
  hash TEXT NOT NULL UNIQUE,
  polyline TEXT NOT NULL,
  source TEXT NOT NULL,
  parent_id BIGINT REFERENCES poly_lines (id)
)`,
	`CREATE TABLE IF NOT EXISTS hafas_trips (
  id {{id}},
  trip_id TEXT NOT NULL UNIQUE,
  category TEXT NOT NULL,
  number TEXT NOT NULL DEFAULT '',
  linename TEXT NOT NULL DEFAULT '',
  journey_number BIGINT,
  operator_id BIGINT REFERENCES hafas_operators (id),
  origin_id BIGINT NOT NULL REFERENCES train_stations (id),
  destination_id BIGINT NOT NULL REFERENCES train_stations (id),
  polyline_id BIGINT REFERENCES poly_lines (id),
  departure {{ts}},
  arrival {{ts}},
  delay INTEGER,
  source TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS train_stopovers (
  id {{id}},
  trip_id TEXT NOT NULL REFERENCES hafas_trips (trip_id),
  train_station_id BIGINT NOT NULL REFERENCES train_stations (id),
  arrival_planned {{ts}} NOT NULL,
  arrival_real {{ts}},
  arrival_platform_planned TEXT,
  arrival_platform_real TEXT,
  departure_planned {{ts}} NOT NULL,
  departure_real {{ts}},
  departure_platform_planned TEXT,
  departure_platform_real TEXT,
  cancelled BOOLEAN,
  UNIQUE (trip_id, train_station_id, arrival_planned, departure_planned)
)`,
}

// IsUniqueViolation reports whether err is a unique constraint failure on either driver.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		switch code {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(liteErr.Error(), "UNIQUE")
		}
	}
	return false
}

// placeholders renders "$start, $start+1, ..." for n arguments.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
