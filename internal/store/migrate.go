package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var schema = []struct {
	name string
	ddl  string
}{
	{"measurements", `
		CREATE TABLE IF NOT EXISTS measurements (
			entity    TEXT             NOT NULL,
			name      TEXT             NOT NULL,
			kind      TEXT             NOT NULL DEFAULT 'realtime',
			value     DOUBLE PRECISION NOT NULL,
			ts        TIMESTAMPTZ      NOT NULL,
			is_actual DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			UNIQUE (entity, ts, name, kind)
		)`},
	{"measurements index", `
		CREATE INDEX IF NOT EXISTS measurements_entity_kind_ts
		ON measurements (entity, kind, ts)`},
	{"storage_states", `
		CREATE TABLE IF NOT EXISTS storage_states (
			entity   TEXT NOT NULL,
			date     DATE NOT NULL,
			realtime TEXT NOT NULL DEFAULT 'none',
			history  TEXT NOT NULL DEFAULT 'none',
			PRIMARY KEY (entity, date)
		)`},
	{"day_energy", `
		CREATE TABLE IF NOT EXISTS day_energy (
			entity          TEXT             NOT NULL,
			date            DATE             NOT NULL,
			value           DOUBLE PRECISION NOT NULL,
			estimated_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
			PRIMARY KEY (entity, date)
		)`},
	{"switch_times", `
		CREATE TABLE IF NOT EXISTS switch_times (
			entity      TEXT NOT NULL,
			date        DATE NOT NULL,
			switch_type TEXT NOT NULL,
			low_value   TEXT NOT NULL DEFAULT '',
			high_value  TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (entity, date, switch_type)
		)`},
	{"date_warnings", `
		CREATE TABLE IF NOT EXISTS date_warnings (
			entity                TEXT    NOT NULL,
			date                  DATE    NOT NULL,
			not_connected         BOOLEAN NOT NULL DEFAULT FALSE,
			missing_data_one      BOOLEAN NOT NULL DEFAULT FALSE,
			missing_data_half     BOOLEAN NOT NULL DEFAULT FALSE,
			wrong_switch_off_time BOOLEAN NOT NULL DEFAULT FALSE,
			wrong_switch_on_time  BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (entity, date)
		)`},
}

// Migrate creates the schema. It is safe to run repeatedly.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, step := range schema {
		if _, err := db.ExecContext(ctx, step.ddl); err != nil {
			return fmt.Errorf("creating %s: %w", step.name, err)
		}
	}
	return nil
}

// Connect returns the PostgreSQL repository at url with the schema applied,
// or an in-memory one when url is empty. The returned close func is never nil.
func Connect(ctx context.Context, url string) (Repository, func() error, error) {
	if url == "" {
		return NewMemory(), func() error { return nil }, nil
	}
	db, err := Open(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return NewPostgres(db), db.Close, nil
}
