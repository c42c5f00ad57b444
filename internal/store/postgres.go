package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"streetlight_monitor/internal/apperr"
	"streetlight_monitor/internal/model"
)

// Postgres is the PostgreSQL Repository.
type Postgres struct {
	db *sqlx.DB
}

// Open connects to the database at url.
func Open(ctx context.Context, url string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, apperr.DatabaseError("connect", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

var _ Repository = (*Postgres)(nil)

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

const upsertMeasurement = `
	INSERT INTO measurements (entity, name, kind, value, ts, is_actual)
	VALUES (:entity, :name, :kind, :value, :ts, :is_actual)
	ON CONFLICT (entity, ts, name, kind)
	DO UPDATE SET value = EXCLUDED.value, is_actual = EXCLUDED.is_actual`

func (p *Postgres) SaveMeasurements(ctx context.Context, ms []model.Measurement) error {
	if len(ms) == 0 {
		return nil
	}
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.DatabaseError("begin measurements", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, upsertMeasurement)
	if err != nil {
		return apperr.DatabaseError("prepare measurements", err)
	}
	defer stmt.Close()

	for _, m := range ms {
		if _, err := stmt.ExecContext(ctx, m); err != nil {
			return apperr.DatabaseError("save measurement", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.DatabaseError("commit measurements", err)
	}
	return nil
}

func (p *Postgres) Measurements(ctx context.Context, entity string, kind model.MeasurementKind, from, to time.Time) ([]model.Measurement, error) {
	var ms []model.Measurement
	err := p.db.SelectContext(ctx, &ms, `
		SELECT entity, name, kind, value, ts, is_actual
		FROM measurements
		WHERE entity = $1 AND kind = $2 AND ts >= $3 AND ts < $4
		ORDER BY ts, name
	`, entity, kind, from, to)
	if err != nil {
		return nil, apperr.DatabaseError("list measurements", err)
	}
	return ms, nil
}

func (p *Postgres) LatestMeasurement(ctx context.Context, entity, name string, from, to time.Time) (model.Measurement, bool, error) {
	var m model.Measurement
	err := p.db.GetContext(ctx, &m, `
		SELECT entity, name, kind, value, ts, is_actual
		FROM measurements
		WHERE entity = $1 AND name = $2 AND kind = $3 AND ts >= $4 AND ts < $5
		ORDER BY ts DESC
		LIMIT 1
	`, entity, name, model.KindRealtime, from, to)
	return getResult(m, err, "latest measurement")
}

func (p *Postgres) StorageState(ctx context.Context, entity string, date time.Time) (model.StorageState, bool, error) {
	var st model.StorageState
	err := p.db.GetContext(ctx, &st, `
		SELECT entity, date, realtime, history
		FROM storage_states
		WHERE entity = $1 AND date = $2
	`, entity, date)
	return getResult(st, err, "storage state")
}

func (p *Postgres) SaveStorageState(ctx context.Context, st model.StorageState) error {
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO storage_states (entity, date, realtime, history)
		VALUES (:entity, :date, :realtime, :history)
		ON CONFLICT (entity, date)
		DO UPDATE SET realtime = EXCLUDED.realtime, history = EXCLUDED.history
	`, st)
	if err != nil {
		return apperr.DatabaseError("save storage state", err)
	}
	return nil
}

func (p *Postgres) DayEnergy(ctx context.Context, entity string, date time.Time) (model.DayEnergy, bool, error) {
	var e model.DayEnergy
	err := p.db.GetContext(ctx, &e, `
		SELECT entity, date, value, estimated_hours
		FROM day_energy
		WHERE entity = $1 AND date = $2
	`, entity, date)
	return getResult(e, err, "day energy")
}

func (p *Postgres) SaveDayEnergy(ctx context.Context, e model.DayEnergy) error {
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO day_energy (entity, date, value, estimated_hours)
		VALUES (:entity, :date, :value, :estimated_hours)
		ON CONFLICT (entity, date)
		DO UPDATE SET value = EXCLUDED.value, estimated_hours = EXCLUDED.estimated_hours
	`, e)
	if err != nil {
		return apperr.DatabaseError("save day energy", err)
	}
	return nil
}

func (p *Postgres) SwitchRecords(ctx context.Context, entity string, date time.Time) ([]model.SwitchRecord, error) {
	var rs []model.SwitchRecord
	err := p.db.SelectContext(ctx, &rs, `
		SELECT entity, date, switch_type, low_value, high_value
		FROM switch_times
		WHERE entity = $1 AND date = $2
		ORDER BY CASE switch_type WHEN 'off' THEN 0 ELSE 1 END
	`, entity, date)
	if err != nil {
		return nil, apperr.DatabaseError("list switch times", err)
	}
	return rs, nil
}

func (p *Postgres) SaveSwitchRecord(ctx context.Context, r model.SwitchRecord) error {
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO switch_times (entity, date, switch_type, low_value, high_value)
		VALUES (:entity, :date, :switch_type, :low_value, :high_value)
		ON CONFLICT (entity, date, switch_type)
		DO UPDATE SET low_value = EXCLUDED.low_value, high_value = EXCLUDED.high_value
	`, r)
	if err != nil {
		return apperr.DatabaseError("save switch time", err)
	}
	return nil
}

func (p *Postgres) DateWarning(ctx context.Context, entity string, date time.Time) (model.DateWarning, bool, error) {
	var w model.DateWarning
	err := p.db.GetContext(ctx, &w, `
		SELECT entity, date, not_connected, missing_data_one, missing_data_half,
		       wrong_switch_off_time, wrong_switch_on_time
		FROM date_warnings
		WHERE entity = $1 AND date = $2
	`, entity, date)
	return getResult(w, err, "date warning")
}

func (p *Postgres) SaveDateWarning(ctx context.Context, w model.DateWarning) error {
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO date_warnings (entity, date, not_connected, missing_data_one, missing_data_half,
		                           wrong_switch_off_time, wrong_switch_on_time)
		VALUES (:entity, :date, :not_connected, :missing_data_one, :missing_data_half,
		        :wrong_switch_off_time, :wrong_switch_on_time)
		ON CONFLICT (entity, date)
		DO UPDATE SET not_connected = EXCLUDED.not_connected,
		              missing_data_one = EXCLUDED.missing_data_one,
		              missing_data_half = EXCLUDED.missing_data_half,
		              wrong_switch_off_time = EXCLUDED.wrong_switch_off_time,
		              wrong_switch_on_time = EXCLUDED.wrong_switch_on_time
	`, w)
	if err != nil {
		return apperr.DatabaseError("save date warning", err)
	}
	return nil
}

func getResult[T any](v T, err error, op string) (T, bool, error) {
	if errors.Is(err, sql.ErrNoRows) {
		var zero T
		return zero, false, nil
	}
	if err != nil {
		var zero T
		return zero, false, apperr.DatabaseError(op, err)
	}
	return v, true, nil
}
