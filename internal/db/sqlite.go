package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/02loveslollipop/shizuku-hidroweb/internal/models"
)

const sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS telemetry (
    station_code                TEXT NOT NULL,
    measured_at                 INTEGER NOT NULL,
    rainfall_mm                 REAL,
    rainfall_status             TEXT,
    water_level_cm              REAL,
    water_level_status          TEXT,
    discharge_m3s               REAL,
    discharge_status            TEXT,
    temperature_c               REAL,
    temperature_status          TEXT,
    battery_voltage_v           REAL,
    battery_voltage_status      TEXT,
    atmospheric_pressure_hpa    REAL,
    atmospheric_pressure_status TEXT,
    source_updated_at           INTEGER,
    created_at                  INTEGER NOT NULL,
    updated_at                  INTEGER NOT NULL,
    PRIMARY KEY (station_code, measured_at)
)`

const sqliteExistsSQL = `SELECT COUNT(*) FROM telemetry WHERE station_code = ? AND measured_at = ?`

const sqliteUpsertSQL = `INSERT INTO telemetry (
    station_code, measured_at,
    rainfall_mm, rainfall_status,
    water_level_cm, water_level_status,
    discharge_m3s, discharge_status,
    temperature_c, temperature_status,
    battery_voltage_v, battery_voltage_status,
    atmospheric_pressure_hpa, atmospheric_pressure_status,
    source_updated_at, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT (station_code, measured_at) DO UPDATE
SET rainfall_mm = excluded.rainfall_mm,
    rainfall_status = excluded.rainfall_status,
    water_level_cm = excluded.water_level_cm,
    water_level_status = excluded.water_level_status,
    discharge_m3s = excluded.discharge_m3s,
    discharge_status = excluded.discharge_status,
    temperature_c = excluded.temperature_c,
    temperature_status = excluded.temperature_status,
    battery_voltage_v = excluded.battery_voltage_v,
    battery_voltage_status = excluded.battery_voltage_status,
    atmospheric_pressure_hpa = excluded.atmospheric_pressure_hpa,
    atmospheric_pressure_status = excluded.atmospheric_pressure_status,
    source_updated_at = excluded.source_updated_at,
    updated_at = excluded.updated_at`

// SQLiteStore is a single-file sink for local runs. Timestamps are stored as
// unix microseconds in UTC.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the database at source.
func NewSQLiteStore(ctx context.Context, source string) (*SQLiteStore, error) {
	if source == "" {
		return nil, fmt.Errorf("sqlite: database path is empty")
	}
	conn, err := sql.Open("sqlite", source)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer keeps SQLITE_BUSY out of the sequential sync loop.
	conn.SetMaxOpenConns(1)
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if _, err := conn.ExecContext(ctx, sqliteSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return NewSQLiteStoreFromDB(conn), nil
}

// NewSQLiteStoreFromDB wraps an already opened handle; the schema must exist.
func NewSQLiteStoreFromDB(conn *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: conn, now: time.Now}
}

func (s *SQLiteStore) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// SaveTelemetry inserts or overwrites the row for (station, measured_at).
func (s *SQLiteStore) SaveTelemetry(ctx context.Context, rec models.TelemetryRecord) (Outcome, error) {
	if err := validate(rec); err != nil {
		return 0, persistErr(rec, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, persistErr(rec, fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback()

	measured := rec.MeasuredAt.UTC().UnixMicro()
	var existing int
	if err := tx.QueryRowContext(ctx, sqliteExistsSQL, rec.StationCode, measured).Scan(&existing); err != nil {
		return 0, persistErr(rec, fmt.Errorf("lookup: %w", err))
	}

	now := s.now().UTC().UnixMicro()
	if _, err := tx.ExecContext(ctx, sqliteUpsertSQL,
		rec.StationCode, measured,
		rec.Rainfall, rec.RainfallStatus,
		rec.WaterLevel, rec.WaterLevelStatus,
		rec.Discharge, rec.DischargeStatus,
		rec.Temperature, rec.TemperatureStatus,
		rec.BatteryVoltage, rec.BatteryVoltageStatus,
		rec.AtmosphericPressure, rec.AtmosphericPressureStatus,
		unixMicroPtr(rec.SourceUpdatedAt), now, now,
	); err != nil {
		return 0, persistErr(rec, fmt.Errorf("upsert: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return 0, persistErr(rec, fmt.Errorf("commit: %w", err))
	}

	if existing > 0 {
		return Updated, nil
	}
	return Created, nil
}

// LoadTelemetry returns the stored rows of a station ordered by measurement time.
func (s *SQLiteStore) LoadTelemetry(ctx context.Context, stationCode string) ([]models.TelemetryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT station_code, measured_at,
       rainfall_mm, rainfall_status,
       water_level_cm, water_level_status,
       discharge_m3s, discharge_status,
       temperature_c, temperature_status,
       battery_voltage_v, battery_voltage_status,
       atmospheric_pressure_hpa, atmospheric_pressure_status,
       source_updated_at
FROM telemetry
WHERE station_code = ?
ORDER BY measured_at`, stationCode)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load telemetry: %w", err)
	}
	defer rows.Close()

	out := make([]models.TelemetryRecord, 0)
	for rows.Next() {
		var rec models.TelemetryRecord
		var measured int64
		var updated sql.NullInt64
		if err := rows.Scan(
			&rec.StationCode, &measured,
			&rec.Rainfall, &rec.RainfallStatus,
			&rec.WaterLevel, &rec.WaterLevelStatus,
			&rec.Discharge, &rec.DischargeStatus,
			&rec.Temperature, &rec.TemperatureStatus,
			&rec.BatteryVoltage, &rec.BatteryVoltageStatus,
			&rec.AtmosphericPressure, &rec.AtmosphericPressureStatus,
			&updated,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan telemetry: %w", err)
		}
		rec.MeasuredAt = time.UnixMicro(measured).UTC()
		if updated.Valid {
			t := time.UnixMicro(updated.Int64).UTC()
			rec.SourceUpdatedAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func unixMicroPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().UnixMicro()
}
