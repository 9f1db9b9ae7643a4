package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/02loveslollipop/shizuku-hidroweb/internal/models"
)

const createSchemaSQL = `
CREATE SCHEMA IF NOT EXISTS hidro;
CREATE TABLE IF NOT EXISTS hidro.telemetry (
    station_code                TEXT NOT NULL,
    measured_at                 TIMESTAMPTZ NOT NULL,
    rainfall_mm                 DOUBLE PRECISION,
    rainfall_status             TEXT,
    water_level_cm              DOUBLE PRECISION,
    water_level_status          TEXT,
    discharge_m3s               DOUBLE PRECISION,
    discharge_status            TEXT,
    temperature_c               DOUBLE PRECISION,
    temperature_status          TEXT,
    battery_voltage_v           DOUBLE PRECISION,
    battery_voltage_status      TEXT,
    atmospheric_pressure_hpa    DOUBLE PRECISION,
    atmospheric_pressure_status TEXT,
    source_updated_at           TIMESTAMPTZ,
    created_at                  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at                  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (station_code, measured_at)
)`

// xmax is 0 only on a freshly inserted row version.
const upsertTelemetrySQL = `INSERT INTO hidro.telemetry (
    station_code, measured_at,
    rainfall_mm, rainfall_status,
    water_level_cm, water_level_status,
    discharge_m3s, discharge_status,
    temperature_c, temperature_status,
    battery_voltage_v, battery_voltage_status,
    atmospheric_pressure_hpa, atmospheric_pressure_status,
    source_updated_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NOW(),NOW())
ON CONFLICT (station_code, measured_at) DO UPDATE
SET rainfall_mm = EXCLUDED.rainfall_mm,
    rainfall_status = EXCLUDED.rainfall_status,
    water_level_cm = EXCLUDED.water_level_cm,
    water_level_status = EXCLUDED.water_level_status,
    discharge_m3s = EXCLUDED.discharge_m3s,
    discharge_status = EXCLUDED.discharge_status,
    temperature_c = EXCLUDED.temperature_c,
    temperature_status = EXCLUDED.temperature_status,
    battery_voltage_v = EXCLUDED.battery_voltage_v,
    battery_voltage_status = EXCLUDED.battery_voltage_status,
    atmospheric_pressure_hpa = EXCLUDED.atmospheric_pressure_hpa,
    atmospheric_pressure_status = EXCLUDED.atmospheric_pressure_status,
    source_updated_at = EXCLUDED.source_updated_at,
    updated_at = NOW()
RETURNING (xmax = 0) AS inserted`

// PostgresStore upserts telemetry through a pgx pool. Each record is its own
// statement so one bad row never rolls back its neighbours.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects and makes sure the telemetry table exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if _, err := pool.Exec(ctx, createSchemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: create schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool resources.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// SaveTelemetry inserts or overwrites the row for (station, measured_at).
func (s *PostgresStore) SaveTelemetry(ctx context.Context, rec models.TelemetryRecord) (Outcome, error) {
	if err := validate(rec); err != nil {
		return 0, persistErr(rec, err)
	}

	var inserted bool
	err := s.pool.QueryRow(ctx, upsertTelemetrySQL,
		rec.StationCode, rec.MeasuredAt.UTC(),
		rec.Rainfall, rec.RainfallStatus,
		rec.WaterLevel, rec.WaterLevelStatus,
		rec.Discharge, rec.DischargeStatus,
		rec.Temperature, rec.TemperatureStatus,
		rec.BatteryVoltage, rec.BatteryVoltageStatus,
		rec.AtmosphericPressure, rec.AtmosphericPressureStatus,
		rec.SourceUpdatedAt,
	).Scan(&inserted)
	if err != nil {
		return 0, persistErr(rec, err)
	}
	if inserted {
		return Created, nil
	}
	return Updated, nil
}

// CountTelemetry returns the number of stored rows for a station.
func (s *PostgresStore) CountTelemetry(ctx context.Context, stationCode string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM hidro.telemetry WHERE station_code = $1`, stationCode).Scan(&n)
	return n, err
}
