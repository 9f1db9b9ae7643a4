package models

import "time"

// RawRecord is one telemetry item exactly as returned by the HidroWeb API.
type RawRecord []byte

// TelemetryRecord is a normalized measurement ready for the sink.
// Identity is (StationCode, MeasuredAt).
type TelemetryRecord struct {
	StationCode string    `json:"station_code"`
	MeasuredAt  time.Time `json:"measured_at"`

	Rainfall       *float64 `json:"rainfall_mm,omitempty"`
	RainfallStatus *string  `json:"rainfall_status,omitempty"`

	WaterLevel       *float64 `json:"water_level_cm,omitempty"`
	WaterLevelStatus *string  `json:"water_level_status,omitempty"`

	Discharge       *float64 `json:"discharge_m3s,omitempty"`
	DischargeStatus *string  `json:"discharge_status,omitempty"`

	Temperature       *float64 `json:"temperature_c,omitempty"`
	TemperatureStatus *string  `json:"temperature_status,omitempty"`

	BatteryVoltage       *float64 `json:"battery_voltage_v,omitempty"`
	BatteryVoltageStatus *string  `json:"battery_voltage_status,omitempty"`

	AtmosphericPressure       *float64 `json:"atmospheric_pressure_hpa,omitempty"`
	AtmosphericPressureStatus *string  `json:"atmospheric_pressure_status,omitempty"`

	SourceUpdatedAt *time.Time `json:"source_updated_at,omitempty"`
}
