package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/02loveslollipop/shizuku-hidroweb/internal/models"
)

// SourceZone is the offset HidroWeb timestamps are expressed in (Brasília time, no DST).
var SourceZone = time.FixedZone("BRT", -3*60*60)

var timestampLayouts = []string{
	"2006-01-02 15:04:05.0",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02 15:04",
}

// channel maps one reading onto the upstream field names it has appeared under.
type channel struct {
	value  []string
	status []string
}

var (
	stationFields   = []string{"codigoestacao", "CodigoEstacao", "codigo_estacao", "Codigo_Estacao"}
	measuredFields  = []string{"Data_Hora_Medicao", "DataHora", "Data_Hora"}
	updatedFields   = []string{"Data_Atualizacao", "DataAtualizacao"}
	rainfallChannel = channel{
		value:  []string{"Chuva_Adotada", "Chuva"},
		status: []string{"Chuva_Adotada_Status", "Chuva_Status"},
	}
	levelChannel = channel{
		value:  []string{"Cota_Adotada", "Cota"},
		status: []string{"Cota_Adotada_Status", "Cota_Status"},
	}
	dischargeChannel = channel{
		value:  []string{"Vazao_Adotada", "Vazao"},
		status: []string{"Vazao_Adotada_Status", "Vazao_Status"},
	}
	temperatureChannel = channel{
		value:  []string{"Temperatura_Adotada", "Temperatura_Agua", "Temperatura"},
		status: []string{"Temperatura_Adotada_Status", "Temperatura_Agua_Status", "Temperatura_Status"},
	}
	batteryChannel = channel{
		value:  []string{"Bateria_Adotada", "Bateria", "Tensao_Bateria"},
		status: []string{"Bateria_Adotada_Status", "Bateria_Status", "Tensao_Bateria_Status"},
	}
	pressureChannel = channel{
		value:  []string{"Pressao_Atmosferica_Adotada", "Pressao_Atmosferica"},
		status: []string{"Pressao_Atmosferica_Adotada_Status", "Pressao_Atmosferica_Status"},
	}
)

// ErrNoTimestamp marks a record without a usable measurement time.
var ErrNoTimestamp = errors.New("record has no measurement timestamp")

// NormalizeRecord turns a raw upstream record into a TelemetryRecord. A missing
// station code is filled with defaultStation, the station being synced.
func NormalizeRecord(raw models.RawRecord, defaultStation string) (models.TelemetryRecord, error) {
	if !gjson.ValidBytes(raw) {
		return models.TelemetryRecord{}, errors.New("record is not valid JSON")
	}
	doc := gjson.ParseBytes(raw)

	rec := models.TelemetryRecord{
		StationCode: firstString(doc, stationFields),
	}
	if rec.StationCode == "" {
		rec.StationCode = defaultStation
	}

	measured := firstString(doc, measuredFields)
	if measured == "" {
		return rec, ErrNoTimestamp
	}
	ts, err := ParseTimestamp(measured)
	if err != nil {
		return rec, fmt.Errorf("measurement timestamp: %w", err)
	}
	rec.MeasuredAt = ts

	if updated := firstString(doc, updatedFields); updated != "" {
		if ts, err := ParseTimestamp(updated); err == nil {
			rec.SourceUpdatedAt = &ts
		}
	}

	rec.Rainfall, rec.RainfallStatus = readChannel(doc, rainfallChannel)
	rec.WaterLevel, rec.WaterLevelStatus = readChannel(doc, levelChannel)
	rec.Discharge, rec.DischargeStatus = readChannel(doc, dischargeChannel)
	rec.Temperature, rec.TemperatureStatus = readChannel(doc, temperatureChannel)
	rec.BatteryVoltage, rec.BatteryVoltageStatus = readChannel(doc, batteryChannel)
	rec.AtmosphericPressure, rec.AtmosphericPressureStatus = readChannel(doc, pressureChannel)

	return rec, nil
}

// ParseTimestamp parses an upstream timestamp and returns it in UTC. Values
// without an offset are read in SourceZone.
func ParseTimestamp(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, v, SourceZone); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", v)
}

func readChannel(doc gjson.Result, ch channel) (*float64, *string) {
	var value *float64
	for _, field := range ch.value {
		if v := doc.Get(field); v.Exists() {
			value = NormalizeValue(parseNumber(v))
			break
		}
	}
	var status *string
	if s := firstString(doc, ch.status); s != "" {
		status = &s
	}
	return value, status
}

// parseNumber accepts JSON numbers and numeric strings, with "," or "." decimals.
func parseNumber(v gjson.Result) *float64 {
	switch v.Type {
	case gjson.Number:
		f := v.Float()
		return &f
	case gjson.String:
		s := strings.TrimSpace(v.String())
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

func firstString(doc gjson.Result, fields []string) string {
	for _, field := range fields {
		v := doc.Get(field)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		if s := strings.TrimSpace(v.String()); s != "" {
			return s
		}
	}
	return ""
}

// NormalizeValue cleans raw sensor values; -999 style sentinels -> nil.
func NormalizeValue(v *float64) *float64 {
	if v == nil {
		return nil
	}
	if *v <= -900 {
		return nil
	}
	val := *v
	return &val
}

// ValuePtrString prints pointer values for logging.
func ValuePtrString(v *float64) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%.3f", *v)
}
