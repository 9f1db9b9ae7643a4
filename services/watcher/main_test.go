package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/02loveslollipop/shizuku-hidroweb/internal/app"
	"github.com/02loveslollipop/shizuku-hidroweb/internal/config"
	"github.com/02loveslollipop/shizuku-hidroweb/internal/db"
)

var now = time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func TestParseArgsYear(t *testing.T) {
	req, err := parseArgs([]string{"-station", "75650010,75655000", "-year", "2024"}, config.Config{}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"75650010", "75655000"}, req.stations)
	assert.Equal(t, day(2024, 1, 1), req.from)
	assert.Equal(t, day(2024, 12, 31), req.to)
}

func TestParseArgsCurrentYearStopsToday(t *testing.T) {
	req, err := parseArgs([]string{"-station", "1", "-year", "2025"}, config.Config{}, now)
	require.NoError(t, err)
	assert.Equal(t, day(2025, 1, 1), req.from)
	assert.Equal(t, day(2025, 3, 10), req.to)
}

func TestParseArgsRange(t *testing.T) {
	req, err := parseArgs([]string{"-station", "1", "-from", "2025-01-01", "-to", "2025-02-15", "-window", "10"}, config.Config{}, now)
	require.NoError(t, err)
	assert.Equal(t, day(2025, 1, 1), req.from)
	assert.Equal(t, day(2025, 2, 15), req.to)
	assert.Equal(t, 10, req.window)

	req, err = parseArgs([]string{"-station", "1", "-from", "2025-03-01"}, config.Config{}, now)
	require.NoError(t, err)
	assert.Equal(t, day(2025, 3, 10), req.to)
}

func TestParseArgsDefaults(t *testing.T) {
	cfg := config.Config{Stations: []string{"75650010"}, RecentDays: 2}
	req, err := parseArgs(nil, cfg, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"75650010"}, req.stations)
	assert.Equal(t, 2, req.days)
	assert.True(t, req.from.IsZero())
}

func TestParseArgsErrors(t *testing.T) {
	cfg := config.Config{RecentDays: 2}
	for _, args := range [][]string{
		{},
		{"-station", "1", "-year", "2024", "-days", "3"},
		{"-station", "1", "-year", "2999"},
		{"-station", "1", "-to", "2025-01-01"},
		{"-station", "1", "-from", "2025-02-01", "-to", "2025-01-01"},
		{"-station", "1", "-from", "01/02/2025"},
		{"-station", "1", "-days", "-4"},
		{"-station", "1", "-window", "-1"},
		{"-bogus"},
	} {
		_, err := parseArgs(args, cfg, now)
		assert.Error(t, err, "%v", args)
	}
}

func TestSyncStationsRunsEachStation(t *testing.T) {
	var mu sync.Mutex
	var stations []string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "OAUth") {
			_, _ = w.Write([]byte(`{"items":{"tokenautenticacao":"tok"}}`))
			return
		}
		code := r.URL.Query().Get("Codigos_Estacoes")
		mu.Lock()
		stations = append(stations, code)
		mu.Unlock()
		_, _ = fmt.Fprintf(w, `{"items":[{"codigoestacao":%q,"Data_Hora_Medicao":"2025-01-01 00:00:00","Cota_Adotada":"120"}]}`, code)
	}))
	defer upstream.Close()

	cfg := config.Config{
		BaseURL:        upstream.URL,
		Identifier:     "u",
		Secret:         "p",
		RequestTimeout: 5 * time.Second,
		WindowDays:     30,
	}
	store := db.NewMemStore()
	engine := app.NewEngine(cfg, store)

	req := request{stations: []string{"75650010", "75655000"}, from: day(2025, 1, 1), to: day(2025, 1, 1)}
	results, err := syncStations(context.Background(), engine, req)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.True(t, res.Success)
		assert.Equal(t, 1, res.TotalRecords)
	}
	mu.Lock()
	assert.Equal(t, []string{"75650010", "75655000"}, stations)
	mu.Unlock()
	assert.Equal(t, 2, store.Len())
}

func TestSyncStationsStopsWhenInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	engine := app.NewEngine(config.Config{}, db.NewMemStore())

	results, err := syncStations(ctx, engine, request{stations: []string{"1"}, days: 2})
	require.NoError(t, err)
	assert.Empty(t, results)
}
