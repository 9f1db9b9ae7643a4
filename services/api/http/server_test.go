package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/02loveslollipop/shizuku-hidroweb/internal/config"
	"github.com/02loveslollipop/shizuku-hidroweb/internal/db"
	"github.com/02loveslollipop/shizuku-hidroweb/internal/hidro"
	"github.com/02loveslollipop/shizuku-hidroweb/internal/syncer"
)

type fakeEngine struct {
	runErr   error
	startErr error
	result   *syncer.Result
	status   syncer.Status
	got      []syncer.Options
	async    bool
}

func (f *fakeEngine) Run(_ context.Context, opts syncer.Options) (*syncer.Result, error) {
	f.got = append(f.got, opts)
	if f.runErr != nil {
		return nil, f.runErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return &syncer.Result{Success: true, StationCode: opts.StationCode}, nil
}

func (f *fakeEngine) Start(_ context.Context, opts syncer.Options) (string, error) {
	f.got = append(f.got, opts)
	f.async = true
	if f.startErr != nil {
		return "", f.startErr
	}
	return "run-42", nil
}

func (f *fakeEngine) RecentOptions(station string, days int) (syncer.Options, error) {
	if days < 1 {
		return syncer.Options{}, syncer.ErrInvalidWindow
	}
	end := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	return syncer.Options{
		StationCode: station,
		StartDate:   end.AddDate(0, 0, -(days - 1)),
		EndDate:     end,
		WindowDays:  min(days, syncer.MaxWindowDays),
	}, nil
}

func (f *fakeEngine) Status() syncer.Status { return f.status }

func testConfig() config.Config {
	return config.Config{Port: 8080, RecentDays: 2}
}

func do(t *testing.T, srv *Server, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	srv := New(testConfig(), &fakeEngine{status: syncer.Status{Running: true}})
	rec := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["sync_running"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := New(testConfig(), &fakeEngine{})
	rec := do(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hidro_sync_running")
}

func TestSyncRunBlocking(t *testing.T) {
	eng := &fakeEngine{}
	srv := New(testConfig(), eng)

	rec := do(t, srv, http.MethodPost, "/api/v1/sync/run",
		`{"station_code":" 75650010 ","start_date":"2025-01-01","end_date":"2025-01-31","window_days":15}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "v1", rec.Header().Get("X-API-Version"))

	require.Len(t, eng.got, 1)
	assert.Equal(t, syncer.Options{
		StationCode: "75650010",
		StartDate:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
		WindowDays:  15,
	}, eng.got[0])
	assert.False(t, eng.async)

	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, true, data["success"])
	assert.Equal(t, "75650010", data["station_code"])
}

func TestSyncRunAsync(t *testing.T) {
	eng := &fakeEngine{}
	srv := New(testConfig(), eng)

	rec := do(t, srv, http.MethodPost, "/api/v1/sync/run?async=true",
		`{"station_code":"75650010","start_date":"2025-01-01","end_date":"2025-01-01"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, eng.async)
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "run-42", data["run_id"])
}

func TestSyncRunFatalResultIsStillOK(t *testing.T) {
	eng := &fakeEngine{result: &syncer.Result{Success: false, Error: "hidro: HIDRO_SENHA is not configured"}}
	srv := New(testConfig(), eng)

	rec := do(t, srv, http.MethodPost, "/api/v1/sync/run",
		`{"station_code":"1","start_date":"2025-01-01","end_date":"2025-01-01"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, false, data["success"])
}

func TestSyncRunValidation(t *testing.T) {
	srv := New(testConfig(), &fakeEngine{})
	for _, body := range []string{
		`{}`,
		`not json`,
		`{"station_code":"1","start_date":"01/01/2025","end_date":"2025-01-01"}`,
		`{"station_code":"1","start_date":"2025-01-01","end_date":"tomorrow"}`,
		`{"station_code":"1","start_date":"2025-02-01","end_date":"2025-01-01"}`,
		`{"station_code":"1","start_date":"2025-01-01","end_date":"2025-01-02","window_days":-1}`,
	} {
		rec := do(t, srv, http.MethodPost, "/api/v1/sync/run", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestSyncRunConflict(t *testing.T) {
	srv := New(testConfig(), &fakeEngine{runErr: syncer.ErrAlreadyRunning, startErr: syncer.ErrAlreadyRunning})

	rec := do(t, srv, http.MethodPost, "/api/v1/sync/run",
		`{"station_code":"1","start_date":"2025-01-01","end_date":"2025-01-01"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/v1/sync/recent?async=1", `{"station_code":"1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSyncRecentUsesConfiguredDays(t *testing.T) {
	eng := &fakeEngine{}
	srv := New(testConfig(), eng)

	rec := do(t, srv, http.MethodPost, "/api/v1/sync/recent", `{"station_code":"75650010"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, eng.got, 1)
	assert.Equal(t, 2, eng.got[0].WindowDays)
	assert.Equal(t, time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC), eng.got[0].StartDate)

	rec = do(t, srv, http.MethodPost, "/api/v1/sync/recent", `{"station_code":"75650010","days":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, eng.got[1].WindowDays)
}

func TestSyncStatus(t *testing.T) {
	end := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	eng := &fakeEngine{status: syncer.Status{
		LastSync: &syncer.LastSync{RunID: "r1", StartTime: end.Add(-time.Minute), EndTime: &end, RecordsProcessed: 10, Errors: 1},
	}}
	srv := New(testConfig(), eng)

	rec := do(t, srv, http.MethodGet, "/api/v1/sync/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, false, data["running"])
	last := data["last_sync"].(map[string]any)
	assert.Equal(t, "r1", last["run_id"])
	assert.EqualValues(t, 10, last["records_processed"])
}

func TestBearerAuth(t *testing.T) {
	cfg := testConfig()
	cfg.BearerToken = "s3cret"
	srv := New(cfg, &fakeEngine{})

	assert.Equal(t, http.StatusUnauthorized, do(t, srv, http.MethodGet, "/api/v1/sync/status", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, srv, http.MethodGet, "/api/v1/sync/status", "", "Authorization", "Bearer nope").Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/v1/sync/status", "", "Authorization", "Bearer s3cret").Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", "").Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := New(testConfig(), &fakeEngine{})
	rec := do(t, srv, http.MethodOptions, "/api/v1/sync/run", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

// End to end through the real engine, client and in-memory sink.
func TestSyncRunAgainstUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "OAUth") {
			_, _ = w.Write([]byte(`{"items":{"tokenautenticacao":"tok\n"}}`))
			return
		}
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var buf bytes.Buffer
		buf.WriteString(`{"items":[`)
		buf.WriteString(`{"codigoestacao":"75650010","Data_Hora_Medicao":"2025-01-01 00:00:00.0","Chuva_Adotada":"0.0"},`)
		buf.WriteString(`{"Data_Hora_Medicao":"2025-01-01 00:15:00.0","Chuva_Adotada":"0.4"},`)
		buf.WriteString(`{"Chuva_Adotada":"9"}`)
		buf.WriteString(`]}`)
		_, _ = w.Write(buf.Bytes())
	}))
	defer upstream.Close()

	store := db.NewMemStore()
	engine := syncer.New(syncer.Config{Identifier: "u", Secret: "p"},
		hidro.NewClient(upstream.URL, upstream.Client()), store, syncer.NoThrottle{})
	srv := New(testConfig(), engine)

	rec := do(t, srv, http.MethodPost, "/api/v1/sync/run",
		`{"station_code":"75650010","start_date":"2025-01-01","end_date":"2025-01-01"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, true, data["success"])
	assert.EqualValues(t, 2, data["total_records"])
	assert.EqualValues(t, 1, data["save_errors"])
	assert.Equal(t, 2, store.Len())

	rec = do(t, srv, http.MethodGet, "/api/v1/sync/status", "")
	status := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, false, status["running"])
	assert.NotNil(t, status["last_sync"].(map[string]any)["end_time"])
}
