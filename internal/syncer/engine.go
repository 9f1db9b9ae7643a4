// Package syncer drives HidroWeb telemetry synchronization: it splits a date
// range into windows, fetches each window sequentially and upserts every
// record, while guaranteeing that only one run is active per process.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/02loveslollipop/shizuku-hidroweb/internal/db"
	"github.com/02loveslollipop/shizuku-hidroweb/internal/hidro"
	"github.com/02loveslollipop/shizuku-hidroweb/internal/logging"
	"github.com/02loveslollipop/shizuku-hidroweb/internal/metrics"
	"github.com/02loveslollipop/shizuku-hidroweb/internal/models"
	"github.com/02loveslollipop/shizuku-hidroweb/internal/utils"
)

// ErrAlreadyRunning is returned when a run is requested while another is active.
var ErrAlreadyRunning = errors.New("sync: a sync run is already in progress")

// Fetcher is the upstream side of a run.
type Fetcher interface {
	Login(ctx context.Context, identifier, secret string) (string, error)
	FetchWindow(ctx context.Context, token, stationCode string, windowStart time.Time, rangeDays int) ([]models.RawRecord, error)
}

// Sink persists normalized records.
type Sink interface {
	SaveTelemetry(ctx context.Context, rec models.TelemetryRecord) (db.Outcome, error)
}

// Config carries the credentials and defaults used by every run.
type Config struct {
	Identifier string
	Secret     string
	// WindowDays is used when Options.WindowDays is zero.
	WindowDays int
}

// Options selects what a single run synchronizes.
type Options struct {
	StationCode string    `json:"station_code"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	WindowDays  int       `json:"window_days"`
}

// Result summarizes one run. Success is false only when the run was aborted
// before the window loop (configuration, authentication, planning).
type Result struct {
	RunID            string        `json:"run_id"`
	Success          bool          `json:"success"`
	StationCode      string        `json:"station_code"`
	StartDate        time.Time     `json:"start_date"`
	EndDate          time.Time     `json:"end_date"`
	WindowDays       int           `json:"window_days"`
	TotalWindows     int           `json:"total_windows"`
	WindowsSucceeded int           `json:"windows_succeeded"`
	TotalRecords     int           `json:"total_records"`
	RecordsCreated   int           `json:"records_created"`
	RecordsUpdated   int           `json:"records_updated"`
	TotalErrors      int           `json:"total_errors"`
	FetchErrors      int           `json:"fetch_errors"`
	SaveErrors       int           `json:"save_errors"`
	Error            string        `json:"error,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at"`
	Duration         time.Duration `json:"-"`
	DurationSeconds  float64       `json:"duration_seconds"`
	Log              []string      `json:"log"`
}

func (r *Result) logf(format string, args ...any) {
	r.Log = append(r.Log, fmt.Sprintf(format, args...))
}

// Engine owns the process-wide sync state. Build one per process and share it.
type Engine struct {
	cfg      Config
	fetcher  Fetcher
	sink     Sink
	throttle Throttle
	now      func() time.Time
	newID    func() string

	running atomic.Bool

	mu     sync.RWMutex
	status Status
}

type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRunIDs replaces the uuid run id generator.
func WithRunIDs(next func() string) Option {
	return func(e *Engine) { e.newID = next }
}

func New(cfg Config, fetcher Fetcher, sink Sink, throttle Throttle, opts ...Option) *Engine {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = DefaultWindowDays
	}
	if throttle == nil {
		throttle = NoThrottle{}
	}
	e := &Engine{
		cfg:      cfg,
		fetcher:  fetcher,
		sink:     sink,
		throttle: throttle,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Status returns a copy of the current state.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status.clone()
}

// Running reports whether a run is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Run synchronizes one station over a date range and blocks until done.
// Cancelling ctx does not stop the run.
func (e *Engine) Run(ctx context.Context, opts Options) (*Result, error) {
	if !e.running.CompareAndSwap(false, true) {
		metrics.SyncRuns.WithLabelValues("rejected").Inc()
		return nil, ErrAlreadyRunning
	}
	res := e.begin(opts)
	return e.execute(ctx, opts, res), nil
}

// Start is Run in the background. It returns the run id once the run is
// registered, or ErrAlreadyRunning.
func (e *Engine) Start(ctx context.Context, opts Options) (string, error) {
	if !e.running.CompareAndSwap(false, true) {
		metrics.SyncRuns.WithLabelValues("rejected").Inc()
		return "", ErrAlreadyRunning
	}
	res := e.begin(opts)
	go e.execute(ctx, opts, res)
	return res.RunID, nil
}

// RunRecent synchronizes the last days calendar days, today included.
func (e *Engine) RunRecent(ctx context.Context, stationCode string, days int) (*Result, error) {
	opts, err := e.RecentOptions(stationCode, days)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, opts)
}

// RecentOptions builds the Options RunRecent would use. Today is taken in the
// upstream time zone.
func (e *Engine) RecentOptions(stationCode string, days int) (Options, error) {
	if days < 1 {
		return Options{}, ErrInvalidWindow
	}
	y, m, d := e.now().In(utils.SourceZone).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return Options{
		StationCode: stationCode,
		StartDate:   today.AddDate(0, 0, -(days - 1)),
		EndDate:     today,
		WindowDays:  min(days, MaxWindowDays),
	}, nil
}

// begin must be called with the running flag held.
func (e *Engine) begin(opts Options) *Result {
	started := e.now()
	res := &Result{
		RunID:       e.newID(),
		StationCode: opts.StationCode,
		StartDate:   Day(opts.StartDate),
		EndDate:     Day(opts.EndDate),
		WindowDays:  e.windowDays(opts),
		StartedAt:   started,
		Log:         make([]string, 0, 8),
	}

	e.mu.Lock()
	e.status = Status{
		Running:          true,
		CurrentStation:   opts.StationCode,
		CurrentOperation: "starting",
		LastSync:         &LastSync{RunID: res.RunID, StartTime: started},
	}
	e.mu.Unlock()

	metrics.SyncRunning.Set(1)
	return res
}

func (e *Engine) windowDays(opts Options) int {
	if opts.WindowDays != 0 {
		return opts.WindowDays
	}
	return e.cfg.WindowDays
}

func (e *Engine) execute(ctx context.Context, opts Options, res *Result) (out *Result) {
	ctx = logging.ContextWithRunID(context.WithoutCancel(ctx), res.RunID)
	base := logging.WithComponent("sync")
	log := base.With().
		Str("run_id", logging.RunIDFromContext(ctx)).
		Str("station", opts.StationCode).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Error = fmt.Sprintf("panic: %v", r)
			res.logf("sync aborted by panic: %v", r)
			log.Error().Interface("panic", r).Msg("sync run panicked")
		}
		e.finish(res, log)
		out = res
	}()

	log.Info().
		Str("start", res.StartDate.Format(time.DateOnly)).
		Str("end", res.EndDate.Format(time.DateOnly)).
		Int("window_days", res.WindowDays).
		Msg("sync started")
	res.logf("sync of station %s from %s to %s started", opts.StationCode,
		res.StartDate.Format(time.DateOnly), res.EndDate.Format(time.DateOnly))

	if err := e.prepare(opts); err != nil {
		e.abort(res, log, err)
		return res
	}

	e.setOperation("authenticating")
	token, err := e.fetcher.Login(ctx, e.cfg.Identifier, e.cfg.Secret)
	if err == nil {
		token = hidro.CleanToken(token)
		if token == "" {
			err = &hidro.AuthError{Reason: "empty token"}
		}
	}
	if err != nil {
		e.abort(res, log, fmt.Errorf("login: %w", err))
		return res
	}
	res.logf("authenticated")

	windows, err := Windows(opts.StartDate, opts.EndDate, res.WindowDays)
	if err != nil {
		e.abort(res, log, fmt.Errorf("plan windows: %w", err))
		return res
	}
	res.TotalWindows = len(windows)
	res.logf("%d window(s) of up to %d day(s) planned", len(windows), res.WindowDays)

	for i, w := range windows {
		e.processWindow(ctx, log, token, opts.StationCode, i+1, len(windows), w, res)
	}

	res.Success = true
	res.logf("sync finished: %d record(s) saved, %d error(s)", res.TotalRecords, res.TotalErrors)
	return res
}

func (e *Engine) prepare(opts Options) error {
	switch {
	case e.cfg.Identifier == "":
		return &hidro.ConfigError{Field: "HIDRO_IDENTIFICADOR"}
	case e.cfg.Secret == "":
		return &hidro.ConfigError{Field: "HIDRO_SENHA"}
	case opts.StationCode == "":
		return errors.New("sync: station code is required")
	}
	return nil
}

func (e *Engine) processWindow(ctx context.Context, log zerolog.Logger, token, station string, idx, total int, w Window, res *Result) {
	day := w.Start.Format(time.DateOnly)
	wlog := log.With().Int("window", idx).Int("windows", total).Str("window_start", day).Logger()

	e.setProgress(idx, total, fmt.Sprintf("fetching window %d/%d (%s)", idx, total, day))

	if err := e.throttle.Wait(ctx); err != nil {
		e.windowFailed(res, wlog, idx, day, fmt.Errorf("throttle: %w", err))
		return
	}

	raws, err := e.fetcher.FetchWindow(ctx, token, station, w.Start, res.WindowDays)
	if err != nil {
		e.windowFailed(res, wlog, idx, day, err)
		return
	}
	res.WindowsSucceeded++

	if len(raws) == 0 {
		metrics.SyncWindows.WithLabelValues("empty").Inc()
		wlog.Info().Msg("window returned no records")
		res.logf("window %d (%s): no records", idx, day)
		return
	}
	metrics.SyncWindows.WithLabelValues("ok").Inc()

	saved, failed := 0, 0
	for _, raw := range raws {
		if err := e.saveRecord(ctx, raw, station, res); err != nil {
			failed++
			wlog.Warn().Err(err).Msg("record not saved")
			continue
		}
		saved++
	}
	e.syncCounters(res)

	wlog.Info().Int("received", len(raws)).Int("saved", saved).Int("failed", failed).Msg("window processed")
	res.logf("window %d (%s): %d received, %d saved, %d failed", idx, day, len(raws), saved, failed)
}

func (e *Engine) saveRecord(ctx context.Context, raw models.RawRecord, station string, res *Result) error {
	rec, err := utils.NormalizeRecord(raw, station)
	if err == nil {
		var outcome db.Outcome
		outcome, err = e.sink.SaveTelemetry(ctx, rec)
		if err == nil {
			res.TotalRecords++
			if outcome == db.Updated {
				res.RecordsUpdated++
			} else {
				res.RecordsCreated++
			}
			metrics.SyncRecords.WithLabelValues(outcome.String()).Inc()
			return nil
		}
	}
	res.SaveErrors++
	res.TotalErrors++
	metrics.SyncRecords.WithLabelValues("failed").Inc()
	return err
}

func (e *Engine) windowFailed(res *Result, log zerolog.Logger, idx int, day string, err error) {
	res.FetchErrors++
	res.TotalErrors++
	e.syncCounters(res)
	metrics.SyncWindows.WithLabelValues("failed").Inc()
	log.Error().Err(err).Msg("window fetch failed")
	res.logf("window %d (%s): fetch failed: %v", idx, day, err)
}

func (e *Engine) abort(res *Result, log zerolog.Logger, err error) {
	res.Success = false
	res.Error = err.Error()
	res.logf("sync aborted: %v", err)
	log.Error().Err(err).Msg("sync aborted")
}

func (e *Engine) finish(res *Result, log zerolog.Logger) {
	finished := e.now()
	res.FinishedAt = finished
	res.Duration = finished.Sub(res.StartedAt)
	res.DurationSeconds = res.Duration.Seconds()

	e.mu.Lock()
	e.status.Running = false
	e.status.CurrentStation = ""
	e.status.Progress = nil
	e.status.CurrentOperation = ""
	if e.status.LastSync != nil {
		e.status.LastSync.EndTime = &finished
		e.status.LastSync.RecordsProcessed = res.TotalRecords
		e.status.LastSync.Errors = res.TotalErrors
	}
	e.mu.Unlock()
	e.running.Store(false)

	outcome := "success"
	if !res.Success {
		outcome = "failed"
	}
	metrics.SyncRunning.Set(0)
	metrics.SyncRuns.WithLabelValues(outcome).Inc()
	metrics.SyncRunDuration.Observe(res.DurationSeconds)

	log.Info().
		Bool("success", res.Success).
		Int("windows", res.TotalWindows).
		Int("records", res.TotalRecords).
		Int("fetch_errors", res.FetchErrors).
		Int("save_errors", res.SaveErrors).
		Dur("duration", res.Duration).
		Msg("sync finished")
}

func (e *Engine) setOperation(op string) {
	e.mu.Lock()
	e.status.CurrentOperation = op
	e.mu.Unlock()
}

func (e *Engine) setProgress(current, total int, op string) {
	e.mu.Lock()
	e.status.Progress = newProgress(current, total)
	e.status.CurrentOperation = op
	e.mu.Unlock()
}

func (e *Engine) syncCounters(res *Result) {
	e.mu.Lock()
	if e.status.LastSync != nil {
		e.status.LastSync.RecordsProcessed = res.TotalRecords
		e.status.LastSync.Errors = res.TotalErrors
	}
	e.mu.Unlock()
}
