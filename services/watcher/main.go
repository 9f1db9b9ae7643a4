package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/02loveslollipop/shizuku-hidroweb/internal/app"
	"github.com/02loveslollipop/shizuku-hidroweb/internal/config"
	"github.com/02loveslollipop/shizuku-hidroweb/internal/db"
	"github.com/02loveslollipop/shizuku-hidroweb/internal/logging"
	"github.com/02loveslollipop/shizuku-hidroweb/internal/syncer"
	"github.com/02loveslollipop/shizuku-hidroweb/internal/utils"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		logging.Fatal().Err(err).Msg("watcher failed")
	}
}

// request is what the command line asked for. Exactly one of the range
// selectors (year, from/to, days) is used; days is the fallback.
type request struct {
	stations []string
	year     int
	from     time.Time
	to       time.Time
	days     int
	window   int
}

func parseArgs(args []string, cfg config.Config, now time.Time) (request, error) {
	fs := flag.NewFlagSet("watcher", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	stations := fs.String("station", "", "comma separated station codes (default SYNC_STATIONS)")
	year := fs.Int("year", 0, "sync a whole calendar year")
	from := fs.String("from", "", "first day to sync, YYYY-MM-DD")
	to := fs.String("to", "", "last day to sync, YYYY-MM-DD (default today)")
	days := fs.Int("days", 0, "sync the last N days (default SYNC_RECENT_DAYS)")
	window := fs.Int("window", 0, "window size in days (default SYNC_WINDOW_DAYS)")
	if err := fs.Parse(args); err != nil {
		return request{}, err
	}

	req := request{
		stations: config.SplitList(*stations),
		year:     *year,
		days:     *days,
		window:   *window,
	}
	if len(req.stations) == 0 {
		req.stations = cfg.Stations
	}
	if len(req.stations) == 0 {
		return request{}, errors.New("no station given: use -station or SYNC_STATIONS")
	}
	if req.window < 0 {
		return request{}, fmt.Errorf("invalid -window %d", req.window)
	}

	selectors := 0
	for _, set := range []bool{*year != 0, *from != "" || *to != "", *days != 0} {
		if set {
			selectors++
		}
	}
	if selectors > 1 {
		return request{}, errors.New("-year, -from/-to and -days are mutually exclusive")
	}

	switch {
	case *year != 0:
		if *year < 1900 || *year > now.Year() {
			return request{}, fmt.Errorf("invalid -year %d", *year)
		}
		req.from = time.Date(*year, time.January, 1, 0, 0, 0, 0, time.UTC)
		req.to = time.Date(*year, time.December, 31, 0, 0, 0, 0, time.UTC)
		if today := syncer.Day(now); req.to.After(today) {
			req.to = today
		}
	case *from != "" || *to != "":
		if *from == "" {
			return request{}, errors.New("-to requires -from")
		}
		var err error
		if req.from, err = time.Parse(time.DateOnly, *from); err != nil {
			return request{}, fmt.Errorf("invalid -from: %w", err)
		}
		req.to = syncer.Day(now)
		if *to != "" {
			if req.to, err = time.Parse(time.DateOnly, *to); err != nil {
				return request{}, fmt.Errorf("invalid -to: %w", err)
			}
		}
		if req.from.After(req.to) {
			return request{}, errors.New("-from is after -to")
		}
	default:
		if req.days == 0 {
			req.days = cfg.RecentDays
		}
		if req.days < 1 {
			return request{}, fmt.Errorf("invalid -days %d", req.days)
		}
	}
	return req, nil
}

// options builds the engine options for one station.
func (r request) options(engine *syncer.Engine, station string) (syncer.Options, error) {
	if r.from.IsZero() {
		opts, err := engine.RecentOptions(station, r.days)
		if err != nil {
			return syncer.Options{}, err
		}
		if r.window > 0 {
			opts.WindowDays = r.window
		}
		return opts, nil
	}
	return syncer.Options{StationCode: station, StartDate: r.from, EndDate: r.to, WindowDays: r.window}, nil
}

func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	req, err := parseArgs(args, cfg, time.Now().UTC())
	if err != nil {
		return err
	}
	if cfg.DryRun {
		cfg.DatabaseURL = "memory://"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := syncStations(ctx, a.Engine, req)
	if cfg.DryRun {
		logDryRun(a.Store)
	}
	if err != nil {
		return err
	}

	failed := 0
	for _, res := range results {
		if !res.Success {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d station syncs aborted", failed, len(results))
	}
	return nil
}

// syncStations runs the stations one after another. A signal stops the loop
// between stations; the run in progress always completes.
func syncStations(ctx context.Context, engine *syncer.Engine, req request) ([]*syncer.Result, error) {
	results := make([]*syncer.Result, 0, len(req.stations))
	for _, station := range req.stations {
		if ctx.Err() != nil {
			logging.Warn().Str("station", station).Msg("interrupted, skipping remaining stations")
			break
		}
		opts, err := req.options(engine, station)
		if err != nil {
			return results, err
		}
		res, err := engine.Run(ctx, opts)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		for _, line := range res.Log {
			logging.Debug().Str("run_id", res.RunID).Msg(line)
		}
		logging.Info().
			Str("station", station).
			Bool("success", res.Success).
			Int("windows", res.TotalWindows).
			Int("records", res.TotalRecords).
			Int("created", res.RecordsCreated).
			Int("updated", res.RecordsUpdated).
			Int("fetch_errors", res.FetchErrors).
			Int("save_errors", res.SaveErrors).
			Str("duration", res.Duration.Round(time.Millisecond).String()).
			Msg("station synced")
	}
	return results, nil
}

func logDryRun(store db.Store) {
	mem, ok := store.(*db.MemStore)
	if !ok {
		return
	}
	for _, rec := range mem.Records() {
		logging.Info().
			Str("station", rec.StationCode).
			Time("ts", rec.MeasuredAt).
			Str("rainfall", utils.ValuePtrString(rec.Rainfall)).
			Str("level", utils.ValuePtrString(rec.WaterLevel)).
			Str("discharge", utils.ValuePtrString(rec.Discharge)).
			Msg("dry-run: would upsert")
	}
	logging.Info().Int("records", mem.Len()).Msg("dry-run: nothing written")
}
