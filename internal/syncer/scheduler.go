package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/02loveslollipop/shizuku-hidroweb/internal/logging"
)

// Scheduler periodically runs RunRecent for a fixed list of stations.
type Scheduler struct {
	engine   *Engine
	stations []string
	days     int
	cron     *cron.Cron
	entry    cron.EntryID
	log      zerolog.Logger
}

// NewScheduler validates schedule (standard five-field cron syntax or a
// descriptor such as @hourly) and registers the job. Call Start to begin.
func NewScheduler(engine *Engine, schedule string, stations []string, days int) (*Scheduler, error) {
	if len(stations) == 0 {
		return nil, errors.New("scheduler: no stations configured")
	}
	if days < 1 {
		return nil, ErrInvalidWindow
	}
	s := &Scheduler{
		engine:   engine,
		stations: stations,
		days:     days,
		cron:     cron.New(cron.WithLocation(time.UTC)),
		log:      logging.WithComponent("scheduler"),
	}
	id, err := s.cron.AddFunc(schedule, s.tick)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid schedule %q: %w", schedule, err)
	}
	s.entry = id
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().
		Strs("stations", s.stations).
		Int("days", s.days).
		Time("next", s.cron.Entry(s.entry).Next).
		Msg("sync scheduler started")
}

// Stop prevents new ticks and waits for a running tick until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn().Msg("sync scheduler stopped before the running tick finished")
	}
}

// tick syncs every station in order. A run started by another caller makes
// the tick give up instead of waiting.
func (s *Scheduler) tick() {
	if s.engine.Running() {
		s.log.Info().Msg("scheduled sync skipped: a run is already active")
		return
	}
	for _, station := range s.stations {
		res, err := s.engine.RunRecent(context.Background(), station, s.days)
		if errors.Is(err, ErrAlreadyRunning) {
			s.log.Info().Str("station", station).Msg("scheduled sync skipped: a run is already active")
			return
		}
		if err != nil {
			s.log.Error().Err(err).Str("station", station).Msg("scheduled sync failed")
			continue
		}
		if !res.Success {
			s.log.Warn().Str("station", station).Str("run_id", res.RunID).Str("error", res.Error).Msg("scheduled sync aborted")
		}
	}
}
