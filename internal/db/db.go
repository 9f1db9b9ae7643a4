package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/02loveslollipop/shizuku-hidroweb/internal/models"
)

// Outcome tells whether an upsert inserted a new row or overwrote one.
type Outcome int

const (
	Created Outcome = iota + 1
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// PersistError is returned for a record that could not be written.
type PersistError struct {
	StationCode string
	MeasuredAt  time.Time
	Err         error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s@%s: %v", e.StationCode, e.MeasuredAt.Format(time.RFC3339), e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

func persistErr(rec models.TelemetryRecord, err error) error {
	return &PersistError{StationCode: rec.StationCode, MeasuredAt: rec.MeasuredAt, Err: err}
}

// Store is a deduplicating telemetry sink keyed by (station code, measurement time).
type Store interface {
	SaveTelemetry(ctx context.Context, rec models.TelemetryRecord) (Outcome, error)
	Close()
}

// Open picks a store implementation from the URL scheme:
// postgres:// or postgresql://, sqlite://<path> or file:<path>, memory://.
func Open(ctx context.Context, databaseURL string) (Store, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return NewPostgresStore(ctx, databaseURL)
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(databaseURL, "sqlite://"))
	case strings.HasPrefix(databaseURL, "file:"):
		return NewSQLiteStore(ctx, databaseURL)
	case databaseURL == "memory://" || databaseURL == "memory":
		return NewMemStore(), nil
	default:
		return nil, fmt.Errorf("db: unsupported database url %q", databaseURL)
	}
}

func validate(rec models.TelemetryRecord) error {
	if rec.StationCode == "" {
		return fmt.Errorf("station code is empty")
	}
	if rec.MeasuredAt.IsZero() {
		return fmt.Errorf("measurement time is zero")
	}
	return nil
}
