package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/02loveslollipop/shizuku-hidroweb/internal/models"
)

type memKey struct {
	station string
	ts      int64
}

// MemStore keeps telemetry in memory. Used for dry runs and tests.
type MemStore struct {
	mu      sync.RWMutex
	records map[memKey]models.TelemetryRecord
}

func NewMemStore() *MemStore {
	return &MemStore{records: make(map[memKey]models.TelemetryRecord)}
}

func (m *MemStore) SaveTelemetry(_ context.Context, rec models.TelemetryRecord) (Outcome, error) {
	if err := validate(rec); err != nil {
		return 0, persistErr(rec, err)
	}
	rec.MeasuredAt = rec.MeasuredAt.UTC()
	key := memKey{station: rec.StationCode, ts: rec.MeasuredAt.UnixNano()}

	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.records[key]
	m.records[key] = rec
	if exists {
		return Updated, nil
	}
	return Created, nil
}

func (m *MemStore) Close() {}

// Len returns the number of stored records.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Get returns the record stored for (station, ts).
func (m *MemStore) Get(station string, ts time.Time) (models.TelemetryRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[memKey{station: station, ts: ts.UTC().UnixNano()}]
	return rec, ok
}

// Records returns a snapshot ordered by station and time.
func (m *MemStore) Records() []models.TelemetryRecord {
	m.mu.RLock()
	out := make([]models.TelemetryRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StationCode != out[j].StationCode {
			return out[i].StationCode < out[j].StationCode
		}
		return out[i].MeasuredAt.Before(out[j].MeasuredAt)
	})
	return out
}
