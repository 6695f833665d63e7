package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/switchyard-net/switchyard/pkg/util"
)

// MemoryStore is an in-process Store used by tests and simulation runs.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int
	samples map[string][]*Sample
	alerts  []*Alert
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{samples: map[string][]*Sample{}}
}

func (s *MemoryStore) StoreSample(ctx context.Context, alias string, cpuPct float64, rawPreview string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[alias] = append(s.samples[alias], &Sample{
		Alias:      alias,
		CPUPct:     cpuPct,
		RawPreview: util.Truncate(rawPreview, RawPreviewLimit),
		At:         at,
	})
	return nil
}

func (s *MemoryStore) Samples(alias string) []*Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Sample(nil), s.samples[alias]...)
}

func (s *MemoryStore) FindActiveAlert(ctx context.Context, alias, category string) (*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.alerts) - 1; i >= 0; i-- {
		a := s.alerts[i]
		if a.Alias == alias && a.Category == category && a.ClearedAt == nil {
			return a, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) CreateAlert(ctx context.Context, alias, category, severity, message, meta string) (*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	alert := &Alert{
		ID:        fmt.Sprintf("alert-%d", s.nextID),
		Alias:     alias,
		Category:  category,
		Severity:  severity,
		Message:   message,
		Meta:      meta,
		CreatedAt: time.Now().UTC(),
	}
	s.alerts = append(s.alerts, alert)
	return alert, nil
}

func (s *MemoryStore) ClearAlert(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		if a.ID == id && a.ClearedAt == nil {
			cleared := at.UTC()
			a.ClearedAt = &cleared
		}
	}
	return nil
}

func (s *MemoryStore) ActiveAlerts(ctx context.Context, category string) ([]*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Alert
	for _, a := range s.alerts {
		if a.Category == category && a.ClearedAt == nil {
			out = append(out, a)
		}
	}
	return out, nil
}

// Alerts returns every alert ever created, for test assertions.
func (s *MemoryStore) Alerts() []*Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Alert(nil), s.alerts...)
}
