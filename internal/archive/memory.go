// Package archive persists completed simulation runs. The memory store is
// the reference implementation; the SQLite and Postgres stores wrap it with
// a durable JSON row per run.
package archive

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"metsicore/internal/core"
)

// Memory is an in-memory run archive. Records are cloned on the way in and
// out so callers never alias archived state.
type Memory struct {
	mu   sync.RWMutex
	runs map[string]core.RunRecord
}

var _ core.RunArchive = (*Memory)(nil)

// NewMemory constructs an empty in-memory archive.
func NewMemory() *Memory {
	return &Memory{runs: make(map[string]core.RunRecord)}
}

// SaveRun stores a completed run. Run IDs are immutable: saving a duplicate
// ID fails.
func (m *Memory) SaveRun(_ context.Context, record core.RunRecord) error {
	if record.ID == "" {
		return fmt.Errorf("run record has empty id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runs[record.ID]; exists {
		return fmt.Errorf("run %s already archived", record.ID)
	}
	m.runs[record.ID] = record.Clone()
	return nil
}

// removeRun discards a stored record. The durable stores use it to roll back
// the memory copy when their insert fails, so reads never serve a run that
// was not persisted.
func (m *Memory) removeRun(id string) {
	m.mu.Lock()
	delete(m.runs, id)
	m.mu.Unlock()
}

// GetRun fetches a run by ID.
func (m *Memory) GetRun(_ context.Context, id string) (core.RunRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.runs[id]
	if !ok {
		return core.RunRecord{}, false, nil
	}
	return record.Clone(), true, nil
}

// ListRuns returns all archived runs ordered by creation time, then ID.
func (m *Memory) ListRuns(_ context.Context) ([]core.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.RunRecord, 0, len(m.runs))
	for _, record := range m.runs {
		out = append(out, record.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
