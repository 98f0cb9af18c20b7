// Package audittest provides an in-memory audit trail for tests.
package audittest

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/larrabee/ceph/internal/audit"
	"github.com/larrabee/ceph/internal/shared"
)

// MemoryStore records audit entries and serves them back as a timeline.
type MemoryStore struct {
	mu      sync.Mutex
	entries []audit.Entry
	now     func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: func() time.Time { return time.Now().UTC() }}
}

// Record stores log. It mirrors the column constraints of audit_logs.
func (m *MemoryStore) Record(_ context.Context, log shared.AuditLog) error {
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	at := log.At
	if at.IsZero() {
		at = m.now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, audit.Entry{
		At:       at,
		Actor:    log.Actor,
		Action:   log.Action,
		Entity:   log.Entity,
		EntityID: log.EntityID,
		Meta:     maps.Clone(log.Meta),
	})
	return nil
}

// Window returns limit matching entries after skipping offset.
func (m *MemoryStore) Window(ctx context.Context, filters audit.TimelineFilters, offset, limit int) ([]audit.Entry, error) {
	all, err := m.All(ctx, filters)
	if err != nil {
		return nil, err
	}
	if offset >= len(all) {
		return []audit.Entry{}, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], nil
}

// All returns matching entries newest first.
func (m *MemoryStore) All(_ context.Context, f audit.TimelineFilters) ([]audit.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audit.Entry, 0, len(m.entries))
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		switch {
		case !f.From.IsZero() && e.At.Before(f.From):
		case !f.To.IsZero() && !e.At.Before(f.To):
		case f.Actor != "" && e.Actor != f.Actor:
		case f.Entity != "" && e.Entity != f.Entity:
		case f.Action != "" && e.Action != f.Action:
		default:
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b audit.Entry) int { return b.At.Compare(a.At) })
	return out, nil
}

var (
	_ audit.Repository     = (*MemoryStore)(nil)
	_ shared.AuditRecorder = (*MemoryStore)(nil)
)
