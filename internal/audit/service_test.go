package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/larrabee/ceph/internal/audit"
	"github.com/larrabee/ceph/internal/audit/audittest"
	"github.com/larrabee/ceph/internal/shared"
)

type stubRepo struct {
	entries    []audit.Entry
	lastOffset int
	lastLimit  int
	lastFilter audit.TimelineFilters
}

func (s *stubRepo) Window(_ context.Context, f audit.TimelineFilters, offset, limit int) ([]audit.Entry, error) {
	s.lastFilter, s.lastOffset, s.lastLimit = f, offset, limit
	if len(s.entries) > limit {
		return s.entries[:limit], nil
	}
	return s.entries, nil
}

func (s *stubRepo) All(_ context.Context, f audit.TimelineFilters) ([]audit.Entry, error) {
	s.lastFilter = f
	return s.entries, nil
}

func entry(at string, actor, action, id string) audit.Entry {
	ts, _ := time.Parse(time.RFC3339, at)
	return audit.Entry{At: ts, Actor: actor, Action: action, Entity: "user", EntityID: id}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubRepo{entries: []audit.Entry{
		entry("2024-03-10T10:00:00Z", "admin", "user.update", "1"),
		entry("2024-03-09T09:00:00Z", "admin", "user.update", "2"),
		entry("2024-03-08T08:00:00Z", "admin", "user.create", "3"),
	}}
	result, err := audit.NewService(repo).Timeline(context.Background(), audit.TimelineFilters{Page: 1, PageSize: 2, Actor: "  admin "})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(result.Entries))
	}
	if !result.Paging.HasNext || result.Paging.NextPage != 2 || result.Paging.PrevPage != 0 {
		t.Fatalf("unexpected paging %+v", result.Paging)
	}
	if repo.lastLimit != 3 || repo.lastOffset != 0 {
		t.Fatalf("expected limit 3 offset 0, got %d/%d", repo.lastLimit, repo.lastOffset)
	}
	if repo.lastFilter.Actor != "admin" {
		t.Fatalf("expected trimmed actor, got %q", repo.lastFilter.Actor)
	}
}

func TestServiceTimelineClampsPage(t *testing.T) {
	repo := &stubRepo{}
	result, err := audit.NewService(repo).Timeline(context.Background(), audit.TimelineFilters{Page: 3, PageSize: 500})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if result.Paging.PageSize != 50 || repo.lastLimit != 51 || repo.lastOffset != 100 {
		t.Fatalf("unexpected window %+v limit=%d offset=%d", result.Paging, repo.lastLimit, repo.lastOffset)
	}
	if result.Paging.PrevPage != 2 || result.Paging.HasNext {
		t.Fatalf("unexpected paging %+v", result.Paging)
	}
	if result.Entries == nil {
		t.Fatalf("entries must not be nil")
	}
}

func TestServiceWithoutRepository(t *testing.T) {
	if _, err := audit.NewService(nil).Timeline(context.Background(), audit.TimelineFilters{}); err == nil {
		t.Fatalf("expected error without repository")
	}
}

func TestMemoryStoreFilters(t *testing.T) {
	store := audittest.NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, log := range []shared.AuditLog{
		{Actor: "admin", Action: "user.create", Entity: "user", EntityID: "u1", At: base},
		{Actor: "admin", Action: "role.create", Entity: "role", EntityID: "r1", At: base.Add(time.Hour)},
		{Actor: "ops", Action: "user.delete", Entity: "user", EntityID: "u1", At: base.Add(48 * time.Hour)},
	} {
		if err := store.Record(ctx, log); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	if err := store.Record(ctx, shared.AuditLog{Action: "x"}); err == nil {
		t.Fatalf("expected validation error")
	}

	svc := audit.NewService(store)
	all, err := svc.Export(ctx, audit.TimelineFilters{})
	if err != nil || len(all) != 3 || all[0].Action != "user.delete" {
		t.Fatalf("unexpected export %v %+v", err, all)
	}

	users, _ := svc.Export(ctx, audit.TimelineFilters{Entity: "user"})
	if len(users) != 2 {
		t.Fatalf("expected 2 user entries, got %d", len(users))
	}
	day, _ := svc.Export(ctx, audit.TimelineFilters{From: base, To: base.Add(24 * time.Hour), Actor: "admin"})
	if len(day) != 2 || day[0].EntityID != "r1" {
		t.Fatalf("unexpected window %+v", day)
	}
}
