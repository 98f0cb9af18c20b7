// Package audit reads the access audit trail written by the user and role
// services.
package audit

import (
	"context"
	"fmt"
	"strings"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Repository reads audit_logs. Entries are returned newest first.
type Repository interface {
	Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]Entry, error)
	All(ctx context.Context, filters TimelineFilters) ([]Entry, error)
}

// Service coordinates audit timeline queries.
type Service struct {
	repo Repository
}

// NewService builds a timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of entries.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	filters = normalize(filters)
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}

	// One extra row tells whether a next page exists.
	entries, err := s.repo.Window(ctx, filters, (page-1)*pageSize, pageSize+1)
	if err != nil {
		return Result{}, fmt.Errorf("audit: timeline: %w", err)
	}
	hasNext := len(entries) > pageSize
	if hasNext {
		entries = entries[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	if entries == nil {
		entries = []Entry{}
	}
	return Result{Entries: entries, Paging: paging}, nil
}

// Export returns every matching entry without paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]Entry, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	entries, err := s.repo.All(ctx, normalize(filters))
	if err != nil {
		return nil, fmt.Errorf("audit: export: %w", err)
	}
	return entries, nil
}

func normalize(f TimelineFilters) TimelineFilters {
	f.Actor = strings.TrimSpace(f.Actor)
	f.Entity = strings.TrimSpace(f.Entity)
	f.Action = strings.TrimSpace(f.Action)
	return f
}
