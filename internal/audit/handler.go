package audit

import (
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/larrabee/ceph/internal/platform/httpx"
	"github.com/larrabee/ceph/internal/rbac"
	"github.com/larrabee/ceph/internal/shared"
)

const (
	component        = "audit"
	dateLayout       = "2006-01-02"
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
	exportRateLimit  = 10
)

// Handler serves the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
	now     func() time.Time
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, now: time.Now}
}

// MountRoutes registers the timeline and its CSV export. Both need log:read.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.Require(rbac.S(rbac.ResourceLog, rbac.ActionRead)))
	r.Get("/", h.timeline)
	r.With(httprate.Limit(exportRateLimit, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.JSON(w, http.StatusTooManyRequests, httpx.ErrorBody{Code: "too_many_requests", Component: component})
		}),
	)).Get("/export.csv", h.export)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("export audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-timeline.csv"`)
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"at", "actor", "action", "entity", "entity_id"})
	for _, e := range entries {
		_ = cw.Write([]string{e.At.UTC().Format(time.RFC3339), e.Actor, e.Action, e.Entity, e.EntityID})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

// parseFilters reads from/to as dates, both inclusive. Ranges default to the
// last seven days and may not exceed ninety.
func (h *Handler) parseFilters(r *http.Request) (TimelineFilters, error) {
	q := r.URL.Query()
	now := h.now().UTC()

	toDay := now.Truncate(24 * time.Hour)
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		parsed, err := time.Parse(dateLayout, v)
		if err != nil {
			return TimelineFilters{}, shared.InvalidRequest(component, "to must be YYYY-MM-DD")
		}
		toDay = parsed
	}
	fromDay := toDay.Add(-defaultDateRange)
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		parsed, err := time.Parse(dateLayout, v)
		if err != nil {
			return TimelineFilters{}, shared.InvalidRequest(component, "from must be YYYY-MM-DD")
		}
		fromDay = parsed
	}
	if fromDay.After(toDay) {
		return TimelineFilters{}, shared.InvalidRequest(component, "from is after to")
	}
	if toDay.Sub(fromDay) > maxDateRange {
		return TimelineFilters{}, shared.InvalidRequest(component, "date range exceeds 90 days")
	}

	page, err := positiveInt(q.Get("page"), 1)
	if err != nil {
		return TimelineFilters{}, shared.InvalidRequest(component, "page must be a positive integer")
	}
	pageSize, err := positiveInt(q.Get("page_size"), defaultPageSize)
	if err != nil {
		return TimelineFilters{}, shared.InvalidRequest(component, "page_size must be a positive integer")
	}

	return TimelineFilters{
		From:     fromDay,
		To:       toDay.Add(24 * time.Hour),
		Actor:    q.Get("actor"),
		Entity:   q.Get("entity"),
		Action:   q.Get("action"),
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func positiveInt(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}

func rateLimitKey(r *http.Request) (string, error) {
	if identity, ok := shared.IdentityFromContext(r.Context()); ok && identity.Username != "" {
		return "user:" + identity.Username, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
