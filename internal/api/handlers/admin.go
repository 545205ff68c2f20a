package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/nikhilbhutani/speech2text/internal/audit"
	"github.com/nikhilbhutani/speech2text/internal/transcription"
	"github.com/nikhilbhutani/speech2text/internal/usage"
)

// UsageReader returns per-outcome counts for one day.
type UsageReader interface {
	Day(ctx context.Context, day time.Time, outcomes []string) (map[string]int64, error)
}

// AuditReader lists recent audit entries.
type AuditReader interface {
	List(ctx context.Context, q audit.Query) ([]audit.Entry, error)
}

// AdminHandler serves usage counters and the audit trail. Either source may be
// nil when its store is not configured.
type AdminHandler struct {
	usage UsageReader
	audit AuditReader
}

func NewAdminHandler(u UsageReader, a AuditReader) *AdminHandler {
	return &AdminHandler{usage: u, audit: a}
}

func (h *AdminHandler) Usage(w http.ResponseWriter, r *http.Request) {
	if h.usage == nil {
		writeDetail(w, http.StatusServiceUnavailable, "usage counters unavailable")
		return
	}

	day, err := usage.ParseDay(r.URL.Query().Get("date"), time.Now())
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	counts, err := h.usage.Day(r.Context(), day, transcription.Outcomes)
	if err != nil {
		slog.Error("failed to read usage counters", "date", day.Format("2006-01-02"), "error", err)
		writeDetail(w, http.StatusInternalServerError, "could not read usage counters")
		return
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":     day.Format("2006-01-02"),
		"outcomes": counts,
		"total":    total,
	})
}

func (h *AdminHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeDetail(w, http.StatusServiceUnavailable, "audit trail unavailable")
		return
	}

	q := audit.Query{
		Outcome: r.URL.Query().Get("outcome"),
	}
	q.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	q.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	entries, err := h.audit.List(r.Context(), q)
	if err != nil {
		slog.Error("failed to list audit entries", "error", err)
		writeDetail(w, http.StatusInternalServerError, "could not read audit trail")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"audit_logs": entries, "count": len(entries)})
}
