package web

import (
	"database/sql"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hpungsan/autoledger/internal/config"
	"github.com/hpungsan/autoledger/internal/errors"
	"github.com/hpungsan/autoledger/internal/ops"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	shotDir  string
	renderer *Renderer
}

// HandleRows handles GET /rows: ledger rows newest first.
func (h *Handlers) HandleRows(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimSpace(r.URL.Query().Get("prefix"))
	result, err := ops.List(r.Context(), h.cfg, ops.ListInput{
		Prefix: prefix,
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, r, "rows", RowsPageData{
		PageData:   h.renderer.page("Ledger", "rows"),
		Path:       result.Path,
		Items:      result.Items,
		Pagination: result.Pagination,
		Prefix:     prefix,
		Skipped:    result.Skipped,
	})
}

// HandleRow handles GET /rows/{digest}.
func (h *Handlers) HandleRow(w http.ResponseWriter, r *http.Request) {
	digest := r.PathValue("digest")
	if digest == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("row digest is required"))
		return
	}
	row, err := ops.GetRow(r.Context(), h.cfg, digest)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, row)
		return
	}

	title := row.Merchant
	if title == "" {
		title = row.Time
	}
	h.renderer.renderPage(w, r, "row", RowPageData{
		PageData: h.renderer.page(title, "rows"),
		Row:      row,
		NoteHTML: renderMarkdown(row.Note),
		RawHTML:  renderMarkdown(row.Raw),
	})
}

// HandleStats handles GET /stats: totals for one day, month or year.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "month"
	}
	anchor := r.URL.Query().Get("anchor")
	shift := parseIntParam(r, "shift", 0)

	result, err := ops.Stats(r.Context(), h.cfg, ops.StatsInput{
		Period: period,
		Anchor: anchor,
		Shift:  shift,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, r, "stats", StatsPageData{
		PageData: h.renderer.page("Stats "+result.Key, "stats"),
		Stats:    result,
		Period:   period,
		Anchor:   anchor,
		Shift:    shift,
	})
}

// HandleHistory handles GET /history: recorded capture outcomes.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	outcome := r.URL.Query().Get("outcome")
	source := r.URL.Query().Get("source")
	result, err := ops.History(r.Context(), h.db, ops.HistoryInput{
		Outcome: outcome,
		Source:  source,
		Limit:   parseIntParam(r, "limit", ops.DefaultHistoryLimit),
		Offset:  parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, r, "history", HistoryPageData{
		PageData:   h.renderer.page("Capture history", "history"),
		Items:      result.Items,
		Pagination: result.Pagination,
		Outcome:    outcome,
		Source:     source,
	})
}

// HandleScreenshot handles GET /screenshots/{name}.
func (h *Handlers) HandleScreenshot(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" || strings.ContainsAny(name, `/\`) {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("screenshot name is required"))
		return
	}
	data, err := ops.ReadScreenshot(filepath.Join(h.shotDir, name), h.shotDir)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
