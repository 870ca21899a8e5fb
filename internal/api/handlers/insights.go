package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/finbase/receipt-insights/internal/api/middleware"
	"github.com/finbase/receipt-insights/internal/insights"
	"github.com/finbase/receipt-insights/internal/pipeline"
)

// InsightsHandler serves spending reports.
type InsightsHandler struct {
	pipe *pipeline.Pipeline
	log  zerolog.Logger
}

// NewInsightsHandler creates an insights handler.
func NewInsightsHandler(pipe *pipeline.Pipeline, log zerolog.Logger) *InsightsHandler {
	return &InsightsHandler{pipe: pipe, log: log}
}

// Report handles GET /api/insights?start=YYYY-MM-DD&end=YYYY-MM-DD&merchant=.
//
// The window is half-open: receipts dated on or after start and strictly
// before end are included. With no end the window runs to tomorrow, so
// today's receipts count.
func (h *InsightsHandler) Report(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	window, err := parseWindow(q.Get("start"), q.Get("end"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.pipe.Insights(r.Context(), window, q.Get("merchant"))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build insights report")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to build insights report")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, report)
}

var errWindowOrder = errors.New("end must be after start")

func errInvalidDate(field, value string) error {
	return fmt.Errorf("invalid %s date %q: expected YYYY-MM-DD", field, value)
}

func parseWindow(start, end string) (insights.Window, error) {
	now := time.Now().UTC()

	// Default: the trailing 30 days through the end of today.
	w := insights.Window{
		Start: now.AddDate(0, 0, -30).Truncate(24 * time.Hour),
		End:   now.Truncate(24 * time.Hour).AddDate(0, 0, 1),
	}

	if start != "" {
		t, err := time.Parse("2006-01-02", start)
		if err != nil {
			return insights.Window{}, errInvalidDate("start", start)
		}
		w.Start = t
	}
	if end != "" {
		t, err := time.Parse("2006-01-02", end)
		if err != nil {
			return insights.Window{}, errInvalidDate("end", end)
		}
		w.End = t
	}
	if !w.End.After(w.Start) {
		return insights.Window{}, errWindowOrder
	}
	return w, nil
}
