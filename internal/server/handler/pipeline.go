package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// Trigger requests an out-of-schedule cycle. It reports false when one is
// already pending.
type Trigger interface {
	Trigger() bool
}

// PipelineHandler serves the pipeline trigger endpoint.
type PipelineHandler struct {
	trigger Trigger
	logger  *slog.Logger
}

// NewPipelineHandler creates a PipelineHandler. trigger may be nil when this
// process runs no ingest poller.
func NewPipelineHandler(trigger Trigger, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{trigger: trigger, logger: logger}
}

// TriggerPipeline enqueues one ingestion cycle.
// POST /api/pipeline/trigger
func (h *PipelineHandler) TriggerPipeline(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		writeError(w, r, http.StatusServiceUnavailable, "ingest pipeline is not running in this process")
		return
	}
	queued := h.trigger.Trigger()
	h.logger.InfoContext(r.Context(), "pipeline trigger requested", slog.Bool("queued", queued))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"queued":       queued,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
