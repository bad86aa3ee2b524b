package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"sheetsync/internal/core"
)

type cronPreviewRequest struct {
	Expr            string                `json:"expr"`
	FixedTimeConfig *core.FixedTimeConfig `json:"fixedTimeConfig,omitempty"`
	Now             string                `json:"now,omitempty"`
	Count           int                   `json:"count,omitempty"`
}

type cronPreviewResponse struct {
	Valid     bool     `json:"valid"`
	NextTimes []string `json:"next_times,omitempty"`
	Message   string   `json:"message,omitempty"`
}

func (s *Server) handleCronValidate(w http.ResponseWriter, r *http.Request) {
	var req cronPreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	writeJSON(w, http.StatusOK, core.ValidateCron(req.Expr))
}

// handleCronPreview lists upcoming fire times of a cron expression or, when
// fixedTimeConfig is given, of a fixed-time trigger.
func (s *Server) handleCronPreview(w http.ResponseWriter, r *http.Request) {
	var req cronPreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, cronPreviewResponse{Valid: false, Message: "invalid JSON payload"})
		return
	}
	trigger := core.Trigger{Mode: core.TriggerCron, Cron: strings.TrimSpace(req.Expr)}
	if req.FixedTimeConfig != nil {
		trigger = core.Trigger{Mode: core.TriggerFixedTime, FixedTime: req.FixedTimeConfig}
	} else if trigger.Cron == "" {
		writeJSON(w, http.StatusBadRequest, cronPreviewResponse{Valid: false, Message: "cron expression is required"})
		return
	}

	count := req.Count
	if count <= 0 || count > 10 {
		count = 5
	}

	base := s.now().In(s.location)
	if req.Now != "" {
		if parsed, err := time.Parse(time.RFC3339, req.Now); err == nil {
			base = parsed.In(s.location)
		}
	}

	formatted := make([]string, 0, count)
	for i := 0; i < count; i++ {
		next, err := core.NextRun(trigger, base)
		if err != nil {
			writeJSON(w, http.StatusOK, cronPreviewResponse{Valid: false, Message: err.Error()})
			return
		}
		formatted = append(formatted, next.Format(core.NextRunLayout))
		base = next
	}
	writeJSON(w, http.StatusOK, cronPreviewResponse{Valid: true, NextTimes: formatted})
}
