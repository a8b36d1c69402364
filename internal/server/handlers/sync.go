package handlers

import (
	"net/http"
	"strconv"

	"github.com/agentstation/leadsync/internal/server/response"
	"github.com/agentstation/leadsync/internal/syncer"
)

// HandleSync handles POST /_leadsync/v1/sync.
// @Summary Trigger a drain
// @Description Starts a drain pass over the queue. With wait=true the response carries the pass report.
// @Tags sync
// @Produce json
// @Param wait query boolean false "Wait for the pass to finish"
// @Success 200 {object} response.Response{data=syncer.Report} "Pass finished"
// @Success 202 {object} response.Response{data=object} "Pass started"
// @Failure 409 {object} response.Response{error=response.Error}
// @Security AdminKeyAuth
// @Router /_leadsync/v1/sync [post].
func (h *Handlers) HandleSync(w http.ResponseWriter, r *http.Request) {
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))

	// The pass outlives the request unless the caller waits for it.
	task := h.deps.Syncer.Trigger(h.ctx, syncer.ReasonManual)

	if !wait {
		select {
		case <-task.Done():
			report, err := task.Wait(r.Context())
			if err == nil && report.Skipped {
				response.Conflict(w, "Drain in progress", report.Reason)
				return
			}
		default:
		}
		response.Accepted(w, map[string]any{
			"status": "started",
			"state":  h.deps.Syncer.State().String(),
		})
		return
	}

	report, err := task.Wait(r.Context())
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	if report.Skipped {
		response.Conflict(w, "Drain in progress", report.Reason)
		return
	}
	response.OK(w, report)
}
