package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/agentstation/leadsync/internal/queue"
	"github.com/agentstation/leadsync/internal/server/filter"
	"github.com/agentstation/leadsync/internal/server/response"
	"github.com/agentstation/leadsync/pkg/constants"
	"github.com/agentstation/leadsync/pkg/logging"
)

// SubmitRequest is the body of POST /submissions.
type SubmitRequest struct {
	ID             string          `json:"id,omitempty"`
	TargetEndpoint string          `json:"targetEndpoint"`
	Method         string          `json:"method,omitempty"`
	Payload        json.RawMessage `json:"payload"`
}

// HandleSubmit handles POST /_leadsync/v1/submissions.
// @Summary Submit a record
// @Description Delivers the payload to the remote API, or queues it when the network is unavailable
// @Tags submissions
// @Accept json
// @Produce json
// @Param Authorization header string false "Bearer token forwarded to the remote API"
// @Param submission body SubmitRequest true "Submission"
// @Success 201 {object} response.Response{data=submit.Outcome} "Delivered"
// @Success 202 {object} response.Response{data=submit.Outcome} "Queued for later delivery"
// @Failure 400 {object} response.Response{error=response.Error}
// @Failure 502 {object} response.Response{error=response.Error}
// @Failure 503 {object} response.Response{error=response.Error}
// @Router /_leadsync/v1/submissions [post].
func (h *Handlers) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, constants.MaxPayloadBytes))
	if err != nil {
		response.BadRequest(w, "Request body too large or unreadable", err.Error())
		return
	}

	var req SubmitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body", err.Error())
		return
	}

	sub := queue.Submission{
		ID:             req.ID,
		TargetEndpoint: req.TargetEndpoint,
		Method:         req.Method,
		Payload:        req.Payload,
		AuthToken:      bearerToken(r),
	}

	outcome, err := h.deps.Submitter.Submit(r.Context(), sub)
	if err != nil {
		logging.FromContext(r.Context()).Debug().Err(err).Msg("Submit failed")
		response.ErrorFromType(w, err)
		return
	}

	if outcome.Queued {
		response.Accepted(w, outcome)
		return
	}
	response.Created(w, outcome)
}

// HandleListSubmissions handles GET /_leadsync/v1/submissions.
// @Summary List queued submissions
// @Description Lists submissions awaiting delivery in insertion order
// @Tags submissions
// @Produce json
// @Param id query string false "Filter by submission id"
// @Param endpoint query string false "Filter by exact target endpoint"
// @Param endpoint_prefix query string false "Filter by target endpoint prefix"
// @Param method query string false "Filter by method (comma-separated)"
// @Param created_after query string false "RFC 3339 lower bound"
// @Param created_before query string false "RFC 3339 upper bound"
// @Param limit query integer false "Maximum number of results (default: 100, max: 1000)"
// @Param offset query integer false "Result offset for pagination"
// @Success 200 {object} response.Response{data=object}
// @Failure 503 {object} response.Response{error=response.Error}
// @Router /_leadsync/v1/submissions [get].
func (h *Handlers) HandleListSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.deps.Queue.ListAll(r.Context())
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}

	f := filter.ParseSubmissionFilter(r)
	page := f.Apply(subs)

	response.OK(w, map[string]any{
		"submissions": page,
		"count":       len(page),
		"total":       len(subs),
		"limit":       f.Limit,
		"offset":      f.Offset,
	})
}

// HandleGetSubmission handles GET /_leadsync/v1/submissions/{id}.
// @Summary Get a queued submission
// @Tags submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Response{data=queue.Submission}
// @Failure 404 {object} response.Response{error=response.Error}
// @Router /_leadsync/v1/submissions/{id} [get].
func (h *Handlers) HandleGetSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := h.deps.Queue.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.OK(w, sub)
}

// HandleDeleteSubmission handles DELETE /_leadsync/v1/submissions/{id}.
// @Summary Purge a queued submission
// @Description Removes a submission without delivering it
// @Tags submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Response{data=object}
// @Failure 404 {object} response.Response{error=response.Error}
// @Security AdminKeyAuth
// @Router /_leadsync/v1/submissions/{id} [delete].
func (h *Handlers) HandleDeleteSubmission(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.deps.Queue.Get(r.Context(), id); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	if err := h.deps.Queue.Remove(r.Context(), id); err != nil {
		response.ErrorFromType(w, err)
		return
	}

	logging.FromContext(r.Context()).Info().Str("submission_id", id).Msg("Submission purged")
	response.OK(w, map[string]any{"id": id, "purged": true})
}

// bearerToken returns the credential of an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
