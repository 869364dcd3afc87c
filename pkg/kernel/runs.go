package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/manthysbr/auleagent/internal/core/domain"
	"github.com/manthysbr/auleagent/internal/core/services"
)

type attachmentBody struct {
	Data        []byte `json:"data"` // base64 in JSON
	MIMEType    string `json:"mime_type"`
	Description string `json:"description"`
}

type createRunBody struct {
	Goal        string           `json:"goal"`
	Attachments []attachmentBody `json:"attachments"`
	Suggestions []string         `json:"suggestions"`
	Async       bool             `json:"async"`
}

func (b createRunBody) request() (services.RunRequest, error) {
	goal := strings.TrimSpace(b.Goal)
	if goal == "" {
		return services.RunRequest{}, errEmptyGoal
	}
	req := services.RunRequest{
		ID:          domain.NewRunID(),
		Goal:        goal,
		Suggestions: b.Suggestions,
	}
	for _, a := range b.Attachments {
		req.Attachments = append(req.Attachments, domain.Attachment{
			Blob:        domain.Blob{Data: a.Data, MIMEType: a.MIMEType},
			Description: a.Description,
		})
	}
	return req, nil
}

// handleCreateRun starts a goal run. Synchronous runs answer with the report.
// Async runs answer 202 with the id; subscribe to /v1/ws?topic=<id> to follow.
// POST /v1/runs
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var body createRunBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	req, err := body.request()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.agent.Connected() {
		writeError(w, http.StatusServiceUnavailable, domain.ErrNotConnected.Error())
		return
	}

	if body.Async {
		ctx := context.WithoutCancel(r.Context())
		go func() {
			if _, err := s.agent.RunReport(ctx, req); err != nil {
				s.logger.Error("async run failed", "run_id", req.ID, "error", err)
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"id":     req.ID,
			"status": "accepted",
			"events": "/v1/ws?topic=" + string(req.ID),
		})
		return
	}

	report, err := s.agent.RunReport(r.Context(), req)
	if errors.Is(err, domain.ErrNotConnected) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"report": report,
		"text":   report.Text(),
	})
}

// GET /v1/runs?limit=50
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if !s.runStoreOr404(w) {
		return
	}
	runs, err := s.runs.ListRuns(r.Context(), queryLimit(r, 50, 500))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// runDetail is a stored run plus its step-annotated trace, when one is known.
type runDetail struct {
	domain.RunSummary
	Trace *domain.Trace `json:"trace,omitempty"`
}

// GET /v1/runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if !s.runStoreOr404(w) {
		return
	}
	run, err := s.runs.GetRun(r.Context(), domain.RunID(r.PathValue("id")))
	if errors.Is(err, domain.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runDetail{RunSummary: run, Trace: s.runTrace(r.Context(), run.ID)})
}

// runTrace looks in the in-memory ring first, then in the store. A missing
// trace is not an error for the run view.
func (s *Server) runTrace(ctx context.Context, id domain.RunID) *domain.Trace {
	if trace, err := s.tracer.TraceForRun(id); err == nil {
		return trace
	}
	if s.traces == nil {
		return nil
	}
	trace, err := s.traces.GetTraceByRun(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrTraceNotFound) {
			s.logger.Warn("failed to load run trace", "run_id", string(id), "error", err)
		}
		return nil
	}
	return trace
}

// GET /v1/runs/{id}/log
func (s *Server) handleRunLog(w http.ResponseWriter, r *http.Request) {
	if !s.runStoreOr404(w) {
		return
	}
	recs, err := s.runs.ListExecutionLog(r.Context(), domain.RunID(r.PathValue("id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": recs,
		"count":   len(recs),
	})
}

// handleSuggest queues operator guidance for the next run.
// POST /v1/suggestions
func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	s.agent.Suggest(strings.TrimSpace(body.Text))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
