package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/outreach"
	"github.com/sells-group/leadgen-cli/internal/pipeline"
)

type runResponse struct {
	RunID   string `json:"run_id,omitempty"`
	Summary any    `json:"summary"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) writeRun(w http.ResponseWriter, runID string, summary any, err error) {
	if errors.Is(err, outreach.ErrNoTransport) {
		storeError(w, err)
		return
	}
	if err != nil {
		zap.L().Error("api: run failed", zap.String("run_id", runID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, runResponse{RunID: runID, Summary: summary, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, runResponse{RunID: runID, Summary: summary})
}

func (s *Server) requireRunner(w http.ResponseWriter) bool {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not configured")
		return false
	}
	return true
}

func (s *Server) runIngest(w http.ResponseWriter, r *http.Request) {
	if !s.requireRunner(w) {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sum, runID, err := s.runner.Ingest(r.Context(), pipeline.IngestOptions{Limit: limit})
	s.writeRun(w, runID, sum, err)
}

func (s *Server) runQualify(w http.ResponseWriter, r *http.Request) {
	if !s.requireRunner(w) {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts := pipeline.QualifyOptions{Limit: limit}
	if r.URL.Query().Has("threshold") {
		threshold, err := queryInt(r, "threshold")
		if err != nil || threshold > 100 {
			writeError(w, http.StatusBadRequest, "threshold must be within 0-100")
			return
		}
		opts.Threshold = &threshold
	}
	sum, runID, err := s.runner.Qualify(r.Context(), opts)
	s.writeRun(w, runID, sum, err)
}

func (s *Server) ingestionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Status(r.Context())
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	var filter model.LeadFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := model.ParseLeadStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = status
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Limit = limit

	leads, err := s.store.ListLeads(r.Context(), filter)
	if err != nil {
		storeError(w, err)
		return
	}
	if leads == nil {
		leads = []model.Lead{}
	}
	writeJSON(w, http.StatusOK, leads)
}

func (s *Server) leadStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.LeadStats(r.Context())
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) getLead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lead, err := s.store.GetLead(r.Context(), id)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (s *Server) updateLeadStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	to, err := model.ParseLeadStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	lead, err := s.service.TransitionLead(r.Context(), id, to)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (s *Server) runOutreach(w http.ResponseWriter, r *http.Request) {
	if !s.requireRunner(w) {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dryRun, err := queryBool(r, "dry_run")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sum, runID, err := s.runner.Outreach(r.Context(), pipeline.OutreachOptions{Limit: limit, DryRun: dryRun})
	s.writeRun(w, runID, sum, err)
}

func (s *Server) sendOne(w http.ResponseWriter, r *http.Request) {
	if !s.requireRunner(w) {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dryRun, err := queryBool(r, "dry_run")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.runner.SendOne(r.Context(), id, dryRun)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lead_id": id, "result": res.String()})
}

func (s *Server) outreachHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	emails, err := s.store.ListEmails(r.Context(), limit)
	if err != nil {
		storeError(w, err)
		return
	}
	if emails == nil {
		emails = []model.OutreachEmail{}
	}
	writeJSON(w, http.StatusOK, emails)
}
