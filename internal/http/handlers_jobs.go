package http

import (
	"context"
	"net/http"

	"board/internal/core"
	"board/internal/services"
)

// deleteResult mirrors the store acknowledgement the board UI expects.
type deleteResult struct {
	DeletedCount int `json:"deletedCount"`
}

type staleResponse struct {
	Cutoff core.Date  `json:"cutoff"`
	Jobs   []core.Job `json:"jobs"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := s.jobs.ListJobs(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.jobs.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var j core.Job
	if err := decodeJSON(w, r, &j); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.jobs.CreateJob(r.Context(), j)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	var p core.JobPatch
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := s.jobs.UpdateJob(r.Context(), r.PathValue("id"), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.DeleteJob(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResult{DeletedCount: 1})
}

func (s *Server) handleAddToSchedule(w http.ResponseWriter, r *http.Request) {
	s.scheduleJob(w, r, s.jobs.AddToSchedule)
}

func (s *Server) handleRemoveFromSchedule(w http.ResponseWriter, r *http.Request) {
	s.scheduleJob(w, r, s.jobs.RemoveFromSchedule)
}

func (s *Server) handleToggleSchedule(w http.ResponseWriter, r *http.Request) {
	s.scheduleResult(w, r, s.jobs.ToggleSchedule)
}

func (s *Server) handleScheduleTestFit(w http.ResponseWriter, r *http.Request) {
	s.scheduleResult(w, r, s.jobs.ScheduleTestFit)
}

func (s *Server) scheduleJob(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, jobNumber, date string) (core.Job, error)) {
	date, err := parseDateBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	j, err := apply(r.Context(), r.PathValue("jobNumber"), date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// scheduleResult answers with the job and reports the applied change in
// the X-Schedule-Op and X-Schedule-Entry headers.
func (s *Server) scheduleResult(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, jobNumber, date string) (services.ScheduleResult, error)) {
	date, err := parseDateBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := apply(r.Context(), r.PathValue("jobNumber"), date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Header("X-Schedule-Op", res.Op).
		Header("X-Schedule-Entry", res.Entry).
		Body(res.Job).
		Write(w)
}

func (s *Server) handleStaleJobs(w http.ResponseWriter, r *http.Request) {
	days, err := parseDays(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.jobs.StaleJobs(r.Context(), days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, staleResponse{Cutoff: s.jobs.StaleCutoff(days), Jobs: list})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	days, err := parseDays(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.jobs.Cleanup(r.Context(), days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	ids, err := parseIDsBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.jobs.BulkDelete(r.Context(), ids))
}

func (s *Server) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	groups, err := s.jobs.Duplicates(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}
