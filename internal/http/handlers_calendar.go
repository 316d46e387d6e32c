package http

import (
	"fmt"
	"net/http"

	"board/internal/core"
)

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	day, err := core.ParseDate(r.PathValue("date"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	sum, err := s.jobs.Day(r.Context(), day)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// handleMonth serves the month grid, from the cache when the board has not
// changed since it was built.
func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	params, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}

	key := fmt.Sprintf("%04d-%02d", params.Year, int(params.Month))
	if sum, ok := s.monthCache.Get(key); ok {
		NewJSONResponse().Header("X-Cache", "HIT").Body(sum).Write(w)
		return
	}
	gen := s.monthGeneration()
	sum, err := s.jobs.Month(r.Context(), params.Year, params.Month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.cacheMonth(key, gen, sum)
	NewJSONResponse().Header("X-Cache", "MISS").Body(sum).Write(w)
}
