// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for decoding and validating request data
// shared by the job and calendar handlers.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"board/internal/core"
)

// maxJSONBody bounds every JSON request body.
const maxJSONBody = 1 << 20

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month time.Month
}

type dateRequest struct {
	Date string `json:"date"`
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

// decodeJSON reads one JSON value from the body into v. Failures wrap
// errBadRequest.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return err
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: empty request body", errBadRequest)
		}
		return fmt.Errorf("%w: malformed JSON: %v", errBadRequest, err)
	}
	return nil
}

// parseDateBody decodes {"date": "..."}. The value is validated by the
// service, which knows whether a test fit suffix is allowed.
func parseDateBody(w http.ResponseWriter, r *http.Request) (string, error) {
	var req dateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Date) == "" {
		return "", core.NewValidationError(nil, core.FieldError{Field: "date", Error: "date is a required field"})
	}
	return req.Date, nil
}

// parseIDsBody decodes {"ids": [...]}, dropping blanks.
func parseIDsBody(w http.ResponseWriter, r *http.Request) ([]string, error) {
	var req idsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(req.IDs))
	for _, id := range req.IDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "ids", Error: "ids must contain at least one id"})
	}
	return ids, nil
}

// ParseMonthParams extracts year and month from query parameters, using the
// month of now as the default. Present but invalid values are rejected.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	params := MonthParams{Year: now.Year(), Month: now.Month()}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 || y > 9999 {
			return MonthParams{}, core.NewValidationError(nil, core.FieldError{Field: "year", Error: fmt.Sprintf("year %q must be between 1 and 9999", v)})
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return MonthParams{}, core.NewValidationError(nil, core.FieldError{Field: "month", Error: fmt.Sprintf("month %q must be between 1 and 12", v)})
		}
		params.Month = time.Month(m)
	}
	return params, nil
}

// parseDays reads the stale horizon from ?days=. Absent means -1, the
// configured default.
func parseDays(query url.Values) (int, error) {
	v := strings.TrimSpace(query.Get("days"))
	if v == "" {
		return -1, nil
	}
	days, err := strconv.Atoi(v)
	if err != nil || days < 0 {
		return 0, core.NewValidationError(nil, core.FieldError{Field: "days", Error: fmt.Sprintf("days %q must be a non-negative integer", v)})
	}
	return days, nil
}
