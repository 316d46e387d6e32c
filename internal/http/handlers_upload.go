package http

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
)

// handleUpload imports the spreadsheet sent in the multipart field "file".
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.uploadMax)
	if err := r.ParseMultipartForm(s.uploadMax); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, maxErr)
			return
		}
		if errors.Is(err, multipart.ErrMessageTooLarge) {
			writeError(w, r, &http.MaxBytesError{Limit: s.uploadMax})
			return
		}
		writeError(w, r, fmt.Errorf("%w: invalid multipart form: %v", errBadRequest, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: missing file field", errBadRequest))
		return
	}
	defer file.Close()

	res, err := s.importer.Import(r.Context(), header.Filename, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
