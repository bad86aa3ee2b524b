package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"sheetsync/internal/core"
)

type filesPreviewRequest struct {
	Paths      []string        `json:"paths"`
	FileFilter core.FileFilter `json:"fileFilter"`
	Search     string          `json:"search"`
	SortBy     core.SortKey    `json:"sortBy"`
	SortOrder  core.SortOrder  `json:"sortOrder"`
	// SpreadsheetsOnly hides files that are not xlsx, xls or csv.
	SpreadsheetsOnly bool `json:"spreadsheetsOnly"`
}

type filesPreviewResponse struct {
	Files   []core.FileDescriptor `json:"files"`
	Listed  int                   `json:"listed"`
	Matched int                   `json:"matched"`
}

// handleFilesPreview shows which files a task with the given paths and
// filter would pick up right now.
func (s *Server) handleFilesPreview(w http.ResponseWriter, r *http.Request) {
	var req filesPreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if len(req.Paths) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_input", "at least one path is required")
		return
	}

	var all []core.FileDescriptor
	for _, path := range req.Paths {
		files, err := s.lister.ListDirectory(r.Context(), path)
		if err != nil {
			if errors.Is(err, core.ErrListingUnsupported) {
				writeError(w, http.StatusNotImplemented, "unsupported", err.Error())
				return
			}
			writeError(w, http.StatusUnprocessableEntity, "scan_failed", (&core.PathScanError{Path: path, Err: err}).Error())
			return
		}
		all = append(all, files...)
	}
	if req.SpreadsheetsOnly {
		kept := all[:0]
		for _, f := range all {
			if f.IsSpreadsheet {
				kept = append(kept, f)
			}
		}
		all = kept
	}
	listed := len(all)

	matched := core.FilterFiles(all, req.FileFilter, s.now().In(s.location), s.weekStart)
	matched = core.SearchFiles(matched, req.Search)
	if req.SortBy != "" {
		matched = core.SortFiles(matched, req.SortBy, req.SortOrder)
	}
	writeJSON(w, http.StatusOK, filesPreviewResponse{Files: matched, Listed: listed, Matched: len(matched)})
}
