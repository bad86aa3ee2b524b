package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"sheetsync/internal/core"
	"sheetsync/internal/store"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.store.ListTemplates(r.Context())
	if err != nil {
		s.logger.Error("list templates", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list templates")
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) handleSaveTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl store.Template
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	saved, err := s.store.SaveTemplate(r.Context(), tpl)
	if err != nil {
		var verr *core.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, "invalid_input", verr.Error())
			return
		}
		s.logger.Error("save template", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to save template")
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "templateID")
	if err := s.store.DeleteTemplate(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrTemplateNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "template not found")
			return
		}
		s.logger.Error("delete template", "template_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete template")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
