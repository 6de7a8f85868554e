package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tally/internal/core"
	"tally/internal/log"
)

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	coord := sessionFrom(r.Context()).coord

	after, wait, err := parseAfter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !wait {
		writeJSON(w, http.StatusOK, newViewResponse(coord.Snapshot()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.pollTimeout)
	defer cancel()
	snap, err := coord.Wait(ctx, after)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			w.WriteHeader(http.StatusNoContent)
		}
		// A cancelled request has no one left to answer.
		return
	}
	writeJSON(w, http.StatusOK, newViewResponse(snap))
}

type groupingRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleSetGrouping(w http.ResponseWriter, r *http.Request) {
	var req groupingRequest
	if _, err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := core.ParseGroupingMode(req.Mode)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	coord := sessionFrom(r.Context()).coord
	if err := coord.SetMode(mode); err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newViewResponse(coord.Snapshot()))
}

type filterRequest struct {
	Category string `json:"category"`
}

func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if _, err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	coord := sessionFrom(r.Context()).coord
	coord.SetFilter(core.NewCategoryFilter(sanitizeInput(req.Category)))
	writeJSON(w, http.StatusOK, newViewResponse(coord.Snapshot()))
}

type draftRequest struct {
	draftPayload
	ShowSuggestions *bool `json:"show_suggestions,omitempty"`
}

func (s *Server) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if _, err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	coord := sessionFrom(r.Context()).coord
	coord.UpdateDraft(req.draft())
	if req.ShowSuggestions != nil {
		coord.ShowSuggestions(*req.ShowSuggestions)
	}
	writeJSON(w, http.StatusOK, newViewResponse(coord.Snapshot()))
}

func (s *Server) handleToggleSuggestions(w http.ResponseWriter, r *http.Request) {
	coord := sessionFrom(r.Context()).coord
	coord.ToggleSuggestions()
	writeJSON(w, http.StatusOK, newViewResponse(coord.Snapshot()))
}

type submitResponse struct {
	ID string `json:"id"`
}

// handleSubmitRecord submits the body as a draft, or the session's current
// draft when the body is empty.
func (s *Server) handleSubmitRecord(w http.ResponseWriter, r *http.Request) {
	info := sessionFrom(r.Context())

	var req draftPayload
	empty, err := decodeJSON(w, r, &req, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	draft := req.draft()
	if empty {
		draft = info.coord.Snapshot().Draft
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	id, err := info.coord.SubmitNewRecord(ctx, draft)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	eventLog(r).LogRecordEvent(r.Context(), log.OpCreate, info.userID, id, core.NormalizeLabel(draft.Category))
	writeJSON(w, http.StatusAccepted, submitResponse{ID: id})
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	info := sessionFrom(r.Context())
	id := sanitizeInput(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing record id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := info.coord.RequestDelete(ctx, id); err != nil {
		s.handleError(w, r, err)
		return
	}
	eventLog(r).LogRecordEvent(r.Context(), log.OpDelete, info.userID, id, "")
	w.WriteHeader(http.StatusAccepted)
}

type categoryItem struct {
	Label string `json:"label"`
	Slug  string `json:"slug"`
}

type categoriesResponse struct {
	Categories []categoryItem `json:"categories"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	coord := sessionFrom(r.Context()).coord
	keys := coord.CategoryKeys(sanitizeInput(r.URL.Query().Get("prefix")))
	resp := categoriesResponse{Categories: make([]categoryItem, 0, len(keys))}
	for _, k := range keys {
		resp.Categories = append(resp.Categories, categoryItem{Label: k.Label, Slug: k.Slug})
	}
	writeJSON(w, http.StatusOK, resp)
}

type categoryRequest struct {
	Label string `json:"label"`
}

func (s *Server) handleRegisterCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if _, err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	label := core.NormalizeLabel(sanitizeInput(req.Label))
	if label == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: core.ErrEmptyCategory.Error(), Field: "label"})
		return
	}
	coord := sessionFrom(r.Context()).coord
	if err := coord.RegisterCategory(label); err != nil {
		s.handleError(w, r, err)
		return
	}
	item := categoryItem{Label: label, Slug: core.Slug(label)}
	if key, ok := coord.CategorySlug(label); ok {
		item.Slug = key
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleRemoveCategory(w http.ResponseWriter, r *http.Request) {
	coord := sessionFrom(r.Context()).coord
	label, ok := coord.CategoryBySlug(chi.URLParam(r, "slug"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown category")
		return
	}
	if err := coord.RemoveCategory(label); err != nil {
		s.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	info := sessionFrom(r.Context())
	if err := s.sessions.SignOut(info.id); err != nil {
		s.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
