package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"storyboardgen/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (a *App) ListProjects(w http.ResponseWriter, r *http.Request) {
	auth, ok := a.currentAuth(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	items, err := a.Projects.List(r.Context(), auth.UserID, limit, offset)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if items == nil {
		items = []domain.Project{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items, "limit": limit, "offset": offset})
}

func (a *App) GetProject(w http.ResponseWriter, r *http.Request) {
	auth, ok := a.currentAuth(w, r)
	if !ok {
		return
	}
	p, err := a.Projects.Get(r.Context(), auth.UserID, chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, p)
}

func (a *App) DeleteProject(w http.ResponseWriter, r *http.Request) {
	auth, ok := a.currentAuth(w, r)
	if !ok {
		return
	}
	if err := a.Projects.Delete(r.Context(), auth.UserID, chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) ProjectArchive(w http.ResponseWriter, r *http.Request) {
	auth, ok := a.currentAuth(w, r)
	if !ok {
		return
	}
	archive, err := a.Projects.Archive(r.Context(), auth.UserID, chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archive.Filename))
	if err := archive.Write(w); err != nil {
		a.Logger.Error().Err(err).Str("project_id", chi.URLParam(r, "id")).Msg("write archive failed")
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
