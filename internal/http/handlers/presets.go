package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"storyboardgen/internal/domain"
)

type presetRequest struct {
	Name        string   `json:"name"`
	Prompts     []string `json:"prompts"`
	PromptBlock string   `json:"prompt_block"`
}

func (a *App) ListPresets(w http.ResponseWriter, r *http.Request) {
	auth, ok := a.currentAuth(w, r)
	if !ok {
		return
	}
	items, err := a.Presets.List(r.Context(), auth.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if items == nil {
		items = []domain.PromptPreset{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) SavePreset(w http.ResponseWriter, r *http.Request) {
	auth, ok := a.currentAuth(w, r)
	if !ok {
		return
	}
	var req presetRequest
	if !a.decode(w, r, &req) {
		return
	}
	prompts := req.Prompts
	if len(prompts) == 0 {
		prompts = domain.SplitPrompts(req.PromptBlock)
	}
	preset, err := a.Presets.Save(r.Context(), auth.UserID, req.Name, prompts)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, preset)
}

func (a *App) DeletePreset(w http.ResponseWriter, r *http.Request) {
	auth, ok := a.currentAuth(w, r)
	if !ok {
		return
	}
	if err := a.Presets.Delete(r.Context(), auth.UserID, chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
