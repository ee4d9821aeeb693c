package handlers

import (
	"net/http"

	"storyboardgen/internal/middleware"
	"storyboardgen/internal/providers/caption"
)

type captionRequest struct {
	ProjectName string   `json:"project_name"`
	Prompts     []string `json:"prompts"`
	Locale      string   `json:"locale"`
}

func (a *App) GenerateCaptions(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.currentAuth(w, r); !ok {
		return
	}
	var req captionRequest
	if !a.decode(w, r, &req) {
		return
	}
	locale := req.Locale
	if locale == "" {
		locale = middleware.LocaleFromContext(r.Context())
	}
	res, err := a.Captions.Captions(r.Context(), caption.Request{
		ProjectName: req.ProjectName,
		Prompts:     req.Prompts,
		Locale:      locale,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, res)
}
