package handlers

import (
	"errors"
	"net/http"
	"strings"

	"storyboardgen/internal/domain"
	"storyboardgen/internal/generation"
)

type generateRequest struct {
	Prompts     []string             `json:"prompts"`
	PromptBlock string               `json:"prompt_block"`
	References  []string             `json:"references"`
	AspectRatio string               `json:"aspect_ratio"`
	ImageSize   string               `json:"image_size"`
	ProjectID   string               `json:"project_id"`
	ProjectName string               `json:"project_name"`
	Captions    domain.Captions      `json:"captions"`
	Results     []domain.SceneResult `json:"results"`
}

type regenerateRequest struct {
	generateRequest
	Index      int    `json:"index"`
	Prompt     string `json:"prompt"`
	PriorImage string `json:"prior_image"`
}

type notice struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type generateResponse struct {
	Results   []domain.SceneResult `json:"results"`
	Usage     domain.MonthlyUsage  `json:"usage"`
	ProjectID string               `json:"project_id,omitempty"`
	Succeeded int                  `json:"succeeded"`
	Notices   []notice             `json:"notices,omitempty"`
}

func (req generateRequest) prompts() []string {
	if len(req.Prompts) > 0 {
		return req.Prompts
	}
	return domain.SplitPrompts(req.PromptBlock)
}

// session rebuilds the storyboard state the client holds.
func (a *App) session(w http.ResponseWriter, r *http.Request, auth domain.AuthContext, req generateRequest) (*generation.Session, bool) {
	budget, err := a.Usage.Context(r.Context(), auth.UserID)
	if err != nil {
		a.fail(w, r, err)
		return nil, false
	}
	refs, err := a.References.ResolveAll(r.Context(), req.References)
	if err != nil {
		a.fail(w, r, err)
		return nil, false
	}
	s := generation.NewSession(auth, budget)
	s.References = refs
	s.Size = domain.SizeConfig{AspectRatio: req.AspectRatio, ImageSize: req.ImageSize}
	s.ProjectName = strings.TrimSpace(req.ProjectName)
	s.Captions = req.Captions
	s.SetPrompts(req.prompts())
	s.SetProjectID(strings.TrimSpace(req.ProjectID))
	if len(req.Results) > 0 {
		s.Restore(req.Results)
	}
	return s, true
}

func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	auth, ok := a.currentAuth(w, r)
	if !ok {
		return
	}
	var req generateRequest
	if !a.decode(w, r, &req) {
		return
	}
	s, ok := a.session(w, r, auth, req)
	if !ok {
		return
	}
	ctx, cancel := a.detached(r)
	defer cancel()
	res, err := a.Generator.Run(ctx, s)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, newGenerateResponse(res))
}

func (a *App) Regenerate(w http.ResponseWriter, r *http.Request) {
	auth, ok := a.currentAuth(w, r)
	if !ok {
		return
	}
	var req regenerateRequest
	if !a.decode(w, r, &req) {
		return
	}
	s, ok := a.session(w, r, auth, req.generateRequest)
	if !ok {
		return
	}
	ctx, cancel := a.detached(r)
	defer cancel()
	res, err := a.Generator.Regenerate(ctx, s, generation.RegenerateRequest{
		Index:      req.Index,
		Prompt:     req.Prompt,
		PriorImage: req.PriorImage,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, newGenerateResponse(res))
}

func newGenerateResponse(res *generation.RunResult) generateResponse {
	out := generateResponse{
		Results:   res.Results,
		Usage:     res.Usage,
		ProjectID: res.ProjectID,
		Succeeded: res.Successful(),
	}
	var credits *domain.InsufficientCreditsError
	if errors.As(res.CreditErr, &credits) {
		body := creditBody(credits)
		out.Notices = append(out.Notices, notice{
			Code:    body["code"].(string),
			Message: "Credits ran out while generating. Finished scenes were kept.",
			Details: map[string]any{"action": body["action"], "remaining": credits.Remaining},
		})
	}
	if res.SaveErr != nil {
		out.Notices = append(out.Notices, notice{
			Code:    "save_failed",
			Message: "The storyboard could not be saved. Regenerate a scene to retry.",
		})
	}
	if res.DebitErr != nil {
		out.Notices = append(out.Notices, notice{
			Code:    "usage_sync_failed",
			Message: "Usage could not be updated. Your credit balance may be stale.",
		})
	}
	return out
}
