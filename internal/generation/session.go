package generation

import (
	"strings"
	"sync"

	"storyboardgen/internal/domain"
)

// Session is the in-memory state of one storyboard. Scene slots are written
// from concurrent generation goroutines, so access goes through the mutex.
type Session struct {
	Auth        domain.AuthContext
	Budget      domain.UsageContext
	References  []domain.ReferenceImage
	Size        domain.SizeConfig
	ProjectName string
	Captions    domain.Captions

	mu        sync.Mutex
	prompts   []string
	results   []domain.SceneResult
	projectID string
}

func NewSession(auth domain.AuthContext, budget domain.UsageContext) *Session {
	return &Session{Auth: auth, Budget: budget}
}

// SetPrompts replaces the scene prompts, dropping blank entries. Existing
// slots are kept for indexes whose prompt did not change.
func (s *Session) SetPrompts(prompts []string) {
	cleaned := make([]string, 0, len(prompts))
	for _, p := range prompts {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]domain.SceneResult, len(cleaned))
	for i, p := range cleaned {
		if i < len(s.results) && s.results[i].Prompt == p {
			results[i] = s.results[i]
			continue
		}
		results[i] = idleScene(p)
	}
	s.prompts = cleaned
	s.results = results
}

// Prompts returns a copy of the scene prompts.
func (s *Session) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// Results returns a copy of the scene slots in prompt order.
func (s *Session) Results() []domain.SceneResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SceneResult(nil), s.results...)
}

// Restore seeds slots from a previous run. Entries beyond the prompt list are
// ignored. Each slot ends up settled with either an image or an error.
func (s *Session) Restore(results []domain.SceneResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.results {
		if i >= len(results) {
			break
		}
		r := results[i]
		restored := idleScene(s.prompts[i])
		switch {
		case strings.TrimSpace(r.ImageURL) != "":
			restored = restored.Succeed(r.ImageURL)
		case strings.TrimSpace(r.Error) != "":
			restored = restored.Fail(r.Error)
		}
		s.results[i] = restored
	}
}

func (s *Session) ProjectID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectID
}

func (s *Session) SetProjectID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projectID = id
}

func (s *Session) startAll() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.prompts {
		s.results[i] = domain.NewPendingScene(p)
	}
	return append([]string(nil), s.prompts...)
}

func (s *Session) setPrompt(index int, prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prompt == s.prompts[index] {
		return
	}
	s.prompts[index] = prompt
	prior := s.results[index]
	next := idleScene(prompt)
	next.ImageURL, next.Error = prior.ImageURL, prior.Error
	s.results[index] = next
}

func (s *Session) settle(index int, payload domain.ImagePayload, err error) domain.SceneResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot := domain.NewPendingScene(s.prompts[index])
	if err != nil {
		slot = slot.Fail(sceneErrorMessage(err))
	} else {
		slot = slot.Succeed(payload.DataURL())
	}
	s.results[index] = slot
	return slot
}

func (s *Session) saveRequest() domain.SaveRunRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.SaveRunRequest{
		UserID:      s.Auth.UserID,
		ProjectID:   s.projectID,
		ProjectName: s.ProjectName,
		Prompts:     append([]string(nil), s.prompts...),
		Captions:    s.Captions,
		Results:     append([]domain.SceneResult(nil), s.results...),
	}
}

func idleScene(prompt string) domain.SceneResult {
	r := domain.NewPendingScene(prompt)
	r.IsLoading = false
	return r
}
