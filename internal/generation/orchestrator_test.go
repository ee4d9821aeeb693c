package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"storyboardgen/internal/domain"
)

type fakeModel struct {
	mu       sync.Mutex
	calls    int
	prompts  []string
	refs     [][]domain.ReferenceImage
	inFlight int32
	peak     int32
	respond  func(prompt string) (domain.ImagePayload, error)
}

func (m *fakeModel) Generate(ctx context.Context, prompt string, refs []domain.ReferenceImage, size domain.SizeConfig) (domain.ImagePayload, error) {
	n := atomic.AddInt32(&m.inFlight, 1)
	defer atomic.AddInt32(&m.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&m.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&m.peak, peak, n) {
			break
		}
	}

	m.mu.Lock()
	m.calls++
	m.prompts = append(m.prompts, prompt)
	m.refs = append(m.refs, refs)
	respond := m.respond
	m.mu.Unlock()

	if respond == nil {
		return domain.ImagePayload{Data: []byte(prompt), MIMEType: "image/png"}, nil
	}
	return respond(prompt)
}

func (m *fakeModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fakeLedger struct {
	mu         sync.Mutex
	used       int
	limit      int
	consumed   []int
	consumeErr error
}

func (l *fakeLedger) Usage(ctx context.Context, userID string, plan domain.PlanType) (domain.MonthlyUsage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.NewMonthlyUsage(userID, time.Time{}, l.used, l.limit), nil
}

func (l *fakeLedger) Consume(ctx context.Context, userID string, amount int, plan domain.PlanType) (domain.MonthlyUsage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.consumed = append(l.consumed, amount)
	if l.consumeErr != nil {
		return domain.MonthlyUsage{}, l.consumeErr
	}
	if l.used+amount > l.limit {
		return domain.MonthlyUsage{}, domain.ErrCreditLimitExceeded
	}
	l.used += amount
	return domain.NewMonthlyUsage(userID, time.Time{}, l.used, l.limit), nil
}

type fakeSaver struct {
	mu       sync.Mutex
	requests []domain.SaveRunRequest
	id       string
	err      error
}

func (f *fakeSaver) SaveRun(ctx context.Context, req domain.SaveRunRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	id := req.ProjectID
	if id == "" {
		id = f.id
	}
	return id, f.err
}

type fakeResolver struct {
	seen []string
}

func (r *fakeResolver) Resolve(ctx context.Context, raw string) (domain.ReferenceImage, error) {
	r.seen = append(r.seen, raw)
	mime, data, err := domain.ParseDataURL(raw)
	if err != nil {
		return domain.ReferenceImage{}, err
	}
	return domain.ReferenceImage{ID: "prior", Data: data, MIMEType: mime}, nil
}

func newSession(prompts ...string) *Session {
	s := NewSession(domain.AuthContext{UserID: "user-1"}, domain.UsageContext{Plan: domain.PlanBasic})
	s.References = []domain.ReferenceImage{{ID: "ref-1", Data: []byte{1}, MIMEType: "image/png"}}
	s.ProjectName = "Lonely boy"
	s.SetPrompts(prompts)
	return s
}

func newTestOrchestrator(model Model, ledger Ledger, saver Saver, opts Options) *Orchestrator {
	return NewOrchestrator(model, ledger, saver, &fakeResolver{}, zerolog.Nop(), opts)
}

func TestRunPartialFailureDebitsOnlySuccesses(t *testing.T) {
	model := &fakeModel{respond: func(prompt string) (domain.ImagePayload, error) {
		if strings.Contains(prompt, "fails") {
			return domain.ImagePayload{}, &domain.ModelError{Kind: domain.ErrModelUnavailable, Cause: errors.New("503")}
		}
		return domain.ImagePayload{Data: []byte("ok"), MIMEType: "image/png"}, nil
	}}
	ledger := &fakeLedger{limit: 90}
	saver := &fakeSaver{id: "project-1"}
	orch := newTestOrchestrator(model, ledger, saver, Options{})

	s := newSession("S0: works", "S1: fails", "S2: works", "S3: fails", "S4: works")
	res, err := orch.Run(context.Background(), s)
	require.NoError(t, err)

	require.Len(t, res.Results, 5)
	for i, r := range res.Results {
		assert.False(t, r.IsLoading, "scene %d still loading", i)
		if i == 1 || i == 3 {
			assert.NotEmpty(t, r.Error, "scene %d", i)
			assert.Empty(t, r.ImageURL, "scene %d", i)
		} else {
			assert.True(t, r.HasImage(), "scene %d", i)
		}
	}
	assert.Equal(t, 3, res.Successful())
	assert.Equal(t, []int{3}, ledger.consumed)
	assert.Equal(t, 3, ledger.used)
	assert.Equal(t, 87, res.Usage.Remaining)
	assert.Nil(t, res.CreditErr)
	require.Len(t, saver.requests, 1)
	assert.Equal(t, "project-1", res.ProjectID)
}

func TestRunPreflightShortCircuit(t *testing.T) {
	model := &fakeModel{}
	ledger := &fakeLedger{used: 88, limit: 90}
	saver := &fakeSaver{}
	orch := newTestOrchestrator(model, ledger, saver, Options{})

	_, err := orch.Run(context.Background(), newSession("a", "b", "c"))
	require.ErrorIs(t, err, domain.ErrInsufficientCredits)

	var credits *domain.InsufficientCreditsError
	require.True(t, errors.As(err, &credits))
	assert.Equal(t, 3, credits.Requested)
	assert.Equal(t, 2, credits.Remaining)
	assert.True(t, credits.Paid)
	assert.False(t, credits.ShowUpgrade())

	assert.Zero(t, model.callCount())
	assert.Empty(t, ledger.consumed)
	assert.Equal(t, 88, ledger.used)
	assert.Empty(t, saver.requests)
}

func TestRunValidation(t *testing.T) {
	model := &fakeModel{}
	ledger := &fakeLedger{limit: 90}
	orch := newTestOrchestrator(model, ledger, nil, Options{})

	noRefs := newSession("a")
	noRefs.References = nil
	_, err := orch.Run(context.Background(), noRefs)
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = orch.Run(context.Background(), newSession(" ", ""))
	require.ErrorIs(t, err, domain.ErrValidation)

	anon := newSession("a")
	anon.Auth = domain.AuthContext{}
	_, err = orch.Run(context.Background(), anon)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	assert.Zero(t, model.callCount())
	assert.Empty(t, ledger.consumed)
}

func TestRunScenario(t *testing.T) {
	model := &fakeModel{}
	ledger := &fakeLedger{used: 85, limit: 90}
	saver := &fakeSaver{id: "project-9"}
	orch := newTestOrchestrator(model, ledger, saver, Options{})

	s := newSession(
		"Boy looking confused with question marks around him",
		"Boy feeling lonely at a cafe table",
	)
	res, err := orch.Run(context.Background(), s)
	require.NoError(t, err)

	for _, r := range res.Results {
		assert.False(t, r.IsLoading)
		assert.True(t, r.HasImage())
		assert.True(t, strings.HasPrefix(r.ImageURL, "data:image/png;base64,"))
	}
	assert.Equal(t, 87, ledger.used)
	require.Len(t, saver.requests, 1)
	saved := saver.requests[0]
	assert.Equal(t, "user-1", saved.UserID)
	assert.Empty(t, saved.ProjectID)
	assert.Len(t, saved.Results, 2)
	assert.Equal(t, "project-9", s.ProjectID())
}

func TestRunKeepsIndexOrder(t *testing.T) {
	model := &fakeModel{respond: func(prompt string) (domain.ImagePayload, error) {
		if strings.Contains(prompt, "slow") {
			time.Sleep(30 * time.Millisecond)
		}
		return domain.ImagePayload{Data: []byte(prompt), MIMEType: "image/png"}, nil
	}}
	orch := newTestOrchestrator(model, &fakeLedger{limit: 90}, nil, Options{})

	res, err := orch.Run(context.Background(), newSession("first slow", "second fast", "third slow"))
	require.NoError(t, err)
	for i, want := range []string{"first slow", "second fast", "third slow"} {
		assert.Equal(t, want, res.Results[i].Prompt)
		_, data, err := domain.ParseDataURL(res.Results[i].ImageURL)
		require.NoError(t, err)
		assert.Contains(t, string(data), want)
	}
}

func TestRunDispatchesConcurrently(t *testing.T) {
	const scenes = 4
	var started sync.WaitGroup
	started.Add(scenes)
	model := &fakeModel{}
	model.respond = func(prompt string) (domain.ImagePayload, error) {
		started.Done()
		done := make(chan struct{})
		go func() { started.Wait(); close(done) }()
		select {
		case <-done:
			return domain.ImagePayload{Data: []byte("x"), MIMEType: "image/png"}, nil
		case <-time.After(2 * time.Second):
			return domain.ImagePayload{}, errors.New("calls were not concurrent")
		}
	}
	orch := newTestOrchestrator(model, &fakeLedger{limit: 90}, nil, Options{})

	res, err := orch.Run(context.Background(), newSession("a", "b", "c", "d"))
	require.NoError(t, err)
	assert.Equal(t, scenes, res.Successful())
	assert.Equal(t, int32(scenes), atomic.LoadInt32(&model.peak))
}

func TestRunHonoursParallelLimit(t *testing.T) {
	model := &fakeModel{respond: func(string) (domain.ImagePayload, error) {
		time.Sleep(10 * time.Millisecond)
		return domain.ImagePayload{Data: []byte("x"), MIMEType: "image/png"}, nil
	}}
	orch := newTestOrchestrator(model, &fakeLedger{limit: 90}, nil, Options{MaxParallelScenes: 2})

	res, err := orch.Run(context.Background(), newSession("a", "b", "c", "d", "e"))
	require.NoError(t, err)
	assert.Equal(t, 5, res.Successful())
	assert.LessOrEqual(t, atomic.LoadInt32(&model.peak), int32(2))
}

func TestRunCreditRaceKeepsImages(t *testing.T) {
	ledger := &fakeLedger{limit: 90, consumeErr: domain.ErrCreditLimitExceeded}
	saver := &fakeSaver{id: "project-2"}
	orch := newTestOrchestrator(&fakeModel{}, ledger, saver, Options{})

	res, err := orch.Run(context.Background(), newSession("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Successful())
	require.Error(t, res.CreditErr)
	assert.ErrorIs(t, res.CreditErr, domain.ErrInsufficientCredits)
	assert.ErrorIs(t, res.CreditErr, domain.ErrCreditExhaustedUpstream)
	assert.Len(t, saver.requests, 1)
}

func TestRunProviderThrottlingIsNotACreditError(t *testing.T) {
	model := &fakeModel{respond: func(prompt string) (domain.ImagePayload, error) {
		if strings.Contains(prompt, "busy") {
			throttled := &googleapi.Error{Code: 429, Message: "Resource has been exhausted"}
			return domain.ImagePayload{}, &domain.ModelError{
				Kind:  domain.ErrModelUnavailable,
				Cause: fmt.Errorf("%w: %w", domain.ErrModelRateLimited, throttled),
			}
		}
		return domain.ImagePayload{Data: []byte("x"), MIMEType: "image/png"}, nil
	}}
	ledger := &fakeLedger{limit: 90}
	orch := newTestOrchestrator(model, ledger, nil, Options{})

	res, err := orch.Run(context.Background(), newSession("fine", "model busy"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Successful())
	assert.Equal(t, []int{1}, ledger.consumed)
	assert.NoError(t, res.CreditErr)
	assert.Equal(t, 89, res.Usage.Remaining)
	assert.Equal(t, "The image model is busy. Wait a moment and regenerate this scene.", res.Results[1].Error)
}

func TestRunSaveFailureIsNotFatal(t *testing.T) {
	saver := &fakeSaver{id: "project-3", err: errors.New("bucket unavailable")}
	orch := newTestOrchestrator(&fakeModel{}, &fakeLedger{limit: 90}, saver, Options{})

	s := newSession("a", "b")
	res, err := orch.Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Successful())
	assert.ErrorIs(t, res.SaveErr, domain.ErrPersistence)
	assert.Equal(t, "project-3", res.ProjectID)
}

func TestRunAllFailedSkipsDebitAndSave(t *testing.T) {
	model := &fakeModel{respond: func(string) (domain.ImagePayload, error) {
		return domain.ImagePayload{}, &domain.ModelError{Kind: domain.ErrMissingAPIKey}
	}}
	ledger := &fakeLedger{limit: 90}
	saver := &fakeSaver{}
	orch := newTestOrchestrator(model, ledger, saver, Options{})

	res, err := orch.Run(context.Background(), newSession("a", "b"))
	require.NoError(t, err)
	assert.Zero(t, res.Successful())
	assert.Empty(t, ledger.consumed)
	assert.Empty(t, saver.requests)
	assert.Equal(t, "The image model API key is missing or invalid.", res.Results[0].Error)
}

func TestRegenerateChainsPriorImage(t *testing.T) {
	model := &fakeModel{}
	ledger := &fakeLedger{limit: 90}
	saver := &fakeSaver{id: "project-4"}
	resolver := &fakeResolver{}
	orch := NewOrchestrator(model, ledger, saver, resolver, zerolog.Nop(), Options{})

	s := newSession("Opening: boy waves", "Cafe: boy alone")
	_, err := orch.Run(context.Background(), s)
	require.NoError(t, err)
	before := s.Results()

	prior := domain.EncodeDataURL("image/jpeg", []byte("previous"))
	res, err := orch.Regenerate(context.Background(), s, RegenerateRequest{Index: 1, Prompt: "Cafe: boy smiles", PriorImage: prior})
	require.NoError(t, err)

	require.Len(t, model.refs, 3)
	refs := model.refs[2]
	require.Len(t, refs, 2)
	assert.Equal(t, "prior", refs[0].ID)
	assert.Equal(t, "ref-1", refs[1].ID)
	assert.Equal(t, []string{prior}, resolver.seen)

	assert.Equal(t, before[0], res.Results[0], "other scenes must be untouched")
	assert.Equal(t, "Cafe: boy smiles", res.Results[1].Prompt)
	assert.True(t, res.Results[1].HasImage())
	assert.Equal(t, []int{2, 1}, ledger.consumed)

	require.Len(t, saver.requests, 2)
	assert.Equal(t, "project-4", saver.requests[1].ProjectID)
	assert.Equal(t, "project-4", res.ProjectID)
}

func TestRegenerateFailureOverwritesOnlyTargetSlot(t *testing.T) {
	fail := false
	model := &fakeModel{}
	model.respond = func(prompt string) (domain.ImagePayload, error) {
		if fail {
			return domain.ImagePayload{}, &domain.ModelError{Kind: domain.ErrModelUnavailable}
		}
		return domain.ImagePayload{Data: []byte("x"), MIMEType: "image/png"}, nil
	}
	ledger := &fakeLedger{limit: 90}
	saver := &fakeSaver{id: "project-5"}
	orch := newTestOrchestrator(model, ledger, saver, Options{})

	s := newSession("a", "b")
	_, err := orch.Run(context.Background(), s)
	require.NoError(t, err)

	fail = true
	res, err := orch.Regenerate(context.Background(), s, RegenerateRequest{Index: 0})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Results[0].Error)
	assert.Empty(t, res.Results[0].ImageURL)
	assert.True(t, res.Results[1].HasImage())
	assert.Equal(t, []int{2}, ledger.consumed)
	assert.Len(t, saver.requests, 1)
}

func TestRegeneratePreflightAndBounds(t *testing.T) {
	model := &fakeModel{}
	ledger := &fakeLedger{used: 3, limit: 3}
	s := newSession("a")
	s.Budget = domain.UsageContext{Plan: domain.PlanFree}
	orch := newTestOrchestrator(model, ledger, nil, Options{})

	_, err := orch.Regenerate(context.Background(), s, RegenerateRequest{Index: 0})
	var credits *domain.InsufficientCreditsError
	require.True(t, errors.As(err, &credits))
	assert.True(t, credits.ShowUpgrade())

	_, err = orch.Regenerate(context.Background(), s, RegenerateRequest{Index: 4})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, model.callCount())
}

func TestRegenerateUnreadablePriorWithoutReferences(t *testing.T) {
	model := &fakeModel{}
	ledger := &fakeLedger{limit: 90}
	s := newSession("a")
	s.References = nil
	orch := newTestOrchestrator(model, ledger, nil, Options{})

	_, err := orch.Regenerate(context.Background(), s, RegenerateRequest{Index: 0, PriorImage: "https://cdn.example.com/gone.png"})
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "prior_image", verr.Field)
	assert.Zero(t, model.callCount())
	assert.Empty(t, ledger.consumed)
}

func TestRenderPrompt(t *testing.T) {
	got := RenderPrompt("Cafe: Boy alone at 10:30", domain.SizeConfig{ImageSize: "2K"}, 2)
	assert.Contains(t, got, "Scene title: Cafe")
	assert.Contains(t, got, "Scene description: Boy alone at 10:30")
	assert.Contains(t, got, "2 reference images")
	assert.Contains(t, got, "Aspect ratio: 16:9")
	assert.Contains(t, got, "Image size: 2K")

	plain := RenderPrompt("Boy alone", domain.SizeConfig{AspectRatio: "1:1"}, 1)
	assert.NotContains(t, plain, "Scene title")
	assert.Contains(t, plain, "Aspect ratio: 1:1")
}

func TestSessionSetPromptsKeepsUnchangedSlots(t *testing.T) {
	s := newSession("a", "b")
	s.Restore([]domain.SceneResult{{ImageURL: "https://cdn/a.png"}, {Error: "boom"}})
	s.SetPrompts([]string{"a", "c", "d"})
	got := s.Results()
	require.Len(t, got, 3)
	assert.Equal(t, "https://cdn/a.png", got[0].ImageURL)
	assert.Empty(t, got[1].Error)
	assert.Equal(t, "d", got[2].Prompt)
}

func TestSessionRestoreSettlesEachSlot(t *testing.T) {
	s := newSession("Cafe: boy alone", "b", "c")
	s.Restore([]domain.SceneResult{
		{ImageURL: "https://cdn/a.png", Error: "stale failure", IsLoading: true},
		{Error: "boom"},
		{IsLoading: true},
	})
	got := s.Results()

	assert.Equal(t, "https://cdn/a.png", got[0].ImageURL)
	assert.Empty(t, got[0].Error)
	assert.False(t, got[0].IsLoading)
	assert.True(t, got[0].HasImage())
	assert.Equal(t, "Cafe", got[0].Title)

	assert.Empty(t, got[1].ImageURL)
	assert.Equal(t, "boom", got[1].Error)

	assert.False(t, got[2].IsLoading)
	assert.Empty(t, got[2].ImageURL)
	assert.Equal(t, 1, domain.CountSuccessful(got))
}
