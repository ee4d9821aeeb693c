package domain

import (
	"errors"
	"reflect"
	"testing"
)

func TestSceneRoundTrip(t *testing.T) {
	scenes := []Scene{
		{Title: "Opening", Description: "Boy looking confused with question marks around him"},
		{Title: "Cafe", Description: "Boy feeling lonely at a cafe table"},
		{Title: "Clock", Description: "It is 10:30 and the boy: waits"},
		{Title: "A", Description: "b"},
	}
	for _, s := range scenes {
		prompt := SceneToPrompt(s)
		got := PromptToScene(prompt)
		if got != s {
			t.Fatalf("PromptToScene(SceneToPrompt(%#v)) = %#v", s, got)
		}
		if again := SceneToPrompt(got); again != prompt {
			t.Fatalf("prompt not reproduced: %q vs %q", again, prompt)
		}
	}
}

func TestPromptToScene(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   Scene
	}{
		{name: "no separator", prompt: "  Boy feeling lonely  ", want: Scene{Description: "Boy feeling lonely"}},
		{name: "colon without space", prompt: "Meet at 10:30 sharp", want: Scene{Description: "Meet at 10:30 sharp"}},
		{name: "first separator only", prompt: "Title: one: two", want: Scene{Title: "Title", Description: "one: two"}},
		{name: "empty", prompt: "", want: Scene{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := PromptToScene(tc.prompt); got != tc.want {
				t.Fatalf("PromptToScene(%q) = %#v, want %#v", tc.prompt, got, tc.want)
			}
		})
	}
}

func TestSplitAndJoinPrompts(t *testing.T) {
	block := "First: one\n\n   \n  Second scene  \nThird: three\n"
	got := SplitPrompts(block)
	want := []string{"First: one", "Second scene", "Third: three"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SplitPrompts = %#v, want %#v", got, want)
	}
	if again := SplitPrompts(JoinPrompts(got)); !reflect.DeepEqual(again, want) {
		t.Fatalf("join/split mismatch: %#v", again)
	}
}

func TestSceneResultTransitions(t *testing.T) {
	pending := NewPendingScene("Cafe: Boy at a table")
	if !pending.IsLoading || pending.Title != "Cafe" || pending.Description != "Boy at a table" {
		t.Fatalf("unexpected pending scene: %#v", pending)
	}
	ok := pending.Succeed("data:image/png;base64,AA==")
	if ok.IsLoading || !ok.HasImage() || ok.Error != "" {
		t.Fatalf("unexpected success scene: %#v", ok)
	}
	failed := ok.Fail("boom")
	if failed.IsLoading || failed.HasImage() || failed.ImageURL != "" {
		t.Fatalf("failed scene must not keep image: %#v", failed)
	}
	if n := CountSuccessful([]SceneResult{ok, failed, pending}); n != 1 {
		t.Fatalf("CountSuccessful = %d, want 1", n)
	}
}

func TestDataURL(t *testing.T) {
	url := EncodeDataURL("image/jpeg", []byte{1, 2, 3})
	mime, data, err := ParseDataURL(url)
	if err != nil {
		t.Fatalf("ParseDataURL: %v", err)
	}
	if mime != "image/jpeg" || !reflect.DeepEqual(data, []byte{1, 2, 3}) {
		t.Fatalf("unexpected decode: %s %v", mime, data)
	}
	if _, _, err := ParseDataURL("https://example.com/a.png"); err == nil {
		t.Fatalf("expected error for remote url")
	}
	if ext := ExtensionForMIME("image/jpeg"); ext != "jpg" {
		t.Fatalf("ExtensionForMIME = %q", ext)
	}
}

func TestPlanLimits(t *testing.T) {
	tests := map[PlanType]int{PlanBasic: 90, PlanPro: 180, PlanBusiness: 600, PlanFree: 3}
	for plan, want := range tests {
		if got := plan.CreditLimit(); got != want {
			t.Fatalf("%s limit = %d, want %d", plan, got, want)
		}
	}
	if _, err := ParsePlan("enterprise"); !errors.Is(err, ErrUnsupportedPlan) {
		t.Fatalf("expected ErrUnsupportedPlan, got %v", err)
	}
	sub := Subscription{Plan: PlanPro, IsActive: false}
	if sub.EffectivePlan() != PlanFree {
		t.Fatalf("inactive subscription must fall back to free")
	}
}

func TestInsufficientCreditsError(t *testing.T) {
	err := error(&InsufficientCreditsError{Requested: 3, Remaining: 2, Paid: true, Cause: ErrCreditExhaustedUpstream})
	if !errors.Is(err, ErrInsufficientCredits) || !errors.Is(err, ErrCreditExhaustedUpstream) {
		t.Fatalf("error chain incomplete: %v", err)
	}
	modelErr := error(&ModelError{Kind: ErrMissingAPIKey, Cause: errors.New("entity not found")})
	if !errors.Is(modelErr, ErrMissingAPIKey) {
		t.Fatalf("ModelError must match its kind")
	}
}
