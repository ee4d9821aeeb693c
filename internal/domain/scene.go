package domain

import "strings"

// SceneSeparator splits a prompt into its title and description.
const SceneSeparator = ": "

// Scene is the structured form of a scene prompt.
type Scene struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// PromptToScene parses "Title: Description". Only the first separator counts;
// without one the whole prompt is the description.
func PromptToScene(prompt string) Scene {
	idx := strings.Index(prompt, SceneSeparator)
	if idx < 0 {
		return Scene{Description: strings.TrimSpace(prompt)}
	}
	return Scene{
		Title:       strings.TrimSpace(prompt[:idx]),
		Description: strings.TrimSpace(prompt[idx+len(SceneSeparator):]),
	}
}

// SceneToPrompt is the inverse of PromptToScene.
func SceneToPrompt(s Scene) string {
	title := strings.TrimSpace(s.Title)
	desc := strings.TrimSpace(s.Description)
	if title == "" {
		return desc
	}
	return title + SceneSeparator + desc
}

// SplitPrompts turns an edited text block into prompts, one per non-blank line.
func SplitPrompts(block string) []string {
	lines := strings.Split(block, "\n")
	prompts := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		prompts = append(prompts, line)
	}
	return prompts
}

// JoinPrompts flattens prompts into a text block for editing.
func JoinPrompts(prompts []string) string {
	return strings.Join(prompts, "\n")
}

// SceneResult tracks one scene of a generation run.
type SceneResult struct {
	Prompt      string `json:"prompt"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	IsLoading   bool   `json:"is_loading"`
	Error       string `json:"error,omitempty"`
}

// NewPendingScene returns the initial state for prompt.
func NewPendingScene(prompt string) SceneResult {
	scene := PromptToScene(prompt)
	return SceneResult{
		Prompt:      prompt,
		Title:       scene.Title,
		Description: scene.Description,
		IsLoading:   true,
	}
}

// Succeed moves the scene into its success state.
func (r SceneResult) Succeed(imageURL string) SceneResult {
	r.ImageURL = imageURL
	r.Error = ""
	r.IsLoading = false
	return r
}

// Fail moves the scene into its failure state.
func (r SceneResult) Fail(msg string) SceneResult {
	r.ImageURL = ""
	r.Error = msg
	r.IsLoading = false
	return r
}

// HasImage reports whether the scene holds a generated image.
func (r SceneResult) HasImage() bool {
	return r.ImageURL != "" && r.Error == ""
}

// CountSuccessful returns how many results hold an image.
func CountSuccessful(results []SceneResult) int {
	n := 0
	for _, r := range results {
		if r.HasImage() {
			n++
		}
	}
	return n
}
