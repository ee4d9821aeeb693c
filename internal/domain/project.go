package domain

import "time"

// Captions are the social captions attached to a project.
type Captions struct {
	TikTok    []string `json:"tiktok"`
	Instagram []string `json:"instagram"`
}

// Project is a saved storyboard.
type Project struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Name      string          `json:"name"`
	Prompts   []string        `json:"prompts"`
	Captions  Captions        `json:"captions"`
	Outputs   []ProjectOutput `json:"outputs,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ProjectOutput points at the stored image of one scene.
type ProjectOutput struct {
	SceneIndex  int    `json:"scene_index"`
	Prompt      string `json:"prompt"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	StoragePath string `json:"storage_path"`
	MIMEType    string `json:"mime_type"`
	SignedURL   string `json:"signed_url,omitempty"`
}

// SaveRunRequest is everything needed to persist a settled run.
type SaveRunRequest struct {
	UserID      string
	ProjectID   string
	ProjectName string
	Prompts     []string
	Captions    Captions
	Results     []SceneResult
}

// PromptPreset is a saved set of scene prompts.
type PromptPreset struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Prompts   []string  `json:"prompts"`
	CreatedAt time.Time `json:"created_at"`
}
