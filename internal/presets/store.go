// Package presets stores named sets of scene prompts per user.
package presets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"storyboardgen/internal/domain"
	"storyboardgen/internal/infra"
	"storyboardgen/internal/sqlinline"
)

const (
	maxNameLength = 80
	maxPrompts    = 20
)

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func (s *Store) List(ctx context.Context, userID string) ([]domain.PromptPreset, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListPresets, userID)
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	defer rows.Close()

	presets := []domain.PromptPreset{}
	for rows.Next() {
		p := domain.PromptPreset{UserID: userID}
		if err := rows.Scan(&p.ID, &p.Name, &p.Prompts, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan preset: %w", err)
		}
		presets = append(presets, p)
	}
	return presets, rows.Err()
}

// Save stores prompts under name, replacing an existing preset of the same name.
func (s *Store) Save(ctx context.Context, userID, name string, prompts []string) (domain.PromptPreset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.PromptPreset{}, domain.NewValidationError("name", "is required")
	}
	if len([]rune(name)) > maxNameLength {
		return domain.PromptPreset{}, domain.NewValidationError("name", fmt.Sprintf("must be at most %d characters", maxNameLength))
	}
	cleaned := domain.SplitPrompts(domain.JoinPrompts(prompts))
	if len(cleaned) == 0 {
		return domain.PromptPreset{}, domain.NewValidationError("prompts", "at least one prompt is required")
	}
	if len(cleaned) > maxPrompts {
		return domain.PromptPreset{}, domain.NewValidationError("prompts", fmt.Sprintf("at most %d prompts are allowed", maxPrompts))
	}

	p := domain.PromptPreset{UserID: userID, Name: name, Prompts: cleaned}
	var created time.Time
	if err := s.sql.QueryRow(ctx, sqlinline.QUpsertPreset, userID, name, cleaned).Scan(&p.ID, &created); err != nil {
		return domain.PromptPreset{}, fmt.Errorf("save preset: %w", err)
	}
	p.CreatedAt = created
	return p, nil
}

func (s *Store) Delete(ctx context.Context, userID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrNotFound
	}
	tag, err := s.sql.Exec(ctx, sqlinline.QDeletePreset, id, userID)
	if err != nil {
		return fmt.Errorf("delete preset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
