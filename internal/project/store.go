// Package project persists settled generation runs: images to object storage
// and project rows to Postgres.
package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"storyboardgen/internal/domain"
	"storyboardgen/internal/infra"
	"storyboardgen/internal/sqlinline"
	"storyboardgen/internal/storage"
)

// Store is the only writer of project rows and stored scene images.
type Store struct {
	sql       infra.SQLExecutor
	blobs     storage.BlobStore
	logger    zerolog.Logger
	signedTTL time.Duration
	newID     func() string
	now       func() time.Time
}

func NewStore(sql infra.SQLExecutor, blobs storage.BlobStore, logger zerolog.Logger, signedTTL time.Duration) *Store {
	if signedTTL <= 0 {
		signedTTL = time.Hour
	}
	return &Store{
		sql:       sql,
		blobs:     blobs,
		logger:    logger.With().Str("component", "projects").Logger(),
		signedTTL: signedTTL,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// ObjectKey is the storage path of a scene image.
func ObjectKey(userID, projectID string, sceneIndex int, mimeType string) string {
	return fmt.Sprintf("%s/%s/%d.%s", userID, projectID, sceneIndex, domain.ExtensionForMIME(mimeType))
}

// SaveRun creates the project when req.ProjectID is empty and updates it in
// place otherwise. Every result holding a freshly generated image is uploaded
// and its output row upserted. The project id is returned even when some
// uploads failed; those failures come back wrapped in domain.ErrPersistence.
func (s *Store) SaveRun(ctx context.Context, req domain.SaveRunRequest) (string, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return "", domain.NewValidationError("user_id", "is required")
	}
	captions, err := json.Marshal(normalizeCaptions(req.Captions))
	if err != nil {
		return "", fmt.Errorf("%w: encode captions: %w", domain.ErrPersistence, err)
	}
	name := strings.TrimSpace(req.ProjectName)
	if name == "" {
		name = "Storyboard " + s.now().UTC().Format("2006-01-02 15:04")
	}
	prompts := req.Prompts
	if prompts == nil {
		prompts = []string{}
	}

	id, err := s.upsertProject(ctx, req, name, prompts, captions)
	if err != nil {
		return "", err
	}

	if _, err := s.sql.Exec(ctx, sqlinline.QDeleteOutputsFromIndex, id, len(prompts)); err != nil {
		return id, fmt.Errorf("%w: trim outputs: %w", domain.ErrPersistence, err)
	}

	var failures []error
	stored := 0
	for i, result := range req.Results {
		if !result.HasImage() || !domain.IsDataURL(result.ImageURL) {
			continue
		}
		if err := s.storeOutput(ctx, req.UserID, id, i, result); err != nil {
			s.logger.Error().Err(err).Str("project_id", id).Int("scene", i).Msg("store scene output failed")
			failures = append(failures, fmt.Errorf("scene %d: %w", i, err))
			continue
		}
		stored++
	}

	s.logger.Info().Str("project_id", id).Str("user_id", req.UserID).Int("stored", stored).Int("failed", len(failures)).Msg("project saved")
	if len(failures) > 0 {
		return id, fmt.Errorf("%w: %w", domain.ErrPersistence, errors.Join(failures...))
	}
	return id, nil
}

func (s *Store) upsertProject(ctx context.Context, req domain.SaveRunRequest, name string, prompts []string, captions []byte) (string, error) {
	var id string
	if req.ProjectID == "" {
		row := s.sql.QueryRow(ctx, sqlinline.QInsertProject, s.newID(), req.UserID, name, prompts, captions)
		if err := row.Scan(&id); err != nil {
			return "", fmt.Errorf("%w: insert project: %w", domain.ErrPersistence, err)
		}
		return id, nil
	}

	if _, err := uuid.Parse(req.ProjectID); err != nil {
		return "", fmt.Errorf("%w: project %s: %w", domain.ErrPersistence, req.ProjectID, domain.ErrNotFound)
	}
	row := s.sql.QueryRow(ctx, sqlinline.QUpdateProject, req.ProjectID, req.UserID, name, prompts, captions)
	if err := row.Scan(&id); err != nil {
		if infra.IsNoRows(err) {
			return "", fmt.Errorf("%w: project %s: %w", domain.ErrPersistence, req.ProjectID, domain.ErrNotFound)
		}
		return "", fmt.Errorf("%w: update project: %w", domain.ErrPersistence, err)
	}
	return id, nil
}

func (s *Store) storeOutput(ctx context.Context, userID, projectID string, index int, result domain.SceneResult) error {
	mimeType, data, err := domain.ParseDataURL(result.ImageURL)
	if err != nil {
		return err
	}
	key := ObjectKey(userID, projectID, index, mimeType)
	if err := s.blobs.Upload(ctx, key, data, mimeType); err != nil {
		return err
	}
	var previous string
	if err := s.sql.QueryRow(ctx, sqlinline.QUpsertProjectOutput, projectID, index, result.Prompt, key, mimeType).Scan(&previous); err != nil {
		return err
	}
	// A regenerated scene in another format lands under a new extension.
	if previous != "" && previous != key {
		if err := s.blobs.Delete(ctx, previous); err != nil {
			s.logger.Warn().Err(err).Str("project_id", projectID).Str("key", previous).Msg("remove replaced scene image failed")
		}
	}
	return nil
}

func normalizeCaptions(c domain.Captions) domain.Captions {
	if c.TikTok == nil {
		c.TikTok = []string{}
	}
	if c.Instagram == nil {
		c.Instagram = []string{}
	}
	return c
}
