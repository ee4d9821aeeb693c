package project

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"storyboardgen/internal/domain"
	"storyboardgen/internal/infra"
	"storyboardgen/internal/sqlinline"
	"storyboardgen/pkg/zip"
)

// List returns the user's projects, most recently updated first, without outputs.
func (s *Store) List(ctx context.Context, userID string, limit, offset int) ([]domain.Project, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.sql.Query(ctx, sqlinline.QListProjects, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		p.UserID = userID
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// Get returns one project with its outputs and signed image URLs.
func (s *Store) Get(ctx context.Context, userID, projectID string) (domain.Project, error) {
	if _, err := uuid.Parse(projectID); err != nil {
		return domain.Project{}, domain.ErrNotFound
	}
	p, err := scanProject(s.sql.QueryRow(ctx, sqlinline.QSelectProject, projectID, userID))
	if err != nil {
		if infra.IsNoRows(err) {
			return domain.Project{}, domain.ErrNotFound
		}
		return domain.Project{}, fmt.Errorf("get project: %w", err)
	}
	p.UserID = userID

	outputs, err := s.outputs(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	for i := range outputs {
		url, err := s.blobs.SignedURL(ctx, outputs[i].StoragePath, s.signedTTL)
		if err != nil {
			s.logger.Warn().Err(err).Str("project_id", projectID).Int("scene", outputs[i].SceneIndex).Msg("sign output url failed")
			continue
		}
		outputs[i].SignedURL = url
	}
	p.Outputs = outputs
	return p, nil
}

// Delete removes a project row. Stored images are left for bucket lifecycle rules.
func (s *Store) Delete(ctx context.Context, userID, projectID string) error {
	if _, err := uuid.Parse(projectID); err != nil {
		return domain.ErrNotFound
	}
	tag, err := s.sql.Exec(ctx, sqlinline.QDeleteProject, projectID, userID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Archive is a project bundled for download.
type Archive struct {
	Filename string
	Entries  []zip.Entry
}

// Write streams the archive as a zip file.
func (a *Archive) Write(w io.Writer) error {
	return zip.Write(w, a.Entries)
}

// Archive collects the stored images of a project plus its prompts and captions.
func (s *Store) Archive(ctx context.Context, userID, projectID string) (*Archive, error) {
	p, err := s.Get(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	modified := p.UpdatedAt
	entries := make([]zip.Entry, 0, len(p.Outputs)+2)
	for _, out := range p.Outputs {
		data, mimeType, err := s.blobs.Read(ctx, out.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("%w: read scene %d: %w", domain.ErrPersistence, out.SceneIndex, err)
		}
		if mimeType == "" {
			mimeType = out.MIMEType
		}
		name := fmt.Sprintf("%02d-%s.%s", out.SceneIndex+1, slug(out.Title, "scene"), domain.ExtensionForMIME(mimeType))
		entries = append(entries, zip.Entry{Name: name, Data: data, Modified: modified})
	}
	entries = append(entries, zip.Entry{Name: "prompts.txt", Data: []byte(domain.JoinPrompts(p.Prompts) + "\n"), Modified: modified})
	if captions := captionsText(p.Captions); captions != "" {
		entries = append(entries, zip.Entry{Name: "captions.txt", Data: []byte(captions), Modified: modified})
	}
	return &Archive{Filename: slug(p.Name, "storyboard") + ".zip", Entries: entries}, nil
}

func (s *Store) outputs(ctx context.Context, projectID string) ([]domain.ProjectOutput, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListProjectOutputs, projectID)
	if err != nil {
		return nil, fmt.Errorf("list outputs: %w", err)
	}
	defer rows.Close()

	outputs := []domain.ProjectOutput{}
	for rows.Next() {
		var out domain.ProjectOutput
		if err := rows.Scan(&out.SceneIndex, &out.Prompt, &out.StoragePath, &out.MIMEType); err != nil {
			return nil, fmt.Errorf("scan output: %w", err)
		}
		scene := domain.PromptToScene(out.Prompt)
		out.Title, out.Description = scene.Title, scene.Description
		outputs = append(outputs, out)
	}
	return outputs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (domain.Project, error) {
	var (
		p        domain.Project
		captions []byte
		created  time.Time
		updated  time.Time
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Prompts, &captions, &created, &updated); err != nil {
		return domain.Project{}, err
	}
	if len(captions) > 0 {
		if err := json.Unmarshal(captions, &p.Captions); err != nil {
			return domain.Project{}, fmt.Errorf("decode captions: %w", err)
		}
	}
	p.CreatedAt, p.UpdatedAt = created, updated
	return p, nil
}

func captionsText(c domain.Captions) string {
	var b strings.Builder
	for i, line := range c.TikTok {
		fmt.Fprintf(&b, "TikTok %d: %s\n", i+1, line)
	}
	for i, line := range c.Instagram {
		fmt.Fprintf(&b, "Instagram %d: %s\n", i+1, line)
	}
	return b.String()
}

func slug(s, fallback string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if len(out) > 48 {
		out = strings.TrimSuffix(out[:48], "-")
	}
	if out == "" {
		return fallback
	}
	return out
}
