// Package references turns client supplied images into model references.
package references

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"storyboardgen/internal/domain"
)

// MaxImageBytes caps a single reference image.
const MaxImageBytes = 10 << 20

// Resolver accepts data URLs and remote URLs whose host is allowlisted.
type Resolver struct {
	client *http.Client
	hosts  map[string]struct{}
}

func NewResolver(allowlist []string, client *http.Client) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	hosts := make(map[string]struct{}, len(allowlist))
	for _, h := range allowlist {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts[h] = struct{}{}
		}
	}
	return &Resolver{client: client, hosts: hosts}
}

// Resolve embeds raw as a reference image, fetching it when it is a URL.
func (r *Resolver) Resolve(ctx context.Context, raw string) (domain.ReferenceImage, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.ReferenceImage{}, domain.NewValidationError("image", "is empty")
	}
	if domain.IsDataURL(raw) {
		return fromDataURL(raw)
	}
	return r.fetch(ctx, raw)
}

// ResolveAll resolves every entry, failing on the first invalid one.
func (r *Resolver) ResolveAll(ctx context.Context, raws []string) ([]domain.ReferenceImage, error) {
	out := make([]domain.ReferenceImage, 0, len(raws))
	for i, raw := range raws {
		img, err := r.Resolve(ctx, raw)
		if err != nil {
			return nil, fmt.Errorf("reference %d: %w", i, err)
		}
		out = append(out, img)
	}
	return out, nil
}

func fromDataURL(raw string) (domain.ReferenceImage, error) {
	mime, data, err := domain.ParseDataURL(raw)
	if err != nil {
		return domain.ReferenceImage{}, domain.NewValidationError("image", "is not a valid base64 data url")
	}
	return newImage(mime, data)
}

func (r *Resolver) fetch(ctx context.Context, raw string) (domain.ReferenceImage, error) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return domain.ReferenceImage{}, domain.NewValidationError("image", "must be a data url or http(s) url")
	}
	if _, ok := r.hosts[strings.ToLower(u.Hostname())]; !ok {
		return domain.ReferenceImage{}, domain.NewValidationError("image", fmt.Sprintf("host %q is not allowed", u.Hostname()))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return domain.ReferenceImage{}, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return domain.ReferenceImage{}, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.ReferenceImage{}, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return domain.ReferenceImage{}, fmt.Errorf("read image: %w", err)
	}
	mime := resp.Header.Get("Content-Type")
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}
	return newImage(strings.TrimSpace(mime), data)
}

func newImage(mime string, data []byte) (domain.ReferenceImage, error) {
	if len(data) == 0 {
		return domain.ReferenceImage{}, domain.NewValidationError("image", "is empty")
	}
	if len(data) > MaxImageBytes {
		return domain.ReferenceImage{}, domain.NewValidationError("image", "exceeds 10MB")
	}
	if !strings.HasPrefix(mime, "image/") {
		return domain.ReferenceImage{}, domain.NewValidationError("image", fmt.Sprintf("unsupported content type %q", mime))
	}
	return domain.ReferenceImage{ID: uuid.NewString(), Data: data, MIMEType: mime}, nil
}
