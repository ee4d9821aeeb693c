package domain

import (
	"encoding/base64"
	"errors"
	"strings"
)

// ReferenceImage conditions the model toward a consistent character or style.
type ReferenceImage struct {
	ID       string `json:"id"`
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
}

// ImagePayload is a generated image.
type ImagePayload struct {
	Data     []byte
	MIMEType string
}

// DataURL renders the payload as a data URL.
func (p ImagePayload) DataURL() string {
	return EncodeDataURL(p.MIMEType, p.Data)
}

// SizeConfig controls the output size requested from the model.
type SizeConfig struct {
	AspectRatio string `json:"aspect_ratio"`
	ImageSize   string `json:"image_size"`
}

const DefaultAspectRatio = "16:9"

// Normalize applies defaults.
func (s SizeConfig) Normalize() SizeConfig {
	s.AspectRatio = strings.TrimSpace(s.AspectRatio)
	if s.AspectRatio == "" {
		s.AspectRatio = DefaultAspectRatio
	}
	s.ImageSize = strings.TrimSpace(s.ImageSize)
	return s
}

var errInvalidDataURL = errors.New("invalid data url")

// EncodeDataURL builds a base64 data URL.
func EncodeDataURL(mime string, data []byte) string {
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// IsDataURL reports whether s looks like a data URL.
func IsDataURL(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "data:")
}

// ParseDataURL decodes a base64 data URL into its MIME type and bytes.
func ParseDataURL(s string) (string, []byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		return "", nil, errInvalidDataURL
	}
	header, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok {
		return "", nil, errInvalidDataURL
	}
	mime, params, _ := strings.Cut(header, ";")
	if !strings.Contains(params, "base64") {
		return "", nil, errInvalidDataURL
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, errInvalidDataURL
	}
	if mime == "" {
		mime = "application/octet-stream"
	}
	return mime, data, nil
}

// ExtensionForMIME maps an image MIME type to a file extension without dot.
func ExtensionForMIME(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}
