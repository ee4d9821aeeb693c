package image

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	stdimage "image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"

	"storyboardgen/internal/domain"
)

// Synthetic renders deterministic placeholder frames so the whole pipeline
// runs locally without a model key. Identical inputs yield identical bytes.
type Synthetic struct{}

func NewSynthetic() *Synthetic { return &Synthetic{} }

func (Synthetic) Generate(ctx context.Context, prompt string, refs []domain.ReferenceImage, size domain.SizeConfig) (domain.ImagePayload, error) {
	if err := ctx.Err(); err != nil {
		return domain.ImagePayload{}, Classify(err)
	}
	size = size.Normalize()
	refIDs := make([]string, len(refs))
	for i, ref := range refs {
		refIDs[i] = fmt.Sprintf("%s:%d", ref.MIMEType, len(ref.Data))
	}
	seed := deterministicSeed(prompt, size.AspectRatio, strings.Join(refIDs, ","))
	width, height := dimensionsFor(size.AspectRatio)
	data, err := renderFrame(width, height, seed)
	if err != nil {
		return domain.ImagePayload{}, &domain.ModelError{Kind: domain.ErrModelUnavailable, Cause: err}
	}
	return domain.ImagePayload{Data: data, MIMEType: "image/png"}, nil
}

func renderFrame(width, height int, seed string) ([]byte, error) {
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &stdimage.Uniform{colorFromSeed(seed, 0)}, stdimage.Point{}, draw.Src)

	accent := colorFromSeed(seed, 1)
	band := max(16, height/10)
	for y := 0; y < height; y += band * 2 {
		draw.Draw(img, stdimage.Rect(0, y, width, min(height, y+band)), &stdimage.Uniform{accent}, stdimage.Point{}, draw.Over)
	}

	diagonal := colorFromSeed(seed, 2)
	step := max(12, width/24)
	for x := 0; x < width; x += step {
		for y := 0; y < height && x+y < width; y++ {
			img.Set(x+y, y, diagonal)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func colorFromSeed(seed string, shift int) color.RGBA {
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{R: hexByte(segment[0:2]), G: hexByte(segment[2:4]), B: hexByte(segment[4:6]), A: 255}
}

func hexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{'|'})
	}
	return hex.EncodeToString(h.Sum(nil))[:18]
}

// dimensionsFor returns preview sized frames for an aspect ratio.
func dimensionsFor(aspect string) (int, int) {
	switch strings.TrimSpace(strings.ToLower(aspect)) {
	case "16:9":
		return 640, 360
	case "9:16":
		return 360, 640
	case "4:3":
		return 640, 480
	case "3:4":
		return 480, 640
	case "4:5":
		return 512, 640
	case "3:2":
		return 600, 400
	default:
		return 512, 512
	}
}
