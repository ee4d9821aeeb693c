package generation

import (
	"fmt"
	"strings"

	"storyboardgen/internal/domain"
)

// RenderPrompt turns a scene prompt into the instruction sent to the image model.
func RenderPrompt(prompt string, size domain.SizeConfig, references int) string {
	scene := domain.PromptToScene(prompt)
	size = size.Normalize()

	var b strings.Builder
	b.WriteString("Create one storyboard illustration for the scene below.")
	if scene.Title != "" {
		b.WriteString("\nScene title: ")
		b.WriteString(scene.Title)
	}
	if scene.Description != "" {
		b.WriteString("\nScene description: ")
		b.WriteString(scene.Description)
	}
	switch {
	case references == 1:
		b.WriteString("\nKeep the character consistent with the reference image.")
	case references > 1:
		fmt.Fprintf(&b, "\nKeep the characters consistent with the %d reference images.", references)
	}
	b.WriteString("\nAspect ratio: ")
	b.WriteString(size.AspectRatio)
	if size.ImageSize != "" {
		b.WriteString("\nImage size: ")
		b.WriteString(size.ImageSize)
	}
	b.WriteString("\nDo not add captions, speech bubbles or text to the image.")
	return b.String()
}
