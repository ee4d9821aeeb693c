package caption

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"storyboardgen/internal/domain"
)

var supportedLocales = []language.Tag{language.English, language.Indonesian}

var localeMatcher = language.NewMatcher(supportedLocales)

type phrasebook struct {
	tiktokHook string
	igLead     string
	tags       []string
}

var phrasebooks = map[language.Tag]phrasebook{
	language.English: {
		tiktokHook: "Wait for it",
		igLead:     "Scene %d",
		tags:       []string{"#storyboard", "#fyp", "#storytime"},
	},
	language.Indonesian: {
		tiktokHook: "Tunggu sampai akhir",
		igLead:     "Adegan %d",
		tags:       []string{"#storyboard", "#fyp", "#cerita"},
	},
}

// MatchLocale picks the closest supported locale for a BCP 47 string.
func MatchLocale(locale string) language.Tag {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return language.English
	}
	_, idx, _ := localeMatcher.Match(tag)
	return supportedLocales[idx]
}

// Static builds captions from the scene text without calling a model.
type Static struct{}

func NewStatic() *Static {
	return &Static{}
}

func (s *Static) Captions(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	tag := MatchLocale(req.Locale)
	book := phrasebooks[tag]
	title := cases.Title(tag)
	out := domain.Captions{
		TikTok:    make([]string, len(req.Prompts)),
		Instagram: make([]string, len(req.Prompts)),
	}
	for i, scene := range req.scenes() {
		heading := title.String(coalesce(scene.Title, req.ProjectName, fmt.Sprintf(book.igLead, i+1)))
		tags := strings.Join(book.tags, " ")
		out.TikTok[i] = fmt.Sprintf("%s: %s. %s %s", heading, scene.Description, book.tiktokHook, tags)
		out.Instagram[i] = fmt.Sprintf("%s\n\n%s\n\n%s", heading, scene.Description, tags)
	}
	return &Result{Captions: out, Provider: staticProviderName}, nil
}
