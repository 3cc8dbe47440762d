// Package translate localizes draft replies. It never fails hard: when the
// target language cannot be resolved or the backend errors, the original
// text is returned unchanged.
package translate

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"
)

// Backend is the text-generation capability used for translation.
type Backend interface {
	Complete(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error)
}

// supported lists the languages drafts can be localized into; the matcher
// resolves regional variants (e.g. "en-US") onto them.
var supported = []language.Tag{
	language.English, // first entry is the fallback
	language.Hindi,
	language.Spanish,
	language.French,
	language.German,
	language.Hebrew,
	language.Arabic,
}

var matcher = language.NewMatcher(supported)

// Translator converts text between languages through the generative backend.
type Translator struct {
	backend     Backend
	defaultLang language.Tag
	logger      zerolog.Logger
}

// NewTranslator creates a translator. defaultLang is the language drafts are
// generated in; translation into it is a no-op.
func NewTranslator(backend Backend, defaultLang string, logger zerolog.Logger) *Translator {
	tag, err := language.Parse(defaultLang)
	if err != nil {
		tag = language.English
	}
	return &Translator{
		backend:     backend,
		defaultLang: tag,
		logger:      logger.With().Str("component", "translate").Logger(),
	}
}

// Translate converts text into the target language code. The original text
// is returned when the target is the default language, unsupported, or the
// backend fails.
func (t *Translator) Translate(ctx context.Context, text, targetLang string) string {
	if text == "" || targetLang == "" {
		return text
	}

	requested, err := language.Parse(targetLang)
	if err != nil {
		t.logger.Warn().Str("lang", targetLang).Msg("unparseable target language, returning original")
		return text
	}
	tag, _, confidence := matcher.Match(requested)
	if confidence == language.No {
		t.logger.Warn().Str("lang", targetLang).Msg("unsupported target language, returning original")
		return text
	}

	base, _ := tag.Base()
	defaultBase, _ := t.defaultLang.Base()
	if base == defaultBase {
		return text
	}

	name := languageName(tag)
	prompt := fmt.Sprintf("Translate the following text into %s. Return only the translated text.\n\n%s", name, text)
	translated, err := t.backend.Complete(ctx, prompt, 1024, 0)
	if err != nil {
		t.logger.Warn().Err(err).Str("lang", targetLang).Msg("translation failed, returning original")
		return text
	}
	return translated
}

func languageName(tag language.Tag) string {
	switch tag {
	case language.Hindi:
		return "Hindi"
	case language.Spanish:
		return "Spanish"
	case language.French:
		return "French"
	case language.German:
		return "German"
	case language.Hebrew:
		return "Hebrew"
	case language.Arabic:
		return "Arabic"
	default:
		return "English"
	}
}
