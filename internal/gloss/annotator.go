package gloss

import (
	"context"
	"fmt"
	"strings"
)

// Glosser resolves a single word to its stored gloss for a language.
// chat.Service satisfies this.
type Glosser interface {
	WordGloss(ctx context.Context, sourceWord, language string) (string, bool, error)
}

// Annotator decorates generated replies with per-word glosses for
// display. The decoration is computed fresh on every render and is
// never persisted.
type Annotator struct {
	glosser Glosser
}

// NewAnnotator builds an annotator over the given gloss source.
func NewAnnotator(glosser Glosser) *Annotator {
	return &Annotator{glosser: glosser}
}

// Annotate splits text on whitespace, looks every token occurrence up
// (repeated words issue repeated lookups), and appends the gloss
// sequence as a suffix to the undecorated text. A token falls back to
// itself when no entry exists or the stored gloss is the empty string,
// so an unset gloss never renders as a blank.
func (a *Annotator) Annotate(ctx context.Context, text, language string) (string, error) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return text, nil
	}

	glossed := make([]string, 0, len(words))
	for _, w := range words {
		target, ok, err := a.glosser.WordGloss(ctx, w, language)
		if err != nil {
			return "", fmt.Errorf("gloss %q: %w", w, err)
		}
		if ok && target != "" {
			glossed = append(glossed, target)
		} else {
			glossed = append(glossed, w)
		}
	}
	return fmt.Sprintf("%s _(gloss: %s)_", text, strings.Join(glossed, " ")), nil
}
