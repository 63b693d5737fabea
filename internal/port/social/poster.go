// Package social defines the port for publishing short public posts.
package social

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxPostLength is the longest post any poster accepts, in characters.
const MaxPostLength = 280

// ErrNotConfigured is returned when a poster lacks credentials or endpoint.
var ErrNotConfigured = errors.New("social: not configured")

// Poster publishes text and returns the platform's post id.
type Poster interface {
	// Name identifies the platform, e.g. "moltx".
	Name() string

	// Publish posts text. Text is at most MaxPostLength characters.
	Publish(ctx context.Context, text string) (postID string, err error)
}

// Truncate shortens text to MaxPostLength characters, marking the cut with an ellipsis.
func Truncate(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= MaxPostLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:MaxPostLength-1]) + "…"
}

// Chain tries each poster in order and returns the first success.
type Chain []Poster

// Name lists the chained platforms.
func (c Chain) Name() string {
	names := make([]string, len(c))
	for i, p := range c {
		names[i] = p.Name()
	}
	return strings.Join(names, ",")
}

// Publish posts through the first poster that accepts the text.
func (c Chain) Publish(ctx context.Context, text string) (string, error) {
	if len(c) == 0 {
		return "", ErrNotConfigured
	}
	text = Truncate(text)
	var errs []error
	for _, p := range c {
		id, err := p.Publish(ctx, text)
		if err == nil {
			return id, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	return "", errors.Join(errs...)
}
