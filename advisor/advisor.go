// Package advisor suggests alt text for a single image through the model gateway.
package advisor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/apex/log"

	"github.com/access-assistant/backend/apperr"
	"github.com/access-assistant/backend/gateway"
	"github.com/access-assistant/backend/prompts"
)

// DefaultMaxWidth is the widest image sent to the model without downscaling
const DefaultMaxWidth = 1024

// Suggestion is a single suggested caption. It is never cached; asking again for the
// same image may produce different text.
type Suggestion struct {
	SuggestedAltText string `json:"suggestedAltText"`
}

// Advisor suggests alt text for images
type Advisor struct {
	gw       gateway.Gateway
	logger   log.Interface
	maxWidth int
}

// New creates an Advisor. A maxWidth of 0 uses DefaultMaxWidth; a negative value disables downscaling.
func New(gw gateway.Gateway, logger log.Interface, maxWidth int) *Advisor {
	if logger == nil {
		logger = log.Log
	}
	if maxWidth == 0 {
		maxWidth = DefaultMaxWidth
	}
	return &Advisor{gw: gw, logger: logger, maxWidth: maxWidth}
}

// Suggest returns one alt-text suggestion for img. existingAltText may be empty.
// Any failure is a SuggestionFailed error; there is no retry.
func (a *Advisor) Suggest(ctx context.Context, img Image, existingAltText string) (*Suggestion, error) {
	if len(img.Data) == 0 {
		return nil, apperr.New(apperr.SuggestionFailed, "image has no data")
	}
	if img.MimeType == "" {
		return nil, apperr.New(apperr.SuggestionFailed, "image has no MIME type")
	}

	start := time.Now()
	prepared, resized := prepare(img, a.maxWidth)

	media := gateway.Media{MimeType: prepared.MimeType, Data: prepared.Data}
	input := prompts.AltTextInput{
		ImageDataURI:    prepared.DataURI(),
		ExistingAltText: existingAltText,
		Image:           media,
	}

	out, err := gateway.Invoke(ctx, a.gw, prompts.SuggestAltText, input, prompts.AltTextSchema, gateway.WithLogger(a.logger))
	if err == nil && strings.TrimSpace(out.SuggestedAltText) == "" {
		err = errors.New("model suggested empty alt text")
	}
	if err != nil {
		a.logger.WithError(err).WithField("source", img.Source).Warn("alt-text suggestion failed")
		return nil, apperr.Wrap(err, apperr.SuggestionFailed, "could not generate alt text")
	}

	a.logger.WithFields(log.Fields{
		"source":  img.Source,
		"bytes":   len(prepared.Data),
		"resized": resized,
	}).WithDuration(time.Since(start)).Debug("alt-text suggested")

	return &Suggestion{SuggestedAltText: strings.TrimSpace(out.SuggestedAltText)}, nil
}
