// Package coordinator runs the fix workflow for a single issue: fetch the image,
// ask for alt text, locate the element and hold the patched content for confirmation.
package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/apex/log"

	"github.com/access-assistant/backend/advisor"
	"github.com/access-assistant/backend/analyzer"
	"github.com/access-assistant/backend/apperr"
	"github.com/access-assistant/backend/htmlpatch"
	"github.com/access-assistant/backend/metrics"
	"github.com/access-assistant/backend/stats"
)

// ImageFetcher resolves an <img> src to image bytes. Relative sources resolve against baseURL.
type ImageFetcher interface {
	Fetch(ctx context.Context, src, baseURL string) (*advisor.Image, error)
}

// AltTextSuggester proposes alt text for an image
type AltTextSuggester interface {
	Suggest(ctx context.Context, img advisor.Image, existingAltText string) (*advisor.Suggestion, error)
}

// Recorder receives usage events
type Recorder interface {
	Record(event stats.Event)
}

// Coordinator starts fix workflows. It keeps no state between calls and does not
// prevent two workflows for the same issue from running at once.
type Coordinator struct {
	fetcher   ImageFetcher
	suggester AltTextSuggester
	recorder  Recorder
	logger    log.Interface
}

// New creates a Coordinator. recorder may be nil.
func New(fetcher ImageFetcher, suggester AltTextSuggester, recorder Recorder, logger log.Interface) *Coordinator {
	if logger == nil {
		logger = log.Log
	}
	return &Coordinator{
		fetcher:   fetcher,
		suggester: suggester,
		recorder:  recorder,
		logger:    logger,
	}
}

type options struct {
	baseURL string
}

// Option customizes a single SuggestFix call
type Option func(*options)

// WithBaseURL resolves relative image sources against base
func WithBaseURL(base string) Option {
	return func(o *options) {
		o.baseURL = base
	}
}

// SuggestFix runs the workflow for issue against content up to the preview. The
// returned workflow is either Previewing, or Abandoned with exactly one error kind.
// content itself is never modified.
func (c *Coordinator) SuggestFix(ctx context.Context, content string, issue analyzer.Issue, opts ...Option) *Workflow {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	w := newWorkflow(issue.ID, c.recorder)
	logger := c.logger.WithFields(log.Fields{
		"workflow": w.ID,
		"issue":    issue.ID,
		"type":     issue.Type,
	})

	if !issue.Fixable() {
		c.fail(w, logger, "unsupported", apperr.New(apperr.UnsupportedIssueType, apperr.UserMessage(apperr.UnsupportedIssueType)))
		return w
	}
	src := issue.ElementContext

	w.advance(Fetching)
	img, err := c.fetcher.Fetch(ctx, src, o.baseURL)
	if err != nil {
		c.fail(w, logger, "fetch_failed", asKind(err, apperr.ImageFetchFailed, "could not fetch image"))
		return w
	}

	w.advance(Requesting)
	suggestion, err := c.suggester.Suggest(ctx, *img, "")
	if err != nil {
		c.fail(w, logger, "suggestion_failed", asKind(err, apperr.SuggestionFailed, "could not generate alt text"))
		return w
	}

	w.advance(Locating)
	patched, err := htmlpatch.PatchImageAlt(content, src, suggestion.SuggestedAltText)
	if err != nil {
		msg := "no image with this src in the current content"
		if errors.Is(err, htmlpatch.ErrVerification) {
			msg = "patched content did not verify"
		}
		c.fail(w, logger, "element_not_found", apperr.Wrap(err, apperr.ElementNotFound, msg))
		return w
	}

	w.showPreview(&Preview{
		IssueID:          issue.ID,
		Src:              src,
		SuggestedAltText: suggestion.SuggestedAltText,
		Before:           content,
		After:            patched,
	})

	metrics.FixWorkflowsTotal.WithLabelValues("previewing").Inc()
	w.record(stats.FixSuggested)
	logger.WithField("src", src).WithDuration(time.Since(start)).Info("fix ready for preview")
	return w
}

func (c *Coordinator) fail(w *Workflow, logger log.Interface, outcome string, err *apperr.Error) {
	w.abandon(err)
	metrics.FixWorkflowsTotal.WithLabelValues(outcome).Inc()
	w.record(stats.FixAbandoned)
	logger.WithError(err).WithField("kind", err.Kind).Warn("fix workflow abandoned")
}

// asKind keeps err's kind when it already carries the expected one and wraps it otherwise
func asKind(err error, kind apperr.Kind, message string) *apperr.Error {
	var e *apperr.Error
	if errors.As(err, &e) && e.Kind == kind {
		return e
	}
	return apperr.Wrap(err, kind, message)
}
