package analyzer

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/apex/log"
	"github.com/google/uuid"

	"github.com/access-assistant/backend/apperr"
	"github.com/access-assistant/backend/gateway"
	"github.com/access-assistant/backend/metrics"
	"github.com/access-assistant/backend/prompts"
	"github.com/access-assistant/backend/stats"
)

// Recorder receives usage events
type Recorder interface {
	Record(event stats.Event)
}

// Analyzer turns HTML content into an accessibility report through the model gateway
type Analyzer struct {
	gw       gateway.Gateway
	logger   log.Interface
	recorder Recorder
	now      func() time.Time
}

// New creates a new Analyzer. recorder may be nil.
func New(gw gateway.Gateway, logger log.Interface, recorder Recorder) *Analyzer {
	if logger == nil {
		logger = log.Log
	}
	return &Analyzer{
		gw:       gw,
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
	}
}

// Analyze produces a report for content. Callers must not pass blank content.
// Any gateway failure, empty payload or schema violation fails with AnalysisIncomplete.
func (a *Analyzer) Analyze(ctx context.Context, content string) (*Report, error) {
	start := a.now()

	out, err := gateway.Invoke(ctx, a.gw, prompts.AnalyzeAccessibility, prompts.AnalyzeInput{Content: content}, prompts.AnalyzeSchema, gateway.WithLogger(a.logger))
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues("incomplete").Inc()
		a.record(stats.AnalysisFailed)
		a.logger.WithError(err).WithField("content_length", len(content)).Warn("accessibility analysis incomplete")
		return nil, apperr.Wrap(err, apperr.AnalysisIncomplete, apperr.UserMessage(apperr.AnalysisIncomplete))
	}

	report := &Report{
		Issues:      make([]Issue, 0, len(out.Issues)),
		Score:       out.Score,
		Suggestions: out.Suggestions,
		AnalyzedAt:  a.now(),
		Provider:    a.gw.Name(),
	}
	if report.Suggestions == nil {
		report.Suggestions = []string{}
	}

	for i, raw := range out.Issues {
		issue := Issue{
			ID:             uuid.NewString(),
			Ordinal:        i,
			Type:           raw.Type,
			Message:        raw.Message,
			Location:       raw.Location,
			ElementContext: raw.ElementContext,
		}
		if IsAltText(issue.Type) || issue.Category() == CategoryImage {
			issue.ElementContext = imageSource(issue.ElementContext)
		}
		report.Issues = append(report.Issues, issue)
		metrics.IssuesReported.WithLabelValues(string(issue.Category())).Inc()
	}

	metrics.AnalysesTotal.WithLabelValues("success").Inc()
	a.record(stats.AnalysisCompleted)
	a.logger.WithFields(log.Fields{
		"issues":   len(report.Issues),
		"score":    report.Score,
		"provider": report.Provider,
	}).WithDuration(a.now().Sub(start)).Info("accessibility analysis completed")

	return report, nil
}

func (a *Analyzer) record(event stats.Event) {
	if a.recorder != nil {
		a.recorder.Record(event)
	}
}

// imageSource returns the src of the first <img> when elementContext is an HTML
// snippet rather than a bare src value. Anything else is returned untouched.
func imageSource(elementContext string) string {
	if !strings.Contains(strings.ToLower(elementContext), "<img") {
		return elementContext
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(elementContext))
	if err != nil {
		return elementContext
	}
	if src, ok := doc.Find("img[src]").First().Attr("src"); ok && src != "" {
		return src
	}
	return elementContext
}
