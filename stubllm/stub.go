package stubllm

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/access-assistant/backend/gateway"
	"github.com/access-assistant/backend/prompts"
)

var _ gateway.Gateway = (*Client)(nil)

// Client is a deterministic, no-network gateway intended for CI, local end-to-end tests
// and demos. It derives schema-valid output from the typed prompt input.
type Client struct{}

func NewClient() *Client { return &Client{} }

func (c *Client) Name() string { return "stub" }

func (c *Client) Generate(ctx context.Context, req gateway.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var out any
	var err error
	switch req.PromptID {
	case prompts.AnalyzeAccessibilityID:
		out, err = c.analyze(req.Input)
	case prompts.SuggestAltTextID:
		out, err = c.altText(req)
	default:
		return "", fmt.Errorf("stub: unknown prompt %q", req.PromptID)
	}
	if err != nil {
		return "", err
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// analyze reports images without alt text and skipped heading levels
func (c *Client) analyze(raw json.RawMessage) (*prompts.AnalyzeOutput, error) {
	var in prompts.AnalyzeInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("stub: invalid analysis input: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(in.Content))
	if err != nil {
		return nil, fmt.Errorf("stub: failed to parse content: %w", err)
	}

	out := &prompts.AnalyzeOutput{
		Issues:      []prompts.AnalyzedIssue{},
		Suggestions: []string{},
	}

	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok || src == "" {
			return
		}
		if alt, ok := s.Attr("alt"); ok && strings.TrimSpace(alt) != "" {
			return
		}
		out.Issues = append(out.Issues, prompts.AnalyzedIssue{
			Type:           "Missing Alt Text",
			Message:        "Image is missing descriptive alternative text, so screen reader users cannot perceive it.",
			Location:       fmt.Sprintf("image %d in document order", i+1),
			ElementContext: src,
		})
	})

	last := 0
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		level := int(goquery.NodeName(s)[1] - '0')
		if last > 0 && level > last+1 {
			html, _ := goquery.OuterHtml(s)
			out.Issues = append(out.Issues, prompts.AnalyzedIssue{
				Type:           "Heading Structure",
				Message:        fmt.Sprintf("Heading level jumps from h%d to h%d.", last, level),
				Location:       goquery.NodeName(s),
				ElementContext: html,
			})
		}
		last = level
	})

	score := 100 - 15*len(out.Issues)
	if score < 0 {
		score = 0
	}
	out.Score = float64(score)

	if len(out.Issues) > 0 {
		out.Suggestions = append(out.Suggestions, "Add concise alternative text to every informative image.")
	}
	if last == 0 {
		out.Suggestions = append(out.Suggestions, "Use headings to structure longer content.")
	}
	return out, nil
}

var subjects = []string{
	"A red bicycle leaning against a brick wall",
	"A mountain lake at sunrise surrounded by pine trees",
	"A group of people working together at a wooden table",
	"A close-up of a cup of coffee on a saucer",
	"An abstract pattern of overlapping coloured shapes",
}

func (c *Client) altText(req gateway.Request) (*prompts.AltTextOutput, error) {
	if len(req.Media) == 0 {
		return nil, fmt.Errorf("stub: no image attached")
	}
	sum := sha256.Sum256(req.Media[0].Data)
	return &prompts.AltTextOutput{SuggestedAltText: subjects[int(sum[0])%len(subjects)]}, nil
}
