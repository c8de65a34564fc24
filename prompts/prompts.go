// Package prompts holds the model prompt templates and their declared input and output schemas.
package prompts

import (
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/access-assistant/backend/gateway"
)

const (
	AnalyzeAccessibilityID = "analyzeAccessibilityPrompt"
	SuggestAltTextID       = "suggestAltTextPrompt"
)

// AnalyzeInput is the input of the accessibility analysis prompt
type AnalyzeInput struct {
	Content string `json:"content"`
}

// AnalyzedIssue is one issue as returned by the model
type AnalyzedIssue struct {
	Type           string `json:"type"`
	Message        string `json:"message"`
	Location       string `json:"location,omitempty"`
	ElementContext string `json:"elementContext,omitempty"`
}

// AnalyzeOutput is the output of the accessibility analysis prompt
type AnalyzeOutput struct {
	Issues      []AnalyzedIssue `json:"issues" validate:"required,dive"`
	Score       float64         `json:"score" validate:"gte=0,lte=100"`
	Suggestions []string        `json:"suggestions" validate:"required"`
}

// AltTextInput is the input of the alt-text suggestion prompt
type AltTextInput struct {
	ImageDataURI    string `json:"imageDataUri"`
	ExistingAltText string `json:"existingAltText"`
	// Image travels as a media attachment; the data URI above is its text form.
	Image gateway.Media `json:"-"`
}

// AltTextOutput is the output of the alt-text suggestion prompt
type AltTextOutput struct {
	SuggestedAltText string `json:"suggestedAltText" validate:"required"`
}

const analyzeSystem = `You are an accessibility expert analyzing HTML content.

Analyze the content for common accessibility issues, such as missing image alt text,
insufficient color contrast, and improper heading structure, and any other accessibility
problem you identify. Provide a score between 0-100, where 100 means perfect accessibility.

Output a list of issues, suggestions, and a score.
- Each issue should have a 'type', 'message', 'location' (general description or CSS selector), and 'elementContext'.
- For issues related to images, such as missing alt text, the 'elementContext' field of the issue MUST contain the exact 'src' attribute value of the problematic image tag, copied verbatim. For other issues, 'elementContext' can be the relevant HTML snippet.
- The score should be a number between 0 and 100.
- The suggestions should be a list of strings.`

const altTextSystem = `You are an expert in writing alt text for images for visually impaired users.

Given the following image and existing alt text (if any), suggest alt text that is concise and
descriptive, roughly one sentence. Do not start with "Image of" or "Picture of".`

// AnalyzeAccessibility asks the model for an accessibility report of HTML content
var AnalyzeAccessibility = gateway.Prompt[AnalyzeInput]{
	ID:     AnalyzeAccessibilityID,
	System: analyzeSystem,
	Render: func(in AnalyzeInput) string {
		return fmt.Sprintf("Content: %s", in.Content)
	},
}

// SuggestAltText asks the model for alt text describing an attached image
var SuggestAltText = gateway.Prompt[AltTextInput]{
	ID:     SuggestAltTextID,
	System: altTextSystem,
	Render: func(in AltTextInput) string {
		return fmt.Sprintf("Existing alt text: %s\nImage: (attached)\n\nSuggested alt text:", in.ExistingAltText)
	},
	Media: func(in AltTextInput) ([]gateway.Media, error) {
		if len(in.Image.Data) == 0 {
			return nil, fmt.Errorf("no image attached")
		}
		return []gateway.Media{in.Image}, nil
	},
}

// AnalyzeSchema is the declared output of AnalyzeAccessibility
var AnalyzeSchema = gateway.Schema[AnalyzeOutput]{
	Name: "accessibility_report",
	Definition: jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"issues": {
				Type:        jsonschema.Array,
				Description: "A list of accessibility issues found in the content.",
				Items: &jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"type": {
							Type:        jsonschema.String,
							Description: "The type of accessibility issue.",
						},
						"message": {
							Type:        jsonschema.String,
							Description: "A detailed description of the issue.",
						},
						"location": {
							Type:        jsonschema.String,
							Description: "A CSS selector or general description of the issue location in the content.",
						},
						"elementContext": {
							Type:        jsonschema.String,
							Description: "The HTML snippet of the problematic element. For image-related issues (like missing alt text), this should be the 'src' attribute of the image tag.",
						},
					},
					Required: []string{"type", "message"},
				},
			},
			"score": {
				Type:        jsonschema.Number,
				Description: "An accessibility score for the content (0-100).",
			},
			"suggestions": {
				Type:        jsonschema.Array,
				Description: "Suggestions for improving the content accessibility.",
				Items:       &jsonschema.Definition{Type: jsonschema.String},
			},
		},
		Required: []string{"issues", "score", "suggestions"},
	},
}

// AltTextSchema is the declared output of SuggestAltText
var AltTextSchema = gateway.Schema[AltTextOutput]{
	Name: "alt_text_suggestion",
	Definition: jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"suggestedAltText": {
				Type:        jsonschema.String,
				Description: "The suggested alt text for the image.",
			},
		},
		Required: []string{"suggestedAltText"},
	},
}
