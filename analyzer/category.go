package analyzer

import "strings"

// Category groups free-form issue types for display and metrics
type Category string

const (
	CategoryImage       Category = "image"
	CategoryContrast    Category = "contrast"
	CategoryHeading     Category = "heading"
	CategoryEmptyLink   Category = "empty-link"
	CategoryLink        Category = "link"
	CategoryText        Category = "text"
	CategoryForm        Category = "form"
	CategoryInteractive Category = "interactive"
	CategoryOther       Category = "other"
)

var altTextIndicators = []string{"alt text", "alt-text", "alttext", "alternative text"}

// IsAltText reports whether an issue type carries the alt-text indicator
func IsAltText(issueType string) bool {
	t := strings.ToLower(issueType)
	for _, indicator := range altTextIndicators {
		if strings.Contains(t, indicator) {
			return true
		}
	}
	return false
}

// CategoryOf classifies an issue type; the first matching rule wins
func CategoryOf(issueType string) Category {
	t := strings.ToLower(issueType)
	switch {
	case IsAltText(t) || strings.Contains(t, "image"):
		return CategoryImage
	case strings.Contains(t, "contrast"):
		return CategoryContrast
	case strings.Contains(t, "heading"):
		return CategoryHeading
	case strings.Contains(t, "empty link"):
		return CategoryEmptyLink
	case strings.Contains(t, "link") || strings.Contains(t, "anchor"):
		return CategoryLink
	case strings.Contains(t, "text") || strings.Contains(t, "font"):
		return CategoryText
	case strings.Contains(t, "form") || strings.Contains(t, "input") || strings.Contains(t, "label"):
		return CategoryForm
	case strings.Contains(t, "button") || strings.Contains(t, "interactive"):
		return CategoryInteractive
	default:
		return CategoryOther
	}
}

// ScoreBand is a coarse rating of an accessibility score
type ScoreBand string

const (
	BandPoor ScoreBand = "poor"
	BandFair ScoreBand = "fair"
	BandGood ScoreBand = "good"
)

// BandOf maps a score to its band: below 50 is poor, below 80 is fair
func BandOf(score float64) ScoreBand {
	switch {
	case score < 50:
		return BandPoor
	case score < 80:
		return BandFair
	default:
		return BandGood
	}
}

// Summary is the one-line verdict shown next to the score
func (b ScoreBand) Summary() string {
	switch b {
	case BandGood:
		return "Excellent! Your content is highly accessible."
	case BandFair:
		return "Good, but some improvements can be made."
	default:
		return "Needs significant improvement for better accessibility."
	}
}
