package analyzer

import "testing"

func TestIsAltText(t *testing.T) {
	tests := []struct {
		issueType string
		expected  bool
	}{
		{"Missing Alt Text", true},
		{"missing alt-text", true},
		{"Empty ALTTEXT attribute", true},
		{"Image lacks alternative text", true},
		{"Heading Structure", false},
		{"Insufficient Color Contrast", false},
		{"Decorative image", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.issueType, func(t *testing.T) {
			if got := IsAltText(tt.issueType); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		issueType string
		expected  Category
	}{
		{"Missing Alt Text", CategoryImage},
		{"Image too small", CategoryImage},
		{"Insufficient Color Contrast", CategoryContrast},
		{"Improper Heading Structure", CategoryHeading},
		{"Empty Link", CategoryEmptyLink},
		{"Ambiguous link text", CategoryLink},
		{"Anchor without href", CategoryLink},
		{"Small font size", CategoryText},
		{"Input missing label", CategoryForm},
		{"Button has no accessible name", CategoryInteractive},
		{"Missing document language", CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.issueType, func(t *testing.T) {
			if got := CategoryOf(tt.issueType); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestBandOf(t *testing.T) {
	tests := []struct {
		score    float64
		expected ScoreBand
	}{
		{0, BandPoor},
		{49.9, BandPoor},
		{50, BandFair},
		{79, BandFair},
		{80, BandGood},
		{100, BandGood},
	}

	for _, tt := range tests {
		if got := BandOf(tt.score); got != tt.expected {
			t.Errorf("Score %v: expected %s, got %s", tt.score, tt.expected, got)
		}
	}

	if BandGood.Summary() == BandPoor.Summary() {
		t.Error("Expected distinct summaries per band")
	}
}
