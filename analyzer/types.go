package analyzer

import "time"

// Issue is one accessibility defect found in analyzed content
type Issue struct {
	// ID is assigned when the report is built; a new analysis yields new IDs.
	ID      string `json:"id" yaml:"id"`
	Ordinal int    `json:"ordinal" yaml:"ordinal"`
	Type    string `json:"type" yaml:"type"`
	Message string `json:"message" yaml:"message"`
	// Location is a CSS selector or prose description.
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
	// ElementContext is the raw src of the offending <img> for image issues,
	// and an HTML snippet for everything else.
	ElementContext string `json:"elementContext,omitempty" yaml:"elementContext,omitempty"`
}

// Category classifies the issue type
func (i Issue) Category() Category {
	return CategoryOf(i.Type)
}

// Fixable reports whether an automatic alt-text fix can be requested for the issue
func (i Issue) Fixable() bool {
	return IsAltText(i.Type) && i.ElementContext != ""
}

// Report is the complete output of one analysis pass
type Report struct {
	Issues      []Issue   `json:"issues" yaml:"issues"`
	Score       float64   `json:"score" yaml:"score"`
	Suggestions []string  `json:"suggestions" yaml:"suggestions"`
	AnalyzedAt  time.Time `json:"analyzedAt" yaml:"analyzedAt"`
	Provider    string    `json:"provider" yaml:"provider"`
}

// Issue returns the issue with the given ID
func (r *Report) Issue(id string) (Issue, bool) {
	if r == nil {
		return Issue{}, false
	}
	for _, issue := range r.Issues {
		if issue.ID == id {
			return issue, true
		}
	}
	return Issue{}, false
}

// Band returns the score band of the report
func (r *Report) Band() ScoreBand {
	return BandOf(r.Score)
}
