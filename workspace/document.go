// Package workspace holds the editable documents the API works on: the content under
// edit, the report of its latest analysis and the fix workflows started against it.
package workspace

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/access-assistant/backend/analyzer"
	"github.com/access-assistant/backend/coordinator"
)

// ErrAnalysisInProgress is returned when an analysis is started while another one runs
var ErrAnalysisInProgress = errors.New("workspace: analysis already in progress")

// Document is one piece of content under edit. All access goes through its methods.
type Document struct {
	ID        string
	CreatedAt time.Time

	mu         sync.RWMutex
	content    string
	baseURL    string
	report     *analyzer.Report
	analyzing  bool
	updatedAt  time.Time
	lastAccess time.Time
	workflows  map[string]*coordinator.Workflow
}

// NewDocument creates a document holding content
func NewDocument(content, baseURL string) *Document {
	now := time.Now()
	return &Document{
		ID:         uuid.NewString(),
		CreatedAt:  now,
		content:    content,
		baseURL:    baseURL,
		updatedAt:  now,
		lastAccess: now,
		workflows:  make(map[string]*coordinator.Workflow),
	}
}

// Content returns the current content
func (d *Document) Content() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.content
}

// SetContent replaces the content. The report is kept; it describes the content it
// was produced from until the next analysis.
func (d *Document) SetContent(content string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.content = content
	d.updatedAt = time.Now()
	d.lastAccess = d.updatedAt
}

// BaseURL is used to resolve relative image sources
func (d *Document) BaseURL() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.baseURL
}

// SetBaseURL replaces the base URL
func (d *Document) SetBaseURL(baseURL string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.baseURL = baseURL
}

// Report returns the latest successful report, or nil while an analysis runs or
// after one failed.
func (d *Document) Report() *analyzer.Report {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.report
}

// Analyzing reports whether an analysis is in flight
func (d *Document) Analyzing() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.analyzing
}

// BeginAnalysis clears the report and returns the content to analyze
func (d *Document) BeginAnalysis() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.analyzing {
		return "", ErrAnalysisInProgress
	}
	d.analyzing = true
	d.report = nil
	d.lastAccess = time.Now()
	return d.content, nil
}

// CompleteAnalysis stores the report of a successful analysis
func (d *Document) CompleteAnalysis(report *analyzer.Report) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.analyzing = false
	d.report = report
	d.lastAccess = time.Now()
}

// FailAnalysis ends a failed analysis. The report stays cleared.
func (d *Document) FailAnalysis() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.analyzing = false
	d.lastAccess = time.Now()
}

// Issue looks up an issue of the current report by ID
func (d *Document) Issue(id string) (analyzer.Issue, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.report.Issue(id)
}

// TrackWorkflow remembers w so it can later be applied or dismissed
func (d *Document) TrackWorkflow(w *coordinator.Workflow) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.workflows[w.ID] = w
	d.lastAccess = time.Now()
}

// Workflow returns a tracked workflow
func (d *Document) Workflow(id string) (*coordinator.Workflow, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	w, ok := d.workflows[id]
	return w, ok
}

// ForgetWorkflow drops a tracked workflow
func (d *Document) ForgetWorkflow(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.workflows, id)
}

// Snapshot is a point-in-time view of a document
type Snapshot struct {
	ID        string           `json:"id"`
	Content   string           `json:"content"`
	BaseURL   string           `json:"baseUrl,omitempty"`
	Report    *analyzer.Report `json:"report"`
	Analyzing bool             `json:"analyzing"`
	Workflows []string         `json:"workflows"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// Snapshot returns the document's current state
func (d *Document) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.workflows))
	for id := range d.workflows {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return Snapshot{
		ID:        d.ID,
		Content:   d.content,
		BaseURL:   d.baseURL,
		Report:    d.report,
		Analyzing: d.analyzing,
		Workflows: ids,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.updatedAt,
	}
}

func (d *Document) touch(now time.Time) {
	d.mu.Lock()
	d.lastAccess = now
	d.mu.Unlock()
}

func (d *Document) lastAccessed() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastAccess
}
