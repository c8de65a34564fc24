package coordinator

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/access-assistant/backend/apperr"
	"github.com/access-assistant/backend/metrics"
	"github.com/access-assistant/backend/stats"
)

// State is a step of a fix workflow
type State string

const (
	Idle       State = "idle"
	Fetching   State = "fetching"
	Requesting State = "requesting"
	Locating   State = "locating"
	Previewing State = "previewing"
	Applied    State = "applied"
	Abandoned  State = "abandoned"
)

// Terminal reports whether no further transition can leave the state
func (s State) Terminal() bool {
	return s == Applied || s == Abandoned
}

// ErrInvalidTransition is returned by Apply and Dismiss outside the Previewing state
var ErrInvalidTransition = errors.New("coordinator: invalid workflow transition")

// ContentState is the editable source of truth a preview is applied to
type ContentState interface {
	SetContent(content string)
}

// Preview is the patched content held for confirmation
type Preview struct {
	IssueID          string `json:"issueId"`
	Src              string `json:"src"`
	SuggestedAltText string `json:"suggestedAltText"`
	Before           string `json:"before"`
	After            string `json:"after"`
}

// Workflow is one fix attempt for one issue
type Workflow struct {
	ID        string
	IssueID   string
	StartedAt time.Time

	mu       sync.Mutex
	state    State
	trail    []State
	preview  *Preview
	err      *apperr.Error
	recorder Recorder
}

func newWorkflow(issueID string, recorder Recorder) *Workflow {
	return &Workflow{
		ID:        uuid.NewString(),
		IssueID:   issueID,
		StartedAt: time.Now(),
		state:     Idle,
		trail:     []State{Idle},
		recorder:  recorder,
	}
}

// State returns the current state
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Trail returns every state the workflow has been in, in order
func (w *Workflow) Trail() []State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]State(nil), w.trail...)
}

// Preview returns the pending patch, or nil when there is none
func (w *Workflow) Preview() *Preview {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.preview == nil {
		return nil
	}
	p := *w.preview
	return &p
}

// Err returns the failure that abandoned the workflow, if any
func (w *Workflow) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		return nil
	}
	return w.err
}

// Apply writes the previewed content to state. It is the only point where a fix
// mutates content; concurrent applies from different workflows are last-write-wins.
func (w *Workflow) Apply(state ContentState) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != Previewing || w.preview == nil {
		return ErrInvalidTransition
	}
	state.SetContent(w.preview.After)
	w.enter(Applied)

	metrics.FixWorkflowsTotal.WithLabelValues("applied").Inc()
	w.record(stats.FixApplied)
	return nil
}

// Dismiss discards the preview without touching content
func (w *Workflow) Dismiss() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != Previewing {
		return ErrInvalidTransition
	}
	w.preview = nil
	w.enter(Abandoned)

	metrics.FixWorkflowsTotal.WithLabelValues("dismissed").Inc()
	w.record(stats.FixAbandoned)
	return nil
}

func (w *Workflow) advance(next State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.enter(next)
}

func (w *Workflow) enter(next State) {
	w.state = next
	w.trail = append(w.trail, next)
}

func (w *Workflow) showPreview(p *Preview) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.preview = p
	w.enter(Previewing)
}

func (w *Workflow) abandon(err *apperr.Error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
	w.preview = nil
	w.enter(Abandoned)
}

func (w *Workflow) record(event stats.Event) {
	if w.recorder != nil {
		w.recorder.Record(event)
	}
}

type workflowError struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
	Status  int         `json:"status,omitempty"`
	Detail  string      `json:"detail,omitempty"`
}

// MarshalJSON renders the workflow for API responses
func (w *Workflow) MarshalJSON() ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := struct {
		ID        string         `json:"id"`
		IssueID   string         `json:"issueId"`
		State     State          `json:"state"`
		Trail     []State        `json:"trail"`
		StartedAt time.Time      `json:"startedAt"`
		Preview   *Preview       `json:"preview,omitempty"`
		Error     *workflowError `json:"error,omitempty"`
	}{
		ID:        w.ID,
		IssueID:   w.IssueID,
		State:     w.state,
		Trail:     w.trail,
		StartedAt: w.StartedAt,
		Preview:   w.preview,
	}
	if w.err != nil {
		out.Error = &workflowError{
			Kind:    w.err.Kind,
			Message: apperr.UserMessage(w.err.Kind),
			Status:  w.err.Status,
			Detail:  w.err.Detail,
		}
	}
	return json.Marshal(out)
}
