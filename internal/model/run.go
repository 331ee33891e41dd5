package model

import "time"

// RunStatus is the lifecycle state of a DetectionRun.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// OutcomeStatus describes what happened to one page in a run.
type OutcomeStatus string

const (
	// OutcomeBaseline: first fingerprint for the page, nothing to compare.
	OutcomeBaseline OutcomeStatus = "baseline"
	// OutcomeUnchanged: content hash identical to the previous fingerprint.
	OutcomeUnchanged OutcomeStatus = "unchanged"
	// OutcomeNoChange: hash differed but the change was judged insignificant.
	OutcomeNoChange OutcomeStatus = "no_change"
	OutcomeChanged  OutcomeStatus = "changed"
	OutcomeBlocked  OutcomeStatus = "blocked"
	OutcomeError    OutcomeStatus = "error"
)

// PageOutcome is the per-page entry appended to a DetectionRun.
type PageOutcome struct {
	PageID         string           `json:"pageId"`
	URL            string           `json:"url"`
	Status         OutcomeStatus    `json:"status"`
	Error          string           `json:"error,omitempty"`
	ChangeRecordID string           `json:"changeRecordId,omitempty"`
	Fingerprint    *PageFingerprint `json:"fingerprint,omitempty"`
}

// DetectionRun aggregates one sweep over a set of pages.
type DetectionRun struct {
	ID           string        `json:"id"`
	Status       RunStatus     `json:"status"`
	StartedAt    time.Time     `json:"startedAt"`
	CompletedAt  *time.Time    `json:"completedAt,omitempty"`
	PagesChecked int           `json:"pagesChecked"`
	ChangesFound int           `json:"changesFound"`
	Errors       int           `json:"errors"`
	Outcomes     []PageOutcome `json:"outcomes"`
}

// NewDetectionRun starts a run in the running state.
func NewDetectionRun(id string, now time.Time) *DetectionRun {
	return &DetectionRun{ID: id, Status: RunRunning, StartedAt: now.UTC()}
}

// Record appends a page outcome and updates the counters. Blocked pages are
// not counted as checked.
func (r *DetectionRun) Record(o PageOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case OutcomeBlocked:
		return
	case OutcomeError:
		r.Errors++
	case OutcomeChanged:
		r.ChangesFound++
	}
	r.PagesChecked++
}

// Finish closes the run. A run where every checked page errored is failed,
// one with some errors is partial, anything else is completed.
func (r *DetectionRun) Finish(now time.Time) {
	t := now.UTC()
	r.CompletedAt = &t
	switch {
	case r.Errors > 0 && r.Errors == r.PagesChecked:
		r.Status = RunFailed
	case r.Errors > 0:
		r.Status = RunPartial
	default:
		r.Status = RunCompleted
	}
}
