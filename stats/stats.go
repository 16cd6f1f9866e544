// Package stats accumulates operational counters for conflict
// detection and resolution. The tracker is a pure observer: nothing it
// records feeds back into detection or resolution decisions.
package stats

import (
	"sync"
	"time"

	"github.com/shelfsync/shelfsync/conflict"
)

// baseResolutionTime is the modeled cost of resolving one conflict.
const baseResolutionTime = 500 * time.Millisecond

// manualReviewScale inflates the estimate when conflicts need a person.
const manualReviewScale = 2

// Snapshot is a read-only copy of the tracker's counters.
type Snapshot struct {
	Detections        uint64                    `json:"detections"`
	ConflictsFound    uint64                    `json:"conflictsFound"`
	ConflictsResolved uint64                    `json:"conflictsResolved"`
	ByType            map[conflict.Type]uint64  `json:"byType"`
	JobsCompleted     uint64                    `json:"jobsCompleted"`
	JobsCancelled     uint64                    `json:"jobsCancelled"`
	JobsPartial       uint64                    `json:"jobsPartial"`
}

// Tracker maintains running counters. Safe for concurrent use.
type Tracker struct {
	mu                sync.RWMutex
	detections        uint64
	conflictsFound    uint64
	conflictsResolved uint64
	byType            map[conflict.Type]uint64
	jobsCompleted     uint64
	jobsCancelled     uint64
	jobsPartial       uint64
}

// NewTracker creates an empty statistics tracker.
func NewTracker() *Tracker {
	return &Tracker{
		byType: make(map[conflict.Type]uint64),
	}
}

// RecordDetection counts one detection pass over a record pair.
func (t *Tracker) RecordDetection() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.detections++
}

// RecordConflict counts one found conflict by type.
func (t *Tracker) RecordConflict(typ conflict.Type) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conflictsFound++
	t.byType[typ]++
}

// RecordReport counts every conflict in a detection report.
func (t *Tracker) RecordReport(report *conflict.Report) {
	if report == nil {
		return
	}
	for _, item := range report.Items {
		for _, c := range item.Conflicts {
			t.RecordConflict(c.Type)
		}
	}
}

// RecordAutoResolved counts conflicts settled without a human.
func (t *Tracker) RecordAutoResolved(n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conflictsResolved += uint64(n)
}

// RecordJobOutcome counts one terminal job by its end state.
func (t *Tracker) RecordJobOutcome(completed, cancelled, partial bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case completed:
		t.jobsCompleted++
	case cancelled:
		t.jobsCancelled++
	case partial:
		t.jobsPartial++
	}
}

// Snapshot returns a copy of the current counters.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	byType := make(map[conflict.Type]uint64, len(t.byType))
	for k, v := range t.byType {
		byType[k] = v
	}

	return Snapshot{
		Detections:        t.detections,
		ConflictsFound:    t.conflictsFound,
		ConflictsResolved: t.conflictsResolved,
		ByType:            byType,
		JobsCompleted:     t.jobsCompleted,
		JobsCancelled:     t.jobsCancelled,
		JobsPartial:       t.jobsPartial,
	}
}

// EstimateResolutionTime models how long resolving a report's
// conflicts will take: a fixed cost per conflict, scaled up when any
// conflict cannot be resolved automatically.
func EstimateResolutionTime(report *conflict.Report) time.Duration {
	if report == nil {
		return 0
	}

	base := time.Duration(report.TotalConflicts()) * baseResolutionTime

	needsHuman := false
	for _, item := range report.Items {
		for _, c := range item.Conflicts {
			if !c.AutoResolvable {
				needsHuman = true
			}
		}
	}
	if needsHuman {
		return base * manualReviewScale
	}
	return base
}
