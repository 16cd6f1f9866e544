// Package record defines the reading-state record model shared by the
// conflict detector and the sync job coordinator.
package record

import (
	"fmt"
	"time"
)

// BookRecord is one reading-state entry: book identity, reading
// progress, title, and the time the entry was last updated.
type BookRecord struct {
	ID          string    `json:"id" validate:"required"`
	Title       string    `json:"title" validate:"required"`
	Progress    int       `json:"progress" validate:"gte=0,lte=100"`
	LastUpdated time.Time `json:"lastUpdated" validate:"required"`
}

// Validate checks the record's structural invariants without the
// external validator collaborator. Used by the detector to recognise
// malformed record pairs.
func (r BookRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record has no id")
	}
	if r.Progress < 0 || r.Progress > 100 {
		return fmt.Errorf("record %s: progress %d outside [0,100]", r.ID, r.Progress)
	}
	return nil
}

// Field names compared during reconciliation.
const (
	FieldTitle       = "title"
	FieldProgress    = "progress"
	FieldLastUpdated = "lastUpdated"
)

// ChangeKind describes how a field differs between source and target.
type ChangeKind string

const (
	ChangeModified ChangeKind = "modified"
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
)

// FieldChange is one differing field between a source and a target
// record sharing the same id.
type FieldChange struct {
	Field       string     `json:"field"`
	SourceValue any        `json:"sourceValue"`
	TargetValue any        `json:"targetValue"`
	Kind        ChangeKind `json:"changeKind"`
}

// Diff returns one FieldChange per field that differs between source
// and target. Both records are expected to share the same id; the
// caller checks that before diffing.
func Diff(source, target BookRecord) []FieldChange {
	var changes []FieldChange

	if source.Title != target.Title {
		changes = append(changes, FieldChange{
			Field:       FieldTitle,
			SourceValue: source.Title,
			TargetValue: target.Title,
			Kind:        ChangeModified,
		})
	}
	if source.Progress != target.Progress {
		changes = append(changes, FieldChange{
			Field:       FieldProgress,
			SourceValue: source.Progress,
			TargetValue: target.Progress,
			Kind:        ChangeModified,
		})
	}
	if !source.LastUpdated.Equal(target.LastUpdated) {
		changes = append(changes, FieldChange{
			Field:       FieldLastUpdated,
			SourceValue: source.LastUpdated,
			TargetValue: target.LastUpdated,
			Kind:        ChangeModified,
		})
	}

	return changes
}
