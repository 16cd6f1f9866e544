// Package shelfsync reconciles reading-state records that originate
// from two data sources which may diverge, such as a local cache and a
// remote library. It detects where the two record sets disagree,
// classifies how serious each disagreement is, proposes and optionally
// auto-applies resolutions, and runs the whole reconciliation as a
// cancellable job with progress reporting and bounded history.
package shelfsync

import (
	"context"
	"fmt"
	"time"
)

// Storage is the persistence collaborator. Executed batches are
// written under a key convention of the form
// <platform>_<dataType>_batch_<timestamp>; see BatchKey.
type Storage interface {
	// Get retrieves the value stored under key, or a nil slice when
	// the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set persists value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Close releases the store's resources.
	Close() error
}

// BatchKey builds the storage key for one executed batch.
func BatchKey(platform, dataType string, ts time.Time) string {
	return fmt.Sprintf("%s_%s_batch_%d", platform, dataType, ts.UnixMilli())
}

// ReportKey builds the storage key for a conflict report audit blob.
func ReportKey(platform string, ts time.Time) string {
	return fmt.Sprintf("%s_conflict_report_%d", platform, ts.UnixMilli())
}

// Status is the lifecycle state of a sync job.
type Status string

const (
	StatusInitialized     Status = "INITIALIZED"
	StatusRunning         Status = "RUNNING"
	StatusCompleted       Status = "COMPLETED"
	StatusPartialSuccess  Status = "PARTIAL_SUCCESS"
	StatusDryRunCompleted Status = "DRY_RUN_COMPLETED"
	StatusCancelled       Status = "CANCELLED"

	// StatusFailed is reserved for validation-time rejection before a
	// job object exists. Once a job has been created it can only end
	// at PARTIAL_SUCCESS, never FAILED.
	StatusFailed Status = "FAILED"
)

// Terminal reports whether a job in this status will never change
// again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPartialSuccess, StatusDryRunCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// SyncRequest describes one requested reconciliation. All fields are
// required; the request is immutable once accepted.
type SyncRequest struct {
	// SyncID is the caller-supplied unique job identifier.
	SyncID string `json:"syncId" validate:"required"`

	// SourceType names the platform the records come from.
	SourceType string `json:"sourceType" validate:"required"`

	// TargetType names the platform the records are written to.
	TargetType string `json:"targetType" validate:"required"`

	// Scope lists the data segments covered by the job.
	Scope []string `json:"scope" validate:"required,min=1,dive,required"`

	// Strategy names the requested resolution approach.
	Strategy string `json:"strategy" validate:"required"`
}

// SyncJob is the coordinator-owned bookkeeping for one reconciliation.
// It is created by InitializeSync, mutated only by the coordinator,
// and moved from the active set into the bounded history exactly once,
// upon reaching a terminal status.
type SyncJob struct {
	SyncID            string        `json:"syncId"`
	Request           SyncRequest   `json:"request"`
	Status            Status        `json:"status"`
	Progress          int           `json:"progress"` // 0-100
	CreatedAt         time.Time     `json:"createdAt"`
	StartedAt         time.Time     `json:"startedAt,omitzero"`
	CompletedAt       time.Time     `json:"completedAt,omitzero"`
	EstimatedDuration time.Duration `json:"estimatedDurationMs"`
	ProcessedRecords  int           `json:"processedRecords"`
	Errors            []string      `json:"errors,omitempty"`

	// Reason is the human-readable explanation required for any
	// terminal status other than COMPLETED / DRY_RUN_COMPLETED.
	Reason string `json:"reason,omitempty"`
}

// clone returns a copy safe to hand to callers.
func (j *SyncJob) clone() *SyncJob {
	cp := *j
	cp.Errors = append([]string(nil), j.Errors...)
	return &cp
}

// Progress limits and duration-estimate constants.
const (
	estimateBase     = 10 * time.Second
	estimatePerScope = 5 * time.Second
	estimateCeiling  = 300 * time.Second
)

// estimateDuration models how long a job over |scope| segments takes.
func estimateDuration(scopeLen int) time.Duration {
	d := estimateBase + time.Duration(scopeLen)*estimatePerScope
	if d > estimateCeiling {
		return estimateCeiling
	}
	return d
}

// JobProgress is the read-only progress view of one job.
type JobProgress struct {
	SyncID   string        `json:"syncId"`
	Status   Status        `json:"status"`
	Progress int           `json:"progress"`
	ETA      time.Duration `json:"eta"`
}

// HistoryFilter narrows GetSyncHistory results.
type HistoryFilter struct {
	// Status keeps only jobs with this terminal status when set.
	Status Status

	// Limit caps the number of returned jobs; 0 means no extra cap
	// beyond the history bound itself.
	Limit int
}
