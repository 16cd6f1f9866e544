// Package errors provides the tagged error type used across the sync kit.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error into the kit's error taxonomy. Every error
// produced by the kit carries exactly one Kind so callers can handle
// the taxonomy exhaustively instead of probing ad hoc fields.
type Kind string

const (
	// KindValidation marks a malformed or incomplete SyncRequest.
	// Rejected before any job object exists; no side effects.
	KindValidation Kind = "VALIDATION"

	// KindDuplicateJob marks an initialize call whose syncId already
	// has an active job. The existing job is untouched.
	KindDuplicateJob Kind = "DUPLICATE_JOB"

	// KindConflictDetection marks a malformed record pair. The
	// offending item's conflict check is skipped and logged; detection
	// continues for the rest of the batch.
	KindConflictDetection Kind = "CONFLICT_DETECTION"

	// KindBatchExecution marks a validator or storage failure mid-batch.
	// Remaining batches for that job are aborted and the job settles at
	// PARTIAL_SUCCESS.
	KindBatchExecution Kind = "BATCH_EXECUTION"

	// KindUnknownOperation marks an operation against a nonexistent
	// job id. Surfaced to the caller; no state mutated.
	KindUnknownOperation Kind = "UNKNOWN_OPERATION"

	// KindStorage marks a failure inside the storage collaborator.
	KindStorage Kind = "STORAGE"
)

// Operation identifies the coordinator or engine operation during which
// an error occurred.
type Operation string

const (
	OpInitialize Operation = "initialize_sync"
	OpExecute    Operation = "execute_sync"
	OpCancel     Operation = "cancel_sync"
	OpStatus     Operation = "sync_status"
	OpDetect     Operation = "detect_conflict"
	OpResolve    Operation = "resolve_conflict"
	OpStore      Operation = "store"
	OpValidate   Operation = "validate"
	OpEmit       Operation = "emit_event"
	OpClose      Operation = "close"
)

// SyncError is the error type returned by the kit. It replaces the
// pattern of decorating a generic error with post hoc code/details
// fields: the kind, operation, and details travel as typed members.
type SyncError struct {
	// Op is the operation during which the error occurred.
	Op Operation

	// Component that generated the error (e.g. "coordinator", "storage").
	Component string

	// Kind classifies the error within the taxonomy.
	Kind Kind

	// Err is the underlying cause.
	Err error

	// Retryable reports whether the operation may be retried.
	Retryable bool

	// Details carries additional structured context (syncId, batch
	// index, offending field, ...).
	Details map[string]any
}

func (e *SyncError) Error() string {
	var msg string
	if e.Component != "" {
		msg = fmt.Sprintf("%s failed in %s component", e.Op, e.Component)
	} else {
		msg = fmt.Sprintf("%s failed", e.Op)
	}

	if e.Kind != "" {
		msg += fmt.Sprintf(" [%s]", e.Kind)
	}

	return msg + fmt.Sprintf(": %v", e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// WithDetail returns e after recording a key/value pair in Details.
func (e *SyncError) WithDetail(key string, value any) *SyncError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// NewValidationError creates a SyncError for a rejected SyncRequest.
func NewValidationError(op Operation, cause error) *SyncError {
	return &SyncError{
		Kind:      KindValidation,
		Op:        op,
		Component: "coordinator",
		Err:       cause,
		Retryable: false,
	}
}

// NewDuplicateJobError creates a SyncError for an already-active syncId.
func NewDuplicateJobError(op Operation, syncID string) *SyncError {
	e := &SyncError{
		Kind:      KindDuplicateJob,
		Op:        op,
		Component: "coordinator",
		Err:       fmt.Errorf("sync job %q is already active", syncID),
		Retryable: false,
	}
	return e.WithDetail("sync_id", syncID)
}

// NewConflictDetectionError creates a SyncError for a malformed record pair.
func NewConflictDetectionError(op Operation, cause error) *SyncError {
	return &SyncError{
		Kind:      KindConflictDetection,
		Op:        op,
		Component: "detector",
		Err:       cause,
		Retryable: false,
	}
}

// NewBatchExecutionError creates a SyncError for a mid-batch failure.
func NewBatchExecutionError(op Operation, batch int, cause error) *SyncError {
	e := &SyncError{
		Kind:      KindBatchExecution,
		Op:        op,
		Component: "coordinator",
		Err:       cause,
		Retryable: true,
	}
	return e.WithDetail("batch", batch)
}

// NewUnknownOperationError creates a SyncError for an unknown job id.
func NewUnknownOperationError(op Operation, syncID string) *SyncError {
	e := &SyncError{
		Kind:      KindUnknownOperation,
		Op:        op,
		Component: "coordinator",
		Err:       fmt.Errorf("no active sync job with id %q", syncID),
		Retryable: false,
	}
	return e.WithDetail("sync_id", syncID)
}

// NewStorageError creates a SyncError for a storage collaborator failure.
func NewStorageError(op Operation, cause error) *SyncError {
	return &SyncError{
		Kind:      KindStorage,
		Op:        op,
		Component: "storage",
		Err:       cause,
		Retryable: true,
	}
}

// New creates a bare SyncError without a kind.
func New(op Operation, err error) *SyncError {
	return &SyncError{
		Op:  op,
		Err: err,
	}
}

// NewWithComponent creates a SyncError with component information.
func NewWithComponent(op Operation, component string, err error) *SyncError {
	return &SyncError{
		Op:        op,
		Component: component,
		Err:       err,
	}
}

// IsRetryable checks if an error is a retryable SyncError.
func IsRetryable(err error) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Retryable
	}
	return false
}

// KindOf returns the Kind of err, or "" if err is not a SyncError.
func KindOf(err error) Kind {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Kind
	}
	return ""
}

// IsKind reports whether err is a SyncError of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsValidation reports whether err is a request validation error.
func IsValidation(err error) bool { return IsKind(err, KindValidation) }

// IsDuplicateJob reports whether err is a duplicate-job error.
func IsDuplicateJob(err error) bool { return IsKind(err, KindDuplicateJob) }

// IsUnknownOperation reports whether err targets a nonexistent job.
func IsUnknownOperation(err error) bool { return IsKind(err, KindUnknownOperation) }
