package shelfsync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/shelfsync/shelfsync/conflict"
	syncErrors "github.com/shelfsync/shelfsync/errors"
	"github.com/shelfsync/shelfsync/eventbus"
	"github.com/shelfsync/shelfsync/logging"
	"github.com/shelfsync/shelfsync/record"
	"github.com/shelfsync/shelfsync/resolve"
	"github.com/shelfsync/shelfsync/stats"
)

// ExecuteOptions configures one ExecuteSync run.
type ExecuteOptions struct {
	// DryRun simulates the sync by counting records without touching
	// storage. The job ends at DRY_RUN_COMPLETED.
	DryRun bool

	// DataType names the batch payload in storage keys. Defaults to
	// "books".
	DataType string
}

// SyncResult reports what one ExecuteSync run did.
type SyncResult struct {
	SyncID           string               `json:"syncId"`
	Status           Status               `json:"status"`
	TotalRecords     int                  `json:"totalRecords"`
	ProcessedRecords int                  `json:"processedRecords"`
	Report           *conflict.Report     `json:"report,omitempty"`
	Resolved         []resolve.Resolution `json:"resolved,omitempty"`
	Unresolved       []conflict.Record    `json:"unresolved,omitempty"`
	Errors           []string             `json:"errors,omitempty"`
	Duration         time.Duration        `json:"duration"`
}

// Coordinator owns the sync job lifecycle: it validates requests,
// executes batches through the validator and storage collaborators,
// runs conflict detection and resolution per batch set, and keeps the
// active-jobs map and the bounded terminal-job history. All shared
// state is mutated only by the coordinator itself.
type Coordinator struct {
	storage   Storage
	validator record.Validator
	bus       *eventbus.Bus
	detector  *conflict.Detector
	engine    *resolve.Engine
	tracker   *stats.Tracker
	logger    *logging.Logger
	requestV  *validator.Validate
	options   coordinatorOptions

	mu        sync.RWMutex
	active    map[string]*SyncJob
	cancelled map[string]bool
	history   []*SyncJob
	closed    bool
}

// NewCoordinator wires a coordinator with its collaborators.
func NewCoordinator(storage Storage, recValidator record.Validator, bus *eventbus.Bus, opts ...Option) *Coordinator {
	options := defaultOptions()
	for _, opt := range opts {
		opt.apply(&options)
	}
	if options.tracker == nil {
		options.tracker = stats.NewTracker()
	}
	if options.logger == nil {
		options.logger = logging.Default()
	}

	return &Coordinator{
		storage:   storage,
		validator: recValidator,
		bus:       bus,
		detector:  conflict.NewDetector(options.thresholds),
		engine:    resolve.NewEngine(options.policy),
		tracker:   options.tracker,
		logger:    options.logger.WithComponent("coordinator"),
		requestV:  validator.New(),
		options:   options,
	}
}

// Stats returns a snapshot of the coordinator's counters.
func (c *Coordinator) Stats() stats.Snapshot {
	return c.tracker.Snapshot()
}

// InitializeSync validates the request and creates the job in the
// INITIALIZED state. A malformed request is rejected with a validation
// error and no job is created; a syncId that already has an active job
// is rejected with a duplicate error and the existing job is untouched.
func (c *Coordinator) InitializeSync(ctx context.Context, req SyncRequest) (*SyncJob, error) {
	if err := c.validateRequest(req); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, syncErrors.New(syncErrors.OpInitialize, fmt.Errorf("coordinator is closed"))
	}
	if c.active == nil {
		c.active = make(map[string]*SyncJob)
		c.cancelled = make(map[string]bool)
	}
	if _, exists := c.active[req.SyncID]; exists {
		return nil, syncErrors.NewDuplicateJobError(syncErrors.OpInitialize, req.SyncID)
	}

	job := &SyncJob{
		SyncID:            req.SyncID,
		Request:           req,
		Status:            StatusInitialized,
		CreatedAt:         c.options.clock(),
		EstimatedDuration: estimateDuration(len(req.Scope)),
	}
	c.active[req.SyncID] = job

	c.logger.InfoContext(ctx, "sync job initialized",
		slog.String("sync_id", req.SyncID),
		slog.String("source", req.SourceType),
		slog.String("target", req.TargetType),
		slog.Duration("estimated_duration", job.EstimatedDuration),
	)

	return job.clone(), nil
}

func (c *Coordinator) validateRequest(req SyncRequest) error {
	err := c.requestV.Struct(req)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return syncErrors.NewValidationError(syncErrors.OpInitialize, err)
	}

	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		missing = append(missing, fe.Field())
	}
	return syncErrors.NewValidationError(syncErrors.OpInitialize,
		fmt.Errorf("invalid sync request: fields %s", strings.Join(missing, ", ")))
}

// ExecuteSync runs an initialized job over the given source and target
// record sets. Batches execute strictly in order; a batch failure
// aborts the remaining batches and settles the job at PARTIAL_SUCCESS
// with the error recorded. Cancellation is honored between batches.
func (c *Coordinator) ExecuteSync(ctx context.Context, syncID string, source, target []record.BookRecord, opts ExecuteOptions) (*SyncResult, error) {
	start := time.Now()

	c.mu.Lock()
	job, ok := c.active[syncID]
	if !ok {
		c.mu.Unlock()
		return nil, syncErrors.NewUnknownOperationError(syncErrors.OpExecute, syncID)
	}
	if job.Status != StatusInitialized {
		c.mu.Unlock()
		return nil, syncErrors.New(syncErrors.OpExecute,
			fmt.Errorf("sync job %q is %s, expected %s", syncID, job.Status, StatusInitialized))
	}
	job.Status = StatusRunning
	job.StartedAt = c.options.clock()
	c.mu.Unlock()

	if opts.DataType == "" {
		opts.DataType = "books"
	}

	// The configured sync timeout bounds every suspension point:
	// validator calls, storage writes, and event emissions all observe
	// this deadline through ctx.
	ctx, cancel := context.WithTimeout(ctx, c.options.syncTimeout)
	defer cancel()

	result := &SyncResult{
		SyncID:       syncID,
		TotalRecords: len(source),
	}
	defer func() {
		result.Duration = time.Since(start)
	}()

	log := c.logger.WithSyncID(syncID)

	if opts.DryRun {
		return c.finishDryRun(ctx, job, result, log), nil
	}

	result.Report = &conflict.Report{}
	c.runBatches(ctx, job, source, target, opts, result, log)
	return result, nil
}

func (c *Coordinator) finishDryRun(ctx context.Context, job *SyncJob, result *SyncResult, log *logging.Logger) *SyncResult {
	c.mu.Lock()
	if c.cancelled[job.SyncID] {
		delete(c.cancelled, job.SyncID)
		c.mu.Unlock()
		result.Status = StatusCancelled
		return result
	}
	job.Status = StatusDryRunCompleted
	job.Progress = 100
	job.ProcessedRecords = result.TotalRecords
	c.finalizeLocked(job)
	c.mu.Unlock()

	result.Status = StatusDryRunCompleted
	result.ProcessedRecords = result.TotalRecords

	log.InfoContext(ctx, "dry run completed",
		slog.Int("records", result.TotalRecords),
	)
	return result
}

// reconcileBatch detects conflicts between one batch and the target
// set, auto-resolves what policy allows, and returns the batch with
// automatic resolutions applied. Detection happens inside the batch so
// that a cancelled or aborted job never classifies records it did not
// reach.
func (c *Coordinator) reconcileBatch(ctx context.Context, job *SyncJob, batch, target []record.BookRecord, result *SyncResult, log *logging.Logger) []record.BookRecord {
	for range batch {
		c.tracker.RecordDetection()
	}

	report, skipped := c.detector.BuildReport(batch, target)
	for _, err := range skipped {
		// Malformed pairs are skipped, not fatal: detection continues
		// for the rest of the batch.
		log.LogError(ctx, err, "conflict check skipped for malformed record pair")
	}
	c.tracker.RecordReport(report)
	result.Report.Merge(report)

	if report.Empty() {
		return batch
	}

	outcome, err := c.engine.AutoResolve(report)
	if err != nil {
		log.LogError(ctx, err, "automatic resolution failed, all conflicts kept unresolved")
		return batch
	}
	result.Resolved = append(result.Resolved, outcome.Resolved...)
	result.Unresolved = append(result.Unresolved, outcome.Unresolved...)
	c.tracker.RecordAutoResolved(len(outcome.Resolved))

	c.bus.Emit(ctx, eventbus.EventConflictDetected, eventbus.ConflictDetectedPayload{
		SyncID:        job.SyncID,
		ConflictCount: report.TotalConflicts(),
		AutoResolved:  len(outcome.Resolved),
	})

	log.InfoContext(ctx, "conflicts detected",
		slog.Int("conflicts", report.TotalConflicts()),
		slog.Int("auto_resolved", len(outcome.Resolved)),
		slog.Int("unresolved", len(outcome.Unresolved)),
		slog.String("overall_severity", report.OverallSeverity.String()),
		slog.Duration("estimated_resolution_time", stats.EstimateResolutionTime(report)),
	)

	return applyResolutions(batch, outcome.Resolved)
}

// applyResolutions rewrites the outgoing records with the values the
// auto-applied strategies decided on.
func applyResolutions(records []record.BookRecord, resolved []resolve.Resolution) []record.BookRecord {
	if len(resolved) == 0 {
		return records
	}

	out := append([]record.BookRecord(nil), records...)
	index := make(map[string]int, len(out))
	for i, r := range out {
		index[r.ID] = i
	}

	for _, res := range resolved {
		i, ok := index[res.Conflict.ItemID]
		if !ok {
			continue
		}
		switch res.Applied.Kind {
		case resolve.KindUseHigherValue, resolve.KindUseAverage:
			if v, ok := res.Applied.ResultingValue.(int); ok {
				out[i].Progress = v
			}
		case resolve.KindUseLongerTitle:
			if v, ok := res.Applied.ResultingValue.(string); ok {
				out[i].Title = v
			}
		case resolve.KindUseLatestTimestamp:
			if v, ok := res.Applied.ResultingValue.(time.Time); ok {
				out[i].LastUpdated = v
			}
		}
	}
	return out
}

func (c *Coordinator) runBatches(ctx context.Context, job *SyncJob, source, target []record.BookRecord, opts ExecuteOptions, result *SyncResult, log *logging.Logger) {
	batchSize := c.options.batchSize
	total := len(source)
	batchCount := (total + batchSize - 1) / batchSize

	for i := 0; i < total; i += batchSize {
		batchNum := i/batchSize + 1

		// Cooperative cancellation: the flag is consulted at each
		// batch boundary, never mid-batch.
		if c.consumeCancelled(job.SyncID) {
			result.Status = StatusCancelled
			log.InfoContext(ctx, "sync stopped at batch boundary after cancellation",
				slog.Int("batch", batchNum),
			)
			return
		}

		end := i + batchSize
		if end > total {
			end = total
		}
		batch := c.reconcileBatch(ctx, job, source[i:end], target, result, log)

		if err := c.executeBatch(ctx, job, batch, batchNum, opts, log); err != nil {
			c.settlePartial(ctx, job, result, err, log)
			return
		}

		c.mu.Lock()
		job.ProcessedRecords += len(batch)
		if batchCount > 0 {
			job.Progress = batchNum * 100 / batchCount
		}
		result.ProcessedRecords = job.ProcessedRecords
		c.mu.Unlock()
	}

	c.finishCompleted(ctx, job, result, log)
}

func (c *Coordinator) executeBatch(ctx context.Context, job *SyncJob, batch []record.BookRecord, batchNum int, opts ExecuteOptions, log *logging.Logger) error {
	for _, rec := range batch {
		vres, err := c.validator.Validate(ctx, rec)
		if err != nil {
			return syncErrors.NewBatchExecutionError(syncErrors.OpValidate, batchNum,
				fmt.Errorf("validator failed on record %s: %w", rec.ID, err))
		}
		if !vres.IsValid {
			// Invalid items are logged as warnings, not dropped.
			log.WarnContext(ctx, "record failed validation",
				slog.String("record_id", rec.ID),
				slog.Any("issues", vres.Issues),
			)
		}
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		return syncErrors.NewBatchExecutionError(syncErrors.OpStore, batchNum,
			fmt.Errorf("batch not serializable: %w", err))
	}

	key := BatchKey(job.Request.TargetType, opts.DataType, c.options.clock())
	if err := c.storage.Set(ctx, key, payload); err != nil {
		return syncErrors.NewBatchExecutionError(syncErrors.OpStore, batchNum,
			fmt.Errorf("storage write: %w", err))
	}

	c.bus.Emit(ctx, eventbus.EventBatchCommitted, eventbus.BatchCommittedPayload{
		SyncID:     job.SyncID,
		Batch:      batchNum,
		StorageKey: key,
		Records:    len(batch),
	})

	log.InfoContext(ctx, "batch committed",
		slog.Int("batch", batchNum),
		slog.Int("records", len(batch)),
		slog.String("storage_key", key),
	)
	return nil
}

func (c *Coordinator) settlePartial(ctx context.Context, job *SyncJob, result *SyncResult, batchErr error, log *logging.Logger) {
	log.LogError(ctx, batchErr, "batch failed, aborting remaining batches")

	c.mu.Lock()
	if c.cancelled[job.SyncID] {
		// CancelSync already finalized the job; the cancellation wins
		// over the batch failure.
		delete(c.cancelled, job.SyncID)
		c.mu.Unlock()
		result.Status = StatusCancelled
		result.ProcessedRecords = job.ProcessedRecords
		return
	}
	job.Status = StatusPartialSuccess
	job.Errors = append(job.Errors, batchErr.Error())
	job.Reason = fmt.Sprintf("stopped after %d of %d records: %v", job.ProcessedRecords, result.TotalRecords, batchErr)
	c.finalizeLocked(job)
	c.mu.Unlock()

	result.Status = StatusPartialSuccess
	result.ProcessedRecords = job.ProcessedRecords
	result.Errors = append(result.Errors, batchErr.Error())

	c.tracker.RecordJobOutcome(false, false, true)
}

func (c *Coordinator) finishCompleted(ctx context.Context, job *SyncJob, result *SyncResult, log *logging.Logger) {
	// Persist the conflict report for audit before declaring success.
	if result.Report != nil && !result.Report.Empty() {
		if blob, err := json.Marshal(result.Report); err == nil {
			key := ReportKey(job.Request.TargetType, c.options.clock())
			if err := c.storage.Set(ctx, key, blob); err != nil {
				log.LogError(ctx, syncErrors.NewStorageError(syncErrors.OpStore, err),
					"conflict report audit write failed")
			}
		}
	}

	completedAt := c.options.clock()

	c.mu.Lock()
	if c.cancelled[job.SyncID] {
		// Cancelled while the last batch was in flight; CancelSync
		// already finalized the job.
		delete(c.cancelled, job.SyncID)
		c.mu.Unlock()
		result.Status = StatusCancelled
		return
	}
	job.Status = StatusCompleted
	job.Progress = 100
	c.finalizeLocked(job)
	c.mu.Unlock()

	result.Status = StatusCompleted

	c.bus.Emit(ctx, eventbus.EventJobCompleted, eventbus.JobCompletedPayload{
		SyncID:           job.SyncID,
		ProcessedRecords: job.ProcessedRecords,
		CompletedAt:      completedAt,
	})
	c.tracker.RecordJobOutcome(true, false, false)

	log.InfoContext(ctx, "sync completed",
		slog.Int("processed_records", job.ProcessedRecords),
	)
}

// CancelSync cancels an active job. The bookkeeping flips immediately;
// an in-flight batch finishes, and the batch loop stops at the next
// boundary. Exactly one cancellation event is emitted.
func (c *Coordinator) CancelSync(ctx context.Context, syncID, reason string) error {
	if reason == "" {
		reason = "cancelled by caller"
	}

	c.mu.Lock()
	job, ok := c.active[syncID]
	if !ok {
		c.mu.Unlock()
		return syncErrors.NewUnknownOperationError(syncErrors.OpCancel, syncID)
	}

	cancelledAt := c.options.clock()
	if job.Status == StatusRunning {
		// The batch loop consumes this flag at its next boundary.
		c.cancelled[syncID] = true
	}
	job.Status = StatusCancelled
	job.Reason = reason
	c.finalizeLocked(job)
	c.mu.Unlock()

	c.bus.Emit(ctx, eventbus.EventJobCancelled, eventbus.JobCancelledPayload{
		SyncID:      syncID,
		CancelledAt: cancelledAt,
		Reason:      reason,
	})
	c.tracker.RecordJobOutcome(false, true, false)

	c.logger.InfoContext(ctx, "sync job cancelled",
		slog.String("sync_id", syncID),
		slog.String("reason", reason),
	)
	return nil
}

// GetSyncStatus returns a copy of the job's bookkeeping, whether the
// job is active or already in history.
func (c *Coordinator) GetSyncStatus(syncID string) (*SyncJob, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if job, ok := c.active[syncID]; ok {
		return job.clone(), nil
	}
	for _, job := range c.history {
		if job.SyncID == syncID {
			return job.clone(), nil
		}
	}
	return nil, syncErrors.NewUnknownOperationError(syncErrors.OpStatus, syncID)
}

// GetSyncProgress returns the job's progress and remaining-time
// estimate: eta = max(estimatedDuration - elapsed, 0).
func (c *Coordinator) GetSyncProgress(syncID string) (JobProgress, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	job, ok := c.active[syncID]
	if !ok {
		for _, h := range c.history {
			if h.SyncID == syncID {
				return JobProgress{SyncID: syncID, Status: h.Status, Progress: h.Progress}, nil
			}
		}
		return JobProgress{}, syncErrors.NewUnknownOperationError(syncErrors.OpStatus, syncID)
	}

	since := job.StartedAt
	if since.IsZero() {
		since = job.CreatedAt
	}
	eta := job.EstimatedDuration - c.options.clock().Sub(since)
	if eta < 0 {
		eta = 0
	}

	return JobProgress{
		SyncID:   syncID,
		Status:   job.Status,
		Progress: job.Progress,
		ETA:      eta,
	}, nil
}

// GetSyncHistory returns terminal jobs, most recent first, optionally
// filtered by status.
func (c *Coordinator) GetSyncHistory(filter HistoryFilter) []SyncJob {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]SyncJob, 0, len(c.history))
	for i := len(c.history) - 1; i >= 0; i-- {
		job := c.history[i]
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		out = append(out, *job.clone())
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

// ActiveJobs returns the ids of jobs not yet terminal.
func (c *Coordinator) ActiveJobs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	return ids
}

// Close shuts down the coordinator and its storage collaborator.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if err := c.storage.Close(); err != nil {
		return syncErrors.NewWithComponent(syncErrors.OpClose, "storage", err)
	}
	return nil
}

func (c *Coordinator) consumeCancelled(syncID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cancelled[syncID] {
		return false
	}
	delete(c.cancelled, syncID)
	return true
}

// finalizeLocked moves a job from the active set into the bounded
// history. Caller holds c.mu. A job is moved exactly once.
func (c *Coordinator) finalizeLocked(job *SyncJob) {
	if _, ok := c.active[job.SyncID]; !ok {
		return
	}
	delete(c.active, job.SyncID)
	job.CompletedAt = c.options.clock()

	c.history = append(c.history, job)
	if len(c.history) > c.options.historyLimit {
		c.history = c.history[len(c.history)-c.options.historyLimit:]
	}
}
