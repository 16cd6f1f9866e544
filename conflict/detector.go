package conflict

import (
	"fmt"
	"time"

	syncErrors "github.com/shelfsync/shelfsync/errors"
	"github.com/shelfsync/shelfsync/record"
)

// Thresholds holds the named boundaries the detector classifies with.
// They are configuration, not literals, so deployments can tune them.
type Thresholds struct {
	// Progress is the minimum absolute progress difference that
	// constitutes a conflict.
	Progress int `json:"progress" yaml:"progress"`

	// ProgressMedium, ProgressHigh, and ProgressCritical are the
	// severity tier boundaries on the absolute progress difference.
	ProgressMedium   int `json:"progress_medium" yaml:"progress_medium"`
	ProgressHigh     int `json:"progress_high" yaml:"progress_high"`
	ProgressCritical int `json:"progress_critical" yaml:"progress_critical"`

	// TitleSimilarity is the similarity below which differing titles
	// conflict.
	TitleSimilarity float64 `json:"title_similarity" yaml:"title_similarity"`

	// TitleHighSeverity is the similarity below which a title conflict
	// is HIGH rather than MEDIUM.
	TitleHighSeverity float64 `json:"title_high_severity" yaml:"title_high_severity"`

	// TitleAutoResolve is the similarity above which a title conflict
	// may be resolved automatically.
	TitleAutoResolve float64 `json:"title_auto_resolve" yaml:"title_auto_resolve"`

	// TimestampWindow is the update-event window. Two timestamps
	// further apart than this cannot be confidently ordered as the
	// same update event and therefore conflict.
	TimestampWindow time.Duration `json:"timestamp_window" yaml:"timestamp_window"`
}

// DefaultThresholds returns the stock classification boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Progress:          15,
		ProgressMedium:    30,
		ProgressHigh:      50,
		ProgressCritical:  70,
		TitleSimilarity:   0.8,
		TitleHighSeverity: 0.5,
		TitleAutoResolve:  0.6,
		TimestampWindow:   60 * time.Second,
	}
}

// Detector compares source and target field values and emits conflict
// records. It holds no mutable state and performs no I/O.
type Detector struct {
	thresholds Thresholds
}

// NewDetector creates a detector with the given thresholds. Zero-value
// thresholds fall back to the defaults.
func NewDetector(t Thresholds) *Detector {
	def := DefaultThresholds()
	if t.Progress <= 0 {
		t.Progress = def.Progress
	}
	if t.ProgressMedium <= 0 {
		t.ProgressMedium = def.ProgressMedium
	}
	if t.ProgressHigh <= 0 {
		t.ProgressHigh = def.ProgressHigh
	}
	if t.ProgressCritical <= 0 {
		t.ProgressCritical = def.ProgressCritical
	}
	if t.TitleSimilarity <= 0 {
		t.TitleSimilarity = def.TitleSimilarity
	}
	if t.TitleHighSeverity <= 0 {
		t.TitleHighSeverity = def.TitleHighSeverity
	}
	if t.TitleAutoResolve <= 0 {
		t.TitleAutoResolve = def.TitleAutoResolve
	}
	if t.TimestampWindow <= 0 {
		t.TimestampWindow = def.TimestampWindow
	}
	return &Detector{thresholds: t}
}

// Thresholds returns the detector's configuration.
func (d *Detector) Thresholds() Thresholds {
	return d.thresholds
}

// Detect compares one field change between a source and target record
// and returns a conflict record, or nil when the disagreement is below
// the configured thresholds.
func (d *Detector) Detect(change record.FieldChange, source, target record.BookRecord) (*Record, error) {
	if err := source.Validate(); err != nil {
		return nil, syncErrors.NewConflictDetectionError(syncErrors.OpDetect, fmt.Errorf("source record: %w", err))
	}
	if err := target.Validate(); err != nil {
		return nil, syncErrors.NewConflictDetectionError(syncErrors.OpDetect, fmt.Errorf("target record: %w", err))
	}
	if source.ID != target.ID {
		return nil, syncErrors.NewConflictDetectionError(syncErrors.OpDetect,
			fmt.Errorf("record pair mismatch: source %s vs target %s", source.ID, target.ID))
	}

	switch change.Field {
	case record.FieldProgress:
		return d.detectProgress(source, target), nil
	case record.FieldTitle:
		return d.detectTitle(source, target), nil
	case record.FieldLastUpdated:
		return d.detectTimestamp(source, target), nil
	default:
		return d.detectGeneric(change, source), nil
	}
}

// DetectPair diffs two records sharing one id and returns either nil
// (no conflicts), a single per-field conflict, or one COMPOSITE record
// aggregating multiple field conflicts.
func (d *Detector) DetectPair(source, target record.BookRecord) (*Record, error) {
	changes := record.Diff(source, target)

	var found []Record
	for _, change := range changes {
		rec, err := d.Detect(change, source, target)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			found = append(found, *rec)
		}
	}

	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return &found[0], nil
	default:
		return d.compose(source.ID, found), nil
	}
}

// BuildReport pairs source and target record sets by id, detects
// conflicts for each pair, and assembles the per-execution report.
// Malformed pairs are skipped; their errors are returned alongside the
// report so the caller can log them and continue.
func (d *Detector) BuildReport(sources, targets []record.BookRecord) (*Report, []error) {
	targetByID := make(map[string]record.BookRecord, len(targets))
	for _, t := range targets {
		targetByID[t.ID] = t
	}

	report := &Report{
		AutoResolvable: true,
		GeneratedAt:    time.Now().UTC(),
	}
	var skipped []error

	for _, src := range sources {
		tgt, ok := targetByID[src.ID]
		if !ok {
			continue // item exists on one side only, nothing to reconcile
		}

		rec, err := d.DetectPair(src, tgt)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		if rec == nil {
			continue
		}

		report.Items = append(report.Items, ItemConflicts{
			ItemID:    src.ID,
			Conflicts: []Record{*rec},
		})
		report.OverallSeverity = MaxSeverity(report.OverallSeverity, rec.Severity)
		if !rec.AutoResolvable {
			report.AutoResolvable = false
		}
	}

	if report.Empty() {
		report.AutoResolvable = false
	}

	return report, skipped
}

func (d *Detector) detectProgress(source, target record.BookRecord) *Record {
	diff := source.Progress - target.Progress
	if diff < 0 {
		diff = -diff
	}
	if diff < d.thresholds.Progress {
		return nil
	}

	var severity Severity
	switch {
	case diff >= d.thresholds.ProgressCritical:
		severity = SeverityCritical
	case diff >= d.thresholds.ProgressHigh:
		severity = SeverityHigh
	case diff >= d.thresholds.ProgressMedium:
		severity = SeverityMedium
	default:
		severity = SeverityLow
	}

	return &Record{
		ID:             conflictID(source.ID, record.FieldProgress),
		ItemID:         source.ID,
		Type:           TypeProgress,
		Severity:       severity,
		Field:          record.FieldProgress,
		SourceValue:    source.Progress,
		TargetValue:    target.Progress,
		AutoResolvable: diff < d.thresholds.ProgressMedium,
	}
}

func (d *Detector) detectTitle(source, target record.BookRecord) *Record {
	if source.Title == target.Title {
		return nil
	}

	sim := Similarity(source.Title, target.Title)
	if sim >= d.thresholds.TitleSimilarity {
		return nil
	}

	severity := SeverityMedium
	if sim < d.thresholds.TitleHighSeverity {
		severity = SeverityHigh
	}

	return &Record{
		ID:             conflictID(source.ID, record.FieldTitle),
		ItemID:         source.ID,
		Type:           TypeTitle,
		Severity:       severity,
		Field:          record.FieldTitle,
		SourceValue:    source.Title,
		TargetValue:    target.Title,
		AutoResolvable: sim > d.thresholds.TitleAutoResolve,
	}
}

// detectTimestamp flags a conflict when the gap between the two update
// times exceeds the configured window: beyond it the two sides cannot
// be confidently ordered as the same update event.
func (d *Detector) detectTimestamp(source, target record.BookRecord) *Record {
	gap := source.LastUpdated.Sub(target.LastUpdated)
	if gap < 0 {
		gap = -gap
	}
	if gap <= d.thresholds.TimestampWindow {
		return nil
	}

	return &Record{
		ID:             conflictID(source.ID, record.FieldLastUpdated),
		ItemID:         source.ID,
		Type:           TypeTimestamp,
		Severity:       SeverityMedium,
		Field:          record.FieldLastUpdated,
		SourceValue:    source.LastUpdated,
		TargetValue:    target.LastUpdated,
		AutoResolvable: true,
	}
}

func (d *Detector) detectGeneric(change record.FieldChange, source record.BookRecord) *Record {
	return &Record{
		ID:             conflictID(source.ID, change.Field),
		ItemID:         source.ID,
		Type:           TypeGeneric,
		Severity:       SeverityLow,
		Field:          change.Field,
		SourceValue:    change.SourceValue,
		TargetValue:    change.TargetValue,
		AutoResolvable: false,
	}
}

func (d *Detector) compose(itemID string, subs []Record) *Record {
	severity := SeverityLow
	autoResolvable := true
	for _, sub := range subs {
		severity = MaxSeverity(severity, sub.Severity)
		autoResolvable = autoResolvable && sub.AutoResolvable
	}

	return &Record{
		ID:             conflictID(itemID, "composite"),
		ItemID:         itemID,
		Type:           TypeComposite,
		Severity:       severity,
		AutoResolvable: autoResolvable,
		SubConflicts:   subs,
	}
}

// conflictID is deterministic so repeated detection over the same
// inputs yields identical records.
func conflictID(itemID, field string) string {
	return itemID + ":" + field
}
