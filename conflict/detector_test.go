package conflict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncErrors "github.com/shelfsync/shelfsync/errors"
	"github.com/shelfsync/shelfsync/record"
)

func pair(srcProgress, tgtProgress int) (record.BookRecord, record.BookRecord) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := record.BookRecord{ID: "b1", Title: "Dune", Progress: srcProgress, LastUpdated: now}
	tgt := record.BookRecord{ID: "b1", Title: "Dune", Progress: tgtProgress, LastUpdated: now}
	return src, tgt
}

func TestDetectProgress_BelowThresholdNoConflict(t *testing.T) {
	d := NewDetector(Thresholds{})

	for diff := 0; diff < 15; diff++ {
		src, tgt := pair(50+diff, 50)
		rec, err := d.DetectPair(src, tgt)
		require.NoError(t, err)
		assert.Nil(t, rec, "diff %d should not conflict", diff)
	}
}

func TestDetectProgress_SeverityTiers(t *testing.T) {
	d := NewDetector(Thresholds{})

	tests := []struct {
		name           string
		src, tgt       int
		wantSeverity   Severity
		wantAutoResolve bool
	}{
		{"just over threshold", 65, 50, SeverityLow, true},
		{"below medium tier", 79, 50, SeverityLow, true},
		{"medium tier", 80, 50, SeverityMedium, false},
		{"high tier", 100, 50, SeverityHigh, false},
		{"high tier reversed", 0, 50, SeverityHigh, false},
		{"critical tier", 100, 30, SeverityCritical, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, tgt := pair(tt.src, tt.tgt)
			rec, err := d.DetectPair(src, tgt)
			require.NoError(t, err)
			require.NotNil(t, rec)
			assert.Equal(t, TypeProgress, rec.Type)
			assert.Equal(t, tt.wantSeverity, rec.Severity)
			assert.Equal(t, tt.wantAutoResolve, rec.AutoResolvable)
		})
	}
}

func TestDetectProgress_SeverityMonotone(t *testing.T) {
	d := NewDetector(Thresholds{})

	last := SeverityLow
	for diff := 15; diff <= 100; diff++ {
		src, tgt := pair(diff, 0)
		rec, err := d.DetectPair(src, tgt)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.GreaterOrEqual(t, int(rec.Severity), int(last),
			"severity must not decrease as the difference grows (diff=%d)", diff)
		last = rec.Severity
	}
}

func TestDetectTitle(t *testing.T) {
	d := NewDetector(Thresholds{})
	now := time.Now()

	tests := []struct {
		name         string
		source       string
		target       string
		wantConflict bool
		wantSeverity Severity
	}{
		{"identical titles", "Dune", "Dune", false, 0},
		{"similar enough", "The Dispossessed", "The Dispossessed!", false, 0},
		{"moderately different", "Dune Messiah", "Dune Messiah Vol. 2", true, SeverityMedium},
		{"very different", "Dune", "A Memory Called Empire", true, SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := record.BookRecord{ID: "b1", Title: tt.source, Progress: 10, LastUpdated: now}
			tgt := record.BookRecord{ID: "b1", Title: tt.target, Progress: 10, LastUpdated: now}

			rec, err := d.DetectPair(src, tgt)
			require.NoError(t, err)
			if !tt.wantConflict {
				assert.Nil(t, rec)
				return
			}
			require.NotNil(t, rec)
			assert.Equal(t, TypeTitle, rec.Type)
			assert.Equal(t, tt.wantSeverity, rec.Severity)
		})
	}
}

func TestDetectTitle_AutoResolvableBoundary(t *testing.T) {
	// sim = 0.3 -> conflict, HIGH, not auto-resolvable.
	d := NewDetector(Thresholds{})
	now := time.Now()

	src := record.BookRecord{ID: "b1", Title: "abcdefghij", Progress: 10, LastUpdated: now}
	tgt := record.BookRecord{ID: "b1", Title: "abczzzzzzz", Progress: 10, LastUpdated: now}
	require.InDelta(t, 0.3, Similarity(src.Title, tgt.Title), 0.001)

	rec, err := d.DetectPair(src, tgt)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, SeverityHigh, rec.Severity)
	assert.False(t, rec.AutoResolvable)
}

func TestDetectTimestamp_ExceedsWindow(t *testing.T) {
	d := NewDetector(Thresholds{})
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		gap          time.Duration
		wantConflict bool
	}{
		{"same instant", 0, false},
		{"inside window", 45 * time.Second, false},
		{"exactly the window", 60 * time.Second, false},
		{"just outside", 61 * time.Second, true},
		{"far outside", 48 * time.Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := record.BookRecord{ID: "b1", Title: "Dune", Progress: 10, LastUpdated: base}
			tgt := record.BookRecord{ID: "b1", Title: "Dune", Progress: 10, LastUpdated: base.Add(tt.gap)}

			rec, err := d.DetectPair(src, tgt)
			require.NoError(t, err)
			if !tt.wantConflict {
				assert.Nil(t, rec)
				return
			}
			require.NotNil(t, rec)
			assert.Equal(t, TypeTimestamp, rec.Type)
			assert.Equal(t, SeverityMedium, rec.Severity)
			assert.True(t, rec.AutoResolvable)
		})
	}
}

func TestDetectPair_Composite(t *testing.T) {
	d := NewDetector(Thresholds{})
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	src := record.BookRecord{ID: "b1", Title: "Dune", Progress: 100, LastUpdated: base}
	tgt := record.BookRecord{ID: "b1", Title: "A Memory Called Empire", Progress: 20, LastUpdated: base.Add(2 * time.Hour)}

	rec, err := d.DetectPair(src, tgt)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, TypeComposite, rec.Type)
	assert.Len(t, rec.SubConflicts, 3)
	// Maximum of sub-severities: progress diff 80 is CRITICAL.
	assert.Equal(t, SeverityCritical, rec.Severity)
	// AND of sub-conflicts: title and progress are not auto-resolvable.
	assert.False(t, rec.AutoResolvable)
}

func TestDetect_MalformedPair(t *testing.T) {
	d := NewDetector(Thresholds{})
	now := time.Now()

	good := record.BookRecord{ID: "b1", Title: "Dune", Progress: 50, LastUpdated: now}
	bad := record.BookRecord{ID: "b1", Title: "Dune", Progress: 250, LastUpdated: now}

	_, err := d.DetectPair(good, bad)
	require.Error(t, err)
	assert.Equal(t, syncErrors.KindConflictDetection, syncErrors.KindOf(err))

	mismatched := record.BookRecord{ID: "b2", Title: "Dune", Progress: 50, LastUpdated: now}
	_, err = d.Detect(record.FieldChange{Field: record.FieldProgress}, good, mismatched)
	require.Error(t, err)
	assert.Equal(t, syncErrors.KindConflictDetection, syncErrors.KindOf(err))
}

func TestBuildReport(t *testing.T) {
	d := NewDetector(Thresholds{})
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sources := []record.BookRecord{
		{ID: "b1", Title: "Dune", Progress: 80, LastUpdated: base},
		{ID: "b2", Title: "Solaris", Progress: 10, LastUpdated: base},
		{ID: "b3", Title: "Blindsight", Progress: 55, LastUpdated: base},
		{ID: "bad", Title: "Broken", Progress: -5, LastUpdated: base},
	}
	targets := []record.BookRecord{
		{ID: "b1", Title: "Dune", Progress: 50, LastUpdated: base}, // MEDIUM progress conflict
		{ID: "b2", Title: "Solaris", Progress: 10, LastUpdated: base},
		{ID: "bad", Title: "Broken", Progress: 10, LastUpdated: base},
		// b3 missing on the target side: nothing to reconcile.
	}

	report, skipped := d.BuildReport(sources, targets)

	assert.Len(t, skipped, 1, "malformed pair should be skipped, not fatal")
	require.Len(t, report.Items, 1)
	assert.Equal(t, "b1", report.Items[0].ItemID)
	assert.Equal(t, SeverityMedium, report.OverallSeverity)
	assert.Equal(t, 1, report.TotalConflicts())
	assert.False(t, report.Empty())
}

func TestBuildReport_Deterministic(t *testing.T) {
	d := NewDetector(Thresholds{})
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sources := []record.BookRecord{
		{ID: "b1", Title: "Dune", Progress: 80, LastUpdated: base},
		{ID: "b2", Title: "Solaris", Progress: 90, LastUpdated: base},
	}
	targets := []record.BookRecord{
		{ID: "b1", Title: "Dune", Progress: 50, LastUpdated: base},
		{ID: "b2", Title: "Solaris", Progress: 10, LastUpdated: base},
	}

	first, _ := d.BuildReport(sources, targets)
	second, _ := d.BuildReport(sources, targets)

	require.Equal(t, len(first.Items), len(second.Items))
	for i := range first.Items {
		assert.Equal(t, first.Items[i].ItemID, second.Items[i].ItemID)
		assert.Equal(t, first.Items[i].Conflicts[0].ID, second.Items[i].Conflicts[0].ID)
		assert.Equal(t, first.Items[i].Conflicts[0].Severity, second.Items[i].Conflicts[0].Severity)
	}
}
