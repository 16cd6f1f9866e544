package resolve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfsync/shelfsync/conflict"
	"github.com/shelfsync/shelfsync/record"
)

func progressConflict(src, tgt int, autoResolvable bool) conflict.Record {
	return conflict.Record{
		ID:             "b1:progress",
		ItemID:         "b1",
		Type:           conflict.TypeProgress,
		Severity:       conflict.SeverityMedium,
		Field:          record.FieldProgress,
		SourceValue:    src,
		TargetValue:    tgt,
		AutoResolvable: autoResolvable,
	}
}

func TestPropose_Progress(t *testing.T) {
	e := NewEngine(DefaultPolicy())

	// Scenario: source 80, target 50 -> use-higher-value 80 (0.8),
	// use-average 65 (0.6).
	strategies := e.Propose(progressConflict(80, 50, false))
	require.Len(t, strategies, 2)

	assert.Equal(t, KindUseHigherValue, strategies[0].Kind)
	assert.Equal(t, 80, strategies[0].ResultingValue)
	assert.Equal(t, 0.8, strategies[0].Confidence)

	assert.Equal(t, KindUseAverage, strategies[1].Kind)
	assert.Equal(t, 65, strategies[1].ResultingValue)
	assert.Equal(t, 0.6, strategies[1].Confidence)
}

func TestPropose_UseHigherAlwaysMax(t *testing.T) {
	e := NewEngine(DefaultPolicy())

	pairs := [][2]int{{80, 50}, {50, 80}, {0, 100}, {33, 33}, {100, 99}}
	for _, p := range pairs {
		strategies := e.Propose(progressConflict(p[0], p[1], true))
		want := p[0]
		if p[1] > want {
			want = p[1]
		}
		assert.Equal(t, want, strategies[0].ResultingValue,
			"use-higher-value must yield max(%d, %d)", p[0], p[1])
	}
}

func TestPropose_Title(t *testing.T) {
	e := NewEngine(DefaultPolicy())

	c := conflict.Record{
		ItemID:      "b1",
		Type:        conflict.TypeTitle,
		SourceValue: "Dune",
		TargetValue: "Dune Messiah",
	}
	strategies := e.Propose(c)
	require.Len(t, strategies, 2)

	// Ranked by confidence: manual-selection (1.0) before use-longer (0.7).
	assert.Equal(t, KindManualSelection, strategies[0].Kind)
	assert.True(t, strategies[0].RequiresHuman)
	assert.Equal(t, KindUseLongerTitle, strategies[1].Kind)
	assert.Equal(t, "Dune Messiah", strategies[1].ResultingValue)
}

func TestPropose_Timestamp(t *testing.T) {
	e := NewEngine(DefaultPolicy())
	early := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	late := early.Add(3 * time.Hour)

	c := conflict.Record{
		ItemID:      "b1",
		Type:        conflict.TypeTimestamp,
		SourceValue: early,
		TargetValue: late,
	}
	strategies := e.Propose(c)
	require.Len(t, strategies, 1)
	assert.Equal(t, KindUseLatestTimestamp, strategies[0].Kind)
	assert.Equal(t, late, strategies[0].ResultingValue)
	assert.Equal(t, 0.9, strategies[0].Confidence)
}

func TestPropose_CompositeAndGeneric(t *testing.T) {
	e := NewEngine(DefaultPolicy())

	for _, typ := range []conflict.Type{conflict.TypeComposite, conflict.TypeGeneric} {
		strategies := e.Propose(conflict.Record{ItemID: "b1", Type: typ})
		require.Len(t, strategies, 1)
		assert.Equal(t, KindManualReview, strategies[0].Kind)
		assert.True(t, strategies[0].RequiresHuman)
	}
}

func reportWith(conflicts ...conflict.Record) *conflict.Report {
	report := &conflict.Report{GeneratedAt: time.Now()}
	for _, c := range conflicts {
		report.Items = append(report.Items, conflict.ItemConflicts{
			ItemID:    c.ItemID,
			Conflicts: []conflict.Record{c},
		})
	}
	return report
}

func TestAutoResolve_EligibleProgress(t *testing.T) {
	e := NewEngine(DefaultPolicy())

	out, err := e.AutoResolve(reportWith(progressConflict(70, 55, true)))
	require.NoError(t, err)

	require.Len(t, out.Resolved, 1)
	assert.Empty(t, out.Unresolved)
	assert.Equal(t, KindUseHigherValue, out.Resolved[0].Applied.Kind)
	assert.Equal(t, 70, out.Resolved[0].Applied.ResultingValue)
}

func TestAutoResolve_TitleNeverAutoApplied(t *testing.T) {
	// manual-selection tops the ranking at confidence 1.0 but requires
	// a human, so the conflict stays unresolved regardless of policy.
	e := NewEngine(Policy{AutoResolveConflicts: true, MinConfidence: 0.5})

	c := conflict.Record{
		ItemID:         "b1",
		Type:           conflict.TypeTitle,
		SourceValue:    "Dune",
		TargetValue:    "Dune Messiah",
		AutoResolvable: true,
	}
	out, err := e.AutoResolve(reportWith(c))
	require.NoError(t, err)
	assert.Empty(t, out.Resolved)
	assert.Len(t, out.Unresolved, 1)
}

func TestAutoResolve_RespectsPolicyAndFlag(t *testing.T) {
	tests := []struct {
		name           string
		policy         Policy
		autoResolvable bool
		wantResolved   int
	}{
		{"policy disabled", Policy{AutoResolveConflicts: false, MinConfidence: 0.8}, true, 0},
		{"conflict not auto-resolvable", Policy{AutoResolveConflicts: true, MinConfidence: 0.8}, false, 0},
		{"eligible", Policy{AutoResolveConflicts: true, MinConfidence: 0.8}, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(tt.policy)
			out, err := e.AutoResolve(reportWith(progressConflict(70, 55, tt.autoResolvable)))
			require.NoError(t, err)
			assert.Len(t, out.Resolved, tt.wantResolved)
			assert.Len(t, out.Unresolved, 1-tt.wantResolved)
		})
	}
}

func TestAutoResolve_TimestampEligible(t *testing.T) {
	e := NewEngine(DefaultPolicy())
	early := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c := conflict.Record{
		ItemID:         "b1",
		Type:           conflict.TypeTimestamp,
		SourceValue:    early,
		TargetValue:    early.Add(2 * time.Hour),
		AutoResolvable: true,
	}
	out, err := e.AutoResolve(reportWith(c))
	require.NoError(t, err)
	require.Len(t, out.Resolved, 1)
	assert.Equal(t, KindUseLatestTimestamp, out.Resolved[0].Applied.Kind)
}

func TestAutoResolve_NilReport(t *testing.T) {
	e := NewEngine(DefaultPolicy())
	_, err := e.AutoResolve(nil)
	assert.Error(t, err)
}
