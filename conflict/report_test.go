package conflict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReportMerge(t *testing.T) {
	now := time.Now().UTC()

	base := &Report{}
	batch1 := &Report{
		Items: []ItemConflicts{{
			ItemID:    "book-1",
			Conflicts: []Record{{ID: "book-1:progress", ItemID: "book-1", Type: TypeProgress, Severity: SeverityMedium, AutoResolvable: true}},
		}},
		OverallSeverity: SeverityMedium,
		AutoResolvable:  true,
		GeneratedAt:     now,
	}
	batch2 := &Report{
		Items: []ItemConflicts{{
			ItemID:    "book-2",
			Conflicts: []Record{{ID: "book-2:title", ItemID: "book-2", Type: TypeTitle, Severity: SeverityHigh, AutoResolvable: false}},
		}},
		OverallSeverity: SeverityHigh,
		AutoResolvable:  false,
		GeneratedAt:     now.Add(time.Second),
	}

	base.Merge(batch1)
	assert.Equal(t, 1, base.TotalConflicts())
	assert.True(t, base.AutoResolvable)
	assert.Equal(t, now, base.GeneratedAt)

	base.Merge(batch2)
	assert.Equal(t, 2, base.TotalConflicts())
	assert.Equal(t, SeverityHigh, base.OverallSeverity)
	assert.False(t, base.AutoResolvable)
	assert.Equal(t, now, base.GeneratedAt, "first batch timestamp kept")
}

func TestReportMergeEmptyAndNil(t *testing.T) {
	base := &Report{
		Items: []ItemConflicts{{
			ItemID:    "book-1",
			Conflicts: []Record{{ID: "book-1:progress", ItemID: "book-1", Type: TypeProgress, Severity: SeverityLow, AutoResolvable: true}},
		}},
		OverallSeverity: SeverityLow,
		AutoResolvable:  true,
	}

	base.Merge(nil)
	base.Merge(&Report{AutoResolvable: false})

	assert.Equal(t, 1, base.TotalConflicts())
	assert.True(t, base.AutoResolvable, "empty reports do not poison the aggregate")
}
