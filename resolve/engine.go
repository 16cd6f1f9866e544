package resolve

import (
	"fmt"
	"sort"
	"time"

	"github.com/shelfsync/shelfsync/conflict"
	syncErrors "github.com/shelfsync/shelfsync/errors"
)

// Resolution pairs a conflict with the strategy that settled it.
type Resolution struct {
	Conflict conflict.Record `json:"conflict"`
	Applied  Strategy        `json:"applied"`
}

// Outcome is the result of an AutoResolve pass over a report.
type Outcome struct {
	Resolved   []Resolution      `json:"resolved"`
	Unresolved []conflict.Record `json:"unresolved"`
}

// Engine produces ranked candidate resolutions for conflicts. It holds
// only the policy; strategy generation itself is stateless.
type Engine struct {
	policy Policy
}

// NewEngine creates a strategy engine with the given policy. A zero
// MinConfidence falls back to the default floor.
func NewEngine(policy Policy) *Engine {
	if policy.MinConfidence <= 0 {
		policy.MinConfidence = DefaultPolicy().MinConfidence
	}
	return &Engine{policy: policy}
}

// Policy returns the engine's resolution policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Propose returns the candidate strategies for a conflict, ranked by
// confidence, highest first. Every conflict gets at least one
// candidate; unknown shapes fall back to manual review.
func (e *Engine) Propose(c conflict.Record) []Strategy {
	var strategies []Strategy

	switch c.Type {
	case conflict.TypeProgress:
		strategies = e.proposeProgress(c)
	case conflict.TypeTitle:
		strategies = e.proposeTitle(c)
	case conflict.TypeTimestamp:
		strategies = e.proposeTimestamp(c)
	default:
		strategies = []Strategy{manualReview(c)}
	}

	sort.SliceStable(strategies, func(i, j int) bool {
		return strategies[i].Confidence > strategies[j].Confidence
	})
	return strategies
}

// AutoResolve selects the highest-confidence strategy per conflict and
// applies it automatically only when the confidence clears the policy
// floor, the conflict is auto-resolvable, and the policy enables
// automatic resolution. Everything else is returned unresolved for
// manual handling; the engine never silently picks a low-confidence
// outcome.
func (e *Engine) AutoResolve(report *conflict.Report) (Outcome, error) {
	if report == nil {
		return Outcome{}, syncErrors.New(syncErrors.OpResolve, fmt.Errorf("nil conflict report"))
	}

	var out Outcome
	for _, item := range report.Items {
		for _, c := range item.Conflicts {
			strategies := e.Propose(c)
			best := strategies[0]

			if e.policy.AutoResolveConflicts &&
				c.AutoResolvable &&
				!best.RequiresHuman &&
				best.Confidence >= e.policy.MinConfidence {
				out.Resolved = append(out.Resolved, Resolution{Conflict: c, Applied: best})
				continue
			}

			out.Unresolved = append(out.Unresolved, c)
		}
	}
	return out, nil
}

func (e *Engine) proposeProgress(c conflict.Record) []Strategy {
	src, srcOK := asInt(c.SourceValue)
	tgt, tgtOK := asInt(c.TargetValue)
	if !srcOK || !tgtOK {
		return []Strategy{manualReview(c)}
	}

	higher := src
	if tgt > higher {
		higher = tgt
	}
	average := (src + tgt) / 2

	return []Strategy{
		{
			Kind:           KindUseHigherValue,
			ResultingValue: higher,
			Confidence:     ConfidenceUseHigherValue,
			Description:    fmt.Sprintf("keep the further reading position (%d%%)", higher),
		},
		{
			Kind:           KindUseAverage,
			ResultingValue: average,
			Confidence:     ConfidenceUseAverage,
			Description:    fmt.Sprintf("split the difference at %d%%", average),
		},
	}
}

func (e *Engine) proposeTitle(c conflict.Record) []Strategy {
	src, srcOK := c.SourceValue.(string)
	tgt, tgtOK := c.TargetValue.(string)
	if !srcOK || !tgtOK {
		return []Strategy{manualReview(c)}
	}

	longer := src
	if len([]rune(tgt)) > len([]rune(src)) {
		longer = tgt
	}

	return []Strategy{
		{
			Kind:           KindUseLongerTitle,
			ResultingValue: longer,
			Confidence:     ConfidenceUseLongerTitle,
			Description:    fmt.Sprintf("keep the more complete title %q", longer),
		},
		{
			Kind:          KindManualSelection,
			Confidence:    ConfidenceManual,
			Description:   "a person picks the correct title",
			RequiresHuman: true,
		},
	}
}

func (e *Engine) proposeTimestamp(c conflict.Record) []Strategy {
	src, srcOK := c.SourceValue.(time.Time)
	tgt, tgtOK := c.TargetValue.(time.Time)
	if !srcOK || !tgtOK {
		return []Strategy{manualReview(c)}
	}

	latest := src
	if tgt.After(src) {
		latest = tgt
	}

	return []Strategy{
		{
			Kind:           KindUseLatestTimestamp,
			ResultingValue: latest,
			Confidence:     ConfidenceUseLatestTimestamp,
			Description:    fmt.Sprintf("keep the most recent update (%s)", latest.Format(time.RFC3339)),
		},
	}
}

func manualReview(c conflict.Record) Strategy {
	return Strategy{
		Kind:          KindManualReview,
		Confidence:    ConfidenceManual,
		Description:   fmt.Sprintf("conflict on item %s needs a person to review", c.ItemID),
		RequiresHuman: true,
	}
}

// asInt coerces the numeric values a conflict may carry after an
// in-memory or JSON round trip.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
