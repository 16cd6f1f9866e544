package shelfsync

import (
	"time"

	"github.com/shelfsync/shelfsync/conflict"
	"github.com/shelfsync/shelfsync/logging"
	"github.com/shelfsync/shelfsync/resolve"
	"github.com/shelfsync/shelfsync/stats"
)

// coordinatorOptions holds construction-time configuration.
type coordinatorOptions struct {
	batchSize    int
	historyLimit int
	syncTimeout  time.Duration
	thresholds   conflict.Thresholds
	policy       resolve.Policy
	tracker      *stats.Tracker
	logger       *logging.Logger
	clock        func() time.Time
}

func defaultOptions() coordinatorOptions {
	return coordinatorOptions{
		batchSize:    50,
		historyLimit: 100,
		syncTimeout:  30 * time.Second,
		thresholds:   conflict.DefaultThresholds(),
		policy:       resolve.DefaultPolicy(),
		clock:        time.Now,
	}
}

// Option configures a Coordinator at construction time.
type Option interface{ apply(*coordinatorOptions) }

type optionFn func(*coordinatorOptions)

func (f optionFn) apply(o *coordinatorOptions) { f(o) }

// WithBatchSize sets how many records one batch carries.
func WithBatchSize(n int) Option {
	return optionFn(func(o *coordinatorOptions) {
		if n > 0 {
			o.batchSize = n
		}
	})
}

// WithHistoryLimit bounds the terminal-job history.
func WithHistoryLimit(n int) Option {
	return optionFn(func(o *coordinatorOptions) {
		if n > 0 {
			o.historyLimit = n
		}
	})
}

// WithSyncTimeout sets the deadline applied to one ExecuteSync run.
func WithSyncTimeout(d time.Duration) Option {
	return optionFn(func(o *coordinatorOptions) {
		if d > 0 {
			o.syncTimeout = d
		}
	})
}

// WithThresholds overrides the conflict classification boundaries.
func WithThresholds(t conflict.Thresholds) Option {
	return optionFn(func(o *coordinatorOptions) { o.thresholds = t })
}

// WithPolicy overrides the automatic resolution policy.
func WithPolicy(p resolve.Policy) Option {
	return optionFn(func(o *coordinatorOptions) { o.policy = p })
}

// WithStatsTracker attaches an externally owned statistics tracker.
func WithStatsTracker(t *stats.Tracker) Option {
	return optionFn(func(o *coordinatorOptions) { o.tracker = t })
}

// WithLogger attaches a logger; the default logger is used otherwise.
func WithLogger(l *logging.Logger) Option {
	return optionFn(func(o *coordinatorOptions) { o.logger = l })
}

// WithClock replaces the wall clock, a seam for tests.
func WithClock(clock func() time.Time) Option {
	return optionFn(func(o *coordinatorOptions) {
		if clock != nil {
			o.clock = clock
		}
	})
}
