package status

import (
	"context"
	"time"

	"github.com/bool64/ctxd"
)

const (
	// defaultInterval is the minimum spacing between two progress writes.
	defaultInterval = 10 * time.Second
	// defaultBatchSize makes progress eligible for reporting every N processed pages.
	// The first processed page always qualifies.
	defaultBatchSize = 3
	// defaultMaxWriteFailures is the number of consecutive failed writes after which
	// progress reporting is disabled for the rest of the run.
	defaultMaxWriteFailures = 3
)

// Reporter is a throttled side channel that pushes crawl progress to a Sink.
//
// It fails open: write errors are logged and swallowed, and after too many consecutive
// failures the reporter mutes itself for the remainder of the run. A nil *Reporter is
// valid and reports nothing, so callers do not need to branch on configuration.
type Reporter struct {
	sink     Sink
	sourceID string
	log      ctxd.Logger

	interval         time.Duration
	batchSize        int
	maxWriteFailures int

	clock func() time.Time

	lastReport time.Time
	failures   int
	disabled   bool
}

// NewReporter creates a Reporter for one crawl run. It returns nil when there is no
// sink or no source identity, which disables reporting entirely.
func NewReporter(sink Sink, sourceID string, opts ...ReporterOption) *Reporter {
	if sink == nil || sourceID == "" {
		return nil
	}

	r := &Reporter{
		sink:     sink,
		sourceID: sourceID,
		log:      ctxd.NoOpLogger{},

		interval:         defaultInterval,
		batchSize:        defaultBatchSize,
		maxWriteFailures: defaultMaxWriteFailures,

		clock: time.Now,
	}

	for _, opt := range opts {
		opt.applyReporterOption(r)
	}

	if r.batchSize < 1 {
		r.batchSize = defaultBatchSize
	}

	return r
}

// Started marks the source as in progress. It is written unconditionally, before the
// throttling window opens.
func (r *Reporter) Started(ctx context.Context) {
	if r == nil {
		return
	}

	r.write(ctx, Update{Status: InProgress, LastCrawled: r.clock()})
}

// Progress pushes a snapshot after a frontier entry has been processed.
//
// A snapshot is written on the first processed entry and then once per batch, but never
// more often than the reporting interval.
func (r *Reporter) Progress(ctx context.Context, processed, pagesIndexed int) {
	if r == nil || r.disabled {
		return
	}

	if processed != 1 && processed%r.batchSize != 0 {
		return
	}

	if !r.lastReport.IsZero() && r.clock().Sub(r.lastReport) < r.interval {
		return
	}

	indexed := pagesIndexed
	if r.write(ctx, Update{
		Status:       InProgress,
		LastCrawled:  r.clock(),
		PagesIndexed: &indexed,
	}) {
		r.lastReport = r.clock()
	}
}

// Finished writes the final status for the run. Unlike progress snapshots it is
// neither throttled nor muted by earlier write failures: the run's outcome is worth
// one more attempt.
func (r *Reporter) Finished(ctx context.Context, st Status, pagesIndexed int, errMsg string) {
	if r == nil {
		return
	}

	indexed := pagesIndexed
	u := Update{
		Status:       st,
		LastCrawled:  r.clock(),
		PagesIndexed: &indexed,
		ErrorMessage: errMsg,
	}

	if err := r.sink.Update(ctx, r.sourceID, u); err != nil {
		r.log.Error(ctx, "failed to write final crawl status",
			"status.source_id", r.sourceID,
			"status.value", string(st),
			"error", err,
		)
	}
}

// write performs one progress write and maintains the fail-open accounting. It
// reports whether the write succeeded.
//
// The throttle window is not opened here: the initial in-progress write must not
// suppress the snapshot for the first processed page.
func (r *Reporter) write(ctx context.Context, u Update) bool {
	if err := r.sink.Update(ctx, r.sourceID, u); err != nil {
		r.failures++

		r.log.Warn(ctx, "failed to report crawl progress",
			"status.source_id", r.sourceID,
			"status.consecutive_failures", r.failures,
			"error", err,
		)

		if r.failures >= r.maxWriteFailures {
			r.disabled = true

			r.log.Warn(ctx, "progress reporting disabled for this run",
				"status.source_id", r.sourceID,
			)
		}

		return false
	}

	r.failures = 0

	return true
}

// ReporterOption is option to set up Reporter.
type ReporterOption interface {
	applyReporterOption(r *Reporter)
}

type reporterOptionFunc func(r *Reporter)

func (f reporterOptionFunc) applyReporterOption(r *Reporter) {
	f(r)
}

// WithLogger sets logger for Reporter.
func WithLogger(l ctxd.Logger) ReporterOption {
	return reporterOptionFunc(func(r *Reporter) {
		r.log = l
	})
}

// WithInterval sets the minimum spacing between progress writes.
func WithInterval(d time.Duration) ReporterOption {
	return reporterOptionFunc(func(r *Reporter) {
		r.interval = d
	})
}

// WithBatchSize sets how many processed entries make a snapshot eligible.
func WithBatchSize(n int) ReporterOption {
	return reporterOptionFunc(func(r *Reporter) {
		r.batchSize = n
	})
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) ReporterOption {
	return reporterOptionFunc(func(r *Reporter) {
		r.clock = clock
	})
}
