// Package metrics tracks submission counters and exposes them to Prometheus.
package metrics

import (
	"sync"
	"time"

	ptypes "github.com/gateway-fm/transactioneer/pkg/types"
)

// rateWindowSeconds is the rolling window for the submission rate.
const rateWindowSeconds = 10

// Collector accumulates engine counters. All record methods are safe for
// concurrent use from every worker.
type Collector struct {
	startTime time.Time

	attempted UCounter
	succeeded UCounter

	failedBuild    UCounter
	failedConflict UCounter
	failedEndpoint UCounter
	failedCanceled UCounter

	conflictRetries UCounter
	reconciliations UCounter
	readErrors      UCounter

	peakQueueDepth int64

	// per-second completion buckets for the rolling rate
	rateMu      sync.Mutex
	rateBuckets [rateWindowSeconds + 2]rateBucket
}

type rateBucket struct {
	second int64
	count  uint64
}

// NewCollector creates a collector with the clock started.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// RecordAttempt counts a work item entering submission.
func (c *Collector) RecordAttempt() {
	c.attempted.Inc()
}

// RecordSuccess counts a broadcast-accepted submission.
func (c *Collector) RecordSuccess() {
	c.succeeded.Inc()
	c.bumpRate()
}

// RecordFailure counts a terminally failed submission.
func (c *Collector) RecordFailure(reason ptypes.FailReason) {
	switch reason {
	case ptypes.FailReasonBuild:
		c.failedBuild.Inc()
	case ptypes.FailReasonConflict:
		c.failedConflict.Inc()
	case ptypes.FailReasonCanceled:
		c.failedCanceled.Inc()
	default:
		c.failedEndpoint.Inc()
	}
	c.bumpRate()
}

// RecordConflictRetry counts one extra attempt caused by a nonce conflict.
func (c *Collector) RecordConflictRetry() {
	c.conflictRetries.Inc()
}

// RecordReconciliation counts one completed reconciliation sweep.
func (c *Collector) RecordReconciliation() {
	c.reconciliations.Inc()
}

// RecordReadError counts a failed nonce read during reconciliation.
func (c *Collector) RecordReadError() {
	c.readErrors.Inc()
}

// ObserveQueueDepth tracks the peak queue depth seen.
func (c *Collector) ObserveQueueDepth(depth int) {
	AtomicMax(&c.peakQueueDepth, int64(depth))
}

func (c *Collector) bumpRate() {
	now := time.Now().Unix()
	idx := now % int64(len(c.rateBuckets))

	c.rateMu.Lock()
	if c.rateBuckets[idx].second != now {
		c.rateBuckets[idx] = rateBucket{second: now}
	}
	c.rateBuckets[idx].count++
	c.rateMu.Unlock()
}

// Rate returns completions per second over the rolling window, excluding the
// current partial second.
func (c *Collector) Rate() float64 {
	now := time.Now().Unix()

	c.rateMu.Lock()
	defer c.rateMu.Unlock()

	var total uint64
	for _, b := range c.rateBuckets {
		if b.second >= now-rateWindowSeconds && b.second < now {
			total += b.count
		}
	}
	return float64(total) / rateWindowSeconds
}

// Failed returns the total failed count across reasons.
func (c *Collector) Failed() uint64 {
	return c.failedBuild.Load() + c.failedConflict.Load() +
		c.failedEndpoint.Load() + c.failedCanceled.Load()
}

// Attempted returns the total attempted count.
func (c *Collector) Attempted() uint64 {
	return c.attempted.Load()
}

// Succeeded returns the total succeeded count.
func (c *Collector) Succeeded() uint64 {
	return c.succeeded.Load()
}

// ReadErrors returns the count of failed reconciliation reads.
func (c *Collector) ReadErrors() uint64 {
	return c.readErrors.Load()
}

// Snapshot assembles a Stats view of the current counters.
func (c *Collector) Snapshot(state ptypes.EngineState, queueDepth int) ptypes.Stats {
	return ptypes.Stats{
		State:     state,
		Attempted: c.attempted.Load(),
		Succeeded: c.succeeded.Load(),
		Failed:    c.Failed(),
		FailedByReason: map[ptypes.FailReason]uint64{
			ptypes.FailReasonBuild:    c.failedBuild.Load(),
			ptypes.FailReasonConflict: c.failedConflict.Load(),
			ptypes.FailReasonEndpoint: c.failedEndpoint.Load(),
			ptypes.FailReasonCanceled: c.failedCanceled.Load(),
		},
		ConflictRetries: c.conflictRetries.Load(),
		Reconciliations: c.reconciliations.Load(),
		QueueDepth:      queueDepth,
		Rate:            c.Rate(),
		Elapsed:         time.Since(c.startTime).Seconds(),
	}
}

// AvgRate returns completions per second since the collector started.
func (c *Collector) AvgRate() float64 {
	elapsed := time.Since(c.startTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(c.succeeded.Load()+c.Failed()) / elapsed
}
