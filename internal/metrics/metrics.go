// Package metrics provides counters for the crawl frontier.
package metrics

import (
	"sync/atomic"
	"time"
)

// rateWindow is the sliding window used for per-second rates.
const rateWindow = 10 * time.Second

// Collector collects frontier and worker counters.
//
// All values are advisory: each field is updated atomically but there is no
// ordering between fields.
type Collector struct {
	// Counters
	urlsAdded         atomic.Int64
	duplicatesSkipped atomic.Int64
	dropped           atomic.Int64
	popped            atomic.Int64
	visited           atomic.Int64
	visitErrors       atomic.Int64

	// Rate tracking
	visitedInWindow atomic.Int64
	windowStart     atomic.Int64

	// Gauges
	queueDepth    atomic.Int64
	activeWorkers atomic.Int64

	startTime time.Time
}

// New creates a new metrics collector.
func New() *Collector {
	now := time.Now()
	c := &Collector{startTime: now}
	c.windowStart.Store(now.UnixNano())
	return c
}

// RecordAdded records a URL accepted into the queue.
func (c *Collector) RecordAdded() {
	c.urlsAdded.Add(1)
}

// RecordDuplicate records a URL rejected as already seen.
func (c *Collector) RecordDuplicate() {
	c.duplicatesSkipped.Add(1)
}

// RecordDropped records a URL marked seen but refused by the queue.
func (c *Collector) RecordDropped() {
	c.dropped.Add(1)
}

// RecordPopped records a URL handed to a consumer.
func (c *Collector) RecordPopped() {
	c.popped.Add(1)
}

// RecordVisited records a URL fully processed by a worker.
func (c *Collector) RecordVisited() {
	c.visited.Add(1)
	c.visitedInWindow.Add(1)
}

// RecordVisitError records a worker failure.
func (c *Collector) RecordVisitError() {
	c.visitErrors.Add(1)
}

// SetQueueDepth sets the current queue depth.
func (c *Collector) SetQueueDepth(depth int64) {
	c.queueDepth.Store(depth)
}

// AddActiveWorkers adjusts the active worker gauge by delta.
func (c *Collector) AddActiveWorkers(delta int64) {
	c.activeWorkers.Add(delta)
}

// URLsAdded returns the number of URLs accepted into the queue.
func (c *Collector) URLsAdded() int64 { return c.urlsAdded.Load() }

// DuplicatesSkipped returns the number of duplicate URLs rejected.
func (c *Collector) DuplicatesSkipped() int64 { return c.duplicatesSkipped.Load() }

// Dropped returns the number of URLs burned by a full or shut-down queue.
func (c *Collector) Dropped() int64 { return c.dropped.Load() }

// Popped returns the number of URLs handed to consumers.
func (c *Collector) Popped() int64 { return c.popped.Load() }

// GetVisitsPerSecond returns the visit rate over the current window.
func (c *Collector) GetVisitsPerSecond() float64 {
	now := time.Now().UnixNano()
	windowStart := c.windowStart.Load()

	elapsed := time.Duration(now - windowStart)
	if elapsed >= rateWindow {
		if c.windowStart.CompareAndSwap(windowStart, now) {
			c.visitedInWindow.Store(0)
		}
		return 0
	}
	if elapsed <= 0 {
		return 0
	}
	return float64(c.visitedInWindow.Load()) / elapsed.Seconds()
}

// Snapshot returns a point-in-time view of all metrics.
func (c *Collector) Snapshot() *Snapshot {
	return &Snapshot{
		Timestamp:         time.Now(),
		Uptime:            time.Since(c.startTime),
		URLsAdded:         c.urlsAdded.Load(),
		DuplicatesSkipped: c.duplicatesSkipped.Load(),
		Dropped:           c.dropped.Load(),
		Popped:            c.popped.Load(),
		Visited:           c.visited.Load(),
		VisitErrors:       c.visitErrors.Load(),
		QueueDepth:        c.queueDepth.Load(),
		ActiveWorkers:     c.activeWorkers.Load(),
		VisitsPerSecond:   c.GetVisitsPerSecond(),
	}
}

// Snapshot represents a point-in-time view of metrics.
type Snapshot struct {
	Timestamp         time.Time     `json:"timestamp"`
	Uptime            time.Duration `json:"uptime"`
	URLsAdded         int64         `json:"urls_added"`
	DuplicatesSkipped int64         `json:"duplicates_skipped"`
	Dropped           int64         `json:"dropped"`
	Popped            int64         `json:"popped"`
	Visited           int64         `json:"visited"`
	VisitErrors       int64         `json:"visit_errors"`
	QueueDepth        int64         `json:"queue_depth"`
	ActiveWorkers     int64         `json:"active_workers"`
	VisitsPerSecond   float64       `json:"visits_per_second"`
}

// DuplicateRate returns duplicates as a fraction of all insertion attempts.
func (s *Snapshot) DuplicateRate() float64 {
	total := s.URLsAdded + s.DuplicatesSkipped + s.Dropped
	if total == 0 {
		return 0
	}
	return float64(s.DuplicatesSkipped) / float64(total)
}

// Summary returns a flat map suitable for structured logging.
func (s *Snapshot) Summary() map[string]interface{} {
	return map[string]interface{}{
		"uptime":             s.Uptime.String(),
		"urls_added":         s.URLsAdded,
		"duplicates_skipped": s.DuplicatesSkipped,
		"duplicate_rate":     s.DuplicateRate(),
		"dropped":            s.Dropped,
		"popped":             s.Popped,
		"visited":            s.Visited,
		"visit_errors":       s.VisitErrors,
		"queue_depth":        s.QueueDepth,
		"active_workers":     s.ActiveWorkers,
		"visits_per_second":  s.VisitsPerSecond,
	}
}
