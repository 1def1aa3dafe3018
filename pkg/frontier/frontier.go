// Package frontier provides a deduplicating, bounded URL frontier.
//
// A Frontier admits each distinct URL key at most once over its lifetime and
// hands admitted URLs to consumers in FIFO order. URLs are treated as opaque
// keys; callers normalize them before insertion.
//
// By default a URL refused because the queue was full stays visited, so it is
// never admitted later. WithReleaseOnFull lifts that: a refused URL can be
// added again once the queue has room, which is what the capacity-2 sequence
// a, b, c(full), a(duplicate), pop, c(accepted) requires.
package frontier

import (
	"context"
	"fmt"
	"time"

	"github.com/PentesterFlow/frontier/internal/logger"
	"github.com/PentesterFlow/frontier/internal/metrics"
	"github.com/PentesterFlow/frontier/internal/queue"
	"github.com/PentesterFlow/frontier/internal/state"
)

// Frontier composes a bounded queue with a visited set.
//
// The visited set is always updated, and its lock released, before the queue
// is touched. A URL refused by the queue (full, timed out, or shut down)
// stays visited unless WithReleaseOnFull is set; retrying it is the caller's
// responsibility.
type Frontier struct {
	queue   *queue.Bounded[string]
	visited *state.VisitedSet
	metrics *metrics.Collector
	log     *logger.Logger

	releaseOnFull bool

	// beforeRelease, when set, runs between a failed push and the release of
	// its mark.
	beforeRelease func(url string)
}

// Stats is a point-in-time view of the frontier counters.
type Stats struct {
	URLsAdded         int64 `json:"urls_added"`
	DuplicatesSkipped int64 `json:"duplicates_skipped"`
	Dropped           int64 `json:"dropped"`
	Popped            int64 `json:"popped"`
	Visited           int   `json:"visited"`
	Queued            int   `json:"queued"`
	Capacity          int   `json:"capacity"`
	Shutdown          bool  `json:"shutdown"`
}

// Option configures a Frontier.
type Option func(*Frontier)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *logger.Logger) Option {
	return func(f *Frontier) {
		if l != nil {
			f.log = l.WithComponent("frontier")
		}
	}
}

// WithMetrics shares a metrics collector with the frontier.
func WithMetrics(c *metrics.Collector) Option {
	return func(f *Frontier) {
		if c != nil {
			f.metrics = c
		}
	}
}

// WithVisitedSet replaces the default visited set.
func WithVisitedSet(s *state.VisitedSet) Option {
	return func(f *Frontier) {
		if s != nil {
			f.visited = s
		}
	}
}

// WithReleaseOnFull makes a URL refused because the queue was full (or the
// wait timed out) unvisited again, so a later insertion can succeed. URLs
// refused after Shutdown, and URLs passed to MarkVisited, stay visited
// either way.
func WithReleaseOnFull() Option {
	return func(f *Frontier) {
		f.releaseOnFull = true
	}
}

// New creates a frontier whose queue holds at most capacity URLs.
func New(capacity int, opts ...Option) (*Frontier, error) {
	q, err := queue.NewBounded[string](capacity)
	if err != nil {
		return nil, fmt.Errorf("create frontier: %w", err)
	}

	f := &Frontier{
		queue:   q,
		metrics: metrics.New(),
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.visited == nil {
		f.visited = state.NewVisitedSet(state.Options{ExpectedURLs: uint(capacity)})
	}

	f.log.Event(logger.DebugLevel).
		Int("capacity", capacity).
		Int("shards", f.visited.Shards()).
		Bool("release_on_full", f.releaseOnFull).
		Msg("Frontier created")
	return f, nil
}

// NewFromConfig creates a frontier from a validated configuration.
func NewFromConfig(cfg *Config, opts ...Option) (*Frontier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	visited := state.NewVisitedSet(state.Options{
		Shards:            cfg.Shards,
		ExpectedURLs:      cfg.ExpectedURLs,
		FalsePositiveRate: cfg.FalsePositiveRate,
	})
	base := []Option{WithVisitedSet(visited)}
	if cfg.ReleaseOnFull {
		base = append(base, WithReleaseOnFull())
	}
	return New(cfg.Capacity, append(base, opts...)...)
}

// Add admits url, blocking while the queue is full. It returns true only if
// url was newly marked visited and enqueued.
func (f *Frontier) Add(url string) bool {
	return f.AddContext(context.Background(), url)
}

// AddTimeout is like Add but gives up after d.
func (f *Frontier) AddTimeout(url string, d time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return f.AddContext(ctx, url)
}

// AddContext is like Add but gives up when ctx is done.
func (f *Frontier) AddContext(ctx context.Context, url string) bool {
	if !f.mark(url) {
		return false
	}
	return f.accepted(url, f.queue.PushContext(ctx, url))
}

// TryAdd admits url only if the queue has room right now.
func (f *Frontier) TryAdd(url string) bool {
	if !f.mark(url) {
		return false
	}
	return f.accepted(url, f.queue.TryPush(url))
}

// AddBatch applies TryAdd to each URL in order and returns how many were
// accepted. Earlier successes are kept when a later URL fails.
func (f *Frontier) AddBatch(urls []string) int {
	added := 0
	for _, url := range urls {
		if f.TryAdd(url) {
			added++
		}
	}
	return added
}

// mark records url as visited and reports whether this call inserted it.
// Duplicates are usually caught by the shared-lock check; the exclusive
// insert is the authoritative answer when two callers race past it.
func (f *Frontier) mark(url string) bool {
	if f.visited.Contains(url) || !f.visited.Add(url) {
		f.metrics.RecordDuplicate()
		return false
	}
	return true
}

func (f *Frontier) accepted(url string, pushed bool) bool {
	if !pushed {
		if f.releaseOnFull && !f.queue.IsShutdown() {
			if f.beforeRelease != nil {
				f.beforeRelease(url)
			}
			f.visited.Release(url)
		}
		f.metrics.RecordDropped()
		f.log.Event(logger.DebugLevel).
			Str("url", url).
			Bool("shutdown", f.queue.IsShutdown()).
			Msg("URL marked visited but not queued")
		return false
	}
	f.metrics.RecordAdded()
	return true
}

// Pop removes the oldest queued URL, blocking until one is available or the
// frontier is shut down and drained.
func (f *Frontier) Pop() (string, bool) {
	return f.popped(f.queue.Pop())
}

// PopTimeout is like Pop but gives up after d.
func (f *Frontier) PopTimeout(d time.Duration) (string, bool) {
	return f.popped(f.queue.PopTimeout(d))
}

// PopContext is like Pop but gives up when ctx is done.
func (f *Frontier) PopContext(ctx context.Context) (string, bool) {
	return f.popped(f.queue.PopContext(ctx))
}

// TryPop removes the oldest queued URL without waiting.
func (f *Frontier) TryPop() (string, bool) {
	return f.popped(f.queue.TryPop())
}

func (f *Frontier) popped(url string, ok bool) (string, bool) {
	if ok {
		f.metrics.RecordPopped()
	}
	return url, ok
}

// Drain removes and returns every queued URL. Intended for reporting
// unfetched URLs after Shutdown.
func (f *Frontier) Drain() []string {
	return f.queue.Drain()
}

// IsVisited reports whether url has ever been admitted or marked.
func (f *Frontier) IsVisited(url string) bool {
	return f.visited.Contains(url)
}

// MarkVisited records url as seen without scheduling it. The mark is
// permanent, even against a concurrent add that fails and is released.
func (f *Frontier) MarkVisited(url string) {
	f.visited.Pin(url)
}

// VisitedCount returns the number of distinct URLs seen.
func (f *Frontier) VisitedCount() int {
	return f.visited.Len()
}

// Shutdown closes the queue to producers and wakes all waiters. Queued URLs
// can still be popped and the visited set remains queryable.
func (f *Frontier) Shutdown() {
	if f.queue.IsShutdown() {
		return
	}
	f.queue.Shutdown()
	f.log.Event(logger.DebugLevel).
		Int("queued", f.queue.Len()).
		Int("visited", f.visited.Len()).
		Msg("Frontier shut down")
}

// IsShutdown reports whether Shutdown has been called.
func (f *Frontier) IsShutdown() bool {
	return f.queue.IsShutdown()
}

// Len returns the number of queued URLs.
func (f *Frontier) Len() int {
	return f.queue.Len()
}

// Cap returns the queue capacity.
func (f *Frontier) Cap() int {
	return f.queue.Cap()
}

// Metrics returns the collector the frontier records into.
func (f *Frontier) Metrics() *metrics.Collector {
	return f.metrics
}

// Stats returns the current counters. Values are advisory.
func (f *Frontier) Stats() Stats {
	return Stats{
		URLsAdded:         f.metrics.URLsAdded(),
		DuplicatesSkipped: f.metrics.DuplicatesSkipped(),
		Dropped:           f.metrics.Dropped(),
		Popped:            f.metrics.Popped(),
		Visited:           f.visited.Len(),
		Queued:            f.queue.Len(),
		Capacity:          f.queue.Cap(),
		Shutdown:          f.queue.IsShutdown(),
	}
}
