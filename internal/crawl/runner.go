// Package crawl drives consumer workers over a frontier until the crawl goes
// quiet or is cancelled.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/PentesterFlow/frontier/internal/logger"
	"github.com/PentesterFlow/frontier/internal/ratelimit"
	"github.com/PentesterFlow/frontier/pkg/frontier"
)

// DefaultWorkers is used when a non-positive worker count is configured.
const DefaultWorkers = 4

var (
	// ErrAlreadyRunning is returned by Run while another Run is active.
	ErrAlreadyRunning = errors.New("runner is already running")

	// ErrFrontierShutdown is returned by Run when the frontier can no longer
	// accept seeds.
	ErrFrontierShutdown = errors.New("frontier is shut down")
)

// Visitor fetches a URL and returns the links found on it. Returned links are
// offered to the frontier as-is, so the visitor normalizes them.
type Visitor interface {
	Visit(ctx context.Context, url string) ([]string, error)
}

// VisitorFunc adapts a function to the Visitor interface.
type VisitorFunc func(ctx context.Context, url string) ([]string, error)

// Visit calls fn(ctx, url).
func (fn VisitorFunc) Visit(ctx context.Context, url string) ([]string, error) {
	return fn(ctx, url)
}

// Result summarizes a finished run.
type Result struct {
	Visited     int64          `json:"visited"`
	Errors      int64          `json:"errors"`
	Interrupted bool           `json:"interrupted"`
	Unvisited   []string       `json:"unvisited,omitempty"`
	Duration    time.Duration  `json:"duration"`
	Stats       frontier.Stats `json:"stats"`
}

// Runner pops URLs from a frontier, visits them and feeds discovered links
// back. The run ends when nothing is queued or in flight, or when the
// context is cancelled; either way the frontier is shut down once.
type Runner struct {
	frontier *frontier.Frontier
	visitor  Visitor
	limiter  *ratelimit.Limiter
	log      *logger.Logger

	workers        int
	statusInterval time.Duration

	running atomic.Bool

	// pending counts URLs queued, being visited, or about to be offered.
	pending  atomic.Int64
	idle     chan struct{}
	idleOnce sync.Once
	stopOnce sync.Once

	visited  atomic.Int64
	failures atomic.Int64

	mu      sync.Mutex
	skipped []string
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers sets the number of consumer workers.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithLimiter paces visits. The default never blocks.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(r *Runner) {
		if l != nil {
			r.limiter = l
		}
	}
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l.WithComponent("runner")
		}
	}
}

// WithStatusInterval logs progress every d. Zero disables status logging.
func WithStatusInterval(d time.Duration) Option {
	return func(r *Runner) {
		r.statusInterval = d
	}
}

// New creates a runner over f that visits URLs with v.
func New(f *frontier.Frontier, v Visitor, opts ...Option) (*Runner, error) {
	if f == nil {
		return nil, fmt.Errorf("create runner: nil frontier")
	}
	if v == nil {
		return nil, fmt.Errorf("create runner: nil visitor")
	}

	r := &Runner{
		frontier: f,
		visitor:  v,
		limiter:  ratelimit.Unlimited(),
		log:      logger.Nop(),
		workers:  DefaultWorkers,
		idle:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run seeds the frontier and blocks until the crawl finishes. A runner owns
// its frontier's lifecycle, so it runs at most once. Seeds wait for
// queue space; discovered links are added without waiting, so a link that
// meets a full queue is dropped. Cancelling ctx stops the run early and the
// URLs still queued are returned as Unvisited.
func (r *Runner) Run(ctx context.Context, seeds []string) (*Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer r.running.Store(false)

	if r.frontier.IsShutdown() {
		return nil, ErrFrontierShutdown
	}

	start := time.Now()
	r.log.Event(logger.InfoLevel).
		Int("workers", r.workers).
		Int("seeds", len(seeds)).
		Msg("Run started")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-r.idle:
			r.stop("idle")
		case <-gctx.Done():
			r.stop("cancelled")
		}
		return nil
	})

	for i := 0; i < r.workers; i++ {
		id := i
		g.Go(func() error {
			r.worker(gctx, id)
			return nil
		})
	}

	if r.statusInterval > 0 {
		g.Go(func() error {
			r.reportStatus(gctx)
			return nil
		})
	}

	r.seed(gctx, seeds)

	_ = g.Wait()

	result := &Result{
		Visited:     r.visited.Load(),
		Errors:      r.failures.Load(),
		Interrupted: ctx.Err() != nil,
		Unvisited:   append(r.takeSkipped(), r.frontier.Drain()...),
		Duration:    time.Since(start),
	}
	result.Stats = r.frontier.Stats()

	r.log.Event(logger.InfoLevel).
		Int64("visited", result.Visited).
		Int64("errors", result.Errors).
		Int("unvisited", len(result.Unvisited)).
		Bool("interrupted", result.Interrupted).
		Dur("duration", result.Duration).
		Msg("Run finished")

	return result, nil
}

// seed holds one pending slot while adding, so workers cannot see the crawl
// as idle between two seeds.
func (r *Runner) seed(ctx context.Context, seeds []string) {
	r.pending.Add(1)
	for _, url := range seeds {
		r.pending.Add(1)
		if !r.frontier.AddContext(ctx, url) {
			r.release(1)
		}
	}
	r.release(1)
}

func (r *Runner) worker(ctx context.Context, id int) {
	log := r.log.WithWorker(id)
	metrics := r.frontier.Metrics()
	metrics.AddActiveWorkers(1)
	defer metrics.AddActiveWorkers(-1)

	log.Debug("Worker started")
	defer log.Debug("Worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}
		url, ok := r.frontier.PopContext(ctx)
		if !ok {
			return
		}
		r.visit(ctx, log, url)
	}
}

// visit processes one popped URL. The URL's pending slot is released only
// after its links have been offered.
func (r *Runner) visit(ctx context.Context, log *logger.Logger, url string) {
	defer r.release(1)

	if err := r.limiter.WaitURL(ctx, url); err != nil {
		r.skip(url)
		return
	}

	metrics := r.frontier.Metrics()
	links, err := r.visitor.Visit(ctx, url)
	if err != nil {
		// A visit cut short by cancellation is unvisited, not failed.
		if ctx.Err() != nil {
			r.skip(url)
			return
		}
		r.failures.Add(1)
		metrics.RecordVisitError()
		log.ErrorEvent(err, url, "visit")
		return
	}
	r.visited.Add(1)
	metrics.RecordVisited()

	if len(links) == 0 {
		return
	}
	r.pending.Add(int64(len(links)))
	added := r.frontier.AddBatch(links)
	r.release(int64(len(links) - added))

	log.Event(logger.DebugLevel).
		Str("url", url).
		Int("links", len(links)).
		Int("added", added).
		Msg("Visited")
}

func (r *Runner) skip(url string) {
	r.mu.Lock()
	r.skipped = append(r.skipped, url)
	r.mu.Unlock()
}

func (r *Runner) takeSkipped() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	skipped := r.skipped
	r.skipped = nil
	return skipped
}

func (r *Runner) release(n int64) {
	if n == 0 {
		return
	}
	if r.pending.Add(-n) == 0 {
		r.idleOnce.Do(func() { close(r.idle) })
	}
}

func (r *Runner) stop(reason string) {
	r.stopOnce.Do(func() {
		r.log.Event(logger.DebugLevel).
			Str("reason", reason).
			Int("queued", r.frontier.Len()).
			Msg("Stopping frontier")
		r.frontier.Shutdown()
	})
}

// Stop shuts the frontier down. Workers finish their current URL, then exit
// once the queue is drained.
func (r *Runner) Stop() {
	r.stop("stopped")
}

func (r *Runner) reportStatus(ctx context.Context) {
	ticker := time.NewTicker(r.statusInterval)
	defer ticker.Stop()

	metrics := r.frontier.Metrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.idle:
			return
		case <-ticker.C:
			metrics.SetQueueDepth(int64(r.frontier.Len()))
			summary := metrics.Snapshot().Summary()
			limits := r.limiter.Stats()
			summary["rate_limit"] = limits.Rate
			summary["host_rate_limit"] = limits.HostRate
			summary["limited_hosts"] = limits.HostCount
			r.log.StatsEvent("Crawl progress", summary)
		}
	}
}
