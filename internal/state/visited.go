// Package state holds the frontier's record of seen URLs.
package state

import (
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/cespare/xxhash/v2"
)

const (
	// DefaultShards is used when a non-positive shard count is configured.
	DefaultShards = 16

	// DefaultFalsePositiveRate is the bloom pre-filter target rate.
	DefaultFalsePositiveRate = 0.001

	minShardEstimate = 1000
)

// VisitedSet is a concurrent set of URL keys.
//
// Keys are spread over shards by xxhash. Each shard keeps an exact map and a
// bloom filter; the filter only short-circuits negative lookups, so false
// positives never leak into results. A key added with Pin can never be
// removed by Release.
type VisitedSet struct {
	shards []*visitedShard
	mask   uint64
	count  atomic.Int64
}

type visitedShard struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
	exact  map[string]bool // value: pinned
}

// Options configures a VisitedSet.
type Options struct {
	Shards            int
	ExpectedURLs      uint
	FalsePositiveRate float64
}

// NewVisitedSet creates an empty set. The shard count is rounded up to a
// power of two.
func NewVisitedSet(opts Options) *VisitedSet {
	n := opts.Shards
	if n <= 0 {
		n = DefaultShards
	}
	size := 1
	for size < n {
		size <<= 1
	}

	fpRate := opts.FalsePositiveRate
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = DefaultFalsePositiveRate
	}

	perShard := opts.ExpectedURLs / uint(size)
	if perShard < minShardEstimate {
		perShard = minShardEstimate
	}

	s := &VisitedSet{
		shards: make([]*visitedShard, size),
		mask:   uint64(size - 1),
	}
	for i := range s.shards {
		s.shards[i] = &visitedShard{
			filter: bloom.NewWithEstimates(perShard, fpRate),
			exact:  make(map[string]bool),
		}
	}
	return s
}

func (s *VisitedSet) shard(url string) *visitedShard {
	return s.shards[xxhash.Sum64String(url)&s.mask]
}

// Add inserts url and reports whether it was newly inserted. The check and
// the insert happen under one exclusive lock, so concurrent callers with the
// same key see exactly one true.
func (s *VisitedSet) Add(url string) bool {
	sh := s.shard(url)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	return s.insert(sh, url, false)
}

// Pin is like Add but also protects url from Release, whether or not it was
// already present.
func (s *VisitedSet) Pin(url string) bool {
	sh := s.shard(url)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	return s.insert(sh, url, true)
}

// insert adds url to sh. Caller holds sh.mu exclusively.
func (s *VisitedSet) insert(sh *visitedShard, url string, pin bool) bool {
	if pinned, exists := sh.exact[url]; exists {
		if pin && !pinned {
			sh.exact[url] = true
		}
		return false
	}
	sh.exact[url] = pin
	sh.filter.AddString(url)
	s.count.Add(1)
	return true
}

// Release deletes url unless it is absent or pinned, and reports whether it
// was deleted. The bloom filter keeps the key's bits, which only costs an
// extra map lookup later.
func (s *VisitedSet) Release(url string) bool {
	sh := s.shard(url)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if pinned, exists := sh.exact[url]; !exists || pinned {
		return false
	}
	delete(sh.exact, url)
	s.count.Add(-1)
	return true
}

// Contains reports whether url has been added.
func (s *VisitedSet) Contains(url string) bool {
	sh := s.shard(url)

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	if !sh.filter.TestString(url) {
		return false
	}
	_, exists := sh.exact[url]
	return exists
}

// Len returns the number of distinct URLs in the set.
func (s *VisitedSet) Len() int {
	return int(s.count.Load())
}

// URLs returns a snapshot of every URL in the set, in no particular order.
func (s *VisitedSet) URLs() []string {
	urls := make([]string, 0, s.Len())
	for _, sh := range s.shards {
		sh.mu.RLock()
		for url := range sh.exact {
			urls = append(urls, url)
		}
		sh.mu.RUnlock()
	}
	return urls
}

// Shards returns the number of shards.
func (s *VisitedSet) Shards() int {
	return len(s.shards)
}
