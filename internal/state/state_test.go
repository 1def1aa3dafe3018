package state

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
)

// =============================================================================
// VisitedSet Tests
// =============================================================================

func TestVisitedSet_New(t *testing.T) {
	tests := []struct {
		name       string
		opts       Options
		wantShards int
	}{
		{"defaults", Options{}, DefaultShards},
		{"single shard", Options{Shards: 1}, 1},
		{"rounded up", Options{Shards: 5}, 8},
		{"power of two", Options{Shards: 32, ExpectedURLs: 1_000_000}, 32},
		{"bad fp rate", Options{Shards: 4, FalsePositiveRate: 2}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewVisitedSet(tt.opts)
			if s == nil {
				t.Fatal("NewVisitedSet returned nil")
			}
			if s.Len() != 0 {
				t.Errorf("New set length = %v, want 0", s.Len())
			}
			if s.Shards() != tt.wantShards {
				t.Errorf("Shards() = %v, want %v", s.Shards(), tt.wantShards)
			}
		})
	}
}

func TestVisitedSet_Add(t *testing.T) {
	s := NewVisitedSet(Options{})

	url := "https://example.com/test"

	if s.Contains(url) {
		t.Error("URL should not be seen before adding")
	}
	if !s.Add(url) {
		t.Error("first Add should report newly inserted")
	}
	if !s.Contains(url) {
		t.Error("URL should be seen after adding")
	}
	if s.Add(url) {
		t.Error("second Add should report duplicate")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %v, want 1", s.Len())
	}
}

func TestVisitedSet_MultipleURLs(t *testing.T) {
	s := NewVisitedSet(Options{Shards: 4})

	urls := []string{
		"https://example.com/page1",
		"https://example.com/page2",
		"https://example.com/page3",
		"https://different.com/page",
	}
	for _, u := range urls {
		s.Add(u)
	}

	for _, u := range urls {
		if !s.Contains(u) {
			t.Errorf("URL %s should be seen", u)
		}
	}
	if s.Contains("https://example.com/page4") {
		t.Error("unadded URL should not be seen")
	}
	if s.Len() != len(urls) {
		t.Errorf("Len = %v, want %v", s.Len(), len(urls))
	}

	got := s.URLs()
	sort.Strings(got)
	want := append([]string(nil), urls...)
	sort.Strings(want)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("URLs() = %v, want %v", got, want)
	}
}

func TestVisitedSet_NoFalsePositives(t *testing.T) {
	// Undersized filter forces bloom false positives; the exact map must hide them.
	s := NewVisitedSet(Options{Shards: 1, ExpectedURLs: 1, FalsePositiveRate: 0.5})

	for i := 0; i < 5000; i++ {
		s.Add(fmt.Sprintf("https://example.com/added/%d", i))
	}
	for i := 0; i < 5000; i++ {
		u := fmt.Sprintf("https://example.com/absent/%d", i)
		if s.Contains(u) {
			t.Fatalf("Contains(%s) = true for URL never added", u)
		}
	}
}

func TestVisitedSet_ConcurrentSameURL(t *testing.T) {
	s := NewVisitedSet(Options{})

	const callers = 64
	var wg sync.WaitGroup
	var inserted atomic.Int32
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if s.Add("https://example.com/contended") {
				inserted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if inserted.Load() != 1 {
		t.Errorf("inserted = %d, want exactly 1", inserted.Load())
	}
	if s.Len() != 1 {
		t.Errorf("Len = %v, want 1", s.Len())
	}
}

func TestVisitedSet_Concurrent(t *testing.T) {
	s := NewVisitedSet(Options{Shards: 8, ExpectedURLs: 10000})
	var wg sync.WaitGroup
	numGoroutines := 10
	urlsPerGoroutine := 500

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < urlsPerGoroutine; j++ {
				// Every goroutine adds the same key space.
				s.Add(fmt.Sprintf("https://example.com/%d", j))
				s.Contains(fmt.Sprintf("https://example.com/%d", (j+id)%urlsPerGoroutine))
			}
		}(i)
	}
	wg.Wait()

	if s.Len() != urlsPerGoroutine {
		t.Errorf("Len = %v, want %v", s.Len(), urlsPerGoroutine)
	}
}

func BenchmarkVisitedSetAdd(b *testing.B) {
	s := NewVisitedSet(Options{ExpectedURLs: uint(b.N)})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Add(fmt.Sprintf("https://example.com/page/%d", i))
	}
}

func BenchmarkVisitedSetContainsParallel(b *testing.B) {
	s := NewVisitedSet(Options{ExpectedURLs: 10000})
	for i := 0; i < 10000; i++ {
		s.Add(fmt.Sprintf("https://example.com/page/%d", i))
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			s.Contains(fmt.Sprintf("https://example.com/page/%d", i%20000))
			i++
		}
	})
}

func TestVisitedSet_Release(t *testing.T) {
	s := NewVisitedSet(Options{Shards: 2})

	url := "https://example.com/released"
	if s.Release(url) {
		t.Error("Release of absent URL should return false")
	}

	s.Add(url)
	if !s.Release(url) {
		t.Error("Release of present URL should return true")
	}
	if s.Contains(url) {
		t.Error("URL should not be seen after Release")
	}
	if s.Len() != 0 {
		t.Errorf("Len = %v, want 0", s.Len())
	}
	if !s.Add(url) {
		t.Error("Add after Release should report newly inserted")
	}
}

func TestVisitedSet_PinSurvivesRelease(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(s *VisitedSet, url string)
		wantPinned bool
	}{
		{"pin absent", func(s *VisitedSet, url string) { s.Pin(url) }, true},
		{"pin after add", func(s *VisitedSet, url string) { s.Add(url); s.Pin(url) }, true},
		{"add after pin", func(s *VisitedSet, url string) { s.Pin(url); s.Add(url) }, true},
		{"add only", func(s *VisitedSet, url string) { s.Add(url) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewVisitedSet(Options{Shards: 1})
			url := "https://example.com/excluded"
			tt.setup(s, url)

			released := s.Release(url)
			if released == tt.wantPinned {
				t.Errorf("Release() = %v, want %v", released, !tt.wantPinned)
			}
			if s.Contains(url) != tt.wantPinned {
				t.Errorf("Contains() = %v after Release, want %v", s.Contains(url), tt.wantPinned)
			}
		})
	}
}

func TestVisitedSet_PinReportsInsert(t *testing.T) {
	s := NewVisitedSet(Options{})

	if !s.Pin("a") {
		t.Error("first Pin should report newly inserted")
	}
	if s.Pin("a") {
		t.Error("second Pin should report duplicate")
	}
	if s.Add("a") {
		t.Error("Add after Pin should report duplicate")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %v, want 1", s.Len())
	}
}
