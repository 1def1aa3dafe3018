package metrics

import (
	"sync"
	"testing"
)

func TestNew(t *testing.T) {
	c := New()
	if c == nil {
		t.Fatal("New() returned nil")
	}
}

func TestCollector_Counters(t *testing.T) {
	c := New()

	c.RecordAdded()
	c.RecordAdded()
	c.RecordAdded()
	c.RecordDuplicate()
	c.RecordDuplicate()
	c.RecordDropped()
	c.RecordPopped()
	c.RecordVisited()
	c.RecordVisitError()

	snap := c.Snapshot()
	tests := []struct {
		name string
		got  int64
		want int64
	}{
		{"URLsAdded", snap.URLsAdded, 3},
		{"DuplicatesSkipped", snap.DuplicatesSkipped, 2},
		{"Dropped", snap.Dropped, 1},
		{"Popped", snap.Popped, 1},
		{"Visited", snap.Visited, 1},
		{"VisitErrors", snap.VisitErrors, 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}

	if c.URLsAdded() != 3 || c.DuplicatesSkipped() != 2 || c.Dropped() != 1 || c.Popped() != 1 {
		t.Error("accessors disagree with snapshot")
	}
}

func TestCollector_Gauges(t *testing.T) {
	c := New()

	c.SetQueueDepth(42)
	c.AddActiveWorkers(3)
	c.AddActiveWorkers(-1)

	snap := c.Snapshot()
	if snap.QueueDepth != 42 {
		t.Errorf("QueueDepth = %d, want 42", snap.QueueDepth)
	}
	if snap.ActiveWorkers != 2 {
		t.Errorf("ActiveWorkers = %d, want 2", snap.ActiveWorkers)
	}
}

func TestSnapshot_DuplicateRate(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want float64
	}{
		{"empty", Snapshot{}, 0},
		{"no duplicates", Snapshot{URLsAdded: 10}, 0},
		{"half", Snapshot{URLsAdded: 5, DuplicatesSkipped: 5}, 0.5},
		{"with dropped", Snapshot{URLsAdded: 2, DuplicatesSkipped: 1, Dropped: 1}, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.snap.DuplicateRate(); got != tt.want {
				t.Errorf("DuplicateRate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSnapshot_Summary(t *testing.T) {
	c := New()
	c.RecordAdded()

	summary := c.Snapshot().Summary()
	for _, key := range []string{"urls_added", "duplicates_skipped", "dropped", "queue_depth", "visits_per_second"} {
		if _, ok := summary[key]; !ok {
			t.Errorf("Summary missing %q", key)
		}
	}
	if summary["urls_added"] != int64(1) {
		t.Errorf("summary[urls_added] = %v, want 1", summary["urls_added"])
	}
}

func TestCollector_VisitsPerSecond(t *testing.T) {
	c := New()
	for i := 0; i < 10; i++ {
		c.RecordVisited()
	}
	if rate := c.GetVisitsPerSecond(); rate <= 0 {
		t.Errorf("GetVisitsPerSecond() = %v, want > 0", rate)
	}
}

func TestCollector_Concurrent(t *testing.T) {
	c := New()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.RecordAdded()
				c.RecordDuplicate()
			}
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	if snap.URLsAdded != 10000 {
		t.Errorf("URLsAdded = %d, want 10000", snap.URLsAdded)
	}
	if snap.DuplicatesSkipped != 10000 {
		t.Errorf("DuplicatesSkipped = %d, want 10000", snap.DuplicatesSkipped)
	}
}
