package reconciler

import (
	"sync"
	"testing"

	"github.com/crmarques/catalogsync/resource"
)

func TestStatisticsReport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		kind     resource.Kind
		expected string
	}{
		{
			name:     "regular plural",
			kind:     resource.KindProduct,
			expected: "Summary: 3 products were processed in total (1 created, 1 updated, 0 failed to sync and 1 with missing references).",
		},
		{
			name:     "y plural",
			kind:     resource.KindCategory,
			expected: "Summary: 3 categories were processed in total (1 created, 1 updated, 0 failed to sync and 1 with missing references).",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stats := NewStatistics(tt.kind)
			stats.processed.Add(3)
			stats.created.Add(1)
			stats.updated.Add(1)
			stats.unresolved.Add(1)
			if got := stats.Report(); got != tt.expected {
				t.Fatalf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestStatisticsConcurrentUpdatesAndMerge(t *testing.T) {
	t.Parallel()

	stats := NewStatistics(resource.KindState)
	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			stats.processed.Add(1)
			stats.failed.Add(1)
			stats.addError("boom")
		})
	}
	wg.Wait()

	other := NewStatistics(resource.KindState)
	other.created.Add(2)
	other.addWarning("careful")
	stats.Merge(other)

	expected := Counts{Processed: 50, Created: 2, Failed: 50}
	if stats.Counts() != expected {
		t.Fatalf("expected %#v, got %#v", expected, stats.Counts())
	}
	if len(stats.Errors()) != 50 || len(stats.Warnings()) != 1 {
		t.Fatalf("unexpected messages: %d errors, %d warnings", len(stats.Errors()), len(stats.Warnings()))
	}
}
