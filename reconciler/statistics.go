package reconciler

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/crmarques/catalogsync/resource"
)

// Counts is a point-in-time copy of the counters.
type Counts struct {
	Processed  int64
	Created    int64
	Updated    int64
	Failed     int64
	Unresolved int64
}

// Statistics is shared by concurrently running chunks; counters are atomic.
type Statistics struct {
	Kind resource.Kind

	processed  atomic.Int64
	created    atomic.Int64
	updated    atomic.Int64
	failed     atomic.Int64
	unresolved atomic.Int64

	mu       sync.Mutex
	errors   []string
	warnings []string
}

func NewStatistics(kind resource.Kind) *Statistics {
	return &Statistics{Kind: kind}
}

func (s *Statistics) Counts() Counts {
	return Counts{
		Processed:  s.processed.Load(),
		Created:    s.created.Load(),
		Updated:    s.updated.Load(),
		Failed:     s.failed.Load(),
		Unresolved: s.unresolved.Load(),
	}
}

func (s *Statistics) Errors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.errors...)
}

func (s *Statistics) Warnings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.warnings...)
}

func (s *Statistics) addError(message string) {
	s.mu.Lock()
	s.errors = append(s.errors, message)
	s.mu.Unlock()
}

func (s *Statistics) addWarning(message string) {
	s.mu.Lock()
	s.warnings = append(s.warnings, message)
	s.mu.Unlock()
}

// Merge adds other's counters and messages to s.
func (s *Statistics) Merge(other *Statistics) {
	if other == nil {
		return
	}
	counts := other.Counts()
	s.processed.Add(counts.Processed)
	s.created.Add(counts.Created)
	s.updated.Add(counts.Updated)
	s.failed.Add(counts.Failed)
	s.unresolved.Add(counts.Unresolved)
	for _, message := range other.Errors() {
		s.addError(message)
	}
	for _, message := range other.Warnings() {
		s.addWarning(message)
	}
}

func (s *Statistics) Report() string {
	counts := s.Counts()
	return fmt.Sprintf(
		"Summary: %d %s were processed in total (%d created, %d updated, %d failed to sync and %d with missing references).",
		counts.Processed,
		plural(s.Kind),
		counts.Created,
		counts.Updated,
		counts.Failed,
		counts.Unresolved,
	)
}

func plural(kind resource.Kind) string {
	name := string(kind)
	if name == "" {
		return "resources"
	}
	if strings.HasSuffix(name, "y") {
		return strings.TrimSuffix(name, "y") + "ies"
	}
	return name + "s"
}
