package processor

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/adverant/nexus/screenscan-worker/internal/errors"
)

// Disposition is the terminal state of one image
type Disposition string

const (
	DispositionDeleted     Disposition = "deleted"
	DispositionCropped     Disposition = "cropped"
	DispositionDuplicate   Disposition = "duplicate"
	DispositionFailed      Disposition = "failed"
	DispositionQuarantined Disposition = "quarantined"
	DispositionDropped     Disposition = "dropped"
)

// Outcome records what happened to one image
type Outcome struct {
	ImagePath    string
	Disposition  Disposition
	ArtifactPath string
	Matches      []int
	TextLength   int
	Err          error
	Duration     time.Duration
	ProcessedAt  time.Time
}

// ErrorCode returns the structured code of Err, "" when there is none
func (o Outcome) ErrorCode() string {
	if o.Err == nil {
		return ""
	}
	if code := apperrors.CodeOf(o.Err); code != "" {
		return string(code)
	}
	return "UNKNOWN"
}

// ErrorMessage returns Err's text, "" when there is none
func (o Outcome) ErrorMessage() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Observer receives every outcome, one at a time, in processing order.
// Observer errors are logged and never affect routing.
type Observer interface {
	Observe(ctx context.Context, outcome Outcome) error
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(ctx context.Context, outcome Outcome) error

func (f ObserverFunc) Observe(ctx context.Context, outcome Outcome) error {
	return f(ctx, outcome)
}

// Stats counts outcomes per disposition
type Stats struct {
	Received    int64
	Deleted     int64
	Cropped     int64
	Duplicates  int64
	Failed      int64
	Quarantined int64
	Dropped     int64
}

type statsCounter struct {
	mu    sync.Mutex
	stats Stats
}

func (s *statsCounter) received() {
	s.mu.Lock()
	s.stats.Received++
	s.mu.Unlock()
}

func (s *statsCounter) record(d Disposition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch d {
	case DispositionDeleted:
		s.stats.Deleted++
	case DispositionCropped:
		s.stats.Cropped++
	case DispositionDuplicate:
		s.stats.Duplicates++
	case DispositionFailed:
		s.stats.Failed++
	case DispositionQuarantined:
		s.stats.Quarantined++
	case DispositionDropped:
		s.stats.Dropped++
	}
}

func (s *statsCounter) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
