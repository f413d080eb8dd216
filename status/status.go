// Copyright © 2018 The ELPS authors

package status

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Backend names the execution strategy that produced a result.
type Backend string

const (
	BackendNone           Backend = ""
	BackendInjection      Backend = "injection"
	BackendInterpretation Backend = "interpretation"
)

// Status accumulates the outcome of one evaluation attempt.  The kind is
// write-once: the first terminal outcome recorded wins and later ones are
// ignored.  A Status is reported exactly once.
type Status struct {
	id       uuid.UUID
	language string
	start    time.Time

	mu       sync.Mutex
	kind     Kind
	err      error
	backend  Backend
	markers  []Kind
	reported bool
}

// New returns a Status for an evaluation of code in the given language.
func New(language string) *Status {
	return &Status{
		id:       uuid.New(),
		language: language,
		start:    time.Now(),
	}
}

// ID identifies the evaluation attempt.
func (s *Status) ID() uuid.UUID {
	return s.id
}

// Fail records the terminal outcome of the evaluation.  Fail returns false
// if an outcome was already recorded.
func (s *Status) Fail(kind Kind, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kind != Success || kind == Success {
		return false
	}
	s.kind = kind
	s.err = err
	return true
}

// Mark records a non-terminal condition, such as a backend fallback.
func (s *Status) Mark(kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.markers {
		if k == kind {
			return
		}
	}
	s.markers = append(s.markers, kind)
}

// SetBackend records the strategy that ran the compiled fragment.
func (s *Status) SetBackend(b Backend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend = b
}

// Kind returns the recorded outcome, Success if none was recorded.
func (s *Status) Kind() Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kind
}

// Err returns the error recorded with the outcome.
func (s *Status) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Backend returns the recorded execution strategy.
func (s *Status) Backend() Backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend
}

// Marked reports whether kind was recorded as a marker.
func (s *Status) Marked(kind Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.markers {
		if k == kind {
			return true
		}
	}
	return false
}

// Report is a snapshot of a Status sent to a Reporter.
type Report struct {
	ID       uuid.UUID
	Kind     Kind
	Err      error
	Backend  Backend
	Language string
	Markers  []Kind
	Duration time.Duration
}

// Reporter receives evaluation reports.
type Reporter interface {
	Report(ctx context.Context, r *Report)
}

// Send reports the status to r.  Only the first call to Send has any effect.
func (s *Status) Send(ctx context.Context, r Reporter) {
	s.mu.Lock()
	if s.reported {
		s.mu.Unlock()
		return
	}
	s.reported = true
	report := &Report{
		ID:       s.id,
		Kind:     s.kind,
		Err:      s.err,
		Backend:  s.backend,
		Language: s.language,
		Markers:  append([]Kind(nil), s.markers...),
		Duration: time.Since(s.start),
	}
	s.mu.Unlock()
	if r != nil {
		r.Report(ctx, report)
	}
}
