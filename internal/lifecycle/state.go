// Package lifecycle coordinates the service's runtime phases: staged
// startup ingestion, uploads, periodic source refresh, and shutdown.
package lifecycle

import (
	"sync"
)

// SourceError records a failed source load for the health surface.
type SourceError struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// StateSnapshot is the point-in-time view of loading progress returned
// by the health endpoint and the list_skills tool.
type StateSnapshot struct {
	SourcesTotal int           `json:"sources_total"`
	SourcesDone  int           `json:"sources_done"`
	SkillsLoaded int           `json:"skills_loaded"`
	Errors       []SourceError `json:"errors"`
	IsComplete   bool          `json:"is_complete"`
}

// LoadState tracks background ingestion progress. Writers are the
// startup workers; readers are tool and HTTP handlers, so reads take
// the shared lock.
type LoadState struct {
	mu           sync.RWMutex
	sourcesTotal int
	sourcesDone  int
	skillsLoaded int
	errors       []SourceError
}

// NewLoadState creates state tracking for the given number of sources.
// Zero sources is immediately complete.
func NewLoadState(sourcesTotal int) *LoadState {
	return &LoadState{sourcesTotal: sourcesTotal}
}

// SourceDone records a completed source load and the skills it contributed.
func (s *LoadState) SourceDone(skills int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sourcesDone++
	s.skillsLoaded += skills
}

// SourceFailed records a failed source load. The source still counts as
// done: loading completes even when some sources fail.
func (s *LoadState) SourceFailed(sourceID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sourcesDone++
	s.errors = append(s.errors, SourceError{Source: sourceID, Message: err.Error()})
}

// RootErrors records non-fatal per-root load errors from a source that
// otherwise loaded. They surface on the health endpoint without
// affecting completion.
func (s *LoadState) RootErrors(sourceID string, errs []error) {
	if len(errs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, err := range errs {
		s.errors = append(s.errors, SourceError{Source: sourceID, Message: err.Error()})
	}
}

// SkillsAdded adjusts the loaded-skill counter after uploads or refresh
// replacements. delta may be negative.
func (s *LoadState) SkillsAdded(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skillsLoaded += delta
	if s.skillsLoaded < 0 {
		s.skillsLoaded = 0
	}
}

// Complete reports whether every configured source finished loading.
func (s *LoadState) Complete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sourcesDone >= s.sourcesTotal
}

// Snapshot returns a consistent copy of the current state.
func (s *LoadState) Snapshot() StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	errs := make([]SourceError, len(s.errors))
	copy(errs, s.errors)

	return StateSnapshot{
		SourcesTotal: s.sourcesTotal,
		SourcesDone:  s.sourcesDone,
		SkillsLoaded: s.skillsLoaded,
		Errors:       errs,
		IsComplete:   s.sourcesDone >= s.sourcesTotal,
	}
}
