package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/qrharvest/internal/dedup"
	"github.com/MeKo-Tech/qrharvest/internal/store"
)

// Session is the state of one capture session: the identities captured so
// far, the chosen output location with its loaded index, and counters.
// Process, Reset and SetOutputDir are serialized, so a reset waits for the
// frame in flight.
type Session struct {
	p *Pipeline

	mu        sync.Mutex
	id        string
	outputDir string
	set       *dedup.SessionSet
	loc       Location
	stats     Stats
}

func newSession(p *Pipeline, outputDir string) *Session {
	return &Session{
		p:         p,
		id:        uuid.NewString(),
		outputDir: outputDir,
		set:       dedup.NewSessionSet(),
		stats:     Stats{Started: p.now()},
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.SessionID = s.id
	if s.loc != nil {
		st.OutputDir = s.loc.Dir()
	}
	return st
}

// Captured returns the identities captured in this session.
func (s *Session) Captured() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Keys()
}

// Reset starts a new session: the session set and counters are cleared and
// the output location index is reloaded before the next capture.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = uuid.NewString()
	s.set.Clear()
	s.stats = Stats{Started: s.p.now()}
	return s.closeLocation()
}

// SetOutputDir switches the output location; empty selects the default. The
// index of the new location is loaded before the next capture. The session
// set is kept.
func (s *Session) SetOutputDir(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dir == s.outputDir && s.loc != nil {
		return nil
	}
	s.outputDir = dir
	return s.closeLocation()
}

// Location returns the output location, creating and loading it if needed.
func (s *Session) Location(ctx context.Context) (Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocation(ctx)
}

// Reload reloads the persistent index of the current output location.
func (s *Session) Reload(ctx context.Context) (*store.LoadReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, err := s.ensureLocation(ctx)
	if err != nil {
		return nil, err
	}
	return loc.Load(ctx)
}

// Close releases the output location.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocation()
}

func (s *Session) closeLocation() error {
	if s.loc == nil {
		return nil
	}
	err := s.loc.Close()
	s.loc = nil
	return err
}

// ensureLocation must be called with mu held.
func (s *Session) ensureLocation(ctx context.Context) (Location, error) {
	if s.loc != nil {
		return s.loc, nil
	}
	dir := s.outputDir
	if dir == "" {
		dir = s.p.cfg.DefaultDir
	}
	loc, err := s.p.opener(dir)
	if err != nil {
		return nil, fmt.Errorf("open output location %s: %w", dir, err)
	}
	start := time.Now()
	report, err := loc.Load(ctx)
	if err != nil {
		_ = loc.Close()
		return nil, fmt.Errorf("load index for %s: %w", dir, err)
	}
	s.p.logger.Info("output location ready",
		"dir", loc.Dir(),
		"known", report.Total,
		"recovered", report.Recovered,
		"metadata_corrupt", report.MetadataCorrupt,
		"elapsed", time.Since(start).Round(time.Millisecond))
	s.loc = loc
	return loc, nil
}
