package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"nof0-agent/pkg/bigamount"
)

// DefaultHistoryKeepPoints bounds the rolling market history per mint kept
// in AgentState, trimming the oldest samples on every save.
const DefaultHistoryKeepPoints = 500

// Store is the single-writer, single-reader persistence layer for
// AgentState. Save uses write-to-temp + atomic rename, the same pattern
// the polymarket-mm store and the coinbase trader use for crash-safe state
// files: a torn write can never leave state.json partially written because
// the rename is the only operation that makes the new bytes visible under
// the final name.
type Store struct {
	path              string
	historyKeepPoints int
}

// Option configures a Store.
type Option func(*Store)

// WithHistoryKeepPoints overrides DefaultHistoryKeepPoints.
func WithHistoryKeepPoints(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.historyKeepPoints = n
		}
	}
}

// New constructs a Store backed by the JSON file at path. The parent
// directory is created if missing.
func New(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("statestore: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("statestore: mkdir: %w", err)
	}
	s := &Store{path: path, historyKeepPoints: DefaultHistoryKeepPoints}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load returns the latest persisted state, or a freshly initialized state
// (per spec §4.3) when the file is missing or fails to parse. A parse
// failure is logged but never fatal: the store re-initializes and the next
// Save overwrites the corrupt file.
func (s *Store) Load(defaultInitialCash bigamount.Amount) *AgentState {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logx.Errorf("statestore: read %s failed, reinitializing: %v", s.path, err)
		}
		return New(defaultInitialCash)
	}

	var st AgentState
	if err := json.Unmarshal(data, &st); err != nil {
		logx.Errorf("statestore: corrupt state at %s, reinitializing: %v", s.path, err)
		return New(defaultInitialCash)
	}
	s.sanitize(&st)
	return &st
}

// Save sanitizes and atomically persists state, stamping UpdatedAt.
func (s *Store) Save(st *AgentState) error {
	if st == nil {
		return fmt.Errorf("statestore: nil state")
	}
	s.sanitize(st)
	st.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("statestore: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("statestore: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("statestore: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("statestore: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("statestore: rename: %w", err)
	}
	return nil
}

// sanitize enforces the invariants spec §4.3 requires on both load and
// save: negative counters reset to zero, history truncated to the keep
// window, and every map initialized so downstream code never nil-derefs.
func (s *Store) sanitize(st *AgentState) {
	if st.Cycle < 0 {
		st.Cycle = 0
	}
	if st.FilledCount < 0 {
		st.FilledCount = 0
	}
	if st.FailedCount < 0 {
		st.FailedCount = 0
	}
	if st.ClosedTradeCount < 0 {
		st.ClosedTradeCount = 0
	}
	if st.Positions == nil {
		st.Positions = make(map[string]*Position)
	}
	if st.LastIntentAt == nil {
		st.LastIntentAt = make(map[string]int64)
	}
	if st.MarketHistory == nil {
		st.MarketHistory = make(map[string][]PricePoint)
	}
	if st.PerpPositions == nil {
		st.PerpPositions = make(map[string]*PerpPosition)
	}

	// Drop zero-amount residues (invariant P1) defensively, in case a prior
	// version of the code wrote one.
	for mint, pos := range st.Positions {
		if pos == nil || pos.RawAmount.IsZero() {
			delete(st.Positions, mint)
		}
	}

	keep := s.historyKeepPoints
	if keep <= 0 {
		keep = DefaultHistoryKeepPoints
	}
	for mint, points := range st.MarketHistory {
		if len(points) > keep {
			st.MarketHistory[mint] = points[len(points)-keep:]
		}
	}
}

// Path returns the backing file path, mainly for logging and tests.
func (s *Store) Path() string {
	return s.path
}
