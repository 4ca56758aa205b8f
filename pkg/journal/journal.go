// Package journal writes one audit record per cycle engine iteration,
// generalized from the teacher's per-trader decision journal to the core's
// cycle vocabulary (intents/results rather than leveraged-perp decisions).
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CycleRecord captures one Cycle Engine iteration (spec §4.8) for audit.
type CycleRecord struct {
	Timestamp       time.Time        `json:"timestamp"`
	Cycle           int64            `json:"cycle"`
	PricesFetched   int              `json:"prices_fetched"`
	ExitIntents     int              `json:"exit_intents"`
	PlannerIntents  int              `json:"planner_intents"`
	IntentsJSON     string           `json:"intents_json,omitempty"`
	Actions         []map[string]any `json:"actions,omitempty"`
	ProposalEmitted bool             `json:"proposal_emitted"`
	Success         bool             `json:"success"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	Extra           map[string]any   `json:"extra,omitempty"`
}

// Writer persists cycle records to a directory as timestamped JSON files.
type Writer struct {
	dir   string
	seq   int
	nowFn func() time.Time
}

// NewWriter constructs a journal writer, defaulting dir to "journal".
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "journal"
	}
	_ = os.MkdirAll(dir, 0o755)
	return &Writer{dir: dir, nowFn: time.Now}
}

// WriteCycle writes rec to a timestamped JSON file under the journal dir.
func (w *Writer) WriteCycle(rec *CycleRecord) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("journal: nil record")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = w.nowFn()
	}
	w.seq++
	name := fmt.Sprintf("cycle_%s_%05d.json", rec.Timestamp.UTC().Format("20060102_150405"), w.seq)
	path := filepath.Join(w.dir, name)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
