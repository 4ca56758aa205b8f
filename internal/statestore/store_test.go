package statestore

import (
	"os"
	"path/filepath"
	"testing"

	"nof0-agent/pkg/bigamount"
)

func TestLoadMissingFileInitializes(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "state.json"))
	if err != nil {
		t.Fatal(err)
	}
	initial := bigamount.MustFromDecimalString("10000000000")
	st := s.Load(initial)
	if st.CashLamports.Cmp(initial) != 0 {
		t.Errorf("expected fresh state to start with initial cash, got %s", st.CashLamports)
	}
	if st.Positions == nil || st.LastIntentAt == nil || st.MarketHistory == nil {
		t.Error("expected New() to initialize all maps")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	s, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	st := New(bigamount.MustFromDecimalString("10000000000"))
	st.Cycle = 5
	st.Positions["M1"] = &Position{
		Symbol:       "M1",
		Decimals:     6,
		RawAmount:    bigamount.MustFromDecimalString("500000000"),
		CostLamports: bigamount.MustFromDecimalString("1000000000"),
	}

	if err := s.Save(st); err != nil {
		t.Fatal(err)
	}

	s2, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	got := s2.Load(bigamount.Zero())
	if got.Cycle != 5 {
		t.Errorf("cycle = %d, want 5", got.Cycle)
	}
	pos, ok := got.Positions["M1"]
	if !ok {
		t.Fatal("expected position M1 to round-trip")
	}
	if pos.RawAmount.ToDecimalString() != "500000000" {
		t.Errorf("raw_amount = %s, want 500000000", pos.RawAmount)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected state file to exist: %v", err)
	}
}

func TestLoadCorruptFileReinitializes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	initial := bigamount.MustFromDecimalString("42")
	st := s.Load(initial)
	if st.CashLamports.Cmp(initial) != 0 {
		t.Errorf("expected reinitialized state on corrupt file, got %s", st.CashLamports)
	}
}

func TestSanitizeTruncatesHistoryAndClampsCounters(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "state.json"), WithHistoryKeepPoints(2))
	if err != nil {
		t.Fatal(err)
	}
	st := New(bigamount.Zero())
	st.FilledCount = -3
	st.MarketHistory["M1"] = []PricePoint{{TS: 1}, {TS: 2}, {TS: 3}, {TS: 4}}
	s.sanitize(st)
	if st.FilledCount != 0 {
		t.Errorf("expected negative FilledCount clamped to zero, got %d", st.FilledCount)
	}
	if len(st.MarketHistory["M1"]) != 2 {
		t.Errorf("expected history truncated to 2 points, got %d", len(st.MarketHistory["M1"]))
	}
	if st.MarketHistory["M1"][0].TS != 3 {
		t.Errorf("expected truncation to keep the newest points, got %+v", st.MarketHistory["M1"])
	}
}
