package intentqueue

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPublishAndClaimIsFIFO(t *testing.T) {
	dir := t.TempDir()
	q, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, mint := range []string{"M1", "M2", "M3"} {
		if err := q.PublishIntent(Intent{Action: ActionBuy, OutputMint: mint, AmountLamports: "1"}); err != nil {
			t.Fatal(err)
		}
	}
	claimed, err := q.ClaimIntents(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claimed intents, got %d", len(claimed))
	}
	if claimed[0].Intent.OutputMint != "M1" || claimed[1].Intent.OutputMint != "M2" {
		t.Errorf("expected FIFO order M1,M2, got %s,%s", claimed[0].Intent.OutputMint, claimed[1].Intent.OutputMint)
	}
}

func TestClaimRaceOnlyOneWinner(t *testing.T) {
	dir := t.TempDir()
	q, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.PublishIntent(Intent{Action: ActionBuy, OutputMint: "M1", AmountLamports: "1"}); err != nil {
		t.Fatal(err)
	}
	a, err := q.ClaimIntents(10)
	if err != nil {
		t.Fatal(err)
	}
	b, err := q.ClaimIntents(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 1 || len(b) != 0 {
		t.Errorf("expected exactly one claimer to win, got a=%d b=%d", len(a), len(b))
	}
}

func TestArchiveMovesWithStatusSuffix(t *testing.T) {
	dir := t.TempDir()
	q, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.PublishIntent(Intent{ID: "abc", Action: ActionBuy, OutputMint: "M1", AmountLamports: "1"}); err != nil {
		t.Fatal(err)
	}
	claimed, err := q.ClaimIntents(1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim failed: %v %d", err, len(claimed))
	}
	if err := q.Archive(claimed[0], StatusFilled); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(filepath.Join(dir, dirProcessed))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 processed file, got %d", len(entries))
	}
	if !strings.HasSuffix(entries[0].Name(), ".filled.json") {
		t.Errorf("expected .filled.json suffix, got %s", entries[0].Name())
	}
}

func TestEmptyAndInvalidFilesAreArchivedNotClaimed(t *testing.T) {
	dir := t.TempDir()
	q, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, dirIntents, "0001.1.bad.intent.json"), []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, dirIntents, "0002.1.garbled.intent.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	claimed, err := q.ClaimIntents(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 0 {
		t.Errorf("expected no claimable intents, got %d", len(claimed))
	}
	entries, err := os.ReadDir(filepath.Join(dir, dirProcessed))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected both bad files archived, got %d", len(entries))
	}
}

func TestPublishResultIdempotentByIntentID(t *testing.T) {
	dir := t.TempDir()
	q, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.PublishResult(Result{IntentID: "abc", Status: StatusFilled, InputAmount: "1", OutputAmount: "2"}); err != nil {
		t.Fatal(err)
	}
	if err := q.PublishResult(Result{IntentID: "abc", Status: StatusFilled, InputAmount: "1", OutputAmount: "3"}); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(filepath.Join(dir, dirResults))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected duplicate writes for the same intent_id to overwrite, got %d files", len(entries))
	}
}
