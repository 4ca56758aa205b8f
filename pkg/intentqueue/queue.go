package intentqueue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"
)

const (
	dirIntents    = "intents"
	dirProcessing = "intents/_processing"
	dirProcessed  = "intents/_processed"
	dirResults    = "results"
	dirProposals  = "proposals"
	dirVerdicts   = "verdicts"
)

// Queue is the filesystem-backed exchange described in spec §4.6. It is the
// sole synchronization point between the cycle engine and any out-of-process
// producers/consumers ("a separate lab that writes intents and reads
// results"). Every publish is write-to-tmp + atomic rename, the same
// pattern internal/statestore uses, and every claim is an atomic rename
// into _processing/ so at most one consumer ever wins a given file.
type Queue struct {
	root string
	pid  int
}

// Root returns the queue's root directory.
func (q *Queue) Root() string { return q.root }

// Open roots a Queue at dir, creating every required subdirectory.
func Open(dir string) (*Queue, error) {
	q := &Queue{root: dir, pid: os.Getpid()}
	for _, sub := range []string{dirIntents, dirProcessing, dirProcessed, dirResults, dirProposals, dirVerdicts} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("intentqueue: mkdir %s: %w", sub, err)
		}
	}
	return q, nil
}

func (q *Queue) path(sub string, elems ...string) string {
	return filepath.Join(append([]string{q.root, sub}, elems...)...)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// NewIntentID mints a fresh intent identifier.
func NewIntentID() string {
	return uuid.NewString()
}

// PublishIntent writes a new intent file into intents/ using the
// `${timestamp}.${pid}.${id}.intent.json` naming convention, so consumers
// listing the directory get FIFO ordering for free via lexicographic sort.
func (q *Queue) PublishIntent(intent Intent) error {
	if intent.ID == "" {
		intent.ID = NewIntentID()
	}
	if intent.Type == "" {
		intent.Type = "execution-intent"
	}
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(intent, "", "  ")
	if err != nil {
		return fmt.Errorf("intentqueue: marshal intent: %w", err)
	}
	name := fmt.Sprintf("%020d.%d.%s.intent.json", intent.CreatedAt.UnixNano(), q.pid, intent.ID)
	return writeAtomic(q.path(dirIntents, name), data)
}

// Claimed is one successfully claimed intent file: the parsed Intent plus
// the path it now lives at under _processing/, needed later to archive it.
type Claimed struct {
	Intent Intent
	Path   string
}

// ClaimIntents lists intents/, sorted lexicographically (timestamp-prefixed
// names sort FIFO), and attempts to claim up to maxPerCycle of them by
// atomically renaming into _processing/. A rename failure means another
// consumer won the race; that file is skipped, not retried. Empty or
// unparseable files are archived immediately with an .invalid/.empty
// suffix and do not count against maxPerCycle.
func (q *Queue) ClaimIntents(maxPerCycle int) ([]Claimed, error) {
	entries, err := os.ReadDir(q.path(dirIntents))
	if err != nil {
		return nil, fmt.Errorf("intentqueue: list intents: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".intent.json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	claimed := make([]Claimed, 0, maxPerCycle)
	for _, name := range names {
		if len(claimed) >= maxPerCycle {
			break
		}
		src := q.path(dirIntents, name)
		dst := q.path(dirProcessing, name)
		if err := os.Rename(src, dst); err != nil {
			// Lost the race to another consumer, or the file vanished; skip.
			continue
		}

		data, err := os.ReadFile(dst)
		if err != nil || len(data) == 0 {
			q.archiveRaw(dst, "empty")
			continue
		}
		var intent Intent
		if err := json.Unmarshal(data, &intent); err != nil {
			logx.Errorf("intentqueue: invalid intent file %s: %v", name, err)
			q.archiveRaw(dst, "invalid")
			continue
		}
		claimed = append(claimed, Claimed{Intent: intent, Path: dst})
	}
	return claimed, nil
}

// Archive moves a claimed intent from _processing/ into _processed/ with a
// status-encoded suffix, per spec §4.6.
func (q *Queue) Archive(c Claimed, status ResultStatus) error {
	return q.archiveRaw(c.Path, string(status))
}

func (q *Queue) archiveRaw(processingPath, suffix string) error {
	name := strings.TrimSuffix(filepath.Base(processingPath), ".intent.json")
	dst := q.path(dirProcessed, fmt.Sprintf("%s.%s.json", name, suffix))
	if err := os.Rename(processingPath, dst); err != nil {
		return fmt.Errorf("intentqueue: archive: %w", err)
	}
	return nil
}

// PublishResult writes an ExecutionResult into results/, keyed by intent id
// so duplicate writes (e.g. from a retried apply) overwrite deterministically.
func (q *Queue) PublishResult(r Result) error {
	if r.Type == "" {
		r.Type = "execution-result"
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("intentqueue: marshal result: %w", err)
	}
	name := fmt.Sprintf("%s.result.json", r.IntentID)
	return writeAtomic(q.path(dirResults, name), data)
}

// PublishProposal writes an ImprovementProposal into proposals/.
func (q *Queue) PublishProposal(p Proposal) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Type == "" {
		p.Type = "improvement-proposal"
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("intentqueue: marshal proposal: %w", err)
	}
	return writeAtomic(q.path(dirProposals, p.ID+".proposal.json"), data)
}

// PublishVerdict writes an ImprovementVerdict into verdicts/, keyed by
// proposal id (idempotent overwrite on duplicate judging).
func (q *Queue) PublishVerdict(v Verdict) error {
	if v.Type == "" {
		v.Type = "improvement-verdict"
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("intentqueue: marshal verdict: %w", err)
	}
	return writeAtomic(q.path(dirVerdicts, v.ProposalID+".verdict.json"), data)
}

// ReadVerdict looks up a previously published verdict by proposal id, used
// by the engine to observe acceptance before swapping in a new policy.
func (q *Queue) ReadVerdict(proposalID string) (*Verdict, error) {
	data, err := os.ReadFile(q.path(dirVerdicts, proposalID+".verdict.json"))
	if err != nil {
		return nil, err
	}
	var v Verdict
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("intentqueue: unmarshal verdict: %w", err)
	}
	return &v, nil
}
