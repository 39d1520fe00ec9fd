package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/tobyv/warbler/domain"
)

// Queue is a durable at-most-once work queue backed by per-entry JSON files
// moved between state directories. Claiming is an os.Rename from pending/
// to claimed/, which is atomic on POSIX filesystems: of two concurrent
// claimers, exactly one rename succeeds and the other sees ENOENT.
type Queue struct {
	root         string
	reclaimAfter time.Duration
	now          func() time.Time
}

const (
	dirPending = "pending"
	dirClaimed = "claimed"
	dirDone    = "done"
	dirFailed  = "failed"
)

// NewQueue opens (and if necessary creates) a queue rooted at dir. Entries
// stuck in claimed/ longer than reclaimAfter become claimable again.
func NewQueue(dir string, reclaimAfter time.Duration) (*Queue, error) {
	for _, sub := range []string{dirPending, dirClaimed, dirDone, dirFailed} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("failed to create queue directory: %w", err)
		}
	}
	return &Queue{root: dir, reclaimAfter: reclaimAfter, now: time.Now}, nil
}

// Enqueue records a new pending entry carrying the raw activity. Entry ids
// are random, so concurrent enqueues never clobber each other.
func (q *Queue) Enqueue(activityID string, raw json.RawMessage) (string, error) {
	entry := domain.QueueEntry{
		ID:         uuid.New().String(),
		ActivityID: activityID,
		Activity:   raw,
		EnqueuedAt: q.now(),
	}

	buf, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("failed to marshal queue entry: %w", err)
	}

	// Write outside pending/, then rename in, so a claimer never reads a
	// half-written entry.
	tmp := filepath.Join(q.root, entry.ID+".tmp")
	if err := os.WriteFile(tmp, buf, 0644); err != nil {
		return "", fmt.Errorf("failed to write queue entry: %w", err)
	}
	if err := os.Rename(tmp, q.entryPath(dirPending, entry.ID)); err != nil {
		return "", fmt.Errorf("failed to enqueue entry: %w", err)
	}

	return entry.ID, nil
}

// ClaimNext atomically claims one pending entry, oldest first. Returns
// (nil, nil) when the queue is empty.
func (q *Queue) ClaimNext() (*domain.QueueEntry, error) {
	q.reclaimStale()

	names, err := q.listEntries(dirPending)
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		claimed := filepath.Join(q.root, dirClaimed, name)
		if err := os.Rename(filepath.Join(q.root, dirPending, name), claimed); err != nil {
			// Another claimer won the race for this entry; try the next one.
			continue
		}

		// Stamp the claim time for the staleness check.
		now := q.now()
		if err := os.Chtimes(claimed, now, now); err != nil {
			log.Warn("Failed to stamp claimed entry", "entry", name, "err", err)
		}

		buf, err := os.ReadFile(claimed)
		if err != nil {
			return nil, fmt.Errorf("failed to read claimed entry: %w", err)
		}
		var entry domain.QueueEntry
		if err := json.Unmarshal(buf, &entry); err != nil {
			return nil, fmt.Errorf("failed to parse claimed entry: %w", err)
		}
		return &entry, nil
	}

	return nil, nil
}

// Complete transitions a claimed entry to done. Completing an entry that
// already reached a terminal state is a no-op.
func (q *Queue) Complete(entryId string) error {
	err := os.Rename(q.entryPath(dirClaimed, entryId), q.entryPath(dirDone, entryId))
	if err == nil {
		return nil
	}
	if q.isTerminal(entryId) {
		return nil
	}
	return fmt.Errorf("failed to complete entry %s: %w", entryId, err)
}

// Fail transitions a claimed entry to failed, recording the reason. Like
// Complete, it is idempotent on already-terminal entries.
func (q *Queue) Fail(entryId, reason string) error {
	failed := q.entryPath(dirFailed, entryId)
	if err := os.Rename(q.entryPath(dirClaimed, entryId), failed); err != nil {
		if q.isTerminal(entryId) {
			return nil
		}
		return fmt.Errorf("failed to fail entry %s: %w", entryId, err)
	}

	// Best effort: annotate the terminal file with the failure reason.
	buf, err := os.ReadFile(failed)
	if err != nil {
		return nil
	}
	var entry domain.QueueEntry
	if err := json.Unmarshal(buf, &entry); err != nil {
		return nil
	}
	entry.FailReason = reason
	if annotated, err := json.Marshal(entry); err == nil {
		tmp := failed + ".tmp"
		if os.WriteFile(tmp, annotated, 0644) == nil {
			os.Rename(tmp, failed)
		}
	}
	return nil
}

// PendingCount reports how many entries currently await a claim.
func (q *Queue) PendingCount() (int, error) {
	names, err := q.listEntries(dirPending)
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

// reclaimStale moves claimed entries older than the reclaim threshold back
// to pending, so a crash mid-processing never loses an entry.
func (q *Queue) reclaimStale() {
	if q.reclaimAfter <= 0 {
		return
	}

	entries, err := os.ReadDir(filepath.Join(q.root, dirClaimed))
	if err != nil {
		return
	}

	cutoff := q.now().Add(-q.reclaimAfter)
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		src := filepath.Join(q.root, dirClaimed, e.Name())
		dst := filepath.Join(q.root, dirPending, e.Name())
		if err := os.Rename(src, dst); err == nil {
			log.Warn("Reclaimed stale queue entry", "entry", e.Name())
		}
	}
}

func (q *Queue) listEntries(state string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(q.root, state))
	if err != nil {
		return nil, fmt.Errorf("failed to read queue directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) == ".tmp" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (q *Queue) entryPath(state, entryId string) string {
	return filepath.Join(q.root, state, entryId+".json")
}

func (q *Queue) isTerminal(entryId string) bool {
	for _, state := range []string{dirDone, dirFailed} {
		if _, err := os.Stat(q.entryPath(state, entryId)); err == nil {
			return true
		}
	}
	return false
}
