// Package ledger is an append-only, hash-chained log of tier changes.
//
// Each entry commits to its predecessor's hash; content hashes are computed
// over RFC 8785 canonical JSON so any implementation can re-derive them.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/Mindburn-Labs/trustengine/pkg/staking"
)

// GenesisHash is the predecessor of the first entry.
const GenesisHash = "genesis"

var (
	ErrNotFound    = errors.New("ledger entry not found")
	ErrChainBroken = errors.New("ledger chain broken")
)

// Entry is an immutable, hash-chained tier change.
type Entry struct {
	Sequence    uint64             `json:"sequence"`
	ContentHash string             `json:"content_hash"`
	PrevHash    string             `json:"prev_hash"`
	RecordedAt  time.Time          `json:"recorded_at"`
	Change      staking.TierChange `json:"change"`
}

// Log is an append-only tier change ledger. Safe for concurrent use.
type Log struct {
	mu       sync.RWMutex
	entries  []Entry
	headHash string
	clock    func() time.Time
}

// New creates an empty ledger.
func New() *Log {
	return &Log{
		entries:  make([]Entry, 0),
		headHash: GenesisHash,
		clock:    time.Now,
	}
}

// WithClock overrides clock for testing.
func (l *Log) WithClock(clock func() time.Time) *Log {
	l.clock = clock
	return l
}

// Append adds a change to the ledger. Returns the sequence number.
func (l *Log) Append(change staking.TierChange) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := uint64(len(l.entries)) + 1
	contentHash, err := hashEntry(seq, change, l.headHash)
	if err != nil {
		return 0, err
	}

	l.entries = append(l.entries, Entry{
		Sequence:    seq,
		ContentHash: contentHash,
		PrevHash:    l.headHash,
		RecordedAt:  l.clock(),
		Change:      change,
	})
	l.headHash = contentHash
	return seq, nil
}

// Get retrieves an entry by sequence number.
func (l *Log) Get(seq uint64) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if seq == 0 || seq > uint64(len(l.entries)) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, seq)
	}
	entry := l.entries[seq-1]
	return &entry, nil
}

// Head returns the current head hash.
func (l *Log) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.headHash
}

// Length returns the number of entries.
func (l *Log) Length() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Entries returns the entries for one account in append order. An empty
// account returns every entry.
func (l *Log) Entries(account string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, 0)
	for _, e := range l.entries {
		if account == "" || e.Change.Account == account {
			out = append(out, e)
		}
	}
	return out
}

// Verify checks the integrity of the entire chain.
func (l *Log) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prevHash := GenesisHash
	for i, entry := range l.entries {
		if entry.PrevHash != prevHash {
			return fmt.Errorf("%w at entry %d: expected prev %s, got %s", ErrChainBroken, i+1, prevHash, entry.PrevHash)
		}
		computed, err := hashEntry(entry.Sequence, entry.Change, entry.PrevHash)
		if err != nil {
			return err
		}
		if computed != entry.ContentHash {
			return fmt.Errorf("%w: hash mismatch at entry %d", ErrChainBroken, i+1)
		}
		prevHash = entry.ContentHash
	}
	return nil
}

// hashEntry excludes RecordedAt: the chain commits to the change, not to
// the wall clock of the process that appended it.
func hashEntry(seq uint64, change staking.TierChange, prev string) (string, error) {
	hashInput := struct {
		Seq      uint64             `json:"seq"`
		Change   staking.TierChange `json:"change"`
		PrevHash string             `json:"prev"`
	}{seq, change, prev}

	raw, err := json.Marshal(hashInput)
	if err != nil {
		return "", fmt.Errorf("failed to marshal entry: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize entry: %w", err)
	}
	h := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}
