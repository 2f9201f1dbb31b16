package journal

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Journal is an append-only record of executed steps, persisted as JSON
// lines (one record per line).
type Journal struct {
	mu      sync.Mutex
	records []*Record
	path    string

	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// Open loads an existing journal file or starts an empty one.
func Open(path string) (*Journal, error) {
	j := &Journal{path: path}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		_ = f.Close()
		return j, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode journal entry: %w", err)
		}
		j.records = append(j.records, &rec)
	}
	return j, nil
}

// SetSigner makes Append sign every record hash with the given key.
func (j *Journal) SetSigner(priv ed25519.PrivateKey, pub ed25519.PublicKey) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.priv = priv
	j.pub = pub
}

// Append verifies the chain link, signs the record when a signer is
// configured, persists it and keeps it in memory.
func (j *Journal) Append(rec *Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	// Recompute the hash so the canonical fields and the hash cannot drift.
	h, err := rec.ComputeHash()
	if err != nil {
		return fmt.Errorf("recompute record hash: %w", err)
	}
	rec.Hash = h

	if len(j.records) > 0 {
		last := j.records[len(j.records)-1]
		if rec.PrevHash != last.Hash {
			return fmt.Errorf("prevHash mismatch: expected %s, got %s", last.Hash, rec.PrevHash)
		}
	}

	return j.appendLocked(rec)
}

// AppendStep builds and appends a record for one executed step, assigning
// the index and prev-hash link under the journal's own lock. Concurrent
// callers (parallel matrix variants, simultaneous uploads) must use this
// instead of the NextIndex/LastHash/Append sequence, which races.
func (j *Journal) AppendStep(runID, variant, step, status, logPath, logHash string) (*Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	prev := ""
	if len(j.records) > 0 {
		prev = j.records[len(j.records)-1].Hash
	}
	rec, err := NewRecord(len(j.records), runID, variant, step, status, logPath, logHash, prev)
	if err != nil {
		return nil, err
	}
	if err := j.appendLocked(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// appendLocked signs, persists and retains a record whose hash and chain
// link are already settled. Callers hold j.mu.
func (j *Journal) appendLocked(rec *Record) error {
	if len(j.priv) > 0 {
		sig := ed25519.Sign(j.priv, []byte(rec.Hash))
		rec.Signature = hex.EncodeToString(sig)
		rec.PubKey = hex.EncodeToString(j.pub)
	}

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(rec); err != nil {
		return fmt.Errorf("write journal file: %w", err)
	}

	j.records = append(j.records, rec)
	return nil
}

// Records returns the in-memory view of the journal.
func (j *Journal) Records() []*Record {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.records
}

// NextIndex returns the index the next record should carry.
func (j *Journal) NextIndex() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.records)
}

// LastHash returns the hash of the newest record, or empty if none.
func (j *Journal) LastHash() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.records) == 0 {
		return ""
	}
	return j.records[len(j.records)-1].Hash
}
