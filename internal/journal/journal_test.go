package journal

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"matrixci/internal/security"
	"matrixci/pkg/utils"
)

func appendStep(t *testing.T, j *Journal, variant, step, status string) *Record {
	t.Helper()
	rec, err := NewRecord(j.NextIndex(), "run-1", variant, step, status, "", utils.HashString(step), j.LastHash())
	if err != nil {
		t.Fatalf("failed to create record: %v", err)
	}
	if err := j.Append(rec); err != nil {
		t.Fatalf("failed to append record: %v", err)
	}
	return rec
}

func TestNewRecordAndHash(t *testing.T) {
	rec, err := NewRecord(0, "run-1", "Python36", "Run tests", "succeeded", "", utils.HashString("output"), "")
	if err != nil {
		t.Fatalf("failed to create record: %v", err)
	}
	h, err := rec.ComputeHash()
	if err != nil {
		t.Fatalf("failed to recompute hash: %v", err)
	}
	if h != rec.Hash {
		t.Errorf("hash mismatch: got %s, want %s", rec.Hash, h)
	}
}

func TestJournalAppendAndVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}

	appendStep(t, j, "Python36", "Create conda environment", "succeeded")
	appendStep(t, j, "Python36", "Run tests", "failed")

	if err := j.Verify(); err != nil {
		t.Errorf("chain verification failed: %v", err)
	}
}

func TestJournalRejectsBrokenLink(t *testing.T) {
	j, _ := Open(filepath.Join(t.TempDir(), "journal.jsonl"))
	appendStep(t, j, "Python36", "step one", "succeeded")

	rec, _ := NewRecord(j.NextIndex(), "run-1", "Python36", "step two", "succeeded", "", "", "not-the-last-hash")
	if err := j.Append(rec); err == nil {
		t.Errorf("expected prevHash mismatch error")
	}
}

func TestTamperingDetection(t *testing.T) {
	j, _ := Open(filepath.Join(t.TempDir(), "journal.jsonl"))
	appendStep(t, j, "Python37", "Run tests", "succeeded")

	// simulate tampering
	j.Records()[0].LogHash = "fakehash"

	if err := j.Verify(); err == nil {
		t.Errorf("expected verification failure, got success")
	}
}

func TestJournalPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j, _ := Open(path)
	appendStep(t, j, "Python36", "Install molvs", "succeeded")
	appendStep(t, j, "Python36", "Run tests", "succeeded")

	// reopen and verify the reloaded chain
	j2, err := Open(path)
	if err != nil {
		t.Fatalf("failed to reopen journal: %v", err)
	}
	if len(j2.Records()) != 2 {
		t.Fatalf("expected 2 records after reload, got %d", len(j2.Records()))
	}
	if err := j2.Verify(); err != nil {
		t.Errorf("reloaded journal verification failed: %v", err)
	}
}

func TestConcurrentAppendStepKeepsChainIntact(t *testing.T) {
	j, _ := Open(filepath.Join(t.TempDir(), "journal.jsonl"))

	const writers = 64
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := j.AppendStep("run-1", "Python36", fmt.Sprintf("step %d", i), "succeeded", "", utils.HashString("out"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent append failed: %v", err)
		}
	}
	if got := len(j.Records()); got != writers {
		t.Fatalf("expected %d records, got %d", writers, got)
	}
	if err := j.Verify(); err != nil {
		t.Errorf("chain broken after concurrent appends: %v", err)
	}

	// The persisted file must reload into the same intact chain.
	j2, err := Open(j.path)
	if err != nil {
		t.Fatalf("failed to reopen journal: %v", err)
	}
	if err := j2.Verify(); err != nil {
		t.Errorf("reloaded journal verification failed: %v", err)
	}
}

func TestSignedRecords(t *testing.T) {
	j, _ := Open(filepath.Join(t.TempDir(), "journal.jsonl"))

	pub, priv, err := security.GenerateKeyPair()
	if err != nil {
		t.Fatalf("failed to generate keypair: %v", err)
	}
	j.SetSigner(priv, pub)

	rec := appendStep(t, j, "Python36", "PublishTestResults", "succeeded")
	if rec.Signature == "" || rec.PubKey == "" {
		t.Fatalf("record not signed: %+v", rec)
	}
	if err := j.Verify(); err != nil {
		t.Errorf("signed journal verification failed: %v", err)
	}

	// A forged signature must fail verification.
	rec.Signature = "deadbeef"
	if err := j.Verify(); err == nil {
		t.Errorf("expected signature verification failure")
	}
}
