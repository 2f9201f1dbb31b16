package journal

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// Verify recomputes every record hash and chain link to detect tampering.
// Signed records also get their signature checked against the embedded key.
func (j *Journal) Verify() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for i, rec := range j.records {
		h, err := rec.ComputeHash()
		if err != nil {
			return fmt.Errorf("compute hash for index %d: %w", rec.Index, err)
		}
		if h != rec.Hash {
			return fmt.Errorf("hash mismatch at index %d", rec.Index)
		}
		if i > 0 && rec.PrevHash != j.records[i-1].Hash {
			return fmt.Errorf("prev hash mismatch at index %d", rec.Index)
		}
		if rec.Index != i {
			return fmt.Errorf("index mismatch: expected %d got %d", i, rec.Index)
		}
		if rec.Signature != "" {
			if err := verifyRecordSignature(rec); err != nil {
				return fmt.Errorf("signature invalid at index %d: %w", rec.Index, err)
			}
		}
	}
	return nil
}

func verifyRecordSignature(rec *Record) error {
	pub, err := hex.DecodeString(rec.PubKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("bad public key")
	}
	sig, err := hex.DecodeString(rec.Signature)
	if err != nil {
		return fmt.Errorf("bad signature encoding")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(rec.Hash), sig) {
		return fmt.Errorf("signature does not match")
	}
	return nil
}
