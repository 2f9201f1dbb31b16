package main

import (
	"fmt"
	"os"

	"matrixci/internal/security"
)

// Generates the ed25519 keypair used to sign published test results and
// writes it hex-encoded into the given directory (default ./keys).
func main() {
	dir := "./keys"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	pub, _, err := security.EnsureKeyPair(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keygen error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("keypair ready in %s\n", dir)
	fmt.Printf("public key: %x\n", []byte(pub))
}
