package trust

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"testing"
)

func TestHashPublicKey(t *testing.T) {
	pubKey, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	hash := HashPublicKey(pubKey)
	expectedHash := sha256.Sum256(pubKey)
	if hash != expectedHash {
		t.Errorf("HashPublicKey() = %x, want %x", hash, expectedHash)
	}
}

func TestBuildModuleTranscript(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	digest := sha256.Sum256([]byte("module bytes"))

	transcript, err := BuildModuleTranscript(pub, "greeter.so", digest)
	if err != nil {
		t.Fatalf("BuildModuleTranscript() error = %v", err)
	}

	// Walk the layout field by field.
	pos := 0
	ctxLen := int(binary.BigEndian.Uint32(transcript[pos:]))
	pos += 4
	if got := string(transcript[pos : pos+ctxLen]); got != SignatureContext {
		t.Errorf("context = %q, want %q", got, SignatureContext)
	}
	pos += ctxLen

	if v := binary.BigEndian.Uint32(transcript[pos:]); v != SignatureVersion {
		t.Errorf("version = %d, want %d", v, SignatureVersion)
	}
	pos += 4

	hashPK := HashPublicKey(pub)
	if !bytes.Equal(transcript[pos:pos+32], hashPK[:]) {
		t.Error("H(pk) mismatch")
	}
	pos += 32

	nameLen := int(binary.BigEndian.Uint32(transcript[pos:]))
	pos += 4
	if got := string(transcript[pos : pos+nameLen]); got != "greeter.so" {
		t.Errorf("module name = %q, want greeter.so", got)
	}
	pos += nameLen

	if !bytes.Equal(transcript[pos:], digest[:]) {
		t.Error("module digest mismatch")
	}

	again, err := BuildModuleTranscript(pub, "greeter.so", digest)
	if err != nil {
		t.Fatalf("BuildModuleTranscript() error = %v", err)
	}
	if !bytes.Equal(transcript, again) {
		t.Error("BuildModuleTranscript() is not deterministic")
	}
}

func TestBuildModuleTranscript_InvalidInput(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	if _, err := BuildModuleTranscript(pub[:16], "a.so", [32]byte{}); err == nil {
		t.Error("BuildModuleTranscript() with short key error = nil, want error")
	}
	if _, err := BuildModuleTranscript(pub, "", [32]byte{}); err == nil {
		t.Error("BuildModuleTranscript() with empty name error = nil, want error")
	}
}
