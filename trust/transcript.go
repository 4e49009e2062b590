package trust

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"errors"
)

const (
	// SignatureContext separates module signatures from any other use of a key.
	SignatureContext = "plughost-module-signature-v1"
	// SignatureVersion is the transcript layout version.
	SignatureVersion uint32 = 1
)

// HashPublicKey computes the SHA-256 hash of an Ed25519 public key.
// This binds the signer's identity into the transcript.
func HashPublicKey(pub ed25519.PublicKey) [32]byte {
	return sha256.Sum256(pub)
}

// appendLengthPrefixed appends a length-prefixed field to a byte slice.
// The length is encoded as a uint32 (4 bytes, big-endian) followed by the field bytes.
func appendLengthPrefixed(buf []byte, field []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(field)))
	return append(buf, field...)
}

// BuildModuleTranscript builds the canonical message signed for a module.
//
// The transcript structure is:
//  1. Context string (length-prefixed)
//  2. Version (uint32, big-endian)
//  3. H(pk) (32 bytes, fixed-length)
//  4. Module base name (length-prefixed)
//  5. H(module bytes) (32 bytes, fixed-length)
//
// Binding the base name stops a valid signature from being reused for a
// module copied under another name.
func BuildModuleTranscript(pub ed25519.PublicKey, moduleName string, moduleDigest [32]byte) ([]byte, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, errors.New("invalid public key size")
	}
	if moduleName == "" {
		return nil, errors.New("module name cannot be empty")
	}

	var transcript []byte
	transcript = appendLengthPrefixed(transcript, []byte(SignatureContext))
	transcript = binary.BigEndian.AppendUint32(transcript, SignatureVersion)
	hashPK := HashPublicKey(pub)
	transcript = append(transcript, hashPK[:]...)
	transcript = appendLengthPrefixed(transcript, []byte(moduleName))
	transcript = append(transcript, moduleDigest[:]...)
	return transcript, nil
}
