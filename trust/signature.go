package trust

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// SignatureExt is appended to a module path to locate its signature file.
const SignatureExt = ".sig"

// Signature is the detached signature file stored next to a module.
// Signature bytes are base64 encoded by encoding/json.
type Signature struct {
	KeyID     string `json:"key_id"`
	Signature []byte `json:"signature"`
}

// SignaturePath returns the signature file location for a module.
func SignaturePath(modulePath string) string {
	return modulePath + SignatureExt
}

func moduleTranscript(pub ed25519.PublicKey, modulePath string) ([]byte, error) {
	data, err := os.ReadFile(modulePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read module: %w", err)
	}
	return BuildModuleTranscript(pub, filepath.Base(modulePath), sha256.Sum256(data))
}

// SignModule signs the module at modulePath and writes the signature file
// next to it. It returns the signature file path.
func SignModule(priv ed25519.PrivateKey, keyID, modulePath string) (string, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return "", errors.New("invalid private key size")
	}
	if keyID == "" {
		return "", errors.New("key ID cannot be empty")
	}

	transcript, err := moduleTranscript(priv.Public().(ed25519.PublicKey), modulePath)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(Signature{
		KeyID:     keyID,
		Signature: ed25519.Sign(priv, transcript),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode signature: %w", err)
	}

	sigPath := SignaturePath(modulePath)
	if err := os.WriteFile(sigPath, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("failed to write signature: %w", err)
	}
	return sigPath, nil
}

// ReadSignature reads and decodes the signature file for a module.
func ReadSignature(modulePath string) (*Signature, error) {
	data, err := os.ReadFile(SignaturePath(modulePath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrUnsigned, filepath.Base(modulePath))
		}
		return nil, fmt.Errorf("failed to read signature: %w", err)
	}

	var sig Signature
	if err := json.Unmarshal(data, &sig); err != nil {
		return nil, fmt.Errorf("failed to parse signature: %w", err)
	}
	if sig.KeyID == "" {
		return nil, errors.New("signature has no key_id")
	}
	if len(sig.Signature) != ed25519.SignatureSize {
		return nil, fmt.Errorf("invalid signature length: %d", len(sig.Signature))
	}
	return &sig, nil
}

// Verifier checks module signatures against a key store.
type Verifier struct {
	Store KeyStore
	// Required rejects unsigned modules. When false an unsigned module is
	// accepted and logged, but a signature that is present must verify.
	Required bool
	Logger   *zerolog.Logger
}

// Verify returns nil when the module at path is acceptable.
func (v *Verifier) Verify(path string) error {
	if v.Store == nil {
		return errors.New("verifier has no key store")
	}

	sig, err := ReadSignature(path)
	if err != nil {
		if errors.Is(err, ErrUnsigned) && !v.Required {
			if v.Logger != nil {
				v.Logger.Warn().Str("path", path).Msg("loading unsigned module")
			}
			return nil
		}
		return err
	}

	pub, err := v.Store.PublicKey(sig.KeyID)
	if err != nil {
		return err
	}

	transcript, err := moduleTranscript(pub, path)
	if err != nil {
		return err
	}
	if !ed25519.Verify(pub, transcript, sig.Signature) {
		return fmt.Errorf("%w: %s (key %s)", ErrBadSignature, filepath.Base(path), sig.KeyID)
	}
	return nil
}
