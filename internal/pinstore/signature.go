package pinstore

import (
	"crypto/rsa"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/shog-ai/shoggoth/internal/errs"
	"github.com/shog-ai/shoggoth/internal/identity"
)

// Signature is the hex-encoded RSA-SHA256 signature over a
// Fingerprint's canonical JSON bytes (spec.md §4.1/§4.3).
type Signature string

// Sign produces the Signature over f's canonical bytes.
func Sign(priv *rsa.PrivateKey, f Fingerprint) (Signature, error) {
	payload, err := f.CanonicalBytes()
	if err != nil {
		return "", err
	}
	sig, err := identity.Sign(priv, payload)
	if err != nil {
		return "", errs.Internal("sign fingerprint", err)
	}
	return Signature(sig), nil
}

// Verify checks sig against f's canonical bytes under pub. It never
// returns an error: an unparseable or mismatched signature is simply
// invalid, matching identity.Verify's contract.
func (sig Signature) Verify(pub *rsa.PublicKey, f Fingerprint) bool {
	payload, err := f.CanonicalBytes()
	if err != nil {
		return false
	}
	return identity.Verify(pub, string(sig), payload)
}

// WriteFingerprintFiles writes fingerprint.json and signature.txt into
// dir, per spec.md §6's pin directory layout.
func WriteFingerprintFiles(dir string, f Fingerprint, sig Signature) error {
	raw, err := f.CanonicalBytes()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errs.IOError("create "+dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "fingerprint.json"), raw, 0644); err != nil {
		return errs.IOError("write fingerprint.json", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "signature.txt"), []byte(sig), 0644); err != nil {
		return errs.IOError("write signature.txt", err)
	}
	return nil
}

// ReadFingerprintFiles loads fingerprint.json and signature.txt from dir.
func ReadFingerprintFiles(dir string) (Fingerprint, Signature, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "fingerprint.json"))
	if err != nil {
		return Fingerprint{}, "", errs.IOError("read fingerprint.json", err)
	}
	sigRaw, err := os.ReadFile(filepath.Join(dir, "signature.txt"))
	if err != nil {
		return Fingerprint{}, "", errs.IOError("read signature.txt", err)
	}

	var f Fingerprint
	if err := json.Unmarshal(raw, &f); err != nil {
		return Fingerprint{}, "", errs.ProtocolError("decode fingerprint.json", err)
	}
	return f, Signature(sigRaw), nil
}
