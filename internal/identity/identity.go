// Package identity derives node and resource identifiers from RSA keys
// and SHA-256 hashes, and signs/verifies Fingerprint payloads.
//
// Grounded on the RSA verify idiom in
// Mindburn-Labs-helm/core/pkg/trust/signature_verifier.go
// (crypto/rsa + crypto.SHA256, rsa.VerifyPKCS1v15).
package identity

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/shog-ai/shoggoth/internal/errs"
)

// NodeID is the textual identifier of a node.
type NodeID string

// ShoggothID is the identifier of a pinned resource.
type ShoggothID string

const (
	nodeIDPrefix     = "SHOGN"
	shoggothIDPrefix = "SHOG"
	rsaKeyBits       = 2048
)

// GenerateKeyPair creates a fresh RSA-2048 key pair and writes PEM files
// to outPrivPath and outPubPath.
func GenerateKeyPair(outPrivPath, outPubPath string) error {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return errs.Internal("generate RSA key", err)
	}

	privBytes := x509.MarshalPKCS1PrivateKey(key)
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: privBytes})
	if err := os.WriteFile(outPrivPath, privPEM, 0600); err != nil {
		return errs.IOError("write private key "+outPrivPath, err)
	}

	pubBytes := x509.MarshalPKCS1PublicKey(&key.PublicKey)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: pubBytes})
	if err := os.WriteFile(outPubPath, pubPEM, 0644); err != nil {
		return errs.IOError("write public key "+outPubPath, err)
	}
	return nil
}

// LoadPrivateKey parses a PEM-encoded PKCS1 RSA private key.
func LoadPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errs.ValidationError("invalid PEM private key")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, errs.ValidationErrorWrap("parse RSA private key", err)
	}
	return key, nil
}

// LoadPublicKey parses a PEM-encoded PKCS1 RSA public key.
func LoadPublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errs.ValidationError("invalid PEM public key")
	}
	key, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, errs.ValidationErrorWrap("parse RSA public key", err)
	}
	return key, nil
}

// StripPublicKey strips internal newlines from a PEM-framed public key,
// preserving the BEGIN/END framing exactly. This is the byte sequence
// that gets hashed to derive a NodeID, so the stripping convention is
// load-bearing (spec.md §4.1).
func StripPublicKey(pemText string) string {
	lines := strings.Split(strings.TrimSpace(pemText), "\n")
	if len(lines) < 2 {
		return strings.TrimSpace(pemText)
	}
	header := lines[0]
	footer := lines[len(lines)-1]
	body := strings.Join(lines[1:len(lines)-1], "")
	return header + body + footer
}

// UnstripPublicKey reverses StripPublicKey well enough for LoadPublicKey
// to parse: it reinserts the newlines PEM decoding needs between the
// header, body and footer lines, without altering any byte within
// those three fields (so the hash used for NodeIDFromPublicKey is
// unaffected — only StripPublicKey's output is ever hashed).
func UnstripPublicKey(stripped string) string {
	const header = "-----BEGIN RSA PUBLIC KEY-----"
	const footer = "-----END RSA PUBLIC KEY-----"
	body := strings.TrimSuffix(strings.TrimPrefix(stripped, header), footer)
	return header + "\n" + body + "\n" + footer + "\n"
}

// NodeIDFromPublicKey derives a NodeID from a stripped public key string.
func NodeIDFromPublicKey(strippedPubKey string) NodeID {
	sum := sha256.Sum256([]byte(strippedPubKey))
	hexHash := hex.EncodeToString(sum[:])
	return NodeID(nodeIDPrefix + hexHash[32:])
}

// ShoggothIDFromTarballHash derives a ShoggothID from the canonical
// tarball hash (already a hex string computed per spec.md §4.3): the
// second half of the hash itself, SHOG-prefixed. Unlike NodeID's
// derivation from a public key, there is no second SHA-256 round —
// the tarball hash already is the hash to slice.
func ShoggothIDFromTarballHash(tarballHash string) ShoggothID {
	return ShoggothID(shoggothIDPrefix + tarballHash[32:])
}

// Sign returns a hex-encoded RSA-SHA256 signature over payload.
func Sign(priv *rsa.PrivateKey, payload []byte) (string, error) {
	hash := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, hash[:])
	if err != nil {
		return "", errs.Internal("rsa sign", err)
	}
	return hex.EncodeToString(sig), nil
}

// Verify reports whether hexSignature is a valid RSA-SHA256 signature of
// payload under pub. It never returns an error: any parse or verification
// failure simply yields false, per spec.md §4.1.
func Verify(pub *rsa.PublicKey, hexSignature string, payload []byte) bool {
	sig, err := hex.DecodeString(hexSignature)
	if err != nil {
		return false
	}
	hash := sha256.Sum256(payload)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, hash[:], sig) == nil
}

// PublicKeyPEM renders a PEM-framed public key string (unstripped,
// newline-per-64-chars as emitted by encoding/pem).
func PublicKeyPEM(pub *rsa.PublicKey) string {
	block := &pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(pub)}
	return string(pem.EncodeToMemory(block))
}

// Validate reports whether a ShoggothID or NodeID has the expected shape:
// the right literal prefix followed by a lowercase-hex suffix.
func Validate(id, prefix string) error {
	if !strings.HasPrefix(id, prefix) {
		return errs.ValidationError(fmt.Sprintf("id %q missing prefix %q", id, prefix))
	}
	suffix := id[len(prefix):]
	if len(suffix) == 0 {
		return errs.ValidationError("id has empty suffix")
	}
	for _, c := range suffix {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return errs.ValidationError(fmt.Sprintf("id %q has non-hex suffix", id))
		}
	}
	return nil
}
