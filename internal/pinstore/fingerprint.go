package pinstore

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/shog-ai/shoggoth/internal/errs"
)

// Fingerprint is the signed metadata binding a resource's bytes to its
// publisher (spec.md §3). Timestamp is a millisecond Unix epoch,
// stored (and transmitted) as a decimal string per the wire format, but
// ALWAYS compared as an integer — spec.md §9 Open Question 4 flags
// that the reference sometimes compares these as strings, which is a
// bug; this implementation never does.
type Fingerprint struct {
	PublicKey  string `json:"public_key"`
	ShoggothID string `json:"shoggoth_id"`
	Hash       string `json:"hash"`
	Timestamp  string `json:"timestamp"`
}

// TimestampMillis parses Timestamp as an int64.
func (f Fingerprint) TimestampMillis() (int64, error) {
	ms, err := strconv.ParseInt(f.Timestamp, 10, 64)
	if err != nil {
		return 0, errs.ValidationErrorWrap("fingerprint timestamp is not an integer", err)
	}
	return ms, nil
}

// NewFingerprint builds a Fingerprint stamped with the current time.
func NewFingerprint(publicKey, shoggothID, hash string) Fingerprint {
	return Fingerprint{
		PublicKey:  publicKey,
		ShoggothID: shoggothID,
		Hash:       hash,
		Timestamp:  strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
}

// CanonicalBytes returns the exact byte sequence that must be signed
// and verified: the Fingerprint's JSON form with keys in canonical
// (RFC 8785 JCS) order, so the signature is reproducible regardless of
// which JSON encoder produced the original document (spec.md §9 Open
// Question 1). Any re-serialization that changes key order or
// whitespace invalidates the signature, which is the point: signers
// and verifiers must canonicalize the same way.
func (f Fingerprint) CanonicalBytes() ([]byte, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, errs.Internal("marshal fingerprint", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return nil, errs.Internal("canonicalize fingerprint", err)
	}
	return canon, nil
}

// WithinClockSkewWindow reports whether f's timestamp is within +/-
// window of now (spec.md §4.3 step 3, default 5 minutes).
func (f Fingerprint) WithinClockSkewWindow(now time.Time, window time.Duration) (bool, error) {
	ms, err := f.TimestampMillis()
	if err != nil {
		return false, err
	}
	ts := time.UnixMilli(ms)
	diff := now.Sub(ts)
	if diff < 0 {
		diff = -diff
	}
	return diff <= window, nil
}
