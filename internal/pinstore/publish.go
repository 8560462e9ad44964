package pinstore

import (
	"context"
	"crypto/rsa"
	"os"
	"path/filepath"
	"time"

	"github.com/shog-ai/shoggoth/internal/errs"
	"github.com/shog-ai/shoggoth/internal/identity"
)

// ClockSkewWindow is the allowed drift between a Fingerprint's
// timestamp and local time (spec.md §4.3 step 3).
const ClockSkewWindow = 5 * time.Minute

// acceptLockPollInterval and acceptLockTimeout bound DirLock.Acquire
// around the stat/swap/rename sequence below (spec.md §5 "Shared
// resources"): a timed-out acquire surfaces as a 406 through the same
// path any other Accept rejection does, rather than blocking an HTTP
// handler indefinitely.
const (
	acceptLockPollInterval = 50 * time.Millisecond
	acceptLockTimeout      = 5 * time.Second
)

// SizePolicy bounds an individual resource and the store as a whole
// (spec.md §4.3 "Resource-size policy").
type SizePolicy struct {
	MaxResourceBytes int64
	MaxStoreBytes    int64
}

// Manager drives the publish acceptance procedure against a node's
// pins/ tree and PinIndex.
type Manager struct {
	PinsDir string
	Index   *Index
	Policy  SizePolicy
}

func NewManager(pinsDir string, index *Index, policy SizePolicy) *Manager {
	return &Manager{PinsDir: pinsDir, Index: index, Policy: policy}
}

// LocalFingerprint reads the fingerprint of a locally-held pin. ok is
// false if no such pin exists.
func (m *Manager) LocalFingerprint(id string) (f Fingerprint, ok bool, err error) {
	dir := filepath.Join(m.PinsDir, id, ".shoggoth")
	if _, statErr := os.Stat(dir); statErr != nil {
		return Fingerprint{}, false, nil
	}
	f, _, err = ReadFingerprintFiles(dir)
	if err != nil {
		return Fingerprint{}, false, err
	}
	return f, true, nil
}

// AcceptResult describes the outcome of a publish attempt.
type AcceptResult int

const (
	AcceptNew AcceptResult = iota
	AcceptUpdated
	AcceptNoChange
)

func (r AcceptResult) String() string {
	switch r {
	case AcceptNew:
		return "new"
	case AcceptUpdated:
		return "updated"
	case AcceptNoChange:
		return "no_change"
	default:
		return "unknown"
	}
}

// Accept runs spec.md §4.3's publish acceptance procedure against an
// already-assembled scratch directory (scratchDir) holding the
// extracted tarball contents, with the declared Fingerprint and
// Signature. It is the shared core for both the chunked publish
// protocol's Finish step and the replication downloader.
func (m *Manager) Accept(scratchDir string, pub *rsa.PublicKey, f Fingerprint, sig Signature) (AcceptResult, error) {
	// Step 1: recompute hash, reject on mismatch.
	gotHash, err := HashDir(scratchDir)
	if err != nil {
		return 0, err
	}
	if gotHash != f.Hash {
		return 0, errs.ValidationError("recomputed hash does not match declared fingerprint hash")
	}

	// Step 2: verify signature over the fingerprint text.
	if !sig.Verify(pub, f) {
		return 0, errs.ValidationError("signature does not verify against fingerprint")
	}

	// Step 3: timestamp within the clock skew window.
	ok, err := f.WithinClockSkewWindow(time.Now(), ClockSkewWindow)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errs.ValidationError("fingerprint timestamp outside allowed clock skew window")
	}

	// Resource-size policy.
	size, err := dirSize(scratchDir)
	if err != nil {
		return 0, err
	}
	if m.Policy.MaxResourceBytes > 0 && size > m.Policy.MaxResourceBytes {
		return 0, errs.ValidationError("resource exceeds configured per-resource size cap")
	}
	if m.Policy.MaxStoreBytes > 0 {
		storeSize, err := dirSize(m.PinsDir)
		if err != nil {
			return 0, err
		}
		if storeSize+size > m.Policy.MaxStoreBytes {
			return 0, errs.ValidationError("publish would exceed configured total store size cap")
		}
	}

	// Concurrent publishes/updates/downloads targeting the same
	// ShoggothID would otherwise race on the rename/swap below (two
	// goroutines both statting "not found", both renaming scratchDir
	// onto destDir). Serialize per destination directory.
	destDir := filepath.Join(m.PinsDir, f.ShoggothID)
	lock := NewDirLock(destDir)
	lockCtx, cancel := context.WithTimeout(context.Background(), acceptLockTimeout)
	defer cancel()
	if err := lock.Acquire(lockCtx, acceptLockPollInterval); err != nil {
		return 0, errs.ValidationError("could not acquire directory lock for " + f.ShoggothID + ": " + err.Error())
	}
	defer lock.Release()

	existing, existErr := os.Stat(destDir)

	// A ShoggothID is pinned at first publish and stays stable across
	// later updates even though the hash (and therefore what a fresh
	// derivation would yield) changes with the content — so the S4
	// hash-derivation check only applies to brand new resources, not
	// to an update of one that already exists under this ID.
	if existErr != nil || !existing.IsDir() {
		if want := string(identity.ShoggothIDFromTarballHash(f.Hash)); f.ShoggothID != want {
			return 0, errs.ValidationError("declared shoggoth_id does not match hash-derived id")
		}
	}

	// Step 4: existing resource — accept only if strictly newer and hash differs.
	if existErr == nil && existing.IsDir() {
		existingFP, _, err := ReadFingerprintFiles(filepath.Join(destDir, ".shoggoth"))
		if err != nil {
			return 0, err
		}
		existingMs, err := existingFP.TimestampMillis()
		if err != nil {
			return 0, err
		}
		newMs, err := f.TimestampMillis()
		if err != nil {
			return 0, err
		}
		if newMs <= existingMs || existingFP.Hash == f.Hash {
			return AcceptNoChange, nil
		}

		if err := swapDirectory(destDir, scratchDir); err != nil {
			return 0, err
		}
		if err := WriteFingerprintFiles(filepath.Join(destDir, ".shoggoth"), f, sig); err != nil {
			return 0, err
		}
		if err := m.Index.Add(f.ShoggothID); err != nil {
			return 0, err
		}
		return AcceptUpdated, nil
	}

	// New resource.
	if err := os.MkdirAll(m.PinsDir, 0755); err != nil {
		return 0, errs.IOError("create pins dir", err)
	}
	if err := os.Rename(scratchDir, destDir); err != nil {
		return 0, errs.IOError("move scratch directory into place", err)
	}
	// Step 5: write fingerprint/signature, add to PinIndex.
	if err := WriteFingerprintFiles(filepath.Join(destDir, ".shoggoth"), f, sig); err != nil {
		return 0, err
	}
	if err := m.Index.Add(f.ShoggothID); err != nil {
		return 0, err
	}
	return AcceptNew, nil
}

// swapDirectory atomically replaces dest with the contents of src:
// rename dest aside, rename src into dest's place, remove the old
// directory. Matches spec.md §4.3 step 4's "extract to sibling, swap,
// remove old".
func swapDirectory(dest, src string) error {
	old := dest + ".old"
	if err := os.RemoveAll(old); err != nil {
		return errs.IOError("clear stale swap directory", err)
	}
	if err := os.Rename(dest, old); err != nil {
		return errs.IOError("move aside existing pin directory", err)
	}
	if err := os.Rename(src, dest); err != nil {
		// best-effort restore of the original on failure
		_ = os.Rename(old, dest)
		return errs.IOError("move new pin directory into place", err)
	}
	if err := os.RemoveAll(old); err != nil {
		return errs.IOError("remove superseded pin directory", err)
	}
	return nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, errs.IOError("measure directory size", err)
	}
	return total, nil
}
