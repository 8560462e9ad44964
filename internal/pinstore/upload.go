package pinstore

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/shog-ai/shoggoth/internal/errs"
)

// ChunkSizeLimit is the only accepted chunk-size-limit value for the
// chunked publish protocol (spec.md §4.4).
const ChunkSizeLimit = 100000

// UploadSession is the transient server-side state for one in-flight
// chunked publish (spec.md §3 "Upload session").
type UploadSession struct {
	UploadID       string
	ShoggothID     string
	UploadSize     int64
	ChunkSizeLimit int
	ChunkCount     int
	Fingerprint    Fingerprint
	Signature      Signature
	ChunkDir       string

	received map[int]bool
}

// Sessions tracks in-flight UploadSessions, keyed by upload_id.
// Destroyed on completion or error, per spec.md §3.
type Sessions struct {
	tmpDir string

	mu sync.Mutex
	m  map[string]*UploadSession
}

func NewSessions(tmpDir string) *Sessions {
	return &Sessions{tmpDir: tmpDir, m: make(map[string]*UploadSession)}
}

// Negotiate allocates a new upload session and its scratch chunk
// directory. Callers must have already validated the fingerprint
// timestamp window and the "already published, no changes" shortcut
// before calling this.
func (s *Sessions) Negotiate(shoggothID string, uploadSize int64, chunkCount int, f Fingerprint, sig Signature) (*UploadSession, error) {
	if err := ValidateChunkSizeLimit(ChunkSizeLimit); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	chunkDir := filepath.Join(s.tmpDir, id)
	if err := os.MkdirAll(chunkDir, 0755); err != nil {
		return nil, errs.IOError("create upload scratch directory", err)
	}

	sess := &UploadSession{
		UploadID:       id,
		ShoggothID:     shoggothID,
		UploadSize:     uploadSize,
		ChunkSizeLimit: ChunkSizeLimit,
		ChunkCount:     chunkCount,
		Fingerprint:    f,
		Signature:      sig,
		ChunkDir:       chunkDir,
		received:       make(map[int]bool),
	}

	s.mu.Lock()
	s.m[id] = sess
	s.mu.Unlock()
	return sess, nil
}

// Get returns the session for uploadID, if any.
func (s *Sessions) Get(uploadID string) (*UploadSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[uploadID]
	return sess, ok
}

// Destroy removes a session and its scratch directory unconditionally.
func (s *Sessions) Destroy(uploadID string) {
	s.mu.Lock()
	sess, ok := s.m[uploadID]
	delete(s.m, uploadID)
	s.mu.Unlock()
	if ok {
		_ = os.RemoveAll(sess.ChunkDir)
	}
}

// ValidateChunkSizeLimit rejects any chunk-size-limit other than the
// fixed protocol value (spec.md §4.4 step 1).
func ValidateChunkSizeLimit(declared int) error {
	if declared != ChunkSizeLimit {
		return errs.ValidationError("chunk-size-limit must equal 100000")
	}
	return nil
}

// WriteChunk validates and persists one chunk (spec.md §4.4 step 2).
// chunkID is 0-based and must be < ChunkCount; every chunk but the
// last must equal ChunkSizeLimit exactly, the last must be <= it.
func (sess *UploadSession) WriteChunk(chunkID int, data []byte) error {
	if chunkID < 0 || chunkID >= sess.ChunkCount {
		return errs.ValidationError("chunk-id out of range for declared chunk-count")
	}

	isLast := chunkID == sess.ChunkCount-1
	if isLast {
		if len(data) > sess.ChunkSizeLimit {
			return errs.ValidationError("final chunk exceeds chunk-size-limit")
		}
	} else if len(data) != sess.ChunkSizeLimit {
		return errs.ValidationError("non-final chunk must equal chunk-size-limit exactly")
	}

	path := filepath.Join(sess.ChunkDir, chunkFileName(chunkID))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errs.IOError("write chunk", err)
	}

	sess.received[chunkID] = true
	return nil
}

// Complete reports whether every declared chunk has been received.
func (sess *UploadSession) Complete() bool {
	return len(sess.received) == sess.ChunkCount
}

// AssembleTarball concatenates received chunks, in order, into dest
// (spec.md §4.4 step 3).
func (sess *UploadSession) AssembleTarball(dest string) error {
	if !sess.Complete() {
		return errs.ValidationError("cannot finish: not all chunks received")
	}

	out, err := os.Create(dest)
	if err != nil {
		return errs.IOError("create assembled tarball", err)
	}
	defer out.Close()

	for i := 0; i < sess.ChunkCount; i++ {
		data, err := os.ReadFile(filepath.Join(sess.ChunkDir, chunkFileName(i)))
		if err != nil {
			return errs.IOError("read chunk for assembly", err)
		}
		if _, err := out.Write(data); err != nil {
			return errs.IOError("write assembled tarball", err)
		}
	}
	return nil
}

func chunkFileName(chunkID int) string {
	return "chunk_" + strconv.Itoa(chunkID)
}
