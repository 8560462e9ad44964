package pinstore

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shog-ai/shoggoth/internal/errs"
)

// PackTarball walks dir and writes a deterministic, gzip-compressed
// tar archive to w: entries sorted by path, fixed uid/gid/mtime/mode,
// so that packing the same tree twice yields byte-identical output.
func PackTarball(w io.Writer, dir string) error {
	var paths []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return errs.IOError("walk resource directory", err)
	}
	sort.Strings(paths)

	gw := gzip.NewWriter(w)
	tw := tar.NewWriter(gw)

	for _, rel := range paths {
		full := filepath.Join(dir, rel)
		info, err := os.Lstat(full)
		if err != nil {
			return errs.IOError("stat "+rel, err)
		}

		if info.IsDir() {
			hdr := &tar.Header{
				Name:     rel + "/",
				Typeflag: tar.TypeDir,
				Mode:     0755,
			}
			if err := tw.WriteHeader(hdr); err != nil {
				return errs.IOError("write tar dir header for "+rel, err)
			}
			continue
		}

		data, err := os.ReadFile(full)
		if err != nil {
			return errs.IOError("read "+rel, err)
		}
		hdr := &tar.Header{
			Name:     rel,
			Typeflag: tar.TypeReg,
			Mode:     0644,
			Size:     int64(len(data)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return errs.IOError("write tar header for "+rel, err)
		}
		if _, err := tw.Write(data); err != nil {
			return errs.IOError("write tar body for "+rel, err)
		}
	}

	if err := tw.Close(); err != nil {
		return errs.IOError("close tar writer", err)
	}
	if err := gw.Close(); err != nil {
		return errs.IOError("close gzip writer", err)
	}
	return nil
}

// ExtractTarball reads a gzip-compressed tar archive from r and
// recreates its entries under destDir, creating destDir if it does
// not exist yet.
// Used by the chunked-publish Finish step and the replication
// downloader/updater to turn received bytes back into a scratch
// directory for the acceptance procedure.
func ExtractTarball(r io.Reader, destDir string) error {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return errs.ValidationError("tarball is not valid gzip")
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return errs.IOError("create extraction directory", err)
	}

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errs.ValidationError("corrupt tar stream: " + err.Error())
		}

		target := filepath.Join(destDir, filepath.Clean(hdr.Name))
		if !isWithinDir(destDir, target) {
			return errs.ValidationError("tar entry escapes extraction directory: " + hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return errs.IOError("create tar directory entry", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return errs.IOError("create parent directory for tar entry", err)
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return errs.IOError("create tar file entry", err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return errs.IOError("write tar file entry", err)
			}
			f.Close()
		}
	}
	return nil
}

// CopyTreeExcluding copies src to dst, skipping any entry whose
// top-level relative path matches one of exclude. Used before packing
// a clone/download response tarball so that the pin's .shoggoth
// metadata (fingerprint.json, signature.txt) never leaks into the
// bytes a peer will re-hash, mirroring the reference server's
// copy-to-tmp-then-tar-then-delete sequence in api_clone_route.
func CopyTreeExcluding(src, dst string, exclude []string) error {
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}

	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == src {
			return os.MkdirAll(dst, 0755)
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		top := strings.SplitN(rel, string(filepath.Separator), 2)[0]
		if skip[top] {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return errs.IOError("read "+rel, err)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return errs.IOError("create parent for "+rel, err)
		}
		return os.WriteFile(target, data, info.Mode())
	})
}

func isWithinDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	if filepath.IsAbs(rel) || rel == ".." {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// HashFile returns the lowercase hex SHA-256 digest of a single file's
// contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errs.IOError("open "+path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errs.IOError("hash "+path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashDir implements spec.md §4.3's double-hash pipeline: hash every
// regular file under dir, sort the resulting hex digests, concatenate
// them, and hash the concatenation. The result is a hash of the
// directory's CONTENT, independent of file order on disk or
// timestamps, matching what PackTarball produces.
func HashDir(dir string) (string, error) {
	var hashes []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		h, err := HashFile(path)
		if err != nil {
			return err
		}
		hashes = append(hashes, h)
		return nil
	})
	if err != nil {
		return "", errs.IOError("walk resource directory for hashing", err)
	}

	sort.Strings(hashes)

	h := sha256.New()
	for _, hx := range hashes {
		h.Write([]byte(hx))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
