// Package evidence stores task completion photos as content-addressed
// blobs in a local directory. Implements domain.EvidenceStore.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chorequest/chorequest/internal/domain"
)

// Store keeps photo blobs under dir/blobs, keyed by SHA-256 digest.
// Identical photos deduplicate to the same blob.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Init ensures the directory structure exists.
func (s *Store) Init() error {
	if err := os.MkdirAll(filepath.Join(s.dir, "blobs"), 0o755); err != nil {
		return fmt.Errorf("create blobs directory: %w", err)
	}
	return nil
}

// StoreEvidence implements domain.EvidenceStore. Returns an opaque
// evidence:// URL the workflow records on the assignment.
func (s *Store) StoreEvidence(photo []byte) (string, error) {
	if len(photo) == 0 {
		return "", domain.Validationf("evidence photo is empty")
	}
	if err := s.Init(); err != nil {
		return "", err
	}

	digest := "sha256:" + computeSHA256(photo)
	path := s.blobPath(digest)

	// Content-addressed: an existing blob is already the right bytes.
	if _, err := os.Stat(path); err == nil {
		return "evidence://" + digest, nil
	}

	if err := os.WriteFile(path, photo, 0o644); err != nil {
		return "", fmt.Errorf("write evidence blob: %w", err)
	}
	return "evidence://" + digest, nil
}

// Resolve maps an evidence:// URL back to the blob bytes.
func (s *Store) Resolve(url string) ([]byte, error) {
	digest, ok := strings.CutPrefix(url, "evidence://")
	if !ok {
		return nil, domain.Validationf("not an evidence url: %q", url)
	}
	data, err := os.ReadFile(s.blobPath(digest))
	if os.IsNotExist(err) {
		return nil, domain.NotFoundf("evidence %s", digest)
	}
	if err != nil {
		return nil, fmt.Errorf("read evidence blob: %w", err)
	}
	return data, nil
}

// blobPath returns the filesystem path for a content-addressed blob.
// digest is "sha256:<hex>" → stored as blobs/sha256-<hex>
func (s *Store) blobPath(digest string) string {
	safe := strings.ReplaceAll(digest, ":", "-")
	return filepath.Join(s.dir, "blobs", safe)
}

func computeSHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
