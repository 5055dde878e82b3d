// Package workspace stores pre-commit run artifacts on disk, addressed by
// content hash. Every write returns an ArtifactRef carrying the sha256 of the
// bytes written; resume logic compares those hashes against what is on disk
// to decide whether a stage's work already exists.
package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/council-go/internal/models"
)

// Store is a per-run artifact directory tree rooted at a single base
// directory, one subdirectory per run.
type Store struct {
	root string
}

// NewStore creates the base directory if needed and returns a Store.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the base directory of the store.
func (s *Store) Root() string {
	return s.root
}

// RunDir returns the directory holding one run's artifacts.
func (s *Store) RunDir(runID string) string {
	return filepath.Join(s.root, runID)
}

// Hash returns the hex sha256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Write stores data under the run's directory at relPath and returns a
// reference with the content hash filled in. relPath must stay inside the
// run directory.
func (s *Store) Write(runID, relPath string, data []byte, role models.ArtifactRole, stage, model string) (models.ArtifactRef, error) {
	abs, err := s.resolve(runID, relPath)
	if err != nil {
		return models.ArtifactRef{}, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return models.ArtifactRef{}, fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return models.ArtifactRef{}, fmt.Errorf("write artifact %s: %w", relPath, err)
	}
	return models.ArtifactRef{
		Path:  relPath,
		Hash:  Hash(data),
		Role:  role,
		Stage: stage,
		Model: model,
		Size:  int64(len(data)),
	}, nil
}

// Read returns the bytes of a referenced artifact and verifies they still
// match the reference's hash. A mismatch means the workspace was modified
// outside the pipeline and the artifact cannot be trusted.
func (s *Store) Read(runID string, ref models.ArtifactRef) ([]byte, error) {
	abs, err := s.resolve(runID, ref.Path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", ref.Path, err)
	}
	if got := Hash(data); got != ref.Hash {
		return nil, fmt.Errorf("artifact %s: content hash %s does not match recorded %s", ref.Path, got, ref.Hash)
	}
	return data, nil
}

// Verify reports whether every reference exists on disk with a matching
// content hash. Used on resume: a stage whose snapshot verifies is skipped
// instead of re-executed.
func (s *Store) Verify(runID string, refs []models.ArtifactRef) (bool, error) {
	for _, ref := range refs {
		abs, err := s.resolve(runID, ref.Path)
		if err != nil {
			return false, err
		}
		data, err := os.ReadFile(abs)
		if os.IsNotExist(err) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("verify artifact %s: %w", ref.Path, err)
		}
		if Hash(data) != ref.Hash {
			return false, nil
		}
	}
	return true, nil
}

// resolve joins relPath under the run directory and rejects paths escaping it.
func (s *Store) resolve(runID, relPath string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("empty run id")
	}
	dir := s.RunDir(runID)
	abs := filepath.Join(dir, filepath.FromSlash(relPath))
	if abs != dir && !strings.HasPrefix(abs, dir+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact path %q escapes run directory", relPath)
	}
	return abs, nil
}
