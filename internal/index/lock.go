package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	akierrors "github.com/evanwmart/augmented-knowledge-interfaces/internal/errors"
)

// lockFileName is the advisory lock file under the index directory.
const lockFileName = "build.lock"

// BuildLock is an advisory file lock serializing build passes. Queries
// never take it; only writers do.
type BuildLock struct {
	fl *flock.Flock
}

// AcquireBuildLock takes the build lock for the given index directory.
// A second concurrent build fails fast instead of interleaving index
// mutations.
func AcquireBuildLock(indexDir string) (*BuildLock, error) {
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	fl := flock.New(filepath.Join(indexDir, lockFileName))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire build lock: %w", err)
	}
	if !locked {
		return nil, akierrors.Newf(akierrors.ErrCodeBuildLocked,
			"another build is already running on %s", indexDir).
			WithSuggestion("wait for the running 'aki index' to finish")
	}
	return &BuildLock{fl: fl}, nil
}

// Release unlocks the build lock.
func (l *BuildLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
