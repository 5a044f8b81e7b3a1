package applier

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gitvan/gitvan/errors"
)

// PathEscapesTarget is returned when a resolved write path would leave the
// target directory.
type PathEscapesTarget struct {
	Base string
	Rel  string
}

func (e *PathEscapesTarget) Error() string {
	return fmt.Sprintf("path %q escapes %q", e.Rel, e.Base)
}

// securePath joins rel under base and verifies the cleaned result stays
// strictly inside base. Absolute rel paths are rejected outright.
func securePath(base, rel string) (string, error) {
	if rel == "" {
		return "", &PathEscapesTarget{Base: base, Rel: rel}
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, "\\") {
		return "", &PathEscapesTarget{Base: base, Rel: rel}
	}
	cleanBase := filepath.Clean(base)
	full := filepath.Clean(filepath.Join(cleanBase, filepath.FromSlash(rel)))
	if full == cleanBase || !strings.HasPrefix(full, cleanBase+string(filepath.Separator)) {
		return "", &PathEscapesTarget{Base: base, Rel: rel}
	}
	return full, nil
}

// atomicWrite writes data to path via a temp file and rename, creating
// parent directories as needed.
func atomicWrite(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "creating target directory")
	}
	tmp, err := os.CreateTemp(dir, ".gitvan-*")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "writing temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "closing temp file")
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "setting mode")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "installing file")
	}
	return nil
}

// LockHeld is returned when another application holds the apply lock.
type LockHeld struct {
	Path string
}

func (e *LockHeld) Error() string {
	return "another apply is in progress (lock at " + e.Path + ")"
}

type applyLock struct {
	path string
}

// acquireLock takes the per-target apply lock with an exclusive create.
// The lock serializes pack applications onto one working tree across
// processes.
func acquireLock(targetDir string) (*applyLock, error) {
	dir := filepath.Join(targetDir, ".gitvan")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating .gitvan directory")
	}
	path := filepath.Join(dir, "apply.lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, &LockHeld{Path: path}
		}
		return nil, errors.Wrap(err, "acquiring apply lock")
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()
	return &applyLock{path: path}, nil
}

func (l *applyLock) release() {
	_ = os.Remove(l.path)
}
