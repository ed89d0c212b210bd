// Package pathcheck validates untrusted file paths against an allow-list of
// directories before any subprocess or upload is allowed to touch them.
package pathcheck

import (
	"os"
	"path/filepath"
	"strings"
)

// Reason explains why a candidate path was rejected.
type Reason string

const (
	ReasonEmptyPath      Reason = "empty_path"
	ReasonNotFound       Reason = "not_found"
	ReasonNotAFile       Reason = "not_a_file"
	ReasonOutsideAllowed Reason = "outside_allowed_directories"
)

// Result is the outcome of one validation call. It carries no state; every
// call recomputes from the live filesystem.
type Result struct {
	Valid  bool
	Reason Reason
}

func reject(r Reason) Result {
	return Result{Reason: r}
}

// AllowedDirectories returns the directory set input files may come from:
// the platform temp dir, the user's Downloads dir, and the home dir.
// The set is recomputed on every call rather than cached because the
// underlying OS paths can change between calls.
func AllowedDirectories() []string {
	dirs := []string{os.TempDir()}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "Downloads"), home)
	}
	return dirs
}

// Validate reports whether path is an existing regular file strictly nested
// under at least one of allowedDirs. Both the candidate and every allowed
// directory are symlink-resolved first: temp and downloads dirs are commonly
// symlinks themselves, and comparing unresolved paths would open a bypass.
func Validate(path string, allowedDirs []string) Result {
	if strings.TrimSpace(path) == "" {
		return reject(ReasonEmptyPath)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return reject(ReasonNotFound)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return reject(ReasonNotFound)
	}
	if info.IsDir() {
		return reject(ReasonNotAFile)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return reject(ReasonNotFound)
	}

	for _, dir := range allowedDirs {
		canon, err := filepath.EvalSymlinks(dir)
		if err != nil {
			continue
		}
		if nestedUnder(resolved, canon) {
			return Result{Valid: true}
		}
	}
	return reject(ReasonOutsideAllowed)
}

// nestedUnder reports whether path is strictly inside dir. The comparison is
// separator-aware: /home/userX is not inside /home/user, and dir itself does
// not count as inside dir.
func nestedUnder(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
