// Package discover walks a project root and emits immutable file-metadata
// records, classified for analyzer dispatch. Exclusion is evaluated before
// inclusion; a file excluded by any pattern is dropped regardless of
// include matches.
package discover

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/jward/codeatlas/internal/model"
)

// DiscoveryError is fatal: the root does not exist or is not a directory.
type DiscoveryError struct {
	Root string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover %s: %v", e.Root, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// DefaultExcludes are glob patterns for common build, VCS, and virtual-env
// directories, applied when the caller supplies no exclude patterns.
var DefaultExcludes = []string{
	"**/.git/**",
	"**/.hg/**",
	"**/.svn/**",
	"**/__pycache__/**",
	"**/node_modules/**",
	"**/vendor/**",
	"**/venv/**",
	"**/.venv/**",
	"**/env/**",
	"**/build/**",
	"**/dist/**",
	"**/.tox/**",
	"**/.mypy_cache/**",
	"**/.pytest_cache/**",
	"**/*.egg-info/**",
}

// skipDirs prunes the walk early; patterns still apply to whatever remains.
var skipDirs = map[string]struct{}{
	".git":          {},
	".hg":           {},
	".svn":          {},
	"__pycache__":   {},
	"node_modules":  {},
	"vendor":        {},
	"venv":          {},
	".venv":         {},
	"build":         {},
	"dist":          {},
	".tox":          {},
	".mypy_cache":   {},
	".pytest_cache": {},
}

// SkipDir reports whether a directory name is always pruned from
// discovery and watching.
func SkipDir(name string) bool {
	_, skip := skipDirs[name]
	return skip
}

// Options configures a discovery pass.
type Options struct {
	// Include patterns (doublestar). Empty means all files.
	Include []string
	// Exclude patterns (doublestar). Empty means DefaultExcludes.
	Exclude []string
	// ReadTimeout bounds the content read used for hashing. Zero means
	// DefaultReadTimeout.
	ReadTimeout time.Duration
	Logger      *slog.Logger
}

// DefaultReadTimeout bounds per-file reads so a single unreadable or
// enormous file cannot stall a run.
const DefaultReadTimeout = 10 * time.Second

// Discover walks root and returns the discovered files sorted by relative
// path, plus per-file skip records for files that could not be read. The
// returned error is non-nil only for fatal conditions (invalid root).
func Discover(root string, opts Options) ([]model.DiscoveredFile, []model.FileError, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, &DiscoveryError{Root: root, Err: err}
	}
	if !info.IsDir() {
		return nil, nil, &DiscoveryError{Root: root, Err: fmt.Errorf("not a directory")}
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, &DiscoveryError{Root: root, Err: err}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	excludes := opts.Exclude
	if len(excludes) == 0 {
		excludes = DefaultExcludes
	}
	readTimeout := opts.ReadTimeout
	if readTimeout == 0 {
		readTimeout = DefaultReadTimeout
	}
	gi := loadGitignore(absRoot)

	var files []model.DiscoveredFile
	var skipped []model.FileError

	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable directory entries are recorded, never fatal.
			rel := relOrSelf(absRoot, path)
			skipped = append(skipped, model.FileError{
				File: rel, Stage: "discover", Message: err.Error(),
			})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if path == absRoot {
				return nil
			}
			if _, skip := skipDirs[name]; skip {
				return filepath.SkipDir
			}
			// Never follow symlinked directories: a link pointing above
			// the root would make the walk unbounded.
			if d.Type()&fs.ModeSymlink != 0 {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		rel := relOrSelf(absRoot, path)
		relSlash := filepath.ToSlash(rel)

		// Exclusion wins over inclusion.
		if matchesAny(excludes, relSlash) {
			return nil
		}
		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}
		if len(opts.Include) > 0 && !matchesAny(opts.Include, relSlash) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			skipped = append(skipped, model.FileError{
				File: rel, Stage: "discover", Message: err.Error(),
			})
			return nil
		}

		df := model.DiscoveredFile{
			AbsPath:  path,
			RelPath:  rel,
			Category: Categorize(name),
			Size:     fi.Size(),
			ModTime:  fi.ModTime(),
		}

		// Hash content for analyzable files; unreadable ones are recorded
		// as skipped and dropped from the result set.
		if df.Category != model.CategoryOther {
			content, err := ReadFile(path, readTimeout)
			if err != nil {
				logger.Warn("skipping unreadable file", "path", rel, "error", err)
				skipped = append(skipped, model.FileError{
					File: rel, Stage: "discover", Message: err.Error(),
				})
				return nil
			}
			sum := sha256.Sum256(content)
			df.Hash = hex.EncodeToString(sum[:])
		}

		files = append(files, df)
		return nil
	})
	if walkErr != nil {
		return nil, nil, &DiscoveryError{Root: root, Err: walkErr}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, skipped, nil
}

// Categorize classifies a file name by extension.
func Categorize(name string) model.FileCategory {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".py":
		return model.CategoryStructural
	case ".md", ".markdown":
		return model.CategoryDocumentation
	default:
		return model.CategoryOther
	}
}

// ReadFile reads path with a bounded timeout. The read runs in its own
// goroutine; on timeout the caller moves on and the goroutine's result is
// discarded when it eventually completes.
func ReadFile(path string, timeout time.Duration) ([]byte, error) {
	type readResult struct {
		content []byte
		err     error
	}
	ch := make(chan readResult, 1)
	go func() {
		content, err := os.ReadFile(path)
		ch <- readResult{content, err}
	}()
	select {
	case res := <-ch:
		return res.content, res.err
	case <-time.After(timeout):
		return nil, fmt.Errorf("read %s: timed out after %s", path, timeout)
	}
}

func matchesAny(patterns []string, relSlash string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, relSlash); err == nil && ok {
			return true
		}
	}
	return false
}

func relOrSelf(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}
