// Package scanner finds the source and facts files an analysis run reads.
package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/panbanda/reaper/pkg/config"
	"github.com/panbanda/reaper/pkg/frontend/facts"
	"github.com/panbanda/reaper/pkg/parser"
)

// Scanner finds analyzable files in a directory.
type Scanner struct {
	config   *config.Config
	matchers []gitignore.Matcher
}

// NewScanner creates a new file scanner.
func NewScanner(cfg *config.Config) *Scanner {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Scanner{config: cfg}
}

// Result lists the files found by ScanDir.
type Result struct {
	// Sources are files a tree-sitter front-end handles.
	Sources []string
	// Facts are pre-extracted facts files.
	Facts []string
	// Skipped counts files over the configured size limit.
	Skipped int
}

// Len returns the number of files to analyze.
func (r *Result) Len() int {
	return len(r.Sources) + len(r.Facts)
}

// findGitRoot finds the root of the git repository by looking for .git directory.
// Returns empty string if not in a git repository.
func findGitRoot(start string) string {
	dir := start
	for {
		gitDir := filepath.Join(dir, ".git")
		if info, err := os.Stat(gitDir); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadExcludePatterns builds matchers from config patterns and every
// .gitignore of the enclosing repository.
func (s *Scanner) loadExcludePatterns(root string) {
	s.matchers = nil

	var patterns []gitignore.Pattern
	for _, pattern := range s.config.Exclude.Patterns {
		patterns = append(patterns, gitignore.ParsePattern(pattern, nil))
	}
	if len(patterns) > 0 {
		s.matchers = append(s.matchers, gitignore.NewMatcher(patterns))
	}

	if !s.config.Exclude.Gitignore {
		return
	}
	gitRoot := findGitRoot(root)
	if gitRoot == "" {
		return
	}
	gitPatterns, err := gitignore.ReadPatterns(osfs.New(gitRoot), nil)
	if err != nil || len(gitPatterns) == 0 {
		return
	}
	// Gitignore patterns are relative to the repository root, so paths
	// below a nested scan root are prefixed before matching.
	prefix := ""
	if rel, err := filepath.Rel(gitRoot, root); err == nil && rel != "." {
		prefix = rel
	}
	s.matchers = append(s.matchers, prefixed{
		Matcher: gitignore.NewMatcher(gitPatterns),
		prefix:  splitPath(prefix),
	})
}

type prefixed struct {
	gitignore.Matcher
	prefix []string
}

func (p prefixed) Match(path []string, isDir bool) bool {
	full := make([]string, 0, len(p.prefix)+len(path))
	full = append(full, p.prefix...)
	full = append(full, path...)
	return p.Matcher.Match(full, isDir)
}

func splitPath(path string) []string {
	if path == "" || path == "." {
		return nil
	}
	return strings.Split(filepath.ToSlash(path), "/")
}

// isExcluded checks if a path relative to the scan root matches any exclusion pattern.
func (s *Scanner) isExcluded(path string, isDir bool) bool {
	parts := splitPath(path)
	for _, m := range s.matchers {
		if m.Match(parts, isDir) {
			return true
		}
	}
	return false
}

// ScanDir recursively scans a directory for source and facts files.
// Paths that resolve outside root through symlinks are skipped. Results are
// sorted so that runs over the same tree see the same file order.
func (s *Scanner) ScanDir(root string) (*Result, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	absRoot, err = filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, err
	}

	s.loadExcludePatterns(absRoot)

	res := &Result{}
	maxSize := s.config.Analysis.MaxFileSize
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		relPath, _ := filepath.Rel(absRoot, path)

		if d.Type()&fs.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil || !isWithinRoot(resolved, absRoot) {
				return nil
			}
		}

		if d.IsDir() {
			if relPath != "." && (s.config.ExcludedDir(d.Name()) || s.isExcluded(relPath, true)) {
				return filepath.SkipDir
			}
			return nil
		}
		if s.isExcluded(relPath, false) {
			return nil
		}

		isFacts := facts.IsFactsFile(path)
		if !isFacts && parser.DetectLanguage(path) == parser.LangUnknown {
			return nil
		}
		if maxSize > 0 {
			if info, err := d.Info(); err == nil && info.Size() > maxSize {
				res.Skipped++
				return nil
			}
		}
		if isFacts {
			res.Facts = append(res.Facts, path)
		} else {
			res.Sources = append(res.Sources, path)
		}
		return nil
	})

	sort.Strings(res.Sources)
	sort.Strings(res.Facts)
	return res, walkErr
}

// isWithinRoot checks if a path is contained within the root directory.
func isWithinRoot(path, root string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absPath = filepath.Clean(absPath)
	root = filepath.Clean(root)
	// Add separator to prevent "/root2" matching "/root"
	return absPath == root || strings.HasPrefix(absPath, root+string(filepath.Separator))
}

// GroupByLanguage groups source files by their detected language.
func GroupByLanguage(files []string) map[parser.Language][]string {
	groups := make(map[parser.Language][]string)
	for _, f := range files {
		lang := parser.DetectLanguage(f)
		if lang != parser.LangUnknown {
			groups[lang] = append(groups[lang], f)
		}
	}
	return groups
}
