package publish

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/otiai10/copy"

	"github.com/shinji-kodama/gitsite/internal/logging"
	"github.com/shinji-kodama/gitsite/internal/model"
	"github.com/shinji-kodama/gitsite/internal/siteindex"
)

// gitAttributes normalizes line endings of every published file.
const gitAttributes = "* text=auto\n"

// resetDir removes dir and recreates it empty. The working directory
// belongs to a single publish.
func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// canonicalTarget creates workDir/sub and returns its canonical path. A
// target that resolves outside the working directory, through a symlink
// carried by the cloned branch, is rejected.
func canonicalTarget(workDir, sub string) (string, error) {
	root, err := filepath.Abs(workDir)
	if err != nil {
		return "", err
	}
	if root, err = filepath.EvalSymlinks(root); err != nil {
		return "", err
	}
	target := filepath.Join(root, filepath.FromSlash(sub))
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(target)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("target area %s resolves to %s outside of %s", target, resolved, root)
	}
	return resolved, nil
}

// exclusions returns the patterns protected from deletion, relative to the
// target area. At the branch root the subcontext index is protected as
// well so it can be updated instead of recreated.
func exclusions(cfg model.DeploymentConfig, atRoot bool) []string {
	patterns := []string{".git/**"}
	for _, root := range cfg.RootsToExclude {
		if root = normalizeRoot(root); root != "" {
			patterns = append(patterns, root+"/**")
		}
	}
	if atRoot && cfg.IndexFileName != "" {
		patterns = append(patterns, cfg.IndexFileName)
	}
	return patterns
}

// normalizeRoot returns root as a clean slash-separated path without
// leading or trailing slashes, or "" when nothing is left.
func normalizeRoot(root string) string {
	root = strings.TrimSpace(root)
	if root == "" {
		return ""
	}
	root = strings.Trim(filepath.ToSlash(filepath.Clean(filepath.FromSlash(root))), "/")
	if root == "." {
		return ""
	}
	return root
}

// excluded reports whether rel (slash-separated, relative to the target
// area) matches a pattern. "X/**" matches X and everything below it; any
// other pattern matches exactly.
func excluded(rel string, patterns []string) bool {
	for _, p := range patterns {
		if dir, ok := strings.CutSuffix(p, "/**"); ok {
			if rel == dir || strings.HasPrefix(rel, dir+"/") {
				return true
			}
			continue
		}
		if rel == p {
			return true
		}
	}
	return false
}

// deleteUnexcluded removes every file below target that is not protected by
// patterns, then prunes directories left empty. It returns the removed
// files relative to target, sorted.
func deleteUnexcluded(target string, patterns []string) ([]string, error) {
	var deleted []string
	var dirs []string
	err := filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == target {
			return nil
		}
		rel, err := filepath.Rel(target, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if excluded(rel, patterns) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, path)
			return nil
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		deleted = append(deleted, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Deepest directories first so parents become empty before they are
	// visited.
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			if err := os.Remove(dir); err != nil {
				return nil, err
			}
		}
	}
	sort.Strings(deleted)
	return deleted, nil
}

// copyTree copies the site into the target area, overwriting existing
// files.
func copyTree(src, dst string) error {
	return copy.Copy(src, dst, copy.Options{
		OnSymlink: func(string) copy.SymlinkAction { return copy.Shallow },
	})
}

// countFiles returns the number of non-directory entries below dir.
func countFiles(dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	return count, err
}

// updateIndex records sub in the index file and logs dropped entries.
func updateIndex(log logging.Sink, indexPath, sub string) ([]string, error) {
	result, err := siteindex.Update(indexPath, sub)
	if err != nil {
		return nil, err
	}
	for _, d := range result.Dropped {
		logging.Printf(log, logging.SeverityWarn, "Dropping index entry '%s': directory no longer exists", d)
	}
	return result.Entries, nil
}
