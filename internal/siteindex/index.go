// Package siteindex maintains the listing of subcontexts published into a
// site branch.
//
// The index is a plain text file at the branch root with one subcontext per
// line, sorted alphabetically, each listed once. It heals itself: on every
// update, entries whose directory no longer exists next to the index file
// are dropped.
package siteindex

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Result describes the outcome of an Update.
type Result struct {
	// Entries is the verified list that was written.
	Entries []string

	// Dropped lists entries removed because their directory is missing.
	Dropped []string
}

// Read returns the non-blank entries of the index file in file order.
// A missing file yields an empty list.
func Read(indexPath string) ([]string, error) {
	data, err := os.ReadFile(indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read index %s: %w", indexPath, err)
	}
	var entries []string
	for _, line := range strings.Split(string(data), "\n") {
		entry := strings.TrimSpace(line)
		if entry == "" {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Update adds subcontext to the index at indexPath, sorts and deduplicates
// the entries, drops those without a backing directory relative to the
// index file, and writes the result back. A blank subcontext (the branch
// root) adds nothing but still triggers verification.
func Update(indexPath, subcontext string) (Result, error) {
	existing, err := Read(indexPath)
	if err != nil {
		return Result{}, err
	}

	candidates := append(existing, normalize(subcontext))
	sort.Strings(candidates)

	base := filepath.Dir(indexPath)
	var result Result
	for i, entry := range candidates {
		if entry == "" || (i > 0 && entry == candidates[i-1]) {
			continue
		}
		if isDir(filepath.Join(base, filepath.FromSlash(entry))) {
			result.Entries = append(result.Entries, entry)
		} else {
			result.Dropped = append(result.Dropped, entry)
		}
	}

	if err := write(indexPath, result.Entries); err != nil {
		return Result{}, err
	}
	return result, nil
}

// normalize trims the subcontext and maps the branch root to "".
func normalize(subcontext string) string {
	s := strings.TrimSpace(subcontext)
	if s == "" {
		return ""
	}
	s = filepath.ToSlash(filepath.Clean(filepath.FromSlash(s)))
	s = strings.TrimPrefix(s, "/")
	if s == "." {
		return ""
	}
	return s
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func write(indexPath string, entries []string) error {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(indexPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write index %s: %w", indexPath, err)
	}
	return nil
}
