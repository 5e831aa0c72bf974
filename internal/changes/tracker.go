// Package changes records what the fix loop did to a project tree: line
// counts per rewritten file, and the source snapshots sent to the model.
package changes

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// FileChange summarizes one file rewrite.
type FileChange struct {
	Path    string `json:"path"`
	Created bool   `json:"created,omitempty"`
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
}

// Unchanged reports whether the rewrite left the file byte-identical.
func (c FileChange) Unchanged() bool {
	return !c.Created && c.Added == 0 && c.Removed == 0
}

func (c FileChange) String() string {
	if c.Created {
		return fmt.Sprintf("%s (new, +%d)", c.Path, c.Added)
	}
	return fmt.Sprintf("%s (+%d -%d)", c.Path, c.Added, c.Removed)
}

// Before holds file contents captured ahead of a write.
type Before struct {
	root  string
	files map[string]*string
}

// Capture reads the current contents of paths (relative to root). Paths
// that do not exist yet are remembered as absent.
func Capture(root string, paths []string) (*Before, error) {
	b := &Before{root: root, files: make(map[string]*string, len(paths))}
	for _, p := range paths {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(p)))
		switch {
		case err == nil:
			s := string(data)
			b.files[p] = &s
		case errors.Is(err, fs.ErrNotExist):
			b.files[p] = nil
		default:
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
	}
	return b, nil
}

// Compare diffs every captured path against what is on disk now. Files
// that still do not exist are left out.
func (b *Before) Compare() ([]FileChange, error) {
	paths := make([]string, 0, len(b.files))
	for p := range b.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make([]FileChange, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(filepath.Join(b.root, filepath.FromSlash(p)))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		prev := b.files[p]
		if prev == nil {
			out = append(out, FileChange{Path: p, Created: true, Added: countLines(string(data))})
			continue
		}
		added, removed := LineDelta(*prev, string(data))
		out = append(out, FileChange{Path: p, Added: added, Removed: removed})
	}
	return out, nil
}

// LineDelta returns how many lines were inserted and deleted going from a
// to b.
func LineDelta(a, b string) (added, removed int) {
	if a == b {
		return 0, 0
	}
	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			removed += countLines(d.Text)
		}
	}
	return added, removed
}

// Totals sums the line counts of cs.
func Totals(cs []FileChange) (added, removed int) {
	for _, c := range cs {
		added += c.Added
		removed += c.Removed
	}
	return added, removed
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
