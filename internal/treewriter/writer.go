// Package treewriter applies extracted file blocks to a project directory.
package treewriter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/XAVware/ONYX/internal/blocks"
)

// ErrPathEscape is returned when a block path resolves outside the root.
var ErrPathEscape = errors.New("path escapes project root")

// WriteResult records the outcome for one block.
type WriteResult struct {
	Path string
	Err  error
}

// Result is the outcome of Apply.
type Result struct {
	// Results has one entry per input block, in input order.
	Results []WriteResult
	// Written is the sorted set of relative paths that were written.
	Written []string
}

// Apply writes each block's content to root/<path>, creating parent
// directories and overwriting existing files. Later blocks for the same
// path win. Files are never deleted.
//
// All paths are validated before anything is written: if any of them
// escapes root, nothing is written and the returned error wraps
// ErrPathEscape. I/O failures stop the run; files written before the
// failure stay on disk.
func Apply(root string, fbs []blocks.FileBlock) (*Result, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}

	res := &Result{Results: make([]WriteResult, len(fbs))}
	targets := make([]string, len(fbs))

	var escapes []error
	for i, fb := range fbs {
		res.Results[i].Path = fb.Path
		target, err := resolve(absRoot, realRoot, fb.Path)
		if err != nil {
			res.Results[i].Err = err
			escapes = append(escapes, err)
			continue
		}
		targets[i] = target
	}
	if len(escapes) > 0 {
		return res, errors.Join(escapes...)
	}

	written := make(map[string]struct{}, len(fbs))
	for i, fb := range fbs {
		if err := writeFile(targets[i], fb.Content); err != nil {
			res.Results[i].Err = err
			res.Written = sortedKeys(written)
			return res, fmt.Errorf("failed to write %s: %w", fb.Path, err)
		}
		written[filepath.ToSlash(filepath.Clean(fb.Path))] = struct{}{}
	}
	res.Written = sortedKeys(written)
	return res, nil
}

// Validate reports the first path in fbs that would escape root.
func Validate(root string, fbs []blocks.FileBlock) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return err
	}
	for _, fb := range fbs {
		if _, err := resolve(absRoot, realRoot, fb.Path); err != nil {
			return err
		}
	}
	return nil
}

// resolve maps a relative block path to an absolute target inside root.
// Both the lexical path and the nearest existing ancestor (after symlink
// resolution) must stay inside root.
func resolve(absRoot, realRoot, rel string) (string, error) {
	if strings.TrimSpace(rel) == "" || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, rel)
	}
	target := filepath.Join(absRoot, filepath.FromSlash(rel))
	if !within(absRoot, target) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, rel)
	}

	existing := target
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		existing = parent
	}
	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", rel, err)
	}
	if resolved != realRoot && !within(realRoot, resolved) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, rel)
	}
	return target, nil
}

// within reports whether target is strictly below root.
func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
