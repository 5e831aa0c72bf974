package changes

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// defaultIgnores are skipped even without a .gitignore.
var defaultIgnores = []string{
	".git/",
	".onyx/",
	".build/",
	"build/",
	"DerivedData/",
	"Pods/",
	"*.xcodeproj/",
	"*.xcworkspace/",
}

// Snapshot is the concatenated source of a project.
type Snapshot struct {
	Text      string
	Files     []string
	Truncated bool
}

// SnapshotOptions controls which files a snapshot includes.
type SnapshotOptions struct {
	// Extensions to include, with the dot. Defaults to .swift.
	Extensions []string
	// Limit caps the snapshot size in bytes. Zero means no limit.
	Limit int
}

// Ignorer reports whether a slash-separated path relative to the project
// root should be skipped.
type Ignorer interface {
	MatchesPath(string) bool
}

// IgnoreRules compiles the project's .gitignore together with the default
// build and state directories.
func IgnoreRules(root string) Ignorer {
	rules := append([]string(nil), defaultIgnores...)
	if lines, err := readLines(filepath.Join(root, ".gitignore")); err == nil {
		rules = append(rules, lines...)
	}
	return ignore.CompileIgnoreLines(rules...)
}

// SourceFiles lists the files under root that a snapshot would include, as
// sorted slash-separated relative paths.
func SourceFiles(root string, opts SnapshotOptions) ([]string, error) {
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = []string{".swift"}
	}
	rules := IgnoreRules(root)

	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil || rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rules.MatchesPath(rel + "/") {
				return filepath.SkipDir
			}
			return nil
		}
		if rules.MatchesPath(rel) || !hasExt(rel, exts) {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(out)
	return out, nil
}

// Take concatenates every source file under root as "// <path>" followed
// by its contents. Files that would push the text past opts.Limit are
// left out and Truncated is set.
func Take(root string, opts SnapshotOptions) (*Snapshot, error) {
	files, err := SourceFiles(root, opts)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{}
	var sb strings.Builder
	for _, rel := range files {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", rel, err)
		}
		entry := "// " + rel + "\n" + string(data)
		sep := 0
		if sb.Len() > 0 {
			sep = 2
		}
		if opts.Limit > 0 && sb.Len()+sep+len(entry) > opts.Limit {
			snap.Truncated = true
			continue
		}
		if sep > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(entry)
		snap.Files = append(snap.Files, rel)
	}
	snap.Text = sb.String()
	return snap, nil
}

func hasExt(p string, exts []string) bool {
	ext := filepath.Ext(p)
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
