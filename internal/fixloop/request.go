package fixloop

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/XAVware/ONYX/internal/blocks"
	"github.com/XAVware/ONYX/internal/changes"
	"github.com/XAVware/ONYX/internal/config"
	"github.com/XAVware/ONYX/internal/diagnostics"
	"github.com/XAVware/ONYX/internal/prompts"
	"golang.org/x/sync/errgroup"
)

// sourceExtensions are the files a diagnostic may be matched to by base
// name.
var sourceExtensions = []string{".swift", ".h", ".m", ".mm", ".c", ".cpp", ".metal", ".plist"}

// fixPlan is the set of requests for one round.
type fixPlan struct {
	// byFile maps a root-relative path to the diagnostics reported in it.
	byFile map[string][]diagnostics.Diagnostic
	// global holds diagnostics whose file is absent or could not be
	// resolved under the root. They go with every request.
	global []diagnostics.Diagnostic
	all    []diagnostics.Diagnostic
}

func (p *fixPlan) files() []string {
	out := make([]string, 0, len(p.byFile))
	for f := range p.byFile {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (r *run) plan(errs []diagnostics.Diagnostic) (*fixPlan, error) {
	p := &fixPlan{byFile: make(map[string][]diagnostics.Diagnostic), all: errs}
	for _, d := range errs {
		rel, ok, err := r.resolve(d.File)
		if err != nil {
			return nil, err
		}
		if !ok {
			p.global = append(p.global, d)
			continue
		}
		p.byFile[rel] = append(p.byFile[rel], d)
	}
	return p, nil
}

// resolve maps a diagnostic file to a root-relative slash path. Absolute
// paths must lie under the root, relative ones are joined to it, and
// anything else falls back to a unique base-name match.
func (r *run) resolve(file string) (string, bool, error) {
	if file == "" {
		return "", false, nil
	}
	if filepath.IsAbs(file) {
		for _, root := range r.roots() {
			if rel, ok := relIfInside(root, file); ok && isFile(filepath.Join(root, rel)) {
				return filepath.ToSlash(rel), true, nil
			}
		}
	} else if rel := filepath.Clean(file); !strings.HasPrefix(rel, "..") && isFile(filepath.Join(r.root, rel)) {
		return filepath.ToSlash(rel), true, nil
	}

	idx, err := r.index()
	if err != nil {
		return "", false, err
	}
	matches := idx.byBase[filepath.Base(file)]
	if len(matches) == 1 {
		return matches[0], true, nil
	}
	return "", false, nil
}

// roots returns the root and, when different, its symlink-resolved form.
// xcodebuild reports resolved paths (/private/var on macOS).
func (r *run) roots() []string {
	out := []string{r.root}
	if resolved, err := filepath.EvalSymlinks(r.root); err == nil && resolved != r.root {
		out = append(out, resolved)
	}
	return out
}

type fileIndex struct {
	byBase map[string][]string
}

func (r *run) index() (*fileIndex, error) {
	if r.files != nil {
		return r.files, nil
	}
	files, err := changes.SourceFiles(r.root, changes.SnapshotOptions{Extensions: sourceExtensions})
	if err != nil {
		return nil, err
	}
	idx := &fileIndex{byBase: make(map[string][]string)}
	for _, f := range files {
		base := filepath.Base(f)
		idx.byBase[base] = append(idx.byBase[base], f)
	}
	r.files = idx
	return idx, nil
}

func relIfInside(root, p string) (string, bool) {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

func (r *run) analyze(ctx context.Context, errs []diagnostics.Diagnostic) (string, error) {
	system, user, err := r.opts.Prompts.Render(prompts.PersonaDebugger, prompts.Analyze, map[string]any{
		"Errors": describe(errs),
	})
	if err != nil {
		return "", err
	}
	out, err := r.opts.Analyst.Complete(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("analysis request failed: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// request sends the round's correction requests and returns the extracted
// blocks in a deterministic order.
func (r *run) request(ctx context.Context, p *fixPlan, analysis string) ([]blocks.FileBlock, error) {
	if len(p.byFile) == 0 {
		return r.requestSnapshot(ctx, p, analysis)
	}
	if r.opts.Batching == config.BatchCombined {
		return r.requestCombined(ctx, p, analysis)
	}
	return r.requestPerFile(ctx, p, analysis)
}

func (r *run) requestPerFile(ctx context.Context, p *fixPlan, analysis string) ([]blocks.FileBlock, error) {
	files := p.files()
	replies := make([][]blocks.FileBlock, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, rel := range files {
		g.Go(func() error {
			content, err := r.read(rel)
			if err != nil {
				return err
			}
			system, user, err := r.opts.Prompts.Render(prompts.PersonaDebugger, prompts.FixFile, map[string]any{
				"Path":     rel,
				"Errors":   describe(p.byFile[rel]),
				"Global":   describe(p.global),
				"Analysis": analysis,
				"Content":  content,
			})
			if err != nil {
				return err
			}
			out, err := r.completer.Complete(gctx, system, user)
			if err != nil {
				return fmt.Errorf("fix request for %s failed: %w", rel, err)
			}
			replies[i] = blocks.Extract(out)
			r.log.Debug().Str("file", rel).Int("blocks", len(replies[i])).Msg("fix reply received")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []blocks.FileBlock
	for _, fbs := range replies {
		out = append(out, fbs...)
	}
	return out, nil
}

func (r *run) requestCombined(ctx context.Context, p *fixPlan, analysis string) ([]blocks.FileBlock, error) {
	var sb strings.Builder
	for i, rel := range p.files() {
		content, err := r.read(rel)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("// " + rel + "\n" + content)
	}
	return r.requestAll(ctx, p, analysis, sb.String())
}

func (r *run) requestSnapshot(ctx context.Context, p *fixPlan, analysis string) ([]blocks.FileBlock, error) {
	snap, err := changes.Take(r.root, changes.SnapshotOptions{Limit: r.opts.SnapshotLimit})
	if err != nil {
		return nil, err
	}
	if snap.Truncated {
		r.log.Warn().Int("files", len(snap.Files)).Int("limit", r.opts.SnapshotLimit).Msg("source snapshot truncated")
	}
	return r.requestAll(ctx, p, analysis, snap.Text)
}

func (r *run) requestAll(ctx context.Context, p *fixPlan, analysis, code string) ([]blocks.FileBlock, error) {
	system, user, err := r.opts.Prompts.Render(prompts.PersonaDebugger, prompts.FixAll, map[string]any{
		"Errors":   describe(p.all),
		"Analysis": analysis,
		"Code":     code,
	})
	if err != nil {
		return nil, err
	}
	out, err := r.completer.Complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("fix request failed: %w", err)
	}
	return blocks.Extract(out), nil
}

func (r *run) read(rel string) (string, error) {
	data, err := os.ReadFile(filepath.Join(r.root, filepath.FromSlash(rel)))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", rel, err)
	}
	return string(data), nil
}

func describe(ds []diagnostics.Diagnostic) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.String()
	}
	return out
}
