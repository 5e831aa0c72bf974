// Package pipeline generates an app from an idea: scaffold, architecture
// plan, one code generation request per layer, then the fix loop.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/XAVware/ONYX/internal/blocks"
	"github.com/XAVware/ONYX/internal/changes"
	"github.com/XAVware/ONYX/internal/fixloop"
	"github.com/XAVware/ONYX/internal/llm"
	"github.com/XAVware/ONYX/internal/prompts"
	"github.com/XAVware/ONYX/internal/storage"
	"github.com/XAVware/ONYX/internal/treewriter"
	"github.com/XAVware/ONYX/internal/xcode"
	"github.com/rs/zerolog"
)

// PlanFile is where the architecture plan is kept, relative to the root.
const PlanFile = "plans/Architecture.md"

// DefaultLayers are generated in order, each seeing the files of the ones
// before it on disk.
var DefaultLayers = []string{"Models", "Services", "ViewModels", "Views"}

// Fixer runs the build-fix loop on a project root.
type Fixer interface {
	Run(ctx context.Context, root string) (*fixloop.Result, error)
}

// Stage names reported to Options.Progress.
const (
	StageScaffold = "scaffold"
	StagePlan     = "plan"
	StageLayer    = "layer"
	StageFix      = "fix"
)

// Options configures a Pipeline.
type Options struct {
	ProjectsDir string
	Layers      []string
	SkipBuild   bool
	Scaffold    xcode.ScaffoldOptions
	// XcodegenTool, when set, runs xcodegen right after writing
	// project.yml. Otherwise generation is left to the builder.
	XcodegenTool string
	Prompts      *prompts.Catalog
	Logger       *zerolog.Logger
	// Progress is told when a stage starts. detail is the layer name for
	// StageLayer and empty otherwise.
	Progress func(stage, detail string)
	Provider string
	Model    string
}

// LayerResult records one generated layer.
type LayerResult struct {
	Layer string
	Files []string
}

// Result is the outcome of Generate.
type Result struct {
	Name       string
	Root       string
	PlanPath   string
	PlanReused bool
	Layers     []LayerResult
	// DuplicateTypes lists type names declared in more than one generated
	// file, checked before the first build.
	DuplicateTypes []changes.DuplicateType
	// Fix is nil when the build was skipped.
	Fix *fixloop.Result
}

// Pipeline generates apps.
type Pipeline struct {
	completer llm.Completer
	fixer     Fixer
	opts      Options
	log       zerolog.Logger
}

// New returns a Pipeline. fixer may be nil when opts.SkipBuild is set.
func New(completer llm.Completer, fixer Fixer, opts Options) *Pipeline {
	if len(opts.Layers) == 0 {
		opts.Layers = DefaultLayers
	}
	if opts.Prompts == nil {
		opts.Prompts = prompts.Default()
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	return &Pipeline{completer: completer, fixer: fixer, opts: opts, log: log.With().Str("component", "pipeline").Logger()}
}

// Generate builds the app called name from idea under ProjectsDir/<name>.
// An existing plan is reused, so an interrupted run can be resumed.
func (p *Pipeline) Generate(ctx context.Context, idea, name string) (*Result, error) {
	name = xcode.SanitizeAppName(name)
	root := filepath.Join(p.opts.ProjectsDir, name)
	res := &Result{Name: name, Root: root, PlanPath: filepath.Join(root, filepath.FromSlash(PlanFile))}
	store := storage.NewProjectStore(filepath.Join(root, ".onyx"))

	p.progress(StageScaffold, "")
	if err := p.scaffold(ctx, root, name, idea, store); err != nil {
		return res, err
	}

	p.progress(StagePlan, "")
	plan, reused, err := p.plan(ctx, res.PlanPath, name, idea)
	if err != nil {
		return res, err
	}
	res.PlanReused = reused
	p.setStatus(store, storage.StatusPlanned)

	for _, layer := range p.opts.Layers {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		p.progress(StageLayer, layer)
		files, err := p.layer(ctx, root, name, layer, plan)
		if err != nil {
			return res, fmt.Errorf("%s layer: %w", layer, err)
		}
		res.Layers = append(res.Layers, LayerResult{Layer: layer, Files: files})
	}

	res.DuplicateTypes = p.duplicateTypes(root)

	if p.opts.SkipBuild || p.fixer == nil {
		return res, nil
	}

	p.progress(StageFix, "")
	p.setStatus(store, storage.StatusBuilding)
	started := time.Now()
	fix, err := p.fixer.Run(ctx, root)
	res.Fix = fix
	if fix != nil {
		runs := storage.NewRunStore(filepath.Join(root, ".onyx"))
		run := storage.NewRun("new", started, fix)
		run.Provider, run.Model = p.opts.Provider, p.opts.Model
		if _, serr := runs.Append(run); serr != nil {
			p.log.Warn().Err(serr).Msg("failed to record run")
		}
		if fix.Status == fixloop.StatusSucceeded {
			p.setStatus(store, storage.StatusReady)
		} else {
			p.setStatus(store, storage.StatusFailing)
		}
	}
	return res, err
}

func (p *Pipeline) scaffold(ctx context.Context, root, name, idea string, store *storage.ProjectStore) error {
	if err := os.MkdirAll(filepath.Join(root, name), 0o755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	existing, err := store.Load()
	if err != nil {
		p.log.Warn().Err(err).Msg("ignoring unreadable project record")
	}
	if existing == nil {
		proj, err := store.Create(name, idea, xcode.BundleID(p.opts.Scaffold.BundleIDPrefix, name))
		if err != nil {
			return err
		}
		proj.Layers, proj.Provider, proj.Model = p.opts.Layers, p.opts.Provider, p.opts.Model
		if err := store.Save(proj); err != nil {
			return err
		}
	}

	if _, err := xcode.Locate(root); err == nil {
		return nil
	} else if !errors.Is(err, xcode.ErrProjectNotFound) {
		return err
	}

	if err := xcode.WriteSpec(root, xcode.NewSpec(name, p.opts.Scaffold)); err != nil {
		return err
	}
	p.log.Info().Str("root", root).Msg("wrote project.yml")
	if p.opts.XcodegenTool == "" {
		return nil
	}
	return xcode.Generate(ctx, p.opts.XcodegenTool, root)
}

func (p *Pipeline) plan(ctx context.Context, planPath, name, idea string) (string, bool, error) {
	if data, err := os.ReadFile(planPath); err == nil && strings.TrimSpace(string(data)) != "" {
		p.log.Info().Str("path", planPath).Msg("reusing existing plan")
		return string(data), true, nil
	}

	target := p.opts.Scaffold.DeploymentTarget
	if target == "" {
		target = "17.0"
	}
	system, user, err := p.opts.Prompts.Render(prompts.PersonaArchitect, prompts.Plan, map[string]any{
		"AppName":          name,
		"Idea":             idea,
		"DeploymentTarget": target,
		"Layers":           p.opts.Layers,
	})
	if err != nil {
		return "", false, err
	}
	out, err := p.completer.Complete(ctx, system, user)
	if err != nil {
		return "", false, fmt.Errorf("plan request failed: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", false, errors.New("plan request returned nothing")
	}

	if err := os.MkdirAll(filepath.Dir(planPath), 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create plans directory: %w", err)
	}
	if err := os.WriteFile(planPath, []byte(out+"\n"), 0o644); err != nil {
		return "", false, fmt.Errorf("failed to save plan: %w", err)
	}
	return out, false, nil
}

func (p *Pipeline) layer(ctx context.Context, root, name, layer, plan string) ([]string, error) {
	existing, err := layerFiles(root, layer)
	if err != nil {
		return nil, err
	}
	system, user, err := p.opts.Prompts.Render(prompts.PersonaDeveloper, prompts.Engineer, map[string]any{
		"AppName":      name,
		"Layer":        layer,
		"Architecture": plan,
		"Existing":     existing,
	})
	if err != nil {
		return nil, err
	}
	out, err := p.completer.Complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("generation request failed: %w", err)
	}

	fbs := underSources(name, blocks.Extract(out))
	if len(fbs) == 0 {
		p.log.Warn().Str("layer", layer).Msg("completion had no file blocks")
		return nil, nil
	}
	wr, err := treewriter.Apply(root, fbs)
	if err != nil {
		return nil, err
	}
	p.log.Info().Str("layer", layer).Strs("files", wr.Written).Msg("layer written")
	return wr.Written, nil
}

// underSources places every block inside the <name>/ sources folder, since
// models sometimes drop the leading folder from the paths they return.
// Paths with ".." segments are left alone for the tree writer to reject.
func underSources(name string, fbs []blocks.FileBlock) []blocks.FileBlock {
	out := make([]blocks.FileBlock, len(fbs))
	for i, fb := range fbs {
		if hasParentSegment(fb.Path) {
			out[i] = fb
			continue
		}
		if fb.Path != name && !strings.HasPrefix(fb.Path, name+"/") {
			fb.Path = path.Join(name, fb.Path)
		}
		out[i] = fb
	}
	return out
}

func hasParentSegment(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// layerFiles lists source files with a directory named layer in their path.
func layerFiles(root, layer string) ([]string, error) {
	files, err := changes.SourceFiles(root, changes.SnapshotOptions{})
	if err != nil {
		return nil, err
	}
	var out []string
	for _, f := range files {
		dirs := strings.Split(path.Dir(f), "/")
		for _, d := range dirs {
			if d == layer {
				out = append(out, f)
				break
			}
		}
	}
	return out, nil
}

func (p *Pipeline) duplicateTypes(root string) []changes.DuplicateType {
	dups, err := changes.DuplicateTypes(root, changes.SnapshotOptions{})
	if err != nil {
		p.log.Warn().Err(err).Msg("duplicate type scan failed")
		return nil
	}
	for _, d := range dups {
		p.log.Warn().Str("type", d.Name).Strs("files", d.Files).Msg("type declared in more than one file")
	}
	return dups
}

func (p *Pipeline) setStatus(store *storage.ProjectStore, status string) {
	if _, err := store.UpdateStatus(status); err != nil {
		p.log.Warn().Err(err).Str("status", status).Msg("failed to update project status")
	}
}

func (p *Pipeline) progress(stage, detail string) {
	p.log.Info().Str("stage", stage).Str("detail", detail).Msg("stage started")
	if p.opts.Progress != nil {
		p.opts.Progress(stage, detail)
	}
}
