package fixloop

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/XAVware/ONYX/internal/config"
	"github.com/XAVware/ONYX/internal/diagnostics"
	"github.com/XAVware/ONYX/internal/llm"
	"github.com/XAVware/ONYX/internal/treewriter"
	"github.com/XAVware/ONYX/internal/xcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBuilder struct {
	mu      sync.Mutex
	results []*xcode.BuildResult
	err     error
	cleans  []bool
	onBuild func(n int)
}

func (b *fakeBuilder) Build(_ context.Context, _ string, cfg xcode.Configuration, clean bool) (*xcode.BuildResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleans = append(b.cleans, clean)
	if b.onBuild != nil {
		b.onBuild(len(b.cleans))
	}
	if b.err != nil {
		return nil, b.err
	}
	i := len(b.cleans) - 1
	if i >= len(b.results) {
		i = len(b.results) - 1
	}
	r := *b.results[i]
	r.Configuration = cfg
	return &r, nil
}

func (b *fakeBuilder) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.cleans)
}

type fakeCompleter struct {
	mu      sync.Mutex
	prompts []string
	reply   func(n int, user string) (string, error)
}

func (c *fakeCompleter) Complete(_ context.Context, _, user string) (string, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, user)
	n := len(c.prompts)
	c.mu.Unlock()
	return c.reply(n, user)
}

func replyWith(s string) func(int, string) (string, error) {
	return func(int, string) (string, error) { return s, nil }
}

func passing() *xcode.BuildResult {
	return &xcode.BuildResult{Succeeded: true}
}

func failing(ds ...diagnostics.Diagnostic) *xcode.BuildResult {
	return &xcode.BuildResult{Succeeded: false, ExitCode: 65, Diagnostics: ds}
}

func errAt(file, msg string) diagnostics.Diagnostic {
	return diagnostics.Diagnostic{Severity: diagnostics.SeverityError, File: file, Line: 3, Column: 1, Message: msg}
}

func newProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func TestRunSucceedsWithoutFixes(t *testing.T) {
	root := newProject(t, nil)
	b := &fakeBuilder{results: []*xcode.BuildResult{passing()}}
	c := &fakeCompleter{reply: replyWith("")}

	res, err := New(b, c, Options{MaxIterations: 3}).Run(context.Background(), root)

	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, 1, res.Builds)
	assert.Empty(t, res.Iterations)
	assert.Empty(t, c.prompts)
	assert.Equal(t, []bool{true}, b.cleans)
	assert.Equal(t, xcode.Debug, res.LastBuild.Configuration)
}

func TestRunAppliesFixAndRebuilds(t *testing.T) {
	root := newProject(t, map[string]string{"Demo/A.swift": "let a: Int = \"x\"\n"})
	b := &fakeBuilder{results: []*xcode.BuildResult{
		failing(errAt("Demo/A.swift", "cannot convert value")),
		passing(),
	}}
	c := &fakeCompleter{reply: replyWith("## Demo/A.swift\n```swift\nlet a: Int = 1\n```\n")}

	res, err := New(b, c, Options{MaxIterations: 5}).Run(context.Background(), root)

	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, 2, res.Builds)
	assert.Equal(t, []bool{true, false}, b.cleans)
	assert.Equal(t, "let a: Int = 1\n", readFile(t, root, "Demo/A.swift"))

	require.Len(t, res.Iterations, 1)
	it := res.Iterations[0]
	assert.Equal(t, 0, it.Index)
	assert.Equal(t, []string{"Demo/A.swift"}, it.FilesTouched)
	require.NotNil(t, it.PostBuild)
	assert.True(t, it.PostBuild.Succeeded)
	assert.Len(t, it.PreDiagnostics, 1)
	require.Len(t, it.Changes, 1)
	assert.Equal(t, 1, it.Changes[0].Added)
	assert.Equal(t, 1, it.Changes[0].Removed)

	require.Len(t, c.prompts, 1)
	assert.Contains(t, c.prompts[0], "Fix the errors in Demo/A.swift")
	assert.Contains(t, c.prompts[0], "cannot convert value")
	assert.Contains(t, c.prompts[0], "let a: Int = \"x\"")
}

func TestRunExhaustsAfterExactlyMaxIterationsBuilds(t *testing.T) {
	root := newProject(t, map[string]string{"Demo/A.swift": "broken\n"})
	b := &fakeBuilder{results: []*xcode.BuildResult{failing(errAt("Demo/A.swift", "missing return"))}}
	c := &fakeCompleter{reply: replyWith("## Demo/A.swift\n```swift\nstill broken\n```\n")}

	res, err := New(b, c, Options{MaxIterations: 3, CleanEachBuild: true}).Run(context.Background(), root)

	require.NoError(t, err)
	assert.Equal(t, StatusExhausted, res.Status)
	assert.Equal(t, 3, res.Builds)
	assert.Equal(t, 3, b.calls())
	assert.Equal(t, []bool{true, true, true}, b.cleans)
	assert.Len(t, res.Iterations, 2)
	assert.True(t, res.Stalled)
	assert.True(t, res.Iterations[1].Stalled)
	assert.Equal(t, []diagnostics.Signature{{File: "Demo/A.swift", Message: "missing return"}}, res.Persistent)
	assert.Len(t, res.Remaining(), 1)
}

func TestRunZeroBlockRoundConsumesPass(t *testing.T) {
	root := newProject(t, map[string]string{"Demo/A.swift": "broken\n"})
	b := &fakeBuilder{results: []*xcode.BuildResult{
		failing(errAt("Demo/A.swift", "missing return")),
		passing(),
	}}
	c := &fakeCompleter{reply: func(n int, _ string) (string, error) {
		if n == 1 {
			return "I could not determine a fix for this error.", nil
		}
		return "## Demo/A.swift\n```swift\nfixed\n```\n", nil
	}}

	res, err := New(b, c, Options{MaxIterations: 3}).Run(context.Background(), root)

	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, 2, res.Builds)
	require.Len(t, res.Iterations, 2)

	first := res.Iterations[0]
	assert.True(t, first.NoOp)
	assert.Empty(t, first.FilesTouched)
	assert.Nil(t, first.PostBuild)

	second := res.Iterations[1]
	assert.False(t, second.NoOp)
	assert.Equal(t, 1, second.Index)
	assert.NotNil(t, second.PostBuild)
	assert.Equal(t, "fixed\n", readFile(t, root, "Demo/A.swift"))
}

func TestRunZeroBlockRoundsExhaustWithoutRebuilding(t *testing.T) {
	root := newProject(t, map[string]string{"Demo/A.swift": "broken\n"})
	b := &fakeBuilder{results: []*xcode.BuildResult{failing(errAt("Demo/A.swift", "missing return"))}}
	c := &fakeCompleter{reply: replyWith("no code here")}

	res, err := New(b, c, Options{MaxIterations: 3}).Run(context.Background(), root)

	require.NoError(t, err)
	assert.Equal(t, StatusExhausted, res.Status)
	assert.Equal(t, 1, res.Builds)
	assert.Len(t, res.Iterations, 2)
	assert.False(t, res.Stalled)
	assert.Equal(t, "broken\n", readFile(t, root, "Demo/A.swift"))
}

func TestRunAbortsOnPathEscape(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "project")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Demo"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Demo", "A.swift"), []byte("x"), 0o644))

	b := &fakeBuilder{results: []*xcode.BuildResult{failing(errAt("Demo/A.swift", "boom"))}}
	c := &fakeCompleter{reply: replyWith("## Demo/A.swift\n```\nok\n```\n## ../evil.swift\n```\npwned\n```\n")}

	res, err := New(b, c, Options{MaxIterations: 5}).Run(context.Background(), root)

	assert.ErrorIs(t, err, treewriter.ErrPathEscape)
	assert.Equal(t, StatusAborted, res.Status)
	assert.ErrorIs(t, res.Err, treewriter.ErrPathEscape)
	assert.Equal(t, 1, res.Builds)
	assert.NoFileExists(t, filepath.Join(parent, "evil.swift"))
	assert.Equal(t, "x", readFile(t, root, "Demo/A.swift"))
	assert.True(t, IsAbort(err))
}

func TestRunAbortsOnTransportError(t *testing.T) {
	root := newProject(t, map[string]string{"Demo/A.swift": "x"})
	b := &fakeBuilder{results: []*xcode.BuildResult{failing(errAt("Demo/A.swift", "boom"))}}
	transport := &llm.TransportError{Provider: "test", Err: errors.New("connection refused")}
	c := &fakeCompleter{reply: func(int, string) (string, error) { return "", transport }}

	res, err := New(b, c, Options{MaxIterations: 5}).Run(context.Background(), root)

	assert.ErrorIs(t, err, llm.ErrTransport)
	assert.Equal(t, StatusAborted, res.Status)
	assert.Equal(t, 1, res.Builds)
	require.Len(t, res.Iterations, 1)
	assert.Nil(t, res.Iterations[0].PostBuild)
}

func TestRunAbortsWhenProjectMissing(t *testing.T) {
	b := &fakeBuilder{err: xcode.ErrProjectNotFound}
	c := &fakeCompleter{reply: replyWith("")}

	res, err := New(b, c, Options{}).Run(context.Background(), t.TempDir())

	assert.ErrorIs(t, err, xcode.ErrProjectNotFound)
	assert.Equal(t, StatusAborted, res.Status)
	assert.Equal(t, 0, res.Builds)
	assert.Nil(t, res.LastBuild)
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	root := newProject(t, map[string]string{"Demo/A.swift": "x"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := &fakeBuilder{
		results: []*xcode.BuildResult{failing(errAt("Demo/A.swift", "boom"))},
		onBuild: func(int) { cancel() },
	}
	c := &fakeCompleter{reply: replyWith("")}

	res, err := New(b, c, Options{MaxIterations: 5}).Run(ctx, root)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusAborted, res.Status)
	assert.Empty(t, c.prompts)
}

func TestRunPerFileAppliesInSortedOrder(t *testing.T) {
	root := newProject(t, map[string]string{
		"Demo/A.swift": "a",
		"Demo/B.swift": "b",
	})
	b := &fakeBuilder{results: []*xcode.BuildResult{
		failing(errAt("Demo/B.swift", "b broke"), errAt("Demo/A.swift", "a broke")),
		passing(),
	}}
	c := &fakeCompleter{reply: func(_ int, user string) (string, error) {
		if strings.Contains(user, "Fix the errors in Demo/A.swift") {
			return "## Demo/A.swift\n```\nA fixed\n```\n## Demo/Shared.swift\n```\nfrom A\n```\n", nil
		}
		return "## Demo/B.swift\n```\nB fixed\n```\n## Demo/Shared.swift\n```\nfrom B\n```\n", nil
	}}

	res, err := New(b, c, Options{MaxIterations: 3, Concurrency: 4}).Run(context.Background(), root)

	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Len(t, c.prompts, 2)
	assert.Equal(t, "from B\n", readFile(t, root, "Demo/Shared.swift"))
	assert.Equal(t, []string{"Demo/A.swift", "Demo/B.swift", "Demo/Shared.swift"}, res.Iterations[0].FilesTouched)
}

func TestRunCombinedSendsOneRequest(t *testing.T) {
	root := newProject(t, map[string]string{
		"Demo/A.swift": "struct A {}",
		"Demo/B.swift": "struct B {}",
	})
	b := &fakeBuilder{results: []*xcode.BuildResult{
		failing(errAt("Demo/A.swift", "a broke"), errAt("Demo/B.swift", "b broke")),
		passing(),
	}}
	c := &fakeCompleter{reply: replyWith("## Demo/A.swift\n```\nfixed\n```\n")}

	_, err := New(b, c, Options{MaxIterations: 3, Batching: config.BatchCombined}).Run(context.Background(), root)

	require.NoError(t, err)
	require.Len(t, c.prompts, 1)
	assert.Contains(t, c.prompts[0], "// Demo/A.swift\nstruct A {}")
	assert.Contains(t, c.prompts[0], "// Demo/B.swift\nstruct B {}")
	assert.Contains(t, c.prompts[0], "a broke")
	assert.Contains(t, c.prompts[0], "b broke")
}

func TestRunGlobalOnlySendsSnapshot(t *testing.T) {
	root := newProject(t, map[string]string{
		"Demo/A.swift":        "struct A {}",
		"DerivedData/X.swift": "ignored",
	})
	linker := diagnostics.Diagnostic{Severity: diagnostics.SeverityError, Message: "ld: symbol(s) not found for architecture arm64"}
	b := &fakeBuilder{results: []*xcode.BuildResult{failing(linker), passing()}}
	c := &fakeCompleter{reply: replyWith("## Demo/A.swift\n```\nfixed\n```\n")}

	_, err := New(b, c, Options{MaxIterations: 3}).Run(context.Background(), root)

	require.NoError(t, err)
	require.Len(t, c.prompts, 1)
	assert.Contains(t, c.prompts[0], "// Demo/A.swift\nstruct A {}")
	assert.Contains(t, c.prompts[0], "symbol(s) not found")
	assert.NotContains(t, c.prompts[0], "ignored")
}

func TestRunResolvesDiagnosticFiles(t *testing.T) {
	root := newProject(t, map[string]string{
		"Demo/Views/ContentView.swift": "view",
		"Demo/Models/Item.swift":       "item",
	})
	abs := filepath.Join(root, "Demo", "Models", "Item.swift")
	b := &fakeBuilder{results: []*xcode.BuildResult{
		failing(
			errAt(abs, "absolute path"),
			errAt("/Users/ci/Build/ContentView.swift", "base name match"),
			errAt("/somewhere/else/Missing.swift", "unresolved"),
		),
		passing(),
	}}
	c := &fakeCompleter{reply: replyWith("## Demo/Models/Item.swift\n```\nfixed\n```\n")}

	_, err := New(b, c, Options{MaxIterations: 3}).Run(context.Background(), root)

	require.NoError(t, err)
	require.Len(t, c.prompts, 2)
	for _, p := range c.prompts {
		assert.Contains(t, p, "unresolved", "global diagnostics go with every request")
	}
	joined := strings.Join(c.prompts, "\n")
	assert.Contains(t, joined, "Fix the errors in Demo/Models/Item.swift")
	assert.Contains(t, joined, "Fix the errors in Demo/Views/ContentView.swift")
}

func TestRunIncludesAnalysis(t *testing.T) {
	root := newProject(t, map[string]string{"Demo/A.swift": "x"})
	b := &fakeBuilder{results: []*xcode.BuildResult{failing(errAt("Demo/A.swift", "boom")), passing()}}
	analyst := &fakeCompleter{reply: replyWith("  The Item type was never declared.  ")}
	c := &fakeCompleter{reply: replyWith("## Demo/A.swift\n```\nfixed\n```\n")}

	res, err := New(b, c, Options{MaxIterations: 3, Analyst: analyst}).Run(context.Background(), root)

	require.NoError(t, err)
	require.Len(t, analyst.prompts, 1)
	assert.Contains(t, analyst.prompts[0], "boom")
	assert.Contains(t, c.prompts[0], "The Item type was never declared.")
	assert.Equal(t, "The Item type was never declared.", res.Iterations[0].Analysis)
}

func TestRunReportsEvents(t *testing.T) {
	root := newProject(t, map[string]string{"Demo/A.swift": "x"})
	b := &fakeBuilder{results: []*xcode.BuildResult{failing(errAt("Demo/A.swift", "boom")), passing()}}
	c := &fakeCompleter{reply: replyWith("## Demo/A.swift\n```\nfixed\n```\n")}

	var kinds []EventKind
	obs := func(ev Event) { kinds = append(kinds, ev.Kind) }

	_, err := New(b, c, Options{MaxIterations: 3, Observer: obs}).Run(context.Background(), root)

	require.NoError(t, err)
	assert.Equal(t, []EventKind{
		EventBuildStarted, EventBuildFinished,
		EventFixRequested,
		EventBuildStarted, EventBuildFinished,
		EventFixApplied,
		EventFinished,
	}, kinds)
}

func TestIsAbort(t *testing.T) {
	assert.True(t, IsAbort(xcode.ErrProjectNotFound))
	assert.True(t, IsAbort(context.Canceled))
	assert.False(t, IsAbort(errors.New("disk full")))
}
