package changes

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestLineDelta(t *testing.T) {
	tests := []struct {
		name           string
		a, b           string
		added, removed int
	}{
		{"identical", "a\nb\n", "a\nb\n", 0, 0},
		{"append", "a\n", "a\nb\nc\n", 2, 0},
		{"replace line", "a\nb\nc\n", "a\nx\nc\n", 1, 1},
		{"from empty", "", "a\nb", 2, 0},
		{"to empty", "a\nb\n", "", 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			added, removed := LineDelta(tt.a, tt.b)
			assert.Equal(t, tt.added, added)
			assert.Equal(t, tt.removed, removed)
		})
	}
}

func TestCaptureAndCompare(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "App/A.swift", "let a = 1\nlet b = 2\n")
	writeFile(t, root, "App/Same.swift", "same\n")

	before, err := Capture(root, []string{"App/A.swift", "App/New.swift", "App/Same.swift", "App/Never.swift"})
	require.NoError(t, err)

	writeFile(t, root, "App/A.swift", "let a = 1\nlet b = 3\nlet c = 4\n")
	writeFile(t, root, "App/New.swift", "struct New {}\n")
	writeFile(t, root, "App/Same.swift", "same\n")

	got, err := before.Compare()
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, FileChange{Path: "App/A.swift", Added: 2, Removed: 1}, got[0])
	assert.Equal(t, FileChange{Path: "App/New.swift", Created: true, Added: 1}, got[1])
	assert.True(t, got[2].Unchanged())

	added, removed := Totals(got)
	assert.Equal(t, 3, added)
	assert.Equal(t, 1, removed)
	assert.Equal(t, "App/New.swift (new, +1)", got[1].String())
}

func TestTakeFormatsAndOrdersFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Demo/B.swift", "struct B {}")
	writeFile(t, root, "Demo/A.swift", "struct A {}")
	writeFile(t, root, "Demo/Info.plist", "<plist/>")

	snap, err := Take(root, SnapshotOptions{})
	require.NoError(t, err)

	assert.Equal(t, "// Demo/A.swift\nstruct A {}\n\n// Demo/B.swift\nstruct B {}", snap.Text)
	assert.Equal(t, []string{"Demo/A.swift", "Demo/B.swift"}, snap.Files)
	assert.False(t, snap.Truncated)
}

func TestTakeHonorsGitignoreAndDefaults(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "Generated/\n*.gen.swift\n")
	writeFile(t, root, "Demo/A.swift", "a")
	writeFile(t, root, "Demo/Model.gen.swift", "gen")
	writeFile(t, root, "Generated/G.swift", "g")
	writeFile(t, root, "DerivedData/X.swift", "x")
	writeFile(t, root, ".onyx/state.swift", "s")
	writeFile(t, root, "Demo.xcodeproj/Inner.swift", "p")

	files, err := SourceFiles(root, SnapshotOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Demo/A.swift"}, files)
}

func TestTakeRespectsLimit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "A.swift", strings.Repeat("a", 40))
	writeFile(t, root, "B.swift", strings.Repeat("b", 400))
	writeFile(t, root, "C.swift", strings.Repeat("c", 40))

	snap, err := Take(root, SnapshotOptions{Limit: 200})
	require.NoError(t, err)

	assert.True(t, snap.Truncated)
	assert.Equal(t, []string{"A.swift", "C.swift"}, snap.Files)
	assert.LessOrEqual(t, len(snap.Text), 200)
}

func TestTakeCustomExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.m", "objc")
	writeFile(t, root, "b.swift", "swift")

	files, err := SourceFiles(root, SnapshotOptions{Extensions: []string{".m"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.m"}, files)
}

func TestDuplicateTypes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "App/Models/Item.swift", "import Foundation\n\nstruct Item: Identifiable {\n    enum Kind { case a }\n}\n")
	writeFile(t, root, "App/Views/ItemView.swift", "import SwiftUI\n\nstruct Item {}\n\nstruct ItemView: View {\n    enum Kind { case b }\n    var body: some View { Text(\"\") }\n}\n")
	writeFile(t, root, "App/Services/Store.swift", "@MainActor\nfinal class Store {}\n\n@Observable final class Cart {}\n")
	writeFile(t, root, "App/ViewModels/CartModel.swift", "public final class Cart {}\nprotocol Store {}\n")
	writeFile(t, root, "build/Generated.swift", "struct Item {}\n")

	got, err := DuplicateTypes(root, SnapshotOptions{})
	require.NoError(t, err)

	assert.Equal(t, []DuplicateType{
		{Name: "Cart", Files: []string{"App/Services/Store.swift", "App/ViewModels/CartModel.swift"}},
		{Name: "Item", Files: []string{"App/Models/Item.swift", "App/Views/ItemView.swift"}},
		{Name: "Store", Files: []string{"App/Services/Store.swift", "App/ViewModels/CartModel.swift"}},
	}, got)
}

func TestDuplicateTypesNone(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "A.swift", "struct A {}\nextension A {}\n")
	writeFile(t, root, "B.swift", "extension A { struct Nested {} }\nclass B { class func make() -> B { B() } }\n")

	got, err := DuplicateTypes(root, SnapshotOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)
}
