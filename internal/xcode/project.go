// Package xcode invokes xcodebuild and xcodegen for a generated project.
package xcode

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrProjectNotFound is returned when root has no workspace, project, or
// XcodeGen spec.
var ErrProjectNotFound = errors.New("no Xcode project found")

// ProjectKind is the kind of build descriptor found under a root.
type ProjectKind string

const (
	KindWorkspace ProjectKind = "workspace"
	KindProject   ProjectKind = "project"
	KindSpec      ProjectKind = "spec" // project.yml only, needs xcodegen
)

// Project describes the build descriptor for a root directory.
type Project struct {
	Kind ProjectKind
	Path string // absolute path to the .xcworkspace, .xcodeproj or project.yml
	Name string // base name without extension, used as the default scheme
}

// Locate finds the build descriptor directly under root. A workspace is
// preferred over a project, and a project over project.yml. Entries are
// examined in name order so the choice is deterministic.
func Locate(root string) (Project, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return Project{}, fmt.Errorf("%w: %s does not exist", ErrProjectNotFound, root)
		}
		return Project{}, fmt.Errorf("failed to read %s: %w", root, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var workspace, project, spec string
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".xcworkspace") && e.IsDir() && workspace == "":
			workspace = name
		case strings.HasSuffix(name, ".xcodeproj") && e.IsDir() && project == "":
			project = name
		case name == "project.yml" && !e.IsDir():
			spec = name
		}
	}

	switch {
	case workspace != "":
		return newProject(root, workspace, KindWorkspace), nil
	case project != "":
		return newProject(root, project, KindProject), nil
	case spec != "":
		p := newProject(root, spec, KindSpec)
		p.Name = specName(p.Path, root)
		return p, nil
	}
	return Project{}, fmt.Errorf("%w in %s", ErrProjectNotFound, root)
}

func newProject(root, name string, kind ProjectKind) Project {
	abs, err := filepath.Abs(filepath.Join(root, name))
	if err != nil {
		abs = filepath.Join(root, name)
	}
	return Project{
		Kind: kind,
		Path: abs,
		Name: strings.TrimSuffix(name, filepath.Ext(name)),
	}
}

// specName reads the project name from project.yml, falling back to the
// directory name.
func specName(specPath, root string) string {
	if spec, err := ReadSpec(specPath); err == nil && spec.Name != "" {
		return spec.Name
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return filepath.Base(root)
	}
	return filepath.Base(abs)
}
