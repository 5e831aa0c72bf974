package xcode

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Spec is the subset of an XcodeGen project.yml that scaffolding writes.
type Spec struct {
	Name    string                `yaml:"name"`
	Options SpecOptions           `yaml:"options"`
	Targets map[string]SpecTarget `yaml:"targets"`
}

// SpecOptions maps to the project.yml options section.
type SpecOptions struct {
	BundleIDPrefix              string            `yaml:"bundleIdPrefix"`
	DeploymentTarget            map[string]string `yaml:"deploymentTarget,omitempty"`
	XcodeVersion                string            `yaml:"xcodeVersion,omitempty"`
	CreateIntermediateGroups    bool              `yaml:"createIntermediateGroups"`
	GenerateEmptyDirectories    bool              `yaml:"generateEmptyDirectories"`
	UseBaseInternationalization bool              `yaml:"useBaseInternationalization"`
}

// SpecTarget is one XcodeGen target.
type SpecTarget struct {
	Type     string         `yaml:"type"`
	Platform string         `yaml:"platform"`
	Sources  []SpecSource   `yaml:"sources"`
	Settings SpecSettings   `yaml:"settings"`
	Info     map[string]any `yaml:"info,omitempty"`
}

// SpecSource is a target source folder.
type SpecSource struct {
	Path string `yaml:"path"`
	Type string `yaml:"type,omitempty"`
}

// SpecSettings holds base build settings.
type SpecSettings struct {
	Base map[string]any `yaml:"base"`
}

// ScaffoldOptions configures NewSpec.
type ScaffoldOptions struct {
	BundleIDPrefix   string
	DevelopmentTeam  string
	DeploymentTarget string
}

// NewSpec returns an iOS SwiftUI application spec whose sources live in a
// folder named after the app.
func NewSpec(appName string, opts ScaffoldOptions) Spec {
	prefix := opts.BundleIDPrefix
	if prefix == "" {
		prefix = "com.onyx"
	}
	target := opts.DeploymentTarget
	if target == "" {
		target = "17.0"
	}

	base := map[string]any{
		"SWIFT_VERSION":             "5.0",
		"PRODUCT_BUNDLE_IDENTIFIER": BundleID(prefix, appName),
		"CODE_SIGN_STYLE":           "Automatic",
		"CURRENT_PROJECT_VERSION":   1,
		"MARKETING_VERSION":         "1.0",
		"GENERATE_INFOPLIST_FILE":   "YES",
		"INFOPLIST_KEY_UIApplicationSceneManifest_Generation":     "YES",
		"INFOPLIST_KEY_UIApplicationSupportsIndirectInputEvents": "YES",
		"INFOPLIST_KEY_UILaunchScreen_Generation":                "YES",
		"TARGETED_DEVICE_FAMILY":                                 "1",
		"ENABLE_PREVIEWS":                                        "YES",
	}
	if opts.DevelopmentTeam != "" {
		base["DEVELOPMENT_TEAM"] = opts.DevelopmentTeam
	}

	return Spec{
		Name: appName,
		Options: SpecOptions{
			BundleIDPrefix:           prefix,
			DeploymentTarget:         map[string]string{"iOS": target},
			XcodeVersion:             "16.0",
			CreateIntermediateGroups: true,
			GenerateEmptyDirectories: true,
		},
		Targets: map[string]SpecTarget{
			appName: {
				Type:     "application",
				Platform: "iOS",
				Sources:  []SpecSource{{Path: appName}},
				Settings: SpecSettings{Base: base},
			},
		},
	}
}

// WriteSpec writes spec to root/project.yml.
func WriteSpec(root string, spec Spec) error {
	data, err := yaml.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to encode project.yml: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(root, "project.yml"), data, 0o644)
}

// ReadSpec reads a project.yml.
func ReadSpec(path string) (Spec, error) {
	var spec Spec
	data, err := os.ReadFile(path)
	if err != nil {
		return spec, err
	}
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return spec, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return spec, nil
}

// Generate runs `xcodegen generate` in root to produce the .xcodeproj.
func Generate(ctx context.Context, xcodegen, root string) error {
	if xcodegen == "" {
		xcodegen = "xcodegen"
	}
	cmd := exec.CommandContext(ctx, xcodegen, "generate")
	cmd.Dir = root
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("xcodegen generate failed: %w\n%s", err, string(output))
	}
	return nil
}

// BundleID joins prefix and a bundle-safe form of appName.
func BundleID(prefix, appName string) string {
	if prefix == "" {
		prefix = "com.onyx"
	}
	return prefix + "." + bundleComponent(appName)
}

// bundleComponent lowercases and strips characters not allowed in a
// bundle identifier component.
func bundleComponent(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "app"
	}
	return b.String()
}

// SanitizeAppName converts free text into a PascalCase Swift identifier,
// e.g. "habit tracker!" -> "HabitTracker".
func SanitizeAppName(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if upper {
				b.WriteRune(unicode.ToUpper(r))
			} else {
				b.WriteRune(r)
			}
			upper = false
		default:
			upper = true
		}
	}
	name := b.String()
	if name == "" {
		return "App"
	}
	if unicode.IsDigit(rune(name[0])) {
		name = "App" + name
	}
	return name
}
