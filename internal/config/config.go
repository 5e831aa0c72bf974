package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Batching modes for correction requests.
const (
	BatchPerFile  = "per-file"
	BatchCombined = "combined"
)

// Config holds the CLI configuration. It is loaded once per command and
// passed explicitly to the components that need it.
type Config struct {
	// Root is the ONYX home directory (~/.onyx).
	Root string `yaml:"-"`

	// ProjectsDir is the project catalog root where new apps are created.
	ProjectsDir string `yaml:"projects_dir"`
	LogDir      string `yaml:"log_dir"`
	LogLevel    string `yaml:"log_level"`

	LLM     LLMConfig     `yaml:"llm"`
	Analyst LLMConfig     `yaml:"analyst"`
	Build   BuildConfig   `yaml:"build"`
	Fix     FixConfig     `yaml:"fix"`
	Project ProjectConfig `yaml:"project"`
}

// LLMConfig selects and tunes one completion backend.
type LLMConfig struct {
	// Provider is one of claude-cli, anthropic, openai, gemini. Empty disables
	// the role (used for the optional analyst).
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	MaxTokens         int           `yaml:"max_tokens"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryBaseDelay    time.Duration `yaml:"retry_base_delay"`
	ClaudePath        string        `yaml:"claude_path,omitempty"`
	BaseURL           string        `yaml:"base_url,omitempty"`
}

// BuildConfig configures xcodebuild invocations.
type BuildConfig struct {
	Tool                  string        `yaml:"tool"`
	Xcodegen              string        `yaml:"xcodegen"`
	Scheme                string        `yaml:"scheme,omitempty"`
	Destination           string        `yaml:"destination"`
	DerivedDataPath       string        `yaml:"derived_data_path,omitempty"`
	Configuration         string        `yaml:"configuration"`
	Timeout               time.Duration `yaml:"timeout"`
	Quiet                 bool          `yaml:"quiet"`
	TreatWarningsAsErrors bool          `yaml:"treat_warnings_as_errors"`
	CleanEachBuild        bool          `yaml:"clean_each_build"`
}

// FixConfig configures the build-fix loop.
type FixConfig struct {
	MaxIterations int    `yaml:"max_iterations"`
	Batching      string `yaml:"batching"`
	Concurrency   int    `yaml:"concurrency"`
	// SnapshotLimit caps the bytes of source sent with global-only errors.
	SnapshotLimit int `yaml:"snapshot_limit"`
}

// ProjectConfig holds defaults for generated projects.
type ProjectConfig struct {
	BundleIDPrefix   string   `yaml:"bundle_id_prefix"`
	DevelopmentTeam  string   `yaml:"development_team,omitempty"`
	DeploymentTarget string   `yaml:"deployment_target"`
	Layers           []string `yaml:"layers"`
}

// DefaultRoot returns ~/.onyx.
func DefaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".onyx"), nil
}

// Default returns the built-in configuration rooted at root.
func Default(root string) *Config {
	return &Config{
		Root:        root,
		ProjectsDir: filepath.Join(root, "projects"),
		LogDir:      filepath.Join(root, "logs"),
		LogLevel:    "info",
		LLM: LLMConfig{
			Provider:          "claude-cli",
			Model:             "sonnet",
			MaxTokens:         8192,
			RequestsPerMinute: 20,
			MaxRetries:        3,
			RetryBaseDelay:    2 * time.Second,
		},
		Build: BuildConfig{
			Tool:          "xcodebuild",
			Xcodegen:      "xcodegen",
			Destination:   "generic/platform=iOS Simulator",
			Configuration: "Debug",
			Timeout:       10 * time.Minute,
			Quiet:         true,
		},
		Fix: FixConfig{
			MaxIterations: 10,
			Batching:      BatchPerFile,
			Concurrency:   4,
			SnapshotLimit: 200_000,
		},
		Project: ProjectConfig{
			BundleIDPrefix:   "com.onyx",
			DeploymentTarget: "17.0",
			Layers:           []string{"Models", "Services", "ViewModels", "Views"},
		},
	}
}

// Load reads the configuration file at path (or ~/.onyx/config.yaml when
// path is empty), loads .env files, and applies ONYX_* overrides.
// A missing config file is not an error.
func Load(path string) (*Config, error) {
	root, err := DefaultRoot()
	if err != nil {
		return nil, err
	}
	if env := os.Getenv("ONYX_HOME"); env != "" {
		root = env
	}
	if path == "" {
		path = filepath.Join(root, "config.yaml")
	}

	cfg := Default(root)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	loadDotEnv(filepath.Join(root, ".env"), ".env")

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads the given .env files if present. Existing environment
// variables are never overwritten.
func loadDotEnv(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = godotenv.Load(p)
	}
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("ONYX_PROJECTS_DIR", &c.ProjectsDir)
	str("ONYX_LOG_DIR", &c.LogDir)
	str("ONYX_LOG_LEVEL", &c.LogLevel)
	str("ONYX_PROVIDER", &c.LLM.Provider)
	str("ONYX_MODEL", &c.LLM.Model)
	str("ONYX_ANALYST_PROVIDER", &c.Analyst.Provider)
	str("ONYX_ANALYST_MODEL", &c.Analyst.Model)
	str("ONYX_BUILD_DESTINATION", &c.Build.Destination)
	str("ONYX_BATCHING", &c.Fix.Batching)

	if err := integer("ONYX_MAX_ITERATIONS", &c.Fix.MaxIterations); err != nil {
		return err
	}
	if err := integer("ONYX_REQUESTS_PER_MINUTE", &c.LLM.RequestsPerMinute); err != nil {
		return err
	}
	if v := strings.TrimSpace(getenv("ONYX_BUILD_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ONYX_BUILD_TIMEOUT: %w", err)
		}
		c.Build.Timeout = d
	}
	return nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Fix.MaxIterations < 1 {
		return fmt.Errorf("fix.max_iterations must be at least 1, got %d", c.Fix.MaxIterations)
	}
	switch c.Fix.Batching {
	case BatchPerFile, BatchCombined:
	default:
		return fmt.Errorf("fix.batching must be %q or %q, got %q", BatchPerFile, BatchCombined, c.Fix.Batching)
	}
	if c.Fix.Concurrency < 1 {
		c.Fix.Concurrency = 1
	}
	if c.Build.Timeout <= 0 {
		return fmt.Errorf("build.timeout must be positive")
	}
	if !KnownProvider(c.LLM.Provider) {
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}
	if c.Analyst.Provider != "" && !KnownProvider(c.Analyst.Provider) {
		return fmt.Errorf("unknown analyst.provider %q", c.Analyst.Provider)
	}
	if len(c.Project.Layers) == 0 {
		return fmt.Errorf("project.layers must not be empty")
	}
	return nil
}

// Providers lists the supported completion backends.
var Providers = []string{"claude-cli", "anthropic", "openai", "gemini"}

// KnownProvider reports whether name is a supported backend.
func KnownProvider(name string) bool {
	for _, p := range Providers {
		if p == name {
			return true
		}
	}
	return false
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ProjectInfo holds metadata about a project in the catalog.
type ProjectInfo struct {
	Name      string
	Path      string
	UpdatedAt time.Time
}

// StateDir returns the .onyx state directory inside a project.
func StateDir(projectPath string) string {
	return filepath.Join(projectPath, ".onyx")
}

// ListProjects scans the catalog for projects (dirs with .onyx/project.json),
// most recently modified first.
func (c *Config) ListProjects() []ProjectInfo {
	entries, err := os.ReadDir(c.ProjectsDir)
	if err != nil {
		return nil
	}

	var projects []ProjectInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(c.ProjectsDir, entry.Name())
		info, err := os.Stat(filepath.Join(StateDir(dir), "project.json"))
		if err != nil {
			continue
		}
		projects = append(projects, ProjectInfo{
			Name:      entry.Name(),
			Path:      dir,
			UpdatedAt: info.ModTime(),
		})
	}

	sort.Slice(projects, func(i, j int) bool {
		return projects[i].UpdatedAt.After(projects[j].UpdatedAt)
	})
	return projects
}

// ResolveProject returns the project directory for arg: an existing path,
// a catalog project name, or (when arg is empty) the most recent project.
func (c *Config) ResolveProject(arg string) (string, error) {
	if arg != "" {
		if info, err := os.Stat(arg); err == nil && info.IsDir() {
			return filepath.Abs(arg)
		}
		candidate := filepath.Join(c.ProjectsDir, arg)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		return "", fmt.Errorf("project %q not found", arg)
	}
	projects := c.ListProjects()
	if len(projects) == 0 {
		return "", fmt.Errorf("no projects found. Run `onyx new` first to create a project")
	}
	return projects[0].Path, nil
}
