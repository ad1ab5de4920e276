package project

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	generr "github.com/elijahmorgan/cowrap/internal/errors"
	"github.com/elijahmorgan/cowrap/internal/paths"
)

// ConfigFile is the name of the project configuration file.
const ConfigFile = "cowrap.yaml"

// Version is the generator version checked against Config.Requires.
// Overridden at link time with -ldflags "-X ...project.Version=...".
var Version = "1.2.0"

// Config describes the declaration grammar and the runtime the generated
// wrappers call into. The zero value is not usable; start from Default.
type Config struct {
	Requires string        `yaml:"requires"` // semver constraint on Version
	Marker   string        `yaml:"marker"`   // token between return kind and name
	Prefix   PrefixConfig  `yaml:"prefix"`
	Returns  ReturnConfig  `yaml:"returns"`
	Handles  HandleConfig  `yaml:"handles"`
	Runtime  RuntimeConfig `yaml:"runtime"`
	Header   HeaderConfig  `yaml:"header"`
	Jobs     []Job         `yaml:"jobs"`
}

// PrefixConfig holds the wrapper and coroutine-implementation name prefixes.
type PrefixConfig struct {
	Wrapper   string `yaml:"wrapper"`
	Coroutine string `yaml:"coroutine"`
}

// ReturnConfig holds the two accepted return-kind tokens.
type ReturnConfig struct {
	None  string `yaml:"none"`
	Value string `yaml:"value"`
}

// HandleConfig names the first-parameter handle types.
type HandleConfig struct {
	Primary string `yaml:"primary"` // e.g. "BlockDriverState *"
	Child   string `yaml:"child"`   // e.g. "BdrvChild *"
	Owner   string `yaml:"owner"`   // child field holding its primary handle
}

// RuntimeConfig names the external coroutine runtime the output calls.
type RuntimeConfig struct {
	PollState   string `yaml:"poll_state"`   // poll-state header type
	PollField   string `yaml:"poll_field"`   // context struct member holding the header
	TargetField string `yaml:"target_field"` // header member holding the target handle
	CoroutineFn string `yaml:"coroutine_fn"` // annotation on the trampoline
	InCoroutine string `yaml:"in_coroutine"` // predicate
	Create      string `yaml:"create"`       // coroutine creation primitive
	Poll        string `yaml:"poll"`         // poll-until-complete primitive
	OnExit      string `yaml:"on_exit"`      // finished notifier
}

// HeaderConfig controls the fixed preamble.
type HeaderConfig struct {
	Generator string   `yaml:"generator"`
	Includes  []string `yaml:"includes"`
}

// Job is one input declaration file and the file generated from it.
type Job struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
}

// Project is a directory tree rooted at a cowrap.yaml.
type Project struct {
	RootPath   string // directory containing cowrap.yaml
	ConfigPath string
	Config     Config
}

// Default returns the block-layer conventions the generator was written for.
func Default() Config {
	return Config{
		Marker: "generated_co_wrapper",
		Prefix: PrefixConfig{
			Wrapper:   "bdrv_",
			Coroutine: "bdrv_co_",
		},
		Returns: ReturnConfig{
			None:  "void",
			Value: "int",
		},
		Handles: HandleConfig{
			Primary: "BlockDriverState *",
			Child:   "BdrvChild *",
			Owner:   "bs",
		},
		Runtime: RuntimeConfig{
			PollState:   "BdrvPollCo",
			PollField:   "poll_state",
			TargetField: "bs",
			CoroutineFn: "coroutine_fn",
			InCoroutine: "qemu_in_coroutine",
			Create:      "qemu_coroutine_create",
			Poll:        "bdrv_poll_co",
			OnExit:      "bdrv_poll_co__on_exit",
		},
		Header: HeaderConfig{
			Generator: "cowrap",
			Includes: []string{
				"qemu/osdep.h",
				"block/coroutines.h",
				"block/block-gen.h",
			},
		},
	}
}

// Load reads a configuration file. Keys absent from the file keep their
// Default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, generr.Config(path, err, "failed to read config file")
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, generr.Config(path, err, "failed to parse config file")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, generr.Config(path, err, "invalid config")
	}

	return cfg, nil
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks that every name the emitter splices into C is usable.
func (c Config) Validate() error {
	idents := []struct {
		key, val string
	}{
		{"marker", c.Marker},
		{"returns.none", c.Returns.None},
		{"returns.value", c.Returns.Value},
		{"handles.owner", c.Handles.Owner},
		{"runtime.poll_state", c.Runtime.PollState},
		{"runtime.poll_field", c.Runtime.PollField},
		{"runtime.target_field", c.Runtime.TargetField},
		{"runtime.in_coroutine", c.Runtime.InCoroutine},
		{"runtime.create", c.Runtime.Create},
		{"runtime.poll", c.Runtime.Poll},
		{"runtime.on_exit", c.Runtime.OnExit},
	}
	for _, id := range idents {
		if !identRe.MatchString(id.val) {
			return fmt.Errorf("%s: %q is not a C identifier", id.key, id.val)
		}
	}

	// The annotation may be deliberately empty.
	if c.Runtime.CoroutineFn != "" && !identRe.MatchString(c.Runtime.CoroutineFn) {
		return fmt.Errorf("runtime.coroutine_fn: %q is not a C identifier", c.Runtime.CoroutineFn)
	}

	if c.Returns.None == c.Returns.Value {
		return fmt.Errorf("returns: none and value tokens must differ, both are %q", c.Returns.None)
	}

	if c.Prefix.Wrapper == "" || c.Prefix.Coroutine == "" {
		return fmt.Errorf("prefix: wrapper and coroutine prefixes are required")
	}
	if c.Prefix.Wrapper == c.Prefix.Coroutine {
		return fmt.Errorf("prefix: wrapper and coroutine prefixes must differ, both are %q", c.Prefix.Wrapper)
	}

	if c.Handles.Primary == "" || c.Handles.Child == "" {
		return fmt.Errorf("handles: primary and child types are required")
	}
	if c.Handles.Primary == c.Handles.Child {
		return fmt.Errorf("handles: primary and child types must differ, both are %q", c.Handles.Primary)
	}

	for i, job := range c.Jobs {
		if job.Input == "" {
			return fmt.Errorf("jobs[%d]: input is required", i)
		}
	}

	return CheckVersion(c.Requires)
}

// CheckVersion reports whether Version satisfies the constraint. An empty
// constraint always passes.
func CheckVersion(constraint string) error {
	if constraint == "" {
		return nil
	}

	con, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("requires: invalid constraint %q: %w", constraint, err)
	}

	v, err := semver.NewVersion(Version)
	if err != nil {
		return fmt.Errorf("invalid generator version %q: %w", Version, err)
	}

	if !con.Check(v) {
		return fmt.Errorf("requires %s, but this is cowrap %s", constraint, Version)
	}
	return nil
}

// Discover finds the project root by locating cowrap.yaml and loads it
func Discover(startDir string) (*Project, error) {
	rootPath, err := findProjectRoot(startDir)
	if err != nil {
		return nil, err
	}

	return Open(filepath.Join(rootPath, ConfigFile))
}

// Open loads the project whose configuration lives at configPath.
func Open(configPath string) (*Project, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	cfg, err := Load(absPath)
	if err != nil {
		return nil, err
	}

	return &Project{
		RootPath:   filepath.Dir(absPath),
		ConfigPath: absPath,
		Config:     cfg,
	}, nil
}

// Resolve returns the absolute input and output paths of a job. A job
// without an output writes next to its input.
func (p *Project) Resolve(job Job) (input, output string) {
	input = job.Input
	if !filepath.IsAbs(input) {
		input = filepath.Join(p.RootPath, input)
	}

	output = job.Output
	if output == "" {
		return input, paths.DefaultOutput(input)
	}
	if !filepath.IsAbs(output) {
		output = filepath.Join(p.RootPath, output)
	}
	return input, output
}

// findProjectRoot walks up from startDir to find cowrap.yaml
func findProjectRoot(startDir string) (string, error) {
	absPath, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	current := absPath
	for {
		if _, err := os.Stat(filepath.Join(current, ConfigFile)); err == nil {
			return current, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			// Reached filesystem root
			return "", fmt.Errorf("no %s found (searched up from %s)", ConfigFile, absPath)
		}
		current = parent
	}
}
