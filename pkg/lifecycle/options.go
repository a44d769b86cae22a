package lifecycle

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackforge/pkg/platform"
	"github.com/matzehuels/stackforge/pkg/recipe"
)

// Directory names below the work directory.
const (
	SourceDirName  = "src"
	BuildDirName   = "build"
	PackageDirName = "package"
	GeneratorsName = "generators"
)

// Options configures one lifecycle run.
type Options struct {
	Recipe    *recipe.Recipe    `json:"-"`
	Platform  platform.Platform `json:"platform"`
	Profile   string            `json:"profile,omitempty"`
	Overrides map[string]string `json:"overrides,omitempty"` // option name to raw value

	// WorkDir holds the source, build and package directories. Runs of
	// different recipes must not share one.
	WorkDir string `json:"work_dir"`

	Parallelism int  `json:"parallelism,omitempty"`
	Refresh     bool `json:"refresh,omitempty"` // re-acquire source even on a cache hit

	// Runtime options (not serialized)
	Logger   *log.Logger           `json:"-"`
	Progress func(e ProgressEvent) `json:"-"`

	validated bool
}

// ValidateAndSetDefaults checks required fields and applies defaults. It is
// idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.Recipe == nil {
		return fmt.Errorf("recipe is required")
	}
	if o.WorkDir == "" {
		return fmt.Errorf("work directory is required")
	}
	abs, err := filepath.Abs(o.WorkDir)
	if err != nil {
		return fmt.Errorf("work directory: %w", err)
	}
	o.WorkDir = abs
	if o.Platform == (platform.Platform{}) {
		o.Platform = platform.Host()
	}
	if o.Platform.BuildType == "" {
		o.Platform.BuildType = platform.Release
	}
	if o.Parallelism <= 0 {
		o.Parallelism = runtime.NumCPU()
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
	return nil
}

// Layout returns the directories of a run.
func (o *Options) Layout() Layout {
	build := filepath.Join(o.WorkDir, BuildDirName, string(o.Platform.BuildType))
	return Layout{
		Root:       o.WorkDir,
		Source:     filepath.Join(o.WorkDir, SourceDirName),
		Build:      build,
		Generators: filepath.Join(build, GeneratorsName),
		Package:    filepath.Join(o.WorkDir, PackageDirName),
	}
}

// Layout is the directory arrangement of a run: an out-of-source build
// directory per build type with the generated files beside it, and a
// separate install root.
type Layout struct {
	Root       string `json:"root"`
	Source     string `json:"source"`
	Build      string `json:"build"`
	Generators string `json:"generators"`
	Package    string `json:"package"`
}

// ProgressEvent reports stage transitions to an observer such as the CLI
// progress view.
type ProgressEvent struct {
	Stage Stage
	State State // state reached, or Failed
	Done  bool  // false when the stage starts
	// Skipped is set on completion of a stage that had nothing to do.
	Skipped bool
	Err     error
}
