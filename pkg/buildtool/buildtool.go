// Package buildtool drives the external build tool that compiles a recipe's
// source tree. Only its invocation contract lives here: configure an
// out-of-source build directory from generated configuration, build it, and
// install into a prefix. A non-zero exit is a BuildToolError carrying the
// tool's output verbatim.
package buildtool

import (
	"context"
	"errors"
	"io"
	"runtime"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	ferrors "github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/observability"
	"github.com/matzehuels/stackforge/pkg/shell"
)

// Invocation carries the directories and files a tool run needs.
type Invocation struct {
	SourceDir   string
	BuildDir    string
	InstallDir  string
	BuildType   string
	CacheFile   string // initial cache script from buildconfig
	Toolchain   string // toolchain file from buildconfig
	Generator   string // optional, e.g. "Ninja"
	Parallelism int    // 0 uses the number of CPUs
}

// Tool is the external build tool collaborator.
type Tool interface {
	Name() string
	Configure(ctx context.Context, inv Invocation) error
	Build(ctx context.Context, inv Invocation) error
	Install(ctx context.Context, inv Invocation) error
}

// Error is the BuildToolError payload: which step failed, its exit code, and
// the complete tool output.
type Error struct {
	Tool     string
	Step     string
	ExitCode int
	Output   string
}

func (e *Error) Error() string {
	return e.Tool + " " + e.Step + " exited with status " + strconv.Itoa(e.ExitCode)
}

// CMake runs the cmake command line.
type CMake struct {
	Exec   shell.Executor
	Binary string // "cmake" when empty
	Logger *log.Logger
}

// NewCMake returns a CMake driver running through exec.
func NewCMake(exec shell.Executor, logger *log.Logger) *CMake {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &CMake{Exec: exec, Binary: "cmake", Logger: logger}
}

// Name implements Tool.
func (c *CMake) Name() string { return "cmake" }

// Configure runs "cmake -S src -B build" with the generated cache script and
// toolchain file.
func (c *CMake) Configure(ctx context.Context, inv Invocation) error {
	args := []string{"-S", inv.SourceDir, "-B", inv.BuildDir}
	if inv.CacheFile != "" {
		args = append(args, "-C", inv.CacheFile)
	}
	if inv.Toolchain != "" {
		args = append(args, "-DCMAKE_TOOLCHAIN_FILE="+inv.Toolchain)
	}
	if inv.BuildType != "" {
		args = append(args, "-DCMAKE_BUILD_TYPE="+inv.BuildType)
	}
	if inv.Generator != "" {
		args = append(args, "-G", inv.Generator)
	}
	return c.run(ctx, "configure", args)
}

// Build runs "cmake --build".
func (c *CMake) Build(ctx context.Context, inv Invocation) error {
	jobs := inv.Parallelism
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	args := []string{"--build", inv.BuildDir, "--parallel", strconv.Itoa(jobs)}
	if inv.BuildType != "" {
		args = append(args, "--config", inv.BuildType)
	}
	return c.run(ctx, "build", args)
}

// Install runs "cmake --install" into inv.InstallDir.
func (c *CMake) Install(ctx context.Context, inv Invocation) error {
	args := []string{"--install", inv.BuildDir, "--prefix", inv.InstallDir}
	if inv.BuildType != "" {
		args = append(args, "--config", inv.BuildType)
	}
	return c.run(ctx, "install", args)
}

func (c *CMake) run(ctx context.Context, step string, args []string) error {
	bin := c.Binary
	if bin == "" {
		bin = "cmake"
	}
	c.Logger.Debug("cmake", "step", step)
	start := time.Now()
	_, err := c.Exec.Run(ctx, shell.Command{Name: bin, Args: args})
	observability.Tool().OnCommand(ctx, "cmake", step, time.Since(start), err)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	var exitErr *shell.ExitError
	if errors.As(err, &exitErr) {
		return ferrors.Wrap(ferrors.ErrCodeBuildTool, &Error{
			Tool:     "cmake",
			Step:     step,
			ExitCode: exitErr.ExitCode,
			Output:   string(exitErr.Output),
		}, "cmake %s failed", step)
	}
	return ferrors.Wrap(ferrors.ErrCodeBuildTool, err, "cmake %s", step)
}

// Output extracts the tool output from a BuildToolError chain.
func Output(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Output, true
	}
	return "", false
}

var _ Tool = (*CMake)(nil)
