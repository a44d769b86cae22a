package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stackforge/pkg/buildtool"
	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/host"
	"github.com/matzehuels/stackforge/pkg/lifecycle"
	"github.com/matzehuels/stackforge/pkg/shell"
	"github.com/matzehuels/stackforge/pkg/source"
)

// defaultWorkDir is the base directory for run work trees.
const defaultWorkDir = ".stackforge"

// runFlags holds flags for the run command.
type runFlags struct {
	configFlags
	workDir     string
	parallelism int
	concurrency int
	refresh     bool
	noCache     bool
	tui         bool
	format      string
	metricsAddr string
	fullOutput  bool
}

// runCommand creates the run command.
func (c *CLI) runCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run <recipe>...",
		Short: "Run the lifecycle of one or more recipes",
		Long: `Run every lifecycle stage of the given recipes: resolve options, lay out the
work directory, declare requirements, acquire and patch the source, emit the
build configuration, build, install and publish package information.

With several recipes, recipes that require each other's packages run in
dependency order and independent ones run concurrently. Published packages
are recorded in the store and satisfy the requirements of later runs.`,
		Example: `  stackforge run libdatachannel.toml
  stackforge run libdatachannel.toml -p linux/x86_64/gcc/Debug -o shared=true --tui
  stackforge run recipes/openssl recipes/libdatachannel -o libdatachannel:USE_NICE=true`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(flags.format); err != nil {
				return err
			}
			if flags.tui && len(args) > 1 {
				return fmt.Errorf("--tui shows a single recipe")
			}
			return c.runRecipes(cmd.Context(), args, flags)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&flags.workDir, "work-dir", "w", defaultWorkDir, "base directory for source, build and package trees")
	cmd.Flags().IntVarP(&flags.parallelism, "jobs", "j", 0, "build parallelism (default: number of CPUs)")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", host.DefaultConcurrency, "recipes run at once")
	cmd.Flags().BoolVar(&flags.refresh, "refresh", false, "re-acquire the source even when cached")
	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "disable the stage cache")
	cmd.Flags().BoolVar(&flags.tui, "tui", false, "show live stage progress")
	cmd.Flags().StringVarP(&flags.format, "format", "f", formatText, "result format: text, json, yaml")
	cmd.Flags().BoolVar(&flags.fullOutput, "full-output", false, "print the build tool's whole output on failure instead of its tail")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "expose Prometheus run metrics on this address while running")

	return cmd
}

// newRunner creates a lifecycle runner with the git fetcher, the CMake tool
// and a resolver over the package store.
func (c *CLI) newRunner(ctx context.Context, noCache bool) (*lifecycle.Runner, error) {
	cch, err := c.newCache(ctx, noCache)
	if err != nil {
		return nil, err
	}
	store, err := c.openStore(ctx)
	if err != nil {
		_ = cch.Close()
		return nil, err
	}

	exec := shell.NewExec(c.Logger)
	r := lifecycle.NewRunner(cch, nil, c.Logger)
	r.Fetcher = fetcher{git: source.NewGitFetcher(exec, c.Logger)}
	r.Tool = buildtool.NewCMake(exec, c.Logger)
	r.Resolver = host.NewLocalResolver(store)
	r.Store = store
	return r, nil
}

// fetcher exports local directories and clones everything else.
type fetcher struct {
	git source.Fetcher
	dir source.DirFetcher
}

func (f fetcher) Fetch(ctx context.Context, spec source.Spec, dest string) error {
	if isPlainDir(strings.TrimPrefix(spec.URL, "file://")) {
		return f.dir.Fetch(ctx, spec, dest)
	}
	return f.git.Fetch(ctx, spec, dest)
}

// isPlainDir reports whether path is a local directory that is not a git
// checkout.
func isPlainDir(path string) bool {
	if !filepath.IsAbs(path) {
		return false
	}
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		return false
	}
	_, err := os.Stat(filepath.Join(path, ".git"))
	return err != nil
}

func (c *CLI) runRecipes(ctx context.Context, paths []string, flags runFlags) error {
	jobs := make([]host.Job, 0, len(paths))
	for _, path := range paths {
		r, err := flags.resolve(path)
		if err != nil {
			return err
		}
		jobs = append(jobs, host.Job{Options: lifecycle.Options{
			Recipe:      r.recipe,
			Platform:    r.platform,
			Profile:     r.profile,
			Overrides:   r.overrides,
			WorkDir:     filepath.Join(flags.workDir, r.recipe.Name+"-"+r.recipe.Version),
			Parallelism: flags.parallelism,
			Refresh:     flags.refresh,
		}})
	}

	runner, err := c.newRunner(ctx, flags.noCache)
	if err != nil {
		return err
	}
	defer runner.Close()

	if flags.metricsAddr != "" {
		stop, err := c.serveMetrics(flags.metricsAddr)
		if err != nil {
			return err
		}
		defer stop()
	}

	if len(jobs) == 1 {
		res, err := c.runOne(ctx, runner, jobs[0].Options, flags)
		return c.report(flags.format, flags.outputLines(), []host.JobResult{{Name: jobs[0].Name(), Result: res, Err: err}}, err)
	}

	prog := newProgress(c.Logger)
	orch := host.NewOrchestrator(runner, c.Logger)
	orch.Concurrency = flags.concurrency
	results, err := orch.RunAll(ctx, jobs)
	if err == nil {
		prog.done(fmt.Sprintf("Ran %d recipes", len(jobs)))
	}
	return c.report(flags.format, flags.outputLines(), results, err)
}

func (c *CLI) runOne(ctx context.Context, runner *lifecycle.Runner, opts lifecycle.Options, flags runFlags) (*lifecycle.Result, error) {
	if flags.tui {
		// the view owns the terminal; keep the log quiet while it runs
		opts.Logger = log.NewWithOptions(os.Stderr, log.Options{Level: log.ErrorLevel})
		return runWithTUI(ctx, opts.Recipe.Ref(), func(ctx context.Context, progress func(lifecycle.ProgressEvent)) (*lifecycle.Result, error) {
			opts.Progress = progress
			return runner.Run(ctx, opts)
		})
	}

	if flags.format != formatText || c.Logger.GetLevel() <= log.DebugLevel {
		return runner.Run(ctx, opts)
	}

	spinner := newSpinnerWithContext(ctx, opts.Recipe.Ref())
	opts.Progress = func(e lifecycle.ProgressEvent) {
		if !e.Done {
			spinner.SetMessage(fmt.Sprintf("%s: %s", opts.Recipe.Ref(), e.Stage))
		}
	}
	spinner.Start()
	res, err := runner.Run(ctx, opts)
	spinner.Stop()
	return res, err
}

// outputTail is how many lines of build tool output a failure shows by default.
const outputTail = 20

// outputLines returns the number of tool output lines to print, 0 for all.
func (f runFlags) outputLines() int {
	if f.fullOutput {
		return 0
	}
	return outputTail
}

// report prints the outcome of each job and returns runErr. Structured
// formats carry the unabridged tool output in each result's failure.
func (c *CLI) report(format string, tail int, results []host.JobResult, runErr error) error {
	if format != formatText {
		out := make([]*lifecycle.Result, 0, len(results))
		for _, r := range results {
			if r.Result != nil {
				out = append(out, r.Result)
			}
		}
		if err := writeStructured(os.Stdout, format, out); err != nil {
			return err
		}
		return runErr
	}

	for _, jr := range results {
		res := jr.Result
		switch {
		case res == nil && jr.Err == nil:
			printWarning("%s did not run", jr.Name)
		case jr.Err != nil:
			printFailure(jr.Name, res, jr.Err, tail)
		default:
			printResult(res)
		}
	}
	return runErr
}

func printResult(res *lifecycle.Result) {
	printSuccess("%s %s", res.Recipe, StyleSuccess.Render(string(res.State)))
	printStats(len(res.Executed), len(res.Components), res.CacheInfo.SourceHit)
	if len(res.Skipped) > 0 {
		stages := make([]string, len(res.Skipped))
		for i, s := range res.Skipped {
			stages[i] = string(s)
		}
		printDetail("skipped: %s", strings.Join(stages, ", "))
	}
	for _, name := range res.Ignored {
		printWarning("override of %s ignored: option removed for this configuration", name)
	}
	if res.Artifacts != nil {
		printFile(res.Artifacts.Cache)
	}
	if res.Info != nil {
		printFile(res.Info.Root)
		printNextStep("Inspect", "stackforge info "+res.Info.Ref())
	}
}

func printFailure(name string, res *lifecycle.Result, err error, tail int) {
	var serr *lifecycle.StageError
	if stderrors.As(err, &serr) {
		printError("%s failed at %s: %s", name, StyleHighlight.Render(string(serr.Stage)), errors.UserMessage(serr.Cause))
	} else {
		printError("%s failed: %s", name, errors.UserMessage(err))
	}
	if out, ok := buildtool.Output(err); ok && out != "" {
		lines := lastLines(out, tail)
		if omitted := strings.Count(strings.TrimRight(out, "\n"), "\n") + 1 - len(lines); omitted > 0 {
			printDetail("... %d earlier lines omitted (--full-output shows them)", omitted)
		}
		for _, line := range lines {
			printDetail("%s", line)
		}
	}
	if res != nil && res.FailedStage != "" {
		printDetail("state: %s, completed: %d stages", res.State, len(res.Executed))
	}
}

// lastLines returns the last n lines of s, or all of them when n <= 0.
func lastLines(s string, n int) []string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
