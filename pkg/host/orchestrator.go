package host

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/stackforge/pkg/depgraph"
	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/lifecycle"
	"github.com/matzehuels/stackforge/pkg/option"
	"github.com/matzehuels/stackforge/pkg/requirement"
)

// DefaultConcurrency bounds how many lifecycles run at once.
const DefaultConcurrency = 4

// Job is one recipe lifecycle to run.
type Job struct {
	Options lifecycle.Options
}

// Name returns the recipe name of the job.
func (j Job) Name() string {
	if j.Options.Recipe == nil {
		return ""
	}
	return j.Options.Recipe.Name
}

// JobResult pairs a job with its outcome.
type JobResult struct {
	Name   string
	Result *lifecycle.Result
	Err    error
}

// Orchestrator runs several recipe lifecycles with one Runner. Jobs that
// require each other's packages run in dependency order; independent jobs
// run concurrently.
type Orchestrator struct {
	Runner      *lifecycle.Runner
	Concurrency int
	Logger      *log.Logger
}

// NewOrchestrator returns an orchestrator around runner.
func NewOrchestrator(runner *lifecycle.Runner, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Orchestrator{Runner: runner, Concurrency: DefaultConcurrency, Logger: logger}
}

// RunAll runs every job. It rejects the batch before anything runs when two
// jobs share a recipe name or have overlapping work directories, or when the
// jobs require each other in a cycle.
//
// Jobs are grouped into levels by the requirements between them. A failed
// job stops the batch after its level completes; later levels do not run.
// Results are returned in job order; jobs that never ran have a nil Result.
func (o *Orchestrator) RunAll(ctx context.Context, jobs []Job) ([]JobResult, error) {
	if err := checkJobs(jobs); err != nil {
		return nil, err
	}
	levels, err := schedule(jobs)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(jobs))
	results := make([]JobResult, len(jobs))
	for i, j := range jobs {
		index[j.Name()] = i
		results[i].Name = j.Name()
	}

	limit := o.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	for n, level := range levels {
		o.Logger.Info("running level", "level", n, "recipes", strings.Join(level, ", "))
		var (
			mu     sync.Mutex
			failed []error
		)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(limit)
		for _, name := range level {
			i := index[name]
			opts := jobs[i].Options
			g.Go(func() error {
				res, err := o.Runner.Run(gctx, opts)
				mu.Lock()
				defer mu.Unlock()
				results[i].Result = res
				results[i].Err = err
				if err != nil {
					failed = append(failed, err)
				}
				return nil
			})
		}
		_ = g.Wait()
		if len(failed) > 0 {
			return results, fmt.Errorf("%d of %d recipes in level %d failed: %w", len(failed), len(level), n, stderrors.Join(failed...))
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
	}
	return results, nil
}

func checkJobs(jobs []Job) error {
	seen := make(map[string]bool, len(jobs))
	dirs := make([]string, len(jobs))
	for i, j := range jobs {
		if j.Options.Recipe == nil {
			return errors.New(errors.ErrCodeInvalidInput, "job %d has no recipe", i)
		}
		if seen[j.Name()] {
			return errors.Configuration("recipe %s scheduled twice", j.Name())
		}
		seen[j.Name()] = true
		abs, err := filepath.Abs(j.Options.WorkDir)
		if err != nil || j.Options.WorkDir == "" {
			return errors.New(errors.ErrCodeInvalidInput, "job %s has no usable work directory", j.Name())
		}
		dirs[i] = abs
	}
	for i := range dirs {
		for k := i + 1; k < len(dirs); k++ {
			if overlaps(dirs[i], dirs[k]) {
				return errors.Configuration("work directories of %s and %s overlap: %s, %s",
					jobs[i].Name(), jobs[k].Name(), dirs[i], dirs[k])
			}
		}
	}
	return nil
}

// overlaps reports whether a equals b or one contains the other.
func overlaps(a, b string) bool {
	return within(a, b) || within(b, a)
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// schedule orders jobs by the requirements between them. Requirements on
// packages outside the batch do not constrain the order.
func schedule(jobs []Job) ([][]string, error) {
	g := depgraph.New()
	for _, j := range jobs {
		if err := g.AddNode(depgraph.Node{ID: j.Name(), Version: j.Options.Recipe.Version, Kind: depgraph.NodeKindRoot}); err != nil {
			return nil, err
		}
	}
	for _, j := range jobs {
		reqs, err := declared(j)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfiguration, err, "recipe %s", j.Name())
		}
		for _, r := range reqs {
			if _, ok := g.Node(r.Name); !ok {
				continue
			}
			if err := g.AddEdge(depgraph.Edge{From: j.Name(), To: r.Name, Build: r.Has(requirement.FlagBuild)}); err != nil {
				return nil, err
			}
		}
	}
	levels, err := g.Levels()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfiguration, err, "schedule")
	}
	return levels, nil
}

// declared evaluates a job's requirements without running it. Option
// resolution and requirement declaration are pure, so the lifecycle computes
// the same list again.
func declared(j Job) (requirement.Requirements, error) {
	opts := j.Options
	rec := opts.Recipe
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	set, err := option.Resolve(rec.Options, opts.Platform, opts.Overrides)
	if err != nil {
		return nil, err
	}
	profile, err := rec.Profile(opts.Profile)
	if err != nil {
		return nil, err
	}
	return requirement.Declare(rec.Requirements, set, profile)
}
