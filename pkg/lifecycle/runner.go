package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/stackforge/pkg/buildconfig"
	"github.com/matzehuels/stackforge/pkg/buildtool"
	"github.com/matzehuels/stackforge/pkg/cache"
	ferrors "github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/observability"
	"github.com/matzehuels/stackforge/pkg/option"
	"github.com/matzehuels/stackforge/pkg/pkginfo"
	"github.com/matzehuels/stackforge/pkg/platform"
	"github.com/matzehuels/stackforge/pkg/requirement"
	"github.com/matzehuels/stackforge/pkg/source"
)

// TTLPackage is how long published package-info stays in the cache.
const TTLPackage = 30 * 24 * time.Hour

// Resolver locates the installed packages that satisfy a recipe's
// requirements.
type Resolver interface {
	Resolve(ctx context.Context, reqs requirement.Requirements, p platform.Platform) (buildconfig.Graph, error)
}

// StaticResolver resolves requirements from a fixed graph. Requirements not
// in the graph are left out and reported by the generate stage.
type StaticResolver buildconfig.Graph

// Resolve implements Resolver.
func (s StaticResolver) Resolve(_ context.Context, reqs requirement.Requirements, _ platform.Platform) (buildconfig.Graph, error) {
	g := make(buildconfig.Graph, len(reqs))
	for _, r := range reqs {
		if d, ok := s[r.Name]; ok {
			g[r.Name] = d
		}
	}
	return g, nil
}

// Runner executes recipe lifecycles.
//
// The Runner holds no run state: each Run builds its own state machine, so
// one Runner can execute runs for different work directories concurrently.
type Runner struct {
	Cache    cache.Cache
	Keyer    cache.Keyer
	Logger   *log.Logger
	Fetcher  source.Fetcher
	Tool     buildtool.Tool
	Resolver Resolver
	Store    pkginfo.Store // optional publication sink

	// SourceTTL bounds how long an acquired tree is trusted. Zero keeps
	// entries until invalidated.
	SourceTTL time.Duration
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:    c,
		Keyer:    keyer,
		Logger:   logger,
		Resolver: StaticResolver(nil),
	}
}

var errSkipped = errors.New("skipped")

// run is the state of one lifecycle execution.
type run struct {
	*Runner
	opts   Options
	layout Layout
	res    *Result
	log    *log.Logger
	set    option.Set
}

// Run executes every stage in order. It returns the result and nil when the
// run reaches Published. Otherwise the run halts at the failing stage and the
// error is a *StageError; the partial result is returned alongside it.
// Nothing is rolled back: the acquired source tree stays cached so a re-run
// resumes after the pure stages without fetching again.
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, ferrors.Wrap(ferrors.ErrCodeInvalidInput, err, "invalid options")
	}

	x := &run{
		Runner: r,
		opts:   opts,
		layout: opts.Layout(),
		log:    opts.Logger.With("recipe", opts.Recipe.Ref()),
	}
	x.res = &Result{
		RunID:    uuid.NewString(),
		Recipe:   opts.Recipe.Ref(),
		Platform: opts.Platform,
		Layout:   x.layout,
		State:    StateInitial,
		Stats:    Stats{Started: time.Now(), Durations: make(map[Stage]time.Duration)},
	}

	steps := []struct {
		stage Stage
		fn    func(context.Context) error
	}{
		{StageConfigOptions, x.configOptions},
		{StageConfigure, x.configure},
		{StageLayout, x.makeLayout},
		{StageRequirements, x.requirements},
		{StageSource, x.acquire},
		{StageGenerate, x.generate},
		{StageBuild, x.build},
		{StagePackage, x.install},
		{StagePackageInfo, x.publish},
	}

	name := opts.Recipe.Name
	hooks := observability.Lifecycle()
	hooks.OnRunStart(ctx, name)
	x.log.Info("starting run", "run", x.res.RunID, "platform", opts.Platform)

	m := newMachine()
	for _, s := range steps {
		if err := m.begin(s.stage); err != nil {
			return x.res, ferrors.Wrap(ferrors.ErrCodeInternal, err, "lifecycle")
		}
		start := time.Now()
		hooks.OnStageStart(ctx, name, string(s.stage))
		x.notify(ProgressEvent{Stage: s.stage, State: m.state})

		err := ctx.Err()
		if err == nil {
			err = s.fn(ctx)
		}
		skipped := errors.Is(err, errSkipped)
		if skipped {
			err = nil
		}

		d := time.Since(start)
		x.res.Stats.Durations[s.stage] = d
		hooks.OnStageComplete(ctx, name, string(s.stage), d, err)

		if err != nil {
			m.fail(s.stage)
			x.res.State = m.state
			x.res.FailedStage = s.stage
			x.res.Stats.Total = time.Since(x.res.Stats.Started)
			serr := &StageError{Stage: s.stage, Cause: err}
			x.res.Failure = newFailure(serr)
			x.log.Error("stage failed", "stage", s.stage, "code", serr.Code(), "error", ferrors.UserMessage(err))
			x.notify(ProgressEvent{Stage: s.stage, State: m.state, Done: true, Err: serr})
			hooks.OnRunComplete(ctx, name, string(m.state), x.res.Stats.Total, serr)
			return x.res, serr
		}

		m.complete(s.stage)
		x.res.State = m.state
		x.res.Executed = append(x.res.Executed, s.stage)
		if skipped {
			x.res.Skipped = append(x.res.Skipped, s.stage)
		}
		x.log.Debug("stage complete", "stage", s.stage, "state", m.state, "duration", d)
		x.notify(ProgressEvent{Stage: s.stage, State: m.state, Done: true, Skipped: skipped})
	}

	x.res.Stats.Total = time.Since(x.res.Stats.Started)
	hooks.OnRunComplete(ctx, name, string(m.state), x.res.Stats.Total, nil)
	x.log.Info("run complete", "state", m.state, "duration", x.res.Stats.Total)
	return x.res, nil
}

// Close releases resources held by the runner.
func (r *Runner) Close() error {
	var errs []error
	if r.Cache != nil {
		errs = append(errs, r.Cache.Close())
	}
	if r.Store != nil {
		errs = append(errs, r.Store.Close())
	}
	return errors.Join(errs...)
}

func (x *run) notify(e ProgressEvent) {
	if x.opts.Progress != nil {
		x.opts.Progress(e)
	}
}

func (x *run) configOptions(context.Context) error {
	set, err := option.ConfigOptions(x.opts.Recipe.Options, x.opts.Platform)
	if err != nil {
		return err
	}
	x.set = set
	return nil
}

func (x *run) configure(context.Context) error {
	set, err := option.Configure(x.opts.Recipe.Options, x.set, x.opts.Platform, x.opts.Overrides)
	if err != nil {
		return err
	}
	for _, name := range set.Ignored() {
		x.log.Warn("override ignored, option does not exist on this platform", "option", name, "platform", x.opts.Platform)
	}
	x.set = set
	x.res.Options = set
	x.res.Ignored = set.Ignored()
	return nil
}

func (x *run) makeLayout(context.Context) error {
	for _, dir := range []string{x.layout.Root, x.layout.Build} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ferrors.Wrap(ferrors.ErrCodeInternal, err, "create %s", dir)
		}
	}
	return nil
}

func (x *run) requirements(context.Context) error {
	profile, err := x.opts.Recipe.Profile(x.opts.Profile)
	if err != nil {
		return err
	}
	reqs, err := requirement.Declare(x.opts.Recipe.Requirements, x.set, profile)
	if err != nil {
		return err
	}
	x.res.Profile = profile
	x.res.Requirements = reqs
	return nil
}

func (x *run) acquire(ctx context.Context) error {
	rec := x.opts.Recipe
	if !rec.Buildable() {
		return errSkipped
	}
	if x.Fetcher == nil {
		return ferrors.Configuration("no source fetcher configured")
	}
	patches, err := source.LoadPatches(rec.Dir, rec.Patches)
	if err != nil {
		return err
	}
	acq := source.NewAcquirer(x.Fetcher, x.Cache, x.Keyer, x.log)
	acq.TTL = x.SourceTTL
	if x.opts.Refresh {
		if err := acq.Invalidate(ctx, *rec.Source, patches); err != nil {
			x.log.Warn("source cache invalidation failed", "error", err)
		}
	}
	tree, hit, err := acq.Acquire(ctx, x.layout.Source, *rec.Source, patches)
	if err != nil {
		return err
	}
	x.res.Source = tree
	x.res.CacheInfo.SourceHit = hit
	return nil
}

func (x *run) generate(ctx context.Context) error {
	rec := x.opts.Recipe
	graph, err := x.Resolver.Resolve(ctx, x.res.Requirements, x.opts.Platform)
	if err != nil {
		return err
	}
	if err := graph.Check(x.res.Requirements); err != nil {
		return err
	}
	cfg, err := buildconfig.Emit(x.set, rec.Variables, rec.Policy)
	if err != nil {
		return err
	}
	arts, err := buildconfig.Write(buildconfig.Layout{
		SourceDir:     x.layout.Source,
		BuildDir:      x.layout.Build,
		GeneratorsDir: x.layout.Generators,
		BuildType:     string(x.opts.Platform.BuildType),
	}, cfg, graph)
	if err != nil {
		return err
	}
	x.res.Dependencies = graph
	x.res.Config = cfg
	x.res.Artifacts = arts
	return nil
}

func (x *run) invocation() buildtool.Invocation {
	inv := buildtool.Invocation{
		SourceDir:   x.layout.Source,
		BuildDir:    x.layout.Build,
		InstallDir:  x.layout.Package,
		BuildType:   string(x.opts.Platform.BuildType),
		Generator:   x.opts.Recipe.Generator,
		Parallelism: x.opts.Parallelism,
	}
	if a := x.res.Artifacts; a != nil {
		inv.CacheFile = a.Cache
		inv.Toolchain = a.Toolchain
	}
	return inv
}

func (x *run) build(ctx context.Context) error {
	if !x.opts.Recipe.Buildable() {
		return errSkipped
	}
	if x.Tool == nil {
		return ferrors.Configuration("no build tool configured")
	}
	inv := x.invocation()
	if err := x.Tool.Configure(ctx, inv); err != nil {
		return err
	}
	return x.Tool.Build(ctx, inv)
}

// install is the only stage that writes the install root. It starts from an
// empty directory so files from an earlier configuration cannot be
// published, and withdraws whatever an earlier run published for it first.
func (x *run) install(ctx context.Context) error {
	if !x.opts.Recipe.Buildable() {
		return errSkipped
	}
	if x.Tool == nil {
		return ferrors.Configuration("no build tool configured")
	}
	if err := x.withdraw(ctx); err != nil {
		return err
	}
	if err := os.RemoveAll(x.layout.Package); err != nil {
		return ferrors.Wrap(ferrors.ErrCodePackaging, err, "clear install root")
	}
	if err := os.MkdirAll(x.layout.Package, 0o755); err != nil {
		return ferrors.Wrap(ferrors.ErrCodePackaging, err, "create install root")
	}
	return x.Tool.Install(ctx, x.invocation())
}

// withdraw removes the package-info describing this install root: the work
// root file, the store entry when it points here, and the cached copy for
// the current configuration.
func (x *run) withdraw(ctx context.Context) error {
	rec := x.opts.Recipe
	if err := os.Remove(filepath.Join(x.layout.Root, pkginfo.FileName)); err != nil && !os.IsNotExist(err) {
		return ferrors.Wrap(ferrors.ErrCodePackaging, err, "withdraw package-info")
	}
	if x.Store != nil {
		prev, err := x.Store.Load(ctx, rec.Name, rec.Version)
		switch {
		case err == nil && prev.Root == x.layout.Package:
			if err := x.Store.Delete(ctx, rec.Name, rec.Version); err != nil {
				return ferrors.Wrap(ferrors.ErrCodePackaging, err, "withdraw %s", rec.Ref())
			}
			x.log.Debug("withdrew previous publication", "run_id", prev.RunID)
		case err != nil && !ferrors.Is(err, ferrors.ErrCodeNotFound):
			return ferrors.Wrap(ferrors.ErrCodePackaging, err, "load previous publication")
		}
	}
	if err := x.Cache.Delete(ctx, x.packageKey()); err != nil {
		x.log.Warn("package cache delete failed", "error", err)
	}
	return nil
}

func (x *run) optionMap() map[string]string {
	options := make(map[string]string, x.set.Len())
	for k, v := range x.set.Map() {
		options[k] = v.String()
	}
	return options
}

func (x *run) packageKey() string {
	rec := x.opts.Recipe
	return x.Keyer.PackageKey(rec.Name, rec.Version, cache.PackageKeyOpts{
		Platform: x.opts.Platform.String(),
		Profile:  x.res.Profile,
		Options:  x.optionMap(),
	})
}

func (x *run) publish(ctx context.Context) error {
	rec := x.opts.Recipe
	if !rec.Buildable() {
		return errSkipped
	}
	comps, err := pkginfo.Publish(x.layout.Package, x.opts.Platform, rec.Components)
	if err != nil {
		return err
	}

	options := x.optionMap()
	info := &pkginfo.Info{
		Name:        rec.Name,
		Version:     rec.Version,
		Profile:     x.res.Profile,
		Platform:    x.opts.Platform,
		Options:     options,
		Components:  comps,
		Root:        x.layout.Package,
		Metadata:    rec.Metadata,
		RunID:       x.res.RunID,
		PublishedAt: time.Now().UTC(),
	}
	for _, r := range x.res.Requirements {
		info.Requires = append(info.Requires, r.Ref())
	}

	// The info file lives beside the install root, which belongs to the
	// package stage.
	if err := pkginfo.WriteFile(x.layout.Root, info); err != nil {
		return err
	}
	if x.Store != nil {
		if err := x.Store.Save(ctx, info); err != nil {
			return ferrors.Wrap(ferrors.ErrCodePackaging, err, "save package-info")
		}
	}

	key := x.packageKey()
	if data, err := json.Marshal(info); err == nil {
		if err := x.Cache.Set(ctx, key, data, TTLPackage); err != nil {
			x.log.Warn("package cache write failed", "error", err)
		} else {
			observability.Cache().OnCacheSet(ctx, "package", len(data))
		}
	}

	x.res.Components = comps
	x.res.Info = info
	x.res.CacheInfo.PackageKey = key
	x.log.Info("published", "components", len(comps), "root", x.layout.Package)
	return nil
}
