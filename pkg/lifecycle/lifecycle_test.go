package lifecycle

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/stackforge/pkg/buildconfig"
	"github.com/matzehuels/stackforge/pkg/buildtool"
	"github.com/matzehuels/stackforge/pkg/cache"
	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/pkginfo"
	"github.com/matzehuels/stackforge/pkg/platform"
	"github.com/matzehuels/stackforge/pkg/recipe"
	"github.com/matzehuels/stackforge/pkg/source"
)

var (
	linux   = platform.Platform{OS: platform.Linux, Arch: platform.X86_64, Compiler: platform.GCC, BuildType: platform.Release}
	windows = platform.Platform{OS: platform.Windows, Arch: platform.X86_64, Compiler: platform.MSVC, BuildType: platform.Release}
)

const upstreamCMakeLists = `add_library(datachannel SHARED ${LIBDATACHANNEL_SOURCES})
add_library(datachannel-static STATIC EXCLUDE_FROM_ALL ${LIBDATACHANNEL_SOURCES})
target_compile_definitions(datachannel-static PUBLIC RTC_STATIC)
install(TARGETS datachannel datachannel-static EXPORT LibDataChannelTargets)
`

// fakeFetcher writes a minimal upstream tree and counts fetches.
type fakeFetcher struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, _ source.Spec, dest string) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err := os.WriteFile(filepath.Join(dest, "CMakeLists.txt"), []byte(upstreamCMakeLists), 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dest, "README.md"), []byte("libdatachannel\n"), 0o644)
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeTool records invocations and installs a fixed set of files.
type fakeTool struct {
	calls     []string
	last      buildtool.Invocation
	failBuild int
	install   []string
}

func (f *fakeTool) Name() string { return "fake" }

func (f *fakeTool) Configure(_ context.Context, inv buildtool.Invocation) error {
	f.calls = append(f.calls, "configure")
	f.last = inv
	return nil
}

func (f *fakeTool) Build(_ context.Context, inv buildtool.Invocation) error {
	f.calls = append(f.calls, "build")
	if f.failBuild > 0 {
		f.failBuild--
		return errors.Wrap(errors.ErrCodeBuildTool,
			&buildtool.Error{Tool: "fake", Step: "build", ExitCode: 2, Output: "rtc.cpp:12: error: boom"},
			"build %s", inv.BuildDir)
	}
	return nil
}

func (f *fakeTool) Install(_ context.Context, inv buildtool.Invocation) error {
	f.calls = append(f.calls, "install")
	for _, rel := range f.install {
		p := filepath.Join(inv.InstallDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte("lib"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

var linuxInstall = []string{"lib/libdatachannel.so", "lib/libdatachannel-static.a", "include/rtc/rtc.hpp"}

var resolver = StaticResolver{
	"openssl": {Name: "openssl", Version: "3.2.1", Root: "/opt/deps/openssl"},
	"gnutls":  {Name: "gnutls", Version: "3.8.2", Root: "/opt/deps/gnutls"},
	"mbedtls": {Name: "mbedtls", Version: "3.5.0", Root: "/opt/deps/mbedtls"},
	"boost":   {Name: "boost", Version: "1.84.0", Root: "/opt/deps/boost"},
	"glm":     {Name: "glm", Version: "0.9.9.8", Root: "/opt/deps/glm"},
	"sdl":     {Name: "sdl", Version: "2.28.5", Root: "/opt/deps/sdl"},
}

type fixture struct {
	runner  *Runner
	fetcher *fakeFetcher
	tool    *fakeTool
	store   *pkginfo.FileStore
	recipe  *recipe.Recipe
	work    string
}

func newFixture(t *testing.T, recipeFile string) *fixture {
	t.Helper()
	rec, err := recipe.Load(filepath.Join("..", "recipe", "testdata", recipeFile))
	require.NoError(t, err)

	c, err := cache.NewFileCache(t.TempDir())
	require.NoError(t, err)
	store, err := pkginfo.NewFileStore(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		fetcher: &fakeFetcher{},
		tool:    &fakeTool{install: linuxInstall},
		store:   store,
		recipe:  rec,
		work:    t.TempDir(),
	}
	f.runner = NewRunner(c, nil, nil)
	f.runner.Fetcher = f.fetcher
	f.runner.Tool = f.tool
	f.runner.Resolver = resolver
	f.runner.Store = store
	return f
}

func (f *fixture) options(p platform.Platform, overrides map[string]string) Options {
	return Options{Recipe: f.recipe, Platform: p, Overrides: overrides, WorkDir: f.work, Parallelism: 2}
}

func TestRunPublishes(t *testing.T) {
	f := newFixture(t, "libdatachannel.toml")

	res, err := f.runner.Run(context.Background(), f.options(linux, nil))
	require.NoError(t, err)

	assert.Equal(t, StatePublished, res.State)
	assert.Equal(t, Stages(), res.Executed)
	assert.Empty(t, res.Skipped)
	assert.NotEmpty(t, res.RunID)
	assert.False(t, res.CacheInfo.SourceHit)
	assert.NotEmpty(t, res.CacheInfo.PackageKey)
	assert.Equal(t, []string{"configure", "build", "install"}, f.tool.calls)
	assert.Equal(t, []string{"openssl"}, res.Requirements.Names())

	// The patch removed EXCLUDE_FROM_ALL and the tree digest reflects it.
	data, err := os.ReadFile(filepath.Join(res.Layout.Source, "CMakeLists.txt"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "EXCLUDE_FROM_ALL")
	require.NotNil(t, res.Source)
	assert.NotEqual(t, res.Source.UpstreamDigest, res.Source.Digest)

	for key, want := range map[string]string{
		"BUILD_SHARED_LIBS":               "OFF",
		"CMAKE_POSITION_INDEPENDENT_CODE": "ON",
		"USE_GNUTLS":                      "OFF",
		"NO_EXAMPLES":                     "ON",
		"NO_TESTS":                        "ON",
		"WARNINGS_AS_ERRORS":              "ON",
		"PREFER_SYSTEM_LIB":               "OFF",
	} {
		assert.Equal(t, want, res.Config[key].Raw, key)
	}

	assert.Equal(t, filepath.Join(f.work, "build", "Release"), f.tool.last.BuildDir)
	assert.Equal(t, filepath.Join(f.work, "build", "Release", "generators", buildconfig.CacheFile), f.tool.last.CacheFile)
	assert.Equal(t, 2, f.tool.last.Parallelism)

	require.Len(t, res.Components, 2)
	assert.Equal(t, []string{"lib/libdatachannel.so"}, res.Components[0].Files)
	assert.Equal(t, []string{"lib/libdatachannel-static.a"}, res.Components[1].Files)

	info, err := pkginfo.ReadFile(f.work)
	require.NoError(t, err)
	assert.Equal(t, res.RunID, info.RunID)
	assert.Equal(t, "True", info.Options["fPIC"])
	assert.Equal(t, []string{"openssl/3.2.1"}, info.Requires)

	stored, err := f.store.Load(context.Background(), "libdatachannel", "0.20.2")
	require.NoError(t, err)
	assert.Equal(t, res.RunID, stored.RunID)
}

// A recipe with shared=false and an alternate-backend feature enabled: the
// platform drops fPIC where it does not apply and the feature swaps the
// requirement.
func TestRunFeatureSwitch(t *testing.T) {
	overrides := map[string]string{"shared": "False", "USE_GNUTLS": "True"}

	tests := []struct {
		name     string
		platform platform.Platform
		install  []string
		wantFPIC bool
	}{
		{"linux", linux, linuxInstall, true},
		{"windows", windows, []string{"lib/datachannel.lib", "bin/datachannel.dll", "lib/datachannel-static.lib"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "libdatachannel.toml")
			f.tool.install = tt.install

			res, err := f.runner.Run(context.Background(), f.options(tt.platform, overrides))
			require.NoError(t, err)

			assert.Equal(t, tt.wantFPIC, res.Options.Has("fPIC"))
			_, emitted := res.Config["CMAKE_POSITION_INDEPENDENT_CODE"]
			assert.Equal(t, tt.wantFPIC, emitted)
			assert.Equal(t, "ON", res.Config["USE_GNUTLS"].Raw)
			assert.Equal(t, "OFF", res.Config["BUILD_SHARED_LIBS"].Raw)
			assert.Equal(t, []string{"gnutls"}, res.Requirements.Names())
			assert.Contains(t, res.Dependencies, "gnutls")
			assert.NotContains(t, res.Dependencies, "openssl")
			assert.Empty(t, res.Ignored)
		})
	}
}

func TestRunResumesAfterBuildFailure(t *testing.T) {
	f := newFixture(t, "libdatachannel.toml")
	f.tool.failBuild = 1
	ctx := context.Background()

	res, err := f.runner.Run(ctx, f.options(linux, nil))
	require.Error(t, err)

	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StageBuild, serr.Stage)
	assert.Equal(t, errors.ErrCodeBuildTool, serr.Code())
	out, ok := buildtool.Output(err)
	assert.True(t, ok)
	assert.Equal(t, "rtc.cpp:12: error: boom", out)

	require.NotNil(t, res.Failure)
	assert.Equal(t, StageBuild, res.Failure.Stage)
	assert.Equal(t, errors.ErrCodeBuildTool, res.Failure.Code)
	assert.Equal(t, "rtc.cpp:12: error: boom", res.Failure.ToolOutput)
	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tool_output":"rtc.cpp:12: error: boom"`)

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StageBuild, res.FailedStage)
	assert.Equal(t, []Stage{StageConfigOptions, StageConfigure, StageLayout, StageRequirements, StageSource, StageGenerate}, res.Executed)
	assert.Equal(t, 1, f.fetcher.Calls())
	_, statErr := os.Stat(filepath.Join(f.work, pkginfo.FileName))
	assert.True(t, os.IsNotExist(statErr), "failed run must not publish")

	res, err = f.runner.Run(ctx, f.options(linux, nil))
	require.NoError(t, err)
	assert.True(t, res.CacheInfo.SourceHit)
	assert.Equal(t, 1, f.fetcher.Calls(), "source must not be fetched again")
	assert.Equal(t, StatePublished, res.State)
	assert.Equal(t, []string{"configure", "build", "configure", "build", "install"}, f.tool.calls)
	assert.Nil(t, res.Failure)
}

func TestRunMissingComponent(t *testing.T) {
	f := newFixture(t, "libdatachannel.toml")
	f.tool.install = []string{"lib/libdatachannel.so"}

	res, err := f.runner.Run(context.Background(), f.options(linux, nil))
	require.Error(t, err)

	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StagePackageInfo, serr.Stage)
	assert.True(t, errors.Is(err, errors.ErrCodePackaging))
	assert.Contains(t, err.Error(), "LibDataChannelStatic")
	assert.Nil(t, res.Components)
	assert.Nil(t, res.Info)

	_, err = f.store.Load(context.Background(), "libdatachannel", "0.20.2")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestRunFailedRerunWithdrawsPublication(t *testing.T) {
	f := newFixture(t, "libdatachannel.toml")
	ctx := context.Background()

	first, err := f.runner.Run(ctx, f.options(linux, nil))
	require.NoError(t, err)
	_, ok, err := f.runner.Cache.Get(ctx, first.CacheInfo.PackageKey)
	require.NoError(t, err)
	require.True(t, ok)

	f.tool.install = []string{"lib/libdatachannel.so"}
	res, err := f.runner.Run(ctx, f.options(linux, nil))
	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StagePackageInfo, serr.Stage)
	assert.Equal(t, StateFailed, res.State)

	_, err = pkginfo.ReadFile(f.work)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound), "stale package-info left in the work root")
	_, err = f.store.Load(ctx, "libdatachannel", "0.20.2")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound), "stale store entry left published")
	_, ok, err = f.runner.Cache.Get(ctx, first.CacheInfo.PackageKey)
	require.NoError(t, err)
	assert.False(t, ok, "stale package cache entry")
}

func TestRunKeepsPublicationFromOtherRoot(t *testing.T) {
	f := newFixture(t, "libdatachannel.toml")
	ctx := context.Background()
	other := &pkginfo.Info{Name: "libdatachannel", Version: "0.20.2", Root: "/srv/host-b/package", RunID: "other"}
	require.NoError(t, f.store.Save(ctx, other))

	f.tool.install = []string{"lib/libdatachannel.so"}
	_, err := f.runner.Run(ctx, f.options(linux, nil))
	require.Error(t, err)

	got, err := f.store.Load(ctx, "libdatachannel", "0.20.2")
	require.NoError(t, err)
	assert.Equal(t, "other", got.RunID)
}

func TestRunInstallClearsRoot(t *testing.T) {
	f := newFixture(t, "libdatachannel.toml")
	stale := filepath.Join(f.work, PackageDirName, "lib", "libstale.so")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, nil, 0o644))

	_, err := f.runner.Run(context.Background(), f.options(linux, nil))
	require.NoError(t, err)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestRunFailures(t *testing.T) {
	tests := []struct {
		name      string
		opts      func(f *fixture) Options
		resolver  Resolver
		wantStage Stage
		wantCode  errors.Code
		wantMsg   string
		fetches   int
	}{
		{
			name: "unknown option",
			opts: func(f *fixture) Options {
				return f.options(linux, map[string]string{"with_sctp": "True"})
			},
			wantStage: StageConfigure,
			wantCode:  errors.ErrCodeConfiguration,
			wantMsg:   "with_sctp",
		},
		{
			name: "value outside domain",
			opts: func(f *fixture) Options {
				return f.options(linux, map[string]string{"shared": "maybe"})
			},
			wantStage: StageConfigure,
			wantCode:  errors.ErrCodeConfiguration,
		},
		{
			name: "unknown profile",
			opts: func(f *fixture) Options {
				o := f.options(linux, nil)
				o.Profile = "full"
				return o
			},
			wantStage: StageRequirements,
			wantCode:  errors.ErrCodeConfiguration,
			wantMsg:   "full",
		},
		{
			name:      "unresolved requirement",
			opts:      func(f *fixture) Options { return f.options(linux, nil) },
			resolver:  StaticResolver{},
			wantStage: StageGenerate,
			wantCode:  errors.ErrCodeConfiguration,
			wantMsg:   "openssl/3.2.1",
			fetches:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "libdatachannel.toml")
			if tt.resolver != nil {
				f.runner.Resolver = tt.resolver
			}
			res, err := f.runner.Run(context.Background(), tt.opts(f))
			require.Error(t, err)

			var serr *StageError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, tt.wantStage, serr.Stage)
			assert.Equal(t, tt.wantCode, serr.Code())
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
			assert.Equal(t, StateFailed, res.State)
			assert.Equal(t, tt.fetches, f.fetcher.Calls())
			assert.Empty(t, f.tool.calls)
		})
	}
}

func TestRunCanceled(t *testing.T) {
	f := newFixture(t, "libdatachannel.toml")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.runner.Run(ctx, f.options(linux, nil))
	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StageConfigOptions, serr.Stage)
	assert.Equal(t, errors.ErrCodeCanceled, serr.Code())
}

func TestRunConsumerRecipe(t *testing.T) {
	f := newFixture(t, "sandbox.toml")
	o := f.options(linux, nil)

	res, err := f.runner.Run(context.Background(), o)
	require.NoError(t, err)

	assert.Equal(t, "minimal", res.Profile)
	assert.Equal(t, []string{"boost", "glm", "sdl"}, res.Requirements.Names())
	assert.Equal(t, []Stage{StageSource, StageBuild, StagePackage, StagePackageInfo}, res.Skipped)
	assert.Equal(t, 0, f.fetcher.Calls())
	assert.Empty(t, f.tool.calls)

	require.NotNil(t, res.Artifacts)
	deps, err := os.ReadFile(res.Artifacts.Deps)
	require.NoError(t, err)
	for _, name := range []string{"boost", "glm", "sdl"} {
		assert.Contains(t, string(deps), "/opt/deps/"+name)
	}

	o.Profile = "full"
	_, err = f.runner.Run(context.Background(), o)
	var serr *StageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StageGenerate, serr.Stage)
	assert.True(t, strings.Contains(err.Error(), "ffmpeg"), err.Error())
}

func TestProgressEvents(t *testing.T) {
	f := newFixture(t, "libdatachannel.toml")
	var events []ProgressEvent
	o := f.options(linux, nil)
	o.Progress = func(e ProgressEvent) { events = append(events, e) }

	_, err := f.runner.Run(context.Background(), o)
	require.NoError(t, err)

	require.Len(t, events, 2*len(Stages()))
	last := events[len(events)-1]
	assert.Equal(t, StagePackageInfo, last.Stage)
	assert.Equal(t, StatePublished, last.State)
	assert.True(t, last.Done)
}

func TestOptionsValidateAndSetDefaults(t *testing.T) {
	var o Options
	assert.Error(t, o.ValidateAndSetDefaults())

	o = Options{Recipe: &recipe.Recipe{Name: "zlib", Version: "1.3.1"}, WorkDir: "work"}
	require.NoError(t, o.ValidateAndSetDefaults())
	assert.True(t, filepath.IsAbs(o.WorkDir))
	assert.Equal(t, platform.Release, o.Platform.BuildType)
	assert.Positive(t, o.Parallelism)
	assert.NotNil(t, o.Logger)

	l := o.Layout()
	assert.Equal(t, filepath.Join(o.WorkDir, "src"), l.Source)
	assert.Equal(t, filepath.Join(o.WorkDir, "build", "Release", "generators"), l.Generators)
	assert.Equal(t, filepath.Join(o.WorkDir, "package"), l.Package)
}
