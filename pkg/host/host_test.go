package host

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/stackforge/pkg/buildtool"
	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/lifecycle"
	"github.com/matzehuels/stackforge/pkg/pkginfo"
	"github.com/matzehuels/stackforge/pkg/platform"
	"github.com/matzehuels/stackforge/pkg/recipe"
	"github.com/matzehuels/stackforge/pkg/requirement"
	"github.com/matzehuels/stackforge/pkg/source"
)

var linux = platform.Platform{OS: platform.Linux, Arch: platform.X86_64, Compiler: platform.GCC, BuildType: platform.Release}

const opensslRecipe = `name = "openssl"
version = "3.2.1"

[source]
url = "https://github.com/openssl/openssl.git"
revision = "openssl-3.2.1"
submodules = false

[[options]]
name = "shared"
default = false

[[components]]
id = "Crypto"
cmake_target = "OpenSSL::Crypto"
libs = ["crypto"]

[[components]]
id = "SSL"
cmake_target = "OpenSSL::SSL"
libs = ["ssl"]
requires = ["Crypto"]
`

const upstreamCMakeLists = `add_library(datachannel SHARED ${LIBDATACHANNEL_SOURCES})
add_library(datachannel-static STATIC EXCLUDE_FROM_ALL ${LIBDATACHANNEL_SOURCES})
target_compile_definitions(datachannel-static PUBLIC RTC_STATIC)
install(TARGETS datachannel datachannel-static EXPORT LibDataChannelTargets)
`

type fakeFetcher struct{}

func (fakeFetcher) Fetch(_ context.Context, _ source.Spec, dest string) error {
	return os.WriteFile(filepath.Join(dest, "CMakeLists.txt"), []byte(upstreamCMakeLists), 0o644)
}

// fakeTool installs every library either recipe expects and records the
// order in which install roots were populated.
type fakeTool struct {
	mu        sync.Mutex
	installed []string
}

func (*fakeTool) Name() string                                          { return "fake" }
func (*fakeTool) Configure(context.Context, buildtool.Invocation) error { return nil }
func (*fakeTool) Build(context.Context, buildtool.Invocation) error     { return nil }

func (f *fakeTool) Install(_ context.Context, inv buildtool.Invocation) error {
	for _, rel := range []string{"libcrypto.a", "libssl.a", "libdatachannel.so", "libdatachannel-static.a"} {
		p := filepath.Join(inv.InstallDir, "lib", rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.installed = append(f.installed, filepath.Base(filepath.Dir(inv.InstallDir)))
	f.mu.Unlock()
	return nil
}

func loadRecipes(t *testing.T) (openssl, ldc *recipe.Recipe) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "recipe.toml"), []byte(opensslRecipe), 0o644))
	openssl, err := recipe.Load(dir)
	require.NoError(t, err)
	ldc, err = recipe.Load(filepath.Join("..", "recipe", "testdata", "libdatachannel.toml"))
	require.NoError(t, err)
	return openssl, ldc
}

func newRunner(t *testing.T) (*lifecycle.Runner, *pkginfo.FileStore, *fakeTool) {
	t.Helper()
	store, err := pkginfo.NewFileStore(t.TempDir())
	require.NoError(t, err)
	tool := &fakeTool{}
	r := lifecycle.NewRunner(nil, nil, nil)
	r.Fetcher = fakeFetcher{}
	r.Tool = tool
	r.Store = store
	r.Resolver = NewLocalResolver(store)
	return r, store, tool
}

func TestRunAllDependencyOrder(t *testing.T) {
	openssl, ldc := loadRecipes(t)
	runner, store, tool := newRunner(t)
	work := t.TempDir()

	o := NewOrchestrator(runner, nil)
	// Listed dependent-first: the orchestrator must still build openssl first.
	results, err := o.RunAll(context.Background(), []Job{
		{Options: lifecycle.Options{Recipe: ldc, Platform: linux, WorkDir: filepath.Join(work, "libdatachannel")}},
		{Options: lifecycle.Options{Recipe: openssl, Platform: linux, WorkDir: filepath.Join(work, "openssl")}},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "libdatachannel", results[0].Name)
	assert.True(t, results[0].Result.Published())
	assert.Equal(t, []string{"openssl", "libdatachannel"}, tool.installed)

	dep := results[0].Result.Dependencies["openssl"]
	assert.Equal(t, filepath.Join(work, "openssl", lifecycle.PackageDirName), dep.Root)
	assert.Equal(t, []string{"OpenSSL::Crypto", "OpenSSL::SSL"}, dep.Components)

	all, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRunAllRejectsInvalidJob(t *testing.T) {
	openssl, ldc := loadRecipes(t)
	runner, _, tool := newRunner(t)
	work := t.TempDir()

	results, err := NewOrchestrator(runner, nil).RunAll(context.Background(), []Job{
		{Options: lifecycle.Options{Recipe: openssl, Platform: linux, WorkDir: filepath.Join(work, "openssl"), Overrides: map[string]string{"shared": "sometimes"}}},
		{Options: lifecycle.Options{Recipe: ldc, Platform: linux, WorkDir: filepath.Join(work, "libdatachannel")}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConfiguration))
	assert.Nil(t, results)
	assert.Empty(t, tool.installed)
}

func TestRunAllRejectsOverlap(t *testing.T) {
	openssl, ldc := loadRecipes(t)
	runner, _, _ := newRunner(t)
	work := t.TempDir()

	tests := []struct {
		name string
		a, b string
	}{
		{"same directory", work, work},
		{"nested", work, filepath.Join(work, "nested")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOrchestrator(runner, nil).RunAll(context.Background(), []Job{
				{Options: lifecycle.Options{Recipe: openssl, Platform: linux, WorkDir: tt.a}},
				{Options: lifecycle.Options{Recipe: ldc, Platform: linux, WorkDir: tt.b}},
			})
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeConfiguration))
			assert.Contains(t, err.Error(), "overlap")
		})
	}
}

func TestRunAllRejectsDuplicateRecipe(t *testing.T) {
	openssl, _ := loadRecipes(t)
	runner, _, _ := newRunner(t)
	work := t.TempDir()

	_, err := NewOrchestrator(runner, nil).RunAll(context.Background(), []Job{
		{Options: lifecycle.Options{Recipe: openssl, WorkDir: filepath.Join(work, "a")}},
		{Options: lifecycle.Options{Recipe: openssl, WorkDir: filepath.Join(work, "b")}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduled twice")
}

func TestRunAllReportsStageFailure(t *testing.T) {
	_, ldc := loadRecipes(t)
	runner, _, _ := newRunner(t)

	results, err := NewOrchestrator(runner, nil).RunAll(context.Background(), []Job{
		{Options: lifecycle.Options{Recipe: ldc, Platform: linux, WorkDir: t.TempDir()}},
	})
	require.Error(t, err)
	require.Len(t, results, 1)

	var serr *lifecycle.StageError
	require.ErrorAs(t, results[0].Err, &serr)
	assert.Equal(t, lifecycle.StageGenerate, serr.Stage)
	assert.Contains(t, err.Error(), "openssl/3.2.1")
}

func TestLocalResolver(t *testing.T) {
	store, err := pkginfo.NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &pkginfo.Info{
		Name: "openssl", Version: "3.2.1", Platform: linux, Root: "/opt/openssl",
		Components:  []pkginfo.Component{{ID: "SSL", CMakeTarget: "OpenSSL::SSL", Libs: []string{"ssl"}}},
		PublishedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.Save(ctx, &pkginfo.Info{
		Name: "cmake", Version: "3.28.1", Platform: platform.Platform{OS: platform.Macos, Arch: platform.ARMv8}, Root: "/opt/cmake",
		Components: []pkginfo.Component{{ID: "cmake", Libs: []string{"cmake"}}},
	}))

	r := NewLocalResolver(store)
	reqs := requirement.Requirements{
		{Name: "openssl", Version: "3.2.1"},
		{Name: "cmake", Version: "3.28.1", Flags: []requirement.Flag{requirement.FlagBuild}},
		{Name: "zlib", Version: "1.3.1"},
	}
	g, err := r.Resolve(ctx, reqs, linux)
	require.NoError(t, err)
	assert.Equal(t, []string{"cmake", "openssl"}, g.Names())
	assert.True(t, g["cmake"].Build)
	assert.Equal(t, []string{"ssl"}, g["openssl"].Libs)
	assert.Error(t, g.Check(reqs), "zlib is not published")

	windows := platform.Platform{OS: platform.Windows, Arch: platform.X86_64}
	_, err = r.Resolve(ctx, reqs[:1], windows)
	assert.True(t, errors.Is(err, errors.ErrCodeConfiguration))
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"/work/a", "/work/a", true},
		{"/work", "/work/a", true},
		{"/work/a", "/work", true},
		{"/work/a", "/work/b", false},
		{"/work/a", "/work/ab", false},
		{"/work/..a", "/work/..a/b", true},
	}
	for _, tt := range tests {
		if got := overlaps(tt.a, tt.b); got != tt.want {
			t.Errorf("overlaps(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
