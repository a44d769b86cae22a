package pkginfo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/platform"
)

var (
	linux   = platform.Platform{OS: platform.Linux, Arch: platform.X86_64, Compiler: platform.GCC, BuildType: platform.Release}
	windows = platform.Platform{OS: platform.Windows, Arch: platform.X86_64, Compiler: platform.MSVC, BuildType: platform.Release}
	macos   = platform.Platform{OS: platform.Macos, Arch: platform.ARMv8, Compiler: platform.AppleClang, BuildType: platform.Release}
)

var libdatachannel = []Decl{
	{ID: "LibDataChannel", CMakeTarget: "LibDataChannel::LibDataChannel", PkgConfigName: "LibDataChannel", Libs: []string{"datachannel"}},
	{ID: "LibDataChannelStatic", CMakeTarget: "LibDataChannel::LibDataChannelStatic", PkgConfigName: "LibDataChannelStatic", Libs: []string{"datachannel-static"}},
}

func touch(t *testing.T, root string, rel ...string) {
	t.Helper()
	for _, r := range rel {
		p := filepath.Join(root, filepath.FromSlash(r))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, nil, 0o644))
	}
}

func TestPublish(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "lib/libdatachannel.so", "lib/libdatachannel.so.0.20.2", "lib/libdatachannel-static.a", "include/rtc/rtc.hpp")

	comps, err := Publish(root, linux, libdatachannel)
	require.NoError(t, err)
	require.Len(t, comps, 2)

	assert.Equal(t, "LibDataChannel", comps[0].Name)
	assert.Equal(t, "LibDataChannel::LibDataChannel", comps[0].CMakeTarget)
	assert.Equal(t, []string{"lib/libdatachannel.so", "lib/libdatachannel.so.0.20.2"}, comps[0].Files)
	assert.Equal(t, []string{"datachannel-static"}, comps[1].Libs)
	assert.Equal(t, []string{"lib/libdatachannel-static.a"}, comps[1].Files)
}

func TestPublishMissingComponent(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "lib/libdatachannel.so")

	comps, err := Publish(root, linux, libdatachannel)
	assert.Nil(t, comps, "no partial component list should be returned")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodePackaging))
	assert.Contains(t, err.Error(), "LibDataChannelStatic")
	assert.NotContains(t, err.Error(), "component LibDataChannel has")
}

func TestPublishMissingLibrary(t *testing.T) {
	openssl := []Decl{
		{ID: "OpenSSL", Libs: []string{"ssl", "crypto"}},
		{ID: "Crypto", Libs: []string{"crypto"}},
	}
	root := t.TempDir()
	touch(t, root, "lib/libcrypto.so")

	comps, err := Publish(root, linux, openssl)
	assert.Nil(t, comps)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodePackaging))
	assert.Contains(t, err.Error(), "OpenSSL/ssl")
	assert.NotContains(t, err.Error(), "OpenSSL/crypto")
	assert.NotContains(t, err.Error(), "Crypto/crypto")

	touch(t, root, "lib/libssl.so")
	comps, err = Publish(root, linux, openssl)
	require.NoError(t, err)
	require.Len(t, comps, 2)
	assert.Equal(t, []string{"ssl", "crypto"}, comps[0].Libs)
	assert.Equal(t, []string{"lib/libssl.so", "lib/libcrypto.so"}, comps[0].Files)
}

func TestPublishPlatformNaming(t *testing.T) {
	tests := []struct {
		name  string
		p     platform.Platform
		files []string
	}{
		{"windows import lib", windows, []string{"lib/datachannel.lib", "bin/datachannel.dll", "lib/datachannel-static.lib"}},
		{"macos dylib", macos, []string{"lib/libdatachannel.0.20.dylib", "lib/libdatachannel-static.a"}},
		{"linux lib64", linux, []string{"lib64/libdatachannel.so", "lib64/libdatachannel-static.a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			touch(t, root, tt.files...)
			comps, err := Publish(root, tt.p, libdatachannel)
			require.NoError(t, err)
			assert.Len(t, comps, 2)
		})
	}

	// Linux naming does not match Windows artifacts.
	root := t.TempDir()
	touch(t, root, "lib/datachannel.lib", "lib/datachannel-static.lib")
	_, err := Publish(root, linux, libdatachannel)
	assert.True(t, errors.Is(err, errors.ErrCodePackaging))
}

func TestPublishErrors(t *testing.T) {
	_, err := Publish(t.TempDir(), linux, nil)
	assert.True(t, errors.Is(err, errors.ErrCodePackaging), "no components")

	_, err = Publish(filepath.Join(t.TempDir(), "missing"), linux, libdatachannel)
	assert.True(t, errors.Is(err, errors.ErrCodePackaging), "missing install root")
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(libdatachannel))

	bad := []Decl{{ID: ""}, {ID: "A", Libs: []string{"a"}}, {ID: "A", Libs: []string{"a"}}, {ID: "B"}}
	err := Validate(bad)
	assert.True(t, errors.Is(err, errors.ErrCodeConfiguration))
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	info := &Info{
		Name:        "libdatachannel",
		Version:     "0.20.2",
		Platform:    linux,
		Options:     map[string]string{"shared": "False", "fPIC": "True"},
		Requires:    []string{"openssl/3.2.1"},
		Components:  []Component{{ID: "LibDataChannel", Name: "LibDataChannel", Libs: []string{"datachannel"}, Files: []string{"lib/libdatachannel.a"}}},
		Root:        "/w/package",
		Metadata:    Metadata{License: "MPL-2.0", Topics: []string{"webrtc"}},
		PublishedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.Save(ctx, info))
	require.NoError(t, s.Save(ctx, &Info{Name: "openssl", Version: "3.2.1"}))

	got, err := s.Load(ctx, "libdatachannel", "0.20.2")
	require.NoError(t, err)
	assert.Equal(t, info, got)

	_, err = s.Load(ctx, "libdatachannel", "0.19.0")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))

	_, err = s.Load(ctx, "../etc", "1")
	assert.Error(t, err)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "libdatachannel/0.20.2", all[0].Ref())
	assert.Equal(t, "openssl/3.2.1", all[1].Ref())

	require.NoError(t, s.Delete(ctx, "openssl", "3.2.1"))
	require.NoError(t, s.Delete(ctx, "openssl", "3.2.1"))
	_, err = s.Load(ctx, "openssl", "3.2.1")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
	all, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Error(t, s.Delete(ctx, "../etc", "1"))
}

func TestWriteReadFile(t *testing.T) {
	dir := t.TempDir()
	info := &Info{Name: "glm", Version: "0.9.9.8", Components: []Component{{ID: "glm", Name: "glm", Libs: []string{"glm"}, Files: []string{"lib/libglm.a"}}}}
	require.NoError(t, WriteFile(dir, info))

	got, err := ReadFile(dir)
	require.NoError(t, err)
	c, ok := got.Component("glm")
	assert.True(t, ok)
	assert.Equal(t, []string{"lib/libglm.a"}, c.Files)
}
