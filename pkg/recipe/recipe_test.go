package recipe

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/option"
	"github.com/matzehuels/stackforge/pkg/platform"
	"github.com/matzehuels/stackforge/pkg/requirement"
	"github.com/matzehuels/stackforge/pkg/source"
)

func mustPlatform(t *testing.T, s string) platform.Platform {
	t.Helper()
	p, err := platform.Parse(s)
	if err != nil {
		t.Fatalf("platform.Parse(%q) error = %v", s, err)
	}
	return p
}

func TestLoadLibdatachannel(t *testing.T) {
	r, err := Load(filepath.Join("testdata", "libdatachannel.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if r.Ref() != "libdatachannel/0.20.2" {
		t.Errorf("Ref() = %q, want libdatachannel/0.20.2", r.Ref())
	}
	if !r.Buildable() {
		t.Fatal("Buildable() = false, want true")
	}
	if r.Source.Revision != "v0.20.2" || !r.Source.Submodules || r.Source.SubmoduleDepth != 1 {
		t.Errorf("Source = %+v", *r.Source)
	}
	if len(r.Options.Options) != 9 {
		t.Errorf("len(Options) = %d, want 9", len(r.Options.Options))
	}
	if len(r.Options.Rules) != 2 {
		t.Errorf("len(Rules) = %d, want 2", len(r.Options.Rules))
	}
	if len(r.Requirements) != 4 {
		t.Errorf("len(Requirements) = %d, want 4", len(r.Requirements))
	}
	if len(r.Variables) != 9 || len(r.Policy) != 4 {
		t.Errorf("variables = %d, policy = %d, want 9 and 4", len(r.Variables), len(r.Policy))
	}
	if len(r.Components) != 2 || r.Components[1].CMakeTarget != "LibDataChannel::LibDataChannelStatic" {
		t.Errorf("Components = %+v", r.Components)
	}
	if r.Metadata.License != "Mozilla Public License Version 2.0" || len(r.Metadata.Topics) != 17 {
		t.Errorf("Metadata = %+v", r.Metadata)
	}

	patches, err := source.LoadPatches(r.Dir, r.Patches)
	if err != nil {
		t.Fatalf("LoadPatches() error = %v", err)
	}
	if len(patches) != 1 || !strings.Contains(string(patches[0].Data), "EXCLUDE_FROM_ALL") {
		t.Errorf("patches = %+v", patches)
	}
}

func TestLibdatachannelResolution(t *testing.T) {
	r, err := Load(filepath.Join("testdata", "libdatachannel.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name      string
		platform  string
		overrides map[string]string
		wantFPIC  bool
		wantReqs  []string
	}{
		{"linux defaults", "Linux/x86_64/gcc/Release", nil, true, []string{"openssl"}},
		{"windows prunes fPIC", "Windows/x86_64/msvc/Release", nil, false, []string{"openssl"}},
		{"shared prunes fPIC", "Linux/x86_64/gcc/Release", map[string]string{"shared": "True"}, false, []string{"openssl"}},
		{"gnutls replaces openssl", "Linux/x86_64/gcc/Release", map[string]string{"USE_GNUTLS": "True"}, true, []string{"gnutls"}},
		{"mbedtls and nice", "Macos/armv8/apple-clang/Debug", map[string]string{"USE_MBEDTLS": "True", "USE_NICE": "True"}, true, []string{"mbedtls", "libnice"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := option.Resolve(r.Options, mustPlatform(t, tt.platform), tt.overrides)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got := set.Has("fPIC"); got != tt.wantFPIC {
				t.Errorf("Has(fPIC) = %v, want %v", got, tt.wantFPIC)
			}
			reqs, err := requirement.Declare(r.Requirements, set, "")
			if err != nil {
				t.Fatalf("Declare() error = %v", err)
			}
			if got := strings.Join(reqs.Names(), ","); got != strings.Join(tt.wantReqs, ",") {
				t.Errorf("requirements = %s, want %s", got, strings.Join(tt.wantReqs, ","))
			}
		})
	}
}

func TestLoadSandbox(t *testing.T) {
	r, err := Load(filepath.Join("testdata", "sandbox.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if r.Buildable() {
		t.Error("Buildable() = true, want false")
	}

	profile, err := r.Profile("")
	if err != nil || profile != "minimal" {
		t.Fatalf("Profile(\"\") = %q, %v, want minimal", profile, err)
	}
	if _, err := r.Profile("huge"); !errors.Is(err, errors.ErrCodeConfiguration) {
		t.Errorf("Profile(huge) error = %v, want CONFIGURATION_ERROR", err)
	}

	set, err := option.Resolve(r.Options, platform.Host(), nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	tests := []struct {
		profile string
		want    int
	}{
		{"minimal", 3},
		{"full", 7},
	}
	for _, tt := range tests {
		reqs, err := requirement.Declare(r.Requirements, set, tt.profile)
		if err != nil {
			t.Fatalf("Declare(%s) error = %v", tt.profile, err)
		}
		if len(reqs) != tt.want {
			t.Errorf("Declare(%s) = %v, want %d requirements", tt.profile, reqs.Names(), tt.want)
		}
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "recipe.toml"), `name = "zlib"
version = "1.3.1"
`)
	r, err := Load(dir)
	if err != nil {
		t.Fatalf("Load(dir) error = %v", err)
	}
	if r.Path != filepath.Join(dir, "recipe.toml") {
		t.Errorf("Path = %q", r.Path)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		code    errors.Code
		wantMsg string
	}{
		{
			name:    "malformed toml",
			doc:     `name = `,
			code:    errors.ErrCodeInvalidRecipe,
			wantMsg: "decode recipe",
		},
		{
			name:    "unknown key",
			doc:     "name = \"a\"\nversion = \"1\"\nflavour = \"x\"\n",
			code:    errors.ErrCodeInvalidRecipe,
			wantMsg: "flavour",
		},
		{
			name:    "bad option type",
			doc:     "name = \"a\"\nversion = \"1\"\n[[options]]\nname = \"x\"\ntype = \"int\"\ndefault = 1\n",
			code:    errors.ErrCodeInvalidRecipe,
			wantMsg: "unknown type",
		},
		{
			name:    "prune undeclared option",
			doc:     "name = \"a\"\nversion = \"1\"\n[[prune]]\noption = \"fPIC\"\nsettings = { os = [\"Windows\"] }\n",
			code:    errors.ErrCodeConfiguration,
			wantMsg: "fPIC",
		},
		{
			name: "policy collides with variable",
			doc: "name = \"a\"\nversion = \"1\"\n[[options]]\nname = \"NO_TESTS\"\ndefault = false\n" +
				"[generate]\nvariables = [{ option = \"NO_TESTS\" }]\n[generate.policy]\nNO_TESTS = true\n",
			code:    errors.ErrCodeConfiguration,
			wantMsg: "collides",
		},
		{
			name:    "undeclared default profile",
			doc:     "name = \"a\"\nversion = \"1\"\nprofiles = [\"minimal\"]\ndefault_profile = \"full\"\n",
			code:    errors.ErrCodeConfiguration,
			wantMsg: "default profile",
		},
		{
			name:    "requirement on unknown profile",
			doc:     "name = \"a\"\nversion = \"1\"\n[[requires]]\nref = \"zlib/1.3\"\nprofiles = [\"full\"]\n",
			code:    errors.ErrCodeConfiguration,
			wantMsg: "unknown profile",
		},
		{
			name:    "source without components",
			doc:     "name = \"a\"\nversion = \"1\"\n[source]\nurl = \"https://example.com/a.git\"\nrevision = \"v1\"\n",
			code:    errors.ErrCodeConfiguration,
			wantMsg: "no components",
		},
		{
			name:    "escaping patch path",
			doc:     "name = \"a\"\nversion = \"1\"\n[source]\nurl = \"https://example.com/a.git\"\nrevision = \"v1\"\n[[source.patches]]\npath = \"../x.patch\"\n[[components]]\nid = \"A\"\nlibs = [\"a\"]\n",
			code:    errors.ErrCodeConfiguration,
			wantMsg: "..",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), t.TempDir())
			if err == nil {
				t.Fatal("Parse() error = nil, want error")
			}
			if !errors.Is(err, tt.code) {
				t.Errorf("Parse() code = %v, want %v (%v)", errors.GetCode(err), tt.code, err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Parse() error = %q, want mention of %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestSummary(t *testing.T) {
	r, err := Load(filepath.Join("testdata", "sandbox.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got, want := r.Summary(), "sandbox/0.1.0 [profiles: full, minimal]"; got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
}
