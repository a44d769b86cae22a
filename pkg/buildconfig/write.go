package buildconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/matzehuels/stackforge/pkg/errors"
)

// File names written by Write into the generators directory.
const (
	CacheFile     = "stackforge-cache.cmake"
	ToolchainFile = "stackforge-toolchain.cmake"
	DepsFile      = "stackforge-deps.cmake"
	ManifestFile  = "stackforge-deps.json"
	PresetsFile   = "CMakePresets.json"
)

// Artifacts lists the files produced by Write.
type Artifacts struct {
	Dir       string
	Cache     string
	Toolchain string
	Deps      string
	Manifest  string
	Presets   string
}

// Layout tells Write where the build will run.
type Layout struct {
	SourceDir     string
	BuildDir      string
	GeneratorsDir string
	BuildType     string
}

// Manifest is the dependency-location manifest in JSON form.
type Manifest struct {
	Dependencies []Dependency `json:"dependencies"`
	PrefixPath   []string     `json:"prefix_path"`
}

// Write renders the configuration and dependency manifest into
// l.GeneratorsDir. It refuses to write anywhere inside l.SourceDir: the
// acquired source tree is never modified after patching.
func Write(l Layout, cfg Config, graph Graph) (*Artifacts, error) {
	if l.GeneratorsDir == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "generators directory not set")
	}
	if inside(l.SourceDir, l.GeneratorsDir) {
		return nil, errors.Configuration("generators directory %s is inside the source tree %s", l.GeneratorsDir, l.SourceDir)
	}
	if err := os.MkdirAll(l.GeneratorsDir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "create %s", l.GeneratorsDir)
	}

	a := &Artifacts{
		Dir:       l.GeneratorsDir,
		Cache:     filepath.Join(l.GeneratorsDir, CacheFile),
		Toolchain: filepath.Join(l.GeneratorsDir, ToolchainFile),
		Deps:      filepath.Join(l.GeneratorsDir, DepsFile),
		Manifest:  filepath.Join(l.GeneratorsDir, ManifestFile),
		Presets:   filepath.Join(l.GeneratorsDir, PresetsFile),
	}

	deps := make([]Dependency, 0, len(graph))
	prefix := make([]string, 0, len(graph))
	for _, n := range graph.Names() {
		d := graph[n]
		deps = append(deps, d)
		if !d.Build {
			prefix = append(prefix, filepath.ToSlash(d.Root))
		}
	}
	data := struct {
		Config    Config
		Deps      []Dependency
		Prefix    []string
		BuildType string
		DepsFile  string
	}{cfg, deps, prefix, l.BuildType, filepath.ToSlash(a.Deps)}

	files := []struct {
		path string
		tmpl *template.Template
	}{
		{a.Cache, cacheTmpl},
		{a.Deps, depsTmpl},
		{a.Toolchain, toolchainTmpl},
	}
	for _, f := range files {
		var buf bytes.Buffer
		if err := f.tmpl.Execute(&buf, data); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "render %s", filepath.Base(f.path))
		}
		if err := os.WriteFile(f.path, buf.Bytes(), 0o644); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "write %s", f.path)
		}
	}

	if err := writeJSON(a.Manifest, Manifest{Dependencies: deps, PrefixPath: prefix}); err != nil {
		return nil, err
	}
	if err := writeJSON(a.Presets, presets(l, cfg, a)); err != nil {
		return nil, err
	}
	return a, nil
}

func presets(l Layout, cfg Config, a *Artifacts) map[string]any {
	vars := make(map[string]any, len(cfg))
	for k, v := range cfg {
		vars[k] = map[string]string{"type": string(v.Kind), "value": v.Raw}
	}
	name := "stackforge-" + strings.ToLower(l.BuildType)
	return map[string]any{
		"version": 3,
		"configurePresets": []map[string]any{{
			"name":           name,
			"displayName":    "stackforge " + l.BuildType,
			"binaryDir":      filepath.ToSlash(l.BuildDir),
			"toolchainFile":  filepath.ToSlash(a.Toolchain),
			"cacheVariables": vars,
		}},
		"buildPresets": []map[string]any{{
			"name":            name,
			"configurePreset": name,
			"configuration":   l.BuildType,
		}},
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode %s", filepath.Base(path))
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "write %s", path)
	}
	return nil
}

// inside reports whether path is root or lies beneath it.
func inside(root, path string) bool {
	if root == "" {
		return false
	}
	r, err1 := filepath.Abs(root)
	p, err2 := filepath.Abs(path)
	if err1 != nil || err2 != nil {
		return false
	}
	rel, err := filepath.Rel(r, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// cmakeQuote escapes a value for a double-quoted CMake argument.
func cmakeQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`)
	return `"` + r.Replace(s) + `"`
}

func cmakeIdent(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, s)
}

var funcs = template.FuncMap{
	"quote": cmakeQuote,
	"ident": cmakeIdent,
	"path":  func(s string) string { return cmakeQuote(filepath.ToSlash(s)) },
}

var cacheTmpl = template.Must(template.New("cache").Funcs(funcs).Parse(
	`# Generated by stackforge. Do not edit.
{{range $k := .Config.Keys}}{{with index $.Config $k}}set({{$k}} {{quote .Raw}} CACHE {{.Kind}} "" FORCE)
{{end}}{{end}}`))

var depsTmpl = template.Must(template.New("deps").Funcs(funcs).Parse(
	`# Generated by stackforge. Do not edit.
{{range .Deps}}set({{ident .Name}}_ROOT {{path .Root}})
set({{ident .Name}}_VERSION {{quote .Version}})
{{end}}{{range .Prefix}}list(PREPEND CMAKE_PREFIX_PATH {{path .}})
{{end}}`))

var toolchainTmpl = template.Must(template.New("toolchain").Funcs(funcs).Parse(
	`# Generated by stackforge. Do not edit.
{{if .BuildType}}set(CMAKE_BUILD_TYPE {{quote .BuildType}} CACHE STRING "" FORCE)
{{end}}set(CMAKE_FIND_PACKAGE_PREFER_CONFIG ON)
include({{quote .DepsFile}})
`))

// Describe renders the configuration as human-readable lines.
func Describe(cfg Config) []string {
	lines := make([]string, 0, len(cfg))
	for _, k := range cfg.Keys() {
		lines = append(lines, fmt.Sprintf("%s=%s", k, cfg[k].Raw))
	}
	return lines
}
