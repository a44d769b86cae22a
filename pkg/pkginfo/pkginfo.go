// Package pkginfo publishes the consumable description of an installed
// package: its named components, each with the libraries it links and the
// identifiers build systems use to find it.
//
// Publishing is all-or-nothing. Every library a component declares must
// resolve to at least one file under the install root, otherwise nothing is
// returned and the caller gets a PackagingError naming each missing
// component/library pair.
package pkginfo

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/platform"
)

// Decl declares one component of a package.
type Decl struct {
	ID            string   // unique within the package
	Name          string   // exposed name, defaults to ID
	CMakeTarget   string   // e.g. LibDataChannel::LibDataChannel
	PkgConfigName string   // e.g. LibDataChannel
	Libs          []string // library base names, e.g. datachannel
	Requires      []string // other component IDs or requirement names
}

// Component is a published component with its resolved library files.
type Component struct {
	ID            string   `json:"id" yaml:"id" bson:"id"`
	Name          string   `json:"name" yaml:"name" bson:"name"`
	CMakeTarget   string   `json:"cmake_target,omitempty" yaml:"cmake_target,omitempty" bson:"cmake_target,omitempty"`
	PkgConfigName string   `json:"pkg_config_name,omitempty" yaml:"pkg_config_name,omitempty" bson:"pkg_config_name,omitempty"`
	Libs          []string `json:"libs" yaml:"libs" bson:"libs"`
	Files         []string `json:"files" yaml:"files" bson:"files"` // relative to the install root
	Requires      []string `json:"requires,omitempty" yaml:"requires,omitempty" bson:"requires,omitempty"`
}

// Metadata is descriptive recipe metadata carried into the published info.
type Metadata struct {
	Description string   `json:"description,omitempty" yaml:"description,omitempty" bson:"description,omitempty"`
	License     string   `json:"license,omitempty" yaml:"license,omitempty" bson:"license,omitempty"`
	Author      string   `json:"author,omitempty" yaml:"author,omitempty" bson:"author,omitempty"`
	URL         string   `json:"url,omitempty" yaml:"url,omitempty" bson:"url,omitempty"`
	Topics      []string `json:"topics,omitempty" yaml:"topics,omitempty" bson:"topics,omitempty"`
	PackageType string   `json:"package_type,omitempty" yaml:"package_type,omitempty" bson:"package_type,omitempty"`
}

// Info is the published package-info document.
type Info struct {
	Name        string            `json:"name" yaml:"name" bson:"name"`
	Version     string            `json:"version" yaml:"version" bson:"version"`
	Profile     string            `json:"profile,omitempty" yaml:"profile,omitempty" bson:"profile,omitempty"`
	Platform    platform.Platform `json:"platform" yaml:"platform" bson:"platform"`
	Options     map[string]string `json:"options" yaml:"options" bson:"options"`
	Requires    []string          `json:"requires,omitempty" yaml:"requires,omitempty" bson:"requires,omitempty"`
	Components  []Component       `json:"components" yaml:"components" bson:"components"`
	Root        string            `json:"root" yaml:"root" bson:"root"`
	Metadata    Metadata          `json:"metadata" yaml:"metadata" bson:"metadata"`
	RunID       string            `json:"run_id,omitempty" yaml:"run_id,omitempty" bson:"run_id,omitempty"`
	PublishedAt time.Time         `json:"published_at" yaml:"published_at" bson:"published_at"`
}

// Ref returns "name/version".
func (i *Info) Ref() string { return i.Name + "/" + i.Version }

// Component returns the component with the given ID.
func (i *Info) Component(id string) (Component, bool) {
	for _, c := range i.Components {
		if c.ID == id {
			return c, true
		}
	}
	return Component{}, false
}

// Validate checks component declarations: unique non-empty IDs, at least one
// library name each, and intra-package requires that resolve.
func Validate(decls []Decl) error {
	var errs []error
	ids := make(map[string]bool, len(decls))
	for _, d := range decls {
		if d.ID == "" {
			errs = append(errs, fmt.Errorf("component with empty id"))
			continue
		}
		if ids[d.ID] {
			errs = append(errs, fmt.Errorf("component %s declared twice", d.ID))
		}
		ids[d.ID] = true
		if len(d.Libs) == 0 {
			errs = append(errs, fmt.Errorf("component %s declares no libraries", d.ID))
		}
	}
	return errors.Join(errors.ErrCodeConfiguration, errs)
}

// Publish resolves every declared component against the install root. A
// declared library that matches no file is a PackagingError; no partial
// component list is ever returned.
func Publish(root string, p platform.Platform, decls []Decl) ([]Component, error) {
	if len(decls) == 0 {
		return nil, errors.New(errors.ErrCodePackaging, "package declares no components")
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, errors.New(errors.ErrCodePackaging, "install root %s does not exist", root)
	}

	out := make([]Component, 0, len(decls))
	var missing []string
	for _, d := range decls {
		c := Component{
			ID:            d.ID,
			Name:          d.Name,
			CMakeTarget:   d.CMakeTarget,
			PkgConfigName: d.PkgConfigName,
			Libs:          slices.Clone(d.Libs),
			Requires:      slices.Clone(d.Requires),
		}
		if c.Name == "" {
			c.Name = d.ID
		}
		for _, lib := range d.Libs {
			files, err := FindLibrary(root, p, lib)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodePackaging, err, "component %s", d.ID)
			}
			if len(files) == 0 {
				missing = append(missing, d.ID+"/"+lib)
				continue
			}
			c.Files = append(c.Files, files...)
		}
		out = append(out, c)
	}
	switch len(missing) {
	case 0:
		return out, nil
	case 1:
		return nil, errors.New(errors.ErrCodePackaging, "library %s not found under %s", missing[0], root)
	default:
		return nil, errors.New(errors.ErrCodePackaging, "libraries %s not found under %s", strings.Join(missing, ", "), root)
	}
}

// libDirs are searched, in order, below the install root.
var libDirs = []string{"lib", "lib64", "bin"}

// Patterns returns the file name patterns a library base name may take on p.
func Patterns(p platform.Platform, lib string) []string {
	switch p.OS {
	case platform.Windows:
		return []string{lib + ".lib", lib + ".dll", "lib" + lib + ".a", "lib" + lib + ".dll.a"}
	case platform.Macos:
		return []string{"lib" + lib + ".a", "lib" + lib + ".dylib", "lib" + lib + ".*.dylib"}
	default:
		return []string{"lib" + lib + ".a", "lib" + lib + ".so", "lib" + lib + ".so.*"}
	}
}

// FindLibrary returns the files under root matching lib on p, relative to
// root and slash-separated, sorted.
func FindLibrary(root string, p platform.Platform, lib string) ([]string, error) {
	var found []string
	for _, dir := range libDirs {
		for _, pat := range Patterns(p, lib) {
			matches, err := filepath.Glob(filepath.Join(root, dir, pat))
			if err != nil {
				return nil, err
			}
			for _, m := range matches {
				rel, err := filepath.Rel(root, m)
				if err != nil {
					return nil, err
				}
				found = append(found, filepath.ToSlash(rel))
			}
		}
	}
	sort.Strings(found)
	return slices.Compact(found), nil
}
