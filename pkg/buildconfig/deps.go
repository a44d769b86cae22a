package buildconfig

import (
	"sort"

	"github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/requirement"
)

// Dependency is a resolved requirement: where its package lives and what it
// exposes.
type Dependency struct {
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	Root       string   `json:"root"`
	Build      bool     `json:"build,omitempty"`
	Components []string `json:"components,omitempty"` // CMake targets
	Libs       []string `json:"libs,omitempty"`
}

// Graph is the resolved dependency graph of one recipe: requirement name to
// resolved dependency.
type Graph map[string]Dependency

// Names returns the dependency names, sorted.
func (g Graph) Names() []string {
	names := make([]string, 0, len(g))
	for n := range g {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Check verifies that every requirement is present in the graph at the
// declared version. A graph missing a requirement cannot produce a
// consistent dependency manifest.
func (g Graph) Check(reqs requirement.Requirements) error {
	for _, r := range reqs {
		d, ok := g[r.Name]
		if !ok {
			return errors.Configuration("requirement %s has no resolved location", r.Ref())
		}
		if d.Version != r.Version {
			return errors.Configuration("requirement %s resolved to version %s", r.Ref(), d.Version)
		}
		if d.Root == "" {
			return errors.Configuration("requirement %s resolved without an install root", r.Ref())
		}
	}
	return nil
}
