package depgraph

import (
	"errors"

	"github.com/matzehuels/stackforge/pkg/recipe"
	"github.com/matzehuels/stackforge/pkg/requirement"
)

// FromRecipe starts a graph at rec with one edge per declared requirement.
func FromRecipe(rec *recipe.Recipe, reqs requirement.Requirements) (*Graph, error) {
	g := New()
	if err := g.AddNode(Node{ID: rec.Name, Version: rec.Version, Kind: NodeKindRoot}); err != nil {
		return nil, err
	}
	if err := g.AddRequirements(rec.Name, reqs); err != nil {
		return nil, err
	}
	return g, nil
}

// AddRequirements adds an edge from the node from to each requirement,
// creating requirement nodes as needed.
func (g *Graph) AddRequirements(from string, reqs requirement.Requirements) error {
	for _, r := range reqs {
		if _, ok := g.nodes[r.Name]; !ok {
			if err := g.AddNode(Node{ID: r.Name, Version: r.Version}); err != nil {
				return err
			}
		}
		if err := g.AddEdge(Edge{From: from, To: r.Name, Build: r.Has(requirement.FlagBuild)}); err != nil {
			return err
		}
	}
	return nil
}

// LookupFunc returns the requirement references ("name/version") published
// for a package, and false when nothing is known about it.
type LookupFunc func(name string) ([]string, bool)

// Extend follows lookup from every node without outgoing edges until no new
// packages appear. Packages lookup knows nothing about remain leaves.
func (g *Graph) Extend(lookup LookupFunc) error {
	visited := make(map[string]bool, len(g.nodes))
	queue := g.Leaves()
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		refs, ok := lookup(id)
		if !ok {
			continue
		}
		var errs []error
		reqs := make(requirement.Requirements, 0, len(refs))
		for _, ref := range refs {
			r, err := requirement.ParseRef(ref)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			reqs = append(reqs, r)
		}
		if err := errors.Join(errs...); err != nil {
			return err
		}
		if err := g.AddRequirements(id, reqs); err != nil {
			return err
		}
		for _, r := range reqs {
			if !visited[r.Name] {
				queue = append(queue, r.Name)
			}
		}
	}
	return nil
}
