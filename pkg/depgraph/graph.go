package depgraph

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

var (
	// ErrInvalidNodeID is returned by [Graph.AddNode] when the ID is empty.
	ErrInvalidNodeID = errors.New("node ID must not be empty")

	// ErrDuplicateNode is returned by [Graph.AddNode] when a node with the
	// same ID already exists.
	ErrDuplicateNode = errors.New("duplicate node")

	// ErrUnknownNode is returned by [Graph.AddEdge] when an endpoint does not
	// exist.
	ErrUnknownNode = errors.New("unknown node")

	// ErrGraphHasCycle is returned by [Graph.Validate] and [Graph.Levels]
	// when packages require each other.
	ErrGraphHasCycle = errors.New("requirement graph contains a cycle")
)

// NodeKind tells the recipe being built apart from its dependencies.
type NodeKind int

const (
	// NodeKindRequirement is a package some other node requires.
	NodeKindRequirement NodeKind = iota
	// NodeKindRoot is a recipe the graph was started from.
	NodeKindRoot
)

// Node is a package in the graph.
type Node struct {
	ID      string // package name
	Version string
	Kind    NodeKind
	Meta    map[string]any
}

// Ref returns "name/version", or the name alone when the version is unknown.
func (n Node) Ref() string {
	if n.Version == "" {
		return n.ID
	}
	return n.ID + "/" + n.Version
}

// Edge is a requirement from one package to another.
type Edge struct {
	From  string
	To    string
	Build bool // build-time tool requirement
}

// Graph is a directed requirement graph. The zero value is not usable; call
// New. Graph is not safe for concurrent mutation.
type Graph struct {
	nodes    map[string]*Node
	edges    []Edge
	outgoing map[string][]string
	incoming map[string][]string
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		outgoing: make(map[string][]string),
		incoming: make(map[string][]string),
	}
}

// AddNode adds a node.
func (g *Graph) AddNode(n Node) error {
	if n.ID == "" {
		return ErrInvalidNodeID
	}
	if _, exists := g.nodes[n.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
	}
	if n.Meta == nil {
		n.Meta = map[string]any{}
	}
	g.nodes[n.ID] = &n
	return nil
}

// AddEdge adds a requirement between two existing nodes. Adding an edge that
// already exists is a no-op.
func (g *Graph) AddEdge(e Edge) error {
	if _, ok := g.nodes[e.From]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, e.From)
	}
	if _, ok := g.nodes[e.To]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, e.To)
	}
	if slices.Contains(g.outgoing[e.From], e.To) {
		return nil
	}
	g.edges = append(g.edges, e)
	g.outgoing[e.From] = append(g.outgoing[e.From], e.To)
	g.incoming[e.To] = append(g.incoming[e.To], e.From)
	return nil
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes sorted by ID.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, id := range slices.Sorted(maps.Keys(g.nodes)) {
		out = append(out, g.nodes[id])
	}
	return out
}

// Edges returns a copy of the edges in insertion order.
func (g *Graph) Edges() []Edge { return slices.Clone(g.edges) }

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Children returns the packages id requires, in insertion order.
func (g *Graph) Children(id string) []string { return g.outgoing[id] }

// Parents returns the packages that require id.
func (g *Graph) Parents(id string) []string { return g.incoming[id] }

// Roots returns the IDs of nodes nothing requires, sorted.
func (g *Graph) Roots() []string {
	var out []string
	for id := range g.nodes {
		if len(g.incoming[id]) == 0 {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// Leaves returns the IDs of nodes that require nothing, sorted.
func (g *Graph) Leaves() []string {
	var out []string
	for id := range g.nodes {
		if len(g.outgoing[id]) == 0 {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// Validate returns ErrGraphHasCycle if packages require each other.
func (g *Graph) Validate() error {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(g.nodes))
	var cycle []string

	var dfs func(id string, path []string) bool
	dfs = func(id string, path []string) bool {
		color[id] = gray
		path = append(path, id)
		for _, child := range g.outgoing[id] {
			switch color[child] {
			case white:
				if dfs(child, path) {
					return true
				}
			case gray:
				cycle = append(path, child)
				return true
			}
		}
		color[id] = black
		return false
	}

	for _, id := range slices.Sorted(maps.Keys(g.nodes)) {
		if color[id] == white && dfs(id, nil) {
			return fmt.Errorf("%w: %v", ErrGraphHasCycle, cycle)
		}
	}
	return nil
}

// Levels groups node IDs so that each node appears after every node it
// requires: level 0 holds the leaves. IDs within a level are sorted.
func (g *Graph) Levels() ([][]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	remaining := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		remaining[id] = len(g.outgoing[id])
	}
	var levels [][]string
	for len(remaining) > 0 {
		var level []string
		for id, n := range remaining {
			if n == 0 {
				level = append(level, id)
			}
		}
		slices.Sort(level)
		for _, id := range level {
			delete(remaining, id)
			for _, p := range g.incoming[id] {
				remaining[p]--
			}
		}
		levels = append(levels, level)
	}
	return levels, nil
}
