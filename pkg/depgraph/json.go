package depgraph

import (
	"encoding/json"
	"fmt"
	"io"
)

var kindToString = map[NodeKind]string{
	NodeKindRequirement: "requirement",
	NodeKindRoot:        "root",
}

type graphJSON struct {
	Nodes []nodeJSON `json:"nodes"`
	Edges []edgeJSON `json:"edges"`
}

type nodeJSON struct {
	ID      string         `json:"id"`
	Version string         `json:"version,omitempty"`
	Kind    string         `json:"kind,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

type edgeJSON struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Build bool   `json:"build,omitempty"`
}

// WriteJSON encodes the graph as {"nodes": [...], "edges": [...]} for tools
// that consume requirement graphs. ReadJSON reads it back.
func WriteJSON(g *Graph, w io.Writer) error {
	out := graphJSON{
		Nodes: make([]nodeJSON, 0, g.NodeCount()),
		Edges: make([]edgeJSON, 0, g.EdgeCount()),
	}
	for _, n := range g.Nodes() {
		nd := nodeJSON{ID: n.ID, Version: n.Version, Kind: kindToString[n.Kind]}
		if len(n.Meta) > 0 {
			nd.Meta = n.Meta
		}
		out.Nodes = append(out.Nodes, nd)
	}
	for _, e := range g.Edges() {
		out.Edges = append(out.Edges, edgeJSON(e))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// ReadJSON decodes a graph written by WriteJSON. Duplicate nodes, edges to
// unknown nodes and cycles are rejected.
func ReadJSON(r io.Reader) (*Graph, error) {
	var data graphJSON
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	g := New()
	for _, n := range data.Nodes {
		nd := Node{ID: n.ID, Version: n.Version, Meta: n.Meta}
		switch n.Kind {
		case "", "requirement":
		case "root":
			nd.Kind = NodeKindRoot
		default:
			return nil, fmt.Errorf("node %s: unknown kind %q", n.ID, n.Kind)
		}
		if err := g.AddNode(nd); err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
	}
	for _, e := range data.Edges {
		if err := g.AddEdge(Edge(e)); err != nil {
			return nil, fmt.Errorf("edge %s->%s: %w", e.From, e.To, err)
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
