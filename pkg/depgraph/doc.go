// Package depgraph models the requirement graph between packages.
//
// Nodes are packages identified by name; an edge A → B means A requires B.
// Build-only requirements (tools such as cmake or ninja) are marked on the
// edge so renderings and schedulers can tell them from link-time
// dependencies.
//
// # Building
//
// [FromRecipe] starts a graph at one recipe and its declared requirements.
// [Graph.Extend] follows published package-info documents to add the
// requirements of each dependency, transitively:
//
//	g, _ := depgraph.FromRecipe(rec, reqs)
//	_ = g.Extend(func(name string) ([]string, bool) { ... })
//
// # Scheduling
//
// [Graph.Levels] groups nodes into waves where every node depends only on
// nodes of earlier waves. The host orchestrator runs each wave concurrently.
//
// # Rendering
//
// [ToDOT] produces Graphviz DOT and [RenderSVG] renders it with the embedded
// Graphviz library.
package depgraph
