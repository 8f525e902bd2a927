// Package nodelink draws simulated layouts as node-link diagrams.
//
// Nodes are emitted as circles pinned at their simulated positions
// (pos="x,y!") and laid out by Graphviz neato, which honours pinned
// positions and only routes edges:
//
//	dot := nodelink.ToDOT(layout, nodelink.Options{Labels: true})
//	svg, err := nodelink.RenderSVG(layout, nodelink.Options{Labels: true})
//
// Simulation space has y pointing down; DOT has y pointing up, so y is
// negated on output.
//
// This package uses [github.com/goccy/go-graphviz] for in-process SVG
// rendering. PDF and PNG go through [render.ToPDF] and [render.ToPNG].
//
// [render.ToPDF]: github.com/matzehuels/forceview/pkg/render.ToPDF
// [render.ToPNG]: github.com/matzehuels/forceview/pkg/render.ToPNG
package nodelink
