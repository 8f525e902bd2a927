// Package pkg provides the core libraries for forceview force-directed layouts.
//
// # Overview
//
// Forceview lays out node-link graphs by simulating springs along edges,
// repulsion between nodes and a pull toward the origin. Frames are cheap and
// incremental, so the same simulation serves headless runs, a live terminal
// view and interactive sessions over HTTP.
//
// # Architecture
//
// The typical data flow:
//
//	graph.json
//	     ↓
//	[graph] package (validate, size nodes, bind to indices)
//	     ↓
//	[sim] package (advance frames until settled)
//	     ↓
//	graph.Layout (positions plus the parameters that produced them)
//	     ↓
//	[render/nodelink] package (SVG/PNG/PDF/DOT)
//
// # Quick Start
//
//	g, _ := graph.ReadGraphFile("graph.json")
//	m, _ := graph.ToBuffers(g, graph.DefaultRadiusOptions())
//	s, _ := sim.New(m.Buffers(nil), sim.DefaultParams())
//	for range 500 {
//	    s.AdvanceFrame(r2.Vec{}, sim.NoNode, 1)
//	}
//	layout := graph.NewLayout(m, s.Positions())
//
// # Main Packages
//
// ## Simulation
//
// [sim] - The force simulation: spring, repulsion and central forces, batched
// repulsion windows driven by a settleness signal, pointer hover and grab,
// and a frame-rate governor that trades repulsion work for speed.
//
// [graph] - Node-link input format, layouts, and the binding of graphs to the
// index-based buffers of [sim].
//
// [session] - Live simulations driven between frames by a host, with an
// expiring store.
//
// ## Orchestration
//
// [pipeline] - Headless simulate and render with layout caching and saved
// positions. Used by the CLI and the server.
//
// [server] - HTTP and websocket host for live sessions.
//
// [config] - TOML/YAML settings with live reload.
//
// ## Visualization
//
// [render/nodelink] - Layouts drawn with Graphviz, nodes pinned in place.
//
// [render] - SVG to PNG/PDF conversion.
//
// ## Infrastructure
//
// [cache] - File, Redis and no-op caches behind one interface.
//
// [observability] - Hook registry for simulation, cache and HTTP events.
//
// [metrics] - Prometheus implementation of the hooks.
//
// [errors] - Coded errors and input validation.
//
// # Testing
//
//	go test ./pkg/...          # All tests
//	go test ./pkg/sim/...      # Specific package
//	go test -run Example ./... # Examples only
//
// [sim]: https://pkg.go.dev/github.com/matzehuels/forceview/pkg/sim
// [graph]: https://pkg.go.dev/github.com/matzehuels/forceview/pkg/graph
// [session]: https://pkg.go.dev/github.com/matzehuels/forceview/pkg/session
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/forceview/pkg/pipeline
// [server]: https://pkg.go.dev/github.com/matzehuels/forceview/pkg/server
// [config]: https://pkg.go.dev/github.com/matzehuels/forceview/pkg/config
// [render]: https://pkg.go.dev/github.com/matzehuels/forceview/pkg/render
// [render/nodelink]: https://pkg.go.dev/github.com/matzehuels/forceview/pkg/render/nodelink
// [cache]: https://pkg.go.dev/github.com/matzehuels/forceview/pkg/cache
// [observability]: https://pkg.go.dev/github.com/matzehuels/forceview/pkg/observability
// [metrics]: https://pkg.go.dev/github.com/matzehuels/forceview/pkg/metrics
// [errors]: https://pkg.go.dev/github.com/matzehuels/forceview/pkg/errors
package pkg
