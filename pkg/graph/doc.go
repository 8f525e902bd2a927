// Package graph provides serialization types for input graphs and layouts,
// and binds graphs to the index-based buffers of package sim.
//
// # Core Types
//
//   - [Graph]: node-link input format
//   - [Model]: a graph bound to simulation indices with computed radii
//   - [Layout]: positioned nodes plus the parameters that produced them
//
// # Graph Serialization
//
// Graphs use a simple node-link JSON format. Radius is optional:
//
//	{
//	  "nodes": [{"id": "hub", "radius": 7}, {"id": "leaf"}],
//	  "edges": [{"from": "hub", "to": "leaf"}]
//	}
//
// Common operations:
//
//	g, _ := graph.ReadGraphFile("graph.json")   // File → Graph (validated)
//	graph.WriteGraphFile(g, "copy.json")        // Graph → File
//	data, _ := graph.MarshalGraph(g)            // Graph → []byte
//
// # Binding to a Simulation
//
// [ToBuffers] sizes nodes without a radius by degree, orders nodes by
// descending radius and resolves edge endpoints to indices:
//
//	m, err := graph.ToBuffers(g, graph.DefaultRadiusOptions())
//	s, err := sim.New(m.Buffers(nil), params)
//	...
//	layout := graph.NewLayout(m, s.Positions())
//
// Passing nil positions to [Model.Buffers] seeds them with
// [sim.SpiralPositions]. A saved layout can be mapped back with
// [Layout.Positions].
package graph
