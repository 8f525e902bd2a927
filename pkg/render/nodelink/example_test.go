package nodelink_test

import (
	"fmt"

	"github.com/matzehuels/forceview/pkg/graph"
	"github.com/matzehuels/forceview/pkg/render/nodelink"
)

func ExampleToDOT() {
	l := graph.Layout{
		Nodes: []graph.PlacedNode{
			{ID: "hub", X: 0, Y: 0, Radius: 7.2},
			{ID: "leaf", X: 30, Y: -12, Radius: 3.6},
		},
		Edges: []graph.Edge{{From: "hub", To: "leaf"}},
	}

	fmt.Print(nodelink.ToDOT(l, nodelink.Options{Labels: true}))
	// Output:
	// graph G {
	//   bgcolor="transparent";
	//   inputscale=72;
	//   splines=false;
	//   node [shape=circle, style=filled, fillcolor=white, fixedsize=true, fontsize=8];
	//   edge [color="#888888"];
	//
	//   "hub" [label="hub", pos="0,0!", width=0.2];
	//   "leaf" [label="leaf", pos="30,12!", width=0.1];
	//
	//   "hub" -- "leaf";
	// }
}
