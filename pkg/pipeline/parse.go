package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	errs "github.com/matzehuels/forceview/pkg/errors"
	"github.com/matzehuels/forceview/pkg/graph"
)

// Input is a parsed input file: a graph, and its positions when the file
// is a layout.
type Input struct {
	Graph  graph.Graph
	Layout *graph.Layout
}

// ReadInput reads a graph or a layout from path. "-" reads stdin.
// Layout files are recognised by the x/y coordinates on their nodes.
func ReadInput(path string, stdin io.Reader) (Input, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		if verr := errs.ValidatePath(path, ".json"); verr != nil {
			return Input{}, verr
		}
		data, err = os.ReadFile(path)
		if os.IsNotExist(err) {
			return Input{}, errs.Wrap(errs.ErrCodeFileNotFound, err, "input file %s", path)
		}
	}
	if err != nil {
		return Input{}, fmt.Errorf("read %s: %w", path, err)
	}
	return ParseInput(data)
}

// ParseInput decodes a graph or a layout.
func ParseInput(data []byte) (Input, error) {
	if isLayout(data) {
		l, err := graph.UnmarshalLayout(data)
		if err != nil {
			return Input{}, err
		}
		return Input{Graph: l.Graph(), Layout: &l}, nil
	}
	g, err := graph.ReadGraph(bytes.NewReader(data))
	if err != nil {
		return Input{}, err
	}
	return Input{Graph: g}, nil
}

func isLayout(data []byte) bool {
	var probe struct {
		Nodes []map[string]json.RawMessage `json:"nodes"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || len(probe.Nodes) == 0 {
		return false
	}
	_, hasX := probe.Nodes[0]["x"]
	_, hasY := probe.Nodes[0]["y"]
	return hasX && hasY
}
