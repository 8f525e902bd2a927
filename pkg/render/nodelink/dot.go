package nodelink

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/forceview/pkg/graph"
	"github.com/matzehuels/forceview/pkg/render"
)

// Output formats.
const (
	FormatSVG  = "svg"
	FormatPNG  = "png"
	FormatPDF  = "pdf"
	FormatDOT  = "dot"
	FormatJSON = "json"
)

// Formats lists every supported output format.
var Formats = []string{FormatSVG, FormatPNG, FormatPDF, FormatDOT, FormatJSON}

// Options configures diagram generation.
type Options struct {
	// Labels draws node labels inside the circles.
	Labels bool
	// Detailed appends node metadata to labels. Implies Labels.
	Detailed bool
	// Directed draws arrowheads.
	Directed bool
	// Scale multiplies simulation units into points. Zero means 1.
	Scale float64
}

func (o Options) scale() float64 {
	if o.Scale <= 0 {
		return 1
	}
	return o.Scale
}

// ToDOT converts a layout to DOT source with every node pinned.
func ToDOT(l graph.Layout, opts Options) string {
	kind, arrow := "graph", "--"
	if opts.Directed {
		kind, arrow = "digraph", "->"
	}
	s := opts.scale()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s G {\n", kind)
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  inputscale=72;\n")
	buf.WriteString("  splines=false;\n")
	buf.WriteString("  node [shape=circle, style=filled, fillcolor=white, fixedsize=true, fontsize=8];\n")
	buf.WriteString("  edge [color=\"#888888\"];\n")
	buf.WriteString("\n")

	for _, n := range l.Nodes {
		fmt.Fprintf(&buf, "  %q [%s];\n", n.ID, strings.Join(fmtAttrs(n, opts, s), ", "))
	}

	buf.WriteString("\n")
	for _, e := range l.Edges {
		fmt.Fprintf(&buf, "  %q %s %q;\n", e.From, arrow, e.To)
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(n graph.PlacedNode, opts Options) string {
	if !opts.Labels && !opts.Detailed {
		return ""
	}
	label := n.DisplayLabel()
	if !opts.Detailed {
		return label
	}
	parts := []string{label, fmt.Sprintf("r: %.1f", n.Radius)}
	for _, k := range slices.Sorted(maps.Keys(n.Meta)) {
		parts = append(parts, fmt.Sprintf("%s: %v", k, n.Meta[k]))
	}
	return strings.Join(parts, "\n")
}

// fmtAttrs sizes the circle to the node diameter in inches.
func fmtAttrs(n graph.PlacedNode, opts Options, scale float64) []string {
	diameter := 2 * n.Radius * scale / 72
	return []string{
		fmt.Sprintf("label=%q", fmtLabel(n, opts)),
		fmt.Sprintf("pos=\"%s,%s!\"", fmtNum(n.X*scale), fmtNum(-n.Y*scale)),
		fmt.Sprintf("width=%s", fmtNum(diameter)),
	}
}

func fmtNum(v float64) string {
	if v == 0 {
		v = 0 // drop negative zero
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// RenderSVG renders a layout to SVG with Graphviz neato.
func RenderSVG(ctx context.Context, l graph.Layout, opts Options) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()
	gv.SetLayout(graphviz.NEATO)

	g, err := graphviz.ParseBytes([]byte(ToDOT(l, opts)))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces Graphviz's fixed pt sizing with a scalable
// root element.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	root := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(root))
}

// Render produces one artifact in the given format.
func Render(ctx context.Context, l graph.Layout, format string, opts Options) ([]byte, error) {
	switch format {
	case FormatDOT:
		return []byte(ToDOT(l, opts)), nil
	case FormatJSON:
		return graph.MarshalLayout(l)
	case FormatSVG:
		return RenderSVG(ctx, l, opts)
	case FormatPNG:
		svg, err := RenderSVG(ctx, l, opts)
		if err != nil {
			return nil, err
		}
		return render.ToPNG(ctx, svg, 2.0)
	case FormatPDF:
		svg, err := RenderSVG(ctx, l, opts)
		if err != nil {
			return nil, err
		}
		return render.ToPDF(ctx, svg)
	default:
		return nil, fmt.Errorf("unsupported format: %q (must be one of: %s)", format, strings.Join(Formats, ", "))
	}
}
