// Package render converts rendered SVG into other output formats.
//
// The [ToPDF] and [ToPNG] functions shell out to rsvg-convert (librsvg).
// Layout drawing itself lives in the [nodelink] subpackage:
//
//	svg, err := nodelink.RenderSVG(ctx, layout, nodelink.Options{Labels: true})
//	png, err := render.ToPNG(ctx, svg, 2.0)
//
// [nodelink]: github.com/matzehuels/forceview/pkg/render/nodelink
package render
