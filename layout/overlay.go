package layout

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sort"

	"github.com/frameagent/frameagent/snapshot"
)

// overlayPalette cycles a small set of high-contrast colors across
// successive elements so adjacent boxes stay visually distinguishable. No
// drawing library in the corpus offers a palette helper (DESIGN.md:
// standard-library justification), so this is a plain slice.
var overlayPalette = []color.RGBA{
	{255, 0, 0, 255},
	{0, 153, 255, 255},
	{0, 200, 0, 255},
	{255, 140, 0, 255},
	{170, 0, 210, 255},
}

// BuildOverlay composes one colored rectangle (plus a filled corner tick
// standing in for an EncodedId label) per surviving element over a
// Page.captureScreenshot PNG (spec §4.4 "Overlay composition"). Boxes fully
// outside the viewport are dropped. Labels are drawn as short filled tick
// marks rather than rendered glyphs: no glyph-rendering primitive appears
// anywhere in the retrieval corpus (DESIGN.md), so a text label would be the
// one component built on a library the corpus never reaches for.
func BuildOverlay(screenshotPNG []byte, boxes map[snapshot.EncodedId]snapshot.Rect) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(screenshotPNG))
	if err != nil {
		return nil, fmt.Errorf("layout: decode screenshot: %w", err)
	}

	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, image.Point{}, draw.Src)

	ids := make([]snapshot.EncodedId, 0, len(boxes))
	for id := range boxes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for i, id := range ids {
		r := boxes[id]
		if r.Right <= float64(bounds.Min.X) || r.Left >= float64(bounds.Max.X) ||
			r.Bottom <= float64(bounds.Min.Y) || r.Top >= float64(bounds.Max.Y) {
			continue
		}
		c := overlayPalette[i%len(overlayPalette)]
		drawRect(dst, r, c)
		drawLabelTick(dst, r, c)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("layout: encode overlay: %w", err)
	}
	return buf.Bytes(), nil
}

func drawRect(dst *image.RGBA, r snapshot.Rect, c color.RGBA) {
	x0, y0 := int(r.Left), int(r.Top)
	x1, y1 := int(r.Right), int(r.Bottom)
	b := dst.Bounds()
	clampX := func(x int) int {
		if x < b.Min.X {
			return b.Min.X
		}
		if x > b.Max.X-1 {
			return b.Max.X - 1
		}
		return x
	}
	clampY := func(y int) int {
		if y < b.Min.Y {
			return b.Min.Y
		}
		if y > b.Max.Y-1 {
			return b.Max.Y - 1
		}
		return y
	}
	x0, x1 = clampX(x0), clampX(x1)
	y0, y1 = clampY(y0), clampY(y1)

	for x := x0; x <= x1; x++ {
		dst.Set(x, y0, c)
		dst.Set(x, y1, c)
	}
	for y := y0; y <= y1; y++ {
		dst.Set(x0, y, c)
		dst.Set(x1, y, c)
	}
}

// drawLabelTick draws a small filled square at the element's top-left
// corner, a stand-in for a rendered EncodedId label.
func drawLabelTick(dst *image.RGBA, r snapshot.Rect, c color.RGBA) {
	const size = 6
	x0, y0 := int(r.Left), int(r.Top)
	b := dst.Bounds()
	for dx := 0; dx < size; dx++ {
		for dy := 0; dy < size; dy++ {
			x, y := x0+dx, y0+dy
			if x >= b.Min.X && x < b.Max.X && y >= b.Min.Y && y < b.Max.Y {
				dst.Set(x, y, c)
			}
		}
	}
}
