package layout

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/orisano/pixelmatch"
	"github.com/stretchr/testify/require"

	"github.com/frameagent/frameagent/snapshot"
)

func blankPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestBuildOverlayDrawsBoxForEachElement(t *testing.T) {
	base := blankPNG(t, 100, 100)
	boxes := map[snapshot.EncodedId]snapshot.Rect{
		"0-1": {X: 10, Y: 10, Width: 20, Height: 20, Left: 10, Top: 10, Right: 30, Bottom: 30},
	}

	overlay, err := BuildOverlay(base, boxes)
	require.NoError(t, err)

	baseImg, err := png.Decode(bytes.NewReader(base))
	require.NoError(t, err)
	overlayImg, err := png.Decode(bytes.NewReader(overlay))
	require.NoError(t, err)

	diff, err := pixelmatch.MatchPixel(baseImg, overlayImg, pixelmatch.Threshold(0.1))
	require.NoError(t, err)
	require.Greater(t, diff, 0, "overlay should differ from the untouched screenshot where a box was drawn")
}

func TestBuildOverlaySkipsBoxesFullyOutsideViewport(t *testing.T) {
	base := blankPNG(t, 50, 50)
	boxes := map[snapshot.EncodedId]snapshot.Rect{
		"0-1": {X: 1000, Y: 1000, Width: 20, Height: 20, Left: 1000, Top: 1000, Right: 1020, Bottom: 1020},
	}

	overlay, err := BuildOverlay(base, boxes)
	require.NoError(t, err)

	baseImg, err := png.Decode(bytes.NewReader(base))
	require.NoError(t, err)
	overlayImg, err := png.Decode(bytes.NewReader(overlay))
	require.NoError(t, err)

	diff, err := pixelmatch.MatchPixel(baseImg, overlayImg, pixelmatch.Threshold(0.1))
	require.NoError(t, err)
	require.Equal(t, 0, diff, "a box entirely outside the viewport must not be drawn")
}

func TestTranslateToViewportAddsAncestorOffsets(t *testing.T) {
	frameMap := map[int]*snapshot.IframeInfo{
		0: {FrameIndex: 0},
		1: {FrameIndex: 1, ParentFrameIndex: intp(0), AbsoluteBoundingBox: rectp(100, 200, 400, 500)},
	}
	r := snapshot.Rect{X: 5, Y: 5, Left: 5, Top: 5, Right: 25, Bottom: 25}
	out := TranslateToViewport(frameMap, 1, r)
	require.Equal(t, 105.0, out.X)
	require.Equal(t, 205.0, out.Y)
	require.Equal(t, 105.0, out.Left)
	require.Equal(t, 205.0, out.Top)
}

func intp(i int) *int { return &i }

func rectp(x0, y0, x1, y1 int) *image.Rectangle {
	r := image.Rect(x0, y0, x1, y1)
	return &r
}
