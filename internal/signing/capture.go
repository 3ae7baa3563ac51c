// Package signing turns freehand pointer input into a fixed-resolution PNG
// artifact. The capture surface accumulates strokes while a gesture is
// active; Render is the single commit boundary that hands an immutable image
// to the signature ledger. In-progress strokes never leak into the persisted
// model.
package signing

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
)

const (
	// Artifact resolution. Every rendered signature comes out at this size
	// regardless of the capture viewport.
	ArtifactWidth  = 600
	ArtifactHeight = 200

	penRadius = 2
)

var ErrEmptyStroke = errors.New("signature capture contains no strokes")

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Capture is a signature pad. Begin/Extend/End mirror the
// pointer-down/move/up gesture; points outside an active gesture are
// discarded.
type Capture struct {
	width   float64
	height  float64
	strokes [][]Point
	current []Point
	active  bool
}

// NewCapture creates a pad with the given viewport dimensions. The viewport
// only affects scaling into the artifact; it can differ per device.
func NewCapture(width, height float64) *Capture {
	if width <= 0 {
		width = ArtifactWidth
	}
	if height <= 0 {
		height = ArtifactHeight
	}
	return &Capture{width: width, height: height}
}

func (c *Capture) Begin(p Point) {
	c.active = true
	c.current = []Point{p}
}

func (c *Capture) Extend(p Point) {
	if !c.active {
		return
	}
	c.current = append(c.current, p)
}

// End commits the active stroke.
func (c *Capture) End() {
	if !c.active {
		return
	}
	if len(c.current) > 0 {
		c.strokes = append(c.strokes, c.current)
	}
	c.current = nil
	c.active = false
}

// Clear resets the surface without persisting anything.
func (c *Capture) Clear() {
	c.strokes = nil
	c.current = nil
	c.active = false
}

func (c *Capture) Empty() bool {
	return len(c.strokes) == 0
}

// Render rasterizes the committed strokes to a PNG. Any non-empty stroke set
// is accepted as a signature; no quality validation is performed.
func (c *Capture) Render() ([]byte, error) {
	return RenderStrokes(c.width, c.height, c.strokes)
}

// RenderStrokes rasterizes a stroke set captured on a width x height viewport
// into the fixed artifact resolution. Used directly by the HTTP path, where
// the browser submits the accumulated points.
func RenderStrokes(width, height float64, strokes [][]Point) ([]byte, error) {
	if !hasInk(strokes) {
		return nil, ErrEmptyStroke
	}
	if width <= 0 {
		width = ArtifactWidth
	}
	if height <= 0 {
		height = ArtifactHeight
	}

	img := image.NewRGBA(image.Rect(0, 0, ArtifactWidth, ArtifactHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	scaleX := float64(ArtifactWidth) / width
	scaleY := float64(ArtifactHeight) / height

	for _, stroke := range strokes {
		if len(stroke) == 1 {
			stamp(img, stroke[0].X*scaleX, stroke[0].Y*scaleY)
			continue
		}
		for i := 1; i < len(stroke); i++ {
			line(img,
				stroke[i-1].X*scaleX, stroke[i-1].Y*scaleY,
				stroke[i].X*scaleX, stroke[i].Y*scaleY)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func hasInk(strokes [][]Point) bool {
	for _, s := range strokes {
		if len(s) > 0 {
			return true
		}
	}
	return false
}

// line stamps the pen along the segment at sub-pixel steps.
func line(img *image.RGBA, x0, y0, x1, y1 float64) {
	dx := x1 - x0
	dy := y1 - y0
	dist := math.Hypot(dx, dy)
	steps := int(dist) + 1
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		stamp(img, x0+dx*t, y0+dy*t)
	}
}

func stamp(img *image.RGBA, cx, cy float64) {
	for dy := -penRadius; dy <= penRadius; dy++ {
		for dx := -penRadius; dx <= penRadius; dx++ {
			if dx*dx+dy*dy > penRadius*penRadius {
				continue
			}
			x := int(cx) + dx
			y := int(cy) + dy
			if (image.Point{X: x, Y: y}).In(img.Bounds()) {
				img.Set(x, y, color.Black)
			}
		}
	}
}
