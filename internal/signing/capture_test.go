package signing

import (
	"bytes"
	"errors"
	"image/png"
	"testing"
)

func TestRenderStrokesProducesArtifact(t *testing.T) {
	strokes := [][]Point{
		{{X: 10, Y: 10}, {X: 200, Y: 80}, {X: 390, Y: 20}},
	}

	data, err := RenderStrokes(400, 100, strokes)
	if err != nil {
		t.Fatalf("RenderStrokes: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("artifact is not a decodable PNG: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != ArtifactWidth || b.Dy() != ArtifactHeight {
		t.Fatalf("artifact is %dx%d, want %dx%d", b.Dx(), b.Dy(), ArtifactWidth, ArtifactHeight)
	}

	// The stroke must leave ink somewhere.
	inked := false
	for y := b.Min.Y; y < b.Max.Y && !inked; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if r == 0 && g == 0 && bl == 0 {
				inked = true
				break
			}
		}
	}
	if !inked {
		t.Fatal("rendered artifact contains no ink")
	}
}

func TestRenderStrokesEmpty(t *testing.T) {
	if _, err := RenderStrokes(400, 100, nil); !errors.Is(err, ErrEmptyStroke) {
		t.Fatalf("expected ErrEmptyStroke, got %v", err)
	}
	if _, err := RenderStrokes(400, 100, [][]Point{{}}); !errors.Is(err, ErrEmptyStroke) {
		t.Fatalf("empty strokes carry no ink, got %v", err)
	}
}

func TestCaptureGesture(t *testing.T) {
	c := NewCapture(400, 100)

	// Points outside an active gesture are discarded.
	c.Extend(Point{X: 5, Y: 5})
	if !c.Empty() {
		t.Fatal("extend without begin must not record ink")
	}

	c.Begin(Point{X: 10, Y: 10})
	c.Extend(Point{X: 20, Y: 20})
	c.Extend(Point{X: 30, Y: 15})
	c.End()

	if c.Empty() {
		t.Fatal("committed stroke not recorded")
	}

	data, err := c.Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestCaptureClear(t *testing.T) {
	c := NewCapture(400, 100)
	c.Begin(Point{X: 1, Y: 1})
	c.Extend(Point{X: 2, Y: 2})
	c.End()
	c.Clear()

	if !c.Empty() {
		t.Fatal("Clear must reset the surface")
	}
	if _, err := c.Render(); !errors.Is(err, ErrEmptyStroke) {
		t.Fatalf("cleared surface must not render, got %v", err)
	}
}

func TestSinglePointStrokeStamps(t *testing.T) {
	data, err := RenderStrokes(ArtifactWidth, ArtifactHeight, [][]Point{{{X: 300, Y: 100}}})
	if err != nil {
		t.Fatalf("RenderStrokes: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	r, g, b, _ := img.At(300, 100).RGBA()
	if r != 0 || g != 0 || b != 0 {
		t.Fatal("single-point stroke left no ink at its location")
	}
}
