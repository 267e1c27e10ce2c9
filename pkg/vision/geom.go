package vision

import (
	"github.com/chewxy/math32"
)

type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

func (p Point) Distance(b Point) float32 {
	return math32.Sqrt((p.X-b.X)*(p.X-b.X) + (p.Y-b.Y)*(p.Y-b.Y))
}

// Box is an axis-aligned bounding box in pixel coordinates of the full source frame.
type Box struct {
	X      float32 `json:"x"`
	Y      float32 `json:"y"`
	Width  float32 `json:"width"`
	Height float32 `json:"height"`
}

func (b Box) X2() float32 {
	return b.X + b.Width
}

func (b Box) Y2() float32 {
	return b.Y + b.Height
}

func (b Box) Area() float32 {
	return b.Width * b.Height
}

func (b Box) Center() Point {
	return Point{
		X: b.X + b.Width/2,
		Y: b.Y + b.Height/2,
	}
}

// MaxDim returns the larger of width and height.
func (b Box) MaxDim() float32 {
	return max(b.Width, b.Height)
}

func (b Box) Intersection(c Box) Box {
	x1 := max(b.X, c.X)
	y1 := max(b.Y, c.Y)
	x2 := min(b.X2(), c.X2())
	y2 := min(b.Y2(), c.Y2())
	return Box{
		X:      x1,
		Y:      y1,
		Width:  max(0, x2-x1),
		Height: max(0, y2-y1),
	}
}

func (b Box) Union(c Box) Box {
	x1 := min(b.X, c.X)
	y1 := min(b.Y, c.Y)
	x2 := max(b.X2(), c.X2())
	y2 := max(b.Y2(), c.Y2())
	return Box{
		X:      x1,
		Y:      y1,
		Width:  x2 - x1,
		Height: y2 - y1,
	}
}

// Intersection over Union
func (b Box) IOU(c Box) float32 {
	intersection := b.Intersection(c)
	return intersection.Area() / (b.Area() + c.Area() - intersection.Area())
}

// Contains is true if c lies entirely inside b.
func (b Box) Contains(c Box) bool {
	return c.X >= b.X && c.Y >= b.Y && c.X2() <= b.X2() && c.Y2() <= b.Y2()
}

// Lerp interpolates each coordinate independently.
// t = 0 returns b, t = 1 returns c.
func (b Box) Lerp(c Box, t float32) Box {
	return Box{
		X:      b.X + (c.X-b.X)*t,
		Y:      b.Y + (c.Y-b.Y)*t,
		Width:  b.Width + (c.Width-b.Width)*t,
		Height: b.Height + (c.Height-b.Height)*t,
	}
}

// IsFinite is false if any coordinate is NaN or infinite.
func (b Box) IsFinite() bool {
	for _, v := range [4]float32{b.X, b.Y, b.Width, b.Height} {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return false
		}
	}
	return true
}
