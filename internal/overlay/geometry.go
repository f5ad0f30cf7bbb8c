package overlay

import "math"

// DayMillis is one day on the time axis.
const DayMillis = 86_400_000.0

// Point is a position in data space: X is epoch milliseconds, Y is price.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PixelPoint is a position on the chart canvas.
type PixelPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CoordinateMapper converts between pixel and data space. A mapper is only
// valid for the redraw it was obtained in; pan and zoom change the ranges.
type CoordinateMapper interface {
	ToData(px PixelPoint) Point
	ToPixel(p Point) PixelPoint
}

// LinearScale maps a value range onto a pixel range. PixelEnd may be smaller
// than PixelStart (price axes grow upwards).
type LinearScale struct {
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	PixelStart float64 `json:"pixel_start"`
	PixelEnd   float64 `json:"pixel_end"`
}

func (s LinearScale) ValueForPixel(px float64) float64 {
	if s.PixelEnd == s.PixelStart {
		return s.Min
	}
	return s.Min + (px-s.PixelStart)/(s.PixelEnd-s.PixelStart)*(s.Max-s.Min)
}

func (s LinearScale) PixelForValue(v float64) float64 {
	if s.Max == s.Min {
		return s.PixelStart
	}
	return s.PixelStart + (v-s.Min)/(s.Max-s.Min)*(s.PixelEnd-s.PixelStart)
}

// Scales is the pair of chart axes and the default CoordinateMapper.
type Scales struct {
	X LinearScale `json:"x"`
	Y LinearScale `json:"y"`
}

func (s Scales) ToData(px PixelPoint) Point {
	return Point{X: s.X.ValueForPixel(px.X), Y: s.Y.ValueForPixel(px.Y)}
}

func (s Scales) ToPixel(p Point) PixelPoint {
	return PixelPoint{X: s.X.PixelForValue(p.X), Y: s.Y.PixelForValue(p.Y)}
}

// DataBounds returns the lower-left and upper-right corners of the visible
// data range.
func (s Scales) DataBounds() (Point, Point) {
	x0, x1 := minMax(s.X.Min, s.X.Max)
	y0, y1 := minMax(s.Y.Min, s.Y.Max)
	return Point{X: x0, Y: y0}, Point{X: x1, Y: y1}
}

// Valid reports whether both axes have a usable range.
func (s Scales) Valid() bool {
	return finite(s.X.Min, s.X.Max, s.Y.Min, s.Y.Max, s.X.PixelStart, s.X.PixelEnd, s.Y.PixelStart, s.Y.PixelEnd) &&
		s.X.Max != s.X.Min && s.Y.Max != s.Y.Min
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func distance(a, b PixelPoint) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func minMax(a, b float64) (float64, float64) {
	if a < b {
		return a, b
	}
	return b, a
}
