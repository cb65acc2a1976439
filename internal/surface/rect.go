// Package surface describes the trackpad area in page coordinates.
package surface

// Rect describes a rectangle using top-left origin and size.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Normalize returns a rectangle with non-negative width/height.
func Normalize(r Rect) Rect {
	if r.W < 0 {
		r.X += r.W
		r.W = -r.W
	}
	if r.H < 0 {
		r.Y += r.H
		r.H = -r.H
	}
	return r
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	r = Normalize(r)
	return r.W <= 0 || r.H <= 0
}

// Contains reports whether a point is inside the rectangle (edges inclusive).
func Contains(r Rect, x, y float64) bool {
	r = Normalize(r)
	if r.W <= 0 || r.H <= 0 {
		return false
	}
	return x >= r.X && x <= r.X+r.W && y >= r.Y && y <= r.Y+r.H
}

// Clamp returns (x,y) relative to the rectangle origin, bounded to its size.
func Clamp(r Rect, x, y float64) (float64, float64) {
	r = Normalize(r)
	return clamp(x-r.X, 0, r.W), clamp(y-r.Y, 0, r.H)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
