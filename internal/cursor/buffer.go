package cursor

import "gonum.org/v1/gonum/stat"

// Point is a screen-space position before rounding to whole pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SmoothingBuffer is a fixed-capacity ring of the most recent mapped points.
// Pushing into a full buffer drops the oldest point; Len never exceeds Cap.
type SmoothingBuffer struct {
	xs   []float64
	ys   []float64
	head int // index of the oldest point
	n    int
}

// NewSmoothingBuffer returns an empty buffer holding at most capacity points.
// A capacity below 1 is treated as 1 (no smoothing).
func NewSmoothingBuffer(capacity int) *SmoothingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &SmoothingBuffer{
		xs: make([]float64, capacity),
		ys: make([]float64, capacity),
	}
}

// Cap returns the buffer capacity.
func (b *SmoothingBuffer) Cap() int { return len(b.xs) }

// Len returns the number of points held.
func (b *SmoothingBuffer) Len() int { return b.n }

// Push appends p, evicting the oldest point when full.
func (b *SmoothingBuffer) Push(p Point) {
	c := len(b.xs)
	if b.n < c {
		i := (b.head + b.n) % c
		b.xs[i], b.ys[i] = p.X, p.Y
		b.n++
		return
	}
	b.xs[b.head], b.ys[b.head] = p.X, p.Y
	b.head = (b.head + 1) % c
}

// Mean returns the arithmetic mean of the held points. The mean does not
// depend on ring order, so the backing slices are averaged in place.
func (b *SmoothingBuffer) Mean() (Point, bool) {
	if b.n == 0 {
		return Point{}, false
	}
	return Point{
		X: stat.Mean(b.xs[:b.n], nil),
		Y: stat.Mean(b.ys[:b.n], nil),
	}, true
}

// Points returns a copy of the held points, oldest first.
func (b *SmoothingBuffer) Points() []Point {
	out := make([]Point, b.n)
	for i := range out {
		j := (b.head + i) % len(b.xs)
		out[i] = Point{X: b.xs[j], Y: b.ys[j]}
	}
	return out
}

// Resize changes the capacity, keeping the most recent points that fit.
func (b *SmoothingBuffer) Resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	if capacity == len(b.xs) {
		return
	}
	points := b.Points()
	if len(points) > capacity {
		points = points[len(points)-capacity:]
	}
	*b = *NewSmoothingBuffer(capacity)
	for _, p := range points {
		b.Push(p)
	}
}

// Reset empties the buffer.
func (b *SmoothingBuffer) Reset() {
	b.head = 0
	b.n = 0
}
