// Package testdata provides synthetic camera frames for pipeline tests.
package testdata

import (
	"gocv.io/x/gocv"
)

// Frame size of the synthetic frames, matching the camera capture size.
const (
	FrameWidth  = 640
	FrameHeight = 480
)

// BlankFrame returns a black BGR frame. The caller closes it.
func BlankFrame() *gocv.Mat {
	mat := gocv.NewMatWithSize(FrameHeight, FrameWidth, gocv.MatTypeCV8UC3)
	return &mat
}

// Sequence returns n frames alternating between black and a gray level that
// changes per frame, so consecutive frames differ.
func Sequence(n int) []*gocv.Mat {
	frames := make([]*gocv.Mat, n)
	for i := range frames {
		frames[i] = BlankFrame()
		if i%2 == 1 {
			v := float64(64 + (i*32)%192)
			frames[i].SetTo(gocv.NewScalar(v, v, v, 0))
		}
	}
	return frames
}

// CloseAll closes every frame.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}
