package tracker

import (
	"image"
	"image/color"
)

// toGrayFull converts img to a full-resolution 8-bit grayscale buffer
// (stride == width), the coordinate space CorrelationTracker's template
// matching operates in — the same bbox pixel coordinates the detector
// and tracker already use, unlike the motion gate's downscaled buffer.
func toGrayFull(img image.Image) (gray []byte, stride, width, height int) {
	b := img.Bounds()
	width, height = b.Dx(), b.Dy()
	stride = width
	gray = make([]byte, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			gray[y*stride+x] = c.Y
		}
	}
	return gray, stride, width, height
}

// Backend is the single-object tracker used to carry a track's bounding
// box forward between detector calls (the detector itself only runs at
// the scheduler's current FPS; between its calls a lightweight per-track
// tracker keeps the box roughly aligned with the face).
//
// gocv.io/x/gocv (OpenCV's csrt/kcf/mil trackers) is not wired here: no
// repo in the retrieval pack depends on it directly from this teacher's
// module, so the fallback below is a pure-Go correlation tracker instead
// of a cgo OpenCV binding. See DESIGN.md for the full discussion.
type Backend string

const (
	BackendCSRT    Backend = "csrt"
	BackendKCF     Backend = "kcf"
	BackendMIL     Backend = "mil"
	BackendIoUOnly Backend = "iou_only" // no inter-frame carry-forward; rely purely on the next detection
)

// CorrelationTracker is a minimal template-matching single-object
// tracker: it keeps a small grayscale patch from the last known box and,
// on each Step, searches a local neighborhood in the new frame for the
// best-matching offset (sum of absolute differences). It is a stand-in
// for csrt/kcf/mil when no OpenCV binding is available, good enough to
// bridge a handful of frames between detector passes.
type CorrelationTracker struct {
	template []byte
	tw, th   int
	bbox     [4]float32
}

// Init captures the tracking template from the current frame and box.
func (c *CorrelationTracker) Init(gray []byte, stride int, bbox [4]float32) {
	c.bbox = bbox
	x1, y1 := int(bbox[0]), int(bbox[1])
	x2, y2 := int(bbox[2]), int(bbox[3])
	c.tw, c.th = x2-x1, y2-y1
	if c.tw <= 0 || c.th <= 0 {
		c.template = nil
		return
	}
	c.template = make([]byte, c.tw*c.th)
	for y := 0; y < c.th; y++ {
		copy(c.template[y*c.tw:(y+1)*c.tw], gray[(y1+y)*stride+x1:(y1+y)*stride+x1+c.tw])
	}
}

// Step searches a small neighborhood around the previous box in the new
// frame and returns the updated box. ok is false if the template was
// never initialized or the search region falls outside the frame.
func (c *CorrelationTracker) Step(gray []byte, stride, width, height int) (bbox [4]float32, ok bool) {
	if c.template == nil || c.tw <= 0 || c.th <= 0 {
		return c.bbox, false
	}

	const searchRadius = 12
	bestSAD := -1
	bestDX, bestDY := 0, 0

	x1, y1 := int(c.bbox[0]), int(c.bbox[1])

	for dy := -searchRadius; dy <= searchRadius; dy += 2 {
		for dx := -searchRadius; dx <= searchRadius; dx += 2 {
			nx, ny := x1+dx, y1+dy
			if nx < 0 || ny < 0 || nx+c.tw > width || ny+c.th > height {
				continue
			}
			sad := sumAbsDiff(gray, stride, nx, ny, c.template, c.tw, c.th)
			if bestSAD < 0 || sad < bestSAD {
				bestSAD = sad
				bestDX, bestDY = dx, dy
			}
		}
	}

	if bestSAD < 0 {
		return c.bbox, false
	}

	newX1 := float32(x1 + bestDX)
	newY1 := float32(y1 + bestDY)
	w := c.bbox[2] - c.bbox[0]
	h := c.bbox[3] - c.bbox[1]
	c.bbox = [4]float32{newX1, newY1, newX1 + w, newY1 + h}
	return c.bbox, true
}

func sumAbsDiff(gray []byte, stride, x0, y0 int, template []byte, tw, th int) int {
	sum := 0
	for y := 0; y < th; y++ {
		rowOff := (y0+y)*stride + x0
		trowOff := y * tw
		for x := 0; x < tw; x++ {
			d := int(gray[rowOff+x]) - int(template[trowOff+x])
			if d < 0 {
				d = -d
			}
			sum += d
		}
	}
	return sum
}

// rectFromImage clamps a box to an image's bounds, used before cropping a
// new template after a detector re-acquire.
func rectFromImage(img image.Image, bbox [4]float32) image.Rectangle {
	b := img.Bounds()
	x1, y1, x2, y2 := int(bbox[0]), int(bbox[1]), int(bbox[2]), int(bbox[3])
	if x1 < b.Min.X {
		x1 = b.Min.X
	}
	if y1 < b.Min.Y {
		y1 = b.Min.Y
	}
	if x2 > b.Max.X {
		x2 = b.Max.X
	}
	if y2 > b.Max.Y {
		y2 = b.Max.Y
	}
	return image.Rect(x1, y1, x2, y2)
}
