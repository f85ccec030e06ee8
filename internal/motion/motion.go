// Package motion implements the CPU-only motion gate that decides whether
// a camera's frame stream is worth feeding to the adaptive scheduler at
// all. It never touches the GPU or an ONNX session.
package motion

import (
	"image"
	"image/color"
	"time"
)

// Gate tracks a single camera's motion state across frames: a downscaled
// grayscale reference frame, a hysteresis flag, and a cooldown timer so a
// single noisy frame cannot flap the gate.
type Gate struct {
	resizeW, resizeH int
	onThreshold      float64
	offThreshold     float64
	cooldown         time.Duration

	prevGray   []byte
	active     bool
	lastOnAt   time.Time
	ignoreBoxs []ignoreBox

	Now func() time.Time
}

type ignoreBox struct {
	X1, Y1, X2, Y2 int // in resized (resizeW x resizeH) coordinates
}

// Config mirrors config.SchedulerConfig's motion_* fields plus an optional
// set of ignore boxes (e.g. a wall clock or door timestamp overlay) given
// in source-frame-relative fractional coordinates [0,1].
type Config struct {
	ResizeW          int
	ResizeH          int
	OnThreshold      float64
	HysteresisRatio  float64
	CooldownSeconds  float64
	IgnoreBoxesFrac  [][4]float64
}

// New builds a Gate from config. onThreshold is the fraction of changed
// pixels (0..1) that trips motion ON; offThreshold (onThreshold *
// HysteresisRatio) is the lower bound that must be undercut before motion
// is considered OFF again, avoiding rapid on/off flapping around the edge.
func New(cfg Config) *Gate {
	w, h := cfg.ResizeW, cfg.ResizeH
	if w <= 0 {
		w = 160
	}
	if h <= 0 {
		h = 90
	}
	ratio := cfg.HysteresisRatio
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}

	g := &Gate{
		resizeW:      w,
		resizeH:      h,
		onThreshold:  cfg.OnThreshold,
		offThreshold: cfg.OnThreshold * ratio,
		cooldown:     time.Duration(cfg.CooldownSeconds * float64(time.Second)),
		Now:          time.Now,
	}
	for _, fb := range cfg.IgnoreBoxesFrac {
		g.ignoreBoxs = append(g.ignoreBoxs, ignoreBox{
			X1: int(fb[0] * float64(w)),
			Y1: int(fb[1] * float64(h)),
			X2: int(fb[2] * float64(w)),
			Y2: int(fb[3] * float64(h)),
		})
	}
	return g
}

// Observe feeds one frame to the gate and returns whether motion is
// currently active (after hysteresis). The very first frame never
// reports motion — there is nothing yet to diff against.
func (g *Gate) Observe(img image.Image) bool {
	gray := toGrayDownscaled(img, g.resizeW, g.resizeH)

	if g.prevGray == nil {
		g.prevGray = gray
		return g.active
	}

	changed := 0
	total := g.resizeW * g.resizeH
	for i := 0; i < total; i++ {
		d := int(gray[i]) - int(g.prevGray[i])
		if d < 0 {
			d = -d
		}
		if d > 25 { // per-pixel intensity delta considered "changed"
			y := i / g.resizeW
			x := i % g.resizeW
			if !g.inIgnoreBox(x, y) {
				changed++
			}
		}
	}
	g.prevGray = gray

	ratio := float64(changed) / float64(total)
	now := g.Now()

	if g.active {
		if ratio < g.offThreshold {
			if g.lastOnAt.IsZero() || now.Sub(g.lastOnAt) >= g.cooldown {
				g.active = false
			}
		} else {
			g.lastOnAt = now
		}
	} else {
		if ratio >= g.onThreshold {
			g.active = true
			g.lastOnAt = now
		}
	}

	return g.active
}

func (g *Gate) inIgnoreBox(x, y int) bool {
	for _, b := range g.ignoreBoxs {
		if x >= b.X1 && x < b.X2 && y >= b.Y1 && y < b.Y2 {
			return true
		}
	}
	return false
}

// Active reports the gate's current motion state without feeding a frame.
func (g *Gate) Active() bool { return g.active }

// toGrayDownscaled resizes img to w×h and converts to 8-bit grayscale in
// one pass, following the same fast-path-by-concrete-type approach as the
// detector/embedder preprocessors: a direct-buffer path for *image.RGBA
// and *image.YCbCr, a generic fallback for everything else.
func toGrayDownscaled(img image.Image, w, h int) []byte {
	out := make([]byte, w*h)
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()
	minX := bounds.Min.X
	minY := bounds.Min.Y

	switch src := img.(type) {
	case *image.RGBA:
		for y := 0; y < h; y++ {
			srcY := minY + y*srcH/h
			for x := 0; x < w; x++ {
				srcX := minX + x*srcW/w
				off := src.PixOffset(srcX, srcY)
				pix := src.Pix[off : off+3 : off+3]
				out[y*w+x] = byte((int(pix[0])*299 + int(pix[1])*587 + int(pix[2])*114) / 1000)
			}
		}
	case *image.YCbCr:
		for y := 0; y < h; y++ {
			srcY := minY + y*srcH/h
			for x := 0; x < w; x++ {
				srcX := minX + x*srcW/w
				yi := src.YOffset(srcX, srcY)
				out[y*w+x] = src.Y[yi]
			}
		}
	default:
		for y := 0; y < h; y++ {
			srcY := minY + y*srcH/h
			for x := 0; x < w; x++ {
				srcX := minX + x*srcW/w
				r, g2, b, _ := img.At(srcX, srcY).RGBA()
				gray := color.GrayModel.Convert(color.RGBA{uint8(r >> 8), uint8(g2 >> 8), uint8(b >> 8), 255}).(color.Gray)
				out[y*w+x] = gray.Y
			}
		}
	}
	return out
}
