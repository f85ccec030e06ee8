// Package streaming fans out per-camera JPEG frames to HTTP clients as
// MJPEG (multipart/x-mixed-replace), with an optional bounding-box overlay
// drawn from the latest recognition results. Adapted from the pack's
// MJPEGStream client-channel broadcast shape, trimmed of its own ffmpeg
// capture loop: here frames arrive already decoded from MinIO by the
// caller (this process never captures video itself).
package streaming

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Box is one overlay annotation: a face bounding box plus a label and a
// colour chosen by the caller (e.g. green for a known match, orange for
// unknown).
type Box struct {
	X1, Y1, X2, Y2 float32
	Label          string
	Color          color.RGBA
}

type trackBox struct {
	box Box
	at  time.Time
}

type cameraStream struct {
	mu        sync.RWMutex
	clients   map[chan []byte]bool
	lastFrame []byte

	overlayMu sync.RWMutex
	overlay   map[string]trackBox // keyed by track id, so multiple simultaneous faces all render
}

// Broadcaster holds the live per-camera frame fan-out state for every
// camera currently being streamed to at least one client.
type Broadcaster struct {
	mu      sync.RWMutex
	streams map[string]*cameraStream

	// OverlayMaxAge bounds how long a set of detection boxes is drawn
	// after UpdateOverlay before it's treated as stale and dropped,
	// mirroring the pipeline's own max_detection_result_age_seconds gate.
	OverlayMaxAge time.Duration
}

func NewBroadcaster(overlayMaxAge time.Duration) *Broadcaster {
	if overlayMaxAge <= 0 {
		overlayMaxAge = 2 * time.Second
	}
	return &Broadcaster{streams: make(map[string]*cameraStream), OverlayMaxAge: overlayMaxAge}
}

func (b *Broadcaster) streamFor(cameraID string) *cameraStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	cs, ok := b.streams[cameraID]
	if !ok {
		cs = &cameraStream{clients: make(map[chan []byte]bool), overlay: make(map[string]trackBox)}
		b.streams[cameraID] = cs
	}
	return cs
}

// Publish broadcasts a freshly decoded JPEG frame to every client
// currently subscribed to cameraID and records it as the latest frame for
// snapshot/late-joining-client purposes.
func (b *Broadcaster) Publish(cameraID string, frame []byte) {
	if len(frame) == 0 {
		return
	}
	cs := b.streamFor(cameraID)

	cs.mu.Lock()
	cs.lastFrame = frame
	clients := make([]chan []byte, 0, len(cs.clients))
	for ch := range cs.clients {
		clients = append(clients, ch)
	}
	cs.mu.Unlock()

	for _, ch := range clients {
		select {
		case ch <- frame:
		default:
			// slow client, drop this frame rather than block the publisher
		}
	}
}

// PutBox records trackID's latest annotation box for cameraID, stamped
// with at so stale tracks age out of the overlay on their own without
// needing an explicit removal call.
func (b *Broadcaster) PutBox(cameraID, trackID string, box Box, at time.Time) {
	cs := b.streamFor(cameraID)
	cs.overlayMu.Lock()
	cs.overlay[trackID] = trackBox{box: box, at: at}
	cs.overlayMu.Unlock()
}

// freshBoxes returns cs's currently non-stale boxes, evicting expired
// entries in the process.
func (cs *cameraStream) freshBoxes(maxAge time.Duration) []Box {
	cs.overlayMu.Lock()
	defer cs.overlayMu.Unlock()
	now := time.Now()
	out := make([]Box, 0, len(cs.overlay))
	for trackID, tb := range cs.overlay {
		if now.Sub(tb.at) > maxAge {
			delete(cs.overlay, trackID)
			continue
		}
		out = append(out, tb.box)
	}
	return out
}

// Snapshot returns the last published frame for cameraID, optionally
// burning in the current overlay boxes if they're not yet stale.
func (b *Broadcaster) Snapshot(cameraID string, withOverlay bool) []byte {
	b.mu.RLock()
	cs, ok := b.streams[cameraID]
	b.mu.RUnlock()
	if !ok {
		return nil
	}

	cs.mu.RLock()
	frame := cs.lastFrame
	cs.mu.RUnlock()
	if frame == nil {
		return nil
	}
	if !withOverlay {
		return frame
	}

	boxes := cs.freshBoxes(b.OverlayMaxAge)
	if len(boxes) == 0 {
		return frame
	}
	return drawOverlay(frame, boxes)
}

// ServeMJPEG streams cameraID as multipart/x-mixed-replace until the
// request context is cancelled.
func (b *Broadcaster) ServeMJPEG(w http.ResponseWriter, r *http.Request, cameraID string, withOverlay bool) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported by response writer")
	}

	cs := b.streamFor(cameraID)
	clientCh := make(chan []byte, 5)
	cs.mu.Lock()
	cs.clients[clientCh] = true
	lastFrame := cs.lastFrame
	cs.mu.Unlock()
	defer func() {
		cs.mu.Lock()
		delete(cs.clients, clientCh)
		cs.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if lastFrame != nil {
		if err := writeFrame(w, b.frameForWrite(cameraID, lastFrame, withOverlay)); err != nil {
			return err
		}
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return nil
		case frame, ok := <-clientCh:
			if !ok {
				return nil
			}
			if err := writeFrame(w, b.frameForWrite(cameraID, frame, withOverlay)); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}

func (b *Broadcaster) frameForWrite(cameraID string, frame []byte, withOverlay bool) []byte {
	if !withOverlay {
		return frame
	}
	b.mu.RLock()
	cs, ok := b.streams[cameraID]
	b.mu.RUnlock()
	if !ok {
		return frame
	}
	boxes := cs.freshBoxes(b.OverlayMaxAge)
	if len(boxes) == 0 {
		return frame
	}
	return drawOverlay(frame, boxes)
}

func writeFrame(w http.ResponseWriter, frame []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame)); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\r\n")
	return err
}

func drawOverlay(jpegData []byte, boxes []Box) []byte {
	img, err := jpeg.Decode(bytes.NewReader(jpegData))
	if err != nil {
		return jpegData
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	for _, box := range boxes {
		x, y := int(box.X1), int(box.Y1)
		w, h := int(box.X2-box.X1), int(box.Y2-box.Y1)
		drawBox(rgba, x, y, w, h, box.Color, 2)
		drawLabel(rgba, x, y-14, box.Label, box.Color)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: 85}); err != nil {
		return jpegData
	}
	return buf.Bytes()
}

func drawBox(img *image.RGBA, x, y, w, h int, c color.RGBA, thickness int) {
	bounds := img.Bounds()
	for t := 0; t < thickness; t++ {
		for i := x; i < x+w && i < bounds.Max.X; i++ {
			if y+t >= 0 && y+t < bounds.Max.Y && i >= 0 {
				img.Set(i, y+t, c)
			}
			if y+h-t >= 0 && y+h-t < bounds.Max.Y && i >= 0 {
				img.Set(i, y+h-t, c)
			}
		}
		for j := y; j < y+h && j < bounds.Max.Y; j++ {
			if x+t >= 0 && x+t < bounds.Max.X && j >= 0 {
				img.Set(x+t, j, c)
			}
			if x+w-t >= 0 && x+w-t < bounds.Max.X && j >= 0 {
				img.Set(x+w-t, j, c)
			}
		}
	}
}

func drawLabel(img *image.RGBA, x, y int, label string, c color.RGBA) {
	if y < 10 {
		y = 10
	}
	if x < 0 {
		x = 0
	}
	bgColor := color.RGBA{0, 0, 0, 180}
	textWidth := len(label) * 7
	for dy := -2; dy < 12; dy++ {
		for dx := -2; dx < textWidth+2; dx++ {
			px, py := x+dx, y+dy
			if px >= 0 && px < img.Bounds().Max.X && py >= 0 && py < img.Bounds().Max.Y {
				img.Set(px, py, bgColor)
			}
		}
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + 10)},
	}
	d.DrawString(label)
}
