package streaming

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 100, G: 100, B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestSnapshotReturnsNilForUnknownCamera(t *testing.T) {
	b := NewBroadcaster(time.Second)
	assert.Nil(t, b.Snapshot("cam-1", false), "expected nil snapshot for a camera never published to")
}

func TestSnapshotReturnsLastPublishedFrame(t *testing.T) {
	b := NewBroadcaster(time.Second)
	frame := encodeJPEG(t, 16, 16)
	b.Publish("cam-1", frame)

	got := b.Snapshot("cam-1", false)
	assert.Equal(t, frame, got, "expected snapshot to return the last published frame unchanged")
}

func TestSnapshotWithOverlayDrawsBoxesWithoutError(t *testing.T) {
	b := NewBroadcaster(time.Second)
	frame := encodeJPEG(t, 64, 64)
	b.Publish("cam-1", frame)
	b.PutBox("cam-1", "track-1", Box{X1: 5, Y1: 5, X2: 30, Y2: 30, Label: "match 0.92", Color: color.RGBA{G: 200, A: 255}}, time.Now())

	got := b.Snapshot("cam-1", true)
	assert.NotEmpty(t, got, "expected a non-empty overlaid snapshot")
	_, err := jpeg.Decode(bytes.NewReader(got))
	assert.NoError(t, err, "expected overlaid snapshot to still be a valid jpeg")
}

func TestSnapshotIgnoresStaleOverlayBoxes(t *testing.T) {
	b := NewBroadcaster(10 * time.Millisecond)
	frame := encodeJPEG(t, 32, 32)
	b.Publish("cam-1", frame)
	b.PutBox("cam-1", "track-1", Box{X1: 0, Y1: 0, X2: 10, Y2: 10, Label: "x"}, time.Now().Add(-time.Hour))

	got := b.Snapshot("cam-1", true)
	assert.Equal(t, frame, got, "expected stale overlay box to be dropped, returning the bare frame")
}

func TestPublishFansOutToSubscribedClients(t *testing.T) {
	cs := &cameraStream{clients: make(map[chan []byte]bool), overlay: make(map[string]trackBox)}
	b := &Broadcaster{streams: map[string]*cameraStream{"cam-1": cs}, OverlayMaxAge: time.Second}

	ch := make(chan []byte, 1)
	cs.clients[ch] = true

	frame := encodeJPEG(t, 8, 8)
	b.Publish("cam-1", frame)

	select {
	case got := <-ch:
		assert.Equal(t, frame, got, "expected subscriber to receive the published frame")
	default:
		t.Fatal("expected subscriber channel to receive a frame")
	}
}

func TestServeMJPEGWritesMultipartFrame(t *testing.T) {
	b := NewBroadcaster(time.Second)
	frame := encodeJPEG(t, 8, 8)
	b.Publish("cam-1", frame)

	req := httptest.NewRequest(http.MethodGet, "/camera/stream/cam-1", nil)
	ctx, cancel := context.WithTimeout(req.Context(), 20*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	err := b.ServeMJPEG(rec, req, "cam-1", false)
	require.NoError(t, err)

	assert.Equal(t, "multipart/x-mixed-replace; boundary=frame", rec.Header().Get("Content-Type"))
	assert.NotZero(t, rec.Body.Len(), "expected the last published frame to be written immediately on connect")
}
