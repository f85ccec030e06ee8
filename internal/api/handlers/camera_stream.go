package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/fd/internal/streaming"
)

// CameraStreamHandler serves live camera output: single-frame snapshots and
// MJPEG streams, with or without the recognition overlay burned in.
type CameraStreamHandler struct {
	broadcaster *streaming.Broadcaster
}

func NewCameraStreamHandler(broadcaster *streaming.Broadcaster) *CameraStreamHandler {
	return &CameraStreamHandler{broadcaster: broadcaster}
}

// Snapshot returns the most recently published frame for a camera as a
// plain JPEG.
func (h *CameraStreamHandler) Snapshot(c *gin.Context) {
	frame := h.broadcaster.Snapshot(c.Param("id"), false)
	if frame == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no frame available for camera"})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", frame)
}

// Stream serves the raw, un-annotated MJPEG feed for a camera.
func (h *CameraStreamHandler) Stream(c *gin.Context) {
	if err := h.broadcaster.ServeMJPEG(c.Writer, c.Request, c.Param("id"), false); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// RecognitionStream serves the MJPEG feed annotated with the live
// recognition overlay. camera_name and the ai_fps/companyId/type query
// params are accepted but not read; the broadcaster is keyed on
// camera_id alone.
func (h *CameraStreamHandler) RecognitionStream(c *gin.Context) {
	if err := h.broadcaster.ServeMJPEG(c.Writer, c.Request, c.Param("id"), true); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// EnrollStream serves the annotated MJPEG feed used by the auto-enrollment
// UI while a capture session is active.
func (h *CameraStreamHandler) EnrollStream(c *gin.Context) {
	if err := h.broadcaster.ServeMJPEG(c.Writer, c.Request, c.Param("id"), true); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
