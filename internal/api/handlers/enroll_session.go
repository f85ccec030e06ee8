package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/fd/internal/enroll"
	"github.com/your-org/fd/internal/queue"
	"github.com/your-org/fd/pkg/dto"
)

// EnrollSessionHandler exposes the start/stop/status lifecycle of an
// auto-guided enrollment capture session. The capture and pose-guidance
// work itself happens client-side against the annotated preview stream;
// this handler only tracks which camera is currently enrolling whom.
type EnrollSessionHandler struct {
	mgr      *enroll.Manager
	producer *queue.Producer
}

func NewEnrollSessionHandler(mgr *enroll.Manager, producer *queue.Producer) *EnrollSessionHandler {
	return &EnrollSessionHandler{mgr: mgr, producer: producer}
}

func (h *EnrollSessionHandler) Start(c *gin.Context) {
	var req dto.EnrollSessionStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	personID, err := uuid.Parse(req.PersonID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person_id"})
		return
	}

	s, err := h.mgr.Start(req.CameraID, personID, time.Now())
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	// A fresh enrollment session wants a close look at the camera right
	// away rather than waiting for the scheduler's normal cadence to
	// notice motion.
	if h.producer != nil {
		cmd := map[string]interface{}{"action": "force_burst", "stream_id": req.CameraID}
		if cmdData, err := json.Marshal(cmd); err == nil {
			if err := h.producer.PublishControl(cmdData); err != nil {
				slog.Warn("notify workers of enrollment burst", "error", err)
			}
		}
	}

	c.JSON(http.StatusOK, sessionResponse(s))
}

func (h *EnrollSessionHandler) Stop(c *gin.Context) {
	var req dto.EnrollSessionStopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.mgr.Stop(req.CameraID, time.Now())
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, sessionResponse(s))
}

func (h *EnrollSessionHandler) Status(c *gin.Context) {
	cameraID := c.Query("camera_id")
	if cameraID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "camera_id required"})
		return
	}

	s, ok := h.mgr.Status(cameraID)
	if !ok {
		c.JSON(http.StatusOK, dto.EnrollSessionResponse{CameraID: cameraID, State: "none"})
		return
	}

	c.JSON(http.StatusOK, sessionResponse(s))
}

func sessionResponse(s *enroll.Session) dto.EnrollSessionResponse {
	resp := dto.EnrollSessionResponse{
		CameraID: s.CameraID,
		PersonID: s.PersonID.String(),
		State:    string(s.State),
	}
	if !s.StartedAt.IsZero() {
		resp.StartedAt = s.StartedAt.Format(time.RFC3339)
	}
	if !s.StoppedAt.IsZero() {
		resp.StoppedAt = s.StoppedAt.Format(time.RFC3339)
	}
	return resp
}
