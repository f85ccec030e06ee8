package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/fd/internal/queue"
	"github.com/your-org/fd/internal/storage"
	"github.com/your-org/fd/internal/voice"
	"github.com/your-org/fd/pkg/dto"
)

type AttendanceHandler struct {
	db       *storage.PostgresStore
	producer *queue.Producer
	voiceLog *voice.Log
}

func NewAttendanceHandler(db *storage.PostgresStore, producer *queue.Producer, voiceLog *voice.Log) *AttendanceHandler {
	return &AttendanceHandler{db: db, producer: producer, voiceLog: voiceLog}
}

func (h *AttendanceHandler) Enable(c *gin.Context) {
	h.setEnabled(c, true)
}

func (h *AttendanceHandler) Disable(c *gin.Context) {
	h.setEnabled(c, false)
}

func (h *AttendanceHandler) setEnabled(c *gin.Context, enabled bool) {
	id, err := uuid.Parse(c.Query("camera_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid camera_id"})
		return
	}

	if err := h.db.UpdateAttendanceEnabled(c.Request.Context(), id, enabled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	action := "attendance_enable"
	if !enabled {
		action = "attendance_disable"
	}
	cmd := map[string]interface{}{"action": action, "stream_id": id.String()}
	cmdData, _ := json.Marshal(cmd)
	if err := h.producer.PublishControl(cmdData); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to notify workers"})
		return
	}

	c.JSON(http.StatusOK, dto.AttendanceEnabledResponse{StreamID: id.String(), Enabled: enabled})
}

func (h *AttendanceHandler) Enabled(c *gin.Context) {
	id, err := uuid.Parse(c.Query("camera_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid camera_id"})
		return
	}

	st, err := h.db.GetStream(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
		return
	}

	c.JSON(http.StatusOK, dto.AttendanceEnabledResponse{StreamID: id.String(), Enabled: st.AttendanceEnabled})
}

// VoiceEvents long-polls the per-company voice-greeting log for the kiosk
// speaker client: ?after_seq&limit&wait_ms&companyId.
func (h *AttendanceHandler) VoiceEvents(c *gin.Context) {
	companyID, err := uuid.Parse(c.Query("companyId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid companyId"})
		return
	}

	afterSeq, _ := strconv.ParseUint(c.DefaultQuery("after_seq", "0"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 {
		limit = 50
	}
	waitMs, _ := strconv.Atoi(c.DefaultQuery("wait_ms", "25000"))
	deadline := time.Duration(waitMs) * time.Millisecond
	if deadline <= 0 || deadline > 300*time.Second {
		deadline = 300 * time.Second
	}

	events := h.voiceLog.Since(companyID, afterSeq, deadline)
	if len(events) > limit {
		events = events[:limit]
	}

	resp := dto.VoiceEventsResponse{Events: make([]dto.VoiceEventResponse, 0, len(events))}
	for _, ev := range events {
		resp.Events = append(resp.Events, dto.VoiceEventResponse{
			Seq:        ev.Seq,
			EmployeeID: ev.EmployeeID.String(),
			Name:       ev.Name,
			Phrase:     ev.Phrase,
			Timestamp:  ev.Timestamp.Format(time.RFC3339),
		})
		if ev.Seq > resp.LatestSeq {
			resp.LatestSeq = ev.Seq
		}
	}
	if resp.LatestSeq < afterSeq {
		resp.LatestSeq = afterSeq
	}

	c.JSON(http.StatusOK, resp)
}
