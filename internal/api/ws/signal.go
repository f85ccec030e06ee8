package ws

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/your-org/fd/internal/models"
	"github.com/your-org/fd/internal/queue"
	"github.com/your-org/fd/internal/storage"
)

type signalMessage struct {
	Type      string                     `json:"type"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Purpose   string                     `json:"purpose,omitempty"`
	CameraID  string                     `json:"camera_id,omitempty"`
}

// SignalHandler upgrades /webrtc/signal connections to a WebSocket
// carrying SDP offer/answer and ICE candidate exchange, then wires the
// resulting peer connection's data channel as a camera frame source:
// every JPEG frame the browser pushes over the channel is stored to
// MinIO and published onto the FRAMES stream exactly as the ffmpeg
// capture loop does, so the vision pipeline can't tell the two sources
// apart. purpose distinguishes a plain viewer from an enrollment
// capture ("view", "enroll", "enroll_auto") for logging only.
type SignalHandler struct {
	minio    *storage.MinIOStore
	producer *queue.Producer
}

func NewSignalHandler(minio *storage.MinIOStore, producer *queue.Producer) *SignalHandler {
	return &SignalHandler{minio: minio, producer: producer}
}

func (h *SignalHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("webrtc signal upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var offer signalMessage
	if err := conn.ReadJSON(&offer); err != nil || offer.Type != "offer" || offer.SDP == nil {
		slog.Warn("webrtc signal: expected offer first", "error", err)
		return
	}
	purpose := offer.Purpose
	if purpose == "" {
		purpose = "view"
	}
	cameraID := offer.CameraID

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	if err != nil {
		slog.Error("create peer connection", "error", err)
		return
	}
	defer pc.Close()

	pc.OnICECandidate(func(ice *webrtc.ICECandidate) {
		if ice == nil {
			return
		}
		init := ice.ToJSON()
		_ = conn.WriteJSON(signalMessage{Type: "candidate", Candidate: &init})
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnMessage(func(m webrtc.DataChannelMessage) {
			if m.IsString || len(m.Data) == 0 {
				return
			}
			if err := h.injectFrame(cameraID, m.Data); err != nil {
				slog.Warn("inject webrtc frame", "error", err, "purpose", purpose, "camera_id", cameraID)
			}
		})
	})

	if err := pc.SetRemoteDescription(*offer.SDP); err != nil {
		slog.Error("set remote description", "error", err)
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		slog.Error("create answer", "error", err)
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		slog.Error("set local description", "error", err)
		return
	}
	if err := conn.WriteJSON(signalMessage{Type: "answer", SDP: pc.LocalDescription()}); err != nil {
		return
	}

	for {
		var in signalMessage
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		switch in.Type {
		case "candidate":
			if in.Candidate != nil {
				if err := pc.AddICECandidate(*in.Candidate); err != nil {
					slog.Warn("add ice candidate", "error", err)
				}
			}
		case "bye":
			return
		}
	}
}

// injectFrame stores one browser-submitted JPEG and publishes it onto the
// FRAMES stream under cameraID, same as a normal ffmpeg-captured frame.
func (h *SignalHandler) injectFrame(cameraID string, data []byte) error {
	if cameraID == "" {
		return fmt.Errorf("camera_id required for frame injection")
	}
	streamUUID, err := uuid.Parse(cameraID)
	if err != nil {
		return fmt.Errorf("invalid camera_id: %w", err)
	}

	ctx := context.Background()
	frameID := uuid.New()
	key := fmt.Sprintf("frames/%s/%s.jpg", cameraID, frameID.String())
	if err := h.minio.PutObject(ctx, key, data, "image/jpeg"); err != nil {
		return fmt.Errorf("upload webrtc frame: %w", err)
	}

	task := models.FrameTask{
		StreamID:  streamUUID,
		FrameID:   frameID,
		Timestamp: time.Now(),
		FrameRef:  key,
	}
	return h.producer.PublishFrame(ctx, cameraID, task)
}
