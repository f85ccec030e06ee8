package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "frames_processed_total",
		Help:      "Total number of frames processed",
	}, []string{"stream_id"})

	FacesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected",
	}, []string{"stream_id"})

	FacesRecognized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "faces_recognized_total",
		Help:      "Total number of faces recognized from the gallery",
	}, []string{"stream_id"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attendance",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance",
		Name:      "queue_depth",
		Help:      "Number of pending frame tasks in queue",
	})

	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance",
		Name:      "active_streams",
		Help:      "Number of currently active video streams",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attendance",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})

	// SchedulerMode reports 0=idle 1=normal 2=burst per camera, so the
	// adaptive scheduler's state is visible without log scraping.
	SchedulerMode = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "attendance",
		Name:      "scheduler_mode",
		Help:      "Current adaptive scheduler mode per camera (0=idle 1=normal 2=burst)",
	}, []string{"stream_id"})

	ArbiterQueueDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "arbiter_queue_drops_total",
		Help:      "Detection batches dropped by the GPU arbiter due to a full per-camera ring buffer",
	}, []string{"stream_id"})

	ArbiterStaleDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "arbiter_stale_drops_total",
		Help:      "Detection results discarded because they aged out before a worker claimed them",
	}, []string{"stream_id"})

	AttendanceMarks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "attendance_marks_total",
		Help:      "Total number of attendance marks confirmed by the debouncer",
	}, []string{"company_id"})

	DebounceSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "debounce_suppressed_total",
		Help:      "Attendance candidates suppressed by the debounce window",
	}, []string{"company_id"})

	ERPRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "erp_retries_total",
		Help:      "Total number of ERP push retry attempts",
	}, []string{"company_id"})

	ERPQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance",
		Name:      "erp_queue_depth",
		Help:      "Number of pending ERP push jobs",
	})

	DBWriterQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance",
		Name:      "db_writer_queue_depth",
		Help:      "Number of pending attendance DB write jobs",
	})

	VoiceEventSeq = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "attendance",
		Name:      "voice_event_seq",
		Help:      "Latest voice-event sequence number per company",
	}, []string{"company_id"})

	AntiSpoofRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "antispoof_rejections_total",
		Help:      "Total number of anti-spoof rejections",
	}, []string{"stream_id", "reason"})

	RelayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "relay_calls_total",
		Help:      "Total number of relay side-effect calls",
	}, []string{"stream_id", "result"})

	ViewerCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "attendance",
		Name:      "viewer_count",
		Help:      "Number of active viewers per camera and stream type",
	}, []string{"stream_id", "stream_type"})
)
