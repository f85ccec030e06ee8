package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for all three binaries (api, ingestor,
// worker). Each binary loads the same file and only reads the sections it
// needs.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	NATS      NATSConfig      `yaml:"nats"`
	MinIO     MinIOConfig     `yaml:"minio"`
	Vision    VisionConfig    `yaml:"vision"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Arbiter   ArbiterConfig   `yaml:"arbiter"`
	Debounce  DebounceConfig  `yaml:"debounce"`
	AntiSpoof AntiSpoofConfig `yaml:"anti_spoof"`
	ERP       ERPConfig       `yaml:"erp"`
	Relay     RelayConfig     `yaml:"relay"`
	Voice     VoiceConfig     `yaml:"voice"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// VoiceConfig governs the per-company voice-greeting event log.
type VoiceConfig struct {
	MaxEvents int `yaml:"voice_max_events"`

	// NameOverrides maps a lowercased, honorific-stripped first name to the
	// exact text the kiosk should greet that person by, for names the
	// stopword-stripping heuristic gets wrong (e.g. a name that is itself a
	// stopword-shaped token).
	NameOverrides map[string]string `yaml:"voice_name_overrides"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// VisionConfig holds detector/embedder model and runtime knobs.
type VisionConfig struct {
	ModelsDir           string  `yaml:"models_dir"`
	UseGPU              bool    `yaml:"use_gpu"`
	ORTProvider         string  `yaml:"ort_provider"` // auto|cuda|tensorrt|cpu
	DetectionThreshold  float64 `yaml:"detection_threshold"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	StrictSimThreshold  float64 `yaml:"strict_similarity_threshold"`
	BorderlineMargin    float64 `yaml:"borderline_margin"`
	DistinctSimMargin   float64 `yaml:"distinct_sim_margin"`
	MinAttQuality       float64 `yaml:"min_att_quality"`
	AIFPS               int     `yaml:"ai_fps"`
	AIDetSize           int     `yaml:"ai_det_size"`
	IntraOpThreads      int     `yaml:"intra_op_threads"`
	InterOpThreads      int     `yaml:"inter_op_threads"`
	GalleryRefreshSec   float64 `yaml:"gallery_refresh_seconds"`
	KPSMaxAgeSeconds    float64 `yaml:"kps_max_age_seconds"`
	WorkerCount         int     `yaml:"worker_count"`
	FrameWidth          int     `yaml:"frame_width"`
}

// TrackingConfig governs the tracker manager.
type TrackingConfig struct {
	MaxAgeFrames                   int           `yaml:"track_max_age_frames"`
	MaxDetMissesUnknown             int           `yaml:"track_max_det_misses_unknown"`
	MaxDetMissesKnown               int           `yaml:"track_max_det_misses_known"`
	IoUMatchThreshold               float32       `yaml:"track_iou_match_threshold"`
	CenterMatchPx                   float32       `yaml:"track_center_match_px"`
	AreaRatioMin                    float32       `yaml:"track_area_ratio_min"`
	AreaRatioMax                    float32       `yaml:"track_area_ratio_max"`
	KnownReacquireClearIoU          float32       `yaml:"track_known_reacquire_clear_iou"`
	KnownReacquireClearCenterRatio  float32       `yaml:"track_known_reacquire_clear_center_ratio"`
	ReRecognizeInterval             time.Duration `yaml:"re_recognize_interval"`
	EmbedRefreshSeconds             float64       `yaml:"embed_refresh_seconds"`
	EmbedRefreshSecondsUnknown      float64       `yaml:"embed_refresh_seconds_unknown"`
	IdentityHoldSeconds             float64       `yaml:"identity_hold_seconds"`
	IdentityHoldMaxDetMisses        int           `yaml:"identity_hold_max_det_misses"`
	IdentityHoldMinIoU              float32       `yaml:"identity_hold_min_iou"`
	IdentityHoldMaxCenterShiftRatio float32       `yaml:"identity_hold_max_center_shift_ratio"`
	StableIDConfirmations           int           `yaml:"stable_id_confirmations"`
	UnknownBurstAfterSeconds        float64       `yaml:"unknown_burst_after_seconds"`
	Backend                         string        `yaml:"tracker_backend"` // csrt|kcf|mil|iou_only
}

// SchedulerConfig governs the adaptive motion-gated detection scheduler.
type SchedulerConfig struct {
	DetectionFPSIdle   float64 `yaml:"detection_fps_idle"`
	DetectionFPSNormal float64 `yaml:"detection_fps_normal"`
	DetectionFPSBurst  float64 `yaml:"detection_fps_burst"`
	BurstSeconds       float64 `yaml:"burst_seconds"`
	IdleSeconds        float64 `yaml:"idle_seconds"`
	MotionThreshold    float64 `yaml:"motion_threshold"`
	MotionHysteresis   float64 `yaml:"motion_hysteresis_ratio"`
	MotionCooldownSec  float64 `yaml:"motion_cooldown_seconds"`
	MotionResizeW      int     `yaml:"motion_resize_w"`
	MotionResizeH      int     `yaml:"motion_resize_h"`
}

// ArbiterConfig governs the single-resource GPU arbiter.
type ArbiterConfig struct {
	QueueSize                int     `yaml:"gpu_queue_size"`
	MaxDetectionResultAgeSec float64 `yaml:"max_detection_result_age_seconds"`
}

// DebounceConfig governs the attendance debouncer.
type DebounceConfig struct {
	AttendanceDebounceSeconds float64 `yaml:"attendance_debounce_seconds"`
	VerificationSamples       int     `yaml:"verification_samples"`
	MinIdentityAgeSeconds     float64 `yaml:"attendance_min_identity_age_seconds"`
	MaxEmbedAgeSeconds        float64 `yaml:"attendance_max_embed_age_seconds"`

	// SimilarityThreshold and BorderlineMargin mirror vision's thresholds of
	// the same name: a verification sample only counts as a "vote" once its
	// score clears similarity_threshold+borderline_margin, and the sample
	// set's mean score must clear the same bar before the debouncer
	// confirms a mark. Defaulted from vision's own thresholds so a deployer
	// who never sets these gets the same bar used for display/identity.
	SimilarityThreshold float64 `yaml:"debounce_similarity_threshold"`
	BorderlineMargin    float64 `yaml:"debounce_borderline_margin"`
}

// AntiSpoofConfig governs the liveness/anti-spoof gate.
type AntiSpoofConfig struct {
	ModelPath       string  `yaml:"model_path"`
	FASThreshold    float64 `yaml:"fas_threshold"`
	MinYawRange     float64 `yaml:"min_yaw_range"`
	MotionWindowSec float64 `yaml:"motion_window_sec"`
	CooldownSec     float64 `yaml:"cooldown_sec"`
	BypassLaptop    bool    `yaml:"bypass_laptop"`
	HeuristicsOnly  bool    `yaml:"heuristics_only"`
}

// ERPConfig governs the ERP push queue / client.
type ERPConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIPrefix   string  `yaml:"api_prefix"`
	APIVersion  string  `yaml:"api_version"`
	MaxRetries  int     `yaml:"max_retries"`
	RetrySleepS float64 `yaml:"retry_sleep_s"`
	QueueSize   int     `yaml:"queue_size"`
}

// RelayConfig governs the turnstile/door relay side-effect.
type RelayConfig struct {
	URL            string  `yaml:"url"`
	MinIntervalSec float64 `yaml:"relay_min_interval_s"`
	TimeoutSec     float64 `yaml:"timeout_s"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Vision.WorkerCount == 0 {
		cfg.Vision.WorkerCount = 6
	}
	if cfg.Vision.FrameWidth == 0 {
		cfg.Vision.FrameWidth = 640
	}
	if cfg.Vision.AIFPS == 0 {
		cfg.Vision.AIFPS = 8
	}
	if cfg.Vision.AIDetSize == 0 {
		cfg.Vision.AIDetSize = 640
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.SimilarityThreshold == 0 {
		cfg.Vision.SimilarityThreshold = 0.35
	}
	if cfg.Vision.StrictSimThreshold == 0 {
		cfg.Vision.StrictSimThreshold = 0.50
	}
	if cfg.Vision.BorderlineMargin == 0 {
		cfg.Vision.BorderlineMargin = 0.05
	}
	if cfg.Vision.DistinctSimMargin == 0 {
		cfg.Vision.DistinctSimMargin = 0.08
	}
	if cfg.Vision.MinAttQuality == 0 {
		cfg.Vision.MinAttQuality = 0.4
	}
	if cfg.Vision.GalleryRefreshSec == 0 {
		cfg.Vision.GalleryRefreshSec = 60
	}
	if cfg.Vision.KPSMaxAgeSeconds == 0 {
		cfg.Vision.KPSMaxAgeSeconds = 1.5
	}
	if cfg.Tracking.MaxAgeFrames == 0 {
		cfg.Tracking.MaxAgeFrames = 30
	}
	if cfg.Tracking.MaxDetMissesUnknown == 0 {
		cfg.Tracking.MaxDetMissesUnknown = 5
	}
	if cfg.Tracking.MaxDetMissesKnown == 0 {
		cfg.Tracking.MaxDetMissesKnown = 12
	}
	if cfg.Tracking.IoUMatchThreshold == 0 {
		cfg.Tracking.IoUMatchThreshold = 0.3
	}
	if cfg.Tracking.CenterMatchPx == 0 {
		cfg.Tracking.CenterMatchPx = 80
	}
	if cfg.Tracking.AreaRatioMin == 0 {
		cfg.Tracking.AreaRatioMin = 0.3
	}
	if cfg.Tracking.AreaRatioMax == 0 {
		cfg.Tracking.AreaRatioMax = 3.0
	}
	if cfg.Tracking.KnownReacquireClearIoU == 0 {
		cfg.Tracking.KnownReacquireClearIoU = 0.2
	}
	if cfg.Tracking.KnownReacquireClearCenterRatio == 0 {
		cfg.Tracking.KnownReacquireClearCenterRatio = 0.3
	}
	if cfg.Tracking.ReRecognizeInterval == 0 {
		cfg.Tracking.ReRecognizeInterval = 3 * time.Second
	}
	if cfg.Tracking.EmbedRefreshSeconds == 0 {
		cfg.Tracking.EmbedRefreshSeconds = 2.0
	}
	if cfg.Tracking.EmbedRefreshSecondsUnknown == 0 {
		cfg.Tracking.EmbedRefreshSecondsUnknown = 0.8
	}
	if cfg.Tracking.IdentityHoldSeconds == 0 {
		cfg.Tracking.IdentityHoldSeconds = 4.0
	}
	if cfg.Tracking.IdentityHoldMaxDetMisses == 0 {
		cfg.Tracking.IdentityHoldMaxDetMisses = 6
	}
	if cfg.Tracking.IdentityHoldMinIoU == 0 {
		cfg.Tracking.IdentityHoldMinIoU = 0.3
	}
	if cfg.Tracking.IdentityHoldMaxCenterShiftRatio == 0 {
		cfg.Tracking.IdentityHoldMaxCenterShiftRatio = 0.4
	}
	if cfg.Tracking.StableIDConfirmations == 0 {
		cfg.Tracking.StableIDConfirmations = 3
	}
	if cfg.Tracking.UnknownBurstAfterSeconds == 0 {
		cfg.Tracking.UnknownBurstAfterSeconds = 5.0
	}
	if cfg.Tracking.Backend == "" {
		cfg.Tracking.Backend = "iou_only"
	}
	if cfg.Scheduler.DetectionFPSNormal == 0 {
		cfg.Scheduler.DetectionFPSNormal = 3
	}
	if cfg.Scheduler.DetectionFPSBurst == 0 {
		cfg.Scheduler.DetectionFPSBurst = 10
	}
	if cfg.Scheduler.BurstSeconds == 0 {
		cfg.Scheduler.BurstSeconds = 6
	}
	if cfg.Scheduler.IdleSeconds == 0 {
		cfg.Scheduler.IdleSeconds = 8
	}
	if cfg.Scheduler.MotionThreshold == 0 {
		cfg.Scheduler.MotionThreshold = 0.02
	}
	if cfg.Scheduler.MotionHysteresis == 0 {
		cfg.Scheduler.MotionHysteresis = 0.5
	}
	if cfg.Scheduler.MotionCooldownSec == 0 {
		cfg.Scheduler.MotionCooldownSec = 1.0
	}
	if cfg.Scheduler.MotionResizeW == 0 {
		cfg.Scheduler.MotionResizeW = 160
	}
	if cfg.Scheduler.MotionResizeH == 0 {
		cfg.Scheduler.MotionResizeH = 90
	}
	if cfg.Arbiter.QueueSize == 0 {
		cfg.Arbiter.QueueSize = 3
	}
	if cfg.Arbiter.MaxDetectionResultAgeSec == 0 {
		cfg.Arbiter.MaxDetectionResultAgeSec = 2.0
	}
	if cfg.Debounce.AttendanceDebounceSeconds == 0 {
		cfg.Debounce.AttendanceDebounceSeconds = 10
	}
	if cfg.Debounce.VerificationSamples == 0 {
		cfg.Debounce.VerificationSamples = 1
	}
	if cfg.Debounce.MinIdentityAgeSeconds == 0 {
		cfg.Debounce.MinIdentityAgeSeconds = 0.5
	}
	if cfg.Debounce.MaxEmbedAgeSeconds == 0 {
		cfg.Debounce.MaxEmbedAgeSeconds = 2.0
	}
	if cfg.Debounce.SimilarityThreshold == 0 {
		cfg.Debounce.SimilarityThreshold = cfg.Vision.SimilarityThreshold
	}
	if cfg.Debounce.BorderlineMargin == 0 {
		cfg.Debounce.BorderlineMargin = cfg.Vision.BorderlineMargin
	}
	if cfg.AntiSpoof.FASThreshold == 0 {
		cfg.AntiSpoof.FASThreshold = 0.6
	}
	if cfg.AntiSpoof.MinYawRange == 0 {
		cfg.AntiSpoof.MinYawRange = 8.0
	}
	if cfg.AntiSpoof.MotionWindowSec == 0 {
		cfg.AntiSpoof.MotionWindowSec = 2.5
	}
	if cfg.AntiSpoof.CooldownSec == 0 {
		cfg.AntiSpoof.CooldownSec = 30
	}
	if cfg.ERP.MaxRetries == 0 {
		cfg.ERP.MaxRetries = 3
	}
	if cfg.ERP.RetrySleepS == 0 {
		cfg.ERP.RetrySleepS = 2
	}
	if cfg.ERP.QueueSize == 0 {
		cfg.ERP.QueueSize = 500
	}
	if cfg.ERP.APIPrefix == "" {
		cfg.ERP.APIPrefix = "/api/v1"
	}
	if cfg.Relay.MinIntervalSec == 0 {
		cfg.Relay.MinIntervalSec = 3
	}
	if cfg.Relay.TimeoutSec == 0 {
		cfg.Relay.TimeoutSec = 1.5
	}
	if cfg.Voice.MaxEvents == 0 {
		cfg.Voice.MaxEvents = 256
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	strVal := func(env string, dst *string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	intVal := func(env string, dst *int) {
		if v := os.Getenv(env); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	floatVal := func(env string, dst *float64) {
		if v := os.Getenv(env); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	boolVal := func(env string, dst *bool) {
		if v := os.Getenv(env); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	intVal("ATT_SERVER_PORT", &cfg.Server.Port)
	strVal("ATT_API_KEY", &cfg.Server.APIKey)
	strVal("ATT_DB_HOST", &cfg.Database.Host)
	intVal("ATT_DB_PORT", &cfg.Database.Port)
	strVal("ATT_DB_NAME", &cfg.Database.Name)
	strVal("ATT_DB_USER", &cfg.Database.User)
	strVal("ATT_DB_PASSWORD", &cfg.Database.Password)
	strVal("ATT_NATS_URL", &cfg.NATS.URL)
	strVal("ATT_MINIO_ENDPOINT", &cfg.MinIO.Endpoint)
	strVal("ATT_MINIO_ACCESS_KEY", &cfg.MinIO.AccessKey)
	strVal("ATT_MINIO_SECRET_KEY", &cfg.MinIO.SecretKey)
	strVal("ATT_MINIO_BUCKET", &cfg.MinIO.Bucket)
	strVal("ATT_MODELS_DIR", &cfg.Vision.ModelsDir)
	intVal("ATT_VISION_WORKER_COUNT", &cfg.Vision.WorkerCount)
	boolVal("ATT_USE_GPU", &cfg.Vision.UseGPU)
	strVal("ATT_ORT_PROVIDER", &cfg.Vision.ORTProvider)
	intVal("ATT_AI_FPS", &cfg.Vision.AIFPS)
	intVal("ATT_AI_DET_SIZE", &cfg.Vision.AIDetSize)
	floatVal("ATT_SIMILARITY_THRESHOLD", &cfg.Vision.SimilarityThreshold)
	floatVal("ATT_STRICT_SIM_THRESHOLD", &cfg.Vision.StrictSimThreshold)
	floatVal("ATT_BORDERLINE_MARGIN", &cfg.Vision.BorderlineMargin)
	floatVal("ATT_MIN_ATT_QUALITY", &cfg.Vision.MinAttQuality)
	floatVal("ATT_ATTENDANCE_DEBOUNCE_SECONDS", &cfg.Debounce.AttendanceDebounceSeconds)
	intVal("ATT_STABLE_ID_CONFIRMATIONS", &cfg.Tracking.StableIDConfirmations)
	intVal("ATT_VERIFICATION_SAMPLES", &cfg.Debounce.VerificationSamples)
	floatVal("ATT_DEBOUNCE_SIMILARITY_THRESHOLD", &cfg.Debounce.SimilarityThreshold)
	floatVal("ATT_DEBOUNCE_BORDERLINE_MARGIN", &cfg.Debounce.BorderlineMargin)
	intVal("ATT_GPU_QUEUE_SIZE", &cfg.Arbiter.QueueSize)
	floatVal("ATT_MOTION_THRESHOLD", &cfg.Scheduler.MotionThreshold)
	floatVal("ATT_DETECTION_FPS_NORMAL", &cfg.Scheduler.DetectionFPSNormal)
	floatVal("ATT_DETECTION_FPS_BURST", &cfg.Scheduler.DetectionFPSBurst)
	floatVal("ATT_BURST_SECONDS", &cfg.Scheduler.BurstSeconds)
	floatVal("ATT_EMBED_REFRESH_SECONDS", &cfg.Tracking.EmbedRefreshSeconds)
	floatVal("ATT_FAS_THRESHOLD", &cfg.AntiSpoof.FASThreshold)
	strVal("ATT_ERP_BASE_URL", &cfg.ERP.BaseURL)
	strVal("ATT_RELAY_URL", &cfg.Relay.URL)
	intVal("ATT_VOICE_MAX_EVENTS", &cfg.Voice.MaxEvents)
}
