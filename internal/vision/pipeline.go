package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/fd/internal/antispoof"
	"github.com/your-org/fd/internal/arbiter"
	"github.com/your-org/fd/internal/config"
	"github.com/your-org/fd/internal/debounce"
	"github.com/your-org/fd/internal/gallery"
	"github.com/your-org/fd/internal/models"
	"github.com/your-org/fd/internal/motion"
	"github.com/your-org/fd/internal/observability"
	"github.com/your-org/fd/internal/queue"
	"github.com/your-org/fd/internal/recognizer"
	"github.com/your-org/fd/internal/relay"
	"github.com/your-org/fd/internal/scheduler"
	"github.com/your-org/fd/internal/storage"
	"github.com/your-org/fd/internal/tracker"
	"github.com/your-org/fd/internal/viewers"
	"github.com/your-org/fd/internal/voice"
	"github.com/your-org/fd/internal/writer"
)

// streamState is one camera's mutable per-frame-loop state: its own
// motion gate, adaptive scheduler and track arena. Kept out of Pipeline
// itself so the hot ProcessFrame path only locks the one camera it's
// touching, not every camera's state at once.
type streamState struct {
	motion    *motion.Gate
	sched     *scheduler.Scheduler
	trackMgr  *tracker.Manager
	lastDetAt time.Time
}

// Pipeline orchestrates the full per-camera processing chain: motion
// gate → adaptive scheduler → arbitered detection → tracking →
// recognition (with hysteresis) → anti-spoof → attendance debounce →
// async persistence/ERP/relay/voice side effects.
type Pipeline struct {
	detector *Detector
	embedder *Embedder
	fas      *FASPredictor

	arb          *arbiter.Arbiter
	galleryCache *gallery.Cache
	rec          *recognizer.Recognizer
	spoof        *antispoof.Gate
	deb          *debounce.Debouncer
	voiceLog     *voice.Log
	relay        *relay.Relay
	dbWriter     *writer.DBWriter
	erpQueue     *writer.ERPQueue
	viewerReg    *viewers.Registry

	db       *storage.PostgresStore
	minio    *storage.MinIOStore
	producer *queue.Producer

	cfg      config.VisionConfig
	trackCfg config.TrackingConfig
	schedCfg config.SchedulerConfig

	mu      sync.Mutex
	streams map[string]*streamState

	// attDisabled holds the camera ids where attendance marking has been
	// explicitly turned off via the API; absence means enabled (the
	// common case shouldn't need a map entry).
	attMu       sync.Mutex
	attDisabled map[string]bool
}

// NewPipeline initialises every ONNX model and domain component and
// returns a pipeline ready to process frames. cfg carries every section
// of the configuration the orchestrator needs to wire the motion gate,
// scheduler, arbiter, recognizer, anti-spoof gate, debouncer, async
// writers, relay and voice log.
func NewPipeline(
	cfg *config.Config,
	db *storage.PostgresStore,
	minio *storage.MinIOStore,
	producer *queue.Producer,
) (*Pipeline, error) {
	detPath := filepath.Join(cfg.Vision.ModelsDir, "det_10g.onnx")
	embPath := filepath.Join(cfg.Vision.ModelsDir, "w600k_r50.onnx")
	fasPath := filepath.Join(cfg.Vision.ModelsDir, "fas.onnx")

	// Build session options to cap ORT thread usage per model session.
	// Each call to newSessionOptions() returns a fresh *ort.SessionOptions
	// that must be destroyed after the session is created.
	newSessionOptions := func() (*ort.SessionOptions, error) {
		opts, err := ort.NewSessionOptions()
		if err != nil {
			return nil, fmt.Errorf("create session options: %w", err)
		}
		if cfg.Vision.IntraOpThreads > 0 {
			if err := opts.SetIntraOpNumThreads(cfg.Vision.IntraOpThreads); err != nil {
				opts.Destroy()
				return nil, fmt.Errorf("set intra_op_threads: %w", err)
			}
		}
		if cfg.Vision.InterOpThreads > 0 {
			if err := opts.SetInterOpNumThreads(cfg.Vision.InterOpThreads); err != nil {
				opts.Destroy()
				return nil, fmt.Errorf("set inter_op_threads: %w", err)
			}
		}
		return opts, nil
	}

	slog.Info("loading detection model", "path", detPath,
		"intra_op_threads", cfg.Vision.IntraOpThreads, "inter_op_threads", cfg.Vision.InterOpThreads)
	detOpts, err := newSessionOptions()
	if err != nil {
		return nil, err
	}
	det, err := NewDetector(detPath, float32(cfg.Vision.DetectionThreshold), cfg.Vision.AIDetSize, detOpts)
	detOpts.Destroy()
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	embOpts, err := newSessionOptions()
	if err != nil {
		det.Close()
		return nil, err
	}
	emb, err := NewEmbedder(embPath, embOpts)
	embOpts.Destroy()
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	var fas *FASPredictor
	if !cfg.AntiSpoof.HeuristicsOnly {
		path := fasPath
		if cfg.AntiSpoof.ModelPath != "" {
			path = cfg.AntiSpoof.ModelPath
		}
		slog.Info("loading anti-spoof model", "path", path)
		fasOpts, err := newSessionOptions()
		if err != nil {
			det.Close()
			emb.Close()
			return nil, err
		}
		fas, err = NewFASPredictor(path, fasOpts)
		fasOpts.Destroy()
		if err != nil {
			det.Close()
			emb.Close()
			return nil, fmt.Errorf("load anti-spoof model: %w", err)
		}
	}

	galleryCache := gallery.NewCache(db, cfg.Vision.GalleryRefreshSec)

	p := &Pipeline{
		detector:     det,
		embedder:     emb,
		fas:          fas,
		galleryCache: galleryCache,
		deb:          debounce.New(cfg.Debounce),
		voiceLog:     voice.New(cfg.Voice.MaxEvents, cfg.Voice.NameOverrides),
		relay:        relay.New(cfg.Relay),
		dbWriter:     writer.NewDBWriter(db, producer, 1000),
		erpQueue:     writer.NewERPQueue(cfg.ERP, producer),
		viewerReg:    viewers.NewRegistry(),
		db:           db,
		minio:        minio,
		producer:     producer,
		cfg:          cfg.Vision,
		trackCfg:     cfg.Tracking,
		schedCfg:     cfg.Scheduler,
		streams:      make(map[string]*streamState),
		attDisabled:  make(map[string]bool),
	}

	p.rec = recognizer.New(p.embedFace, galleryCache, cfg.Vision)

	var fasScore antispoof.FASScoreFunc
	if fas != nil {
		fasScore = p.scoreLiveness
	}
	p.spoof = antispoof.New(cfg.AntiSpoof, fasScore)

	p.arb = arbiter.New(cfg.Arbiter, p.detectFaces)

	slog.Info("vision pipeline ready")
	return p, nil
}

// Run starts the pipeline's background loops (GPU arbiter, gallery
// cache refresh, async DB/ERP writers), each in its own goroutine, and
// returns at once; the loops stop when ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	go p.arb.Run(ctx)
	go p.galleryCache.Run(ctx)
	go p.dbWriter.Run(ctx, 5*time.Second)
	go p.erpQueue.Run(ctx)
}

// Viewers exposes the viewer refcount registry to the API/transport
// layer so websocket/long-poll handlers can Join/release without the
// pipeline needing to know about transport-layer connections.
func (p *Pipeline) Viewers() *viewers.Registry { return p.viewerReg }

// VoiceLog exposes the voice-greeting event log for the kiosk long-poll
// endpoint.
func (p *Pipeline) VoiceLog() *voice.Log { return p.voiceLog }

// SetAttendanceEnabled turns attendance marking for streamID on or off.
// Recognition and tracking keep running either way; only the debounce ->
// mark step is gated, so headcount/OT viewers of the same camera are
// unaffected.
func (p *Pipeline) SetAttendanceEnabled(streamID string, enabled bool) {
	p.attMu.Lock()
	defer p.attMu.Unlock()
	if enabled {
		delete(p.attDisabled, streamID)
	} else {
		p.attDisabled[streamID] = true
	}
}

// AttendanceEnabled reports whether streamID currently marks attendance.
// Cameras default to enabled.
func (p *Pipeline) AttendanceEnabled(streamID string) bool {
	p.attMu.Lock()
	defer p.attMu.Unlock()
	return !p.attDisabled[streamID]
}

// ForceBurst raises streamID's detection cadence on its next frame,
// regardless of motion, for a reason outside the per-frame recognition
// loop (currently only "enrollment": a fresh enrollment session wants a
// closer look at the camera immediately).
func (p *Pipeline) ForceBurst(streamID, reason string) {
	st := p.streamFor(streamID)
	st.sched.ForceBurst(reason)
}

func (p *Pipeline) streamFor(streamID string) *streamState {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.streams[streamID]
	if !ok {
		st = &streamState{
			motion: motion.New(motion.Config{
				ResizeW:         p.schedCfg.MotionResizeW,
				ResizeH:         p.schedCfg.MotionResizeH,
				OnThreshold:     p.schedCfg.MotionThreshold,
				HysteresisRatio: p.schedCfg.MotionHysteresis,
				CooldownSeconds: p.schedCfg.MotionCooldownSec,
			}),
			sched:    scheduler.New(p.schedCfg),
			trackMgr: tracker.NewManager(streamID, p.trackCfg),
		}
		p.streams[streamID] = st
	}
	return st
}

// ProcessFrame handles one frame task end to end: motion gate → adaptive
// scheduler → arbitered detection → tracking → recognition → anti-spoof
// → attendance debounce → async side effects.
func (p *Pipeline) ProcessFrame(ctx context.Context, task models.FrameTask) error {
	frameData, err := p.minio.GetObject(ctx, task.FrameRef)
	if err != nil {
		return fmt.Errorf("load frame: %w", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(frameData))
	if err != nil {
		return fmt.Errorf("decode jpeg: %w", err)
	}

	bounds := img.Bounds()
	origW := bounds.Dx()
	origH := bounds.Dy()

	streamID := task.StreamID.String()
	st := p.streamFor(streamID)

	motionActive := st.motion.Observe(img)
	mode := st.sched.Tick(motionActive)
	observability.SchedulerMode.WithLabelValues(streamID).Set(modeValue(mode))

	var tracks []models.TrackSnapshot
	if st.sched.ShouldDetect(st.lastDetAt) {
		batch := &models.DetectionBatch{
			StreamID: streamID,
			Frame:    frameData,
			Width:    origW,
			Height:   origH,
		}

		res, err := p.arb.Submit(ctx, batch)
		if err != nil {
			return fmt.Errorf("submit to arbiter: %w", err)
		}
		st.lastDetAt = time.Now()
		if res.Dropped {
			return nil
		}
		if res.Err != nil {
			return fmt.Errorf("detect: %w", res.Err)
		}

		observability.FacesDetected.WithLabelValues(streamID).Add(float64(len(res.Detections)))
		tracks = st.trackMgr.Update(res.Detections, img)
	} else {
		tracks = st.trackMgr.Update(nil, img)
	}

	for _, snap := range tracks {
		if snap.IsNew {
			st.sched.ForceBurst("new_track")
		}
		if !snap.IsNew && !st.trackMgr.ShouldReEmbed(snap.TrackID, time.Now()) {
			continue
		}
		if err := p.processTrack(ctx, task, img, st, snap); err != nil {
			slog.Warn("process track", "error", err, "track", snap.TrackID, "stream_id", streamID)
		}
	}

	return nil
}

// processTrack runs recognition, anti-spoof and attendance debouncing
// for one tracked face and fires the resulting side effects.
func (p *Pipeline) processTrack(ctx context.Context, task models.FrameTask, img image.Image, st *streamState, snap models.TrackSnapshot) error {
	streamID := task.StreamID.String()
	tr := snap.TrackID

	faceCrop := cropFace(img, snap.BBox)
	if faceCrop == nil {
		return nil
	}
	faceCropBytes := encodeJPEG(faceCrop, 92)

	var companyID uuid.UUID
	if task.CollectionID != nil {
		companyID = *task.CollectionID
	}

	decision, err := p.rec.Recognize(ctx, companyID, faceCropBytes, snap.Identity)
	if err != nil {
		return fmt.Errorf("recognize: %w", err)
	}
	switch {
	case decision.IdentityFlip:
		st.sched.ForceBurst("identity_flip")
	case decision.Borderline:
		st.sched.ForceBurst("borderline")
	}

	identity := p.rec.ApplyHysteresis(snap.Identity, decision, time.Now())
	now := time.Now()
	if identity.IsKnown() {
		st.trackMgr.SetIdentity(tr, identity, p.trackCfg.IdentityHoldSeconds)
	} else {
		unknownSince := st.trackMgr.SetUnknown(tr, now)
		if now.Sub(unknownSince).Seconds() >= p.trackCfg.UnknownBurstAfterSeconds {
			st.sched.ForceBurst("unknown_persist")
		}
	}
	st.trackMgr.SetEmbedding(tr, decision.Embedding, now)

	var matchedPersonID *uuid.UUID
	var matchScore float32
	if identity.IsKnown() {
		id := identity.PersonID
		matchedPersonID = &id
		matchScore = identity.Score
		observability.FacesRecognized.WithLabelValues(streamID).Inc()
	}

	var snapshotKey string
	if snap.IsNew {
		snapshotKey = fmt.Sprintf("snapshots/%s/%s_%s.jpg", streamID, tr, time.Now().Format("20060102_150405"))
		snapshotImg := upscaleFace(faceCrop, 100)
		snapshotData := encodeJPEG(snapshotImg, 100)
		if err := p.minio.PutObject(ctx, snapshotKey, snapshotData, "image/jpeg"); err != nil {
			slog.Warn("save snapshot", "error", err)
			snapshotKey = ""
		}
	}

	result := models.DetectionResult{
		StreamID:        task.StreamID,
		TrackID:         tr,
		Timestamp:       task.Timestamp,
		BBox:            snap.BBox,
		Confidence:      snap.Confidence,
		Embedding:       decision.Embedding,
		MatchedPersonID: matchedPersonID,
		MatchScore:      matchScore,
		SnapshotKey:     snapshotKey,
		FrameKey:        task.FrameRef,
	}
	if p.producer != nil {
		if err := p.producer.PublishEvent(ctx, streamID, result); err != nil {
			slog.Error("publish event", "error", err, "track", tr)
		}
	}

	if !identity.IsKnown() || !p.rec.MeetsAttendanceQuality(decision, snap.Confidence) || !p.AttendanceEnabled(streamID) {
		return nil
	}

	yaw := EstimateYaw(snap.Keypoints)
	spoofResult := p.spoof.Observe(st.trackMgr.AntiSpoofState(tr), identity.Name, yaw, faceCropBytes)
	if !spoofResult.Passed {
		observability.AntiSpoofRejections.WithLabelValues(streamID, spoofResult.Reason).Inc()
		return nil
	}

	confirmed, verifying := p.deb.Offer(debounce.Candidate{
		CompanyID:   companyID,
		EmployeeID:  identity.PersonID,
		Score:       identity.Score,
		IdentityAge: time.Since(snap.IdentitySince),
	})
	if verifying {
		st.sched.ForceBurst("verify")
	}
	if !confirmed {
		return nil
	}

	mark := models.AttendanceMark{
		CompanyID:    companyID,
		EmployeeID:   identity.PersonID,
		EmployeeName: identity.Name,
		StreamID:     task.StreamID,
		TrackID:      tr,
		Score:        identity.Score,
		Timestamp:    task.Timestamp,
		SnapshotKey:  snapshotKey,
	}
	p.dbWriter.Enqueue(mark)
	p.erpQueue.Enqueue(mark)
	p.relay.Trigger(streamID)
	p.voiceLog.Publish(companyID, identity.PersonID, identity.Name, p.voiceLog.GreetingPhrase(identity.Name), task.Timestamp)

	return nil
}

// detectFaces is the arbiter's DetectFunc: it decodes the JPEG-encoded
// frame handed to it, preprocesses for the detector's input size and
// runs the shared ONNX detector. Only one goroutine ever calls this at a
// time, enforced by the arbiter's single worker loop.
func (p *Pipeline) detectFaces(ctx context.Context, frame []byte, width, height int) ([]models.Detection, error) {
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decode detection frame: %w", err)
	}
	start := time.Now()
	detInput := preprocessForDetection(img, p.detector.inputW, p.detector.inputH)
	observability.InferenceDuration.WithLabelValues("preprocess").Observe(time.Since(start).Seconds())

	start = time.Now()
	dets, err := p.detector.Detect(detInput, width, height)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	return ToModels(dets), nil
}

// embedFace is the recognizer's EmbedFunc: decode a JPEG face crop and
// run the shared ONNX embedder.
func (p *Pipeline) embedFace(faceCrop []byte) ([]float32, error) {
	img, err := jpeg.Decode(bytes.NewReader(faceCrop))
	if err != nil {
		return nil, fmt.Errorf("decode face crop: %w", err)
	}
	start := time.Now()
	embInput := preprocessForEmbedding(img, p.embedder.inputW, p.embedder.inputH)
	embedding, err := p.embedder.Extract(embInput)
	observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return embedding, nil
}

// scoreLiveness is the anti-spoof gate's FASScoreFunc: decode a JPEG face
// crop and run the shared ONNX anti-spoof model.
func (p *Pipeline) scoreLiveness(faceCrop []byte) (float64, error) {
	img, err := jpeg.Decode(bytes.NewReader(faceCrop))
	if err != nil {
		return 0, fmt.Errorf("decode face crop: %w", err)
	}
	faceData := preprocessForEmbedding(img, 112, 112)
	start := time.Now()
	score, err := p.fas.Score(faceData)
	observability.InferenceDuration.WithLabelValues("antispoof").Observe(time.Since(start).Seconds())
	return score, err
}

// EmbedImage extracts an embedding from a standalone enrollment image
// (used by the AddFace endpoint, outside the per-camera track loop).
func (p *Pipeline) EmbedImage(imageData []byte) ([]float32, float32, error) {
	img, err := jpeg.Decode(bytes.NewReader(imageData))
	if err != nil {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, 0, fmt.Errorf("decode image: %w", err)
		}
	}

	bounds := img.Bounds()
	origW := bounds.Dx()
	origH := bounds.Dy()

	detInput := preprocessForDetection(img, p.detector.inputW, p.detector.inputH)
	detections, err := p.detector.Detect(detInput, origW, origH)
	if err != nil {
		return nil, 0, fmt.Errorf("detect: %w", err)
	}
	if len(detections) == 0 {
		return nil, 0, fmt.Errorf("no face detected in image")
	}

	best := detections[0]
	for _, d := range detections[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}

	faceCrop := cropFace(img, best.BBox)
	if faceCrop == nil {
		return nil, 0, fmt.Errorf("failed to crop face")
	}

	embInput := preprocessForEmbedding(faceCrop, p.embedder.inputW, p.embedder.inputH)
	embedding, err := p.embedder.Extract(embInput)
	if err != nil {
		return nil, 0, fmt.Errorf("embed: %w", err)
	}

	return embedding, best.Confidence, nil
}

// Close releases all ONNX sessions.
func (p *Pipeline) Close() {
	if p.detector != nil {
		p.detector.Close()
	}
	if p.embedder != nil {
		p.embedder.Close()
	}
	if p.fas != nil {
		p.fas.Close()
	}
}

func modeValue(mode models.SchedulerMode) float64 {
	switch mode {
	case models.ModeIdle:
		return 0
	case models.ModeBurst:
		return 2
	default:
		return 1
	}
}

// --- Image preprocessing helpers ---

func preprocessForDetection(img image.Image, targetW, targetH int) []float32 {
	return imageToFloat32CHW(img, targetW, targetH, [3]float32{127.5, 127.5, 127.5}, [3]float32{128.0, 128.0, 128.0})
}

func preprocessForEmbedding(img image.Image, targetW, targetH int) []float32 {
	return imageToFloat32CHW(img, targetW, targetH, [3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5})
}

// imageToFloat32CHW resizes img to targetW×targetH and converts to CHW float32
// in a single pass, normalising as: pixel = (pixel - mean) / std.
// Direct pixel access avoids the image.Image interface overhead.
func imageToFloat32CHW(img image.Image, targetW, targetH int, mean, std [3]float32) []float32 {
	data := make([]float32, 3*targetH*targetW)
	planeSize := targetH * targetW

	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()
	minX := bounds.Min.X
	minY := bounds.Min.Y

	// Fast path: source is already *image.RGBA (most common after cropFace / SubImage)
	switch src := img.(type) {
	case *image.RGBA:
		for y := 0; y < targetH; y++ {
			srcY := minY + y*srcH/targetH
			for x := 0; x < targetW; x++ {
				srcX := minX + x*srcW/targetW
				off := src.PixOffset(srcX, srcY)
				pix := src.Pix[off : off+3 : off+3]
				idx := y*targetW + x
				data[idx] = (float32(pix[0]) - mean[0]) / std[0]             // R
				data[planeSize+idx] = (float32(pix[1]) - mean[1]) / std[1]   // G
				data[2*planeSize+idx] = (float32(pix[2]) - mean[2]) / std[2] // B
			}
		}
	case *image.YCbCr:
		for y := 0; y < targetH; y++ {
			srcY := minY + y*srcH/targetH
			for x := 0; x < targetW; x++ {
				srcX := minX + x*srcW/targetW
				yi := src.YOffset(srcX, srcY)
				ci := src.COffset(srcX, srcY)
				r8, g8, b8 := color.YCbCrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
				idx := y*targetW + x
				data[idx] = (float32(r8) - mean[0]) / std[0]
				data[planeSize+idx] = (float32(g8) - mean[1]) / std[1]
				data[2*planeSize+idx] = (float32(b8) - mean[2]) / std[2]
			}
		}
	default:
		// Slow path: generic interface (handles NRGBA, Gray, etc.)
		for y := 0; y < targetH; y++ {
			srcY := minY + y*srcH/targetH
			for x := 0; x < targetW; x++ {
				srcX := minX + x*srcW/targetW
				r, g, b, _ := img.At(srcX, srcY).RGBA()
				idx := y*targetW + x
				data[idx] = (float32(r>>8) - mean[0]) / std[0]
				data[planeSize+idx] = (float32(g>>8) - mean[1]) / std[1]
				data[2*planeSize+idx] = (float32(b>>8) - mean[2]) / std[2]
			}
		}
	}

	return data
}

// resizeImage performs nearest-neighbour resize. Returns *image.RGBA.
// Kept for callers that need an image.Image result.
func resizeImage(img image.Image, targetW, targetH int) image.Image {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))

	// Fast path for *image.RGBA source
	if src, ok := img.(*image.RGBA); ok {
		minX := bounds.Min.X
		minY := bounds.Min.Y
		for y := 0; y < targetH; y++ {
			srcY := minY + y*srcH/targetH
			for x := 0; x < targetW; x++ {
				srcX := minX + x*srcW/targetW
				sOff := src.PixOffset(srcX, srcY)
				dOff := dst.PixOffset(x, y)
				copy(dst.Pix[dOff:dOff+4], src.Pix[sOff:sOff+4])
			}
		}
		return dst
	}

	for y := 0; y < targetH; y++ {
		srcY := bounds.Min.Y + y*srcH/targetH
		for x := 0; x < targetW; x++ {
			srcX := bounds.Min.X + x*srcW/targetW
			dst.Set(x, y, img.At(srcX, srcY))
		}
	}

	return dst
}

// cropFace extracts a face region from the image given a bounding box.
func cropFace(img image.Image, bbox [4]float32) image.Image {
	bounds := img.Bounds()

	x1 := int(bbox[0])
	y1 := int(bbox[1])
	x2 := int(bbox[2])
	y2 := int(bbox[3])

	if x1 < bounds.Min.X {
		x1 = bounds.Min.X
	}
	if y1 < bounds.Min.Y {
		y1 = bounds.Min.Y
	}
	if x2 > bounds.Max.X {
		x2 = bounds.Max.X
	}
	if y2 > bounds.Max.Y {
		y2 = bounds.Max.Y
	}

	w := x2 - x1
	h := y2 - y1
	if w <= 0 || h <= 0 {
		return nil
	}

	// Add padding (10%)
	padW := int(float32(w) * 0.1)
	padH := int(float32(h) * 0.1)
	x1 -= padW
	y1 -= padH
	x2 += padW
	y2 += padH

	if x1 < bounds.Min.X {
		x1 = bounds.Min.X
	}
	if y1 < bounds.Min.Y {
		y1 = bounds.Min.Y
	}
	if x2 > bounds.Max.X {
		x2 = bounds.Max.X
	}
	if y2 > bounds.Max.Y {
		y2 = bounds.Max.Y
	}

	rect := image.Rect(x1, y1, x2, y2)

	// Zero-copy path: SubImage shares the underlying pixel buffer.
	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}

	// Fallback: generic pixel copy for types that don't support SubImage.
	crop := image.NewRGBA(image.Rect(0, 0, x2-x1, y2-y1))
	for cy := y1; cy < y2; cy++ {
		for cx := x1; cx < x2; cx++ {
			crop.Set(cx-x1, cy-y1, img.At(cx, cy))
		}
	}
	return crop
}

// upscaleFace scales up a face crop so its shortest side is at least minSize pixels.
// If the crop is already large enough, it is returned as-is.
func upscaleFace(img image.Image, minSize int) image.Image {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	shortest := w
	if h < shortest {
		shortest = h
	}
	if shortest >= minSize {
		return img
	}

	scale := float64(minSize) / float64(shortest)
	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	for y := 0; y < newH; y++ {
		for x := 0; x < newW; x++ {
			srcX := bounds.Min.X + x*w/newW
			srcY := bounds.Min.Y + y*h/newH
			dst.Set(x, y, img.At(srcX, srcY))
		}
	}
	return dst
}

// encodeJPEG encodes an image as JPEG with the given quality.
func encodeJPEG(img image.Image, quality int) []byte {
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	return buf.Bytes()
}
