package arbiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/fd/internal/config"
	"github.com/your-org/fd/internal/models"
)

func testConfig() config.ArbiterConfig {
	return config.ArbiterConfig{QueueSize: 2, MaxDetectionResultAgeSec: 0}
}

func TestSubmitRoutesThroughDetectFunc(t *testing.T) {
	detect := func(ctx context.Context, frame []byte, width, height int) ([]models.Detection, error) {
		return []models.Detection{{Confidence: 0.9}}, nil
	}
	a := New(testConfig(), detect)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	res, err := a.Submit(ctx, &models.DetectionBatch{StreamID: "cam-1", Frame: []byte("jpeg")})
	require.NoError(t, err)
	assert.Len(t, res.Detections, 1)
	assert.False(t, res.Dropped)
}

func TestSubmitRoundRobinsAcrossCameras(t *testing.T) {
	var order []string
	block := make(chan struct{})
	first := make(chan struct{})

	detect := func(ctx context.Context, frame []byte, width, height int) ([]models.Detection, error) {
		order = append(order, string(frame))
		if len(order) == 1 {
			close(first)
			<-block
		}
		return nil, nil
	}
	a := New(testConfig(), detect)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	doneA := make(chan struct{})
	go func() {
		a.Submit(ctx, &models.DetectionBatch{StreamID: "cam-a", Frame: []byte("a")})
		close(doneA)
	}()
	<-first // cam-a's batch is now being processed, blocking inside detect

	doneB := make(chan struct{})
	doneC := make(chan struct{})
	go func() {
		a.Submit(ctx, &models.DetectionBatch{StreamID: "cam-b", Frame: []byte("b")})
		close(doneB)
	}()
	go func() {
		a.Submit(ctx, &models.DetectionBatch{StreamID: "cam-c", Frame: []byte("c")})
		close(doneC)
	}()

	time.Sleep(20 * time.Millisecond) // let both b and c get enqueued before unblocking
	close(block)

	<-doneA
	<-doneB
	<-doneC

	assert.Len(t, order, 3, "expected all three batches processed")
}

func TestSubmitDropsOldestOnQueueOverflow(t *testing.T) {
	block := make(chan struct{})
	first := make(chan struct{})
	var calls int

	detect := func(ctx context.Context, frame []byte, width, height int) ([]models.Detection, error) {
		calls++
		if calls == 1 {
			close(first)
			<-block
		}
		return nil, nil
	}
	cfg := testConfig()
	cfg.QueueSize = 1
	a := New(cfg, detect)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	go a.Submit(ctx, &models.DetectionBatch{StreamID: "cam-1", Frame: []byte("first")})
	<-first // first batch is being processed; queue is now empty and free to fill

	dropped1 := make(chan models.DetectionBatchResult, 1)
	dropped2 := make(chan models.DetectionBatchResult, 1)
	go func() {
		res, _ := a.Submit(ctx, &models.DetectionBatch{StreamID: "cam-1", Frame: []byte("second")})
		dropped1 <- res
	}()
	time.Sleep(10 * time.Millisecond)
	go func() {
		res, _ := a.Submit(ctx, &models.DetectionBatch{StreamID: "cam-1", Frame: []byte("third")})
		dropped2 <- res
	}()
	time.Sleep(10 * time.Millisecond)

	res1 := <-dropped1
	assert.True(t, res1.Dropped, "expected the second batch to be dropped to make room for the third")

	close(block)
	res2 := <-dropped2
	assert.False(t, res2.Dropped, "expected the third (newest) batch to survive and be processed")
}

func TestSubmitDropsStaleResultPastMaxAge(t *testing.T) {
	detect := func(ctx context.Context, frame []byte, width, height int) ([]models.Detection, error) {
		return []models.Detection{{Confidence: 0.9}}, nil
	}
	cfg := testConfig()
	cfg.MaxDetectionResultAgeSec = 1
	a := New(cfg, detect)
	now := time.Now()
	a.Now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	batch := &models.DetectionBatch{StreamID: "cam-1", Frame: []byte("jpeg")}

	a.mu.Lock()
	a.rings["cam-1"] = &ring{buf: []*models.DetectionBatch{batch}}
	a.order = append(a.order, "cam-1")
	a.mu.Unlock()
	batch.Result = make(chan models.DetectionBatchResult, 1)
	batch.EnqueuedAt = now

	now = now.Add(2 * time.Second) // push past max_detection_result_age_seconds
	go a.Run(ctx)

	select {
	case res := <-batch.Result:
		assert.True(t, res.Dropped, "expected stale batch to be dropped")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for stale batch to be dropped")
	}
}
