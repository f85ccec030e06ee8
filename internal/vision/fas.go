package vision

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// FASPredictor scores a face crop's liveness using a binary face
// anti-spoofing ONNX model (real vs. print/replay attack). Input/output
// tensor wiring mirrors the ArcFace embedder.
type FASPredictor struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
}

// NewFASPredictor loads a liveness model expecting a 112x112 face crop
// and producing a single real-face probability.
func NewFASPredictor(modelPath string, opts *ort.SessionOptions) (*FASPredictor, error) {
	inputW, inputH := 112, 112

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create fas input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, 1)
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		return nil, fmt.Errorf("create fas output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"},
		[]string{"score"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("create fas session: %w", err)
	}

	return &FASPredictor{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputW:       inputW,
		inputH:       inputH,
	}, nil
}

// Score runs the liveness model on a face crop, returning a probability
// in [0, 1] that the crop is a live face rather than a spoof.
func (f *FASPredictor) Score(faceData []float32) (float64, error) {
	inputSlice := f.inputTensor.GetData()
	copy(inputSlice, faceData)

	if err := f.session.Run(); err != nil {
		return 0, fmt.Errorf("run fas: %w", err)
	}

	out := f.outputTensor.GetData()
	if len(out) < 1 {
		return 0, fmt.Errorf("unexpected fas output size: %d", len(out))
	}
	return float64(out[0]), nil
}

func (f *FASPredictor) Close() {
	if f.session != nil {
		f.session.Destroy()
	}
	if f.inputTensor != nil {
		f.inputTensor.Destroy()
	}
	if f.outputTensor != nil {
		f.outputTensor.Destroy()
	}
}
