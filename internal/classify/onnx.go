package classify

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	slotEdge    = 64
	numClasses  = 3
	pixelsPerCh = slotEdge * slotEdge
)

// ONNXClassifier runs the pretrained slot CNN exported to ONNX
type ONNXClassifier struct {
	logger    zerolog.Logger
	modelPath string
	session   *ort.DynamicAdvancedSession
}

// NewONNXClassifier loads the slot model from the given path
func NewONNXClassifier(logger zerolog.Logger, modelPath string) (*ONNXClassifier, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	inputNames := []string{"input"}
	outputNames := []string{"logits"}

	sess, err := ort.NewDynamicAdvancedSession(
		modelPath,
		inputNames,
		outputNames,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create slot classifier session: %w", err)
	}

	logger.Info().
		Str("model", modelPath).
		Msg("slot classifier model loaded")

	return &ONNXClassifier{
		logger:    logger.With().Str("component", "slot-classifier").Logger(),
		modelPath: modelPath,
		session:   sess,
	}, nil
}

// Classify labels a batch of slot crops in input order
func (c *ONNXClassifier) Classify(ctx context.Context, slots []image.Image) ([]Class, error) {
	if len(slots) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batch := len(slots)
	data := make([]float32, batch*3*pixelsPerCh)
	for i, slot := range slots {
		preprocessSlot(slot, data[i*3*pixelsPerCh:(i+1)*3*pixelsPerCh])
	}

	inputShape := ort.NewShape(int64(batch), 3, slotEdge, slotEdge)
	inputTensor, err := ort.NewTensor(inputShape, data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	logitsShape := ort.NewShape(int64(batch), numClasses)
	logitsTensor, err := ort.NewEmptyTensor[float32](logitsShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create logits tensor: %w", err)
	}
	defer logitsTensor.Destroy()

	inputs := []ort.ArbitraryTensor{inputTensor}
	outputs := []ort.ArbitraryTensor{logitsTensor}
	if err := c.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("slot classifier inference failed: %w", err)
	}

	logits := logitsTensor.GetData()
	if len(logits) != batch*numClasses {
		return nil, fmt.Errorf("unexpected logits length %d for batch %d", len(logits), batch)
	}

	return argmaxRows(logits, batch), nil
}

// preprocessSlot resizes a crop to 64x64 and writes it as CHW float32 RGB in [0,1]
func preprocessSlot(img image.Image, out []float32) {
	resized := resize.Resize(slotEdge, slotEdge, img, resize.Bilinear)

	bounds := resized.Bounds()
	idx := 0
	for ch := 0; ch < 3; ch++ {
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, g, b, _ := resized.At(x, y).RGBA()
				var v float32
				switch ch {
				case 0:
					v = float32(r >> 8)
				case 1:
					v = float32(g >> 8)
				case 2:
					v = float32(b >> 8)
				}
				out[idx] = v / 255.0
				idx++
			}
		}
	}
}

// argmaxRows picks the winning class per row of a batch x numClasses matrix
func argmaxRows(logits []float32, batch int) []Class {
	classes := make([]Class, batch)
	for i := 0; i < batch; i++ {
		row := logits[i*numClasses : (i+1)*numClasses]
		best := 0
		for j := 1; j < numClasses; j++ {
			if row[j] > row[best] {
				best = j
			}
		}
		classes[i] = Class(best)
	}
	return classes
}

// Close releases the session and ONNX environment
func (c *ONNXClassifier) Close() error {
	c.logger.Debug().Msg("closing slot classifier session")
	if c.session != nil {
		if err := c.session.Destroy(); err != nil {
			return err
		}
	}
	return ort.DestroyEnvironment()
}
