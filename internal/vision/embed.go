package vision

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/attendance/internal/models"
)

const (
	embInputSize = 112
	EmbeddingDim = 512
)

// Embedder extracts face embeddings with the ArcFace w600k_r50 model.
type Embedder struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

func NewEmbedder(modelPath string, opts *ort.SessionOptions) (*Embedder, error) {
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, embInputSize, embInputSize))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, EmbeddingDim))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		[]string{"683"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}

	return &Embedder{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Encode returns the L2-normalised embedding of face within img.
func (e *Embedder) Encode(img image.Image, face models.Face) (models.Embedding, error) {
	crop := cropFace(img, face.Box)
	if crop == nil {
		return nil, fmt.Errorf("face box %v outside image %v", face.Box, img.Bounds())
	}

	copy(e.inputTensor.GetData(), preprocessForEmbedding(crop, embInputSize, embInputSize))
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}

	emb := make(models.Embedding, EmbeddingDim)
	copy(emb, e.outputTensor.GetData())
	normalize(emb)
	return emb, nil
}

func (e *Embedder) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
}

// normalize performs L2 normalization in-place.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}
