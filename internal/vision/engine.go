package vision

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/observability"
)

const (
	DetectorModel = "det_10g.onnx"
	EmbedderModel = "w600k_r50.onnx"
)

// InitRuntime loads the ONNX Runtime shared library. Call once per process
// before NewEngine, and DestroyRuntime on exit.
func InitRuntime(libPath string) error {
	if libPath == "" {
		libPath = defaultLibPath()
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnx runtime: %w", err)
	}
	return nil
}

func DestroyRuntime() {
	if err := ort.DestroyEnvironment(); err != nil {
		slog.Warn("destroy onnx runtime", "error", err)
	}
}

func defaultLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

// Engine is the face detector and encoder used by the gallery, the liveness
// gate and the recognition pipeline. Calls are serialised because the
// sessions share pre-bound tensors.
type Engine struct {
	mu       sync.Mutex
	detector *Detector
	embedder *Embedder
}

func NewEngine(cfg config.VisionConfig) (*Engine, error) {
	detPath := filepath.Join(cfg.ModelsDir, DetectorModel)
	embPath := filepath.Join(cfg.ModelsDir, EmbedderModel)

	slog.Info("loading detection model", "path", detPath)
	det, err := NewDetector(detPath, float32(cfg.DetectionThreshold), nil)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := NewEmbedder(embPath, nil)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	slog.Info("vision engine ready")
	return &Engine{detector: det, embedder: emb}, nil
}

func (e *Engine) Detect(ctx context.Context, img image.Image) ([]models.Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	faces, err := e.detector.Detect(img)
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	return faces, err
}

func (e *Engine) Encode(ctx context.Context, img image.Image, face models.Face) (models.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	emb, err := e.embedder.Encode(img, face)
	observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
	return emb, err
}

func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detector != nil {
		e.detector.Close()
	}
	if e.embedder != nil {
		e.embedder.Close()
	}
}
