package vision

import (
	"fmt"
	"image"
	"math"
	"sort"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/attendance/internal/models"
)

// detection is a raw RetinaFace hit in original-image pixel coordinates.
type detection struct {
	BBox       [4]float32 // x1, y1, x2, y2
	Confidence float32
	Landmarks  [5][2]float32 // eyes, nose, mouth corners
}

// Detector runs RetinaFace (det_10g) face detection using ONNX Runtime.
// A Detector is not safe for concurrent use; Engine serialises calls.
type Detector struct {
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	threshold     float32
	inputW        int
	inputH        int
}

var strides = []int{8, 16, 32}

const (
	anchorsPerStride = 2
	nmsThreshold     = 0.4
	detInputSize     = 640
)

// NewDetector loads the RetinaFace ONNX model.
// opts may be nil (ORT defaults) or a pre-configured *ort.SessionOptions.
func NewDetector(modelPath string, threshold float32, opts *ort.SessionOptions) (*Detector, error) {
	inputW, inputH := detInputSize, detInputSize

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(inputH), int64(inputW)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	// det_10g outputs have no batch dimension: scores, boxes and landmarks
	// for strides 8, 16 and 32, each with (640/stride)^2 * 2 anchors.
	type outputSpec struct {
		name  string
		shape ort.Shape
	}
	outputs := []outputSpec{
		{"448", ort.NewShape(12800, 1)},
		{"471", ort.NewShape(3200, 1)},
		{"494", ort.NewShape(800, 1)},
		{"451", ort.NewShape(12800, 4)},
		{"474", ort.NewShape(3200, 4)},
		{"497", ort.NewShape(800, 4)},
		{"454", ort.NewShape(12800, 10)},
		{"477", ort.NewShape(3200, 10)},
		{"500", ort.NewShape(800, 10)},
	}

	outputNames := make([]string, len(outputs))
	outputTensors := make([]*ort.Tensor[float32], len(outputs))
	outputValues := make([]ort.Value, len(outputs))

	for i, spec := range outputs {
		outputNames[i] = spec.name
		t, err := ort.NewEmptyTensor[float32](spec.shape)
		if err != nil {
			for j := 0; j < i; j++ {
				outputTensors[j].Destroy()
			}
			inputTensor.Destroy()
			return nil, fmt.Errorf("create output tensor %d (%s): %w", i, spec.name, err)
		}
		outputTensors[i] = t
		outputValues[i] = t
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		outputNames,
		[]ort.Value{inputTensor},
		outputValues,
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		for _, t := range outputTensors {
			t.Destroy()
		}
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return &Detector{
		session:       session,
		inputTensor:   inputTensor,
		outputTensors: outputTensors,
		threshold:     threshold,
		inputW:        inputW,
		inputH:        inputH,
	}, nil
}

// Detect finds faces in img, highest confidence first.
func (d *Detector) Detect(img image.Image) ([]models.Face, error) {
	b := img.Bounds()
	copy(d.inputTensor.GetData(), preprocessForDetection(img, d.inputW, d.inputH))

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	outs := make([][]float32, len(d.outputTensors))
	for i, t := range d.outputTensors {
		outs[i] = t.GetData()
	}
	dets := decodeDetections(outs, d.threshold, d.inputW, d.inputH, b.Dx(), b.Dy())
	dets = nms(dets, nmsThreshold)

	faces := make([]models.Face, 0, len(dets))
	for _, det := range dets {
		faces = append(faces, det.toFace(b.Min))
	}
	return faces, nil
}

// decodeDetections decodes anchor-based outputs laid out as three score
// tensors, three box tensors and three landmark tensors.
func decodeDetections(outs [][]float32, threshold float32, inputW, inputH, origW, origH int) []detection {
	var dets []detection

	scaleW := float32(origW) / float32(inputW)
	scaleH := float32(origH) / float32(inputH)

	for si, stride := range strides {
		scores := outs[si]
		bboxes := outs[si+3]
		landmarks := outs[si+6]

		fmW := inputW / stride
		fmH := inputH / stride
		st := float32(stride)

		idx := 0
		for cy := 0; cy < fmH; cy++ {
			for cx := 0; cx < fmW; cx++ {
				for a := 0; a < anchorsPerStride; a++ {
					if idx >= len(scores) {
						break
					}
					if scores[idx] >= threshold {
						ax := float32(cx) * st
						ay := float32(cy) * st

						x1 := clampF((ax-bboxes[idx*4+0]*st)*scaleW, 0, float32(origW))
						y1 := clampF((ay-bboxes[idx*4+1]*st)*scaleH, 0, float32(origH))
						x2 := clampF((ax+bboxes[idx*4+2]*st)*scaleW, 0, float32(origW))
						y2 := clampF((ay+bboxes[idx*4+3]*st)*scaleH, 0, float32(origH))

						var lm [5][2]float32
						for li := 0; li < 5; li++ {
							lm[li][0] = (ax + landmarks[idx*10+li*2]*st) * scaleW
							lm[li][1] = (ay + landmarks[idx*10+li*2+1]*st) * scaleH
						}

						dets = append(dets, detection{
							BBox:       [4]float32{x1, y1, x2, y2},
							Confidence: scores[idx],
							Landmarks:  lm,
						})
					}
					idx++
				}
			}
		}
	}
	return dets
}

func (d detection) toFace(origin image.Point) models.Face {
	box := image.Rect(
		int(d.BBox[0]), int(d.BBox[1]),
		int(math.Ceil(float64(d.BBox[2]))), int(math.Ceil(float64(d.BBox[3]))),
	).Add(origin)

	lm := make([]image.Point, 0, len(d.Landmarks))
	for _, p := range d.Landmarks {
		lm = append(lm, image.Pt(int(p[0]), int(p[1])).Add(origin))
	}
	return models.Face{Box: box, Landmarks: lm, Score: d.Confidence}
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	for _, t := range d.outputTensors {
		if t != nil {
			t.Destroy()
		}
	}
}

// nms performs non-maximum suppression, returning survivors by descending
// confidence.
func nms(dets []detection, iouThreshold float32) []detection {
	if len(dets) == 0 {
		return dets
	}

	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})

	keep := make([]bool, len(dets))
	for i := range keep {
		keep[i] = true
	}
	for i := range dets {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(dets); j++ {
			if keep[j] && iou(dets[i].BBox, dets[j].BBox) > iouThreshold {
				keep[j] = false
			}
		}
	}

	var result []detection
	for i, d := range dets {
		if keep[i] {
			result = append(result, d)
		}
	}
	return result
}

func iou(a, b [4]float32) float32 {
	x1 := max(a[0], b[0])
	y1 := max(a[1], b[1])
	x2 := min(a[2], b[2])
	y2 := min(a[3], b[3])

	intersection := max(0, x2-x1) * max(0, y2-y1)
	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

func clampF(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}
