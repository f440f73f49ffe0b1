package vision

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIOU(t *testing.T) {
	a := [4]float32{0, 0, 10, 10}
	assert.InDelta(t, 1.0, iou(a, a), 1e-6)
	assert.InDelta(t, 0.0, iou(a, [4]float32{20, 20, 30, 30}), 1e-6)
	// 5x10 overlap of two 100-area boxes: 50 / 150.
	assert.InDelta(t, 1.0/3.0, iou(a, [4]float32{5, 0, 15, 10}), 1e-6)
}

func TestNMS(t *testing.T) {
	dets := []detection{
		{BBox: [4]float32{0, 0, 10, 10}, Confidence: 0.7},
		{BBox: [4]float32{1, 1, 11, 11}, Confidence: 0.9},
		{BBox: [4]float32{50, 50, 60, 60}, Confidence: 0.8},
	}
	out := nms(dets, 0.4)

	require.Len(t, out, 2)
	assert.Equal(t, float32(0.9), out[0].Confidence)
	assert.Equal(t, float32(0.8), out[1].Confidence)
}

func TestDecodeDetections(t *testing.T) {
	// 32x32 input: stride 8 -> 4x4x2 anchors, 16 -> 2x2x2, 32 -> 1x1x2.
	const in = 32
	sizes := []int{32, 8, 2}
	outs := make([][]float32, 9)
	for i, n := range sizes {
		outs[i] = make([]float32, n)
		outs[i+3] = make([]float32, n*4)
		outs[i+6] = make([]float32, n*10)
	}

	// Stride 8, cell (1,1), first anchor: index (1*4+1)*2 = 10.
	idx := 10
	outs[0][idx] = 0.95
	copy(outs[3][idx*4:], []float32{1, 1, 1, 1})
	for li := 0; li < 5; li++ {
		outs[6][idx*10+li*2] = 0.25
		outs[6][idx*10+li*2+1] = 0.25
	}
	// Below threshold, ignored.
	outs[1][0] = 0.1

	// Original image twice the input size.
	dets := decodeDetections(outs, 0.5, in, in, 2*in, 2*in)
	require.Len(t, dets, 1)

	d := dets[0]
	assert.Equal(t, float32(0.95), d.Confidence)
	// Anchor (8,8), distances of one stride, scaled by 2.
	assert.Equal(t, [4]float32{0, 0, 32, 32}, d.BBox)
	assert.Equal(t, [2]float32{20, 20}, d.Landmarks[0])

	face := d.toFace(image.Pt(0, 0))
	assert.Equal(t, image.Rect(0, 0, 32, 32), face.Box)
	require.Len(t, face.Landmarks, 5)
	for _, p := range face.Landmarks {
		assert.True(t, p.In(face.Box))
	}
}

func TestDecodeDetections_ClampsToImage(t *testing.T) {
	const in = 32
	sizes := []int{32, 8, 2}
	outs := make([][]float32, 9)
	for i, n := range sizes {
		outs[i] = make([]float32, n)
		outs[i+3] = make([]float32, n*4)
		outs[i+6] = make([]float32, n*10)
	}
	outs[2][0] = 0.9
	copy(outs[5], []float32{5, 5, 5, 5})

	dets := decodeDetections(outs, 0.5, in, in, in, in)
	require.Len(t, dets, 1)
	assert.Equal(t, [4]float32{0, 0, in, in}, dets[0].BBox)
}

func TestImageToCHW(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 128, B: 0, A: 255})
		}
	}

	data := imageToCHW(img, 2, 2, 127.5, 127.5)
	require.Len(t, data, 12)
	for i := 0; i < 4; i++ {
		assert.InDelta(t, 1.0, data[i], 1e-3)
		assert.InDelta(t, 0.0039, data[4+i], 1e-3)
		assert.InDelta(t, -1.0, data[8+i], 1e-3)
	}
}

func TestCropFace(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))

	crop := cropFace(img, image.Rect(20, 20, 70, 70))
	require.NotNil(t, crop)
	assert.Equal(t, 60, crop.Bounds().Dx())
	assert.Equal(t, 60, crop.Bounds().Dy())

	// Padding is clipped at the image edge.
	crop = cropFace(img, image.Rect(0, 0, 50, 50))
	require.NotNil(t, crop)
	assert.Equal(t, 55, crop.Bounds().Dx())

	assert.Nil(t, cropFace(img, image.Rect(200, 200, 250, 250)))
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	normalize(v)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	normalize(zero)
	assert.False(t, math.IsNaN(float64(zero[0])))
}

func TestJPEGRoundTrip(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	data, err := EncodeJPEG(img, 90)
	require.NoError(t, err)

	decoded, err := DecodeJPEG(data)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())

	_, err = DecodeJPEG([]byte("not a jpeg"))
	assert.Error(t, err)
	_, err = DecodeImage([]byte("not an image"))
	assert.Error(t, err)
}
