package liveness

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/attendance/internal/models"
)

type stubDetector struct {
	faces []models.Face
	err   error
	calls int
}

func (d *stubDetector) Detect(context.Context, image.Image) ([]models.Face, error) {
	d.calls++
	return d.faces, d.err
}

func flat(v uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func checkerboard() image.Image {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if (x+y)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

var landmarked = models.Face{
	Box:       image.Rect(10, 10, 50, 50),
	Landmarks: []image.Point{{20, 20}, {40, 20}, {30, 30}, {22, 40}, {38, 40}},
}

func TestNew_RejectsUnknownOrMissingMode(t *testing.T) {
	for _, m := range []Mode{"", "disabled", "LANDMARK"} {
		_, err := New(m, 0, &stubDetector{})
		assert.Error(t, err, string(m))
	}
	_, err := New(Landmark, 0, nil)
	assert.Error(t, err, "landmark mode needs a detector")

	g, err := New(Off, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, Off, g.Mode())
}

func TestHasLandmarks(t *testing.T) {
	outside := models.Face{
		Box:       image.Rect(0, 0, 10, 10),
		Landmarks: []image.Point{{5, 5}, {50, 50}},
	}
	bare := models.Face{Box: image.Rect(0, 0, 10, 10)}

	assert.True(t, HasLandmarks([]models.Face{landmarked}))
	assert.True(t, HasLandmarks([]models.Face{bare, landmarked}))
	assert.False(t, HasLandmarks([]models.Face{bare}))
	assert.False(t, HasLandmarks([]models.Face{outside}))
	assert.False(t, HasLandmarks(nil))
}

func TestGreyVariance(t *testing.T) {
	assert.Equal(t, 0.0, GreyVariance(flat(128)))
	assert.InDelta(t, 127.5*127.5, GreyVariance(checkerboard()), 1e-6)
	assert.Equal(t, 0.0, GreyVariance(nil))
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		mode  Mode
		img   image.Image
		faces []models.Face
		want  bool
	}{
		{Off, flat(0), nil, true},
		{Landmark, flat(0), []models.Face{landmarked}, true},
		{Landmark, checkerboard(), nil, false},
		{Variance, flat(10), []models.Face{landmarked}, false},
		{Variance, checkerboard(), nil, true},
		{Both, checkerboard(), []models.Face{landmarked}, true},
		{Both, flat(10), []models.Face{landmarked}, false},
		{Both, checkerboard(), nil, false},
	}
	for _, tt := range tests {
		g, err := New(tt.mode, 100, &stubDetector{})
		require.NoError(t, err)
		assert.Equal(t, tt.want, g.Evaluate(tt.img, tt.faces), "mode=%s", tt.mode)
	}
}

func TestIsLive(t *testing.T) {
	det := &stubDetector{faces: []models.Face{landmarked}}
	g, err := New(Landmark, 0, det)
	require.NoError(t, err)

	live, err := g.IsLive(context.Background(), flat(0))
	require.NoError(t, err)
	assert.True(t, live)
	assert.Equal(t, 1, det.calls)

	vg, err := New(Variance, 0, det)
	require.NoError(t, err)
	live, err = vg.IsLive(context.Background(), flat(0))
	require.NoError(t, err)
	assert.False(t, live)
	assert.Equal(t, 1, det.calls, "variance mode does not run detection")

	failing := &stubDetector{err: errors.New("model crashed")}
	fg, err := New(Both, 0, failing)
	require.NoError(t, err)
	_, err = fg.IsLive(context.Background(), flat(0))
	assert.Error(t, err)
}
