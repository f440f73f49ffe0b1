package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

func preprocessForDetection(img image.Image, w, h int) []float32 {
	return imageToCHW(img, w, h, 127.5, 128.0)
}

func preprocessForEmbedding(img image.Image, w, h int) []float32 {
	return imageToCHW(img, w, h, 127.5, 127.5)
}

// imageToCHW resizes img to w x h and lays it out as planar RGB with
// (pixel - mean) / std normalisation.
func imageToCHW(img image.Image, w, h int, mean, std float32) []float32 {
	resized := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := w * h
	data := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := resized.PixOffset(x, y)
			idx := y*w + x
			data[idx] = (float32(resized.Pix[off]) - mean) / std
			data[plane+idx] = (float32(resized.Pix[off+1]) - mean) / std
			data[2*plane+idx] = (float32(resized.Pix[off+2]) - mean) / std
		}
	}
	return data
}

// cropFace copies box, padded by 10% on each side and clipped to the image,
// into a new image. It returns nil when box does not overlap img.
func cropFace(img image.Image, box image.Rectangle) image.Image {
	bounds := img.Bounds()
	box = box.Intersect(bounds)
	if box.Empty() {
		return nil
	}

	padW := box.Dx() / 10
	padH := box.Dy() / 10
	box = image.Rect(box.Min.X-padW, box.Min.Y-padH, box.Max.X+padW, box.Max.Y+padH).Intersect(bounds)

	crop := image.NewRGBA(image.Rect(0, 0, box.Dx(), box.Dy()))
	draw.Draw(crop, crop.Bounds(), img, box.Min, draw.Src)
	return crop
}

// DecodeJPEG decodes a captured frame.
func DecodeJPEG(data []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}
	return img, nil
}

// DecodeImage accepts any registered format, for uploaded registration
// photos.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
