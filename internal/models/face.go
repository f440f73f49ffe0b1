package models

import "image"

// Face is one detection in a frame. Landmarks holds the five RetinaFace points
// (eyes, nose, mouth corners) when the detector produced them.
type Face struct {
	Box       image.Rectangle
	Landmarks []image.Point
	Score     float32
}
