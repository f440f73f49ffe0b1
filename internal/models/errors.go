package models

import "errors"

var (
	ErrNoFaceDetected       = errors.New("no face detected")
	ErrIdentityNotFound     = errors.New("identity not found")
	ErrInvalidIdentity      = errors.New("invalid identity")
	ErrAlreadyRecordedToday = errors.New("attendance already recorded today")
	ErrDecryption           = errors.New("cannot decrypt embedding")
	ErrStorageIO            = errors.New("storage i/o failure")
	ErrCameraUnavailable    = errors.New("camera unavailable")
)
