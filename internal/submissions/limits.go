package submissions

import (
	"errors"
	"fmt"
)

var (
	// ErrPhotoTooLarge is returned when the photo part exceeds the size limit
	ErrPhotoTooLarge = errors.New("photo too large")

	// ErrUploadTooLarge is returned when the whole request body exceeds the limit
	ErrUploadTooLarge = errors.New("upload too large")
)

// UploadLimits defines the limits for photo uploads
type UploadLimits struct {
	MaxPhotoBytes int64 // Maximum size of the photo part in bytes
	MaxTotalBytes int64 // Maximum multipart body size in bytes
}

// formOverhead leaves room for the text fields next to the photo.
const formOverhead = 64 * 1024

// DefaultUploadLimits returns the default upload limits
func DefaultUploadLimits() UploadLimits {
	return NewUploadLimits(15 * 1024 * 1024) // 15MB
}

// NewUploadLimits creates upload limits for photos of at most maxPhotoBytes
func NewUploadLimits(maxPhotoBytes int64) UploadLimits {
	return UploadLimits{
		MaxPhotoBytes: maxPhotoBytes,
		MaxTotalBytes: maxPhotoBytes + formOverhead,
	}
}

// ValidatePhotoSize checks if the photo size is within limits
func (l UploadLimits) ValidatePhotoSize(size int64) error {
	if size > l.MaxPhotoBytes {
		return fmt.Errorf("%w: photo is %d bytes, limit is %d bytes", ErrPhotoTooLarge, size, l.MaxPhotoBytes)
	}
	return nil
}

// ValidateTotalSize checks if the request body size is within limits
func (l UploadLimits) ValidateTotalSize(size int64) error {
	if size > l.MaxTotalBytes {
		return fmt.Errorf("%w: request is %d bytes, limit is %d bytes", ErrUploadTooLarge, size, l.MaxTotalBytes)
	}
	return nil
}
