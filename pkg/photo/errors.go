package photo

import "errors"

var (
	// ErrNotImage is returned for uploads whose content is not an image.
	ErrNotImage = errors.New("please select an image file")
	// ErrTooLarge is returned for uploads over MaxUploadBytes.
	ErrTooLarge = errors.New("image size should be less than 10MB")
	ErrDecode   = errors.New("image could not be decoded")
)
