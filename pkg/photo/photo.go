// Package photo checks and normalizes crop photos before they are stored.
package photo

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"
)

const (
	MaxUploadBytes = 10 << 20
	MaxDimension   = 1600
	ThumbnailSize  = 256
	JPEGQuality    = 85
)

// Check validates a declared or sniffed content type and a size.
func Check(contentType string, size int64) error {
	if !strings.HasPrefix(contentType, "image/") {
		return ErrNotImage
	}
	if size > MaxUploadBytes {
		return ErrTooLarge
	}
	return nil
}

// Validate checks a multipart upload before its body is read. A missing or
// generic declared type passes here; the content is sniffed later.
func Validate(fh *multipart.FileHeader) error {
	ct := fh.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = "image/*"
	}
	return Check(ct, fh.Size)
}

// Sniff returns the MIME type detected from the leading bytes of b.
func Sniff(b []byte) string {
	return mimetype.Detect(b).String()
}

// Normalize decodes an image, applies its EXIF orientation, shrinks it to fit
// MaxDimension on both sides and re-encodes it as JPEG.
func Normalize(r io.Reader) ([]byte, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	b := img.Bounds()
	if b.Dx() > MaxDimension || b.Dy() > MaxDimension {
		img = imaging.Fit(img, MaxDimension, MaxDimension, imaging.Lanczos)
	}
	return encodeJPEG(img)
}

// Thumbnail returns a square ThumbnailSize JPEG cropped from the centre.
func Thumbnail(r io.Reader) ([]byte, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return encodeJPEG(imaging.Fill(img, ThumbnailSize, ThumbnailSize, imaging.Center, imaging.Lanczos))
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// IsSupportedExt reports whether name has an image extension the pipeline decodes.
func IsSupportedExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return true
	}
	return false
}

// ObjectPath builds the blob path for a user's photo:
// <uid>/<unix millis>-<sanitized base name>.jpg
func ObjectPath(uid string, now time.Time, name string) string {
	return uid + "/" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + sanitizeName(name)
}

// ThumbnailPath is the blob path of the thumbnail stored next to objectPath.
func ThumbnailPath(objectPath string) string {
	dir, file := path.Split(objectPath)
	return dir + "thumbs/" + file
}

func sanitizeName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	s := strings.Trim(b.String(), "-")
	if s == "" {
		s = "photo"
	}
	return s + ".jpg"
}
