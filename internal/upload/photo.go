// Package upload stores contact photos on local disk.
package upload

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/draw"
)

// PhotoSize is the edge length of every stored photo.
const PhotoSize = 256

// Decoded images are bounded by these before any pixel is allocated.
const (
	MaxEdge   = 10000
	MaxPixels = 40_000_000
)

// ErrInvalidImage is returned for uploads that are not a JPEG, PNG or GIF
// image, or that exceed the size or dimension limits.
var ErrInvalidImage = errors.New("invalid image")

// PhotoStore writes resized photos into Dir.
type PhotoStore struct {
	Dir      string
	MaxBytes int64
}

func NewPhotoStore(dir string, maxBytes int64) (*PhotoStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &PhotoStore{Dir: dir, MaxBytes: maxBytes}, nil
}

// Save decodes fh, scales it to cover PhotoSize x PhotoSize, crops the
// centre and writes it under a fresh name with the image's own extension.
// It returns the stored filename.
func (s *PhotoStore) Save(fh *multipart.FileHeader) (string, error) {
	if s.MaxBytes > 0 && fh.Size > s.MaxBytes {
		return "", fmt.Errorf("%w: larger than %d bytes", ErrInvalidImage, s.MaxBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := checkDimensions(s.limit(f)); err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	src, format, err := image.Decode(s.limit(f))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	dst := Cover(src, PhotoSize, PhotoSize)

	ext, err := extension(format)
	if err != nil {
		return "", err
	}
	name, err := newName(ext)
	if err != nil {
		return "", err
	}
	out, err := os.OpenFile(filepath.Join(s.Dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}
	if err := encode(out, dst, format); err != nil {
		_ = out.Close()
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("encode photo: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(out.Name())
		return "", err
	}
	return name, nil
}

func (s *PhotoStore) limit(r io.Reader) io.Reader {
	if s.MaxBytes > 0 {
		return io.LimitReader(r, s.MaxBytes+1)
	}
	return r
}

// checkDimensions reads only the image header and rejects sizes whose
// pixel buffer would be too large to decode.
func checkDimensions(r io.Reader) error {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("%w: empty image", ErrInvalidImage)
	}
	if cfg.Width > MaxEdge || cfg.Height > MaxEdge || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return fmt.Errorf("%w: %dx%d exceeds the dimension limit", ErrInvalidImage, cfg.Width, cfg.Height)
	}
	return nil
}

// Remove deletes a stored photo.  Missing files are ignored.
func (s *PhotoStore) Remove(name string) error {
	if name == "" || name != filepath.Base(name) {
		return nil
	}
	err := os.Remove(filepath.Join(s.Dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Cover scales src so it fills w x h and crops the overflow evenly from
// both sides.
func Cover(src image.Image, w, h int) *image.RGBA {
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if sw == 0 || sh == 0 {
		return dst
	}
	// crop a w:h window out of the source
	cw, ch := sw, sw*h/w
	if ch > sh {
		cw, ch = sh*w/h, sh
	}
	x0 := b.Min.X + (sw-cw)/2
	y0 := b.Min.Y + (sh-ch)/2
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, image.Rect(x0, y0, x0+cw, y0+ch), draw.Src, nil)
	return dst
}

func extension(format string) (string, error) {
	switch format {
	case "jpeg":
		return ".jpg", nil
	case "png":
		return ".png", nil
	case "gif":
		return ".gif", nil
	}
	return "", fmt.Errorf("%w: unsupported format %q", ErrInvalidImage, format)
}

func encode(w io.Writer, img image.Image, format string) error {
	switch format {
	case "jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
	case "gif":
		return gif.Encode(w, img, nil)
	default:
		return png.Encode(w, img)
	}
}

// newName builds "<unix-ms>-<random><ext>".
func newName(ext string) (string, error) {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), hex.EncodeToString(b[:]), strings.ToLower(ext)), nil
}
