package upload

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

// fileHeader wraps data in a multipart form and returns its file header.
func fileHeader(t *testing.T, filename string, data []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("photo", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	form, err := multipart.NewReader(&buf, mw.Boundary()).ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("read form: %v", err)
	}
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["photo"][0]
}

// twoTone returns a w x h image, red on the left half and blue on the right.
func twoTone(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 255, A: 255}
			if x >= w/2 {
				c = color.RGBA{B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestSaveResizesToSquare(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPhotoStore(dir, 5<<20)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	name, err := store.Save(fileHeader(t, "face.PNG", pngBytes(t, twoTone(400, 200))))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !regexp.MustCompile(`^\d+-[0-9a-f]{12}\.png$`).MatchString(name) {
		t.Fatalf("unexpected filename %q", name)
	}

	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("open stored photo: %v", err)
	}
	defer f.Close()
	img, format, err := image.Decode(f)
	if err != nil {
		t.Fatalf("decode stored photo: %v", err)
	}
	if format != "png" || img.Bounds().Dx() != PhotoSize || img.Bounds().Dy() != PhotoSize {
		t.Fatalf("expected %dx%d png, got %s %v", PhotoSize, PhotoSize, format, img.Bounds())
	}
}

func TestCoverCropsCentre(t *testing.T) {
	dst := Cover(twoTone(200, 100), 64, 64)
	if got := dst.RGBAAt(5, 32); got.R < 200 || got.B > 50 {
		t.Fatalf("left edge should stay red, got %v", got)
	}
	if got := dst.RGBAAt(58, 32); got.B < 200 || got.R > 50 {
		t.Fatalf("right edge should be blue, got %v", got)
	}
}

func TestSaveRejectsNonImages(t *testing.T) {
	store, err := NewPhotoStore(t.TempDir(), 5<<20)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_, err = store.Save(fileHeader(t, "notes.png", []byte("definitely not an image")))
	if !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}
}

func TestSaveRejectsOversized(t *testing.T) {
	store, err := NewPhotoStore(t.TempDir(), 16)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_, err = store.Save(fileHeader(t, "big.png", pngBytes(t, twoTone(100, 100))))
	if !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}
}

// withDimensions rewrites the IHDR width and height of a PNG, leaving the
// pixel data untouched, and fixes up the chunk checksum.
func withDimensions(t *testing.T, data []byte, w, h uint32) []byte {
	t.Helper()
	out := append([]byte(nil), data...)
	if string(out[12:16]) != "IHDR" {
		t.Fatalf("unexpected png layout")
	}
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestSaveRejectsHugeDimensions(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPhotoStore(dir, 5<<20)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	small := pngBytes(t, twoTone(4, 4))
	for _, dims := range [][2]uint32{{12000, 12000}, {MaxEdge + 1, 10}, {9000, 9000}} {
		_, err := store.Save(fileHeader(t, "huge.png", withDimensions(t, small, dims[0], dims[1])))
		if !errors.Is(err, ErrInvalidImage) {
			t.Fatalf("%dx%d: expected ErrInvalidImage, got %v", dims[0], dims[1], err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("rejected uploads must not be stored, found %d files", len(entries))
	}
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPhotoStore(dir, 0)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	name, err := store.Save(fileHeader(t, "a.png", pngBytes(t, twoTone(10, 10))))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Remove(name); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
		t.Fatalf("expected file gone, stat err=%v", err)
	}
	if err := store.Remove(name); err != nil {
		t.Fatalf("removing a missing file should succeed: %v", err)
	}
	if err := store.Remove("../escape.png"); err != nil {
		t.Fatalf("path outside the store should be ignored: %v", err)
	}
}
