// Package capture grabs the foreground window and encodes it to the
// canonical PNG form that fingerprints and summaries are computed from.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
)

// ErrNoActiveWindow is returned when no foreground window can be found.
var ErrNoActiveWindow = errors.New("no active window")

// Rect is a screen region in pixels.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.Left, r.Top)
}

// Window describes the foreground window.
type Window struct {
	Rect  Rect
	Title string
}

// Backend locates the foreground window and grabs screen regions.
type Backend interface {
	ActiveWindow(ctx context.Context) (Window, error)
	Grab(ctx context.Context, r Rect) (image.Image, error)
}

// Frame is one encoded capture.
type Frame struct {
	Window  Window
	Encoded []byte
}

// Encode returns the canonical PNG encoding of img. The same pixels always
// produce the same bytes.
func Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Canonicalize decodes an image produced by an external tool and
// re-encodes it, dropping any metadata chunks the tool wrote.
func Canonicalize(raw []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode capture: %w", err)
	}
	return Encode(img)
}

// GrabWindow captures the region of w.
func GrabWindow(ctx context.Context, b Backend, w Window) (Frame, error) {
	if w.Rect.Empty() {
		return Frame{}, fmt.Errorf("window %q: %w", w.Title, ErrNoActiveWindow)
	}
	img, err := b.Grab(ctx, w.Rect)
	if err != nil {
		return Frame{}, fmt.Errorf("grab %s: %w", w.Rect, err)
	}
	encoded, err := Encode(img)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Window: w, Encoded: encoded}, nil
}
