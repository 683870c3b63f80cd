// Package capture converts heterogeneous signature captures (drawn, typed,
// uploaded) into the single canonical encoded-image representation a signed
// field stores.
package capture

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/and161185/signdesk/internal/errs"
	"github.com/and161185/signdesk/internal/model"
)

// FontStyle names one of the fixed typed-signature styles offered by the
// capture surface.
type FontStyle string

const (
	FontCursive FontStyle = "cursive"
	FontScript  FontStyle = "script"
	FontElegant FontStyle = "elegant"
)

// DefaultMaxUploadBytes caps uploaded signature images.
const DefaultMaxUploadBytes = 1 << 20 // 1 MiB

// Capture is a raw user-provided signature input before normalization.
type Capture struct {
	Method model.CaptureMethod
	Image  []byte    // drawn: rendered raster; uploaded: user-supplied raster
	Text   string    // typed only
	Font   FontStyle // typed only
}

// Result is the canonical representation stored on a signed field.
type Result struct {
	Type  model.CaptureMethod
	Image []byte // PNG or JPEG bytes
	Text  string // present only for typed captures
}

// Normalizer is a pure transform; it holds only policy, never state.
type Normalizer struct {
	maxUploadBytes int
}

// NewNormalizer constructs a Normalizer with the given upload byte cap
// (DefaultMaxUploadBytes if non-positive).
func NewNormalizer(maxUploadBytes int) *Normalizer {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &Normalizer{maxUploadBytes: maxUploadBytes}
}

// Normalize validates the capture and produces its canonical form.
// Typed captures are rendered deterministically: identical text and font
// always yield byte-identical images.
func (n *Normalizer) Normalize(c Capture) (Result, error) {
	switch c.Method {
	case model.CaptureTyped:
		text := strings.TrimSpace(c.Text)
		if text == "" {
			return Result{}, fmt.Errorf("typed capture: %w", errs.ErrEmptyInput)
		}
		img, err := renderTyped(text, c.Font)
		if err != nil {
			return Result{}, err
		}
		return Result{Type: model.CaptureTyped, Image: img, Text: text}, nil

	case model.CaptureDrawn:
		if len(c.Image) == 0 {
			return Result{}, fmt.Errorf("drawn capture: %w", errs.ErrEmptyInput)
		}
		return Result{Type: model.CaptureDrawn, Image: c.Image}, nil

	case model.CaptureUploaded:
		if len(c.Image) == 0 {
			return Result{}, fmt.Errorf("uploaded capture: %w", errs.ErrEmptyInput)
		}
		if len(c.Image) > n.maxUploadBytes {
			return Result{}, fmt.Errorf("upload of %d bytes (cap %d): %w",
				len(c.Image), n.maxUploadBytes, errs.ErrUploadTooLarge)
		}
		switch ct := http.DetectContentType(c.Image); ct {
		case "image/png", "image/jpeg":
		default:
			return Result{}, fmt.Errorf("content type %q: %w", ct, errs.ErrUnsupportedFormat)
		}
		return Result{Type: model.CaptureUploaded, Image: c.Image}, nil

	default:
		return Result{}, fmt.Errorf("capture method %q: %w", c.Method, errs.ErrUnsupportedFormat)
	}
}
