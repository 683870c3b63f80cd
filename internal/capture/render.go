package capture

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Canonical typed-signature canvas size, in image pixels.
const (
	canvasWidth  = 400
	canvasHeight = 100

	// Text must fit inside the canvas with a margin on every side.
	maxTextWidth  = 380
	maxTextHeight = 80
)

// styleSpec controls how a font style shapes the rendered mark. Rendering
// uses a fixed bitmap face scaled with nearest-neighbor so output depends
// only on (text, style), never on platform font stacks.
type styleSpec struct {
	maxScale  int
	underline bool
}

var styles = map[FontStyle]styleSpec{
	FontCursive: {maxScale: 5},
	FontScript:  {maxScale: 3},
	FontElegant: {maxScale: 4, underline: true},
}

// renderTyped rasterizes text into the canonical 400x100 PNG. Unknown styles
// fall back to cursive, mirroring the capture surface default.
func renderTyped(text string, style FontStyle) ([]byte, error) {
	spec, ok := styles[style]
	if !ok {
		spec = styles[FontCursive]
	}

	face := basicfont.Face7x13
	tw := font.MeasureString(face, text).Ceil()
	th := face.Height

	src := image.NewRGBA(image.Rect(0, 0, tw, th))
	d := font.Drawer{
		Dst:  src,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(text)

	scale := spec.maxScale
	if s := maxTextWidth / tw; s < scale {
		scale = s
	}
	if s := maxTextHeight / th; s < scale {
		scale = s
	}
	if scale < 1 {
		scale = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, canvasWidth, canvasHeight))
	dw, dh := tw*scale, th*scale
	x0 := (canvasWidth - dw) / 2
	y0 := (canvasHeight - dh) / 2
	xdraw.NearestNeighbor.Scale(dst, image.Rect(x0, y0, x0+dw, y0+dh), src, src.Bounds(), xdraw.Over, nil)

	if spec.underline {
		lineY := y0 + dh + 4
		for y := lineY; y < lineY+2 && y < canvasHeight; y++ {
			for x := x0; x < x0+dw && x < canvasWidth; x++ {
				if x >= 0 {
					dst.SetRGBA(x, y, color.RGBA{A: 0xff})
				}
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
