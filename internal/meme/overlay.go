package meme

import (
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"

	errs "github.com/iamwavecut/memequiz/internal/errors"
)

const (
	maxLineChars = 24
	jpegQuality  = 90
	minFontSize  = 8
)

var regularFont = sync.OnceValues(func() (*opentype.Font, error) {
	return opentype.Parse(goregular.TTF)
})

// Overlay renders caption in upper case at the bottom of the picture, white glyphs with a black outline.
func Overlay(src io.Reader, caption string, dst io.Writer) error {
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return errors.Wrap(errs.ErrInvalidInput, "empty caption")
	}
	picture, _, err := image.Decode(src)
	if err != nil {
		return errors.Wrap(err, "decode picture")
	}

	bounds := picture.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), picture, bounds.Min, draw.Src)

	lines := wrapWords(strings.ToUpper(caption), maxLineChars)
	face, err := fitFace(lines, canvas.Bounds())
	if err != nil {
		return err
	}
	defer face.Close()
	renderLines(canvas, face, lines)

	if err := jpeg.Encode(dst, canvas, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return errors.Wrap(err, "encode meme")
	}
	return nil
}

// fitFace picks the largest face keeping the text within 90% of the width and a third of the height.
func fitFace(lines []string, canvas image.Rectangle) (font.Face, error) {
	f, err := regularFont()
	if err != nil {
		return nil, errors.Wrap(err, "parse font")
	}
	size := float64(canvas.Dy()) / 8
	for {
		face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
		if err != nil {
			return nil, errors.Wrap(err, "create face")
		}
		w, h := textSize(face, lines)
		if size <= minFontSize || (w <= canvas.Dx()*9/10 && h <= canvas.Dy()/3) {
			return face, nil
		}
		face.Close()
		size *= 0.9
		if size < minFontSize {
			size = minFontSize
		}
	}
}

func textSize(face font.Face, lines []string) (width, height int) {
	for _, line := range lines {
		if w := font.MeasureString(face, line).Ceil(); w > width {
			width = w
		}
	}
	return width, len(lines) * face.Metrics().Height.Ceil()
}

func renderLines(canvas *image.RGBA, face font.Face, lines []string) {
	metrics := face.Metrics()
	lineHeight := metrics.Height.Ceil()
	_, h := textSize(face, lines)
	top := canvas.Bounds().Dy() - h - canvas.Bounds().Dy()/20
	if top < 0 {
		top = 0
	}
	stroke := lineHeight / 16
	if stroke < 1 {
		stroke = 1
	}

	outline := &font.Drawer{Dst: canvas, Src: image.NewUniform(color.Black), Face: face}
	fill := &font.Drawer{Dst: canvas, Src: image.NewUniform(color.White), Face: face}
	for i, line := range lines {
		x := (canvas.Bounds().Dx() - font.MeasureString(face, line).Ceil()) / 2
		y := top + i*lineHeight + metrics.Ascent.Ceil()
		for _, d := range []image.Point{{-stroke, 0}, {stroke, 0}, {0, -stroke}, {0, stroke}} {
			outline.Dot = fixed.P(x+d.X, y+d.Y)
			outline.DrawString(line)
		}
		fill.Dot = fixed.P(x, y)
		fill.DrawString(line)
	}
}

func wrapWords(text string, limit int) []string {
	var (
		lines   []string
		current []rune
	)
	for _, word := range strings.Fields(text) {
		w := []rune(word)
		for len(w) > limit {
			if len(current) > 0 {
				lines = append(lines, string(current))
				current = nil
			}
			lines = append(lines, string(w[:limit]))
			w = w[limit:]
		}
		switch {
		case len(current) == 0:
			current = append(current, w...)
		case len(current)+1+len(w) <= limit:
			current = append(append(current, ' '), w...)
		default:
			lines = append(lines, string(current))
			current = append([]rune{}, w...)
		}
	}
	if len(current) > 0 {
		lines = append(lines, string(current))
	}
	return lines
}
