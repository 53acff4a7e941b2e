package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Options tunes the page preprocessing applied before OCR.
type Options struct {
	MaxHeight     int     // resize threshold in px, 0 disables resizing
	JPEGQuality   int
	BlankVariance float64 // grayscale variance below this marks a blank page
}

// Decode decodes JPEG, PNG, GIF or WebP image bytes.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// IsBlank reports whether a page has minimal content, using grayscale
// variance as a cheap heuristic. Decode failures count as not blank so a
// malformed page still reaches the engine and fails loudly there.
func IsBlank(data []byte, threshold float64) bool {
	img, err := Decode(data)
	if err != nil {
		return false
	}
	return grayVariance(img) < threshold
}

func grayVariance(img image.Image) float64 {
	b := img.Bounds()
	n := b.Dx() * b.Dy()
	if n == 0 {
		return 0
	}

	var sum, sumSq float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			v := float64(g.Y)
			sum += v
			sumSq += v * v
		}
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}

// Optimize resizes pages taller than MaxHeight (preserving aspect ratio),
// flattens any alpha onto white and re-encodes as JPEG. On any failure the
// original bytes come back untouched; preprocessing must never fail a job.
func Optimize(data []byte, opts Options) []byte {
	img, err := Decode(data)
	if err != nil {
		return data
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return data
	}

	dstW, dstH := w, h
	if opts.MaxHeight > 0 && h > opts.MaxHeight {
		dstW = w * opts.MaxHeight / h
		dstH = opts.MaxHeight
		if dstW < 1 {
			dstW = 1
		}
	}

	// JPEG has no alpha channel; transparent regions become white, matching
	// how readers display the page.
	flat := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.Draw(flat, flat.Bounds(), image.White, image.Point{}, draw.Src)
	if dstW == w && dstH == h {
		draw.Draw(flat, flat.Bounds(), img, b.Min, draw.Over)
	} else {
		xdraw.CatmullRom.Scale(flat, flat.Bounds(), img, b, xdraw.Over, nil)
	}

	quality := opts.JPEGQuality
	if quality == 0 {
		quality = 85
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: quality}); err != nil {
		return data
	}
	return buf.Bytes()
}
