package ocr

import (
	"bytes"
	"image"
	"image/jpeg"
)

// warmupJPEG returns a small white page. Its only purpose is to give an
// engine something to chew on while it pulls model weights into the cache.
func warmupJPEG() []byte {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}
