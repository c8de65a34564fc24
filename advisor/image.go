package advisor

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Image is a self-describing binary image
type Image struct {
	Data     []byte
	MimeType string
	// Source is where the bytes came from (the src value); informational only.
	Source string
}

// DataURI renders the image as data:<mime>;base64,<data>
func (i Image) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", i.MimeType, base64.StdEncoding.EncodeToString(i.Data))
}

// prepare downscales raster images wider than maxWidth and re-encodes them as JPEG.
// Images that cannot be decoded (e.g. SVG) and images within bounds are returned as-is.
func prepare(img Image, maxWidth int) (Image, bool) {
	if maxWidth <= 0 {
		return img, false
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil || cfg.Width <= maxWidth {
		return img, false
	}

	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return img, false
	}
	resized := imaging.Resize(decoded, maxWidth, 0, imaging.Lanczos)

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, resized, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return img, false
	}

	return Image{Data: buf.Bytes(), MimeType: "image/jpeg", Source: img.Source}, true
}
