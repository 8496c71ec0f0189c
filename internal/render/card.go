package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// CardWidth and CardHeight are the standard Open Graph image dimensions.
const (
	CardWidth  = 1200
	CardHeight = 630
)

var (
	faceHeadline font.Face
	faceBody     font.Face
	fontOnce     sync.Once
	fontErr      error
)

func loadFonts() {
	fontOnce.Do(func() {
		bold, err := opentype.Parse(gobold.TTF)
		if err != nil {
			fontErr = fmt.Errorf("parse Go Bold: %w", err)
			return
		}
		faceHeadline, err = opentype.NewFace(bold, &opentype.FaceOptions{
			Size:    96,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			fontErr = fmt.Errorf("create headline face: %w", err)
			return
		}

		regular, err := opentype.Parse(goregular.TTF)
		if err != nil {
			fontErr = fmt.Errorf("parse Go Regular: %w", err)
			return
		}
		faceBody, err = opentype.NewFace(regular, &opentype.FaceOptions{
			Size:    36,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			fontErr = fmt.Errorf("create body face: %w", err)
		}
	})
}

// CardData is the text shown on the dashboard's link preview.
type CardData struct {
	Title    string
	Headline string // e.g. "12 cities"
	Detail   string // e.g. "Daily history 2000-01-01 to 2024-02-10"
}

// Card writes a link preview PNG: a dark gradient with the headline and
// detail text in the lower-left corner.
func Card(w io.Writer, data CardData) error {
	loadFonts()
	if fontErr != nil {
		return fmt.Errorf("load fonts: %w", fontErr)
	}

	img := image.NewRGBA(image.Rect(0, 0, CardWidth, CardHeight))
	for y := 0; y < CardHeight; y++ {
		progress := float64(y) / float64(CardHeight)
		c := color.RGBA{uint8(31 - progress*15), uint8(58 - progress*25), uint8(95 - progress*35), 255}
		for x := 0; x < CardWidth; x++ {
			img.SetRGBA(x, y, c)
		}
	}

	white := color.RGBA{255, 255, 255, 255}
	lightGray := color.RGBA{200, 210, 225, 255}

	drawText(img, data.Title, 60, 90, lightGray, faceBody)
	drawText(img, data.Headline, 60, CardHeight-180, white, faceHeadline)
	if data.Detail != "" {
		drawText(img, data.Detail, 60, CardHeight-90, lightGray, faceBody)
	}

	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode card: %w", err)
	}
	return nil
}

func drawText(img *image.RGBA, text string, x, y int, col color.Color, face font.Face) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
