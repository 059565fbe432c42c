package astrofits

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Display rendering. The float samples are stretched linearly between a
// black point and a white point; the defaults come from the plane
// statistics (mean and mean plus three sigma).

// RenderGray16 renders the plane to a 16-bit grayscale image using the
// given display stretch. A white point at or below the black point is
// rejected.
func RenderGray16(p *ImagePlane, blackPoint, whitePoint float64) (*image.Gray16, error) {
	if whitePoint <= blackPoint {
		return nil, fmt.Errorf("white point %v at or below black point %v: %w", whitePoint, blackPoint, ErrInvalidArgument)
	}
	img := image.NewGray16(image.Rect(0, 0, p.Width(), p.Height()))
	scale := 65535.0 / (whitePoint - blackPoint)
	for y := 0; y < p.Height(); y++ {
		for x := 0; x < p.Width(); x++ {
			v := (p.At(x, y) - blackPoint) * scale
			if v < 0 {
				v = 0
			}
			if v > 65535 {
				v = 65535
			}
			img.SetGray16(x, y, color.Gray16{Y: uint16(v)})
		}
	}
	return img, nil
}

// RenderAuto renders the plane with the default display stretch.
func RenderAuto(p *ImagePlane) (*image.Gray16, error) {
	return RenderGray16(p, p.BlackPoint(), p.WhitePoint())
}

// AnnotateSources renders the plane and marks each source with a circle
// and its identifier.
func AnnotateSources(p *ImagePlane, sources []SourceCandidate) (*image.RGBA, error) {
	gray, err := RenderAuto(p)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(gray.Bounds())
	for y := gray.Bounds().Min.Y; y < gray.Bounds().Max.Y; y++ {
		for x := gray.Bounds().Min.X; x < gray.Bounds().Max.X; x++ {
			img.Set(x, y, gray.Gray16At(x, y))
		}
	}

	markColor := color.RGBA{R: 80, G: 255, B: 80, A: 255}
	face := basicfont.Face7x13
	for i, s := range sources {
		cx := int(s.Center.X)
		cy := int(s.Center.Y)
		radius := int(s.FWHM * 2)
		if radius < 5 {
			radius = 5
		}
		drawCircle(img, cx, cy, radius, markColor)
		drawText(img, face, fmt.Sprintf("%d", i+1), cx+radius+2, cy+4, markColor)
	}
	return img, nil
}

// drawText draws a string at (x, y) using the given font face.
func drawText(img *image.RGBA, face font.Face, s string, x, y int, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// drawCircle draws a circle outline using the midpoint algorithm.
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	x := radius
	y := 0
	err := 0

	for x >= y {
		img.Set(cx+x, cy+y, c)
		img.Set(cx+y, cy+x, c)
		img.Set(cx-y, cy+x, c)
		img.Set(cx-x, cy+y, c)
		img.Set(cx-x, cy-y, c)
		img.Set(cx-y, cy-x, c)
		img.Set(cx+y, cy-x, c)
		img.Set(cx+x, cy-y, c)

		y++
		err += 1 + 2*y
		if 2*(err-x)+1 > 0 {
			x--
			err += 1 - 2*x
		}
	}
}
