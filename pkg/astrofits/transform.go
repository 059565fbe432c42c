package astrofits

import (
	"fmt"
	"image"
	"math"
)

// Geometric operations on image planes. Every operation builds its result in
// a fresh buffer and swaps it in on success, so a failed call never leaves a
// plane half updated. Interpolating operations (Rotate, Resample, TRS) use
// bilinear interpolation throughout.

// Point is a 2D position in pixel coordinates.
type Point struct {
	X, Y float64
}

// Crop extracts the rectangle at origin with the given dimensions.
func (p *ImagePlane) Crop(origin, dims image.Point) (*ImagePlane, error) {
	if origin.X < 0 || origin.Y < 0 || dims.X <= 0 || dims.Y <= 0 ||
		origin.X+dims.X > p.width || origin.Y+dims.Y > p.height {
		return nil, fmt.Errorf("crop %v+%v of %dx%d plane: %w", origin, dims, p.width, p.height, ErrOutOfBounds)
	}
	out, _ := NewImagePlane(dims.X, dims.Y, p.bitpix)
	for y := 0; y < dims.Y; y++ {
		src := (origin.Y+y)*p.width + origin.X
		copy(out.data[y*dims.X:(y+1)*dims.X], p.data[src:src+dims.X])
	}
	return out, nil
}

// Flip mirrors the plane about the horizontal axis (top row becomes bottom).
func (p *ImagePlane) Flip() *ImagePlane {
	out, _ := NewImagePlane(p.width, p.height, p.bitpix)
	for y := 0; y < p.height; y++ {
		src := (p.height - 1 - y) * p.width
		copy(out.data[y*p.width:(y+1)*p.width], p.data[src:src+p.width])
	}
	return out
}

// Flop mirrors the plane about the vertical axis (left column becomes right).
func (p *ImagePlane) Flop() *ImagePlane {
	out, _ := NewImagePlane(p.width, p.height, p.bitpix)
	for y := 0; y < p.height; y++ {
		row := y * p.width
		for x := 0; x < p.width; x++ {
			out.data[row+x] = p.data[row+p.width-1-x]
		}
	}
	return out
}

// Rotate turns the plane by angle degrees counterclockwise about its center.
// The result is sized to bound the rotated content; pixels that map outside
// the source are zero.
func (p *ImagePlane) Rotate(angleDegrees float64) *ImagePlane {
	theta := angleDegrees * math.Pi / 180
	sina, cosa := math.Sincos(theta)

	w := float64(p.width)
	h := float64(p.height)
	newW := int(math.Ceil(math.Abs(w*cosa) + math.Abs(h*sina)))
	newH := int(math.Ceil(math.Abs(w*sina) + math.Abs(h*cosa)))
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	out, _ := NewImagePlane(newW, newH, p.bitpix)
	cx := (w - 1) / 2
	cy := (h - 1) / 2
	ncx := (float64(newW) - 1) / 2
	ncy := (float64(newH) - 1) / 2

	for y := 0; y < newH; y++ {
		dy := float64(y) - ncy
		for x := 0; x < newW; x++ {
			dx := float64(x) - ncx
			// Inverse rotation back into source coordinates.
			sx := cx + dx*cosa + dy*sina
			sy := cy - dx*sina + dy*cosa
			if sx < 0 || sy < 0 || sx > w-1 || sy > h-1 {
				continue
			}
			out.data[y*newW+x] = p.bilinear(sx, sy)
		}
	}
	return out
}

// Float centers the plane in a larger canvas filled with background.
func (p *ImagePlane) Float(newWidth, newHeight int, background float64) (*ImagePlane, error) {
	if newWidth < p.width || newHeight < p.height {
		return nil, fmt.Errorf("float target %dx%d smaller than source %dx%d: %w",
			newWidth, newHeight, p.width, p.height, ErrInvalidArgument)
	}
	out, _ := NewImagePlane(newWidth, newHeight, p.bitpix)
	for i := range out.data {
		out.data[i] = background
	}
	ox := (newWidth - p.width) / 2
	oy := (newHeight - p.height) / 2
	for y := 0; y < p.height; y++ {
		copy(out.data[(oy+y)*newWidth+ox:(oy+y)*newWidth+ox+p.width], p.data[y*p.width:(y+1)*p.width])
	}
	return out, nil
}

// Resample resizes the plane with bilinear interpolation. Resampling to the
// source dimensions is the identity.
func (p *ImagePlane) Resample(newWidth, newHeight int) (*ImagePlane, error) {
	if newWidth <= 0 || newHeight <= 0 {
		return nil, fmt.Errorf("resample target %dx%d: %w", newWidth, newHeight, ErrInvalidArgument)
	}
	out, _ := NewImagePlane(newWidth, newHeight, p.bitpix)
	xRatio := float64(p.width) / float64(newWidth)
	yRatio := float64(p.height) / float64(newHeight)
	for y := 0; y < newHeight; y++ {
		sy := float64(y) * yRatio
		if sy > float64(p.height-1) {
			sy = float64(p.height - 1)
		}
		for x := 0; x < newWidth; x++ {
			sx := float64(x) * xRatio
			if sx > float64(p.width-1) {
				sx = float64(p.width - 1)
			}
			out.data[y*newWidth+x] = p.bilinear(sx, sy)
		}
	}
	return out, nil
}

// maxBinFactor bounds pixel binning; larger factors are outside the useful
// range for calibration-grade images.
const maxBinFactor = 10

// BinPixels reduces each factor x factor block to a single summed sample.
// The factor must divide both extents exactly.
func (p *ImagePlane) BinPixels(factor int) (*ImagePlane, error) {
	if factor < 1 || factor > maxBinFactor {
		return nil, fmt.Errorf("bin factor %d: %w", factor, ErrInvalidArgument)
	}
	if p.width%factor != 0 || p.height%factor != 0 {
		return nil, fmt.Errorf("bin factor %d does not divide %dx%d: %w", factor, p.width, p.height, ErrInvalidArgument)
	}
	newW := p.width / factor
	newH := p.height / factor
	out, _ := NewImagePlane(newW, newH, p.bitpix)
	for y := 0; y < newH; y++ {
		for x := 0; x < newW; x++ {
			var sum float64
			for by := 0; by < factor; by++ {
				row := (y*factor + by) * p.width
				for bx := 0; bx < factor; bx++ {
					sum += p.data[row+x*factor+bx]
				}
			}
			out.data[y*newW+x] = sum
		}
	}
	return out, nil
}

// TRS applies a translate-rotate-scale transform about center. The plane
// keeps its dimensions; each destination pixel is inverse-mapped into the
// source and sampled bilinearly. If mask is non-nil it must have one entry
// per pixel and is set true where the inverse-mapped lookup fell inside the
// source.
func (p *ImagePlane) TRS(center, offset Point, angleDegrees, scale float64, pixelSize Point, mask []bool) (*ImagePlane, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("transform scale %v: %w", scale, ErrInvalidArgument)
	}
	if pixelSize.X <= 0 || pixelSize.Y <= 0 {
		return nil, fmt.Errorf("transform pixel size %v: %w", pixelSize, ErrInvalidArgument)
	}
	if mask != nil && len(mask) != p.width*p.height {
		return nil, fmt.Errorf("mask length %d for %dx%d plane: %w", len(mask), p.width, p.height, ErrInvalidArgument)
	}
	theta := angleDegrees * math.Pi / 180
	sina, cosa := math.Sincos(theta)

	out, _ := NewImagePlane(p.width, p.height, p.bitpix)
	for y := 0; y < p.height; y++ {
		for x := 0; x < p.width; x++ {
			xmm := (float64(x) - center.X - offset.X) * pixelSize.X
			ymm := (float64(y) - center.Y - offset.Y) * pixelSize.Y
			sx := center.X + (xmm*cosa-ymm*sina)/(scale*pixelSize.X)
			sy := center.Y + (xmm*sina+ymm*cosa)/(scale*pixelSize.Y)

			i := y*p.width + x
			inside := sx >= 0 && sy >= 0 && sx <= float64(p.width-1) && sy <= float64(p.height-1)
			if mask != nil {
				mask[i] = inside
			}
			if inside {
				out.data[i] = p.bilinear(sx, sy)
			}
		}
	}
	return out, nil
}

// Point counterparts of the plane operations. These keep catalog positions
// (astrometry, photometry) aligned with the pixels after a geometric
// operation on the image.

// PointFlip mirrors a point about the horizontal axis of an image of the
// given height.
func PointFlip(pt Point, height int) Point {
	return Point{X: pt.X, Y: float64(height-1) - pt.Y}
}

// PointFlop mirrors a point about the vertical axis of an image of the
// given width.
func PointFlop(pt Point, width int) Point {
	return Point{X: float64(width-1) - pt.X, Y: pt.Y}
}

// PointCrop maps a point into the cropped frame. ok is false when the point
// falls outside the crop.
func PointCrop(pt Point, origin, dims image.Point) (Point, bool) {
	np := Point{X: pt.X - float64(origin.X), Y: pt.Y - float64(origin.Y)}
	if np.X < 0 || np.Y < 0 || np.X > float64(dims.X) || np.Y > float64(dims.Y) {
		return Point{}, false
	}
	return np, true
}

// PointFloat maps a point onto the enlarged canvas.
func PointFloat(pt Point, oldW, oldH, newW, newH int) Point {
	return Point{
		X: pt.X + float64((newW-oldW)/2),
		Y: pt.Y + float64((newH-oldH)/2),
	}
}

// PointResample scales a point with the resampling ratios.
func PointResample(pt Point, oldW, oldH, newW, newH int) Point {
	return Point{
		X: pt.X * float64(newW) / float64(oldW),
		Y: pt.Y * float64(newH) / float64(oldH),
	}
}

// PointBin maps a point onto the binned grid.
func PointBin(pt Point, factor int) Point {
	return Point{X: pt.X / float64(factor), Y: pt.Y / float64(factor)}
}

// PointRotate rotates a point about origin by theta radians.
func PointRotate(origin, pt Point, theta float64) Point {
	sina, cosa := math.Sincos(theta)
	return Point{
		X: origin.X + (pt.X-origin.X)*cosa + (pt.Y-origin.Y)*sina,
		Y: origin.Y - (pt.X-origin.X)*sina + (pt.Y-origin.Y)*cosa,
	}
}

// PointTRS applies the forward form of the TRS transform to a point.
func PointTRS(pt, center, offset Point, angleDegrees, scale float64, pixelSize Point) Point {
	theta := angleDegrees * math.Pi / 180
	sina, cosa := math.Sincos(theta)
	xt := (pt.X - center.X) * pixelSize.X * scale
	yt := (pt.Y - center.Y) * pixelSize.Y * scale
	xmm := xt*cosa + yt*sina
	ymm := yt*cosa - xt*sina
	return Point{
		X: xmm/pixelSize.X + offset.X + center.X,
		Y: ymm/pixelSize.Y + offset.Y + center.Y,
	}
}
