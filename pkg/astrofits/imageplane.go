package astrofits

import (
	"fmt"
	"math"
)

// BitPix values follow the FITS sample-format convention. The plane keeps
// the on-disk format so a loaded image writes back in the format it came in.
const (
	BitPixUint8   = 8
	BitPixInt16   = 16
	BitPixInt32   = 32
	BitPixInt64   = 64
	BitPixFloat32 = -32
	BitPixFloat64 = -64
)

func validBitPix(b int) bool {
	switch b {
	case BitPixUint8, BitPixInt16, BitPixInt32, BitPixInt64, BitPixFloat32, BitPixFloat64:
		return true
	}
	return false
}

// ImagePlane is one plane of pixel samples in row-major order. Samples are
// held as float64 regardless of the on-disk format; BitPix records the
// format used for storage.
type ImagePlane struct {
	width  int
	height int
	bitpix int
	data   []float64
}

// NewImagePlane allocates a zeroed plane.
func NewImagePlane(width, height, bitpix int) (*ImagePlane, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("plane dimensions %dx%d: %w", width, height, ErrInvalidArgument)
	}
	if !validBitPix(bitpix) {
		return nil, fmt.Errorf("bitpix %d: %w", bitpix, ErrInvalidArgument)
	}
	return &ImagePlane{
		width:  width,
		height: height,
		bitpix: bitpix,
		data:   make([]float64, width*height),
	}, nil
}

// NewImagePlaneFromSamples wraps an existing row-major sample slice.
func NewImagePlaneFromSamples(width, height, bitpix int, samples []float64) (*ImagePlane, error) {
	p, err := NewImagePlane(width, height, bitpix)
	if err != nil {
		return nil, err
	}
	if len(samples) != width*height {
		return nil, fmt.Errorf("sample count %d for %dx%d plane: %w", len(samples), width, height, ErrInvalidArgument)
	}
	copy(p.data, samples)
	return p, nil
}

func (p *ImagePlane) Width() int  { return p.width }
func (p *ImagePlane) Height() int { return p.height }
func (p *ImagePlane) BitPix() int { return p.bitpix }

// Samples exposes the backing slice. Mutating it mutates the plane.
func (p *ImagePlane) Samples() []float64 { return p.data }

func (p *ImagePlane) At(x, y int) float64     { return p.data[y*p.width+x] }
func (p *ImagePlane) Set(x, y int, v float64) { p.data[y*p.width+x] = v }

func (p *ImagePlane) DeepCopy() *ImagePlane {
	c := &ImagePlane{width: p.width, height: p.height, bitpix: p.bitpix}
	c.data = make([]float64, len(p.data))
	copy(c.data, p.data)
	return c
}

func (p *ImagePlane) sameDimensions(o *ImagePlane) bool {
	return p.width == o.width && p.height == o.height
}

// bilinear samples the plane at fractional coordinates, clamping the 2x2
// neighborhood at the edges.
func (p *ImagePlane) bilinear(x, y float64) float64 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	x1 := x0 + 1
	y1 := y0 + 1
	if x1 > p.width-1 {
		x1 = p.width - 1
	}
	if y1 > p.height-1 {
		y1 = p.height - 1
	}
	xr := x - float64(x0)
	yr := y - float64(y0)

	p00 := p.data[y0*p.width+x0]
	p01 := p.data[y0*p.width+x1]
	p10 := p.data[y1*p.width+x0]
	p11 := p.data[y1*p.width+x1]
	top := p00 + xr*(p01-p00)
	bottom := p10 + xr*(p11-p10)
	return top + yr*(bottom-top)
}

// Min returns the smallest sample value.
func (p *ImagePlane) Min() float64 {
	min := math.MaxFloat64
	for _, v := range p.data {
		if v < min {
			min = v
		}
	}
	return min
}

// Max returns the largest sample value.
func (p *ImagePlane) Max() float64 {
	max := -math.MaxFloat64
	for _, v := range p.data {
		if v > max {
			max = v
		}
	}
	return max
}

// Mean returns the arithmetic mean of the samples.
func (p *ImagePlane) Mean() float64 {
	var sum float64
	for _, v := range p.data {
		sum += v
	}
	return sum / float64(len(p.data))
}

// StdDev returns the population standard deviation of the samples.
func (p *ImagePlane) StdDev() float64 {
	mean := p.Mean()
	var sse float64
	for _, v := range p.data {
		d := v - mean
		sse += d * d
	}
	return math.Sqrt(sse / float64(len(p.data)))
}

// BlackPoint is the default display black point for the plane.
func (p *ImagePlane) BlackPoint() float64 { return p.Mean() }

// WhitePoint is the default display white point: mean plus three sigma.
func (p *ImagePlane) WhitePoint() float64 { return p.Mean() + 3*p.StdDev() }

// AstroImage is a stack of 1..N planes sharing dimensions. A monochrome
// image has a single plane.
type AstroImage struct {
	planes []*ImagePlane
}

func NewAstroImage(planes ...*ImagePlane) (*AstroImage, error) {
	if len(planes) == 0 {
		return nil, fmt.Errorf("image needs at least one plane: %w", ErrInvalidArgument)
	}
	for _, p := range planes[1:] {
		if !planes[0].sameDimensions(p) {
			return nil, fmt.Errorf("plane dimensions differ: %w", ErrInvalidArgument)
		}
	}
	return &AstroImage{planes: planes}, nil
}

func (img *AstroImage) Width() int            { return img.planes[0].width }
func (img *AstroImage) Height() int           { return img.planes[0].height }
func (img *AstroImage) PlaneCount() int       { return len(img.planes) }
func (img *AstroImage) Plane(i int) *ImagePlane { return img.planes[i] }
func (img *AstroImage) IsMono() bool          { return len(img.planes) == 1 }

func (img *AstroImage) DeepCopy() *AstroImage {
	planes := make([]*ImagePlane, len(img.planes))
	for i, p := range img.planes {
		planes[i] = p.DeepCopy()
	}
	return &AstroImage{planes: planes}
}

// applyPlanes runs op over every plane and swaps the results in only if all
// planes succeeded. A failure leaves the image untouched.
func (img *AstroImage) applyPlanes(op func(*ImagePlane) (*ImagePlane, error)) error {
	out := make([]*ImagePlane, len(img.planes))
	for i, p := range img.planes {
		np, err := op(p)
		if err != nil {
			return err
		}
		out[i] = np
	}
	img.planes = out
	return nil
}
