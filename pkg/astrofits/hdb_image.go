package astrofits

import (
	"fmt"
	"image"
)

// ImageHDB is a block carrying pixel data: the primary image or an image
// extension (calibration masters, saved originals, alternate bands).
type ImageHDB struct {
	baseHDB
	bitpix    int
	image     *AstroImage
	pixelSize *Point
	wcs       *WCSSolution
}

// NewImageHDB creates an image block without pixel data.
func NewImageHDB(name string) *ImageHDB {
	return &ImageHDB{baseHDB: newBaseHDB(name), bitpix: BitPixFloat64}
}

// NewImageHDBFromImage creates an image block wrapping img.
func NewImageHDBFromImage(name string, img *AstroImage) *ImageHDB {
	h := NewImageHDB(name)
	h.SetImage(img)
	return h
}

func (h *ImageHDB) Type() BlockType { return BlockImage }

func (h *ImageHDB) Accepts(op Operation) bool {
	switch op {
	case OpKeywordEdit, OpRender:
		return true
	case OpGeometric, OpCalibrate:
		return h.image != nil
	default:
		return false
	}
}

// Image returns the pixel data, nil for a header-only block.
func (h *ImageHDB) Image() *AstroImage { return h.image }

// SetImage replaces the pixel data and refreshes the axis extents.
func (h *ImageHDB) SetImage(img *AstroImage) {
	h.image = img
	if img == nil {
		h.axes = nil
		return
	}
	h.bitpix = img.Plane(0).BitPix()
	if img.IsMono() {
		h.axes = []int{img.Width(), img.Height()}
	} else {
		h.axes = []int{img.Width(), img.Height(), img.PlaneCount()}
	}
}

func (h *ImageHDB) Width() int {
	if h.image == nil {
		return 0
	}
	return h.image.Width()
}

func (h *ImageHDB) Height() int {
	if h.image == nil {
		return 0
	}
	return h.image.Height()
}

func (h *ImageHDB) PixelSize() (Point, bool) {
	if h.pixelSize == nil {
		return Point{}, false
	}
	return *h.pixelSize, true
}

func (h *ImageHDB) SetPixelSize(p Point) { h.pixelSize = &p }

func (h *ImageHDB) WCS() (*WCSSolution, bool) {
	if h.wcs == nil {
		return nil, false
	}
	return h.wcs, true
}

func (h *ImageHDB) SetWCS(w *WCSSolution) { h.wcs = w }

// Exposure reads the exposure duration from the block keywords, trying
// EXPTIME then EXPOSURE.
func (h *ImageHDB) Exposure() (float64, error) {
	if v, err := h.keywords.Float64(KwExpTime); err == nil {
		return v, nil
	}
	return h.keywords.Float64(KwExposure)
}

func (h *ImageHDB) CreateCopy() HDB {
	c := &ImageHDB{bitpix: h.bitpix}
	h.copyInto(&c.baseHDB)
	if h.image != nil {
		c.image = h.image.DeepCopy()
	}
	if h.pixelSize != nil {
		ps := *h.pixelSize
		c.pixelSize = &ps
	}
	if h.wcs != nil {
		c.wcs = h.wcs.DeepCopy()
	}
	return c
}

// Geometric operations. Each one transforms every plane, then refreshes
// the axis extents; plane transforms are copy-then-swap so failures leave
// the block unchanged.

func (h *ImageHDB) requireImage() error {
	if h.image == nil {
		return &UnsupportedOperationError{Op: OpGeometric, Block: BlockImage}
	}
	return nil
}

func (h *ImageHDB) Flip() error {
	if err := h.requireImage(); err != nil {
		return err
	}
	_ = h.image.applyPlanes(func(p *ImagePlane) (*ImagePlane, error) { return p.Flip(), nil })
	h.SetImage(h.image)
	return nil
}

func (h *ImageHDB) Flop() error {
	if err := h.requireImage(); err != nil {
		return err
	}
	_ = h.image.applyPlanes(func(p *ImagePlane) (*ImagePlane, error) { return p.Flop(), nil })
	h.SetImage(h.image)
	return nil
}

func (h *ImageHDB) Rotate(angleDegrees float64) error {
	if err := h.requireImage(); err != nil {
		return err
	}
	_ = h.image.applyPlanes(func(p *ImagePlane) (*ImagePlane, error) { return p.Rotate(angleDegrees), nil })
	h.SetImage(h.image)
	return nil
}

func (h *ImageHDB) Crop(origin, dims image.Point) error {
	if err := h.requireImage(); err != nil {
		return err
	}
	if err := h.image.applyPlanes(func(p *ImagePlane) (*ImagePlane, error) { return p.Crop(origin, dims) }); err != nil {
		return err
	}
	h.SetImage(h.image)
	return nil
}

func (h *ImageHDB) Float(newWidth, newHeight int, background float64) error {
	if err := h.requireImage(); err != nil {
		return err
	}
	if err := h.image.applyPlanes(func(p *ImagePlane) (*ImagePlane, error) {
		return p.Float(newWidth, newHeight, background)
	}); err != nil {
		return err
	}
	h.SetImage(h.image)
	return nil
}

func (h *ImageHDB) Resample(newWidth, newHeight int) error {
	if err := h.requireImage(); err != nil {
		return err
	}
	oldW, oldH := h.Width(), h.Height()
	if err := h.image.applyPlanes(func(p *ImagePlane) (*ImagePlane, error) {
		return p.Resample(newWidth, newHeight)
	}); err != nil {
		return err
	}
	if h.pixelSize != nil && newWidth > 0 && newHeight > 0 {
		h.pixelSize.X *= float64(oldW) / float64(newWidth)
		h.pixelSize.Y *= float64(oldH) / float64(newHeight)
	}
	h.SetImage(h.image)
	return nil
}

func (h *ImageHDB) BinPixels(factor int) error {
	if err := h.requireImage(); err != nil {
		return err
	}
	if err := h.image.applyPlanes(func(p *ImagePlane) (*ImagePlane, error) {
		return p.BinPixels(factor)
	}); err != nil {
		return err
	}
	if h.pixelSize != nil {
		h.pixelSize.X *= float64(factor)
		h.pixelSize.Y *= float64(factor)
	}
	h.SetImage(h.image)
	return nil
}

func (h *ImageHDB) TRS(center, offset Point, angleDegrees, scale float64, pixelSize Point, mask []bool) error {
	if err := h.requireImage(); err != nil {
		return err
	}
	if err := h.image.applyPlanes(func(p *ImagePlane) (*ImagePlane, error) {
		return p.TRS(center, offset, angleDegrees, scale, pixelSize, mask)
	}); err != nil {
		return err
	}
	h.SetImage(h.image)
	return nil
}

// Codec hooks.

func (h *ImageHDB) headerCards() (*BlockHeader, error) {
	hdr := &BlockHeader{}
	if h.primary {
		hdr.Append("SIMPLE", true, "conforms to FITS standard")
	} else {
		hdr.Append("XTENSION", "IMAGE", "image extension")
	}
	hdr.Append("BITPIX", int64(h.bitpix), "sample format")
	hdr.Append("NAXIS", int64(len(h.axes)), "number of axes")
	for i, ax := range h.axes {
		hdr.Append(fmt.Sprintf("NAXIS%d", i+1), int64(ax), "")
	}
	if !h.primary {
		hdr.Append("PCOUNT", int64(0), "")
		hdr.Append("GCOUNT", int64(1), "")
	}
	h.emitCommon(hdr)
	return hdr, nil
}

func (h *ImageHDB) loadPayload(dec Decoder) error {
	if len(h.axes) == 0 {
		h.image = nil
		return nil
	}
	if len(h.axes) != 2 && len(h.axes) != 3 {
		return fmt.Errorf("image block with %d axes: %w", len(h.axes), ErrInvalidArgument)
	}
	samples, err := dec.ReadImage(h.axes, h.bitpix)
	if err != nil {
		return fmt.Errorf("read image payload: %w", err)
	}
	w, ht := h.axes[0], h.axes[1]
	planeCount := 1
	if len(h.axes) == 3 {
		planeCount = h.axes[2]
	}
	planes := make([]*ImagePlane, planeCount)
	for i := 0; i < planeCount; i++ {
		p, err := NewImagePlaneFromSamples(w, ht, h.bitpix, samples[i*w*ht:(i+1)*w*ht])
		if err != nil {
			return err
		}
		planes[i] = p
	}
	img, err := NewAstroImage(planes...)
	if err != nil {
		return err
	}
	h.image = img
	return nil
}

func (h *ImageHDB) writePayload(enc Encoder) error {
	if h.image == nil {
		return nil
	}
	w, ht := h.Width(), h.Height()
	samples := make([]float64, 0, w*ht*h.image.PlaneCount())
	for i := 0; i < h.image.PlaneCount(); i++ {
		samples = append(samples, h.image.Plane(i).Samples()...)
	}
	return enc.WriteImage(samples, h.bitpix)
}

// imageHDBFromHeader is the registry constructor for image blocks.
func imageHDBFromHeader(hdr *BlockHeader) (HDB, error) {
	h := NewImageHDB("")
	if err := h.absorbHeader(hdr); err != nil {
		return nil, err
	}
	if hdr.Has("SIMPLE") {
		h.setPrimary(true)
	}
	if bp, ok := hdr.Int("BITPIX"); ok {
		h.bitpix = int(bp)
	}
	return h, nil
}
