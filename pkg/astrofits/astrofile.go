package astrofits

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"time"

	"github.com/google/uuid"
)

// dateObsLayouts are the DATE-OBS forms accepted on load, tried in order.
var dateObsLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// AstroFile is the container orchestrator: an ordered sequence of header
// data blocks, the observation metadata attached to the container as a
// whole, and the load/save plumbing. The first block is always the primary.
//
// State flags: dirty reports unsaved modifications, hasData reports that
// the container holds at least a primary block.
type AstroFile struct {
	id       uuid.UUID
	path     string
	codec    Codec
	registry *Registry
	hdbs     []HDB

	dirty   bool
	hasData bool

	obsTime   *ObservationTime
	target    *Target
	site      *Site
	weather   *Weather
	telescope *Telescope
}

// NewAstroFile creates an empty container bound to a codec. The container
// gets a fresh identity; Load replaces it with the stored one.
func NewAstroFile(codec Codec) *AstroFile {
	return &AstroFile{
		id:       uuid.New(),
		codec:    codec,
		registry: DefaultRegistry(),
	}
}

// SetRegistry swaps the block registry used on load. Only useful before
// the first Load.
func (f *AstroFile) SetRegistry(r *Registry) { f.registry = r }

// ID is the container identity, persisted as the UUID keyword on the
// primary block.
func (f *AstroFile) ID() uuid.UUID { return f.id }

// Path is the storage path of the last Load or SaveAs, empty for a
// container never touched by storage.
func (f *AstroFile) Path() string { return f.path }

// Dirty reports unsaved modifications.
func (f *AstroFile) Dirty() bool { return f.dirty }

// HasData reports whether the container holds any blocks.
func (f *AstroFile) HasData() bool { return f.hasData }

func (f *AstroFile) touch() {
	f.dirty = true
	f.hasData = len(f.hdbs) > 0
}

// CreatePrimary installs hdb as the primary block. A container already
// holding a primary rejects the call with ErrStructural.
func (f *AstroFile) CreatePrimary(hdb HDB) error {
	if len(f.hdbs) > 0 {
		return fmt.Errorf("primary block already present: %w", ErrStructural)
	}
	hdb.setPrimary(true)
	f.hdbs = append(f.hdbs, hdb)
	f.touch()
	return nil
}

// CreatePrimaryImage installs a new image block holding img as the primary.
func (f *AstroFile) CreatePrimaryImage(img *AstroImage) (*ImageHDB, error) {
	h := NewImageHDBFromImage("", img)
	if err := f.CreatePrimary(h); err != nil {
		return nil, err
	}
	return h, nil
}

// Append adds an extension block after the existing ones. Appending before
// a primary exists is ErrStructural; a second astrometry or photometry
// block is ErrDuplicateSingleton.
func (f *AstroFile) Append(hdb HDB) error {
	if len(f.hdbs) == 0 {
		return fmt.Errorf("container has no primary block: %w", ErrStructural)
	}
	switch hdb.Type() {
	case BlockAstrometry, BlockPhotometry:
		for _, existing := range f.hdbs {
			if existing.Type() == hdb.Type() {
				return fmt.Errorf("%s block: %w", hdb.Type(), ErrDuplicateSingleton)
			}
		}
	}
	hdb.setPrimary(false)
	f.hdbs = append(f.hdbs, hdb)
	f.touch()
	return nil
}

// HDBCount is the number of blocks in the container.
func (f *AstroFile) HDBCount() int { return len(f.hdbs) }

// HDB returns the block at index.
func (f *AstroFile) HDB(index int) (HDB, error) {
	if index < 0 || index >= len(f.hdbs) {
		return nil, fmt.Errorf("block index %d of %d: %w", index, len(f.hdbs), ErrOutOfBounds)
	}
	return f.hdbs[index], nil
}

// HDBByName returns the first block whose name matches.
func (f *AstroFile) HDBByName(name string) (HDB, bool) {
	for _, h := range f.hdbs {
		if h.Name() == name {
			return h, true
		}
	}
	return nil, false
}

// HDBType returns the variant tag of the block at index, BlockNone when out
// of range.
func (f *AstroFile) HDBType(index int) BlockType {
	if index < 0 || index >= len(f.hdbs) {
		return BlockNone
	}
	return f.hdbs[index].Type()
}

// HDBName returns the name of the block at index, empty when out of range.
func (f *AstroFile) HDBName(index int) string {
	if index < 0 || index >= len(f.hdbs) {
		return ""
	}
	return f.hdbs[index].Name()
}

// Primary returns the primary block, nil for an empty container.
func (f *AstroFile) Primary() HDB {
	if len(f.hdbs) == 0 {
		return nil
	}
	return f.hdbs[0]
}

// primaryImage returns the primary block as an image block.
func (f *AstroFile) primaryImage() (*ImageHDB, error) {
	if len(f.hdbs) == 0 {
		return nil, fmt.Errorf("container has no primary block: %w", ErrStructural)
	}
	h, ok := f.hdbs[0].(*ImageHDB)
	if !ok {
		return nil, fmt.Errorf("primary block is %s, not image: %w", f.hdbs[0].Type(), ErrStructural)
	}
	return h, nil
}

// Image returns the pixel data of the image block at index.
func (f *AstroFile) Image(index int) (*AstroImage, error) {
	h, err := f.imageHDBAt(index)
	if err != nil {
		return nil, err
	}
	return h.Image(), nil
}

func (f *AstroFile) imageHDBAt(index int) (*ImageHDB, error) {
	h, err := f.HDB(index)
	if err != nil {
		return nil, err
	}
	img, ok := h.(*ImageHDB)
	if !ok {
		return nil, &UnsupportedOperationError{Op: OpGeometric, Block: h.Type()}
	}
	return img, nil
}

// Keyword pass-through. Every accessor addresses a block by index; the
// container stays the single entry point for header edits.

// KeywordWrite upserts a keyword on the block at index.
func (f *AstroFile) KeywordWrite(index int, name string, value any, comment string) error {
	h, err := f.HDB(index)
	if err != nil {
		return err
	}
	if !h.Accepts(OpKeywordEdit) {
		return &UnsupportedOperationError{Op: OpKeywordEdit, Block: h.Type()}
	}
	if err := h.Keywords().Write(name, value, comment); err != nil {
		return err
	}
	f.dirty = true
	return nil
}

// KeywordRead returns the keyword value on the block at index.
func (f *AstroFile) KeywordRead(index int, name string) (any, bool) {
	h, err := f.HDB(index)
	if err != nil {
		return nil, false
	}
	return h.Keywords().Read(name)
}

// KeywordExists reports whether the block at index carries the keyword.
func (f *AstroFile) KeywordExists(index int, name string) bool {
	h, err := f.HDB(index)
	if err != nil {
		return false
	}
	return h.Keywords().Exists(name)
}

// KeywordDelete removes a keyword from the block at index, reporting
// whether it was present.
func (f *AstroFile) KeywordDelete(index int, name string) bool {
	h, err := f.HDB(index)
	if err != nil {
		return false
	}
	if h.Keywords().Delete(name) {
		f.dirty = true
		return true
	}
	return false
}

// KeywordCount is the number of keywords on the block at index.
func (f *AstroFile) KeywordCount(index int) int {
	h, err := f.HDB(index)
	if err != nil {
		return 0
	}
	return h.Keywords().Len()
}

// KeywordType returns the stored type of a keyword on the block at index.
func (f *AstroFile) KeywordType(index int, name string) (KeywordType, bool) {
	h, err := f.HDB(index)
	if err != nil {
		return TypeNone, false
	}
	return h.Keywords().TypeOf(name)
}

// KeywordInt64 reads a keyword on the block at index as a signed integer,
// applying the store's coercion rules.
func (f *AstroFile) KeywordInt64(index int, name string) (int64, error) {
	h, err := f.HDB(index)
	if err != nil {
		return 0, err
	}
	return h.Keywords().Int64(name)
}

// KeywordFloat64 reads a keyword on the block at index as a float.
func (f *AstroFile) KeywordFloat64(index int, name string) (float64, error) {
	h, err := f.HDB(index)
	if err != nil {
		return 0, err
	}
	return h.Keywords().Float64(name)
}

// KeywordString reads a keyword on the block at index formatted as a string.
func (f *AstroFile) KeywordString(index int, name string) (string, error) {
	h, err := f.HDB(index)
	if err != nil {
		return "", err
	}
	return h.Keywords().String(name)
}

// KeywordBool reads a keyword on the block at index as a bool.
func (f *AstroFile) KeywordBool(index int, name string) (bool, error) {
	h, err := f.HDB(index)
	if err != nil {
		return false, err
	}
	return h.Keywords().Bool(name)
}

// CommentWrite appends a comment line to the block at index.
func (f *AstroFile) CommentWrite(index int, text string) error {
	h, err := f.HDB(index)
	if err != nil {
		return err
	}
	h.CommentWrite(text)
	f.dirty = true
	return nil
}

// HistoryWrite appends a history line to the block at index.
func (f *AstroFile) HistoryWrite(index int, text string) error {
	h, err := f.HDB(index)
	if err != nil {
		return err
	}
	h.HistoryWrite(text)
	f.dirty = true
	return nil
}

// Observation metadata accessors. Each item is independently optional;
// setters mark the container dirty.

func (f *AstroFile) ObservationTime() (ObservationTime, bool) {
	if f.obsTime == nil {
		return ObservationTime{}, false
	}
	return *f.obsTime, true
}

func (f *AstroFile) SetObservationTime(t ObservationTime) {
	f.obsTime = &t
	f.dirty = true
}

func (f *AstroFile) Target() (Target, bool) {
	if f.target == nil {
		return Target{}, false
	}
	return *f.target, true
}

func (f *AstroFile) SetTarget(t Target) {
	f.target = &t
	f.dirty = true
}

func (f *AstroFile) Site() (Site, bool) {
	if f.site == nil {
		return Site{}, false
	}
	return *f.site, true
}

func (f *AstroFile) SetSite(s Site) {
	f.site = &s
	f.dirty = true
}

func (f *AstroFile) Weather() (Weather, bool) {
	if f.weather == nil {
		return Weather{}, false
	}
	return *f.weather, true
}

func (f *AstroFile) SetWeather(w Weather) {
	f.weather = &w
	f.dirty = true
}

func (f *AstroFile) Telescope() (Telescope, bool) {
	if f.telescope == nil {
		return Telescope{}, false
	}
	return *f.telescope, true
}

func (f *AstroFile) SetTelescope(t Telescope) {
	f.telescope = &t
	f.dirty = true
}

// Geometric fan-out. Each operation addresses a target block (the primary
// for the plain forms, any image block for the At forms) and transforms it
// together with every other image block sharing the target's dimensions,
// then remaps the catalog positions so astrometry and photometry stay
// pixel-aligned. Image blocks with different dimensions (thumbnails, saved
// originals) are left alone.

// fanOutTargets returns the image blocks the next geometric operation
// applies to: the block at index plus image blocks of the same size.
func (f *AstroFile) fanOutTargets(index int) ([]*ImageHDB, error) {
	target, err := f.imageHDBAt(index)
	if err != nil {
		return nil, err
	}
	if !target.Accepts(OpGeometric) {
		return nil, &UnsupportedOperationError{Op: OpGeometric, Block: BlockImage}
	}
	targets := []*ImageHDB{target}
	for i, h := range f.hdbs {
		if i == index {
			continue
		}
		img, ok := h.(*ImageHDB)
		if !ok || !img.Accepts(OpGeometric) {
			continue
		}
		if img.Width() == target.Width() && img.Height() == target.Height() {
			targets = append(targets, img)
		}
	}
	return targets, nil
}

// remapCatalogs pushes a point transform through the catalog blocks.
func (f *AstroFile) remapCatalogs(remap func(Point) Point) {
	for _, h := range f.hdbs {
		switch c := h.(type) {
		case *AstrometryHDB:
			c.remapPoints(remap)
		case *PhotometryHDB:
			c.remapPoints(remap)
		}
	}
}

// Flip mirrors the primary image stack about the horizontal axis.
func (f *AstroFile) Flip() error { return f.FlipAt(0) }

// FlipAt mirrors the image block at index about the horizontal axis.
func (f *AstroFile) FlipAt(index int) error {
	targets, err := f.fanOutTargets(index)
	if err != nil {
		return err
	}
	height := targets[0].Height()
	for _, t := range targets {
		if err := t.Flip(); err != nil {
			return err
		}
	}
	f.remapCatalogs(func(pt Point) Point { return PointFlip(pt, height) })
	f.dirty = true
	return nil
}

// Flop mirrors the primary image stack about the vertical axis.
func (f *AstroFile) Flop() error { return f.FlopAt(0) }

// FlopAt mirrors the image block at index about the vertical axis.
func (f *AstroFile) FlopAt(index int) error {
	targets, err := f.fanOutTargets(index)
	if err != nil {
		return err
	}
	width := targets[0].Width()
	for _, t := range targets {
		if err := t.Flop(); err != nil {
			return err
		}
	}
	f.remapCatalogs(func(pt Point) Point { return PointFlop(pt, width) })
	f.dirty = true
	return nil
}

// Rotate turns the primary image stack counterclockwise by angle degrees.
func (f *AstroFile) Rotate(angleDegrees float64) error { return f.RotateAt(0, angleDegrees) }

// RotateAt turns the image block at index counterclockwise by angle degrees.
func (f *AstroFile) RotateAt(index int, angleDegrees float64) error {
	targets, err := f.fanOutTargets(index)
	if err != nil {
		return err
	}
	oldW, oldH := targets[0].Width(), targets[0].Height()
	for _, t := range targets {
		if err := t.Rotate(angleDegrees); err != nil {
			return err
		}
	}
	newW, newH := targets[0].Width(), targets[0].Height()
	theta := angleDegrees * math.Pi / 180
	oldCenter := Point{X: (float64(oldW) - 1) / 2, Y: (float64(oldH) - 1) / 2}
	shift := Point{
		X: (float64(newW)-1)/2 - oldCenter.X,
		Y: (float64(newH)-1)/2 - oldCenter.Y,
	}
	f.remapCatalogs(func(pt Point) Point {
		np := PointRotate(oldCenter, pt, -theta)
		return Point{X: np.X + shift.X, Y: np.Y + shift.Y}
	})
	f.dirty = true
	return nil
}

// Crop extracts the rectangle at origin with the given dimensions from the
// primary image stack. Catalog positions shift into the cropped frame;
// positions that fall outside keep their (now negative or oversized)
// coordinates.
func (f *AstroFile) Crop(origin, dims image.Point) error { return f.CropAt(0, origin, dims) }

// CropAt extracts the rectangle from the image block at index.
func (f *AstroFile) CropAt(index int, origin, dims image.Point) error {
	targets, err := f.fanOutTargets(index)
	if err != nil {
		return err
	}
	for _, t := range targets {
		if err := t.Crop(origin, dims); err != nil {
			return err
		}
	}
	f.remapCatalogs(func(pt Point) Point {
		return Point{X: pt.X - float64(origin.X), Y: pt.Y - float64(origin.Y)}
	})
	f.dirty = true
	return nil
}

// Float centers the primary image stack in a larger canvas filled with
// background.
func (f *AstroFile) Float(newWidth, newHeight int, background float64) error {
	return f.FloatAt(0, newWidth, newHeight, background)
}

// FloatAt centers the image block at index in a larger canvas.
func (f *AstroFile) FloatAt(index, newWidth, newHeight int, background float64) error {
	targets, err := f.fanOutTargets(index)
	if err != nil {
		return err
	}
	oldW, oldH := targets[0].Width(), targets[0].Height()
	for _, t := range targets {
		if err := t.Float(newWidth, newHeight, background); err != nil {
			return err
		}
	}
	f.remapCatalogs(func(pt Point) Point {
		return PointFloat(pt, oldW, oldH, newWidth, newHeight)
	})
	f.dirty = true
	return nil
}

// Resample resizes the primary image stack with bilinear interpolation.
func (f *AstroFile) Resample(newWidth, newHeight int) error {
	return f.ResampleAt(0, newWidth, newHeight)
}

// ResampleAt resizes the image block at index.
func (f *AstroFile) ResampleAt(index, newWidth, newHeight int) error {
	targets, err := f.fanOutTargets(index)
	if err != nil {
		return err
	}
	oldW, oldH := targets[0].Width(), targets[0].Height()
	for _, t := range targets {
		if err := t.Resample(newWidth, newHeight); err != nil {
			return err
		}
	}
	f.remapCatalogs(func(pt Point) Point {
		return PointResample(pt, oldW, oldH, newWidth, newHeight)
	})
	f.dirty = true
	return nil
}

// BinPixels reduces each factor x factor block of the primary image stack
// to one summed sample.
func (f *AstroFile) BinPixels(factor int) error { return f.BinPixelsAt(0, factor) }

// BinPixelsAt bins the image block at index.
func (f *AstroFile) BinPixelsAt(index, factor int) error {
	targets, err := f.fanOutTargets(index)
	if err != nil {
		return err
	}
	for _, t := range targets {
		if err := t.BinPixels(factor); err != nil {
			return err
		}
	}
	f.remapCatalogs(func(pt Point) Point { return PointBin(pt, factor) })
	f.dirty = true
	return nil
}

// TRS applies a translate-rotate-scale transform about center to the
// primary image stack.
func (f *AstroFile) TRS(center, offset Point, angleDegrees, scale float64, pixelSize Point) error {
	return f.TRSAt(0, center, offset, angleDegrees, scale, pixelSize)
}

// TRSAt applies a translate-rotate-scale transform to the image block at
// index.
func (f *AstroFile) TRSAt(index int, center, offset Point, angleDegrees, scale float64, pixelSize Point) error {
	targets, err := f.fanOutTargets(index)
	if err != nil {
		return err
	}
	for _, t := range targets {
		if err := t.TRS(center, offset, angleDegrees, scale, pixelSize, nil); err != nil {
			return err
		}
	}
	f.remapCatalogs(func(pt Point) Point {
		return PointTRS(pt, center, offset, angleDegrees, scale, pixelSize)
	})
	f.dirty = true
	return nil
}

// Catalog facades. Each singleton block is created on first use.

// Astrometry returns the astrometry catalog, creating and appending it
// when absent.
func (f *AstroFile) Astrometry() (*AstrometryHDB, error) {
	for _, h := range f.hdbs {
		if a, ok := h.(*AstrometryHDB); ok {
			return a, nil
		}
	}
	a := NewAstrometryHDB()
	if err := f.Append(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Photometry returns the photometry catalog, creating and appending it
// when absent.
func (f *AstroFile) Photometry() (*PhotometryHDB, error) {
	for _, h := range f.hdbs {
		if p, ok := h.(*PhotometryHDB); ok {
			return p, nil
		}
	}
	p := NewPhotometryHDB()
	if err := f.Append(p); err != nil {
		return nil, err
	}
	return p, nil
}

// AstrometryAdd records a reference object, creating the catalog block on
// first use. A duplicate identifier reports false without modifying the
// catalog.
func (f *AstroFile) AstrometryAdd(obs AstrometryObservation) (bool, error) {
	a, err := f.Astrometry()
	if err != nil {
		return false, err
	}
	if !a.Add(obs) {
		return false, nil
	}
	f.dirty = true
	return true, nil
}

// PhotometryAdd records a measured source, creating the catalog block on
// first use.
func (f *AstroFile) PhotometryAdd(obs PhotometryObservation) (bool, error) {
	p, err := f.Photometry()
	if err != nil {
		return false, err
	}
	if !p.Add(obs) {
		return false, nil
	}
	f.dirty = true
	return true, nil
}

// HasAstrometry reports whether an astrometry catalog block is present.
func (f *AstroFile) HasAstrometry() bool {
	for _, h := range f.hdbs {
		if _, ok := h.(*AstrometryHDB); ok {
			return true
		}
	}
	return false
}

// HasPhotometry reports whether a photometry catalog block is present.
func (f *AstroFile) HasPhotometry() bool {
	for _, h := range f.hdbs {
		if _, ok := h.(*PhotometryHDB); ok {
			return true
		}
	}
	return false
}

// AstrometryRemove deletes one reference object by identifier.
func (f *AstroFile) AstrometryRemove(id string) bool {
	if !f.HasAstrometry() {
		return false
	}
	a, _ := f.Astrometry()
	if a.Remove(id) {
		f.dirty = true
		return true
	}
	return false
}

// AstrometryRemoveAll clears the astrometry catalog, keeping the block.
func (f *AstroFile) AstrometryRemoveAll() {
	if !f.HasAstrometry() {
		return
	}
	a, _ := f.Astrometry()
	if a.Count() > 0 {
		a.RemoveAll()
		f.dirty = true
	}
}

// AstrometryCount is the number of catalogued reference objects, zero
// when the block is absent.
func (f *AstroFile) AstrometryCount() int {
	if !f.HasAstrometry() {
		return 0
	}
	a, _ := f.Astrometry()
	return a.Count()
}

// PhotometryRemove deletes one measured source by identifier.
func (f *AstroFile) PhotometryRemove(id string) bool {
	if !f.HasPhotometry() {
		return false
	}
	p, _ := f.Photometry()
	if p.Remove(id) {
		f.dirty = true
		return true
	}
	return false
}

// PhotometryRemoveAll clears the photometry catalog, keeping the block.
func (f *AstroFile) PhotometryRemoveAll() {
	if !f.HasPhotometry() {
		return
	}
	p, _ := f.Photometry()
	if p.Count() > 0 {
		p.RemoveAll()
		f.dirty = true
	}
}

// PhotometryCount is the number of catalogued sources, zero when the
// block is absent.
func (f *AstroFile) PhotometryCount() int {
	if !f.HasPhotometry() {
		return 0
	}
	p, _ := f.Photometry()
	return p.Count()
}

// Statistics pass-through on the first plane of the image block at index.

func (f *AstroFile) planeAt(index int) (*ImagePlane, error) {
	h, err := f.imageHDBAt(index)
	if err != nil {
		return nil, err
	}
	img := h.Image()
	if img == nil {
		return nil, &UnsupportedOperationError{Op: OpGeometric, Block: BlockImage}
	}
	return img.Plane(0), nil
}

func (f *AstroFile) ImageMin(index int) (float64, error) {
	p, err := f.planeAt(index)
	if err != nil {
		return 0, err
	}
	return p.Min(), nil
}

func (f *AstroFile) ImageMax(index int) (float64, error) {
	p, err := f.planeAt(index)
	if err != nil {
		return 0, err
	}
	return p.Max(), nil
}

func (f *AstroFile) ImageMean(index int) (float64, error) {
	p, err := f.planeAt(index)
	if err != nil {
		return 0, err
	}
	return p.Mean(), nil
}

func (f *AstroFile) ImageStdDev(index int) (float64, error) {
	p, err := f.planeAt(index)
	if err != nil {
		return 0, err
	}
	return p.StdDev(), nil
}

func (f *AstroFile) ImageBlackPoint(index int) (float64, error) {
	p, err := f.planeAt(index)
	if err != nil {
		return 0, err
	}
	return p.BlackPoint(), nil
}

func (f *AstroFile) ImageWhitePoint(index int) (float64, error) {
	p, err := f.planeAt(index)
	if err != nil {
		return 0, err
	}
	return p.WhitePoint(), nil
}

// World coordinate facade over the primary image block.

// HasWCS reports whether the primary image carries a plate solution.
func (f *AstroFile) HasWCS() bool {
	h, err := f.primaryImage()
	if err != nil {
		return false
	}
	_, ok := h.WCS()
	return ok
}

// Pix2WCS maps a pixel position on the primary image to the sky.
func (f *AstroFile) Pix2WCS(px Point) (SkyCoordinates, error) {
	h, err := f.primaryImage()
	if err != nil {
		return SkyCoordinates{}, err
	}
	w, ok := h.WCS()
	if !ok {
		return SkyCoordinates{}, fmt.Errorf("no plate solution on primary image: %w", ErrStructural)
	}
	return w.Pix2Sky(px), nil
}

// WCS2Pix maps sky coordinates to a pixel position on the primary image.
func (f *AstroFile) WCS2Pix(sky SkyCoordinates) (Point, error) {
	h, err := f.primaryImage()
	if err != nil {
		return Point{}, err
	}
	w, ok := h.WCS()
	if !ok {
		return Point{}, fmt.Errorf("no plate solution on primary image: %w", ErrStructural)
	}
	return w.Sky2Pix(sky)
}

// PlateSolve runs the external solver on the primary image and stores the
// resulting solution on it. The target coordinates, when set, seed the
// solver's search.
func (f *AstroFile) PlateSolve(ctx context.Context, solver PlateSolver) error {
	h, err := f.primaryImage()
	if err != nil {
		return err
	}
	img := h.Image()
	if img == nil {
		return &UnsupportedOperationError{Op: OpGeometric, Block: BlockImage}
	}
	var hint SkyCoordinates
	if f.target != nil {
		hint = f.target.Coordinates
	}
	sol, err := solver.Solve(ctx, img.Plane(0), hint)
	if err != nil {
		return fmt.Errorf("plate solve: %w", err)
	}
	h.SetWCS(sol)
	f.dirty = true
	return nil
}

// FindStars runs the external detector on the primary image.
func (f *AstroFile) FindStars(ctx context.Context, detector SourceDetector) ([]SourceCandidate, error) {
	h, err := f.primaryImage()
	if err != nil {
		return nil, err
	}
	img := h.Image()
	if img == nil {
		return nil, &UnsupportedOperationError{Op: OpGeometric, Block: BlockImage}
	}
	sources, err := detector.DetectSources(ctx, img.Plane(0))
	if err != nil {
		return nil, fmt.Errorf("find stars: %w", err)
	}
	return sources, nil
}

// Load reads a container from path, replacing the current contents. The
// block registry resolves each header to a variant; the primary block's
// keywords are mined for observation metadata and the container identity.
// On success the container is clean and hasData is set.
func (f *AstroFile) Load(path string) error {
	dec, err := f.codec.OpenRead(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer dec.Close()

	var hdbs []HDB
	for {
		hdr, err := dec.NextBlock()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read block %d of %s: %w", len(hdbs), path, err)
		}
		hdb, err := f.registry.Resolve(hdr)
		if err != nil {
			return fmt.Errorf("block %d of %s: %w", len(hdbs), path, err)
		}
		switch hdb.Type() {
		case BlockAstrometry, BlockPhotometry:
			for _, existing := range hdbs {
				if existing.Type() == hdb.Type() {
					return fmt.Errorf("%s of %s: %w", hdb.Type(), path, ErrDuplicateSingleton)
				}
			}
		}
		if err := hdb.loadPayload(dec); err != nil {
			return fmt.Errorf("block %d of %s: %w", len(hdbs), path, err)
		}
		hdbs = append(hdbs, hdb)
	}
	if len(hdbs) == 0 {
		return fmt.Errorf("%s holds no blocks: %w", path, ErrStructural)
	}
	hdbs[0].setPrimary(true)

	f.hdbs = hdbs
	f.path = path
	f.absorbMetadata()
	f.hasData = true
	f.dirty = false
	return nil
}

// Save writes the container back to its storage path.
func (f *AstroFile) Save() error {
	if f.path == "" {
		return fmt.Errorf("container has no storage path: %w", ErrStructural)
	}
	return f.SaveAs(f.path)
}

// SaveAs writes the container to path. The dirty flag clears only after
// every block has been written and the encoder closed.
func (f *AstroFile) SaveAs(path string) error {
	if len(f.hdbs) == 0 {
		return fmt.Errorf("container has no primary block: %w", ErrStructural)
	}
	f.emitMetadata()

	enc, err := f.codec.OpenWrite(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	for i, hdb := range f.hdbs {
		hdr, err := hdb.headerCards()
		if err != nil {
			enc.Close()
			return fmt.Errorf("block %d header: %w", i, err)
		}
		if err := enc.WriteHeader(hdr); err != nil {
			enc.Close()
			return fmt.Errorf("write block %d header: %w", i, err)
		}
		if err := hdb.writePayload(enc); err != nil {
			enc.Close()
			return fmt.Errorf("write block %d payload: %w", i, err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	f.path = path
	f.dirty = false
	return nil
}

// absorbMetadata mines the primary block keywords for the container
// identity and the observation metadata value objects. Partial vocabularies
// fill what they can; absent groups stay unset.
func (f *AstroFile) absorbMetadata() {
	kw := f.hdbs[0].Keywords()

	if s, err := kw.String(KwUUID); err == nil {
		if id, err := uuid.Parse(s); err == nil {
			f.id = id
		}
	}

	if name, err := kw.String(KwObject); err == nil {
		t := Target{Name: name}
		if ra, err := kw.Float64(KwRA); err == nil {
			t.Coordinates.RA = ra
		}
		if dec, err := kw.Float64(KwDec); err == nil {
			t.Coordinates.Dec = dec
		}
		f.target = &t
	}

	if s, err := kw.String(KwDateObs); err == nil {
		for _, layout := range dateObsLayouts {
			if start, perr := time.Parse(layout, s); perr == nil {
				ot := ObservationTime{Start: start}
				if exp, err := kw.Float64(KwExpTime); err == nil {
					ot.Exposure = exp
				} else if exp, err := kw.Float64(KwExposure); err == nil {
					ot.Exposure = exp
				}
				f.obsTime = &ot
				break
			}
		}
	}

	if lat, err := kw.Float64(KwSiteLat); err == nil {
		s := Site{Latitude: lat}
		if name, err := kw.String(KwSiteName); err == nil {
			s.Name = name
		}
		if lon, err := kw.Float64(KwSiteLong); err == nil {
			s.Longitude = lon
		}
		if alt, err := kw.Float64(KwSiteElev); err == nil {
			s.Altitude = alt
		}
		f.site = &s
	}

	if temp, err := kw.Float64(KwAmbTemp); err == nil {
		w := Weather{Temperature: temp}
		if p, err := kw.Float64(KwPressure); err == nil {
			w.Pressure = p
		}
		if h, err := kw.Float64(KwHumidity); err == nil {
			w.Humidity = h
		}
		f.weather = &w
	}

	if name, err := kw.String(KwTelescope); err == nil {
		t := Telescope{Name: name}
		if ap, err := kw.Float64(KwAperture); err == nil {
			t.Aperture = ap
		}
		if fl, err := kw.Float64(KwFocalLen); err == nil {
			t.FocalLength = fl
		}
		f.telescope = &t
	}

	if h, ok := f.hdbs[0].(*ImageHDB); ok {
		if px, err := kw.Float64(KwPixSizeX); err == nil {
			py := px
			if v, err := kw.Float64(KwPixSizeY); err == nil {
				py = v
			}
			h.SetPixelSize(Point{X: px, Y: py})
		}
	}
}

// emitMetadata writes the container identity and the set metadata value
// objects into the primary block keywords before a save.
func (f *AstroFile) emitMetadata() {
	kw := f.hdbs[0].Keywords()
	_ = kw.Write(KwUUID, f.id.String(), "container identity")

	if f.target != nil {
		_ = kw.Write(KwObject, f.target.Name, "target name")
		_ = kw.Write(KwRA, f.target.Coordinates.RA, "target RA, degrees")
		_ = kw.Write(KwDec, f.target.Coordinates.Dec, "target Dec, degrees")
	}
	if f.obsTime != nil {
		_ = kw.Write(KwDateObs, f.obsTime.Start.Format("2006-01-02T15:04:05"), "exposure start, UTC")
		_ = kw.Write(KwExpTime, f.obsTime.Exposure, "exposure duration, seconds")
	}
	if f.site != nil {
		if f.site.Name != "" {
			_ = kw.Write(KwSiteName, f.site.Name, "")
		}
		_ = kw.Write(KwSiteLat, f.site.Latitude, "site latitude, degrees")
		_ = kw.Write(KwSiteLong, f.site.Longitude, "site longitude, degrees")
		_ = kw.Write(KwSiteElev, f.site.Altitude, "site altitude, metres")
	}
	if f.weather != nil {
		_ = kw.Write(KwAmbTemp, f.weather.Temperature, "ambient temperature, C")
		_ = kw.Write(KwPressure, f.weather.Pressure, "pressure, hPa")
		_ = kw.Write(KwHumidity, f.weather.Humidity, "relative humidity, percent")
	}
	if f.telescope != nil {
		_ = kw.Write(KwTelescope, f.telescope.Name, "")
		if f.telescope.Aperture > 0 {
			_ = kw.Write(KwAperture, f.telescope.Aperture, "aperture, mm")
		}
		if f.telescope.FocalLength > 0 {
			_ = kw.Write(KwFocalLen, f.telescope.FocalLength, "focal length, mm")
		}
	}
	if h, ok := f.hdbs[0].(*ImageHDB); ok {
		if ps, ok := h.PixelSize(); ok {
			_ = kw.Write(KwPixSizeX, ps.X, "pixel width, um")
			_ = kw.Write(KwPixSizeY, ps.Y, "pixel height, um")
		}
	}
}
