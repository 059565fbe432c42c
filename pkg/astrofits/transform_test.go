package astrofits

import (
	"errors"
	"image"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func planeFrom(t *testing.T, width, height int, samples []float64) *ImagePlane {
	t.Helper()
	p, err := NewImagePlaneFromSamples(width, height, BitPixFloat64, samples)
	if err != nil {
		t.Fatalf("NewImagePlaneFromSamples: %v", err)
	}
	return p
}

func TestFlip(t *testing.T) {
	t.Parallel()

	p := planeFrom(t, 2, 3, []float64{
		1, 2,
		3, 4,
		5, 6,
	})
	got := p.Flip()
	want := []float64{
		5, 6,
		3, 4,
		1, 2,
	}
	if diff := cmp.Diff(want, got.Samples()); diff != "" {
		t.Errorf("Flip mismatch (-want +got):\n%s", diff)
	}
	// Double flip is the identity.
	if diff := cmp.Diff(p.Samples(), got.Flip().Samples()); diff != "" {
		t.Errorf("Flip twice is not identity:\n%s", diff)
	}
}

func TestFlop(t *testing.T) {
	t.Parallel()

	p := planeFrom(t, 3, 2, []float64{
		1, 2, 3,
		4, 5, 6,
	})
	got := p.Flop()
	want := []float64{
		3, 2, 1,
		6, 5, 4,
	}
	if diff := cmp.Diff(want, got.Samples()); diff != "" {
		t.Errorf("Flop mismatch (-want +got):\n%s", diff)
	}
}

func TestCrop(t *testing.T) {
	t.Parallel()

	p := planeFrom(t, 4, 4, []float64{
		0, 1, 2, 3,
		4, 5, 6, 7,
		8, 9, 10, 11,
		12, 13, 14, 15,
	})

	got, err := p.Crop(image.Pt(1, 1), image.Pt(2, 2))
	if err != nil {
		t.Fatalf("Crop: %v", err)
	}
	want := []float64{
		5, 6,
		9, 10,
	}
	if diff := cmp.Diff(want, got.Samples()); diff != "" {
		t.Errorf("Crop mismatch (-want +got):\n%s", diff)
	}

	if _, err := p.Crop(image.Pt(3, 3), image.Pt(2, 2)); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("oversized crop err = %v, want ErrOutOfBounds", err)
	}
	if _, err := p.Crop(image.Pt(-1, 0), image.Pt(2, 2)); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("negative origin err = %v, want ErrOutOfBounds", err)
	}
}

func TestRotateQuarterTurn(t *testing.T) {
	t.Parallel()

	p := planeFrom(t, 3, 3, []float64{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	})
	got := p.Rotate(90)
	if got.Width() != 3 || got.Height() != 3 {
		t.Fatalf("rotated size = %dx%d, want 3x3", got.Width(), got.Height())
	}
	// Positive angle with bottom-up row order: the top row becomes the
	// right column.
	want := []float64{
		7, 4, 1,
		8, 5, 2,
		9, 6, 3,
	}
	for i, w := range want {
		if math.Abs(got.Samples()[i]-w) > 1e-9 {
			t.Errorf("sample %d = %v, want %v", i, got.Samples()[i], w)
		}
	}
}

func TestRotateExpandsBounds(t *testing.T) {
	t.Parallel()

	p := planeFrom(t, 4, 2, make([]float64, 8))
	got := p.Rotate(90)
	if got.Width() != 2 || got.Height() != 4 {
		t.Errorf("rotated size = %dx%d, want 2x4", got.Width(), got.Height())
	}
}

func TestFloat(t *testing.T) {
	t.Parallel()

	p := planeFrom(t, 2, 2, []float64{1, 2, 3, 4})
	got, err := p.Float(4, 4, -1)
	if err != nil {
		t.Fatalf("Float: %v", err)
	}
	want := []float64{
		-1, -1, -1, -1,
		-1, 1, 2, -1,
		-1, 3, 4, -1,
		-1, -1, -1, -1,
	}
	if diff := cmp.Diff(want, got.Samples()); diff != "" {
		t.Errorf("Float mismatch (-want +got):\n%s", diff)
	}

	if _, err := p.Float(1, 4, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("shrinking float err = %v, want ErrInvalidArgument", err)
	}
}

func TestResampleIdentity(t *testing.T) {
	t.Parallel()

	p := planeFrom(t, 3, 2, []float64{1, 2, 3, 4, 5, 6})
	got, err := p.Resample(3, 2)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if diff := cmp.Diff(p.Samples(), got.Samples()); diff != "" {
		t.Errorf("identity resample mismatch:\n%s", diff)
	}
}

func TestResampleDoubling(t *testing.T) {
	t.Parallel()

	p := planeFrom(t, 2, 1, []float64{0, 2})
	got, err := p.Resample(4, 1)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if got.Width() != 4 {
		t.Fatalf("width = %d, want 4", got.Width())
	}
	// Upsampled values must stay within the source range and keep order.
	prev := -1.0
	for i, v := range got.Samples() {
		if v < 0 || v > 2 {
			t.Errorf("sample %d = %v outside [0, 2]", i, v)
		}
		if v < prev {
			t.Errorf("sample %d = %v not monotonic", i, v)
		}
		prev = v
	}
}

func TestBinPixels(t *testing.T) {
	t.Parallel()

	p := planeFrom(t, 4, 2, []float64{
		1, 1, 2, 2,
		1, 1, 2, 2,
	})
	got, err := p.BinPixels(2)
	if err != nil {
		t.Fatalf("BinPixels: %v", err)
	}
	want := []float64{4, 8}
	if diff := cmp.Diff(want, got.Samples()); diff != "" {
		t.Errorf("BinPixels mismatch (-want +got):\n%s", diff)
	}
}

func TestBinPixelsRejectsBadFactor(t *testing.T) {
	t.Parallel()

	p := planeFrom(t, 4, 4, make([]float64, 16))
	for _, factor := range []int{0, -1, 3, 11} {
		if _, err := p.BinPixels(factor); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("BinPixels(%d) err = %v, want ErrInvalidArgument", factor, err)
		}
	}
}

func TestTRSIdentity(t *testing.T) {
	t.Parallel()

	p := planeFrom(t, 4, 4, []float64{
		0, 1, 2, 3,
		4, 5, 6, 7,
		8, 9, 10, 11,
		12, 13, 14, 15,
	})
	center := Point{X: 1.5, Y: 1.5}
	got, err := p.TRS(center, Point{}, 0, 1, Point{X: 1, Y: 1}, nil)
	if err != nil {
		t.Fatalf("TRS: %v", err)
	}
	for i := range p.Samples() {
		if math.Abs(got.Samples()[i]-p.Samples()[i]) > 1e-9 {
			t.Errorf("sample %d = %v, want %v", i, got.Samples()[i], p.Samples()[i])
		}
	}
}

func TestTRSTranslate(t *testing.T) {
	t.Parallel()

	p := planeFrom(t, 4, 1, []float64{10, 20, 30, 40})
	mask := make([]bool, 4)
	got, err := p.TRS(Point{}, Point{X: 1}, 0, 1, Point{X: 1, Y: 1}, mask)
	if err != nil {
		t.Fatalf("TRS: %v", err)
	}
	// Shift right by one: destination x samples source x-1.
	want := []float64{0, 10, 20, 30}
	for i, w := range want {
		if math.Abs(got.Samples()[i]-w) > 1e-9 {
			t.Errorf("sample %d = %v, want %v", i, got.Samples()[i], w)
		}
	}
	wantMask := []bool{false, true, true, true}
	if diff := cmp.Diff(wantMask, mask); diff != "" {
		t.Errorf("mask mismatch (-want +got):\n%s", diff)
	}
}

func TestTRSRejectsBadArguments(t *testing.T) {
	t.Parallel()

	p := planeFrom(t, 2, 2, make([]float64, 4))
	if _, err := p.TRS(Point{}, Point{}, 0, 0, Point{X: 1, Y: 1}, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("zero scale err = %v, want ErrInvalidArgument", err)
	}
	if _, err := p.TRS(Point{}, Point{}, 0, 1, Point{}, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("zero pixel size err = %v, want ErrInvalidArgument", err)
	}
	if _, err := p.TRS(Point{}, Point{}, 0, 1, Point{X: 1, Y: 1}, make([]bool, 3)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("short mask err = %v, want ErrInvalidArgument", err)
	}
}

func TestPointTRSMatchesPlaneTRS(t *testing.T) {
	t.Parallel()

	// A point moved forward by PointTRS lands where the plane transform
	// put the source pixel's value.
	const size = 33
	samples := make([]float64, size*size)
	src := Point{X: 12, Y: 17}
	samples[int(src.Y)*size+int(src.X)] = 100
	p := planeFrom(t, size, size, samples)

	center := Point{X: 16, Y: 16}
	offset := Point{X: 2, Y: -1}
	angle := 30.0
	scale := 1.25
	pixel := Point{X: 1, Y: 1}

	out, err := p.TRS(center, offset, angle, scale, pixel, nil)
	if err != nil {
		t.Fatalf("TRS: %v", err)
	}
	dst := PointTRS(src, center, offset, angle, scale, pixel)

	// The brightest output pixel sits at the forward-mapped position.
	bestI, bestV := 0, -1.0
	for i, v := range out.Samples() {
		if v > bestV {
			bestI, bestV = i, v
		}
	}
	bx := float64(bestI % size)
	by := float64(bestI / size)
	if math.Abs(bx-dst.X) > 1 || math.Abs(by-dst.Y) > 1 {
		t.Errorf("brightest pixel at (%v, %v), forward map says (%v, %v)", bx, by, dst.X, dst.Y)
	}
}

func TestPointHelpers(t *testing.T) {
	t.Parallel()

	if got := PointFlip(Point{X: 1, Y: 0}, 4); got != (Point{X: 1, Y: 3}) {
		t.Errorf("PointFlip = %v", got)
	}
	if got := PointFlop(Point{X: 0, Y: 2}, 5); got != (Point{X: 4, Y: 2}) {
		t.Errorf("PointFlop = %v", got)
	}
	if got := PointBin(Point{X: 4, Y: 6}, 2); got != (Point{X: 2, Y: 3}) {
		t.Errorf("PointBin = %v", got)
	}
	if got := PointResample(Point{X: 2, Y: 2}, 4, 4, 8, 8); got != (Point{X: 4, Y: 4}) {
		t.Errorf("PointResample = %v", got)
	}
	if got := PointFloat(Point{X: 1, Y: 1}, 2, 2, 6, 6); got != (Point{X: 3, Y: 3}) {
		t.Errorf("PointFloat = %v", got)
	}

	got, ok := PointCrop(Point{X: 3, Y: 3}, image.Pt(2, 2), image.Pt(4, 4))
	if !ok || got != (Point{X: 1, Y: 1}) {
		t.Errorf("PointCrop = %v, %v", got, ok)
	}
	if _, ok := PointCrop(Point{X: 0, Y: 0}, image.Pt(2, 2), image.Pt(4, 4)); ok {
		t.Error("PointCrop outside crop reported ok")
	}
}

func TestApplyPlanesAtomicity(t *testing.T) {
	t.Parallel()

	p1 := planeFrom(t, 2, 2, []float64{1, 2, 3, 4})
	p2 := planeFrom(t, 2, 2, []float64{5, 6, 7, 8})
	img, err := NewAstroImage(p1, p2)
	if err != nil {
		t.Fatalf("NewAstroImage: %v", err)
	}

	// Second plane fails; the first must not have been swapped in.
	calls := 0
	err = img.applyPlanes(func(p *ImagePlane) (*ImagePlane, error) {
		calls++
		if calls == 2 {
			return nil, ErrInvalidArgument
		}
		return p.Flip(), nil
	})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("applyPlanes err = %v", err)
	}
	if diff := cmp.Diff([]float64{1, 2, 3, 4}, img.Plane(0).Samples()); diff != "" {
		t.Errorf("plane 0 mutated after failed apply:\n%s", diff)
	}
}

func TestPlaneStatistics(t *testing.T) {
	t.Parallel()

	p := planeFrom(t, 2, 2, []float64{1, 2, 3, 4})
	if got := p.Min(); got != 1 {
		t.Errorf("Min = %v", got)
	}
	if got := p.Max(); got != 4 {
		t.Errorf("Max = %v", got)
	}
	if got := p.Mean(); got != 2.5 {
		t.Errorf("Mean = %v", got)
	}
	wantSD := math.Sqrt(1.25)
	if got := p.StdDev(); math.Abs(got-wantSD) > 1e-12 {
		t.Errorf("StdDev = %v, want %v", got, wantSD)
	}
	if got := p.WhitePoint(); math.Abs(got-(2.5+3*wantSD)) > 1e-12 {
		t.Errorf("WhitePoint = %v", got)
	}
}
