package astrofits

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// saveFrame stores a reference frame under path with the given pixels and
// keywords.
func saveFrame(t *testing.T, codec Codec, path string, img *AstroImage, keywords map[string]any) {
	t.Helper()
	f := NewAstroFile(codec)
	if _, err := f.CreatePrimaryImage(img); err != nil {
		t.Fatalf("CreatePrimaryImage(%s): %v", path, err)
	}
	for name, v := range keywords {
		if err := f.KeywordWrite(0, name, v, ""); err != nil {
			t.Fatalf("KeywordWrite(%s, %s): %v", path, name, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs(%s): %v", path, err)
	}
}

func flat(v float64, n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestCalibrateBiasDarkFlat(t *testing.T) {
	t.Parallel()

	codec := newMemCodec()
	saveFrame(t, codec, "bias.fit", monoImage(t, 2, 2, flat(100, 4)), nil)
	saveFrame(t, codec, "dark.fit", monoImage(t, 2, 2, flat(50, 4)), map[string]any{
		KwExpTime: 300.0, KwCCDTemp: -10.0,
	})
	// Flat division rescales by the flat mean, so a uniform flat leaves
	// values unchanged; this one attenuates the left column.
	saveFrame(t, codec, "flat.fit", monoImage(t, 2, 2, []float64{4, 1, 4, 1}), nil)

	f := NewAstroFile(codec)
	if _, err := f.CreatePrimaryImage(monoImage(t, 2, 2, []float64{1150, 650, 1150, 650})); err != nil {
		t.Fatal(err)
	}
	_ = f.KeywordWrite(0, KwExpTime, 300.0, "")
	_ = f.KeywordWrite(0, KwCCDTemp, -10.0, "")

	err := f.Calibrate(CalibrationSpec{
		UseBias: true, BiasPath: "bias.fit",
		UseDark: true, DarkPath: "dark.fit",
		UseFlat: true, FlatPath: "flat.fit",
	})
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}

	// (raw - bias - dark) * flatMean / flat:
	// left column: (1150-100-50) * 2.5 / 4 = 625
	// right column: (650-100-50) * 2.5 / 1 = 1250
	img, _ := f.Image(0)
	want := []float64{625, 1250, 625, 1250}
	if diff := cmp.Diff(want, img.Plane(0).Samples()); diff != "" {
		t.Errorf("calibrated pixels (-want +got):\n%s", diff)
	}
	if !f.Dirty() {
		t.Error("container not dirty after calibration")
	}
	if f.HDBCount() != 1 {
		t.Errorf("HDBCount = %d, want 1 without append flags", f.HDBCount())
	}
	if h, _ := f.HDB(0); h.History() == "" {
		t.Error("calibration left no history entry")
	}
}

func TestCalibrateRejectsDimensionMismatch(t *testing.T) {
	t.Parallel()

	codec := newMemCodec()
	saveFrame(t, codec, "bias.fit", monoImage(t, 4, 4, flat(100, 16)), nil)

	f := NewAstroFile(codec)
	if _, err := f.CreatePrimaryImage(monoImage(t, 2, 2, flat(500, 4))); err != nil {
		t.Fatal(err)
	}
	// Settle the dirty flag so the failed calibration below is the only
	// thing that could set it.
	if err := f.SaveAs("target.fit"); err != nil {
		t.Fatal(err)
	}
	if f.Dirty() {
		t.Fatal("container dirty after save")
	}
	before, _ := f.Image(0)
	beforePixels := append([]float64(nil), before.Plane(0).Samples()...)

	err := f.Calibrate(CalibrationSpec{UseBias: true, BiasPath: "bias.fit"})
	var fe *IncompatibleFrameError
	if !errors.As(err, &fe) {
		t.Fatalf("Calibrate err = %v, want IncompatibleFrameError", err)
	}
	if fe.Frame != "bias" {
		t.Errorf("Frame = %q, want bias", fe.Frame)
	}

	after, _ := f.Image(0)
	if diff := cmp.Diff(beforePixels, after.Plane(0).Samples()); diff != "" {
		t.Errorf("failed calibration modified pixels:\n%s", diff)
	}
	if f.Dirty() {
		t.Error("failed calibration marked the container dirty")
	}
}

func TestCalibrateDarkValidation(t *testing.T) {
	t.Parallel()

	codec := newMemCodec()
	saveFrame(t, codec, "dark.fit", monoImage(t, 2, 2, flat(50, 4)), map[string]any{
		KwExpTime: 60.0, KwCCDTemp: -10.0,
	})

	newTarget := func() *AstroFile {
		f := NewAstroFile(codec)
		if _, err := f.CreatePrimaryImage(monoImage(t, 2, 2, flat(500, 4))); err != nil {
			t.Fatal(err)
		}
		_ = f.KeywordWrite(0, KwExpTime, 300.0, "")
		_ = f.KeywordWrite(0, KwCCDTemp, -10.0, "")
		return f
	}

	// Exposure mismatch fails without the override.
	f := newTarget()
	err := f.Calibrate(CalibrationSpec{UseDark: true, DarkPath: "dark.fit"})
	var fe *IncompatibleFrameError
	if !errors.As(err, &fe) || fe.Frame != "dark" {
		t.Fatalf("Calibrate err = %v, want dark IncompatibleFrameError", err)
	}

	// The override waives the exposure check.
	f = newTarget()
	err = f.Calibrate(CalibrationSpec{
		UseDark: true, DarkPath: "dark.fit", OverrideDarkExposure: true,
	})
	if err != nil {
		t.Fatalf("Calibrate with override: %v", err)
	}
	img, _ := f.Image(0)
	if img.Plane(0).At(0, 0) != 450 {
		t.Errorf("pixel = %v, want 450", img.Plane(0).At(0, 0))
	}
}

func TestCalibrateDarkTemperatureValidation(t *testing.T) {
	t.Parallel()

	codec := newMemCodec()
	saveFrame(t, codec, "dark.fit", monoImage(t, 2, 2, flat(50, 4)), map[string]any{
		KwExpTime: 300.0, KwCCDTemp: 5.0,
	})

	f := NewAstroFile(codec)
	if _, err := f.CreatePrimaryImage(monoImage(t, 2, 2, flat(500, 4))); err != nil {
		t.Fatal(err)
	}
	_ = f.KeywordWrite(0, KwExpTime, 300.0, "")
	_ = f.KeywordWrite(0, KwCCDTemp, -10.0, "")

	err := f.Calibrate(CalibrationSpec{UseDark: true, DarkPath: "dark.fit"})
	var fe *IncompatibleFrameError
	if !errors.As(err, &fe) {
		t.Fatalf("Calibrate err = %v, want IncompatibleFrameError", err)
	}

	err = f.Calibrate(CalibrationSpec{
		UseDark: true, DarkPath: "dark.fit", OverrideDarkTemperature: true,
	})
	if err != nil {
		t.Fatalf("Calibrate with temperature override: %v", err)
	}
}

func TestCalibrateAppendFlags(t *testing.T) {
	t.Parallel()

	codec := newMemCodec()
	saveFrame(t, codec, "bias.fit", monoImage(t, 2, 2, flat(100, 4)), nil)

	f := NewAstroFile(codec)
	if _, err := f.CreatePrimaryImage(monoImage(t, 2, 2, flat(500, 4))); err != nil {
		t.Fatal(err)
	}

	err := f.Calibrate(CalibrationSpec{
		UseBias: true, BiasPath: "bias.fit",
		SaveOriginal: true, AppendFrames: true,
	})
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}

	if f.HDBCount() != 3 {
		t.Fatalf("HDBCount = %d, want primary + ORIGINAL + BIAS", f.HDBCount())
	}
	orig, ok := f.HDBByName("ORIGINAL")
	if !ok {
		t.Fatal("ORIGINAL block missing")
	}
	if orig.(*ImageHDB).Image().Plane(0).At(0, 0) != 500 {
		t.Error("ORIGINAL does not hold pre-calibration pixels")
	}
	bias, ok := f.HDBByName("BIAS")
	if !ok {
		t.Fatal("BIAS block missing")
	}
	if bias.(*ImageHDB).Image().Plane(0).At(0, 0) != 100 {
		t.Error("BIAS does not hold the reference pixels")
	}

	img, _ := f.Image(0)
	if img.Plane(0).At(0, 0) != 400 {
		t.Errorf("calibrated pixel = %v, want 400", img.Plane(0).At(0, 0))
	}
}

func TestCalibrateNeedsSelection(t *testing.T) {
	t.Parallel()

	f := NewAstroFile(newMemCodec())
	if _, err := f.CreatePrimaryImage(monoImage(t, 2, 2, flat(500, 4))); err != nil {
		t.Fatal(err)
	}
	if err := f.Calibrate(CalibrationSpec{}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("empty spec err = %v, want ErrInvalidArgument", err)
	}
}
