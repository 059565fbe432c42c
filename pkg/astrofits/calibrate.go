package astrofits

import (
	"fmt"
	"math"
)

// Matching tolerances for dark frame validation.
const (
	darkExposureTolerance    = 0.01 // seconds
	darkTemperatureTolerance = 0.5  // degrees Celsius
)

// CalibrationSpec selects the reference frames for a calibration run and
// the policy knobs around it. Paths are resolved through the container's
// codec.
type CalibrationSpec struct {
	UseBias  bool
	BiasPath string

	UseDark                 bool
	DarkPath                string
	OverrideDarkExposure    bool
	OverrideDarkTemperature bool

	UseFlat  bool
	FlatPath string

	// AppendFrames keeps the reference frames used as extension blocks on
	// the calibrated container.
	AppendFrames bool
	// SaveOriginal keeps the pre-calibration primary as an extension block
	// named ORIGINAL.
	SaveOriginal bool
}

// calibrationFrames holds the loaded and validated reference images.
type calibrationFrames struct {
	bias *AstroImage
	dark *AstroImage
	flat *AstroImage
}

// Calibrate applies the selected reference frames to the primary image:
// bias subtraction, then dark subtraction, then flat-field division. The
// frames are validated against the primary before any pixel changes; a
// failed validation or load leaves the container untouched.
func (f *AstroFile) Calibrate(spec CalibrationSpec) error {
	target, err := f.primaryImage()
	if err != nil {
		return err
	}
	if target.Image() == nil || !target.Accepts(OpCalibrate) {
		return &UnsupportedOperationError{Op: OpCalibrate, Block: BlockImage}
	}
	if !spec.UseBias && !spec.UseDark && !spec.UseFlat {
		return fmt.Errorf("calibration selects no reference frames: %w", ErrInvalidArgument)
	}

	frames, err := f.loadCalibrationFrames(target, spec)
	if err != nil {
		return err
	}

	// All frames validated; work on a copy and swap in at the end.
	result := target.Image().DeepCopy()
	if frames.bias != nil {
		subtractImage(result, frames.bias)
	}
	if frames.dark != nil {
		subtractImage(result, frames.dark)
	}
	if frames.flat != nil {
		divideByFlat(result, frames.flat)
	}

	if spec.SaveOriginal {
		original := NewImageHDBFromImage("ORIGINAL", target.Image().DeepCopy())
		if err := f.Append(original); err != nil {
			return err
		}
	}
	if spec.AppendFrames {
		if err := f.appendReferenceFrames(spec, frames); err != nil {
			return err
		}
	}

	target.SetImage(result)
	target.HistoryWrite(calibrationHistory(spec))
	f.dirty = true
	return nil
}

// loadCalibrationFrames loads and validates each selected reference frame.
func (f *AstroFile) loadCalibrationFrames(target *ImageHDB, spec CalibrationSpec) (*calibrationFrames, error) {
	frames := &calibrationFrames{}

	load := func(kind, path string) (*ImageHDB, error) {
		if path == "" {
			return nil, &IncompatibleFrameError{Frame: kind, Reason: "no path given"}
		}
		ref := NewAstroFile(f.codec)
		if err := ref.Load(path); err != nil {
			return nil, fmt.Errorf("load %s frame: %w", kind, err)
		}
		h, err := ref.primaryImage()
		if err != nil {
			return nil, &IncompatibleFrameError{Frame: kind, Path: path, Reason: "primary block is not an image"}
		}
		if h.Image() == nil {
			return nil, &IncompatibleFrameError{Frame: kind, Path: path, Reason: "no pixel data"}
		}
		if h.Width() != target.Width() || h.Height() != target.Height() {
			return nil, &IncompatibleFrameError{
				Frame: kind,
				Path:  path,
				Reason: fmt.Sprintf("dimensions %dx%d do not match target %dx%d",
					h.Width(), h.Height(), target.Width(), target.Height()),
			}
		}
		return h, nil
	}

	if spec.UseBias {
		h, err := load("bias", spec.BiasPath)
		if err != nil {
			return nil, err
		}
		frames.bias = h.Image()
	}
	if spec.UseDark {
		h, err := load("dark", spec.DarkPath)
		if err != nil {
			return nil, err
		}
		if err := validateDark(target, h, spec); err != nil {
			return nil, err
		}
		frames.dark = h.Image()
	}
	if spec.UseFlat {
		h, err := load("flat", spec.FlatPath)
		if err != nil {
			return nil, err
		}
		frames.flat = h.Image()
	}
	return frames, nil
}

// validateDark checks that the dark frame matches the target's exposure
// and sensor temperature. Either check can be waived by its override flag;
// a frame or target missing the keyword passes that check.
func validateDark(target, dark *ImageHDB, spec CalibrationSpec) error {
	if !spec.OverrideDarkExposure {
		te, terr := target.Exposure()
		de, derr := dark.Exposure()
		if terr == nil && derr == nil && math.Abs(te-de) > darkExposureTolerance {
			return &IncompatibleFrameError{
				Frame:  "dark",
				Path:   spec.DarkPath,
				Reason: fmt.Sprintf("exposure %.2fs does not match target %.2fs", de, te),
			}
		}
	}
	if !spec.OverrideDarkTemperature {
		tt, terr := target.Keywords().Float64(KwCCDTemp)
		dt, derr := dark.Keywords().Float64(KwCCDTemp)
		if terr == nil && derr == nil && math.Abs(tt-dt) > darkTemperatureTolerance {
			return &IncompatibleFrameError{
				Frame:  "dark",
				Path:   spec.DarkPath,
				Reason: fmt.Sprintf("sensor temperature %.1fC does not match target %.1fC", dt, tt),
			}
		}
	}
	return nil
}

// appendReferenceFrames keeps the frames used as extension blocks.
func (f *AstroFile) appendReferenceFrames(spec CalibrationSpec, frames *calibrationFrames) error {
	add := func(name string, img *AstroImage) error {
		if img == nil {
			return nil
		}
		return f.Append(NewImageHDBFromImage(name, img.DeepCopy()))
	}
	if err := add("BIAS", frames.bias); err != nil {
		return err
	}
	if err := add("DARK", frames.dark); err != nil {
		return err
	}
	return add("FLAT", frames.flat)
}

// subtractImage subtracts ref from img pixel by pixel. A monochrome
// reference applies to every plane of a color target.
func subtractImage(img, ref *AstroImage) {
	for i := 0; i < img.PlaneCount(); i++ {
		refPlane := ref.Plane(0)
		if i < ref.PlaneCount() {
			refPlane = ref.Plane(i)
		}
		dst := img.Plane(i).Samples()
		src := refPlane.Samples()
		for j := range dst {
			dst[j] -= src[j]
		}
	}
}

// divideByFlat divides img by the flat normalized to its mean, so the
// calibrated image keeps the target's overall signal level. Zero flat
// pixels pass the sample through unchanged.
func divideByFlat(img, flat *AstroImage) {
	for i := 0; i < img.PlaneCount(); i++ {
		flatPlane := flat.Plane(0)
		if i < flat.PlaneCount() {
			flatPlane = flat.Plane(i)
		}
		mean := flatPlane.Mean()
		if mean == 0 {
			continue
		}
		dst := img.Plane(i).Samples()
		src := flatPlane.Samples()
		for j := range dst {
			if src[j] == 0 {
				continue
			}
			dst[j] = dst[j] * mean / src[j]
		}
	}
}

func calibrationHistory(spec CalibrationSpec) string {
	s := "Calibrated:"
	if spec.UseBias {
		s += " bias"
	}
	if spec.UseDark {
		s += " dark"
	}
	if spec.UseFlat {
		s += " flat"
	}
	return s
}
