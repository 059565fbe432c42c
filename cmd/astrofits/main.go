package main

import (
	"flag"
	"fmt"
	"image/png"
	"os"
	"time"

	"astrofits/pkg/astrofits"
	"astrofits/pkg/fits"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: astrofits <info|render|calibrate> <input-file> [options]")
	}
	switch args[0] {
	case "info":
		if len(args) < 2 {
			return fmt.Errorf("usage: astrofits info <input-file>")
		}
		return runInfo(args[1])
	case "render":
		if len(args) < 3 {
			return fmt.Errorf("usage: astrofits render <input-file> <output.png>")
		}
		return runRender(args[1], args[2])
	case "calibrate":
		return runCalibrate(args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runInfo(path string) error {
	f := astrofits.NewAstroFile(fits.NewCodec())
	start := time.Now()
	if err := f.Load(path); err != nil {
		return err
	}

	fmt.Printf("=== %s (%.2fs) ===\n", path, time.Since(start).Seconds())
	fmt.Printf("  Identity:  %s\n", f.ID())
	fmt.Printf("  Blocks:    %d\n", f.HDBCount())

	if target, ok := f.Target(); ok {
		fmt.Printf("  Target:    %s (RA %.4f, Dec %.4f)\n",
			target.Name, target.Coordinates.RA, target.Coordinates.Dec)
	}
	if ot, ok := f.ObservationTime(); ok {
		fmt.Printf("  Observed:  %s, %.0fs exposure\n",
			ot.Start.Format(time.RFC3339), ot.Exposure)
	}
	if tel, ok := f.Telescope(); ok {
		fmt.Printf("  Telescope: %s\n", tel.Name)
	}

	for i := 0; i < f.HDBCount(); i++ {
		hdb, _ := f.HDB(i)
		label := hdb.Name()
		if hdb.Primary() {
			label = "(primary)"
		}
		fmt.Printf("\n  [%d] %-12s %s", i, hdb.Type(), label)
		if hdb.NAxis() > 0 {
			fmt.Printf("  %d", hdb.NAxisN(1))
			for n := 2; n <= hdb.NAxis(); n++ {
				fmt.Printf("x%d", hdb.NAxisN(n))
			}
		}
		fmt.Printf("  %d keywords\n", f.KeywordCount(i))

		if hdb.Type() == astrofits.BlockImage {
			if mean, err := f.ImageMean(i); err == nil {
				min, _ := f.ImageMin(i)
				max, _ := f.ImageMax(i)
				sd, _ := f.ImageStdDev(i)
				fmt.Printf("      min=%.1f max=%.1f mean=%.1f sigma=%.1f\n", min, max, mean, sd)
			}
		}
	}
	return nil
}

func runRender(inPath, outPath string) error {
	f := astrofits.NewAstroFile(fits.NewCodec())
	if err := f.Load(inPath); err != nil {
		return err
	}
	img, err := f.Image(0)
	if err != nil {
		return err
	}
	rendered, err := astrofits.RenderAuto(img.Plane(0))
	if err != nil {
		return err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()
	if err := png.Encode(out, rendered); err != nil {
		return err
	}
	fmt.Printf("Rendered %s -> %s\n", inPath, outPath)
	return nil
}

func runCalibrate(args []string) error {
	fs := flag.NewFlagSet("calibrate", flag.ContinueOnError)
	bias := fs.String("bias", "", "bias frame path")
	dark := fs.String("dark", "", "dark frame path")
	flatPath := fs.String("flat", "", "flat frame path")
	overrideExp := fs.Bool("override-exposure", false, "skip the dark exposure check")
	overrideTemp := fs.Bool("override-temperature", false, "skip the dark temperature check")
	keepOriginal := fs.Bool("keep-original", false, "append the pre-calibration image")
	keepFrames := fs.Bool("keep-frames", false, "append the reference frames used")
	out := fs.String("out", "", "output path (default: overwrite input)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: astrofits calibrate <input-file> [options]")
	}
	inPath := fs.Arg(0)

	f := astrofits.NewAstroFile(fits.NewCodec())
	if err := f.Load(inPath); err != nil {
		return err
	}

	spec := astrofits.CalibrationSpec{
		UseBias: *bias != "", BiasPath: *bias,
		UseDark: *dark != "", DarkPath: *dark,
		UseFlat: *flatPath != "", FlatPath: *flatPath,
		OverrideDarkExposure:    *overrideExp,
		OverrideDarkTemperature: *overrideTemp,
		SaveOriginal:            *keepOriginal,
		AppendFrames:            *keepFrames,
	}
	start := time.Now()
	if err := f.Calibrate(spec); err != nil {
		return err
	}
	fmt.Printf("Calibration: %.2fs\n", time.Since(start).Seconds())

	dest := *out
	if dest == "" {
		dest = inPath
	}
	if err := f.SaveAs(dest); err != nil {
		return err
	}
	fmt.Printf("Saved: %s\n", dest)
	return nil
}
