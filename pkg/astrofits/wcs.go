package astrofits

import "fmt"

// SkyCoordinates is a position on the celestial sphere, degrees.
type SkyCoordinates struct {
	RA  float64
	Dec float64
}

// WCSSolution is an opaque plate solution produced by an external solver.
// The core only ever applies it; it never derives one. The solution is the
// usual linear model: a reference pixel, its sky coordinates and a CD
// matrix (degrees per pixel).
type WCSSolution struct {
	RefPixel Point
	RefSky   SkyCoordinates
	CD       [2][2]float64
}

// Pix2Sky maps a pixel position through the stored solution.
func (w *WCSSolution) Pix2Sky(px Point) SkyCoordinates {
	dx := px.X - w.RefPixel.X
	dy := px.Y - w.RefPixel.Y
	return SkyCoordinates{
		RA:  w.RefSky.RA + w.CD[0][0]*dx + w.CD[0][1]*dy,
		Dec: w.RefSky.Dec + w.CD[1][0]*dx + w.CD[1][1]*dy,
	}
}

// Sky2Pix inverts the stored solution. A singular CD matrix is an explicit
// error; no NaN sentinels.
func (w *WCSSolution) Sky2Pix(sky SkyCoordinates) (Point, error) {
	det := w.CD[0][0]*w.CD[1][1] - w.CD[0][1]*w.CD[1][0]
	if det == 0 {
		return Point{}, fmt.Errorf("singular CD matrix: %w", ErrInvalidArgument)
	}
	da := sky.RA - w.RefSky.RA
	dd := sky.Dec - w.RefSky.Dec
	return Point{
		X: w.RefPixel.X + (w.CD[1][1]*da-w.CD[0][1]*dd)/det,
		Y: w.RefPixel.Y + (w.CD[0][0]*dd-w.CD[1][0]*da)/det,
	}, nil
}

func (w *WCSSolution) DeepCopy() *WCSSolution {
	c := *w
	return &c
}
