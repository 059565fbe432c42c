package astrofits

import "time"

// Observation metadata value objects. Each one is independently optional on
// an AstroFile; the container stores and returns them without interpreting
// their contents.

// ObservationTime is the instant the exposure started plus its duration.
type ObservationTime struct {
	Start    time.Time
	Exposure float64 // seconds
}

// Target identifies what was being observed.
type Target struct {
	Name        string
	Coordinates SkyCoordinates
}

// Site is the geographic location of the observation.
type Site struct {
	Name      string
	Latitude  float64 // degrees, north positive
	Longitude float64 // degrees, east positive
	Altitude  float64 // metres
}

// Weather is the ambient conditions at the time of observation.
type Weather struct {
	Temperature float64 // degrees Celsius
	Pressure    float64 // hPa
	Humidity    float64 // percent relative
}

// Telescope describes the instrument used.
type Telescope struct {
	Name        string
	Aperture    float64 // millimetres
	FocalLength float64 // millimetres
}
