package astrofits

// Well-known keyword names used by the container itself. Conventional FITS
// vocabulary; the store accepts any name.
const (
	KwUUID       = "UUID"
	KwObject     = "OBJECT"
	KwImageType  = "IMAGETYP"
	KwExpTime    = "EXPTIME"
	KwExposure   = "EXPOSURE"
	KwDateObs    = "DATE-OBS"
	KwCCDTemp    = "CCD-TEMP"
	KwTelescope  = "TELESCOP"
	KwInstrument = "INSTRUME"
	KwFilter     = "FILTER"
	KwFocalLen   = "FOCALLEN"
	KwAperture   = "APTDIA"
	KwPixSizeX   = "XPIXSZ"
	KwPixSizeY   = "YPIXSZ"
	KwSiteName   = "SITENAME"
	KwSiteLat    = "SITELAT"
	KwSiteLong   = "SITELONG"
	KwSiteElev   = "SITEELEV"
	KwAmbTemp    = "AMBTEMP"
	KwPressure   = "PRESSURE"
	KwHumidity   = "HUMIDITY"
	KwRA         = "RA"
	KwDec        = "DEC"
)

// Reserved extension names for the singleton catalog blocks.
const (
	ExtNameAstrometry = "ASTROMETRY"
	ExtNamePhotometry = "PHOTOMETRY"
)
