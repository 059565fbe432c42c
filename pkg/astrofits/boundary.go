package astrofits

import "context"

// External processing boundaries. The container core stores and transports
// data; plate solving, source detection and raw sensor decoding are
// delegated through these interfaces.

// SourceCandidate is a detected source as reported by a detector.
type SourceCandidate struct {
	Center Point
	Flux   float64
	FWHM   float64
}

// SourceDetector finds point sources on an image plane.
type SourceDetector interface {
	DetectSources(ctx context.Context, plane *ImagePlane) ([]SourceCandidate, error)
}

// PlateSolver computes a world coordinate solution for an image plane
// given an approximate center.
type PlateSolver interface {
	Solve(ctx context.Context, plane *ImagePlane, hint SkyCoordinates) (*WCSSolution, error)
}

// RawDecoder turns a camera raw file into an image plus the keywords
// recovered from its metadata.
type RawDecoder interface {
	DecodeRaw(ctx context.Context, path string) (*AstroImage, []Keyword, error)
}
