// Package fits implements the on-disk FITS container format behind the
// astrofits codec boundary: 2880-byte blocks, 80-character header cards,
// big-endian payloads.
package fits

import (
	"errors"

	"astrofits/pkg/astrofits"
)

// Format constants from the FITS standard.
const (
	blockSize     = 2880
	cardSize      = 80
	cardsPerBlock = blockSize / cardSize
)

var (
	// ErrMalformedHeader reports a header card or block that does not
	// follow the standard.
	ErrMalformedHeader = errors.New("malformed FITS header")

	// ErrBadBitPix reports a sample format outside the six defined values.
	ErrBadBitPix = errors.New("unsupported BITPIX value")
)

// Codec is the FITS implementation of the astrofits codec boundary.
type Codec struct{}

// NewCodec returns the FITS codec.
func NewCodec() *Codec { return &Codec{} }

func (c *Codec) OpenRead(path string) (astrofits.Decoder, error) {
	return openDecoder(path)
}

func (c *Codec) OpenWrite(path string) (astrofits.Encoder, error) {
	return openEncoder(path)
}

func bitPixBytes(bitpix int) (int, error) {
	switch bitpix {
	case 8, 16, 32, 64, -32, -64:
		if bitpix < 0 {
			return -bitpix / 8, nil
		}
		return bitpix / 8, nil
	}
	return 0, ErrBadBitPix
}
