package fits

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"astrofits/pkg/astrofits"
)

// encoder writes one FITS file block by block. Payload bytes are counted
// so each block can be padded to the 2880-byte boundary before the next
// header starts.
type encoder struct {
	f *os.File

	payloadWritten int64
	// ASCII table payloads pad with blanks, everything else with zeros.
	padByte byte
}

func openEncoder(path string) (*encoder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &encoder{f: f}, nil
}

// WriteHeader pads out the previous payload, then writes the cards plus
// the END card, padded to a whole number of blocks.
func (e *encoder) WriteHeader(hdr *astrofits.BlockHeader) error {
	if err := e.padPayload(); err != nil {
		return err
	}

	e.padByte = 0
	if x, ok := hdr.Str("XTENSION"); ok && strings.TrimSpace(x) == "TABLE" {
		e.padByte = ' '
	}

	var buf []byte
	for i := range hdr.Cards {
		card, err := formatCard(&hdr.Cards[i])
		if err != nil {
			return err
		}
		buf = append(buf, card...)
	}
	end := make([]byte, cardSize)
	for i := range end {
		end[i] = ' '
	}
	copy(end, "END")
	buf = append(buf, end...)
	for len(buf)%blockSize != 0 {
		buf = append(buf, ' ')
	}
	_, err := e.f.Write(buf)
	return err
}

// formatCard renders one card into its fixed 80-byte form.
func formatCard(k *astrofits.Keyword) ([]byte, error) {
	card := make([]byte, cardSize)
	for i := range card {
		card[i] = ' '
	}
	if len(k.Name) > 8 {
		return nil, fmt.Errorf("keyword name %q longer than 8: %w", k.Name, ErrMalformedHeader)
	}
	copy(card, k.Name)

	if k.Type == astrofits.TypeNone {
		// COMMENT, HISTORY and valueless cards: free text from column 9.
		copy(card[8:], k.Comment)
		return card, nil
	}

	card[8] = '='
	value, err := formatValue(k)
	if err != nil {
		return nil, err
	}
	copy(card[10:], value)

	if k.Comment != "" {
		at := 10 + len(value) + 1
		if at < 33 {
			at = 33
		}
		if at+2 < cardSize {
			rest := fmt.Sprintf("/ %s", k.Comment)
			copy(card[at:], rest)
		}
	}
	return card, nil
}

// formatValue renders the value field: strings quoted and left-justified,
// everything else right-justified to column 30.
func formatValue(k *astrofits.Keyword) (string, error) {
	switch k.Type {
	case astrofits.TypeString:
		s := strings.ReplaceAll(k.AsString(), "'", "''")
		// Fixed format pads short strings to 8 characters.
		if len(s) < 8 {
			s = s + strings.Repeat(" ", 8-len(s))
		}
		if len(s) > 68 {
			s = s[:68]
		}
		return "'" + s + "'", nil
	case astrofits.TypeBool:
		b, err := k.AsBool()
		if err != nil {
			return "", err
		}
		if b {
			return fmt.Sprintf("%20s", "T"), nil
		}
		return fmt.Sprintf("%20s", "F"), nil
	case astrofits.TypeFloat32, astrofits.TypeFloat64:
		f, err := k.AsFloat64()
		if err != nil {
			return "", err
		}
		s := strconv.FormatFloat(f, 'G', -1, 64)
		// Keep a decimal point so the value reads back as a float.
		if !strings.ContainsAny(s, ".E") {
			s += ".0"
		}
		return fmt.Sprintf("%20s", s), nil
	default:
		n, err := k.AsInt64()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%20d", n), nil
	}
}

// WriteImage encodes row-major float64 samples in the given sample format.
// Integer formats round and clamp to the representable range.
func (e *encoder) WriteImage(samples []float64, bitpix int) error {
	width, err := bitPixBytes(bitpix)
	if err != nil {
		return err
	}
	buf := make([]byte, len(samples)*width)
	for i, v := range samples {
		b := buf[i*width:]
		switch bitpix {
		case 8:
			b[0] = uint8(clampRound(v, 0, math.MaxUint8))
		case 16:
			binary.BigEndian.PutUint16(b, uint16(int16(clampRound(v, math.MinInt16, math.MaxInt16))))
		case 32:
			binary.BigEndian.PutUint32(b, uint32(int32(clampRound(v, math.MinInt32, math.MaxInt32))))
		case 64:
			// float64(MaxInt64) is 2^63 exactly, which overflows the int64
			// conversion; clamp to the largest float64 below it instead.
			binary.BigEndian.PutUint64(b, uint64(int64(clampRound(v, math.MinInt64, math.Nextafter(math.MaxInt64, 0)))))
		case -32:
			binary.BigEndian.PutUint32(b, math.Float32bits(float32(v)))
		case -64:
			binary.BigEndian.PutUint64(b, math.Float64bits(v))
		}
	}
	return e.WriteRaw(buf)
}

func clampRound(v, min, max float64) float64 {
	v = math.Round(v)
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// WriteRaw writes payload bytes verbatim.
func (e *encoder) WriteRaw(data []byte) error {
	n, err := e.f.Write(data)
	e.payloadWritten += int64(n)
	return err
}

// padPayload fills the current payload out to the block boundary.
func (e *encoder) padPayload() error {
	rem := e.payloadWritten % blockSize
	e.payloadWritten = 0
	if rem == 0 {
		return nil
	}
	pad := make([]byte, blockSize-rem)
	if e.padByte != 0 {
		for i := range pad {
			pad[i] = e.padByte
		}
	}
	_, err := e.f.Write(pad)
	return err
}

// Close pads the final payload and closes the file.
func (e *encoder) Close() error {
	if err := e.padPayload(); err != nil {
		e.f.Close()
		return err
	}
	return e.f.Close()
}
