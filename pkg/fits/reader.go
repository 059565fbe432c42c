package fits

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"astrofits/pkg/astrofits"
)

// decoder reads one FITS file block by block. After a header is returned
// the payload sits at the current offset; NextBlock skips whatever payload
// the caller did not consume.
type decoder struct {
	f *os.File

	// End offset of the current block's payload, padded to the block
	// boundary. Zero before the first header.
	payloadEnd int64
}

func openDecoder(path string) (*decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &decoder{f: f}, nil
}

func (d *decoder) Close() error { return d.f.Close() }

// NextBlock skips the rest of the current payload, reads header blocks up
// to the END card and returns the parsed cards. io.EOF reports a clean end
// of the file.
func (d *decoder) NextBlock() (*astrofits.BlockHeader, error) {
	if d.payloadEnd > 0 {
		if _, err := d.f.Seek(d.payloadEnd, io.SeekStart); err != nil {
			return nil, err
		}
		d.payloadEnd = 0
	}

	hdr := &astrofits.BlockHeader{}
	block := make([]byte, blockSize)
	ended := false
	first := true
	for !ended {
		if _, err := io.ReadFull(d.f, block); err != nil {
			if first && (err == io.EOF || err == io.ErrUnexpectedEOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read header block: %w", err)
		}
		first = false
		for i := 0; i < cardsPerBlock; i++ {
			card := block[i*cardSize : (i+1)*cardSize]
			name := strings.TrimRight(string(card[:8]), " ")
			if name == "END" {
				ended = true
				break
			}
			if name == "" && strings.TrimSpace(string(card)) == "" {
				continue
			}
			if err := parseCard(hdr, name, card); err != nil {
				return nil, err
			}
		}
	}

	if err := d.markPayload(hdr); err != nil {
		return nil, err
	}
	return hdr, nil
}

// markPayload computes the padded payload extent of the block just read.
func (d *decoder) markPayload(hdr *astrofits.BlockHeader) error {
	n, err := payloadBytes(hdr)
	if err != nil {
		return err
	}
	here, err := d.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	d.payloadEnd = here + paddedLen(n)
	return nil
}

// payloadBytes is the unpadded payload size a header declares.
func payloadBytes(hdr *astrofits.BlockHeader) (int64, error) {
	bitpix, ok := hdr.Int("BITPIX")
	if !ok {
		return 0, fmt.Errorf("header missing BITPIX: %w", ErrMalformedHeader)
	}
	width, err := bitPixBytes(int(bitpix))
	if err != nil {
		return 0, err
	}
	naxis, ok := hdr.Int("NAXIS")
	if !ok {
		return 0, fmt.Errorf("header missing NAXIS: %w", ErrMalformedHeader)
	}
	if naxis == 0 {
		return 0, nil
	}
	count := int64(1)
	for i := 1; i <= int(naxis); i++ {
		ax, ok := hdr.Int(fmt.Sprintf("NAXIS%d", i))
		if !ok {
			return 0, fmt.Errorf("header missing NAXIS%d: %w", i, ErrMalformedHeader)
		}
		count *= ax
	}
	pcount, _ := hdr.Int("PCOUNT")
	gcount, ok := hdr.Int("GCOUNT")
	if !ok {
		gcount = 1
	}
	return int64(width) * gcount * (pcount + count), nil
}

func paddedLen(n int64) int64 {
	if rem := n % blockSize; rem != 0 {
		return n + blockSize - rem
	}
	return n
}

// parseCard appends one 80-byte card to the header.
func parseCard(hdr *astrofits.BlockHeader, name string, card []byte) error {
	// COMMENT, HISTORY and blank cards carry free text, no value.
	if name == "COMMENT" || name == "HISTORY" {
		hdr.Cards = append(hdr.Cards, astrofits.Keyword{
			Name:    name,
			Type:    astrofits.TypeNone,
			Comment: strings.TrimRight(string(card[8:]), " "),
		})
		return nil
	}
	if string(card[8:10]) != "= " {
		// Valueless keyword; keep the text as a comment.
		hdr.Cards = append(hdr.Cards, astrofits.Keyword{
			Name:    name,
			Type:    astrofits.TypeNone,
			Comment: strings.TrimSpace(string(card[8:])),
		})
		return nil
	}
	value, comment, err := splitValue(string(card[10:]))
	if err != nil {
		return fmt.Errorf("card %s: %w", name, err)
	}
	hdr.Append(name, value, comment)
	return nil
}

// splitValue parses the value field of a card, returning the typed value
// and the trailing comment.
func splitValue(s string) (any, string, error) {
	s = strings.TrimLeft(s, " ")
	if s == "" {
		return "", "", nil
	}
	if s[0] == '\'' {
		// Quoted string; '' inside is an escaped quote.
		var b strings.Builder
		i := 1
		for i < len(s) {
			if s[i] == '\'' {
				if i+1 < len(s) && s[i+1] == '\'' {
					b.WriteByte('\'')
					i += 2
					continue
				}
				i++
				break
			}
			b.WriteByte(s[i])
			i++
		}
		return strings.TrimRight(b.String(), " "), trailingComment(s[i:]), nil
	}

	value := s
	comment := ""
	if i := strings.IndexByte(s, '/'); i >= 0 {
		value = s[:i]
		comment = trailingComment(s[i:])
	}
	value = strings.TrimSpace(value)
	switch value {
	case "":
		return "", comment, nil
	case "T":
		return true, comment, nil
	case "F":
		return false, comment, nil
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n, comment, nil
	}
	// FITS allows D exponents on doubles.
	f, err := strconv.ParseFloat(strings.Replace(value, "D", "E", 1), 64)
	if err != nil {
		return nil, "", fmt.Errorf("value %q: %w", value, ErrMalformedHeader)
	}
	return f, comment, nil
}

func trailingComment(s string) string {
	s = strings.TrimLeft(s, " ")
	s = strings.TrimPrefix(s, "/")
	return strings.TrimSpace(s)
}

// ReadImage decodes the current payload into row-major float64 samples.
func (d *decoder) ReadImage(axes []int, bitpix int) ([]float64, error) {
	width, err := bitPixBytes(bitpix)
	if err != nil {
		return nil, err
	}
	count := 1
	for _, ax := range axes {
		count *= ax
	}
	raw := make([]byte, count*width)
	if _, err := io.ReadFull(d.f, raw); err != nil {
		return nil, fmt.Errorf("read image payload: %w", err)
	}
	out := make([]float64, count)
	for i := 0; i < count; i++ {
		b := raw[i*width:]
		switch bitpix {
		case 8:
			out[i] = float64(b[0])
		case 16:
			out[i] = float64(int16(binary.BigEndian.Uint16(b)))
		case 32:
			out[i] = float64(int32(binary.BigEndian.Uint32(b)))
		case 64:
			out[i] = float64(int64(binary.BigEndian.Uint64(b)))
		case -32:
			out[i] = float64(math.Float32frombits(binary.BigEndian.Uint32(b)))
		case -64:
			out[i] = math.Float64frombits(binary.BigEndian.Uint64(b))
		}
	}
	return out, nil
}

// ReadRaw reads n payload bytes verbatim.
func (d *decoder) ReadRaw(n int) ([]byte, error) {
	raw := make([]byte, n)
	if _, err := io.ReadFull(d.f, raw); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return raw, nil
}
