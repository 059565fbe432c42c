package astrofits

// The codec boundary. The core never touches the on-disk byte layout; it
// reads and writes containers through these interfaces. pkg/fits provides
// the FITS implementation.

// BlockHeader is the ordered card list of one block as seen by a codec.
// Cards reuse the Keyword shape: name, typed value, comment.
type BlockHeader struct {
	Cards []Keyword
}

// Append adds a card.
func (h *BlockHeader) Append(name string, value any, comment string) {
	t, v := classifyValue(value)
	h.Cards = append(h.Cards, Keyword{Name: CanonicalName(name), Type: t, Value: v, Comment: comment})
}

// Get returns the first card with the given name.
func (h *BlockHeader) Get(name string) (*Keyword, bool) {
	name = CanonicalName(name)
	for i := range h.Cards {
		if h.Cards[i].Name == name {
			return &h.Cards[i], true
		}
	}
	return nil, false
}

func (h *BlockHeader) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// Int reads a card as int64. ok is false when the card is absent or not
// coercible.
func (h *BlockHeader) Int(name string) (int64, bool) {
	k, ok := h.Get(name)
	if !ok {
		return 0, false
	}
	v, err := k.AsInt64()
	if err != nil {
		return 0, false
	}
	return v, true
}

// Str reads a card as its string form. ok is false when absent.
func (h *BlockHeader) Str(name string) (string, bool) {
	k, ok := h.Get(name)
	if !ok {
		return "", false
	}
	return k.AsString(), true
}

// Decoder reads one container, block by block. NextBlock returns io.EOF
// when the stream is exhausted. Payload reads apply to the block whose
// header was returned last.
type Decoder interface {
	// NextBlock advances to the next block and returns its header.
	NextBlock() (*BlockHeader, error)
	// ReadImage decodes an image payload into row-major float64 samples.
	ReadImage(axes []int, bitpix int) ([]float64, error)
	// ReadRaw reads n payload bytes verbatim (table payloads).
	ReadRaw(n int) ([]byte, error)
	Close() error
}

// Encoder writes one container, block by block. WriteHeader starts a new
// block (finalizing any previous one); the payload calls that follow belong
// to it.
type Encoder interface {
	WriteHeader(h *BlockHeader) error
	// WriteImage encodes row-major float64 samples in the given sample
	// format.
	WriteImage(samples []float64, bitpix int) error
	// WriteRaw writes payload bytes verbatim.
	WriteRaw(data []byte) error
	Close() error
}

// Codec opens containers on a storage path.
type Codec interface {
	OpenRead(path string) (Decoder, error)
	OpenWrite(path string) (Encoder, error)
}
