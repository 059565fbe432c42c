package astrofits

import (
	"fmt"
	"strings"
)

// BlockType tags the closed set of HDB variants.
type BlockType int

const (
	BlockNone BlockType = iota
	BlockImage
	BlockAsciiTable
	BlockBinTable
	BlockAstrometry
	BlockPhotometry
)

func (t BlockType) String() string {
	switch t {
	case BlockImage:
		return "image"
	case BlockAsciiTable:
		return "ascii-table"
	case BlockBinTable:
		return "binary-table"
	case BlockAstrometry:
		return "astrometry"
	case BlockPhotometry:
		return "photometry"
	default:
		return "none"
	}
}

// Operation is the capability query vocabulary. The orchestrator asks a
// block whether it accepts an operation before dispatching; a mismatch is
// surfaced as UnsupportedOperationError, never ignored.
type Operation int

const (
	OpKeywordEdit Operation = iota
	OpGeometric
	OpCalibrate
	OpCatalogEdit
	OpRender
)

func (o Operation) String() string {
	switch o {
	case OpKeywordEdit:
		return "keyword-edit"
	case OpGeometric:
		return "geometric-transform"
	case OpCalibrate:
		return "calibrate"
	case OpCatalogEdit:
		return "catalog-edit"
	case OpRender:
		return "render"
	default:
		return "unknown"
	}
}

// HDB is the contract shared by every block variant. The load/store hooks
// are unexported: the variant set is closed and only this package
// implements it.
type HDB interface {
	// Name is the identification label (EXTNAME), empty for the primary.
	Name() string
	Type() BlockType
	Primary() bool

	// NAxis is the dimensionality; NAxisN(n) the extent of axis n, 1-based
	// per the NAXIS convention.
	NAxis() int
	NAxisN(n int) int

	Keywords() *KeywordStore
	CreateCopy() HDB
	Accepts(op Operation) bool

	CommentWrite(string)
	Comment() string
	HistoryWrite(string)
	History() string

	setPrimary(bool)
	headerCards() (*BlockHeader, error)
	loadPayload(dec Decoder) error
	writePayload(enc Encoder) error
}

// structuralKeyword reports header cards that describe block structure.
// They are parsed into HDB fields on load and regenerated on save, so they
// never enter the keyword store.
func structuralKeyword(name string) bool {
	switch name {
	case "SIMPLE", "XTENSION", "BITPIX", "NAXIS", "PCOUNT", "GCOUNT",
		"EXTNAME", "EXTEND", "TFIELDS", "END", "COMMENT", "HISTORY":
		return true
	}
	for _, prefix := range []string{"NAXIS", "TFORM", "TTYPE", "TBCOL"} {
		if rest, ok := strings.CutPrefix(name, prefix); ok && rest != "" {
			digits := true
			for _, r := range rest {
				if r < '0' || r > '9' {
					digits = false
					break
				}
			}
			if digits {
				return true
			}
		}
	}
	return false
}

// baseHDB carries the state common to all variants.
type baseHDB struct {
	name     string
	primary  bool
	axes     []int
	keywords *KeywordStore
	comments []string
	history  []string
}

func newBaseHDB(name string) baseHDB {
	return baseHDB{name: name, keywords: NewKeywordStore()}
}

func (b *baseHDB) Name() string             { return b.name }
func (b *baseHDB) Primary() bool            { return b.primary }
func (b *baseHDB) setPrimary(p bool)        { b.primary = p }
func (b *baseHDB) NAxis() int               { return len(b.axes) }
func (b *baseHDB) Keywords() *KeywordStore  { return b.keywords }
func (b *baseHDB) CommentWrite(s string)    { b.comments = append(b.comments, s) }
func (b *baseHDB) HistoryWrite(s string)    { b.history = append(b.history, s) }
func (b *baseHDB) Comment() string          { return strings.Join(b.comments, "\n") }
func (b *baseHDB) History() string          { return strings.Join(b.history, "\n") }

// NAxisN returns the extent of axis n (1-based), 0 when out of range.
func (b *baseHDB) NAxisN(n int) int {
	if n < 1 || n > len(b.axes) {
		return 0
	}
	return b.axes[n-1]
}

func (b *baseHDB) copyInto(dst *baseHDB) {
	dst.name = b.name
	dst.primary = b.primary
	dst.axes = append([]int(nil), b.axes...)
	dst.keywords = b.keywords.DeepCopy()
	dst.comments = append([]string(nil), b.comments...)
	dst.history = append([]string(nil), b.history...)
}

// absorbHeader fills the base fields from a block header: axes, EXTNAME,
// comments/history and every non-structural card, preserving card order.
func (b *baseHDB) absorbHeader(h *BlockHeader) error {
	if name, ok := h.Str("EXTNAME"); ok {
		b.name = name
	}
	naxis, ok := h.Int("NAXIS")
	if !ok {
		return fmt.Errorf("block header missing NAXIS: %w", ErrUnknownBlockSignature)
	}
	b.axes = make([]int, naxis)
	for i := 1; i <= int(naxis); i++ {
		ax, ok := h.Int(fmt.Sprintf("NAXIS%d", i))
		if !ok {
			return fmt.Errorf("block header missing NAXIS%d: %w", i, ErrUnknownBlockSignature)
		}
		b.axes[i-1] = int(ax)
	}
	for i := range h.Cards {
		card := &h.Cards[i]
		switch card.Name {
		case "COMMENT":
			if card.Comment != "" {
				b.comments = append(b.comments, card.Comment)
			}
		case "HISTORY":
			if card.Comment != "" {
				b.history = append(b.history, card.Comment)
			}
		default:
			if structuralKeyword(card.Name) {
				continue
			}
			if err := b.keywords.Write(card.Name, card.Value, card.Comment); err != nil {
				return fmt.Errorf("header card %s: %w", card.Name, err)
			}
		}
	}
	return nil
}

// emitCommon appends keyword store entries, comments and history onto a
// header under construction.
func (b *baseHDB) emitCommon(h *BlockHeader) {
	if b.name != "" {
		h.Append("EXTNAME", b.name, "block name")
	}
	for _, k := range b.keywords.All() {
		h.Cards = append(h.Cards, *k)
	}
	for _, c := range b.comments {
		h.Cards = append(h.Cards, Keyword{Name: "COMMENT", Type: TypeNone, Comment: c})
	}
	for _, c := range b.history {
		h.Cards = append(h.Cards, Keyword{Name: "HISTORY", Type: TypeNone, Comment: c})
	}
}
