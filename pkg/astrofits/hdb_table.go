package astrofits

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TableColumn describes one field of an ascii table. Start is the 1-based
// byte position of the field within a row (TBCOL); Form is the FITS field
// form (Aw, Iw, Fw.d, Ew.d, Dw.d).
type TableColumn struct {
	Name  string
	Form  string
	Start int
}

// formWidth extracts the field width from an ascii form code.
func formWidth(form string) int {
	if len(form) < 2 {
		return 0
	}
	digits := form[1:]
	if i := strings.IndexByte(digits, '.'); i >= 0 {
		digits = digits[:i]
	}
	w, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return w
}

// AsciiTableHDB is a block holding a fixed-width text table.
type AsciiTableHDB struct {
	baseHDB
	columns []TableColumn
	rows    [][]string
}

// NewAsciiTableHDB lays the columns out left to right with a single space
// between fields and returns the empty table.
func NewAsciiTableHDB(name string, columns []TableColumn) (*AsciiTableHDB, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("table needs at least one column: %w", ErrInvalidArgument)
	}
	cols := append([]TableColumn(nil), columns...)
	start := 1
	for i := range cols {
		w := formWidth(cols[i].Form)
		if w <= 0 {
			return nil, fmt.Errorf("column %s form %q: %w", cols[i].Name, cols[i].Form, ErrInvalidArgument)
		}
		if cols[i].Start == 0 {
			cols[i].Start = start
		}
		start = cols[i].Start + w + 1
	}
	t := &AsciiTableHDB{baseHDB: newBaseHDB(name), columns: cols}
	t.refreshAxes()
	return t, nil
}

func (t *AsciiTableHDB) Type() BlockType { return BlockAsciiTable }

func (t *AsciiTableHDB) Accepts(op Operation) bool {
	return op == OpKeywordEdit
}

func (t *AsciiTableHDB) Columns() []TableColumn { return append([]TableColumn(nil), t.columns...) }
func (t *AsciiTableHDB) RowCount() int          { return len(t.rows) }

// Row returns the cell values of row i.
func (t *AsciiTableHDB) Row(i int) []string {
	return append([]string(nil), t.rows[i]...)
}

// Cell returns the value at (row, column name).
func (t *AsciiTableHDB) Cell(row int, column string) (string, bool) {
	if row < 0 || row >= len(t.rows) {
		return "", false
	}
	for i, c := range t.columns {
		if strings.EqualFold(c.Name, column) {
			return t.rows[row][i], true
		}
	}
	return "", false
}

// AppendRow adds a row; the value count must match the column count.
func (t *AsciiTableHDB) AppendRow(values []string) error {
	if len(values) != len(t.columns) {
		return fmt.Errorf("%d values for %d columns: %w", len(values), len(t.columns), ErrInvalidArgument)
	}
	t.rows = append(t.rows, append([]string(nil), values...))
	t.refreshAxes()
	return nil
}

// ClearRows drops all rows, keeping the schema.
func (t *AsciiTableHDB) ClearRows() {
	t.rows = nil
	t.refreshAxes()
}

// rowWidth is the byte length of one serialized row (NAXIS1).
func (t *AsciiTableHDB) rowWidth() int {
	w := 0
	for _, c := range t.columns {
		if end := c.Start - 1 + formWidth(c.Form); end > w {
			w = end
		}
	}
	return w
}

func (t *AsciiTableHDB) refreshAxes() {
	t.axes = []int{t.rowWidth(), len(t.rows)}
}

func (t *AsciiTableHDB) CreateCopy() HDB {
	c := t.deepCopy()
	return c
}

func (t *AsciiTableHDB) deepCopy() *AsciiTableHDB {
	c := &AsciiTableHDB{columns: append([]TableColumn(nil), t.columns...)}
	t.copyInto(&c.baseHDB)
	c.rows = make([][]string, len(t.rows))
	for i, r := range t.rows {
		c.rows[i] = append([]string(nil), r...)
	}
	return c
}

func (t *AsciiTableHDB) headerCards() (*BlockHeader, error) {
	hdr := &BlockHeader{}
	hdr.Append("XTENSION", "TABLE", "ascii table extension")
	hdr.Append("BITPIX", int64(8), "")
	hdr.Append("NAXIS", int64(2), "")
	hdr.Append("NAXIS1", int64(t.rowWidth()), "row width in bytes")
	hdr.Append("NAXIS2", int64(len(t.rows)), "number of rows")
	hdr.Append("PCOUNT", int64(0), "")
	hdr.Append("GCOUNT", int64(1), "")
	hdr.Append("TFIELDS", int64(len(t.columns)), "number of fields")
	for i, c := range t.columns {
		n := i + 1
		hdr.Append(fmt.Sprintf("TTYPE%d", n), c.Name, "")
		hdr.Append(fmt.Sprintf("TBCOL%d", n), int64(c.Start), "")
		hdr.Append(fmt.Sprintf("TFORM%d", n), c.Form, "")
	}
	t.emitCommon(hdr)
	return hdr, nil
}

func (t *AsciiTableHDB) loadPayload(dec Decoder) error {
	if len(t.axes) != 2 {
		return fmt.Errorf("ascii table with %d axes: %w", len(t.axes), ErrInvalidArgument)
	}
	rowLen, rowCount := t.axes[0], t.axes[1]
	raw, err := dec.ReadRaw(rowLen * rowCount)
	if err != nil {
		return fmt.Errorf("read table payload: %w", err)
	}
	rows := make([][]string, rowCount)
	for r := 0; r < rowCount; r++ {
		line := raw[r*rowLen : (r+1)*rowLen]
		cells := make([]string, len(t.columns))
		for i, c := range t.columns {
			lo := c.Start - 1
			hi := lo + formWidth(c.Form)
			if lo < 0 || hi > len(line) {
				return fmt.Errorf("column %s exceeds row width: %w", c.Name, ErrInvalidArgument)
			}
			cells[i] = strings.TrimSpace(string(line[lo:hi]))
		}
		rows[r] = cells
	}
	t.rows = rows
	return nil
}

func (t *AsciiTableHDB) writePayload(enc Encoder) error {
	rowLen := t.rowWidth()
	buf := make([]byte, rowLen*len(t.rows))
	for i := range buf {
		buf[i] = ' '
	}
	for r, row := range t.rows {
		line := buf[r*rowLen : (r+1)*rowLen]
		for i, c := range t.columns {
			w := formWidth(c.Form)
			v := row[i]
			if len(v) > w {
				v = v[:w]
			}
			// Strings left-justified, numbers right-justified.
			var field string
			if c.Form[0] == 'A' {
				field = fmt.Sprintf("%-*s", w, v)
			} else {
				field = fmt.Sprintf("%*s", w, v)
			}
			copy(line[c.Start-1:], field)
		}
	}
	return enc.WriteRaw(buf)
}

// asciiTableFromHeader is the registry constructor for ascii table blocks.
func asciiTableFromHeader(hdr *BlockHeader) (*AsciiTableHDB, error) {
	t := &AsciiTableHDB{baseHDB: newBaseHDB("")}
	if err := t.absorbHeader(hdr); err != nil {
		return nil, err
	}
	tfields, ok := hdr.Int("TFIELDS")
	if !ok {
		return nil, fmt.Errorf("table header missing TFIELDS: %w", ErrUnknownBlockSignature)
	}
	t.columns = make([]TableColumn, tfields)
	for i := 1; i <= int(tfields); i++ {
		name, _ := hdr.Str(fmt.Sprintf("TTYPE%d", i))
		form, ok := hdr.Str(fmt.Sprintf("TFORM%d", i))
		if !ok {
			return nil, fmt.Errorf("table header missing TFORM%d: %w", i, ErrUnknownBlockSignature)
		}
		start, ok := hdr.Int(fmt.Sprintf("TBCOL%d", i))
		if !ok {
			return nil, fmt.Errorf("table header missing TBCOL%d: %w", i, ErrUnknownBlockSignature)
		}
		t.columns[i-1] = TableColumn{Name: name, Form: form, Start: int(start)}
	}
	return t, nil
}

// BinColumn describes one field of a binary table: a FITS type code with a
// repeat count (rT form).
type BinColumn struct {
	Name   string
	Code   byte
	Repeat int
}

// cellWidth is the byte size of one element of the code.
func (c BinColumn) cellWidth() int {
	switch c.Code {
	case 'L', 'B', 'A':
		return 1
	case 'I':
		return 2
	case 'J', 'E':
		return 4
	case 'K', 'D':
		return 8
	default:
		return 0
	}
}

func (c BinColumn) byteWidth() int { return c.cellWidth() * c.Repeat }

func (c BinColumn) form() string { return fmt.Sprintf("%d%c", c.Repeat, c.Code) }

func parseBinForm(form string) (BinColumn, error) {
	form = strings.TrimSpace(form)
	i := strings.IndexAny(form, "LBAIJKED")
	if i < 0 || i != len(form)-1 {
		return BinColumn{}, fmt.Errorf("binary form %q: %w", form, ErrInvalidArgument)
	}
	repeat := 1
	if i > 0 {
		r, err := strconv.Atoi(form[:i])
		if err != nil || r < 1 {
			return BinColumn{}, fmt.Errorf("binary form %q: %w", form, ErrInvalidArgument)
		}
		repeat = r
	}
	return BinColumn{Code: form[i], Repeat: repeat}, nil
}

// BinTableHDB is a block holding a binary table: a column schema plus raw
// big-endian row storage with decode-on-access cells.
type BinTableHDB struct {
	baseHDB
	columns []BinColumn
	rows    [][]byte
}

func NewBinTableHDB(name string, columns []BinColumn) (*BinTableHDB, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("table needs at least one column: %w", ErrInvalidArgument)
	}
	for _, c := range columns {
		if c.cellWidth() == 0 || c.Repeat < 1 {
			return nil, fmt.Errorf("column %s form %q: %w", c.Name, c.form(), ErrInvalidArgument)
		}
	}
	t := &BinTableHDB{baseHDB: newBaseHDB(name), columns: append([]BinColumn(nil), columns...)}
	t.refreshAxes()
	return t, nil
}

func (t *BinTableHDB) Type() BlockType { return BlockBinTable }

func (t *BinTableHDB) Accepts(op Operation) bool {
	return op == OpKeywordEdit
}

func (t *BinTableHDB) Columns() []BinColumn { return append([]BinColumn(nil), t.columns...) }
func (t *BinTableHDB) RowCount() int        { return len(t.rows) }

func (t *BinTableHDB) rowWidth() int {
	w := 0
	for _, c := range t.columns {
		w += c.byteWidth()
	}
	return w
}

func (t *BinTableHDB) refreshAxes() {
	t.axes = []int{t.rowWidth(), len(t.rows)}
}

// ClearRows drops all rows, keeping the schema.
func (t *BinTableHDB) ClearRows() {
	t.rows = nil
	t.refreshAxes()
}

// AppendRow encodes one value per column. Accepted Go types per code:
// L=bool, B=uint8, I=int16, J=int32, K=int64, E=float32, D=float64,
// A=string (padded or truncated to the repeat count).
func (t *BinTableHDB) AppendRow(values ...any) error {
	if len(values) != len(t.columns) {
		return fmt.Errorf("%d values for %d columns: %w", len(values), len(t.columns), ErrInvalidArgument)
	}
	row := make([]byte, 0, t.rowWidth())
	for i, c := range t.columns {
		cell, err := encodeBinCell(c, values[i])
		if err != nil {
			return fmt.Errorf("column %s: %w", c.Name, err)
		}
		row = append(row, cell...)
	}
	t.rows = append(t.rows, row)
	t.refreshAxes()
	return nil
}

// Cell decodes the value at (row, column name). Repeat counts above one
// yield a slice, except strings.
func (t *BinTableHDB) Cell(row int, column string) (any, error) {
	if row < 0 || row >= len(t.rows) {
		return nil, fmt.Errorf("row %d of %d: %w", row, len(t.rows), ErrOutOfBounds)
	}
	off := 0
	for _, c := range t.columns {
		if strings.EqualFold(c.Name, column) {
			return decodeBinCell(c, t.rows[row][off:off+c.byteWidth()]), nil
		}
		off += c.byteWidth()
	}
	return nil, fmt.Errorf("column %q: %w", column, ErrKeywordNotFound)
}

func encodeBinCell(c BinColumn, v any) ([]byte, error) {
	buf := make([]byte, c.byteWidth())
	switch c.Code {
	case 'A':
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T: %w", v, ErrTypeMismatch)
		}
		for i := range buf {
			buf[i] = ' '
		}
		copy(buf, s)
		return buf, nil
	case 'L':
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("want bool, got %T: %w", v, ErrTypeMismatch)
		}
		if b {
			buf[0] = 'T'
		} else {
			buf[0] = 'F'
		}
		return buf, nil
	case 'B':
		b, ok := v.(uint8)
		if !ok {
			return nil, fmt.Errorf("want uint8, got %T: %w", v, ErrTypeMismatch)
		}
		buf[0] = b
		return buf, nil
	case 'I':
		x, ok := v.(int16)
		if !ok {
			return nil, fmt.Errorf("want int16, got %T: %w", v, ErrTypeMismatch)
		}
		binary.BigEndian.PutUint16(buf, uint16(x))
		return buf, nil
	case 'J':
		x, ok := v.(int32)
		if !ok {
			return nil, fmt.Errorf("want int32, got %T: %w", v, ErrTypeMismatch)
		}
		binary.BigEndian.PutUint32(buf, uint32(x))
		return buf, nil
	case 'K':
		x, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("want int64, got %T: %w", v, ErrTypeMismatch)
		}
		binary.BigEndian.PutUint64(buf, uint64(x))
		return buf, nil
	case 'E':
		x, ok := v.(float32)
		if !ok {
			return nil, fmt.Errorf("want float32, got %T: %w", v, ErrTypeMismatch)
		}
		binary.BigEndian.PutUint32(buf, math.Float32bits(x))
		return buf, nil
	case 'D':
		x, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("want float64, got %T: %w", v, ErrTypeMismatch)
		}
		binary.BigEndian.PutUint64(buf, math.Float64bits(x))
		return buf, nil
	}
	return nil, fmt.Errorf("form %q: %w", c.form(), ErrInvalidArgument)
}

func decodeBinCell(c BinColumn, raw []byte) any {
	if c.Code == 'A' {
		return strings.TrimRight(string(raw), " ")
	}
	one := func(b []byte) any {
		switch c.Code {
		case 'L':
			return b[0] == 'T'
		case 'B':
			return b[0]
		case 'I':
			return int16(binary.BigEndian.Uint16(b))
		case 'J':
			return int32(binary.BigEndian.Uint32(b))
		case 'K':
			return int64(binary.BigEndian.Uint64(b))
		case 'E':
			return math.Float32frombits(binary.BigEndian.Uint32(b))
		default:
			return math.Float64frombits(binary.BigEndian.Uint64(b))
		}
	}
	if c.Repeat == 1 {
		return one(raw)
	}
	w := c.cellWidth()
	out := make([]any, c.Repeat)
	for i := 0; i < c.Repeat; i++ {
		out[i] = one(raw[i*w : (i+1)*w])
	}
	return out
}

func (t *BinTableHDB) CreateCopy() HDB {
	return t.deepCopy()
}

func (t *BinTableHDB) deepCopy() *BinTableHDB {
	c := &BinTableHDB{columns: append([]BinColumn(nil), t.columns...)}
	t.copyInto(&c.baseHDB)
	c.rows = make([][]byte, len(t.rows))
	for i, r := range t.rows {
		c.rows[i] = append([]byte(nil), r...)
	}
	return c
}

func (t *BinTableHDB) headerCards() (*BlockHeader, error) {
	hdr := &BlockHeader{}
	hdr.Append("XTENSION", "BINTABLE", "binary table extension")
	hdr.Append("BITPIX", int64(8), "")
	hdr.Append("NAXIS", int64(2), "")
	hdr.Append("NAXIS1", int64(t.rowWidth()), "row width in bytes")
	hdr.Append("NAXIS2", int64(len(t.rows)), "number of rows")
	hdr.Append("PCOUNT", int64(0), "")
	hdr.Append("GCOUNT", int64(1), "")
	hdr.Append("TFIELDS", int64(len(t.columns)), "number of fields")
	for i, c := range t.columns {
		n := i + 1
		hdr.Append(fmt.Sprintf("TTYPE%d", n), c.Name, "")
		hdr.Append(fmt.Sprintf("TFORM%d", n), c.form(), "")
	}
	t.emitCommon(hdr)
	return hdr, nil
}

func (t *BinTableHDB) loadPayload(dec Decoder) error {
	if len(t.axes) != 2 {
		return fmt.Errorf("binary table with %d axes: %w", len(t.axes), ErrInvalidArgument)
	}
	rowLen, rowCount := t.axes[0], t.axes[1]
	if want := t.rowWidth(); rowLen != want {
		return fmt.Errorf("row width %d does not match schema width %d: %w", rowLen, want, ErrInvalidArgument)
	}
	raw, err := dec.ReadRaw(rowLen * rowCount)
	if err != nil {
		return fmt.Errorf("read table payload: %w", err)
	}
	rows := make([][]byte, rowCount)
	for r := 0; r < rowCount; r++ {
		rows[r] = append([]byte(nil), raw[r*rowLen:(r+1)*rowLen]...)
	}
	t.rows = rows
	return nil
}

func (t *BinTableHDB) writePayload(enc Encoder) error {
	buf := make([]byte, 0, t.rowWidth()*len(t.rows))
	for _, r := range t.rows {
		buf = append(buf, r...)
	}
	return enc.WriteRaw(buf)
}

// binTableFromHeader is the registry constructor for binary table blocks.
func binTableFromHeader(hdr *BlockHeader) (*BinTableHDB, error) {
	t := &BinTableHDB{baseHDB: newBaseHDB("")}
	if err := t.absorbHeader(hdr); err != nil {
		return nil, err
	}
	tfields, ok := hdr.Int("TFIELDS")
	if !ok {
		return nil, fmt.Errorf("table header missing TFIELDS: %w", ErrUnknownBlockSignature)
	}
	t.columns = make([]BinColumn, tfields)
	for i := 1; i <= int(tfields); i++ {
		form, ok := hdr.Str(fmt.Sprintf("TFORM%d", i))
		if !ok {
			return nil, fmt.Errorf("table header missing TFORM%d: %w", i, ErrUnknownBlockSignature)
		}
		col, err := parseBinForm(form)
		if err != nil {
			return nil, err
		}
		col.Name, _ = hdr.Str(fmt.Sprintf("TTYPE%d", i))
		t.columns[i-1] = col
	}
	return t, nil
}
