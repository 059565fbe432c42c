package astrofits

import (
	"fmt"
	"strconv"
	"strings"
)

// AstrometryObservation is one catalogued reference object: an identifier,
// its CCD coordinates and, once reduced, its sky coordinates.
type AstrometryObservation struct {
	ID  string
	CCD Point
	Sky *SkyCoordinates
}

func (o AstrometryObservation) deepCopy() AstrometryObservation {
	c := o
	if o.Sky != nil {
		sky := *o.Sky
		c.Sky = &sky
	}
	return c
}

// astrometrySchema is the fixed column layout the catalog serializes to.
func astrometrySchema() []TableColumn {
	return []TableColumn{
		{Name: "OBJECT", Form: "A16"},
		{Name: "X", Form: "F12.4"},
		{Name: "Y", Form: "F12.4"},
		{Name: "RA", Form: "F12.6"},
		{Name: "DEC", Form: "F12.6"},
	}
}

// AstrometryHDB is the singleton astrometry catalog, stored as an ascii
// table extension named ASTROMETRY. Observations live as typed records;
// the table rows are rebuilt on save and reparsed on load.
type AstrometryHDB struct {
	AsciiTableHDB
	observations []AstrometryObservation
}

func NewAstrometryHDB() *AstrometryHDB {
	inner, err := NewAsciiTableHDB(ExtNameAstrometry, astrometrySchema())
	if err != nil {
		panic(err) // fixed schema, cannot fail
	}
	return &AstrometryHDB{AsciiTableHDB: *inner}
}

func (a *AstrometryHDB) Type() BlockType { return BlockAstrometry }

func (a *AstrometryHDB) Accepts(op Operation) bool {
	return op == OpKeywordEdit || op == OpCatalogEdit
}

// Add inserts an observation. Duplicate identifiers are rejected: the
// return is false and the catalog is unchanged.
func (a *AstrometryHDB) Add(obs AstrometryObservation) bool {
	for _, existing := range a.observations {
		if existing.ID == obs.ID {
			return false
		}
	}
	a.observations = append(a.observations, obs.deepCopy())
	return true
}

// Remove deletes the observation with the given identifier, reporting
// whether it was present.
func (a *AstrometryHDB) Remove(id string) bool {
	for i, obs := range a.observations {
		if obs.ID == id {
			a.observations = append(a.observations[:i], a.observations[i+1:]...)
			return true
		}
	}
	return false
}

func (a *AstrometryHDB) RemoveAll() { a.observations = nil }

func (a *AstrometryHDB) Count() int { return len(a.observations) }

// Get returns the observation with the given identifier.
func (a *AstrometryHDB) Get(id string) (AstrometryObservation, bool) {
	for _, obs := range a.observations {
		if obs.ID == id {
			return obs.deepCopy(), true
		}
	}
	return AstrometryObservation{}, false
}

// All returns the observations in insertion order.
func (a *AstrometryHDB) All() []AstrometryObservation {
	out := make([]AstrometryObservation, len(a.observations))
	for i, obs := range a.observations {
		out[i] = obs.deepCopy()
	}
	return out
}

// remapPoints applies a coordinate transform to every observation's CCD
// position. Observations mapped outside the frame are kept; callers decide
// relevance.
func (a *AstrometryHDB) remapPoints(f func(Point) Point) {
	for i := range a.observations {
		a.observations[i].CCD = f(a.observations[i].CCD)
	}
}

func (a *AstrometryHDB) CreateCopy() HDB {
	c := &AstrometryHDB{AsciiTableHDB: *a.AsciiTableHDB.deepCopy()}
	c.observations = make([]AstrometryObservation, len(a.observations))
	for i, obs := range a.observations {
		c.observations[i] = obs.deepCopy()
	}
	return c
}

// rebuildRows projects the observations into table rows before the table
// is serialized.
func (a *AstrometryHDB) rebuildRows() {
	a.ClearRows()
	for _, obs := range a.observations {
		ra, dec := "", ""
		if obs.Sky != nil {
			ra = strconv.FormatFloat(obs.Sky.RA, 'f', 6, 64)
			dec = strconv.FormatFloat(obs.Sky.Dec, 'f', 6, 64)
		}
		_ = a.AppendRow([]string{
			obs.ID,
			strconv.FormatFloat(obs.CCD.X, 'f', 4, 64),
			strconv.FormatFloat(obs.CCD.Y, 'f', 4, 64),
			ra,
			dec,
		})
	}
}

func (a *AstrometryHDB) headerCards() (*BlockHeader, error) {
	a.rebuildRows()
	return a.AsciiTableHDB.headerCards()
}

func (a *AstrometryHDB) writePayload(enc Encoder) error {
	a.rebuildRows()
	return a.AsciiTableHDB.writePayload(enc)
}

func (a *AstrometryHDB) loadPayload(dec Decoder) error {
	if err := a.AsciiTableHDB.loadPayload(dec); err != nil {
		return err
	}
	a.observations = nil
	for r := 0; r < a.RowCount(); r++ {
		row := a.Row(r)
		if len(row) < 5 {
			return fmt.Errorf("astrometry row %d has %d fields: %w", r, len(row), ErrInvalidArgument)
		}
		x, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return fmt.Errorf("astrometry row %d X %q: %w", r, row[1], ErrTypeMismatch)
		}
		y, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return fmt.Errorf("astrometry row %d Y %q: %w", r, row[2], ErrTypeMismatch)
		}
		obs := AstrometryObservation{ID: row[0], CCD: Point{X: x, Y: y}}
		if strings.TrimSpace(row[3]) != "" && strings.TrimSpace(row[4]) != "" {
			ra, err := strconv.ParseFloat(row[3], 64)
			if err != nil {
				return fmt.Errorf("astrometry row %d RA %q: %w", r, row[3], ErrTypeMismatch)
			}
			dec2, err := strconv.ParseFloat(row[4], 64)
			if err != nil {
				return fmt.Errorf("astrometry row %d DEC %q: %w", r, row[4], ErrTypeMismatch)
			}
			obs.Sky = &SkyCoordinates{RA: ra, Dec: dec2}
		}
		a.observations = append(a.observations, obs)
	}
	return nil
}

// astrometryFromHeader is the registry constructor for the astrometry
// catalog block.
func astrometryFromHeader(hdr *BlockHeader) (HDB, error) {
	inner, err := asciiTableFromHeader(hdr)
	if err != nil {
		return nil, err
	}
	return &AstrometryHDB{AsciiTableHDB: *inner}, nil
}
