package astrofits

import (
	"fmt"
	"math"
)

// PhotometryObservation is one measured source: an identifier, CCD
// coordinates, optional sky coordinates, and the photometric quantities.
type PhotometryObservation struct {
	ID                  string
	CCD                 Point
	Sky                 *SkyCoordinates
	InstrumentMagnitude float64
	MagnitudeError      float64
	FWHM                float64
	Flux                float64
	Background          float64
}

func (o PhotometryObservation) deepCopy() PhotometryObservation {
	c := o
	if o.Sky != nil {
		sky := *o.Sky
		c.Sky = &sky
	}
	return c
}

// photometrySchema is the fixed binary column layout the catalog
// serializes to. RA/DEC hold NaN for unreduced observations.
func photometrySchema() []BinColumn {
	return []BinColumn{
		{Name: "OBJECT", Code: 'A', Repeat: 16},
		{Name: "X", Code: 'D', Repeat: 1},
		{Name: "Y", Code: 'D', Repeat: 1},
		{Name: "RA", Code: 'D', Repeat: 1},
		{Name: "DEC", Code: 'D', Repeat: 1},
		{Name: "MAG", Code: 'D', Repeat: 1},
		{Name: "MAGERR", Code: 'D', Repeat: 1},
		{Name: "FWHM", Code: 'D', Repeat: 1},
		{Name: "FLUX", Code: 'D', Repeat: 1},
		{Name: "SKYBKG", Code: 'D', Repeat: 1},
	}
}

// PhotometryHDB is the singleton photometry catalog, stored as a binary
// table extension named PHOTOMETRY.
type PhotometryHDB struct {
	BinTableHDB
	observations []PhotometryObservation
}

func NewPhotometryHDB() *PhotometryHDB {
	inner, err := NewBinTableHDB(ExtNamePhotometry, photometrySchema())
	if err != nil {
		panic(err) // fixed schema, cannot fail
	}
	return &PhotometryHDB{BinTableHDB: *inner}
}

func (p *PhotometryHDB) Type() BlockType { return BlockPhotometry }

func (p *PhotometryHDB) Accepts(op Operation) bool {
	return op == OpKeywordEdit || op == OpCatalogEdit
}

// Add inserts an observation. Duplicate identifiers are rejected: the
// return is false and the catalog is unchanged.
func (p *PhotometryHDB) Add(obs PhotometryObservation) bool {
	for _, existing := range p.observations {
		if existing.ID == obs.ID {
			return false
		}
	}
	p.observations = append(p.observations, obs.deepCopy())
	return true
}

// Remove deletes the observation with the given identifier, reporting
// whether it was present.
func (p *PhotometryHDB) Remove(id string) bool {
	for i, obs := range p.observations {
		if obs.ID == id {
			p.observations = append(p.observations[:i], p.observations[i+1:]...)
			return true
		}
	}
	return false
}

func (p *PhotometryHDB) RemoveAll() { p.observations = nil }

func (p *PhotometryHDB) Count() int { return len(p.observations) }

// Get returns the observation with the given identifier.
func (p *PhotometryHDB) Get(id string) (PhotometryObservation, bool) {
	for _, obs := range p.observations {
		if obs.ID == id {
			return obs.deepCopy(), true
		}
	}
	return PhotometryObservation{}, false
}

// All returns the observations in insertion order.
func (p *PhotometryHDB) All() []PhotometryObservation {
	out := make([]PhotometryObservation, len(p.observations))
	for i, obs := range p.observations {
		out[i] = obs.deepCopy()
	}
	return out
}

// remapPoints applies a coordinate transform to every observation's CCD
// position.
func (p *PhotometryHDB) remapPoints(f func(Point) Point) {
	for i := range p.observations {
		p.observations[i].CCD = f(p.observations[i].CCD)
	}
}

func (p *PhotometryHDB) CreateCopy() HDB {
	c := &PhotometryHDB{BinTableHDB: *p.BinTableHDB.deepCopy()}
	c.observations = make([]PhotometryObservation, len(p.observations))
	for i, obs := range p.observations {
		c.observations[i] = obs.deepCopy()
	}
	return c
}

func (p *PhotometryHDB) rebuildRows() {
	p.ClearRows()
	for _, obs := range p.observations {
		ra, dec := math.NaN(), math.NaN()
		if obs.Sky != nil {
			ra, dec = obs.Sky.RA, obs.Sky.Dec
		}
		_ = p.AppendRow(obs.ID, obs.CCD.X, obs.CCD.Y, ra, dec,
			obs.InstrumentMagnitude, obs.MagnitudeError, obs.FWHM,
			obs.Flux, obs.Background)
	}
}

func (p *PhotometryHDB) headerCards() (*BlockHeader, error) {
	p.rebuildRows()
	return p.BinTableHDB.headerCards()
}

func (p *PhotometryHDB) writePayload(enc Encoder) error {
	p.rebuildRows()
	return p.BinTableHDB.writePayload(enc)
}

func (p *PhotometryHDB) loadPayload(dec Decoder) error {
	if err := p.BinTableHDB.loadPayload(dec); err != nil {
		return err
	}
	p.observations = nil
	f64 := func(row int, col string) (float64, error) {
		v, err := p.Cell(row, col)
		if err != nil {
			return 0, err
		}
		x, ok := v.(float64)
		if !ok {
			return 0, fmt.Errorf("photometry row %d column %s: %w", row, col, ErrTypeMismatch)
		}
		return x, nil
	}
	for r := 0; r < p.RowCount(); r++ {
		idv, err := p.Cell(r, "OBJECT")
		if err != nil {
			return err
		}
		id, _ := idv.(string)
		obs := PhotometryObservation{ID: id}
		fields := []struct {
			col string
			dst *float64
		}{
			{"X", &obs.CCD.X},
			{"Y", &obs.CCD.Y},
			{"MAG", &obs.InstrumentMagnitude},
			{"MAGERR", &obs.MagnitudeError},
			{"FWHM", &obs.FWHM},
			{"FLUX", &obs.Flux},
			{"SKYBKG", &obs.Background},
		}
		for _, f := range fields {
			v, err := f64(r, f.col)
			if err != nil {
				return err
			}
			*f.dst = v
		}
		ra, err := f64(r, "RA")
		if err != nil {
			return err
		}
		dec2, err := f64(r, "DEC")
		if err != nil {
			return err
		}
		if !math.IsNaN(ra) && !math.IsNaN(dec2) {
			obs.Sky = &SkyCoordinates{RA: ra, Dec: dec2}
		}
		p.observations = append(p.observations, obs)
	}
	return nil
}

// photometryFromHeader is the registry constructor for the photometry
// catalog block.
func photometryFromHeader(hdr *BlockHeader) (HDB, error) {
	inner, err := binTableFromHeader(hdr)
	if err != nil {
		return nil, err
	}
	return &PhotometryHDB{BinTableHDB: *inner}, nil
}
