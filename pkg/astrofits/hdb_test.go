package astrofits

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStructuralKeyword(t *testing.T) {
	t.Parallel()

	structural := []string{"SIMPLE", "BITPIX", "NAXIS", "NAXIS1", "NAXIS12",
		"TFORM3", "TTYPE1", "TBCOL2", "XTENSION", "EXTNAME", "END"}
	for _, name := range structural {
		if !structuralKeyword(name) {
			t.Errorf("structuralKeyword(%s) = false", name)
		}
	}
	plain := []string{"OBJECT", "EXPTIME", "NAXISX", "TFORMAT", "TTYPE", "FILTER"}
	for _, name := range plain {
		if structuralKeyword(name) {
			t.Errorf("structuralKeyword(%s) = true", name)
		}
	}
}

func TestImageHDBAccepts(t *testing.T) {
	t.Parallel()

	h := NewImageHDB("")
	if !h.Accepts(OpKeywordEdit) {
		t.Error("header-only image block rejects keyword edits")
	}
	if h.Accepts(OpGeometric) {
		t.Error("header-only image block accepts geometric ops")
	}

	p, _ := NewImagePlane(2, 2, BitPixInt16)
	img, _ := NewAstroImage(p)
	h.SetImage(img)
	if !h.Accepts(OpGeometric) || !h.Accepts(OpCalibrate) {
		t.Error("image block with pixels rejects geometric/calibrate ops")
	}
	if h.Accepts(OpCatalogEdit) {
		t.Error("image block accepts catalog edits")
	}
}

func TestImageHDBGeometricWithoutPixels(t *testing.T) {
	t.Parallel()

	h := NewImageHDB("")
	err := h.Flip()
	var ue *UnsupportedOperationError
	if !errors.As(err, &ue) {
		t.Fatalf("Flip on header-only block err = %v, want UnsupportedOperationError", err)
	}
	if ue.Op != OpGeometric || ue.Block != BlockImage {
		t.Errorf("error identifies %s on %s", ue.Op, ue.Block)
	}
}

func TestImageHDBAxesTrackImage(t *testing.T) {
	t.Parallel()

	p1, _ := NewImagePlane(4, 3, BitPixFloat32)
	p2, _ := NewImagePlane(4, 3, BitPixFloat32)
	p3, _ := NewImagePlane(4, 3, BitPixFloat32)
	color, _ := NewAstroImage(p1, p2, p3)

	h := NewImageHDBFromImage("RGB", color)
	if h.NAxis() != 3 {
		t.Fatalf("NAxis = %d, want 3", h.NAxis())
	}
	if h.NAxisN(1) != 4 || h.NAxisN(2) != 3 || h.NAxisN(3) != 3 {
		t.Errorf("axes = %d,%d,%d", h.NAxisN(1), h.NAxisN(2), h.NAxisN(3))
	}
	if h.NAxisN(0) != 0 || h.NAxisN(4) != 0 {
		t.Error("out-of-range NAxisN not zero")
	}
}

func TestImageHDBCreateCopyIsDeep(t *testing.T) {
	t.Parallel()

	p, _ := NewImagePlaneFromSamples(2, 2, BitPixFloat64, []float64{1, 2, 3, 4})
	img, _ := NewAstroImage(p)
	h := NewImageHDBFromImage("", img)
	_ = h.Keywords().Write("FILTER", "L", "")
	h.SetPixelSize(Point{X: 5.4, Y: 5.4})

	c := h.CreateCopy().(*ImageHDB)
	c.Image().Plane(0).Set(0, 0, 99)
	_ = c.Keywords().Write("FILTER", "R", "")

	if h.Image().Plane(0).At(0, 0) != 1 {
		t.Error("pixel mutation leaked through copy")
	}
	if v, _ := h.Keywords().Read("FILTER"); v != "L" {
		t.Error("keyword mutation leaked through copy")
	}
}

func TestImageHDBBinUpdatesPixelSize(t *testing.T) {
	t.Parallel()

	p, _ := NewImagePlane(4, 4, BitPixInt16)
	img, _ := NewAstroImage(p)
	h := NewImageHDBFromImage("", img)
	h.SetPixelSize(Point{X: 3.8, Y: 3.8})

	if err := h.BinPixels(2); err != nil {
		t.Fatalf("BinPixels: %v", err)
	}
	ps, ok := h.PixelSize()
	if !ok || ps.X != 7.6 || ps.Y != 7.6 {
		t.Errorf("pixel size after 2x bin = %v, %v", ps, ok)
	}
	if h.Width() != 2 || h.Height() != 2 {
		t.Errorf("size after bin = %dx%d", h.Width(), h.Height())
	}
}

func TestAsciiTableRoundsTripRows(t *testing.T) {
	t.Parallel()

	tbl, err := NewAsciiTableHDB("CAT", []TableColumn{
		{Name: "NAME", Form: "A8"},
		{Name: "MAG", Form: "F8.3"},
	})
	if err != nil {
		t.Fatalf("NewAsciiTableHDB: %v", err)
	}
	// Auto-layout: NAME at 1, MAG after an 8-wide field plus separator.
	cols := tbl.Columns()
	if cols[0].Start != 1 || cols[1].Start != 10 {
		t.Errorf("column starts = %d, %d", cols[0].Start, cols[1].Start)
	}

	if err := tbl.AppendRow([]string{"vega", "0.030"}); err != nil {
		t.Fatalf("AppendRow: %v", err)
	}
	if err := tbl.AppendRow([]string{"deneb"}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("short row err = %v, want ErrInvalidArgument", err)
	}

	v, ok := tbl.Cell(0, "mag")
	if !ok || v != "0.030" {
		t.Errorf("Cell(0, mag) = %q, %v", v, ok)
	}
	if tbl.NAxisN(1) != 17 || tbl.NAxisN(2) != 1 {
		t.Errorf("axes = %dx%d, want 17x1", tbl.NAxisN(1), tbl.NAxisN(2))
	}
}

func TestBinTableCells(t *testing.T) {
	t.Parallel()

	tbl, err := NewBinTableHDB("DATA", []BinColumn{
		{Name: "ID", Code: 'A', Repeat: 8},
		{Name: "FLUX", Code: 'D', Repeat: 1},
		{Name: "SAT", Code: 'L', Repeat: 1},
		{Name: "ADU", Code: 'J', Repeat: 1},
	})
	if err != nil {
		t.Fatalf("NewBinTableHDB: %v", err)
	}
	if err := tbl.AppendRow("s1", 1234.5, true, int32(42)); err != nil {
		t.Fatalf("AppendRow: %v", err)
	}
	if err := tbl.AppendRow("s2", 1.0, false, int64(42)); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("wrong cell type err = %v, want ErrTypeMismatch", err)
	}

	tests := []struct {
		col  string
		want any
	}{
		{"ID", "s1"},
		{"FLUX", 1234.5},
		{"SAT", true},
		{"ADU", int32(42)},
	}
	for _, tt := range tests {
		got, err := tbl.Cell(0, tt.col)
		if err != nil {
			t.Fatalf("Cell(0, %s): %v", tt.col, err)
		}
		if got != tt.want {
			t.Errorf("Cell(0, %s) = %v (%T), want %v", tt.col, got, got, tt.want)
		}
	}

	if _, err := tbl.Cell(0, "NOPE"); !errors.Is(err, ErrKeywordNotFound) {
		t.Errorf("unknown column err = %v", err)
	}
	if _, err := tbl.Cell(5, "ID"); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("row overflow err = %v", err)
	}
}

func TestParseBinForm(t *testing.T) {
	t.Parallel()

	tests := []struct {
		form    string
		want    BinColumn
		wantErr bool
	}{
		{form: "1D", want: BinColumn{Code: 'D', Repeat: 1}},
		{form: "16A", want: BinColumn{Code: 'A', Repeat: 16}},
		{form: "J", want: BinColumn{Code: 'J', Repeat: 1}},
		{form: "0E", wantErr: true},
		{form: "D4", wantErr: true},
		{form: "Q", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseBinForm(tt.form)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseBinForm(%q) succeeded, want error", tt.form)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseBinForm(%q): %v", tt.form, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseBinForm(%q) = %+v, want %+v", tt.form, got, tt.want)
		}
	}
}

func TestAstrometryCatalog(t *testing.T) {
	t.Parallel()

	a := NewAstrometryHDB()
	if a.Type() != BlockAstrometry {
		t.Fatalf("Type = %v", a.Type())
	}
	if a.Name() != ExtNameAstrometry {
		t.Errorf("Name = %q", a.Name())
	}

	if !a.Add(AstrometryObservation{ID: "ref-1", CCD: Point{X: 10, Y: 20}}) {
		t.Fatal("first Add = false")
	}
	if a.Add(AstrometryObservation{ID: "ref-1", CCD: Point{X: 99, Y: 99}}) {
		t.Error("duplicate Add = true")
	}
	if a.Count() != 1 {
		t.Fatalf("Count = %d", a.Count())
	}
	obs, ok := a.Get("ref-1")
	if !ok || obs.CCD != (Point{X: 10, Y: 20}) {
		t.Errorf("Get(ref-1) = %+v, %v; duplicate must not overwrite", obs, ok)
	}

	if !a.Remove("ref-1") {
		t.Error("Remove = false")
	}
	if a.Remove("ref-1") {
		t.Error("second Remove = true")
	}
}

func TestAstrometryCopyIsolation(t *testing.T) {
	t.Parallel()

	a := NewAstrometryHDB()
	a.Add(AstrometryObservation{ID: "s", CCD: Point{X: 1, Y: 1}, Sky: &SkyCoordinates{RA: 10, Dec: 20}})

	c := a.CreateCopy().(*AstrometryHDB)
	got, _ := c.Get("s")
	got.Sky.RA = 99 // mutating the returned copy
	c.remapPoints(func(pt Point) Point { return Point{X: pt.X + 5, Y: pt.Y} })

	orig, _ := a.Get("s")
	if orig.Sky.RA != 10 || orig.CCD.X != 1 {
		t.Errorf("original observation mutated: %+v", orig)
	}
}

func TestPhotometryCatalog(t *testing.T) {
	t.Parallel()

	p := NewPhotometryHDB()
	if p.Type() != BlockPhotometry {
		t.Fatalf("Type = %v", p.Type())
	}
	if !p.Accepts(OpCatalogEdit) || p.Accepts(OpGeometric) {
		t.Error("capability set wrong")
	}

	ok := p.Add(PhotometryObservation{
		ID: "v1", CCD: Point{X: 5, Y: 6},
		InstrumentMagnitude: -8.2, MagnitudeError: 0.02, FWHM: 3.1,
	})
	if !ok {
		t.Fatal("Add = false")
	}
	if p.Add(PhotometryObservation{ID: "v1"}) {
		t.Error("duplicate Add = true")
	}

	all := p.All()
	if len(all) != 1 || all[0].InstrumentMagnitude != -8.2 {
		t.Errorf("All = %+v", all)
	}

	p.RemoveAll()
	if p.Count() != 0 {
		t.Errorf("Count after RemoveAll = %d", p.Count())
	}
}

func TestCommentAndHistoryAccumulate(t *testing.T) {
	t.Parallel()

	h := NewImageHDB("")
	h.CommentWrite("first")
	h.CommentWrite("second")
	h.HistoryWrite("calibrated")

	if diff := cmp.Diff("first\nsecond", h.Comment()); diff != "" {
		t.Errorf("Comment mismatch:\n%s", diff)
	}
	if h.History() != "calibrated" {
		t.Errorf("History = %q", h.History())
	}
}
