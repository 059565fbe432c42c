package astrofits

import (
	"errors"
	"testing"
)

func imageHeader(primary bool, axes ...int) *BlockHeader {
	hdr := &BlockHeader{}
	if primary {
		hdr.Append("SIMPLE", true, "")
	} else {
		hdr.Append("XTENSION", "IMAGE", "")
	}
	hdr.Append("BITPIX", int64(16), "")
	hdr.Append("NAXIS", int64(len(axes)), "")
	for i, ax := range axes {
		hdr.Append("NAXIS"+string(rune('0'+i+1)), int64(ax), "")
	}
	return hdr
}

func tableHeader(xtension, extname string) *BlockHeader {
	hdr := &BlockHeader{}
	hdr.Append("XTENSION", xtension, "")
	hdr.Append("BITPIX", int64(8), "")
	hdr.Append("NAXIS", int64(2), "")
	hdr.Append("NAXIS1", int64(10), "")
	hdr.Append("NAXIS2", int64(0), "")
	hdr.Append("TFIELDS", int64(1), "")
	hdr.Append("TTYPE1", "COL", "")
	if xtension == "TABLE" {
		hdr.Append("TFORM1", "A10", "")
		hdr.Append("TBCOL1", int64(1), "")
	} else {
		hdr.Append("TFORM1", "10A", "")
	}
	if extname != "" {
		hdr.Append("EXTNAME", extname, "")
	}
	return hdr
}

func TestDefaultRegistryResolution(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hdr  *BlockHeader
		want BlockType
	}{
		{"primary image", imageHeader(true, 4, 4), BlockImage},
		{"image extension", imageHeader(false, 4, 4), BlockImage},
		{"astrometry catalog", tableHeader("TABLE", ExtNameAstrometry), BlockAstrometry},
		{"photometry catalog", tableHeader("BINTABLE", ExtNamePhotometry), BlockPhotometry},
		{"generic ascii table", tableHeader("TABLE", "STARS"), BlockAsciiTable},
		{"generic binary table", tableHeader("BINTABLE", "STARS"), BlockBinTable},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			hdb, err := DefaultRegistry().Resolve(tt.hdr)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if hdb.Type() != tt.want {
				t.Errorf("Type = %v, want %v", hdb.Type(), tt.want)
			}
		})
	}
}

func TestRegistryUnknownSignature(t *testing.T) {
	t.Parallel()

	hdr := &BlockHeader{}
	hdr.Append("XTENSION", "FOREIGN", "")
	hdr.Append("BITPIX", int64(8), "")
	hdr.Append("NAXIS", int64(0), "")

	if _, err := DefaultRegistry().Resolve(hdr); !errors.Is(err, ErrUnknownBlockSignature) {
		t.Errorf("Resolve err = %v, want ErrUnknownBlockSignature", err)
	}
}

func TestRegistryOrderWins(t *testing.T) {
	t.Parallel()

	// A custom registry can claim a header before the generic entry sees it.
	r := &Registry{}
	r.Register(func(hdr *BlockHeader) bool {
		return extNameIs(hdr, "SPECIAL")
	}, func(hdr *BlockHeader) (HDB, error) {
		h := NewImageHDB("SPECIAL")
		return h, h.absorbHeader(hdr)
	})
	r.Register(func(hdr *BlockHeader) bool { return true }, imageHDBFromHeader)

	hdr := imageHeader(false, 2, 2)
	hdr.Append("EXTNAME", "SPECIAL", "")
	hdb, err := r.Resolve(hdr)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if hdb.Name() != "SPECIAL" {
		t.Errorf("first registered entry did not win: name = %q", hdb.Name())
	}
}

func TestRegistryNonStructuralCardsLand(t *testing.T) {
	t.Parallel()

	hdr := imageHeader(true, 2, 2)
	hdr.Append("OBJECT", "M13", "target")
	hdr.Append("EXPTIME", 300.0, "")
	hdr.Cards = append(hdr.Cards, Keyword{Name: "HISTORY", Type: TypeNone, Comment: "stacked"})

	hdb, err := DefaultRegistry().Resolve(hdr)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !hdb.Primary() {
		t.Error("SIMPLE header did not mark block primary")
	}
	if v, _ := hdb.Keywords().Read("OBJECT"); v != "M13" {
		t.Errorf("OBJECT = %v", v)
	}
	// Structural cards stay out of the store.
	if hdb.Keywords().Exists("BITPIX") || hdb.Keywords().Exists("NAXIS1") {
		t.Error("structural card leaked into keyword store")
	}
	if hdb.History() != "stacked" {
		t.Errorf("History = %q", hdb.History())
	}
}
