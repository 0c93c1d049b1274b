package out

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/astrogo/fitsio"
)

func writeProduct(t *testing.T, path string, cards ...fitsio.Card) {
	t.Helper()

	w, err := os.Create(path)
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	defer w.Close()

	f, err := fitsio.Create(w)
	if err != nil {
		t.Fatalf("create fits: %v", err)
	}
	img := fitsio.NewImage(-32, []int{2, 2})
	if err := img.Header().Append(cards...); err != nil {
		t.Fatalf("append cards: %v", err)
	}
	if err := img.Write([]float32{1, 2, 3, 4}); err != nil {
		t.Fatalf("write pixels: %v", err)
	}
	if err := f.Write(img); err != nil {
		t.Fatalf("write hdu: %v", err)
	}
	if err := img.Close(); err != nil {
		t.Fatalf("close image: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close fits: %v", err)
	}
}

func TestFITSHeaderReaderReadsPrimaryCards(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "master_flat.fits")
	writeProduct(t, path,
		fitsio.Card{Name: "PROCATG", Value: "MASTER_FLAT", Comment: "product category"},
		fitsio.Card{Name: "QCMEAN", Value: 1.25},
		fitsio.Card{Name: "NCOMB", Value: 3},
		fitsio.Card{Name: "CHECKED", Value: true},
	)

	header, err := NewFITSHeaderReader().ReadPrimary(context.Background(), path)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	want := map[string]string{
		"PROCATG": "MASTER_FLAT",
		"QCMEAN":  "1.25",
		"NCOMB":   "3",
		"CHECKED": "T",
	}
	got := header.Map()
	for key, value := range want {
		if got[key] != value {
			t.Fatalf("%s: expected %q, got %q (header %v)", key, value, got[key], got)
		}
	}
	if card, ok := header.Get("PROCATG"); !ok || card.Comment != "product category" {
		t.Fatalf("comment lost: %+v", card)
	}
	if _, ok := header.Get("BITPIX"); !ok {
		t.Fatalf("structural cards should pass through: %v", got)
	}
}

func TestFITSHeaderReaderRejectsNonFITS(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "notes.fits")
	if err := os.WriteFile(path, []byte("not a fits file"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := NewFITSHeaderReader().ReadPrimary(context.Background(), path); err == nil {
		t.Fatal("expected decode failure")
	}
}

func TestFITSHeaderReaderMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := NewFITSHeaderReader().ReadPrimary(context.Background(), filepath.Join(t.TempDir(), "absent.fits")); err == nil {
		t.Fatal("expected missing file to fail")
	}
}
