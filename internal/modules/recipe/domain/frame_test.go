package domain_test

import (
	"reflect"
	"strings"
	"testing"

	"gocpl/internal/modules/recipe/domain"
)

func mustFrame(t *testing.T, path, tag string) domain.Frame {
	t.Helper()
	f, err := domain.NewFrame(path, tag, domain.FrameGroupRaw)
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	return f
}

func TestNewFrameValidation(t *testing.T) {
	t.Parallel()
	if _, err := domain.NewFrame("", "FLAT", domain.FrameGroupRaw); err == nil {
		t.Fatalf("expected missing path error")
	}
	if _, err := domain.NewFrame("a.fits", "", domain.FrameGroupRaw); err == nil {
		t.Fatalf("expected missing tag error")
	}
	if _, err := domain.NewFrame("a.fits", "MASTER FLAT", domain.FrameGroupRaw); err == nil {
		t.Fatalf("expected whitespace tag error")
	}
	if _, err := domain.NewFrame("a.fits", "FLAT", "science"); err == nil {
		t.Fatalf("expected group error")
	}
}

func TestFrameSetKeepsOrderAndCopies(t *testing.T) {
	t.Parallel()
	set := domain.NewFrameSet(mustFrame(t, "b.fits", "FLAT"), mustFrame(t, "a.fits", "BIAS"))
	set.Append(mustFrame(t, "c.fits", "FLAT"))

	frames := set.Frames()
	frames[0] = mustFrame(t, "z.fits", "DARK")
	if set.At(0).Path() != "b.fits" {
		t.Fatalf("Frames must return a copy")
	}
	clone := set.Clone()
	clone.Append(mustFrame(t, "d.fits", "FLAT"))
	if set.Len() != 3 || clone.Len() != 4 {
		t.Fatalf("clone shares storage: %d %d", set.Len(), clone.Len())
	}
	if got := set.Tags(); !reflect.DeepEqual(got, []string{"FLAT", "BIAS"}) {
		t.Fatalf("unexpected tags: %v", got)
	}
	if set.Count("FLAT") != 2 {
		t.Fatalf("unexpected FLAT count: %d", set.Count("FLAT"))
	}
}

func TestParseSOF(t *testing.T) {
	t.Parallel()
	raw := `# flats for tonight
flat1.fits FLAT
/data/flat2.fits   FLAT   RAW
bias.fits MASTER_BIAS CALIB # from last week

`
	set, err := domain.ParseSOF(strings.NewReader(raw), "/night")
	if err != nil {
		t.Fatalf("parse sof: %v", err)
	}
	if set.Len() != 3 {
		t.Fatalf("expected 3 frames, got %d", set.Len())
	}
	want := []struct {
		path  string
		tag   string
		group domain.FrameGroup
	}{
		{"/night/flat1.fits", "FLAT", domain.FrameGroupNone},
		{"/data/flat2.fits", "FLAT", domain.FrameGroupRaw},
		{"/night/bias.fits", "MASTER_BIAS", domain.FrameGroupCalib},
	}
	for i, w := range want {
		f := set.At(i)
		if f.Path() != w.path || f.Tag() != w.tag || f.Group() != w.group {
			t.Fatalf("frame %d: got %s %s %q", i, f.Path(), f.Tag(), f.Group())
		}
	}
}

func TestParseSOFRejectsMalformedLines(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"onlypath.fits\n", "a.fits FLAT RAW extra\n", "a.fits FLAT SCIENCE\n"} {
		if _, err := domain.ParseSOF(strings.NewReader(raw), ""); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestParseRC(t *testing.T) {
	t.Parallel()
	raw := `# generated by esorex
gocpl.flatcombine.method=mean
--kappa = 2.5
label="night one"
target="NGC#1" # field name
ccd=chip#2
`
	settings, err := domain.ParseRC(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("parse rc: %v", err)
	}
	want := []domain.Setting{
		{Name: "gocpl.flatcombine.method", Value: "mean"},
		{Name: "kappa", Value: "2.5"},
		{Name: "label", Value: "night one"},
		{Name: "target", Value: "NGC#1"},
		{Name: "ccd", Value: "chip"},
	}
	if !reflect.DeepEqual(settings, want) {
		t.Fatalf("unexpected settings: %+v", settings)
	}
	if _, err := domain.ParseRC(strings.NewReader("novalue\n")); err == nil {
		t.Fatalf("expected error for missing '='")
	}
}
