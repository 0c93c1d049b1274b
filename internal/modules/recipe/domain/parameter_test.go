package domain_test

import (
	"errors"
	"math"
	"strings"
	"testing"

	"gocpl/internal/modules/recipe/domain"
)

func methodParam() domain.Parameter {
	return domain.Parameter{
		Name:     "gocpl.flatcombine.method",
		Alias:    "method",
		Type:     domain.TypeEnum,
		EnumKind: domain.KindString,
		Default:  domain.String("median"),
		Choices:  []domain.Value{domain.String("median"), domain.String("mean")},
	}
}

func ptr(v domain.Value) *domain.Value { return &v }

func TestParameterValidate(t *testing.T) {
	t.Parallel()
	sigma := domain.Parameter{Name: "kappa", Type: domain.TypeFloat, Default: domain.Float(3), Min: ptr(domain.Float(0)), Max: ptr(domain.Float(10))}
	niter := domain.Parameter{Name: "niter", Type: domain.TypeInt, Default: domain.Int(5), Min: ptr(domain.Int(1)), Max: ptr(domain.Int(100))}
	flag := domain.Parameter{Name: "save", Type: domain.TypeBool, Default: domain.Bool(false)}
	gain := domain.Parameter{Name: "gain", Type: domain.TypeFloat, Default: domain.Float(1)}
	npix := domain.Parameter{Name: "npix", Type: domain.TypeInt, Default: domain.Int(0)}

	cases := []struct {
		name      string
		param     domain.Parameter
		raw       string
		shouldErr bool
	}{
		{name: "enum member", param: methodParam(), raw: "mean"},
		{name: "enum bogus", param: methodParam(), raw: "bogus", shouldErr: true},
		{name: "float in range", param: sigma, raw: "2.5"},
		{name: "float at bound", param: sigma, raw: "10"},
		{name: "float above", param: sigma, raw: "10.5", shouldErr: true},
		{name: "float nan in range", param: sigma, raw: "NaN", shouldErr: true},
		{name: "float inf unbounded", param: gain, raw: "+Inf", shouldErr: true},
		{name: "float minus inf unbounded", param: gain, raw: "-inf", shouldErr: true},
		{name: "int at c int max", param: npix, raw: "2147483647"},
		{name: "int at c int min", param: npix, raw: "-2147483648"},
		{name: "int above c int", param: npix, raw: "4294967297", shouldErr: true},
		{name: "int below c int", param: npix, raw: "-2147483649", shouldErr: true},
		{name: "int in range", param: niter, raw: "7"},
		{name: "int below", param: niter, raw: "0", shouldErr: true},
		{name: "int not a number", param: niter, raw: "seven", shouldErr: true},
		{name: "bool", param: flag, raw: "TRUE"},
		{name: "bool garbage", param: flag, raw: "maybe", shouldErr: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			p := tc.param
			p.SetString(tc.raw)
			err := p.Validate()
			if tc.shouldErr {
				if !errors.Is(err, domain.ErrValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				if !strings.Contains(err.Error(), "parameter "+p.Name) {
					t.Fatalf("error does not name the parameter: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestParameterIntWidensToFloat(t *testing.T) {
	t.Parallel()
	p := domain.Parameter{Name: "kappa", Type: domain.TypeFloat, Default: domain.Float(3)}
	p.Set(domain.Int(4))
	v, err := p.Resolved()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if f, ok := v.AsFloat(); !ok || f != 4 {
		t.Fatalf("expected float 4, got %v", v)
	}
	p.Set(domain.Bool(true))
	if err := p.Validate(); err == nil {
		t.Fatalf("expected kind mismatch")
	}
}

func TestParameterResetRestoresDefault(t *testing.T) {
	t.Parallel()
	p := methodParam()
	p.SetString("mean")
	if !p.IsSet() || p.Value().String() != "mean" {
		t.Fatalf("expected mean, got %s", p.Value())
	}
	p.Reset()
	if p.IsSet() || p.Value().String() != "median" {
		t.Fatalf("expected default median, got %s", p.Value())
	}
}

func TestParameterSetIsIndependentPerClone(t *testing.T) {
	t.Parallel()
	base := domain.NewParameterSet([]domain.Parameter{methodParam()})
	a := base.Clone()
	b := base.Clone()
	if err := a.SetString("method", "mean"); err != nil {
		t.Fatalf("set alias: %v", err)
	}
	pa, _ := a.Lookup("gocpl.flatcombine.method")
	pb, _ := b.Lookup("method")
	if pa.Value().String() != "mean" || pb.Value().String() != "median" {
		t.Fatalf("clones share state: a=%s b=%s", pa.Value(), pb.Value())
	}
}

func TestParameterSetUnknownAndValidate(t *testing.T) {
	t.Parallel()
	set := domain.NewParameterSet([]domain.Parameter{methodParam()})
	err := set.SetString("nosuch", "1")
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Parameter != "nosuch" {
		t.Fatalf("expected validation error for nosuch, got %v", err)
	}
	if err := set.Apply([]domain.Setting{{Name: "method", Value: "bogus"}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	err = set.Validate("flatcombine")
	if !errors.As(err, &verr) || verr.Recipe != "flatcombine" || verr.Parameter != "gocpl.flatcombine.method" {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestParameterValidateDeclaration(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		param     domain.Parameter
		shouldErr bool
	}{
		{name: "valid enum", param: methodParam()},
		{name: "missing name", param: domain.Parameter{Type: domain.TypeInt, Default: domain.Int(1)}, shouldErr: true},
		{name: "unknown type", param: domain.Parameter{Name: "x", Type: "complex", Default: domain.Int(1)}, shouldErr: true},
		{name: "enum without choices", param: domain.Parameter{Name: "x", Type: domain.TypeEnum, Default: domain.String("a")}, shouldErr: true},
		{name: "default outside range", param: domain.Parameter{Name: "x", Type: domain.TypeInt, Default: domain.Int(0), Min: ptr(domain.Int(1))}, shouldErr: true},
		{name: "inverted range", param: domain.Parameter{Name: "x", Type: domain.TypeInt, Default: domain.Int(1), Min: ptr(domain.Int(5)), Max: ptr(domain.Int(2))}, shouldErr: true},
		{name: "missing default", param: domain.Parameter{Name: "x", Type: domain.TypeString}, shouldErr: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := tc.param.ValidateDeclaration()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestParseValue(t *testing.T) {
	t.Parallel()
	if v, err := domain.ParseValue(domain.KindInt, "42"); err != nil || v.String() != "42" {
		t.Fatalf("int: %v %v", v, err)
	}
	if v, err := domain.ParseValue(domain.KindFloat, "1e-3"); err != nil || v.String() != "0.001" {
		t.Fatalf("float: %v %v", v, err)
	}
	if _, err := domain.ParseValue(domain.KindInt, "4.2"); err == nil {
		t.Fatalf("expected int parse error")
	}
	if _, err := domain.ParseValue(domain.KindFloat, "NaN"); err == nil {
		t.Fatalf("expected NaN to be rejected")
	}
	if _, err := domain.ParseValue("complex", "1"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestValueCheckNative(t *testing.T) {
	t.Parallel()
	cases := []struct {
		value     domain.Value
		shouldErr bool
	}{
		{value: domain.Int(math.MaxInt32)},
		{value: domain.Int(math.MinInt32)},
		{value: domain.Int(math.MaxInt32 + 1), shouldErr: true},
		{value: domain.Int(math.MinInt32 - 1), shouldErr: true},
		{value: domain.Float(math.MaxFloat64)},
		{value: domain.Float(math.NaN()), shouldErr: true},
		{value: domain.Float(math.Inf(-1)), shouldErr: true},
		{value: domain.String("NaN")},
	}
	for _, tc := range cases {
		if err := tc.value.CheckNative(); (err != nil) != tc.shouldErr {
			t.Fatalf("%s %s: err = %v", tc.value.Kind(), tc.value, err)
		}
	}
}
