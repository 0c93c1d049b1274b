package out

import (
	"context"
	"fmt"

	"gocpl/internal/modules/recipe/domain"
	recipeout "gocpl/internal/modules/recipe/port/out"
	"gocpl/internal/platform/cplnative"
)

// NativeLoader loads plugins into this process. A crashing recipe takes the
// process with it; the worker uses this loader behind process isolation.
type NativeLoader struct{}

func NewNativeLoader() NativeLoader {
	return NativeLoader{}
}

func (NativeLoader) Isolated() bool { return false }

func (NativeLoader) Open(_ context.Context, path string) (recipeout.Library, error) {
	if err := cplnative.CheckELF(path); err != nil {
		return nil, err
	}
	lib, err := cplnative.Open(path)
	if err != nil {
		return nil, err
	}
	return &nativeLibrary{lib: lib, path: path}, nil
}

type nativeLibrary struct {
	lib  *cplnative.Library
	path string
}

func (n *nativeLibrary) Path() string { return n.path }

func (n *nativeLibrary) Recipes(ctx context.Context) ([]domain.RecipeDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	recipes, err := n.lib.Recipes()
	if err != nil {
		return nil, err
	}
	out := make([]domain.RecipeDescriptor, 0, len(recipes))
	for _, r := range recipes {
		d, err := descriptorFromNative(r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n.path, err)
		}
		d.Plugin = n.path
		out = append(out, d)
	}
	return out, nil
}

// Invoke cannot be interrupted once the recipe runs; ctx is only checked
// before the call.
func (n *nativeLibrary) Invoke(ctx context.Context, req domain.NativeRequest) (domain.NativeOutput, error) {
	if err := ctx.Err(); err != nil {
		return domain.NativeOutput{}, err
	}
	native := cplnative.Request{
		Recipe:    req.Recipe,
		OutputDir: req.OutputDir,
		TempDir:   req.TempDir,
		LogLevel:  req.LogLevel,
		Env:       req.Env,
	}
	for _, p := range req.Parameters {
		native.Params = append(native.Params, cplnative.Param{Name: p.Name, Value: scalarFromValue(p.Value)})
	}
	for _, f := range req.Frames {
		native.Frames = append(native.Frames, cplnative.Frame{Path: f.Path(), Tag: f.Tag(), Group: string(f.Group())})
	}
	out, err := n.lib.Invoke(native)
	if err != nil {
		return domain.NativeOutput{}, &domain.PluginError{Recipe: req.Recipe, Plugin: n.path, Cause: err}
	}
	result := domain.NativeOutput{
		Status:        out.Status,
		Log:           out.Log,
		ErrorCode:     out.ErrorCode,
		ErrorMessage:  out.ErrorMessage,
		ErrorLocation: out.ErrorLocation,
	}
	for _, f := range out.Products {
		result.Frames = append(result.Frames, domain.NativeFrame{Path: f.Path, Tag: f.Tag})
	}
	for _, k := range out.Keywords {
		result.Keywords = append(result.Keywords, domain.Keyword{Name: k.Name, Value: k.Value, Comment: k.Comment})
	}
	return result, nil
}

func (n *nativeLibrary) Close() error {
	return n.lib.Close()
}

func descriptorFromNative(r cplnative.Recipe) (domain.RecipeDescriptor, error) {
	d := domain.RecipeDescriptor{
		Name:        r.Name,
		Version:     r.Version,
		Synopsis:    r.Synopsis,
		Description: r.Description,
		Author:      r.Author,
		Email:       r.Email,
		Copyright:   r.Copyright,
		Outputs:     r.Outputs,
	}
	for _, decl := range r.Params {
		p, err := parameterFromNative(decl)
		if err != nil {
			return domain.RecipeDescriptor{}, fmt.Errorf("recipe %s: %w", r.Name, err)
		}
		d.Parameters = append(d.Parameters, p)
	}
	configurations := make([][]domain.FrameConfig, 0, len(r.Configurations))
	for _, configuration := range r.Configurations {
		fcs := make([]domain.FrameConfig, 0, len(configuration))
		for _, fc := range configuration {
			fcs = append(fcs, domain.FrameConfig{Tag: fc.Tag, Min: fc.Min, Max: fc.Max})
		}
		configurations = append(configurations, fcs)
	}
	d.Inputs = domain.MergeFrameConfigs(configurations...)
	return d, nil
}

func parameterFromNative(decl cplnative.ParamDecl) (domain.Parameter, error) {
	kind := domain.Kind(decl.Kind)
	if err := kind.Validate(); err != nil {
		return domain.Parameter{}, fmt.Errorf("parameter %s: %w", decl.Name, err)
	}
	p := domain.Parameter{
		Name:        decl.Name,
		Alias:       decl.Alias,
		Context:     decl.Context,
		Description: decl.Description,
		Type:        domain.ParamType(decl.Kind),
		Default:     valueFromScalar(decl.Default),
	}
	if decl.Enum {
		p.Type = domain.TypeEnum
		p.EnumKind = kind
		for _, c := range decl.Choices {
			p.Choices = append(p.Choices, valueFromScalar(c))
		}
	}
	if decl.Min != nil {
		v := valueFromScalar(*decl.Min)
		p.Min = &v
	}
	if decl.Max != nil {
		v := valueFromScalar(*decl.Max)
		p.Max = &v
	}
	return p, nil
}

func valueFromScalar(s cplnative.Scalar) domain.Value {
	switch s.Kind {
	case "int":
		return domain.Int(s.Int)
	case "float":
		return domain.Float(s.Float)
	case "bool":
		return domain.Bool(s.Bool)
	default:
		return domain.String(s.Text)
	}
}

func scalarFromValue(v domain.Value) cplnative.Scalar {
	s := cplnative.Scalar{Kind: string(v.Kind())}
	switch v.Kind() {
	case domain.KindInt:
		s.Int, _ = v.AsInt()
	case domain.KindFloat:
		s.Float, _ = v.AsFloat()
	case domain.KindBool:
		s.Bool, _ = v.AsBool()
	default:
		s.Text, _ = v.AsString()
	}
	return s
}
