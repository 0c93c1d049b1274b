package rpc

import (
	"fmt"

	"gocpl/internal/modules/recipe/domain"
)

func FromValue(v domain.Value) Value {
	out := Value{Kind: string(v.Kind())}
	switch v.Kind() {
	case domain.KindInt:
		out.Int, _ = v.AsInt()
	case domain.KindFloat:
		out.Float, _ = v.AsFloat()
	case domain.KindBool:
		out.Bool, _ = v.AsBool()
	case domain.KindString:
		out.Text, _ = v.AsString()
	}
	return out
}

func (v Value) Domain() (domain.Value, error) {
	switch domain.Kind(v.Kind) {
	case domain.KindInt:
		return domain.Int(v.Int), nil
	case domain.KindFloat:
		return domain.Float(v.Float), nil
	case domain.KindBool:
		return domain.Bool(v.Bool), nil
	case domain.KindString:
		return domain.String(v.Text), nil
	case "":
		return domain.Value{}, nil
	default:
		return domain.Value{}, fmt.Errorf("unknown value kind %q", v.Kind)
	}
}

func fromValuePtr(v *domain.Value) *Value {
	if v == nil {
		return nil
	}
	out := FromValue(*v)
	return &out
}

func (v *Value) domainPtr() (*domain.Value, error) {
	if v == nil {
		return nil, nil
	}
	out, err := v.Domain()
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func FromDescriptor(d domain.RecipeDescriptor) Recipe {
	r := Recipe{
		Name:        d.Name,
		Version:     d.Version,
		Synopsis:    d.Synopsis,
		Description: d.Description,
		Author:      d.Author,
		Email:       d.Email,
		Copyright:   d.Copyright,
		Outputs:     d.Outputs,
	}
	for _, p := range d.Parameters {
		decl := ParameterDecl{
			Name:        p.Name,
			Alias:       p.Alias,
			Context:     p.Context,
			Description: p.Description,
			Type:        string(p.Type),
			EnumKind:    string(p.EnumKind),
			Default:     FromValue(p.Default),
			Min:         fromValuePtr(p.Min),
			Max:         fromValuePtr(p.Max),
		}
		for _, c := range p.Choices {
			decl.Choices = append(decl.Choices, FromValue(c))
		}
		r.Parameters = append(r.Parameters, decl)
	}
	for _, in := range d.Inputs {
		r.Inputs = append(r.Inputs, FrameConfig{Tag: in.Tag, Min: in.Min, Max: in.Max})
	}
	return r
}

// Descriptor converts a wire recipe. The plugin path is the host's to set.
func (r Recipe) Descriptor() (domain.RecipeDescriptor, error) {
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
	for _, decl := range r.Parameters {
		p := domain.Parameter{
			Name:        decl.Name,
			Alias:       decl.Alias,
			Context:     decl.Context,
			Description: decl.Description,
			Type:        domain.ParamType(decl.Type),
			EnumKind:    domain.Kind(decl.EnumKind),
		}
		var err error
		if p.Default, err = decl.Default.Domain(); err != nil {
			return domain.RecipeDescriptor{}, fmt.Errorf("recipe %s parameter %s default: %w", r.Name, decl.Name, err)
		}
		if p.Min, err = decl.Min.domainPtr(); err != nil {
			return domain.RecipeDescriptor{}, fmt.Errorf("recipe %s parameter %s min: %w", r.Name, decl.Name, err)
		}
		if p.Max, err = decl.Max.domainPtr(); err != nil {
			return domain.RecipeDescriptor{}, fmt.Errorf("recipe %s parameter %s max: %w", r.Name, decl.Name, err)
		}
		for _, c := range decl.Choices {
			v, err := c.Domain()
			if err != nil {
				return domain.RecipeDescriptor{}, fmt.Errorf("recipe %s parameter %s choice: %w", r.Name, decl.Name, err)
			}
			p.Choices = append(p.Choices, v)
		}
		d.Parameters = append(d.Parameters, p)
	}
	for _, in := range r.Inputs {
		d.Inputs = append(d.Inputs, domain.FrameConfig{Tag: in.Tag, Min: in.Min, Max: in.Max})
	}
	return d, nil
}

func FromNativeRequest(pluginPath string, req domain.NativeRequest) *InvokeRequest {
	out := &InvokeRequest{
		PluginPath: pluginPath,
		Recipe:     req.Recipe,
		OutputDir:  req.OutputDir,
		TempDir:    req.TempDir,
		LogLevel:   req.LogLevel,
		Env:        req.Env,
	}
	for _, p := range req.Parameters {
		out.Parameters = append(out.Parameters, Param{Name: p.Name, Value: FromValue(p.Value)})
	}
	for _, f := range req.Frames {
		out.Frames = append(out.Frames, Frame{Path: f.Path(), Tag: f.Tag(), Group: string(f.Group())})
	}
	return out
}

func (r *InvokeRequest) Native() (domain.NativeRequest, error) {
	out := domain.NativeRequest{
		Recipe:    r.Recipe,
		OutputDir: r.OutputDir,
		TempDir:   r.TempDir,
		LogLevel:  r.LogLevel,
		Env:       r.Env,
	}
	for _, p := range r.Parameters {
		v, err := p.Value.Domain()
		if err != nil {
			return domain.NativeRequest{}, fmt.Errorf("parameter %s: %w", p.Name, err)
		}
		out.Parameters = append(out.Parameters, domain.NativeParam{Name: p.Name, Value: v})
	}
	for _, f := range r.Frames {
		frame, err := domain.NewFrame(f.Path, f.Tag, domain.FrameGroup(f.Group))
		if err != nil {
			return domain.NativeRequest{}, err
		}
		out.Frames = append(out.Frames, frame)
	}
	return out, nil
}

func FromNativeOutput(o domain.NativeOutput) *InvokeResponse {
	out := &InvokeResponse{
		Status:        int32(o.Status),
		Log:           o.Log,
		ErrorCode:     int32(o.ErrorCode),
		ErrorMessage:  o.ErrorMessage,
		ErrorLocation: o.ErrorLocation,
	}
	for _, f := range o.Frames {
		out.Frames = append(out.Frames, Frame{Path: f.Path, Tag: f.Tag})
	}
	for _, k := range o.Keywords {
		out.Keywords = append(out.Keywords, Keyword{Name: k.Name, Value: k.Value, Comment: k.Comment})
	}
	return out
}

func (r *InvokeResponse) Native() domain.NativeOutput {
	out := domain.NativeOutput{
		Status:        int(r.Status),
		Log:           r.Log,
		ErrorCode:     int(r.ErrorCode),
		ErrorMessage:  r.ErrorMessage,
		ErrorLocation: r.ErrorLocation,
	}
	for _, f := range r.Frames {
		out.Frames = append(out.Frames, domain.NativeFrame{Path: f.Path, Tag: f.Tag})
	}
	for _, k := range r.Keywords {
		out.Keywords = append(out.Keywords, domain.Keyword{Name: k.Name, Value: k.Value, Comment: k.Comment})
	}
	return out
}
