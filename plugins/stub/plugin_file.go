package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"gocpl/internal/modules/recipe/domain"
	recipeout "gocpl/internal/modules/recipe/port/out"
)

// A stub plugin is a YAML document standing in for a shared library. Files
// that do not decode are treated like libraries without the entry point.
type pluginFile struct {
	Recipes []recipeSpec `yaml:"recipes"`
}

type recipeSpec struct {
	Name        string        `yaml:"name"`
	Version     string        `yaml:"version"`
	Synopsis    string        `yaml:"synopsis"`
	Description string        `yaml:"description"`
	Author      string        `yaml:"author"`
	Email       string        `yaml:"email"`
	Parameters  []paramSpec   `yaml:"parameters"`
	Inputs      []inputSpec   `yaml:"inputs"`
	Outputs     []string      `yaml:"outputs"`
	Behavior    string        `yaml:"behavior"`
	Status      int           `yaml:"status"`
	ErrorCode   int           `yaml:"error_code"`
	Message     string        `yaml:"message"`
	Sleep       time.Duration `yaml:"sleep"`
}

type paramSpec struct {
	Name        string `yaml:"name"`
	Alias       string `yaml:"alias"`
	Type        string `yaml:"type"`
	Kind        string `yaml:"kind"`
	Description string `yaml:"description"`
	Default     any    `yaml:"default"`
	Min         any    `yaml:"min"`
	Max         any    `yaml:"max"`
	Choices     []any  `yaml:"choices"`
}

type inputSpec struct {
	Tag string `yaml:"tag"`
	Min int    `yaml:"min"`
	Max int    `yaml:"max"`
}

type fileLoader struct{}

func (fileLoader) Isolated() bool { return false }

func (fileLoader) Open(_ context.Context, path string) (recipeout.Library, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	var file pluginFile
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("%s: not a recipe plugin: %w", path, err)
	}
	return &fileLibrary{path: path, file: file}, nil
}

type fileLibrary struct {
	path string
	file pluginFile
}

func (l *fileLibrary) Path() string { return l.path }
func (l *fileLibrary) Close() error { return nil }

func (l *fileLibrary) Recipes(context.Context) ([]domain.RecipeDescriptor, error) {
	out := make([]domain.RecipeDescriptor, 0, len(l.file.Recipes))
	for _, spec := range l.file.Recipes {
		d, err := spec.descriptor()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (l *fileLibrary) Invoke(ctx context.Context, req domain.NativeRequest) (domain.NativeOutput, error) {
	for _, spec := range l.file.Recipes {
		if spec.Name == req.Recipe {
			return run(ctx, spec, req)
		}
	}
	return domain.NativeOutput{}, fmt.Errorf("plugin %s has no recipe %s", l.path, req.Recipe)
}

func (s recipeSpec) descriptor() (domain.RecipeDescriptor, error) {
	d := domain.RecipeDescriptor{
		Name:        s.Name,
		Version:     s.Version,
		Synopsis:    s.Synopsis,
		Description: s.Description,
		Author:      s.Author,
		Email:       s.Email,
		Outputs:     s.Outputs,
	}
	for _, ps := range s.Parameters {
		p, err := ps.parameter()
		if err != nil {
			return domain.RecipeDescriptor{}, fmt.Errorf("recipe %s: %w", s.Name, err)
		}
		d.Parameters = append(d.Parameters, p)
	}
	for _, in := range s.Inputs {
		d.Inputs = append(d.Inputs, domain.FrameConfig{Tag: in.Tag, Min: in.Min, Max: in.Max})
	}
	return d, nil
}

func (ps paramSpec) parameter() (domain.Parameter, error) {
	p := domain.Parameter{
		Name:        ps.Name,
		Alias:       ps.Alias,
		Description: ps.Description,
		Type:        domain.ParamType(ps.Type),
	}
	if i := strings.LastIndex(ps.Name, "."); i > 0 {
		p.Context = ps.Name[:i]
	}
	if p.Type == domain.TypeEnum {
		p.EnumKind = domain.Kind(ps.Kind)
	}
	kind := p.Kind()
	var err error
	if p.Default, err = scalar(kind, ps.Default); err != nil {
		return domain.Parameter{}, fmt.Errorf("parameter %s default: %w", ps.Name, err)
	}
	if ps.Min != nil {
		v, err := scalar(kind, ps.Min)
		if err != nil {
			return domain.Parameter{}, fmt.Errorf("parameter %s min: %w", ps.Name, err)
		}
		p.Min = &v
	}
	if ps.Max != nil {
		v, err := scalar(kind, ps.Max)
		if err != nil {
			return domain.Parameter{}, fmt.Errorf("parameter %s max: %w", ps.Name, err)
		}
		p.Max = &v
	}
	for _, raw := range ps.Choices {
		v, err := scalar(kind, raw)
		if err != nil {
			return domain.Parameter{}, fmt.Errorf("parameter %s choice: %w", ps.Name, err)
		}
		p.Choices = append(p.Choices, v)
	}
	return p, nil
}

// scalar converts a decoded YAML value to kind. A missing value stays zero
// so the host reports the declaration as invalid.
func scalar(kind domain.Kind, raw any) (domain.Value, error) {
	if raw == nil {
		return domain.Value{}, nil
	}
	return domain.ParseValue(kind, fmt.Sprint(raw))
}
