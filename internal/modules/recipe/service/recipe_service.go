package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gocpl/internal/modules/recipe/domain"
	"gocpl/internal/modules/recipe/dto"
)

// RecipeService is the esorex-like surface over the registry and bridge.
type RecipeService struct {
	registry    *Registry
	bridge      *Bridge
	searchPaths []string
}

func NewRecipeService(registry *Registry, bridge *Bridge, searchPaths []string) *RecipeService {
	return &RecipeService{registry: registry, bridge: bridge, searchPaths: append([]string(nil), searchPaths...)}
}

func (s *RecipeService) Discover(ctx context.Context) (dto.DiscoverOutput, error) {
	catalog, err := s.registry.Discover(ctx, s.searchPaths)
	if err != nil {
		return dto.DiscoverOutput{}, err
	}
	out := dto.DiscoverOutput{}
	for _, name := range catalog.Names() {
		out.Recipes = append(out.Recipes, recipeInfo(catalog.Recipes[name]))
	}
	for _, p := range catalog.Plugins {
		out.Plugins = append(out.Plugins, pluginInfo(p))
	}
	for _, w := range catalog.Warnings {
		out.Warnings = append(out.Warnings, w.String())
	}
	return out, nil
}

func (s *RecipeService) ListRecipes(ctx context.Context) ([]dto.RecipeInfo, error) {
	if err := s.ensureDiscovered(ctx); err != nil {
		return nil, err
	}
	recipes := s.registry.Recipes()
	out := make([]dto.RecipeInfo, 0, len(recipes))
	for _, d := range recipes {
		out = append(out, recipeInfo(d))
	}
	return out, nil
}

func (s *RecipeService) Describe(ctx context.Context, name string) (dto.RecipeDetail, error) {
	if err := s.ensureDiscovered(ctx); err != nil {
		return dto.RecipeDetail{}, err
	}
	d, err := s.registry.Lookup(name)
	if err != nil {
		return dto.RecipeDetail{}, err
	}
	detail := dto.RecipeDetail{
		RecipeInfo:  recipeInfo(d),
		Description: d.Description,
		Author:      d.Author,
		Email:       d.Email,
		Copyright:   d.Copyright,
		Outputs:     append([]string(nil), d.Outputs...),
	}
	for _, p := range d.Parameters {
		detail.Parameters = append(detail.Parameters, parameterInfo(p))
	}
	for _, in := range d.Inputs {
		detail.Inputs = append(detail.Inputs, dto.FrameConfigInfo{Tag: in.Tag, Min: in.Min, Max: in.Max, Description: in.Describe()})
	}
	return detail, nil
}

func (s *RecipeService) ListPlugins(ctx context.Context) ([]dto.PluginInfo, error) {
	if err := s.ensureDiscovered(ctx); err != nil {
		return nil, err
	}
	plugins := s.registry.Plugins()
	out := make([]dto.PluginInfo, 0, len(plugins))
	for _, p := range plugins {
		out = append(out, pluginInfo(p))
	}
	return out, nil
}

// Run opens the recipe, applies RC files then command line parameters, and
// invokes it on the frames of the SOF files followed by the explicit frames.
// A recipe that ran and failed returns its output together with the error.
func (s *RecipeService) Run(ctx context.Context, input dto.RunInput) (dto.RunOutput, error) {
	if err := s.ensureDiscovered(ctx); err != nil {
		return dto.RunOutput{}, err
	}
	h, err := s.registry.Open(ctx, input.Recipe)
	if err != nil {
		return dto.RunOutput{}, err
	}
	defer h.Close()

	for _, path := range input.RCFiles {
		settings, err := readRC(path)
		if err != nil {
			return dto.RunOutput{}, err
		}
		if err := h.Apply(settings); err != nil {
			return dto.RunOutput{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	for _, raw := range input.Params {
		setting, err := domain.ParseSetting(raw)
		if err != nil {
			return dto.RunOutput{}, err
		}
		if err := h.SetString(setting.Name, setting.Value); err != nil {
			return dto.RunOutput{}, err
		}
	}

	frames := domain.FrameSet{}
	for _, path := range input.SOFFiles {
		set, err := readSOF(path)
		if err != nil {
			return dto.RunOutput{}, err
		}
		frames.Append(set.Frames()...)
	}
	for _, in := range input.Frames {
		group, err := domain.ParseFrameGroup(in.Group)
		if err != nil {
			return dto.RunOutput{}, err
		}
		frame, err := domain.NewFrame(in.Path, in.Tag, group)
		if err != nil {
			return dto.RunOutput{}, err
		}
		frames.Append(frame)
	}

	opts := InvokeOptions{
		OutputDir: input.OutputDir,
		TempDir:   input.TempDir,
		Env:       input.Env,
		LogLevel:  input.LogLevel,
	}
	if input.TimeoutMS > 0 {
		opts.Timeout = time.Duration(input.TimeoutMS) * time.Millisecond
	}
	result, err := s.bridge.Invoke(ctx, h, frames, opts)
	if result == nil {
		return dto.RunOutput{}, err
	}
	return runOutput(result), err
}

func (s *RecipeService) ensureDiscovered(ctx context.Context) error {
	if s.registry.Scanned() {
		return nil
	}
	_, err := s.registry.Discover(ctx, s.searchPaths)
	return err
}

func readSOF(path string) (domain.FrameSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.FrameSet{}, fmt.Errorf("open sof: %w", err)
	}
	defer f.Close()
	set, err := domain.ParseSOF(f, filepath.Dir(path))
	if err != nil {
		return domain.FrameSet{}, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

func readRC(path string) ([]domain.Setting, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rc: %w", err)
	}
	defer f.Close()
	settings, err := domain.ParseRC(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return settings, nil
}

func recipeInfo(d domain.RecipeDescriptor) dto.RecipeInfo {
	return dto.RecipeInfo{Name: d.Name, Version: d.Version, Plugin: d.Plugin, Synopsis: d.Synopsis}
}

func pluginInfo(p domain.PluginStatus) dto.PluginInfo {
	return dto.PluginInfo{Path: p.Path, Loaded: p.Loaded(), Recipes: append([]string(nil), p.Recipes...), Error: p.Error}
}

func parameterInfo(p domain.Parameter) dto.ParameterInfo {
	info := dto.ParameterInfo{
		Name:        p.Name,
		Alias:       p.Alias,
		Type:        string(p.Type),
		Description: p.Description,
		Default:     p.Default.String(),
		Current:     p.Value().String(),
	}
	if p.Min != nil {
		info.Min = p.Min.String()
	}
	if p.Max != nil {
		info.Max = p.Max.String()
	}
	for _, c := range p.Choices {
		info.Choices = append(info.Choices, c.String())
	}
	return info
}

func runOutput(r *domain.InvocationResult) dto.RunOutput {
	out := dto.RunOutput{
		RunID:      r.RunID,
		Recipe:     r.Recipe,
		Plugin:     r.Plugin,
		Status:     r.Status,
		Keywords:   r.Keywords,
		Log:        r.Log,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	for _, p := range r.Products {
		out.Products = append(out.Products, dto.ProductInfo{
			Path:    p.Frame.Path(),
			Tag:     p.Frame.Tag(),
			Size:    p.Size,
			Missing: p.Missing,
			Header:  p.Header.Map(),
			Entries: len(p.Header),
		})
	}
	return out
}
