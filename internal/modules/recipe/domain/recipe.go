package domain

import (
	"fmt"
	"sort"
	"strings"
)

// FrameConfig declares how many frames of one tag a recipe accepts. Zero Min
// means optional and zero Max means unbounded.
type FrameConfig struct {
	Tag string
	Min int
	Max int
}

// MergeFrameConfigs folds the per-configuration input lists a recipe declares
// (one per trigger tag) into one entry per tag. A tag is only required when
// every configuration requires it; the widest maximum wins.
func MergeFrameConfigs(configurations ...[]FrameConfig) []FrameConfig {
	var order []string
	merged := map[string]*FrameConfig{}
	seenIn := map[string]int{}
	for _, configuration := range configurations {
		inThis := map[string]struct{}{}
		for _, fc := range configuration {
			if _, dup := inThis[fc.Tag]; dup {
				continue
			}
			inThis[fc.Tag] = struct{}{}
			seenIn[fc.Tag]++
			current, ok := merged[fc.Tag]
			if !ok {
				copied := fc
				merged[fc.Tag] = &copied
				order = append(order, fc.Tag)
				continue
			}
			if fc.Min < current.Min {
				current.Min = fc.Min
			}
			if current.Max != 0 && (fc.Max == 0 || fc.Max > current.Max) {
				current.Max = fc.Max
			}
		}
	}
	out := make([]FrameConfig, 0, len(order))
	for _, tag := range order {
		fc := *merged[tag]
		if seenIn[tag] < len(configurations) {
			fc.Min = 0
		}
		out = append(out, fc)
	}
	return out
}

func (c FrameConfig) Describe() string {
	switch {
	case c.Max == 1 && c.Min == 1:
		return "one frame"
	case c.Max == 1:
		return "one frame (optional)"
	case c.Min > 0 && c.Max > c.Min:
		return fmt.Sprintf("%d-%d frames", c.Min, c.Max)
	case c.Min > 0 && c.Max == c.Min:
		return fmt.Sprintf("%d frames", c.Min)
	case c.Min == 1:
		return "at least one frame"
	case c.Min > 0:
		return fmt.Sprintf("at least %d frames", c.Min)
	case c.Max > 1:
		return fmt.Sprintf("up to %d frames (optional)", c.Max)
	default:
		return "any number of frames (optional)"
	}
}

type RecipeDescriptor struct {
	Name        string
	Version     string
	Plugin      string
	Synopsis    string
	Description string
	Author      string
	Email       string
	Copyright   string
	Parameters  []Parameter
	Inputs      []FrameConfig
	Outputs     []string
}

func (d RecipeDescriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("recipe name is required")
	}
	names := map[string]struct{}{}
	aliases := map[string]struct{}{}
	for _, p := range d.Parameters {
		if err := p.ValidateDeclaration(); err != nil {
			return fmt.Errorf("recipe %s: %w", d.Name, err)
		}
		if _, ok := names[p.Name]; ok {
			return fmt.Errorf("recipe %s: duplicate parameter %s", d.Name, p.Name)
		}
		names[p.Name] = struct{}{}
		if p.Alias == "" {
			continue
		}
		if _, ok := aliases[p.Alias]; ok {
			return fmt.Errorf("recipe %s: duplicate parameter alias %s", d.Name, p.Alias)
		}
		aliases[p.Alias] = struct{}{}
	}
	for _, in := range d.Inputs {
		if strings.TrimSpace(in.Tag) == "" {
			return fmt.Errorf("recipe %s: input tag is required", d.Name)
		}
		if in.Min < 0 || in.Max < 0 || (in.Max > 0 && in.Min > in.Max) {
			return fmt.Errorf("recipe %s: invalid frame count range for %s", d.Name, in.Tag)
		}
	}
	return nil
}

// ParameterSet returns the declared parameters at their defaults.
func (d RecipeDescriptor) ParameterSet() ParameterSet {
	params := make([]Parameter, len(d.Parameters))
	for i, p := range d.Parameters {
		p.Reset()
		params[i] = p
	}
	return ParameterSet{params: params}
}

func (d RecipeDescriptor) Input(tag string) (FrameConfig, bool) {
	for _, in := range d.Inputs {
		if in.Tag == tag {
			return in, true
		}
	}
	return FrameConfig{}, false
}

// ValidateFrames checks tags and counts against the declared inputs. Recipes
// that declare no inputs accept any frame.
func (d RecipeDescriptor) ValidateFrames(frames FrameSet) error {
	if len(d.Inputs) == 0 {
		return nil
	}
	for _, f := range frames.frames {
		if _, ok := d.Input(f.tag); !ok {
			return &ValidationError{Recipe: d.Name, Frame: f.path, Reason: fmt.Sprintf("tag %s is not an input of this recipe", f.tag)}
		}
	}
	for _, in := range d.Inputs {
		n := frames.Count(in.Tag)
		if in.Min > 0 && n < in.Min {
			return &ValidationError{Recipe: d.Name, Frame: in.Tag, Reason: fmt.Sprintf("needs %s, got %d", in.Describe(), n)}
		}
		if in.Max > 0 && n > in.Max {
			return &ValidationError{Recipe: d.Name, Frame: in.Tag, Reason: fmt.Sprintf("accepts %s, got %d", in.Describe(), n)}
		}
	}
	return nil
}

// PluginStatus is the outcome of examining one plugin file during a scan.
type PluginStatus struct {
	Path    string
	Recipes []string
	Error   string
}

func (s PluginStatus) Loaded() bool { return s.Error == "" }

// Catalog is the result of one discovery scan.
type Catalog struct {
	Recipes  map[string]RecipeDescriptor
	Plugins  []PluginStatus
	Warnings []DiscoveryWarning
}

func (c Catalog) Names() []string {
	names := make([]string, 0, len(c.Recipes))
	for name := range c.Recipes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
