package domain

import (
	"fmt"
	"strings"
)

type ParamType string

const (
	TypeInt    ParamType = "int"
	TypeFloat  ParamType = "float"
	TypeBool   ParamType = "bool"
	TypeString ParamType = "string"
	TypeEnum   ParamType = "enum"
)

func (t ParamType) Validate() error {
	switch t {
	case TypeInt, TypeFloat, TypeBool, TypeString, TypeEnum:
		return nil
	default:
		return fmt.Errorf("unknown parameter type %q", string(t))
	}
}

// Parameter is one named recipe setting. Name is the full CPL name
// (context.recipe.name); Alias is the short name esorex accepts on its
// command line. Min/Max bound numeric values and Choices list enum members.
type Parameter struct {
	Name        string
	Alias       string
	Context     string
	Description string
	Type        ParamType
	EnumKind    Kind
	Default     Value
	Min         *Value
	Max         *Value
	Choices     []Value

	current Value
}

// Kind is the scalar kind values of this parameter carry.
func (p Parameter) Kind() Kind {
	switch p.Type {
	case TypeInt:
		return KindInt
	case TypeFloat:
		return KindFloat
	case TypeBool:
		return KindBool
	case TypeString:
		return KindString
	case TypeEnum:
		if p.EnumKind == "" {
			return KindString
		}
		return p.EnumKind
	default:
		return ""
	}
}

func (p Parameter) Matches(name string) bool {
	return name != "" && (p.Name == name || p.Alias == name)
}

func (p Parameter) IsSet() bool {
	return !p.current.IsZero()
}

// Value is the current value, or the default when none was set.
func (p Parameter) Value() Value {
	if p.IsSet() {
		return p.current
	}
	return p.Default
}

// Set stores v without checking it; Validate runs before invocation.
func (p *Parameter) Set(v Value) {
	p.current = v
}

// SetString parses raw as the declared kind. Text that does not parse is kept
// verbatim so that validation reports it against this parameter.
func (p *Parameter) SetString(raw string) {
	v, err := ParseValue(p.Kind(), raw)
	if err != nil {
		v = String(raw)
	}
	p.current = v
}

func (p *Parameter) Reset() {
	p.current = Value{}
}

// Resolved returns the current value converted to the declared kind and
// checked against range and choices.
func (p Parameter) Resolved() (Value, error) {
	v, err := p.Value().Coerce(p.Kind())
	if err != nil {
		return Value{}, p.invalid(err.Error())
	}
	if err := v.CheckNative(); err != nil {
		return Value{}, p.invalid(err.Error())
	}
	if p.Min != nil {
		if lo, err := p.Min.Coerce(v.Kind()); err == nil && compare(v, lo) < 0 {
			return Value{}, p.invalid(fmt.Sprintf("value %s below minimum %s", v, lo))
		}
	}
	if p.Max != nil {
		if hi, err := p.Max.Coerce(v.Kind()); err == nil && compare(v, hi) > 0 {
			return Value{}, p.invalid(fmt.Sprintf("value %s above maximum %s", v, hi))
		}
	}
	if p.Type == TypeEnum && !p.allows(v) {
		return Value{}, p.invalid(fmt.Sprintf("value %q not in %s", v.String(), p.choiceList()))
	}
	return v, nil
}

func (p Parameter) Validate() error {
	_, err := p.Resolved()
	return err
}

// ValidateDeclaration checks what a plugin declared, before any caller input.
func (p Parameter) ValidateDeclaration() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("parameter name is required")
	}
	if err := p.Type.Validate(); err != nil {
		return fmt.Errorf("parameter %s: %w", p.Name, err)
	}
	if p.Type == TypeEnum {
		if len(p.Choices) == 0 {
			return fmt.Errorf("parameter %s: enum without choices", p.Name)
		}
		for _, c := range p.Choices {
			if c.Kind() != p.Kind() {
				return fmt.Errorf("parameter %s: choice %s is not %s", p.Name, c, p.Kind())
			}
		}
	}
	if p.Default.IsZero() {
		return fmt.Errorf("parameter %s: default is required", p.Name)
	}
	if p.Min != nil && p.Max != nil {
		lo, errLo := p.Min.Coerce(p.Kind())
		hi, errHi := p.Max.Coerce(p.Kind())
		if errLo != nil || errHi != nil {
			return fmt.Errorf("parameter %s: range does not fit %s", p.Name, p.Kind())
		}
		if compare(lo, hi) > 0 {
			return fmt.Errorf("parameter %s: minimum %s above maximum %s", p.Name, lo, hi)
		}
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("default rejected: %w", err)
	}
	return nil
}

func (p Parameter) allows(v Value) bool {
	for _, c := range p.Choices {
		if c.Equal(v) {
			return true
		}
	}
	return false
}

func (p Parameter) choiceList() string {
	names := make([]string, 0, len(p.Choices))
	for _, c := range p.Choices {
		names = append(names, c.String())
	}
	return "[" + strings.Join(names, " ") + "]"
}

func (p Parameter) invalid(reason string) *ValidationError {
	return &ValidationError{Parameter: p.Name, Reason: reason}
}

// ParameterSet is the ordered parameter list of one recipe handle.
type ParameterSet struct {
	params []Parameter
}

func NewParameterSet(params []Parameter) ParameterSet {
	out := make([]Parameter, len(params))
	copy(out, params)
	return ParameterSet{params: out}
}

func (s ParameterSet) Len() int { return len(s.params) }

func (s ParameterSet) All() []Parameter {
	out := make([]Parameter, len(s.params))
	copy(out, s.params)
	return out
}

func (s ParameterSet) Clone() ParameterSet {
	return NewParameterSet(s.params)
}

func (s ParameterSet) Lookup(name string) (Parameter, bool) {
	if idx := s.index(name); idx >= 0 {
		return s.params[idx], true
	}
	return Parameter{}, false
}

func (s *ParameterSet) Set(name string, v Value) error {
	idx := s.index(name)
	if idx < 0 {
		return unknownParameter(name)
	}
	s.params[idx].Set(v)
	return nil
}

func (s *ParameterSet) SetString(name, raw string) error {
	idx := s.index(name)
	if idx < 0 {
		return unknownParameter(name)
	}
	s.params[idx].SetString(raw)
	return nil
}

func (s *ParameterSet) Reset(name string) error {
	idx := s.index(name)
	if idx < 0 {
		return unknownParameter(name)
	}
	s.params[idx].Reset()
	return nil
}

// Apply assigns settings in order; the first unknown name stops it.
func (s *ParameterSet) Apply(settings []Setting) error {
	for _, setting := range settings {
		if err := s.SetString(setting.Name, setting.Value); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks every parameter and names the recipe in the error.
func (s ParameterSet) Validate(recipe string) error {
	for _, p := range s.params {
		if err := p.Validate(); err != nil {
			if verr, ok := err.(*ValidationError); ok {
				verr.Recipe = recipe
			}
			return err
		}
	}
	return nil
}

func (s ParameterSet) index(name string) int {
	for i, p := range s.params {
		if p.Name == name {
			return i
		}
	}
	for i, p := range s.params {
		if p.Alias == name {
			return i
		}
	}
	return -1
}

func unknownParameter(name string) *ValidationError {
	return &ValidationError{Parameter: name, Reason: "unknown parameter"}
}
