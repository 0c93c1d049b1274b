// Package cplnative calls CPL recipe plugins in the current process. The real
// implementation needs cgo, the CPL libraries and the cpl build tag; other
// builds get stubs that return ErrUnavailable.
package cplnative

import "errors"

var ErrUnavailable = errors.New("native CPL support not compiled in; build with -tags cpl or use process isolation")

// Scalar is a parameter value. Kind is one of int, float, bool, string.
type Scalar struct {
	Kind  string
	Int   int64
	Float float64
	Bool  bool
	Text  string
}

type ParamDecl struct {
	Name        string
	Alias       string
	Context     string
	Description string
	Kind        string
	Enum        bool
	Default     Scalar
	Min         *Scalar
	Max         *Scalar
	Choices     []Scalar
}

type FrameCount struct {
	Tag string
	Min int
	Max int
}

// Recipe is what a plugin declares. Configurations holds one input list per
// trigger tag of a recipeconfig; plain v1 recipes have none.
type Recipe struct {
	Name           string
	Version        string
	Synopsis       string
	Description    string
	Author         string
	Email          string
	Copyright      string
	Params         []ParamDecl
	Configurations [][]FrameCount
	Outputs        []string
}

type Param struct {
	Name  string
	Value Scalar
}

type Frame struct {
	Path  string
	Tag   string
	Group string
}

type Request struct {
	Recipe    string
	Params    []Param
	Frames    []Frame
	OutputDir string
	TempDir   string
	LogLevel  string
	Env       map[string]string
}

type Keyword struct {
	Name    string
	Value   string
	Comment string
}

type Output struct {
	Status        int
	Products      []Frame
	Keywords      []Keyword
	Log           string
	ErrorCode     int
	ErrorMessage  string
	ErrorLocation string
}
