//go:build !(cgo && cpl)

package cplnative

type Library struct{}

func Open(string) (*Library, error) { return nil, ErrUnavailable }

func (l *Library) Path() string                   { return "" }
func (l *Library) Recipes() ([]Recipe, error)     { return nil, ErrUnavailable }
func (l *Library) Invoke(Request) (Output, error) { return Output{}, ErrUnavailable }
func (l *Library) Close() error                   { return nil }
