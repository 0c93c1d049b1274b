package dto

import "time"

type RecipeInfo struct {
	Name     string
	Version  string
	Plugin   string
	Synopsis string
}

type ParameterInfo struct {
	Name        string
	Alias       string
	Type        string
	Description string
	Default     string
	Current     string
	Min         string
	Max         string
	Choices     []string
}

type FrameConfigInfo struct {
	Tag         string
	Min         int
	Max         int
	Description string
}

type RecipeDetail struct {
	RecipeInfo
	Description string
	Author      string
	Email       string
	Copyright   string
	Parameters  []ParameterInfo
	Inputs      []FrameConfigInfo
	Outputs     []string
}

type PluginInfo struct {
	Path    string
	Loaded  bool
	Recipes []string
	Error   string
}

type DiscoverOutput struct {
	Recipes  []RecipeInfo
	Plugins  []PluginInfo
	Warnings []string
}

type FrameInput struct {
	Path  string
	Tag   string
	Group string
}

type RunInput struct {
	Recipe    string
	Params    []string
	RCFiles   []string
	SOFFiles  []string
	Frames    []FrameInput
	OutputDir string
	TempDir   string
	TimeoutMS int
	LogLevel  string
	Env       map[string]string
}

type ProductInfo struct {
	Path    string
	Tag     string
	Size    int64
	Missing bool
	Header  map[string]string
	Entries int
}

type RunOutput struct {
	RunID      string
	Recipe     string
	Plugin     string
	Status     int
	Products   []ProductInfo
	Keywords   map[string]string
	Log        string
	StartedAt  time.Time
	FinishedAt time.Time
}
