package dto

import "time"

type OutputInfo struct {
	Path string
	Tag  string
}

type RecordInput struct {
	ID         string
	Recipe     string
	Plugin     string
	Outcome    string
	Status     int
	Error      string
	Outputs    []OutputInfo
	StartedAt  time.Time
	FinishedAt time.Time
}

type ListInput struct {
	Recipe string
	Limit  int
}

type RunOutput struct {
	ID         string
	Recipe     string
	Plugin     string
	Outcome    string
	Status     int
	Error      string
	Outputs    []OutputInfo
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
}
