package domain

import (
	"fmt"
	"strings"
)

type FrameGroup string

const (
	// FrameGroupNone leaves classification to the recipe, as esorex does.
	FrameGroupNone    FrameGroup = ""
	FrameGroupRaw     FrameGroup = "raw"
	FrameGroupCalib   FrameGroup = "calib"
	FrameGroupProduct FrameGroup = "product"
)

func (g FrameGroup) Validate() error {
	switch g {
	case FrameGroupNone, FrameGroupRaw, FrameGroupCalib, FrameGroupProduct:
		return nil
	default:
		return fmt.Errorf("unknown frame group %q", string(g))
	}
}

// ParseFrameGroup accepts the spellings used in SOF files (RAW, CALIB, PRODUCT).
func ParseFrameGroup(value string) (FrameGroup, error) {
	g := FrameGroup(strings.ToLower(strings.TrimSpace(value)))
	if err := g.Validate(); err != nil {
		return "", err
	}
	return g, nil
}

// Frame is one data file with its classification tag. Frames are values and
// never change after construction, so frame sets may share them freely.
type Frame struct {
	path  string
	tag   string
	group FrameGroup
}

func NewFrame(path, tag string, group FrameGroup) (Frame, error) {
	if strings.TrimSpace(path) == "" {
		return Frame{}, fmt.Errorf("frame path is required")
	}
	if strings.TrimSpace(tag) == "" {
		return Frame{}, fmt.Errorf("frame tag is required for %s", path)
	}
	if strings.ContainsAny(tag, " \t\n") {
		return Frame{}, fmt.Errorf("frame tag %q must not contain whitespace", tag)
	}
	if err := group.Validate(); err != nil {
		return Frame{}, err
	}
	return Frame{path: path, tag: tag, group: group}, nil
}

func (f Frame) Path() string      { return f.path }
func (f Frame) Tag() string       { return f.tag }
func (f Frame) Group() FrameGroup { return f.group }
func (f Frame) IsZero() bool      { return f.path == "" }
func (f Frame) String() string    { return f.path + " " + f.tag }

func (f Frame) WithPath(p string) Frame {
	f.path = p
	return f
}

// FrameSet keeps frames in insertion order. Recipes see them in that order.
type FrameSet struct {
	frames []Frame
}

func NewFrameSet(frames ...Frame) FrameSet {
	s := FrameSet{}
	s.Append(frames...)
	return s
}

func (s *FrameSet) Append(frames ...Frame) {
	s.frames = append(s.frames, frames...)
}

func (s FrameSet) Len() int { return len(s.frames) }

func (s FrameSet) At(i int) Frame { return s.frames[i] }

// Frames returns a copy; mutating it does not affect the set.
func (s FrameSet) Frames() []Frame {
	out := make([]Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

func (s FrameSet) Clone() FrameSet {
	return FrameSet{frames: s.Frames()}
}

func (s FrameSet) ByTag(tag string) []Frame {
	var out []Frame
	for _, f := range s.frames {
		if f.tag == tag {
			out = append(out, f)
		}
	}
	return out
}

func (s FrameSet) Count(tag string) int {
	return len(s.ByTag(tag))
}

// Tags lists distinct tags in order of first appearance.
func (s FrameSet) Tags() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, f := range s.frames {
		if _, ok := seen[f.tag]; ok {
			continue
		}
		seen[f.tag] = struct{}{}
		out = append(out, f.tag)
	}
	return out
}
