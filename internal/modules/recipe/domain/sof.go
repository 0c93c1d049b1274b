package domain

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ParseSOF reads an esorex set-of-frames file: one "path TAG [GROUP]" per
// line, '#' starts a comment. Relative paths are resolved against baseDir.
func ParseSOF(r io.Reader, baseDir string) (FrameSet, error) {
	set := FrameSet{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := stripComment(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields) > 3 {
			return FrameSet{}, fmt.Errorf("sof line %d: want \"path TAG [GROUP]\", got %q", lineNo, line)
		}
		path := fields[0]
		if baseDir != "" && !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		group := FrameGroupNone
		if len(fields) == 3 {
			g, err := ParseFrameGroup(fields[2])
			if err != nil {
				return FrameSet{}, fmt.Errorf("sof line %d: %w", lineNo, err)
			}
			group = g
		}
		frame, err := NewFrame(path, fields[1], group)
		if err != nil {
			return FrameSet{}, fmt.Errorf("sof line %d: %w", lineNo, err)
		}
		set.Append(frame)
	}
	if err := scanner.Err(); err != nil {
		return FrameSet{}, fmt.Errorf("read sof: %w", err)
	}
	return set, nil
}

// Setting is one name=value assignment from an esorex parameter file or the
// command line.
type Setting struct {
	Name  string
	Value string
}

func ParseSetting(raw string) (Setting, error) {
	name, value, ok := strings.Cut(raw, "=")
	name = strings.TrimSpace(name)
	name = strings.TrimLeft(name, "-")
	if !ok || name == "" {
		return Setting{}, fmt.Errorf("setting %q: want name=value", raw)
	}
	return Setting{Name: name, Value: unquote(strings.TrimSpace(value))}, nil
}

// ParseRC reads an esorex recipe configuration file.
func ParseRC(r io.Reader) ([]Setting, error) {
	var out []Setting
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := stripComment(scanner.Text())
		if line == "" {
			continue
		}
		setting, err := ParseSetting(line)
		if err != nil {
			return nil, fmt.Errorf("rc line %d: %w", lineNo, err)
		}
		out = append(out, setting)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read rc: %w", err)
	}
	return out, nil
}

// stripComment drops a trailing # comment. A # inside double quotes is
// part of the value.
func stripComment(line string) string {
	quoted := false
	for i, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == '#' && !quoted:
			return strings.TrimSpace(line[:i])
		}
	}
	return strings.TrimSpace(line)
}

func unquote(value string) string {
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		return value[1 : len(value)-1]
	}
	return value
}
