package server

import (
	"fmt"
	"regexp"
	"strings"
)

// LogFilter selects lines from a log tail.
type LogFilter struct {
	Mode          string // "", "problems", "search" or "regex"
	Pattern       string
	CaseSensitive bool
	regex         *regexp.Regexp
}

// problemMarkers match Minecraft log levels and Java failure output.
var problemMarkers = []string{
	"/warn]",
	"/error]",
	"/fatal]",
	"exception",
	"caused by:",
	"can't keep up",
}

// NewLogFilter validates mode and compiles regex patterns.
func NewLogFilter(mode, pattern string, caseSensitive bool) (*LogFilter, error) {
	f := &LogFilter{Mode: strings.ToLower(strings.TrimSpace(mode)), Pattern: pattern, CaseSensitive: caseSensitive}

	switch f.Mode {
	case "", "none", "problems":
	case "search":
		if pattern == "" {
			return nil, fmt.Errorf("search filter needs a pattern")
		}
	case "regex":
		flags := ""
		if !caseSensitive {
			flags = "(?i)"
		}
		compiled, err := regexp.Compile(flags + pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
		f.regex = compiled
	default:
		return nil, fmt.Errorf("unknown filter %q", mode)
	}
	return f, nil
}

// Match reports whether line passes the filter.
func (f *LogFilter) Match(line string) bool {
	switch f.Mode {
	case "problems":
		lower := strings.ToLower(line)
		for _, marker := range problemMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
		// Stack frames follow the exception line.
		return strings.HasPrefix(strings.TrimSpace(line), "at ")
	case "search":
		if f.CaseSensitive {
			return strings.Contains(line, f.Pattern)
		}
		return strings.Contains(strings.ToLower(line), strings.ToLower(f.Pattern))
	case "regex":
		return f.regex.MatchString(line)
	default:
		return true
	}
}

// Apply returns the matching lines in order.
func (f *LogFilter) Apply(lines []string) []string {
	if f == nil || f.Mode == "" || f.Mode == "none" {
		return lines
	}
	filtered := []string{}
	for _, line := range lines {
		if f.Match(line) {
			filtered = append(filtered, line)
		}
	}
	return filtered
}
