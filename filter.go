package main

import (
	"fmt"
	"regexp"
	"strings"
)

// ExclusionFilter matches paths and object names against the configured
// exclusion patterns. The zero value excludes nothing.
type ExclusionFilter struct {
	pattern *regexp.Regexp
}

func NewExclusionFilter(patterns []string) (ExclusionFilter, error) {
	if len(patterns) == 0 {
		return ExclusionFilter{}, nil
	}
	// a single alternation is fine for the handful of patterns a config carries
	re, err := regexp.Compile(strings.Join(patterns, "|"))
	if err != nil {
		return ExclusionFilter{}, fmt.Errorf("invalid exclude pattern: %w", err)
	}
	return ExclusionFilter{pattern: re}, nil
}

func (f ExclusionFilter) Excludes(name string) bool {
	return f.pattern != nil && f.pattern.MatchString(name)
}
