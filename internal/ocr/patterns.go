package ocr

import (
	"regexp"

	apperrors "github.com/adverant/nexus/screenscan-worker/internal/errors"
)

// PatternSet is an ordered, immutable set of regular expressions evaluated
// with OR semantics. Safe for concurrent use.
type PatternSet struct {
	sources  []string
	patterns []*regexp.Regexp
}

// CompilePatterns compiles every pattern; the first invalid one fails the whole set.
// An empty list yields a set that never matches.
func CompilePatterns(patterns []string) (*PatternSet, error) {
	set := &PatternSet{
		sources:  append([]string(nil), patterns...),
		patterns: make([]*regexp.Regexp, 0, len(patterns)),
	}

	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, apperrors.NewPatternCompileError(p, i, err)
		}
		set.patterns = append(set.patterns, re)
	}

	return set, nil
}

// Matches reports whether at least one pattern matches text
func (s *PatternSet) Matches(text string) bool {
	for _, re := range s.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Match returns the indices of every matching pattern in ascending order
func (s *PatternSet) Match(text string) []int {
	var matched []int
	for i, re := range s.patterns {
		if re.MatchString(text) {
			matched = append(matched, i)
		}
	}
	return matched
}

// Len returns the number of patterns
func (s *PatternSet) Len() int {
	return len(s.patterns)
}

// Patterns returns a copy of the source patterns
func (s *PatternSet) Patterns() []string {
	return append([]string(nil), s.sources...)
}
