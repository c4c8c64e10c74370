package registry

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrEmptyTarget is returned by CompileTarget for "".
var ErrEmptyTarget = errors.New("registry: empty target")

// Target is a compiled datagram target: a literal resource id or, with
// PatternPrefix, a regular expression over resource ids.
type Target struct {
	raw string
	re  *regexp.Regexp
}

// CompileTarget parses pattern. The expression is unanchored, matching
// the datagram grammar.
func CompileTarget(pattern string) (Target, error) {
	if pattern == "" {
		return Target{}, ErrEmptyTarget
	}
	expr, ok := strings.CutPrefix(pattern, PatternPrefix)
	if !ok {
		return Target{raw: pattern}, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return Target{}, fmt.Errorf("registry: invalid target %q: %w", pattern, err)
	}
	return Target{raw: pattern, re: re}, nil
}

// Match reports whether the resource id is selected.
func (t Target) Match(id string) bool {
	if t.re != nil {
		return t.re.MatchString(id)
	}
	return t.raw != "" && t.raw == id
}

// Literal reports whether t names exactly one id.
func (t Target) Literal() bool { return t.re == nil }

func (t Target) String() string { return t.raw }
