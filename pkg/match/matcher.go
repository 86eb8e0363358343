// Package match selects listing nodes by doublestar glob patterns, size
// and modification time.
//
// Patterns are matched against full node paths without the trailing
// directory separator, e.g. "logs/2024/**/*.json".
package match

import (
	"errors"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/3leaps/blobfs/pkg/listing"
)

// Config configures a Matcher.
type Config struct {
	// Includes are glob patterns files must match (at least one).
	// Empty includes every file. Directories are not subject to includes.
	Includes []string

	// Excludes are glob patterns no node may match.
	Excludes []string

	// IncludeHidden admits paths with a segment starting with '.'.
	IncludeHidden bool
}

var (
	// ErrInvalidPattern is returned when a pattern cannot be compiled.
	ErrInvalidPattern = errors.New("invalid glob pattern")
)

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// Matcher evaluates include and exclude patterns. It is safe for
// concurrent use after creation.
type Matcher struct {
	includes      []string
	excludes      []string
	includeHidden bool
}

// New compiles cfg. Backslash separators are normalized to '/'.
func New(cfg Config) (*Matcher, error) {
	includes, err := compile(cfg.Includes)
	if err != nil {
		return nil, err
	}
	excludes, err := compile(cfg.Excludes)
	if err != nil {
		return nil, err
	}
	return &Matcher{
		includes:      includes,
		excludes:      excludes,
		includeHidden: cfg.IncludeHidden,
	}, nil
}

func compile(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		p := NormalizePattern(r)
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: r, Err: ErrInvalidPattern}
		}
		out = append(out, p)
	}
	return out, nil
}

// Match reports whether n passes the matcher.
func (m *Matcher) Match(n listing.Node) bool {
	return m.MatchPath(n.Path, n.IsDir())
}

// MatchPath reports whether the file or directory at path passes.
func (m *Matcher) MatchPath(path string, dir bool) bool {
	path = strings.TrimSuffix(path, listing.Separator)

	if !m.includeHidden && IsHidden(path) {
		return false
	}
	for _, exc := range m.excludes {
		if matchPattern(exc, path) {
			return false
		}
	}
	if dir || len(m.includes) == 0 {
		return true
	}
	for _, inc := range m.includes {
		if matchPattern(inc, path) {
			return true
		}
	}
	return false
}

// ListPrefix returns the deepest directory shared by the static prefixes
// of all include patterns, with a trailing '/'. It is empty when there are
// no includes or any include starts with a metacharacter.
func (m *Matcher) ListPrefix() string {
	if len(m.includes) == 0 {
		return ""
	}
	common := dirOf(StaticPrefix(m.includes[0]))
	for _, inc := range m.includes[1:] {
		p := dirOf(StaticPrefix(inc))
		for !strings.HasPrefix(p, common) {
			common = dirOf(strings.TrimSuffix(common, "/"))
		}
	}
	return common
}

// IncludePatterns returns the normalized include patterns.
func (m *Matcher) IncludePatterns() []string {
	return append([]string(nil), m.includes...)
}

// ExcludePatterns returns the normalized exclude patterns.
func (m *Matcher) ExcludePatterns() []string {
	return append([]string(nil), m.excludes...)
}

// dirOf cuts p after its last '/'.
func dirOf(p string) string {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return ""
	}
	return p[:i+1]
}

func matchPattern(pattern, path string) bool {
	matched, err := doublestar.Match(pattern, path)
	if err != nil {
		return false
	}
	return matched
}
