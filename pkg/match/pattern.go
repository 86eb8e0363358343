package match

import "strings"

// globEscapable are the characters a backslash escapes in a pattern.
const globEscapable = `*?[]{}\`

// NormalizePattern converts unescaped backslashes to '/', keeping escape
// sequences for literal glob metacharacters.
//
//	"data\2024\**"    → "data/2024/**"
//	"data/file\*.txt" → "data/file\*.txt"
func NormalizePattern(pattern string) string {
	if !strings.ContainsRune(pattern, '\\') {
		return pattern
	}

	var b strings.Builder
	b.Grow(len(pattern))
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 < len(pattern) && strings.IndexByte(globEscapable, pattern[i+1]) >= 0 {
			b.WriteByte('\\')
			b.WriteByte(pattern[i+1])
			i++
			continue
		}
		b.WriteByte('/')
	}
	return b.String()
}

// StaticPrefix returns the literal part of pattern before the first
// unescaped metacharacter, cut back to a whole path segment, with escapes
// removed. A pattern without metacharacters is returned unescaped in full.
//
//	"data/2024/**/*.parquet" → "data/2024/"
//	"logs/app-{a,b}/*.log"   → "logs/"
//	"*.json"                 → ""
//	"data/\[raw\]/*.csv"     → "data/[raw]/"
func StaticPrefix(pattern string) string {
	pattern = NormalizePattern(pattern)

	var b strings.Builder
	lastSlash := -1
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '\\' && i+1 < len(pattern):
			i++
			b.WriteByte(pattern[i])
		case c == '*' || c == '?' || c == '[' || c == '{':
			if lastSlash < 0 {
				return ""
			}
			return b.String()[:lastSlash+1]
		default:
			if c == '/' {
				lastSlash = b.Len()
			}
			b.WriteByte(c)
		}
	}
	return b.String()
}

// IsHidden reports whether any '/'-separated segment of path starts with
// a dot.
func IsHidden(path string) bool {
	for _, seg := range strings.Split(path, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
