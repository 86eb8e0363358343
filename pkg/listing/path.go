package listing

import "strings"

// Separator is the path segment separator used by blob keys.
const Separator = "/"

// DirPrefix turns a caller-supplied directory path into the key prefix used
// for a listing query.
//
// Leading and trailing separators are stripped and exactly one trailing
// separator is appended. The container root ("" or "/") maps to "".
//
//	"a"    → "a/"
//	"a/"   → "a/"
//	"/a/"  → "a/"
//	"a//"  → "a/"
//	""     → ""
func DirPrefix(path string) string {
	trimmed := strings.TrimRight(path, Separator)
	trimmed = strings.TrimLeft(trimmed, Separator)
	if trimmed == "" {
		return ""
	}
	return trimmed + Separator
}

// DirPath returns path with exactly one trailing separator.
//
// Unlike DirPrefix the leading part of the path is kept as given. An empty
// path stays empty.
func DirPath(path string) string {
	trimmed := strings.TrimRight(path, Separator)
	if trimmed == "" {
		return ""
	}
	return trimmed + Separator
}

// FilePath returns path without any trailing separator.
func FilePath(path string) string {
	return strings.TrimRight(path, Separator)
}

// IsDirKey reports whether a stored key is a directory marker.
func IsDirKey(key string) bool {
	return strings.HasSuffix(key, Separator)
}

// splitFirst splits rel at its first separator.
// ok is false when rel holds a single segment.
func splitFirst(rel string) (first string, ok bool) {
	i := strings.Index(rel, Separator)
	if i < 0 {
		return rel, false
	}
	return rel[:i], true
}
