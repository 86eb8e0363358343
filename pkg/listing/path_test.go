package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirPrefix(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty is root", "", ""},
		{"slash is root", "/", ""},
		{"bare name", "a", "a/"},
		{"trailing slash", "a/", "a/"},
		{"leading and trailing slash", "/a/", "a/"},
		{"repeated trailing slashes", "a///", "a/"},
		{"nested", "a/b", "a/b/"},
		{"inner double slash kept", "a//b", "a//b/"},
		{"case kept", "Photos/2024", "Photos/2024/"},
		{"dots kept", "a/../b", "a/../b/"},
		{"percent kept", "a%20b", "a%20b/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DirPrefix(tt.input))
		})
	}
}

func TestDirPrefix_Idempotent(t *testing.T) {
	for _, in := range []string{"a", "a/", "/a/", "x/y/z"} {
		once := DirPrefix(in)
		assert.Equal(t, once, DirPrefix(once))
	}
}

func TestDirPath(t *testing.T) {
	assert.Equal(t, "", DirPath(""))
	assert.Equal(t, "", DirPath("///"))
	assert.Equal(t, "a/", DirPath("a"))
	assert.Equal(t, "a/", DirPath("a//"))
	assert.Equal(t, "/a/", DirPath("/a"))
}

func TestFilePath(t *testing.T) {
	assert.Equal(t, "a/b.txt", FilePath("a/b.txt"))
	assert.Equal(t, "a/b.txt", FilePath("a/b.txt/"))
	assert.Equal(t, "", FilePath(""))
}

func TestIsDirKey(t *testing.T) {
	assert.True(t, IsDirKey("a/"))
	assert.False(t, IsDirKey("a"))
	assert.False(t, IsDirKey(""))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "file", KindFile.String())
	assert.Equal(t, "dir", KindDirectory.String())
}
