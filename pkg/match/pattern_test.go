package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePattern(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"data/2024/**", "data/2024/**"},
		{`data\2024\**`, "data/2024/**"},
		{`data/file\*.txt`, `data/file\*.txt`},
		{`data\\backup`, `data\\backup`},
		{`trailing\`, "trailing/"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePattern(tt.in))
		})
	}
}

func TestStaticPrefix(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"data/2024/**/*.parquet", "data/2024/"},
		{"*.json", ""},
		{"logs/app-{a,b}/*.log", "logs/"},
		{"exact/path/file.txt", "exact/path/file.txt"},
		{"data/2024-*/x", "data/"},
		{"prefix/", "prefix/"},
		{`data/\[raw\]/*.csv`, "data/[raw]/"},
		{`data/file\*.txt`, "data/file*.txt"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, StaticPrefix(tt.in))
		})
	}
}

func TestIsHidden(t *testing.T) {
	assert.False(t, IsHidden("path/to/file.txt"))
	assert.True(t, IsHidden(".hidden/file.txt"))
	assert.True(t, IsHidden("path/.hidden/file.txt"))
	assert.True(t, IsHidden("path/to/.gitignore"))
	assert.False(t, IsHidden("path/to/file.txt."))
	assert.False(t, IsHidden(""))
}
