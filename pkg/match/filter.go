package match

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/3leaps/blobfs/pkg/listing"
)

// Filter errors.
var (
	ErrInvalidSize = errors.New("invalid size value")
	ErrInvalidDate = errors.New("invalid date value")
)

// FilterConfig holds attribute constraints from CLI flags or query
// parameters. Empty fields impose no constraint.
type FilterConfig struct {
	// MinSize and MaxSize are inclusive; "1KB", "100MiB" or raw bytes.
	MinSize string
	MaxSize string

	// After is inclusive, Before exclusive; "2024-01-15" or RFC 3339.
	After  string
	Before string
}

// Filter selects file nodes by size and modification time. Directories
// always pass, and so do files whose listing carries no value for a
// constrained attribute.
type Filter struct {
	minSize int64 // -1 means no minimum
	maxSize int64 // -1 means no maximum
	after   time.Time
	before  time.Time
}

// NewFilter parses cfg. It returns nil when cfg has no constraints.
func NewFilter(cfg FilterConfig) (*Filter, error) {
	if cfg == (FilterConfig{}) {
		return nil, nil
	}

	f := &Filter{minSize: -1, maxSize: -1}
	var err error
	if cfg.MinSize != "" {
		if f.minSize, err = ParseSize(cfg.MinSize); err != nil {
			return nil, fmt.Errorf("min size: %w", err)
		}
	}
	if cfg.MaxSize != "" {
		if f.maxSize, err = ParseSize(cfg.MaxSize); err != nil {
			return nil, fmt.Errorf("max size: %w", err)
		}
	}
	if f.minSize >= 0 && f.maxSize >= 0 && f.minSize > f.maxSize {
		return nil, fmt.Errorf("%w: min (%d) > max (%d)", ErrInvalidSize, f.minSize, f.maxSize)
	}

	if cfg.After != "" {
		if f.after, err = ParseDate(cfg.After); err != nil {
			return nil, fmt.Errorf("after: %w", err)
		}
	}
	if cfg.Before != "" {
		if f.before, err = ParseDate(cfg.Before); err != nil {
			return nil, fmt.Errorf("before: %w", err)
		}
	}
	if !f.after.IsZero() && !f.before.IsZero() && !f.after.Before(f.before) {
		return nil, fmt.Errorf("%w: after must be earlier than before", ErrInvalidDate)
	}
	return f, nil
}

// Match reports whether n passes. A nil filter passes everything.
func (f *Filter) Match(n listing.Node) bool {
	if f == nil || n.IsDir() {
		return true
	}
	if n.Size != nil {
		if f.minSize >= 0 && *n.Size < f.minSize {
			return false
		}
		if f.maxSize >= 0 && *n.Size > f.maxSize {
			return false
		}
	}
	if n.LastModified != nil {
		if !f.after.IsZero() && n.LastModified.Before(f.after) {
			return false
		}
		if !f.before.IsZero() && !n.LastModified.Before(f.before) {
			return false
		}
	}
	return true
}

// String describes the active constraints.
func (f *Filter) String() string {
	if f == nil {
		return "none"
	}
	var parts []string
	if f.minSize >= 0 {
		parts = append(parts, "size >= "+FormatSize(f.minSize))
	}
	if f.maxSize >= 0 {
		parts = append(parts, "size <= "+FormatSize(f.maxSize))
	}
	if !f.after.IsZero() {
		parts = append(parts, "modified >= "+f.after.Format(time.RFC3339))
	}
	if !f.before.IsZero() {
		parts = append(parts, "modified < "+f.before.Format(time.RFC3339))
	}
	return strings.Join(parts, ", ")
}

// Size unit multipliers.
const (
	Byte int64 = 1

	KB int64 = 1000
	MB int64 = 1000 * KB
	GB int64 = 1000 * MB
	TB int64 = 1000 * GB

	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
	TiB int64 = 1024 * GiB
)

// ParseSize parses "1024", "1.5KB" (base 10) or "100MiB" (base 2), case
// insensitive.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	numEnd := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	if numEnd < 0 {
		numEnd = len(s)
	}
	if numEnd == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	var multiplier int64
	switch strings.ToUpper(strings.TrimSpace(s[numEnd:])) {
	case "", "B":
		multiplier = Byte
	case "K", "KB":
		multiplier = KB
	case "M", "MB":
		multiplier = MB
	case "G", "GB":
		multiplier = GB
	case "T", "TB":
		multiplier = TB
	case "KI", "KIB":
		multiplier = KiB
	case "MI", "MIB":
		multiplier = MiB
	case "GI", "GIB":
		multiplier = GiB
	case "TI", "TIB":
		multiplier = TiB
	default:
		return 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidSize, s[numEnd:])
	}

	num, err := strconv.ParseFloat(s[:numEnd], 64)
	if err != nil || math.IsNaN(num) || math.IsInf(num, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}
	bytes := num * float64(multiplier)
	if bytes >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: size overflows int64", ErrInvalidSize)
	}
	return int64(bytes), nil
}

// FormatSize formats bytes with base-2 units.
func FormatSize(bytes int64) string {
	switch {
	case bytes >= TiB:
		return fmt.Sprintf("%.1fTiB", float64(bytes)/float64(TiB))
	case bytes >= GiB:
		return fmt.Sprintf("%.1fGiB", float64(bytes)/float64(GiB))
	case bytes >= MiB:
		return fmt.Sprintf("%.1fMiB", float64(bytes)/float64(MiB))
	case bytes >= KiB:
		return fmt.Sprintf("%.1fKiB", float64(bytes)/float64(KiB))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}

// ParseDate parses "2024-01-15" (midnight UTC) or an RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}
