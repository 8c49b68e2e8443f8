package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nikgalvaz/camacq/internal/frame"
	"github.com/nikgalvaz/camacq/internal/rgn"
)

// ParseSize parses a byte-size string with an optional k/M/G suffix
// (case-insensitive, binary multiples), as used by --save-stack-size.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("config: empty size")
	}
	mult := int64(1)
	switch suffix := s[len(s)-1]; suffix {
	case 'k', 'K':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'g', 'G':
		mult = 1 << 30
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid size %q: %w", s, err)
	}
	return n * mult, nil
}

// ParseExposure parses a "Tunit" exposure string (unit in {us, ms, s}),
// as used by --exposure and --time-lapse-delay.
func ParseExposure(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	for _, unit := range []struct {
		suffix string
		scale  time.Duration
	}{
		{"us", time.Microsecond},
		{"ms", time.Millisecond},
		{"s", time.Second},
	} {
		if strings.HasSuffix(s, unit.suffix) {
			n, err := strconv.ParseFloat(strings.TrimSuffix(s, unit.suffix), 64)
			if err != nil {
				return 0, fmt.Errorf("config: invalid exposure %q: %w", s, err)
			}
			return time.Duration(n * float64(unit.scale)), nil
		}
	}
	return 0, fmt.Errorf("config: exposure %q missing unit (us|ms|s)", s)
}

// ParseAllocator maps the --allocator string to an AllocatorKind.
func ParseAllocator(s string) (frame.AllocatorKind, error) {
	switch s {
	case "", "default":
		return frame.AllocDefault, nil
	case "align16":
		return frame.AllocAlign16, nil
	case "align32":
		return frame.AllocAlign32, nil
	case "align4k":
		return frame.AllocAlign4k, nil
	default:
		return frame.AllocDefault, fmt.Errorf("config: unknown allocator %q", s)
	}
}

// ParseROI parses one "sA1,sA2,pA1,pA2" entry from --rois, with binning
// taken from the region-wide --sbin/--pbin values.
func ParseROI(s string, sbin, pbin int) (rgn.Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return rgn.Region{}, fmt.Errorf("config: roi %q must have 4 comma-separated fields", s)
	}
	vals := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return rgn.Region{}, fmt.Errorf("config: roi %q field %d: %w", s, i, err)
		}
		vals[i] = n
	}
	r := rgn.Region{S1: vals[0], S2: vals[1], Sbin: sbin, P1: vals[2], P2: vals[3], Pbin: pbin}
	if sbin < 1 {
		r.Sbin = 1
	}
	if pbin < 1 {
		r.Pbin = 1
	}
	return r, r.Validate()
}

// ParseROIList parses every entry in a "sA1,sA2,pA1,pA2;…" --rois string.
func ParseROIList(s string, sbin, pbin int) ([]rgn.Region, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	entries := strings.Split(s, ";")
	out := make([]rgn.Region, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e) == "" {
			continue
		}
		r, err := ParseROI(e, sbin, pbin)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
