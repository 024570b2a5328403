package convert

import (
	"fmt"
	"strconv"
	"strings"

	"vidforge/internal/domain"
)

// NormalizeGeometry validates composite geometry and rounds each output
// dimension up to the nearest even integer, a hard constraint of the target
// encoding format.
func NormalizeGeometry(opts domain.CompositeOptions) (domain.CompositeOptions, error) {
	if len(opts.Background) == 0 {
		return opts, fmt.Errorf("composite requires a background image")
	}

	if _, _, err := parsePair(opts.Scale); err != nil {
		return opts, fmt.Errorf("invalid scale %q: %w", opts.Scale, err)
	}
	if err := parseOffset(opts.Offset); err != nil {
		return opts, fmt.Errorf("invalid offset %q: %w", opts.Offset, err)
	}

	width, height, err := parsePair(opts.OutputSize)
	if err != nil {
		return opts, fmt.Errorf("invalid output size %q: %w", opts.OutputSize, err)
	}

	opts.OutputSize = fmt.Sprintf("%d:%d", roundUpEven(width), roundUpEven(height))
	return opts, nil
}

// parsePair parses a "width:height" pair of positive integers.
func parsePair(pair string) (int, int, error) {
	parts := strings.Split(pair, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected two colon-separated values")
	}

	a, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	b, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("values must be integers")
	}
	if a <= 0 || b <= 0 {
		return 0, 0, fmt.Errorf("values must be positive")
	}
	return a, b, nil
}

// parseOffset parses an "x:y" pair; offsets may be zero or negative.
func parseOffset(pair string) error {
	parts := strings.Split(pair, ":")
	if len(parts) != 2 {
		return fmt.Errorf("expected two colon-separated values")
	}
	for _, part := range parts {
		if _, err := strconv.Atoi(strings.TrimSpace(part)); err != nil {
			return fmt.Errorf("values must be integers")
		}
	}
	return nil
}

func roundUpEven(n int) int {
	if n%2 != 0 {
		n++
	}
	return n
}
