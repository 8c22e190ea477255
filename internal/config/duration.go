package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Duration parsing errors.
var (
	ErrInvalidDuration = errors.New("invalid duration format")
	ErrUnknownUnit     = errors.New("unknown duration unit")
)

// ParseDuration parses a duration string like "7d", "12h", "1w".
// Supported units: d (days), h (hours), w (weeks).
func ParseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, ErrInvalidDuration
	}

	unit := s[len(s)-1]
	value, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || value <= 0 {
		return 0, ErrInvalidDuration
	}

	switch unit {
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	case 'h':
		return time.Duration(value) * time.Hour, nil
	case 'w':
		return time.Duration(value) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("%w: %c", ErrUnknownUnit, unit)
	}
}
