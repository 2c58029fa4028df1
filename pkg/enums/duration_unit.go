package enums

import (
	"fmt"
	"strings"
	"time"
)

// DurationUnit is the unit a promotion window is expressed in.
type DurationUnit string

const (
	DurationUnitHours DurationUnit = "hours"
	DurationUnitDays  DurationUnit = "days"
)

var validDurationUnits = []DurationUnit{
	DurationUnitHours,
	DurationUnitDays,
}

func (u DurationUnit) String() string {
	return string(u)
}

func (u DurationUnit) IsValid() bool {
	for _, candidate := range validDurationUnits {
		if candidate == u {
			return true
		}
	}
	return false
}

// Span returns the wall-clock length of one unit.
func (u DurationUnit) Span() time.Duration {
	switch u {
	case DurationUnitDays:
		return 24 * time.Hour
	case DurationUnitHours:
		return time.Hour
	default:
		return 0
	}
}

// ParseDurationUnit converts raw input into a DurationUnit.
func ParseDurationUnit(value string) (DurationUnit, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validDurationUnits {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid duration unit %q", value)
}
