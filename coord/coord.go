// Package coord models the equatorial coordinates understood by the
// STAR BOOK wire protocol: right ascension as (hours, minutes) and
// declination as (degrees, minutes). Inputs arrive in many shapes
// (decimal numbers, 2- or 3-element sequences, delimited strings) and
// are normalized by ParseRA and ParseDec.
package coord

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidCoordinate = errors.New("coord: invalid coordinate")

// RA is a right ascension. Hour carries the sign; Min is in [0,60).
type RA struct {
	Hour int
	Min  float64
}

// Dec is a declination. Deg carries the sign except at zero degrees,
// where Neg preserves it (the integer part cannot represent -0).
type Dec struct {
	Deg int
	Min float64
	Neg bool
}

func RAFromHours(v float64) RA {
	h := math.Trunc(v)
	return RA{Hour: int(h), Min: math.Abs(v-h) * 60}
}

func DecFromDegrees(v float64) Dec {
	d := math.Trunc(v)
	return Dec{Deg: int(d), Min: math.Abs(v-d) * 60, Neg: math.Signbit(v)}
}

// Hours returns the decimal-hours form.
func (r RA) Hours() float64 {
	if r.Hour < 0 {
		return float64(r.Hour) - r.Min/60
	}
	return float64(r.Hour) + r.Min/60
}

// Degrees returns the sign-aware decimal-degrees form.
func (d Dec) Degrees() float64 {
	v := math.Abs(float64(d.Deg)) + d.Min/60
	if d.Neg || d.Deg < 0 {
		return -v
	}
	return v
}

// Wire renders the device's query-string field encoding.
func (r RA) Wire() string {
	return fmt.Sprintf("%d+%f", r.Hour, r.Min)
}

// Wire renders the device's query-string field encoding. A negative
// zero-degree declination renders as "-0" so the sign survives.
func (d Dec) Wire() string {
	if d.Neg && d.Deg == 0 {
		return fmt.Sprintf("-0+%f", d.Min)
	}
	return fmt.Sprintf("%d+%f", d.Deg, d.Min)
}

func (r RA) String() string {
	return fmt.Sprintf("%dh%05.2fm", r.Hour, r.Min)
}

func (d Dec) String() string {
	sign := ""
	if d.Neg && d.Deg == 0 {
		sign = "-"
	}
	return fmt.Sprintf("%s%d°%05.2f'", sign, d.Deg, d.Min)
}

// ParseRA normalizes any supported input shape to an RA. Supported
// shapes: a numeric scalar in decimal hours, a 2- or 3-element sequence
// (hours, minutes[, seconds]), or a delimited string ("12h34m56s",
// "12:34:56", "12.34"). Anything else fails with ErrInvalidCoordinate.
func ParseRA(input interface{}) (RA, error) {
	unit, min, _, err := parse(input)
	if err != nil {
		return RA{}, err
	}
	return RA{Hour: unit, Min: min}, nil
}

// ParseDec normalizes any supported input shape to a Dec. The sign is
// taken from the primary (degrees) value; a negative zero primary
// ("-0:30", IEEE -0.0) sets Neg so the sign is not lost.
func ParseDec(input interface{}) (Dec, error) {
	unit, min, neg, err := parse(input)
	if err != nil {
		return Dec{}, err
	}
	return Dec{Deg: unit, Min: min, Neg: neg}, nil
}

// markerReplacer maps every unit marker to a space; the residue is a
// plain 1-3 field numeric vector. "deg" must precede "d".
var markerReplacer = strings.NewReplacer(
	"deg", " ",
	"d", " ",
	"h", " ",
	"m", " ",
	"s", " ",
	":", " ",
	"°", " ",
	"º", " ",
	"'", " ",
	"’", " ",
	`"`, " ",
	"”", " ",
)

func parse(input interface{}) (unit int, min float64, neg bool, err error) {
	switch v := input.(type) {
	case float64:
		return fromScalar(v)
	case float32:
		return fromScalar(float64(v))
	case int:
		return fromScalar(float64(v))
	case int64:
		return fromScalar(float64(v))
	case []float64:
		return fromParts(v)
	case []int:
		parts := make([]float64, len(v))
		for i, p := range v {
			parts[i] = float64(p)
		}
		return fromParts(parts)
	case []interface{}:
		parts := make([]float64, len(v))
		for i, p := range v {
			f, ok := p.(float64)
			if !ok {
				return 0, 0, false, fmt.Errorf("%w: element %d of %v", ErrInvalidCoordinate, i, v)
			}
			parts[i] = f
		}
		return fromParts(parts)
	case string:
		return fromText(v)
	}
	return 0, 0, false, fmt.Errorf("%w: %v (%T)", ErrInvalidCoordinate, input, input)
}

func fromScalar(v float64) (int, float64, bool, error) {
	unit := math.Trunc(v)
	return int(unit), math.Abs(v-unit) * 60, math.Signbit(v), nil
}

func fromParts(parts []float64) (int, float64, bool, error) {
	switch len(parts) {
	case 1:
		return fromScalar(parts[0])
	case 2:
		return int(parts[0]), math.Abs(parts[1]), math.Signbit(parts[0]), nil
	case 3:
		return int(parts[0]), math.Abs(parts[1]) + math.Abs(parts[2])/60, math.Signbit(parts[0]), nil
	}
	return 0, 0, false, fmt.Errorf("%w: %d-element sequence", ErrInvalidCoordinate, len(parts))
}

func fromText(s string) (int, float64, bool, error) {
	fields := strings.Fields(markerReplacer.Replace(strings.ToLower(strings.TrimSpace(s))))
	if len(fields) == 0 || len(fields) > 3 {
		return 0, 0, false, fmt.Errorf("%w: %q", ErrInvalidCoordinate, s)
	}
	parts := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return 0, 0, false, fmt.Errorf("%w: %q", ErrInvalidCoordinate, s)
		}
		parts[i] = v
	}
	return fromParts(parts)
}
