package netlist

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var factors = map[string]float64{
	"T":   1e12,  // tera
	"G":   1e9,   // giga
	"meg": 1e6,   // mega
	"K":   1e3,   // kilo
	"k":   1e3,   // kilo
	"m":   1e-3,  // milli
	"u":   1e-6,  // micro
	"n":   1e-9,  // nano
	"p":   1e-12, // pico
	"f":   1e-15, // femto
}

var valueRe = regexp.MustCompile(`^([-+]?\d*\.?\d+(?:[eE][-+]?\d+)?)(meg|[TGKkmunpf])?$`)

// ParseValue parses a number with an optional engineering factor.
// 1k -> 1000, 100u -> 1e-4, 2meg -> 2e6.
func ParseValue(val string) (float64, error) {
	matches := valueRe.FindStringSubmatch(strings.TrimSpace(val))
	if matches == nil {
		return 0, fmt.Errorf("invalid value format: %q", val)
	}

	num, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, err
	}
	if f, ok := factors[matches[2]]; ok {
		num *= f
	}
	return num, nil
}

// ParseQuantity parses a value optionally followed by a unit after a space,
// as in "100u" or "40 degC". The unit is returned unparsed.
func ParseQuantity(val string) (float64, string, error) {
	num, unit, _ := strings.Cut(strings.TrimSpace(val), " ")
	v, err := ParseValue(num)
	if err != nil {
		return 0, "", err
	}
	return v, strings.TrimSpace(unit), nil
}
