package drivers

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/jake-scott/flair-bridge/internal/pkg/flairapi"
)

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// CelsiusToFahrenheit converts and rounds to one decimal place
func CelsiusToFahrenheit(c float64) float64 {
	return round1(c*9/5 + 32)
}

// isTrue is 1 only when the attribute is present and true
func isTrue(res *flairapi.Resource, attr string) float64 {
	if b, ok := res.Bool(attr); ok && b {
		return 1
	}
	return 0
}

// floatOrZero reports a null numeric attribute as 0
func floatOrZero(res *flairapi.Resource, attr string) float64 {
	v, _ := res.Float(attr)
	return v
}

// enumIndex is the position of the attribute's label in labels
func enumIndex(res *flairapi.Resource, attr string, labels []string) (float64, bool) {
	label, ok := res.Text(attr)
	if !ok {
		return 0, false
	}

	for i, l := range labels {
		if l == label {
			return float64(i), true
		}
	}

	return 0, false
}

func parseFloat(value string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.Wrapf(ErrInvalidValue, "not a number: %q", value)
	}

	return f, nil
}

// parseIndex parses an index into a list of n entries
func parseIndex(value string, n int) (int, error) {
	f, err := parseFloat(value)
	if err != nil {
		return 0, err
	}

	i := int(f)
	if float64(i) != f || i < 0 || i >= n {
		return 0, errors.Wrapf(ErrInvalidValue, "index %s out of range 0-%d", value, n-1)
	}

	return i, nil
}
