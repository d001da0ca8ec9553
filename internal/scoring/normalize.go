package scoring

import (
	"math"

	"performa-system/internal/database/models"
)

// Normalize maps a raw score to a 0-100 percentage for the given method.
// Pure and total: a missing or non-finite raw value, or an unknown method,
// yields nil. Every aggregate in the system is built on this function.
func Normalize(method string, raw *float64) *float64 {
	if raw == nil || math.IsNaN(*raw) || math.IsInf(*raw, 0) {
		return nil
	}
	v := *raw
	switch method {
	case models.MethodPercentage:
		if v < 0 {
			v = 0
		} else if v > 100 {
			v = 100
		}
		return &v
	case models.MethodScale5, models.MethodRating:
		return scaleTo(v, 5)
	case models.MethodScale10:
		return scaleTo(v, 10)
	}
	return nil
}

func scaleTo(v, upper float64) *float64 {
	switch {
	case v <= 0:
		v = 0
	case v >= upper:
		v = 100
	default:
		v = v / upper * 100
	}
	return &v
}
