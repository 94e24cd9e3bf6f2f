// Package consumption holds the pure arithmetic for resource draw
// accounting. Flow rates are specified in units per hour; activation
// intervals are measured in wall-clock elapsed time.
package consumption

import (
	"math"
	"time"
)

// Compute converts an hourly flow rate into the amount consumed over
// the elapsed interval and the resulting level, floored at zero. The
// level never increases through accounting.
func Compute(flowRatePerHour float64, elapsed time.Duration, currentLevel float64) (consumed, newLevel float64) {
	perSecond := flowRatePerHour / 3600.0
	consumed = perSecond * elapsed.Seconds()
	newLevel = math.Max(0, currentLevel-consumed)
	return consumed, newLevel
}

// PercentFull derives the fill percentage of a reservoir. A zero or
// negative capacity yields 0 rather than a division error.
func PercentFull(level, capacity float64) float64 {
	if capacity <= 0 {
		return 0
	}
	return level / capacity * 100
}

// Round limits x to the given number of decimal places for reporting
// and storage.
func Round(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(x*p) / p
}
