// Package scene drives timed transitions between captured snapshots.
package scene

import (
	"math"
)

// EasingType selects the interpolation curve for a transition.
type EasingType string

const (
	// EasingLinear provides constant rate of change.
	EasingLinear EasingType = "LINEAR"
	// EasingInOutCubic provides smooth acceleration and deceleration.
	EasingInOutCubic EasingType = "EASE_IN_OUT_CUBIC"
	// EasingInOutSine provides gentle sine wave easing.
	EasingInOutSine EasingType = "EASE_IN_OUT_SINE"
)

// ApplyEasing applies an easing function to a progress value (0-1).
func ApplyEasing(progress float64, easingType EasingType) float64 {
	switch easingType {
	case EasingInOutCubic:
		if progress < 0.5 {
			return 4 * progress * progress * progress
		}
		temp := -2*progress + 2
		return 1 - temp*temp*temp/2

	case EasingInOutSine:
		return -(math.Cos(math.Pi*progress) - 1) / 2

	default:
		return progress
	}
}

// Interpolate calculates an interpolated value between start and end.
func Interpolate(start, end, progress float64, easingType EasingType) float64 {
	if easingType == "" {
		easingType = EasingLinear
	}
	easedProgress := ApplyEasing(progress, easingType)
	return start + (end-start)*easedProgress
}
