package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyEasingEndpoints(t *testing.T) {
	for _, easing := range []EasingType{EasingLinear, EasingInOutCubic, EasingInOutSine} {
		assert.InDelta(t, 0, ApplyEasing(0, easing), 1e-9, "easing %s at 0", easing)
		assert.InDelta(t, 1, ApplyEasing(1, easing), 1e-9, "easing %s at 1", easing)
	}
}

func TestApplyEasingMidpoint(t *testing.T) {
	assert.InDelta(t, 0.5, ApplyEasing(0.5, EasingLinear), 1e-9)
	assert.InDelta(t, 0.5, ApplyEasing(0.5, EasingInOutSine), 1e-9)
	assert.InDelta(t, 0.5, ApplyEasing(0.5, EasingInOutCubic), 1e-9)
}

func TestInterpolate(t *testing.T) {
	assert.InDelta(t, 100, Interpolate(0, 200, 0.5, EasingLinear), 1e-9)
	assert.InDelta(t, 200, Interpolate(0, 200, 1, EasingLinear), 1e-9)
	assert.InDelta(t, 0, Interpolate(0, 200, 0, EasingLinear), 1e-9)
	// Empty easing defaults to linear.
	assert.InDelta(t, 50, Interpolate(0, 100, 0.5, ""), 1e-9)
	// Descending ranges interpolate symmetrically.
	assert.InDelta(t, 150, Interpolate(200, 100, 0.5, EasingLinear), 1e-9)
}
