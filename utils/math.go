// Package utils contains shared math and parallelism helpers for the engine.
package utils

import (
	"math"
	"math/rand"
)

// DegToRad converts degrees to radians.
func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}

// Float64AlmostEqual compares two float64s within the given epsilon.
func Float64AlmostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) < epsilon
}

// SampleUniformRange returns a uniform sample over [min, max) from the given source.
func SampleUniformRange(min, max float64, r *rand.Rand) float64 {
	return min + (max-min)*r.Float64()
}
