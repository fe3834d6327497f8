// Package spatialmath defines spatial mathematical operations for the ray-casting engine:
// quaternions, poses, triangles, meshes, and ray intersection queries.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// floatEpsilon is the tolerance below which two floats are considered equal.
const floatEpsilon = 1e-6

// NewZeroQuaternion returns the identity quaternion, which signifies no rotation.
func NewZeroQuaternion() quat.Number {
	return quat.Number{Real: 1}
}

// NewQuaternion constructs a quaternion from w-x-y-z components.
func NewQuaternion(w, x, y, z float64) quat.Number {
	return quat.Number{Real: w, Imag: x, Jmag: y, Kmag: z}
}

// QuatApply rotates a vector by the given unit quaternion.
func QuatApply(q quat.Number, v r3.Vector) r3.Vector {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// QuatYaw extracts the heading component of a quaternion, dropping pitch and roll.
// The heading is the Z-axis Euler angle of the Z-Y-X decomposition; a degenerate
// input (heading undefined, e.g. a quarter-turn pitch) yields the identity.
func QuatYaw(q quat.Number) quat.Number {
	sinYaw := 2 * (q.Real*q.Kmag + q.Imag*q.Jmag)
	cosYaw := 1 - 2*(q.Jmag*q.Jmag+q.Kmag*q.Kmag)
	if math.Abs(sinYaw) < floatEpsilon && math.Abs(cosYaw) < floatEpsilon {
		return NewZeroQuaternion()
	}
	yaw := math.Atan2(sinYaw, cosYaw)
	return quat.Number{Real: math.Cos(yaw / 2), Kmag: math.Sin(yaw / 2)}
}

// QuatApplyYaw rotates a vector by only the heading component of the given quaternion.
func QuatApplyYaw(q quat.Number, v r3.Vector) r3.Vector {
	return QuatApply(QuatYaw(q), v)
}

// QuatFromRPY constructs a quaternion from roll, pitch and yaw angles in radians,
// applied in Z-Y-X order.
func QuatFromRPY(roll, pitch, yaw float64) quat.Number {
	cr, sr := math.Cos(roll/2), math.Sin(roll/2)
	cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)
	cy, sy := math.Cos(yaw/2), math.Sin(yaw/2)
	return quat.Number{
		Real: cr*cp*cy + sr*sp*sy,
		Imag: sr*cp*cy - cr*sp*sy,
		Jmag: cr*sp*cy + sr*cp*sy,
		Kmag: cr*cp*sy - sr*sp*cy,
	}
}

// Norm returns the norm of the quaternion's imaginary parts.
func Norm(q quat.Number) float64 {
	return math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
}

// Flip will multiply a quaternion by -1, returning a quaternion representing the same
// orientation but in the opposing octant.
func Flip(q quat.Number) quat.Number {
	return quat.Number{Real: -q.Real, Imag: -q.Imag, Jmag: -q.Jmag, Kmag: -q.Kmag}
}

// QuaternionAlmostEqual is an equality check that accounts for the fact that q and -q
// represent the same orientation.
func QuaternionAlmostEqual(a, b quat.Number, tol float64) bool {
	diff := quat.Mul(quat.Conj(a), b)
	return math.Abs(Norm(diff)) < tol || math.Abs(Norm(quat.Mul(quat.Conj(a), Flip(b)))) < tol
}
