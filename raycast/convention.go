package raycast

import (
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/raycast/spatialmath"
)

// Fixed rotations expressing each camera convention's axes in the world camera
// convention (forward +X, left +Y, up +Z).
var (
	// ROS: forward +Z, right +X, down +Y.
	quatWorldFromROS = spatialmath.NewQuaternion(0.5, -0.5, 0.5, -0.5)
	// OpenGL: backward +Z, right +X, up +Y.
	quatWorldFromOpenGL = spatialmath.NewQuaternion(0.5, 0.5, -0.5, -0.5)
)

// convertOrientationToWorld re-expresses an orientation given in the named camera
// convention as an equivalent world-convention orientation.
func convertOrientationToWorld(q quat.Number, convention OrientationConvention) quat.Number {
	switch convention {
	case ConventionROS:
		return quat.Mul(q, quat.Conj(quatWorldFromROS))
	case ConventionOpenGL:
		return quat.Mul(q, quat.Conj(quatWorldFromOpenGL))
	default:
		return q
	}
}
