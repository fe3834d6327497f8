package spatialmath

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a rigid transform: a world position paired with a w-x-y-z orientation quaternion.
type Pose struct {
	Point       r3.Vector
	Orientation quat.Number
}

// NewZeroPose returns a pose at the origin with no rotation.
func NewZeroPose() Pose {
	return Pose{Orientation: NewZeroQuaternion()}
}

// NewPose returns a pose with the given position and orientation.
func NewPose(pt r3.Vector, o quat.Number) Pose {
	return Pose{Point: pt, Orientation: o}
}

// NewPoseFromPoint returns a pose at the given position with no rotation.
func NewPoseFromPoint(pt r3.Vector) Pose {
	return Pose{Point: pt, Orientation: NewZeroQuaternion()}
}

// Compose returns the pose equivalent to applying b in the frame of a.
func Compose(a, b Pose) Pose {
	return Pose{
		Point:       a.Point.Add(QuatApply(a.Orientation, b.Point)),
		Orientation: quat.Mul(a.Orientation, b.Orientation),
	}
}

// TransformPoint maps a point from the pose's local frame into the world frame.
func (p Pose) TransformPoint(pt r3.Vector) r3.Vector {
	return p.Point.Add(QuatApply(p.Orientation, pt))
}

// InverseTransformPoint maps a world-frame point into the pose's local frame.
func (p Pose) InverseTransformPoint(pt r3.Vector) r3.Vector {
	return QuatApply(quat.Conj(p.Orientation), pt.Sub(p.Point))
}

// PoseAlmostEqual will return a bool describing whether 2 poses are approximately the same.
func PoseAlmostEqual(a, b Pose, tol float64) bool {
	return R3VectorAlmostEqual(a.Point, b.Point, tol) && QuaternionAlmostEqual(a.Orientation, b.Orientation, tol)
}

// R3VectorAlmostEqual compares two r3 vectors element-wise within a tolerance.
func R3VectorAlmostEqual(a, b r3.Vector, tol float64) bool {
	return a.Sub(b).Norm() < tol
}
