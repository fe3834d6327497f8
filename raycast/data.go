package raycast

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// RayCasterData holds the per-instance outputs of a ray-casting sensor. All buffers
// are overwritten in place for updated instances each tick; instances absent from an
// update's index subset retain the values of their last update.
type RayCasterData struct {
	// PosW is the drift-adjusted world position per instance.
	PosW []r3.Vector
	// QuatW is the world orientation per instance, w-x-y-z.
	QuatW []quat.Number
	// VelW and AngVelW are world linear and angular velocities per instance.
	VelW    []r3.Vector
	AngVelW []r3.Vector
	// RayHitsW is the world hit position per instance and ray; misses report the
	// capped point at maximum range.
	RayHitsW [][]r3.Vector
	// Distances is the hit distance per instance and ray; exactly the configured
	// maximum distance means no hit.
	Distances [][]float64
	// HitMeshIndex is the environment-local mesh slot that produced each hit, -1 on
	// a miss.
	HitMeshIndex [][]int
}

// CameraData holds the per-instance outputs of a ray-caster camera. Image buffers
// are indexed [instance][row][col].
type CameraData struct {
	// PosW and QuatWWorld are the offset-adjusted camera poses in the world frame,
	// world orientation convention.
	PosW      []r3.Vector
	QuatWWorld []quat.Number
	// IntrinsicMatrices holds one 3x3 intrinsic matrix per instance.
	IntrinsicMatrices []mgl64.Mat3
	// ImageShape is (height, width).
	ImageShape [2]int
	// Frame counts updates per instance since the last reset.
	Frame []int64

	// DistanceToCamera is the Euclidean ray distance image; nil unless configured.
	DistanceToCamera [][][]float64
	// DistanceToImagePlane is the distance projected onto the camera forward axis;
	// nil unless configured.
	DistanceToImagePlane [][][]float64
	// Normals is the world-frame surface normal image; nil unless configured.
	Normals [][][]r3.Vector
}
