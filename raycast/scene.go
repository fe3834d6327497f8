package raycast

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// MeshData is the triangulated geometry extracted for a single scene path. Declared
// primitive shapes (planes, boxes, spheres) are expected to arrive pre-triangulated
// with Primitive set.
type MeshData struct {
	Vertices  []r3.Vector
	Faces     [][3]int
	Primitive bool
}

// Scene is the external scene collaborator: it expands target expressions into
// concrete paths and yields geometry and world scale for each path.
type Scene interface {
	// ExpandPaths resolves a path expression to the ordered list of matching concrete
	// paths. Discovery order for per-environment targets interleaves environments
	// (env0_obj0, env0_obj1, env1_obj0, ...).
	ExpandPaths(expr string) ([]string, error)

	// MeshAt extracts triangulated geometry for a concrete path.
	MeshAt(path string) (MeshData, error)

	// WorldScale returns the uniform world-space scale factor for the path's vertices.
	WorldScale(path string) (float64, error)
}

// PoseCapability identifies the richest physics representation backing a prim, which
// determines how poses and velocities are queried.
type PoseCapability int

// Supported pose capabilities, in probing order.
const (
	PoseCapabilityUnknown PoseCapability = iota
	PoseCapabilityArticulation
	PoseCapabilityRigidBody
	PoseCapabilityTransform
)

func (c PoseCapability) String() string {
	switch c {
	case PoseCapabilityArticulation:
		return "articulation"
	case PoseCapabilityRigidBody:
		return "rigid_body"
	case PoseCapabilityTransform:
		return "transform"
	default:
		return "unknown"
	}
}

// PoseSource is the external pose/velocity collaborator.
type PoseSource interface {
	// Probe reports the richest capability available for the expression's prims.
	Probe(expr string) PoseCapability

	// View creates a pose view over all prims matching the expression using the
	// given capability.
	View(expr string, capability PoseCapability) (PoseView, error)
}

// PoseView is a handle over the set of prims matched by one expression. All returned
// layouts are normalized: positions as vectors, orientations as w-x-y-z quaternions.
type PoseView interface {
	// Count returns the number of matched prim instances.
	Count() int

	// Capability returns the capability the view was created with.
	Capability() PoseCapability

	// Poses returns current world positions and orientations for the given instance
	// indices; nil means all instances.
	Poses(ids []int) ([]r3.Vector, []quat.Number, error)

	// Velocities returns current world linear and angular velocities for the given
	// instance indices; nil means all instances. Views backed by a plain transform
	// report zero velocity.
	Velocities(ids []int) ([]r3.Vector, []r3.Vector, error)
}

// PointVisualizer is an optional output-only sink receiving a flat world-point list
// for debug rendering. It has no feedback into the engine.
type PointVisualizer interface {
	Visualize(points []r3.Vector)
}
