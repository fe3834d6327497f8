package spatialmath

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Mesh is a triangle soup with a bounding volume hierarchy built once at
// construction time. The hierarchy is reused for every ray query; rigid motion of a
// mesh is handled by transforming query rays, never by rebuilding.
type Mesh struct {
	triangles []*Triangle
	bvh       *bvhNode
}

// NewMesh creates a mesh from the given triangles and builds its BVH.
func NewMesh(triangles []*Triangle) *Mesh {
	return &Mesh{
		triangles: triangles,
		bvh:       buildBVH(triangles),
	}
}

// NewMeshFromVertices creates a mesh from an indexed triangle list. Each face is a
// triple of indices into the vertex slice.
func NewMeshFromVertices(vertices []r3.Vector, faces [][3]int) (*Mesh, error) {
	triangles := make([]*Triangle, 0, len(faces))
	for _, face := range faces {
		for _, idx := range face {
			if idx < 0 || idx >= len(vertices) {
				return nil, errors.Errorf("face index %d out of range for %d vertices", idx, len(vertices))
			}
		}
		triangles = append(triangles, NewTriangle(vertices[face[0]], vertices[face[1]], vertices[face[2]]))
	}
	return NewMesh(triangles), nil
}

// Triangles returns the mesh's triangles.
func (m *Mesh) Triangles() []*Triangle {
	return m.triangles
}

// RayIntersect returns the nearest intersection of the ray with the mesh within
// maxDist: the ray parameter at the hit, the surface normal there, and whether a hit
// exists. The parameter is in units of the direction vector's length.
func (m *Mesh) RayIntersect(origin, dir r3.Vector, maxDist float64) (float64, r3.Vector, bool) {
	dist, tri, ok := m.bvh.closestRayIntersection(origin, dir, maxDist)
	if !ok {
		return 0, r3.Vector{}, false
	}
	return dist, tri.Normal(), true
}
