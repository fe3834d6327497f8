package spatialmath

import (
	"github.com/golang/geo/r3"
)

// Triangle is a three-vertex facet of a mesh with a cached unit normal.
type Triangle struct {
	p0 r3.Vector
	p1 r3.Vector
	p2 r3.Vector

	normal r3.Vector
}

// NewTriangle creates a Triangle from three points. The normal is computed from the
// winding order p0, p1, p2 using the right-hand rule.
func NewTriangle(p0, p1, p2 r3.Vector) *Triangle {
	return &Triangle{
		p0:     p0,
		p1:     p1,
		p2:     p2,
		normal: PlaneNormal(p0, p1, p2),
	}
}

// PlaneNormal returns the plane normal of the plane defined by three points.
func PlaneNormal(p0, p1, p2 r3.Vector) r3.Vector {
	return p1.Sub(p0).Cross(p2.Sub(p0)).Normalize()
}

// Points returns the three vertices of the triangle.
func (t *Triangle) Points() []r3.Vector {
	return []r3.Vector{t.p0, t.p1, t.p2}
}

// Normal returns the triangle's unit normal.
func (t *Triangle) Normal() r3.Vector {
	return t.normal
}

// Centroid returns the arithmetic mean of the triangle's vertices.
func (t *Triangle) Centroid() r3.Vector {
	return t.p0.Add(t.p1).Add(t.p2).Mul(1.0 / 3.0)
}

// Transform returns a new triangle with the pose applied to each vertex.
func (t *Triangle) Transform(p Pose) *Triangle {
	return NewTriangle(p.TransformPoint(t.p0), p.TransformPoint(t.p1), p.TransformPoint(t.p2))
}

// RayIntersect performs a Möller–Trumbore intersection test between the ray
// (origin, dir) and the triangle. It returns the ray parameter t at the intersection
// point and whether an intersection exists in front of the origin. The parameter is in
// units of the direction vector's length; dir need not be normalized but must be
// non-zero. Both triangle faces are treated as solid.
func (t *Triangle) RayIntersect(origin, dir r3.Vector) (float64, bool) {
	edge1 := t.p1.Sub(t.p0)
	edge2 := t.p2.Sub(t.p0)
	h := dir.Cross(edge2)
	det := edge1.Dot(h)
	// Near-zero determinant means the ray is parallel to the triangle's plane.
	if det > -floatEpsilon && det < floatEpsilon {
		return 0, false
	}
	invDet := 1 / det
	s := origin.Sub(t.p0)
	u := invDet * s.Dot(h)
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(edge1)
	v := invDet * dir.Dot(q)
	if v < 0 || u+v > 1 {
		return 0, false
	}
	dist := invDet * edge2.Dot(q)
	if dist < 0 {
		// Line intersection behind the ray origin.
		return 0, false
	}
	return dist, true
}
