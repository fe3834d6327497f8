package spatialmath

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
)

// bvhLeafSize is the maximum number of triangles stored in a leaf node.
const bvhLeafSize = 4

// bvhNode is a node of a bounding volume hierarchy over mesh triangles. Leaf nodes
// hold a small triangle slice; internal nodes hold two children. Bounds are an AABB
// enclosing everything beneath the node.
type bvhNode struct {
	minBound r3.Vector
	maxBound r3.Vector

	// exactly one of (triangles) or (left, right) is set
	triangles []*Triangle
	left      *bvhNode
	right     *bvhNode
}

// buildBVH constructs a bounding volume hierarchy from the given triangles by
// recursive median split along the largest AABB axis. Returns nil for no triangles.
// The triangle slice is reordered in place.
func buildBVH(triangles []*Triangle) *bvhNode {
	if len(triangles) == 0 {
		return nil
	}
	minB, maxB := computeTrianglesAABB(triangles)
	if len(triangles) <= bvhLeafSize {
		return &bvhNode{minBound: minB, maxBound: maxB, triangles: triangles}
	}

	extent := maxB.Sub(minB)
	axis := 0
	if extent.Y > extent.X {
		axis = 1
	}
	if extent.Z > axisComponent(extent, axis) {
		axis = 2
	}
	sort.Slice(triangles, func(i, j int) bool {
		return axisComponent(triangles[i].Centroid(), axis) < axisComponent(triangles[j].Centroid(), axis)
	})
	mid := len(triangles) / 2
	return &bvhNode{
		minBound: minB,
		maxBound: maxB,
		left:     buildBVH(triangles[:mid]),
		right:    buildBVH(triangles[mid:]),
	}
}

func axisComponent(v r3.Vector, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// computeTrianglesAABB returns the min and max corners of the axis-aligned bounding
// box enclosing all vertices of the given triangles.
func computeTrianglesAABB(triangles []*Triangle) (r3.Vector, r3.Vector) {
	minB := r3.Vector{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	maxB := r3.Vector{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, tri := range triangles {
		for _, pt := range tri.Points() {
			minB.X = math.Min(minB.X, pt.X)
			minB.Y = math.Min(minB.Y, pt.Y)
			minB.Z = math.Min(minB.Z, pt.Z)
			maxB.X = math.Max(maxB.X, pt.X)
			maxB.Y = math.Max(maxB.Y, pt.Y)
			maxB.Z = math.Max(maxB.Z, pt.Z)
		}
	}
	return minB, maxB
}

// rayAABBIntersect is a slab test returning the entry parameter of the ray against the
// box, or false if the ray misses the box entirely within [0, maxDist].
func rayAABBIntersect(origin, invDir, minB, maxB r3.Vector, maxDist float64) (float64, bool) {
	t1 := (minB.X - origin.X) * invDir.X
	t2 := (maxB.X - origin.X) * invDir.X
	if t1 > t2 {
		t1, t2 = t2, t1
	}
	tMin, tMax := t1, t2

	t1 = (minB.Y - origin.Y) * invDir.Y
	t2 = (maxB.Y - origin.Y) * invDir.Y
	if t1 > t2 {
		t1, t2 = t2, t1
	}
	tMin = math.Max(tMin, t1)
	tMax = math.Min(tMax, t2)

	t1 = (minB.Z - origin.Z) * invDir.Z
	t2 = (maxB.Z - origin.Z) * invDir.Z
	if t1 > t2 {
		t1, t2 = t2, t1
	}
	tMin = math.Max(tMin, t1)
	tMax = math.Min(tMax, t2)

	if tMin > math.Min(tMax, maxDist) || tMax < 0 {
		return 0, false
	}
	return math.Max(0, tMin), true
}

// closestRayIntersection traverses the hierarchy for the nearest triangle
// intersection along the ray within maxDist. Returns the ray parameter, the hit
// triangle, and whether a hit was found.
func (n *bvhNode) closestRayIntersection(origin, dir r3.Vector, maxDist float64) (float64, *Triangle, bool) {
	if n == nil {
		return 0, nil, false
	}
	invDir := r3.Vector{X: 1 / dir.X, Y: 1 / dir.Y, Z: 1 / dir.Z}

	bestDist := maxDist
	var bestTri *Triangle

	stack := make([]*bvhNode, 0, 64)
	stack = append(stack, n)
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := rayAABBIntersect(origin, invDir, node.minBound, node.maxBound, bestDist); !ok {
			continue
		}
		if node.triangles != nil {
			for _, tri := range node.triangles {
				if dist, ok := tri.RayIntersect(origin, dir); ok && dist <= bestDist {
					bestDist = dist
					bestTri = tri
				}
			}
			continue
		}
		if node.left != nil {
			stack = append(stack, node.left)
		}
		if node.right != nil {
			stack = append(stack, node.right)
		}
	}
	if bestTri == nil {
		return 0, nil, false
	}
	return bestDist, bestTri, true
}
