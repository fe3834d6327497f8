package pointcloud

import (
	"github.com/golang/geo/r3"
)

// NewVector convenience method for creating a vector.
func NewVector(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}

// Vectors is a series of three-dimensional vectors.
type Vectors []r3.Vector

// Len returns the number of vectors.
func (vs Vectors) Len() int {
	return len(vs)
}

// Swap swaps two vectors positionally.
func (vs Vectors) Swap(i, j int) {
	vs[i], vs[j] = vs[j], vs[i]
}

// Less returns which vector is less than the other based on r3.Vector.Cmp.
func (vs Vectors) Less(i, j int) bool {
	cmp := vs[i].Cmp(vs[j])
	if cmp == 0 {
		return false
	}
	return cmp < 0
}

// Data describes data associated with a single point within a PointCloud.
type Data interface {
	// HasValue returns whether or not this point has some scalar value
	// associated with it.
	HasValue() bool

	// Value returns the scalar value, if it exists.
	Value() float64

	// SetValue sets the given scalar value on the point.
	SetValue(v float64) Data
}

type basicData struct {
	hasValue bool
	value    float64
}

// NewBasicData returns a point that is solely positionally based.
func NewBasicData() Data {
	return &basicData{}
}

// NewValueData returns a point that has both position and a scalar value.
func NewValueData(v float64) Data {
	return &basicData{value: v, hasValue: true}
}

func (bp *basicData) HasValue() bool {
	return bp.hasValue
}

func (bp *basicData) Value() float64 {
	return bp.value
}

func (bp *basicData) SetValue(v float64) Data {
	bp.hasValue = true
	bp.value = v
	return bp
}
