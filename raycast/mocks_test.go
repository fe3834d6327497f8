package raycast

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/raycast/spatialmath"
)

// fakeScene serves canned geometry and counts extraction calls so tests can assert
// on caching and deduplication behavior.
type fakeScene struct {
	expansions  map[string][]string
	meshes      map[string]MeshData
	scales      map[string]float64
	expandCalls map[string]int
	meshAtCalls map[string]int
}

func newFakeScene() *fakeScene {
	return &fakeScene{
		expansions:  map[string][]string{},
		meshes:      map[string]MeshData{},
		scales:      map[string]float64{},
		expandCalls: map[string]int{},
		meshAtCalls: map[string]int{},
	}
}

func (s *fakeScene) ExpandPaths(expr string) ([]string, error) {
	s.expandCalls[expr]++
	return s.expansions[expr], nil
}

func (s *fakeScene) MeshAt(path string) (MeshData, error) {
	s.meshAtCalls[path]++
	data, ok := s.meshes[path]
	if !ok {
		return MeshData{}, errors.Errorf("no mesh at %q", path)
	}
	return data, nil
}

func (s *fakeScene) WorldScale(path string) (float64, error) {
	if scale, ok := s.scales[path]; ok {
		return scale, nil
	}
	return 1, nil
}

// addPlane registers a two-triangle square in the z=0 plane, shifted by offset.
func (s *fakeScene) addPlane(path string, half float64, offset r3.Vector) {
	s.meshes[path] = planeMeshData(half, offset)
}

func planeMeshData(half float64, offset r3.Vector) MeshData {
	return MeshData{
		Vertices: []r3.Vector{
			offset.Add(r3.Vector{X: -half, Y: -half}),
			offset.Add(r3.Vector{X: half, Y: -half}),
			offset.Add(r3.Vector{X: half, Y: half}),
			offset.Add(r3.Vector{X: -half, Y: half}),
		},
		Faces: [][3]int{{0, 1, 2}, {0, 2, 3}},
	}
}

// fakePoseView is a PoseView over fixed poses, mutable between updates.
type fakePoseView struct {
	capability   PoseCapability
	positions    []r3.Vector
	orientations []quat.Number
	linear       []r3.Vector
	angular      []r3.Vector
}

func newFakePoseView(positions []r3.Vector) *fakePoseView {
	orientations := make([]quat.Number, len(positions))
	for i := range orientations {
		orientations[i] = spatialmath.NewZeroQuaternion()
	}
	return &fakePoseView{
		positions:    positions,
		orientations: orientations,
		linear:       make([]r3.Vector, len(positions)),
		angular:      make([]r3.Vector, len(positions)),
	}
}

func (v *fakePoseView) Count() int                 { return len(v.positions) }
func (v *fakePoseView) Capability() PoseCapability { return v.capability }

func (v *fakePoseView) Poses(ids []int) ([]r3.Vector, []quat.Number, error) {
	if ids == nil {
		return v.positions, v.orientations, nil
	}
	positions := make([]r3.Vector, len(ids))
	orientations := make([]quat.Number, len(ids))
	for i, id := range ids {
		positions[i] = v.positions[id]
		orientations[i] = v.orientations[id]
	}
	return positions, orientations, nil
}

func (v *fakePoseView) Velocities(ids []int) ([]r3.Vector, []r3.Vector, error) {
	if ids == nil {
		return v.linear, v.angular, nil
	}
	linear := make([]r3.Vector, len(ids))
	angular := make([]r3.Vector, len(ids))
	for i, id := range ids {
		linear[i] = v.linear[id]
		angular[i] = v.angular[id]
	}
	return linear, angular, nil
}

// fakePoseSource hands out fakePoseViews by expression.
type fakePoseSource struct {
	capabilities map[string]PoseCapability
	views        map[string]*fakePoseView
}

func newFakePoseSource() *fakePoseSource {
	return &fakePoseSource{
		capabilities: map[string]PoseCapability{},
		views:        map[string]*fakePoseView{},
	}
}

func (s *fakePoseSource) addView(expr string, capability PoseCapability, positions ...r3.Vector) *fakePoseView {
	view := newFakePoseView(positions)
	s.capabilities[expr] = capability
	s.views[expr] = view
	return view
}

func (s *fakePoseSource) Probe(expr string) PoseCapability {
	return s.capabilities[expr]
}

func (s *fakePoseSource) View(expr string, capability PoseCapability) (PoseView, error) {
	view, ok := s.views[expr]
	if !ok {
		return nil, errors.Errorf("no prims at %q", expr)
	}
	view.capability = capability
	return view, nil
}

// capturingVisualizer records the last flat point list it was shown.
type capturingVisualizer struct {
	calls  int
	points []r3.Vector
}

func (v *capturingVisualizer) Visualize(points []r3.Vector) {
	v.calls++
	v.points = points
}
