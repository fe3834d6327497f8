package raycast

import (
	"context"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/raycast/logging"
	"go.viam.com/raycast/spatialmath"
	"go.viam.com/raycast/utils"
)

// loadPlane registers a single plane mesh and returns its packed id.
func loadPlane(t *testing.T, reg *Registry, scene *fakeScene, expr string, half float64, offset r3.Vector) uint64 {
	t.Helper()
	scene.expansions[expr] = []string{expr}
	scene.addPlane(expr, half, offset)
	perEnv, _, err := reg.ResolveOrLoad(scene, TargetConfig{TargetExpr: expr, IsGlobal: true}, 1)
	test.That(t, err, test.ShouldBeNil)
	return perEnv[0][0].ID()
}

func TestCastDynamicMeshesHitAndMiss(t *testing.T) {
	logger := logging.NewTestLogger(t)
	reg := NewRegistry(logger)
	scene := newFakeScene()
	ground := loadPlane(t, reg, scene, "/World/ground", 5, r3.Vector{})

	starts := [][]r3.Vector{{
		{X: 0, Y: 0, Z: 10},  // straight above the plane
		{X: 20, Y: 0, Z: 10}, // outside the plane extent
	}}
	dirs := [][]r3.Vector{{
		{Z: -1},
		{Z: -1},
	}}
	result := reg.CastDynamicMeshes(
		context.Background(), starts, dirs, [][]uint64{{ground}}, 100,
		CastOptions{WantDistances: true, WantNormals: true},
	)

	test.That(t, result.HitPositions[0][0], test.ShouldResemble, r3.Vector{X: 0, Y: 0, Z: 0})
	test.That(t, result.HitDistances[0][0], test.ShouldAlmostEqual, 10)
	test.That(t, result.HitMeshIndex[0][0], test.ShouldEqual, 0)
	test.That(t, result.HitNormals[0][0].Z, test.ShouldAlmostEqual, 1)

	// misses report the capped point at exactly maximum range, never a sentinel
	test.That(t, result.HitPositions[0][1], test.ShouldResemble, r3.Vector{X: 20, Y: 0, Z: -90})
	test.That(t, result.HitDistances[0][1], test.ShouldEqual, 100)
	test.That(t, result.HitMeshIndex[0][1], test.ShouldEqual, -1)
	test.That(t, result.HitNormals[0][1], test.ShouldResemble, r3.Vector{})
}

func TestCastDynamicMeshesNearestOfSeveral(t *testing.T) {
	logger := logging.NewTestLogger(t)
	reg := NewRegistry(logger)
	scene := newFakeScene()
	low := loadPlane(t, reg, scene, "/World/low", 5, r3.Vector{})
	high := loadPlane(t, reg, scene, "/World/high", 5, r3.Vector{Z: 4})

	starts := [][]r3.Vector{{{Z: 10}}}
	dirs := [][]r3.Vector{{{Z: -1}}}
	result := reg.CastDynamicMeshes(
		context.Background(), starts, dirs, [][]uint64{{low, high}}, 100,
		CastOptions{WantDistances: true},
	)

	// slot 1 is nearer along the ray
	test.That(t, result.HitDistances[0][0], test.ShouldAlmostEqual, 6)
	test.That(t, result.HitMeshIndex[0][0], test.ShouldEqual, 1)
}

func TestCastDynamicMeshesMaxDistanceCutoff(t *testing.T) {
	logger := logging.NewTestLogger(t)
	reg := NewRegistry(logger)
	scene := newFakeScene()
	ground := loadPlane(t, reg, scene, "/World/ground", 5, r3.Vector{})

	starts := [][]r3.Vector{{{Z: 10}}}
	dirs := [][]r3.Vector{{{Z: -1}}}
	result := reg.CastDynamicMeshes(
		context.Background(), starts, dirs, [][]uint64{{ground}}, 8,
		CastOptions{WantDistances: true},
	)

	test.That(t, result.HitMeshIndex[0][0], test.ShouldEqual, -1)
	test.That(t, result.HitDistances[0][0], test.ShouldEqual, 8)
	test.That(t, result.HitPositions[0][0], test.ShouldResemble, r3.Vector{Z: 2})
}

func TestCastDynamicMeshesTransformed(t *testing.T) {
	logger := logging.NewTestLogger(t)
	reg := NewRegistry(logger)
	scene := newFakeScene()
	ground := loadPlane(t, reg, scene, "/World/ground", 5, r3.Vector{})

	starts := [][]r3.Vector{{{Z: 10}}}
	dirs := [][]r3.Vector{{{Z: -1}}}

	// shift the plane up by 3 without touching its geometry
	opts := CastOptions{
		MeshPositions:    [][]r3.Vector{{{Z: 3}}},
		MeshOrientations: [][]quat.Number{{spatialmath.NewZeroQuaternion()}},
		WantDistances:    true,
		WantNormals:      true,
	}
	result := reg.CastDynamicMeshes(context.Background(), starts, dirs, [][]uint64{{ground}}, 100, opts)
	test.That(t, result.HitDistances[0][0], test.ShouldAlmostEqual, 7)
	test.That(t, result.HitPositions[0][0].Z, test.ShouldAlmostEqual, 3)

	// rotate the plane a quarter turn about X so it stands vertically in the
	// world x-z plane, then shoot at it sideways
	quarterX := spatialmath.QuatFromRPY(math.Pi/2, 0, 0)
	opts.MeshPositions = [][]r3.Vector{{{}}}
	opts.MeshOrientations = [][]quat.Number{{quarterX}}
	sideStarts := [][]r3.Vector{{{X: 0, Y: -10, Z: 0}}}
	sideDirs := [][]r3.Vector{{{Y: 1}}}
	result = reg.CastDynamicMeshes(context.Background(), sideStarts, sideDirs, [][]uint64{{ground}}, 100, opts)
	test.That(t, result.HitDistances[0][0], test.ShouldAlmostEqual, 10, 1e-6)
	// the normal is rotated back into world space
	test.That(t, result.HitNormals[0][0].Y, test.ShouldAlmostEqual, -1, 1e-6)
}

func TestCastDynamicMeshesShapePanics(t *testing.T) {
	logger := logging.NewTestLogger(t)
	reg := NewRegistry(logger)
	ctx := context.Background()

	test.That(t, func() {
		reg.CastDynamicMeshes(ctx, [][]r3.Vector{{{}}}, [][]r3.Vector{}, [][]uint64{{}}, 1, CastOptions{})
	}, test.ShouldPanic)

	test.That(t, func() {
		reg.CastDynamicMeshes(ctx,
			[][]r3.Vector{{{}, {}}},
			[][]r3.Vector{{{}}},
			[][]uint64{{}}, 1, CastOptions{})
	}, test.ShouldPanic)

	test.That(t, func() {
		reg.CastDynamicMeshes(ctx,
			[][]r3.Vector{{{}}},
			[][]r3.Vector{{{}}},
			[][]uint64{{1}}, 1,
			CastOptions{MeshPositions: [][]r3.Vector{{{}}}})
	}, test.ShouldPanic)

	test.That(t, func() {
		reg.CastDynamicMeshes(ctx,
			[][]r3.Vector{{{}}},
			[][]r3.Vector{{{}}},
			[][]uint64{{1, 2}}, 1,
			CastOptions{
				MeshPositions:    [][]r3.Vector{{{}}},
				MeshOrientations: [][]quat.Number{{spatialmath.NewZeroQuaternion()}},
			})
	}, test.ShouldPanic)
}

func TestCastDynamicMeshesParallelInstances(t *testing.T) {
	logger := logging.NewTestLogger(t)
	reg := NewRegistry(logger)
	scene := newFakeScene()
	ground := loadPlane(t, reg, scene, "/World/ground", 100, r3.Vector{})

	const numInstances = 64
	starts := make([][]r3.Vector, numInstances)
	dirs := make([][]r3.Vector, numInstances)
	ids := make([][]uint64, numInstances)
	for i := range starts {
		starts[i] = []r3.Vector{{X: float64(i), Z: float64(i + 1)}}
		dirs[i] = []r3.Vector{{Z: -1}}
		ids[i] = []uint64{ground}
	}
	result := reg.CastDynamicMeshes(context.Background(), starts, dirs, ids, 1000, CastOptions{WantDistances: true})
	for i := 0; i < numInstances; i++ {
		test.That(t, result.HitDistances[i][0], test.ShouldAlmostEqual, float64(i+1))
		test.That(t, result.HitPositions[i][0].X, test.ShouldAlmostEqual, float64(i))
	}
}

func TestCastDynamicMeshesFewerInstancesThanWorkers(t *testing.T) {
	prev := utils.ParallelFactor
	utils.ParallelFactor = 8
	defer func() { utils.ParallelFactor = prev }()

	logger := logging.NewTestLogger(t)
	reg := NewRegistry(logger)
	scene := newFakeScene()
	ground := loadPlane(t, reg, scene, "/World/ground", 5, r3.Vector{})

	result := reg.CastDynamicMeshes(context.Background(),
		[][]r3.Vector{{{Z: 10}}},
		[][]r3.Vector{{{Z: -1}}},
		[][]uint64{{ground}},
		100, CastOptions{WantDistances: true})
	test.That(t, result.HitPositions[0], test.ShouldNotBeNil)
	test.That(t, result.HitDistances[0][0], test.ShouldAlmostEqual, 10)
	test.That(t, result.HitMeshIndex[0][0], test.ShouldEqual, 0)
}
