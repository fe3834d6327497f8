package raycast

import (
	"context"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/raycast/logging"
	"go.viam.com/raycast/spatialmath"
)

// cameraConfig is a 2x2 camera with unit focal lengths and a centered principal
// point, so pixel rays leave at (1, ±0.5, ±0.5) before normalization.
func cameraConfig(dataTypes ...DataType) *Config {
	return &Config{
		SensorExpr: sensorExpr,
		Targets:    []TargetConfig{{TargetExpr: groundExpr, IsGlobal: true}},
		Pattern: &PinholeCameraPatternConfig{
			Width:              2,
			Height:             2,
			FocalLength:        10,
			HorizontalAperture: 20,
		},
		MaxDistance: 100,
		DataTypes:   dataTypes,
		Seed:        42,
	}
}

func TestNewRayCasterCameraValidation(t *testing.T) {
	logger := logging.NewTestLogger(t)
	scene, poses, _ := groundedWorld(r3.Vector{Z: 10})
	reg := NewRegistry(logger)

	// channels a ray-cast query cannot produce are rejected up front
	cfg := cameraConfig(DataTypeDistanceToCamera, "rgb")
	_, err := NewRayCasterCamera(cfg, reg, scene, poses, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot be produced by a ray-cast query")

	cfg = cameraConfig(DataType("depth_of_field"))
	_, err = NewRayCasterCamera(cfg, reg, scene, poses, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown data type")

	cfg = cameraConfig()
	_, err = NewRayCasterCamera(cfg, reg, scene, poses, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "at least one data type")

	cfg = cameraConfig(DataTypeDistanceToCamera)
	cfg.Pattern = &GridPatternConfig{Resolution: 1}
	_, err = NewRayCasterCamera(cfg, reg, scene, poses, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "pinhole camera pattern")
}

func TestRayCasterCameraUpdate(t *testing.T) {
	logger := logging.NewTestLogger(t)
	scene, poses, view := groundedWorld(r3.Vector{Z: 10})
	// pitch the camera straight down
	view.orientations[0] = spatialmath.QuatFromRPY(0, math.Pi/2, 0)

	cfg := cameraConfig(DataTypeDistanceToCamera, DataTypeDistanceToImagePlane, DataTypeNormals)
	cam, err := NewRayCasterCamera(cfg, NewRegistry(logger), scene, poses, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cam.Initialize(context.Background()), test.ShouldBeNil)

	height, width := cam.ImageShape()
	test.That(t, height, test.ShouldEqual, 2)
	test.That(t, width, test.ShouldEqual, 2)

	test.That(t, cam.Update(context.Background(), nil), test.ShouldBeNil)
	test.That(t, cam.State(), test.ShouldEqual, StateActive)

	data := cam.Data()
	test.That(t, data.Frame[0], test.ShouldEqual, 1)
	test.That(t, data.PosW[0], test.ShouldResemble, r3.Vector{Z: 10})
	test.That(t, data.ImageShape, test.ShouldResemble, [2]int{2, 2})

	// every pixel ray leaves at the same angle off axis, so the Euclidean range is
	// uniform while the image-plane distance is the flat height above the ground
	wantRange := 10 * math.Sqrt(1.5)
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			test.That(t, data.DistanceToCamera[0][row][col], test.ShouldAlmostEqual, wantRange, 1e-9)
			test.That(t, data.DistanceToImagePlane[0][row][col], test.ShouldAlmostEqual, 10, 1e-9)
			test.That(t, data.Normals[0][row][col].Z, test.ShouldAlmostEqual, 1, 1e-9)
		}
	}

	test.That(t, cam.Update(context.Background(), nil), test.ShouldBeNil)
	test.That(t, data.Frame[0], test.ShouldEqual, 2)
}

func TestRayCasterCameraChannelSelection(t *testing.T) {
	logger := logging.NewTestLogger(t)
	scene, poses, view := groundedWorld(r3.Vector{Z: 10})
	view.orientations[0] = spatialmath.QuatFromRPY(0, math.Pi/2, 0)

	cam, err := NewRayCasterCamera(cameraConfig(DataTypeDistanceToImagePlane), NewRegistry(logger), scene, poses, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cam.Initialize(context.Background()), test.ShouldBeNil)
	test.That(t, cam.Update(context.Background(), nil), test.ShouldBeNil)

	data := cam.Data()
	test.That(t, data.DistanceToCamera, test.ShouldBeNil)
	test.That(t, data.Normals, test.ShouldBeNil)
	test.That(t, data.DistanceToImagePlane[0][0][0], test.ShouldAlmostEqual, 10, 1e-9)
}

func TestRayCasterCameraConventionOffset(t *testing.T) {
	logger := logging.NewTestLogger(t)
	scene := newFakeScene()
	ceilingExpr := "/World/ceiling"
	scene.expansions[ceilingExpr] = []string{ceilingExpr}
	scene.addPlane(ceilingExpr, 500, r3.Vector{Z: 30})
	poses := newFakePoseSource()
	poses.addView(sensorExpr, PoseCapabilityRigidBody, r3.Vector{Z: 10})

	// an identity rotation in the ROS convention points the optical axis along
	// world +Z, so the camera sees the ceiling 20m above
	cfg := cameraConfig(DataTypeDistanceToImagePlane)
	cfg.Targets = []TargetConfig{{TargetExpr: ceilingExpr, IsGlobal: true}}
	cfg.Offset.Convention = ConventionROS
	cam, err := NewRayCasterCamera(cfg, NewRegistry(logger), scene, poses, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cam.Initialize(context.Background()), test.ShouldBeNil)
	test.That(t, cam.Update(context.Background(), nil), test.ShouldBeNil)

	data := cam.Data()
	for row := 0; row < 2; row++ {
		for col := 0; col < 2; col++ {
			test.That(t, data.DistanceToImagePlane[0][row][col], test.ShouldAlmostEqual, 20, 1e-9)
		}
	}
}

func TestRayCasterCameraReset(t *testing.T) {
	logger := logging.NewTestLogger(t)
	scene, poses, view := groundedWorld(r3.Vector{Z: 10}, r3.Vector{X: 50, Z: 10})
	view.orientations[0] = spatialmath.QuatFromRPY(0, math.Pi/2, 0)
	view.orientations[1] = spatialmath.QuatFromRPY(0, math.Pi/2, 0)

	cam, err := NewRayCasterCamera(cameraConfig(DataTypeDistanceToCamera), NewRegistry(logger), scene, poses, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cam.Initialize(context.Background()), test.ShouldBeNil)
	test.That(t, cam.Update(context.Background(), nil), test.ShouldBeNil)
	test.That(t, cam.Update(context.Background(), nil), test.ShouldBeNil)

	data := cam.Data()
	test.That(t, data.Frame[0], test.ShouldEqual, 2)
	test.That(t, data.Frame[1], test.ShouldEqual, 2)

	test.That(t, cam.Reset([]int{1}), test.ShouldBeNil)
	test.That(t, data.Frame[0], test.ShouldEqual, 2)
	test.That(t, data.Frame[1], test.ShouldEqual, 0)
}

func TestRayCasterCameraSetIntrinsicMatrices(t *testing.T) {
	logger := logging.NewTestLogger(t)
	scene, poses, view := groundedWorld(r3.Vector{Z: 10})
	view.orientations[0] = spatialmath.QuatFromRPY(0, math.Pi/2, 0)

	cam, err := NewRayCasterCamera(cameraConfig(DataTypeDistanceToCamera), NewRegistry(logger), scene, poses, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cam.Initialize(context.Background()), test.ShouldBeNil)
	test.That(t, cam.Update(context.Background(), nil), test.ShouldBeNil)
	test.That(t, cam.Data().DistanceToCamera[0][0][0], test.ShouldAlmostEqual, 10*math.Sqrt(1.5), 1e-9)

	// a longer focal length narrows the rays toward the optical axis
	narrow := mgl64.Mat3FromRows(
		mgl64.Vec3{10, 0, 1},
		mgl64.Vec3{0, 10, 1},
		mgl64.Vec3{0, 0, 1},
	)
	test.That(t, cam.SetIntrinsicMatrices([]mgl64.Mat3{narrow}, 100, nil), test.ShouldBeNil)
	test.That(t, cam.Data().IntrinsicMatrices[0], test.ShouldResemble, narrow)

	test.That(t, cam.Update(context.Background(), nil), test.ShouldBeNil)
	test.That(t, cam.Data().DistanceToCamera[0][0][0], test.ShouldAlmostEqual, 10*math.Sqrt(1.005), 1e-9)

	err = cam.SetIntrinsicMatrices([]mgl64.Mat3{narrow, narrow}, 100, nil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "2 intrinsic matrices for 1 instances")
}

func TestRayCasterCameraString(t *testing.T) {
	logger := logging.NewTestLogger(t)
	scene, poses, _ := groundedWorld(r3.Vector{Z: 10})
	cam, err := NewRayCasterCamera(cameraConfig(DataTypeDistanceToCamera), NewRegistry(logger), scene, poses, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cam.Initialize(context.Background()), test.ShouldBeNil)

	summary := cam.String()
	test.That(t, summary, test.ShouldContainSubstring, "Ray-caster-camera @")
	test.That(t, summary, test.ShouldContainSubstring, "image shape          : (2, 2)")
}
