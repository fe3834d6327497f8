package raycast

import (
	"context"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/raycast/logging"
	"go.viam.com/raycast/spatialmath"
)

// RayCasterCamera is a camera-style ray-casting sensor: it derives one ray per image
// pixel from pinhole intrinsics and reshapes ray results into depth and normal
// images. It shares the engine core with RayCaster and differs only in pattern
// generation and output reshaping.
type RayCasterCamera struct {
	*engine

	pattern    *PinholeCameraPatternConfig
	camData    CameraData
	offsetPos  []r3.Vector
	offsetQuat []quat.Number
}

// NewRayCasterCamera constructs a ray-caster camera. Output channels a ray-cast
// query cannot produce (rgb, segmentation, and similar) are rejected here.
func NewRayCasterCamera(
	cfg *Config,
	registry *Registry,
	scene Scene,
	poses PoseSource,
	logger logging.Logger,
) (*RayCasterCamera, error) {
	if err := cfg.Validate("raycaster_camera"); err != nil {
		return nil, err
	}
	pattern, ok := cfg.Pattern.(*PinholeCameraPatternConfig)
	if !ok {
		return nil, errors.New("ray-caster camera requires a pinhole camera pattern configuration")
	}
	if len(cfg.DataTypes) == 0 {
		return nil, errors.New("ray-caster camera requires at least one data type")
	}
	core, err := newEngine(cfg, registry, scene, poses, logger)
	if err != nil {
		return nil, err
	}
	return &RayCasterCamera{
		engine:  core,
		pattern: pattern,
	}, nil
}

// ImageShape returns (height, width) of the camera images.
func (rcc *RayCasterCamera) ImageShape() (int, int) {
	return rcc.pattern.Height, rcc.pattern.Width
}

// Initialize resolves the camera view, computes per-instance intrinsics, generates
// per-instance rays, binds target meshes and allocates image buffers.
func (rcc *RayCasterCamera) Initialize(ctx context.Context) error {
	view, err := rcc.registry.RegisterPoseView(rcc.poses, rcc.cfg.SensorExpr)
	if err != nil {
		return errors.Wrapf(err, "resolving camera view for %q", rcc.cfg.SensorExpr)
	}
	numEnvs := view.Count()

	intrinsics := make([]mgl64.Mat3, numEnvs)
	base := rcc.pattern.Intrinsics()
	for i := range intrinsics {
		intrinsics[i] = base
	}
	dirs, err := rcc.pattern.GenerateForIntrinsics(intrinsics)
	if err != nil {
		return errors.Wrap(err, "generating camera ray pattern")
	}
	starts := make([][]r3.Vector, numEnvs)
	for i := range starts {
		starts[i] = make([]r3.Vector, len(dirs[i]))
	}
	if err := rcc.engine.initialize(starts, dirs); err != nil {
		return err
	}

	// The offset pose is expressed in the configured camera convention and applied
	// relative to the parent frame at update time.
	offsetQuat := convertOrientationToWorld(rcc.cfg.Offset.rotation(), rcc.cfg.Offset.Convention)
	rcc.offsetPos = make([]r3.Vector, rcc.numEnvs)
	rcc.offsetQuat = make([]quat.Number, rcc.numEnvs)
	for i := 0; i < rcc.numEnvs; i++ {
		rcc.offsetPos[i] = rcc.cfg.Offset.Pos
		rcc.offsetQuat[i] = offsetQuat
	}

	height, width := rcc.pattern.Height, rcc.pattern.Width
	rcc.camData = CameraData{
		PosW:              make([]r3.Vector, rcc.numEnvs),
		QuatWWorld:        make([]quat.Number, rcc.numEnvs),
		IntrinsicMatrices: intrinsics,
		ImageShape:        [2]int{height, width},
		Frame:             make([]int64, rcc.numEnvs),
	}
	if rcc.cfg.hasDataType(DataTypeDistanceToCamera) {
		rcc.camData.DistanceToCamera = newImageBuffer(rcc.numEnvs, height, width)
	}
	if rcc.cfg.hasDataType(DataTypeDistanceToImagePlane) {
		rcc.camData.DistanceToImagePlane = newImageBuffer(rcc.numEnvs, height, width)
	}
	if rcc.cfg.hasDataType(DataTypeNormals) {
		rcc.camData.Normals = make([][][]r3.Vector, rcc.numEnvs)
		for i := range rcc.camData.Normals {
			rcc.camData.Normals[i] = make([][]r3.Vector, height)
			for row := range rcc.camData.Normals[i] {
				rcc.camData.Normals[i][row] = make([]r3.Vector, width)
			}
		}
	}
	rcc.logger.Infof("initialized ray-caster camera %q: %d instances, %dx%d image, %d meshes/env",
		rcc.cfg.SensorExpr, rcc.numEnvs, height, width, rcc.totalMeshesPerEnv())
	return nil
}

// SetIntrinsicMatrices replaces the intrinsic matrices of the given instance subset
// (nil means all) and regenerates their rays.
func (rcc *RayCasterCamera) SetIntrinsicMatrices(matrices []mgl64.Mat3, focalLength float64, envIDs []int) error {
	if err := rcc.checkUpdatable(); err != nil {
		return err
	}
	ids, err := rcc.resolveEnvIDs(envIDs)
	if err != nil {
		return err
	}
	if len(matrices) != len(ids) {
		return errors.Errorf("got %d intrinsic matrices for %d instances", len(matrices), len(ids))
	}
	dirs, err := rcc.pattern.GenerateForIntrinsics(matrices)
	if err != nil {
		return err
	}
	for i, id := range ids {
		rcc.camData.IntrinsicMatrices[id] = matrices[i]
		rcc.rayDirections[id] = dirs[i]
	}
	rcc.pattern.FocalLength = focalLength
	return nil
}

// Reset resamples drift for the subset and zeroes its frame counters.
func (rcc *RayCasterCamera) Reset(envIDs []int) error {
	if err := rcc.checkUpdatable(); err != nil {
		return err
	}
	ids, err := rcc.resolveEnvIDs(envIDs)
	if err != nil {
		return err
	}
	rcc.resampleDrift(ids)
	for _, id := range ids {
		rcc.camData.Frame[id] = 0
	}
	return nil
}

// Update refreshes the image outputs of the given instance subset (nil means all);
// absent instances keep the images of their last update. Cameras always use the full
// orientation, never yaw-only.
func (rcc *RayCasterCamera) Update(ctx context.Context, envIDs []int) error {
	if err := rcc.checkUpdatable(); err != nil {
		return err
	}
	ids, err := rcc.resolveEnvIDs(envIDs)
	if err != nil {
		return err
	}
	for _, id := range ids {
		rcc.camData.Frame[id]++
	}

	positions, orientations, err := rcc.cameraWorldPoses(ids)
	if err != nil {
		return err
	}
	for i, id := range ids {
		rcc.camData.PosW[id] = positions[i]
		rcc.camData.QuatWWorld[id] = orientations[i]
	}

	rayStarts, rayDirs := rcc.worldRays(ids, positions, orientations, false)

	if err := rcc.refreshTracker(); err != nil {
		return err
	}

	wantDistance := rcc.camData.DistanceToCamera != nil || rcc.camData.DistanceToImagePlane != nil
	wantNormal := rcc.camData.Normals != nil
	result := rcc.registry.CastDynamicMeshes(
		ctx, rayStarts, rayDirs, rcc.meshIDsFor(ids), rcc.cfg.MaxDistance,
		rcc.castOptionsFor(ids, wantDistance, wantNormal),
	)

	height, width := rcc.pattern.Height, rcc.pattern.Width
	for i, id := range ids {
		if rcc.camData.DistanceToCamera != nil {
			reshapeScalarImage(result.HitDistances[i], rcc.camData.DistanceToCamera[id], height, width)
		}
		if rcc.camData.DistanceToImagePlane != nil {
			// distance along the optical axis: rotate the hit vector into the camera
			// frame and keep the forward component, rather than the raw ray distance
			invQuat := quat.Conj(orientations[i])
			planeDists := make([]float64, len(result.HitDistances[i]))
			for ray, dist := range result.HitDistances[i] {
				camLocal := spatialmath.QuatApply(invQuat, rayDirs[i][ray].Mul(dist))
				planeDists[ray] = camLocal.X
			}
			reshapeScalarImage(planeDists, rcc.camData.DistanceToImagePlane[id], height, width)
		}
		if rcc.camData.Normals != nil {
			for row := 0; row < height; row++ {
				copy(rcc.camData.Normals[id][row], result.HitNormals[i][row*width:(row+1)*width])
			}
		}
	}

	rcc.state = StateActive
	return nil
}

// Invalidate clears all scene references on teardown.
func (rcc *RayCasterCamera) Invalidate() {
	rcc.engine.invalidate()
}

// State returns the camera's lifecycle state.
func (rcc *RayCasterCamera) State() State {
	return rcc.state
}

// Data returns the camera's output buffers, valid to read until the next Update for
// the same instances.
func (rcc *RayCasterCamera) Data() *CameraData {
	return &rcc.camData
}

// cameraWorldPoses applies the offset pose, expressed relative to the parent frame,
// to the view poses of the subset. Drift applies to the parent position first.
func (rcc *RayCasterCamera) cameraWorldPoses(ids []int) ([]r3.Vector, []quat.Number, error) {
	positions, orientations, err := rcc.sensorPoses(ids)
	if err != nil {
		return nil, nil, err
	}
	outPos := make([]r3.Vector, len(ids))
	outOri := make([]quat.Number, len(ids))
	for i, id := range ids {
		outPos[i] = positions[i].Add(spatialmath.QuatApply(orientations[i], rcc.offsetPos[id]))
		outOri[i] = quat.Mul(orientations[i], rcc.offsetQuat[id])
	}
	return outPos, outOri, nil
}

// String returns a summary of the camera.
func (rcc *RayCasterCamera) String() string {
	height, width := rcc.ImageShape()
	return fmt.Sprintf(
		"Ray-caster-camera @ %q:\n"+
			"\tstate                : %s\n"+
			"\tnumber of meshes     : %d x %d\n"+
			"\tnumber of sensors    : %d\n"+
			"\tnumber of rays/sensor: %d\n"+
			"\ttotal number of rays : %d\n"+
			"\timage shape          : (%d, %d)",
		rcc.cfg.SensorExpr, rcc.state, rcc.numEnvs, rcc.totalMeshesPerEnv(),
		rcc.numEnvs, rcc.numRays, rcc.numRays*rcc.numEnvs, height, width,
	)
}

func newImageBuffer(instances, height, width int) [][][]float64 {
	buf := make([][][]float64, instances)
	for i := range buf {
		buf[i] = make([][]float64, height)
		for row := range buf[i] {
			buf[i][row] = make([]float64, width)
		}
	}
	return buf
}

func reshapeScalarImage(flat []float64, img [][]float64, height, width int) {
	for row := 0; row < height; row++ {
		copy(img[row], flat[row*width:(row+1)*width])
	}
}
