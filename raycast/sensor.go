package raycast

import (
	"context"
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/raycast/logging"
	"go.viam.com/raycast/pointcloud"
	"go.viam.com/raycast/spatialmath"
)

// RayCaster is a ray-casting sensor: it casts a fixed local ray pattern from each
// sensor instance against the configured mesh targets every update tick and exposes
// per-ray world hit positions, distances and hit-mesh indices.
type RayCaster struct {
	*engine

	data       RayCasterData
	visualizer PointVisualizer
}

// NewRayCaster constructs a ray-casting sensor from its configuration. The registry
// is shared across sensors; geometry registered by one sensor is reused by others.
// The sensor holds no scene references until Initialize.
func NewRayCaster(
	cfg *Config,
	registry *Registry,
	scene Scene,
	poses PoseSource,
	logger logging.Logger,
) (*RayCaster, error) {
	if err := cfg.Validate("raycaster"); err != nil {
		return nil, err
	}
	core, err := newEngine(cfg, registry, scene, poses, logger)
	if err != nil {
		return nil, err
	}
	return &RayCaster{engine: core}, nil
}

// SetVisualizer attaches an optional debug sink that receives the flat list of world
// hit points after every update.
func (rc *RayCaster) SetVisualizer(v PointVisualizer) {
	rc.visualizer = v
}

// Initialize resolves the sensor view, generates the ray pattern, loads and binds
// the target meshes, and allocates output buffers. Any failure is fatal to the
// sensor; there are no retries.
func (rc *RayCaster) Initialize(ctx context.Context) error {
	localStarts, localDirs, err := rc.cfg.Pattern.Generate()
	if err != nil {
		return errors.Wrap(err, "generating ray pattern")
	}
	offsetRot := rc.cfg.Offset.rotation()
	for i := range localDirs {
		localDirs[i] = spatialmath.QuatApply(offsetRot, localDirs[i])
		localStarts[i] = localStarts[i].Add(rc.cfg.Offset.Pos)
	}

	// The sensor view determines the instance count, so resolve it first, then
	// repeat the pattern per instance.
	view, err := rc.registry.RegisterPoseView(rc.poses, rc.cfg.SensorExpr)
	if err != nil {
		return errors.Wrapf(err, "resolving sensor view for %q", rc.cfg.SensorExpr)
	}
	numEnvs := view.Count()
	perInstStarts := make([][]r3.Vector, numEnvs)
	perInstDirs := make([][]r3.Vector, numEnvs)
	for i := 0; i < numEnvs; i++ {
		perInstStarts[i] = localStarts
		perInstDirs[i] = localDirs
	}
	if err := rc.engine.initialize(perInstStarts, perInstDirs); err != nil {
		return err
	}

	rc.data = RayCasterData{
		PosW:         make([]r3.Vector, rc.numEnvs),
		QuatW:        make([]quat.Number, rc.numEnvs),
		VelW:         make([]r3.Vector, rc.numEnvs),
		AngVelW:      make([]r3.Vector, rc.numEnvs),
		RayHitsW:     make([][]r3.Vector, rc.numEnvs),
		Distances:    make([][]float64, rc.numEnvs),
		HitMeshIndex: make([][]int, rc.numEnvs),
	}
	for i := 0; i < rc.numEnvs; i++ {
		rc.data.RayHitsW[i] = make([]r3.Vector, rc.numRays)
		rc.data.Distances[i] = make([]float64, rc.numRays)
		rc.data.HitMeshIndex[i] = make([]int, rc.numRays)
	}
	rc.logger.Infof("initialized ray caster %q: %d instances, %d meshes/env, %d rays/sensor",
		rc.cfg.SensorExpr, rc.numEnvs, rc.totalMeshesPerEnv(), rc.numRays)
	return nil
}

// Reset resamples the drift offsets of the given environment subset (nil means all)
// within the configured range. Output buffers and lifecycle state are untouched.
func (rc *RayCaster) Reset(envIDs []int) error {
	if err := rc.checkUpdatable(); err != nil {
		return err
	}
	ids, err := rc.resolveEnvIDs(envIDs)
	if err != nil {
		return err
	}
	rc.resampleDrift(ids)
	return nil
}

// Update refreshes the outputs of the given instance subset (nil means all).
// Instances outside the subset retain their previous outputs: last write wins per
// instance index, and consumers relying on sub-sampled update rates see stale data
// by design of the update contract.
func (rc *RayCaster) Update(ctx context.Context, envIDs []int) error {
	if err := rc.checkUpdatable(); err != nil {
		return err
	}
	ids, err := rc.resolveEnvIDs(envIDs)
	if err != nil {
		return err
	}

	positions, orientations, err := rc.sensorPoses(ids)
	if err != nil {
		return err
	}
	linear, angular, err := rc.view.Velocities(ids)
	if err != nil {
		return errors.Wrap(err, "querying sensor velocities")
	}
	for i, id := range ids {
		rc.data.PosW[id] = positions[i]
		rc.data.QuatW[id] = orientations[i]
		rc.data.VelW[id] = linear[i]
		rc.data.AngVelW[id] = angular[i]
	}

	rayStarts, rayDirs := rc.worldRays(ids, positions, orientations, rc.cfg.AttachYawOnly)

	// Mesh transforms must be current before the kernel reads them.
	if err := rc.refreshTracker(); err != nil {
		return err
	}

	result := rc.registry.CastDynamicMeshes(
		ctx, rayStarts, rayDirs, rc.meshIDsFor(ids), rc.cfg.MaxDistance,
		rc.castOptionsFor(ids, true, false),
	)
	for i, id := range ids {
		copy(rc.data.RayHitsW[id], result.HitPositions[i])
		copy(rc.data.Distances[id], result.HitDistances[i])
		copy(rc.data.HitMeshIndex[id], result.HitMeshIndex[i])
	}

	rc.state = StateActive
	if rc.visualizer != nil {
		flat := make([]r3.Vector, 0, rc.numEnvs*rc.numRays)
		for _, hits := range rc.data.RayHitsW {
			flat = append(flat, hits...)
		}
		rc.visualizer.Visualize(flat)
	}
	return nil
}

// Invalidate clears all scene references on teardown. The sensor must be
// re-initialized before further use.
func (rc *RayCaster) Invalidate() {
	rc.engine.invalidate()
}

// State returns the sensor's lifecycle state.
func (rc *RayCaster) State() State {
	return rc.state
}

// Data returns the sensor's output buffers. The returned struct is valid to read
// until the next Update call for the same instances; there is no double buffering.
func (rc *RayCaster) Data() *RayCasterData {
	return &rc.data
}

// NumInstances returns the number of sensor instances.
func (rc *RayCaster) NumInstances() int { return rc.numEnvs }

// NumRays returns the number of rays per sensor instance.
func (rc *RayCaster) NumRays() int { return rc.numRays }

// PointCloud collects one instance's current hit points into a point cloud,
// skipping rays that hit nothing within range.
func (rc *RayCaster) PointCloud(instance int) (pointcloud.PointCloud, error) {
	if instance < 0 || instance >= rc.numEnvs {
		return nil, errors.Errorf("instance index %d out of range [0, %d)", instance, rc.numEnvs)
	}
	pc := pointcloud.New()
	for ray, hit := range rc.data.RayHitsW[instance] {
		if rc.data.HitMeshIndex[instance][ray] == -1 {
			continue
		}
		d := pointcloud.NewValueData(rc.data.Distances[instance][ray])
		if err := pc.Set(pointcloud.NewVector(hit.X, hit.Y, hit.Z), d); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

// String returns a summary of the sensor.
func (rc *RayCaster) String() string {
	return fmt.Sprintf(
		"Ray-caster @ %q:\n"+
			"\tstate                : %s\n"+
			"\tnumber of meshes     : %d x %d\n"+
			"\tnumber of sensors    : %d\n"+
			"\tnumber of rays/sensor: %d\n"+
			"\ttotal number of rays : %d",
		rc.cfg.SensorExpr, rc.state, rc.numEnvs, rc.totalMeshesPerEnv(),
		rc.numEnvs, rc.numRays, rc.numRays*rc.numEnvs,
	)
}
