package raycast

import (
	"math/rand"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/raycast/logging"
	"go.viam.com/raycast/spatialmath"
	"go.viam.com/raycast/utils"
)

// State is the lifecycle state of a sensor instance.
type State int

// Sensor lifecycle states. Reset affects only drift and frame counters, never the
// state machine.
const (
	// StateUninitialized means the sensor has been constructed but holds no scene
	// references.
	StateUninitialized State = iota
	// StateInitialized means the ray pattern and mesh binding are resolved.
	StateInitialized
	// StateActive means the sensor is receiving periodic updates.
	StateActive
	// StateInvalidated means scene references were cleared on teardown; the sensor
	// must be re-initialized before further use.
	StateInvalidated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateActive:
		return "active"
	case StateInvalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// engine is the shared core of the two sensor front-ends: it owns the resolved ray
// pattern, the mesh binding, the transform tracker, the sensor pose view, and drift.
// The front-ends differ only in ray-pattern generation and output reshaping.
type engine struct {
	cfg      *Config
	logger   logging.Logger
	registry *Registry
	scene    Scene
	poses    PoseSource

	state   State
	targets []TargetConfig

	view    PoseView
	numEnvs int
	numRays int
	// rayStarts and rayDirections are sensor-local, offset applied, repeated per
	// instance: [numEnvs][numRays].
	rayStarts     [][]r3.Vector
	rayDirections [][]r3.Vector

	binding *meshBinding
	tracker *transformTracker

	drift []r3.Vector
	rng   *rand.Rand
}

func newEngine(cfg *Config, registry *Registry, scene Scene, poses PoseSource, logger logging.Logger) (*engine, error) {
	if registry == nil {
		return nil, errors.New("a mesh registry is required")
	}
	if scene == nil || poses == nil {
		return nil, errors.New("scene and pose collaborators are required")
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &engine{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		scene:    scene,
		poses:    poses,
		state:    StateUninitialized,
		targets:  cfg.normalizedTargets(),
		rng:      rand.New(rand.NewSource(seed)),
	}, nil
}

// initialize resolves the sensor pose view, the mesh binding and, when tracking is
// enabled, the transform tracker. The caller supplies local rays per instance.
func (e *engine) initialize(localStarts, localDirs [][]r3.Vector) error {
	if e.state == StateInitialized || e.state == StateActive {
		return errors.Errorf("sensor for %q already initialized", e.cfg.SensorExpr)
	}

	view, err := e.registry.RegisterPoseView(e.poses, e.cfg.SensorExpr)
	if err != nil {
		return errors.Wrapf(err, "resolving sensor view for %q", e.cfg.SensorExpr)
	}
	e.view = view
	e.numEnvs = view.Count()
	if e.numEnvs == 0 {
		return errors.Errorf("failed to find a prim at path expression: %s", e.cfg.SensorExpr)
	}
	if len(localStarts) != e.numEnvs || len(localDirs) != e.numEnvs {
		return errors.Errorf("ray pattern produced %d instances, sensor view has %d", len(localStarts), e.numEnvs)
	}
	e.numRays = len(localDirs[0])
	e.rayStarts = localStarts
	e.rayDirections = localDirs

	binding, err := bindTargets(e.registry, e.scene, e.targets, e.numEnvs)
	if err != nil {
		return err
	}
	e.binding = binding

	if e.cfg.TrackMeshTransforms {
		tracker, err := newTransformTracker(e.registry, e.poses, binding, e.targets, e.numEnvs)
		if err != nil {
			return err
		}
		e.tracker = tracker
	}

	e.drift = make([]r3.Vector, e.numEnvs)
	e.state = StateInitialized
	return nil
}

// invalidate clears scene references; the engine must be re-initialized before use.
func (e *engine) invalidate() {
	e.view = nil
	e.binding = nil
	e.tracker = nil
	e.state = StateInvalidated
}

func (e *engine) checkUpdatable() error {
	if e.state != StateInitialized && e.state != StateActive {
		return errors.Errorf("sensor for %q is %s, initialize it before updating", e.cfg.SensorExpr, e.state)
	}
	return nil
}

// resolveEnvIDs normalizes a nil subset into all instance indices.
func (e *engine) resolveEnvIDs(envIDs []int) ([]int, error) {
	if envIDs == nil {
		all := make([]int, e.numEnvs)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	for _, id := range envIDs {
		if id < 0 || id >= e.numEnvs {
			return nil, errors.Errorf("environment index %d out of range [0, %d)", id, e.numEnvs)
		}
	}
	return envIDs, nil
}

// resampleDrift redraws the per-environment drift offsets for the given subset
// within the configured range.
func (e *engine) resampleDrift(envIDs []int) {
	low, high := e.cfg.DriftRange[0], e.cfg.DriftRange[1]
	for _, id := range envIDs {
		e.drift[id] = r3.Vector{
			X: utils.SampleUniformRange(low, high, e.rng),
			Y: utils.SampleUniformRange(low, high, e.rng),
			Z: utils.SampleUniformRange(low, high, e.rng),
		}
	}
}

// sensorPoses queries the pose source for the subset and applies drift to positions.
func (e *engine) sensorPoses(envIDs []int) ([]r3.Vector, []quat.Number, error) {
	positions, orientations, err := e.view.Poses(envIDs)
	if err != nil {
		return nil, nil, errors.Wrap(err, "querying sensor poses")
	}
	if len(positions) != len(envIDs) || len(orientations) != len(envIDs) {
		return nil, nil, errors.Errorf("pose view returned %d poses for %d instances", len(positions), len(envIDs))
	}
	drifted := make([]r3.Vector, len(envIDs))
	for i, id := range envIDs {
		drifted[i] = positions[i].Add(e.drift[id])
	}
	return drifted, orientations, nil
}

// worldRays transforms the local ray pattern of the selected instances into world
// space. Yaw-only mode rotates by just the heading component of the orientation.
func (e *engine) worldRays(envIDs []int, positions []r3.Vector, orientations []quat.Number, yawOnly bool) ([][]r3.Vector, [][]r3.Vector) {
	starts := make([][]r3.Vector, len(envIDs))
	dirs := make([][]r3.Vector, len(envIDs))
	for i, id := range envIDs {
		rot := orientations[i]
		if yawOnly {
			rot = spatialmath.QuatYaw(rot)
		}
		instStarts := make([]r3.Vector, e.numRays)
		instDirs := make([]r3.Vector, e.numRays)
		for ray := 0; ray < e.numRays; ray++ {
			instStarts[ray] = positions[i].Add(spatialmath.QuatApply(rot, e.rayStarts[id][ray]))
			instDirs[ray] = spatialmath.QuatApply(rot, e.rayDirections[id][ray])
		}
		starts[i] = instStarts
		dirs[i] = instDirs
	}
	return starts, dirs
}

// castOptionsFor assembles kernel options for the subset: the tracker buffers are
// sliced per updated instance when tracking is enabled.
func (e *engine) castOptionsFor(envIDs []int, wantDistances, wantNormals bool) CastOptions {
	opts := CastOptions{WantDistances: wantDistances, WantNormals: wantNormals}
	if e.tracker != nil {
		opts.MeshPositions = make([][]r3.Vector, len(envIDs))
		opts.MeshOrientations = make([][]quat.Number, len(envIDs))
		for i, id := range envIDs {
			opts.MeshPositions[i] = e.tracker.positions[id]
			opts.MeshOrientations[i] = e.tracker.orientations[id]
		}
	}
	return opts
}

// meshIDsFor returns the packed id rows for the subset.
func (e *engine) meshIDsFor(envIDs []int) [][]uint64 {
	rows := make([][]uint64, len(envIDs))
	for i, id := range envIDs {
		rows[i] = e.binding.ids[id]
	}
	return rows
}

// refreshTracker updates mesh transforms; it must complete before the kernel reads
// them within the same tick.
func (e *engine) refreshTracker() error {
	if e.tracker == nil {
		return nil
	}
	return e.tracker.refresh()
}

func (e *engine) totalMeshesPerEnv() int {
	if e.binding == nil {
		return 0
	}
	return e.binding.total
}
