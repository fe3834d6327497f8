package raycast

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// transformTracker maintains per-environment world transforms for tracked meshes. It
// is refreshed once per sensor update tick, strictly before the intersection kernel
// reads the buffers; absent tracking, meshes are assumed static in world space.
type transformTracker struct {
	targets []TargetConfig
	views   []PoseView
	counts  []int // meshes per environment contributed by each target
	numEnvs int

	// positions and orientations are [numEnvs][totalMeshes], written contiguously in
	// target order and consumed read-only by the kernel.
	positions    [][]r3.Vector
	orientations [][]quat.Number
}

// newTransformTracker registers a pose view per target and allocates the shared
// transform buffers.
func newTransformTracker(reg *Registry, source PoseSource, binding *meshBinding, targets []TargetConfig, numEnvs int) (*transformTracker, error) {
	views := make([]PoseView, 0, len(targets))
	for _, target := range targets {
		view, err := reg.RegisterPoseView(source, target.TargetExpr)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	tracker := &transformTracker{
		targets:      targets,
		views:        views,
		counts:       binding.perTarget,
		numEnvs:      numEnvs,
		positions:    make([][]r3.Vector, numEnvs),
		orientations: make([][]quat.Number, numEnvs),
	}
	for env := 0; env < numEnvs; env++ {
		tracker.positions[env] = make([]r3.Vector, binding.total)
		tracker.orientations[env] = make([]quat.Number, binding.total)
	}
	return tracker, nil
}

// refresh queries every target's pose view and rewrites the transform buffers.
// Global targets broadcast their poses identically into each environment's slots;
// local targets are unflattened from interleaved discovery order.
func (t *transformTracker) refresh() error {
	offset := 0
	for i, view := range t.views {
		positions, orientations, err := view.Poses(nil)
		if err != nil {
			return errors.Wrapf(err, "querying poses for target %q", t.targets[i].TargetExpr)
		}
		count := t.counts[i]
		if t.targets[i].IsGlobal {
			if len(positions) != count {
				return errors.Errorf("target %q pose view returned %d poses, expected %d",
					t.targets[i].TargetExpr, len(positions), count)
			}
			for env := 0; env < t.numEnvs; env++ {
				copy(t.positions[env][offset:offset+count], positions)
				copy(t.orientations[env][offset:offset+count], orientations)
			}
		} else {
			if len(positions) != count*t.numEnvs {
				return errors.Errorf("target %q pose view returned %d poses, expected %d",
					t.targets[i].TargetExpr, len(positions), count*t.numEnvs)
			}
			for env := 0; env < t.numEnvs; env++ {
				copy(t.positions[env][offset:offset+count], positions[env*count:(env+1)*count])
				copy(t.orientations[env][offset:offset+count], orientations[env*count:(env+1)*count])
			}
		}
		offset += count
	}
	return nil
}
