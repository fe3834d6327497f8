package raycast

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// meshBinding is a per-sensor index table over registry meshes: for each environment,
// the resolved handle lists of every configured target concatenated in configuration
// order, plus the packed numeric-id table consumed by the intersection kernel.
type meshBinding struct {
	handles [][]*MeshHandle // [numEnvs][meshesPerEnv]
	ids     [][]uint64      // [numEnvs][meshesPerEnv]
	// perTarget is the meshes-per-environment count contributed by each target, in
	// target order; the tracker uses it to compute slot offsets.
	perTarget []int
	total     int
}

// bindTargets resolves every target through the registry and builds the sensor's
// binding table. The per-environment mesh count must be identical across
// environments; anything else is a configuration error.
func bindTargets(reg *Registry, scene Scene, targets []TargetConfig, numEnvs int) (*meshBinding, error) {
	if len(targets) == 0 {
		return nil, errors.New("no mesh targets configured")
	}
	perTargetEnvs := make([][][]*MeshHandle, 0, len(targets))
	perTarget := make([]int, 0, len(targets))
	total := 0
	resolved := 0
	// resolve every target before failing so a broken configuration reports all of
	// its bad expressions at once
	var resolveErr error
	for _, target := range targets {
		perEnv, meshesPerEnv, err := reg.ResolveOrLoad(scene, target, numEnvs)
		if err != nil {
			resolveErr = multierr.Append(resolveErr, errors.Wrapf(err, "resolving target %q", target.TargetExpr))
			continue
		}
		if meshesPerEnv > 0 {
			resolved++
		}
		perTargetEnvs = append(perTargetEnvs, perEnv)
		perTarget = append(perTarget, meshesPerEnv)
		total += meshesPerEnv
	}
	if resolveErr != nil {
		return nil, resolveErr
	}
	if resolved == 0 {
		return nil, errors.New("no meshes found for ray-casting, check the configured target expressions")
	}

	binding := &meshBinding{
		handles:   make([][]*MeshHandle, numEnvs),
		ids:       make([][]uint64, numEnvs),
		perTarget: perTarget,
		total:     total,
	}
	for env := 0; env < numEnvs; env++ {
		handles := make([]*MeshHandle, 0, total)
		for _, perEnv := range perTargetEnvs {
			handles = append(handles, perEnv[env]...)
		}
		if len(handles) != total {
			return nil, errors.Errorf(
				"environment %d resolved %d meshes, expected %d; mesh count must be constant across environments",
				env, len(handles), total)
		}
		ids := make([]uint64, len(handles))
		for i, h := range handles {
			ids[i] = h.ID()
		}
		binding.handles[env] = handles
		binding.ids[env] = ids
	}
	return binding, nil
}
