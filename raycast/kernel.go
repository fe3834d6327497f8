package raycast

import (
	"context"
	"fmt"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/raycast/spatialmath"
	"go.viam.com/raycast/utils"
)

// CastOptions configure optional kernel inputs and outputs.
type CastOptions struct {
	// MeshPositions and MeshOrientations, when both non-nil, treat each mesh's
	// geometry as rigidly transformed by the corresponding pose before the test. The
	// mesh BVH is never rebuilt; the query ray is transformed instead. Shapes must
	// match the mesh-id table.
	MeshPositions    [][]r3.Vector
	MeshOrientations [][]quat.Number
	// WantDistances populates HitDistances in the result.
	WantDistances bool
	// WantNormals populates HitNormals in the result.
	WantNormals bool
}

// CastResult holds per-ray outputs of one kernel invocation.
type CastResult struct {
	// HitPositions is the nearest intersection per ray, or the capped miss point
	// origin + maxDist*direction when nothing is within range.
	HitPositions [][]r3.Vector
	// HitDistances is the ray parameter at the hit; exactly maxDist means no hit.
	// Nil unless requested.
	HitDistances [][]float64
	// HitNormals is the surface normal at the hit, zero on a miss. Nil unless
	// requested.
	HitNormals [][]r3.Vector
	// HitMeshIndex is the environment-local mesh slot index that produced the hit,
	// -1 on a miss.
	HitMeshIndex [][]int
}

// CastDynamicMeshes computes, for every ray, the nearest intersection against every
// mesh bound to that ray's environment within [0, maxDist]. Rays are batched as
// [instance][ray]; mesh ids as [instance][meshSlot]. Directions need not be
// normalized: distances are in units of each direction's length. The batch is
// parallelized across instances. Mismatched input shapes panic, as they indicate an
// invariant violation upstream.
func (r *Registry) CastDynamicMeshes(
	ctx context.Context,
	rayStarts, rayDirections [][]r3.Vector,
	meshIDs [][]uint64,
	maxDist float64,
	opts CastOptions,
) CastResult {
	checkCastShapes(rayStarts, rayDirections, meshIDs, opts)
	numInstances := len(rayStarts)

	meshes := r.resolveMeshes(meshIDs)

	result := CastResult{
		HitPositions: make([][]r3.Vector, numInstances),
		HitMeshIndex: make([][]int, numInstances),
	}
	if opts.WantDistances {
		result.HitDistances = make([][]float64, numInstances)
	}
	if opts.WantNormals {
		result.HitNormals = make([][]r3.Vector, numInstances)
	}

	//nolint:errcheck // the group worker never returns an error
	utils.GroupWorkParallel(
		ctx,
		numInstances,
		func(groupSize int) {},
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			return func(memberNum, workNum int) {
				castInstance(workNum, rayStarts[workNum], rayDirections[workNum], meshes[workNum], maxDist, opts, &result)
			}, nil
		},
	)
	return result
}

// castInstance casts all of one instance's rays against its bound meshes.
func castInstance(
	instance int,
	starts, dirs []r3.Vector,
	meshes []*spatialmath.Mesh,
	maxDist float64,
	opts CastOptions,
	result *CastResult,
) {
	numRays := len(starts)
	hits := make([]r3.Vector, numRays)
	indices := make([]int, numRays)
	var dists []float64
	if opts.WantDistances {
		dists = make([]float64, numRays)
	}
	var normals []r3.Vector
	if opts.WantNormals {
		normals = make([]r3.Vector, numRays)
	}

	transformed := opts.MeshPositions != nil && opts.MeshOrientations != nil
	for ray := 0; ray < numRays; ray++ {
		origin, dir := starts[ray], dirs[ray]
		bestDist := maxDist
		bestIdx := -1
		var bestNormal r3.Vector
		for slot, mesh := range meshes {
			if mesh == nil {
				continue
			}
			queryOrigin, queryDir := origin, dir
			var meshOri quat.Number
			if transformed {
				meshOri = opts.MeshOrientations[instance][slot]
				pose := spatialmath.NewPose(opts.MeshPositions[instance][slot], meshOri)
				queryOrigin = pose.InverseTransformPoint(origin)
				queryDir = spatialmath.QuatApply(quat.Conj(meshOri), dir)
			}
			dist, normal, ok := mesh.RayIntersect(queryOrigin, queryDir, bestDist)
			if !ok {
				continue
			}
			bestDist = dist
			bestIdx = slot
			if transformed {
				normal = spatialmath.QuatApply(meshOri, normal)
			}
			bestNormal = normal
		}

		if bestIdx == -1 {
			// capped miss point at exactly the maximum range, never a sentinel
			hits[ray] = origin.Add(dir.Mul(maxDist))
			indices[ray] = -1
			if dists != nil {
				dists[ray] = maxDist
			}
			continue
		}
		hits[ray] = origin.Add(dir.Mul(bestDist))
		indices[ray] = bestIdx
		if dists != nil {
			dists[ray] = bestDist
		}
		if normals != nil {
			normals[ray] = bestNormal
		}
	}

	result.HitPositions[instance] = hits
	result.HitMeshIndex[instance] = indices
	if dists != nil {
		result.HitDistances[instance] = dists
	}
	if normals != nil {
		result.HitNormals[instance] = normals
	}
}

// resolveMeshes maps the packed id table to geometry under a single lock acquisition.
func (r *Registry) resolveMeshes(meshIDs [][]uint64) [][]*spatialmath.Mesh {
	r.mu.Lock()
	defer r.mu.Unlock()
	meshes := make([][]*spatialmath.Mesh, len(meshIDs))
	for i, row := range meshIDs {
		meshes[i] = make([]*spatialmath.Mesh, len(row))
		for j, id := range row {
			if handle, ok := r.byID[id]; ok {
				meshes[i][j] = handle.Mesh()
			}
		}
	}
	return meshes
}

func checkCastShapes(rayStarts, rayDirections [][]r3.Vector, meshIDs [][]uint64, opts CastOptions) {
	if len(rayDirections) != len(rayStarts) || len(meshIDs) != len(rayStarts) {
		panic(fmt.Sprintf("raycast: mismatched instance counts: %d starts, %d directions, %d mesh rows",
			len(rayStarts), len(rayDirections), len(meshIDs)))
	}
	for i := range rayStarts {
		if len(rayDirections[i]) != len(rayStarts[i]) {
			panic(fmt.Sprintf("raycast: instance %d has %d starts but %d directions",
				i, len(rayStarts[i]), len(rayDirections[i])))
		}
	}
	hasPos, hasOri := opts.MeshPositions != nil, opts.MeshOrientations != nil
	if hasPos != hasOri {
		panic("raycast: mesh positions and orientations must be supplied together")
	}
	if hasPos {
		if len(opts.MeshPositions) != len(meshIDs) || len(opts.MeshOrientations) != len(meshIDs) {
			panic(fmt.Sprintf("raycast: mismatched transform rows: %d mesh rows, %d positions, %d orientations",
				len(meshIDs), len(opts.MeshPositions), len(opts.MeshOrientations)))
		}
		for i := range meshIDs {
			if len(opts.MeshPositions[i]) != len(meshIDs[i]) || len(opts.MeshOrientations[i]) != len(meshIDs[i]) {
				panic(fmt.Sprintf("raycast: instance %d has %d meshes but %d/%d transforms",
					i, len(meshIDs[i]), len(opts.MeshPositions[i]), len(opts.MeshOrientations[i])))
			}
		}
	}
}
