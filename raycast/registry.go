package raycast

import (
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/raycast/logging"
	"go.viam.com/raycast/spatialmath"
)

// MeshHandle is a non-owning reference to geometry uploaded into the registry. The
// registry owns all handles; consumers index them by numeric id.
type MeshHandle struct {
	id   uint64
	mesh *spatialmath.Mesh
	path string
}

// ID returns the packed numeric identifier used by the intersection kernel.
func (h *MeshHandle) ID() uint64 { return h.id }

// Mesh returns the uploaded geometry.
func (h *MeshHandle) Mesh() *spatialmath.Mesh { return h.mesh }

// Path returns the concrete scene path the geometry was extracted from.
func (h *MeshHandle) Path() string { return h.path }

type registryEntry struct {
	// perEnv has one ordered handle list per environment. For a global target every
	// slot references the same underlying list.
	perEnv       [][]*MeshHandle
	meshesPerEnv int
}

// Registry is the mesh registry: it caches resolved target expressions so that
// multiple sensor instances and environment replicas share uploaded geometry instead
// of re-loading it. It is owned by the simulation context and passed by reference to
// each sensor at construction. Entries live for the registry's lifetime.
type Registry struct {
	mu     sync.Mutex
	logger logging.Logger

	entries map[string]*registryEntry
	views   map[string]PoseView
	byID    map[uint64]*MeshHandle
	nextID  uint64
}

// NewRegistry returns an empty mesh registry.
func NewRegistry(logger logging.Logger) *Registry {
	return &Registry{
		logger:  logger,
		entries: map[string]*registryEntry{},
		views:   map[string]PoseView{},
		byID:    map[uint64]*MeshHandle{},
		nextID:  1,
	}
}

// ResolveOrLoad returns the per-environment handle lists for a target expression,
// loading and caching them on first use. Concurrent sensor initializations racing to
// register the same expression serialize on the registry lock, so geometry is never
// uploaded twice.
func (r *Registry) ResolveOrLoad(scene Scene, target TargetConfig, numEnvs int) ([][]*MeshHandle, int, error) {
	if numEnvs <= 0 {
		return nil, 0, errors.Errorf("number of environments must be positive, got %d", numEnvs)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[target.TargetExpr]; ok {
		return entry.perEnv, entry.meshesPerEnv, nil
	}

	paths, err := scene.ExpandPaths(target.TargetExpr)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "expanding path expression %q", target.TargetExpr)
	}
	if len(paths) == 0 {
		return nil, 0, errors.Errorf("failed to find a prim at path expression: %s", target.TargetExpr)
	}

	// Load geometry for each path, deduplicating identical vertex sets within this
	// resolution pass so repeated obstacles share one upload.
	loadedVertices := make([][]r3.Vector, 0, len(paths))
	handles := make([]*MeshHandle, 0, len(paths))
	for _, path := range paths {
		data, err := scene.MeshAt(path)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "invalid mesh prim path %q", path)
		}
		if len(data.Vertices) == 0 || len(data.Faces) == 0 {
			return nil, 0, errors.Errorf("mesh prim %q has no geometry", path)
		}
		scale, err := scene.WorldScale(path)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "resolving world scale of %q", path)
		}
		vertices := make([]r3.Vector, len(data.Vertices))
		for i, v := range data.Vertices {
			vertices[i] = v.Mul(scale)
		}

		if idx := registeredVerticesIdx(vertices, loadedVertices); idx != -1 {
			// duplicate geometry, reference the existing upload
			loadedVertices = append(loadedVertices, nil)
			handles = append(handles, handles[idx])
			continue
		}
		mesh, err := spatialmath.NewMeshFromVertices(vertices, data.Faces)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "building mesh for %q", path)
		}
		handle := &MeshHandle{id: r.nextID, mesh: mesh, path: path}
		r.nextID++
		r.byID[handle.id] = handle
		loadedVertices = append(loadedVertices, vertices)
		handles = append(handles, handle)
		if data.Primitive {
			r.logger.Debugf("created triangulated primitive %q with %d faces", path, len(data.Faces))
		} else {
			r.logger.Debugf("read mesh prim %q with %d vertices and %d faces", path, len(vertices), len(data.Faces))
		}
	}

	entry := &registryEntry{}
	if target.IsGlobal {
		// reference the same list for every environment, no copy
		entry.perEnv = make([][]*MeshHandle, numEnvs)
		for i := range entry.perEnv {
			entry.perEnv[i] = handles
		}
		entry.meshesPerEnv = len(handles)
	} else {
		// Discovery order interleaves environments (env0_obj0, env0_obj1,
		// env1_obj0, ...), so contiguous chunks attribute meshes to environments.
		if len(handles)%numEnvs != 0 {
			return nil, 0, errors.Errorf(
				"target %q matched %d prims, not divisible across %d environments",
				target.TargetExpr, len(handles), numEnvs)
		}
		meshesPerEnv := len(handles) / numEnvs
		entry.perEnv = make([][]*MeshHandle, 0, numEnvs)
		for i := 0; i < numEnvs; i++ {
			entry.perEnv = append(entry.perEnv, handles[i*meshesPerEnv:(i+1)*meshesPerEnv])
		}
		entry.meshesPerEnv = meshesPerEnv
	}
	r.entries[target.TargetExpr] = entry
	return entry.perEnv, entry.meshesPerEnv, nil
}

// RegisterPoseView creates and caches a pose view for a target expression so its
// transforms can be tracked. The richest capability reported by the source wins;
// prims with no physics capability fall back to a generic transform view, which is
// slower but functional.
func (r *Registry) RegisterPoseView(source PoseSource, expr string) (PoseView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if view, ok := r.views[expr]; ok {
		return view, nil
	}
	capability := source.Probe(expr)
	switch capability {
	case PoseCapabilityArticulation, PoseCapabilityRigidBody:
		r.logger.Debugf("created %s view for mesh prim at path: %s", capability, expr)
	default:
		capability = PoseCapabilityTransform
		r.logger.Warnf("the prim at path %s is not a physics prim, using a generic transform view", expr)
	}
	view, err := source.View(expr, capability)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s view for %q", capability, expr)
	}
	r.views[expr] = view
	return view, nil
}

// PoseViewFor returns the cached pose view for an expression, if registered.
func (r *Registry) PoseViewFor(expr string) (PoseView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	view, ok := r.views[expr]
	return view, ok
}

// lookup resolves a packed mesh id back to its handle.
func (r *Registry) lookup(id uint64) (*MeshHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	handle, ok := r.byID[id]
	return handle, ok
}

// registeredVerticesIdx checks a vertex set against all previously loaded sets,
// returning the index of an exact match (same length, same values) or -1. Matching is
// the content fingerprint used for deduplication.
func registeredVerticesIdx(vertices []r3.Vector, registered [][]r3.Vector) int {
	for idx, reg := range registered {
		if reg == nil || len(reg) != len(vertices) {
			continue
		}
		match := true
		for i := range reg {
			if reg[i] != vertices[i] {
				match = false
				break
			}
		}
		if match {
			return idx
		}
	}
	return -1
}
