package raycast

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/raycast/spatialmath"
)

// DataType selects an output channel of a ray-caster camera.
type DataType string

// Supported camera output channels.
const (
	DataTypeDistanceToCamera     DataType = "distance_to_camera"
	DataTypeDistanceToImagePlane DataType = "distance_to_image_plane"
	DataTypeNormals              DataType = "normals"
)

// unsupportedDataTypes are channels a full render pipeline provides but a ray-cast
// query cannot.
var unsupportedDataTypes = map[DataType]bool{
	"rgb":                   true,
	"instance_segmentation": true,
	"semantic_segmentation": true,
	"motion_vectors":        true,
	"bounding_box_2d":       true,
	"bounding_box_3d":       true,
}

// OrientationConvention names the camera-frame axis convention an offset orientation
// is expressed in.
type OrientationConvention string

// Supported orientation conventions.
const (
	// ConventionWorld has forward axis +X and up axis +Z.
	ConventionWorld OrientationConvention = "world"
	// ConventionROS has forward axis +Z and up axis -Y.
	ConventionROS OrientationConvention = "ros"
	// ConventionOpenGL has forward axis -Z and up axis +Y.
	ConventionOpenGL OrientationConvention = "opengl"
)

// TargetConfig identifies one set of meshes to ray-cast against.
type TargetConfig struct {
	// TargetExpr is the scene-path expression matching the target prims.
	TargetExpr string `json:"target_expr"`
	// IsGlobal marks a target shared identically across all environments rather than
	// instantiated per environment.
	IsGlobal bool `json:"is_global"`
}

// OffsetConfig is a fixed sensor-local offset pose applied to the ray pattern.
type OffsetConfig struct {
	Pos r3.Vector `json:"pos"`
	// Rot is a w-x-y-z quaternion; the zero value means no rotation.
	Rot [4]float64 `json:"rot"`
	// Convention the rotation is expressed in; defaults to "world". Only camera
	// sensors consult this.
	Convention OrientationConvention `json:"convention,omitempty"`
}

func (o OffsetConfig) rotation() quat.Number {
	if o.Rot == ([4]float64{}) {
		return spatialmath.NewZeroQuaternion()
	}
	return spatialmath.NewQuaternion(o.Rot[0], o.Rot[1], o.Rot[2], o.Rot[3])
}

// Config configures a ray-casting sensor.
type Config struct {
	// SensorExpr is the scene-path expression for the sensor prim(s), one per
	// environment.
	SensorExpr string `json:"sensor_expr"`

	// Targets are the mesh targets to cast against, in configuration order.
	Targets []TargetConfig `json:"targets,omitempty"`

	// TargetPaths are bare scene-path targets kept for legacy configurations; each is
	// treated as a global target and appended after Targets.
	TargetPaths []string `json:"target_paths,omitempty"`

	// Pattern generates the sensor-local ray pattern.
	Pattern PatternConfig `json:"-"`

	// Offset is a fixed sensor-local pose applied to the pattern at initialization.
	Offset OffsetConfig `json:"offset"`

	// MaxDistance is the maximum ray range. Rays with no intersection within range
	// report the capped miss point at exactly this distance.
	MaxDistance float64 `json:"max_distance"`

	// AttachYawOnly rotates rays using only the heading component of the sensor
	// orientation, ignoring pitch and roll. Fixed after initialization.
	AttachYawOnly bool `json:"attach_yaw_only"`

	// TrackMeshTransforms refreshes per-mesh world transforms from the pose source
	// every update tick. When false, meshes are treated as static in world space.
	TrackMeshTransforms bool `json:"track_mesh_transforms"`

	// DriftRange bounds the per-environment uniform random offset added to the
	// reported sensor position. Resampled only on reset.
	DriftRange [2]float64 `json:"drift_range"`

	// DataTypes selects camera output channels. Ignored by non-camera sensors.
	DataTypes []DataType `json:"data_types,omitempty"`

	// Seed seeds drift sampling; zero means a time-based seed.
	Seed int64 `json:"seed,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.SensorExpr == "" {
		return errors.Errorf("%s: sensor_expr is required", path)
	}
	if len(cfg.Targets) == 0 && len(cfg.TargetPaths) == 0 {
		return errors.Errorf("%s: at least one mesh target is required", path)
	}
	for i, target := range cfg.Targets {
		if target.TargetExpr == "" {
			return errors.Errorf("%s: targets[%d].target_expr is required", path, i)
		}
	}
	if cfg.Pattern == nil {
		return errors.Errorf("%s: a ray pattern configuration is required", path)
	}
	if err := cfg.Pattern.Validate(path + ".pattern"); err != nil {
		return err
	}
	if cfg.MaxDistance <= 0 {
		return errors.Errorf("%s: max_distance must be positive, got %f", path, cfg.MaxDistance)
	}
	if cfg.DriftRange[0] > cfg.DriftRange[1] {
		return errors.Errorf("%s: drift_range min %f exceeds max %f", path, cfg.DriftRange[0], cfg.DriftRange[1])
	}
	switch cfg.Offset.Convention {
	case "", ConventionWorld, ConventionROS, ConventionOpenGL:
	default:
		return errors.Errorf("%s: unknown orientation convention %q", path, cfg.Offset.Convention)
	}
	for _, dt := range cfg.DataTypes {
		if unsupportedDataTypes[dt] {
			return errors.Errorf("%s: data type %q cannot be produced by a ray-cast query", path, dt)
		}
		switch dt {
		case DataTypeDistanceToCamera, DataTypeDistanceToImagePlane, DataTypeNormals:
		default:
			return errors.Errorf("%s: unknown data type %q", path, dt)
		}
	}
	return nil
}

// normalizedTargets returns the configured targets with legacy bare-path targets
// appended as global targets.
func (cfg *Config) normalizedTargets() []TargetConfig {
	targets := make([]TargetConfig, 0, len(cfg.Targets)+len(cfg.TargetPaths))
	targets = append(targets, cfg.Targets...)
	for _, path := range cfg.TargetPaths {
		targets = append(targets, TargetConfig{TargetExpr: path, IsGlobal: true})
	}
	return targets
}

func (cfg *Config) hasDataType(dt DataType) bool {
	for _, d := range cfg.DataTypes {
		if d == dt {
			return true
		}
	}
	return false
}
