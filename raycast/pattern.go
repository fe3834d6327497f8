package raycast

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/raycast/utils"
)

// PatternConfig describes a declarative ray pattern. Generate is deterministic for a
// given configuration and the produced ray counts are fixed after initialization.
type PatternConfig interface {
	// Validate ensures all parts of the config are valid.
	Validate(path string) error
	// Generate produces ray origins and directions in the sensor-local frame.
	// Directions are not required to be normalized but are always non-zero.
	Generate() (starts, dirs []r3.Vector, err error)
}

// GridPatternConfig is a regular planar grid of parallel rays, commonly used for
// terrain height scanning.
type GridPatternConfig struct {
	// Resolution is the grid spacing in meters.
	Resolution float64 `json:"resolution"`
	// Size is the (x, y) extent of the grid in meters.
	Size [2]float64 `json:"size"`
	// Direction is the shared ray direction; defaults to straight down.
	Direction r3.Vector `json:"direction"`
}

// Validate ensures all parts of the config are valid.
func (cfg *GridPatternConfig) Validate(path string) error {
	if cfg.Resolution <= 0 {
		return errors.Errorf("%s: resolution must be positive, got %f", path, cfg.Resolution)
	}
	if cfg.Size[0] < 0 || cfg.Size[1] < 0 {
		return errors.Errorf("%s: size must be non-negative, got %v", path, cfg.Size)
	}
	return nil
}

// Generate produces the grid rays, row-major over y then x.
func (cfg *GridPatternConfig) Generate() ([]r3.Vector, []r3.Vector, error) {
	dir := cfg.Direction
	if dir == (r3.Vector{}) {
		dir = r3.Vector{Z: -1}
	}
	nx := int(cfg.Size[0]/cfg.Resolution) + 1
	ny := int(cfg.Size[1]/cfg.Resolution) + 1
	starts := make([]r3.Vector, 0, nx*ny)
	dirs := make([]r3.Vector, 0, nx*ny)
	for iy := 0; iy < ny; iy++ {
		y := -cfg.Size[1]/2 + float64(iy)*cfg.Resolution
		for ix := 0; ix < nx; ix++ {
			x := -cfg.Size[0]/2 + float64(ix)*cfg.Resolution
			starts = append(starts, r3.Vector{X: x, Y: y})
			dirs = append(dirs, dir)
		}
	}
	return starts, dirs, nil
}

// LidarPatternConfig is a spinning-lidar style pattern: a fan of channels swept over
// a horizontal field of view. All rays originate at the sensor origin.
type LidarPatternConfig struct {
	// Channels is the number of vertical beams.
	Channels int `json:"channels"`
	// VerticalFOV is the (min, max) vertical angle range in degrees.
	VerticalFOV [2]float64 `json:"vertical_fov"`
	// HorizontalFOV is the (min, max) horizontal angle range in degrees.
	HorizontalFOV [2]float64 `json:"horizontal_fov"`
	// HorizontalRes is the horizontal angular step in degrees.
	HorizontalRes float64 `json:"horizontal_res"`
}

// Validate ensures all parts of the config are valid.
func (cfg *LidarPatternConfig) Validate(path string) error {
	if cfg.Channels <= 0 {
		return errors.Errorf("%s: channels must be positive, got %d", path, cfg.Channels)
	}
	if cfg.HorizontalRes <= 0 {
		return errors.Errorf("%s: horizontal_res must be positive, got %f", path, cfg.HorizontalRes)
	}
	if cfg.VerticalFOV[0] > cfg.VerticalFOV[1] {
		return errors.Errorf("%s: vertical_fov min exceeds max", path)
	}
	if cfg.HorizontalFOV[0] > cfg.HorizontalFOV[1] {
		return errors.Errorf("%s: horizontal_fov min exceeds max", path)
	}
	return nil
}

// Generate produces the lidar rays, channel-major.
func (cfg *LidarPatternConfig) Generate() ([]r3.Vector, []r3.Vector, error) {
	nh := int((cfg.HorizontalFOV[1]-cfg.HorizontalFOV[0])/cfg.HorizontalRes) + 1
	starts := make([]r3.Vector, 0, cfg.Channels*nh)
	dirs := make([]r3.Vector, 0, cfg.Channels*nh)
	for c := 0; c < cfg.Channels; c++ {
		v := cfg.VerticalFOV[0]
		if cfg.Channels > 1 {
			v += (cfg.VerticalFOV[1] - cfg.VerticalFOV[0]) * float64(c) / float64(cfg.Channels-1)
		}
		vRad := utils.DegToRad(v)
		for i := 0; i < nh; i++ {
			hRad := utils.DegToRad(cfg.HorizontalFOV[0] + float64(i)*cfg.HorizontalRes)
			dirs = append(dirs, r3.Vector{
				X: math.Cos(vRad) * math.Cos(hRad),
				Y: math.Cos(vRad) * math.Sin(hRad),
				Z: math.Sin(vRad),
			})
			starts = append(starts, r3.Vector{})
		}
	}
	return starts, dirs, nil
}

// PinholeCameraPatternConfig derives one ray per image pixel from pinhole camera
// intrinsics. Rays are expressed in the world camera convention: forward +X, left
// +Y, up +Z, so image reshaping is row-major over (height, width).
type PinholeCameraPatternConfig struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	// FocalLength and apertures are in the same linear unit (typically mm).
	FocalLength              float64 `json:"focal_length"`
	HorizontalAperture       float64 `json:"horizontal_aperture"`
	HorizontalApertureOffset float64 `json:"horizontal_aperture_offset"`
	VerticalApertureOffset   float64 `json:"vertical_aperture_offset"`
}

// Validate ensures all parts of the config are valid.
func (cfg *PinholeCameraPatternConfig) Validate(path string) error {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return errors.Errorf("%s: image size must be positive, got (%d, %d)", path, cfg.Width, cfg.Height)
	}
	if cfg.FocalLength <= 0 {
		return errors.Errorf("%s: focal_length must be positive, got %f", path, cfg.FocalLength)
	}
	if cfg.HorizontalAperture <= 0 {
		return errors.Errorf("%s: horizontal_aperture must be positive, got %f", path, cfg.HorizontalAperture)
	}
	return nil
}

// Intrinsics computes the 3x3 intrinsic matrix implied by the configuration.
// Vertical aperture is derived from the image aspect ratio, giving square pixels.
func (cfg *PinholeCameraPatternConfig) Intrinsics() mgl64.Mat3 {
	verticalAperture := cfg.HorizontalAperture * float64(cfg.Height) / float64(cfg.Width)
	fx := float64(cfg.Width) * cfg.FocalLength / cfg.HorizontalAperture
	fy := float64(cfg.Height) * cfg.FocalLength / verticalAperture
	cx := cfg.HorizontalApertureOffset*fx + float64(cfg.Width)/2
	cy := cfg.VerticalApertureOffset*fy + float64(cfg.Height)/2
	return mgl64.Mat3FromRows(
		mgl64.Vec3{fx, 0, cx},
		mgl64.Vec3{0, fy, cy},
		mgl64.Vec3{0, 0, 1},
	)
}

// Generate produces rays for a single instance using the configured intrinsics.
func (cfg *PinholeCameraPatternConfig) Generate() ([]r3.Vector, []r3.Vector, error) {
	perInstance, err := cfg.GenerateForIntrinsics([]mgl64.Mat3{cfg.Intrinsics()})
	if err != nil {
		return nil, nil, err
	}
	starts := make([]r3.Vector, len(perInstance[0]))
	return starts, perInstance[0], nil
}

// GenerateForIntrinsics produces per-instance ray directions from per-instance
// intrinsic matrices, since intrinsics may differ per instance. Ray origins are all
// at the sensor origin. Directions are normalized and ordered row-major over
// (height, width), pixel centers.
func (cfg *PinholeCameraPatternConfig) GenerateForIntrinsics(intrinsics []mgl64.Mat3) ([][]r3.Vector, error) {
	if len(intrinsics) == 0 {
		return nil, errors.New("at least one intrinsic matrix is required")
	}
	out := make([][]r3.Vector, len(intrinsics))
	for n, k := range intrinsics {
		fx, fy := k.At(0, 0), k.At(1, 1)
		cx, cy := k.At(0, 2), k.At(1, 2)
		if fx == 0 || fy == 0 {
			return nil, errors.Errorf("instance %d: intrinsic matrix has zero focal length", n)
		}
		dirs := make([]r3.Vector, 0, cfg.Width*cfg.Height)
		for v := 0; v < cfg.Height; v++ {
			pixY := float64(v) + 0.5
			for u := 0; u < cfg.Width; u++ {
				pixX := float64(u) + 0.5
				// optical-frame direction mapped into the world camera convention:
				// +X forward, +Y left, +Z up
				dirs = append(dirs, r3.Vector{
					X: 1,
					Y: (cx - pixX) / fx,
					Z: (cy - pixY) / fy,
				}.Normalize())
			}
		}
		out[n] = dirs
	}
	return out, nil
}
