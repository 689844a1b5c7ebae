package surfel

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/surfelfusion/utils"
)

// Config controls how samples are accepted into and culled from the surfel map.
type Config struct {
	// MaxSurfelIncidenceThreshold is the largest accepted angle, in radians, between a sample's
	// normal and the ray back to the camera.
	MaxSurfelIncidenceThreshold float64 `json:"max_surfel_incidence_threshold"`
	// MaxSurfelIncidenceThresholdDeg overrides MaxSurfelIncidenceThreshold when positive.
	MaxSurfelIncidenceThresholdDeg float64 `json:"max_surfel_incidence_threshold_deg,omitempty"`
	// SurfelMergeRadiusScaleFactor bounds |delta|^2 / depth^4 for a sample to merge with the surfel
	// rendered at its pixel.
	SurfelMergeRadiusScaleFactor float64 `json:"surfel_merge_radius_scale_factor"`
	InputConfidenceThreshold     float64 `json:"input_confidence_threshold"`
	MinDepth                     float64 `json:"min_depth"`
	MaxDepth                     float64 `json:"max_depth"`
	CullLowConfidence            bool    `json:"cull_low_confidence"`
	// MinCount is the weight a surfel needs to survive culling.
	MinCount       int  `json:"min_count"`
	SurfelLifetime int  `json:"surfel_lifetime"`
	IgnoreLifetime bool `json:"ignore_lifetime"`
}

// DefaultConfig returns the configuration used for handheld capture.
func DefaultConfig() Config {
	return Config{
		MaxSurfelIncidenceThreshold:  utils.DegToRad(75),
		SurfelMergeRadiusScaleFactor: 0.02,
		InputConfidenceThreshold:     0.5,
		MinDepth:                     0.1,
		MaxDepth:                     5,
		CullLowConfidence:            true,
		MinCount:                     2,
		SurfelLifetime:               10,
	}
}

// IncidenceThreshold returns the maximum incidence angle in radians.
func (cfg *Config) IncidenceThreshold() float64 {
	if cfg.MaxSurfelIncidenceThresholdDeg > 0 {
		return utils.DegToRad(cfg.MaxSurfelIncidenceThresholdDeg)
	}
	return cfg.MaxSurfelIncidenceThreshold
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	var err error
	if theta := cfg.IncidenceThreshold(); !(theta > 0 && theta <= math.Pi/2) {
		err = multierr.Append(err, errors.Errorf("%s: max_surfel_incidence_threshold must be in (0, pi/2], got %v", path, theta))
	}
	if !(cfg.SurfelMergeRadiusScaleFactor > 0) {
		err = multierr.Append(err, errors.Errorf("%s: surfel_merge_radius_scale_factor must be positive, got %v",
			path, cfg.SurfelMergeRadiusScaleFactor))
	}
	if !(cfg.MinDepth >= 0) || !(cfg.MaxDepth > cfg.MinDepth) {
		err = multierr.Append(err, errors.Errorf("%s: depth range [%v, %v] is empty", path, cfg.MinDepth, cfg.MaxDepth))
	}
	if cfg.MinCount < 0 {
		err = multierr.Append(err, errors.Errorf("%s: min_count must be non-negative, got %d", path, cfg.MinCount))
	}
	if cfg.SurfelLifetime < 0 {
		err = multierr.Append(err, errors.Errorf("%s: surfel_lifetime must be non-negative, got %d", path, cfg.SurfelLifetime))
	}
	return err
}
