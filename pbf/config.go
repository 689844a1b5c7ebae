package pbf

import (
	"encoding/json"
	"math"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/surfelfusion/icp"
	"go.viam.com/surfelfusion/surfel"
)

// Config controls how frames are tracked and validated.
type Config struct {
	// MaxCameraAngularVelocity is in rad/s.
	MaxCameraAngularVelocity float64 `json:"max_camera_angular_velocity"`
	// MaxCameraVelocity is in scene units/s.
	MaxCameraVelocity float64 `json:"max_camera_velocity"`
	// KdTreeRebuildInterval is the number of frames between reference cloud rebuilds once a
	// session is warmed up.
	KdTreeRebuildInterval int `json:"kd_tree_rebuild_interval"`
	// IcpDownsampleFraction is the target fraction of a frame's points used for registration.
	IcpDownsampleFraction float64 `json:"icp_downsample_fraction"`
	// MaxReferencePoints bounds the size of the reference cloud.
	MaxReferencePoints int `json:"max_reference_points"`
}

// DefaultConfig returns the configuration used for handheld capture.
func DefaultConfig() Config {
	return Config{
		MaxCameraAngularVelocity: math.Pi,
		MaxCameraVelocity:        2,
		KdTreeRebuildInterval:    10,
		IcpDownsampleFraction:    0.05,
		MaxReferencePoints:       20000,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	var err error
	if !(cfg.MaxCameraAngularVelocity > 0) {
		err = multierr.Append(err, errors.Errorf("%s: max_camera_angular_velocity must be positive, got %v",
			path, cfg.MaxCameraAngularVelocity))
	}
	if !(cfg.MaxCameraVelocity > 0) {
		err = multierr.Append(err, errors.Errorf("%s: max_camera_velocity must be positive, got %v", path, cfg.MaxCameraVelocity))
	}
	if cfg.KdTreeRebuildInterval < 1 {
		err = multierr.Append(err, errors.Errorf("%s: kd_tree_rebuild_interval must be at least 1, got %d",
			path, cfg.KdTreeRebuildInterval))
	}
	if !(cfg.IcpDownsampleFraction > 0 && cfg.IcpDownsampleFraction <= 1) {
		err = multierr.Append(err, errors.Errorf("%s: icp_downsample_fraction must be in (0, 1], got %v",
			path, cfg.IcpDownsampleFraction))
	}
	if cfg.MaxReferencePoints < 1 {
		err = multierr.Append(err, errors.Errorf("%s: max_reference_points must be at least 1, got %d", path, cfg.MaxReferencePoints))
	}
	return err
}

// SessionConfig bundles everything a Controller needs per frame, plus the RNG seed of the session.
type SessionConfig struct {
	PBF    Config        `json:"pbf"`
	ICP    icp.Config    `json:"icp"`
	Fusion surfel.Config `json:"fusion"`
	Seed   int64         `json:"seed"`
}

// DefaultSessionConfig returns the default configuration of every stage.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		PBF:    DefaultConfig(),
		ICP:    icp.DefaultConfig(),
		Fusion: surfel.DefaultConfig(),
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *SessionConfig) Validate(path string) error {
	return multierr.Combine(
		cfg.PBF.Validate(path+".pbf"),
		cfg.ICP.Validate(path+".icp"),
		cfg.Fusion.Validate(path+".fusion"),
	)
}

// LoadSessionConfig reads a JSON session config from path. Fields missing from the file keep their
// defaults.
func LoadSessionConfig(path string) (*SessionConfig, error) {
	config := DefaultSessionConfig()
	configFile, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, err
	}
	defer goutils.UncheckedErrorFunc(configFile.Close)
	jsonParser := json.NewDecoder(configFile)
	if err := jsonParser.Decode(&config); err != nil {
		return nil, errors.Wrapf(err, "cannot parse session config %q", path)
	}
	if err := config.Validate("session"); err != nil {
		return nil, err
	}
	return &config, nil
}

// SessionConfigFromAttributes decodes a loosely typed attribute map, such as one parsed from YAML or
// passed over an API, into a session config. Strings are converted to numbers where needed, missing
// fields keep their defaults and unknown keys are an error.
func SessionConfigFromAttributes(attributes map[string]interface{}) (*SessionConfig, error) {
	config := DefaultSessionConfig()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &config,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrap(err, "cannot decode session attributes")
	}
	if err := config.Validate("session"); err != nil {
		return nil, err
	}
	return &config, nil
}
