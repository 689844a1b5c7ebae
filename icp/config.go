// Package icp registers a point cloud against a reference cloud with point-to-plane iterative
// closest point.
package icp

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Config controls a registration run.
type Config struct {
	// MaxIterations caps the number of iterations.
	MaxIterations int `json:"max_iterations"`
	// Tolerance is the relative change in RMS correspondence error below which the run converges.
	Tolerance float64 `json:"tolerance"`
	// OutlierDeviationsThreshold rejects a pair whose squared error exceeds the batch mean squared
	// error by more than this many deviations, squared.
	OutlierDeviationsThreshold float64 `json:"outlier_deviations_threshold"`
	// ThreadCount sizes the worker pool used for correspondence search.
	ThreadCount int `json:"thread_count"`
	// CollectDiagnostics attaches per-iteration point sets to results.
	CollectDiagnostics bool `json:"collect_diagnostics"`
}

// DefaultConfig returns the configuration used for handheld capture.
func DefaultConfig() Config {
	return Config{
		MaxIterations:              20,
		Tolerance:                  1e-3,
		OutlierDeviationsThreshold: 3,
		ThreadCount:                4,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	var err error
	if cfg.MaxIterations < 1 {
		err = multierr.Append(err, errors.Errorf("%s: max_iterations must be at least 1, got %d", path, cfg.MaxIterations))
	}
	if !(cfg.Tolerance >= 0) {
		err = multierr.Append(err, errors.Errorf("%s: tolerance must be non-negative, got %v", path, cfg.Tolerance))
	}
	if !(cfg.OutlierDeviationsThreshold > 0) {
		err = multierr.Append(err, errors.Errorf("%s: outlier_deviations_threshold must be positive, got %v",
			path, cfg.OutlierDeviationsThreshold))
	}
	if cfg.ThreadCount < 1 {
		err = multierr.Append(err, errors.Errorf("%s: thread_count must be at least 1, got %d", path, cfg.ThreadCount))
	}
	return err
}
