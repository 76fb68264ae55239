// Package capability probes for optional runtime capabilities once, on
// first use, and memoizes the result, mirroring the teacher's once-per-process
// master-data caching pattern (internal/storage/cache.go) but without a TTL:
// a capability probe never needs to be re-run once the process is up.
package capability

import (
	"sync"

	"go.uber.org/zap"
)

// Prober reports whether an optional capability is usable and its version
// string, or false and a reason when unusable.
type Prober func() (available bool, version string)

// Registry memoizes the result of a one-time probe.
type Registry struct {
	once      sync.Once
	available bool
	version   string
	prober    Prober
	logger    *zap.Logger
}

// NewRegistry builds a Registry that will call prober exactly once, on
// first use of ReconstructionAvailable/ReconstructionVersion.
func NewRegistry(prober Prober, logger *zap.Logger) *Registry {
	return &Registry{prober: prober, logger: logger}
}

func (r *Registry) probe() {
	r.once.Do(func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.available = false
				r.version = "not-installed"
				if r.logger != nil {
					r.logger.Warn("capability probe panicked", zap.Any("recover", rec))
				}
			}
		}()
		available, version := r.prober()
		r.available = available
		if version == "" {
			version = "unavailable"
		}
		r.version = version
	})
}

// ReconstructionAvailable reports whether the reconstruction capability
// (redaction inpainting / color-overlay removal) is usable in this process.
func (r *Registry) ReconstructionAvailable() bool {
	r.probe()
	return r.available
}

// ReconstructionVersion returns the probed version string, or
// "unavailable, not-installed" if the probe failed or never ran
// successfully.
func (r *Registry) ReconstructionVersion() string {
	r.probe()
	if !r.available {
		return "unavailable, not-installed"
	}
	return r.version
}
