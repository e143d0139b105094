// Package resource implements the per-compilation and per-sandbox resource
// monitor (spec.md C3): iteration, recursion, memory, timeout, and queue
// caps enforced uniformly across the inference engine, the module resolver,
// the monomorphizer, and the sandbox runner.
package resource

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Limits is the single validated configuration record every ResourceMonitor
// is built from (spec.md §9, "Configuration objects"). Loaded from YAML in
// production deployments (see LoadYAML and the Production, Development and
// Testing presets).
type Limits struct {
	MaxIterations      uint64 `yaml:"max_iterations"`
	MaxRecursionDepth  uint64 `yaml:"max_recursion_depth"`
	MaxTypeVariables   uint64 `yaml:"max_type_variables"`
	MaxConstraints     uint64 `yaml:"max_constraints"`
	MaxSpecializations uint64 `yaml:"max_specializations"`
	MaxWorkQueueSize   uint64 `yaml:"max_work_queue_size"`
	MaxMemoryBytes     uint64 `yaml:"max_memory_bytes"`
	MaxDependencyDepth uint64 `yaml:"max_dependency_depth"`
	MaxModuleSize      uint64 `yaml:"max_module_size"`
	MaxAllocations     uint64 `yaml:"max_allocations"`
	MaxConcurrentOps   int64  `yaml:"max_concurrent_ops"`

	PhaseTimeout time.Duration `yaml:"phase_timeout"`
	TotalTimeout time.Duration `yaml:"total_timeout"`

	// AutoThrottle enables the smooth throttling_level described in
	// spec.md §4.3; consumers poll Monitor.ThrottlingLevel() and may
	// voluntarily slow their work rate.
	AutoThrottle        bool    `yaml:"auto_throttle"`
	ThrottleThreshold    float64 `yaml:"throttle_threshold"`
}

// Validate enforces spec.md §4.3's preset invariants: phase_timeout <=
// total_timeout, every numeric limit strictly positive.
func (l Limits) Validate() error {
	if l.PhaseTimeout > l.TotalTimeout {
		return fmt.Errorf("resource limits: phase_timeout (%s) exceeds total_timeout (%s)", l.PhaseTimeout, l.TotalTimeout)
	}
	positive := map[string]uint64{
		"max_iterations":       l.MaxIterations,
		"max_recursion_depth":  l.MaxRecursionDepth,
		"max_type_variables":   l.MaxTypeVariables,
		"max_constraints":      l.MaxConstraints,
		"max_specializations":  l.MaxSpecializations,
		"max_work_queue_size":  l.MaxWorkQueueSize,
		"max_memory_bytes":     l.MaxMemoryBytes,
		"max_dependency_depth": l.MaxDependencyDepth,
		"max_module_size":      l.MaxModuleSize,
		"max_allocations":      l.MaxAllocations,
	}
	for name, v := range positive {
		if v == 0 {
			return fmt.Errorf("resource limits: %s must be strictly positive", name)
		}
	}
	if l.MaxConcurrentOps <= 0 {
		return fmt.Errorf("resource limits: max_concurrent_ops must be strictly positive")
	}
	if l.PhaseTimeout <= 0 || l.TotalTimeout <= 0 {
		return fmt.Errorf("resource limits: timeouts must be strictly positive")
	}
	if l.ThrottleThreshold < 0 || l.ThrottleThreshold > 1 {
		return fmt.Errorf("resource limits: throttle_threshold must be in [0,1]")
	}
	return nil
}

// LoadYAML reads a Limits preset from a YAML document at path, then
// validates it. The document is decoded into a zero Limits, not on top of
// a stock preset, so every limit must be present in the file or validation
// fails.
func LoadYAML(path string) (Limits, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Limits{}, fmt.Errorf("resource: read limits file %s: %w", path, err)
	}
	var l Limits
	if err := yaml.Unmarshal(data, &l); err != nil {
		return Limits{}, fmt.Errorf("resource: parse limits file %s: %w", path, err)
	}
	if err := l.Validate(); err != nil {
		return Limits{}, fmt.Errorf("resource: %s: %w", path, err)
	}
	return l, nil
}

// Production is the strict preset used for untrusted/sandboxed code.
func Production() Limits {
	return Limits{
		MaxIterations:      1_000_000,
		MaxRecursionDepth:  2_000,
		MaxTypeVariables:   200_000,
		MaxConstraints:     500_000,
		MaxSpecializations: 50_000,
		MaxWorkQueueSize:   100_000,
		MaxMemoryBytes:     512 * 1024 * 1024,
		MaxDependencyDepth: 64,
		MaxModuleSize:      8 * 1024 * 1024,
		MaxAllocations:     10_000_000,
		MaxConcurrentOps:   64,
		PhaseTimeout:       5 * time.Second,
		TotalTimeout:       30 * time.Second,
		AutoThrottle:       true,
		ThrottleThreshold:  0.8,
	}
}

// Development is a looser preset for local iteration.
func Development() Limits {
	l := Production()
	l.MaxIterations *= 10
	l.MaxTypeVariables *= 10
	l.MaxConstraints *= 10
	l.MaxSpecializations *= 10
	l.MaxMemoryBytes *= 4
	l.PhaseTimeout = 30 * time.Second
	l.TotalTimeout = 120 * time.Second
	return l
}

// Testing is the loosest preset, but every limit stays finite so runaway
// test programs still terminate (spec.md §4.3, "testing (loosest but still
// finite)").
func Testing() Limits {
	l := Development()
	l.MaxIterations *= 10
	l.MaxTypeVariables *= 10
	l.MaxConstraints *= 10
	l.MaxMemoryBytes *= 4
	l.PhaseTimeout = 2 * time.Minute
	l.TotalTimeout = 10 * time.Minute
	return l
}
