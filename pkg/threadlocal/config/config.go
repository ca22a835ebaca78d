package config

import "fmt"

// Config holds tunables for threadlocal registries.
//
// PruneThreshold and the observability toggles are registry-scoped and
// applied per registry (threadlocal.WithConfig); VacuumThreshold is process
// wide and applied with threadlocal.SetVacuumThreshold.
type Config struct {
	// PruneThreshold is how many pending close signals a goroutine's
	// bookkeeping accumulates before registration runs a prune sweep.
	// Minimum 1.
	PruneThreshold int `yaml:"prune_threshold" json:"prune_threshold"`

	// VacuumThreshold is the slot-table size beyond which a background
	// dead-goroutine sweep is triggered. Zero or negative disables the
	// automatic trigger.
	VacuumThreshold int `yaml:"vacuum_threshold" json:"vacuum_threshold"`

	// Metrics enables OpenTelemetry metrics.
	Metrics bool `yaml:"metrics" json:"metrics"`

	// Tracing enables OpenTelemetry spans.
	Tracing bool `yaml:"tracing" json:"tracing"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		PruneThreshold:  1,
		VacuumThreshold: 128,
	}
}

// Validate checks the configuration for values that cannot be applied.
func (c Config) Validate() error {
	if c.PruneThreshold < 1 {
		return fmt.Errorf("prune_threshold must be >= 1, got %d", c.PruneThreshold)
	}
	return nil
}
