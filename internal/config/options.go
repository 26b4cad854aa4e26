// Package config defines the tunable knobs a sqlitecrdt deployment can
// set at Engine construction time, loadable from a YAML file via
// struct tags.
package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// MaxExcludedNodes is the hard ceiling on the excluded-node set a
// ChangesSince call may name (too_many_excluded_nodes). It is not
// configurable: the bound keeps the NOT IN parameter list ChangesSince
// builds from that set small, and is not meant to be tuned per
// deployment.
const MaxExcludedNodes = 100

// Options holds the deployment-tunable knobs an Engine leaves as
// caller-supplied defaults rather than fixed constants. The zero value
// is not valid; use DefaultOptions or LoadOptions.
type Options struct {
	// ChangesSinceDefaultLimit bounds how many changes ChangesSince
	// returns when the caller passes no explicit limit. Zero means no
	// limit.
	ChangesSinceDefaultLimit uint64 `yaml:"changes_since_default_limit"`

	// CompactBatchSize is how many tombstone rows Compact deletes per
	// transaction, keeping a large compaction from holding one huge
	// write transaction open.
	CompactBatchSize int `yaml:"compact_batch_size"`

	// PendingDrainBatchSize is how many pending rows the post-commit
	// drain pipeline reads and promotes per pass before fetching the
	// next page.
	PendingDrainBatchSize int `yaml:"pending_drain_batch_size"`
}

// DefaultOptions returns the Options an Engine uses when the caller
// supplies none.
func DefaultOptions() Options {
	return Options{
		ChangesSinceDefaultLimit: uint64(math.MaxUint64),
		CompactBatchSize:         500,
		PendingDrainBatchSize:    1000,
	}
}

// Validate checks Options for internally-inconsistent values that
// would otherwise surface as confusing failures deep inside a merge or
// compaction pass.
func (o Options) Validate() error {
	if o.CompactBatchSize <= 0 {
		return fmt.Errorf("config: compact_batch_size must be positive, got %d", o.CompactBatchSize)
	}
	if o.PendingDrainBatchSize <= 0 {
		return fmt.Errorf("config: pending_drain_batch_size must be positive, got %d", o.PendingDrainBatchSize)
	}
	return nil
}

// LoadOptions reads Options from a YAML file, starting from
// DefaultOptions so a file that overrides only one field leaves the
// rest at their defaults.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()

	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("config: parse %q: %w", path, err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, fmt.Errorf("config: %q: %w", path, err)
	}
	return opts, nil
}
