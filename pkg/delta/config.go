package delta

import (
	"errors"
	"flag"

	"github.com/grafana/dskit/flagext"
)

// Config configures the default engine.
type Config struct {
	// Version pins the snapshot version. A negative version reads the
	// latest version.
	Version int64 `yaml:"version"`

	MetadataBatchSize int   `yaml:"metadata_batch_size"`
	ReadBatchSize     int64 `yaml:"read_batch_size"`
}

// RegisterFlags registers the engine flags with f.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("scan.", f)
}

// RegisterFlagsWithPrefix registers the engine flags with the given prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.Int64Var(&cfg.Version, prefix+"version", -1, "Table version to read. Negative reads the latest version.")
	f.IntVar(&cfg.MetadataBatchSize, prefix+"metadata-batch-size", 1024, "Maximum number of file entries per scan metadata chunk.")
	f.Int64Var(&cfg.ReadBatchSize, prefix+"read-batch-size", 64*1024, "Maximum number of rows per physical chunk read from a data file.")
}

// Validate validates the config.
func (cfg *Config) Validate() error {
	if cfg.MetadataBatchSize <= 0 {
		return errors.New("metadata batch size must be positive")
	}
	if cfg.ReadBatchSize <= 0 {
		return errors.New("read batch size must be positive")
	}
	return nil
}

// DefaultConfig returns the config with the flag defaults applied.
func DefaultConfig() Config {
	var cfg Config
	flagext.DefaultValues(&cfg)
	return cfg
}
