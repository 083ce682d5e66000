package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/grafana/dskit/flagext"
	"gopkg.in/yaml.v2"

	"github.com/grafana/deltascan/pkg/delta"
	"github.com/grafana/deltascan/pkg/storage/bucket"
	"github.com/grafana/deltascan/pkg/util/log"
)

// Config is the configuration of the deltascan command.
type Config struct {
	ConfigFile string `yaml:"-"`

	Log     log.Config    `yaml:"log"`
	Storage bucket.Config `yaml:"storage"`
	Scan    delta.Config  `yaml:"scan"`
	Print   PrintConfig   `yaml:"print"`

	Options         EngineOptions `yaml:"options"`
	MetricsTextfile string        `yaml:"metrics_textfile"`
}

// RegisterFlags registers the command flags with f.
func (c *Config) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&c.ConfigFile, "config.file", "", "YAML file to load the configuration from. Flags override the file.")
	f.Var(&c.Options, "option", "Engine option as key=value. May be repeated.")
	f.StringVar(&c.MetricsTextfile, "metrics.textfile", "", "Write the scan metrics in the Prometheus text format to this file on exit.")

	c.Log.RegisterFlags(f)
	c.Storage.RegisterFlags(f)
	c.Scan.RegisterFlags(f)
	c.Print.RegisterFlags(f)
}

// Validate validates the config.
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := c.Scan.Validate(); err != nil {
		return err
	}
	if c.Print.Limit < 0 {
		return errors.New("limit must not be negative")
	}
	return nil
}

// PrintConfig controls what is printed about the table.
type PrintConfig struct {
	Data    bool                   `yaml:"data"`
	Stats   bool                   `yaml:"stats"`
	Columns flagext.StringSliceCSV `yaml:"columns"`
	Limit   int                    `yaml:"limit"`
}

// RegisterFlags registers the print flags with f.
func (c *PrintConfig) RegisterFlags(f *flag.FlagSet) {
	f.BoolVar(&c.Data, "print-data", true, "Print the data of the table.")
	f.BoolVar(&c.Stats, "print-stats", false, "Print storage and scan statistics.")
	f.Var(&c.Columns, "columns", "Comma-separated list of columns to read. Empty reads every column.")
	f.IntVar(&c.Limit, "limit", 0, "Print at most this many rows. 0 prints every row.")
}

// EngineOptions are free-form key/value options passed to the engine.
type EngineOptions map[string]string

// String implements flag.Value.
func (o *EngineOptions) String() string {
	if o == nil || len(*o) == 0 {
		return ""
	}
	keys := make([]string, 0, len(*o))
	for k := range *o {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+(*o)[k])
	}
	return strings.Join(pairs, ",")
}

// Set implements flag.Value. Format: key=value.
func (o *EngineOptions) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("option %q is not of the form key=value", s)
	}
	if *o == nil {
		*o = make(EngineOptions)
	}
	(*o)[k] = v
	return nil
}

// IsCumulative allows the option flag to be repeated.
func (o *EngineOptions) IsCumulative() bool { return true }

// loadConfigFile overlays the YAML file at path onto cfg.
func loadConfigFile(path string, cfg *Config) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.UnmarshalStrict(buf, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}
