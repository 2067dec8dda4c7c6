// Package config loads the tarim.hcl settings file.
//
//	raw_dir      = "raw_responses"
//	tax_dir      = "tax_responses"
//	data_dir     = "data"
//	log_dir      = "logs"
//	workers      = 8
//	source_db    = "cache/results.db"
//	sqlite_path  = "data/nomenclature.db"
//	metrics_file = "data/tarim.prom"
//
//	publish "s3" {
//	  bucket = "tariff-exports"
//	  prefix = "nomenclature/"
//	  region = "eu-central-1"
//	}
//
// Every attribute is optional. Command line flags override file values.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// DefaultFile is looked up in the working directory when --config is unset.
const DefaultFile = "tarim.hcl"

// Defaults used by the page fetcher and the tax fetcher for their caches.
const (
	DefaultRawDir  = "raw_responses"
	DefaultTaxDir  = "tax_responses"
	DefaultDataDir = "data"
	DefaultLogDir  = "logs"
)

// ErrInvalid marks a configuration that parsed but cannot be used.
var ErrInvalid = errors.New("invalid configuration")

// Config is the decoded tarim.hcl.
type Config struct {
	RawDir      string `hcl:"raw_dir,optional"`
	TaxDir      string `hcl:"tax_dir,optional"`
	DataDir     string `hcl:"data_dir,optional"`
	LogDir      string `hcl:"log_dir,optional"`
	Workers     int    `hcl:"workers,optional"`
	SourceDB    string `hcl:"source_db,optional"`
	SQLitePath  string `hcl:"sqlite_path,optional"`
	MetricsFile string `hcl:"metrics_file,optional"`

	Publish *Publish `hcl:"publish,block"`
}

// Publish configures where `tarim publish` uploads outputs.
type Publish struct {
	Kind         string `hcl:"kind,label"`
	Bucket       string `hcl:"bucket"`
	Prefix       string `hcl:"prefix,optional"`
	Region       string `hcl:"region,optional"`
	Endpoint     string `hcl:"endpoint,optional"`
	UsePathStyle bool   `hcl:"use_path_style,optional"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads path. A missing file yields Default() unless required is set,
// which is the case when the user named the file explicitly.
func Load(path string, required bool) (*Config, error) {
	if path == "" {
		path = DefaultFile
	}
	src, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, src)
}

// Parse decodes src. The filename selects the syntax (.hcl or .json) and
// is used in diagnostics.
func Parse(filename string, src []byte) (*Config, error) {
	var c Config
	if err := hclsimple.Decode(filename, src, nil, &c); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.RawDir == "" {
		c.RawDir = DefaultRawDir
	}
	if c.TaxDir == "" {
		c.TaxDir = DefaultTaxDir
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.LogDir == "" {
		c.LogDir = DefaultLogDir
	}
	if c.Workers == 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
}

// Validate checks values hclsimple cannot.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalid, c.Workers)
	}
	if p := c.Publish; p != nil {
		if p.Kind != "s3" {
			return fmt.Errorf("%w: unsupported publish target %q", ErrInvalid, p.Kind)
		}
		if p.Bucket == "" {
			return fmt.Errorf("%w: publish \"s3\" requires bucket", ErrInvalid)
		}
	}
	return nil
}
