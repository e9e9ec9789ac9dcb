// Package config loads the planner configuration.
//
// A configuration file is YAML:
//
//	version: v1.0.0
//	technique: RACFED
//	isa: cortex-m3
//	technique_type: SigMon   # SigMon | fullCFED
//	selective_level: 0       # 0 full, 1 selective
//	function: ""             # empty plans every function
//	seed: 1
//	seed_policy: stream      # stream | per-function
//	output_dir: GCC_Plugin_Output
//
// Missing keys keep the values of Default.
package config

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/multierr"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/kolkov/cfedplanner/internal/cfed/engine"
	"github.com/kolkov/cfedplanner/internal/cfed/isa"
	"github.com/kolkov/cfedplanner/internal/cfed/technique"
)

// Version is the configuration format this build reads.
const Version = "v1.0.0"

// Technique types.
const (
	// TypeSigMon plans inter-block signature monitoring only.
	TypeSigMon = "SigMon"
	// TypeFullCFED adds the intra-block layer.
	TypeFullCFED = "fullCFED"
)

// Config is the planner configuration.
type Config struct {
	Version        string `yaml:"version"`
	Technique      string `yaml:"technique"`
	ISA            string `yaml:"isa"`
	TechniqueType  string `yaml:"technique_type"`
	SelectiveLevel int    `yaml:"selective_level"`
	Function       string `yaml:"function"`
	Seed           uint64 `yaml:"seed"`
	SeedPolicy     string `yaml:"seed_policy"`
	OutputDir      string `yaml:"output_dir"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Version:       Version,
		Technique:     "RACFED",
		ISA:           "cortex-m3",
		TechniqueType: TypeSigMon,
		Seed:          1,
		SeedPolicy:    string(engine.SeedStream),
		OutputDir:     "GCC_Plugin_Output",
	}
}

// Load reads and validates the configuration at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes data over Default and validates the result.
func Parse(data []byte) (Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every problem of c at once.
func (c Config) Validate() error {
	var err error
	switch {
	case !semver.IsValid(c.Version):
		err = multierr.Append(err, fmt.Errorf("version %q is not a semantic version", c.Version))
	case semver.Major(c.Version) != semver.Major(Version):
		err = multierr.Append(err, fmt.Errorf("version %s not supported, want %s.x", c.Version, semver.Major(Version)))
	}
	if _, ok := technique.ParseKind(c.Technique); !ok {
		names := make([]string, 0, 9)
		for _, k := range technique.Kinds() {
			names = append(names, k.String())
		}
		err = multierr.Append(err, fmt.Errorf("unknown technique %q (one of %s)", c.Technique, strings.Join(names, ", ")))
	}
	if f := isa.Parse(c.ISA); !f.Supported() {
		err = multierr.Append(err, fmt.Errorf("unsupported ISA %q (%s)", c.ISA, f))
	}
	if c.TechniqueType != TypeSigMon && c.TechniqueType != TypeFullCFED {
		err = multierr.Append(err, fmt.Errorf("technique_type %q must be %s or %s", c.TechniqueType, TypeSigMon, TypeFullCFED))
	}
	if c.SelectiveLevel != 0 && c.SelectiveLevel != 1 {
		err = multierr.Append(err, fmt.Errorf("selective_level %d must be 0 or 1", c.SelectiveLevel))
	}
	switch engine.SeedPolicy(c.SeedPolicy) {
	case engine.SeedStream, engine.SeedPerFunction:
	default:
		err = multierr.Append(err, fmt.Errorf("seed_policy %q must be %s or %s", c.SeedPolicy, engine.SeedStream, engine.SeedPerFunction))
	}
	if c.OutputDir == "" {
		err = multierr.Append(err, fmt.Errorf("output_dir is empty"))
	}
	return err
}

// IntraBlock reports whether the technique type asks for intra-block
// detection.
func (c Config) IntraBlock() bool { return c.TechniqueType == TypeFullCFED }

// EngineOptions converts c into engine options.
func (c Config) EngineOptions() engine.Options {
	return engine.Options{
		Technique:  c.Technique,
		ISA:        c.ISA,
		Selective:  c.SelectiveLevel == 1,
		IntraBlock: c.IntraBlock(),
		Function:   c.Function,
		Seed:       c.Seed,
		SeedPolicy: engine.SeedPolicy(c.SeedPolicy),
	}
}
