package cfg

import (
	"fmt"
	"os"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// FormatVersion is the CFG file format this package writes and the major
// version it accepts.
const FormatVersion = "v1.0.0"

// File is the on-disk form of one compilation unit's CFGs.
type File struct {
	Version   string      `yaml:"version"`
	Functions []*Function `yaml:"functions"`
}

// LoadFile reads and validates a CFG file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CFG file %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a CFG file. Blocks that omit their predecessor lists get
// them derived from the successor lists. Every function is validated.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse CFG: %w", err)
	}
	if err := CheckVersion(f.Version); err != nil {
		return nil, err
	}
	for _, fn := range f.Functions {
		DerivePreds(fn)
		if err := fn.Validate(); err != nil {
			return nil, fmt.Errorf("function %s: %w", fn.Name, err)
		}
	}
	return &f, nil
}

// Marshal encodes functions in the current file format.
func Marshal(fns ...*Function) ([]byte, error) {
	return yaml.Marshal(&File{Version: FormatVersion, Functions: fns})
}

// CheckVersion accepts any valid semantic version with the same major
// version as FormatVersion.
func CheckVersion(v string) error {
	if !semver.IsValid(v) {
		return fmt.Errorf("invalid format version %q", v)
	}
	if semver.Major(v) != semver.Major(FormatVersion) {
		return fmt.Errorf("unsupported format version %s (want %s.x)", v, semver.Major(FormatVersion))
	}
	return nil
}
