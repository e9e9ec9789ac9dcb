package planner

import (
	"github.com/kolkov/cfedplanner/internal/cfed/cfg"
	"github.com/kolkov/cfedplanner/internal/cfed/config"
	"github.com/kolkov/cfedplanner/internal/cfed/technique"
)

// Version information for the planner.
const (
	// Version is the current version of the planner.
	Version = "0.1.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 1

	// VersionPatch is the patch version number.
	VersionPatch = 0
)

// Info describes the planner build.
type Info struct {
	// Version is the planner version string.
	Version string

	// CFGFormat is the CFG file format version written and accepted.
	CFGFormat string

	// ConfigFormat is the configuration format version.
	ConfigFormat string

	// Techniques lists the detection techniques in declaration order.
	Techniques []string
}

// GetInfo returns information about the planner.
//
// Example:
//
//	info := planner.GetInfo()
//	fmt.Printf("cfedplan %s (%d techniques)\n", info.Version, len(info.Techniques))
func GetInfo() Info {
	kinds := technique.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return Info{
		Version:      Version,
		CFGFormat:    cfg.FormatVersion,
		ConfigFormat: config.Version,
		Techniques:   names,
	}
}
