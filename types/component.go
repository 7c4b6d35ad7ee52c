// Package types contains configuration shapes shared by the config and
// component packages.
package types

import (
	"encoding/json"
	"fmt"

	"github.com/c360/barstreams/errors"
)

// ComponentType represents the category of a component
type ComponentType string

// Component type constants
const (
	ComponentTypeInput     ComponentType = "input"
	ComponentTypeProcessor ComponentType = "processor"
	ComponentTypeOutput    ComponentType = "output"
	ComponentTypeStorage   ComponentType = "storage"
)

// ComponentConfig describes one component instance. The instance name is
// the key in the components map.
type ComponentConfig struct {
	Type    ComponentType   `json:"type"`    // input, processor, output or storage
	Name    string          `json:"name"`    // Factory name (e.g. "history", "file", "httpupload")
	Enabled bool            `json:"enabled"` // Disabled instances are not created
	Config  json.RawMessage `json:"config"`  // Component-specific configuration
}

// Validate ensures the component configuration is valid
func (c ComponentConfig) Validate() error {
	if c.Type == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "ComponentConfig", "Validate",
			"component type cannot be empty")
	}
	if c.Name == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "ComponentConfig", "Validate",
			"component factory name cannot be empty")
	}

	switch c.Type {
	case ComponentTypeInput, ComponentTypeProcessor, ComponentTypeOutput, ComponentTypeStorage:
		return nil
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ComponentConfig", "Validate",
			fmt.Sprintf("invalid component type: %s", c.Type))
	}
}

// String implements fmt.Stringer for ComponentType
func (ct ComponentType) String() string {
	return string(ct)
}

// PlatformMeta identifies the deployment a component runs in. Subjects and
// object names are not derived from it; it is reported in component health
// and log lines.
type PlatformMeta struct {
	Org      string // Organization namespace (e.g. "c360")
	Platform string // Platform identifier (e.g. "edge-01")
}

// ID returns "org.platform", or just whichever part is set.
func (p PlatformMeta) ID() string {
	switch {
	case p.Org != "" && p.Platform != "":
		return p.Org + "." + p.Platform
	case p.Org != "":
		return p.Org
	default:
		return p.Platform
	}
}
