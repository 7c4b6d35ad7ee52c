package component

import (
	"encoding/json"
	"fmt"

	"github.com/c360/barstreams/errors"
)

// Direction for data flow
type Direction string

// Direction constants for port data flow
const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// Port describes any I/O interface
type Port struct {
	Name        string    `json:"name"`
	Direction   Direction `json:"direction"`
	Required    bool      `json:"required"`
	Description string    `json:"description"`
	Config      Portable  `json:"config"`
}

// Portable is the transport-specific half of a Port.
type Portable interface {
	ResourceID() string // Unique identifier for conflict detection
	IsExclusive() bool  // Whether multiple components can share
	Type() string       // Port type identifier
}

// InterfaceContract names the payload a port carries.
type InterfaceContract struct {
	Type       string   `json:"type"`
	Version    string   `json:"version,omitempty"`
	Compatible []string `json:"compatible,omitempty"`
}

// portDecoders rebuilds a Portable from its JSON form, keyed by Type().
var portDecoders = map[string]func(json.RawMessage) (Portable, error){
	"nats":         decodePortable[NATSPort],
	"nats-request": decodePortable[NATSRequestPort],
	"network":      decodePortable[NetworkPort],
	"file":         decodePortable[FilePort],
	"objectstore":  decodePortable[ObjectStorePort],
}

func decodePortable[P Portable](data json.RawMessage) (Portable, error) {
	var p P
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}

type portConfigEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON writes Config as {"type": ..., "data": ...} so it can be
// reconstructed by UnmarshalJSON.
func (p Port) MarshalJSON() ([]byte, error) {
	type portAlias Port

	wrapper := struct {
		portAlias
		Config json.RawMessage `json:"config"`
	}{portAlias: portAlias(p)}

	if p.Config != nil {
		data, err := json.Marshal(p.Config)
		if err != nil {
			return nil, errors.Wrap(err, "Port", "MarshalJSON", "config marshaling")
		}
		wrapper.Config, err = json.Marshal(portConfigEnvelope{Type: p.Config.Type(), Data: data})
		if err != nil {
			return nil, errors.Wrap(err, "Port", "MarshalJSON", "config envelope marshaling")
		}
	}

	return json.Marshal(wrapper)
}

// UnmarshalJSON restores a Port written by MarshalJSON.
func (p *Port) UnmarshalJSON(data []byte) error {
	type portAlias Port

	temp := struct {
		*portAlias
		Config json.RawMessage `json:"config"`
	}{portAlias: (*portAlias)(p)}

	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}
	if len(temp.Config) == 0 || string(temp.Config) == "null" {
		p.Config = nil
		return nil
	}

	var env portConfigEnvelope
	if err := json.Unmarshal(temp.Config, &env); err != nil {
		return errors.Wrap(err, "Port", "UnmarshalJSON", "config envelope unmarshaling")
	}

	decode, ok := portDecoders[env.Type]
	if !ok {
		return errors.WrapInvalid(
			fmt.Errorf("unknown config type: %s", env.Type),
			"Port", "UnmarshalJSON", "config type validation")
	}

	cfg, err := decode(env.Data)
	if err != nil {
		return errors.Wrap(err, "Port", "UnmarshalJSON", env.Type+" config unmarshaling")
	}
	p.Config = cfg
	return nil
}
