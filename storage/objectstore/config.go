package objectstore

import (
	"fmt"
	"regexp"
	"time"

	"github.com/c360/barstreams/component"
	"github.com/c360/barstreams/errors"
)

// Port names.
const (
	PortJSON    = "json"
	PortXML     = "xml"
	PortFailure = "failure"
	PortAPI     = "api"
	PortEvents  = "events"
)

var bucketPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Config holds configuration for ObjectStore storage component.
type Config struct {
	Name           string                `json:"name"            schema:"type:string,description:Instance name used in logs and subjects,default:objectstore,category:basic"`
	Ports          *component.PortConfig `json:"ports"           schema:"type:ports,description:Port configuration for inputs and outputs,category:basic"`
	BucketName     string                `json:"bucket_name"     schema:"type:string,description:NATS ObjectStore bucket name,default:BARS,category:basic"`
	Prefix         string                `json:"prefix"          schema:"type:string,description:Key prefix for stored objects,default:history,category:basic"`
	MaxAge         string                `json:"max_age,omitempty" schema:"type:string,description:Expire objects after this long (empty keeps forever),category:advanced"`
	RequestTimeout string                `json:"request_timeout" schema:"type:string,description:Timeout for one API request or write,default:2s,category:advanced"`
}

// DefaultConfig returns the default configuration for ObjectStore.
func DefaultConfig() Config {
	inputDefs := []component.PortDefinition{
		{
			Name:        PortJSON,
			Type:        "nats",
			Subject:     "bars.json",
			Interface:   "bars.json.v1",
			Description: "JSON artifacts to store",
		},
		{
			Name:        PortXML,
			Type:        "nats",
			Subject:     "bars.xml",
			Interface:   "bars.xml.v1",
			Description: "XML artifacts to store",
		},
		{
			Name:        PortFailure,
			Type:        "nats",
			Subject:     "bars.failure",
			Interface:   "bars.csv.failure.v1",
			Description: "Failed batches to store",
		},
		{
			Name:        PortAPI,
			Type:        "nats-request",
			Subject:     "storage.objectstore.api",
			Timeout:     "2s",
			Description: "Request/Response API for get, info, list and delete",
		},
	}

	outputDefs := []component.PortDefinition{
		{
			Name:        PortEvents,
			Type:        "nats",
			Subject:     "storage.objectstore.events",
			Description: "Storage events (stored, deleted)",
		},
	}

	return Config{
		Name: "objectstore",
		Ports: &component.PortConfig{
			Inputs:  inputDefs,
			Outputs: outputDefs,
		},
		BucketName:     "BARS",
		Prefix:         "history",
		RequestTimeout: "2s",
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := component.ValidateComponentName(c.Name); err != nil {
		return errors.Wrap(err, "Config", "Validate", "name validation")
	}
	if !bucketPattern.MatchString(c.BucketName) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: bucket_name %q", errors.ErrInvalidConfig, c.BucketName), "Config", "Validate", "bucket validation")
	}
	if _, err := c.requestTimeout(); err != nil {
		return err
	}
	if _, err := c.maxAge(); err != nil {
		return err
	}
	return nil
}

func (c *Config) requestTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		return 0, errors.WrapInvalid(
			fmt.Errorf("%w: request_timeout %q", errors.ErrInvalidConfig, c.RequestTimeout),
			"Config", "Validate", "timeout validation")
	}
	return d, nil
}

func (c *Config) maxAge() (time.Duration, error) {
	if c.MaxAge == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.MaxAge)
	if err != nil || d < 0 {
		return 0, errors.WrapInvalid(
			fmt.Errorf("%w: max_age %q", errors.ErrInvalidConfig, c.MaxAge), "Config", "Validate", "max age validation")
	}
	return d, nil
}

// subject returns the subject of a named port or the instance default.
func (c *Config) subject(port string) string {
	if s := c.Ports.Input(port); s != "" {
		return s
	}
	if s := c.Ports.Output(port); s != "" {
		return s
	}
	return fmt.Sprintf("storage.%s.%s", c.Name, port)
}

func (c *Config) hasPort(name string) bool {
	if c.Ports == nil {
		return false
	}
	for _, p := range c.Ports.Inputs {
		if p.Name == name {
			return true
		}
	}
	for _, p := range c.Ports.Outputs {
		if p.Name == name {
			return true
		}
	}
	return false
}
