package history

import (
	"fmt"
	"reflect"
	"time"

	"github.com/c360/barstreams/bars"
	"github.com/c360/barstreams/component"
	"github.com/c360/barstreams/errors"
	"github.com/c360/barstreams/pkg/retry"
)

// Port names.
const (
	PortBatches = "batches"
	PortJSON    = "json"
	PortXML     = "xml"
	PortDB      = "db"
	PortFailure = "failure"
)

// Interface contracts carried on the ports.
const (
	InterfaceBatch    = "bars.csv.v1"
	InterfaceJSON     = "bars.json.v1"
	InterfaceXML      = "bars.xml.v1"
	InterfaceDB       = "bars.db.v1"
	InterfaceFailure  = "bars.csv.failure.v1"
	interfaceVersion  = "v1"
	defaultInstance   = "history"
	defaultQueueSize  = 100
	defaultWorkers    = 4
	defaultPubTimeout = "5s"
)

// Config holds configuration for the history processor.
type Config struct {
	Name           string                `json:"name"                 schema:"type:string,description:Instance name used in logs and metrics,default:history,category:basic"`
	Ports          *component.PortConfig `json:"ports"                schema:"type:ports,description:Port configuration,category:basic"`
	Output         string                `json:"output"               schema:"type:enum,description:Artifact formats produced per batch,enum:ALL|JSON|XML|DB,default:ALL,category:basic"`
	TimeZone       string                `json:"time_zone,omitempty"  schema:"type:string,description:IANA zone timestamps are rendered in (empty uses the host zone),category:advanced"`
	Workers        int                   `json:"workers"              schema:"type:int,description:Batches processed concurrently,default:4,min:1,max:64,category:advanced"`
	QueueSize      int                   `json:"queue_size"           schema:"type:int,description:Batches buffered ahead of the workers,default:100,min:1,max:10000,category:advanced"`
	QueueGroup     string                `json:"queue_group,omitempty" schema:"type:string,description:NATS queue group shared by processor replicas,category:advanced"`
	PublishTimeout string                `json:"publish_timeout"      schema:"type:string,description:Upper bound for delivering one artifact,default:5s,category:advanced"`
	Retry          RetryConfig           `json:"retry"                schema:"type:object,description:Artifact publish retry policy,category:advanced"`
}

// RetryConfig bounds redelivery of a single artifact.
type RetryConfig struct {
	MaxAttempts  int    `json:"max_attempts"  schema:"type:int,description:Publish attempts per artifact,default:3,min:1,max:10"`
	InitialDelay string `json:"initial_delay" schema:"type:string,description:Delay before the second attempt,default:100ms"`
	MaxDelay     string `json:"max_delay"     schema:"type:string,description:Longest delay between attempts,default:2s"`
}

// DefaultConfig returns the default configuration for the history processor.
func DefaultConfig() Config {
	inputDefs := []component.PortDefinition{
		{
			Name:        PortBatches,
			Type:        "nats",
			Subject:     "bars.batches",
			Interface:   InterfaceBatch,
			Required:    true,
			Description: "CSV history batches; the filename header names the batch",
		},
	}

	outputDefs := []component.PortDefinition{
		{
			Name:        PortJSON,
			Type:        "nats",
			Subject:     "bars.json",
			Interface:   InterfaceJSON,
			Description: "One JSON document per record",
		},
		{
			Name:        PortXML,
			Type:        "nats",
			Subject:     "bars.xml",
			Interface:   InterfaceXML,
			Description: "One XML document per record",
		},
		{
			Name:        PortDB,
			Type:        "nats",
			Subject:     "bars.db",
			Interface:   InterfaceDB,
			Description: "Reserved for database output; nothing is published",
		},
		{
			Name:        PortFailure,
			Type:        "nats",
			Subject:     "bars.failure",
			Interface:   InterfaceFailure,
			Required:    true,
			Description: "Batches that could not be decoded, unmodified",
		},
	}

	return Config{
		Name: defaultInstance,
		Ports: &component.PortConfig{
			Inputs:  inputDefs,
			Outputs: outputDefs,
		},
		Output:         string(bars.OutputAll),
		Workers:        defaultWorkers,
		QueueSize:      defaultQueueSize,
		PublishTimeout: defaultPubTimeout,
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: "100ms",
			MaxDelay:     "2s",
		},
	}
}

var historySchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := component.ValidateComponentName(c.Name); err != nil {
		return errors.Wrap(err, "Config", "Validate", "name validation")
	}
	if _, err := bars.ParseOutput(c.Output); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Workers < 1 {
		return invalid("workers must be at least 1, got %d", c.Workers)
	}
	if c.QueueSize < 1 {
		return invalid("queue_size must be at least 1, got %d", c.QueueSize)
	}
	if _, err := parseDuration("publish_timeout", c.PublishTimeout); err != nil {
		return err
	}
	_, err := c.RetryPolicy()
	return err
}

// Location resolves TimeZone. An empty zone is the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: time_zone %q: %v", errors.ErrInvalidConfig, c.TimeZone, err),
			"Config", "Location", "zone lookup")
	}
	return loc, nil
}

// RetryPolicy converts the retry block into a retry.Config.
func (c *Config) RetryPolicy() (retry.Config, error) {
	initial, err := parseDuration("retry.initial_delay", c.Retry.InitialDelay)
	if err != nil {
		return retry.Config{}, err
	}
	maxDelay, err := parseDuration("retry.max_delay", c.Retry.MaxDelay)
	if err != nil {
		return retry.Config{}, err
	}
	if c.Retry.MaxAttempts < 1 {
		return retry.Config{}, invalid("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if maxDelay < initial {
		return retry.Config{}, invalid("retry.max_delay %s is below retry.initial_delay %s", maxDelay, initial)
	}
	return retry.Config{
		MaxAttempts:  c.Retry.MaxAttempts,
		InitialDelay: initial,
		MaxDelay:     maxDelay,
		Multiplier:   2.0,
		AddJitter:    true,
	}, nil
}

// subject resolves a port subject, falling back to the default definition
// when the configured ports omit it.
func (c *Config) subject(input bool, name string) string {
	var s string
	if input {
		s = c.Ports.Input(name)
	} else {
		s = c.Ports.Output(name)
	}
	if s != "" {
		return s
	}
	def := DefaultConfig()
	if input {
		return def.Ports.Input(name)
	}
	return def.Ports.Output(name)
}

func parseDuration(field, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, invalid("%s: %v", field, err)
	}
	if d <= 0 {
		return 0, invalid("%s must be positive, got %s", field, s)
	}
	return d, nil
}

func invalid(format string, args ...any) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...),
		"Config", "Validate", "field validation")
}
