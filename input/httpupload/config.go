package httpupload

import (
	"fmt"
	"reflect"
	"time"

	"github.com/c360/barstreams/component"
	"github.com/c360/barstreams/errors"
)

// PortBatches is the output port uploads are published on.
const PortBatches = "batches"

// Config holds configuration for the HTTP upload input.
type Config struct {
	Name           string                `json:"name"             schema:"type:string,description:Instance name used in logs and metrics,default:httpupload,category:basic"`
	Ports          *component.PortConfig `json:"ports"            schema:"type:ports,description:Port configuration,category:basic"`
	HTTPPort       int                   `json:"http_port"        schema:"type:int,description:HTTP port to listen on (0 picks a free port),default:8082,category:basic"`
	MaxUploadBytes int64                 `json:"max_upload_bytes" schema:"type:int,description:Largest accepted upload in bytes,default:67108864,min:1,category:basic"`
	RateLimit      float64               `json:"rate_limit"       schema:"type:float,description:Uploads accepted per second,default:10,category:advanced"`
	Burst          int                   `json:"burst"            schema:"type:int,description:Uploads accepted in a burst above the rate,default:20,min:1,category:advanced"`
	PublishTimeout string                `json:"publish_timeout"  schema:"type:string,description:Timeout for publishing one upload,default:5s,category:advanced"`
	RequestTimeout string                `json:"request_timeout"  schema:"type:string,description:Timeout for one HTTP request,default:60s,category:advanced"`
}

// DefaultConfig returns the default configuration for the HTTP upload input.
func DefaultConfig() Config {
	return Config{
		Name: "httpupload",
		Ports: &component.PortConfig{
			Outputs: []component.PortDefinition{
				{
					Name:        PortBatches,
					Type:        "nats",
					Subject:     "bars.batches",
					Interface:   "bars.csv.v1",
					Required:    true,
					Description: "Uploaded CSV history batches",
				},
			},
		},
		HTTPPort:       8082,
		MaxUploadBytes: 64 << 20,
		RateLimit:      10,
		Burst:          20,
		PublishTimeout: "5s",
		RequestTimeout: "60s",
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if err := component.ValidateComponentName(c.Name); err != nil {
		return errors.Wrap(err, "Config", "Validate", "name validation")
	}
	switch {
	case c.HTTPPort < 0 || c.HTTPPort > 65535:
		return invalid("http_port %d out of range", c.HTTPPort)
	case c.MaxUploadBytes < 1:
		return invalid("max_upload_bytes must be positive")
	case c.RateLimit <= 0:
		return invalid("rate_limit must be positive")
	case c.Burst < 1:
		return invalid("burst must be positive")
	}
	if _, err := duration("publish_timeout", c.PublishTimeout); err != nil {
		return err
	}
	if _, err := duration("request_timeout", c.RequestTimeout); err != nil {
		return err
	}
	return nil
}

func (c *Config) batchesSubject() string {
	if s := c.Ports.Output(PortBatches); s != "" {
		return s
	}
	return "bars.batches"
}

func duration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, invalid("%s %q", field, value)
	}
	return d, nil
}

func invalid(format string, args ...any) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s", errors.ErrInvalidConfig, fmt.Sprintf(format, args...)),
		"Config", "Validate", "http upload config")
}

var httpUploadSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))
