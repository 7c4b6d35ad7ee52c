package websocket

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/c360/barstreams/component"
	"github.com/c360/barstreams/errors"
)

// PortBatches is the output port batches are published on.
const PortBatches = "batches"

// Config holds configuration for WebSocket input component
type Config struct {
	Name  string                `json:"name"  schema:"type:string,description:Instance name used in logs and metrics,default:websocket,category:basic"`
	Ports *component.PortConfig `json:"ports" schema:"type:ports,description:Port configuration,category:basic"`

	// Server
	HTTPPort          int    `json:"http_port"          schema:"type:int,description:HTTP port to listen on (0 picks a free port),default:8081,category:basic"`
	Path              string `json:"path"               schema:"type:string,description:WebSocket endpoint path,default:/batches,category:basic"`
	MaxConnections    int    `json:"max_connections"    schema:"type:int,description:Maximum concurrent connections,default:100,min:1,category:advanced"`
	ReadLimit         int64  `json:"read_limit"         schema:"type:int,description:Maximum size of one message in bytes,default:16777216,min:1,category:advanced"`
	ReadBufferSize    int    `json:"read_buffer_size"   schema:"type:int,description:WebSocket read buffer size,default:4096,category:advanced"`
	WriteBufferSize   int    `json:"write_buffer_size"  schema:"type:int,description:WebSocket write buffer size,default:4096,category:advanced"`
	EnableCompression bool   `json:"enable_compression" schema:"type:bool,description:Enable per-message compression,default:true,category:advanced"`
	PublishTimeout    string `json:"publish_timeout"    schema:"type:string,description:Timeout for publishing one batch,default:5s,category:advanced"`

	// Authentication configuration
	Auth *AuthConfig `json:"auth,omitempty" schema:"type:object,description:Authentication configuration,category:advanced"`
}

// AuthConfig holds authentication configuration. Secrets are read from the
// named environment variables at connection time.
type AuthConfig struct {
	Type             string `json:"type"                         schema:"type:enum,description:Authentication type,enum:none|bearer|basic,default:none,category:basic"`
	BearerTokenEnv   string `json:"bearer_token_env,omitempty"   schema:"type:string,description:Environment variable for bearer token,category:advanced"`
	BasicUsernameEnv string `json:"basic_username_env,omitempty" schema:"type:string,description:Environment variable for basic auth username,category:advanced"`
	BasicPasswordEnv string `json:"basic_password_env,omitempty" schema:"type:string,description:Environment variable for basic auth password,category:advanced"`
}

// DefaultConfig returns the default configuration for WebSocket input
func DefaultConfig() Config {
	outputDefs := []component.PortDefinition{
		{
			Name:        PortBatches,
			Type:        "nats",
			Subject:     "bars.batches",
			Interface:   "bars.csv.v1",
			Required:    true,
			Description: "CSV history batches received over WebSocket",
		},
	}

	return Config{
		Name: "websocket",
		Ports: &component.PortConfig{
			Outputs: outputDefs,
		},
		HTTPPort:          8081,
		Path:              "/batches",
		MaxConnections:    100,
		ReadLimit:         16 << 20,
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		EnableCompression: true,
		PublishTimeout:    "5s",
		Auth:              &AuthConfig{Type: "none"},
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
	case !strings.HasPrefix(c.Path, "/"):
		return invalid("path %q must start with /", c.Path)
	case c.MaxConnections < 1:
		return invalid("max_connections must be positive")
	case c.ReadLimit < 1:
		return invalid("read_limit must be positive")
	}
	if _, err := c.publishTimeout(); err != nil {
		return err
	}
	if c.Auth != nil {
		switch c.Auth.Type {
		case "", "none":
		case "bearer":
			if c.Auth.BearerTokenEnv == "" {
				return invalid("bearer auth requires bearer_token_env")
			}
		case "basic":
			if c.Auth.BasicUsernameEnv == "" || c.Auth.BasicPasswordEnv == "" {
				return invalid("basic auth requires basic_username_env and basic_password_env")
			}
		default:
			return invalid("unknown auth type %q", c.Auth.Type)
		}
	}
	return nil
}

func (c *Config) publishTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.PublishTimeout)
	if err != nil || d <= 0 {
		return 0, invalid("publish_timeout %q", c.PublishTimeout)
	}
	return d, nil
}

func (c *Config) batchesSubject() string {
	if s := c.Ports.Output(PortBatches); s != "" {
		return s
	}
	return "bars.batches"
}

func invalid(format string, args ...any) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s", errors.ErrInvalidConfig, fmt.Sprintf(format, args...)),
		"Config", "Validate", "websocket input config")
}

// websocketInputSchema defines the configuration schema
var websocketInputSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))
