// Package file provides the file output component that writes each artifact
// message to its own file.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/barstreams/bars"
	"github.com/c360/barstreams/component"
	"github.com/c360/barstreams/errors"
	"github.com/c360/barstreams/metric"
	"github.com/c360/barstreams/natsclient"
)

// Port names. The failure port writes into the failure directory.
const (
	PortJSON    = "json"
	PortXML     = "xml"
	PortFailure = "failure"
)

// Config holds configuration for file output component
type Config struct {
	Name             string                `json:"name"              schema:"type:string,description:Instance name used in logs and metrics,default:file,category:basic"`
	Ports            *component.PortConfig `json:"ports"             schema:"type:ports,description:Port configuration,category:basic"`
	Directory        string                `json:"directory"         schema:"type:string,description:Directory artifacts are written to,required,category:basic"`
	FailureDirectory string                `json:"failure_directory" schema:"type:string,description:Directory for failed batches (defaults to <directory>/failure),category:advanced"`
	Overwrite        bool                  `json:"overwrite"         schema:"type:bool,description:Replace files that already exist,default:false,category:advanced"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if err := component.ValidateComponentName(c.Name); err != nil {
		return errors.Wrap(err, "Config", "Validate", "name validation")
	}
	if c.Directory == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "directory is required")
	}
	if c.Ports == nil || len(c.Ports.Inputs) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "no input ports configured")
	}
	return nil
}

func (c *Config) failureDir() string {
	if c.FailureDirectory != "" {
		return c.FailureDirectory
	}
	return filepath.Join(c.Directory, "failure")
}

// DefaultConfig returns default configuration for file output
func DefaultConfig() Config {
	inputDefs := []component.PortDefinition{
		{
			Name:        PortJSON,
			Type:        "nats",
			Subject:     "bars.json",
			Interface:   "bars.json.v1",
			Description: "JSON artifacts, one file each",
		},
		{
			Name:        PortXML,
			Type:        "nats",
			Subject:     "bars.xml",
			Interface:   "bars.xml.v1",
			Description: "XML artifacts, one file each",
		},
		{
			Name:        PortFailure,
			Type:        "nats",
			Subject:     "bars.failure",
			Interface:   "bars.csv.failure.v1",
			Description: "Batches that could not be decoded",
		},
	}

	return Config{
		Name: "file",
		Ports: &component.PortConfig{
			Inputs: inputDefs,
		},
		Directory: "./out",
	}
}

// fileSchema defines the configuration schema for file output component
var fileSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

type subscriber interface {
	SubscribeMsg(
		ctx context.Context, subject string, handler func(context.Context, *natsclient.Message),
	) (*natsclient.Subscription, error)
}

// Output writes artifact messages to files named by their filename header.
type Output struct {
	name       string
	config     Config
	natsClient subscriber
	logger     *slog.Logger
	metrics    *metric.Metrics

	artifacts *Sink
	failures  *Sink
	subs      []*natsclient.Subscription

	// Lifecycle management
	running     bool
	startTime   time.Time
	mu          sync.RWMutex
	lifecycleMu sync.Mutex

	// Metrics
	messagesWritten atomic.Int64
	bytesWritten    atomic.Int64
	errors          atomic.Int64
	lastActivity    time.Time
	lastError       string
}

// NewOutput creates a new file output from configuration
func NewOutput(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if err := component.SafeUnmarshal(rawConfig, &config); err != nil {
		return nil, errors.Wrap(err, "Output", "NewOutput", "config unmarshal")
	}

	o := &Output{
		name:   config.Name,
		config: config,
		logger: deps.GetLoggerWithComponent(config.Name),
	}
	if deps.NATSClient != nil {
		o.natsClient = deps.NATSClient
	}
	if deps.MetricsRegistry != nil {
		o.metrics = deps.MetricsRegistry.CoreMetrics()
	}
	return o, nil
}

// Initialize creates the output directories.
func (f *Output) Initialize() error {
	opts := []SinkOption{WithOverwrite(f.config.Overwrite)}

	artifacts, err := NewSink(f.config.Directory, opts...)
	if err != nil {
		return errors.Wrap(err, "Output", "Initialize", "artifact directory")
	}
	failures, err := NewSink(f.config.failureDir(), opts...)
	if err != nil {
		return errors.Wrap(err, "Output", "Initialize", "failure directory")
	}

	f.mu.Lock()
	f.artifacts, f.failures = artifacts, failures
	f.mu.Unlock()
	return nil
}

// Start subscribes to every NATS input port.
func (f *Output) Start(ctx context.Context) error {
	f.lifecycleMu.Lock()
	defer f.lifecycleMu.Unlock()

	f.mu.RLock()
	running, ready := f.running, f.artifacts != nil
	f.mu.RUnlock()

	if running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Output", "Start", "check running state")
	}
	if f.natsClient == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Output", "Start", "NATS client required")
	}
	if !ready {
		if err := f.Initialize(); err != nil {
			return err
		}
	}

	var subs []*natsclient.Subscription
	for _, input := range f.config.Ports.Inputs {
		if input.Type != "" && input.Type != "nats" {
			continue
		}
		sink := f.artifacts
		if input.Name == PortFailure {
			sink = f.failures
		}

		sub, err := f.natsClient.SubscribeMsg(ctx, input.Subject, f.handler(input.Name, sink))
		if err != nil {
			f.logger.Error("Failed to subscribe to NATS subject", "subject", input.Subject, "error", err)
			unsubscribeAll(subs)
			return errors.WrapTransient(err, "Output", "Start", fmt.Sprintf("subscribe to %s", input.Subject))
		}
		subs = append(subs, sub)
	}

	f.mu.Lock()
	f.subs = subs
	f.running = true
	f.startTime = time.Now()
	f.mu.Unlock()

	f.logger.Info("File output started",
		"directory", f.artifacts.Dir(),
		"failure_directory", f.failures.Dir(),
		"overwrite", f.config.Overwrite,
		"inputs", len(subs))
	return nil
}

// Stop unsubscribes from all inputs.
func (f *Output) Stop(_ time.Duration) error {
	f.lifecycleMu.Lock()
	defer f.lifecycleMu.Unlock()

	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	subs := f.subs
	f.subs = nil
	f.running = false
	f.mu.Unlock()

	unsubscribeAll(subs)
	f.logger.Info("File output stopped",
		"files_written", f.messagesWritten.Load(),
		"bytes_written", f.bytesWritten.Load())
	return nil
}

func unsubscribeAll(subs []*natsclient.Subscription) {
	for _, s := range subs {
		if s != nil {
			_ = s.Unsubscribe()
		}
	}
}

func (f *Output) handler(port string, sink *Sink) func(context.Context, *natsclient.Message) {
	return func(_ context.Context, msg *natsclient.Message) {
		name := msg.Headers[bars.AttrFilename]
		if name == "" {
			name = fmt.Sprintf("%s-%s", port, uuid.NewString())
		}

		if err := sink.Write(name, msg.Data); err != nil {
			f.errors.Add(1)
			f.mu.Lock()
			f.lastError = err.Error()
			f.mu.Unlock()
			if f.metrics != nil {
				f.metrics.RecordError(f.name, errors.Classify(err).String())
			}
			f.logger.Error("Failed to write file", "port", port, "filename", name, "error", err)
			return
		}

		f.messagesWritten.Add(1)
		f.bytesWritten.Add(int64(len(msg.Data)))
		f.mu.Lock()
		f.lastActivity = time.Now()
		f.mu.Unlock()
		f.logger.Debug("File written", "port", port, "filename", name, "bytes", len(msg.Data))
	}
}

// Discoverable interface implementation

// Meta returns component metadata
func (f *Output) Meta() component.Metadata {
	return component.Metadata{
		Name:        f.name,
		Type:        "output",
		Description: "Writes each artifact message to its own file",
		Version:     "1.0.0",
	}
}

// InputPorts returns configured input port definitions
func (f *Output) InputPorts() []component.Port {
	return component.PortsFromDefinitions(f.config.Ports.Inputs, component.DirectionInput)
}

// OutputPorts returns the directories written to.
func (f *Output) OutputPorts() []component.Port {
	return []component.Port{
		{
			Name:      "directory",
			Direction: component.DirectionOutput,
			Config:    component.FilePort{Path: f.config.Directory, Pattern: "*"},
		},
		{
			Name:      "failure_directory",
			Direction: component.DirectionOutput,
			Config:    component.FilePort{Path: f.config.failureDir(), Pattern: "*.csv"},
		},
	}
}

// ConfigSchema returns the configuration schema
func (f *Output) ConfigSchema() component.ConfigSchema {
	return fileSchema
}

// Health returns the current health status
func (f *Output) Health() component.HealthStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var uptime time.Duration
	if f.running {
		uptime = time.Since(f.startTime)
	}
	return component.HealthStatus{
		Healthy:    f.running && f.artifacts != nil,
		LastCheck:  time.Now(),
		ErrorCount: int(f.errors.Load()),
		LastError:  f.lastError,
		Uptime:     uptime,
	}
}

// DataFlow returns current data flow metrics
func (f *Output) DataFlow() component.FlowMetrics {
	f.mu.RLock()
	defer f.mu.RUnlock()

	written := f.messagesWritten.Load()
	errorCount := f.errors.Load()

	var errorRate, msgsPerSec, bytesPerSec float64
	if total := written + errorCount; total > 0 {
		errorRate = float64(errorCount) / float64(total)
	}
	if f.running {
		if elapsed := time.Since(f.startTime).Seconds(); elapsed > 0 {
			msgsPerSec = float64(written) / elapsed
			bytesPerSec = float64(f.bytesWritten.Load()) / elapsed
		}
	}

	return component.FlowMetrics{
		MessagesPerSecond: msgsPerSec,
		BytesPerSecond:    bytesPerSec,
		ErrorRate:         errorRate,
		LastActivity:      f.lastActivity,
	}
}

// Register registers the file output component with the given registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "file",
		Factory:     NewOutput,
		Schema:      fileSchema,
		Type:        "output",
		Protocol:    "file",
		Domain:      "storage",
		Description: "Writes JSON and XML artifacts and failed batches to disk, one file per message",
		Version:     "1.0.0",
	})
}
