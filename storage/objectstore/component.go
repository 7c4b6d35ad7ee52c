package objectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/barstreams/bars"
	"github.com/c360/barstreams/component"
	"github.com/c360/barstreams/errors"
	"github.com/c360/barstreams/metric"
	"github.com/c360/barstreams/natsclient"
	"github.com/c360/barstreams/storage"
)

// objectstoreSchema defines the configuration schema for ObjectStore component
var objectstoreSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// API actions.
const (
	ActionGet    = "get"
	ActionInfo   = "info"
	ActionList   = "list"
	ActionDelete = "delete"
)

// Event types.
const (
	EventStored  = "stored"
	EventDeleted = "deleted"
)

// Request represents a request to the ObjectStore API
type Request struct {
	Action string `json:"action"` // get, info, list, delete
	Key    string `json:"key,omitempty"`
	Prefix string `json:"prefix,omitempty"` // For list operation
}

// Response represents a response from the ObjectStore API
type Response struct {
	Success bool     `json:"success"`
	Key     string   `json:"key,omitempty"`
	Object  *Object  `json:"object,omitempty"`
	Keys    []string `json:"keys,omitempty"` // For list operation
	Error   string   `json:"error,omitempty"`
}

// Event represents a storage event published by ObjectStore
type Event struct {
	Type      string            `json:"type"`
	Key       string            `json:"key"`
	Size      int               `json:"size,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type transport interface {
	SubscribeMsg(
		ctx context.Context, subject string, handler func(context.Context, *natsclient.Message),
	) (*natsclient.Subscription, error)
	PublishMsg(ctx context.Context, subject string, data []byte, headers map[string]string) error
	CreateObjectStore(ctx context.Context, cfg jetstream.ObjectStoreConfig) (jetstream.ObjectStore, error)
}

// Component stores artifact and failure messages in an ObjectStore bucket
// and serves lookups over a request/reply subject.
type Component struct {
	name      string
	config    Config
	transport transport
	logger    *slog.Logger
	keys      storage.KeyGenerator

	registry    *metric.MetricsRegistry
	coreMetrics *metric.Metrics
	metrics     *storeMetrics
	metricsOnce sync.Once

	store *Store
	subs  []*natsclient.Subscription

	// Lifecycle management
	running     bool
	startTime   time.Time
	mu          sync.RWMutex
	lifecycleMu sync.Mutex

	// Metrics tracking
	messagesReceived atomic.Int64
	objectsStored    atomic.Int64
	bytesStored      atomic.Int64
	requestsServed   atomic.Int64
	errors           atomic.Int64
	lastActivity     time.Time
	lastError        string
}

// Ensure Component implements required interfaces
var _ component.Discoverable = (*Component)(nil)
var _ component.LifecycleComponent = (*Component)(nil)

// NewComponent creates a new ObjectStore component from configuration
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	cfg := DefaultConfig()
	if err := component.SafeUnmarshal(rawConfig, &cfg); err != nil {
		return nil, errors.Wrap(err, "Component", "NewComponent", "config unmarshal")
	}

	c := &Component{
		name:     cfg.Name,
		config:   cfg,
		logger:   deps.GetLoggerWithComponent(cfg.Name),
		registry: deps.MetricsRegistry,
	}
	c.keys = PortKeyGenerator(cfg.Prefix)
	if deps.NATSClient != nil {
		c.transport = deps.NATSClient
	}
	if deps.MetricsRegistry != nil {
		c.coreMetrics = deps.MetricsRegistry.CoreMetrics()
	}
	return c, nil
}

// PortKeyGenerator keys messages as <prefix>/<port>/<filename>. Messages
// without a filename header fall back to their batch id.
func PortKeyGenerator(prefix string) storage.KeyGenerator {
	return storage.KeyGeneratorFunc(func(port string, headers map[string]string) string {
		name := headers[bars.AttrFilename]
		if name == "" {
			name = headers[bars.AttrBatchID]
		}
		if name == "" {
			name = fmt.Sprintf("%d", time.Now().UnixNano())
		}
		return storage.JoinKey(prefix, port, name)
	})
}

// Initialize sets up the component (no I/O operations)
func (c *Component) Initialize() error {
	return nil
}

// Store returns the underlying store once started.
func (c *Component) Store() *Store {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store
}

// Start opens the bucket and subscribes to the configured ports.
func (c *Component) Start(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.mu.RLock()
	running := c.running
	c.mu.RUnlock()
	if running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Component", "Start", "check running state")
	}
	if c.transport == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Component", "Start", "NATS client required")
	}

	maxAge, _ := c.config.maxAge()
	obs, err := c.transport.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      c.config.BucketName,
		Description: fmt.Sprintf("%s artifacts", c.name),
		TTL:         maxAge,
	})
	if err != nil {
		c.logger.Error("Failed to open ObjectStore", "bucket", c.config.BucketName, "error", err)
		return errors.WrapTransient(err, "Component", "Start", "open bucket")
	}

	c.metricsOnce.Do(func() {
		m, err := newStoreMetrics(c.registry, c.config.BucketName)
		if err != nil {
			c.logger.Error("Failed to register ObjectStore metrics", "error", err)
			return
		}
		c.metrics = m
	})
	store := NewStore(obs, c.config.BucketName, c.metrics)

	var subs []*natsclient.Subscription
	for _, input := range c.config.Ports.Inputs {
		var handler func(context.Context, *natsclient.Message)
		switch input.Type {
		case "", "nats":
			handler = c.writeHandler(store, input.Name)
		case "nats-request":
			if input.Name != PortAPI {
				continue
			}
			handler = c.apiHandler(store)
		default:
			continue
		}

		sub, err := c.transport.SubscribeMsg(ctx, input.Subject, handler)
		if err != nil {
			c.logger.Error("Failed to subscribe to NATS subject", "subject", input.Subject, "error", err)
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return errors.WrapTransient(err, "Component", "Start", fmt.Sprintf("subscribe to %s", input.Subject))
		}
		subs = append(subs, sub)
	}

	c.mu.Lock()
	c.store = store
	c.subs = subs
	c.running = true
	c.startTime = time.Now()
	c.mu.Unlock()

	if c.coreMetrics != nil {
		c.coreMetrics.RecordComponentStatus(c.name, int(component.StateStarted))
	}
	c.logger.Info("ObjectStore started",
		"bucket", c.config.BucketName,
		"prefix", c.config.Prefix,
		"subscriptions", len(subs))
	return nil
}

// Stop unsubscribes from every port.
func (c *Component) Stop(_ time.Duration) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	subs := c.subs
	c.subs = nil
	c.running = false
	c.mu.Unlock()

	var firstErr error
	for _, s := range subs {
		if s == nil {
			continue
		}
		if err := s.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = errors.WrapTransient(err, "Component", "Stop", fmt.Sprintf("unsubscribe %s", s.Subject()))
		}
	}

	if c.coreMetrics != nil {
		c.coreMetrics.RecordComponentStatus(c.name, int(component.StateStopped))
	}
	c.logger.Info("ObjectStore stopped",
		"objects_stored", c.objectsStored.Load(),
		"requests_served", c.requestsServed.Load())
	return firstErr
}

func (c *Component) timeout() time.Duration {
	d, err := c.config.requestTimeout()
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// writeHandler stores every message received on port.
func (c *Component) writeHandler(store *Store, port string) func(context.Context, *natsclient.Message) {
	return func(ctx context.Context, msg *natsclient.Message) {
		c.messagesReceived.Add(1)

		ctx, cancel := context.WithTimeout(ctx, c.timeout())
		defer cancel()

		key := c.keys.GenerateKey(port, msg.Headers)
		obj, err := store.PutObject(ctx, key, msg.Data, msg.Headers)
		if err != nil {
			c.recordError(err)
			c.logger.Error("Failed to store message", "port", port, "key", key, "error", err)
			return
		}

		c.objectsStored.Add(1)
		c.bytesStored.Add(int64(len(msg.Data)))
		c.touch()
		c.logger.Debug("Message stored", "port", port, "key", key, "bytes", len(msg.Data))

		c.publishEvent(ctx, Event{
			Type:      EventStored,
			Key:       obj.Key,
			Size:      len(msg.Data),
			Timestamp: time.Now(),
			Metadata:  msg.Headers,
		})
	}
}

// apiHandler answers get, info, list and delete requests.
func (c *Component) apiHandler(store *Store) func(context.Context, *natsclient.Message) {
	return func(ctx context.Context, msg *natsclient.Message) {
		c.messagesReceived.Add(1)
		c.touch()

		ctx, cancel := context.WithTimeout(ctx, c.timeout())
		defer cancel()

		resp := c.serve(ctx, store, msg.Data)
		c.requestsServed.Add(1)

		data, err := json.Marshal(resp)
		if err != nil {
			c.logger.Error("Failed to marshal response", "error", err)
			return
		}
		if err := msg.Respond(data); err != nil {
			c.logger.Error("Failed to send response", "subject", msg.Subject, "error", err)
		}
	}
}

func (c *Component) serve(ctx context.Context, store *Store, body []byte) Response {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return c.failure(errors.WrapInvalid(err, "Component", "serve", "decode request"))
	}

	switch req.Action {
	case ActionGet:
		obj, err := store.GetObject(ctx, req.Key)
		if err != nil {
			return c.failure(err)
		}
		return Response{Success: true, Key: req.Key, Object: &obj}

	case ActionInfo:
		obj, err := store.Info(ctx, req.Key)
		if err != nil {
			return c.failure(err)
		}
		return Response{Success: true, Key: req.Key, Object: &obj}

	case ActionList:
		keys, err := store.List(ctx, req.Prefix)
		if err != nil {
			return c.failure(err)
		}
		return Response{Success: true, Keys: keys}

	case ActionDelete:
		if err := validateKey(req.Key); err != nil {
			return c.failure(err)
		}
		if err := store.Delete(ctx, req.Key); err != nil {
			return c.failure(err)
		}
		c.publishEvent(ctx, Event{Type: EventDeleted, Key: req.Key, Timestamp: time.Now()})
		return Response{Success: true, Key: req.Key}

	default:
		return c.failure(errors.WrapInvalid(
			fmt.Errorf("%w: unknown action %q", errors.ErrInvalidData, req.Action), "Component", "serve", "dispatch"))
	}
}

func (c *Component) failure(err error) Response {
	if !errors.IsInvalid(err) {
		c.recordError(err)
	}
	return Response{Success: false, Error: err.Error()}
}

// publishEvent publishes a storage event when an events port is configured.
func (c *Component) publishEvent(ctx context.Context, event Event) {
	if !c.hasPort(PortEvents) {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("Failed to marshal event", "error", err)
		return
	}
	subject := c.config.subject(PortEvents)
	if err := c.transport.PublishMsg(ctx, subject, data, nil); err != nil {
		c.logger.Warn("Failed to publish event", "subject", subject, "error", err)
		return
	}
	if c.coreMetrics != nil {
		c.coreMetrics.RecordMessagePublished(c.name, subject)
	}
}

func (c *Component) hasPort(name string) bool {
	return c.config.hasPort(name)
}

func (c *Component) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

func (c *Component) recordError(err error) {
	c.errors.Add(1)
	c.mu.Lock()
	c.lastError = err.Error()
	c.mu.Unlock()
	if c.coreMetrics != nil {
		c.coreMetrics.RecordError(c.name, errors.Classify(err).String())
	}
}

// Meta returns component metadata
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        c.name,
		Type:        "storage",
		Description: "Stores artifacts and failed batches in a NATS ObjectStore bucket",
		Version:     "1.0.0",
	}
}

// InputPorts returns the input ports for this component
func (c *Component) InputPorts() []component.Port {
	return component.PortsFromDefinitions(c.config.Ports.Inputs, component.DirectionInput)
}

// OutputPorts returns the output ports for this component
func (c *Component) OutputPorts() []component.Port {
	return component.PortsFromDefinitions(c.config.Ports.Outputs, component.DirectionOutput)
}

// ConfigSchema returns the configuration schema for this component
func (c *Component) ConfigSchema() component.ConfigSchema {
	return objectstoreSchema
}

// Health returns current health status
func (c *Component) Health() component.HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var uptime time.Duration
	if c.running {
		uptime = time.Since(c.startTime)
	}
	return component.HealthStatus{
		Healthy:    c.running,
		LastCheck:  time.Now(),
		ErrorCount: int(c.errors.Load()),
		LastError:  c.lastError,
		Uptime:     uptime,
	}
}

// DataFlow returns current data flow metrics
func (c *Component) DataFlow() component.FlowMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	received := c.messagesReceived.Load()
	errorCount := c.errors.Load()

	var errorRate, msgsPerSec, bytesPerSec float64
	if received > 0 {
		errorRate = float64(errorCount) / float64(received)
	}
	if c.running {
		if elapsed := time.Since(c.startTime).Seconds(); elapsed > 0 {
			msgsPerSec = float64(received) / elapsed
			bytesPerSec = float64(c.bytesStored.Load()) / elapsed
		}
	}
	return component.FlowMetrics{
		MessagesPerSecond: msgsPerSec,
		BytesPerSecond:    bytesPerSec,
		ErrorRate:         errorRate,
		LastActivity:      c.lastActivity,
	}
}
