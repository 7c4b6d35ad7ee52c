package httpupload

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/c360/barstreams/component"
	"github.com/c360/barstreams/errors"
	"github.com/c360/barstreams/metric"
)

type publisher interface {
	PublishMsg(ctx context.Context, subject string, data []byte, headers map[string]string) error
}

// Input serves CSV uploads over HTTP and publishes each as a batch.
type Input struct {
	name      string
	config    Config
	publisher publisher
	logger    *slog.Logger
	core      *metric.Metrics

	subject        string
	publishTimeout time.Duration
	requestTimeout time.Duration
	limiter        *rate.Limiter
	router         *chi.Mux

	httpServer *http.Server
	listener   net.Listener
	wg         sync.WaitGroup

	// Lifecycle management
	running     bool
	startTime   time.Time
	mu          sync.RWMutex
	lifecycleMu sync.Mutex

	// Statistics
	uploadsAccepted atomic.Int64
	bytesAccepted   atomic.Int64
	rejected        atomic.Int64
	errorCount      atomic.Int64
	lastActivity    time.Time
	lastError       string
}

var (
	_ component.LifecycleComponent = (*Input)(nil)
	_ component.Discoverable       = (*Input)(nil)
)

// CreateInput is the factory function for HTTP upload inputs.
func CreateInput(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	cfg := DefaultConfig()
	if err := component.SafeUnmarshal(rawConfig, &cfg); err != nil {
		return nil, errors.Wrap(err, "Input", "CreateInput", "config unmarshal")
	}

	var pub publisher
	if deps.NATSClient != nil {
		pub = deps.NATSClient
	}
	return newInput(cfg, pub, deps), nil
}

func newInput(cfg Config, pub publisher, deps component.Dependencies) *Input {
	publishTimeout, _ := duration("publish_timeout", cfg.PublishTimeout)
	requestTimeout, _ := duration("request_timeout", cfg.RequestTimeout)

	u := &Input{
		name:           cfg.Name,
		config:         cfg,
		publisher:      pub,
		logger:         deps.GetLoggerWithComponent(cfg.Name),
		subject:        cfg.batchesSubject(),
		publishTimeout: publishTimeout,
		requestTimeout: requestTimeout,
		limiter:        rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
	}
	if deps.MetricsRegistry != nil {
		u.core = deps.MetricsRegistry.CoreMetrics()
	}
	u.router = u.newRouter()
	return u
}

// Handler returns the upload router.
func (u *Input) Handler() http.Handler {
	return u.router
}

// Addr returns the listen address once started.
func (u *Input) Addr() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.listener == nil {
		return ""
	}
	return u.listener.Addr().String()
}

// Initialize is a no-op; the router is built at construction.
func (u *Input) Initialize() error {
	return nil
}

// Start listens on the configured port.
func (u *Input) Start(_ context.Context) error {
	u.lifecycleMu.Lock()
	defer u.lifecycleMu.Unlock()

	u.mu.RLock()
	running := u.running
	u.mu.RUnlock()
	if running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Input", "Start", "check running state")
	}
	if u.publisher == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Input", "Start", "NATS client required")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", u.config.HTTPPort))
	if err != nil {
		return errors.WrapFatal(err, "Input", "Start", fmt.Sprintf("listen on port %d", u.config.HTTPPort))
	}
	srv := &http.Server{
		Handler:           u.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	u.mu.Lock()
	u.listener = ln
	u.httpServer = srv
	u.running = true
	u.startTime = time.Now()
	u.mu.Unlock()

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			u.recordError(err)
			u.logger.Error("Upload server failed", "error", err)
		}
	}()

	if u.core != nil {
		u.core.RecordComponentStatus(u.name, int(component.StateStarted))
	}
	u.logger.Info("HTTP upload input started",
		"addr", ln.Addr().String(),
		"subject", u.subject,
		"max_upload_bytes", u.config.MaxUploadBytes,
		"rate_limit", u.config.RateLimit)
	return nil
}

// Stop drains in-flight uploads and closes the listener.
func (u *Input) Stop(timeout time.Duration) error {
	u.lifecycleMu.Lock()
	defer u.lifecycleMu.Unlock()

	u.mu.Lock()
	if !u.running {
		u.mu.Unlock()
		return nil
	}
	u.running = false
	srv := u.httpServer
	u.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := srv.Shutdown(ctx)
	u.wg.Wait()

	if u.core != nil {
		u.core.RecordComponentStatus(u.name, int(component.StateStopped))
	}
	u.logger.Info("HTTP upload input stopped",
		"uploads", u.uploadsAccepted.Load(),
		"rejected", u.rejected.Load())
	if err != nil {
		return errors.WrapTransient(err, "Input", "Stop", "server shutdown")
	}
	return nil
}

func (u *Input) recordError(err error) {
	u.errorCount.Add(1)
	u.mu.Lock()
	u.lastError = err.Error()
	u.mu.Unlock()
	if u.core != nil {
		u.core.RecordError(u.name, errors.Classify(err).String())
	}
}

// Meta returns component metadata
func (u *Input) Meta() component.Metadata {
	return component.Metadata{
		Name:        u.name,
		Type:        "input",
		Description: "HTTP endpoint accepting CSV history uploads",
		Version:     "1.0.0",
	}
}

// InputPorts returns the HTTP endpoint.
func (u *Input) InputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "http",
			Direction:   component.DirectionInput,
			Required:    true,
			Description: "POST /batches upload endpoint",
			Config: component.NetworkPort{
				Protocol: "http",
				Host:     "0.0.0.0",
				Port:     u.config.HTTPPort,
			},
		},
	}
}

// OutputPorts returns the output ports
func (u *Input) OutputPorts() []component.Port {
	return component.PortsFromDefinitions(u.config.Ports.Outputs, component.DirectionOutput)
}

// ConfigSchema returns the configuration schema
func (u *Input) ConfigSchema() component.ConfigSchema {
	return httpUploadSchema
}

// Health returns the current health status
func (u *Input) Health() component.HealthStatus {
	u.mu.RLock()
	defer u.mu.RUnlock()

	var uptime time.Duration
	if u.running {
		uptime = time.Since(u.startTime)
	}
	return component.HealthStatus{
		Healthy:    u.running,
		LastCheck:  time.Now(),
		ErrorCount: int(u.errorCount.Load()),
		LastError:  u.lastError,
		Uptime:     uptime,
	}
}

// DataFlow returns current data flow metrics
func (u *Input) DataFlow() component.FlowMetrics {
	u.mu.RLock()
	defer u.mu.RUnlock()

	accepted := u.uploadsAccepted.Load()
	var msgsPerSec, bytesPerSec, errorRate float64
	if u.running {
		if elapsed := time.Since(u.startTime).Seconds(); elapsed > 0 {
			msgsPerSec = float64(accepted) / elapsed
			bytesPerSec = float64(u.bytesAccepted.Load()) / elapsed
		}
	}
	if total := accepted + u.rejected.Load() + u.errorCount.Load(); total > 0 {
		errorRate = float64(total-accepted) / float64(total)
	}
	return component.FlowMetrics{
		MessagesPerSecond: msgsPerSec,
		BytesPerSecond:    bytesPerSec,
		ErrorRate:         errorRate,
		LastActivity:      u.lastActivity,
	}
}

// Register registers the HTTP upload input with the registry.
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "httpupload",
		Factory:     CreateInput,
		Schema:      httpUploadSchema,
		Type:        "input",
		Protocol:    "http",
		Domain:      "network",
		Description: "HTTP upload endpoint publishing CSV history batches",
		Version:     "1.0.0",
	})
}
