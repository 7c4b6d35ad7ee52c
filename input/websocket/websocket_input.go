package websocket

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/c360/barstreams/bars"
	"github.com/c360/barstreams/component"
	"github.com/c360/barstreams/errors"
	"github.com/c360/barstreams/metric"
)

// Envelope types.
const (
	TypeBatch = "batch"
	TypeAck   = "ack"
	TypeNack  = "nack"
)

// Nack reasons.
const (
	ReasonInvalidEnvelope = "invalid_envelope"
	ReasonUnsupportedType = "unsupported_type"
	ReasonEmptyPayload    = "empty_payload"
	ReasonPublishFailed   = "publish_failed"
)

// MessageEnvelope wraps every WebSocket message.
//
// Clients send "batch" envelopes whose payload is the CSV text. The input
// answers each with "ack" or "nack" carrying the same id.
type MessageEnvelope struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"` // Unix milliseconds
	Payload   string `json:"payload,omitempty"`
	Reason    string `json:"reason,omitempty"` // nack only
	Error     string `json:"error,omitempty"`  // nack only
}

type publisher interface {
	PublishMsg(ctx context.Context, subject string, data []byte, headers map[string]string) error
}

// Input accepts WebSocket connections and publishes each received batch.
type Input struct {
	name      string
	config    Config
	publisher publisher
	logger    *slog.Logger
	metrics   *wsMetrics
	core      *metric.Metrics

	subject  string
	timeout  time.Duration
	upgrader websocket.Upgrader

	httpServer *http.Server
	listener   net.Listener
	clients    map[string]*websocket.Conn
	clientsMu  sync.Mutex

	// Lifecycle management
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
	startTime   time.Time
	mu          sync.RWMutex
	lifecycleMu sync.Mutex

	// Statistics
	connectionsActive atomic.Int64
	connectionsTotal  atomic.Int64
	batchesReceived   atomic.Int64
	batchesPublished  atomic.Int64
	bytesReceived     atomic.Int64
	errorCount        atomic.Int64
	lastActivity      time.Time
	lastError         string
}

// Ensure Input implements all required interfaces
var (
	_ component.LifecycleComponent = (*Input)(nil)
	_ component.Discoverable       = (*Input)(nil)
)

// CreateInput is the factory function for creating WebSocket input components
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
	timeout, _ := cfg.publishTimeout()
	logger := deps.GetLoggerWithComponent(cfg.Name)

	in := &Input{
		name:      cfg.Name,
		config:    cfg,
		publisher: pub,
		logger:    logger,
		subject:   cfg.batchesSubject(),
		timeout:   timeout,
		clients:   make(map[string]*websocket.Conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:    cfg.ReadBufferSize,
			WriteBufferSize:   cfg.WriteBufferSize,
			EnableCompression: cfg.EnableCompression,
			CheckOrigin:       func(_ *http.Request) bool { return true },
		},
	}

	if deps.MetricsRegistry != nil {
		in.core = deps.MetricsRegistry.CoreMetrics()
		m, err := newWSMetrics(deps.MetricsRegistry, cfg.Name)
		if err != nil {
			logger.Error("Failed to register websocket metrics", "error", err)
		}
		in.metrics = m
	}
	return in
}

// Handler returns the HTTP handler serving the WebSocket endpoint.
func (i *Input) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(i.config.Path, i.handleWebSocket)
	return mux
}

// Addr returns the listen address once started.
func (i *Input) Addr() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.listener == nil {
		return ""
	}
	return i.listener.Addr().String()
}

// Lifecycle interface implementation

// Initialize initializes the component (no-op for WebSocket input)
func (i *Input) Initialize() error {
	return nil
}

// Start listens on the configured port and serves the endpoint.
func (i *Input) Start(ctx context.Context) error {
	i.lifecycleMu.Lock()
	defer i.lifecycleMu.Unlock()

	i.mu.RLock()
	running := i.running
	i.mu.RUnlock()
	if running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Input", "Start", "check running state")
	}
	if i.publisher == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Input", "Start", "NATS client required")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", i.config.HTTPPort))
	if err != nil {
		return errors.WrapFatal(err, "Input", "Start", fmt.Sprintf("listen on port %d", i.config.HTTPPort))
	}

	componentCtx, cancel := context.WithCancel(ctx)
	srv := &http.Server{
		Handler:           i.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	i.mu.Lock()
	i.ctx, i.cancel = componentCtx, cancel
	i.listener = ln
	i.httpServer = srv
	i.running = true
	i.startTime = time.Now()
	i.mu.Unlock()

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			i.trackError("server_error", err)
			i.logger.Error("WebSocket server failed", "error", err)
		}
	}()

	if i.core != nil {
		i.core.RecordComponentStatus(i.name, int(component.StateStarted))
	}
	i.logger.Info("WebSocket input started",
		"addr", ln.Addr().String(),
		"path", i.config.Path,
		"subject", i.subject,
		"max_connections", i.config.MaxConnections)
	return nil
}

// Stop shuts the server down and closes every client connection.
func (i *Input) Stop(timeout time.Duration) error {
	i.lifecycleMu.Lock()
	defer i.lifecycleMu.Unlock()

	i.mu.Lock()
	if !i.running {
		i.mu.Unlock()
		return nil
	}
	i.running = false
	srv, cancel := i.httpServer, i.cancel
	i.mu.Unlock()

	cancel()

	ctx, done := context.WithTimeout(context.Background(), timeout)
	defer done()
	_ = srv.Shutdown(ctx)

	// Hijacked connections are not tracked by Shutdown.
	i.clientsMu.Lock()
	for _, conn := range i.clients {
		_ = conn.Close()
	}
	i.clientsMu.Unlock()

	waited := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
	case <-ctx.Done():
		return errors.WrapTransient(
			fmt.Errorf("shutdown timeout after %v", timeout), "Input", "Stop", "wait for connections")
	}

	if i.core != nil {
		i.core.RecordComponentStatus(i.name, int(component.StateStopped))
	}
	i.logger.Info("WebSocket input stopped",
		"connections_total", i.connectionsTotal.Load(),
		"batches_published", i.batchesPublished.Load())
	return nil
}

func (i *Input) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !i.authenticateRequest(r) {
		i.reject(w, http.StatusUnauthorized, "auth_failed")
		return
	}

	if n := i.connectionsActive.Add(1); n > int64(i.config.MaxConnections) {
		i.connectionsActive.Add(-1)
		i.reject(w, http.StatusServiceUnavailable, "max_connections")
		return
	}

	conn, err := i.upgrader.Upgrade(w, r, nil)
	if err != nil {
		i.connectionsActive.Add(-1)
		i.trackError("upgrade_error", err)
		return
	}
	conn.SetReadLimit(i.config.ReadLimit)

	clientID := "client-" + uuid.NewString()
	i.clientsMu.Lock()
	i.clients[clientID] = conn
	i.clientsMu.Unlock()
	i.connectionsTotal.Add(1)
	i.metrics.connected()

	i.mu.RLock()
	ctx := i.ctx
	i.mu.RUnlock()
	if ctx == nil {
		// Served outside Start, as under httptest.
		ctx = context.Background()
	}

	i.wg.Add(1)
	go i.handleClient(ctx, clientID, conn)
}

func (i *Input) reject(w http.ResponseWriter, status int, reason string) {
	i.metrics.rejected(reason)
	i.logger.Warn("WebSocket connection rejected", "reason", reason)
	http.Error(w, http.StatusText(status), status)
}

// authenticateRequest validates the credentials in the upgrade request.
func (i *Input) authenticateRequest(r *http.Request) bool {
	auth := i.config.Auth
	if auth == nil || auth.Type == "" || auth.Type == "none" {
		return true
	}

	switch auth.Type {
	case "bearer":
		expected := os.Getenv(auth.BearerTokenEnv)
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		return expected != "" && ok && subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1

	case "basic":
		username := os.Getenv(auth.BasicUsernameEnv)
		password := os.Getenv(auth.BasicPasswordEnv)
		reqUser, reqPass, ok := r.BasicAuth()
		if username == "" || password == "" || !ok {
			return false
		}
		userMatch := subtle.ConstantTimeCompare([]byte(reqUser), []byte(username)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(reqPass), []byte(password)) == 1
		return userMatch && passMatch

	default:
		return false
	}
}

// handleClient reads envelopes until the connection fails or closes. Replies
// are written from this goroutine only.
func (i *Input) handleClient(ctx context.Context, clientID string, conn *websocket.Conn) {
	defer i.wg.Done()
	defer func() {
		_ = conn.Close()
		i.clientsMu.Lock()
		delete(i.clients, clientID)
		i.clientsMu.Unlock()
		i.connectionsActive.Add(-1)
		i.metrics.disconnected()
	}()

	i.logger.Debug("WebSocket client connected", "client", clientID)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				ctx.Err() == nil {
				i.trackError("read_error", err)
				i.logger.Debug("WebSocket read failed", "client", clientID, "error", err)
			}
			return
		}
		i.touch()

		reply := i.handleEnvelope(ctx, data)
		if err := conn.WriteJSON(reply); err != nil {
			i.trackError("write_error", err)
			return
		}
	}
}

// handleEnvelope processes one raw message and returns the reply to send.
func (i *Input) handleEnvelope(ctx context.Context, data []byte) MessageEnvelope {
	var env MessageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		i.metrics.envelope("invalid")
		return nack("", ReasonInvalidEnvelope, err)
	}
	i.metrics.envelope(env.Type)

	if env.Type != TypeBatch {
		return nack(env.ID, ReasonUnsupportedType, fmt.Errorf("unsupported type %q", env.Type))
	}
	if env.Payload == "" {
		return nack(env.ID, ReasonEmptyPayload, errors.ErrEmptyBatch)
	}

	i.batchesReceived.Add(1)
	i.bytesReceived.Add(int64(len(env.Payload)))
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	filename := env.Name
	if filename == "" {
		filename = fmt.Sprintf("ws-%s.csv", env.ID)
	}

	headers := map[string]string{
		bars.AttrFilename: filename,
		bars.AttrBatchID:  env.ID,
	}

	pubCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()
	if err := i.publisher.PublishMsg(pubCtx, i.subject, []byte(env.Payload), headers); err != nil {
		i.trackError("publish_error", err)
		i.logger.Warn("Failed to publish batch", "batch", env.ID, "filename", filename, "error", err)
		return nack(env.ID, ReasonPublishFailed, err)
	}

	i.batchesPublished.Add(1)
	i.metrics.published()
	if i.core != nil {
		i.core.RecordBatchReceived(i.name, "websocket")
		i.core.RecordMessagePublished(i.name, i.subject)
	}
	i.logger.Debug("Batch published", "batch", env.ID, "filename", filename, "bytes", len(env.Payload))

	return MessageEnvelope{Type: TypeAck, ID: env.ID, Name: filename, Timestamp: time.Now().UnixMilli()}
}

func nack(id, reason string, err error) MessageEnvelope {
	return MessageEnvelope{
		Type:      TypeNack,
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
		Reason:    reason,
		Error:     err.Error(),
	}
}

func (i *Input) touch() {
	i.mu.Lock()
	i.lastActivity = time.Now()
	i.mu.Unlock()
}

// trackError increments error counters (both atomic and metrics)
func (i *Input) trackError(errorType string, err error) {
	i.errorCount.Add(1)
	i.metrics.failed(errorType)
	i.mu.Lock()
	i.lastError = err.Error()
	i.mu.Unlock()
	if i.core != nil {
		i.core.RecordError(i.name, errors.Classify(err).String())
	}
}

// Discoverable interface implementation

// Meta returns component metadata
func (i *Input) Meta() component.Metadata {
	return component.Metadata{
		Name:        i.name,
		Type:        "input",
		Description: "WebSocket input for CSV history batches",
		Version:     "1.0.0",
	}
}

// InputPorts returns the WebSocket endpoint.
func (i *Input) InputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "websocket",
			Direction:   component.DirectionInput,
			Required:    true,
			Description: "WebSocket endpoint accepting batch envelopes",
			Config: component.NetworkPort{
				Protocol: "websocket",
				Host:     "0.0.0.0",
				Port:     i.config.HTTPPort,
			},
		},
	}
}

// OutputPorts returns the output ports
func (i *Input) OutputPorts() []component.Port {
	return component.PortsFromDefinitions(i.config.Ports.Outputs, component.DirectionOutput)
}

// ConfigSchema returns the configuration schema
func (i *Input) ConfigSchema() component.ConfigSchema {
	return websocketInputSchema
}

// Health returns current health status
func (i *Input) Health() component.HealthStatus {
	i.mu.RLock()
	defer i.mu.RUnlock()

	var uptime time.Duration
	if i.running {
		uptime = time.Since(i.startTime)
	}
	return component.HealthStatus{
		Healthy:    i.running,
		LastCheck:  time.Now(),
		ErrorCount: int(i.errorCount.Load()),
		LastError:  i.lastError,
		Uptime:     uptime,
	}
}

// DataFlow returns current data flow metrics
func (i *Input) DataFlow() component.FlowMetrics {
	i.mu.RLock()
	defer i.mu.RUnlock()

	received := i.batchesReceived.Load()
	var msgsPerSec, bytesPerSec, errorRate float64
	if i.running {
		if elapsed := time.Since(i.startTime).Seconds(); elapsed > 0 {
			msgsPerSec = float64(received) / elapsed
			bytesPerSec = float64(i.bytesReceived.Load()) / elapsed
		}
	}
	if received > 0 {
		errorRate = float64(received-i.batchesPublished.Load()) / float64(received)
	}
	return component.FlowMetrics{
		MessagesPerSecond: msgsPerSec,
		BytesPerSecond:    bytesPerSec,
		ErrorRate:         errorRate,
		LastActivity:      i.lastActivity,
	}
}
