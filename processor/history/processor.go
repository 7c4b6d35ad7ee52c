package history

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/barstreams/bars"
	"github.com/c360/barstreams/component"
	"github.com/c360/barstreams/errors"
	"github.com/c360/barstreams/metric"
	"github.com/c360/barstreams/natsclient"
	"github.com/c360/barstreams/pkg/retry"
	"github.com/c360/barstreams/pkg/worker"
)

// transport is the part of the NATS client the processor needs.
type transport interface {
	PublishMsg(ctx context.Context, subject string, data []byte, headers map[string]string) error
	QueueSubscribeMsg(
		ctx context.Context, subject, queue string, handler func(context.Context, *natsclient.Message),
	) (*natsclient.Subscription, error)
}

// job is one batch together with the policy that was current when it
// arrived.
type job struct {
	batch  bars.Batch
	policy bars.Policy
}

// Stats is a snapshot of the processor's running totals.
type Stats struct {
	BatchesReceived int64
	BatchesFailed   int64
	BatchesSkipped  int64
	RecordsRead     int64
	JSONCreated     int64
	XMLCreated      int64
	Errors          int64
}

// Processor turns CSV history batches into per-record JSON and XML
// artifacts and routes undecodable batches to the failure subject.
type Processor struct {
	name      string
	config    Config
	transport transport
	logger    *slog.Logger

	inputSubject   string
	jsonSubject    string
	xmlSubject     string
	failureSubject string
	publishTimeout time.Duration
	retryPolicy    retry.Config
	loc            *time.Location

	pipeline *bars.Pipeline
	policy   atomic.Pointer[bars.Policy]
	pool     *worker.Pool[job]
	sub      *natsclient.Subscription

	// Lifecycle management
	running     bool
	startTime   time.Time
	mu          sync.RWMutex
	lifecycleMu sync.Mutex

	// Counters for DataFlow and Stats
	batchesReceived atomic.Int64
	batchesFailed   atomic.Int64
	batchesSkipped  atomic.Int64
	bytesReceived   atomic.Int64
	recordsRead     atomic.Int64
	jsonCreated     atomic.Int64
	xmlCreated      atomic.Int64
	errorCount      atomic.Int64
	lastActivity    time.Time
	lastError       string

	metricsRegistry *metric.MetricsRegistry
	coreMetrics     *metric.Metrics
	metrics         *historyMetrics
}

// NewProcessor creates a history processor from configuration.
func NewProcessor(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	cfg := DefaultConfig()
	if err := component.SafeUnmarshal(rawConfig, &cfg); err != nil {
		return nil, errors.Wrap(err, "HistoryProcessor", "NewProcessor", "config parsing")
	}

	p, err := newProcessor(cfg, deps)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func newProcessor(cfg Config, deps component.Dependencies) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "HistoryProcessor", "NewProcessor", "config validation")
	}

	output, _ := bars.ParseOutput(cfg.Output)
	loc, _ := cfg.Location()
	retryPolicy, _ := cfg.RetryPolicy()
	publishTimeout, _ := parseDuration("publish_timeout", cfg.PublishTimeout)
	retryPolicy.Retryable = retryable

	logger := deps.GetLoggerWithComponent(cfg.Name)

	metrics, err := newHistoryMetrics(deps.MetricsRegistry)
	if err != nil {
		logger.Error("Failed to initialize history metrics", "error", err)
		metrics = nil // Continue without metrics
	}

	p := &Processor{
		name:            cfg.Name,
		config:          cfg,
		logger:          logger,
		inputSubject:    cfg.subject(true, PortBatches),
		jsonSubject:     cfg.subject(false, PortJSON),
		xmlSubject:      cfg.subject(false, PortXML),
		failureSubject:  cfg.subject(false, PortFailure),
		publishTimeout:  publishTimeout,
		retryPolicy:     retryPolicy,
		loc:             loc,
		metricsRegistry: deps.MetricsRegistry,
		metrics:         metrics,
	}
	if deps.NATSClient != nil {
		p.transport = deps.NATSClient
	}
	if deps.MetricsRegistry != nil {
		p.coreMetrics = deps.MetricsRegistry.CoreMetrics()
	}

	policy := bars.NewPolicy(output)
	p.policy.Store(&policy)
	return p, nil
}

// Initialize builds the shared codecs and the pipeline.
func (p *Processor) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pipeline == nil {
		p.pipeline = bars.NewPipeline(bars.NewCodecs(), p.logger, bars.WithTimeLocation(p.loc))
	}
	return nil
}

// Start subscribes to the batch subject and starts the workers.
func (p *Processor) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.isRunning() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "HistoryProcessor", "Start", "check running state")
	}
	if p.transport == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "HistoryProcessor", "Start", "NATS client required")
	}
	if err := p.Initialize(); err != nil {
		return err
	}

	pool := worker.NewPool[job](p.config.Workers, p.config.QueueSize, p.process,
		worker.WithMetricsRegistry[job](p.metricsRegistry, poolPrefix(p.name)),
		worker.WithErrorHandler[job](p.onJobError))
	if err := pool.Start(ctx); err != nil {
		return errors.WrapFatal(err, "HistoryProcessor", "Start", "worker pool start")
	}

	sub, err := p.transport.QueueSubscribeMsg(ctx, p.inputSubject, p.config.QueueGroup, p.handler(pool))
	if err != nil {
		_ = pool.Stop(time.Second)
		p.logger.Error("Failed to subscribe to NATS subject", "subject", p.inputSubject, "error", err)
		return errors.WrapTransient(err, "HistoryProcessor", "Start", fmt.Sprintf("subscribe to %s", p.inputSubject))
	}

	p.mu.Lock()
	p.pool = pool
	p.sub = sub
	p.running = true
	p.startTime = time.Now()
	p.mu.Unlock()

	p.recordStatus(component.StateStarted)
	p.logger.Info("History processor started",
		"input_subject", p.inputSubject,
		"output", p.Policy().Output(),
		"workers", p.config.Workers,
		"queue_group", p.config.QueueGroup)
	return nil
}

// Stop unsubscribes and waits up to timeout for queued batches to finish.
func (p *Processor) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	pool, sub := p.pool, p.sub
	p.running = false
	p.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			p.logger.Warn("Failed to unsubscribe", "subject", p.inputSubject, "error", err)
		}
	}

	if err := pool.Stop(timeout); err != nil {
		p.recordStatus(component.StateFailed)
		return errors.WrapTransient(
			fmt.Errorf("shutdown timeout after %v: %w", timeout, err),
			"HistoryProcessor", "Stop", "graceful shutdown")
	}

	p.recordStatus(component.StateStopped)
	p.logger.Info("History processor stopped", "stats", p.Stats())
	return nil
}

// Reschedule replaces the output selection. Batches already queued keep the
// policy they were received under.
func (p *Processor) Reschedule(output string) error {
	o, err := bars.ParseOutput(output)
	if err != nil {
		return errors.Wrap(err, "HistoryProcessor", "Reschedule", "output validation")
	}

	policy := bars.NewPolicy(o)
	previous := p.policy.Swap(&policy)

	p.mu.Lock()
	p.config.Output = string(o)
	p.mu.Unlock()

	p.logger.Info("History processor rescheduled", "previous", previous.Output(), "output", o)
	return nil
}

// Policy returns the policy new batches are processed under.
func (p *Processor) Policy() bars.Policy {
	return *p.policy.Load()
}

// Stats returns the running totals.
func (p *Processor) Stats() Stats {
	return Stats{
		BatchesReceived: p.batchesReceived.Load(),
		BatchesFailed:   p.batchesFailed.Load(),
		BatchesSkipped:  p.batchesSkipped.Load(),
		RecordsRead:     p.recordsRead.Load(),
		JSONCreated:     p.jsonCreated.Load(),
		XMLCreated:      p.xmlCreated.Load(),
		Errors:          p.errorCount.Load(),
	}
}

func (p *Processor) isRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// handler binds incoming messages to one pool, so a restart never feeds a
// stopped pool.
func (p *Processor) handler(pool *worker.Pool[job]) func(context.Context, *natsclient.Message) {
	return func(ctx context.Context, msg *natsclient.Message) {
		batch := batchFromMessage(msg)

		p.batchesReceived.Add(1)
		p.bytesReceived.Add(int64(len(batch.Data)))
		p.mu.Lock()
		p.lastActivity = time.Now()
		p.mu.Unlock()
		if p.coreMetrics != nil {
			p.coreMetrics.RecordBatchReceived(p.name, msg.Subject)
		}

		p.logger.Debug("Received batch", "batch", batch.ID, "filename", batch.Name, "size_bytes", len(batch.Data))

		if err := pool.SubmitWait(ctx, job{batch: batch, policy: p.Policy()}); err != nil {
			p.recordError("queue", err)
			p.logger.Error("Batch dropped", "batch", batch.ID, "filename", batch.Name, "error", err)
		}
	}
}

// batchFromMessage builds a batch whose attributes always carry a filename
// and a batch id, generating them when the sender did not.
func batchFromMessage(msg *natsclient.Message) bars.Batch {
	attrs := make(map[string]string, len(msg.Headers)+2)
	maps.Copy(attrs, msg.Headers)

	name := attrs[bars.AttrFilename]
	if name == "" {
		name = "batch-" + uuid.NewString() + ".csv"
		attrs[bars.AttrFilename] = name
	}
	id := attrs[bars.AttrBatchID]
	if id == "" {
		id = uuid.NewString()
		attrs[bars.AttrBatchID] = id
	}

	return bars.Batch{ID: id, Name: name, Data: msg.Data, Attributes: attrs}
}

func (p *Processor) process(ctx context.Context, j job) error {
	defer p.metrics.track(p.name)()

	sinks := bars.Sinks{
		JSON:     p.artifactSink(bars.FormatJSON, p.jsonSubject),
		XML:      p.artifactSink(bars.FormatXML, p.xmlSubject),
		Failure:  bars.FailureSinkFunc(p.fail),
		Counters: counterSink{p: p},
	}

	result, err := p.pipeline.Process(ctx, j.batch, j.policy, sinks)
	if err != nil {
		p.metrics.recordBatchError(p.name)
		return err
	}

	p.metrics.recordBatch(p.name, result)
	if p.coreMetrics != nil {
		p.coreMetrics.RecordProcessingDuration(p.name, "batch", result.Duration)
	}

	switch {
	case result.Skipped:
		p.batchesSkipped.Add(1)
		p.logger.Debug("Batch skipped", "batch", result.BatchID, "filename", j.batch.Name)
	case result.Disposition == bars.DispositionFailed:
		p.batchesFailed.Add(1)
		p.logger.Info("Batch routed to failure",
			"batch", result.BatchID,
			"filename", j.batch.Name,
			"records_read", result.RecordsRead,
			"cause", result.Cause)
	default:
		p.logger.Info("Batch processed",
			"batch", result.BatchID,
			"filename", j.batch.Name,
			"output", j.policy.Output(),
			"records_read", result.RecordsRead,
			"json_created", result.JSONCreated,
			"xml_created", result.XMLCreated,
			"encode_failures", result.EncodeFailures,
			"sink_failures", result.SinkFailures,
			"duration", result.Duration)
	}
	return nil
}

func (p *Processor) onJobError(j job, err error) {
	p.recordError("batch", err)
	p.logger.Error("Batch processing failed", "batch", j.batch.ID, "filename", j.batch.Name, "error", err)
}

func (p *Processor) artifactSink(f bars.Format, subject string) bars.ArtifactSink {
	return bars.ArtifactSinkFunc(func(ctx context.Context, a bars.Artifact) error {
		err := p.publish(ctx, subject, a.Data, a.Attributes)
		p.metrics.recordArtifact(p.name, f, err)
		if err != nil {
			p.recordError("publish", err)
			return err
		}
		if p.coreMetrics != nil {
			p.coreMetrics.RecordMessagePublished(p.name, subject)
		}
		return nil
	})
}

// fail forwards the batch content and attributes unchanged.
func (p *Processor) fail(ctx context.Context, batch bars.Batch, _ error) error {
	if err := p.publish(ctx, p.failureSubject, batch.Data, batch.Attributes); err != nil {
		p.recordError("failure", err)
		return err
	}
	if p.coreMetrics != nil {
		p.coreMetrics.RecordMessagePublished(p.name, p.failureSubject)
	}
	return nil
}

func (p *Processor) publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	return retry.Do(ctx, p.retryPolicy, func() error {
		pubCtx, cancel := context.WithTimeout(ctx, p.publishTimeout)
		defer cancel()
		return p.transport.PublishMsg(pubCtx, subject, data, headers)
	})
}

func retryable(err error) bool {
	return errors.IsTransient(err) ||
		stderrors.Is(err, natsclient.ErrNotConnected) ||
		stderrors.Is(err, natsclient.ErrCircuitOpen)
}

func (p *Processor) recordError(class string, err error) {
	p.errorCount.Add(1)
	p.mu.Lock()
	p.lastError = err.Error()
	p.mu.Unlock()
	if p.coreMetrics != nil {
		p.coreMetrics.RecordError(p.name, class)
	}
}

func (p *Processor) recordStatus(state component.State) {
	if p.coreMetrics != nil {
		p.coreMetrics.RecordComponentStatus(p.name, int(state))
	}
}

// counterSink folds per-batch counters into the processor totals.
type counterSink struct {
	p *Processor
}

func (c counterSink) Adjust(name string, delta int) {
	switch name {
	case bars.CounterRecordsRead:
		c.p.recordsRead.Add(int64(delta))
	case bars.CounterJSONRecords:
		c.p.jsonCreated.Add(int64(delta))
	case bars.CounterXMLRecords:
		c.p.xmlCreated.Add(int64(delta))
	}
	c.p.metrics.adjust(c.p.name, name, delta)
}

func poolPrefix(name string) string {
	return "barstreams_history_" + strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}

// Discoverable interface implementation

// Meta returns metadata describing this processor component.
func (p *Processor) Meta() component.Metadata {
	return component.Metadata{
		Name:        p.name,
		Type:        "processor",
		Description: "Bitcoin OHLC history CSV to per-record JSON and XML artifacts",
		Version:     "1.0.0",
	}
}

// InputPorts returns the batch input port.
func (p *Processor) InputPorts() []component.Port {
	defaults := component.PortsFromDefinitions(DefaultConfig().Ports.Inputs, component.DirectionInput)
	return component.MergePortConfigs(defaults, p.config.Ports.Inputs, component.DirectionInput)
}

// OutputPorts returns the artifact, reserved database and failure ports.
func (p *Processor) OutputPorts() []component.Port {
	defaults := component.PortsFromDefinitions(DefaultConfig().Ports.Outputs, component.DirectionOutput)
	return component.MergePortConfigs(defaults, p.config.Ports.Outputs, component.DirectionOutput)
}

// ConfigSchema returns the configuration schema for this processor.
func (p *Processor) ConfigSchema() component.ConfigSchema {
	return historySchema
}

// Health returns the current health status of this processor.
func (p *Processor) Health() component.HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var uptime time.Duration
	if p.running {
		uptime = time.Since(p.startTime)
	}
	return component.HealthStatus{
		Healthy:    p.running,
		LastCheck:  time.Now(),
		ErrorCount: int(p.errorCount.Load()),
		LastError:  p.lastError,
		Uptime:     uptime,
	}
}

// DataFlow returns current data flow metrics for this processor.
func (p *Processor) DataFlow() component.FlowMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var msgsPerSec, bytesPerSec, errorRate float64
	if p.running {
		if elapsed := time.Since(p.startTime).Seconds(); elapsed > 0 {
			msgsPerSec = float64(p.batchesReceived.Load()) / elapsed
			bytesPerSec = float64(p.bytesReceived.Load()) / elapsed
		}
	}
	if received := p.batchesReceived.Load(); received > 0 {
		errorRate = float64(p.errorCount.Load()) / float64(received)
	}

	return component.FlowMetrics{
		MessagesPerSecond: msgsPerSec,
		BytesPerSecond:    bytesPerSec,
		ErrorRate:         errorRate,
		LastActivity:      p.lastActivity,
	}
}
