package bars

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/barstreams/errors"
)

// Batch is one CSV input unit. Attributes travel with the batch and are
// inherited by every artifact emitted from it.
type Batch struct {
	ID         string
	Name       string
	Data       []byte
	Attributes map[string]string
}

// Artifact is one encoded record ready for a sink.
type Artifact struct {
	Name       string
	Format     Format
	Sequence   int
	Data       []byte
	Attributes map[string]string
}

// MimeType returns the artifact's mime type tag.
func (a Artifact) MimeType() string {
	return a.Format.MimeType()
}

// ArtifactSink receives the artifacts of one format.
type ArtifactSink interface {
	Emit(ctx context.Context, artifact Artifact) error
}

// FailureSink receives batches that could not be decoded, unmodified.
type FailureSink interface {
	Fail(ctx context.Context, batch Batch, cause error) error
}

// CounterSink receives the per-batch counters.
type CounterSink interface {
	Adjust(name string, delta int)
}

// ArtifactSinkFunc adapts a function to ArtifactSink.
type ArtifactSinkFunc func(ctx context.Context, artifact Artifact) error

// Emit calls f.
func (f ArtifactSinkFunc) Emit(ctx context.Context, artifact Artifact) error {
	return f(ctx, artifact)
}

// FailureSinkFunc adapts a function to FailureSink.
type FailureSinkFunc func(ctx context.Context, batch Batch, cause error) error

// Fail calls f.
func (f FailureSinkFunc) Fail(ctx context.Context, batch Batch, cause error) error {
	return f(ctx, batch, cause)
}

// Sinks groups the collaborators of one Process call. Sinks for inactive
// formats may be nil; Counters may be nil.
type Sinks struct {
	JSON     ArtifactSink
	XML      ArtifactSink
	Failure  FailureSink
	Counters CounterSink
}

func (s Sinks) artifactSink(f Format) ArtifactSink {
	if f == FormatXML {
		return s.XML
	}
	return s.JSON
}

// Disposition is the terminal routing of a batch.
type Disposition int

// Dispositions.
const (
	DispositionNone Disposition = iota
	DispositionDiscarded
	DispositionFailed
)

func (d Disposition) String() string {
	switch d {
	case DispositionDiscarded:
		return "discarded"
	case DispositionFailed:
		return "failed"
	default:
		return "none"
	}
}

// Result summarizes one batch.
type Result struct {
	BatchID        string
	RecordsRead    int
	Prefiltered    int
	JSONCreated    int
	XMLCreated     int
	EncodeFailures int
	SinkFailures   int
	Disposition    Disposition
	Skipped        bool
	Cause          error
	Duration       time.Duration
}

// Rejected returns the rows that were read but produced no record.
func (r Result) Rejected() int {
	return r.Prefiltered
}

// Created returns the artifact count for f.
func (r Result) Created(f Format) int {
	if f == FormatXML {
		return r.XMLCreated
	}
	return r.JSONCreated
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTimeLocation sets the zone records are decoded into.
func WithTimeLocation(loc *time.Location) Option {
	return func(p *Pipeline) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// Pipeline decodes batches and emits their artifacts. A Pipeline holds only
// read-only state and may run many batches concurrently.
type Pipeline struct {
	codecs *Codecs
	encode func(Format, Record) ([]byte, error)
	logger *slog.Logger
	loc    *time.Location
}

// NewPipeline creates a pipeline over shared codecs.
func NewPipeline(codecs *Codecs, logger *slog.Logger, opts ...Option) *Pipeline {
	if codecs == nil {
		codecs = NewCodecs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{codecs: codecs, encode: codecs.Encode, logger: logger, loc: time.Local}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one batch under policy. Decode failures do not produce an
// error; they appear as Result.Cause with DispositionFailed once the batch
// has been handed to the failure sink. A context cancelled while artifacts
// are being written stops both drains and fails the batch the same way with
// a transient cause. The returned error is non-nil only
// when the sinks are unusable or the failure sink rejects the batch.
func (p *Pipeline) Process(ctx context.Context, batch Batch, policy Policy, sinks Sinks) (Result, error) {
	start := time.Now()
	result := Result{BatchID: batch.ID}

	if err := p.checkSinks(policy, sinks); err != nil {
		return result, err
	}

	if len(batch.Data) == 0 {
		result.Skipped = true
		return result, nil
	}

	log := p.logger.With("batch", batch.ID, "filename", batch.Name)

	sets, cause := p.parse(ctx, batch, policy, &result)
	if stderrors.Is(cause, errors.ErrEmptyBatch) {
		result.Skipped = true
		return result, nil
	}

	if cause == nil {
		cause = p.emit(ctx, log, batch, sets, sinks, &result)
	}

	p.publishCounters(sinks.Counters, result)
	result.Duration = time.Since(start)

	if cause != nil {
		result.Cause = cause
		log.Warn("Batch routed to failure", "records_read", result.RecordsRead, "error", cause)
		if err := sinks.Failure.Fail(ctx, batch, cause); err != nil {
			return result, errors.Wrap(err, "Pipeline", "Process", "failure routing")
		}
		result.Disposition = DispositionFailed
		return result, nil
	}

	result.Disposition = DispositionDiscarded
	log.Debug("Batch processed",
		"records_read", result.RecordsRead,
		"json_created", result.JSONCreated,
		"xml_created", result.XMLCreated,
		"encode_failures", result.EncodeFailures)
	return result, nil
}

func (p *Pipeline) checkSinks(policy Policy, sinks Sinks) error {
	if sinks.Failure == nil {
		return errors.WrapFatal(
			fmt.Errorf("%w: failure sink", errors.ErrMissingConfig), "Pipeline", "Process", "sink check")
	}
	for _, f := range policy.Formats() {
		if sinks.artifactSink(f) == nil {
			return errors.WrapFatal(
				fmt.Errorf("%w: %s sink", errors.ErrMissingConfig, f), "Pipeline", "Process", "sink check")
		}
	}
	return nil
}

// parse fills one record set per active format. On any error the sets are
// dropped and the cause returned.
func (p *Pipeline) parse(ctx context.Context, batch Batch, policy Policy, result *Result) (map[Format]*RecordSet, error) {
	dec, err := NewDecoder(bytes.NewReader(batch.Data), WithLocation(p.loc))
	if err != nil {
		return nil, err
	}

	sets := make(map[Format]*RecordSet, 2)
	for _, f := range policy.Formats() {
		sets[f] = NewRecordSet()
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.WrapTransient(err, "Pipeline", "parse", "batch read")
		}

		rec, ok, err := dec.Next()
		if err == io.EOF {
			break
		}
		result.RecordsRead = dec.Rows()
		if err != nil {
			return nil, err
		}
		if !ok {
			result.Prefiltered++
			continue
		}
		for _, set := range sets {
			set.Add(rec)
		}
	}

	return sets, nil
}

// emit drains each format's set on its own goroutine. Encode and sink errors
// are counted per record; only a cancelled context stops a drain early, and
// that error is returned once both drains have settled.
func (p *Pipeline) emit(
	ctx context.Context, log *slog.Logger, batch Batch,
	sets map[Format]*RecordSet, sinks Sinks, result *Result,
) error {
	type outcome struct {
		format       Format
		created      int
		encodeFailed int
		sinkFailed   int
	}

	base := BaseName(batch.Name)
	outcomes := make(chan outcome, len(sets))
	var g errgroup.Group

	for f, set := range sets {
		sink := sinks.artifactSink(f)
		g.Go(func() error {
			out := outcome{format: f}
			var seq Sequence

			defer func() { outcomes <- out }()

			for _, rec := range set.Records() {
				if err := ctx.Err(); err != nil {
					return errors.WrapTransient(err, "Pipeline", "emit", f.String()+" drain")
				}

				data, err := p.encode(f, rec)
				if err != nil {
					out.encodeFailed++
					log.Error("Cannot write record", "format", f.String(), "record", rec.String(), "error", err)
					continue
				}

				n := seq.Last() + 1
				name := ArtifactName(base, n, f)
				artifact := Artifact{
					Name:       name,
					Format:     f,
					Sequence:   n,
					Data:       data,
					Attributes: artifactAttributes(batch, f, name, n),
				}
				if err := sink.Emit(ctx, artifact); err != nil {
					out.sinkFailed++
					log.Error("Artifact not delivered", "format", f.String(), "artifact", artifact.Name, "error", err)
					continue
				}
				seq.Next()
				out.created++
				log.Debug("Wrote record", "format", f.String(), "artifact", artifact.Name)
			}
			return nil
		})
	}

	err := g.Wait()
	close(outcomes)

	for out := range outcomes {
		result.EncodeFailures += out.encodeFailed
		result.SinkFailures += out.sinkFailed
		if out.format == FormatXML {
			result.XMLCreated = out.created
		} else {
			result.JSONCreated = out.created
		}
	}
	return err
}

func artifactAttributes(batch Batch, f Format, name string, seq int) map[string]string {
	attrs := make(map[string]string, len(batch.Attributes)+4)
	maps.Copy(attrs, batch.Attributes)
	attrs[AttrFilename] = name
	attrs[AttrMimeType] = f.MimeType()
	attrs[f.CounterName()] = fmt.Sprint(seq)
	if batch.ID != "" {
		attrs[AttrBatchID] = batch.ID
	}
	return attrs
}

func (p *Pipeline) publishCounters(sink CounterSink, result Result) {
	if sink == nil {
		return
	}
	sink.Adjust(CounterRecordsRead, result.RecordsRead)
	sink.Adjust(CounterJSONRecords, result.JSONCreated)
	sink.Adjust(CounterXMLRecords, result.XMLCreated)
}

// Counters is an in-memory CounterSink, safe for concurrent use. The zero
// value is ready to use.
type Counters struct {
	mu     sync.Mutex
	values map[string]int
}

// NewCounters creates an empty counter set.
func NewCounters() *Counters {
	return &Counters{values: make(map[string]int)}
}

// Adjust adds delta to the named counter.
func (c *Counters) Adjust(name string, delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[string]int)
	}
	c.values[name] += delta
}

// Get returns the named counter.
func (c *Counters) Get(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[name]
}

// Snapshot returns a copy of all counters.
func (c *Counters) Snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.values)
}
