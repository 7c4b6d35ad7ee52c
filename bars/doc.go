// Package bars implements the market-bar history pipeline: CSV batches of
// OHLCV bars are decoded into records, deduplicated per output format, and
// emitted as JSON and XML artifacts with generated names and attributes.
//
// # Flow
//
//	Batch -> Decoder (per row) -> RecordSet (per format) -> Codecs -> Namer -> ArtifactSink
//
// A row whose text contains the literal NaN is skipped silently; it counts
// as read but never reaches a record set. A row that fails numeric decoding
// aborts the whole batch: nothing is emitted, and the batch goes to the
// FailureSink untouched. A record that fails to encode is logged and skipped
// without affecting its siblings or the batch outcome.
//
// # Concurrency
//
// Codecs is built once and shared by every Pipeline invocation. Policy is an
// immutable snapshot taken when a processor is scheduled and passed into each
// call to Process. Within one batch the JSON and XML record sets are drained
// concurrently.
//
// # Usage
//
//	p := bars.NewPipeline(bars.NewCodecs(), logger)
//	policy := bars.NewPolicy(bars.OutputAll)
//	result, err := p.Process(ctx, batch, policy, bars.Sinks{
//	    JSON:     jsonSink,
//	    XML:      xmlSink,
//	    Failure:  failureSink,
//	    Counters: counters,
//	})
package bars
