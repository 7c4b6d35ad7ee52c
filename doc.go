// Package barstreams converts Bitcoin OHLC history batches into per-record
// JSON and XML artifacts, either as a set of NATS-connected components or as
// a one-shot command over local files.
//
// # Architecture
//
//	┌──────────────┐   ┌────────────────┐
//	│  httpupload  │   │ websocket_input│   CSV batches in
//	└──────┬───────┘   └───────┬────────┘
//	       └──────────┬────────┘
//	             bars.batches
//	                  ↓
//	         ┌────────────────┐
//	         │    history     │   bars.Pipeline per batch
//	         └──┬─────┬─────┬─┘
//	   bars.json│     │     │bars.failure
//	            │  bars.xml │
//	            ↓     ↓     ↓
//	         ┌──────┐  ┌─────────────┐
//	         │ file │  │ objectstore │   artifacts out
//	         └──────┘  └─────────────┘
//
// Components talk only through NATS subjects, so an output can be added or
// removed by configuration alone. The history processor is the only place
// records are decoded; inputs forward raw bytes with their attributes as
// headers and outputs persist whatever arrives on their subjects.
//
// # Packages
//
// Core:
//   - bars: decoding, deduplication, encoding and naming of records
//   - processor/history: the NATS processor around bars.Pipeline
//
// Components:
//   - input/httpupload: multipart and raw CSV upload over HTTP
//   - input/websocket: CSV batches streamed over WebSocket
//   - output/file: artifacts written to a directory
//   - storage/objectstore: artifacts archived in a JetStream object store
//
// Framework:
//   - component, componentregistry: component contract and registration
//   - config: file and environment configuration
//   - service: component lifecycle
//   - natsclient: NATS connection management
//   - metric, health: Prometheus metrics and health reporting
//   - errors: error classification
//   - pkg/retry, pkg/worker: backoff and bounded worker pools
//
// # Binary
//
//	# Run the configured components
//	./bin/barstreams serve -config configs/barstreams.yaml
//
//	# Convert local files without NATS
//	./bin/barstreams convert -input ./history -out ./records -output ALL
//
// Integration tests start NATS with testcontainers and run behind the
// integration build tag.
package barstreams
