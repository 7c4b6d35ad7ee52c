// Package objectstore provides a NATS JetStream ObjectStore-based storage
// component for the artifacts and failed batches of the history pipeline.
//
// # Overview
//
// Store implements storage.Store on one ObjectStore bucket. Keys are
// hierarchical strings; List filters by prefix on the client side and
// skips deleted objects. Message headers are stored as object headers so a
// stored artifact keeps its filename, mime type and batch id.
//
// Component subscribes the store to NATS ports:
//   - "json", "xml" and "failure": every message is stored under
//     <prefix>/<port>/<filename>
//   - "api": request/reply lookups (get, info, list, delete)
//   - "events": publishes a stored or deleted event per change
//
// # API
//
// Requests and responses are JSON:
//
//	{"action": "list", "prefix": "history/json/"}
//	{"success": true, "keys": ["history/json/btc1.json"]}
//
//	{"action": "get", "key": "history/json/btc1.json"}
//	{"success": true, "key": "...", "object": {"key": "...", "size": 93, "data": "..."}}
//
// A missing key answers success=false with an error wrapping
// errors.ErrKeyNotFound.
//
// # Configuration
//
//	{
//	  "bucket_name": "BARS",
//	  "prefix": "history",
//	  "max_age": "720h",
//	  "request_timeout": "2s"
//	}
//
// # Metrics
//
// With a metrics registry, operations are counted by operation and status,
// timed per operation, and stored bytes are totalled, all labelled with the
// bucket name.
package objectstore
