// Package websocket provides the WebSocket input component for CSV history
// batches.
//
// The input runs a WebSocket server. Each text message is a JSON envelope:
//
//	{"type": "batch", "id": "b-42", "name": "btc-2021.csv", "payload": "Timestamp,Open,...\n..."}
//
// The payload is published unchanged to the batches subject (bars.batches
// by default) with the envelope name as the filename header and the id as
// the batch.id header. A missing id is generated; a missing name becomes
// ws-<id>.csv.
//
// Every envelope is answered on the same connection:
//
//	{"type": "ack", "id": "b-42", "name": "btc-2021.csv"}
//	{"type": "nack", "id": "b-42", "reason": "publish_failed", "error": "..."}
//
// Nack reasons are invalid_envelope, unsupported_type, empty_payload and
// publish_failed. Decoding the CSV happens downstream in the history
// processor, so an ack means the batch was accepted for processing, not
// that it converted cleanly.
//
// Connections beyond max_connections are refused with 503 before the
// upgrade. A message larger than read_limit closes its connection.
//
// Authentication is none, bearer or basic, with secrets read from the
// environment variables named in the auth block.
package websocket
