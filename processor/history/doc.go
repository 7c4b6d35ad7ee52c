// Package history provides the processor that turns Bitcoin OHLC history CSV
// batches into one JSON and one XML artifact per record.
//
// # Overview
//
// The processor subscribes to a batch subject. Each message body is one CSV
// batch; its headers become the batch attributes and the filename header
// names the batch. A batch without a filename gets "batch-<uuid>.csv" and a
// batch without a batch.id header gets a fresh UUID, so every artifact and
// every failure can be traced back to its batch.
//
// Batches are queued onto a worker pool and run through bars.Pipeline under
// the policy that was current when they arrived. Artifacts are published to
// the json and xml subjects with their own filename, mime.type and sequence
// headers. A batch that cannot be decoded is republished to the failure
// subject with its original body and attributes, and nothing else is
// emitted for it. The db port is declared for configuration compatibility
// and never receives messages.
//
// # Configuration
//
//	{
//	    "name": "history",
//	    "output": "ALL",
//	    "workers": 4,
//	    "queue_size": 100,
//	    "publish_timeout": "5s",
//	    "retry": {"max_attempts": 3, "initial_delay": "100ms", "max_delay": "2s"},
//	    "ports": {
//	        "inputs":  [{"name": "batches", "type": "nats", "subject": "bars.batches"}],
//	        "outputs": [
//	            {"name": "json", "type": "nats", "subject": "bars.json"},
//	            {"name": "xml", "type": "nats", "subject": "bars.xml"},
//	            {"name": "failure", "type": "nats", "subject": "bars.failure"}
//	        ]
//	    }
//	}
//
// output accepts ALL, JSON, XML or DB in any case. DB produces no artifacts.
// Reschedule changes the output for batches received afterwards.
//
// # Delivery
//
// Each artifact is published with exponential backoff while the error is
// transient or the client is disconnected. An artifact that still cannot be
// delivered is logged and counted; the remaining records of the batch are
// still emitted and its sequence numbers stay contiguous.
package history
