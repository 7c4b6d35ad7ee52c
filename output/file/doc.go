// Package file writes artifacts to disk, one file per message.
//
// # Sink
//
// Sink is the reusable part: it implements bars.ArtifactSink and
// bars.FailureSink over one directory, so the pipeline can write straight to
// disk without NATS:
//
//	sink, err := file.NewSink("./out", file.WithOverwrite(true))
//	failures, err := file.NewSink("./out/failure")
//	result, err := pipeline.Process(ctx, batch, policy, bars.Sinks{
//	    JSON: sink, XML: sink, Failure: failures,
//	})
//
// Each file is written under a temporary name in the target directory and
// renamed into place. Names containing a path separator or ".." are
// rejected.
//
// # Output component
//
// Output subscribes to the json, xml and failure subjects and writes each
// message body to a file named by its filename header. Messages on the
// failure port go to failure_directory, which defaults to
// <directory>/failure. A message without a filename header is written as
// "<port>-<uuid>".
//
//	{
//	    "directory": "/var/lib/barstreams/out",
//	    "overwrite": false,
//	    "ports": {
//	        "inputs": [
//	            {"name": "json", "type": "nats", "subject": "bars.json"},
//	            {"name": "xml", "type": "nats", "subject": "bars.xml"},
//	            {"name": "failure", "type": "nats", "subject": "bars.failure"}
//	        ]
//	    }
//	}
//
// Without overwrite, a name that already exists is an error and the message
// is counted as failed.
package file
