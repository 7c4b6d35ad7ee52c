// Package natsclient wraps nats.go with a circuit breaker, connection
// lifecycle tracking and header-aware publish and subscribe helpers.
//
// Every barstreams component talks to NATS through a *Client. Artifacts are
// published with PublishMsg so their attributes (filename, mime.type and the
// per-format sequence) travel as message headers. Artifact storage uses
// JetStream object store buckets created through CreateObjectStore.
//
// # Circuit Breaker
//
// After a threshold of consecutive failures (default 5) the circuit opens
// and Connect and the JetStream helpers fail fast with ErrCircuitOpen. The
// circuit half-opens after the current backoff, which doubles on each
// repeated opening up to the configured maximum (default one minute).
//
// # Basic Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//		natsclient.WithName("barstreams"),
//		natsclient.WithLogger(natsclient.NewSlogLogger(logger)),
//	)
//	if err != nil {
//		return err
//	}
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	defer client.Close(context.Background())
//
//	err = client.PublishMsg(ctx, "bars.history.json", data, map[string]string{
//		"filename":  "test1.json",
//		"mime.type": "application/json",
//	})
//
// # Testing
//
// NewTestClient starts a NATS container through testcontainers-go:
//
//	tc := natsclient.NewTestClient(t, natsclient.WithObjectStore("artifacts"))
//	store, err := tc.Client.GetObjectStore(ctx, "artifacts")
package natsclient
