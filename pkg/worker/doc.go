// Package worker provides a generic, thread-safe worker pool.
//
// # Overview
//
// A Pool runs a fixed number of goroutines over a bounded queue of work
// items of any type T:
//
//	pool := worker.NewPool(4, 100, func(ctx context.Context, b bars.Batch) error {
//		_, err := pipeline.Process(ctx, b, policy, sinks)
//		return err
//	})
//	if err := pool.Start(ctx); err != nil {
//		return err
//	}
//	defer pool.Stop(5 * time.Second)
//
// # Submitting Work
//
// Submit never blocks; it returns ErrQueueFull when the queue is at
// capacity and counts the item as dropped. SubmitWait blocks until there is
// room or its context is done, which lets a NATS subscription handler slow
// the producer down instead of shedding batches.
//
// # Shutdown
//
// Stop closes the queue and waits for the workers to drain what was already
// queued. Items still queued when the Start context is cancelled are not
// processed. Stop returns ErrStopTimeout if the drain takes longer than the
// timeout; the pool accepts no new work either way.
//
// # Observability
//
// Stats are always tracked with atomics. WithMetricsRegistry additionally
// registers Prometheus gauges, counters, and a duration histogram under a
// prefix; they are released when Stop completes so a replacement pool can
// register the same prefix. WithErrorHandler receives each item whose
// processor returned an error.
package worker
