// Package health reports component and service health for the /health
// endpoint.
//
// Status has three levels: healthy, degraded and unhealthy. Aggregate folds
// component statuses into one, where any unhealthy component makes the
// whole unhealthy. FromComponentHealth converts a component's own report,
// scrubbing addresses, paths and credentials out of the last error first.
//
// Monitor holds the latest Status per component name and is safe for
// concurrent use.
package health
