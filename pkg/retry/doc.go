// Package retry provides exponential backoff retry for transient failures.
//
// Config.Retryable plugs in the caller's classification, for example
// errors.IsTransient:
//
//	cfg := retry.DefaultConfig()
//	cfg.Retryable = errors.IsTransient
//	err := retry.Do(ctx, cfg, func() error {
//	    return client.PublishMsg(ctx, subject, data, headers)
//	})
package retry
