// Package config loads the barstreams service configuration.
//
// A Loader starts from Default, merges each file layer key by key (JSON or
// YAML, chosen by extension) and then applies BARSTREAMS_* environment
// overrides. Component blocks are kept as raw JSON and decoded by each
// component's factory.
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/barstreams.yaml")
//	loader.EnableValidation(true)
//	cfg, err := loader.Load()
//
// Recognized overrides:
//
//	BARSTREAMS_PLATFORM_ORG, BARSTREAMS_PLATFORM_ID, BARSTREAMS_PLATFORM_ENVIRONMENT
//	BARSTREAMS_LOG_LEVEL, BARSTREAMS_LOG_FORMAT
//	BARSTREAMS_NATS_URLS (comma separated), BARSTREAMS_NATS_USERNAME,
//	BARSTREAMS_NATS_PASSWORD, BARSTREAMS_NATS_TOKEN
//	BARSTREAMS_METRICS_ENABLED, BARSTREAMS_METRICS_PORT, BARSTREAMS_METRICS_PATH
//
// SafeConfig guards a Config shared between goroutines; Get returns deep
// copies. String and Redacted mask NATS credentials.
package config
