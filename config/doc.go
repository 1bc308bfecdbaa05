// Package config loads the service configuration.
//
// A configuration is built in layers: Default, then each file added to a Loader in
// order, then AUTOPROCESS_* environment variables. Files may be JSON (.json) or YAML
// (.yaml, .yml); each one is checked against an embedded JSON Schema before it is
// merged, so a misspelled key is reported with its path instead of being ignored.
//
// # Basic Usage
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.yaml")
//	loader.AddLayer("config/production.yaml") // Overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	set, err := cfg.BuildSet()
//
// # Sections
//
//   - nats: server URLs, credentials, TLS and the key-value bucket names
//   - metrics: port, path and TLS of the /metrics and /healthz endpoint
//   - scheduler: workers, queue size, rate limit, trigger delay, retry
//   - storage: mode (file, kv or memory) and data directory
//   - processes: the automatic process definitions
//
// Validate compiles every process definition, so a configuration that loads with
// validation enabled can be run.
//
// # Environment Overrides
//
//	AUTOPROCESS_NATS_URLS           comma separated server URLs
//	AUTOPROCESS_NATS_USERNAME
//	AUTOPROCESS_NATS_PASSWORD
//	AUTOPROCESS_NATS_TOKEN
//	AUTOPROCESS_NATS_CREDS_FILE
//	AUTOPROCESS_STORAGE_MODE
//	AUTOPROCESS_STORAGE_DATA_DIR
//	AUTOPROCESS_METRICS_PORT
//	AUTOPROCESS_SCHEDULER_WORKERS
package config
