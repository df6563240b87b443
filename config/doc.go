// Package config loads the fr-service configuration.
//
// A configuration is one or more JSON layers merged over built-in defaults.
// Objects merge key by key; arrays and scalars in a later layer replace the
// earlier value. Environment variables prefixed FR_SERVICE_ override the
// merged result:
//
//	FR_SERVICE_NATS_URLS       comma-separated server URLs
//	FR_SERVICE_NATS_USERNAME   / _PASSWORD / _TOKEN
//	FR_SERVICE_METRICS_PORT    Prometheus port
//	FR_SERVICE_POINTS          points catalog file
//	FR_SERVICE_RETAIN_BUCKET   KV bucket for retained values
//	FR_SERVICE_PLATFORM_ID
//
// The result is checked against the embedded JSON schema (see Schema) and
// then by Config.Validate for rules the schema cannot express.
//
//	loader := config.NewLoader()
//	cfg, err := loader.LoadFile("conf/fr-service.json")
//
// Task graphs themselves are YAML documents read by package fnconfig; the
// JSON configuration only names their files.
package config
