// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// A single endpoint can also be configured entirely from SDB_* environment variables.
package config
