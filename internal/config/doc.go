// Package config loads and validates YAML configuration for the
// synchronization core. Files may reference environment variables with
// ${VAR} syntax; values are expanded at load time.
package config
