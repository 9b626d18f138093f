// Package config loads, defaults, and validates monitor configuration
// from a YAML file with ${VAR} environment expansion.
package config
