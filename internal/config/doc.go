// ABOUTME: Package doc for fold-client configuration
// ABOUTME: YAML loading with env expansion and duration parsing

// Package config loads and validates fold-client configuration.
//
// Configuration is YAML. ${VAR} patterns are expanded from the environment
// before parsing, and human-readable duration strings ("1s", "30s") are
// parsed into time.Duration values. Load validates the result and reports
// the first failure with the offending key.
package config
