// Package config provides centralized configuration management for the
// GuardianEye runtime. It loads a single JSON file, fills in sensible
// defaults and resolves relative paths against the configuration
// directory so deployments can ship self-contained config bundles.
package config
