// Package config loads the probe and mock server configuration from defaults, an optional
// YAML file, a .env file and environment variables, and validates every section.
package config
