// Package config loads, validates, and normalizes repost configuration from
// TOML files, with environment variable fallbacks for secrets.
package config
