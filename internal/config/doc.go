// Package config loads, normalizes, and validates alphapack configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// ALPHAPACK_FFMPEG. The Config type centralizes every knob the CLI and
// pipelines need: carrier layout, worker pool sizing, container compression
// and logging.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
