// Package config provides configuration loading and validation for the
// audio mirror service. It handles YAML-based configuration with per-section
// struct validation and an environment overlay for the transcription API key.
package config
