package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MarLuar/Mirror/internal/wav"
)

// Config represents the complete service configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	HTTP          HTTPConfig          `yaml:"http"`
	Audio         AudioConfig         `yaml:"audio"`
	Playback      PlaybackConfig      `yaml:"playback"`
	Recorder      RecorderConfig      `yaml:"recorder"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Transport     TransportConfig     `yaml:"transport"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig contains UDP server configuration
type ServerConfig struct {
	UDPPort     int    `yaml:"udp_port"`
	BindAddress string `yaml:"bind_address"`
	BufferSize  int    `yaml:"buffer_size"`
	// StreamTimeout is how long a capture stream survives without a
	// datagram, in seconds.
	StreamTimeout int `yaml:"stream_timeout"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// AudioConfig contains capture audio parameters
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
	BitDepth   int `yaml:"bit_depth"`
	// BlockMS is the capture block size in milliseconds.
	BlockMS int `yaml:"block_ms"`
	// GainBits is the left-shift gain applied to captured samples.
	GainBits int `yaml:"gain_bits"`
}

// PlaybackConfig contains playback reconstruction parameters
type PlaybackConfig struct {
	SampleRate     int `yaml:"sample_rate"`
	SourceChannels int `yaml:"source_channels"`
	OutputChannels int `yaml:"output_channels"`
	// SilenceWindowMS ends a playback session after this many milliseconds
	// without a payload.
	SilenceWindowMS int `yaml:"silence_window_ms"`
	WriteTimeoutMS  int `yaml:"write_timeout_ms"`
}

// RecorderConfig contains recording storage configuration
type RecorderConfig struct {
	Dir string `yaml:"dir"`
	// MaxDuration caps a single recording, in seconds.
	MaxDuration int `yaml:"max_duration"`
	// MinDataBytes below which a finalized recording counts as empty.
	MinDataBytes int `yaml:"min_data_bytes"`
}

// TranscriptionConfig contains transcription API configuration
type TranscriptionConfig struct {
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	ModelID        string `yaml:"model_id"`
	Timeout        int    `yaml:"timeout"` // seconds
	MaxRetries     int    `yaml:"max_retries"`
	MaxConcurrent  int    `yaml:"max_concurrent"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// TransportConfig contains device-side transport configuration
type TransportConfig struct {
	CaptureAddr  string `yaml:"capture_addr"`
	PlaybackPort int    `yaml:"playback_port"`
	// MaxSendFailures before the channel rebinds its socket.
	MaxSendFailures int `yaml:"max_send_failures"`
	// HeartbeatInterval between reachability probes, in seconds.
	HeartbeatInterval int `yaml:"heartbeat_interval"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file. A .env file next to the
// working directory is loaded first so the API key can stay out of the
// YAML; MIRROR_API_KEY overrides transcription.api_key when set.
func Load(path string) (*Config, error) {
	// Missing .env is fine, the environment may already be populated.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if key := os.Getenv("MIRROR_API_KEY"); key != "" {
		config.Transcription.APIKey = key
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Playback.Validate(); err != nil {
		return fmt.Errorf("playback config: %w", err)
	}

	if err := c.Recorder.Validate(); err != nil {
		return fmt.Errorf("recorder config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("transport config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	// A duration-capped recording must still fit under the upload ceiling,
	// otherwise the cap produces files the uploader always rejects.
	cappedBytes := int64(c.Recorder.MaxDuration) * int64(c.Audio.SampleRate) *
		int64(c.Audio.Channels) * int64(c.Audio.BitDepth/8)
	if cappedBytes+wav.HeaderSize > c.Transcription.MaxUploadBytes {
		return fmt.Errorf("recorder config: max_duration of %ds produces %d-byte recordings, over max_upload_bytes %d",
			c.Recorder.MaxDuration, cappedBytes+wav.HeaderSize, c.Transcription.MaxUploadBytes)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.UDPPort < 1 || s.UDPPort > 65535 {
		return fmt.Errorf("udp_port must be between 1 and 65535, got %d", s.UDPPort)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.BufferSize < 1024 {
		return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", s.BufferSize)
	}

	if s.StreamTimeout < 1 {
		return fmt.Errorf("stream_timeout must be at least 1 second, got %d", s.StreamTimeout)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", a.SampleRate)
	}

	if a.Channels < 1 || a.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	if a.BlockMS < 1 || a.BlockMS > 500 {
		return fmt.Errorf("block_ms must be between 1 and 500, got %d", a.BlockMS)
	}

	if a.GainBits < 0 || a.GainBits > 8 {
		return fmt.Errorf("gain_bits must be between 0 and 8, got %d", a.GainBits)
	}

	return nil
}

// Validate validates playback configuration
func (p *PlaybackConfig) Validate() error {
	if p.SampleRate < 8000 || p.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", p.SampleRate)
	}

	if p.SourceChannels < 1 || p.SourceChannels > 2 {
		return fmt.Errorf("source_channels must be 1 or 2, got %d", p.SourceChannels)
	}

	if p.OutputChannels < 1 || p.OutputChannels > 2 {
		return fmt.Errorf("output_channels must be 1 or 2, got %d", p.OutputChannels)
	}

	if p.SilenceWindowMS < 100 || p.SilenceWindowMS > 30000 {
		return fmt.Errorf("silence_window_ms must be between 100 and 30000, got %d", p.SilenceWindowMS)
	}

	if p.WriteTimeoutMS < 1 {
		return fmt.Errorf("write_timeout_ms must be at least 1, got %d", p.WriteTimeoutMS)
	}

	return nil
}

// Validate validates recorder configuration
func (r *RecorderConfig) Validate() error {
	if r.Dir == "" {
		return fmt.Errorf("dir cannot be empty")
	}

	if r.MaxDuration < 1 {
		return fmt.Errorf("max_duration must be at least 1 second, got %d", r.MaxDuration)
	}

	if r.MinDataBytes < 0 {
		return fmt.Errorf("min_data_bytes cannot be negative, got %d", r.MinDataBytes)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	if t.MaxUploadBytes < 1024 {
		return fmt.Errorf("max_upload_bytes must be at least 1024, got %d", t.MaxUploadBytes)
	}

	return nil
}

// Validate validates transport configuration
func (t *TransportConfig) Validate() error {
	if t.CaptureAddr == "" {
		return fmt.Errorf("capture_addr cannot be empty")
	}

	if t.PlaybackPort < 1 || t.PlaybackPort > 65535 {
		return fmt.Errorf("playback_port must be between 1 and 65535, got %d", t.PlaybackPort)
	}

	if t.MaxSendFailures < 1 {
		return fmt.Errorf("max_send_failures must be at least 1, got %d", t.MaxSendFailures)
	}

	if t.HeartbeatInterval < 1 {
		return fmt.Errorf("heartbeat_interval must be at least 1 second, got %d", t.HeartbeatInterval)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetStreamTimeoutDuration returns the stream timeout as a time.Duration
func (s *ServerConfig) GetStreamTimeoutDuration() time.Duration {
	return time.Duration(s.StreamTimeout) * time.Second
}

// GetBlockDuration returns the capture block size as a time.Duration
func (a *AudioConfig) GetBlockDuration() time.Duration {
	return time.Duration(a.BlockMS) * time.Millisecond
}

// GetSilenceWindow returns the playback silence window as a time.Duration
func (p *PlaybackConfig) GetSilenceWindow() time.Duration {
	return time.Duration(p.SilenceWindowMS) * time.Millisecond
}

// GetWriteTimeout returns the playback write timeout as a time.Duration
func (p *PlaybackConfig) GetWriteTimeout() time.Duration {
	return time.Duration(p.WriteTimeoutMS) * time.Millisecond
}

// GetMaxDuration returns the recording cap as a time.Duration
func (r *RecorderConfig) GetMaxDuration() time.Duration {
	return time.Duration(r.MaxDuration) * time.Second
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetHeartbeatInterval returns the probe interval as a time.Duration
func (t *TransportConfig) GetHeartbeatInterval() time.Duration {
	return time.Duration(t.HeartbeatInterval) * time.Second
}
