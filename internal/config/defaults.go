package config

import (
	"time"

	"github.com/podwave/relay/internal/backoff"
	"github.com/podwave/relay/internal/session"
	"github.com/podwave/relay/internal/transport"
)

// Default values for optional configuration fields. Session and gateway
// defaults mirror the owning packages so the config layer never drifts
// from them.
const (
	DefaultBaseURL         = "https://api.podwave.io/platform/v1"
	DefaultGatewayURL      = "wss://gateway.podwave.io/realtime"
	DefaultAPITimeout      = 30 * time.Second
	DefaultMaxRetries      = 3
	DefaultDBPort          = 5432
	DefaultDBSSLMode       = "prefer"
	DefaultMaxConns        = 10
	DefaultMinConns        = 2
	DefaultBatchSize       = 500
	DefaultFlushInterval   = 1 * time.Second
	DefaultBufferSize      = 4096
	DefaultMonitorInterval = 30 * time.Second
	DefaultHealthPort      = 8080
)

func (c *RelayConfig) applyDefaults() {
	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	// Gateway defaults
	if c.Gateway.URL == "" {
		c.Gateway.URL = DefaultGatewayURL
	}
	if c.Gateway.HandshakeTimeout == 0 {
		c.Gateway.HandshakeTimeout = transport.DefaultHandshakeTimeout
	}
	if c.Gateway.WriteTimeout == 0 {
		c.Gateway.WriteTimeout = transport.DefaultWriteTimeout
	}
	if c.Gateway.PingInterval == 0 {
		c.Gateway.PingInterval = transport.DefaultPingInterval
	}
	if c.Gateway.PongWait == 0 {
		c.Gateway.PongWait = transport.DefaultPongWait
	}
	if c.Gateway.ReadLimit == 0 {
		c.Gateway.ReadLimit = transport.DefaultReadLimit
	}
	if c.Gateway.MessageBuffer == 0 {
		c.Gateway.MessageBuffer = transport.DefaultMessageBuffer
	}

	// Session defaults
	if c.Session.QueueCapacity == 0 {
		c.Session.QueueCapacity = session.DefaultQueueCapacity
	}
	if c.Session.DedupCapacity == 0 {
		c.Session.DedupCapacity = session.DefaultDedupCapacity
	}
	if c.Session.DedupTrim == 0 {
		c.Session.DedupTrim = session.DefaultDedupTrim
	}
	if c.Session.Buffer == 0 {
		c.Session.Buffer = session.DefaultBuffer
	}
	policy := backoff.DefaultPolicy()
	if c.Session.ReconnectBaseDelay == 0 {
		c.Session.ReconnectBaseDelay = policy.InitialDelay
	}
	if c.Session.ReconnectMaxDelay == 0 {
		c.Session.ReconnectMaxDelay = policy.MaxDelay
	}
	if c.Session.MaxAttempts == 0 {
		c.Session.MaxAttempts = policy.MaxAttempts
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Recorder defaults
	if c.Recorder.BatchSize == 0 {
		c.Recorder.BatchSize = DefaultBatchSize
	}
	if c.Recorder.FlushInterval == 0 {
		c.Recorder.FlushInterval = DefaultFlushInterval
	}
	if c.Recorder.BufferSize == 0 {
		c.Recorder.BufferSize = DefaultBufferSize
	}

	// Monitor defaults
	if c.Monitor.Interval == 0 {
		c.Monitor.Interval = DefaultMonitorInterval
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
}
