package config

import "time"

// RelayConfig is the root configuration for a relay instance.
type RelayConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	API      APIConfig      `yaml:"api"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Session  SessionConfig  `yaml:"session"`
	Rooms    RoomsConfig    `yaml:"rooms"`
	Database DBConfig       `yaml:"database"`
	Recorder RecorderConfig `yaml:"recorder"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Health   HealthConfig   `yaml:"health"`
}

// InstanceConfig identifies this relay.
type InstanceConfig struct {
	ID     string `yaml:"id"`
	Region string `yaml:"region"`
}

// APIConfig holds Podwave platform API settings.
type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	KeyID      string        `yaml:"key_id"`      // Access key ID (for PODWAVE-ACCESS-KEY header)
	SecretPath string        `yaml:"secret_path"` // Path to the shared secret file
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// GatewayConfig holds realtime gateway transport settings.
type GatewayConfig struct {
	URL              string        `yaml:"url"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PongWait         time.Duration `yaml:"pong_wait"`
	ReadLimit        int64         `yaml:"read_limit"`
	MessageBuffer    int           `yaml:"message_buffer"`
}

// SessionConfig holds session resilience settings.
type SessionConfig struct {
	QueueCapacity      int           `yaml:"queue_capacity"`
	DedupCapacity      int           `yaml:"dedup_capacity"`
	DedupTrim          float64       `yaml:"dedup_trim"`
	Buffer             int           `yaml:"buffer"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	MaxAttempts        int           `yaml:"max_attempts"`
}

// RoomsConfig lists rooms joined at startup. Empty values join nothing.
type RoomsConfig struct {
	Game          string `yaml:"game"`
	Collaborative string `yaml:"collaborative"`
}

// DBConfig holds the event archive database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RecorderConfig holds batch recorder settings.
type RecorderConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// MonitorConfig holds periodic stats logging settings.
type MonitorConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}
