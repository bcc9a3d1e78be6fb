package config

import "time"

// SyncConfig is the root configuration for one synchronization core
// instance.
type SyncConfig struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Server     ServerConfig     `yaml:"server"`
	Connection ConnectionConfig `yaml:"connection"`
	Sync       SyncOptions      `yaml:"sync"`
	Database   DatabaseConfig   `yaml:"database"`
}

// InstanceConfig identifies this process.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ServerConfig holds the collaboration server endpoint.
type ServerConfig struct {
	URL string `yaml:"url"`
}

// ConnectionConfig tunes the connection manager. Reconnection is always
// enabled for synchronized workspaces; these fields bound it.
type ConnectionConfig struct {
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
}

// SyncOptions tunes the update synchronizer.
type SyncOptions struct {
	ConflictStrategy string `yaml:"conflict_strategy"`
}

// DatabaseConfig holds the canonical state database. Optional: when the
// host is empty the core runs without a persistence collaborator.
type DatabaseConfig struct {
	State DBConfig `yaml:"state"`
}

// DBConfig holds a single database connection.
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
