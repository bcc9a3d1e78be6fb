package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultReconnectInterval    = 5 * time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultConflictStrategy     = "last_write_wins"
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
)

func (c *SyncConfig) applyDefaults() {
	if c.Connection.ReconnectInterval == 0 {
		c.Connection.ReconnectInterval = DefaultReconnectInterval
	}
	if c.Connection.MaxReconnectAttempts == 0 {
		c.Connection.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Connection.HeartbeatInterval == 0 {
		c.Connection.HeartbeatInterval = DefaultHeartbeatInterval
	}

	if c.Sync.ConflictStrategy == "" {
		c.Sync.ConflictStrategy = DefaultConflictStrategy
	}

	if c.Database.State.Host != "" {
		applyDBDefaults(&c.Database.State)
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
