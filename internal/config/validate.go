package config

import (
	"errors"
	"fmt"
)

var validStrategies = map[string]bool{
	"last_write_wins":  true,
	"first_write_wins": true,
	"merge":            true,
	"manual":           true,
}

// Validate checks that all required fields are set and values are valid.
func (c *SyncConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}
	if c.Server.URL == "" {
		return errors.New("server.url is required")
	}

	if c.Connection.ReconnectInterval < 0 {
		return errors.New("connection.reconnect_interval must be >= 0")
	}
	if c.Connection.MaxReconnectAttempts < 1 {
		return errors.New("connection.max_reconnect_attempts must be >= 1")
	}
	if c.Connection.HeartbeatInterval < 0 {
		return errors.New("connection.heartbeat_interval must be >= 0")
	}

	if !validStrategies[c.Sync.ConflictStrategy] {
		return fmt.Errorf("sync.conflict_strategy %q is not one of last_write_wins, first_write_wins, merge, manual", c.Sync.ConflictStrategy)
	}

	if c.Database.State.Host != "" {
		if err := c.Database.State.validate("database.state"); err != nil {
			return err
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
