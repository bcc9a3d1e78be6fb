package connection

import (
	"testing"
	"time"
)

func TestOptions_ApplyDefaults(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "zero values", opts: Options{}},
		{
			name: "negative values",
			opts: Options{
				ReconnectInterval:    -time.Second,
				MaxReconnectAttempts: -1,
				HeartbeatInterval:    -time.Second,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.applyDefaults()
			if tt.opts.ReconnectInterval != DefaultReconnectInterval {
				t.Errorf("ReconnectInterval = %v, want %v", tt.opts.ReconnectInterval, DefaultReconnectInterval)
			}
			if tt.opts.MaxReconnectAttempts != DefaultMaxReconnectAttempts {
				t.Errorf("MaxReconnectAttempts = %d, want %d", tt.opts.MaxReconnectAttempts, DefaultMaxReconnectAttempts)
			}
			if tt.opts.HeartbeatInterval != DefaultHeartbeatInterval {
				t.Errorf("HeartbeatInterval = %v, want %v", tt.opts.HeartbeatInterval, DefaultHeartbeatInterval)
			}
		})
	}
}

func TestOptions_ApplyDefaultsKeepsTuning(t *testing.T) {
	opts := Options{
		ReconnectInterval:    time.Second,
		MaxReconnectAttempts: 2,
		HeartbeatInterval:    time.Minute,
	}
	opts.applyDefaults()
	if opts.ReconnectInterval != time.Second || opts.MaxReconnectAttempts != 2 || opts.HeartbeatInterval != time.Minute {
		t.Errorf("explicit tuning overwritten: %+v", opts)
	}
}
