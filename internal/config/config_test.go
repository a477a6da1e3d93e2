package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Transport: TransportStdio,
		DBPath:    ":memory:",
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:   "valid config",
			modify: func(c *Config) {},
		},
		{
			name: "empty transport defaults to stdio",
			modify: func(c *Config) {
				c.Transport = ""
			},
		},
		{
			name: "unknown transport",
			modify: func(c *Config) {
				c.Transport = "websocket"
			},
			wantErr: true,
		},
		{
			name: "sse requires a port",
			modify: func(c *Config) {
				c.Transport = TransportSSE
			},
			wantErr: true,
		},
		{
			name: "stream requires a port",
			modify: func(c *Config) {
				c.Transport = TransportStream
			},
			wantErr: true,
		},
		{
			name: "stream with port",
			modify: func(c *Config) {
				c.Transport = TransportStream
				c.Port = 4242
			},
		},
		{
			name: "json response requires the stream transport",
			modify: func(c *Config) {
				c.JSONResponse = true
			},
			wantErr: true,
		},
		{
			name: "json response with stream transport",
			modify: func(c *Config) {
				c.Transport = TransportStream
				c.Port = 4242
				c.JSONResponse = true
			},
		},
		{
			name: "read-only with a local file",
			modify: func(c *Config) {
				c.DBPath = "/tmp/warehouse.db"
				c.ReadOnly = true
			},
		},
		{
			name: "read-only with a cloud address",
			modify: func(c *Config) {
				c.DBPath = "md:stats"
				c.ReadOnly = true
			},
			wantErr: true,
		},
		{
			name: "read-only with an in-memory address",
			modify: func(c *Config) {
				c.DBPath = ":memory:"
				c.ReadOnly = true
			},
			wantErr: true,
		},
		{
			name: "saas mode without a token",
			modify: func(c *Config) {
				c.DBPath = "md:"
				c.SaaSMode = true
			},
			wantErr: true,
		},
		{
			name: "saas mode with a token",
			modify: func(c *Config) {
				c.DBPath = "md:"
				c.SaaSMode = true
				c.Token = "tok"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_Validate_DefaultsDBPath(t *testing.T) {
	t.Parallel()

	cfg := Config{Transport: TransportStdio}
	require.NoError(t, cfg.Validate())
	require.Equal(t, ":memory:", cfg.DBPath)
}
