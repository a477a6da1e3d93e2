package server

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pondworks/duckmcp/internal/config"
	"github.com/pondworks/duckmcp/internal/duck"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultShutdownTimeout   = 5 * time.Second
)

type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock

	// Connector is the connection lifecycle manager every query invocation
	// acquires its handle from.
	Connector duck.Connector

	// ReadOnly enables the mutating-statement guard in front of the
	// connector.
	ReadOnly bool

	Version   string
	Transport config.TransportKind

	// ListenAddr is the HTTP listen address for the sse and stream
	// transports. Ignored for stdio.
	ListenAddr string

	// JSONResponse switches the stream transport to plain JSON responses
	// instead of SSE streams.
	JSONResponse bool

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Connector == nil {
		return fmt.Errorf("connector is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Transport == "" {
		c.Transport = config.TransportStdio
	}
	if c.Transport != config.TransportStdio && c.ListenAddr == "" {
		return fmt.Errorf("listen address is required for the %s transport", c.Transport)
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	return nil
}
