package config

import (
	"fmt"

	"github.com/pondworks/duckmcp/internal/duck"
)

type TransportKind string

const (
	TransportStdio  TransportKind = "stdio"
	TransportSSE    TransportKind = "sse"
	TransportStream TransportKind = "stream"
)

// Config is the process-wide configuration, resolved once at startup and
// never mutated. It is passed explicitly into constructors rather than read
// from ambient state.
type Config struct {
	// Transport selects the protocol channel the server binds to.
	Transport TransportKind

	// Port is the HTTP listen port for the sse and stream transports.
	Port int

	// DBPath is the raw database address: a local file path, ":memory:", or
	// an md: MotherDuck address. Empty means in-memory.
	DBPath string

	// Token is the MotherDuck credential, from the flag or the
	// motherduck_token environment variable. May stay empty for local-only
	// deployments; cloud opens without it fail at first acquire.
	Token string

	// ReadOnly opens the local database file read-only. Only valid with a
	// local file address.
	ReadOnly bool

	// SaaSMode restricts MotherDuck sessions for multi-tenant safety.
	SaaSMode bool

	// HomeDir is the engine home directory. Empty means the ambient one.
	HomeDir string

	// JSONResponse switches the stream transport to plain JSON responses.
	JSONResponse bool

	// MetricsAddr is the prometheus listen address; empty disables it.
	MetricsAddr string

	Verbose bool
}

// Validate enforces the startup flag rules. Any error here is fatal: the
// process does not start with a contradictory configuration.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		c.DBPath = ":memory:"
	}

	switch c.Transport {
	case TransportStdio, TransportSSE, TransportStream:
	case "":
		c.Transport = TransportStdio
	default:
		return fmt.Errorf("unknown transport %q (expected stdio, sse, or stream)", c.Transport)
	}

	if c.Transport != TransportStdio && c.Port <= 0 {
		return fmt.Errorf("a port is required for the %s transport", c.Transport)
	}

	if c.JSONResponse && c.Transport != TransportStream {
		return fmt.Errorf("json responses are only available with the stream transport")
	}

	addr := duck.ResolveAddress(c.DBPath)
	if c.ReadOnly && addr.Kind != duck.AddressLocalFile {
		return fmt.Errorf("read-only mode requires a local database file, got %q", c.DBPath)
	}

	if c.SaaSMode && c.Token == "" {
		return fmt.Errorf("saas mode requires a motherduck token")
	}

	return nil
}
