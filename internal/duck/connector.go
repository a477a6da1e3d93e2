package duck

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"

	_ "github.com/duckdb/duckdb-go/v2"
)

// Policy is the immutable connection configuration resolved at startup.
type Policy struct {
	// ReadOnly opens local database files in read-only mode. Only valid for
	// local file addresses.
	ReadOnly bool

	// SaaSMode restricts MotherDuck sessions for multi-tenant safety. It is
	// forwarded as an open-time option and never changes the discipline.
	SaaSMode bool

	// Token is the MotherDuck credential. Required to open any cloud
	// address; its absence surfaces at first acquire, not at startup.
	Token string

	// HomeDir overrides the engine's home directory for extension loading
	// and temp spill files. Empty means the ambient environment's.
	HomeDir string

	// UserAgent is forwarded to the engine as custom_user_agent.
	UserAgent string
}

// Connector decides how query invocations obtain and release engine handles.
// Exactly one discipline is chosen for the process lifetime:
//
//   - shared: one handle lives for the whole run and serves every invocation
//   - ephemeral: a fresh handle is opened and closed per invocation
//
// Acquire returns the handle and a release func the caller must invoke on
// every path leaving the invocation; deferring it right after a successful
// acquire gives the structured-release guarantee.
type Connector interface {
	Acquire(ctx context.Context) (*sql.DB, func(), error)

	// Invalidate discards internal state when the engine reports a handle
	// unusable, so the next acquire can reopen. No-op unless err is an
	// engine invalidation.
	Invalidate(err error)

	Close() error
}

// NewConnector applies the discipline decision table once at startup:
// read-only local files get the ephemeral discipline, everything else shares
// one long-lived handle.
func NewConnector(addr Address, policy Policy, log *slog.Logger) (Connector, error) {
	if policy.ReadOnly && addr.Kind != AddressLocalFile {
		return nil, newError(KindConfiguration, "read-only mode requires a local database file, got %q", addr.String())
	}
	if policy.ReadOnly {
		log.Info("duck: using ephemeral read-only connections", "path", addr.Path)
		return &ephemeralConnector{addr: addr, policy: policy, log: log}, nil
	}
	log.Info("duck: using a shared connection", "address", addr.String())
	return &sharedConnector{addr: addr, policy: policy, log: log}, nil
}

// dsn builds the engine open string for the address under the policy. All
// open-time options travel as query parameters, the same way the engine's
// own clients pass them.
func (a Address) dsn(p Policy) (string, error) {
	params := url.Values{}
	if p.UserAgent != "" {
		params.Set("custom_user_agent", p.UserAgent)
	}
	if p.HomeDir != "" {
		params.Set("home_directory", p.HomeDir)
	}

	var base string
	switch a.Kind {
	case AddressInMemory:
		base = ""
	case AddressLocalFile:
		base = a.Path
		if p.ReadOnly {
			params.Set("access_mode", "read_only")
		}
	case AddressCloudDefault, AddressCloudNamed:
		if p.Token == "" {
			return "", newError(KindMissingCredential, "a MotherDuck token is required to connect to %q; pass --motherduck-token or set the motherduck_token environment variable", a.String())
		}
		base = a.String()
		params.Set("motherduck_token", p.Token)
		if p.SaaSMode {
			params.Set("saas_mode", "true")
		}
	}

	if len(params) == 0 {
		return base, nil
	}
	return base + "?" + params.Encode(), nil
}

// open opens and verifies a handle. database/sql opens lazily, so the ping
// is what actually surfaces bad paths, held locks, and bad credentials here
// rather than on the first statement.
func open(ctx context.Context, addr Address, policy Policy, maxConns int) (*sql.DB, error) {
	dsn, err := addr.dsn(policy)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, Classify(err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &Error{Kind: KindConnection, Message: err.Error()}
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0) // connections don't expire

	return db, nil
}

// sharedConnector owns one handle for the process's entire run. The first
// acquire opens it; concurrent first calls race on the mutex so only one
// physical open occurs. Release is a no-op. A failed open caches nothing, so
// the next invocation retries independently.
type sharedConnector struct {
	addr   Address
	policy Policy
	log    *slog.Logger

	mu    sync.Mutex
	db    *sql.DB
	opens atomic.Int64
}

func (c *sharedConnector) Acquire(ctx context.Context) (*sql.DB, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return c.db, func() {}, nil
	}

	db, err := open(ctx, c.addr, c.policy, 10)
	if err != nil {
		return nil, nil, err
	}
	c.opens.Add(1)
	c.db = db
	c.log.Info("duck: connected", "address", c.addr.String())
	return c.db, func() {}, nil
}

// Invalidate drops the cached handle after an engine invalidation. There is
// no in-invocation retry; the invocation that hit the error fails, and the
// next acquire reopens.
func (c *sharedConnector) Invalidate(err error) {
	if !isInvalidationError(err) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return
	}
	c.log.Warn("duck: database invalidated, discarding shared handle", "error", err)
	c.db.Close()
	c.db = nil
}

func (c *sharedConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// ephemeralConnector opens a brand-new handle per acquire and closes it on
// release. Only selected for read-only local files, where repeated
// open/close is safe and independent readers may interleave freely.
type ephemeralConnector struct {
	addr   Address
	policy Policy
	log    *slog.Logger

	active atomic.Int64
}

func (c *ephemeralConnector) Acquire(ctx context.Context) (*sql.DB, func(), error) {
	db, err := open(ctx, c.addr, c.policy, 1)
	if err != nil {
		return nil, nil, err
	}
	c.active.Add(1)

	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := db.Close(); err != nil {
				c.log.Warn("duck: failed to close ephemeral handle", "error", err)
			}
			c.active.Add(-1)
		})
	}
	return db, release, nil
}

func (c *ephemeralConnector) Invalidate(error) {}

func (c *ephemeralConnector) Close() error { return nil }

// Verify opens a probe handle and runs a trivial statement through it, so a
// bad address is reported at startup instead of on the first invocation.
// Used for read-only deployments, mirroring the write path's lock-free
// startup.
func Verify(ctx context.Context, c Connector) error {
	db, release, err := c.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return Classify(err)
	}
	return nil
}
