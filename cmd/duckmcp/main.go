package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/pondworks/duckmcp/internal/config"
	"github.com/pondworks/duckmcp/internal/duck"
	"github.com/pondworks/duckmcp/internal/metrics"
	"github.com/pondworks/duckmcp/internal/server"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultDBPath   = ":memory:"
	defaultPort     = 4242
	tokenEnvVar     = "motherduck_token"
	verifyTimeout   = 30 * time.Second
	defaultDBEnvVar = "DUCKMCP_DB_PATH"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; flags and the ambient environment still apply.
	_ = godotenv.Load()

	transportFlag := flag.String("transport", "stdio", "transport to serve on (stdio, sse, stream)")
	portFlag := flag.Int("port", defaultPort, "HTTP listen port for the sse and stream transports")
	dbPathFlag := flag.String("db-path", "", "database address: a local file path, :memory:, or an md: MotherDuck database (or set DUCKMCP_DB_PATH)")
	tokenFlag := flag.String("motherduck-token", "", "MotherDuck access token (falls back to the motherduck_token env var)")
	readOnlyFlag := flag.Bool("read-only", false, "open the local database file in read-only mode")
	saasModeFlag := flag.Bool("saas-mode", false, "connect to MotherDuck in SaaS mode (restricted local access)")
	homeDirFlag := flag.String("home-dir", "", "home directory for DuckDB (defaults to the ambient HOME)")
	jsonResponseFlag := flag.Bool("json-response", false, "use plain JSON responses instead of SSE streams (stream transport only)")
	metricsAddrFlag := flag.String("metrics-addr", "", "address to serve prometheus metrics on (disabled when empty)")
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	flag.Parse()

	// Determine database path: flag takes precedence, then env var, then default
	dbPath := *dbPathFlag
	if dbPath == "" {
		dbPath = os.Getenv(defaultDBEnvVar)
	}
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	token := *tokenFlag
	if token == "" {
		token = os.Getenv(tokenEnvVar)
	}

	cfg := &config.Config{
		Transport:    config.TransportKind(*transportFlag),
		Port:         *portFlag,
		DBPath:       dbPath,
		Token:        token,
		ReadOnly:     *readOnlyFlag,
		SaaSMode:     *saasModeFlag,
		HomeDir:      *homeDirFlag,
		JSONResponse: *jsonResponseFlag,
		MetricsAddr:  *metricsAddrFlag,
		Verbose:      *verboseFlag,
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := newLogger(cfg.Verbose)

	// The engine needs a home directory for extension loading and temp spill
	// files. An explicit flag overrides the ambient one; having neither is a
	// startup error rather than a per-query surprise.
	if cfg.HomeDir == "" {
		if _, err := os.UserHomeDir(); err != nil {
			return fmt.Errorf("invalid configuration: no home directory available, pass --home-dir: %w", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var metricsServerErrCh = make(chan error, 1)
	if cfg.MetricsAddr != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", cfg.MetricsAddr)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				metricsServerErrCh <- err
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
				metricsServerErrCh <- err
				return
			}
		}()
	}

	addr := duck.ResolveAddress(cfg.DBPath)
	connector, err := duck.NewConnector(addr, duck.Policy{
		ReadOnly:  cfg.ReadOnly,
		SaaSMode:  cfg.SaaSMode,
		Token:     cfg.Token,
		HomeDir:   cfg.HomeDir,
		UserAgent: fmt.Sprintf("duckmcp/%s", version),
	}, log)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	defer connector.Close()

	// Read-only deployments never hold a handle across invocations, so probe
	// connectivity once up front; the write path defers failures to the
	// first acquire to avoid taking the file lock before it is needed.
	if cfg.ReadOnly {
		verifyCtx, verifyCancel := context.WithTimeout(ctx, verifyTimeout)
		defer verifyCancel()
		if err := duck.Verify(verifyCtx, connector); err != nil {
			return fmt.Errorf("read-only connectivity check failed: %w", err)
		}
		log.Info("read-only connectivity check passed", "address", addr.String())
	}

	srv, err := server.New(server.Config{
		Logger:       log,
		Clock:        clockwork.NewRealClock(),
		Connector:    connector,
		ReadOnly:     cfg.ReadOnly,
		Version:      version,
		Transport:    cfg.Transport,
		ListenAddr:   fmt.Sprintf(":%d", cfg.Port),
		JSONResponse: cfg.JSONResponse,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.Run(ctx); err != nil {
			serverErrCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErrCh:
		return err
	case err := <-metricsServerErrCh:
		return err
	}
}

// newLogger writes to stderr: on the stdio transport, stdout carries the
// protocol stream.
func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().UTC()
				a.Value = slog.StringValue(formatRFC3339Millis(t))
			}
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	base := t.Format("2006-01-02T15:04:05")
	ms := t.Nanosecond() / 1_000_000
	return fmt.Sprintf("%s.%03dZ", base, ms)
}
