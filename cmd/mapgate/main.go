// ABOUTME: Entry point for the mapgate MCP gateway
// ABOUTME: Runs the stdio and HTTP transports and inspects the tool call audit log

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/2389/mapgate/internal/auth"
	"github.com/2389/mapgate/internal/config"
	"github.com/2389/mapgate/internal/mcp"
	"github.com/2389/mapgate/internal/platform"
	"github.com/2389/mapgate/internal/rest"
	"github.com/2389/mapgate/internal/store"
	"github.com/2389/mapgate/internal/tools"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                             _
 _ __ ___   __ _ _ __   __ _  __ _| |_ ___
| '_ ' _ \ / _' | '_ \ / _' |/ _' | __/ _ \
| | | | | | (_| | |_) | (_| | (_| | ||  __/
|_| |_| |_|\__,_| .__/ \__, |\__,_|\__\___|
                |_|    |___/
`

const shutdownTimeout = 10 * time.Second

func usage() {
	fmt.Println("Usage: mapgate <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  stdio                  Serve MCP over stdin/stdout")
	fmt.Println("  serve                  Serve the REST shim and multi-tenant MCP endpoint")
	fmt.Println("  audit                  Show recent tool calls from the audit log")
	fmt.Println("  health                 Check a running server's health")
	fmt.Println("  token -sub NAME        Mint a bearer token for the REST shim")
	fmt.Println("  keyring -client-id ID  Store a client secret (read from stdin) in the OS keyring")
	fmt.Println("  version                Print the version")
	fmt.Println()
	fmt.Println("Every command accepts -config PATH (default $MAPGATE_CONFIG). Without a")
	fmt.Println("config file, MAPGATE_* environment variables and ./.env are used.")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "stdio":
		err = runStdio(ctx, args)
	case "serve":
		err = runServe(ctx, args)
	case "audit":
		err = runAudit(ctx, args)
	case "health":
		err = runHealth(ctx, args)
	case "token":
		err = runToken(args)
	case "keyring":
		err = runKeyring(args)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Resolve(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// app holds what every serving command builds from the configuration.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *tools.Registry
	recorder *store.Recorder
	audit    store.ToolCallStore
}

func newApp(cfg *config.Config) (*app, error) {
	logger := setupLogger(cfg.Logging, os.Stderr)

	registry, err := tools.NewCatalogRegistry(logger)
	if err != nil {
		return nil, fmt.Errorf("building tool registry: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, registry: registry}
	if cfg.Audit.Enabled {
		st, err := store.NewSQLiteStore(cfg.Audit.Path)
		if err != nil {
			return nil, fmt.Errorf("opening audit log: %w", err)
		}
		a.audit = st
		logger.Info("audit log enabled", "path", cfg.Audit.Path)
	}
	a.recorder = store.NewRecorder(a.audit, logger)
	return a, nil
}

func (a *app) Close() {
	if a.audit == nil {
		return
	}
	if err := a.audit.Close(); err != nil {
		a.logger.Warn("failed to close audit log", "error", err)
	}
}

func (a *app) newHandler(transport string) (*mcp.Handler, error) {
	return mcp.NewHandler(mcp.HandlerConfig{
		Registry:      a.registry,
		Recorder:      a.recorder,
		Transport:     transport,
		ServerVersion: version,
		Logger:        a.logger.With("transport", transport),
	})
}

func runStdio(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("stdio", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	client, err := platform.NewClient(cfg.Platform.ClientConfig(a.logger))
	if err != nil {
		return fmt.Errorf("creating platform client: %w", err)
	}
	handler, err := a.newHandler(store.TransportStdio)
	if err != nil {
		return err
	}
	srv, err := mcp.NewStdioServer(mcp.StdioConfig{
		Handler:  handler,
		API:      client,
		ClientID: cfg.Platform.ClientID,
		In:       os.Stdin,
		Out:      os.Stdout,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}

	a.logger.Info("serving MCP over stdio",
		"base_url", cfg.Platform.BaseURL,
		"auth_mode", client.Mode().String(),
		"tools", len(a.registry.List()),
	)
	return srv.Serve(ctx)
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	addr := fs.String("addr", "", "listen address (overrides server.http_addr)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.HTTPAddr = *addr
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	fmt.Fprint(os.Stderr, cyan.Sprint(banner))
	fmt.Fprint(os.Stderr, gray.Sprintf("    version: %s\n\n", version))
	fmt.Fprintf(os.Stderr, "%sPlatform:  %s\n", green.Sprint("    ▶ "), cfg.Platform.BaseURL)
	fmt.Fprintf(os.Stderr, "%sHTTP:      %s\n", green.Sprint("    ▶ "), cfg.Server.HTTPAddr)
	if cfg.Server.RequireAuth {
		fmt.Fprintf(os.Stderr, "%sREST auth: %s\n", green.Sprint("    ▶ "), yellow.Sprint("bearer JWT"))
	}
	fmt.Fprintln(os.Stderr)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	clientCfg := cfg.Platform.ClientConfig(a.logger)
	client, err := platform.NewClient(clientCfg)
	if err != nil {
		return fmt.Errorf("creating platform client: %w", err)
	}
	factory := platform.NewFactory(clientCfg)

	var verifier auth.TokenVerifier
	if cfg.Server.RequireAuth {
		verifier = auth.NewJWTVerifier([]byte(cfg.Server.JWTSecret))
	}
	restSrv, err := rest.NewServer(rest.Config{
		Registry: a.registry,
		API:      client,
		Recorder: a.recorder,
		Verifier: verifier,
		ClientID: cfg.Platform.ClientID,
		Version:  version,
		Logger:   a.logger.With("transport", store.TransportREST),
	})
	if err != nil {
		return err
	}

	handler, err := a.newHandler(store.TransportHTTP)
	if err != nil {
		return err
	}
	mcpSrv, err := mcp.NewHTTPServer(mcp.HTTPConfig{
		Handler: handler,
		NewClient: func(creds platform.Credentials) (tools.API, error) {
			c, err := factory.New(creds)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		Logger: a.logger.With("transport", store.TransportHTTP),
	})
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	restSrv.RegisterRoutes(mux)
	mcpSrv.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("starting mapgate",
			"http_addr", cfg.Server.HTTPAddr,
			"base_url", cfg.Platform.BaseURL,
			"require_auth", cfg.Server.RequireAuth,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runAudit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	dbPath := fs.String("db", "", "audit database path (overrides audit.path)")
	limit := fs.Int("n", 20, "number of calls to show")
	toolName := fs.String("tool", "", "only show calls to this tool")
	failed := fs.Bool("failed", false, "only show failed calls")
	stats := fs.Bool("stats", false, "show per-tool totals instead of calls")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := *dbPath
	if path == "" {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			return err
		}
		path = cfg.Audit.Path
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("audit log %s: %w", path, err)
	}

	st, err := store.NewSQLiteStore(path)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer st.Close()

	if *stats {
		rows, err := st.ToolCallStats(ctx)
		if err != nil {
			return err
		}
		if *asJSON {
			return writeJSON(os.Stdout, rows)
		}
		printStats(os.Stdout, rows)
		return nil
	}

	calls, err := st.ListToolCalls(ctx, store.ToolCallFilter{
		ToolName:   *toolName,
		FailedOnly: *failed,
		Limit:      *limit,
	})
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(os.Stdout, calls)
	}
	printCalls(os.Stdout, calls)
	return nil
}

func printCalls(w io.Writer, calls []store.ToolCall) {
	if len(calls) == 0 {
		fmt.Fprintln(w, "no tool calls recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTRANSPORT\tCLIENT\tTOOL\tSTATUS\tDURATION")
	for _, c := range calls {
		status := color.GreenString("ok")
		if !c.OK {
			status = color.RedString("failed")
		}
		client := c.ClientID
		if client == "" {
			client = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.CreatedAt.Local().Format(time.DateTime),
			c.Transport,
			client,
			c.ToolName,
			status,
			c.Duration.Round(time.Millisecond),
		)
		if c.Error != "" {
			fmt.Fprintf(tw, "\t\t\t\t%s\t\n", color.HiBlackString(truncate(c.Error, 80)))
		}
	}
	tw.Flush()
}

func printStats(w io.Writer, rows []store.ToolStat) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "no tool calls recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tCALLS\tFAILURES\tAVG DURATION")
	for _, r := range rows {
		failures := fmt.Sprint(r.Failures)
		if r.Failures > 0 {
			failures = color.RedString(failures)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", r.ToolName, r.Calls, failures, r.AvgDuration.Round(time.Millisecond))
	}
	tw.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runHealth(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	addr := fs.String("addr", "", "server address (overrides server.http_addr)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	target := *addr
	if target == "" {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			return err
		}
		target = cfg.Server.HTTPAddr
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("http://%s/health", target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	var health rest.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decoding health response: %w", err)
	}
	fmt.Printf("%s version=%s tools=%d\n", color.GreenString("healthy"), health.Version, health.Tools)
	return nil
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	subject := fs.String("sub", "", "token subject (required)")
	toolList := fs.String("tools", "", "comma-separated tools the token may call (default all)")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sub := strings.TrimSpace(*subject)
	if sub == "" {
		return fmt.Errorf("-sub is required")
	}
	if *ttl <= 0 {
		return fmt.Errorf("-ttl must be positive")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if len(cfg.Server.JWTSecret) < 32 {
		return fmt.Errorf("server.jwt_secret must be set to at least 32 bytes")
	}

	var allowed []string
	if *toolList != "" {
		registry, err := tools.NewCatalogRegistry(nil)
		if err != nil {
			return err
		}
		for _, name := range strings.Split(*toolList, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if _, ok := registry.Get(name); !ok {
				return fmt.Errorf("unknown tool %q", name)
			}
			allowed = append(allowed, name)
		}
	}

	token, err := auth.NewJWTVerifier([]byte(cfg.Server.JWTSecret)).Generate(sub, allowed, *ttl)
	if err != nil {
		return fmt.Errorf("signing token: %w", err)
	}
	fmt.Println(token)
	return nil
}

func runKeyring(args []string) error {
	fs := flag.NewFlagSet("keyring", flag.ContinueOnError)
	clientID := fs.String("client-id", os.Getenv(config.EnvClientID), "platform client id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *clientID == "" {
		return fmt.Errorf("-client-id is required")
	}

	fmt.Fprint(os.Stderr, "Client secret: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading secret: %w", err)
	}
	secret := strings.TrimSpace(line)
	if secret == "" {
		return fmt.Errorf("secret cannot be empty")
	}

	if err := config.StoreSecret(*clientID, secret); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s stored secret for %s (set platform.keyring: true to use it)\n",
		color.GreenString("✓"), *clientID)
	return nil
}
