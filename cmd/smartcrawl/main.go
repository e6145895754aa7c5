package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	"github.com/alecthomas/kong"
	"github.com/fwojciec/smartcrawl"
	"github.com/fwojciec/smartcrawl/crawl"
	"github.com/fwojciec/smartcrawl/goquery"
	smarthttp "github.com/fwojciec/smartcrawl/http"
	"github.com/fwojciec/smartcrawl/kafka"
	"github.com/fwojciec/smartcrawl/otel"
	"github.com/fwojciec/smartcrawl/robotstxt"
	smartslog "github.com/fwojciec/smartcrawl/slog"
	"github.com/fwojciec/smartcrawl/sqlite"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
)

func main() {
	// A .env file is optional.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := NewMain()

	if err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// Database path. Set before calling Run(); the --db flag overrides it.
	DBPath string

	// SQLite database used by SQLite service implementations.
	DB *sqlite.DB

	// Manager drives crawl sessions. Set by Run.
	Manager *crawl.Manager

	closers []func() error
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{
		DBPath: defaultDBPath(),
	}
}

// Close stops running sessions and releases every resource opened by Run.
// Sessions interrupted here stay running in storage and can be resumed.
func (m *Main) Close() error {
	var errs []error
	for i := len(m.closers) - 1; i >= 0; i-- {
		errs = append(errs, m.closers[i]())
	}
	m.closers = nil
	if m.DB != nil {
		errs = append(errs, m.DB.Close())
		m.DB = nil
	}
	return errors.Join(errs...)
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	deps := &Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("smartcrawl"),
		kong.Description("Policy-driven web crawler with resumable sessions and proxy rotation."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}), // Don't exit on help
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified. Run 'smartcrawl --help' to see available commands")
	}

	cmd := args[0]
	if cmd == "help" || cmd == "--help" || cmd == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	if cli.DB != "" {
		m.DBPath = cli.DB
	}
	deps.Logger = newLogger(stderr, cli.LogLevel, cli.LogFormat, cli.NoColor)

	m.DB = sqlite.NewDB(m.DBPath)
	if err := m.DB.Open(); err != nil {
		fmt.Fprintf(stderr, "Hint: Set SMARTCRAWL_DB to use a different database path\n")
		return fmt.Errorf("failed to open database at %q: %w", m.DBPath, err)
	}
	defer m.Close()

	if err := m.wire(ctx, cli, deps); err != nil {
		return err
	}

	return kongCtx.Run(deps)
}

// wire builds the crawl manager and its collaborators.
func (m *Main) wire(ctx context.Context, cli *CLI, deps *Dependencies) error {
	logger := deps.Logger
	sessions := sqlite.NewSessionService(m.DB)

	client := &http.Client{Timeout: 30 * time.Second}

	fetcher := smarthttp.NewFetcher()
	m.closers = append(m.closers, fetcher.Close)

	sitemaps := smarthttp.NewSitemapService(client)
	sitemaps.UserAgent = smartcrawl.DefaultUserAgent
	feeds := smarthttp.NewFeedService(client)
	feeds.UserAgent = smartcrawl.DefaultUserAgent

	var publisher smartcrawl.EventPublisher
	if len(cli.KafkaBrokers) > 0 {
		p := kafka.NewPublisher(kafka.Config{
			Brokers: cli.KafkaBrokers,
			Topic:   cli.KafkaTopic,
		}, logger)
		m.closers = append(m.closers, p.Close)
		publisher = p
	}

	provider, err := otel.Setup(ctx, otel.Config{
		Endpoint: cli.OTLPEndpoint,
		Insecure: cli.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("failed to set up metrics: %w", err)
	}
	m.closers = append(m.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return provider.Shutdown(shutdownCtx)
	})

	tracker := crawl.NewTracker(sqlite.NewProxyService(m.DB))
	m.Manager = crawl.NewManager(crawl.Services{
		Sessions:  sessions,
		Frontier:  sqlite.NewFrontierService(m.DB),
		Fetcher:   smartslog.NewLoggingFetcher(fetcher, logger),
		Extractor: goquery.NewLinkExtractor(),
		Tracker:   tracker,
		Robots:    smartslog.NewLoggingRobotsChecker(robotstxt.NewChecker(client), logger),
		Sitemaps:  smartslog.NewLoggingSitemapService(sitemaps, logger),
		Feeds:     smartslog.NewLoggingFeedService(feeds, logger),
		Events:    smartslog.NewLoggingPublisher(publisher, logger),
		Metrics:   provider.Recorder,
		Logger:    logger,
	})
	if err := m.Manager.Open(ctx); err != nil {
		return fmt.Errorf("failed to load proxies: %w", err)
	}
	m.closers = append(m.closers, m.Manager.Close)

	deps.Crawler = m.Manager
	deps.Sessions = sessions
	return nil
}

// defaultDBPath returns $SMARTCRAWL_DB, or smartcrawl.db under the XDG data
// directory (~/.local/share/smartcrawl on Linux).
func defaultDBPath() string {
	if path := os.Getenv("SMARTCRAWL_DB"); path != "" {
		return path
	}
	dir := filepath.Join(xdg.DataHome, "smartcrawl")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "smartcrawl.db"
	}
	return filepath.Join(dir, "smartcrawl.db")
}

// newLogger returns a tint handler for terminals and a JSON handler for
// log shipping.
func newLogger(w io.Writer, level, format string, noColor bool) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
		NoColor:    noColor,
	}))
}
