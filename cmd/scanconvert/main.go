package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/scanconvert/internal/conversion"
	"github.com/zombor/scanconvert/internal/imaging"
	"github.com/zombor/scanconvert/internal/scanconv"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	rootFlags := ff.NewFlagSet("scanconvert")
	var (
		depth       = rootFlags.Float64Long("depth", 80, "Scan depth in physical units")
		halfAngle   = rootFlags.Float64Long("half-angle", 25.93, "Sector half-angle in degrees")
		innerRadius = rootFlags.Float64Long("inner-radius", 61.12, "Distance from the virtual apex to the first sample")
		verbose     = rootFlags.BoolLong("verbose", "Enable debug logging")
		_           = rootFlags.StringLong("config", "", "Config file (optional)")
	)
	rootCmd := &ff.Command{
		Name:      "scanconvert",
		Usage:     "scanconvert [FLAGS] <SUBCOMMAND> ...",
		ShortHelp: "convert sector scans to Cartesian images",
		Flags:     rootFlags,
	}

	probe := func() scanconv.ProbeConfig {
		return scanconv.ProbeConfig{Depth: *depth, HalfAngle: *halfAngle, InnerRadius: *innerRadius}
	}
	setupLogging := func() {
		level := slog.LevelInfo
		if *verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	}

	convertFlags := ff.NewFlagSet("convert").SetParent(rootFlags)
	var (
		inPath  = convertFlags.StringLong("in", "", "Raw scan image to convert")
		outPath = convertFlags.StringLong("out", "", "Output PNG path (default: <in>_converted.png)")
		workers = convertFlags.IntLong("workers", 0, "Row workers (default: GOMAXPROCS)")
	)
	convertCmd := &ff.Command{
		Name:      "convert",
		Usage:     "scanconvert convert --in FILE [--out FILE.png] [FLAGS]",
		ShortHelp: "convert a single scan file",
		Flags:     convertFlags,
		Exec: func(ctx context.Context, args []string) error {
			setupLogging()
			return runConvert(ctx, *inPath, *outPath, *workers, *verbose, probe())
		},
	}

	serveFlags := ff.NewFlagSet("serve").SetParent(rootFlags)
	var (
		port        = serveFlags.IntLong("port", 8080, "HTTP server port")
		dbPath      = serveFlags.StringLong("db", "scanconvert.db", "Database file path")
		storagePath = serveFlags.StringLong("storage", "./scans", "Storage directory path")
		authUser    = serveFlags.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = serveFlags.StringLong("auth-pass", "", "Basic auth password (optional)")
	)
	serveCmd := &ff.Command{
		Name:      "serve",
		Usage:     "scanconvert serve [FLAGS]",
		ShortHelp: "run the conversion HTTP service",
		Flags:     serveFlags,
		Exec: func(ctx context.Context, args []string) error {
			setupLogging()
			return runServe(ctx, serveConfig{
				port:        *port,
				dbPath:      *dbPath,
				storagePath: *storagePath,
				auth:        conversion.BasicAuth{Username: *authUser, Password: *authPass},
				defaults:    probe(),
			})
		},
	}

	rootCmd.Subcommands = []*ff.Command{convertCmd, serveCmd}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.Parse(os.Args[1:],
		ff.WithEnvVarPrefix("SCANCONVERT"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(rootCmd.GetSelected()))
		if errors.Is(err, ff.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := rootCmd.Run(ctx); err != nil {
		if errors.Is(err, ff.ErrNoExec) {
			fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(rootCmd))
			os.Exit(1)
		}
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// runConvert converts one scan file on disk into a PNG
func runConvert(ctx context.Context, in, out string, workers int, verbose bool, cfg scanconv.ProbeConfig) error {
	if in == "" {
		return errors.New("--in is required")
	}
	if out == "" {
		out = strings.TrimSuffix(in, filepath.Ext(in)) + "_converted.png"
	}

	data, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("reading scan: %w", err)
	}

	img, err := imaging.Decode(data, imaging.ContentTypeForFilename(in))
	if err != nil {
		return fmt.Errorf("decoding scan: %w", err)
	}

	raw, err := imaging.NewRawScan(img, cfg)
	if err != nil {
		return err
	}

	geom, err := scanconv.NewGeometry(raw.Probe)
	if err != nil {
		return err
	}
	slog.Info("Real size", "width", geom.RealWidth, "height", geom.RealHeight)

	opts := []scanconv.Option{scanconv.WithWorkers(workers)}
	if verbose {
		opts = append(opts, scanconv.WithLogger(slog.Default()))
	}
	result, err := scanconv.NewConverter(opts...).Convert(ctx, raw)
	if err != nil {
		return err
	}
	slog.Info("Output size", "width", result.Width, "height", result.Height, "inside", result.Inside)

	encoded, err := imaging.EncodePNG(result)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, encoded, 0644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	slog.Info("Wrote converted scan", "path", out)
	return nil
}

type serveConfig struct {
	port        int
	dbPath      string
	storagePath string
	auth        conversion.BasicAuth
	defaults    scanconv.ProbeConfig
}

// runServe runs the HTTP service until ctx is cancelled
func runServe(ctx context.Context, cfg serveConfig) error {
	if err := (scanconv.Probe{LineCount: 2, SamplesPerLine: 2, ProbeConfig: cfg.defaults}).Validate(); err != nil {
		return fmt.Errorf("default probe settings: %w", err)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := conversion.NewBoltDB(cfg.dbPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := conversion.NewLocalStorage(cfg.storagePath)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	service := conversion.NewService(db, scanconv.NewConverter(), store)
	server := conversion.NewServer(service, cfg.auth, cfg.defaults)

	addr := fmt.Sprintf(":%d", cfg.port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(addr)
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr),
		"depth", cfg.defaults.Depth, "half_angle", cfg.defaults.HalfAngle, "inner_radius", cfg.defaults.InnerRadius)
	if cfg.auth.Username != "" || cfg.auth.Password != "" {
		slog.Info("Basic auth enabled", "user", cfg.auth.Username)
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down...")
	return nil
}
