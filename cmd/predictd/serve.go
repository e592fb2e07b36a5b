package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"predictd/internal/common/fsutil"
	"predictd/internal/config"
	"predictd/internal/engine"
	"predictd/internal/httpapi"
	"predictd/internal/rpc"
	"predictd/internal/service"
)

type serveFlags struct {
	configPath      string
	addr            string
	backend         string
	precision       string
	onnxRuntimeLib  string
	logLevel        string
	logFormat       string
	maxMessageBytes int
	strictDecoding  bool
	corsOrigins     string
}

func newServeCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve RunModel over gRPC with health and metrics on the same port",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	fl := cmd.Flags()
	// Flags with environment variable defaults
	fl.StringVar(&f.configPath, "config", "", "Path to a YAML/JSON/TOML config file")
	fl.StringVar(&f.addr, "addr", envOr("PREDICTD_ADDR", config.DefaultAddr), "Listen address (defaults PREDICTD_ADDR or :18812)")
	fl.StringVar(&f.backend, "backend", string(engine.DefaultTarget.Backend), "Execution backend: host|x86|arm|cuda")
	fl.StringVar(&f.precision, "precision", string(engine.DefaultTarget.Precision), "Execution precision: fp32|fp16|int8")
	fl.StringVar(&f.onnxRuntimeLib, "onnxruntime-lib", "", "Path to the ONNX Runtime shared library")
	fl.StringVar(&f.logLevel, "log-level", envOr("PREDICTD_LOG_LEVEL", "info"), "Log level: debug|info|warn|error|off (defaults PREDICTD_LOG_LEVEL or info)")
	fl.StringVar(&f.logFormat, "log-format", "json", "Log format: json|console")
	fl.IntVar(&f.maxMessageBytes, "max-message-bytes", config.DefaultMaxMessageBytes, "Largest request or response accepted")
	fl.BoolVar(&f.strictDecoding, "strict-decoding", true, "Reject messages with unknown fields")
	fl.StringVar(&f.corsOrigins, "cors-origins", "", "Comma-separated CORS origins for the HTTP endpoints (empty disables CORS)")
	return cmd
}

// resolveConfig merges the config file with flags. An explicitly set flag
// wins over the file; the file wins over flag defaults.
func resolveConfig(cmd *cobra.Command, f serveFlags) (config.Config, error) {
	var cfg config.Config
	if f.configPath != "" {
		c, err := config.Load(f.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = c
	}
	set := func(name string, empty bool) bool { return empty || cmd.Flags().Changed(name) }
	if set("addr", cfg.Addr == "") {
		cfg.Addr = f.addr
	}
	if set("backend", cfg.Backend == "") {
		cfg.Backend = f.backend
	}
	if set("precision", cfg.Precision == "") {
		cfg.Precision = f.precision
	}
	if set("onnxruntime-lib", cfg.OnnxRuntimeLib == "") {
		cfg.OnnxRuntimeLib = f.onnxRuntimeLib
	}
	if set("log-level", cfg.LogLevel == "") {
		cfg.LogLevel = f.logLevel
	}
	if set("log-format", cfg.LogFormat == "") {
		cfg.LogFormat = f.logFormat
	}
	if set("max-message-bytes", cfg.MaxMessageBytes == 0) {
		cfg.MaxMessageBytes = f.maxMessageBytes
	}
	if set("strict-decoding", cfg.StrictDecoding == nil) {
		strict := f.strictDecoding
		cfg.StrictDecoding = &strict
	}
	if set("cors-origins", len(cfg.CORSAllowedOrigins) == 0) {
		cfg.CORSAllowedOrigins = splitCSV(f.corsOrigins)
	}
	if len(cfg.CORSAllowedOrigins) > 0 {
		cfg.CORSEnabled = true
	}
	cfg.ApplyDefaults()
	return cfg, cfg.Validate()
}

func serve(ctx context.Context, cfg config.Config) error {
	// Graceful shutdown (Ctrl+C / SIGTERM)
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, err := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	target, err := cfg.Target()
	if err != nil {
		return err
	}

	if cfg.OnnxRuntimeLib != "" {
		lib, err := fsutil.ExpandHome(cfg.OnnxRuntimeLib)
		if err != nil {
			return err
		}
		if !fsutil.PathExists(lib) {
			return fmt.Errorf("onnxruntime library not found: %s", lib)
		}
		cfg.OnnxRuntimeLib = lib
	}
	rt, err := engine.NewRuntime(engine.Options{SharedLibraryPath: cfg.OnnxRuntimeLib})
	if err != nil {
		return err
	}
	eng := engine.Instrument(rt)
	if !eng.Ready() {
		log.Warn().Str("engine", eng.Name()).Msg("inference engine unavailable; calls will fail until it is built in")
	}
	svc, err := service.New(service.Config{Engine: eng, Target: target, Logger: &log})
	if err != nil {
		return err
	}

	httpapi.SetLogger(log)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSAllowedOrigins, nil, nil)
	srv := rpc.NewServer(svc, rpc.ServerConfig{
		Policy:      rpc.Policy{DisallowUnknownFields: cfg.Strict(), MaxMessageBytes: cfg.MaxMessageBytes},
		Logger:      &log,
		HTTPHandler: httpapi.NewMux(svc),
	})

	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	log.Info().
		Str("addr", lis.Addr().String()).
		Str("engine", eng.Name()).
		Str("target", target.String()).
		Msg("predictd listening")

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(lis) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
	log.Info().Int64("predictors_live", eng.Live()).Msg("predictd stopped")
	return <-errc
}
