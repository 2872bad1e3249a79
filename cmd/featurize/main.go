package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/featurize/config"
	"github.com/wippyai/featurize/discovery"
	"github.com/wippyai/featurize/metrics"
	"github.com/wippyai/featurize/serializer"
	"github.com/wippyai/featurize/transform"
)

type options struct {
	input       string
	wasmFile    string
	export      string
	bind        string
	metricsAddr string
	interactive bool
	schema      bool
	jsonLogs    bool
	verbose     bool
}

func main() {
	var o options
	flag.StringVar(&o.input, "in", "", "JSON lines file of decision records (default stdin)")
	flag.BoolVar(&o.interactive, "i", false, "Interactive mode with TUI")
	flag.BoolVar(&o.schema, "schema", false, "Print the wire type of every feature and exit")
	flag.BoolVar(&o.jsonLogs, "json-logs", false, "Write logs as JSON")
	flag.BoolVar(&o.verbose, "v", false, "Verbose logging")
	flag.StringVar(&o.wasmFile, "wasm", "", "Wasm module with an f64 -> f64 feature transform")
	flag.StringVar(&o.export, "export", "transform", "Exported transform function name")
	flag.StringVar(&o.bind, "bind", "length", "Feature the transform is applied to")
	flag.StringVar(&o.metricsAddr, "metrics", "", "Serve Prometheus metrics on this address")
	flag.Parse()

	log, err := newLogger(o.jsonLogs, o.verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	serializer.SetLogger(log.Named("serializer"))
	discovery.SetLogger(log.Named("discovery"))
	transform.SetLogger(log.Named("transform"))

	err = run(o, log)
	_ = log.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(jsonLogs, verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if jsonLogs {
		cfg = zap.NewProductionConfig()
	}
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

func run(o options, log *zap.Logger) error {
	ctx := context.Background()

	f, cleanup, err := newFactory(ctx, o, log)
	if err != nil {
		return err
	}
	defer cleanup()

	p, err := newPipeline(f, log)
	if err != nil {
		return err
	}

	if o.schema {
		return p.describe(os.Stdout, f.Discoverer(), term.IsTerminal(int(os.Stdout.Fd())))
	}

	interactive := o.interactive || (o.input == "" && term.IsTerminal(int(os.Stdin.Fd())))
	if interactive {
		return runInteractive(p)
	}

	var in io.Reader = os.Stdin
	if o.input != "" && o.input != "-" {
		file, err := os.Open(o.input)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer file.Close()
		in = file
	}

	start := time.Now()
	n, err := p.run(in, os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
	log.Info("featurized records", zap.Int("records", n), zap.Duration("elapsed", time.Since(start)))
	return err
}

// newFactory builds the serializer factory from FEATURIZE_* settings and the flags.
func newFactory(ctx context.Context, o options, log *zap.Logger) (*serializer.Factory, func(), error) {
	cleanup := func() {}
	opts := []config.Option{
		config.WithStringExamples(true),
		config.WithDiscovery(config.DiscoveryTagged),
	}

	if o.wasmFile != "" {
		data, err := os.ReadFile(o.wasmFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read wasm: %w", err)
		}
		m, err := transform.Load(ctx, data, o.export, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("load transform: %w", err)
		}
		cleanup = func() { _ = m.Close(ctx) }
		opts = append(opts, config.WithFeaturizer(transform.NewFeaturizer(ctx).Bind(o.bind, m)))
	}

	settings, err := config.Load(opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	var factoryOpts []serializer.FactoryOption
	if o.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		rec, err := metrics.NewPrometheus(reg)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		factoryOpts = append(factoryOpts, serializer.WithRecorder(rec))
		go serveMetrics(o.metricsAddr, reg, log)
	}

	f, err := serializer.NewFactory(settings, factoryOpts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return f, cleanup, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server stopped", zap.Error(err))
	}
}
