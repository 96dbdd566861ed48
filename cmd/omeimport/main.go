// Command omeimport replays a metadata setter stream into a graph session,
// resolves its references and commits the result to the configured store.
//
//	omeimport -config omegraph.yaml -input image.jsonl
//	cat image.yaml | omeimport -format yaml
package main

import (
	"context"
	"errors"
	"expvar"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"omegraph/internal/archive"
	"omegraph/internal/blob"
	"omegraph/internal/config"
	"omegraph/internal/core"
	"omegraph/internal/graph"
	"omegraph/internal/stream"
)

var exitFunc = os.Exit

// options are the per-invocation flags layered over the loaded config.
type options struct {
	input     string
	format    string
	tracePath string
	batchSize int
}

func main() {
	exitFunc(cli(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func cli(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("omeimport", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath string
		opts       options
	)
	fs.StringVar(&configPath, "config", "", "path to a YAML config file")
	fs.StringVar(&opts.input, "input", "-", "setter stream to import, - for stdin")
	fs.StringVar(&opts.format, "format", "", "stream format: jsonl or yaml (default from the input extension)")
	fs.StringVar(&opts.tracePath, "trace", "", "write JSON trace spans to this file")
	fs.IntVar(&opts.batchSize, "batch-size", 0, "override the configured batch size")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if opts.batchSize > 0 {
		cfg.BatchSize = opts.batchSize
	}
	logger := newLogger(cfg.Log.Level, cfg.Log.Format, stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := run(ctx, cfg, opts, stdin, logger)
	if err != nil {
		logger.Error("Import failed", "error", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "import %s committed: %d objects in %d batches, %d references in %d batches, %d handles\n",
		res.ImportID, res.Persist.Objects, res.Persist.ObjectBatches,
		res.Persist.ReferenceKeys, res.Persist.ReferenceBatches, len(res.Persist.Handles))
	if res.ManifestKey != "" {
		_, _ = fmt.Fprintf(stdout, "manifest %s\n", res.ManifestKey)
	}
	return 0
}

// newLogger maps a level name and format onto a slog logger. Unknown levels
// fall back to info and unknown formats to text.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if formatStr == "json" {
		handler = slog.NewJSONHandler(outW, handlerOpts)
	} else {
		handler = slog.NewTextHandler(outW, handlerOpts)
	}
	return slog.New(handler)
}

// run wires the store, archive, observability and session for one import.
func run(ctx context.Context, cfg *config.Config, opts options, stdin io.Reader, logger *slog.Logger) (core.ImportResult, error) {
	cmp, ok := graph.ComparatorFor(cfg.Comparator)
	if !ok {
		return core.ImportResult{}, fmt.Errorf("unknown comparator %s", cfg.Comparator)
	}

	input, source, err := openInput(opts.input, stdin)
	if err != nil {
		return core.ImportResult{}, err
	}
	defer func() { _ = input.Close() }()
	format := opts.format
	if format == "" {
		format = stream.FormatForPath(source)
	}
	dec, err := stream.NewDecoder(format, input)
	if err != nil {
		return core.ImportResult{}, err
	}

	store, err := core.OpenPersistentStore(ctx, cfg.Storage)
	if err != nil {
		return core.ImportResult{}, fmt.Errorf("open store: %w", err)
	}
	if closer, ok := store.(io.Closer); ok {
		defer func() {
			if cerr := closer.Close(); cerr != nil {
				logger.Warn("Closing store failed", "error", cerr)
			}
		}()
	}
	logger.Info("Store opened", "driver", cfg.Storage.Driver)

	importerOpts := []core.ImporterOption{core.WithLogger(logger), core.WithSource(source)}

	blobs, err := blob.Open(ctx, cfg.Blob)
	switch {
	case errors.Is(err, blob.ErrDisabled):
		logger.Debug("Manifest archive disabled")
	case err != nil:
		return core.ImportResult{}, fmt.Errorf("open blob store: %w", err)
	default:
		importerOpts = append(importerOpts, core.WithArchive(archive.New(blobs)))
		logger.Info("Manifest archive enabled", "driver", blobs.Driver())
	}

	metrics, stopMetrics, err := startMetrics(cfg.Metrics, logger)
	if err != nil {
		return core.ImportResult{}, err
	}
	defer stopMetrics()
	if metrics != nil {
		importerOpts = append(importerOpts, core.WithMetricsRecorder(metrics))
	}

	if opts.tracePath != "" {
		traceFile, err := os.Create(opts.tracePath)
		if err != nil {
			return core.ImportResult{}, fmt.Errorf("create trace file: %w", err)
		}
		defer func() { _ = traceFile.Close() }()
		importerOpts = append(importerOpts, core.WithTracer(core.NewJSONTracer(traceFile)))
	}

	if interval := cfg.KeepAlive.Duration(); interval > 0 {
		ka := &core.KeepAlive{Pinger: store, Interval: interval, Logger: logger, Metrics: metrics}
		defer startKeepAlive(ctx, ka)()
	}

	session := graph.NewSession(graph.WithComparator(cmp), graph.WithLogger(logger))
	defer session.Close()
	im, err := core.NewImporter(session, store, cfg.BatchSize, importerOpts...)
	if err != nil {
		return core.ImportResult{}, err
	}
	return im.Run(ctx, stream.Populate(dec))
}

// startKeepAlive runs ka in the background. The returned stop function cancels
// it and waits for an in-flight ping, so the store can be closed afterwards.
func startKeepAlive(ctx context.Context, ka *core.KeepAlive) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ka.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func openInput(path string, stdin io.Reader) (io.ReadCloser, string, error) {
	if path == "" || path == "-" {
		return io.NopCloser(stdin), "stdin", nil
	}
	f, err := os.Open(path) // #nosec G304: operator supplied input path
	if err != nil {
		return nil, "", fmt.Errorf("open input: %w", err)
	}
	return f, path, nil
}

// startMetrics builds the configured recorder and serves it on cfg.Addr. The
// returned stop function shuts the listener down.
func startMetrics(cfg config.MetricsConfig, logger *slog.Logger) (core.MetricsRecorder, func(), error) {
	mux := http.NewServeMux()
	var recorder core.MetricsRecorder
	switch cfg.Exporter {
	case "", config.MetricsNone:
		return nil, func() {}, nil
	case config.MetricsExpvar:
		recorder = core.NewExpvarMetricsRecorder("")
		mux.Handle("/debug/vars", expvar.Handler())
	case config.MetricsPrometheus:
		reg := prometheus.NewRegistry()
		rec, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return nil, nil, fmt.Errorf("register metrics: %w", err)
		}
		recorder = rec
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	default:
		return nil, nil, fmt.Errorf("unknown metrics exporter %s", cfg.Exporter)
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Metrics server stopped", "addr", cfg.Addr, "error", err)
		}
	}()
	logger.Info("Serving metrics", "exporter", cfg.Exporter, "addr", cfg.Addr)
	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return recorder, stop, nil
}
