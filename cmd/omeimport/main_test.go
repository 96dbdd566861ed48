package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"omegraph/internal/archive"
	"omegraph/internal/blob"
	"omegraph/internal/config"
	"omegraph/internal/core"
)

const fixture = `{"op":"set","tag":"Image","indices":[0],"field":"name","value":"a"}
{"op":"set","tag":"Pixels","indices":[0],"field":"sizeC","value":2}
{"op":"symbol","tag":"Instrument","indices":[0],"symbol":"Instrument:0"}
{"op":"ref","tag":"Image","indices":[0],"target":"Instrument:0"}
`

func TestNewLoggerLevelsAndFormats(t *testing.T) {
	cases := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range cases {
		logger := newLogger(tc.level, "text", &bytes.Buffer{})
		if !logger.Enabled(context.Background(), tc.want) {
			t.Fatalf("level %s: expected %v enabled", tc.level, tc.want)
		}
		if tc.want > slog.LevelDebug && logger.Enabled(context.Background(), tc.want-1) {
			t.Fatalf("level %s: expected levels below %v disabled", tc.level, tc.want)
		}
	}

	var buf bytes.Buffer
	newLogger("info", "json", &buf).Info("hello", "k", "v")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "hello" || entry["k"] != "v" {
		t.Fatalf("unexpected entry %v", entry)
	}

	buf.Reset()
	newLogger("info", "text", &buf).Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Fatalf("expected text output, got %q", buf.String())
	}
}

func TestCLIImportsFromStdin(t *testing.T) {
	t.Setenv("OMEGRAPH_STORAGE_DRIVER", config.StorageMemory)
	t.Setenv("OMEGRAPH_BLOB_DRIVER", config.BlobMemory)
	var stdout, stderr bytes.Buffer
	code := cli([]string{"-batch-size", "2"}, strings.NewReader(fixture), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected success, got %d: %s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "committed") || !strings.Contains(out, "2 handles") {
		t.Fatalf("unexpected summary %q", out)
	}
	if !strings.Contains(out, "manifest "+archive.Prefix) {
		t.Fatalf("expected manifest key in %q", out)
	}
}

func TestCLIRejectsBadInput(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"-nope"}, strings.NewReader(""), &stdout, &stderr); code != 2 {
		t.Fatalf("expected usage error, got %d", code)
	}

	t.Setenv("OMEGRAPH_STORAGE_DRIVER", config.StorageMemory)
	stderr.Reset()
	if code := cli([]string{"-format", "xml"}, strings.NewReader(fixture), &stdout, &stderr); code != 1 {
		t.Fatalf("expected failure for unknown format, got %d", code)
	}
	if !strings.Contains(stderr.String(), "unknown stream format") {
		t.Fatalf("expected format error to be logged, got %q", stderr.String())
	}

	stderr.Reset()
	bad := `{"op":"teleport"}` + "\n"
	if code := cli(nil, strings.NewReader(bad), &stdout, &stderr); code != 1 {
		t.Fatalf("expected failure for malformed stream, got %d", code)
	}

	t.Setenv("OMEGRAPH_STORAGE_DRIVER", "cassandra")
	stderr.Reset()
	if code := cli(nil, strings.NewReader(fixture), &stdout, &stderr); code != 1 {
		t.Fatalf("expected config failure, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Failed to load config") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestRunArchivesManifestAndTraces(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "image.yaml")
	yamlStream := `- op: set
  tag: Image
  indices: [0]
  field: name
  value: a
- op: symbol
  tag: Instrument
  indices: [0]
  symbol: "Instrument:0"
- op: ref
  tag: Image
  indices: [0]
  target: "Instrument:0"
`
	if err := os.WriteFile(input, []byte(yamlStream), 0o600); err != nil {
		t.Fatalf("write input: %v", err)
	}
	cfg := config.Default()
	cfg.Storage = config.StorageConfig{Driver: config.StorageSQLite, SQLitePath: filepath.Join(dir, "omegraph.db")}
	cfg.Blob = config.BlobConfig{Driver: config.BlobFS, FSRoot: filepath.Join(dir, "blobs")}
	tracePath := filepath.Join(dir, "trace.jsonl")

	logger := newLogger("debug", "text", &bytes.Buffer{})
	res, err := run(context.Background(), cfg, options{input: input, tracePath: tracePath}, nil, logger)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, ok := res.Persist.Handle("Image:0"); !ok {
		t.Fatalf("expected an Image handle, got %+v", res.Persist.Handles)
	}

	store, err := blob.Open(context.Background(), cfg.Blob)
	if err != nil {
		t.Fatalf("blob.Open: %v", err)
	}
	manifest, err := archive.New(store).Load(context.Background(), res.ImportID)
	if err != nil {
		t.Fatalf("Load manifest: %v", err)
	}
	if manifest.Source != input || manifest.Objects != res.Persist.Objects {
		t.Fatalf("unexpected manifest %+v", manifest)
	}

	trace, err := os.ReadFile(tracePath)
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	if !strings.Contains(string(trace), `"persist"`) {
		t.Fatalf("expected persist span in trace, got %s", trace)
	}
}

func TestStartMetricsExporters(t *testing.T) {
	logger := newLogger("error", "text", &bytes.Buffer{})
	rec, stop, err := startMetrics(config.MetricsConfig{Exporter: config.MetricsNone}, logger)
	if err != nil || rec != nil {
		t.Fatalf("expected no recorder, got %v %v", rec, err)
	}
	stop()

	for _, exporter := range []string{config.MetricsExpvar, config.MetricsPrometheus} {
		rec, stop, err := startMetrics(config.MetricsConfig{Exporter: exporter, Addr: "127.0.0.1:0"}, logger)
		if err != nil {
			t.Fatalf("%s: %v", exporter, err)
		}
		if rec == nil {
			t.Fatalf("%s: expected a recorder", exporter)
		}
		rec.Observe(context.Background(), "import", true, 0)
		stop()
	}

	if _, _, err := startMetrics(config.MetricsConfig{Exporter: "statsd"}, logger); err == nil {
		t.Fatalf("expected unknown exporter error")
	}
}

type blockingPinger struct {
	started  chan struct{}
	release  chan struct{}
	once     sync.Once
	finished atomic.Bool
}

func (p *blockingPinger) Ping(context.Context) error {
	p.once.Do(func() { close(p.started) })
	<-p.release
	p.finished.Store(true)
	return nil
}

func TestStartKeepAliveWaitsForInFlightPing(t *testing.T) {
	p := &blockingPinger{started: make(chan struct{}), release: make(chan struct{})}
	stop := startKeepAlive(context.Background(), &core.KeepAlive{Pinger: p, Interval: time.Millisecond})
	<-p.started

	returned := make(chan struct{})
	go func() {
		stop()
		close(returned)
	}()
	select {
	case <-returned:
		t.Fatalf("stop returned while a ping was in flight")
	case <-time.After(20 * time.Millisecond):
	}
	close(p.release)
	<-returned
	if !p.finished.Load() {
		t.Fatalf("expected the in-flight ping to complete before stop returned")
	}
}
