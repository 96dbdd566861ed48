package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"omegraph/internal/archive"
	"omegraph/internal/graph"
	"omegraph/internal/processors"
	"omegraph/pkg/domain"
)

// ErrImportInProgress is returned when Run is called while another import
// is still using the importer's session.
var ErrImportInProgress = errors.New("import already in progress")

// Importer operation names reported to metrics and tracing.
const (
	OpImport     = "import"
	OpBeginCycle = "begin_cycle"
	OpPopulate   = "populate"
	OpPipeline   = "pipeline"
	OpPersist    = "persist"
	OpArchive    = "archive"
)

// PopulateFunc fills the session with the containers of one import.
type PopulateFunc func(ctx context.Context, s *graph.Session) error

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithLogger sets the importer logger.
func WithLogger(l Logger) ImporterOption {
	return func(im *Importer) {
		if l != nil {
			im.logger = l
		}
	}
}

// WithMetricsRecorder sets the recorder observing every import step.
func WithMetricsRecorder(m MetricsRecorder) ImporterOption {
	return func(im *Importer) {
		if m != nil {
			im.metrics = m
		}
	}
}

// WithTracer sets the tracer spanning every import step.
func WithTracer(t Tracer) ImporterOption {
	return func(im *Importer) {
		if t != nil {
			im.tracer = t
		}
	}
}

// WithArchive enables manifest archiving after each commit.
func WithArchive(a *archive.Archive) ImporterOption {
	return func(im *Importer) { im.archive = a }
}

// WithProcessors replaces the default pipeline.
func WithProcessors(procs ...graph.Processor) ImporterOption {
	return func(im *Importer) { im.processors = procs }
}

// WithClock overrides the time source used for manifests.
func WithClock(now func() time.Time) ImporterOption {
	return func(im *Importer) {
		if now != nil {
			im.now = now
		}
	}
}

// WithSource labels manifests with the origin of the imported stream.
func WithSource(source string) ImporterOption {
	return func(im *Importer) { im.source = source }
}

// Importer drives one import cycle at a time over a single session: begin
// the cycle, populate, run the pipeline, persist, archive the manifest and
// end the cycle.
type Importer struct {
	mu sync.Mutex

	session    *graph.Session
	writer     Writer
	processors []graph.Processor
	archive    *archive.Archive
	source     string

	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	now     func() time.Time
}

// NewImporter builds an importer writing to store in batches of batchSize.
// The pipeline is validated up front.
func NewImporter(session *graph.Session, store domain.RemoteStore, batchSize int, opts ...ImporterOption) (*Importer, error) {
	if session == nil {
		return nil, errors.New("importer requires a session")
	}
	if store == nil {
		return nil, errors.New("importer requires a remote store")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBatchSize, batchSize)
	}
	im := &Importer{
		session:    session,
		processors: processors.Default(),
		logger:     domain.NopLogger{},
		metrics:    noopMetrics{},
		tracer:     noopTracer{},
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(im)
	}
	if err := graph.ValidatePipeline(im.processors); err != nil {
		return nil, err
	}
	im.writer = Writer{Store: store, BatchSize: batchSize, Comparator: session.Comparator(), Logger: im.logger}
	return im, nil
}

// Session returns the importer's session, e.g. to stage prepared metadata
// before the next Run. It must not be used while Run is executing.
func (im *Importer) Session() *graph.Session { return im.session }

// ImportResult describes a committed import.
type ImportResult struct {
	ImportID string
	Persist  PersistResult
	Payload  graph.ReferencePayload
	// ManifestKey is empty when archiving is disabled or failed.
	ManifestKey string
}

// Run performs one import. Staged metadata is consumed by the cycle and
// discarded afterwards whatever the outcome. A failure before persistence
// leaves the remote store untouched; a persistence failure is a
// *PersistError. Archiving is best effort: its failure is logged and
// reported to metrics but the committed import still succeeds.
func (im *Importer) Run(ctx context.Context, populate PopulateFunc) (res ImportResult, err error) {
	if populate == nil {
		return ImportResult{}, errors.New("import requires a populate step")
	}
	if !im.mu.TryLock() {
		return ImportResult{}, ErrImportInProgress
	}
	defer im.mu.Unlock()

	res.ImportID = uuid.NewString()
	started := im.now()
	logger := im.logger
	logger.Info("import started", "import_id", res.ImportID, "cycle", im.session.Cycle()+1)

	opStart := time.Now()
	ctx, span := im.tracer.Start(ctx, OpImport)
	defer func() {
		span.End(err)
		im.metrics.Observe(ctx, OpImport, err == nil, time.Since(opStart))
		if err != nil {
			logger.Error("import failed", "import_id", res.ImportID, "error", err)
		}
	}()

	if err := im.step(ctx, OpBeginCycle, func(context.Context) error { return im.session.BeginCycle() }); err != nil {
		im.session.EndCycle()
		return ImportResult{}, fmt.Errorf("begin cycle: %w", err)
	}
	defer im.session.EndCycle()

	if err := im.step(ctx, OpPopulate, func(ctx context.Context) error { return populate(ctx, im.session) }); err != nil {
		return ImportResult{}, fmt.Errorf("populate: %w", err)
	}
	if err := im.step(ctx, OpPipeline, func(ctx context.Context) error { return im.session.RunPipeline(ctx, im.processors...) }); err != nil {
		return ImportResult{}, fmt.Errorf("pipeline: %w", err)
	}
	payload, ok := im.session.Payload()
	if !ok {
		logger.Warn("pipeline produced no reference payload, persisting objects only", "import_id", res.ImportID)
	}
	res.Payload = payload

	if err := ctx.Err(); err != nil {
		return ImportResult{}, err
	}
	var persisted PersistResult
	if err := im.step(ctx, OpPersist, func(ctx context.Context) error {
		var perr error
		persisted, perr = im.writer.Persist(ctx, im.session, payload)
		return perr
	}); err != nil {
		return ImportResult{}, err
	}
	res.Persist = persisted

	if im.archive != nil {
		manifest := im.manifest(res, started)
		aerr := im.step(ctx, OpArchive, func(ctx context.Context) error {
			info, err := im.archive.Save(ctx, manifest)
			if err == nil {
				res.ManifestKey = info.Key
			}
			return err
		})
		if aerr != nil {
			logger.Warn("manifest archive failed", "import_id", res.ImportID, "error", aerr)
		}
	}
	logger.Info("import committed", "import_id", res.ImportID, "objects", persisted.Objects,
		"references", payload.Edges(), "handles", len(persisted.Handles), "manifest", res.ManifestKey)
	return res, nil
}

func (im *Importer) step(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := im.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	im.metrics.Observe(ctx, op, err == nil, time.Since(start))
	im.logger.Debug("import step finished", "operation", op, "duration", time.Since(start), "error", err)
	return err
}

func (im *Importer) manifest(res ImportResult, started time.Time) archive.Manifest {
	tags := make(map[domain.Tag]int)
	for _, c := range im.session.Containers() {
		tags[c.Tag()]++
	}
	refs := make([]archive.Reference, len(res.Payload.Entries))
	for i, e := range res.Payload.Entries {
		refs[i] = archive.Reference{Source: e.Source, Targets: append([]string(nil), e.Targets...)}
	}
	return archive.Manifest{
		ImportID:         res.ImportID,
		Source:           im.source,
		StartedAt:        started,
		CommittedAt:      im.now(),
		Store:            fmt.Sprintf("%T", im.writer.Store),
		Objects:          res.Persist.Objects,
		ObjectBatches:    res.Persist.ObjectBatches,
		ReferenceKeys:    res.Persist.ReferenceKeys,
		ReferenceBatches: res.Persist.ReferenceBatches,
		Tags:             tags,
		Handles:          res.Persist.Handles,
		References:       refs,
	}
}
