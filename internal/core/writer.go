package core

import (
	"context"
	"errors"
	"fmt"

	"omegraph/internal/graph"
	"omegraph/pkg/domain"
)

// ErrInvalidBatchSize is returned when the writer is configured with a batch
// size that cannot bound a remote call.
var ErrInvalidBatchSize = errors.New("batch size must be positive")

// Persistence stages reported by PersistError.
const (
	StageObjects    = "update_objects"
	StageReferences = "update_references"
	StageCommit     = "commit"
)

// PersistError wraps the failure that abandoned a persistence attempt.
type PersistError struct {
	Stage string
	Batch int
	Err   error
	// AbortErr is set when discarding staged writes also failed.
	AbortErr error
}

func (e *PersistError) Error() string {
	msg := fmt.Sprintf("persist %s batch %d: %v", e.Stage, e.Batch, e.Err)
	if e.AbortErr != nil {
		msg += fmt.Sprintf(" (abort: %v)", e.AbortErr)
	}
	return msg
}

func (e *PersistError) Unwrap() error { return e.Err }

// PersistResult describes a committed graph.
type PersistResult struct {
	Objects          int
	ObjectBatches    int
	ReferenceKeys    int
	ReferenceBatches int
	Handles          []domain.PersistedHandle
}

// Handle returns the committed handle of a container key.
func (r PersistResult) Handle(key string) (int64, bool) {
	for _, h := range r.Handles {
		if h.Key == key {
			return h.ID, true
		}
	}
	return 0, false
}

// Writer flattens a session and sends it to a remote store in bounded,
// strictly sequential batches followed by a single commit.
type Writer struct {
	Store      domain.RemoteStore
	BatchSize  int
	Comparator graph.Comparator
	Logger     Logger
}

// Persist writes every container of s and the finalized payload, then moves
// the committed store IDs onto the session's containers. Any failure
// abandons the attempt, discards staged writes when the store supports it and
// returns a *PersistError. Persistence is not retried and, once started, is
// not interrupted: cancelling ctx after validation does not reach the store.
func (w Writer) Persist(ctx context.Context, s *graph.Session, payload graph.ReferencePayload) (PersistResult, error) {
	if w.BatchSize <= 0 {
		return PersistResult{}, fmt.Errorf("%w: %d", ErrInvalidBatchSize, w.BatchSize)
	}
	if w.Store == nil {
		return PersistResult{}, errors.New("writer has no remote store")
	}
	logger := w.Logger
	if logger == nil {
		logger = domain.NopLogger{}
	}
	ctx = context.WithoutCancel(ctx)

	containers := s.Containers()
	w.Comparator.Sort(containers)

	var res PersistResult
	res.Objects = len(containers)
	for start, batch := 0, 0; start < len(containers); start, batch = start+w.BatchSize, batch+1 {
		end := min(start+w.BatchSize, len(containers))
		records := make([]domain.ObjectRecord, 0, end-start)
		for _, c := range containers[start:end] {
			records = append(records, c.Record())
		}
		if err := w.Store.UpdateObjects(ctx, records); err != nil {
			return PersistResult{}, w.fail(ctx, logger, StageObjects, batch, err)
		}
		res.ObjectBatches++
		logger.Debug("object batch written", "batch", batch, "size", len(records))
	}

	entries := payload.Entries
	res.ReferenceKeys = len(entries)
	for start, batch := 0, 0; start < len(entries); start, batch = start+w.BatchSize, batch+1 {
		end := min(start+w.BatchSize, len(entries))
		sets := make([]domain.ReferenceSet, 0, end-start)
		for _, e := range entries[start:end] {
			sets = append(sets, domain.ReferenceSet{Source: e.Source, Targets: append([]string(nil), e.Targets...)})
		}
		if err := w.Store.UpdateReferences(ctx, sets); err != nil {
			return PersistResult{}, w.fail(ctx, logger, StageReferences, batch, err)
		}
		res.ReferenceBatches++
		logger.Debug("reference batch written", "batch", batch, "size", len(sets))
	}

	handles, err := w.Store.Commit(ctx)
	if err != nil {
		return PersistResult{}, w.fail(ctx, logger, StageCommit, 0, err)
	}
	res.Handles = handles
	if n := s.ApplyHandles(handles); n != len(handles) {
		logger.Warn("committed handles without a container", "handles", len(handles), "applied", n)
	}
	logger.Info("graph committed", "objects", res.Objects, "object_batches", res.ObjectBatches,
		"reference_keys", res.ReferenceKeys, "reference_batches", res.ReferenceBatches, "handles", len(handles))
	return res, nil
}

func (w Writer) fail(ctx context.Context, logger Logger, stage string, batch int, err error) error {
	perr := &PersistError{Stage: stage, Batch: batch, Err: err}
	if aborter, ok := w.Store.(domain.Aborter); ok {
		if abortErr := aborter.Abort(ctx); abortErr != nil {
			perr.AbortErr = abortErr
		}
	}
	logger.Error("persist failed", "stage", stage, "batch", batch, "error", err)
	return perr
}
