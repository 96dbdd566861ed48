// Package archive records a JSON manifest of every committed import in a
// blob store, keyed by import id.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"omegraph/internal/blob"
	"omegraph/pkg/domain"
)

// Prefix is the blob key prefix of all manifests.
const Prefix = "imports/"

// Reference is one persisted source and its targets.
type Reference struct {
	Source  string   `json:"source"`
	Targets []string `json:"targets"`
}

// Manifest summarises one committed import.
type Manifest struct {
	ImportID         string                   `json:"import_id"`
	Source           string                   `json:"source,omitempty"`
	StartedAt        time.Time                `json:"started_at"`
	CommittedAt      time.Time                `json:"committed_at"`
	Store            string                   `json:"store,omitempty"`
	Objects          int                      `json:"objects"`
	ObjectBatches    int                      `json:"object_batches"`
	ReferenceKeys    int                      `json:"reference_keys"`
	ReferenceBatches int                      `json:"reference_batches"`
	Tags             map[domain.Tag]int       `json:"tags,omitempty"`
	Handles          []domain.PersistedHandle `json:"handles"`
	References       []Reference              `json:"references,omitempty"`
}

// Key returns the blob key of the manifest of importID.
func Key(importID string) string { return Prefix + importID + ".json" }

// Archive writes and reads manifests.
type Archive struct {
	store blob.Store
}

// New returns an archive over store.
func New(store blob.Store) *Archive { return &Archive{store: store} }

// Driver reports the backing blob driver.
func (a *Archive) Driver() blob.Driver { return a.store.Driver() }

// Save writes m. Manifests are write-once; saving an id twice fails with
// blob.ErrExists.
func (a *Archive) Save(ctx context.Context, m Manifest) (blob.Info, error) {
	if strings.TrimSpace(m.ImportID) == "" {
		return blob.Info{}, fmt.Errorf("manifest without import id")
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode manifest %s: %w", m.ImportID, err)
	}
	info, err := a.store.Put(ctx, Key(m.ImportID), bytes.NewReader(raw), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"import-id": m.ImportID},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("store manifest %s: %w", m.ImportID, err)
	}
	return info, nil
}

// Load reads the manifest of importID.
func (a *Archive) Load(ctx context.Context, importID string) (Manifest, error) {
	_, rc, err := a.store.Get(ctx, Key(importID))
	if err != nil {
		return Manifest{}, err
	}
	defer func() { _ = rc.Close() }()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest %s: %w", importID, err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest %s: %w", importID, err)
	}
	return m, nil
}

// List returns the archived import ids in key order.
func (a *Archive) List(ctx context.Context) ([]string, error) {
	infos, err := a.store.List(ctx, Prefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(infos))
	for _, info := range infos {
		id := strings.TrimSuffix(strings.TrimPrefix(info.Key, Prefix), ".json")
		if id != "" && strings.HasSuffix(info.Key, ".json") {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
