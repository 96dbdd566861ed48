package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"omegraph/internal/blob"
	"omegraph/internal/config"
	"omegraph/pkg/domain"
)

func sampleManifest(id string) Manifest {
	return Manifest{
		ImportID:    id,
		Source:      "fixture.jsonl",
		StartedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		CommittedAt: time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC),
		Objects:     3,
		Tags:        map[domain.Tag]int{domain.TagImage: 1, domain.TagChannel: 2},
		Handles:     []domain.PersistedHandle{{Key: "Image:0", Tag: domain.TagImage, ID: 7}},
		References:  []Reference{{Source: "Image:0", Targets: []string{"Instrument:0"}}},
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := blob.Open(ctx, config.BlobConfig{Driver: config.BlobMemory})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	a := New(store)
	info, err := a.Save(ctx, sampleManifest("imp-1"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if info.Key != "imports/imp-1.json" || info.ContentType != "application/json" {
		t.Fatalf("unexpected blob info %+v", info)
	}
	got, err := a.Load(ctx, "imp-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Tags[domain.TagChannel] != 2 || got.Handles[0].ID != 7 || got.References[0].Targets[0] != "Instrument:0" {
		t.Fatalf("unexpected manifest %+v", got)
	}
	if !got.StartedAt.Equal(sampleManifest("").StartedAt) {
		t.Fatalf("timestamps must survive the round trip")
	}
	if _, err := a.Save(ctx, sampleManifest("imp-1")); !errors.Is(err, blob.ErrExists) {
		t.Fatalf("manifests are write-once, got %v", err)
	}
}

func TestArchiveListAndErrors(t *testing.T) {
	ctx := context.Background()
	a := New(blob.NewMockS3ForTests())
	for _, id := range []string{"b", "a"} {
		if _, err := a.Save(ctx, sampleManifest(id)); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}
	ids, err := a.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("unexpected ids %v", ids)
	}
	if a.Driver() != blob.DriverS3 {
		t.Fatalf("unexpected driver %s", a.Driver())
	}
	if _, err := a.Load(ctx, "missing"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := a.Save(ctx, Manifest{}); err == nil {
		t.Fatalf("expected missing id error")
	}
}
