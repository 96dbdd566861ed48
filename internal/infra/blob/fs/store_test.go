package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"omegraph/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "blobs"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStorePutGetHeadListDelete(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	info, err := store.Put(ctx, "imports/a.json", bytes.NewReader([]byte("hello")), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"k": "v"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "imports/a.json" || info.Size != 5 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	head, err := store.Head(ctx, "imports/a.json")
	if err != nil || head.ETag != info.ETag || head.Metadata["k"] != "v" {
		t.Fatalf("head mismatch: %+v %v", head, err)
	}
	_, rc, err := store.Get(ctx, "imports/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if string(body) != "hello" {
		t.Fatalf("unexpected body %q", body)
	}
	list, err := store.List(ctx, "imports/")
	if err != nil || len(list) != 1 || list[0].Key != "imports/a.json" {
		t.Fatalf("unexpected list %+v %v", list, err)
	}
	if ok, err := store.Delete(ctx, "imports/a.json"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, _ := store.Delete(ctx, "imports/a.json"); ok {
		t.Fatalf("second delete must report missing")
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "imports", "a.json.meta")); !os.IsNotExist(err) {
		t.Fatalf("sidecar must be removed, stat err %v", err)
	}
	if _, _, err := store.Get(ctx, "imports/a.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreRejectsInvalidKeys(t *testing.T) {
	store := newTempStore(t)
	for _, key := range []string{"", "  ", "/abs", "../escape", "a/../../b", "x.meta"} {
		if _, err := store.Put(context.Background(), key, bytes.NewReader(nil), core.PutOptions{}); err == nil {
			t.Fatalf("expected %q to be rejected", key)
		}
	}
}

func TestStoreConcurrentPutsKeepFirstWriter(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Put(ctx, "imports/same.json", bytes.NewReader([]byte(strconv.Itoa(i))), core.PutOptions{})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	ok := 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, core.ErrExists):
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one successful writer, got %d", ok)
	}
	entries, _ := os.ReadDir(filepath.Join(store.Root(), "imports"))
	for _, e := range entries {
		if len(e.Name()) > 4 && e.Name()[:5] == ".tmp-" {
			t.Fatalf("temp file leaked: %s", e.Name())
		}
	}
}
