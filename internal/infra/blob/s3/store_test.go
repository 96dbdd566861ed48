package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"omegraph/internal/blob/core"
)

func TestStoreMockedRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, rt := newMock("", 1000)
	info, err := store.Put(ctx, "imports/a.json", strings.NewReader(`{"ok":true}`), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"import": "a"},
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Size != 11 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	head, err := store.Head(ctx, "imports/a.json")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.ContentType != "application/json" || head.Size != 11 || head.Metadata["import"] != "a" {
		t.Fatalf("unexpected head %+v", head)
	}
	_, rc, err := store.Get(ctx, "imports/a.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `{"ok":true}` {
		t.Fatalf("unexpected body %q", body)
	}
	if _, err := store.Put(ctx, "imports/a.json", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if ok, err := store.Delete(ctx, "imports/a.json"); err != nil || !ok {
		t.Fatalf("Delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, "imports/a.json"); err != nil || ok {
		t.Fatalf("deleting a missing key must report false, got %v %v", ok, err)
	}
	if len(rt.keys()) != 0 {
		t.Fatalf("expected empty bucket, got %v", rt.keys())
	}
}

func TestStoreMissingKeysMapToNotFound(t *testing.T) {
	store, _ := newMock("", 1000)
	if _, err := store.Head(context.Background(), "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Head: expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.Get(context.Background(), "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Get: expected ErrNotFound, got %v", err)
	}
}

func TestStoreListPagesAndStripsPrefix(t *testing.T) {
	ctx := context.Background()
	store, rt := newMock("tenant-a", 2)
	for _, key := range []string{"imports/c.json", "imports/a.json", "imports/b.json", "other/x"} {
		if _, err := store.Put(ctx, key, strings.NewReader(key), core.PutOptions{}); err != nil {
			t.Fatalf("Put %s: %v", key, err)
		}
	}
	for _, k := range rt.keys() {
		if !strings.HasPrefix(k, "tenant-a/") {
			t.Fatalf("object key %s missing configured prefix", k)
		}
	}
	list, err := store.List(ctx, "imports/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 || list[0].Key != "imports/a.json" || list[2].Key != "imports/c.json" {
		t.Fatalf("unexpected listing %+v", list)
	}
	pages := 0
	for _, r := range rt.requests {
		if strings.HasPrefix(r, "GET ") && strings.Contains(r, "list-type=2") {
			pages++
		}
	}
	if pages != 2 {
		t.Fatalf("expected two list pages, got %d", pages)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
	store, err := New(context.Background(), Config{Bucket: "b", Endpoint: "http://localhost:9000", AccessKeyID: "k", SecretAccessKey: "s", PathStyle: true, Prefix: "p"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if store.Driver() != core.DriverS3 || store.objectKey("x") != "p/x" {
		t.Fatalf("unexpected store %+v", store)
	}
}

func TestDecodeChunked(t *testing.T) {
	body, ok := decodeChunked([]byte("5\r\nhello\r\n0\r\nx-amz-checksum-crc32:abc\r\n\r\n"))
	if !ok || string(body) != "hello" {
		t.Fatalf("unexpected decode %q %v", body, ok)
	}
	if _, ok := decodeChunked([]byte("plain body")); ok {
		t.Fatalf("plain payload must not decode")
	}
}
