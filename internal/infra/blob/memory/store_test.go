package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"shelterhub/internal/blob/core"
)

func TestStoreRoundTrip(t *testing.T) {
	store := New()
	ctx := context.Background()
	meta := map[string]string{"cat_id": "c1"}
	info, err := store.Put(ctx, "photos/c1/a", bytes.NewReader([]byte("jpeg")), core.PutOptions{ContentType: "image/jpeg", Metadata: meta})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	meta["cat_id"] = "mutated"
	if info.Size != 4 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	got, rc, err := store.Get(ctx, "photos/c1/a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "jpeg" || got.Metadata["cat_id"] != "c1" || got.ContentType != "image/jpeg" {
		t.Fatalf("unexpected blob %+v %q", got, body)
	}
	if _, err := store.Put(ctx, "photos/c1/a", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := store.Put(ctx, "backups/x.json", bytes.NewReader([]byte("{}")), core.PutOptions{}); err != nil {
		t.Fatalf("put backup: %v", err)
	}
	photos, _ := store.List(ctx, "photos/")
	if len(photos) != 1 || photos[0].Key != "photos/c1/a" {
		t.Fatalf("unexpected prefix listing %+v", photos)
	}
	if ok, err := store.Delete(ctx, "photos/c1/a"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, _ := store.Delete(ctx, "photos/c1/a"); ok {
		t.Fatalf("expected second delete to report missing")
	}
}

func TestStoreErrors(t *testing.T) {
	store := New()
	ctx := context.Background()
	if store.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
	if _, err := store.Head(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Put(ctx, "../escape", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if _, err := store.PresignURL(ctx, "k", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported presign, got %v", err)
	}
}
