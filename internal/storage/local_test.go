package storage

import (
	"context"
	"errors"
	"io"
	"regexp"
	"sort"
	"testing"
)

func TestLocalBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Write(ctx, "listings/7/a.jpg", []byte("jpeg"), "image/jpeg"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := b.Write(ctx, "listings/7/b.png", []byte("png"), "image/png"); err != nil {
		t.Fatalf("write: %v", err)
	}

	ok, err := b.Has(ctx, "listings/7/a.jpg")
	if err != nil || !ok {
		t.Fatalf("has = %v, %v", ok, err)
	}
	rc, err := b.Read(ctx, "listings/7/a.jpg")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "jpeg" {
		t.Fatalf("read data = %q", data)
	}

	keys, err := b.List(ctx, "listings/7")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "listings/7/a.jpg" || keys[1] != "listings/7/b.png" {
		t.Fatalf("list = %v", keys)
	}

	if err := b.Delete(ctx, "listings/7/a.jpg"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := b.Read(ctx, "listings/7/a.jpg"); !errors.Is(err, ErrNotExist) {
		t.Fatalf("read after delete err = %v, want ErrNotExist", err)
	}
	if err := b.Delete(ctx, "listings/7/a.jpg"); !errors.Is(err, ErrNotExist) {
		t.Fatalf("second delete err = %v, want ErrNotExist", err)
	}
	if keys, err := b.List(ctx, "listings/404"); err != nil || keys != nil {
		t.Fatalf("list missing prefix = %v, %v", keys, err)
	}
}

func TestLocalBackendRejectsTraversal(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"../escape", "a/../../escape", "", ".."} {
		if err := b.Write(context.Background(), key, []byte("x"), ""); err == nil {
			t.Fatalf("write %q succeeded, want error", key)
		}
	}
}

func TestListingPhotoKey(t *testing.T) {
	key := ListingPhotoKey(42, ".jpg")
	re := regexp.MustCompile(`^listings/42/[0-9a-f-]{36}\.jpg$`)
	if !re.MatchString(key) {
		t.Fatalf("key = %q", key)
	}
	if ListingPhotoKey(42, "jpg") == key {
		t.Fatal("keys should be unique")
	}
}
