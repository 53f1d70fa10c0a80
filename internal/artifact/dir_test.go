package artifact

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestPutThenGetRoundTrip(test *testing.T) {
	test.Parallel()

	store, creationError := NewDir(test.TempDir(), "/generated/")
	if creationError != nil {
		test.Fatalf("NewDir: %v", creationError)
	}

	payload := []byte("png-bytes")
	stored, putError := store.Put(context.Background(), payload, "image/png")
	if putError != nil {
		test.Fatalf("Put: %v", putError)
	}
	if !strings.HasSuffix(stored.Key, ".png") {
		test.Fatalf("expected .png key, got %q", stored.Key)
	}
	if stored.URL != "/generated/"+stored.Key {
		test.Fatalf("unexpected URL %q", stored.URL)
	}

	got, getError := store.Get(context.Background(), stored.Key)
	if getError != nil {
		test.Fatalf("Get: %v", getError)
	}
	if string(got) != string(payload) {
		test.Fatalf("payload mismatch: %q", got)
	}
}

func TestUnknownContentTypeFallsBackToBin(test *testing.T) {
	test.Parallel()

	store, creationError := NewDir(test.TempDir(), "/generated")
	if creationError != nil {
		test.Fatalf("NewDir: %v", creationError)
	}
	stored, putError := store.Put(context.Background(), []byte{0x1}, "application/octet-stream")
	if putError != nil {
		test.Fatalf("Put: %v", putError)
	}
	if !strings.HasSuffix(stored.Key, ".bin") {
		test.Fatalf("expected .bin key, got %q", stored.Key)
	}
}

func TestGetRejectsTraversalKeys(test *testing.T) {
	test.Parallel()

	store, creationError := NewDir(test.TempDir(), "/generated")
	if creationError != nil {
		test.Fatalf("NewDir: %v", creationError)
	}
	for _, key := range []string{"", "../secrets", "a/b.png", ".hidden"} {
		if _, getError := store.Get(context.Background(), key); !errors.Is(getError, ErrInvalidKey) {
			test.Fatalf("key %q: expected ErrInvalidKey, got %v", key, getError)
		}
	}
}

func TestGetMissingKeyReturnsNotFound(test *testing.T) {
	test.Parallel()

	store, creationError := NewDir(test.TempDir(), "/generated")
	if creationError != nil {
		test.Fatalf("NewDir: %v", creationError)
	}
	if _, getError := store.Get(context.Background(), "missing.png"); !errors.Is(getError, ErrNotFound) {
		test.Fatalf("expected ErrNotFound, got %v", getError)
	}
}
