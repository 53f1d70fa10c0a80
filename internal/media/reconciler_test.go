package media

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type stubAssetStore struct {
	mutex  sync.Mutex
	assets map[string]Asset
}

func newStubAssetStore() *stubAssetStore {
	return &stubAssetStore{assets: map[string]Asset{}}
}

func (store *stubAssetStore) InsertAsset(_ context.Context, asset Asset) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.assets[asset.ExternalJobID] = asset
	return nil
}

func (store *stubAssetStore) GetAssetByExternalJobID(_ context.Context, externalJobID string) (Asset, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	asset, found := store.assets[externalJobID]
	if !found {
		return Asset{}, ErrAssetNotFound
	}
	return asset, nil
}

func (store *stubAssetStore) ApplyTransition(_ context.Context, transition Transition) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	asset, found := store.assets[transition.ExternalJobID]
	if !found {
		return false, ErrAssetNotFound
	}
	if asset.Status.IsTerminal() {
		return false, nil
	}
	asset.Status = transition.NextStatus
	asset.LastTransitionSource = transition.Source
	asset.FailureReason = transition.FailureReason
	asset.Metadata = transition.Metadata
	asset.UpdatedUnixUTC = transition.UpdatedUnixUTC
	store.assets[transition.ExternalJobID] = asset
	return true, nil
}

type stubEncoder struct {
	statusCode    int
	metadata      Metadata
	metadataError error
	metadataCalls int
	pollCalls     int
}

func (encoder *stubEncoder) CreateVideo(_ context.Context, _ string) (string, string, error) {
	return "job-1", "https://encode.example/upload/job-1", nil
}

func (encoder *stubEncoder) FetchStatusCode(_ context.Context, _ string) (int, error) {
	encoder.pollCalls++
	return encoder.statusCode, nil
}

func (encoder *stubEncoder) FetchMetadata(_ context.Context, _ string) (Metadata, error) {
	encoder.metadataCalls++
	return encoder.metadata, encoder.metadataError
}

func mustReconciler(test *testing.T, store AssetStore, encoder Encoder) *Reconciler {
	test.Helper()
	reconciler, creationError := NewReconciler(store, encoder,
		withClock(func() time.Time { return time.Unix(1700000000, 0) }))
	if creationError != nil {
		test.Fatalf("NewReconciler: %v", creationError)
	}
	return reconciler
}

func seedAsset(test *testing.T, store *stubAssetStore, status Status) {
	test.Helper()
	insertError := store.InsertAsset(context.Background(), Asset{
		AssetID:       "asset-1",
		ExternalJobID: "job-1",
		Status:        status,
	})
	if insertError != nil {
		test.Fatalf("seed asset: %v", insertError)
	}
}

func TestReadyTransitionStoresMetadataAtomically(test *testing.T) {
	test.Parallel()

	store := newStubAssetStore()
	seedAsset(test, store, StatusEncoding)
	encoder := &stubEncoder{metadata: Metadata{DurationSeconds: 12, Width: 1920, Height: 1080, PlaybackURL: "https://cdn.example/job-1/playlist.m3u8"}}
	reconciler := mustReconciler(test, store, encoder)

	if applyError := reconciler.Apply(context.Background(), "job-1", 3, SourceWebhook); applyError != nil {
		test.Fatalf("Apply: %v", applyError)
	}

	asset, _ := store.GetAssetByExternalJobID(context.Background(), "job-1")
	if asset.Status != StatusReady {
		test.Fatalf("expected ready, got %s", asset.Status)
	}
	if asset.Metadata == nil || asset.Metadata.DurationSeconds != 12 {
		test.Fatalf("metadata not stored with ready flip: %+v", asset.Metadata)
	}
	if asset.LastTransitionSource != SourceWebhook {
		test.Fatalf("unexpected source %s", asset.LastTransitionSource)
	}
}

func TestMetadataFetchFailureLeavesAssetNonTerminal(test *testing.T) {
	test.Parallel()

	store := newStubAssetStore()
	seedAsset(test, store, StatusEncoding)
	encoder := &stubEncoder{metadataError: errors.New("provider unavailable")}
	reconciler := mustReconciler(test, store, encoder)

	if applyError := reconciler.Apply(context.Background(), "job-1", 3, SourceWebhook); applyError == nil {
		test.Fatalf("expected metadata fetch failure to surface")
	}
	asset, _ := store.GetAssetByExternalJobID(context.Background(), "job-1")
	if asset.Status != StatusEncoding {
		test.Fatalf("asset must stay encoding, got %s", asset.Status)
	}
}

func TestTerminalAssetAbsorbsLaterInputs(test *testing.T) {
	test.Parallel()

	store := newStubAssetStore()
	seedAsset(test, store, StatusUploading)
	encoder := &stubEncoder{metadata: Metadata{DurationSeconds: 7}}
	reconciler := mustReconciler(test, store, encoder)

	if applyError := reconciler.Apply(context.Background(), "job-1", 3, SourceWebhook); applyError != nil {
		test.Fatalf("ready webhook: %v", applyError)
	}
	// A later poll reporting processing must not regress the asset or drop
	// its metadata.
	if applyError := reconciler.Apply(context.Background(), "job-1", 1, SourcePoll); applyError != nil {
		test.Fatalf("stale poll: %v", applyError)
	}
	if applyError := reconciler.Apply(context.Background(), "job-1", 3, SourceWebhook); applyError != nil {
		test.Fatalf("duplicate webhook: %v", applyError)
	}

	asset, _ := store.GetAssetByExternalJobID(context.Background(), "job-1")
	if asset.Status != StatusReady {
		test.Fatalf("expected ready, got %s", asset.Status)
	}
	if asset.Metadata == nil {
		test.Fatalf("metadata lost by stale input")
	}
	if asset.LastTransitionSource != SourceWebhook {
		test.Fatalf("stale poll overwrote transition source")
	}
}

func TestFailedTransitionStoresReason(test *testing.T) {
	test.Parallel()

	store := newStubAssetStore()
	seedAsset(test, store, StatusEncoding)
	reconciler := mustReconciler(test, store, &stubEncoder{})

	if applyError := reconciler.Apply(context.Background(), "job-1", 5, SourcePoll); applyError != nil {
		test.Fatalf("Apply: %v", applyError)
	}
	asset, _ := store.GetAssetByExternalJobID(context.Background(), "job-1")
	if asset.Status != StatusFailed {
		test.Fatalf("expected failed, got %s", asset.Status)
	}
	if asset.FailureReason == "" {
		test.Fatalf("failure reason missing")
	}
}

func TestUnknownStatusCodeIsRejectedWithoutWrite(test *testing.T) {
	test.Parallel()

	store := newStubAssetStore()
	seedAsset(test, store, StatusQueued)
	reconciler := mustReconciler(test, store, &stubEncoder{})

	applyError := reconciler.Apply(context.Background(), "job-1", 42, SourceWebhook)
	if !errors.Is(applyError, ErrUnknownStatusCode) {
		test.Fatalf("expected ErrUnknownStatusCode, got %v", applyError)
	}
	asset, _ := store.GetAssetByExternalJobID(context.Background(), "job-1")
	if asset.Status != StatusQueued {
		test.Fatalf("asset mutated by unknown code: %s", asset.Status)
	}
}

func TestPollOnceSkipsProviderForTerminalAssets(test *testing.T) {
	test.Parallel()

	store := newStubAssetStore()
	seedAsset(test, store, StatusReady)
	encoder := &stubEncoder{statusCode: 1}
	reconciler := mustReconciler(test, store, encoder)

	asset, pollError := reconciler.PollOnce(context.Background(), "job-1")
	if pollError != nil {
		test.Fatalf("PollOnce: %v", pollError)
	}
	if asset.Status != StatusReady {
		test.Fatalf("expected ready, got %s", asset.Status)
	}
	if encoder.pollCalls != 0 {
		test.Fatalf("provider polled for terminal asset")
	}
}

func TestPollOnceAppliesProviderStatus(test *testing.T) {
	test.Parallel()

	store := newStubAssetStore()
	seedAsset(test, store, StatusQueued)
	encoder := &stubEncoder{statusCode: 2}
	reconciler := mustReconciler(test, store, encoder)

	asset, pollError := reconciler.PollOnce(context.Background(), "job-1")
	if pollError != nil {
		test.Fatalf("PollOnce: %v", pollError)
	}
	if asset.Status != StatusEncoding {
		test.Fatalf("expected encoding, got %s", asset.Status)
	}
	if asset.LastTransitionSource != SourcePoll {
		test.Fatalf("unexpected source %s", asset.LastTransitionSource)
	}
}

func TestCreateUploadStoresUploadingAsset(test *testing.T) {
	test.Parallel()

	store := newStubAssetStore()
	reconciler := mustReconciler(test, store, &stubEncoder{})

	asset, uploadURL, createError := reconciler.CreateUpload(context.Background(), "user-1", "holiday clip")
	if createError != nil {
		test.Fatalf("CreateUpload: %v", createError)
	}
	if uploadURL == "" {
		test.Fatalf("upload URL missing")
	}
	if asset.Status != StatusUploading {
		test.Fatalf("expected uploading, got %s", asset.Status)
	}
	stored, _ := store.GetAssetByExternalJobID(context.Background(), asset.ExternalJobID)
	if stored.OwnerID != "user-1" || stored.Title != "holiday clip" {
		test.Fatalf("stored asset mismatch: %+v", stored)
	}
}

func TestStatusCodeTable(test *testing.T) {
	test.Parallel()

	cases := []struct {
		code     int
		expected Status
	}{
		{0, StatusQueued},
		{1, StatusProcessing},
		{2, StatusEncoding},
		{3, StatusReady},
		{4, StatusEncoding},
		{5, StatusFailed},
		{6, StatusUploading},
		{7, StatusQueued},
		{8, StatusFailed},
	}
	for _, testCase := range cases {
		mapped, mapError := MapStatusCode(testCase.code)
		if mapError != nil {
			test.Fatalf("code %d: %v", testCase.code, mapError)
		}
		if mapped != testCase.expected {
			test.Fatalf("code %d: expected %s, got %s", testCase.code, testCase.expected, mapped)
		}
	}
}
