package preview

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pathlake/slideagent/cmn"
	"github.com/pathlake/slideagent/events"
	"github.com/pathlake/slideagent/objstore"
	"github.com/pathlake/slideagent/store"
)

// memBackend is an in-memory objstore.Backend, letting Publish be tested
// without a real S3/Azure/GCS credential.
type memBackend struct {
	mu    sync.Mutex
	puts  int
	byKey map[string][]byte
}

func newMemBackend() *memBackend { return &memBackend{byKey: map[string][]byte{}} }

func (m *memBackend) Put(ctx context.Context, obj objstore.Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	m.byKey[obj.Key] = obj.Body
	return nil
}

func (m *memBackend) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.byKey {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *memBackend) DeletePrefix(ctx context.Context, prefix string) error { return nil }

func newTestPublisher(t *testing.T, backend *memBackend, pyramidLevels []int) (*Publisher, *store.DB, *store.SlideRegistry) {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	slides := store.NewSlideRegistry(db)
	markers := store.NewMarkerStore(db)
	outbox := store.NewOutboxStore(db)
	bus := events.New()

	var uploader *objstore.Uploader
	if backend != nil {
		uploader = objstore.New(backend, 4)
	}

	fa := &fakeAdapter{pyramidLevels: pyramidLevels}
	storage := cmn.ObjStoreConfig{Provider: "s3", Bucket: "test-bucket", Region: "us-east-1"}
	pub := NewPublisher(fa, slides, markers, outbox, uploader, bus, 2048, 6, "previews", t.TempDir(), storage)
	return pub, db, slides
}

func mustSeedSlide(t *testing.T, slides *store.SlideRegistry, id string, w, h int) {
	t.Helper()
	_, _, err := slides.Upsert(&cmn.Slide{
		SlideID: id, RawPath: "src.svs", Format: cmn.FormatSVS,
		Status: cmn.SlideReady, Width: w, Height: h, MaxLevel: cmn.MaxLevelFor(w, h),
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("seed slide: %v", err)
	}
}

func TestPublishWritesCompleteMarkerAndUploadsArtifacts(t *testing.T) {
	backend := newMemBackend()
	pub, db, slides := newTestPublisher(t, backend, []int{6, 7, 8, 9, 10, 11, 12})
	_ = db
	mustSeedSlide(t, slides, "slideA", 4096, 2048)

	res, err := pub.Publish(context.Background(), "slideA")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !res.Published || res.Skipped {
		t.Fatalf("expected a fresh publish, got %+v", res)
	}

	marker, err := pub.markers.Load("slideA")
	if err != nil {
		t.Fatalf("Load marker: %v", err)
	}
	if marker == nil || marker.Status != "complete" {
		t.Fatalf("expected complete marker, got %+v", marker)
	}
	if marker.EventID == "" {
		t.Fatalf("expected marker to carry the outbox event id")
	}
	if backend.puts == 0 {
		t.Fatalf("expected artifacts to be uploaded")
	}
}

func TestPublishIsIdempotentWhenUnchanged(t *testing.T) {
	backend := newMemBackend()
	pub, _, slides := newTestPublisher(t, backend, []int{6, 7, 8, 9, 10, 11, 12})
	mustSeedSlide(t, slides, "slideA", 4096, 2048)

	if _, err := pub.Publish(context.Background(), "slideA"); err != nil {
		t.Fatalf("first Publish: %v", err)
	}
	firstPuts := backend.puts

	res, err := pub.Publish(context.Background(), "slideA")
	if err != nil {
		t.Fatalf("second Publish: %v", err)
	}
	if !res.Skipped || res.Published || res.Reason != "already_published" {
		t.Fatalf("expected {published:false skipped:true reason:already_published}, got %+v", res)
	}
	if backend.puts != firstPuts {
		t.Fatalf("expected second publish to skip re-upload, puts went from %d to %d", firstPuts, backend.puts)
	}
}

func TestPublishWithNilUploaderStillWritesMarker(t *testing.T) {
	pub, _, slides := newTestPublisher(t, nil, []int{6, 7, 8, 9, 10, 11, 12})
	mustSeedSlide(t, slides, "slideA", 4096, 2048)

	if _, err := pub.Publish(context.Background(), "slideA"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	marker, err := pub.markers.Load("slideA")
	if err != nil {
		t.Fatalf("Load marker: %v", err)
	}
	if marker == nil || marker.Status != "complete" {
		t.Fatalf("expected complete marker even without a remote uploader, got %+v", marker)
	}
}
