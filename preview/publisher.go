package preview

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pathlake/slideagent/cmn"
	"github.com/pathlake/slideagent/cmn/cos"
	"github.com/pathlake/slideagent/cmn/nlog"
	"github.com/pathlake/slideagent/events"
	"github.com/pathlake/slideagent/hashing"
	"github.com/pathlake/slideagent/imaging"
	"github.com/pathlake/slideagent/objstore"
	"github.com/pathlake/slideagent/store"
)

// Publisher orchestrates spec.md §4.9's rebased preview publish: a
// bounded-resolution pyramid generated independently of the full-res tile
// pipeline, published idempotently to object storage via a per-slide
// marker in MarkerStore.
type Publisher struct {
	adapter      imaging.Adapter
	slides       *store.SlideRegistry
	markers      *store.MarkerStore
	outbox       *store.OutboxStore
	uploader     *objstore.Uploader
	bus          *events.Bus
	targetMaxDim int
	requestedLvl int
	remotePrefix string
	workRoot     string
	storage      cmn.ObjStoreConfig
	log          *nlog.Logger
}

func NewPublisher(adapter imaging.Adapter, slides *store.SlideRegistry, markers *store.MarkerStore, outbox *store.OutboxStore, uploader *objstore.Uploader, bus *events.Bus, targetMaxDim, requestedLevel int, remotePrefix, workRoot string, storage cmn.ObjStoreConfig) *Publisher {
	if targetMaxDim <= 0 {
		targetMaxDim = DefaultTargetMaxDim
	}
	if requestedLevel <= 0 {
		requestedLevel = DefaultRequestedMaxLevel
	}
	return &Publisher{
		adapter: adapter, slides: slides, markers: markers, outbox: outbox,
		uploader: uploader, bus: bus, targetMaxDim: targetMaxDim,
		requestedLvl: requestedLevel, remotePrefix: remotePrefix, workRoot: workRoot,
		storage: storage,
		log:     nlog.Named("preview"),
	}
}

// PublishResult is spec.md §8's literal republish contract: callers can
// distinguish "published now" from "skipped, already published" without
// relying on side effects.
type PublishResult struct {
	Published bool
	Skipped   bool
	Reason    string
}

// Publish implements spec.md §4.9's idempotency check followed by the
// publish procedure. It is safe to call repeatedly for the same slide: a
// prior complete publish whose hashes and level parameters still match is
// a no-op.
func (p *Publisher) Publish(ctx context.Context, slideID string) (PublishResult, error) {
	slide, err := p.slides.Get(slideID)
	if err != nil {
		return PublishResult{}, err
	}

	rebasedW, rebasedH := RebasedDimensions(slide.Width, slide.Height, p.targetMaxDim)
	rebasedMaxLevel := RebasedMaxLevel(rebasedW, rebasedH, p.requestedLvl)

	workDir := filepath.Join(p.workRoot, slideID+"_preview_tmp")
	cos.RemoveIfExists(workDir)
	defer cos.RemoveIfExists(workDir)

	pyramid, err := generateLocal(ctx, p.adapter, slide.RawPath, workDir, rebasedW, rebasedH, rebasedMaxLevel)
	if err != nil {
		return PublishResult{}, err
	}

	thumbHash, err := hashFile(pyramid.thumb)
	if err != nil {
		return PublishResult{}, err
	}
	manifest := previewManifest{
		Protocol: "dzi", TileSize: cmn.TileSize, Overlap: 0, Format: "jpg",
		Width: rebasedW, Height: rebasedH, LevelMin: 0, LevelMax: rebasedMaxLevel,
		TilePathPattern: "tiles/{z}/{x}_{y}.jpg",
		TileURLTemplate: "/v1/slides/" + slideID + "/tiles/{z}/{x}/{y}.jpg",
		OnDemand:        false,
		AppMag:          slide.AppMag, MPP: slide.MPP,
		OriginalWidth: slide.Width, OriginalHeight: slide.Height, OriginalLevelMax: slide.MaxLevel,
		Storage: previewStorageInfo{
			Provider: p.storage.Provider, Bucket: p.storage.Bucket,
			Region: p.storage.Region, Endpoint: p.storage.Endpoint,
			Prefix: p.remotePrefix + "/" + slideID,
		},
		TilesPrefix: p.remotePrefix + "/" + slideID + "/tiles",
	}
	manifestPath := filepath.Join(workDir, "manifest.json")
	if err := writePreviewManifest(manifestPath, manifest); err != nil {
		return PublishResult{}, err
	}
	manifestHash, err := hashFile(manifestPath)
	if err != nil {
		return PublishResult{}, err
	}
	tiles, err := tileIndex(pyramid.dir)
	if err != nil {
		return PublishResult{}, err
	}
	tilesHash, err := hashTileIndex(tiles)
	if err != nil {
		return PublishResult{}, err
	}

	existing, err := p.markers.Load(slideID)
	if err != nil {
		return PublishResult{}, err
	}
	if existing != nil && existing.Status == "complete" &&
		existing.MaxLevel == rebasedMaxLevel && existing.TargetMaxDim == p.targetMaxDim &&
		existing.ThumbHash == thumbHash && existing.ManifestHash == manifestHash && existing.TilesHash == tilesHash {
		p.log.Infof("preview already published and unchanged for %s, skipping", slideID)
		return PublishResult{Published: false, Skipped: true, Reason: "already_published"}, nil
	}

	now := time.Now()
	marker := &cmn.PublicationMarker{
		SlideID: slideID, Status: "incomplete", StartedAt: now,
		MaxLevel: rebasedMaxLevel, TargetMaxDim: p.targetMaxDim,
		ThumbHash: thumbHash, ManifestHash: manifestHash, TilesHash: tilesHash,
	}
	if err := p.markers.Save(marker); err != nil {
		return PublishResult{}, err
	}

	if pubErr := p.publishArtifacts(ctx, slideID, pyramid, manifestPath, tiles); pubErr != nil {
		failedAt := time.Now()
		marker.FailedAt = &failedAt
		marker.Status = "incomplete"
		marker.Error = pubErr.Error()
		if saveErr := p.markers.Save(marker); saveErr != nil {
			p.log.Errorf("failed to persist failed publish marker for %s: %v", slideID, saveErr)
		}
		return PublishResult{}, pubErr
	}

	ev, err := p.outbox.Append("preview", slideID, "published", map[string]interface{}{
		"maxLevel":     rebasedMaxLevel,
		"targetMaxDim": p.targetMaxDim,
	})
	if err != nil {
		return PublishResult{}, err
	}
	p.bus.Emit(events.Event{Kind: events.KindPreviewPublished, EntityID: slideID, Data: map[string]interface{}{
		"maxLevel": rebasedMaxLevel,
	}})

	publishedAt := time.Now()
	marker.Status = "complete"
	marker.PublishedAt = &publishedAt
	marker.FailedAt = nil
	marker.Error = ""
	marker.EventID = ev.ID
	if err := p.markers.Save(marker); err != nil {
		return PublishResult{}, err
	}
	return PublishResult{Published: true}, nil
}

// publishArtifacts uploads the thumbnail, manifest and tile tree under
// remotePrefix/slideID/. A nil uploader (no object store configured) is
// treated as a local-only publish: the artifacts were already generated
// on disk by generateLocal, there's simply nowhere remote to ship them.
func (p *Publisher) publishArtifacts(ctx context.Context, slideID string, pyramid *localPyramid, manifestPath string, tiles []string) error {
	if p.uploader == nil {
		return nil
	}
	prefix := p.remotePrefix + "/" + slideID

	thumbBody, err := os.ReadFile(pyramid.thumb)
	if err != nil {
		return cmn.NewError("preview.publish", cmn.KindIO, "read thumb", err)
	}
	if err := p.uploader.Put(ctx, objstore.Object{Key: prefix + "/thumb.jpg", Body: thumbBody, ContentType: "image/jpeg"}); err != nil {
		return err
	}

	manifestBody, err := os.ReadFile(manifestPath)
	if err != nil {
		return cmn.NewError("preview.publish", cmn.KindIO, "read manifest", err)
	}
	if err := p.uploader.Put(ctx, objstore.Object{Key: prefix + "/manifest.json", Body: manifestBody, ContentType: "application/json"}); err != nil {
		return err
	}

	var objs []objstore.Object
	for _, rel := range tiles {
		body, err := os.ReadFile(filepath.Join(pyramid.dir, rel))
		if err != nil {
			return cmn.NewError("preview.publish", cmn.KindIO, "read tile", err)
		}
		objs = append(objs, objstore.Object{Key: prefix + "/tiles/" + rel, Body: body, ContentType: "image/jpeg"})
	}
	results := p.uploader.BulkPut(ctx, objs)
	for _, r := range results {
		if r.Err != nil {
			return cmn.NewError("preview.publish", cmn.KindTransient, "tile upload failed: "+r.Key, r.Err)
		}
	}
	return nil
}

func hashFile(path string) (string, error) {
	return hashing.DigestFile(path)
}

// hashTileIndex hashes the sorted list of relative tile paths — the
// rebased tile set's identity, not the byte content of every tile, so an
// unchanged pyramid layout is detected without rereading every file.
func hashTileIndex(tiles []string) (string, error) {
	joined := strings.Join(tiles, "\n")
	return hashing.DigestReader(strings.NewReader(joined))
}

// previewManifest is the remote preview manifest of spec.md §6: same
// schema as the local deep-zoom manifest but describing the rebased
// pyramid, plus original-resolution and storage-location bookkeeping the
// viewer needs to resolve tiles against the right bucket/prefix.
type previewManifest struct {
	Protocol        string   `json:"protocol"`
	TileSize        int      `json:"tileSize"`
	Overlap         int      `json:"overlap"`
	Format          string   `json:"format"`
	Width           int      `json:"width"`
	Height          int      `json:"height"`
	LevelMin        int      `json:"levelMin"`
	LevelMax        int      `json:"levelMax"`
	TilePathPattern string   `json:"tilePathPattern"`
	TileURLTemplate string   `json:"tileUrlTemplate"`
	OnDemand        bool     `json:"onDemand"`
	AppMag          *float64 `json:"appMag"`
	MPP             *float64 `json:"mpp"`

	OriginalWidth    int                `json:"originalWidth"`
	OriginalHeight   int                `json:"originalHeight"`
	OriginalLevelMax int                `json:"originalLevelMax"`
	Storage          previewStorageInfo `json:"storage"`
	TilesPrefix      string             `json:"tilesPrefix"`
}

type previewStorageInfo struct {
	Provider string `json:"provider"`
	Bucket   string `json:"bucket"`
	Region   string `json:"region"`
	Endpoint string `json:"endpoint"`
	Prefix   string `json:"prefix"`
}

func writePreviewManifest(path string, m previewManifest) error {
	buf, err := json.MarshalIndent(&m, "", "  ")
	if err != nil {
		return cmn.NewError("preview.manifest", cmn.KindIO, "marshal", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return cmn.NewError("preview.manifest", cmn.KindIO, "write", err)
	}
	return nil
}
