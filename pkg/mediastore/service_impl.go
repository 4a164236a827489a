package mediastore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-media/pkg/mediastore/objectkey"
	"github.com/tendant/simple-media/pkg/mediastore/urlstrategy"
)

// DefaultAPIBaseURL is the base used by the default content-based URL strategy
const DefaultAPIBaseURL = "/api/v1"

// service implements the Service interface
type service struct {
	repository    Repository
	mu            sync.RWMutex
	blobStores    map[MediaKind]BlobStore
	keyGenerator  objectkey.Generator
	urlStrategy   urlstrategy.URLStrategy
	eventSink     EventSink
	listCache     ListCache
	logger        *slog.Logger
	evictOnUnlink bool
	now           func() time.Time
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the blob store serving one media kind partition
func WithBlobStore(kind MediaKind, store BlobStore) Option {
	return func(s *service) {
		if s.blobStores == nil {
			s.blobStores = make(map[MediaKind]BlobStore)
		}
		s.blobStores[kind] = store
	}
}

// WithKeyGenerator sets the storage key generator
func WithKeyGenerator(g objectkey.Generator) Option {
	return func(s *service) {
		s.keyGenerator = g
	}
}

// WithURLStrategy sets the strategy deriving public URLs from storage keys
func WithURLStrategy(strategy urlstrategy.URLStrategy) Option {
	return func(s *service) {
		s.urlStrategy = strategy
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithListCache sets the read-through cache for owner media lists
func WithListCache(cache ListCache) Option {
	return func(s *service) {
		s.listCache = cache
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithEvictOnUnlink makes link removal evict assets left unreferenced
func WithEvictOnUnlink(enabled bool) Option {
	return func(s *service) {
		s.evictOnUnlink = enabled
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		blobStores: make(map[MediaKind]BlobStore),
		now:        time.Now,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.keyGenerator == nil {
		s.keyGenerator = objectkey.NewFlatGenerator()
	}
	if s.urlStrategy == nil {
		s.urlStrategy = urlstrategy.NewContentBasedStrategy(DefaultAPIBaseURL)
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s, nil
}

// Asset registry

// ResolveAsset returns the registry row for the content, creating the blob
// and the row on first sight. The boolean reports whether an existing row
// was reused.
func (s *service) ResolveAsset(ctx context.Context, req ResolveAssetRequest) (*MediaAsset, bool, error) {
	if !req.MediaKind.Valid() {
		return nil, false, ErrUnsupportedMediaKind
	}

	hash := Hash(req.Data)

	existing, err := s.repository.GetAssetByHash(ctx, hash)
	if err == nil {
		return existing, true, nil
	}
	if !errors.Is(err, ErrAssetNotFound) {
		return nil, false, &AssetError{ContentHash: hash, Op: "lookup", Err: err}
	}

	backend, err := s.GetBackend(req.MediaKind)
	if err != nil {
		return nil, false, err
	}

	key := s.keyGenerator.GenerateKey(&objectkey.KeyMetadata{
		FileName:  req.FileName,
		MediaKind: string(req.MediaKind),
	})
	url, err := s.urlStrategy.AssetURL(string(req.MediaKind), key)
	if err != nil {
		return nil, false, &AssetError{ContentHash: hash, Op: "derive_url", Err: err}
	}

	if err := backend.Put(ctx, key, req.Data, req.ContentType); err != nil {
		return nil, false, blobWriteError(req.MediaKind, key, err)
	}

	asset := &MediaAsset{
		ID:          uuid.New(),
		ContentHash: hash,
		StorageKey:  key,
		SizeBytes:   int64(len(req.Data)),
		MediaKind:   req.MediaKind,
		URL:         url,
		ContentType: req.ContentType,
		CreatedAt:   s.now().UTC(),
	}

	err = s.repository.CreateAsset(ctx, asset)
	switch {
	case err == nil:
		s.fire(ctx, "asset_created", func(ctx context.Context) error {
			return s.eventSink.AssetCreated(ctx, asset)
		})
		return asset, false, nil

	case errors.Is(err, ErrDuplicateHash):
		// A concurrent upload registered the same content first. Its blob is
		// canonical; ours stays behind as an orphan.
		s.logger.Warn("content registered concurrently, orphaning blob",
			"content_hash", hash, "media_kind", req.MediaKind, "storage_key", key)
		winner, err := s.repository.GetAssetByHash(ctx, hash)
		if err != nil {
			return nil, false, &AssetError{ContentHash: hash, Op: "reread", Err: err}
		}
		return winner, true, nil

	default:
		// The blob is already written and is not rolled back.
		s.logger.Error("registry insert failed after blob write, orphaning blob",
			"content_hash", hash, "media_kind", req.MediaKind, "storage_key", key, "error", err)
		return nil, false, &AssetError{AssetID: asset.ID, ContentHash: hash, Op: "create", Err: err}
	}
}

func (s *service) GetAsset(ctx context.Context, id uuid.UUID) (*MediaAsset, error) {
	return s.repository.GetAsset(ctx, id)
}

// Upload orchestration

// AttachFiles processes files sequentially, in order. A failing file is
// reported in the result and never aborts the batch. Cancellation of ctx
// stops the batch and returns the files committed so far with ctx's error.
func (s *service) AttachFiles(ctx context.Context, ownerID int64, files []UploadFile) (*AttachResult, error) {
	if ownerID <= 0 {
		return nil, ErrInvalidOwnerID
	}

	result := &AttachResult{
		OwnerID:  ownerID,
		Attached: []AttachedFile{},
		Errors:   []FileError{},
	}
	defer func() {
		if len(result.Attached) > 0 {
			s.invalidate(ctx, ownerID)
		}
	}()

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		attached, err := s.attachOne(ctx, ownerID, file)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			s.logger.Warn("file not attached",
				"owner_id", ownerID, "file_name", file.FileName, "error", err)
			result.Errors = append(result.Errors, FileError{
				FileName: file.FileName,
				Reason:   failureReason(err),
				Err:      err,
			})
			continue
		}
		result.Attached = append(result.Attached, *attached)
	}

	s.logger.Info("files attached",
		"owner_id", ownerID, "attached", len(result.Attached), "failed", len(result.Errors))
	return result, nil
}

func (s *service) attachOne(ctx context.Context, ownerID int64, file UploadFile) (*AttachedFile, error) {
	kind, contentType, err := DetectMediaKind(file.ContentType, file.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, contentType)
	}

	req := ResolveAssetRequest{
		Data:        file.Data,
		MediaKind:   kind,
		FileName:    file.FileName,
		ContentType: contentType,
	}

	asset, reused, err := s.ResolveAsset(ctx, req)
	if err != nil {
		return nil, err
	}

	link, err := s.repository.AppendLink(ctx, ownerID, asset.ID)
	if errors.Is(err, ErrAssetNotFound) {
		// The asset was evicted between resolve and append; resolve again.
		asset, reused, err = s.ResolveAsset(ctx, req)
		if err != nil {
			return nil, err
		}
		link, err = s.repository.AppendLink(ctx, ownerID, asset.ID)
	}
	if err != nil {
		return nil, &LinkError{OwnerID: ownerID, Op: "append", Err: err}
	}

	s.fire(ctx, "link_attached", func(ctx context.Context) error {
		return s.eventSink.LinkAttached(ctx, link, reused)
	})

	return &AttachedFile{
		FileName:     file.FileName,
		AssetID:      asset.ID,
		LinkID:       link.ID,
		DisplayOrder: link.DisplayOrder,
		URL:          asset.URL,
		Reused:       reused,
	}, nil
}

// failureReason maps a per-file error to the message reported to callers.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedMediaKind):
		return err.Error()
	case errors.Is(err, ErrBlobWriteFailed):
		return ErrBlobWriteFailed.Error()
	case errors.Is(err, ErrStorageBackendNotFound):
		return err.Error()
	default:
		return "registry write failed"
	}
}

// Ordering

func (s *service) SetThumbnail(ctx context.Context, ownerID int64, linkID uuid.UUID) error {
	if ownerID <= 0 {
		return ErrInvalidOwnerID
	}

	if err := s.repository.SetThumbnail(ctx, ownerID, linkID); err != nil {
		return &LinkError{OwnerID: ownerID, LinkID: linkID, Op: "set_thumbnail", Err: err}
	}
	s.invalidate(ctx, ownerID)

	s.fire(ctx, "thumbnail_changed", func(ctx context.Context) error {
		return s.eventSink.ThumbnailChanged(ctx, ownerID, linkID)
	})
	return nil
}

func (s *service) ListMedia(ctx context.Context, ownerID int64) ([]*MediaItem, error) {
	if ownerID <= 0 {
		return nil, ErrInvalidOwnerID
	}

	cacheable := false
	var gen uint64
	if s.listCache != nil {
		items, ok, err := s.listCache.Get(ctx, ownerID)
		if err != nil {
			s.logger.Warn("media list cache read failed", "owner_id", ownerID, "error", err)
		} else if ok {
			return items, nil
		}
		// The generation must be read before the repository so that a
		// mutation committing during the read invalidates this write.
		if gen, err = s.listCache.Generation(ctx, ownerID); err != nil {
			s.logger.Warn("media list cache generation read failed", "owner_id", ownerID, "error", err)
		} else {
			cacheable = true
		}
	}

	items, err := s.repository.ListMedia(ctx, ownerID)
	if err != nil {
		return nil, &LinkError{OwnerID: ownerID, Op: "list", Err: err}
	}
	if items == nil {
		items = []*MediaItem{}
	}
	for i, item := range items {
		item.IsThumbnail = i == 0
	}

	if cacheable {
		if err := s.listCache.Set(ctx, ownerID, gen, items); err != nil {
			s.logger.Warn("media list cache write failed", "owner_id", ownerID, "error", err)
		}
	}
	return items, nil
}

// Thumbnail returns the owner's item with the lowest display order. Ties are
// broken by creation time, then link id.
func (s *service) Thumbnail(ctx context.Context, ownerID int64) (*MediaItem, error) {
	items, err := s.ListMedia(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, &LinkError{OwnerID: ownerID, Op: "thumbnail", Err: ErrLinkNotFound}
	}
	return items[0], nil
}

// Unreference and eviction

func (s *service) RemoveLink(ctx context.Context, ownerID int64, linkID uuid.UUID) error {
	if ownerID <= 0 {
		return ErrInvalidOwnerID
	}

	link, err := s.repository.DeleteLink(ctx, ownerID, linkID)
	if err != nil {
		return &LinkError{OwnerID: ownerID, LinkID: linkID, Op: "delete", Err: err}
	}
	s.invalidate(ctx, ownerID)

	s.fire(ctx, "link_removed", func(ctx context.Context) error {
		return s.eventSink.LinkRemoved(ctx, link)
	})

	if s.evictOnUnlink {
		s.tryEvict(ctx, link.AssetID)
	}
	return nil
}

func (s *service) DeleteOwner(ctx context.Context, ownerID int64) (int, error) {
	if ownerID <= 0 {
		return 0, ErrInvalidOwnerID
	}

	var assetIDs []uuid.UUID
	if s.evictOnUnlink {
		items, err := s.repository.ListMedia(ctx, ownerID)
		if err != nil {
			return 0, &LinkError{OwnerID: ownerID, Op: "delete_owner", Err: err}
		}
		for _, item := range items {
			assetIDs = append(assetIDs, item.AssetID)
		}
	}

	n, err := s.repository.DeleteOwner(ctx, ownerID)
	if err != nil {
		return 0, &LinkError{OwnerID: ownerID, Op: "delete_owner", Err: err}
	}
	s.invalidate(ctx, ownerID)
	s.logger.Info("owner media deleted", "owner_id", ownerID, "links", n)

	for _, id := range assetIDs {
		s.tryEvict(ctx, id)
	}
	return n, nil
}

// EvictUnreferenced deletes assets that have had no links for at least
// olderThan since creation, then their blobs. It returns how many registry
// rows were removed.
func (s *service) EvictUnreferenced(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().UTC().Add(-olderThan)
	assets, err := s.repository.ListUnreferencedAssets(ctx, cutoff)
	if err != nil {
		return 0, &AssetError{Op: "list_unreferenced", Err: err}
	}

	evicted := 0
	for _, asset := range assets {
		if err := ctx.Err(); err != nil {
			return evicted, err
		}
		ok, err := s.evict(ctx, asset)
		if err != nil {
			return evicted, err
		}
		if ok {
			evicted++
		}
	}

	s.logger.Info("unreferenced assets evicted", "candidates", len(assets), "evicted", evicted)
	return evicted, nil
}

func (s *service) tryEvict(ctx context.Context, assetID uuid.UUID) {
	asset, err := s.repository.GetAsset(ctx, assetID)
	if err != nil {
		if !errors.Is(err, ErrAssetNotFound) {
			s.logger.Warn("asset lookup for eviction failed", "asset_id", assetID, "error", err)
		}
		return
	}
	if _, err := s.evict(ctx, asset); err != nil {
		s.logger.Warn("asset eviction failed", "asset_id", assetID, "error", err)
	}
}

// evict removes the registry row first, guarded by the repository's
// still-unreferenced check, and only then deletes the blob. It reports false
// when the asset gained a reference in the meantime.
func (s *service) evict(ctx context.Context, asset *MediaAsset) (bool, error) {
	err := s.repository.DeleteAsset(ctx, asset.ID)
	if errors.Is(err, ErrAssetReferenced) || errors.Is(err, ErrAssetNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &AssetError{AssetID: asset.ID, Op: "delete", Err: err}
	}

	backend, err := s.GetBackend(asset.MediaKind)
	if err == nil {
		err = backend.Delete(ctx, asset.StorageKey)
	}
	if err != nil {
		s.logger.Warn("blob delete failed, orphaning blob",
			"asset_id", asset.ID, "media_kind", asset.MediaKind, "storage_key", asset.StorageKey, "error", err)
	}

	s.fire(ctx, "asset_evicted", func(ctx context.Context) error {
		return s.eventSink.AssetEvicted(ctx, asset)
	})
	return true, nil
}

// Retrieval

// OpenBlob looks the key up in the image partition first, then the video
// partition. It does not consult the registry.
func (s *service) OpenBlob(ctx context.Context, storageKey string) (io.ReadCloser, MediaKind, error) {
	for _, kind := range MediaKinds {
		backend, err := s.GetBackend(kind)
		if err != nil {
			continue
		}
		rc, err := backend.Get(ctx, storageKey)
		if err == nil {
			return rc, kind, nil
		}
		if !errors.Is(err, ErrBlobNotFound) {
			return nil, "", &StorageError{Kind: kind, Key: storageKey, Op: "get", Err: err}
		}
	}
	return nil, "", ErrBlobNotFound
}

// Storage backend operations

func (s *service) RegisterBackend(kind MediaKind, store BlobStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobStores[kind] = store
}

func (s *service) GetBackend(kind MediaKind) (BlobStore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	backend, exists := s.blobStores[kind]
	if !exists || backend == nil {
		return nil, fmt.Errorf("%w: %s", ErrStorageBackendNotFound, kind)
	}
	return backend, nil
}

// Helper methods

func (s *service) invalidate(ctx context.Context, ownerID int64) {
	if s.listCache == nil {
		return
	}
	// Invalidation must happen even if the caller's context was cancelled
	// after the mutation committed.
	if err := s.listCache.Invalidate(context.WithoutCancel(ctx), ownerID); err != nil {
		s.logger.Error("media list cache invalidation failed", "owner_id", ownerID, "error", err)
	}
}

// fire delivers an event; sink errors are logged and never fail the caller.
func (s *service) fire(ctx context.Context, event string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		s.logger.Warn("event sink failed", "event", event, "error", err)
	}
}
