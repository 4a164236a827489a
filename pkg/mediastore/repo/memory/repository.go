package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-media/pkg/mediastore"
)

// Repository implements mediastore.Repository using in-memory storage.
// A single mutex serializes writers, which gives every operation the
// atomicity the ledger requires.
type Repository struct {
	mu           sync.RWMutex
	assets       map[uuid.UUID]*mediastore.MediaAsset
	assetsByHash map[string]uuid.UUID
	links        map[uuid.UUID]*mediastore.OwnershipLink
	linksByOwner map[int64][]uuid.UUID
	linkCount    map[uuid.UUID]int // asset_id -> number of links
	nextOrder    map[int64]int     // owner_id -> next display order
	now          func() time.Time
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		assets:       make(map[uuid.UUID]*mediastore.MediaAsset),
		assetsByHash: make(map[string]uuid.UUID),
		links:        make(map[uuid.UUID]*mediastore.OwnershipLink),
		linksByOwner: make(map[int64][]uuid.UUID),
		linkCount:    make(map[uuid.UUID]int),
		nextOrder:    make(map[int64]int),
		now:          time.Now,
	}
}

// Asset registry

func (r *Repository) CreateAsset(ctx context.Context, asset *mediastore.MediaAsset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.assetsByHash[asset.ContentHash]; exists {
		return mediastore.ErrDuplicateHash
	}

	assetCopy := *asset
	r.assets[asset.ID] = &assetCopy
	r.assetsByHash[asset.ContentHash] = asset.ID
	return nil
}

func (r *Repository) GetAsset(ctx context.Context, id uuid.UUID) (*mediastore.MediaAsset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	asset, exists := r.assets[id]
	if !exists {
		return nil, mediastore.ErrAssetNotFound
	}
	assetCopy := *asset
	return &assetCopy, nil
}

func (r *Repository) GetAssetByHash(ctx context.Context, contentHash string) (*mediastore.MediaAsset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.assetsByHash[contentHash]
	if !exists {
		return nil, mediastore.ErrAssetNotFound
	}
	assetCopy := *r.assets[id]
	return &assetCopy, nil
}

func (r *Repository) ListUnreferencedAssets(ctx context.Context, createdBefore time.Time) ([]*mediastore.MediaAsset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*mediastore.MediaAsset
	for id, asset := range r.assets {
		if r.linkCount[id] > 0 || !asset.CreatedAt.Before(createdBefore) {
			continue
		}
		assetCopy := *asset
		result = append(result, &assetCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return bytes.Compare(result[i].ID[:], result[j].ID[:]) < 0
	})
	return result, nil
}

func (r *Repository) DeleteAsset(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	asset, exists := r.assets[id]
	if !exists {
		return mediastore.ErrAssetNotFound
	}
	if r.linkCount[id] > 0 {
		return mediastore.ErrAssetReferenced
	}

	delete(r.assets, id)
	delete(r.assetsByHash, asset.ContentHash)
	delete(r.linkCount, id)
	return nil
}

// Ownership ledger

func (r *Repository) AppendLink(ctx context.Context, ownerID int64, assetID uuid.UUID) (*mediastore.OwnershipLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.assets[assetID]; !exists {
		return nil, mediastore.ErrAssetNotFound
	}

	order := r.nextOrder[ownerID]
	r.nextOrder[ownerID] = order + 1

	link := &mediastore.OwnershipLink{
		ID:           uuid.New(),
		OwnerID:      ownerID,
		AssetID:      assetID,
		DisplayOrder: order,
		CreatedAt:    r.now().UTC(),
	}
	r.links[link.ID] = link
	r.linksByOwner[ownerID] = append(r.linksByOwner[ownerID], link.ID)
	r.linkCount[assetID]++

	linkCopy := *link
	return &linkCopy, nil
}

func (r *Repository) GetLink(ctx context.Context, id uuid.UUID) (*mediastore.OwnershipLink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	link, exists := r.links[id]
	if !exists {
		return nil, mediastore.ErrLinkNotFound
	}
	linkCopy := *link
	return &linkCopy, nil
}

func (r *Repository) ListMedia(ctx context.Context, ownerID int64) ([]*mediastore.MediaItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.linksByOwner[ownerID]
	items := make([]*mediastore.MediaItem, 0, len(ids))
	for _, id := range ids {
		link := r.links[id]
		asset := r.assets[link.AssetID]
		items = append(items, &mediastore.MediaItem{
			LinkID:       link.ID,
			AssetID:      asset.ID,
			OwnerID:      link.OwnerID,
			URL:          asset.URL,
			MediaKind:    asset.MediaKind,
			DisplayOrder: link.DisplayOrder,
			SizeBytes:    asset.SizeBytes,
			CreatedAt:    link.CreatedAt,
		})
	}

	mediastore.SortMediaItems(items)
	return items, nil
}

func (r *Repository) SetThumbnail(ctx context.Context, ownerID int64, linkID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, exists := r.links[linkID]
	if !exists {
		return mediastore.ErrLinkNotFound
	}
	if target.OwnerID != ownerID {
		return mediastore.ErrOwnerMismatch
	}

	for _, id := range r.linksByOwner[ownerID] {
		r.links[id].DisplayOrder = mediastore.DemotedOrder
	}
	target.DisplayOrder = mediastore.ThumbnailOrder
	return nil
}

func (r *Repository) DeleteLink(ctx context.Context, ownerID int64, linkID uuid.UUID) (*mediastore.OwnershipLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	link, exists := r.links[linkID]
	if !exists {
		return nil, mediastore.ErrLinkNotFound
	}
	if link.OwnerID != ownerID {
		return nil, mediastore.ErrOwnerMismatch
	}

	r.removeLinkLocked(link)
	linkCopy := *link
	return &linkCopy, nil
}

func (r *Repository) DeleteOwner(ctx context.Context, ownerID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.linksByOwner[ownerID]
	for _, id := range ids {
		link := r.links[id]
		delete(r.links, id)
		r.decrementLocked(link.AssetID)
	}
	delete(r.linksByOwner, ownerID)
	delete(r.nextOrder, ownerID)
	return len(ids), nil
}

// Helper methods

func (r *Repository) removeLinkLocked(link *mediastore.OwnershipLink) {
	delete(r.links, link.ID)
	r.decrementLocked(link.AssetID)

	ids := r.linksByOwner[link.OwnerID]
	for i, id := range ids {
		if id == link.ID {
			r.linksByOwner[link.OwnerID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(r.linksByOwner[link.OwnerID]) == 0 {
		delete(r.linksByOwner, link.OwnerID)
	}
}

func (r *Repository) decrementLocked(assetID uuid.UUID) {
	if r.linkCount[assetID] <= 1 {
		delete(r.linkCount, assetID)
		return
	}
	r.linkCount[assetID]--
}
