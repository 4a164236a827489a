package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-media/pkg/mediastore"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketAssets     = []byte("assets")      // asset_id -> MediaAsset json
	bucketAssetHash  = []byte("asset_hash")  // content_hash -> asset_id
	bucketAssetRefs  = []byte("asset_refs")  // asset_id -> link count
	bucketLinks      = []byte("links")       // link_id -> OwnershipLink json
	bucketOwnerLinks = []byte("owner_links") // owner_id ++ link_id -> nil
	bucketOwnerNext  = []byte("owner_next")  // owner_id -> next display order
)

// Config configures the Bolt-backed repository.
type Config struct {
	Path    string
	NoSync  bool
	Timeout time.Duration
}

// Repository implements mediastore.Repository on a single bbolt file.
// Bolt allows one writer at a time, so every Update is serializable.
type Repository struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at cfg.Path.
func Open(cfg Config) (*Repository, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("boltdb: path is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: cfg.Timeout, NoSync: cfg.NoSync})
	if err != nil {
		return nil, fmt.Errorf("boltdb: open: %w", err)
	}
	r := &Repository{db: db, now: time.Now}
	if err := r.init(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) init() error {
	return r.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketAssets, bucketAssetHash, bucketAssetRefs, bucketLinks, bucketOwnerLinks, bucketOwnerNext} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("boltdb: create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
}

// Close releases the database file.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Asset registry

func (r *Repository) CreateAsset(ctx context.Context, asset *mediastore.MediaAsset) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		hashes := tx.Bucket(bucketAssetHash)
		if hashes.Get([]byte(asset.ContentHash)) != nil {
			return mediastore.ErrDuplicateHash
		}
		if err := putJSON(tx.Bucket(bucketAssets), asset.ID[:], asset); err != nil {
			return err
		}
		return hashes.Put([]byte(asset.ContentHash), asset.ID[:])
	})
}

func (r *Repository) GetAsset(ctx context.Context, id uuid.UUID) (*mediastore.MediaAsset, error) {
	var asset *mediastore.MediaAsset
	err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		asset, err = getAsset(tx, id)
		return err
	})
	return asset, err
}

func (r *Repository) GetAssetByHash(ctx context.Context, contentHash string) (*mediastore.MediaAsset, error) {
	var asset *mediastore.MediaAsset
	err := r.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketAssetHash).Get([]byte(contentHash))
		if raw == nil {
			return mediastore.ErrAssetNotFound
		}
		id, err := uuid.FromBytes(raw)
		if err != nil {
			return err
		}
		asset, err = getAsset(tx, id)
		return err
	})
	return asset, err
}

func (r *Repository) ListUnreferencedAssets(ctx context.Context, createdBefore time.Time) ([]*mediastore.MediaAsset, error) {
	var result []*mediastore.MediaAsset
	err := r.db.View(func(tx *bolt.Tx) error {
		refs := tx.Bucket(bucketAssetRefs)
		return tx.Bucket(bucketAssets).ForEach(func(k, v []byte) error {
			if refs.Get(k) != nil {
				return nil
			}
			var asset mediastore.MediaAsset
			if err := json.Unmarshal(v, &asset); err != nil {
				return err
			}
			if asset.CreatedAt.Before(createdBefore) {
				result = append(result, &asset)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	// Keys are ordered by id; callers expect oldest first.
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return bytes.Compare(result[i].ID[:], result[j].ID[:]) < 0
	})
	return result, nil
}

func (r *Repository) DeleteAsset(ctx context.Context, id uuid.UUID) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		asset, err := getAsset(tx, id)
		if err != nil {
			return err
		}
		if tx.Bucket(bucketAssetRefs).Get(id[:]) != nil {
			return mediastore.ErrAssetReferenced
		}
		if err := tx.Bucket(bucketAssets).Delete(id[:]); err != nil {
			return err
		}
		return tx.Bucket(bucketAssetHash).Delete([]byte(asset.ContentHash))
	})
}

// Ownership ledger

func (r *Repository) AppendLink(ctx context.Context, ownerID int64, assetID uuid.UUID) (*mediastore.OwnershipLink, error) {
	var link *mediastore.OwnershipLink
	err := r.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketAssets).Get(assetID[:]) == nil {
			return mediastore.ErrAssetNotFound
		}

		next := tx.Bucket(bucketOwnerNext)
		order := decodeUint64(next.Get(ownerKey(ownerID)))
		if err := next.Put(ownerKey(ownerID), encodeUint64(order+1)); err != nil {
			return err
		}

		link = &mediastore.OwnershipLink{
			ID:           uuid.New(),
			OwnerID:      ownerID,
			AssetID:      assetID,
			DisplayOrder: int(order),
			CreatedAt:    r.now().UTC(),
		}
		if err := putJSON(tx.Bucket(bucketLinks), link.ID[:], link); err != nil {
			return err
		}
		if err := tx.Bucket(bucketOwnerLinks).Put(ownerLinkKey(ownerID, link.ID), nil); err != nil {
			return err
		}
		return adjustRefs(tx, assetID, 1)
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

func (r *Repository) GetLink(ctx context.Context, id uuid.UUID) (*mediastore.OwnershipLink, error) {
	var link *mediastore.OwnershipLink
	err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		link, err = getLink(tx, id)
		return err
	})
	return link, err
}

func (r *Repository) ListMedia(ctx context.Context, ownerID int64) ([]*mediastore.MediaItem, error) {
	items := []*mediastore.MediaItem{}
	err := r.db.View(func(tx *bolt.Tx) error {
		links, err := ownerLinks(tx, ownerID)
		if err != nil {
			return err
		}
		for _, link := range links {
			asset, err := getAsset(tx, link.AssetID)
			if err != nil {
				return fmt.Errorf("boltdb: link %s: %w", link.ID, err)
			}
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
		return nil
	})
	if err != nil {
		return nil, err
	}
	mediastore.SortMediaItems(items)
	return items, nil
}

func (r *Repository) SetThumbnail(ctx context.Context, ownerID int64, linkID uuid.UUID) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		target, err := getLink(tx, linkID)
		if err != nil {
			return err
		}
		if target.OwnerID != ownerID {
			return mediastore.ErrOwnerMismatch
		}

		links, err := ownerLinks(tx, ownerID)
		if err != nil {
			return err
		}
		bucket := tx.Bucket(bucketLinks)
		for _, link := range links {
			link.DisplayOrder = mediastore.DemotedOrder
			if link.ID == linkID {
				link.DisplayOrder = mediastore.ThumbnailOrder
			}
			if err := putJSON(bucket, link.ID[:], link); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repository) DeleteLink(ctx context.Context, ownerID int64, linkID uuid.UUID) (*mediastore.OwnershipLink, error) {
	var link *mediastore.OwnershipLink
	err := r.db.Update(func(tx *bolt.Tx) error {
		var err error
		link, err = getLink(tx, linkID)
		if err != nil {
			return err
		}
		if link.OwnerID != ownerID {
			return mediastore.ErrOwnerMismatch
		}
		return deleteLink(tx, link)
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

func (r *Repository) DeleteOwner(ctx context.Context, ownerID int64) (int, error) {
	var n int
	err := r.db.Update(func(tx *bolt.Tx) error {
		links, err := ownerLinks(tx, ownerID)
		if err != nil {
			return err
		}
		for _, link := range links {
			if err := deleteLink(tx, link); err != nil {
				return err
			}
		}
		n = len(links)
		return tx.Bucket(bucketOwnerNext).Delete(ownerKey(ownerID))
	})
	return n, err
}

// Helper functions

func getAsset(tx *bolt.Tx, id uuid.UUID) (*mediastore.MediaAsset, error) {
	data := tx.Bucket(bucketAssets).Get(id[:])
	if data == nil {
		return nil, mediastore.ErrAssetNotFound
	}
	var asset mediastore.MediaAsset
	if err := json.Unmarshal(data, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

func getLink(tx *bolt.Tx, id uuid.UUID) (*mediastore.OwnershipLink, error) {
	data := tx.Bucket(bucketLinks).Get(id[:])
	if data == nil {
		return nil, mediastore.ErrLinkNotFound
	}
	var link mediastore.OwnershipLink
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

func ownerLinks(tx *bolt.Tx, ownerID int64) ([]*mediastore.OwnershipLink, error) {
	prefix := ownerKey(ownerID)
	var links []*mediastore.OwnershipLink
	c := tx.Bucket(bucketOwnerLinks).Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		id, err := uuid.FromBytes(k[len(prefix):])
		if err != nil {
			return nil, err
		}
		link, err := getLink(tx, id)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, nil
}

func deleteLink(tx *bolt.Tx, link *mediastore.OwnershipLink) error {
	if err := tx.Bucket(bucketLinks).Delete(link.ID[:]); err != nil {
		return err
	}
	if err := tx.Bucket(bucketOwnerLinks).Delete(ownerLinkKey(link.OwnerID, link.ID)); err != nil {
		return err
	}
	return adjustRefs(tx, link.AssetID, -1)
}

func adjustRefs(tx *bolt.Tx, assetID uuid.UUID, delta int64) error {
	refs := tx.Bucket(bucketAssetRefs)
	count := int64(decodeUint64(refs.Get(assetID[:]))) + delta
	if count <= 0 {
		return refs.Delete(assetID[:])
	}
	return refs.Put(assetID[:], encodeUint64(uint64(count)))
}

func putJSON(bucket *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return bucket.Put(key, data)
}

func ownerKey(ownerID int64) []byte {
	return encodeUint64(uint64(ownerID))
}

func ownerLinkKey(ownerID int64, linkID uuid.UUID) []byte {
	return append(ownerKey(ownerID), linkID[:]...)
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func decodeUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
