package mediastore

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// BlobStore defines the interface for a single blob partition.
// Stores never inspect content; they only store and retrieve by key.
type BlobStore interface {
	// Put stores data under key. Re-putting the same key with the same
	// bytes must be safe.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get opens the blob stored under key. Missing keys yield ErrBlobNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the blob stored under key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}

// AssetRegistry persists MediaAsset rows keyed by a unique content hash.
type AssetRegistry interface {
	// CreateAsset inserts a new row. It returns ErrDuplicateHash when the
	// content hash is already registered and leaves the registry unchanged.
	CreateAsset(ctx context.Context, asset *MediaAsset) error
	GetAsset(ctx context.Context, id uuid.UUID) (*MediaAsset, error)
	GetAssetByHash(ctx context.Context, contentHash string) (*MediaAsset, error)

	// ListUnreferencedAssets returns assets with no ownership links that
	// were created before the given time, oldest first, then by id.
	ListUnreferencedAssets(ctx context.Context, createdBefore time.Time) ([]*MediaAsset, error)

	// DeleteAsset removes the row only if no link references it; otherwise
	// it returns ErrAssetReferenced.
	DeleteAsset(ctx context.Context, id uuid.UUID) error
}

// OwnershipLedger persists OwnershipLink rows and their display order.
type OwnershipLedger interface {
	// AppendLink atomically assigns the owner's next display order and
	// inserts the link. It returns ErrAssetNotFound if the asset is gone.
	AppendLink(ctx context.Context, ownerID int64, assetID uuid.UUID) (*OwnershipLink, error)
	GetLink(ctx context.Context, id uuid.UUID) (*OwnershipLink, error)

	// ListMedia returns the owner's links joined with their assets, ordered
	// by display order, then creation time, then link id.
	ListMedia(ctx context.Context, ownerID int64) ([]*MediaItem, error)

	// SetThumbnail demotes every link of the owner to DemotedOrder and
	// promotes linkID to ThumbnailOrder in a single transaction.
	SetThumbnail(ctx context.Context, ownerID int64, linkID uuid.UUID) error

	// DeleteLink removes one link of the owner and returns it.
	DeleteLink(ctx context.Context, ownerID int64, linkID uuid.UUID) (*OwnershipLink, error)

	// DeleteOwner removes every link of the owner and returns how many.
	DeleteOwner(ctx context.Context, ownerID int64) (int, error)
}

// Repository combines the registry and the ledger. Implementations keep
// content hashes unique and display orders consistent inside their own
// transactions; the service holds no locks.
type Repository interface {
	AssetRegistry
	OwnershipLedger
}

// EventSink defines the interface for event handling
type EventSink interface {
	// AssetCreated is fired when new content is registered
	AssetCreated(ctx context.Context, asset *MediaAsset) error

	// LinkAttached is fired when a file is attached to an owner
	LinkAttached(ctx context.Context, link *OwnershipLink, reused bool) error

	// ThumbnailChanged is fired after a thumbnail swap commits
	ThumbnailChanged(ctx context.Context, ownerID int64, linkID uuid.UUID) error

	// LinkRemoved is fired when a link is removed
	LinkRemoved(ctx context.Context, link *OwnershipLink) error

	// AssetEvicted is fired when an unreferenced asset is deleted
	AssetEvicted(ctx context.Context, asset *MediaAsset) error
}

// ListCache caches owner media lists. Entries are a projection of the
// repository and are invalidated on every mutating call.
//
// Each owner has a generation that Invalidate advances. A reader takes the
// generation before loading from the repository and passes it to Set, which
// drops the write if an invalidation happened in between.
type ListCache interface {
	// Get returns the cached list and whether it was present.
	Get(ctx context.Context, ownerID int64) ([]*MediaItem, bool, error)
	Generation(ctx context.Context, ownerID int64) (uint64, error)

	// Set stores items only while the owner's generation still equals gen.
	Set(ctx context.Context, ownerID int64, gen uint64, items []*MediaItem) error
	Invalidate(ctx context.Context, ownerID int64) error
}
