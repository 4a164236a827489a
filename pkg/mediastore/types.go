package mediastore

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// MediaKind is the domain type for the blob partition an asset lives in.
type MediaKind string

// Media kind constants (typed).
const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// MediaKinds lists the supported kinds in retrieval order.
var MediaKinds = []MediaKind{MediaKindImage, MediaKindVideo}

// Valid reports whether k is a supported media kind.
func (k MediaKind) Valid() bool {
	return k == MediaKindImage || k == MediaKindVideo
}

// Thumbnail display orders written by SetThumbnail.
const (
	ThumbnailOrder = 0
	DemotedOrder   = 1
)

// MediaAsset is a registry row: one physical blob per distinct content hash.
//
// StorageKey is generated independently of ContentHash so URLs never leak
// content fingerprints. Rows are never mutated after creation.
type MediaAsset struct {
	ID          uuid.UUID `json:"id"`
	ContentHash string    `json:"content_hash"`
	StorageKey  string    `json:"storage_key"`
	SizeBytes   int64     `json:"size_bytes"`
	MediaKind   MediaKind `json:"media_kind"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// OwnershipLink associates an owner with a registry asset at a display order.
type OwnershipLink struct {
	ID           uuid.UUID `json:"id"`
	OwnerID      int64     `json:"owner_id"`
	AssetID      uuid.UUID `json:"asset_id"`
	DisplayOrder int       `json:"display_order"`
	CreatedAt    time.Time `json:"created_at"`
}

// MediaItem is the read projection of a link joined with its asset.
type MediaItem struct {
	LinkID       uuid.UUID `json:"link_id"`
	AssetID      uuid.UUID `json:"asset_id"`
	OwnerID      int64     `json:"owner_id"`
	URL          string    `json:"url"`
	MediaKind    MediaKind `json:"media_kind"`
	DisplayOrder int       `json:"display_order"`
	SizeBytes    int64     `json:"size_bytes"`
	IsThumbnail  bool      `json:"is_thumbnail"`
	CreatedAt    time.Time `json:"created_at"`
}

// UploadFile is a single file handed to AttachFiles.
type UploadFile struct {
	FileName    string
	ContentType string // declared by the client
	Data        []byte
}

// AttachedFile describes one successfully attached file.
type AttachedFile struct {
	FileName     string    `json:"file_name"`
	AssetID      uuid.UUID `json:"asset_id"`
	LinkID       uuid.UUID `json:"link_id"`
	DisplayOrder int       `json:"display_order"`
	URL          string    `json:"url"`
	Reused       bool      `json:"reused"`
}

// FileError describes one file that could not be attached.
type FileError struct {
	FileName string `json:"file_name"`
	Reason   string `json:"reason"`
	Err      error  `json:"-"`
}

// AttachResult is the per-file outcome of an AttachFiles batch.
type AttachResult struct {
	OwnerID  int64          `json:"owner_id"`
	Attached []AttachedFile `json:"attached"`
	Errors   []FileError    `json:"errors"`
}

// AssetIDs returns the asset ids of the attached files in batch order.
func (r *AttachResult) AssetIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.Attached))
	for _, a := range r.Attached {
		ids = append(ids, a.AssetID)
	}
	return ids
}

// SortMediaItems orders items by display order, then creation time, then
// link id. The first item is the owner's thumbnail.
func SortMediaItems(items []*MediaItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.DisplayOrder != b.DisplayOrder {
			return a.DisplayOrder < b.DisplayOrder
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.LinkID.String() < b.LinkID.String()
	})
}
