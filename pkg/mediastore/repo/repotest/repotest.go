// Package repotest holds the behaviour every mediastore.Repository
// implementation must share. Backends call Run from their own tests.
package repotest

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-media/pkg/mediastore"
)

// Factory returns a repository ready for use. Backends that share state
// between calls (a database) are fine: every test uses fresh owners and
// hashes.
type Factory func(t *testing.T) mediastore.Repository

// Run executes the conformance suite against repositories built by newRepo.
func Run(t *testing.T, newRepo Factory) {
	t.Run("CreateAndGetAsset", func(t *testing.T) { testCreateAndGetAsset(t, newRepo(t)) })
	t.Run("DuplicateHash", func(t *testing.T) { testDuplicateHash(t, newRepo(t)) })
	t.Run("AppendLinkOrders", func(t *testing.T) { testAppendLinkOrders(t, newRepo(t)) })
	t.Run("AppendLinkUnknownAsset", func(t *testing.T) { testAppendLinkUnknownAsset(t, newRepo(t)) })
	t.Run("OwnerIsolation", func(t *testing.T) { testOwnerIsolation(t, newRepo(t)) })
	t.Run("SetThumbnail", func(t *testing.T) { testSetThumbnail(t, newRepo(t)) })
	t.Run("SetThumbnailRejected", func(t *testing.T) { testSetThumbnailRejected(t, newRepo(t)) })
	t.Run("DeleteLink", func(t *testing.T) { testDeleteLink(t, newRepo(t)) })
	t.Run("DeleteOwner", func(t *testing.T) { testDeleteOwner(t, newRepo(t)) })
	t.Run("Unreferenced", func(t *testing.T) { testUnreferenced(t, newRepo(t)) })
	t.Run("UnreferencedOldestFirst", func(t *testing.T) { testUnreferencedOldestFirst(t, newRepo(t)) })
	t.Run("ConcurrentAppend", func(t *testing.T) { testConcurrentAppend(t, newRepo(t)) })
	t.Run("ConcurrentCreateAsset", func(t *testing.T) { testConcurrentCreateAsset(t, newRepo(t)) })
}

// OwnerID returns a random positive owner id unlikely to collide with other
// test runs against the same database.
func OwnerID() int64 {
	return rand.Int64N(1<<52) + 1
}

// NewAsset builds an unsaved asset with unique content.
func NewAsset(kind mediastore.MediaKind) *mediastore.MediaAsset {
	id := uuid.New()
	key := fmt.Sprintf("%d-%s.bin", time.Now().UnixMilli(), id.String()[:8])
	return &mediastore.MediaAsset{
		ID:          id,
		ContentHash: mediastore.Hash(id[:]),
		StorageKey:  key,
		SizeBytes:   int64(len(id)),
		MediaKind:   kind,
		URL:         "/api/v1/media/" + key,
		ContentType: "application/octet-stream",
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
}

func createAsset(t *testing.T, repo mediastore.Repository) *mediastore.MediaAsset {
	t.Helper()
	asset := NewAsset(mediastore.MediaKindImage)
	require.NoError(t, repo.CreateAsset(context.Background(), asset))
	return asset
}

func orders(items []*mediastore.MediaItem) []int {
	result := make([]int, 0, len(items))
	for _, item := range items {
		result = append(result, item.DisplayOrder)
	}
	return result
}

func testCreateAndGetAsset(t *testing.T, repo mediastore.Repository) {
	ctx := context.Background()
	asset := NewAsset(mediastore.MediaKindVideo)
	require.NoError(t, repo.CreateAsset(ctx, asset))

	got, err := repo.GetAsset(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, asset.ContentHash, got.ContentHash)
	assert.Equal(t, asset.StorageKey, got.StorageKey)
	assert.Equal(t, asset.SizeBytes, got.SizeBytes)
	assert.Equal(t, mediastore.MediaKindVideo, got.MediaKind)
	assert.Equal(t, asset.URL, got.URL)
	assert.Equal(t, asset.ContentType, got.ContentType)
	assert.WithinDuration(t, asset.CreatedAt, got.CreatedAt, time.Millisecond)

	byHash, err := repo.GetAssetByHash(ctx, asset.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, asset.ID, byHash.ID)

	_, err = repo.GetAsset(ctx, uuid.New())
	assert.ErrorIs(t, err, mediastore.ErrAssetNotFound)

	_, err = repo.GetAssetByHash(ctx, mediastore.Hash([]byte(uuid.NewString())))
	assert.ErrorIs(t, err, mediastore.ErrAssetNotFound)
}

func testDuplicateHash(t *testing.T, repo mediastore.Repository) {
	ctx := context.Background()
	first := createAsset(t, repo)

	second := NewAsset(mediastore.MediaKindImage)
	second.ContentHash = first.ContentHash
	err := repo.CreateAsset(ctx, second)
	assert.ErrorIs(t, err, mediastore.ErrDuplicateHash)

	_, err = repo.GetAsset(ctx, second.ID)
	assert.ErrorIs(t, err, mediastore.ErrAssetNotFound, "losing row must not be stored")

	got, err := repo.GetAssetByHash(ctx, first.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func testAppendLinkOrders(t *testing.T, repo mediastore.Repository) {
	ctx := context.Background()
	owner := OwnerID()
	cat := createAsset(t, repo)
	dog := createAsset(t, repo)

	for i, assetID := range []uuid.UUID{cat.ID, cat.ID, dog.ID} {
		link, err := repo.AppendLink(ctx, owner, assetID)
		require.NoError(t, err)
		assert.Equal(t, i, link.DisplayOrder)
		assert.Equal(t, owner, link.OwnerID)
		assert.Equal(t, assetID, link.AssetID)

		got, err := repo.GetLink(ctx, link.ID)
		require.NoError(t, err)
		assert.Equal(t, link.DisplayOrder, got.DisplayOrder)
	}

	items, err := repo.ListMedia(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, orders(items))
	assert.Equal(t, cat.ID, items[0].AssetID)
	assert.Equal(t, cat.ID, items[1].AssetID)
	assert.Equal(t, dog.ID, items[2].AssetID)
	assert.Equal(t, cat.URL, items[0].URL)
	assert.Equal(t, cat.MediaKind, items[0].MediaKind)
	assert.NotEqual(t, items[0].LinkID, items[1].LinkID, "same asset gets two links")

	_, err = repo.GetLink(ctx, uuid.New())
	assert.ErrorIs(t, err, mediastore.ErrLinkNotFound)
}

func testAppendLinkUnknownAsset(t *testing.T, repo mediastore.Repository) {
	ctx := context.Background()
	owner := OwnerID()

	_, err := repo.AppendLink(ctx, owner, uuid.New())
	assert.ErrorIs(t, err, mediastore.ErrAssetNotFound)

	items, err := repo.ListMedia(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func testOwnerIsolation(t *testing.T, repo mediastore.Repository) {
	ctx := context.Background()
	a, b := OwnerID(), OwnerID()
	shared := createAsset(t, repo)

	for i := 0; i < 2; i++ {
		_, err := repo.AppendLink(ctx, a, shared.ID)
		require.NoError(t, err)
	}
	link, err := repo.AppendLink(ctx, b, shared.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, link.DisplayOrder, "orders are per owner")

	itemsA, err := repo.ListMedia(ctx, a)
	require.NoError(t, err)
	itemsB, err := repo.ListMedia(ctx, b)
	require.NoError(t, err)
	assert.Len(t, itemsA, 2)
	assert.Len(t, itemsB, 1)
	for _, item := range itemsA {
		assert.Equal(t, a, item.OwnerID)
	}
}

func testSetThumbnail(t *testing.T, repo mediastore.Repository) {
	ctx := context.Background()
	owner := OwnerID()

	var links []*mediastore.OwnershipLink
	for i := 0; i < 3; i++ {
		link, err := repo.AppendLink(ctx, owner, createAsset(t, repo).ID)
		require.NoError(t, err)
		links = append(links, link)
	}

	require.NoError(t, repo.SetThumbnail(ctx, owner, links[2].ID))

	items, err := repo.ListMedia(ctx, owner)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, links[2].ID, items[0].LinkID)
	assert.Equal(t, []int{0, 1, 1}, orders(items))

	next, err := repo.AppendLink(ctx, owner, createAsset(t, repo).ID)
	require.NoError(t, err)
	assert.Equal(t, 3, next.DisplayOrder, "appends continue past the highest issued order")

	// Promoting the current thumbnail again is a no-op on the result.
	require.NoError(t, repo.SetThumbnail(ctx, owner, links[2].ID))
	require.NoError(t, repo.SetThumbnail(ctx, owner, next.ID))
	items, err = repo.ListMedia(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, next.ID, items[0].LinkID)
	assert.Equal(t, []int{0, 1, 1, 1}, orders(items))
}

func testSetThumbnailRejected(t *testing.T, repo mediastore.Repository) {
	ctx := context.Background()
	owner, other := OwnerID(), OwnerID()

	first, err := repo.AppendLink(ctx, owner, createAsset(t, repo).ID)
	require.NoError(t, err)
	_, err = repo.AppendLink(ctx, owner, createAsset(t, repo).ID)
	require.NoError(t, err)
	foreign, err := repo.AppendLink(ctx, other, createAsset(t, repo).ID)
	require.NoError(t, err)

	err = repo.SetThumbnail(ctx, owner, foreign.ID)
	assert.ErrorIs(t, err, mediastore.ErrOwnerMismatch)

	err = repo.SetThumbnail(ctx, owner, uuid.New())
	assert.ErrorIs(t, err, mediastore.ErrLinkNotFound)

	items, err := repo.ListMedia(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, orders(items), "rejected swaps leave orders untouched")
	assert.Equal(t, first.ID, items[0].LinkID)

	otherItems, err := repo.ListMedia(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, orders(otherItems))
}

func testDeleteLink(t *testing.T, repo mediastore.Repository) {
	ctx := context.Background()
	owner, other := OwnerID(), OwnerID()
	asset := createAsset(t, repo)

	link, err := repo.AppendLink(ctx, owner, asset.ID)
	require.NoError(t, err)

	_, err = repo.DeleteLink(ctx, other, link.ID)
	assert.ErrorIs(t, err, mediastore.ErrOwnerMismatch)

	removed, err := repo.DeleteLink(ctx, owner, link.ID)
	require.NoError(t, err)
	assert.Equal(t, link.ID, removed.ID)
	assert.Equal(t, asset.ID, removed.AssetID)

	_, err = repo.DeleteLink(ctx, owner, link.ID)
	assert.ErrorIs(t, err, mediastore.ErrLinkNotFound)

	_, err = repo.GetAsset(ctx, asset.ID)
	assert.NoError(t, err, "asset survives unlinking")
}

func testDeleteOwner(t *testing.T, repo mediastore.Repository) {
	ctx := context.Background()
	owner, other := OwnerID(), OwnerID()
	asset := createAsset(t, repo)

	for i := 0; i < 3; i++ {
		_, err := repo.AppendLink(ctx, owner, asset.ID)
		require.NoError(t, err)
	}
	_, err := repo.AppendLink(ctx, other, asset.ID)
	require.NoError(t, err)

	n, err := repo.DeleteOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	items, err := repo.ListMedia(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, items)

	otherItems, err := repo.ListMedia(ctx, other)
	require.NoError(t, err)
	assert.Len(t, otherItems, 1)

	n, err = repo.DeleteOwner(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, n)

	link, err := repo.AppendLink(ctx, owner, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, link.DisplayOrder, "a deleted owner starts over")
}

func testUnreferenced(t *testing.T, repo mediastore.Repository) {
	ctx := context.Background()
	owner := OwnerID()

	old := NewAsset(mediastore.MediaKindImage)
	old.CreatedAt = time.Now().UTC().Add(-2 * time.Hour).Truncate(time.Microsecond)
	require.NoError(t, repo.CreateAsset(ctx, old))

	linked := NewAsset(mediastore.MediaKindImage)
	linked.CreatedAt = old.CreatedAt
	require.NoError(t, repo.CreateAsset(ctx, linked))
	link, err := repo.AppendLink(ctx, owner, linked.ID)
	require.NoError(t, err)

	fresh := createAsset(t, repo)

	candidates, err := repo.ListUnreferencedAssets(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	ids := make(map[uuid.UUID]bool)
	for _, a := range candidates {
		ids[a.ID] = true
	}
	assert.True(t, ids[old.ID], "old unreferenced asset is a candidate")
	assert.False(t, ids[linked.ID], "linked asset is not a candidate")
	assert.False(t, ids[fresh.ID], "asset newer than the cutoff is not a candidate")

	assert.ErrorIs(t, repo.DeleteAsset(ctx, linked.ID), mediastore.ErrAssetReferenced)
	require.NoError(t, repo.DeleteAsset(ctx, old.ID))
	assert.ErrorIs(t, repo.DeleteAsset(ctx, old.ID), mediastore.ErrAssetNotFound)

	_, err = repo.GetAssetByHash(ctx, old.ContentHash)
	assert.ErrorIs(t, err, mediastore.ErrAssetNotFound)

	_, err = repo.DeleteLink(ctx, owner, link.ID)
	require.NoError(t, err)
	require.NoError(t, repo.DeleteAsset(ctx, linked.ID), "unlinked asset can be deleted")

	reused := NewAsset(mediastore.MediaKindImage)
	reused.ContentHash = old.ContentHash
	assert.NoError(t, repo.CreateAsset(ctx, reused), "evicted hash can be registered again")
}

func testConcurrentAppend(t *testing.T, repo mediastore.Repository) {
	ctx := context.Background()
	owner := OwnerID()
	asset := createAsset(t, repo)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.AppendLink(ctx, owner, asset.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	items, err := repo.ListMedia(ctx, owner)
	require.NoError(t, err)
	require.Len(t, items, n)
	for i, item := range items {
		assert.Equal(t, i, item.DisplayOrder, "orders are distinct and gap-free")
	}
}

func testConcurrentCreateAsset(t *testing.T, repo mediastore.Repository) {
	ctx := context.Background()
	hash := mediastore.Hash([]byte(uuid.NewString()))

	const n = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		dupes   int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			asset := NewAsset(mediastore.MediaKindImage)
			asset.ContentHash = hash
			err := repo.CreateAsset(ctx, asset)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case assert.ErrorIs(t, err, mediastore.ErrDuplicateHash):
				dupes++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, n-1, dupes)
}

func testUnreferencedOldestFirst(t *testing.T, repo mediastore.Repository) {
	ctx := context.Background()

	// Ids run against creation time so that key order and age order differ.
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) > 0 })

	base := time.Now().UTC().Add(-3 * time.Hour).Truncate(time.Microsecond)
	created := []time.Time{base, base.Add(time.Minute), base.Add(2 * time.Minute), base.Add(2 * time.Minute)}
	wanted := make(map[uuid.UUID]bool)
	for i, id := range ids {
		asset := NewAsset(mediastore.MediaKindVideo)
		asset.ID = id
		asset.CreatedAt = created[i]
		require.NoError(t, repo.CreateAsset(ctx, asset))
		wanted[id] = true
	}

	candidates, err := repo.ListUnreferencedAssets(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	var got []uuid.UUID
	for _, a := range candidates {
		if wanted[a.ID] {
			got = append(got, a.ID)
		}
	}
	// Equal creation times fall back to id order.
	assert.Equal(t, []uuid.UUID{ids[0], ids[1], ids[3], ids[2]}, got)
}
