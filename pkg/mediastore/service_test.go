package mediastore_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-media/pkg/mediastore"
	memorycache "github.com/tendant/simple-media/pkg/mediastore/cache/memory"
	memoryrepo "github.com/tendant/simple-media/pkg/mediastore/repo/memory"
	memorystorage "github.com/tendant/simple-media/pkg/mediastore/storage/memory"
)

type testEnv struct {
	svc    mediastore.Service
	repo   *memoryrepo.Repository
	images *memorystorage.Backend
	videos *memorystorage.Backend
}

func newTestEnv(t *testing.T, opts ...mediastore.Option) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:   memoryrepo.New(),
		images: memorystorage.New(),
		videos: memorystorage.New(),
	}
	options := append([]mediastore.Option{
		mediastore.WithRepository(env.repo),
		mediastore.WithBlobStore(mediastore.MediaKindImage, env.images),
		mediastore.WithBlobStore(mediastore.MediaKindVideo, env.videos),
	}, opts...)

	svc, err := mediastore.New(options...)
	require.NoError(t, err)
	env.svc = svc
	return env
}

func image(name, content string) mediastore.UploadFile {
	return mediastore.UploadFile{FileName: name, ContentType: "image/jpeg", Data: []byte(content)}
}

func video(name, content string) mediastore.UploadFile {
	return mediastore.UploadFile{FileName: name, ContentType: "video/mp4", Data: []byte(content)}
}

func displayOrders(items []*mediastore.MediaItem) []int {
	orders := make([]int, 0, len(items))
	for _, item := range items {
		orders = append(orders, item.DisplayOrder)
	}
	return orders
}

func TestNew_RequiresRepository(t *testing.T) {
	_, err := mediastore.New()
	assert.Error(t, err)
}

func TestResolveAsset_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := mediastore.ResolveAssetRequest{
		Data:        []byte("sunset"),
		MediaKind:   mediastore.MediaKindImage,
		FileName:    "sunset.jpg",
		ContentType: "image/jpeg",
	}

	first, reused, err := env.svc.ResolveAsset(ctx, req)
	require.NoError(t, err)
	assert.False(t, reused)
	assert.Equal(t, mediastore.Hash([]byte("sunset")), first.ContentHash)
	assert.Equal(t, int64(6), first.SizeBytes)
	assert.True(t, strings.HasPrefix(first.URL, "/api/v1/media/"))
	assert.True(t, strings.HasSuffix(first.StorageKey, ".jpg"))
	assert.NotContains(t, first.StorageKey, first.ContentHash, "keys never leak the content hash")

	second, reused, err := env.svc.ResolveAsset(ctx, req)
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, env.images.Puts(), "content is written once")

	got, err := env.svc.GetAsset(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.StorageKey, got.StorageKey)
}

func TestResolveAsset_UnsupportedKind(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.svc.ResolveAsset(context.Background(), mediastore.ResolveAssetRequest{
		Data: []byte("x"), MediaKind: "audio",
	})
	assert.ErrorIs(t, err, mediastore.ErrUnsupportedMediaKind)
}

func TestAttachFiles_CatCatDog(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.svc.AttachFiles(ctx, 42, []mediastore.UploadFile{
		image("cat.jpg", "cat"),
		image("cat-again.jpg", "cat"),
		image("dog.jpg", "dog"),
	})
	require.NoError(t, err)
	require.Len(t, result.Attached, 3)
	assert.Empty(t, result.Errors)
	assert.Equal(t, int64(42), result.OwnerID)

	ids := result.AssetIDs()
	assert.Equal(t, ids[0], ids[1], "identical content resolves to one asset")
	assert.NotEqual(t, ids[0], ids[2])
	assert.False(t, result.Attached[0].Reused)
	assert.True(t, result.Attached[1].Reused)
	assert.Equal(t, 2, env.images.Len(), "two distinct blobs")

	for i, a := range result.Attached {
		assert.Equal(t, i, a.DisplayOrder)
	}

	items, err := env.svc.ListMedia(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, displayOrders(items))
	assert.True(t, items[0].IsThumbnail)
	assert.False(t, items[1].IsThumbnail)
}

func TestAttachFiles_OrdersContinueAcrossBatches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.AttachFiles(ctx, 7, []mediastore.UploadFile{image("a.jpg", "a"), image("b.jpg", "b")})
	require.NoError(t, err)
	result, err := env.svc.AttachFiles(ctx, 7, []mediastore.UploadFile{video("c.mp4", "c")})
	require.NoError(t, err)
	require.Len(t, result.Attached, 1)
	assert.Equal(t, 2, result.Attached[0].DisplayOrder)
	assert.Equal(t, 1, env.videos.Len())
}

func TestAttachFiles_AfterThumbnail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.svc.AttachFiles(ctx, 42, []mediastore.UploadFile{
		image("a.jpg", "a"), image("b.jpg", "b"), image("c.jpg", "c"),
	})
	require.NoError(t, err)

	third := result.Attached[2].LinkID
	require.NoError(t, env.svc.SetThumbnail(ctx, 42, third))

	thumb, err := env.svc.Thumbnail(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, third, thumb.LinkID)

	items, err := env.svc.ListMedia(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 1}, displayOrders(items))

	result, err = env.svc.AttachFiles(ctx, 42, []mediastore.UploadFile{image("d.jpg", "d")})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Attached[0].DisplayOrder)

	thumb, err = env.svc.Thumbnail(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, third, thumb.LinkID, "appending never steals the thumbnail")
}

func TestAttachFiles_CrossOwnerIsolation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, err := env.svc.AttachFiles(ctx, 1, []mediastore.UploadFile{image("shared.jpg", "shared"), image("x.jpg", "x")})
	require.NoError(t, err)
	b, err := env.svc.AttachFiles(ctx, 2, []mediastore.UploadFile{image("shared.jpg", "shared")})
	require.NoError(t, err)

	assert.Equal(t, a.Attached[0].AssetID, b.Attached[0].AssetID, "content dedups across owners")
	assert.True(t, b.Attached[0].Reused)
	assert.Equal(t, 0, b.Attached[0].DisplayOrder, "orders are per owner")

	err = env.svc.SetThumbnail(ctx, 2, a.Attached[1].LinkID)
	assert.ErrorIs(t, err, mediastore.ErrOwnerMismatch)

	items, err := env.svc.ListMedia(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, displayOrders(items), "a rejected swap changes nothing")
}

func TestAttachFiles_UnsupportedSkipped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.svc.AttachFiles(ctx, 3, []mediastore.UploadFile{
		image("a.jpg", "a"),
		{FileName: "doc.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.7")},
		{FileName: "b.png", Data: append([]byte("\x89PNG\r\n\x1a\n"), 'b')},
	})
	require.NoError(t, err)
	require.Len(t, result.Attached, 2)
	require.Len(t, result.Errors, 1)

	assert.Equal(t, "doc.pdf", result.Errors[0].FileName)
	assert.ErrorIs(t, result.Errors[0].Err, mediastore.ErrUnsupportedMediaKind)
	assert.Contains(t, result.Errors[0].Reason, "unsupported media kind")
	assert.Equal(t, []int{0, 1}, []int{result.Attached[0].DisplayOrder, result.Attached[1].DisplayOrder},
		"skipped files do not consume an order")
}

type failingBlobStore struct {
	mediastore.BlobStore
	failOn string
}

func (f *failingBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if string(data) == f.failOn {
		return errors.New("disk full")
	}
	return f.BlobStore.Put(ctx, key, data, contentType)
}

func TestAttachFiles_BlobWriteFailureContinues(t *testing.T) {
	images := memorystorage.New()
	env := newTestEnv(t, mediastore.WithBlobStore(mediastore.MediaKindImage,
		&failingBlobStore{BlobStore: images, failOn: "broken"}))
	ctx := context.Background()

	result, err := env.svc.AttachFiles(ctx, 5, []mediastore.UploadFile{
		image("ok1.jpg", "ok1"), image("broken.jpg", "broken"), image("ok2.jpg", "ok2"),
	})
	require.NoError(t, err)
	require.Len(t, result.Attached, 2)
	require.Len(t, result.Errors, 1)

	assert.Equal(t, "broken.jpg", result.Errors[0].FileName)
	assert.Equal(t, mediastore.ErrBlobWriteFailed.Error(), result.Errors[0].Reason)
	assert.ErrorIs(t, result.Errors[0].Err, mediastore.ErrBlobWriteFailed)

	_, err = env.repo.GetAssetByHash(ctx, mediastore.Hash([]byte("broken")))
	assert.ErrorIs(t, err, mediastore.ErrAssetNotFound, "no registry row without a blob")
	assert.Equal(t, 2, images.Len())
}

func TestAttachFiles_MissingBackend(t *testing.T) {
	repo := memoryrepo.New()
	svc, err := mediastore.New(
		mediastore.WithRepository(repo),
		mediastore.WithBlobStore(mediastore.MediaKindImage, memorystorage.New()),
	)
	require.NoError(t, err)

	result, err := svc.AttachFiles(context.Background(), 1, []mediastore.UploadFile{video("v.mp4", "v")})
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.ErrorIs(t, result.Errors[0].Err, mediastore.ErrStorageBackendNotFound)
}

func TestAttachFiles_InvalidOwner(t *testing.T) {
	env := newTestEnv(t)
	for _, owner := range []int64{0, -1} {
		_, err := env.svc.AttachFiles(context.Background(), owner, []mediastore.UploadFile{image("a.jpg", "a")})
		assert.ErrorIs(t, err, mediastore.ErrInvalidOwnerID)
	}
}

func TestAttachFiles_Cancelled(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := env.svc.AttachFiles(ctx, 1, []mediastore.UploadFile{image("a.jpg", "a")})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Empty(t, result.Attached)
}

// racingRepository hides the first lookup of every hash so that the caller
// behaves as if a concurrent upload registered the content in between.
type racingRepository struct {
	mediastore.Repository
	mu   sync.Mutex
	seen map[string]bool
}

func (r *racingRepository) GetAssetByHash(ctx context.Context, hash string) (*mediastore.MediaAsset, error) {
	r.mu.Lock()
	first := !r.seen[hash]
	r.seen[hash] = true
	r.mu.Unlock()
	if first {
		return nil, mediastore.ErrAssetNotFound
	}
	return r.Repository.GetAssetByHash(ctx, hash)
}

func TestResolveAsset_DuplicateHashRecovery(t *testing.T) {
	repo := memoryrepo.New()
	images := memorystorage.New()
	ctx := context.Background()

	winner := &mediastore.MediaAsset{
		ID:          uuid.New(),
		ContentHash: mediastore.Hash([]byte("contended")),
		StorageKey:  "winner.jpg",
		SizeBytes:   9,
		MediaKind:   mediastore.MediaKindImage,
		URL:         "/api/v1/media/winner.jpg",
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, repo.CreateAsset(ctx, winner))

	svc, err := mediastore.New(
		mediastore.WithRepository(&racingRepository{Repository: repo, seen: map[string]bool{}}),
		mediastore.WithBlobStore(mediastore.MediaKindImage, images),
	)
	require.NoError(t, err)

	asset, reused, err := svc.ResolveAsset(ctx, mediastore.ResolveAssetRequest{
		Data: []byte("contended"), MediaKind: mediastore.MediaKindImage, FileName: "c.jpg",
	})
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Equal(t, winner.ID, asset.ID, "the registered row wins")
	assert.Equal(t, 1, images.Len(), "the losing blob is left as an orphan")
}

func TestAttachFiles_ConcurrentSameContent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const owners = 16
	var wg sync.WaitGroup
	assetIDs := make([]uuid.UUID, owners)
	errs := make([]error, owners)
	for i := 0; i < owners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := env.svc.AttachFiles(ctx, int64(i+1), []mediastore.UploadFile{image("same.jpg", "same bytes")})
			if err == nil && len(result.Attached) != 1 {
				err = fmt.Errorf("attached %d files, errors %v", len(result.Attached), result.Errors)
			}
			errs[i] = err
			if err == nil {
				assetIDs[i] = result.Attached[0].AssetID
			}
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
		assert.Equal(t, assetIDs[0], assetIDs[i], "every owner shares one asset")
	}

	for i := 0; i < owners; i++ {
		items, err := env.svc.ListMedia(ctx, int64(i+1))
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, 0, items[0].DisplayOrder)
	}
}

func TestAttachFiles_ConcurrentSameOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const batches = 8
	var wg sync.WaitGroup
	for i := 0; i < batches; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.svc.AttachFiles(ctx, 9, []mediastore.UploadFile{
				image(fmt.Sprintf("%d-a.jpg", i), fmt.Sprintf("%d-a", i)),
				image(fmt.Sprintf("%d-b.jpg", i), fmt.Sprintf("%d-b", i)),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	items, err := env.svc.ListMedia(ctx, 9)
	require.NoError(t, err)
	require.Len(t, items, 2*batches)
	for i, item := range items {
		assert.Equal(t, i, item.DisplayOrder, "orders are distinct")
	}
}

func TestSetThumbnail_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.svc.SetThumbnail(ctx, 1, uuid.New())
	assert.ErrorIs(t, err, mediastore.ErrLinkNotFound)

	var linkErr *mediastore.LinkError
	require.ErrorAs(t, err, &linkErr)
	assert.Equal(t, "set_thumbnail", linkErr.Op)

	assert.ErrorIs(t, env.svc.SetThumbnail(ctx, 0, uuid.New()), mediastore.ErrInvalidOwnerID)
}

func TestThumbnail_Empty(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Thumbnail(context.Background(), 77)
	assert.ErrorIs(t, err, mediastore.ErrLinkNotFound)

	items, err := env.svc.ListMedia(context.Background(), 77)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestListMedia_CacheInvalidation(t *testing.T) {
	cache := memorycache.New()
	env := newTestEnv(t, mediastore.WithListCache(cache))
	ctx := context.Background()

	result, err := env.svc.AttachFiles(ctx, 4, []mediastore.UploadFile{image("a.jpg", "a"), image("b.jpg", "b")})
	require.NoError(t, err)
	assert.Zero(t, cache.Len(), "attach invalidates")

	items, err := env.svc.ListMedia(ctx, 4)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 1, cache.Len(), "list populates the cache")

	cached, ok, err := cache.Get(ctx, 4)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, cached[0].IsThumbnail)

	require.NoError(t, env.svc.SetThumbnail(ctx, 4, result.Attached[1].LinkID))
	assert.Zero(t, cache.Len(), "thumbnail swap invalidates")

	thumb, err := env.svc.Thumbnail(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, result.Attached[1].LinkID, thumb.LinkID, "no stale thumbnail after a swap")

	require.NoError(t, env.svc.RemoveLink(ctx, 4, result.Attached[0].LinkID))
	assert.Zero(t, cache.Len(), "removal invalidates")
}

// stallingRepository pauses the first ListMedia call after it has read
// from the underlying repository.
type stallingRepository struct {
	mediastore.Repository
	stalled atomic.Bool
	read    chan struct{}
	release chan struct{}
}

func (r *stallingRepository) ListMedia(ctx context.Context, ownerID int64) ([]*mediastore.MediaItem, error) {
	items, err := r.Repository.ListMedia(ctx, ownerID)
	if r.stalled.CompareAndSwap(false, true) {
		close(r.read)
		<-r.release
	}
	return items, err
}

func TestListMedia_CacheNotPoisonedByConcurrentWrite(t *testing.T) {
	for _, mutate := range []struct {
		name string
		run  func(t *testing.T, svc mediastore.Service, link uuid.UUID)
	}{
		{"attach", func(t *testing.T, svc mediastore.Service, _ uuid.UUID) {
			_, err := svc.AttachFiles(context.Background(), 42, []mediastore.UploadFile{image("b.png", "b")})
			require.NoError(t, err)
		}},
		{"remove", func(t *testing.T, svc mediastore.Service, link uuid.UUID) {
			require.NoError(t, svc.RemoveLink(context.Background(), 42, link))
		}},
	} {
		t.Run(mutate.name, func(t *testing.T) {
			ctx := context.Background()
			repo := &stallingRepository{
				Repository: memoryrepo.New(),
				read:       make(chan struct{}),
				release:    make(chan struct{}),
			}
			svc, err := mediastore.New(
				mediastore.WithRepository(repo),
				mediastore.WithBlobStore(mediastore.MediaKindImage, memorystorage.New()),
				mediastore.WithBlobStore(mediastore.MediaKindVideo, memorystorage.New()),
				mediastore.WithListCache(memorycache.New()),
			)
			require.NoError(t, err)

			seeded, err := svc.AttachFiles(ctx, 42, []mediastore.UploadFile{image("a.png", "a")})
			require.NoError(t, err)
			before, err := repo.Repository.ListMedia(ctx, 42)
			require.NoError(t, err)

			done := make(chan []*mediastore.MediaItem, 1)
			go func() {
				items, err := svc.ListMedia(ctx, 42)
				assert.NoError(t, err)
				done <- items
			}()

			<-repo.read
			mutate.run(t, svc, seeded.Attached[0].LinkID)
			close(repo.release)

			stale := <-done
			assert.Len(t, stale, len(before), "the slow reader returns what it read")

			want, err := repo.Repository.ListMedia(ctx, 42)
			require.NoError(t, err)
			got, err := svc.ListMedia(ctx, 42)
			require.NoError(t, err)
			assert.Len(t, got, len(want), "list read before the write is not served afterwards")
		})
	}
}

func TestRemoveLink(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.svc.AttachFiles(ctx, 6, []mediastore.UploadFile{image("a.jpg", "a")})
	require.NoError(t, err)
	linkID := result.Attached[0].LinkID

	assert.ErrorIs(t, env.svc.RemoveLink(ctx, 7, linkID), mediastore.ErrOwnerMismatch)
	require.NoError(t, env.svc.RemoveLink(ctx, 6, linkID))
	assert.ErrorIs(t, env.svc.RemoveLink(ctx, 6, linkID), mediastore.ErrLinkNotFound)

	_, err = env.svc.GetAsset(ctx, result.Attached[0].AssetID)
	assert.NoError(t, err, "assets outlive their links by default")
	assert.Equal(t, 1, env.images.Len())
}

func TestRemoveLink_EvictOnUnlink(t *testing.T) {
	env := newTestEnv(t, mediastore.WithEvictOnUnlink(true))
	ctx := context.Background()

	a, err := env.svc.AttachFiles(ctx, 1, []mediastore.UploadFile{image("shared.jpg", "shared")})
	require.NoError(t, err)
	b, err := env.svc.AttachFiles(ctx, 2, []mediastore.UploadFile{image("shared.jpg", "shared")})
	require.NoError(t, err)
	assetID := a.Attached[0].AssetID

	require.NoError(t, env.svc.RemoveLink(ctx, 1, a.Attached[0].LinkID))
	_, err = env.svc.GetAsset(ctx, assetID)
	assert.NoError(t, err, "still referenced by owner 2")

	require.NoError(t, env.svc.RemoveLink(ctx, 2, b.Attached[0].LinkID))
	_, err = env.svc.GetAsset(ctx, assetID)
	assert.ErrorIs(t, err, mediastore.ErrAssetNotFound)
	assert.Zero(t, env.images.Len(), "blob deleted with the asset")
}

func TestDeleteOwner(t *testing.T) {
	env := newTestEnv(t, mediastore.WithEvictOnUnlink(true))
	ctx := context.Background()

	_, err := env.svc.AttachFiles(ctx, 8, []mediastore.UploadFile{
		image("a.jpg", "a"), image("a2.jpg", "a"), video("v.mp4", "v"),
	})
	require.NoError(t, err)

	n, err := env.svc.DeleteOwner(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	items, err := env.svc.ListMedia(ctx, 8)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, env.images.Len())
	assert.Zero(t, env.videos.Len())
}

func TestEvictUnreferenced(t *testing.T) {
	now := time.Now().UTC()
	clock := func() time.Time { return now }
	env := newTestEnv(t, mediastore.WithClock(clock))
	ctx := context.Background()

	kept, err := env.svc.AttachFiles(ctx, 1, []mediastore.UploadFile{image("kept.jpg", "kept")})
	require.NoError(t, err)
	orphan, _, err := env.svc.ResolveAsset(ctx, mediastore.ResolveAssetRequest{
		Data: []byte("orphan"), MediaKind: mediastore.MediaKindImage, FileName: "orphan.jpg",
	})
	require.NoError(t, err)

	n, err := env.svc.EvictUnreferenced(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n, "grace period protects new assets")

	now = now.Add(2 * time.Hour)
	n, err = env.svc.EvictUnreferenced(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = env.svc.GetAsset(ctx, orphan.ID)
	assert.ErrorIs(t, err, mediastore.ErrAssetNotFound)
	_, err = env.svc.GetAsset(ctx, kept.Attached[0].AssetID)
	assert.NoError(t, err)
	assert.Equal(t, 1, env.images.Len())

	// Re-uploading evicted content registers it again.
	again, reused, err := env.svc.ResolveAsset(ctx, mediastore.ResolveAssetRequest{
		Data: []byte("orphan"), MediaKind: mediastore.MediaKindImage, FileName: "orphan.jpg",
	})
	require.NoError(t, err)
	assert.False(t, reused)
	assert.NotEqual(t, orphan.ID, again.ID)
}

func TestOpenBlob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.svc.AttachFiles(ctx, 1, []mediastore.UploadFile{
		image("a.jpg", "image bytes"), video("v.mp4", "video bytes"),
	})
	require.NoError(t, err)

	for i, want := range []struct {
		kind mediastore.MediaKind
		data string
	}{
		{mediastore.MediaKindImage, "image bytes"},
		{mediastore.MediaKindVideo, "video bytes"},
	} {
		asset, err := env.svc.GetAsset(ctx, result.Attached[i].AssetID)
		require.NoError(t, err)

		rc, kind, err := env.svc.OpenBlob(ctx, asset.StorageKey)
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		assert.Equal(t, want.kind, kind)
		assert.Equal(t, want.data, string(data))
	}

	_, _, err = env.svc.OpenBlob(ctx, "missing.jpg")
	assert.ErrorIs(t, err, mediastore.ErrBlobNotFound)
}

func TestOpenBlob_ImagePartitionFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.images.Put(ctx, "same-key", []byte("from images"), ""))
	require.NoError(t, env.videos.Put(ctx, "same-key", []byte("from videos"), ""))

	rc, kind, err := env.svc.OpenBlob(ctx, "same-key")
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, mediastore.MediaKindImage, kind)
	assert.Equal(t, "from images", string(data))
}

type recordingSink struct {
	mediastore.NoopEventSink
	mu     sync.Mutex
	events []string
}

func (r *recordingSink) record(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) AssetCreated(ctx context.Context, a *mediastore.MediaAsset) error {
	r.record("asset_created")
	return nil
}

func (r *recordingSink) LinkAttached(ctx context.Context, l *mediastore.OwnershipLink, reused bool) error {
	r.record(fmt.Sprintf("link_attached reused=%t", reused))
	return nil
}

func (r *recordingSink) ThumbnailChanged(ctx context.Context, ownerID int64, linkID uuid.UUID) error {
	r.record("thumbnail_changed")
	return errors.New("sink unavailable")
}

func TestEvents(t *testing.T) {
	sink := &recordingSink{}
	env := newTestEnv(t, mediastore.WithEventSink(sink))
	ctx := context.Background()

	result, err := env.svc.AttachFiles(ctx, 1, []mediastore.UploadFile{image("a.jpg", "a"), image("b.jpg", "a")})
	require.NoError(t, err)
	require.NoError(t, env.svc.SetThumbnail(ctx, 1, result.Attached[1].LinkID), "sink errors never fail the call")

	assert.Equal(t, []string{
		"asset_created",
		"link_attached reused=false",
		"link_attached reused=true",
		"thumbnail_changed",
	}, sink.events)
}
