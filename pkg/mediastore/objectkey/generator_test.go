package objectkey

import (
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = func() time.Time { return time.UnixMilli(1718000000000) }

func TestFlatGenerator(t *testing.T) {
	g := &FlatGenerator{Now: fixedNow}

	key := g.GenerateKey(&KeyMetadata{FileName: "Cat Photo.JPG", MediaKind: "image"})
	assert.Regexp(t, regexp.MustCompile(`^1718000000000-[0-9a-f]{16}\.jpg$`), key)

	t.Run("no metadata", func(t *testing.T) {
		key := g.GenerateKey(nil)
		assert.Regexp(t, regexp.MustCompile(`^1718000000000-[0-9a-f]{16}$`), key)
	})

	t.Run("unique under concurrency", func(t *testing.T) {
		const n = 200
		var mu sync.Mutex
		seen := make(map[string]struct{}, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				k := g.GenerateKey(&KeyMetadata{FileName: "a.png"})
				mu.Lock()
				seen[k] = struct{}{}
				mu.Unlock()
			}()
		}
		wg.Wait()
		assert.Len(t, seen, n)
	})
}

func TestShardedGenerator(t *testing.T) {
	g := &ShardedGenerator{ShardLength: 2, Now: fixedNow}

	key := g.GenerateKey(&KeyMetadata{FileName: "clip.mp4"})
	parts := strings.SplitN(key, "/", 2)
	require.Len(t, parts, 2)
	assert.Len(t, parts[0], 2)
	assert.True(t, strings.HasPrefix(parts[1], "1718000000000-"+parts[0]), "shard must come from the random component")
	assert.True(t, strings.HasSuffix(key, ".mp4"))

	t.Run("shard length", func(t *testing.T) {
		g := &ShardedGenerator{ShardLength: 3, Now: fixedNow}
		parts := strings.SplitN(g.GenerateKey(nil), "/", 2)
		require.Len(t, parts, 2)
		assert.Len(t, parts[0], 3)
	})
}

func TestCustomFuncGenerator(t *testing.T) {
	g := NewCustomFuncGenerator(func(m *KeyMetadata) string {
		return m.MediaKind + "/fixed"
	})
	assert.Equal(t, "video/fixed", g.GenerateKey(&KeyMetadata{MediaKind: "video"}))
}

func TestExtension(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		want     string
	}{
		{"simple", "cat.jpg", ".jpg"},
		{"uppercase", "CAT.PNG", ".png"},
		{"no extension", "README", ""},
		{"path", "dir/sub/movie.webm", ".webm"},
		{"windows path", `C:\photos\dog.jpeg`, ".jpeg"},
		{"unsafe characters", "x.j?g", ""},
		{"too long", "x.abcdefghijk", ""},
		{"dot only", "x.", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extension(tt.fileName))
		})
	}
}

func TestNew(t *testing.T) {
	g, err := New("")
	require.NoError(t, err)
	assert.IsType(t, &FlatGenerator{}, g)

	g, err = New("Sharded")
	require.NoError(t, err)
	assert.IsType(t, &ShardedGenerator{}, g)

	_, err = New("git")
	assert.Error(t, err)
}
