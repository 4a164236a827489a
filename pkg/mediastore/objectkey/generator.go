package objectkey

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Generator defines the interface for storage key generation strategies.
//
// Keys are opaque inside a blob partition and must not be derived from the
// content hash.
type Generator interface {
	// GenerateKey creates a storage key for a new blob
	GenerateKey(metadata *KeyMetadata) string
}

// KeyMetadata contains information that influences key generation
type KeyMetadata struct {
	FileName  string
	MediaKind string
}

// FlatGenerator produces keys of the form "<unix-millis>-<random><.ext>".
// The timestamp keeps keys roughly sortable; the random component keeps
// concurrent uploads from colliding.
type FlatGenerator struct {
	Now func() time.Time
}

func NewFlatGenerator() *FlatGenerator {
	return &FlatGenerator{Now: time.Now}
}

func (g *FlatGenerator) GenerateKey(metadata *KeyMetadata) string {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	var ext string
	if metadata != nil {
		ext = Extension(metadata.FileName)
	}
	return fmt.Sprintf("%d-%s%s", now().UTC().UnixMilli(), randomComponent(), ext)
}

// ShardedGenerator prefixes flat keys with a short shard directory taken
// from the random component, spreading keys across prefixes.
// Structure: ab/1718000000000-ab12cd34ef56ab78.jpg
type ShardedGenerator struct {
	// ShardLength controls how many characters to use for sharding (default: 2)
	ShardLength int
	Now         func() time.Time
}

func NewShardedGenerator() *ShardedGenerator {
	return &ShardedGenerator{ShardLength: 2, Now: time.Now}
}

func (g *ShardedGenerator) GenerateKey(metadata *KeyMetadata) string {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	shardLen := g.ShardLength
	if shardLen <= 0 {
		shardLen = 2
	}
	random := randomComponent()
	if shardLen > len(random) {
		shardLen = len(random)
	}
	var ext string
	if metadata != nil {
		ext = Extension(metadata.FileName)
	}
	return fmt.Sprintf("%s/%d-%s%s", random[:shardLen], now().UTC().UnixMilli(), random, ext)
}

// CustomFuncGenerator allows users to provide their own key generation function
type CustomFuncGenerator struct {
	GenerateFunc func(metadata *KeyMetadata) string
}

func NewCustomFuncGenerator(fn func(metadata *KeyMetadata) string) *CustomFuncGenerator {
	return &CustomFuncGenerator{GenerateFunc: fn}
}

func (g *CustomFuncGenerator) GenerateKey(metadata *KeyMetadata) string {
	return g.GenerateFunc(metadata)
}

// New returns the generator registered under name ("flat" or "sharded").
func New(name string) (Generator, error) {
	switch strings.ToLower(name) {
	case "", "flat":
		return NewFlatGenerator(), nil
	case "sharded":
		return NewShardedGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown key generator: %s", name)
	}
}

// Extension returns the lowercased extension of the original file name,
// restricted to characters safe in object keys and URLs.
func Extension(fileName string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(fileName, "\\", "/")))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

// randomComponent returns 16 hex characters from a random (v4) UUID.
func randomComponent() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
