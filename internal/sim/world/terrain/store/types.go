package store

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"

	genpkg "github.com/askneller/WizardBattles/internal/sim/world/terrain/gen"
)

const ChunkSize = 16

type ChunkKey struct {
	CX int
	CZ int
}

type Chunk struct {
	CX, CZ int
	Height int
	Blocks []uint16 // len = 16*16*Height, index x + z*16 + y*256

	// hash caches Digest until the next Set.
	dirty bool
	hash  [32]byte
}

func newChunk(cx, cz, height int) *Chunk {
	return &Chunk{
		CX:     cx,
		CZ:     cz,
		Height: height,
		Blocks: make([]uint16, ChunkSize*ChunkSize*height),
	}
}

func (c *Chunk) index(x, y, z int) int {
	return x + z*ChunkSize + y*ChunkSize*ChunkSize
}

func (c *Chunk) Get(x, y, z int) uint16 {
	return c.Blocks[c.index(x, y, z)]
}

func (c *Chunk) Set(x, y, z int, b uint16) {
	i := c.index(x, y, z)
	if c.Blocks[i] == b {
		return
	}
	c.Blocks[i] = b
	c.dirty = true
}

// Digest is the sha256 of the block ids in little-endian order. It updates
// the cache, so callers sharing the chunk must hold the store's write lock.
func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [2]byte
		for _, v := range c.Blocks {
			binary.LittleEndian.PutUint16(tmp[:], v)
			h.Write(tmp[:])
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}

// WorldGen holds the palette ids and layering used to fill new chunks.
type WorldGen struct {
	Seed   int64
	Height int

	DirtDepth          int
	OreClusterPermille int

	Air     uint16
	Stone   uint16
	Dirt    uint16
	Grass   uint16
	Sand    uint16
	Snow    uint16
	Water   uint16
	CoalOre uint16
}

// Terrain is the column source chunks are generated from.
type Terrain interface {
	HeightAt(x, z int) float32
	BiomeAt(x, z int) genpkg.Biome
	SeaLevel() int
}

// ChunkStore holds the loaded chunks of one world. Blocks outside loaded
// chunks are unknown rather than air. It is safe for concurrent use.
type ChunkStore struct {
	Gen WorldGen

	terrain Terrain

	mu     sync.RWMutex
	chunks map[ChunkKey]*Chunk
}

func NewChunkStore(gen WorldGen, terrain Terrain) *ChunkStore {
	if gen.Height <= 0 {
		gen.Height = 256
	}
	if gen.DirtDepth <= 0 {
		gen.DirtDepth = 3
	}
	return &ChunkStore{
		Gen:     gen,
		terrain: terrain,
		chunks:  map[ChunkKey]*Chunk{},
	}
}
