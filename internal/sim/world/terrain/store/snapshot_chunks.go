package store

import (
	"encoding/hex"
	"errors"
	"fmt"

	snapv1 "github.com/askneller/WizardBattles/internal/persistence/snapshot"
	"github.com/askneller/WizardBattles/internal/sim/encoding"
)

var ErrChunkDigest = errors.New("snapshot chunk digest mismatch")

// ExportLoadedChunks converts loaded chunk data into snapshot chunks, each
// stamped with its block digest.
func (s *ChunkStore) ExportLoadedChunks() []snapv1.ChunkV1 {
	keys := s.LoadedChunkKeys()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]snapv1.ChunkV1, 0, len(keys))
	for _, k := range keys {
		ch := s.chunks[k]
		if ch == nil {
			continue
		}
		out = append(out, snapv1.ChunkV1{
			CX:     k.CX,
			CZ:     k.CZ,
			Height: ch.Height,
			Runs:   encoding.EncodeRuns(ch.Blocks),
			Digest: digestHex(ch),
		})
	}
	return out
}

// ImportChunks rebuilds a chunk store from snapshot chunks. Chunks not in the
// snapshot are generated from terrain when loaded later. A chunk carrying a
// digest must decode to the same blocks.
func ImportChunks(gen WorldGen, terrain Terrain, chunks []snapv1.ChunkV1) (*ChunkStore, error) {
	s := NewChunkStore(gen, terrain)
	for _, ch := range chunks {
		if ch.Height != s.Gen.Height {
			return nil, fmt.Errorf("snapshot chunk height mismatch: got %d want %d", ch.Height, s.Gen.Height)
		}
		c := newChunk(ch.CX, ch.CZ, ch.Height)
		if err := encoding.DecodeRuns(ch.Runs, c.Blocks); err != nil {
			return nil, fmt.Errorf("snapshot chunk %d,%d: %w", ch.CX, ch.CZ, err)
		}
		if ch.Digest != "" {
			if got := digestHex(c); got != ch.Digest {
				return nil, fmt.Errorf("%w: chunk %d,%d has %s want %s", ErrChunkDigest, ch.CX, ch.CZ, got, ch.Digest)
			}
		}
		s.chunks[ChunkKey{CX: ch.CX, CZ: ch.CZ}] = c
	}
	return s, nil
}

func digestHex(c *Chunk) string {
	d := c.Digest()
	return hex.EncodeToString(d[:])
}
