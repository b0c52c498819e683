package store

import (
	"sort"

	"github.com/askneller/WizardBattles/internal/sim/mathx"
)

func ChunkOf(x, z int) ChunkKey {
	return ChunkKey{CX: mathx.FloorDiv(x, ChunkSize), CZ: mathx.FloorDiv(z, ChunkSize)}
}

func (s *ChunkStore) LoadedChunkKeys() []ChunkKey {
	s.mu.RLock()
	keys := make([]ChunkKey, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sortKeys(keys)
	return keys
}

func (s *ChunkStore) LoadedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func sortKeys(keys []ChunkKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
}

// IsLoaded reports whether the block at (x,y,z) is backed by a loaded chunk.
func (s *ChunkStore) IsLoaded(x, y, z int) bool {
	if y < 0 || y >= s.Gen.Height {
		return false
	}
	s.mu.RLock()
	_, ok := s.chunks[ChunkOf(x, z)]
	s.mu.RUnlock()
	return ok
}

func (s *ChunkStore) GetBlock(x, y, z int) (uint16, bool) {
	if y < 0 || y >= s.Gen.Height {
		return s.Gen.Air, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.chunks[ChunkOf(x, z)]
	if !ok {
		return s.Gen.Air, false
	}
	return ch.Get(mathx.Mod(x, ChunkSize), y, mathx.Mod(z, ChunkSize)), true
}

// SetBlock writes b and reports false when the target is not loaded.
func (s *ChunkStore) SetBlock(x, y, z int, b uint16) bool {
	if y < 0 || y >= s.Gen.Height {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.chunks[ChunkOf(x, z)]
	if !ok {
		return false
	}
	ch.Set(mathx.Mod(x, ChunkSize), y, mathx.Mod(z, ChunkSize), b)
	return true
}

// SurfaceY returns the y of the topmost non-air block in a loaded column.
func (s *ChunkStore) SurfaceY(x, z int) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.chunks[ChunkOf(x, z)]
	if !ok {
		return 0, false
	}
	lx, lz := mathx.Mod(x, ChunkSize), mathx.Mod(z, ChunkSize)
	for y := ch.Height - 1; y >= 0; y-- {
		if ch.Get(lx, y, lz) != s.Gen.Air {
			return y, true
		}
	}
	return 0, false
}

// Load generates the chunk (cx,cz) if it is not already loaded and reports
// whether a new chunk was created.
func (s *ChunkStore) Load(cx, cz int) bool {
	k := ChunkKey{CX: cx, CZ: cz}
	s.mu.RLock()
	_, ok := s.chunks[k]
	s.mu.RUnlock()
	if ok {
		return false
	}

	ch := newChunk(cx, cz, s.Gen.Height)
	s.GenerateChunk(ch)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chunks[k]; ok {
		return false
	}
	s.chunks[k] = ch
	return true
}

// LoadRadius loads every chunk within a square of the given radius around
// (cx,cz) and returns how many were newly created.
func (s *ChunkStore) LoadRadius(cx, cz, radius int) int {
	n := 0
	for dx := -radius; dx <= radius; dx++ {
		for dz := -radius; dz <= radius; dz++ {
			if s.Load(cx+dx, cz+dz) {
				n++
			}
		}
	}
	return n
}

func (s *ChunkStore) Unload(cx, cz int) bool {
	k := ChunkKey{CX: cx, CZ: cz}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chunks[k]; !ok {
		return false
	}
	delete(s.chunks, k)
	return true
}
