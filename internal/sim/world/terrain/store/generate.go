package store

import (
	"github.com/askneller/WizardBattles/internal/sim/mathx"
	genpkg "github.com/askneller/WizardBattles/internal/sim/world/terrain/gen"
)

// GenerateChunk fills ch column by column from the store's terrain source.
// Without a terrain source the chunk stays air.
func (s *ChunkStore) GenerateChunk(ch *Chunk) {
	if s.terrain == nil {
		return
	}
	sea := s.terrain.SeaLevel()
	for z := 0; z < ChunkSize; z++ {
		for x := 0; x < ChunkSize; x++ {
			wx := ch.CX*ChunkSize + x
			wz := ch.CZ*ChunkSize + z

			top := mathx.FloorToInt(s.terrain.HeightAt(wx, wz))
			if top >= ch.Height {
				top = ch.Height - 1
			}
			biome := s.terrain.BiomeAt(wx, wz)
			surface := s.surfaceBlock(biome)
			sub := s.Gen.Dirt
			if biome == genpkg.Desert || biome == genpkg.Ocean {
				sub = s.Gen.Sand
			}
			ore := genpkg.InCluster(s.Gen.Seed+104, wx, wz, 64, 4, uint64(genpkg.ClampPermille(s.Gen.OreClusterPermille)))

			for y := 0; y <= top; y++ {
				b := s.Gen.Stone
				switch {
				case y == top:
					b = surface
				case y > top-s.Gen.DirtDepth:
					b = sub
				case ore && y < top-s.Gen.DirtDepth-4 && y%7 == 0:
					b = s.Gen.CoalOre
				}
				ch.Blocks[ch.index(x, y, z)] = b
			}
			for y := top + 1; y <= sea && y < ch.Height; y++ {
				ch.Blocks[ch.index(x, y, z)] = s.Gen.Water
			}
		}
	}
}

func (s *ChunkStore) surfaceBlock(b genpkg.Biome) uint16 {
	switch b {
	case genpkg.Snow:
		return s.Gen.Snow
	case genpkg.Mountains:
		return s.Gen.Stone
	case genpkg.Desert, genpkg.Ocean:
		return s.Gen.Sand
	default:
		return s.Gen.Grass
	}
}
