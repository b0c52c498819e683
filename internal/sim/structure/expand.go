package structure

import "github.com/askneller/WizardBattles/internal/sim/catalogs"

type PlacementBlock struct {
	Pos   [3]int
	Block string
}

// Expand flattens a template's regions into single blocks. Regions are applied
// in order, so a later region overrides an earlier one at the same offset.
func Expand(def catalogs.StructureDef) []PlacementBlock {
	index := map[[3]int]int{}
	var out []PlacementBlock
	put := func(p [3]int, block string) {
		if i, ok := index[p]; ok {
			out[i].Block = block
			return
		}
		index[p] = len(out)
		out = append(out, PlacementBlock{Pos: p, Block: block})
	}
	for _, r := range def.Regions {
		for y := r.Min[1]; y <= r.Max[1]; y++ {
			for x := r.Min[0]; x <= r.Max[0]; x++ {
				for z := r.Min[2]; z <= r.Max[2]; z++ {
					if r.Hollow && x != r.Min[0] && x != r.Max[0] && z != r.Min[2] && z != r.Max[2] {
						continue
					}
					put([3]int{x, y, z}, r.Block)
				}
			}
		}
	}
	return out
}

// Footprint returns the x/z bounds of blocks at or above y=0.
func Footprint(blocks []PlacementBlock) (minX, minZ, maxX, maxZ int) {
	first := true
	for _, b := range blocks {
		if b.Pos[1] < 0 {
			continue
		}
		if first {
			minX, maxX, minZ, maxZ = b.Pos[0], b.Pos[0], b.Pos[2], b.Pos[2]
			first = false
			continue
		}
		minX = min(minX, b.Pos[0])
		maxX = max(maxX, b.Pos[0])
		minZ = min(minZ, b.Pos[2])
		maxZ = max(maxZ, b.Pos[2])
	}
	return
}
