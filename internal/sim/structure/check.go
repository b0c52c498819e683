package structure

// BlockGetter reads a block and reports whether it is known.
type BlockGetter func(x, y, z int) (uint16, bool)

// CheckPlaced reports whether every block of a structure is already present
// at anchor with the given rotation.
func CheckPlaced(getBlock BlockGetter, blockIndex map[string]uint16, blocks []PlacementBlock, anchor [3]int, rotation int) bool {
	if getBlock == nil || len(blocks) == 0 {
		return false
	}
	rot := NormalizeRotation(rotation)
	for _, b := range blocks {
		want, ok := blockIndex[b.Block]
		if !ok {
			return false
		}
		p := WorldPos(anchor, b.Pos, rot)
		got, ok := getBlock(p[0], p[1], p[2])
		if !ok || got != want {
			return false
		}
	}
	return true
}

// WorldPos rotates off and adds it to anchor.
func WorldPos(anchor, off [3]int, rot int) [3]int {
	r := RotateOffset(off, rot)
	return [3]int{anchor[0] + r[0], anchor[1] + r[1], anchor[2] + r[2]}
}
