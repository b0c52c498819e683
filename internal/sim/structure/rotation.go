package structure

import "github.com/askneller/WizardBattles/internal/sim/mathx"

// NormalizeRotation converts a rotation into a quarter-turn count in [0,3].
// It accepts either quarter-turns or degrees in multiples of 90.
func NormalizeRotation(r int) int {
	if r%90 == 0 && (r > 3 || r < -3) {
		r = r / 90
	}
	return mathx.Mod(r, 4)
}

// RotateXZ rotates an (x,z) offset around the Y axis by rot*90 degrees
// clockwise. rot must be normalized.
func RotateXZ(x, z, rot int) (rx, rz int) {
	switch rot & 3 {
	case 0:
		return x, z
	case 1:
		return z, -x
	case 2:
		return -x, -z
	default:
		return -z, x
	}
}

func RotateOffset(off [3]int, rot int) [3]int {
	rx, rz := RotateXZ(off[0], off[2], rot)
	return [3]int{rx, off[1], rz}
}

// RotationFor picks a stable rotation for a site so that replays and resumed
// worlds build the same tower.
func RotationFor(seed int64, x, z int) int {
	return int(mathx.Hash2(seed^0x70776572, x, z) % 4)
}
