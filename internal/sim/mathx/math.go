package mathx

import "math"

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func MaxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// FloorToInt floors a float32 sample the way terrain heights are quantised.
func FloorToInt(v float32) int {
	return int(math.Floor(float64(v)))
}

// Chebyshev returns the ring index of (dx,dz) around the origin.
func Chebyshev(dx, dz int) int {
	return MaxInt(AbsInt(dx), AbsInt(dz))
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func Hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

// Unit2 maps Hash2 onto [-1, 1).
func Unit2(seed int64, x, z int) float64 {
	return float64(Hash2(seed, x, z)>>11)/float64(1<<53)*2 - 1
}

func SmoothStep(t float64) float64 {
	return t * t * (3 - 2*t)
}

func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
