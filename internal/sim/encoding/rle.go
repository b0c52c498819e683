// Package encoding packs chunk block columns for snapshots.
package encoding

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrRunLength = errors.New("encoding: run length mismatch")

// EncodeRuns packs block ids as (block_id, run_len) uvarint pairs. Terrain
// chunks are long runs of air and stone, so the result is a small fraction of
// the raw array.
func EncodeRuns(ids []uint16) []byte {
	out := make([]byte, 0, 64)
	var tmp [binary.MaxVarintLen64]byte

	for i := 0; i < len(ids); {
		b := ids[i]
		run := 1
		for i+run < len(ids) && ids[i+run] == b {
			run++
		}
		n := binary.PutUvarint(tmp[:], uint64(b))
		out = append(out, tmp[:n]...)
		n = binary.PutUvarint(tmp[:], uint64(run))
		out = append(out, tmp[:n]...)
		i += run
	}
	return out
}

// DecodeRuns unpacks EncodeRuns output into dst, which must have exactly the
// encoded length. Runs that would overflow dst are rejected before writing.
func DecodeRuns(raw []byte, dst []uint16) error {
	at := 0
	for i := 0; i < len(raw); {
		b, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return fmt.Errorf("encoding: bad block varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return fmt.Errorf("encoding: bad run varint at %d", i)
		}
		i += n
		if b > 0xFFFF {
			return fmt.Errorf("encoding: block id too large: %d", b)
		}
		if run == 0 || run > uint64(len(dst)-at) {
			return fmt.Errorf("%w: run %d at offset %d of %d", ErrRunLength, run, at, len(dst))
		}
		for k := 0; k < int(run); k++ {
			dst[at+k] = uint16(b)
		}
		at += int(run)
	}
	if at != len(dst) {
		return fmt.Errorf("%w: decoded %d of %d", ErrRunLength, at, len(dst))
	}
	return nil
}
