package encoding

import (
	"errors"
	"testing"
)

func TestRuns_RoundTrip(t *testing.T) {
	in := make([]uint16, 0, 200)
	in = append(in, 1, 1, 1, 2, 2, 3)
	for i := 0; i < 50; i++ {
		in = append(in, 7)
	}
	in = append(in, 9, 300, 300, 300)

	enc := EncodeRuns(in)
	out := make([]uint16, len(in))
	if err := DecodeRuns(enc, out); err != nil {
		t.Fatalf("DecodeRuns: %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestRuns_ChunkColumnIsSmall(t *testing.T) {
	// One 16x16x256 chunk of stone under air.
	in := make([]uint16, 16*16*256)
	for i := 0; i < len(in)/2; i++ {
		in[i] = 1
	}
	if enc := EncodeRuns(in); len(enc) > 8 {
		t.Fatalf("encoded %d bytes", len(enc))
	}
}

func TestRuns_LengthMismatch(t *testing.T) {
	enc := EncodeRuns([]uint16{4, 4, 4, 4})
	if err := DecodeRuns(enc, make([]uint16, 3)); !errors.Is(err, ErrRunLength) {
		t.Fatalf("short dst: %v", err)
	}
	if err := DecodeRuns(enc, make([]uint16, 5)); !errors.Is(err, ErrRunLength) {
		t.Fatalf("long dst: %v", err)
	}
	if err := DecodeRuns([]byte{0x80}, make([]uint16, 1)); err == nil {
		t.Fatalf("expected error for truncated varint")
	}
}
