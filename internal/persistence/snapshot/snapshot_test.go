package snapshot

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestWriteReadSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots", "000001.snap.zst")
	in := SnapshotV1{
		Header:     Header{WorldID: "tower_world", SavedAt: 1700000000},
		Seed:       42,
		Height:     4,
		RegionSize: 32,
		Template:   "wizard_tower",
		Chunks:     []ChunkV1{{CX: 1, CZ: -1, Height: 4, Runs: []byte{0, 5, 11, 1, 0, 250, 7}}},
		Towers:     []TowerV1{{Pos: [3]int{10, 120, -4}, Template: "wizard_tower", Rotation: 1}},
		Pending:    []SiteV1{{Pos: [3]int{3, 99, 3}, Flatness: 2, RawHeight: 99.5, BiomeMatch: true}},
		Rejected:   [][3]int{{7, 80, 7}},
	}

	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if h.Version != Version || h.WorldID != "tower_world" {
		t.Fatalf("header = %+v", h)
	}

	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.Seed != 42 || out.RegionSize != 32 || out.Template != "wizard_tower" {
		t.Fatalf("scalar fields mismatch: %+v", out.Header)
	}
	if len(out.Chunks) != 1 || !bytes.Equal(out.Chunks[0].Runs, in.Chunks[0].Runs) {
		t.Fatalf("chunk mismatch")
	}
	if len(out.Towers) != 1 || out.Towers[0].Pos != [3]int{10, 120, -4} || out.Towers[0].Rotation != 1 {
		t.Fatalf("tower mismatch: %+v", out.Towers)
	}
	if len(out.Pending) != 1 || !out.Pending[0].BiomeMatch || out.Pending[0].RawHeight != 99.5 {
		t.Fatalf("pending mismatch: %+v", out.Pending)
	}
	if len(out.Rejected) != 1 || out.Rejected[0] != [3]int{7, 80, 7} {
		t.Fatalf("rejected mismatch: %+v", out.Rejected)
	}
}

func TestReadSnapshotMissingFile(t *testing.T) {
	if _, err := ReadSnapshot(filepath.Join(t.TempDir(), "nope.snap.zst")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
