package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	SavedAt int64  `json:"saved_at_unix"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed       int64  `json:"seed"`
	Height     int    `json:"height"`
	RegionSize int    `json:"region_size"`
	Template   string `json:"template"`

	Chunks   []ChunkV1 `json:"chunks"`
	Towers   []TowerV1 `json:"towers"`
	Pending  []SiteV1  `json:"pending,omitempty"`
	Rejected [][3]int  `json:"rejected,omitempty"`
}

// ChunkV1 holds one chunk's blocks as run-length pairs (see encoding.EncodeRuns).
// Digest is the hex sha256 of the decoded little-endian block ids.
type ChunkV1 struct {
	CX     int    `json:"cx"`
	CZ     int    `json:"cz"`
	Height int    `json:"height"`
	Runs   []byte `json:"runs"`
	Digest string `json:"digest,omitempty"`
}

// TowerV1 is a site whose structure has been written into the world.
type TowerV1 struct {
	Pos      [3]int `json:"pos"`
	Template string `json:"template"`
	Rotation int    `json:"rotation"`
	Attempts int    `json:"attempts,omitempty"`
}

type SiteV1 struct {
	Pos        [3]int  `json:"pos"`
	Flatness   int     `json:"flatness"`
	RawHeight  float32 `json:"raw_height"`
	PeakLike   bool    `json:"peak_like"`
	BiomeMatch bool    `json:"biome_match"`
	Attempts   int     `json:"attempts,omitempty"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)

	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	line, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return snap, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", h.Version)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// ReadHeader decodes only the JSON header line of a snapshot file.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
