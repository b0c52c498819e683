package tuning

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/askneller/WizardBattles/internal/sim/sitegen/scan"
	"github.com/askneller/WizardBattles/internal/sim/world/terrain/gen"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	World     World     `yaml:"world"`
	Sites     Sites     `yaml:"sites"`
	Placement Placement `yaml:"placement"`
}

type World struct {
	Height          int     `yaml:"height"`
	SeaLevel        int     `yaml:"sea_level"`
	BaseHeight      float64 `yaml:"base_height"`
	Amplitude       float64 `yaml:"amplitude"`
	NoiseScale      float64 `yaml:"noise_scale"`
	Octaves         int     `yaml:"octaves"`
	MountainLine    int     `yaml:"mountain_line"`
	SnowLine        int     `yaml:"snow_line"`
	BiomeRegionSize int     `yaml:"biome_region_size"`
	OrePermille     int     `yaml:"ore_permille"`

	RegionSize   int `yaml:"region_size"`
	RegionRadius int `yaml:"region_radius"`
	Workers      int `yaml:"workers"`
	ChunkRadius  int `yaml:"chunk_radius"`
}

type Sites struct {
	LevelTolerance float64 `yaml:"level_tolerance"`

	NearRadius   int     `yaml:"near_radius"`
	NearMaxAngle float64 `yaml:"near_max_angle_deg"`
	NearMaxAbove int     `yaml:"near_max_above"`
	FarRadius    int     `yaml:"far_radius"`
	FarMaxAngle  float64 `yaml:"far_max_angle_deg"`
	FarMaxAbove  int     `yaml:"far_max_above"`

	MinHeight        int `yaml:"min_height"`
	FlatHighFlatness int `yaml:"flat_high_flatness"`
	FlatHighHeight   int `yaml:"flat_high_height"`

	Biomes            []string `yaml:"biomes"`
	RequireBiomeMatch bool     `yaml:"require_biome_match"`
}

type Placement struct {
	Template         string `yaml:"template"`
	DrainIntervalMs  int    `yaml:"drain_interval_ms"`
	PerDrain         int    `yaml:"per_drain"`
	InboxSize        int    `yaml:"inbox_size"`
	BaseRadius       int    `yaml:"base_radius"`
	BaseDepth        int    `yaml:"base_depth"`
	SnapshotEveryMin int    `yaml:"snapshot_every_min"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		World: World{
			Height:          256,
			SeaLevel:        62,
			BaseHeight:      96,
			Amplitude:       72,
			NoiseScale:      96,
			Octaves:         4,
			MountainLine:    120,
			SnowLine:        150,
			BiomeRegionSize: 128,
			OrePermille:     300,
			RegionSize:      32,
			RegionRadius:    4,
			Workers:         4,
			ChunkRadius:     8,
		},
		Sites: Sites{
			LevelTolerance:    0.7,
			NearRadius:        2,
			NearMaxAngle:      1.0,
			NearMaxAbove:      0,
			FarRadius:         5,
			FarMaxAngle:       -20,
			FarMaxAbove:       2,
			MinHeight:         75,
			FlatHighFlatness:  2,
			FlatHighHeight:    150,
			Biomes:            []string{"MOUNTAINS", "SNOW", "PLAINS"},
			RequireBiomeMatch: true,
		},
		Placement: Placement{
			Template:         "wizard_tower",
			DrainIntervalMs:  10000,
			PerDrain:         1,
			InboxSize:        256,
			BaseRadius:       3,
			BaseDepth:        4,
			SnapshotEveryMin: 0,
		},
	}
}

// Load reads path over Defaults. An empty path yields the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		t.Normalize()
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	d := Defaults()
	if t.World.Workers <= 0 {
		t.World.Workers = 1
	}
	if t.Sites.LevelTolerance <= 0 {
		t.Sites.LevelTolerance = d.Sites.LevelTolerance
	}
	if t.Placement.PerDrain <= 0 {
		t.Placement.PerDrain = 1
	}
	if t.Placement.InboxSize <= 0 {
		t.Placement.InboxSize = d.Placement.InboxSize
	}
	for i, b := range t.Sites.Biomes {
		t.Sites.Biomes[i] = strings.ToUpper(strings.TrimSpace(b))
	}
	t.Placement.Template = strings.TrimSpace(t.Placement.Template)
}

func (t Tuning) Validate() error {
	w := t.World
	switch {
	case w.Height <= 0:
		return errors.New("world.height must be > 0")
	case w.RegionSize <= 0:
		return errors.New("world.region_size must be > 0")
	case w.RegionRadius < 1:
		return errors.New("world.region_radius must be >= 1")
	case w.SnowLine < w.MountainLine:
		return errors.New("world.snow_line must be >= world.mountain_line")
	case w.ChunkRadius < 0:
		return errors.New("world.chunk_radius must be >= 0")
	}
	s := t.Sites
	switch {
	case s.NearRadius <= 0 || s.FarRadius <= 0:
		return errors.New("sites radii must be > 0")
	case s.NearRadius >= s.FarRadius:
		return errors.New("sites.near_radius must be < sites.far_radius")
	case s.FarRadius >= w.RegionSize:
		return errors.New("sites.far_radius does not fit in a region quad")
	}
	if _, err := t.BiomeSet(); err != nil {
		return err
	}
	if t.Placement.Template == "" {
		return errors.New("placement.template is required")
	}
	if t.Placement.DrainIntervalMs <= 0 {
		return errors.New("placement.drain_interval_ms must be > 0")
	}
	return nil
}

// BiomeSet parses Sites.Biomes.
func (t Tuning) BiomeSet() ([]gen.Biome, error) {
	if len(t.Sites.Biomes) == 0 {
		return nil, errors.New("sites.biomes must not be empty")
	}
	out := make([]gen.Biome, 0, len(t.Sites.Biomes))
	for _, s := range t.Sites.Biomes {
		b, ok := gen.ParseBiome(s)
		if !ok {
			return nil, fmt.Errorf("sites.biomes: unknown biome %q", s)
		}
		out = append(out, b)
	}
	return out, nil
}

// TerrainParams maps the world section onto terrain generator parameters.
func (t Tuning) TerrainParams(seed int64) gen.TerrainParams {
	return gen.TerrainParams{
		Seed:            seed,
		SeaLevel:        t.World.SeaLevel,
		BaseHeight:      t.World.BaseHeight,
		Amplitude:       t.World.Amplitude,
		Scale:           t.World.NoiseScale,
		Octaves:         t.World.Octaves,
		MountainLine:    t.World.MountainLine,
		SnowLine:        t.World.SnowLine,
		BiomeRegionSize: t.World.BiomeRegionSize,
	}
}

// ScanConfig maps the sites section onto scanner thresholds.
func (t Tuning) ScanConfig() (scan.Config, error) {
	biomes, err := t.BiomeSet()
	if err != nil {
		return scan.Config{}, err
	}
	s := t.Sites
	return scan.Config{
		NearRadius:        s.NearRadius,
		NearMaxAngle:      s.NearMaxAngle,
		NearMaxAbove:      s.NearMaxAbove,
		FarRadius:         s.FarRadius,
		FarMaxAngle:       s.FarMaxAngle,
		FarMaxAbove:       s.FarMaxAbove,
		MinHeight:         s.MinHeight,
		FlatHighFlatness:  s.FlatHighFlatness,
		FlatHighHeight:    s.FlatHighHeight,
		Biomes:            biomes,
		RequireBiomeMatch: s.RequireBiomeMatch,
	}, nil
}
