// Package placer stamps structure templates into the chunk store at
// registered sites.
package placer

import (
	"errors"
	"fmt"

	"github.com/askneller/WizardBattles/internal/sim/catalogs"
	"github.com/askneller/WizardBattles/internal/sim/mathx"
	"github.com/askneller/WizardBattles/internal/sim/sitegen/registry"
	"github.com/askneller/WizardBattles/internal/sim/structure"
)

var (
	ErrNotLoaded       = errors.New("placer: target area not loaded")
	ErrBiomeMismatch   = errors.New("placer: site biome does not match")
	ErrUnknownTemplate = errors.New("placer: unknown template")
)

// World is the block access the placer needs.
type World interface {
	IsLoaded(x, y, z int) bool
	GetBlock(x, y, z int) (uint16, bool)
	SetBlock(x, y, z int, b uint16) bool
}

type Config struct {
	Seed int64
	// BaseRadius and BaseDepth bound the ring of blocks under and around the
	// footprint that gets backfilled with ground.
	BaseRadius int
	BaseDepth  int
}

type Spawn struct {
	Prefab string `json:"prefab"`
	Pos    [3]int `json:"pos"`
}

type Placement struct {
	Template       string  `json:"template"`
	Anchor         [3]int  `json:"anchor"`
	Rotation       int     `json:"rotation"`
	BlocksWritten  int     `json:"blocks_written"`
	BaseFilled     int     `json:"base_filled"`
	AlreadyPresent bool    `json:"already_present,omitempty"`
	Spawns         []Spawn `json:"spawns"`
}

type Placer struct {
	world World
	cats  *catalogs.Catalogs
	cfg   Config

	expanded map[string][]structure.PlacementBlock
}

func New(world World, cats *catalogs.Catalogs, cfg Config) *Placer {
	if cfg.BaseRadius <= 0 {
		cfg.BaseRadius = 3
	}
	if cfg.BaseDepth < 0 {
		cfg.BaseDepth = 0
	}
	p := &Placer{world: world, cats: cats, cfg: cfg, expanded: map[string][]structure.PlacementBlock{}}
	for id, def := range cats.Structures.ByID {
		p.expanded[id] = structure.Expand(def)
	}
	return p
}

type write struct {
	pos   [3]int
	block uint16
}

// Place writes templateID at s. Nothing is written unless every target
// block is loaded. A template already standing at s is reported as placed
// without rewriting it.
func (p *Placer) Place(s registry.Site, templateID string) (Placement, error) {
	if !s.BiomeMatch {
		return Placement{}, fmt.Errorf("%w at %v", ErrBiomeMismatch, s.Pos)
	}
	def, ok := p.cats.Structures.ByID[templateID]
	if !ok {
		return Placement{}, fmt.Errorf("%w %q", ErrUnknownTemplate, templateID)
	}
	blocks := p.expanded[templateID]

	anchor := [3]int{s.Pos.X, s.Pos.Y, s.Pos.Z}
	rot := structure.RotationFor(p.cfg.Seed, s.Pos.X, s.Pos.Z)
	pl := Placement{Template: def.ID, Anchor: anchor, Rotation: rot}

	writes := make([]write, 0, len(blocks))
	for _, b := range blocks {
		writes = append(writes, write{
			pos:   structure.WorldPos(anchor, b.Pos, rot),
			block: p.cats.Blocks.MustIndex(b.Block),
		})
	}
	base := p.basePositions(anchor, blocks, rot)

	for _, w := range writes {
		if !p.world.IsLoaded(w.pos[0], w.pos[1], w.pos[2]) {
			return pl, fmt.Errorf("%w: %v", ErrNotLoaded, w.pos)
		}
	}
	for _, b := range base {
		if !p.world.IsLoaded(b[0], b[1], b[2]) {
			return pl, fmt.Errorf("%w: %v", ErrNotLoaded, b)
		}
	}

	pl.Spawns = spawns(def, anchor, rot)
	if structure.CheckPlaced(p.world.GetBlock, p.cats.Blocks.Index, blocks, anchor, rot) {
		pl.AlreadyPresent = true
		return pl, nil
	}

	ground, fill := p.groundBlock(def, anchor)
	for _, b := range base {
		if !fill {
			break
		}
		cur, _ := p.world.GetBlock(b[0], b[1], b[2])
		if p.cats.Blocks.Solid(cur) {
			continue
		}
		if !p.world.SetBlock(b[0], b[1], b[2], ground) {
			return pl, fmt.Errorf("%w: %v", ErrNotLoaded, b)
		}
		pl.BaseFilled++
	}
	for _, w := range writes {
		if !p.world.SetBlock(w.pos[0], w.pos[1], w.pos[2], w.block) {
			return pl, fmt.Errorf("%w: %v", ErrNotLoaded, w.pos)
		}
		pl.BlocksWritten++
	}
	return pl, nil
}

// groundBlock is the solid block the site stands on, or the template's base
// block when the site itself is not solid.
func (p *Placer) groundBlock(def catalogs.StructureDef, anchor [3]int) (uint16, bool) {
	if b, ok := p.world.GetBlock(anchor[0], anchor[1], anchor[2]); ok && p.cats.Blocks.Solid(b) {
		return b, true
	}
	if def.BaseBlock != "" {
		return p.cats.Blocks.MustIndex(def.BaseBlock), true
	}
	return 0, false
}

// basePositions lists the cells in rings 1..BaseRadius around the footprint,
// from the site's level down BaseDepth blocks.
func (p *Placer) basePositions(anchor [3]int, blocks []structure.PlacementBlock, rot int) [][3]int {
	minX, minZ, maxX, maxZ := structure.Footprint(blocks)
	ax, az := structure.RotateXZ(minX, minZ, rot)
	bx, bz := structure.RotateXZ(maxX, maxZ, rot)
	x0, x1 := min(ax, bx), max(ax, bx)
	z0, z1 := min(az, bz), max(az, bz)

	var out [][3]int
	for below := 0; below <= p.cfg.BaseDepth; below++ {
		y := anchor[1] - below
		for dist := 1; dist <= p.cfg.BaseRadius; dist++ {
			for x := x0 - dist; x <= x1+dist; x++ {
				for z := z0 - dist; z <= z1+dist; z++ {
					if ringDistance(x, z, x0, z0, x1, z1) != dist {
						continue
					}
					out = append(out, [3]int{anchor[0] + x, y, anchor[2] + z})
				}
			}
		}
	}
	return out
}

func ringDistance(x, z, x0, z0, x1, z1 int) int {
	dx, dz := 0, 0
	if x < x0 {
		dx = x0 - x
	} else if x > x1 {
		dx = x - x1
	}
	if z < z0 {
		dz = z0 - z
	} else if z > z1 {
		dz = z - z1
	}
	return mathx.MaxInt(dx, dz)
}

func spawns(def catalogs.StructureDef, anchor [3]int, rot int) []Spawn {
	out := make([]Spawn, 0, len(def.Spawns))
	for _, sp := range def.Spawns {
		out = append(out, Spawn{Prefab: sp.Prefab, Pos: structure.WorldPos(anchor, sp.Offset, rot)})
	}
	return out
}
