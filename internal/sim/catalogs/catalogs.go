package catalogs

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed structure.schema.json
var structureSchemaJSON []byte

// StructureSchema returns the JSON schema structure templates are validated
// against.
func StructureSchema() []byte { return append([]byte(nil), structureSchemaJSON...) }

type Catalogs struct {
	Blocks     BlockCatalog
	Structures StructureCatalog
}

type BlockCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]BlockDef
	PaletteDigest string
	DefsDigest    string
}

type BlockDef struct {
	ID    string `json:"id"`
	Solid bool   `json:"solid"`
}

// Solid reports whether palette id b blocks movement. Unknown ids are
// treated as penetrable.
func (c *BlockCatalog) Solid(b uint16) bool {
	if int(b) >= len(c.Palette) {
		return false
	}
	return c.Defs[c.Palette[b]].Solid
}

// MustIndex is Index[id] for ids that Load has already checked.
func (c *BlockCatalog) MustIndex(id string) uint16 {
	b, ok := c.Index[id]
	if !ok {
		panic(fmt.Sprintf("catalogs: unknown block %q", id))
	}
	return b
}

type StructureCatalog struct {
	ByID   map[string]StructureDef
	Digest string
}

// StructureDef is a template stamped at a tower site. Coordinates are block
// offsets from the site, with y=0 at the site's surface block.
type StructureDef struct {
	ID        string       `json:"id" jsonschema:"required,minLength=1"`
	Version   string       `json:"version,omitempty"`
	BaseBlock string       `json:"base_block,omitempty"`
	Regions   []FillRegion `json:"regions" jsonschema:"required,minItems=1"`
	Spawns    []SpawnDef   `json:"spawns,omitempty"`
}

// FillRegion fills the inclusive box Min..Max. Hollow boxes only fill their
// faces.
type FillRegion struct {
	Block  string `json:"block" jsonschema:"required,minLength=1"`
	Min    [3]int `json:"min" jsonschema:"required"`
	Max    [3]int `json:"max" jsonschema:"required"`
	Hollow bool   `json:"hollow,omitempty"`
}

type SpawnDef struct {
	Prefab string `json:"prefab" jsonschema:"required,minLength=1"`
	Offset [3]int `json:"offset" jsonschema:"required"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadBlocks(filepath.Join(configDir, "blocks.json"), &c.Blocks); err != nil {
		return nil, err
	}
	if err := loadStructures(filepath.Join(configDir, "structures"), &c.Blocks, &c.Structures); err != nil {
		return nil, err
	}
	return &c, nil
}

// Digests lists every catalog digest by name.
func (c *Catalogs) Digests() map[string]string {
	return map[string]string{
		"block_palette": c.Blocks.PaletteDigest,
		"block_defs":    c.Blocks.DefsDigest,
		"structures":    c.Structures.Digest,
	}
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadBlocks(path string, out *BlockCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	out.Defs = map[string]BlockDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("blocks.json: empty id")
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Ensure AIR exists and is palette id 0.
	if _, ok := out.Defs["AIR"]; !ok {
		return fmt.Errorf("blocks.json: missing AIR")
	}
	ids = append([]string{"AIR"}, filterOut(ids, "AIR")...)

	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func compileStructureSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("structure.schema.json", bytes.NewReader(structureSchemaJSON)); err != nil {
		return nil, fmt.Errorf("structure schema: %w", err)
	}
	return c.Compile("structure.schema.json")
}

func loadStructures(dir string, blocks *BlockCatalog, out *StructureCatalog) error {
	out.ByID = map[string]StructureDef{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("structures: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".json") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return fmt.Errorf("structures: no templates in %s", dir)
	}

	schema, err := compileStructureSchema()
	if err != nil {
		return err
	}

	var concat bytes.Buffer
	for _, p := range files {
		name := filepath.Base(p)
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		concat.Write(b)
		concat.WriteByte('\n')

		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			return fmt.Errorf("structure %s: %w", name, err)
		}
		if err := schema.Validate(doc); err != nil {
			return fmt.Errorf("structure %s: %w", name, err)
		}

		var def StructureDef
		if err := json.Unmarshal(b, &def); err != nil {
			return fmt.Errorf("structure %s: %w", name, err)
		}
		if err := checkStructure(def, blocks); err != nil {
			return fmt.Errorf("structure %s: %w", name, err)
		}
		if _, dup := out.ByID[def.ID]; dup {
			return fmt.Errorf("structure %s: duplicate id %q", name, def.ID)
		}
		out.ByID[def.ID] = def
	}
	out.Digest = sha256Hex(concat.Bytes())
	return nil
}

func checkStructure(def StructureDef, blocks *BlockCatalog) error {
	if def.BaseBlock != "" {
		if _, ok := blocks.Index[def.BaseBlock]; !ok {
			return fmt.Errorf("unknown base_block %q", def.BaseBlock)
		}
	}
	for i, r := range def.Regions {
		if _, ok := blocks.Index[r.Block]; !ok {
			return fmt.Errorf("region %d: unknown block %q", i, r.Block)
		}
		for a := 0; a < 3; a++ {
			if r.Min[a] > r.Max[a] {
				return fmt.Errorf("region %d: min %v exceeds max %v", i, r.Min, r.Max)
			}
		}
	}
	return nil
}

func filterOut(in []string, remove string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == remove {
			continue
		}
		out = append(out, s)
	}
	return out
}
