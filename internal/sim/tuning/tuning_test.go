package tuning

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/askneller/WizardBattles/internal/sim/sitegen/scan"
	"github.com/askneller/WizardBattles/internal/sim/world/terrain/gen"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoadEmptyPathGivesDefaults(t *testing.T) {
	got, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.World.RegionSize != 32 || got.Sites.MinHeight != 75 || got.Placement.Template != "wizard_tower" {
		t.Fatalf("defaults = %+v", got)
	}
	if !got.Sites.RequireBiomeMatch {
		t.Fatalf("biome match must be required by default")
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	p := writeYAML(t, `
world:
  region_size: 16
sites:
  min_height: 90
  biomes: [" snow ", mountains]
  require_biome_match: false
placement:
  per_drain: 0
`)
	got, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.World.RegionSize != 16 || got.World.Height != 256 {
		t.Fatalf("world = %+v", got.World)
	}
	if got.Sites.MinHeight != 90 || got.Sites.FarRadius != 5 || got.Sites.RequireBiomeMatch {
		t.Fatalf("sites = %+v", got.Sites)
	}
	if got.Placement.PerDrain != 1 {
		t.Fatalf("per_drain not normalized: %d", got.Placement.PerDrain)
	}
	bs, err := got.BiomeSet()
	if err != nil || len(bs) != 2 || bs[0] != gen.Snow || bs[1] != gen.Mountains {
		t.Fatalf("biomes = %v, %v", bs, err)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown biome": "sites:\n  biomes: [SWAMP]\n",
		"radii":         "sites:\n  near_radius: 6\n",
		"tiny region":   "world:\n  region_size: 4\n",
		"no template":   "placement:\n  template: \"\"\n",
		"bad yaml":      "world: [",
	}
	for name, body := range cases {
		if _, err := Load(writeYAML(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadRepoTuning(t *testing.T) {
	got, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Placement.Template == "" || got.World.RegionSize <= 0 {
		t.Fatalf("tuning = %+v", got)
	}
	if !got.Sites.RequireBiomeMatch {
		t.Fatalf("repo tuning accepts biome mismatches")
	}
}

func TestDefaultScanConfigMatchesScanner(t *testing.T) {
	got, err := Defaults().ScanConfig()
	if err != nil {
		t.Fatalf("scan config: %v", err)
	}
	if want := scan.DefaultConfig(); !reflect.DeepEqual(got, want) {
		t.Fatalf("scan config:\n got %+v\nwant %+v", got, want)
	}

	bad := Defaults()
	bad.Sites.Biomes = []string{"SWAMP"}
	if _, err := bad.ScanConfig(); err == nil {
		t.Fatalf("expected unknown biome error")
	}
}
