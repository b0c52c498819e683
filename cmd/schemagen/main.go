// Command schemagen regenerates the JSON Schemas that structure templates
// and observer messages are validated against.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"

	"github.com/invopop/jsonschema"

	"github.com/askneller/WizardBattles/internal/observerproto"
	"github.com/askneller/WizardBattles/internal/sim/catalogs"
)

type target struct {
	path        string
	typ         reflect.Type
	title       string
	description string
}

func targets() []target {
	return []target{
		{
			path:        filepath.Join("internal", "sim", "catalogs", "structure.schema.json"),
			typ:         reflect.TypeOf(catalogs.StructureDef{}),
			title:       "Structure template",
			description: "Block regions and spawns stamped at a tower site, in offsets from the site surface block.",
		},
		{
			path:  filepath.Join("schemas", "subscribe.schema.json"),
			typ:   reflect.TypeOf(observerproto.SubscribeMsg{}),
			title: "Observer SUBSCRIBE",
		},
		{
			path:  filepath.Join("schemas", "bootstrap.schema.json"),
			typ:   reflect.TypeOf(observerproto.BootstrapResponse{}),
			title: "Observer bootstrap",
		},
		{
			path:  filepath.Join("schemas", "site_event.schema.json"),
			typ:   reflect.TypeOf(observerproto.SiteEventMsg{}),
			title: "Observer SITE_EVENT",
		},
	}
}

func main() {
	var root string
	flag.StringVar(&root, "root", ".", "repository root to write schemas under")
	flag.Parse()

	schemas := buildSchemas()
	paths := make([]string, 0, len(schemas))
	for p := range schemas {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		out := filepath.Join(root, p)
		if err := writeSchema(out, schemas[p]); err != nil {
			fmt.Fprintf(os.Stderr, "schemagen: %s: %v\n", p, err)
			os.Exit(1)
		}
		fmt.Println("wrote", out)
	}
}

func buildSchemas() map[string]*jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	out := map[string]*jsonschema.Schema{}
	for _, t := range targets() {
		s := reflector.ReflectFromType(t.typ)
		s.Title = t.title
		s.Description = t.description
		out[t.path] = s
	}
	return out
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}

	return nil
}
