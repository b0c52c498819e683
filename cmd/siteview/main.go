// Command siteview draws the terrain around a world origin in the terminal
// and overlays tower sites as they move through the site lifecycle.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/askneller/WizardBattles/internal/observerproto"
	"github.com/askneller/WizardBattles/internal/sim/tuning"
	"github.com/askneller/WizardBattles/internal/sim/world/terrain/gen"
)

func main() {
	var (
		server     = flag.String("server", "http://127.0.0.1:8080", "server base url")
		offline    = flag.Bool("offline", false, "scan locally instead of following a server")
		seed       = flag.Int64("seed", 1337, "world seed for -offline")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		backlog    = flag.Int("backlog", 512, "recent events to replay on connect")
		sound      = flag.Bool("sound", false, "chime when a tower is built")
		originX    = flag.Int("x", 0, "initial centre x")
		originZ    = flag.Int("z", 0, "initial centre z")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[siteview] ", log.LstdFlags)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		tune = tuning.Defaults()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan observerproto.SiteEventMsg, 1024)
	worldSeed := *seed
	var initial []observerproto.SiteEventMsg
	status := "offline"

	if *offline {
		terrain := gen.NewTerrain(tune.TerrainParams(worldSeed))
		initial, err = scanOffline(ctx, tune, terrain, *originX, *originZ)
		if err != nil {
			logger.Fatalf("offline scan: %v", err)
		}
	} else {
		boot, err := fetchBootstrap(ctx, *server)
		if err != nil {
			logger.Fatalf("%v", err)
		}
		worldSeed = boot.WorldParams.Seed
		initial = bootstrapEvents(boot)
		conn, err := subscribe(ctx, *server, *backlog)
		if err != nil {
			logger.Fatalf("%v", err)
		}
		defer conn.Close()
		status = "live " + boot.WorldID
		go func() {
			if err := readEvents(ctx, conn, events); err != nil && ctx.Err() == nil {
				logger.Printf("stream closed: %v", err)
				cancel()
			}
		}()
	}

	terrain := gen.NewTerrain(tune.TerrainParams(worldSeed))
	m := newModel(terrain, terrain.SeaLevel(), tune.World.SnowLine+32)
	m.centerX, m.centerZ = *originX, *originZ
	m.status = status
	for _, ev := range initial {
		m.apply(ev)
	}

	cue := newChime(*sound, logger)

	screen, err := tcell.NewScreen()
	if err != nil {
		logger.Fatalf("screen: %v", err)
	}
	if err := screen.Init(); err != nil {
		logger.Fatalf("screen init: %v", err)
	}
	defer screen.Fini()

	run(ctx, screen, m, events, cue)
}

// bootstrapEvents turns the bootstrap tower list into BUILT events so the
// map starts with every existing tower.
func bootstrapEvents(boot observerproto.BootstrapResponse) []observerproto.SiteEventMsg {
	out := make([]observerproto.SiteEventMsg, 0, len(boot.Towers))
	for _, t := range boot.Towers {
		out = append(out, observerproto.SiteEventMsg{
			Type:            observerproto.TypeSiteEvent,
			ProtocolVersion: observerproto.Version,
			Kind:            "SITE_BUILT",
			Pos:             t.Pos,
			Template:        t.Template,
			Rotation:        t.Rotation,
		})
	}
	return out
}

func run(ctx context.Context, screen tcell.Screen, m *model, events <-chan observerproto.SiteEventMsg, cue *chime) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	eventChan := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			eventChan <- ev
		}
	}()

	dirty := true
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-eventChan:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if !m.handleKey(ev) {
					return
				}
			case *tcell.EventResize:
				screen.Sync()
			}
			dirty = true
		case ev := <-events:
			if m.apply(ev) {
				cue.built()
				m.status = fmt.Sprintf("built %s at (%d,%d,%d)", ev.Template, ev.Pos[0], ev.Pos[1], ev.Pos[2])
			}
			dirty = true
		case <-ticker.C:
			if dirty {
				m.draw(screen)
				dirty = false
			}
		}
	}
}
