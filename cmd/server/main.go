package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/askneller/WizardBattles/internal/sim/catalogs"
	"github.com/askneller/WizardBattles/internal/sim/tuning"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		seed       = flag.Int64("seed", 1337, "world seed (used only when starting a fresh world)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite site index")
		originX    = flag.Int("origin_x", 0, "world x the generation rings are centred on")
		originZ    = flag.Int("origin_z", 0, "world z the generation rings are centred on")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	rt, err := newWorldRuntime(runtimeConfig{
		WorldID:      *worldID,
		Seed:         *seed,
		ConfigDir:    *configDir,
		DataDir:      *dataDir,
		DisableDB:    *disableDB,
		OriginX:      *originX,
		OriginZ:      *originZ,
		SnapshotPath: *snapPath,
		LoadLatest:   *loadLatest,
	}, tune, cats, logger)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()

	srv := &http.Server{
		Addr: *addr,
		Handler: rt.routes(httpOptions{
			EnableAdmin: envBool("WT_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()),
			EnablePprof: envBool("WT_ENABLE_PPROF_HTTP", false),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := rt.session.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := rt.generate(gctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("generation stopped: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		rt.snapshotLoop(gctx, time.Duration(tune.Placement.SnapshotEveryMin)*time.Minute)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})
	g.Go(func() error {
		logger.Printf("listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Printf("server stopped: %v", err)
	}

	if path, err := rt.saveSnapshot(time.Now()); err != nil {
		logger.Printf("final snapshot: %v", err)
	} else {
		logger.Printf("final snapshot %s", filepath.Base(path))
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
