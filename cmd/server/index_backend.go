package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/askneller/WizardBattles/internal/persistence/indexdb"
	"github.com/askneller/WizardBattles/internal/persistence/snapshot"
	"github.com/askneller/WizardBattles/internal/sim/catalogs"
	"github.com/askneller/WizardBattles/internal/sim/towers"
	"github.com/askneller/WizardBattles/internal/sim/tuning"
)

type runtimeIndex interface {
	towers.EventSink
	Close() error
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	Sites(ctx context.Context, state string, limit int) ([]indexdb.SiteRow, error)
	Stats() indexdb.Stats
}

func openRuntimeIndex(worldDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("WT_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(worldDir, "index", "world.sqlite")
		idx, err := indexdb.OpenSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported WT_INDEX_BACKEND: %s", backend)
	}
}
