package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/askneller/WizardBattles/internal/persistence/snapshot"
	"github.com/askneller/WizardBattles/internal/sim/catalogs"
	"github.com/askneller/WizardBattles/internal/sim/towers"
	"github.com/askneller/WizardBattles/internal/sim/tuning"
)

var ErrClosed = errors.New("indexdb: closed")

// SQLiteIndex is a queryable secondary index of site events. Writes are
// queued to a single writer goroutine and dropped when the queue is full;
// the JSONL event log remains the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropEvents    atomic.Uint64
	dropSnapshots atomic.Uint64
	writeErrors   atomic.Uint64
	eventsApplied atomic.Uint64
}

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqSnapshot
	reqFlush
)

type req struct {
	kind reqKind

	event    towers.Event
	snapshot snapshotRow
	done     chan struct{}
}

type snapshotRow struct {
	SavedAt  int64
	Path     string
	Seed     int64
	Height   int
	Chunks   int
	Towers   int
	Pending  int
	Rejected int
}

type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropEventTotal    uint64 `json:"drop_event_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	WriteErrorTotal   uint64 `json:"write_error_total"`
	EventsApplied     uint64 `json:"events_applied"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 65536)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS site_events (
			seq INTEGER PRIMARY KEY,
			at TEXT NOT NULL,
			kind TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			template TEXT,
			attempt INTEGER NOT NULL,
			detail TEXT,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_site_events_pos ON site_events(x, z, y, seq);`,
		`CREATE TABLE IF NOT EXISTS sites (
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			state TEXT NOT NULL,
			flatness INTEGER NOT NULL,
			raw_height REAL NOT NULL,
			peak_like INTEGER NOT NULL,
			biome_match INTEGER NOT NULL,
			attempts INTEGER NOT NULL,
			template TEXT NOT NULL DEFAULT '',
			rotation INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (x, y, z)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sites_state_y ON sites(state, y);`,
		`CREATE TABLE IF NOT EXISTS spawns (
			seq INTEGER PRIMARY KEY,
			prefab TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			site_x INTEGER NOT NULL,
			site_y INTEGER NOT NULL,
			site_z INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			saved_at INTEGER NOT NULL,
			path TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			height INTEGER NOT NULL,
			chunks INTEGER NOT NULL,
			towers INTEGER NOT NULL,
			pending INTEGER NOT NULL,
			rejected INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteSiteEvent queues e for indexing. It never blocks.
func (s *SQLiteIndex) WriteSiteEvent(e towers.Event) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqEvent, event: e}:
	default:
		s.dropEvents.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		SavedAt:  snap.Header.SavedAt,
		Path:     path,
		Seed:     snap.Seed,
		Height:   snap.Height,
		Chunks:   len(snap.Chunks),
		Towers:   len(snap.Towers),
		Pending:  len(snap.Pending),
		Rejected: len(snap.Rejected),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshots.Add(1)
	}
}

// Flush blocks until everything queued so far is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return ErrClosed
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropEventTotal:    s.dropEvents.Load(),
		DropSnapshotTotal: s.dropSnapshots.Load(),
		WriteErrorTotal:   s.writeErrors.Load(),
		EventsApplied:     s.eventsApplied.Load(),
	}
}

func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "blocks.json")); err == nil {
			rows = append(rows, kv{name: "blocks_defs", digest: cats.Blocks.DefsDigest, json: b})
		}
	}
	if b, _ := json.Marshal(cats.Blocks.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "blocks_palette", digest: cats.Blocks.PaletteDigest, json: b})
	}
	{
		defs := make([]catalogs.StructureDef, 0, len(cats.Structures.ByID))
		for _, d := range cats.Structures.ByID {
			defs = append(defs, d)
		}
		sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
		if b, _ := json.Marshal(defs); len(b) > 0 {
			rows = append(rows, kv{name: "structures", digest: cats.Structures.Digest, json: b})
		}
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func stateFor(k towers.EventKind) string {
	switch k {
	case towers.KindAdded, towers.KindReclaimed:
		return "pending"
	case towers.KindChecking:
		return "checking"
	case towers.KindBuilt:
		return "built"
	case towers.KindRejected:
		return "rejected"
	}
	return ""
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const upsertSiteSQL = `INSERT INTO sites(x,y,z,state,flatness,raw_height,peak_like,biome_match,attempts,template,rotation,updated_at)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(x,y,z) DO UPDATE SET
	state=excluded.state,
	attempts=max(sites.attempts, excluded.attempts),
	template=CASE WHEN excluded.template<>'' THEN excluded.template ELSE sites.template END,
	rotation=CASE WHEN excluded.state='built' THEN excluded.rotation ELSE sites.rotation END,
	updated_at=excluded.updated_at`

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO site_events(seq,at,kind,x,y,z,template,attempt,detail,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	upsertSite, _ := s.db.Prepare(upsertSiteSQL)
	insertSpawn, _ := s.db.Prepare(`INSERT OR REPLACE INTO spawns(seq,prefab,x,y,z,site_x,site_y,site_z) VALUES(?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(saved_at,path,seed,height,chunks,towers,pending,rejected) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertEvent, upsertSite, insertSpawn, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.writeErrors.Add(1)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrors.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		s.writeErrors.Add(1)
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return true
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqEvent:
			e := r.event
			p := e.Site.Pos
			raw, _ := json.Marshal(e)
			if !exec(insertEvent, int64(e.Seq), e.Time.UTC().Format(time.RFC3339Nano), string(e.Kind), p.X, p.Y, p.Z, e.Template, e.Attempt, e.Detail, string(raw)) {
				continue
			}
			if st := stateFor(e.Kind); st != "" {
				if !exec(upsertSite, p.X, p.Y, p.Z, st, e.Site.Flatness, float64(e.Site.RawHeight),
					boolInt(e.Site.PeakLike), boolInt(e.Site.BiomeMatch), e.Attempt, e.Template, e.Rotation,
					e.Time.UTC().Format(time.RFC3339Nano)) {
					continue
				}
			}
			if e.Kind == towers.KindSpawn {
				ok := true
				for _, sp := range e.Spawns {
					if ok = exec(insertSpawn, int64(e.Seq), sp.Prefab, sp.Pos[0], sp.Pos[1], sp.Pos[2], p.X, p.Y, p.Z); !ok {
						break
					}
				}
				if !ok {
					continue
				}
			}
			s.eventsApplied.Add(1)

		case reqSnapshot:
			sn := r.snapshot
			if !exec(insertSnapshot, sn.SavedAt, sn.Path, sn.Seed, sn.Height, sn.Chunks, sn.Towers, sn.Pending, sn.Rejected) {
				continue
			}
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}
