package indexdb

import (
	"context"
	"fmt"
)

type SiteRow struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Z          int     `json:"z"`
	State      string  `json:"state"`
	Flatness   int     `json:"flatness"`
	RawHeight  float64 `json:"raw_height"`
	PeakLike   bool    `json:"peak_like"`
	BiomeMatch bool    `json:"biome_match"`
	Attempts   int     `json:"attempts"`
	Template   string  `json:"template,omitempty"`
	Rotation   int     `json:"rotation"`
	UpdatedAt  string  `json:"updated_at"`
}

type SpawnRow struct {
	Seq    uint64 `json:"seq"`
	Prefab string `json:"prefab"`
	Pos    [3]int `json:"pos"`
	Site   [3]int `json:"site"`
}

// Sites lists indexed sites, highest first. An empty state lists all.
func (s *SQLiteIndex) Sites(ctx context.Context, state string, limit int) ([]SiteRow, error) {
	if limit <= 0 || limit > 10000 {
		limit = 1000
	}
	q := `SELECT x,y,z,state,flatness,raw_height,peak_like,biome_match,attempts,template,rotation,updated_at FROM sites`
	args := []any{}
	if state != "" {
		q += ` WHERE state=?`
		args = append(args, state)
	}
	q += ` ORDER BY y DESC, x ASC, z ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query sites: %w", err)
	}
	defer rows.Close()

	var out []SiteRow
	for rows.Next() {
		var r SiteRow
		var peak, biome int
		if err := rows.Scan(&r.X, &r.Y, &r.Z, &r.State, &r.Flatness, &r.RawHeight, &peak, &biome, &r.Attempts, &r.Template, &r.Rotation, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.PeakLike = peak != 0
		r.BiomeMatch = biome != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) Spawns(ctx context.Context, limit int) ([]SpawnRow, error) {
	if limit <= 0 || limit > 10000 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `SELECT seq,prefab,x,y,z,site_x,site_y,site_z FROM spawns ORDER BY seq ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query spawns: %w", err)
	}
	defer rows.Close()

	var out []SpawnRow
	for rows.Next() {
		var r SpawnRow
		var seq int64
		if err := rows.Scan(&seq, &r.Prefab, &r.Pos[0], &r.Pos[1], &r.Pos[2], &r.Site[0], &r.Site[1], &r.Site[2]); err != nil {
			return nil, err
		}
		r.Seq = uint64(seq)
		out = append(out, r)
	}
	return out, rows.Err()
}

// EventCount counts indexed events of kind, or all events when kind is "".
func (s *SQLiteIndex) EventCount(ctx context.Context, kind string) (int, error) {
	q := `SELECT COUNT(*) FROM site_events`
	args := []any{}
	if kind != "" {
		q += ` WHERE kind=?`
		args = append(args, kind)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// CatalogDigest returns the stored digest of a catalog row.
func (s *SQLiteIndex) CatalogDigest(ctx context.Context, name string) (string, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM catalogs WHERE name=?`, name).Scan(&d)
	return d, err
}

func (s *SQLiteIndex) SnapshotCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n)
	return n, err
}
