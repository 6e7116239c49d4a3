package indexdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"roomforge/internal/persistence/snapshot"
	"roomforge/internal/sim/catalogs"
	"roomforge/internal/sim/room"
	"roomforge/internal/sim/tuning"
)

// SQLiteIndex is a write-behind read model of the room's history: audits
// and saved layouts land here for querying, never for the engine's own
// decisions. Writes go through a background goroutine so the tick loop
// never blocks on the database.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropAuditTotal  atomic.Uint64
	dropLayoutTotal atomic.Uint64

	auditSeq uint64 // assigned in the writer goroutine
}

type reqKind int

const (
	reqAudit reqKind = iota + 1
	reqLayout
)

type req struct {
	kind reqKind

	audit  room.AuditEntry
	layout layoutRow
}

type layoutRow struct {
	Tick       uint64
	Path       string
	Width      int
	Height     int
	Depth      int
	Placements int
	Digest     string
	RecordedAt string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
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
		ch: make(chan req, 8192),
	}
	// Resume the audit sequence where the previous run left off, so a
	// restart appends instead of overwriting earlier rows.
	var maxSeq int64
	if err := db.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM audits`).Scan(&maxSeq); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.auditSeq = uint64(maxSeq)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads; NORMAL durability is
	// fine for a secondary index (the JSONL logs stay the source of truth).
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
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
		`CREATE TABLE IF NOT EXISTS audits (
			seq INTEGER PRIMARY KEY,
			tick INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			placement_id INTEGER NOT NULL,
			piece TEXT,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_actor_tick ON audits(actor, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_placement ON audits(placement_id, tick);`,
		`CREATE TABLE IF NOT EXISTS layouts (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			depth INTEGER NOT NULL,
			placements INTEGER NOT NULL,
			digest TEXT NOT NULL,
			recorded_at TEXT NOT NULL
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

func (s *SQLiteIndex) WriteAudit(entry room.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropAuditTotal.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordLayout(path string, lay snapshot.LayoutV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := layoutRow{
		Tick:       lay.Header.Tick,
		Path:       path,
		Width:      lay.GridSize[0],
		Height:     lay.GridSize[1],
		Depth:      lay.GridSize[2],
		Placements: len(lay.Placements),
		Digest:     lay.Digest,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqLayout, layout: r}:
	default:
		s.dropLayoutTotal.Add(1)
	}
}

// UpsertCatalogs stores the authored piece catalog and effective tuning so
// a saved database is self-describing.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var rows []struct {
		name   string
		digest string
		json   []byte
	}
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "pieces.json")); err == nil && len(b) > 0 {
			rows = append(rows, struct {
				name   string
				digest string
				json   []byte
			}{"pieces", cats.Pieces.Digest, b})
		}
	}
	if b, err := json.Marshal(tune); err == nil {
		rows = append(rows, struct {
			name   string
			digest string
			json   []byte
		}{"tuning", "", b})
	}

	for _, r := range rows {
		if _, err := s.db.Exec(
			`INSERT INTO catalogs(name, digest, json, updated_at) VALUES(?,?,?,?)
			 ON CONFLICT(name) DO UPDATE SET digest=excluded.digest, json=excluded.json, updated_at=excluded.updated_at`,
			r.name, r.digest, string(r.json), now,
		); err != nil {
			return err
		}
	}
	return nil
}

type Stats struct {
	DropAuditTotal  uint64
	DropLayoutTotal uint64
	QueueDepth      int
	QueueCapacity   int
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		DropAuditTotal:  s.dropAuditTotal.Load(),
		DropLayoutTotal: s.dropLayoutTotal.Load(),
		QueueDepth:      len(s.ch),
		QueueCapacity:   cap(s.ch),
	}
}

func (s *SQLiteIndex) loop() {
	for r := range s.ch {
		switch r.kind {
		case reqAudit:
			s.auditSeq++
			raw, _ := json.Marshal(r.audit)
			_, _ = s.db.Exec(
				`INSERT OR REPLACE INTO audits(seq, tick, actor, action, placement_id, piece, raw_json) VALUES(?,?,?,?,?,?,?)`,
				s.auditSeq, r.audit.Tick, r.audit.Actor, r.audit.Action, r.audit.PlacementID, r.audit.Piece, string(raw),
			)
		case reqLayout:
			_, _ = s.db.Exec(
				`INSERT OR REPLACE INTO layouts(tick, path, width, height, depth, placements, digest, recorded_at) VALUES(?,?,?,?,?,?,?,?)`,
				r.layout.Tick, r.layout.Path, r.layout.Width, r.layout.Height, r.layout.Depth,
				r.layout.Placements, r.layout.Digest, r.layout.RecordedAt,
			)
		}
	}
}

// LayoutRef is one saved layout row, newest first from ListLayouts.
type LayoutRef struct {
	Tick       uint64
	Path       string
	Placements int
	Digest     string
	RecordedAt string
}

func (s *SQLiteIndex) ListLayouts(limit int) ([]LayoutRef, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT tick, path, placements, digest, recorded_at FROM layouts ORDER BY tick DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LayoutRef
	for rows.Next() {
		var r LayoutRef
		if err := rows.Scan(&r.Tick, &r.Path, &r.Placements, &r.Digest, &r.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) AuditCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM audits`).Scan(&n)
	return n, err
}
