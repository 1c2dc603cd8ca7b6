// Package storage persists servers, raw authorities, normalized names and
// clusters in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kobza-harvester/authdedup/internal/models"
)

// ErrNoRecords is returned when a snapshot is requested from an empty table.
var ErrNoRecords = errors.New("no records")

const schema = `
CREATE TABLE IF NOT EXISTS servers (
	server_id INTEGER PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	endpoint TEXT NOT NULL DEFAULT '',
	given_name_repeats_entry INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS authsource (
	auth_id INTEGER PRIMARY KEY,
	server_id INTEGER NOT NULL,
	source_authid TEXT NOT NULL,
	authtype TEXT NOT NULL DEFAULT '',
	used_count INTEGER NOT NULL DEFAULT 0,
	xmlrecord TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS authsource_normalized (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	auth_id INTEGER NOT NULL,
	server_id INTEGER NOT NULL,
	source_authid TEXT NOT NULL,
	field INTEGER NOT NULL,
	entryname TEXT NOT NULL,
	given_name TEXT NOT NULL DEFAULT '',
	initials TEXT NOT NULL DEFAULT '',
	dates TEXT NOT NULL DEFAULT '',
	roman TEXT NOT NULL DEFAULT '',
	isni TEXT NOT NULL DEFAULT '',
	lang TEXT NOT NULL DEFAULT '',
	full_name TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_authsource_normalized_auth_id ON authsource_normalized(auth_id);

CREATE TABLE IF NOT EXISTS authsource_clusters (
	auth_id INTEGER PRIMARY KEY,
	cluster_id INTEGER NOT NULL,
	run_id TEXT NOT NULL DEFAULT ''
);
`

// Store is a SQLite backed store. Writes are serialized.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func isInMemory(path string) bool {
	return path == ":memory:" || (strings.HasPrefix(path, "file:") && strings.Contains(path, "mode=memory"))
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each in-memory connection is a separate database.
	if isInMemory(path) {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if !isInMemory(path) {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction, committing on success.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpsertServers registers or updates servers.
func (s *Store) UpsertServers(ctx context.Context, servers []models.Server) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO servers (server_id, name, endpoint, given_name_repeats_entry)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(server_id) DO UPDATE SET
				name = excluded.name,
				endpoint = excluded.endpoint,
				given_name_repeats_entry = excluded.given_name_repeats_entry`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, srv := range servers {
			if _, err := stmt.ExecContext(ctx, srv.ID, srv.Name, srv.Endpoint, srv.GivenNameRepeatsEntry); err != nil {
				return fmt.Errorf("failed to upsert server %d: %w", srv.ID, err)
			}
		}
		return nil
	})
}

// Servers lists registered servers ordered by id.
func (s *Store) Servers(ctx context.Context) ([]models.Server, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT server_id, name, endpoint, given_name_repeats_entry FROM servers ORDER BY server_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query servers: %w", err)
	}
	defer rows.Close()

	var out []models.Server
	for rows.Next() {
		var srv models.Server
		if err := rows.Scan(&srv.ID, &srv.Name, &srv.Endpoint, &srv.GivenNameRepeatsEntry); err != nil {
			return nil, fmt.Errorf("failed to scan server: %w", err)
		}
		out = append(out, srv)
	}
	return out, rows.Err()
}

// ImportAuthorities inserts or replaces raw authorities by auth id.
func (s *Store) ImportAuthorities(ctx context.Context, raws []models.RawAuthority) (int, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO authsource (auth_id, server_id, source_authid, authtype, used_count, xmlrecord)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, r := range raws {
			if _, err := stmt.ExecContext(ctx, r.EntityID, r.ServerID, r.SourceAuthID, r.AuthType, r.UsedCount, r.XMLRecord); err != nil {
				return fmt.Errorf("failed to import authority %d: %w", r.EntityID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(raws), nil
}

// RawAuthorities returns raw authorities ordered by auth id. Passing auth ids
// restricts the result to those records.
func (s *Store) RawAuthorities(ctx context.Context, authIDs ...int64) ([]models.RawAuthority, error) {
	query := `SELECT auth_id, server_id, source_authid, authtype, used_count, xmlrecord FROM authsource`
	args := make([]any, 0, len(authIDs))
	if len(authIDs) > 0 {
		query += ` WHERE auth_id IN (` + strings.TrimSuffix(strings.Repeat("?,", len(authIDs)), ",") + `)`
		for _, id := range authIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY auth_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query authorities: %w", err)
	}
	defer rows.Close()

	var out []models.RawAuthority
	for rows.Next() {
		var r models.RawAuthority
		if err := rows.Scan(&r.EntityID, &r.ServerID, &r.SourceAuthID, &r.AuthType, &r.UsedCount, &r.XMLRecord); err != nil {
			return nil, fmt.Errorf("failed to scan authority: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Usage maps every auth id to its usage count.
func (s *Store) Usage(ctx context.Context) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT auth_id, used_count FROM authsource`)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage counts: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]int)
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("failed to scan usage count: %w", err)
		}
		out[id] = n
	}
	return out, rows.Err()
}

// ReplaceNameRecords atomically replaces all name records of every entity in
// byEntity. An entity mapped to no records ends up with none.
func (s *Store) ReplaceNameRecords(ctx context.Context, byEntity map[int64][]models.NameRecord) error {
	ids := make([]int64, 0, len(byEntity))
	for id := range byEntity {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return s.withTx(ctx, func(tx *sql.Tx) error {
		del, err := tx.PrepareContext(ctx, `DELETE FROM authsource_normalized WHERE auth_id = ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare delete: %w", err)
		}
		defer del.Close()

		ins, err := tx.PrepareContext(ctx, `
			INSERT INTO authsource_normalized
			(auth_id, server_id, source_authid, field, entryname, given_name, initials, dates, roman, isni, lang, full_name)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer ins.Close()

		for _, id := range ids {
			if _, err := del.ExecContext(ctx, id); err != nil {
				return fmt.Errorf("failed to delete names of %d: %w", id, err)
			}
			for _, r := range byEntity[id] {
				if r.EntryName == "" {
					return fmt.Errorf("name record of %d has no entry name", id)
				}
				if _, err := ins.ExecContext(ctx, r.EntityID, r.ServerID, r.SourceAuthID, int(r.FieldKind),
					r.EntryName, r.GivenName, r.Initials, r.Dates, r.Roman, r.Identifier, r.Lang, r.FullName); err != nil {
					return fmt.Errorf("failed to insert name of %d: %w", id, err)
				}
			}
		}
		return nil
	})
}

// NameRecords returns the normalized snapshot ordered by row id.
func (s *Store) NameRecords(ctx context.Context) ([]models.NameRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, auth_id, server_id, source_authid, field, entryname, given_name, initials, dates, roman, isni, lang, full_name
		FROM authsource_normalized ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query name records: %w", err)
	}
	defer rows.Close()

	var out []models.NameRecord
	for rows.Next() {
		var r models.NameRecord
		var field int
		if err := rows.Scan(&r.ID, &r.EntityID, &r.ServerID, &r.SourceAuthID, &field, &r.EntryName, &r.GivenName,
			&r.Initials, &r.Dates, &r.Roman, &r.Identifier, &r.Lang, &r.FullName); err != nil {
			return nil, fmt.Errorf("failed to scan name record: %w", err)
		}
		r.FieldKind = models.FieldKind(field)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read name records: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNoRecords
	}
	return out, nil
}

// ReplaceClusters replaces the whole cluster table.
func (s *Store) ReplaceClusters(ctx context.Context, runID string, assignments []models.ClusterAssignment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM authsource_clusters`); err != nil {
			return fmt.Errorf("failed to clear clusters: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO authsource_clusters (auth_id, cluster_id, run_id) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, a := range assignments {
			if _, err := stmt.ExecContext(ctx, a.EntityID, a.ClusterID, runID); err != nil {
				return fmt.Errorf("failed to insert cluster row for %d: %w", a.EntityID, err)
			}
		}
		return nil
	})
}

// Clusters returns the cluster table ordered by cluster then auth id.
func (s *Store) Clusters(ctx context.Context) ([]models.ClusterAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT auth_id, cluster_id FROM authsource_clusters ORDER BY cluster_id, auth_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clusters: %w", err)
	}
	defer rows.Close()

	var out []models.ClusterAssignment
	for rows.Next() {
		var a models.ClusterAssignment
		if err := rows.Scan(&a.EntityID, &a.ClusterID); err != nil {
			return nil, fmt.Errorf("failed to scan cluster row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
