// Package sqlite provides SQLite-based persistent storage for VeriMesh.
// Uses WAL mode for concurrent reads and crash-safe writes. The peer
// registry and protocol state both persist here synchronously, so a crash
// immediately after a successful mutation never loses the update.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/verimesh/verimesh/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS peers (
			id          TEXT PRIMARY KEY,
			endpoint    TEXT NOT NULL,
			last_seen   INTEGER NOT NULL,
			status      TEXT NOT NULL DEFAULT 'unknown',
			sync_status TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS protocol_state (
			id             INTEGER PRIMARY KEY CHECK (id = 1),
			node_id        TEXT NOT NULL,
			enabled        BOOLEAN NOT NULL DEFAULT 1,
			capabilities   TEXT NOT NULL DEFAULT '[]',
			version        TEXT NOT NULL DEFAULT '',
			last_heartbeat INTEGER NOT NULL DEFAULT 0
		)`,
	}

	for i, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

// ─── Peers ──────────────────────────────────────────────────────────────────

// UpsertPeer inserts or replaces the full record for a peer.
func (d *DB) UpsertPeer(p domain.Peer) error {
	syncJSON, err := json.Marshal(p.SyncStatus)
	if err != nil {
		return fmt.Errorf("marshal sync status: %w", err)
	}

	_, err = d.db.Exec(`
		INSERT INTO peers (id, endpoint, last_seen, status, sync_status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			endpoint    = excluded.endpoint,
			last_seen   = excluded.last_seen,
			status      = excluded.status,
			sync_status = excluded.sync_status`,
		p.ID, p.Endpoint, p.LastSeen.Unix(), p.Status.String(), string(syncJSON))
	if err != nil {
		return fmt.Errorf("upsert peer %s: %w", p.ID, err)
	}
	return nil
}

// DeletePeer removes a peer record. Deleting an absent id is not an error.
func (d *DB) DeletePeer(id string) error {
	if _, err := d.db.Exec(`DELETE FROM peers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete peer %s: %w", id, err)
	}
	return nil
}

// ListPeers returns every persisted peer record.
func (d *DB) ListPeers() ([]domain.Peer, error) {
	rows, err := d.db.Query(`SELECT id, endpoint, last_seen, status, sync_status FROM peers`)
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	defer rows.Close()

	var peers []domain.Peer
	for rows.Next() {
		var (
			p        domain.Peer
			lastSeen int64
			status   string
			syncJSON string
		)
		if err := rows.Scan(&p.ID, &p.Endpoint, &lastSeen, &status, &syncJSON); err != nil {
			return nil, fmt.Errorf("scan peer: %w", err)
		}
		p.LastSeen = time.Unix(lastSeen, 0)
		if p.Status, err = domain.ParsePeerStatus(status); err != nil {
			return nil, fmt.Errorf("peer %s: %w", p.ID, err)
		}
		if err := json.Unmarshal([]byte(syncJSON), &p.SyncStatus); err != nil {
			return nil, fmt.Errorf("peer %s sync status: %w", p.ID, err)
		}
		if p.SyncStatus == nil {
			p.SyncStatus = map[string]domain.ComponentSyncStatus{}
		}
		peers = append(peers, p)
	}
	return peers, rows.Err()
}

// ─── Protocol State ─────────────────────────────────────────────────────────

// LoadProtocolState returns the persisted protocol state, or nil if the
// node has never run before.
func (d *DB) LoadProtocolState() (*domain.ProtocolState, error) {
	row := d.db.QueryRow(`
		SELECT node_id, enabled, capabilities, version, last_heartbeat
		FROM protocol_state WHERE id = 1`)

	var (
		st       domain.ProtocolState
		capsJSON string
		lastHB   int64
	)
	err := row.Scan(&st.NodeID, &st.Enabled, &capsJSON, &st.Version, &lastHB)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load protocol state: %w", err)
	}
	if err := json.Unmarshal([]byte(capsJSON), &st.Capabilities); err != nil {
		return nil, fmt.Errorf("protocol capabilities: %w", err)
	}
	st.LastHeartbeat = time.Unix(lastHB, 0)
	return &st, nil
}

// SaveProtocolState persists the protocol state (single row).
func (d *DB) SaveProtocolState(st domain.ProtocolState) error {
	capsJSON, err := json.Marshal(st.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal capabilities: %w", err)
	}

	_, err = d.db.Exec(`
		INSERT INTO protocol_state (id, node_id, enabled, capabilities, version, last_heartbeat)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			node_id        = excluded.node_id,
			enabled        = excluded.enabled,
			capabilities   = excluded.capabilities,
			version        = excluded.version,
			last_heartbeat = excluded.last_heartbeat`,
		st.NodeID, st.Enabled, string(capsJSON), st.Version, st.LastHeartbeat.Unix())
	if err != nil {
		return fmt.Errorf("save protocol state: %w", err)
	}
	return nil
}
