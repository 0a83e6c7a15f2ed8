package sqlite

import (
	"testing"
	"time"

	"github.com/verimesh/verimesh/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// ─── Peers ──────────────────────────────────────────────────────────────────

func TestUpsertAndListPeers(t *testing.T) {
	db := openTestDB(t)

	p := domain.Peer{
		ID:       "node-aaaa",
		Endpoint: "10.0.0.7:29876",
		LastSeen: time.Unix(1700000000, 0),
		Status:   domain.PeerOnline,
		SyncStatus: map[string]domain.ComponentSyncStatus{
			"core": {Component: "core", LastSync: time.Unix(1700000000, 0), StateHash: "abc", Progress: 100},
		},
	}
	if err := db.UpsertPeer(p); err != nil {
		t.Fatalf("UpsertPeer: %v", err)
	}

	peers, err := db.ListPeers()
	if err != nil {
		t.Fatalf("ListPeers: %v", err)
	}
	if len(peers) != 1 {
		t.Fatalf("got %d peers, want 1", len(peers))
	}
	got := peers[0]
	if got.ID != p.ID || got.Endpoint != p.Endpoint {
		t.Errorf("identity mismatch: got %s@%s", got.ID, got.Endpoint)
	}
	if got.Status != domain.PeerOnline {
		t.Errorf("status = %v, want online", got.Status)
	}
	if !got.LastSeen.Equal(p.LastSeen) {
		t.Errorf("last_seen = %v, want %v", got.LastSeen, p.LastSeen)
	}
	if got.SyncStatus["core"].StateHash != "abc" {
		t.Errorf("sync status not round-tripped: %+v", got.SyncStatus)
	}
}

func TestUpsertPeer_OverwritesEndpoint(t *testing.T) {
	db := openTestDB(t)

	p := domain.Peer{ID: "node-b", Endpoint: "10.0.0.1:29876", LastSeen: time.Now(), Status: domain.PeerUnknown}
	if err := db.UpsertPeer(p); err != nil {
		t.Fatalf("UpsertPeer: %v", err)
	}
	p.Endpoint = "10.0.0.2:29876"
	if err := db.UpsertPeer(p); err != nil {
		t.Fatalf("UpsertPeer (second): %v", err)
	}

	peers, _ := db.ListPeers()
	if len(peers) != 1 || peers[0].Endpoint != "10.0.0.2:29876" {
		t.Errorf("re-add did not overwrite endpoint: %+v", peers)
	}
}

func TestDeletePeer_AbsentIsNotError(t *testing.T) {
	db := openTestDB(t)
	if err := db.DeletePeer("never-added"); err != nil {
		t.Errorf("DeletePeer(absent) = %v, want nil", err)
	}
}

// ─── Protocol State ─────────────────────────────────────────────────────────

func TestProtocolState_FirstRunIsNil(t *testing.T) {
	db := openTestDB(t)
	st, err := db.LoadProtocolState()
	if err != nil {
		t.Fatalf("LoadProtocolState: %v", err)
	}
	if st != nil {
		t.Errorf("expected nil state on first run, got %+v", st)
	}
}

func TestProtocolState_RoundTrip(t *testing.T) {
	db := openTestDB(t)

	want := domain.ProtocolState{
		NodeID:        "0011223344556677",
		Enabled:       true,
		Capabilities:  []string{"sync", "discovery"},
		Version:       "0.1.0",
		LastHeartbeat: time.Unix(1700000100, 0),
	}
	if err := db.SaveProtocolState(want); err != nil {
		t.Fatalf("SaveProtocolState: %v", err)
	}

	got, err := db.LoadProtocolState()
	if err != nil {
		t.Fatalf("LoadProtocolState: %v", err)
	}
	if got == nil {
		t.Fatal("got nil state after save")
	}
	if got.NodeID != want.NodeID || !got.Enabled || got.Version != want.Version {
		t.Errorf("state = %+v, want %+v", got, want)
	}
	if len(got.Capabilities) != 2 || got.Capabilities[0] != "sync" {
		t.Errorf("capabilities = %v", got.Capabilities)
	}
	if !got.LastHeartbeat.Equal(want.LastHeartbeat) {
		t.Errorf("last_heartbeat = %v, want %v", got.LastHeartbeat, want.LastHeartbeat)
	}
}

func TestProtocolState_NodeIDStableAcrossSaves(t *testing.T) {
	db := openTestDB(t)

	st := domain.ProtocolState{NodeID: "deadbeefdeadbeef", Enabled: true}
	if err := db.SaveProtocolState(st); err != nil {
		t.Fatalf("save: %v", err)
	}
	st.Enabled = false
	if err := db.SaveProtocolState(st); err != nil {
		t.Fatalf("save (disable): %v", err)
	}

	got, _ := db.LoadProtocolState()
	if got.NodeID != "deadbeefdeadbeef" {
		t.Errorf("node id changed: %s", got.NodeID)
	}
	if got.Enabled {
		t.Error("enabled flag not persisted")
	}
}
