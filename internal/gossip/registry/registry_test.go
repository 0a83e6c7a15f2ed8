package registry

import (
	"errors"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/verimesh/verimesh/internal/domain"
	"github.com/verimesh/verimesh/internal/infra/sqlite"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	r, err := New(db, filepath.Join(dir, "peers"))
	if err != nil {
		t.Fatalf("New registry: %v", err)
	}
	return r, dir
}

func TestUpdateStatus_UnknownPeer(t *testing.T) {
	r, _ := newTestRegistry(t)

	err := r.UpdateStatus("ghost", domain.PeerOnline)
	if !errors.Is(err, domain.ErrUnknownPeer) {
		t.Errorf("UpdateStatus(unregistered) = %v, want ErrUnknownPeer", err)
	}

	if err := r.Add("ghost", "10.0.0.1:29876"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.UpdateStatus("ghost", domain.PeerOnline); err != nil {
		t.Errorf("UpdateStatus after Add = %v, want nil", err)
	}
}

func TestAdd_CreatesUnknownStatus(t *testing.T) {
	r, _ := newTestRegistry(t)

	if err := r.Add("n1", "10.0.0.1:29876"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	p, err := r.Get("n1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Status != domain.PeerUnknown {
		t.Errorf("new peer status = %v, want unknown", p.Status)
	}
}

func TestAdd_IdempotentOverwrite(t *testing.T) {
	r, _ := newTestRegistry(t)

	if err := r.Add("n1", "10.0.0.1:29876"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.UpdateStatus("n1", domain.PeerOnline); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	// Re-add: endpoint overwritten, history discarded, status back to unknown.
	if err := r.Add("n1", "10.0.0.2:29876"); err != nil {
		t.Fatalf("re-Add: %v", err)
	}

	p, _ := r.Get("n1")
	if p.Endpoint != "10.0.0.2:29876" {
		t.Errorf("endpoint = %s, want overwritten", p.Endpoint)
	}
	if p.Status != domain.PeerUnknown {
		t.Errorf("status after re-add = %v, want unknown", p.Status)
	}
}

func TestRemove_AbsentIsNoOp(t *testing.T) {
	r, _ := newTestRegistry(t)
	if err := r.Remove("never-added"); err != nil {
		t.Errorf("Remove(absent) = %v, want nil", err)
	}
}

func TestList_SortedByID(t *testing.T) {
	r, _ := newTestRegistry(t)

	// Insert in a deliberately unsorted order.
	for _, id := range []string{"zeta", "alpha", "mike", "bravo"} {
		if err := r.Add(id, "10.0.0.1:29876"); err != nil {
			t.Fatalf("Add(%s): %v", id, err)
		}
	}

	infos := r.List()
	if len(infos) != 4 {
		t.Fatalf("got %d peers, want 4", len(infos))
	}
	if !sort.SliceIsSorted(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID }) {
		t.Errorf("List() not sorted by id: %+v", infos)
	}
}

func TestRegistry_PersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open db: %v", err)
	}

	r, err := New(db, filepath.Join(dir, "peers"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Add("survivor", "10.0.0.9:29876"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.UpdateStatus("survivor", domain.PeerOnline); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	db.Close()

	// Simulate restart.
	db2, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("reopen db: %v", err)
	}
	defer db2.Close()
	r2, err := New(db2, filepath.Join(dir, "peers"))
	if err != nil {
		t.Fatalf("New after restart: %v", err)
	}

	p, err := r2.Get("survivor")
	if err != nil {
		t.Fatalf("Get after restart: %v", err)
	}
	if p.Status != domain.PeerOnline {
		t.Errorf("status after restart = %v, want online", p.Status)
	}
}

func TestSetSyncStatus(t *testing.T) {
	r, _ := newTestRegistry(t)

	if err := r.SetSyncStatus("ghost", "core", domain.ComponentSyncStatus{}); !errors.Is(err, domain.ErrUnknownPeer) {
		t.Errorf("SetSyncStatus(unknown) = %v, want ErrUnknownPeer", err)
	}

	if err := r.Add("n1", "10.0.0.1:29876"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	st := domain.ComponentSyncStatus{
		Component: "core",
		LastSync:  time.Now(),
		StateHash: "h1",
		Progress:  100,
	}
	if err := r.SetSyncStatus("n1", "core", st); err != nil {
		t.Fatalf("SetSyncStatus: %v", err)
	}

	got, err := r.SyncStatus("n1")
	if err != nil {
		t.Fatalf("SyncStatus: %v", err)
	}
	if got["core"].StateHash != "h1" || got["core"].Progress != 100 {
		t.Errorf("sync status = %+v", got["core"])
	}
}
