// Package registry implements the durable peer registry. It is the single
// owner of peer records: every mutation goes through here, is applied under
// one mutex, and is persisted to SQLite before the call returns. Other
// components only ever see read-only PeerInfo snapshots.
package registry

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/verimesh/verimesh/internal/domain"
	"github.com/verimesh/verimesh/internal/infra/metrics"
	"github.com/verimesh/verimesh/internal/infra/sqlite"
)

// Registry is the in-memory peer table backed by SQLite. Extended per-peer
// dossiers (PeerDetails) live as JSON files under detailsDir.
type Registry struct {
	mu         sync.Mutex
	db         *sqlite.DB
	detailsDir string
	peers      map[string]*domain.Peer
}

// New loads the persisted peer table and returns a ready Registry.
func New(db *sqlite.DB, detailsDir string) (*Registry, error) {
	persisted, err := db.ListPeers()
	if err != nil {
		return nil, fmt.Errorf("load peer registry: %w", err)
	}

	peers := make(map[string]*domain.Peer, len(persisted))
	for i := range persisted {
		p := persisted[i]
		peers[p.ID] = &p
	}
	log.Printf("[registry] loaded %d peers", len(peers))

	r := &Registry{db: db, detailsDir: detailsDir, peers: peers}
	r.updateGauges()
	return r, nil
}

// Add registers a peer in Unknown status. Re-adding an existing id
// overwrites its endpoint and timestamp; no history is preserved.
func (r *Registry) Add(id, endpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := &domain.Peer{
		ID:         id,
		Endpoint:   endpoint,
		LastSeen:   time.Now(),
		Status:     domain.PeerUnknown,
		SyncStatus: map[string]domain.ComponentSyncStatus{},
	}
	if err := r.db.UpsertPeer(*p); err != nil {
		return err
	}
	r.peers[id] = p
	r.updateGauges()

	log.Printf("[registry] added peer %s at %s", id, endpoint)
	return nil
}

// Remove deletes a peer. Removing an absent id is a no-op with a warning —
// removal is always successful from the caller's perspective.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[id]; !ok {
		log.Printf("[registry] WARNING: attempted to remove unknown peer %s", id)
		return nil
	}
	if err := r.db.DeletePeer(id); err != nil {
		return err
	}
	delete(r.peers, id)
	r.updateGauges()

	log.Printf("[registry] removed peer %s", id)
	return nil
}

// List returns snapshots of all peers, sorted by id for deterministic
// iteration.
func (r *Registry) List() []domain.PeerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]domain.PeerInfo, 0, len(r.peers))
	for _, p := range r.peers {
		infos = append(infos, p.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Get returns a snapshot of one peer.
func (r *Registry) Get(id string) (domain.PeerInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[id]
	if !ok {
		return domain.PeerInfo{}, fmt.Errorf("%w: %s", domain.ErrUnknownPeer, id)
	}
	return p.Info(), nil
}

// UpdateStatus transitions a peer's status and refreshes its last_seen
// timestamp. Fails if the peer was never added.
func (r *Registry) UpdateStatus(id string, status domain.PeerStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownPeer, id)
	}
	p.Status = status
	p.LastSeen = time.Now()
	if err := r.db.UpsertPeer(*p); err != nil {
		return err
	}
	r.updateGauges()
	return nil
}

// SetSyncStatus records the outcome of a completed sync round for one
// component. The per-component entry is created lazily on the first round
// and overwritten on each successful one.
func (r *Registry) SetSyncStatus(id, component string, st domain.ComponentSyncStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownPeer, id)
	}
	if p.SyncStatus == nil {
		p.SyncStatus = map[string]domain.ComponentSyncStatus{}
	}
	p.SyncStatus[component] = st
	return r.db.UpsertPeer(*p)
}

// SyncStatus returns a copy of the per-component sync table for a peer.
func (r *Registry) SyncStatus(id string) (map[string]domain.ComponentSyncStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownPeer, id)
	}
	out := make(map[string]domain.ComponentSyncStatus, len(p.SyncStatus))
	for k, v := range p.SyncStatus {
		out[k] = v
	}
	return out, nil
}

// Count returns the number of registered peers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// updateGauges refreshes the per-status peer gauges. Caller holds r.mu.
func (r *Registry) updateGauges() {
	counts := map[domain.PeerStatus]int{}
	for _, p := range r.peers {
		counts[p.Status]++
	}
	for _, s := range []domain.PeerStatus{
		domain.PeerUnknown, domain.PeerOnline, domain.PeerOffline,
		domain.PeerSynchronizing, domain.PeerError,
	} {
		metrics.PeersByStatus.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}
