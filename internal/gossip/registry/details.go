package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/verimesh/verimesh/internal/domain"
)

// Per-peer dossiers: everything a peer has advertised about itself plus a
// bounded sync history. One JSON file per peer under detailsDir.

const maxSyncHistory = 50

func (r *Registry) detailsPath(id string) string {
	return filepath.Join(r.detailsDir, id+".json")
}

// LoadDetails reads a peer's dossier from disk.
func (r *Registry) LoadDetails(id string) (*domain.PeerDetails, error) {
	data, err := os.ReadFile(r.detailsPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no details for %s", domain.ErrUnknownPeer, id)
		}
		return nil, fmt.Errorf("read peer details %s: %w", id, err)
	}
	var d domain.PeerDetails
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse peer details %s: %w", id, err)
	}
	return &d, nil
}

// SaveDetails writes a peer's dossier to disk.
func (r *Registry) SaveDetails(d *domain.PeerDetails) error {
	if err := os.MkdirAll(r.detailsDir, 0700); err != nil {
		return fmt.Errorf("create details dir: %w", err)
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize peer details %s: %w", d.ID, err)
	}
	if err := os.WriteFile(r.detailsPath(d.ID), data, 0644); err != nil {
		return fmt.Errorf("write peer details %s: %w", d.ID, err)
	}
	return nil
}

// AppendSyncEvent records one sync event in a peer's history, keeping the
// most recent maxSyncHistory entries.
func (r *Registry) AppendSyncEvent(id string, ev domain.SyncEvent) error {
	d, err := r.LoadDetails(id)
	if err != nil {
		p, gerr := r.Get(id)
		if gerr != nil {
			return gerr
		}
		d = &domain.PeerDetails{
			ID:           id,
			Endpoint:     p.Endpoint,
			DiscoveredAt: time.Now(),
		}
	}
	d.SyncHistory = append(d.SyncHistory, ev)
	if len(d.SyncHistory) > maxSyncHistory {
		d.SyncHistory = d.SyncHistory[len(d.SyncHistory)-maxSyncHistory:]
	}
	return r.SaveDetails(d)
}

// RecordDiscovery registers a peer learned from a discovery broadcast, or
// refreshes an already-known one, and updates its dossier with the
// advertised capabilities and version.
func (r *Registry) RecordDiscovery(id, endpoint string, capabilities []string, version string) error {
	if _, err := r.Get(id); err != nil {
		if err := r.Add(id, endpoint); err != nil {
			return err
		}
	}
	if err := r.UpdateStatus(id, domain.PeerOnline); err != nil {
		return err
	}

	now := time.Now()
	d, err := r.LoadDetails(id)
	if err != nil {
		d = &domain.PeerDetails{ID: id, DiscoveredAt: now, TrustLevel: 50}
	}
	d.Endpoint = endpoint
	d.Capabilities = capabilities
	d.Version = version
	d.LastSeen = now
	return r.SaveDetails(d)
}
