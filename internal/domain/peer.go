// Package domain defines the core types shared across VeriMesh.
// Types here are pure data — no I/O, no infrastructure dependency.
package domain

import (
	"fmt"
	"time"
)

// ─── Peer Status ────────────────────────────────────────────────────────────

// PeerStatus is the liveness state of a peer in the mesh.
type PeerStatus int

const (
	PeerUnknown       PeerStatus = iota // Never heard from
	PeerOnline                          // Recent message received
	PeerOffline                         // Silent past the liveness threshold
	PeerSynchronizing                   // A sync round is in flight
	PeerError                           // Last coordinator interaction failed
)

// String returns the wire/storage name of the status.
func (s PeerStatus) String() string {
	switch s {
	case PeerOnline:
		return "online"
	case PeerOffline:
		return "offline"
	case PeerSynchronizing:
		return "synchronizing"
	case PeerError:
		return "error"
	default:
		return "unknown"
	}
}

// ParsePeerStatus converts a storage name back to a PeerStatus.
func ParsePeerStatus(s string) (PeerStatus, error) {
	switch s {
	case "unknown":
		return PeerUnknown, nil
	case "online":
		return PeerOnline, nil
	case "offline":
		return PeerOffline, nil
	case "synchronizing":
		return PeerSynchronizing, nil
	case "error":
		return PeerError, nil
	default:
		return PeerUnknown, fmt.Errorf("unrecognized peer status %q", s)
	}
}

// MarshalJSON renders the status as its string name.
func (s PeerStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON parses the string name form.
func (s *PeerStatus) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("peer status must be a JSON string, got %s", data)
	}
	parsed, err := ParsePeerStatus(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ─── Peer ───────────────────────────────────────────────────────────────────

// ComponentSyncStatus records the outcome of the last completed sync round
// for one component with one peer. Created lazily on the first round.
type ComponentSyncStatus struct {
	Component string    `json:"component"`
	LastSync  time.Time `json:"last_sync"`
	StateHash string    `json:"state_hash"`
	Progress  int       `json:"progress"` // 0–100
}

// Peer is the registry's full record of a remote node. Owned exclusively
// by the registry; other components see PeerInfo snapshots.
type Peer struct {
	ID         string                         `json:"id"`
	Endpoint   string                         `json:"endpoint"`
	LastSeen   time.Time                      `json:"last_seen"`
	Status     PeerStatus                     `json:"status"`
	SyncStatus map[string]ComponentSyncStatus `json:"sync_status"`
}

// PeerInfo is the read-only snapshot of a peer handed to callers.
type PeerInfo struct {
	ID       string     `json:"id"`
	Endpoint string     `json:"endpoint"`
	LastSeen time.Time  `json:"last_seen"`
	Status   PeerStatus `json:"status"`
}

// Info returns a snapshot of the peer.
func (p *Peer) Info() PeerInfo {
	return PeerInfo{
		ID:       p.ID,
		Endpoint: p.Endpoint,
		LastSeen: p.LastSeen,
		Status:   p.Status,
	}
}

// ─── Peer Details ───────────────────────────────────────────────────────────

// PeerDetails is the extended per-peer dossier persisted alongside the
// registry: what the peer advertises about itself plus a sync history.
type PeerDetails struct {
	ID           string      `json:"id"`
	Endpoint     string      `json:"endpoint"`
	Capabilities []string    `json:"capabilities"`
	Version      string      `json:"version"`
	DiscoveredAt time.Time   `json:"discovered_at"`
	LastSeen     time.Time   `json:"last_seen"`
	SyncHistory  []SyncEvent `json:"sync_history"`
	TrustLevel   int         `json:"trust_level"` // 0–100
}

// SyncEvent is one entry in a peer's sync history.
type SyncEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	EventType   string    `json:"event_type"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
}

// ─── Protocol State ─────────────────────────────────────────────────────────

// ProtocolState is the node's persisted gossip identity and switches.
// The NodeID is derived once at first run and never changes.
type ProtocolState struct {
	NodeID        string    `json:"node_id"`
	Enabled       bool      `json:"enabled"`
	Capabilities  []string  `json:"capabilities"`
	Version       string    `json:"version"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}
