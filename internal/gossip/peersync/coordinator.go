// Package peersync implements the sync coordinator: it initiates sync
// rounds with peers, answers inbound sync traffic from the transport, and
// records per-component sync outcomes on the registry.
//
// The reconciliation algorithm itself is a pluggable strategy. The default
// reconciler only reports local component state and logs inbound updates;
// components that need real state transfer register their own.
package peersync

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/verimesh/verimesh/internal/domain"
	"github.com/verimesh/verimesh/internal/gossip/protocol"
	"github.com/verimesh/verimesh/internal/gossip/registry"
	"github.com/verimesh/verimesh/internal/infra/metrics"
)

// DefaultComponents is the component set named in every sync request.
var DefaultComponents = []string{"peers", "traces", "config"}

// ─── Wire Payloads ──────────────────────────────────────────────────────────

// SyncRequest asks a peer to report its state for the named components.
type SyncRequest struct {
	RequestID  string   `json:"request_id"`
	Components []string `json:"components"`
	Timestamp  int64    `json:"timestamp"`
}

// ComponentState is one component's state as reported by a peer.
type ComponentState struct {
	Component string `json:"component"`
	StateHash string `json:"state_hash"`
	Progress  int    `json:"progress"` // 0–100
}

// SyncResponse answers a SyncRequest with per-component state.
type SyncResponse struct {
	RequestID  string           `json:"request_id"`
	Components []ComponentState `json:"components"`
	Timestamp  int64            `json:"timestamp"`
}

// StateUpdate is an unsolicited notification that a component's state
// changed on the sending node.
type StateUpdate struct {
	Component string `json:"component"`
	StateHash string `json:"state_hash"`
	Timestamp int64  `json:"timestamp"`
}

// ─── Strategy ───────────────────────────────────────────────────────────────

// Reconciler is the pluggable sync strategy.
type Reconciler interface {
	// ReconcileRequest produces this node's state for the components a
	// peer asked about.
	ReconcileRequest(peerID string, req SyncRequest) ([]ComponentState, error)
	// ReconcileResponse consumes a peer's reported state.
	ReconcileResponse(peerID string, resp SyncResponse) error
	// ApplyStateUpdate consumes an unsolicited state change notification.
	ApplyStateUpdate(peerID string, upd StateUpdate) error
}

// loggingReconciler is the default strategy: report empty local state and
// log everything inbound.
type loggingReconciler struct{}

func (loggingReconciler) ReconcileRequest(peerID string, req SyncRequest) ([]ComponentState, error) {
	states := make([]ComponentState, 0, len(req.Components))
	for _, c := range req.Components {
		states = append(states, ComponentState{Component: c, Progress: 100})
	}
	return states, nil
}

func (loggingReconciler) ReconcileResponse(peerID string, resp SyncResponse) error {
	log.Printf("[sync] peer %s reported %d component states", peerID, len(resp.Components))
	return nil
}

func (loggingReconciler) ApplyStateUpdate(peerID string, upd StateUpdate) error {
	log.Printf("[sync] peer %s announced %s state %s", peerID, upd.Component, upd.StateHash)
	return nil
}

// ─── Coordinator ────────────────────────────────────────────────────────────

// Sender is the slice of the transport the coordinator uses.
type Sender interface {
	Send(endpoint string, kind protocol.MessageKind, payload []byte) error
}

// Coordinator drives sync rounds and handles inbound sync traffic.
type Coordinator struct {
	reg        *registry.Registry
	sender     Sender
	reconciler Reconciler
	components []string
}

var _ protocol.SyncHandler = (*Coordinator)(nil)

// New creates a Coordinator with the default component set and the logging
// reconciler.
func New(reg *registry.Registry, sender Sender) *Coordinator {
	return &Coordinator{
		reg:        reg,
		sender:     sender,
		reconciler: loggingReconciler{},
		components: DefaultComponents,
	}
}

// SetReconciler replaces the sync strategy. Call before wiring the
// coordinator into the transport.
func (c *Coordinator) SetReconciler(r Reconciler) { c.reconciler = r }

// SynchronizeWith starts a sync round with a registered peer: the peer is
// marked Synchronizing and sent a SyncRequest naming the component set.
// The round completes asynchronously when the SyncResponse arrives.
func (c *Coordinator) SynchronizeWith(peerID string) error {
	p, err := c.reg.Get(peerID)
	if err != nil {
		return err
	}

	req := SyncRequest{
		RequestID:  uuid.NewString(),
		Components: c.components,
		Timestamp:  time.Now().Unix(),
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode sync request: %w", err)
	}

	if err := c.reg.UpdateStatus(peerID, domain.PeerSynchronizing); err != nil {
		return err
	}
	if err := c.sender.Send(p.Endpoint, protocol.KindSyncRequest, payload); err != nil {
		if serr := c.reg.UpdateStatus(peerID, domain.PeerError); serr != nil {
			log.Printf("[sync] mark peer %s errored: %v", peerID, serr)
		}
		return fmt.Errorf("sync request to %s: %w", peerID, err)
	}

	metrics.SyncRequests.Inc()
	if err := c.reg.AppendSyncEvent(peerID, domain.SyncEvent{
		Timestamp:   time.Now(),
		EventType:   "sync_requested",
		Status:      "sent",
		Description: fmt.Sprintf("requested components %v", c.components),
	}); err != nil {
		log.Printf("[sync] record sync event for %s: %v", peerID, err)
	}
	log.Printf("[sync] requested sync with %s for components %v", peerID, c.components)
	return nil
}

// ─── Inbound Hooks ──────────────────────────────────────────────────────────

// HandleSyncRequest answers a peer's sync request with this node's state
// for the requested components.
func (c *Coordinator) HandleSyncRequest(peerID string, payload []byte) error {
	var req SyncRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode sync request from %s: %w", peerID, err)
	}
	log.Printf("[sync] sync request from %s for components %v", peerID, req.Components)

	states, err := c.reconciler.ReconcileRequest(peerID, req)
	if err != nil {
		return fmt.Errorf("reconcile request from %s: %w", peerID, err)
	}

	p, err := c.reg.Get(peerID)
	if err != nil {
		// The requester is not registered here; discovery will add it
		// before the next round.
		return fmt.Errorf("sync request from unregistered peer: %w", err)
	}

	resp := SyncResponse{
		RequestID:  req.RequestID,
		Components: states,
		Timestamp:  time.Now().Unix(),
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode sync response: %w", err)
	}
	return c.sender.Send(p.Endpoint, protocol.KindSyncResponse, body)
}

// HandleSyncResponse completes a sync round: the reported component states
// are recorded on the peer and the peer returns to Online status.
func (c *Coordinator) HandleSyncResponse(peerID string, payload []byte) error {
	var resp SyncResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("decode sync response from %s: %w", peerID, err)
	}

	now := time.Now()
	for _, st := range resp.Components {
		err := c.reg.SetSyncStatus(peerID, st.Component, domain.ComponentSyncStatus{
			Component: st.Component,
			LastSync:  now,
			StateHash: st.StateHash,
			Progress:  st.Progress,
		})
		if err != nil {
			return fmt.Errorf("record sync status for %s: %w", peerID, err)
		}
	}
	if err := c.reg.UpdateStatus(peerID, domain.PeerOnline); err != nil {
		return err
	}
	if err := c.reg.AppendSyncEvent(peerID, domain.SyncEvent{
		Timestamp:   now,
		EventType:   "sync_completed",
		Status:      "ok",
		Description: fmt.Sprintf("%d component states received", len(resp.Components)),
	}); err != nil {
		log.Printf("[sync] record sync event for %s: %v", peerID, err)
	}

	log.Printf("[sync] sync round with %s completed (%d components)", peerID, len(resp.Components))
	return c.reconciler.ReconcileResponse(peerID, resp)
}

// HandleStateUpdate records an unsolicited component state change from a
// peer and hands it to the reconciler.
func (c *Coordinator) HandleStateUpdate(peerID string, payload []byte) error {
	var upd StateUpdate
	if err := json.Unmarshal(payload, &upd); err != nil {
		return fmt.Errorf("decode state update from %s: %w", peerID, err)
	}

	err := c.reg.SetSyncStatus(peerID, upd.Component, domain.ComponentSyncStatus{
		Component: upd.Component,
		LastSync:  time.Unix(upd.Timestamp, 0),
		StateHash: upd.StateHash,
		Progress:  100,
	})
	if err != nil {
		return fmt.Errorf("record state update from %s: %w", peerID, err)
	}
	return c.reconciler.ApplyStateUpdate(peerID, upd)
}

// ─── Outbound Updates ───────────────────────────────────────────────────────

// SendStateUpdate notifies one peer of a local component state change.
func (c *Coordinator) SendStateUpdate(peerID, component, stateHash string) error {
	p, err := c.reg.Get(peerID)
	if err != nil {
		return err
	}
	body, err := json.Marshal(StateUpdate{
		Component: component,
		StateHash: stateHash,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("encode state update: %w", err)
	}
	return c.sender.Send(p.Endpoint, protocol.KindStateUpdate, body)
}

// BroadcastStateUpdate notifies every non-offline peer of a local component
// state change. Per-peer send failures are logged; the round completes.
func (c *Coordinator) BroadcastStateUpdate(component, stateHash string) {
	body, err := json.Marshal(StateUpdate{
		Component: component,
		StateHash: stateHash,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		log.Printf("[sync] encode state update: %v", err)
		return
	}
	for _, p := range c.reg.List() {
		if p.Status == domain.PeerOffline {
			continue
		}
		if err := c.sender.Send(p.Endpoint, protocol.KindStateUpdate, body); err != nil {
			log.Printf("[sync] state update to %s: %v", p.ID, err)
		}
	}
}
