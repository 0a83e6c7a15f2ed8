package peersync

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/verimesh/verimesh/internal/domain"
	"github.com/verimesh/verimesh/internal/gossip/protocol"
	"github.com/verimesh/verimesh/internal/gossip/registry"
	"github.com/verimesh/verimesh/internal/infra/sqlite"
)

type sentMessage struct {
	endpoint string
	kind     protocol.MessageKind
	payload  []byte
}

type fakeSender struct {
	sent    []sentMessage
	failAll bool
}

func (f *fakeSender) Send(endpoint string, kind protocol.MessageKind, payload []byte) error {
	if f.failAll {
		return errors.New("send failed")
	}
	f.sent = append(f.sent, sentMessage{endpoint, kind, payload})
	return nil
}

func newTestCoordinator(t *testing.T) (*Coordinator, *registry.Registry, *fakeSender) {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	reg, err := registry.New(db, filepath.Join(dir, "peers"))
	if err != nil {
		t.Fatalf("New registry: %v", err)
	}
	fs := &fakeSender{}
	return New(reg, fs), reg, fs
}

// ─── SynchronizeWith ────────────────────────────────────────────────────────

func TestSynchronizeWith_UnknownPeer(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	if err := c.SynchronizeWith("ghost"); !errors.Is(err, domain.ErrUnknownPeer) {
		t.Errorf("SynchronizeWith(unknown) = %v, want ErrUnknownPeer", err)
	}
}

func TestSynchronizeWith_SendsRequestAndMarksSynchronizing(t *testing.T) {
	c, reg, fs := newTestCoordinator(t)
	if err := reg.Add("n1", "10.0.0.1:29876"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := c.SynchronizeWith("n1"); err != nil {
		t.Fatalf("SynchronizeWith: %v", err)
	}

	p, _ := reg.Get("n1")
	if p.Status != domain.PeerSynchronizing {
		t.Errorf("status = %v, want synchronizing", p.Status)
	}
	if len(fs.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(fs.sent))
	}
	if fs.sent[0].kind != protocol.KindSyncRequest {
		t.Errorf("kind = %v, want sync request", fs.sent[0].kind)
	}
	if fs.sent[0].endpoint != "10.0.0.1:29876" {
		t.Errorf("endpoint = %s", fs.sent[0].endpoint)
	}

	var req SyncRequest
	if err := json.Unmarshal(fs.sent[0].payload, &req); err != nil {
		t.Fatalf("decode request payload: %v", err)
	}
	if len(req.Components) != len(DefaultComponents) {
		t.Errorf("components = %v, want %v", req.Components, DefaultComponents)
	}
	if req.RequestID == "" {
		t.Error("request id empty")
	}

	d, err := reg.LoadDetails("n1")
	if err != nil {
		t.Fatalf("LoadDetails: %v", err)
	}
	if len(d.SyncHistory) != 1 || d.SyncHistory[0].EventType != "sync_requested" {
		t.Errorf("sync history = %+v", d.SyncHistory)
	}
}

func TestSynchronizeWith_SendFailureMarksError(t *testing.T) {
	c, reg, fs := newTestCoordinator(t)
	fs.failAll = true
	if err := reg.Add("n1", "10.0.0.1:29876"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := c.SynchronizeWith("n1"); err == nil {
		t.Fatal("expected send failure to surface")
	}
	p, _ := reg.Get("n1")
	if p.Status != domain.PeerError {
		t.Errorf("status after failed send = %v, want error", p.Status)
	}
}

// ─── Inbound Hooks ──────────────────────────────────────────────────────────

func TestHandleSyncRequest_AnswersWithComponentStates(t *testing.T) {
	c, reg, fs := newTestCoordinator(t)
	if err := reg.Add("n1", "10.0.0.1:29876"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	req, _ := json.Marshal(SyncRequest{
		RequestID:  "req-1",
		Components: []string{"peers", "traces"},
	})
	if err := c.HandleSyncRequest("n1", req); err != nil {
		t.Fatalf("HandleSyncRequest: %v", err)
	}

	if len(fs.sent) != 1 || fs.sent[0].kind != protocol.KindSyncResponse {
		t.Fatalf("sent = %+v, want one sync response", fs.sent)
	}
	var resp SyncResponse
	if err := json.Unmarshal(fs.sent[0].payload, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RequestID != "req-1" {
		t.Errorf("response answers request %q, want req-1", resp.RequestID)
	}
	if len(resp.Components) != 2 {
		t.Errorf("response components = %+v", resp.Components)
	}
}

func TestHandleSyncRequest_UnregisteredRequester(t *testing.T) {
	c, _, fs := newTestCoordinator(t)
	req, _ := json.Marshal(SyncRequest{RequestID: "req-1", Components: []string{"peers"}})
	if err := c.HandleSyncRequest("stranger", req); !errors.Is(err, domain.ErrUnknownPeer) {
		t.Errorf("HandleSyncRequest(unregistered) = %v, want ErrUnknownPeer", err)
	}
	if len(fs.sent) != 0 {
		t.Error("response sent to unregistered peer")
	}
}

func TestHandleSyncResponse_RecordsStatusAndCompletesRound(t *testing.T) {
	c, reg, _ := newTestCoordinator(t)
	if err := reg.Add("n1", "10.0.0.1:29876"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := reg.UpdateStatus("n1", domain.PeerSynchronizing); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	resp, _ := json.Marshal(SyncResponse{
		RequestID: "req-1",
		Components: []ComponentState{
			{Component: "peers", StateHash: "h-peers", Progress: 100},
			{Component: "traces", StateHash: "h-traces", Progress: 80},
		},
	})
	if err := c.HandleSyncResponse("n1", resp); err != nil {
		t.Fatalf("HandleSyncResponse: %v", err)
	}

	p, _ := reg.Get("n1")
	if p.Status != domain.PeerOnline {
		t.Errorf("status after round = %v, want online", p.Status)
	}

	ss, err := reg.SyncStatus("n1")
	if err != nil {
		t.Fatalf("SyncStatus: %v", err)
	}
	if ss["peers"].StateHash != "h-peers" || ss["traces"].Progress != 80 {
		t.Errorf("sync status = %+v", ss)
	}

	d, err := reg.LoadDetails("n1")
	if err != nil {
		t.Fatalf("LoadDetails: %v", err)
	}
	last := d.SyncHistory[len(d.SyncHistory)-1]
	if last.EventType != "sync_completed" {
		t.Errorf("last sync event = %+v", last)
	}
}

func TestHandleSyncResponse_Malformed(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	if err := c.HandleSyncResponse("n1", []byte("junk")); err == nil {
		t.Error("expected decode error")
	}
}

func TestHandleStateUpdate_RecordsComponentState(t *testing.T) {
	c, reg, _ := newTestCoordinator(t)
	if err := reg.Add("n1", "10.0.0.1:29876"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	upd, _ := json.Marshal(StateUpdate{Component: "config", StateHash: "h-cfg", Timestamp: 1000})
	if err := c.HandleStateUpdate("n1", upd); err != nil {
		t.Fatalf("HandleStateUpdate: %v", err)
	}

	ss, _ := reg.SyncStatus("n1")
	if ss["config"].StateHash != "h-cfg" {
		t.Errorf("sync status = %+v", ss)
	}
}

// ─── Outbound Updates ───────────────────────────────────────────────────────

func TestBroadcastStateUpdate_SkipsOfflinePeers(t *testing.T) {
	c, reg, fs := newTestCoordinator(t)
	if err := reg.Add("up", "10.0.0.1:29876"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := reg.Add("down", "10.0.0.2:29876"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := reg.UpdateStatus("down", domain.PeerOffline); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	c.BroadcastStateUpdate("peers", "h1")

	if len(fs.sent) != 1 || fs.sent[0].endpoint != "10.0.0.1:29876" {
		t.Errorf("sent = %+v, want one update to the online peer", fs.sent)
	}
	if fs.sent[0].kind != protocol.KindStateUpdate {
		t.Errorf("kind = %v", fs.sent[0].kind)
	}
}
