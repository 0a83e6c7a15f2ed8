package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/verimesh/verimesh/internal/domain"
	"github.com/verimesh/verimesh/internal/gossip/registry"
	"github.com/verimesh/verimesh/internal/infra/sqlite"
	"github.com/verimesh/verimesh/internal/security"
)

// freePort asks the kernel for an unused UDP port.
func freePort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("probe free port: %v", err)
	}
	port := conn.LocalAddr().(*net.UDPAddr).Port
	conn.Close()
	return port
}

type testNode struct {
	proto *Protocol
	reg   *registry.Registry
	cfg   Config
}

func newTestNode(t *testing.T) *testNode {
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

	cfg := DefaultConfig()
	cfg.UnicastPort = freePort(t)
	cfg.DiscoveryPort = freePort(t)
	cfg.PollInterval = 10 * time.Millisecond
	cfg.ResponseTimeout = 2 * time.Second

	kp, err := security.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	proto, err := New(cfg, db, reg, kp)
	if err != nil {
		t.Fatalf("New protocol: %v", err)
	}
	return &testNode{proto: proto, reg: reg, cfg: cfg}
}

func (n *testNode) endpoint() string {
	return fmt.Sprintf("127.0.0.1:%d", n.cfg.UnicastPort)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// ─── Node Identity ──────────────────────────────────────────────────────────

func TestNodeID_StableAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open db: %v", err)
	}
	reg, err := registry.New(db, filepath.Join(dir, "peers"))
	if err != nil {
		t.Fatalf("New registry: %v", err)
	}

	p1, err := New(DefaultConfig(), db, reg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id := p1.NodeID()
	if len(id) != 16 {
		t.Errorf("node id %q, want 16 hex chars", id)
	}

	p2, err := New(DefaultConfig(), db, reg, nil)
	if err != nil {
		t.Fatalf("New (restart): %v", err)
	}
	if p2.NodeID() != id {
		t.Errorf("node id changed across restart: %s -> %s", id, p2.NodeID())
	}
	db.Close()
}

// ─── Send Preconditions ─────────────────────────────────────────────────────

func TestSend_DisabledProtocol(t *testing.T) {
	n := newTestNode(t)
	if err := n.proto.Disable(); err != nil {
		t.Fatalf("Disable: %v", err)
	}

	err := n.proto.Send("127.0.0.1:1", KindHeartbeat, nil)
	if !errors.Is(err, domain.ErrDisabled) {
		t.Errorf("Send while disabled = %v, want ErrDisabled", err)
	}
	if err := n.proto.BroadcastDiscovery(); !errors.Is(err, domain.ErrDisabled) {
		t.Errorf("BroadcastDiscovery while disabled = %v, want ErrDisabled", err)
	}
}

func TestSend_BadEndpoint(t *testing.T) {
	n := newTestNode(t)
	err := n.proto.Send("not-an-endpoint", KindHeartbeat, nil)
	if !errors.Is(err, domain.ErrBadEndpoint) {
		t.Errorf("Send(bad endpoint) = %v, want ErrBadEndpoint", err)
	}
}

func TestSend_OversizePayload(t *testing.T) {
	n := newTestNode(t)
	err := n.proto.Send("127.0.0.1:1", KindStateUpdate, make([]byte, MaxDatagramSize))
	if !errors.Is(err, domain.ErrMessageTooLarge) {
		t.Errorf("Send(oversize) = %v, want ErrMessageTooLarge", err)
	}
}

// ─── Receive Loop Dispatch ──────────────────────────────────────────────────

func TestHeartbeat_MarksPeerOnline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newTestNode(t)
	b := newTestNode(t)

	if err := a.proto.Start(ctx); err != nil {
		t.Fatalf("Start a: %v", err)
	}

	// a knows b; b sends a heartbeat to a.
	if err := a.reg.Add(b.proto.NodeID(), b.endpoint()); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := b.proto.Send(a.endpoint(), KindHeartbeat, nil); err != nil {
		t.Fatalf("Send heartbeat: %v", err)
	}

	waitFor(t, "peer online", func() bool {
		p, err := a.reg.Get(b.proto.NodeID())
		return err == nil && p.Status == domain.PeerOnline
	})
}

func TestReceive_DropsUnrecognizedVersion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newTestNode(t)
	if err := a.proto.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := a.reg.Add("node-future", "127.0.0.1:9"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	raw, _ := json.Marshal(Message{
		Version:   99,
		SourceID:  "node-future",
		Kind:      KindHeartbeat,
		Timestamp: time.Now().Unix(),
	})
	conn, err := net.Dial("udp4", a.endpoint())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Write(raw)
	conn.Close()

	// The datagram must be dropped: the peer stays in Unknown status.
	time.Sleep(200 * time.Millisecond)
	p, _ := a.reg.Get("node-future")
	if p.Status != domain.PeerUnknown {
		t.Errorf("peer status = %v after future-version message, want unknown", p.Status)
	}
}

func TestDiscovery_ImplicitAddAndLoopSuppression(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newTestNode(t)
	if err := a.proto.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	discoveryEndpoint := fmt.Sprintf("127.0.0.1:%d", a.cfg.DiscoveryPort)

	// Our own node id must be silently discarded.
	own, _ := json.Marshal(DiscoveryInfo{NodeID: a.proto.NodeID(), Version: "0.1.0"})
	conn, err := net.Dial("udp4", discoveryEndpoint)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Write(own)

	// A foreign node id causes an implicit add in Online status.
	foreign, _ := json.Marshal(DiscoveryInfo{
		NodeID:       "node-foreign",
		Capabilities: []string{"sync"},
		Version:      "0.1.0",
	})
	conn.Write(foreign)
	conn.Close()

	waitFor(t, "foreign peer discovered", func() bool {
		p, err := a.reg.Get("node-foreign")
		return err == nil && p.Status == domain.PeerOnline
	})
	if _, err := a.reg.Get(a.proto.NodeID()); err == nil {
		t.Error("node added itself from its own discovery broadcast")
	}
}

// ─── Trace Request/Response ─────────────────────────────────────────────────

type stubTraceProvider struct {
	hash  string
	files []domain.TraceFileInfo
	data  map[string][]byte
}

func (s *stubTraceProvider) LocalTraceHash() (string, error) { return s.hash, nil }
func (s *stubTraceProvider) LocalTraceFiles() ([]domain.TraceFileInfo, error) {
	return s.files, nil
}
func (s *stubTraceProvider) ReadTraceFile(name string) ([]byte, error) {
	d, ok := s.data[name]
	if !ok {
		return nil, fmt.Errorf("no such trace file: %s", name)
	}
	return d, nil
}

func TestTraceFetch_RoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := newTestNode(t)
	client := newTestNode(t)

	content := []byte("trace-file-contents")
	server.proto.SetTraceProvider(&stubTraceProvider{
		hash: "digest-h1",
		files: []domain.TraceFileInfo{
			{Name: "trace-001.trace", Size: int64(len(content)), Hash: "f1"},
		},
		data: map[string][]byte{"trace-001.trace": content},
	})
	if err := server.proto.Start(ctx); err != nil {
		t.Fatalf("Start server: %v", err)
	}

	hash, err := client.proto.GetTraceHash(server.proto.NodeID(), server.endpoint())
	if err != nil {
		t.Fatalf("GetTraceHash: %v", err)
	}
	if hash != "digest-h1" {
		t.Errorf("hash = %q, want digest-h1", hash)
	}

	files, err := client.proto.ListTraceFiles(server.proto.NodeID(), server.endpoint())
	if err != nil {
		t.Fatalf("ListTraceFiles: %v", err)
	}
	if len(files) != 1 || files[0].Name != "trace-001.trace" {
		t.Errorf("files = %+v", files)
	}

	got, err := client.proto.GetTraceFile(server.proto.NodeID(), server.endpoint(), "trace-001.trace")
	if err != nil {
		t.Fatalf("GetTraceFile: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content = %q, want %q", got, content)
	}
}

func TestTraceFetch_TimesOutWhenPeerSilent(t *testing.T) {
	client := newTestNode(t)
	client.proto.cfg.ResponseTimeout = 200 * time.Millisecond

	// Nothing is listening on this endpoint.
	silent := fmt.Sprintf("127.0.0.1:%d", freePort(t))
	if _, err := client.proto.GetTraceHash("node-silent", silent); err == nil {
		t.Error("expected fetch from silent peer to fail")
	}
}
