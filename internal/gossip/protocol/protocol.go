// Package protocol implements the gossip transport: two UDP channels (a
// unicast channel for directed messages and a broadcast channel reserved
// for discovery), the signed message envelope, and the background receive
// loop that dispatches inbound datagrams by kind.
//
// Sends are fire-and-forget: success means the datagram was handed to the
// OS socket, never that the peer received it. There is no acknowledgment
// layer; liveness is inferred from silence by the scheduler.
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/verimesh/verimesh/internal/domain"
	"github.com/verimesh/verimesh/internal/gossip/registry"
	"github.com/verimesh/verimesh/internal/infra/metrics"
	"github.com/verimesh/verimesh/internal/infra/sqlite"
	"github.com/verimesh/verimesh/internal/security"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// Config configures the gossip transport.
type Config struct {
	UnicastPort     int           // directed protocol traffic (default 29876)
	DiscoveryPort   int           // broadcast discovery only (default 29877)
	BroadcastAddr   string        // discovery destination (default 255.255.255.255)
	PollInterval    time.Duration // receive loop tick (default 100ms)
	ResponseTimeout time.Duration // wait bound for request/response fetches (default 5s)
	Capabilities    []string      // advertised in discovery
	Version         string        // software version advertised in discovery
}

// DefaultConfig returns production transport defaults.
func DefaultConfig() Config {
	return Config{
		UnicastPort:     29876,
		DiscoveryPort:   29877,
		BroadcastAddr:   "255.255.255.255",
		PollInterval:    100 * time.Millisecond,
		ResponseTimeout: 5 * time.Second,
		Capabilities:    []string{"sync", "discovery", "verify"},
		Version:         "0.1.0",
	}
}

// ─── Handler Interfaces ─────────────────────────────────────────────────────

// SyncHandler receives inbound sync traffic from the dispatcher.
// Implemented by the sync coordinator; wired by the daemon.
type SyncHandler interface {
	HandleSyncRequest(peerID string, payload []byte) error
	HandleSyncResponse(peerID string, payload []byte) error
	HandleStateUpdate(peerID string, payload []byte) error
}

// TraceProvider answers trace requests from peers out of local state.
// Implemented by the verification engine; wired by the daemon.
type TraceProvider interface {
	LocalTraceHash() (string, error)
	LocalTraceFiles() ([]domain.TraceFileInfo, error)
	ReadTraceFile(name string) ([]byte, error)
}

// ─── Protocol ───────────────────────────────────────────────────────────────

// Protocol is the gossip transport for one node. The persisted protocol
// state (node identity, enabled flag) is the only mutable state it owns,
// guarded by a single mutex never held across a network call.
type Protocol struct {
	cfg      Config
	db       *sqlite.DB
	registry *registry.Registry
	keypair  *security.Keypair

	mu      sync.Mutex
	state   domain.ProtocolState
	running bool
	ctx     context.Context // set by Start; used by Enable to restart the loop

	syncHandler   SyncHandler
	traceProvider TraceProvider
}

// New loads or creates the node's protocol state. The node id is derived
// once, on first run, from a hash of the current time and random bytes; it
// never changes afterwards.
func New(cfg Config, db *sqlite.DB, reg *registry.Registry, kp *security.Keypair) (*Protocol, error) {
	st, err := db.LoadProtocolState()
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = &domain.ProtocolState{
			NodeID:       security.NewNodeID(),
			Enabled:      true,
			Capabilities: cfg.Capabilities,
			Version:      cfg.Version,
		}
		if err := db.SaveProtocolState(*st); err != nil {
			return nil, err
		}
		log.Printf("[protocol] generated node id %s", st.NodeID)
	}

	return &Protocol{
		cfg:      cfg,
		db:       db,
		registry: reg,
		keypair:  kp,
		state:    *st,
	}, nil
}

// SetSyncHandler wires the inbound sync dispatcher target.
func (p *Protocol) SetSyncHandler(h SyncHandler) { p.syncHandler = h }

// SetTraceProvider wires the local trace oracle for serving peer requests.
func (p *Protocol) SetTraceProvider(tp TraceProvider) { p.traceProvider = tp }

// NodeID returns this node's stable identifier.
func (p *Protocol) NodeID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.NodeID
}

// Enabled reports whether the protocol is currently on.
func (p *Protocol) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Enabled
}

// State returns a snapshot of the persisted protocol state.
func (p *Protocol) State() domain.ProtocolState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// MarkHeartbeat records the time of the last heartbeat round.
func (p *Protocol) MarkHeartbeat(t time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.LastHeartbeat = t
	if err := p.db.SaveProtocolState(p.state); err != nil {
		log.Printf("[protocol] persist heartbeat time: %v", err)
	}
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

// Start launches the receive loop if the protocol is enabled. The loop
// terminates when the context is cancelled or the enabled flag is cleared.
func (p *Protocol) Start(ctx context.Context) error {
	p.mu.Lock()
	p.ctx = ctx
	enabled := p.state.Enabled
	p.mu.Unlock()

	if !enabled {
		log.Printf("[protocol] disabled, receive loop not started")
		return nil
	}
	return p.startLoop(ctx)
}

// Enable turns the protocol on, persists the flag, and restarts the
// receive loop if Start has already run.
func (p *Protocol) Enable() error {
	p.mu.Lock()
	wasEnabled := p.state.Enabled
	p.state.Enabled = true
	err := p.db.SaveProtocolState(p.state)
	ctx := p.ctx
	running := p.running
	p.mu.Unlock()

	if err != nil {
		return err
	}
	if !wasEnabled {
		log.Printf("[protocol] enabled")
	}
	if ctx != nil && !running {
		return p.startLoop(ctx)
	}
	return nil
}

// Disable turns the protocol off and persists the flag. The receive loop
// observes the flag on its next tick and exits; Disable does not wait for
// it — a short grace-period race at shutdown is acceptable.
func (p *Protocol) Disable() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Enabled {
		p.state.Enabled = false
		log.Printf("[protocol] disabled")
	}
	return p.db.SaveProtocolState(p.state)
}

// Shutdown persists the protocol state. Loop termination is driven by the
// context the daemon cancels.
func (p *Protocol) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db.SaveProtocolState(p.state)
}

func (p *Protocol) startLoop(ctx context.Context) error {
	unicastAddr := &net.UDPAddr{Port: p.cfg.UnicastPort}
	unicast, err := net.ListenUDP("udp4", unicastAddr)
	if err != nil {
		return fmt.Errorf("bind unicast port %d: %w", p.cfg.UnicastPort, err)
	}

	discoveryAddr := &net.UDPAddr{Port: p.cfg.DiscoveryPort}
	discovery, err := net.ListenUDP("udp4", discoveryAddr)
	if err != nil {
		unicast.Close()
		return fmt.Errorf("bind discovery port %d: %w", p.cfg.DiscoveryPort, err)
	}

	p.mu.Lock()
	p.running = true
	p.mu.Unlock()

	log.Printf("[protocol] listening on :%d (unicast) and :%d (discovery)",
		p.cfg.UnicastPort, p.cfg.DiscoveryPort)

	go p.run(ctx, unicast, discovery)
	return nil
}

// run is the background receive loop: non-blocking poll of both sockets
// at a fixed tick, dispatching each datagram by kind. Receive errors are
// logged and never crash the loop.
func (p *Protocol) run(ctx context.Context, unicast, discovery *net.UDPConn) {
	defer func() {
		unicast.Close()
		discovery.Close()
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		log.Printf("[protocol] receive loop terminated")
	}()

	buf := make([]byte, MaxDatagramSize)
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !p.Enabled() {
			return
		}

		p.drain(unicast, buf, p.handleDatagram)
		p.drain(discovery, buf, p.handleDiscovery)
	}
}

// drain reads every datagram currently queued on conn and hands each to fn.
func (p *Protocol) drain(conn *net.UDPConn, buf []byte, fn func([]byte, *net.UDPAddr)) {
	for {
		conn.SetReadDeadline(time.Now().Add(time.Millisecond))
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				return // nothing queued
			}
			log.Printf("[protocol] receive error: %v", err)
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		fn(data, src)
	}
}

// ─── Outbound ───────────────────────────────────────────────────────────────

// Send constructs, signs, and transmits one envelope to a peer endpoint.
// Success means the datagram was handed to the OS socket.
func (p *Protocol) Send(endpoint string, kind MessageKind, payload []byte) error {
	p.mu.Lock()
	enabled := p.state.Enabled
	nodeID := p.state.NodeID
	p.mu.Unlock()

	if !enabled {
		return domain.ErrDisabled
	}

	msg, err := NewMessage(nodeID, kind, payload, p.keypair)
	if err != nil {
		return err
	}
	data, err := msg.Encode()
	if err != nil {
		return err
	}

	addr, err := net.ResolveUDPAddr("udp4", endpoint)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrBadEndpoint, endpoint, err)
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}
	defer conn.Close()

	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("send %s to %s: %w", kind, endpoint, err)
	}
	metrics.MessagesSent.WithLabelValues(kind.String()).Inc()
	return nil
}

// BroadcastDiscovery sends the node's self-descriptor to the broadcast
// address on the discovery port.
func (p *Protocol) BroadcastDiscovery() error {
	p.mu.Lock()
	enabled := p.state.Enabled
	info := DiscoveryInfo{
		NodeID:       p.state.NodeID,
		Capabilities: p.state.Capabilities,
		Version:      p.state.Version,
	}
	p.mu.Unlock()

	if !enabled {
		return domain.ErrDisabled
	}

	payload, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode discovery info: %w", err)
	}

	addr := &net.UDPAddr{
		IP:   net.ParseIP(p.cfg.BroadcastAddr),
		Port: p.cfg.DiscoveryPort,
	}
	conn, err := broadcastSocket()
	if err != nil {
		return fmt.Errorf("open broadcast socket: %w", err)
	}
	defer conn.Close()

	if _, err := conn.WriteTo(payload, addr); err != nil {
		return fmt.Errorf("send discovery ping: %w", err)
	}
	metrics.DiscoveryBroadcasts.Inc()
	log.Printf("[protocol] sent discovery ping")
	return nil
}

// broadcastSocket opens an ephemeral UDP socket with SO_BROADCAST set;
// without it the kernel rejects sends to the broadcast address.
func broadcastSocket() (net.PacketConn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var serr error
			if err := c.Control(func(fd uintptr) {
				serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
			}); err != nil {
				return err
			}
			return serr
		},
	}
	return lc.ListenPacket(context.Background(), "udp4", ":0")
}

// CheckReachability probes whether a peer's endpoint accepts datagrams.
// UDP gives no delivery guarantee, so true only means the probe was handed
// off without a local or ICMP-reported error.
func (p *Protocol) CheckReachability(peerID string) (bool, error) {
	peer, err := p.registry.Get(peerID)
	if err != nil {
		return false, err
	}
	addr, err := net.ResolveUDPAddr("udp4", peer.Endpoint)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", domain.ErrBadEndpoint, peer.Endpoint, err)
	}

	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		log.Printf("[protocol] peer %s unreachable (dial failed): %v", peerID, err)
		return false, nil
	}
	defer conn.Close()

	// A one-byte throwaway probe; the receiver drops it as undecodable.
	if _, err := conn.Write([]byte{0}); err != nil {
		log.Printf("[protocol] peer %s unreachable (send failed): %v", peerID, err)
		return false, nil
	}
	return true, nil
}

// ─── Inbound Dispatch ───────────────────────────────────────────────────────

// handleDatagram decodes and dispatches one unicast datagram. Malformed or
// foreign datagrams are dropped; the loop continues.
func (p *Protocol) handleDatagram(data []byte, src *net.UDPAddr) {
	msg, err := DecodeMessage(data)
	if err != nil {
		metrics.MessagesDropped.WithLabelValues("decode").Inc()
		log.Printf("[protocol] dropped undecodable datagram from %s: %v", src, err)
		return
	}
	if msg.Version != ProtocolVersion {
		metrics.MessagesDropped.WithLabelValues("version").Inc()
		log.Printf("[protocol] dropped message with unrecognized version %d from %s",
			msg.Version, msg.SourceID)
		return
	}
	if err := msg.VerifySignature(); err != nil {
		metrics.MessagesDropped.WithLabelValues("signature").Inc()
		log.Printf("[protocol] dropped message: %v", err)
		return
	}
	if msg.SourceID == p.NodeID() {
		return
	}

	metrics.MessagesReceived.WithLabelValues(msg.Kind.String()).Inc()

	// Any message from a registered peer counts as a liveness signal.
	p.markOnline(msg.SourceID)

	switch msg.Kind {
	case KindHeartbeat:
		// Nothing beyond the liveness promotion above.

	case KindSyncRequest:
		if p.syncHandler != nil {
			if err := p.syncHandler.HandleSyncRequest(msg.SourceID, msg.Payload); err != nil {
				log.Printf("[protocol] sync request from %s: %v", msg.SourceID, err)
			}
		}
	case KindSyncResponse:
		if p.syncHandler != nil {
			if err := p.syncHandler.HandleSyncResponse(msg.SourceID, msg.Payload); err != nil {
				log.Printf("[protocol] sync response from %s: %v", msg.SourceID, err)
			}
		}
	case KindStateUpdate:
		if p.syncHandler != nil {
			if err := p.syncHandler.HandleStateUpdate(msg.SourceID, msg.Payload); err != nil {
				log.Printf("[protocol] state update from %s: %v", msg.SourceID, err)
			}
		}

	case KindTraceHashRequest:
		p.serveTraceHash(msg, src)
	case KindListTraceFilesRequest:
		p.serveTraceFileList(msg, src)
	case KindGetTraceFileRequest:
		p.serveTraceFile(msg, src)

	case KindTraceHashResponse, KindListTraceFilesResponse, KindGetTraceFileResponse:
		// Responses are read on the requester's ephemeral socket; one
		// arriving on the listening socket has no waiting request.
		log.Printf("[protocol] unsolicited %s from %s dropped", msg.Kind, msg.SourceID)

	default:
		metrics.MessagesDropped.WithLabelValues("kind").Inc()
		log.Printf("[protocol] dropped message with unknown kind %d from %s",
			uint8(msg.Kind), msg.SourceID)
	}
}

// markOnline promotes a registered peer to Online. Messages from peers we
// have never registered are not an error — discovery handles registration.
func (p *Protocol) markOnline(peerID string) {
	if err := p.registry.UpdateStatus(peerID, domain.PeerOnline); err != nil {
		if !errors.Is(err, domain.ErrUnknownPeer) {
			log.Printf("[protocol] mark peer %s online: %v", peerID, err)
		}
	}
}

// handleDiscovery processes one datagram from the broadcast channel:
// decode the self-descriptor, suppress our own broadcasts, and register
// or refresh the sender.
func (p *Protocol) handleDiscovery(data []byte, src *net.UDPAddr) {
	var info DiscoveryInfo
	if err := json.Unmarshal(data, &info); err != nil {
		metrics.MessagesDropped.WithLabelValues("decode").Inc()
		log.Printf("[protocol] dropped undecodable discovery datagram from %s: %v", src, err)
		return
	}
	if info.NodeID == p.NodeID() {
		return // our own broadcast looped back
	}

	endpoint := fmt.Sprintf("%s:%d", src.IP, p.cfg.UnicastPort)
	if err := p.registry.RecordDiscovery(info.NodeID, endpoint, info.Capabilities, info.Version); err != nil {
		log.Printf("[protocol] record discovery of %s: %v", info.NodeID, err)
		return
	}
	log.Printf("[protocol] discovery from %s at %s", info.NodeID, endpoint)
}

// ─── Serving Trace Requests ─────────────────────────────────────────────────

func (p *Protocol) serveTraceHash(msg Message, src *net.UDPAddr) {
	if p.traceProvider == nil {
		return
	}
	var req TraceHashRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		log.Printf("[protocol] bad trace hash request from %s: %v", msg.SourceID, err)
		return
	}
	hash, err := p.traceProvider.LocalTraceHash()
	if err != nil {
		log.Printf("[protocol] compute local trace hash: %v", err)
		return
	}
	p.reply(src, KindTraceHashResponse, TraceHashResponse{RequestID: req.RequestID, Hash: hash})
}

func (p *Protocol) serveTraceFileList(msg Message, src *net.UDPAddr) {
	if p.traceProvider == nil {
		return
	}
	var req ListTraceFilesRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		log.Printf("[protocol] bad trace list request from %s: %v", msg.SourceID, err)
		return
	}
	files, err := p.traceProvider.LocalTraceFiles()
	if err != nil {
		log.Printf("[protocol] list local trace files: %v", err)
		return
	}
	p.reply(src, KindListTraceFilesResponse, ListTraceFilesResponse{RequestID: req.RequestID, Files: files})
}

func (p *Protocol) serveTraceFile(msg Message, src *net.UDPAddr) {
	if p.traceProvider == nil {
		return
	}
	var req GetTraceFileRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		log.Printf("[protocol] bad trace file request from %s: %v", msg.SourceID, err)
		return
	}
	content, err := p.traceProvider.ReadTraceFile(req.Name)
	if err != nil {
		log.Printf("[protocol] read trace file %q: %v", req.Name, err)
		return
	}
	p.reply(src, KindGetTraceFileResponse, GetTraceFileResponse{
		RequestID: req.RequestID,
		Name:      req.Name,
		Content:   content,
	})
}

// reply sends a response envelope straight back to the requester's source
// address. Responses that exceed the datagram bound are dropped with a log
// line — the requester times out, an inherited ceiling of the transport.
func (p *Protocol) reply(dst *net.UDPAddr, kind MessageKind, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[protocol] encode %s: %v", kind, err)
		return
	}
	msg, err := NewMessage(p.NodeID(), kind, body, p.keypair)
	if err != nil {
		log.Printf("[protocol] build %s for %s: %v", kind, dst, err)
		return
	}
	data, err := msg.Encode()
	if err != nil {
		log.Printf("[protocol] encode %s for %s: %v", kind, dst, err)
		return
	}

	conn, err := net.DialUDP("udp4", nil, dst)
	if err != nil {
		log.Printf("[protocol] dial %s: %v", dst, err)
		return
	}
	defer conn.Close()
	if _, err := conn.Write(data); err != nil {
		log.Printf("[protocol] reply %s to %s: %v", kind, dst, err)
		return
	}
	metrics.MessagesSent.WithLabelValues(kind.String()).Inc()
}

// ─── Request/Response Fetches ───────────────────────────────────────────────
// One synchronous round-trip per call: send the request from an ephemeral
// socket and wait (bounded) for the reply on that same socket.

// roundTrip sends a request envelope and waits for a matching response.
func (p *Protocol) roundTrip(endpoint string, kind, wantKind MessageKind, reqBody any) (Message, error) {
	p.mu.Lock()
	enabled := p.state.Enabled
	nodeID := p.state.NodeID
	p.mu.Unlock()

	if !enabled {
		return Message{}, domain.ErrDisabled
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s: %w", kind, err)
	}
	msg, err := NewMessage(nodeID, kind, payload, p.keypair)
	if err != nil {
		return Message{}, err
	}
	data, err := msg.Encode()
	if err != nil {
		return Message{}, err
	}

	addr, err := net.ResolveUDPAddr("udp4", endpoint)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %s: %v", domain.ErrBadEndpoint, endpoint, err)
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return Message{}, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	defer conn.Close()

	if _, err := conn.Write(data); err != nil {
		return Message{}, fmt.Errorf("send %s to %s: %w", kind, endpoint, err)
	}
	metrics.MessagesSent.WithLabelValues(kind.String()).Inc()

	buf := make([]byte, MaxDatagramSize)
	conn.SetReadDeadline(time.Now().Add(p.cfg.ResponseTimeout))
	n, err := conn.Read(buf)
	if err != nil {
		return Message{}, fmt.Errorf("await %s from %s: %w", wantKind, endpoint, err)
	}

	resp, err := DecodeMessage(buf[:n])
	if err != nil {
		return Message{}, err
	}
	if resp.Version != ProtocolVersion {
		return Message{}, fmt.Errorf("response with unrecognized version %d from %s",
			resp.Version, endpoint)
	}
	if err := resp.VerifySignature(); err != nil {
		return Message{}, err
	}
	if resp.Kind != wantKind {
		return Message{}, fmt.Errorf("expected %s from %s, got %s", wantKind, endpoint, resp.Kind)
	}
	metrics.MessagesReceived.WithLabelValues(resp.Kind.String()).Inc()
	return resp, nil
}

// GetTraceHash fetches a peer's current trace digest.
func (p *Protocol) GetTraceHash(peerID, endpoint string) (string, error) {
	req := TraceHashRequest{RequestID: uuid.NewString()}
	resp, err := p.roundTrip(endpoint, KindTraceHashRequest, KindTraceHashResponse, req)
	if err != nil {
		return "", err
	}
	var body TraceHashResponse
	if err := json.Unmarshal(resp.Payload, &body); err != nil {
		return "", fmt.Errorf("decode trace hash response from %s: %w", peerID, err)
	}
	if body.RequestID != req.RequestID {
		return "", fmt.Errorf("trace hash response from %s answers a different request", peerID)
	}
	return body.Hash, nil
}

// ListTraceFiles fetches a peer's trace file inventory.
func (p *Protocol) ListTraceFiles(peerID, endpoint string) ([]domain.TraceFileInfo, error) {
	req := ListTraceFilesRequest{RequestID: uuid.NewString()}
	resp, err := p.roundTrip(endpoint, KindListTraceFilesRequest, KindListTraceFilesResponse, req)
	if err != nil {
		return nil, err
	}
	var body ListTraceFilesResponse
	if err := json.Unmarshal(resp.Payload, &body); err != nil {
		return nil, fmt.Errorf("decode trace list response from %s: %w", peerID, err)
	}
	if body.RequestID != req.RequestID {
		return nil, fmt.Errorf("trace list response from %s answers a different request", peerID)
	}
	return body.Files, nil
}

// GetTraceFile fetches one trace file from a peer.
func (p *Protocol) GetTraceFile(peerID, endpoint, name string) ([]byte, error) {
	req := GetTraceFileRequest{RequestID: uuid.NewString(), Name: name}
	resp, err := p.roundTrip(endpoint, KindGetTraceFileRequest, KindGetTraceFileResponse, req)
	if err != nil {
		return nil, err
	}
	var body GetTraceFileResponse
	if err := json.Unmarshal(resp.Payload, &body); err != nil {
		return nil, fmt.Errorf("decode trace file response from %s: %w", peerID, err)
	}
	if body.RequestID != req.RequestID {
		return nil, fmt.Errorf("trace file response from %s answers a different request", peerID)
	}
	return body.Content, nil
}
