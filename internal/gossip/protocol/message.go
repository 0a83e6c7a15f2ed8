package protocol

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/verimesh/verimesh/internal/domain"
	"github.com/verimesh/verimesh/internal/security"
)

const (
	// ProtocolVersion is the current envelope version. Envelopes carrying
	// any other version are dropped on receive, never rejected back to the
	// sender — there is no reply channel for malformed input.
	ProtocolVersion = 1

	// MaxDatagramSize is the largest serialized envelope we will hand to
	// a UDP socket. One message == one datagram.
	MaxDatagramSize = 65507
)

// ─── Message Kinds ──────────────────────────────────────────────────────────

// MessageKind tags an envelope for dispatch. The set is closed: the receive
// loop matches it exhaustively.
type MessageKind uint8

const (
	KindHeartbeat MessageKind = iota + 1
	KindSyncRequest
	KindSyncResponse
	KindStateUpdate
	KindTraceHashRequest
	KindTraceHashResponse
	KindListTraceFilesRequest
	KindListTraceFilesResponse
	KindGetTraceFileRequest
	KindGetTraceFileResponse
)

// String returns a human-readable kind name, used in logs and metrics.
func (k MessageKind) String() string {
	switch k {
	case KindHeartbeat:
		return "heartbeat"
	case KindSyncRequest:
		return "sync_request"
	case KindSyncResponse:
		return "sync_response"
	case KindStateUpdate:
		return "state_update"
	case KindTraceHashRequest:
		return "trace_hash_request"
	case KindTraceHashResponse:
		return "trace_hash_response"
	case KindListTraceFilesRequest:
		return "list_trace_files_request"
	case KindListTraceFilesResponse:
		return "list_trace_files_response"
	case KindGetTraceFileRequest:
		return "get_trace_file_request"
	case KindGetTraceFileResponse:
		return "get_trace_file_response"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ─── Envelope ───────────────────────────────────────────────────────────────

// Message is the gossip transport envelope. Immutable once constructed;
// one Message is exactly one datagram.
type Message struct {
	Version   uint8       `json:"version"`
	SourceID  string      `json:"source_id"`
	Kind      MessageKind `json:"kind"`
	Timestamp int64       `json:"timestamp"`
	Payload   []byte      `json:"payload,omitempty"`
	PublicKey string      `json:"public_key,omitempty"`
	Signature string      `json:"signature,omitempty"`
}

// NewMessage constructs a signed envelope. Payloads whose serialized
// envelope exceeds MaxDatagramSize fail here, at construction — they are
// never truncated or handed to the socket.
func NewMessage(sourceID string, kind MessageKind, payload []byte, kp *security.Keypair) (Message, error) {
	m := Message{
		Version:   ProtocolVersion,
		SourceID:  sourceID,
		Kind:      kind,
		Timestamp: time.Now().Unix(),
		Payload:   payload,
	}
	if kp != nil {
		m.PublicKey = kp.PublicKeyHex()
		m.Signature = hex.EncodeToString(kp.Sign(m.signingBody()))
	}

	if _, err := m.Encode(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// signingBody returns the canonical byte string covered by the signature:
// every field except the signature and public key themselves.
func (m Message) signingBody() []byte {
	d := security.NewDigester()
	d.Fold([]byte{m.Version, byte(m.Kind)})
	d.Fold([]byte(m.SourceID))
	d.Fold([]byte(fmt.Sprintf("%d", m.Timestamp)))
	d.Fold(m.Payload)
	return []byte(d.Sum())
}

// VerifySignature checks the envelope's Ed25519 signature against the
// embedded public key. Unsigned envelopes pass — signing is enforced by
// policy at the dispatch layer, not the codec.
func (m Message) VerifySignature() error {
	if m.Signature == "" {
		return nil
	}
	pub, err := hex.DecodeString(m.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid public key on message from %s", m.SourceID)
	}
	sig, err := hex.DecodeString(m.Signature)
	if err != nil {
		return fmt.Errorf("invalid signature hex on message from %s", m.SourceID)
	}
	if !security.Verify(m.signingBody(), sig, ed25519.PublicKey(pub)) {
		return fmt.Errorf("signature verification failed for message from %s", m.SourceID)
	}
	return nil
}

// Encode serializes the envelope and enforces the datagram bound.
func (m Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	if len(data) > MaxDatagramSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)",
			domain.ErrMessageTooLarge, len(data), MaxDatagramSize)
	}
	return data, nil
}

// DecodeMessage parses an envelope. Unrecognized versions still decode
// structurally so the receive loop can reject them explicitly.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return m, nil
}

// ─── Discovery ──────────────────────────────────────────────────────────────

// DiscoveryInfo is the self-descriptor broadcast on the discovery channel.
// It travels bare — discovery datagrams are not wrapped in a Message.
type DiscoveryInfo struct {
	NodeID       string   `json:"node_id"`
	Capabilities []string `json:"capabilities"`
	Version      string   `json:"version"`
}

// ─── Trace Request Payloads ─────────────────────────────────────────────────
// Request/response pairs are correlated by a caller-generated request id.

// TraceHashRequest asks a peer for its current trace digest.
type TraceHashRequest struct {
	RequestID string `json:"request_id"`
}

// TraceHashResponse carries a peer's trace digest.
type TraceHashResponse struct {
	RequestID string `json:"request_id"`
	Hash      string `json:"hash"`
}

// ListTraceFilesRequest asks a peer to enumerate its trace files.
type ListTraceFilesRequest struct {
	RequestID string `json:"request_id"`
}

// ListTraceFilesResponse enumerates a peer's trace files.
type ListTraceFilesResponse struct {
	RequestID string                 `json:"request_id"`
	Files     []domain.TraceFileInfo `json:"files"`
}

// GetTraceFileRequest asks a peer for one trace file by name.
type GetTraceFileRequest struct {
	RequestID string `json:"request_id"`
	Name      string `json:"name"`
}

// GetTraceFileResponse carries one trace file's content.
type GetTraceFileResponse struct {
	RequestID string `json:"request_id"`
	Name      string `json:"name"`
	Content   []byte `json:"content"`
}
