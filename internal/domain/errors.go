package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Registry errors
	ErrUnknownPeer = errors.New("unknown peer")

	// Transport errors
	ErrDisabled        = errors.New("gossip protocol is disabled")
	ErrMessageTooLarge = errors.New("message exceeds maximum datagram size")
	ErrBadEndpoint     = errors.New("unparseable peer endpoint")

	// Verification errors
	ErrHashMismatch = errors.New("trace verification failed: hash mismatch")
	ErrPeerOffline  = errors.New("peer is not online")
)
