// Package domain — trace verification types.
package domain

import "time"

// ─── Verification ───────────────────────────────────────────────────────────

// VerificationStatus classifies a verification run.
type VerificationStatus int

const (
	NoVerification VerificationStatus = iota // Zero peer digests collected
	FullMatch                                // Every collected digest matches
	PartialMatch                             // Some, but not all, match
	NoMatch                                  // None match
)

// String returns the storage name of the status.
func (s VerificationStatus) String() string {
	switch s {
	case FullMatch:
		return "full_match"
	case PartialMatch:
		return "partial_match"
	case NoMatch:
		return "no_match"
	default:
		return "no_verification"
	}
}

// MarshalJSON renders the status as its string name.
func (s VerificationStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON parses the string name form.
func (s *VerificationStatus) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"no_verification"`:
		*s = NoVerification
	case `"full_match"`:
		*s = FullMatch
	case `"partial_match"`:
		*s = PartialMatch
	case `"no_match"`:
		*s = NoMatch
	default:
		*s = NoVerification
	}
	return nil
}

// TraceMismatch describes one peer whose digest disagreed with ours.
type TraceMismatch struct {
	PeerID    string `json:"peer_id"`
	LocalHash string `json:"local_hash"`
	PeerHash  string `json:"peer_hash"`
}

// VerificationResult is the outcome of one verify run.
// Verified means at least one peer's digest matched the local digest.
type VerificationResult struct {
	Verified      bool               `json:"verified"`
	Status        VerificationStatus `json:"status"`
	MatchingPeers int                `json:"matching_peers"`
	TotalPeers    int                `json:"total_peers"`
	Mismatches    []TraceMismatch    `json:"mismatches,omitempty"`
}

// VerificationRecord is the append-only audit record written per run.
// Never mutated after creation.
type VerificationRecord struct {
	Timestamp  time.Time          `json:"timestamp"`
	LocalHash  string             `json:"local_hash"`
	PeerHashes map[string]string  `json:"peer_hashes"`
	Status     VerificationStatus `json:"status"`
}

// TraceFileInfo describes one trace file offered by a peer.
type TraceFileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Hash string `json:"hash"`
}
