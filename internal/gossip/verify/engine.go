// Package verify implements trace verification: a local digest over the
// node's trace files compared against digests collected from peers, with a
// per-peer hash cache for fallback when peers are unreachable.
//
// The content-hash oracle is SHA-256 over the trace files sorted by
// filename. Trace files are named with timestamps, so the sort gives
// chronological folding order.
package verify

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/verimesh/verimesh/internal/domain"
	"github.com/verimesh/verimesh/internal/gossip/registry"
	"github.com/verimesh/verimesh/internal/infra/metrics"
	"github.com/verimesh/verimesh/internal/security"
)

// PeerFetcher retrieves trace state from a remote peer. Implemented by the
// gossip transport; faked in tests.
type PeerFetcher interface {
	GetTraceHash(peerID, endpoint string) (string, error)
	ListTraceFiles(peerID, endpoint string) ([]domain.TraceFileInfo, error)
	GetTraceFile(peerID, endpoint, name string) ([]byte, error)
}

// Config configures the verification engine.
type Config struct {
	TraceDir    string        // local *.trace files
	DataDir     string        // verify records, hash cache, pulls, sync config
	MaxCacheAge time.Duration // cached peer hashes older than this are ignored (default 24h)
}

// DefaultConfig returns verification defaults rooted under dataDir.
func DefaultConfig(traceDir, dataDir string) Config {
	return Config{
		TraceDir:    traceDir,
		DataDir:     dataDir,
		MaxCacheAge: 24 * time.Hour,
	}
}

// Engine verifies local traces against the mesh.
type Engine struct {
	cfg     Config
	reg     *registry.Registry
	fetcher PeerFetcher
}

// New creates the engine and its on-disk layout.
func New(cfg Config, reg *registry.Registry, fetcher PeerFetcher) (*Engine, error) {
	for _, dir := range []string{
		cfg.TraceDir,
		filepath.Join(cfg.DataDir, "verify"),
		filepath.Join(cfg.DataDir, "hash_cache"),
		filepath.Join(cfg.DataDir, "pull"),
		filepath.Join(cfg.DataDir, "sync"),
	} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return &Engine{cfg: cfg, reg: reg, fetcher: fetcher}, nil
}

func (e *Engine) verifyDir() string { return filepath.Join(e.cfg.DataDir, "verify") }
func (e *Engine) cacheDir() string  { return filepath.Join(e.cfg.DataDir, "hash_cache") }
func (e *Engine) pullDir() string   { return filepath.Join(e.cfg.DataDir, "pull") }

// ─── Local Trace Oracle ─────────────────────────────────────────────────────

// LocalTraceHash computes the digest over all local trace files, folded in
// filename order.
func (e *Engine) LocalTraceHash() (string, error) {
	names, err := e.traceFileNames()
	if err != nil {
		return "", err
	}
	d := security.NewDigester()
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(e.cfg.TraceDir, name))
		if err != nil {
			return "", fmt.Errorf("read trace file %s: %w", name, err)
		}
		d.Fold(content)
	}
	return d.Sum(), nil
}

// LocalTraceFiles lists the local trace files with per-file digests.
func (e *Engine) LocalTraceFiles() ([]domain.TraceFileInfo, error) {
	names, err := e.traceFileNames()
	if err != nil {
		return nil, err
	}
	files := make([]domain.TraceFileInfo, 0, len(names))
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(e.cfg.TraceDir, name))
		if err != nil {
			return nil, fmt.Errorf("read trace file %s: %w", name, err)
		}
		files = append(files, domain.TraceFileInfo{
			Name: name,
			Size: int64(len(content)),
			Hash: security.DigestBytes(content),
		})
	}
	return files, nil
}

// ReadTraceFile returns the content of one local trace file. Names carrying
// path separators are rejected — peers only ever see bare filenames.
func (e *Engine) ReadTraceFile(name string) ([]byte, error) {
	if name != filepath.Base(name) || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid trace file name %q", name)
	}
	content, err := os.ReadFile(filepath.Join(e.cfg.TraceDir, name))
	if err != nil {
		return nil, fmt.Errorf("read trace file %s: %w", name, err)
	}
	return content, nil
}

func (e *Engine) traceFileNames() ([]string, error) {
	entries, err := os.ReadDir(e.cfg.TraceDir)
	if err != nil {
		return nil, fmt.Errorf("read trace directory %s: %w", e.cfg.TraceDir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.HasSuffix(entry.Name(), ".trace") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ─── Verification ───────────────────────────────────────────────────────────

// VerifyTrace runs one verification round: compute the local digest,
// collect peer digests (live where possible, cache otherwise), classify,
// and write an immutable record. A record is written on every run,
// including runs with zero peer digests.
func (e *Engine) VerifyTrace() (domain.VerificationResult, error) {
	started := time.Now()
	log.Printf("[verify] verifying trace integrity with peers")

	localHash, err := e.LocalTraceHash()
	if err != nil {
		return domain.VerificationResult{}, err
	}

	peerHashes := e.collectPeerHashes()

	var matching int
	var mismatches []domain.TraceMismatch
	for peerID, hash := range peerHashes {
		if hash == localHash {
			matching++
			continue
		}
		mismatches = append(mismatches, domain.TraceMismatch{
			PeerID:    peerID,
			LocalHash: localHash,
			PeerHash:  hash,
		})
	}

	var status domain.VerificationStatus
	switch {
	case len(peerHashes) == 0:
		status = domain.NoVerification
	case matching == len(peerHashes):
		status = domain.FullMatch
	case matching > 0:
		status = domain.PartialMatch
	default:
		status = domain.NoMatch
	}

	// A run with no peer digests counts as verified: there is nothing to
	// contradict the local trace.
	verified := matching > 0 || status == domain.NoVerification

	if err := e.writeRecord(localHash, peerHashes, status); err != nil {
		return domain.VerificationResult{}, err
	}

	metrics.Verifications.WithLabelValues(status.String()).Inc()
	metrics.VerificationLatency.Observe(time.Since(started).Seconds())
	log.Printf("[verify] verification result: %s (%d/%d peers matching)",
		status, matching, len(peerHashes))

	return domain.VerificationResult{
		Verified:      verified,
		Status:        status,
		MatchingPeers: matching,
		TotalPeers:    len(peerHashes),
		Mismatches:    mismatches,
	}, nil
}

// collectPeerHashes gathers one digest per peer: a live fetch for online
// peers (refreshing the cache), the cached digest when the fetch fails or
// the peer is not online, and the entire unexpired cache when no peer is
// online at all. Collection is sequential.
func (e *Engine) collectPeerHashes() map[string]string {
	cached := e.loadCachedHashes()
	hashes := map[string]string{}

	var online int
	for _, p := range e.reg.List() {
		if p.Status == domain.PeerOnline {
			online++
			hash, err := e.fetcher.GetTraceHash(p.ID, p.Endpoint)
			if err != nil {
				log.Printf("[verify] trace hash from %s: %v", p.ID, err)
				if h, ok := cached[p.ID]; ok {
					log.Printf("[verify] using cached hash for peer %s", p.ID)
					metrics.CacheFallbacks.Inc()
					hashes[p.ID] = h
				}
				continue
			}
			if err := e.saveHashToCache(p.ID, hash, sourceDirect); err != nil {
				log.Printf("[verify] cache hash for %s: %v", p.ID, err)
			}
			hashes[p.ID] = hash
			continue
		}
		if h, ok := cached[p.ID]; ok {
			log.Printf("[verify] peer %s is %s, using cached hash", p.ID, p.Status)
			metrics.CacheFallbacks.Inc()
			hashes[p.ID] = h
		}
	}

	if len(hashes) == 0 && online == 0 && len(cached) > 0 {
		log.Printf("[verify] no online peers, using all %d cached hashes", len(cached))
		metrics.CacheFallbacks.Inc()
		return cached
	}
	return hashes
}

// writeRecord appends one immutable verification record.
func (e *Engine) writeRecord(localHash string, peerHashes map[string]string, status domain.VerificationStatus) error {
	now := time.Now()
	rec := domain.VerificationRecord{
		Timestamp:  now,
		LocalHash:  localHash,
		PeerHashes: peerHashes,
		Status:     status,
	}
	// Nanosecond timestamps keep records from back-to-back runs distinct.
	path := filepath.Join(e.verifyDir(), fmt.Sprintf("verify-%d.json", now.UnixNano()))
	return writeJSON(path, rec)
}

// RefreshCache re-fetches and caches the trace hash of every online peer.
// Best effort: per-peer failures are logged. Called at shutdown so the
// cache is as fresh as possible for the next start.
func (e *Engine) RefreshCache() int {
	var refreshed int
	for _, p := range e.reg.List() {
		if p.Status != domain.PeerOnline {
			continue
		}
		hash, err := e.fetcher.GetTraceHash(p.ID, p.Endpoint)
		if err != nil {
			log.Printf("[verify] refresh hash for %s: %v", p.ID, err)
			continue
		}
		if err := e.saveHashToCache(p.ID, hash, sourceDirect); err != nil {
			log.Printf("[verify] cache hash for %s: %v", p.ID, err)
			continue
		}
		refreshed++
	}
	log.Printf("[verify] refreshed %d cached peer hashes", refreshed)
	return refreshed
}
