package verify

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/verimesh/verimesh/internal/domain"
	"github.com/verimesh/verimesh/internal/infra/metrics"
	"github.com/verimesh/verimesh/internal/security"
)

// PullRecord documents one successful trace pull.
type PullRecord struct {
	Timestamp  int64  `json:"timestamp"` // unix seconds
	PeerID     string `json:"peer_id"`
	Hash       string `json:"hash"`
	FilesCount int    `json:"files_count"`
	Verified   bool   `json:"verified"`
}

// PullFromPeer downloads a peer's full trace set into
// pull/<peer>/<hash prefix>/ and verifies the downloaded set against the
// digest the peer advertised. On mismatch the pulled directory is removed
// and no record is written.
func (e *Engine) PullFromPeer(peerID string) error {
	p, err := e.reg.Get(peerID)
	if err != nil {
		return err
	}
	if p.Status != domain.PeerOnline {
		metrics.Pulls.WithLabelValues("offline").Inc()
		return fmt.Errorf("%w: %s is %s", domain.ErrPeerOffline, peerID, p.Status)
	}
	log.Printf("[verify] pulling trace from peer %s", peerID)

	peerHash, err := e.fetcher.GetTraceHash(peerID, p.Endpoint)
	if err != nil {
		metrics.Pulls.WithLabelValues("fetch_failed").Inc()
		return fmt.Errorf("trace hash from %s: %w", peerID, err)
	}
	files, err := e.fetcher.ListTraceFiles(peerID, p.Endpoint)
	if err != nil {
		metrics.Pulls.WithLabelValues("fetch_failed").Inc()
		return fmt.Errorf("trace file list from %s: %w", peerID, err)
	}

	prefix := peerHash
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	dir := filepath.Join(e.pullDir(), peerID, prefix)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create pull directory: %w", err)
	}

	for _, fi := range files {
		if fi.Name != filepath.Base(fi.Name) {
			os.RemoveAll(dir)
			metrics.Pulls.WithLabelValues("bad_name").Inc()
			return fmt.Errorf("peer %s offered invalid trace file name %q", peerID, fi.Name)
		}
		content, err := e.fetcher.GetTraceFile(peerID, p.Endpoint, fi.Name)
		if err != nil {
			metrics.Pulls.WithLabelValues("fetch_failed").Inc()
			return fmt.Errorf("trace file %s from %s: %w", fi.Name, peerID, err)
		}
		if err := os.WriteFile(filepath.Join(dir, fi.Name), content, 0644); err != nil {
			return fmt.Errorf("write pulled file %s: %w", fi.Name, err)
		}
	}

	// Verify the pulled set against the digest the peer advertised. Only
	// the fetched files count: the directory may already hold the record
	// of an earlier pull of the same set.
	names := make([]string, 0, len(files))
	for _, fi := range files {
		names = append(names, fi.Name)
	}
	sort.Strings(names)
	gotHash, err := digestFiles(dir, names)
	if err != nil {
		return err
	}
	if gotHash != peerHash {
		if rerr := os.RemoveAll(dir); rerr != nil {
			log.Printf("[verify] remove mismatched pull %s: %v", dir, rerr)
		}
		metrics.Pulls.WithLabelValues("mismatch").Inc()
		return fmt.Errorf("%w: pulled trace from %s digests to %s, peer advertised %s",
			domain.ErrHashMismatch, peerID, gotHash, peerHash)
	}

	rec := PullRecord{
		Timestamp:  time.Now().Unix(),
		PeerID:     peerID,
		Hash:       peerHash,
		FilesCount: len(files),
		Verified:   true,
	}
	if err := writeJSON(filepath.Join(dir, "pull-record.json"), rec); err != nil {
		return err
	}

	metrics.Pulls.WithLabelValues("ok").Inc()
	log.Printf("[verify] pulled %d trace files from %s into %s", len(files), peerID, dir)
	return nil
}

// digestFiles folds the named files under dir through the content digest.
// Callers pass names sorted; the result matches the trace-directory digest
// for a faithfully transferred set.
func digestFiles(dir string, names []string) (string, error) {
	d := security.NewDigester()
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return "", fmt.Errorf("read pulled file %s: %w", name, err)
		}
		d.Fold(content)
	}
	return d.Sum(), nil
}
