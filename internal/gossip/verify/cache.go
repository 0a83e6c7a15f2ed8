package verify

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Per-peer hash cache: one JSON file per peer under hash_cache/. Stale
// records are excluded at read time, never proactively deleted.

// Sources of a cached hash.
const (
	sourceDirect   = "direct"   // retrieved from the peer itself
	sourceInferred = "inferred" // inferred from mesh consensus
	sourceApproved = "approved" // manually approved by the operator
)

type cachedHashRecord struct {
	PeerID    string `json:"peer_id"`
	Hash      string `json:"hash"`
	Timestamp int64  `json:"timestamp"` // unix seconds
	Source    string `json:"source"`
}

func (e *Engine) cachePath(peerID string) string {
	return filepath.Join(e.cacheDir(), peerID+".json")
}

func (e *Engine) saveHashToCache(peerID, hash, source string) error {
	rec := cachedHashRecord{
		PeerID:    peerID,
		Hash:      hash,
		Timestamp: time.Now().Unix(),
		Source:    source,
	}
	return writeJSON(e.cachePath(peerID), rec)
}

// loadCachedHashes reads every unexpired cache record. Unparseable files
// are skipped with a warning.
func (e *Engine) loadCachedHashes() map[string]string {
	hashes := map[string]string{}
	entries, err := os.ReadDir(e.cacheDir())
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[verify] read hash cache: %v", err)
		}
		return hashes
	}

	maxAge := e.effectiveCacheAge()
	oldest := time.Now().Add(-maxAge).Unix()

	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(e.cacheDir(), entry.Name()))
		if err != nil {
			log.Printf("[verify] read cached hash %s: %v", entry.Name(), err)
			continue
		}
		var rec cachedHashRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			log.Printf("[verify] parse cached hash %s: %v", entry.Name(), err)
			continue
		}
		if rec.Timestamp < oldest {
			continue // stale, excluded but kept on disk
		}
		hashes[rec.PeerID] = rec.Hash
	}
	return hashes
}

// effectiveCacheAge resolves the cache age bound: the sync config's value
// when one is persisted, the engine config otherwise.
func (e *Engine) effectiveCacheAge() time.Duration {
	if sc, err := e.LoadSyncConfig(); err == nil && sc != nil && sc.MaxCacheAgeHours > 0 {
		return time.Duration(sc.MaxCacheAgeHours) * time.Hour
	}
	return e.cfg.MaxCacheAge
}

// ─── Sync Config ────────────────────────────────────────────────────────────

// SyncConfig is the persisted trace synchronization policy.
type SyncConfig struct {
	Enabled                     bool  `json:"enabled"`
	AutoVerify                  bool  `json:"auto_verify"`
	PullIntervalSeconds         int64 `json:"pull_interval_seconds"`
	VerificationIntervalSeconds int64 `json:"verification_interval_seconds"`
	UseCachedHashes             bool  `json:"use_cached_hashes"`
	MaxCacheAgeHours            int64 `json:"max_cache_age_hours"`
}

func (e *Engine) syncConfigPath() string {
	return filepath.Join(e.cfg.DataDir, "sync", "config.json")
}

// EnableSync persists the default synchronization policy.
func (e *Engine) EnableSync() error {
	cfg := SyncConfig{
		Enabled:                     true,
		AutoVerify:                  true,
		PullIntervalSeconds:         3600,
		VerificationIntervalSeconds: 1800,
		UseCachedHashes:             true,
		MaxCacheAgeHours:            24,
	}
	if err := writeJSON(e.syncConfigPath(), cfg); err != nil {
		return err
	}
	log.Printf("[verify] trace synchronization enabled")
	return nil
}

// LoadSyncConfig reads the persisted policy; nil when none exists.
func (e *Engine) LoadSyncConfig() (*SyncConfig, error) {
	data, err := os.ReadFile(e.syncConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sync config: %w", err)
	}
	var cfg SyncConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse sync config: %w", err)
	}
	return &cfg, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
