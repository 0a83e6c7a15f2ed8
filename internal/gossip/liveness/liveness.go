// Package liveness runs the periodic gossip control loop: heartbeats to
// known peers, discovery broadcasts on a longer period, and a per-tick
// status sweep that demotes silent peers to offline.
//
// The tick is deliberately much shorter than the offline threshold so
// offline detection latency stays small relative to the threshold.
package liveness

import (
	"context"
	"log"
	"time"

	"github.com/verimesh/verimesh/internal/domain"
	"github.com/verimesh/verimesh/internal/gossip/protocol"
	"github.com/verimesh/verimesh/internal/gossip/registry"
	"github.com/verimesh/verimesh/internal/infra/metrics"
)

// Transport is the slice of the protocol the scheduler drives.
type Transport interface {
	Send(endpoint string, kind protocol.MessageKind, payload []byte) error
	BroadcastDiscovery() error
	MarkHeartbeat(t time.Time)
	Enabled() bool
}

// Config configures the scheduler periods.
type Config struct {
	TickInterval      time.Duration // status sweep granularity (default 1s)
	HeartbeatInterval time.Duration // default 30s
	DiscoveryInterval time.Duration // default 300s
	OfflineThreshold  time.Duration // silence before demotion (default 120s)
}

// DefaultConfig returns production scheduler defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:      time.Second,
		HeartbeatInterval: 30 * time.Second,
		DiscoveryInterval: 300 * time.Second,
		OfflineThreshold:  120 * time.Second,
	}
}

// Scheduler is the gossip liveness loop.
type Scheduler struct {
	cfg       Config
	reg       *registry.Registry
	transport Transport

	lastHeartbeat time.Time
	lastDiscovery time.Time
}

// New creates a Scheduler.
func New(cfg Config, reg *registry.Registry, transport Transport) *Scheduler {
	return &Scheduler{cfg: cfg, reg: reg, transport: transport}
}

// Run executes the control loop until the context is cancelled. Call in a
// goroutine. While the protocol is disabled the loop idles; it resumes
// when the protocol is re-enabled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	log.Printf("[liveness] scheduler started (heartbeat %s, discovery %s, offline threshold %s)",
		s.cfg.HeartbeatInterval, s.cfg.DiscoveryInterval, s.cfg.OfflineThreshold)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[liveness] scheduler stopped")
			return
		case <-ticker.C:
			s.tick(time.Now())
		}
	}
}

// tick performs one round of scheduler work at the given instant.
func (s *Scheduler) tick(now time.Time) {
	if !s.transport.Enabled() {
		return
	}

	if now.Sub(s.lastHeartbeat) >= s.cfg.HeartbeatInterval {
		s.sendHeartbeats()
		s.lastHeartbeat = now
		s.transport.MarkHeartbeat(now)
	}
	if now.Sub(s.lastDiscovery) >= s.cfg.DiscoveryInterval {
		if err := s.transport.BroadcastDiscovery(); err != nil {
			log.Printf("[liveness] discovery broadcast: %v", err)
		}
		s.lastDiscovery = now
	}

	s.sweep(now)
}

// sendHeartbeats sends a zero-length heartbeat to every non-offline peer.
// Per-peer send failures are logged; the round always completes.
func (s *Scheduler) sendHeartbeats() {
	var sent, failed int
	for _, p := range s.reg.List() {
		if p.Status == domain.PeerOffline {
			continue
		}
		if err := s.transport.Send(p.Endpoint, protocol.KindHeartbeat, nil); err != nil {
			failed++
			log.Printf("[liveness] heartbeat to %s (%s): %v", p.ID, p.Endpoint, err)
			continue
		}
		sent++
		metrics.HeartbeatsSent.Inc()
	}
	if sent > 0 || failed > 0 {
		log.Printf("[liveness] heartbeats sent to %d peers, %d failures", sent, failed)
	}
}

// sweep demotes peers whose silence exceeds the offline threshold. Peers
// already offline are skipped, so demotion happens exactly once per
// silence period and carries exactly one persistence write.
func (s *Scheduler) sweep(now time.Time) {
	for _, p := range s.reg.List() {
		if p.Status == domain.PeerOffline {
			continue
		}
		if now.Sub(p.LastSeen) > s.cfg.OfflineThreshold {
			if err := s.reg.UpdateStatus(p.ID, domain.PeerOffline); err != nil {
				log.Printf("[liveness] demote %s: %v", p.ID, err)
				continue
			}
			metrics.PeersDemoted.Inc()
			log.Printf("[liveness] peer %s marked offline after %s of silence",
				p.ID, now.Sub(p.LastSeen).Truncate(time.Second))
		}
	}
}
