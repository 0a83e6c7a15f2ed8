// Package metrics provides Prometheus metrics for VeriMesh — counters,
// gauges, and histograms for gossip traffic, peer liveness, and trace
// verification. Registered via promauto at import time; the daemon imports
// this package for side effects and the API server exposes /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Gossip Traffic ─────────────────────────────────────────────────────────

// MessagesSent counts envelopes handed to the OS socket, by kind.
var MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "verimesh",
	Name:      "gossip_messages_sent_total",
	Help:      "Total gossip messages sent, by message kind.",
}, []string{"kind"})

// MessagesReceived counts successfully decoded inbound envelopes, by kind.
var MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "verimesh",
	Name:      "gossip_messages_received_total",
	Help:      "Total gossip messages received and dispatched, by message kind.",
}, []string{"kind"})

// MessagesDropped counts inbound datagrams discarded before dispatch.
var MessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "verimesh",
	Name:      "gossip_messages_dropped_total",
	Help:      "Total inbound datagrams dropped, by reason (decode, version, signature).",
}, []string{"reason"})

// DiscoveryBroadcasts counts discovery pings sent on the broadcast channel.
var DiscoveryBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "verimesh",
	Name:      "gossip_discovery_broadcasts_total",
	Help:      "Total discovery broadcasts sent.",
})

// ─── Peer Liveness ──────────────────────────────────────────────────────────

// PeersByStatus tracks the current peer count per status.
var PeersByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "verimesh",
	Name:      "peers",
	Help:      "Current number of registered peers, by status.",
}, []string{"status"})

// HeartbeatsSent counts heartbeat rounds to individual peers.
var HeartbeatsSent = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "verimesh",
	Name:      "heartbeats_sent_total",
	Help:      "Total heartbeats sent to peers.",
})

// PeersDemoted counts offline demotions by the liveness sweep.
var PeersDemoted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "verimesh",
	Name:      "peers_demoted_offline_total",
	Help:      "Total peers demoted to offline by the liveness sweep.",
})

// ─── Verification ───────────────────────────────────────────────────────────

// Verifications counts verify runs by outcome status.
var Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "verimesh",
	Name:      "trace_verifications_total",
	Help:      "Total trace verification runs, by outcome.",
}, []string{"status"})

// VerificationLatency tracks verify run duration in seconds.
var VerificationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "verimesh",
	Name:      "trace_verification_seconds",
	Help:      "Trace verification run duration in seconds.",
	Buckets:   prometheus.DefBuckets,
})

// CacheFallbacks counts peer digests served from the hash cache.
var CacheFallbacks = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "verimesh",
	Name:      "hash_cache_fallbacks_total",
	Help:      "Total peer digests taken from the cache instead of a live fetch.",
})

// Pulls counts trace pulls from peers by result.
var Pulls = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "verimesh",
	Name:      "trace_pulls_total",
	Help:      "Total trace pulls from peers, by result.",
}, []string{"result"})

// ─── Sync ───────────────────────────────────────────────────────────────────

// SyncRequests counts outbound component sync requests.
var SyncRequests = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "verimesh",
	Name:      "sync_requests_total",
	Help:      "Total component sync requests issued.",
})
