package osmstore

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// PeerRateLimiterConfig configures per-peer dispatch throttling (SPEC_FULL
// §12/§13): a safeguard against one misbehaving peer flooding MergeOps,
// not a correctness requirement of the core log.
type PeerRateLimiterConfig struct {
	RatePerSecond   int
	BurstSize       int
	MaxPeers        int
	PeerTTL         time.Duration
	CleanupInterval time.Duration
}

// DefaultPeerRateLimiterConfig is generous enough to never trip for a
// single local peer driving its own dispatches; it only bites a remote
// peer's MergeOps firehose.
func DefaultPeerRateLimiterConfig() PeerRateLimiterConfig {
	return PeerRateLimiterConfig{
		RatePerSecond:   500,
		BurstSize:       1000,
		MaxPeers:        4096,
		PeerTTL:         10 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// PeerRateLimiter is a per-author token bucket, adapted from the teacher's
// per-client limiter to key on osid author UUIDs instead of client id
// strings.
type PeerRateLimiter struct {
	mu          sync.Mutex
	limiters    map[uuid.UUID]*peerLimiter
	config      PeerRateLimiterConfig
	lastCleanup time.Time
}

type peerLimiter struct {
	limiter      *rate.Limiter
	lastAccessed time.Time
}

// NewPeerRateLimiter builds a limiter, filling in any zero-valued config
// fields from DefaultPeerRateLimiterConfig.
func NewPeerRateLimiter(config PeerRateLimiterConfig) *PeerRateLimiter {
	def := DefaultPeerRateLimiterConfig()
	if config.RatePerSecond <= 0 {
		config.RatePerSecond = def.RatePerSecond
	}
	if config.BurstSize <= 0 {
		config.BurstSize = def.BurstSize
	}
	if config.MaxPeers <= 0 {
		config.MaxPeers = def.MaxPeers
	}
	if config.PeerTTL <= 0 {
		config.PeerTTL = def.PeerTTL
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	return &PeerRateLimiter{
		limiters:    make(map[uuid.UUID]*peerLimiter),
		config:      config,
		lastCleanup: time.Now(),
	}
}

// AllowN reports whether n ops from peer are admitted under its current
// token bucket, creating one on first sight.
func (rl *PeerRateLimiter) AllowN(peer uuid.UUID, n int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	p, ok := rl.limiters[peer]
	if !ok {
		if len(rl.limiters) >= rl.config.MaxPeers {
			rl.cleanupLocked()
		}
		p = &peerLimiter{limiter: rate.NewLimiter(rate.Limit(rl.config.RatePerSecond), rl.config.BurstSize)}
		rl.limiters[peer] = p
	}
	p.lastAccessed = time.Now()
	rl.maybeCleanupLocked()
	return p.limiter.AllowN(time.Now(), n)
}

func (rl *PeerRateLimiter) maybeCleanupLocked() {
	if time.Since(rl.lastCleanup) >= rl.config.CleanupInterval {
		rl.cleanupLocked()
	}
}

func (rl *PeerRateLimiter) cleanupLocked() {
	rl.lastCleanup = time.Now()
	cutoff := rl.lastCleanup.Add(-rl.config.PeerTTL)
	for peer, p := range rl.limiters {
		if p.lastAccessed.Before(cutoff) {
			delete(rl.limiters, peer)
		}
	}
}
