// Package config holds osmosis-store's runtime configuration: the
// save-point ladder's minimum width, garbage-collection policy, the
// flat-file backend's root directory, and this peer's author UUID.
// Adapted from the teacher's config package: environment-variable
// loading keyed by a prefix (pkg/config/sources.EnvSource) and a
// ValidationError/ValidationErrors accumulate-then-report pattern
// (pkg/config's own validation.go), trimmed to the handful of settings
// this store actually has — the teacher's hot-reload/watch/multi-source
// machinery has no SPEC_FULL role.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ValidationError is one failed field check.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: field %q: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors accumulates every failed check so Validate can report
// all of them at once instead of stopping at the first.
type ValidationErrors struct {
	Errors []ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := fmt.Sprintf("config: %d validation errors:", len(e.Errors))
	for _, ve := range e.Errors {
		msg += "\n  - " + ve.Error()
	}
	return msg
}

func (e *ValidationErrors) add(field string, value interface{}, message string) {
	e.Errors = append(e.Errors, ValidationError{Field: field, Value: value, Message: message})
}

// StoreConfig is the ambient configuration SPEC_FULL §11 promises: the
// save-point ladder, GC policy, the flat-file backend's on-disk root, and
// the peer identity, and MergeOps rate limiting. Only DataDir is read
// outside this package (by cmd/osmosis-cli); the other fields are parsed
// and validated here and not consumed by pkg/savestate or pkg/osmstore.
type StoreConfig struct {
	// SavePointMinWidth is the ladder's base rung width (spec §4.7). The
	// in-memory and flat-file backends do not read it; both use a fixed
	// width of 4, the width used in spec §8's worked recovery example.
	SavePointMinWidth int

	// GCMaxChainDepth is a cap on chained overlays per save point, with 0
	// meaning no cap. No backend reads it: GarbageCollect only runs when
	// explicitly called.
	GCMaxChainDepth int

	// DataDir is the flat-file backend's root directory, holding
	// osmosis-metadata.msgpack, osmosis-recent.msgpack, and
	// savepoint-<hex64>.msgpack files (spec §6/§9).
	DataDir string

	// Peer is an author UUID read from OSMOSIS_PEER. pkg/osmstore.New
	// does not take it: every Store generates its own peer id with
	// uuid.New().
	Peer uuid.UUID

	// RateLimitPerSecond/RateLimitBurst/PeerTTL mirror the settings of
	// MergeOps's per-peer rate limiter (pkg/osmstore.PeerRateLimiter);
	// nothing builds a limiter from them.
	RateLimitPerSecond int
	RateLimitBurst     int
	PeerTTL            time.Duration
}

// Default returns the configuration the in-memory backend and a
// freshly-generated peer identity use when nothing overrides them.
func Default() StoreConfig {
	return StoreConfig{
		SavePointMinWidth:  4,
		GCMaxChainDepth:    0,
		DataDir:            "./osmosis-data",
		RateLimitPerSecond: 500,
		RateLimitBurst:     1000,
		PeerTTL:            10 * time.Minute,
	}
}

// Validate checks every field's invariants, accumulating every failure it
// finds rather than stopping at the first (matching the teacher's
// ValidationErrors pattern).
func (c StoreConfig) Validate() error {
	var errs ValidationErrors
	if c.SavePointMinWidth < 2 {
		errs.add("SavePointMinWidth", c.SavePointMinWidth, "must be at least 2")
	}
	if c.GCMaxChainDepth < 0 {
		errs.add("GCMaxChainDepth", c.GCMaxChainDepth, "must not be negative")
	}
	if c.DataDir == "" {
		errs.add("DataDir", c.DataDir, "must not be empty")
	}
	if c.RateLimitPerSecond <= 0 {
		errs.add("RateLimitPerSecond", c.RateLimitPerSecond, "must be positive")
	}
	if c.RateLimitBurst <= 0 {
		errs.add("RateLimitBurst", c.RateLimitBurst, "must be positive")
	}
	if len(errs.Errors) > 0 {
		return &errs
	}
	return nil
}

// envPrefix is the prefix every osmosis-store environment variable
// carries, following pkg/config/sources.EnvSource's prefix+separator
// convention (OSMOSIS_SAVE_POINT_MIN_WIDTH, OSMOSIS_DATA_DIR, ...).
const envPrefix = "OSMOSIS_"

// FromEnv overlays environment variables onto base, following the
// teacher's EnvSource prefix convention. Unset variables leave base's
// field untouched; malformed ones are reported as a ValidationError
// rather than silently ignored or defaulted.
func FromEnv(base StoreConfig) (StoreConfig, error) {
	var errs ValidationErrors
	cfg := base

	if v, ok := os.LookupEnv(envPrefix + "SAVE_POINT_MIN_WIDTH"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs.add("SavePointMinWidth", v, "not an integer")
		} else {
			cfg.SavePointMinWidth = n
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "GC_MAX_CHAIN_DEPTH"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs.add("GCMaxChainDepth", v, "not an integer")
		} else {
			cfg.GCMaxChainDepth = n
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "DATA_DIR"); ok {
		cfg.DataDir = v
	}
	if v, ok := os.LookupEnv(envPrefix + "PEER"); ok {
		id, err := uuid.Parse(v)
		if err != nil {
			errs.add("Peer", v, "not a UUID")
		} else {
			cfg.Peer = id
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "RATE_LIMIT_PER_SECOND"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs.add("RateLimitPerSecond", v, "not an integer")
		} else {
			cfg.RateLimitPerSecond = n
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "RATE_LIMIT_BURST"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs.add("RateLimitBurst", v, "not an integer")
		} else {
			cfg.RateLimitBurst = n
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "PEER_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs.add("PeerTTL", v, "not a duration")
		} else {
			cfg.PeerTTL = d
		}
	}

	if len(errs.Errors) > 0 {
		return cfg, &errs
	}
	return cfg, nil
}
