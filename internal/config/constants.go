package config

import "time"

// Protocol activation heights — the first block each network's BRC-20
// deployment history begins at. A fresh indexer with no blocks_completed
// row resumes from here.
const (
	ActivationHeightMainnet int64 = 767430
	ActivationHeightTestnet int64 = 2423500
)

// Ticker constraints (§3).
const (
	TickLength     = 4
	DefaultDecimals = 18
	MaxDecimals     = 18
)

// Store / node retry behaviour (§5, §7).
const (
	DefaultStoreRetries  = 10
	StoreRetryBaseDelay  = 200 * time.Millisecond
	StoreRetryMaxDelay   = 5 * time.Second
	NodeRetryBaseDelay   = 500 * time.Millisecond
	NodeRetryMaxDelay    = 10 * time.Second
	NodeRPCTimeout       = 30 * time.Second
	NodeRPCRateLimitHz   = 20 // node requests per second during read-ahead prefetch
	ReadAheadBlocks      = 2  // blocks prefetched while the current block validates
	NodeMaxAttempts      = 6
)

// Reorg detection (§4.6). MaxReorgDepth bounds how many trailing
// (height, hash) rows blocks_completed retains — a chain split deeper than
// this can't be located by walking the retained window and is treated as a
// fatal inconsistency rather than an automatic rollback.
const MaxReorgDepth = 100

// Node circuit breaker (mirrors the teacher's scanner.CircuitBreaker).
const (
	NodeCircuitBreakerThreshold = 5
	NodeCircuitBreakerCooldown  = 30 * time.Second
)

// Circuit breaker states.
const (
	CircuitClosed             = "closed"
	CircuitOpen               = "open"
	CircuitHalfOpen           = "half-open"
	CircuitBreakerHalfOpenMax = 1
)

// Database.
const (
	DefaultStorePath = "./data/brc20indexer.sqlite"
	DBBusyTimeoutMs  = 5000
)

// Logging.
const (
	LogDir         = "./logs"
	LogFilePattern = "brc20indexer-%s-%s.log"
	LogFilePrefix  = "brc20indexer-"
	LogMaxAgeDays  = 30
)

// Ops HTTP surface.
const (
	DefaultHTTPAddr    = ":8090"
	HTTPReadTimeout    = 10 * time.Second
	HTTPWriteTimeout   = 10 * time.Second
	HTTPIdleTimeout    = 60 * time.Second
	HTTPMaxHeaderBytes = 1 << 16
	ShutdownTimeout    = 15 * time.Second
)
