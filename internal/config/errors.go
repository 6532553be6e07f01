package config

import "errors"

// Sentinel errors for transient infrastructure faults (§7) and config
// validation. These are the only errors that bubble out of the validator
// and processor as Go errors — protocol-invalid outcomes never do (they are
// recorded via Reason instead, see reasons.go).
var (
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrNodeUnavailable     = errors.New("bitcoin node unavailable")
	ErrNodeTimeout         = errors.New("bitcoin node request timed out")
	ErrStoreConflict       = errors.New("store write conflict")
	ErrStoreRetriesExceeded = errors.New("store retries exceeded")
	ErrBlockNotFound       = errors.New("block not found")
	ErrPartialBlock        = errors.New("partial block detected on resume")
	ErrCircuitOpen         = errors.New("node circuit breaker open")
	ErrReorgTooDeep        = errors.New("reorg deeper than retained block hash window")
)

// Error codes, mirrored into structured log fields and the ops HTTP surface.
const (
	ErrorCodeInvalidConfig        = "ERROR_INVALID_CONFIG"
	ErrorCodeNodeUnavailable      = "ERROR_NODE_UNAVAILABLE"
	ErrorCodeStoreConflict        = "ERROR_STORE_CONFLICT"
	ErrorCodeStoreRetriesExceeded = "ERROR_STORE_RETRIES_EXCEEDED"
	ErrorCodeFatalInconsistency   = "ERROR_FATAL_INCONSISTENCY"
)
