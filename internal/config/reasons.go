package config

// Reason is the fixed set of human-readable explanations recorded against a
// rejected BRC-20 operation (§3 InvalidTx, §7). Reason is never wrapped in a
// Go error — it is a deterministic validator outcome, not a fault.
type Reason string

const (
	ReasonMalformedInscription     Reason = "malformed inscription"
	ReasonTickerNotFound           Reason = "ticker not found"
	ReasonTickerAlreadyDeployed    Reason = "ticker already deployed"
	ReasonAmountExceedsLimit       Reason = "amount exceeds limit"
	ReasonZeroAmount               Reason = "zero amount"
	ReasonTickerFullyMinted        Reason = "ticker fully minted"
	ReasonInsufficientAvailable    Reason = "insufficient available balance"
	ReasonUserBalanceNotFound      Reason = "user balance not found"
	ReasonBadDecimalPrecision      Reason = "bad decimal precision"
	ReasonUnresolvableAddress      Reason = "unresolvable address"
)
