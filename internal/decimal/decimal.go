// Package decimal implements the protocol's numeric parser (§4.2, component
// B): fixed-point decimal strings scaled by a ticker's declared precision,
// using math/big so validation arithmetic never touches binary floating
// point. The teacher represents scaled monetary amounts (wei) the same
// way throughout internal/tx/gas.go and internal/tx/bsc_tx.go — this
// package generalises that idiom to arbitrary decimals instead of a fixed
// 18.
package decimal

import (
	"fmt"
	"math/big"
	"strings"
)

// Amount is a non-negative-or-negative fixed-point value: Scaled holds the
// value multiplied by 10^Decimals as an exact integer.
type Amount struct {
	Scaled   *big.Int
	Decimals uint8
}

// Zero returns the zero amount at the given precision.
func Zero(decimals uint8) Amount {
	return Amount{Scaled: big.NewInt(0), Decimals: decimals}
}

// FromInt64 builds an Amount from an already-scaled integer, e.g. for tests
// and snapshot recomputation.
func FromInt64(scaled int64, decimals uint8) Amount {
	return Amount{Scaled: big.NewInt(scaled), Decimals: decimals}
}

// Parse parses a protocol-level decimal string under the given precision
// (§4.2). Rules: at most one decimal point, fractional digits must be
// <= decimals, no leading/trailing whitespace, no sign, no NaN/Inf forms.
// Zero is a syntactically valid amount (rejecting amount==0 is the
// validator's job, not the parser's — §4.2).
func Parse(s string, decimals uint8) (Amount, error) {
	if s == "" {
		return Amount{}, fmt.Errorf("empty decimal string")
	}
	if s != strings.TrimSpace(s) {
		return Amount{}, fmt.Errorf("leading or trailing whitespace in %q", s)
	}
	for _, r := range s {
		if r == '.' {
			continue
		}
		if r < '0' || r > '9' {
			return Amount{}, fmt.Errorf("invalid character %q in decimal string", r)
		}
	}

	parts := strings.Split(s, ".")
	switch len(parts) {
	case 1:
		intPart := parts[0]
		if intPart == "" {
			return Amount{}, fmt.Errorf("empty integer part")
		}
		scaled, ok := new(big.Int).SetString(intPart, 10)
		if !ok {
			return Amount{}, fmt.Errorf("malformed integer %q", intPart)
		}
		scaled.Mul(scaled, pow10(decimals))
		return Amount{Scaled: scaled, Decimals: decimals}, nil

	case 2:
		intPart, fracPart := parts[0], parts[1]
		if intPart == "" || fracPart == "" {
			return Amount{}, fmt.Errorf("malformed decimal %q", s)
		}
		if len(fracPart) > int(decimals) {
			return Amount{}, fmt.Errorf("fractional part %q exceeds %d decimals", fracPart, decimals)
		}

		intVal, ok := new(big.Int).SetString(intPart, 10)
		if !ok {
			return Amount{}, fmt.Errorf("malformed integer part %q", intPart)
		}
		fracVal, ok := new(big.Int).SetString(fracPart, 10)
		if !ok {
			return Amount{}, fmt.Errorf("malformed fractional part %q", fracPart)
		}

		scaled := new(big.Int).Mul(intVal, pow10(decimals))
		// Pad the fractional digits out to `decimals` places.
		fracVal.Mul(fracVal, pow10(decimals-uint8(len(fracPart))))
		scaled.Add(scaled, fracVal)

		return Amount{Scaled: scaled, Decimals: decimals}, nil

	default:
		return Amount{}, fmt.Errorf("more than one decimal point in %q", s)
	}
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// String renders the amount back to its decimal string form (for
// persistence and display).
func (a Amount) String() string {
	if a.Scaled == nil {
		return "0"
	}
	if a.Decimals == 0 {
		return a.Scaled.String()
	}

	neg := a.Scaled.Sign() < 0
	abs := new(big.Int).Abs(a.Scaled)
	divisor := pow10(a.Decimals)
	intPart, frac := new(big.Int), new(big.Int)
	intPart.QuoRem(abs, divisor, frac)

	fracStr := frac.String()
	fracStr = strings.Repeat("0", int(a.Decimals)-len(fracStr)) + fracStr
	fracStr = strings.TrimRight(fracStr, "0")

	out := intPart.String()
	if fracStr != "" {
		out += "." + fracStr
	}
	if neg {
		out = "-" + out
	}
	return out
}

// Float64 surfaces a lossy binary-float view for read-side display only
// (§4.2 — "the engine may surface f64 only for read-side display"). Never
// use this for validation arithmetic.
func (a Amount) Float64() float64 {
	f := new(big.Float).SetInt(a.Scaled)
	scale := new(big.Float).SetInt(pow10(a.Decimals))
	f.Quo(f, scale)
	out, _ := f.Float64()
	return out
}

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool {
	return a.Scaled == nil || a.Scaled.Sign() == 0
}

// IsNegative reports whether the amount is strictly negative.
func (a Amount) IsNegative() bool {
	return a.Scaled != nil && a.Scaled.Sign() < 0
}

// Cmp compares two amounts at the same precision. Callers must ensure
// matching Decimals (all amounts within one ticker share its precision).
func (a Amount) Cmp(b Amount) int {
	return a.Scaled.Cmp(b.Scaled)
}

// Add returns a+b at a's precision.
func (a Amount) Add(b Amount) Amount {
	return Amount{Scaled: new(big.Int).Add(a.Scaled, b.Scaled), Decimals: a.Decimals}
}

// Sub returns a-b at a's precision.
func (a Amount) Sub(b Amount) Amount {
	return Amount{Scaled: new(big.Int).Sub(a.Scaled, b.Scaled), Decimals: a.Decimals}
}

// Neg returns -a.
func (a Amount) Neg() Amount {
	return Amount{Scaled: new(big.Int).Neg(a.Scaled), Decimals: a.Decimals}
}
