// Package address resolves the controlling address of a transaction output
// from its scriptPubKey (§4.4 "the controlling address of vout[0]"),
// mirroring the original Rust indexer's get_owner_of_vout (utils.rs) and
// the teacher's own use of btcutil address types in internal/wallet/btc.go
// — there the package derives addresses forward from a key; here it derives
// them backward from a script.
package address

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// Resolve returns the single controlling address encoded by pkScript, or an
// error if the script is non-standard, multisig, or provably unspendable
// (e.g. OP_RETURN) — any case where no single address can be derived is
// treated uniformly as "unresolvable" by the caller (reason
// "unresolvable address", §7).
func Resolve(pkScript []byte, net *chaincfg.Params) (string, error) {
	scriptClass, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, net)
	if err != nil {
		return "", fmt.Errorf("extract addresses from script: %w", err)
	}

	if scriptClass == txscript.NonStandardTy || scriptClass == txscript.NullDataTy {
		return "", fmt.Errorf("script class %s yields no derivable address", scriptClass)
	}

	if len(addrs) != 1 {
		return "", fmt.Errorf("script yields %d addresses, want exactly 1", len(addrs))
	}

	return addrs[0].EncodeAddress(), nil
}

// NetParamsForNetwork maps the indexer's "mainnet"/"testnet" config value to
// the corresponding chaincfg.Params.
func NetParamsForNetwork(network string) *chaincfg.Params {
	if network == "testnet" {
		return &chaincfg.TestNet3Params
	}
	return &chaincfg.MainNetParams
}
