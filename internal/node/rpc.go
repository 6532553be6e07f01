package node

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"

	"github.com/brc20network/indexer/internal/config"
)

// RPCNode is the production Node implementation, backed by
// btcsuite/btcd/rpcclient against a Bitcoin Core-compatible node (§6).
// Grounded on the teacher's scanner.Pool connection-retry idiom and on
// other_examples' use of rpcclient.New/ConnConfig for a BTC oracle.
type RPCNode struct {
	client *rpcclient.Client
	rl     *RateLimiter
	cb     *circuitBreaker
}

// Dial opens a connection to a Bitcoin node's JSON-RPC interface.
func Dial(host, user, pass string, tls bool) (*RPCNode, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         host,
		User:         user,
		Pass:         pass,
		HTTPPostMode: true,
		DisableTLS:   !tls,
	}

	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("dial node RPC at %s: %w", host, err)
	}

	slog.Info("node RPC client dialed", "host", host, "tls", tls)

	return &RPCNode{
		client: client,
		rl:     NewRateLimiter(config.NodeRPCRateLimitHz),
		cb:     newCircuitBreaker(config.NodeCircuitBreakerThreshold, config.NodeCircuitBreakerCooldown),
	}, nil
}

// Shutdown closes the underlying RPC connection.
func (n *RPCNode) Shutdown() {
	n.client.Shutdown()
}

// CircuitState reports the node RPC circuit breaker's current state, for
// the ops status endpoint.
func (n *RPCNode) CircuitState() string {
	return n.cb.State()
}

func (n *RPCNode) BestHeight(ctx context.Context) (int64, error) {
	var height int64
	err := n.call(ctx, "getblockcount", func() error {
		h, err := n.client.GetBlockCount()
		height = h
		return err
	})
	return height, err
}

func (n *RPCNode) BlockHash(ctx context.Context, height int64) (string, error) {
	var hash string
	err := n.call(ctx, "getblockhash", func() error {
		h, err := n.client.GetBlockHash(height)
		if err != nil {
			return err
		}
		hash = h.String()
		return nil
	})
	return hash, err
}

func (n *RPCNode) Block(ctx context.Context, hash string) (*Block, error) {
	blockHash, err := chainhash.NewHashFromStr(hash)
	if err != nil {
		return nil, fmt.Errorf("parse block hash %q: %w", hash, err)
	}

	var raw *btcjson.GetBlockVerboseTxResult
	err = n.call(ctx, "getblock", func() error {
		result, err := n.client.GetBlockVerboseTx(blockHash)
		raw = result
		return err
	})
	if err != nil {
		return nil, err
	}

	return convertBlock(raw)
}

func convertBlock(raw *btcjson.GetBlockVerboseTxResult) (*Block, error) {
	block := &Block{
		Hash:     raw.Hash,
		PrevHash: raw.PreviousHash,
		Height:   raw.Height,
		Txs:      make([]RawTx, 0, len(raw.Tx)),
	}

	for _, tx := range raw.Tx {
		rawTx, err := convertTx(tx)
		if err != nil {
			return nil, fmt.Errorf("convert tx %s: %w", tx.Txid, err)
		}
		block.Txs = append(block.Txs, rawTx)
	}

	return block, nil
}

func convertTx(tx btcjson.TxRawResult) (RawTx, error) {
	out := RawTx{
		TxID: tx.Txid,
		Vin:  make([]Vin, 0, len(tx.Vin)),
		Vout: make([]Vout, 0, len(tx.Vout)),
	}

	for _, vin := range tx.Vin {
		witness := make([][]byte, 0, len(vin.Witness))
		for _, w := range vin.Witness {
			b, err := hex.DecodeString(w)
			if err != nil {
				return RawTx{}, fmt.Errorf("decode witness item: %w", err)
			}
			witness = append(witness, b)
		}
		out.Vin = append(out.Vin, Vin{
			PrevOut: OutPoint{TxID: vin.Txid, Vout: vin.Vout},
			Witness: witness,
		})
	}

	for _, vout := range tx.Vout {
		pkScript, err := hex.DecodeString(vout.ScriptPubKey.Hex)
		if err != nil {
			return RawTx{}, fmt.Errorf("decode scriptPubKey: %w", err)
		}
		out.Vout = append(out.Vout, Vout{
			Value:    satoshis(vout.Value),
			PkScript: pkScript,
		})
	}

	return out, nil
}

func satoshis(btc float64) int64 {
	return int64(math.Round(btc * 1e8))
}

// call runs op behind the rate limiter, circuit breaker, a per-attempt
// timeout, and exponential backoff retry — the node-RPC analogue of the
// teacher's scanner.Pool request path.
func (n *RPCNode) call(ctx context.Context, name string, op func() error) error {
	if !n.cb.Allow() {
		return fmt.Errorf("%s: %w", name, config.ErrCircuitOpen)
	}

	delay := config.NodeRetryBaseDelay
	var lastErr error

	for attempt := 1; attempt <= config.NodeMaxAttempts; attempt++ {
		if err := n.rl.Wait(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		callCtx, cancel := context.WithTimeout(ctx, config.NodeRPCTimeout)
		errCh := make(chan error, 1)
		go func() { errCh <- op() }()

		var err error
		select {
		case err = <-errCh:
		case <-callCtx.Done():
			err = fmt.Errorf("%w: %s", config.ErrNodeTimeout, name)
		}
		cancel()

		if err == nil {
			n.cb.RecordSuccess()
			return nil
		}

		lastErr = err
		n.cb.RecordFailure()
		slog.Warn("node RPC call failed",
			"method", name,
			"attempt", attempt,
			"error", err,
		)

		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", name, ctx.Err())
		}
		if attempt == config.NodeMaxAttempts {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", name, ctx.Err())
		}
		delay *= 2
		if delay > config.NodeRetryMaxDelay {
			delay = config.NodeRetryMaxDelay
		}
	}

	return fmt.Errorf("%s: %w: %v", name, config.ErrNodeUnavailable, lastErr)
}
