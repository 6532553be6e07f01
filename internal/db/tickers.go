package db

import (
	"database/sql"
	"fmt"

	"github.com/brc20network/indexer/internal/models"
)

// GetTicker returns the ticker state for tick (already lower-cased by the
// caller), or sql.ErrNoRows if it has not been deployed.
func (d *DB) GetTicker(tick string) (models.Ticker, error) {
	var t models.Ticker
	err := d.conn.QueryRow(
		`SELECT tick, max_supply, mint_limit_per_op, decimals, total_minted, deploy_block_height, deploy_tx_id
		 FROM tickers WHERE tick = ?`, tick,
	).Scan(&t.Tick, &t.MaxSupply, &t.MintLimitPerOp, &t.Decimals, &t.TotalMinted, &t.DeployBlockHeight, &t.DeployTxID)
	if err != nil {
		return models.Ticker{}, err
	}
	return t, nil
}

// ListTickers returns every deployed ticker, for warming the in-memory
// registry at startup (internal/ticker.LoadAll).
func (d *DB) ListTickers() ([]models.Ticker, error) {
	rows, err := d.conn.Query(
		`SELECT tick, max_supply, mint_limit_per_op, decimals, total_minted, deploy_block_height, deploy_tx_id FROM tickers`,
	)
	if err != nil {
		return nil, fmt.Errorf("list tickers: %w", err)
	}
	defer rows.Close()

	var out []models.Ticker
	for rows.Next() {
		var t models.Ticker
		if err := rows.Scan(&t.Tick, &t.MaxSupply, &t.MintLimitPerOp, &t.Decimals, &t.TotalMinted, &t.DeployBlockHeight, &t.DeployTxID); err != nil {
			return nil, fmt.Errorf("scan ticker: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertTickerTx creates a new ticker row inside tx (the first-deploy-wins
// rule, §4.3, is enforced by the PRIMARY KEY on tick plus the caller's
// pre-check within the same block processor pass).
func InsertTickerTx(tx *sql.Tx, t models.Ticker) error {
	_, err := tx.Exec(
		`INSERT INTO tickers (tick, max_supply, mint_limit_per_op, decimals, total_minted, deploy_block_height, deploy_tx_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.Tick, t.MaxSupply, t.MintLimitPerOp, t.Decimals, t.TotalMinted, t.DeployBlockHeight, t.DeployTxID,
	)
	if err != nil {
		return fmt.Errorf("insert ticker %q: %w", t.Tick, err)
	}
	return nil
}

// UpdateTotalMintedTx advances a ticker's total_minted inside tx.
func UpdateTotalMintedTx(tx *sql.Tx, tick, totalMinted string) error {
	_, err := tx.Exec(`UPDATE tickers SET total_minted = ? WHERE tick = ?`, totalMinted, tick)
	if err != nil {
		return fmt.Errorf("update total_minted for %q: %w", tick, err)
	}
	return nil
}

// InsertMintSnapshotTx records the per-block total_minted checkpoint used
// to recompute total_minted during reorg rollback (§4.5 step 2, §4.6).
func InsertMintSnapshotTx(tx *sql.Tx, snap models.MintSnapshot) error {
	_, err := tx.Exec(
		`INSERT OR REPLACE INTO total_minted_at_block_height (tick, height, total_minted) VALUES (?, ?, ?)`,
		snap.Tick, snap.BlockHeight, snap.TotalMinted,
	)
	if err != nil {
		return fmt.Errorf("insert mint snapshot %s@%d: %w", snap.Tick, snap.BlockHeight, err)
	}
	return nil
}

// LatestMintSnapshot returns the most recent total_minted snapshot at or
// below height for tick, used to recompute total_minted during rollback
// (§4.6). Returns "0" if no snapshot exists at or below height.
func (d *DB) LatestMintSnapshot(tick string, height int64) (string, error) {
	var totalMinted string
	err := d.conn.QueryRow(
		`SELECT total_minted FROM total_minted_at_block_height
		 WHERE tick = ? AND height <= ? ORDER BY height DESC LIMIT 1`,
		tick, height,
	).Scan(&totalMinted)
	if err == sql.ErrNoRows {
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest mint snapshot for %s at %d: %w", tick, height, err)
	}
	return totalMinted, nil
}

// DeleteMintSnapshotsAboveTx removes snapshots for block heights above h,
// part of reorg rollback (§4.6).
func DeleteMintSnapshotsAboveTx(tx *sql.Tx, height int64) error {
	_, err := tx.Exec(`DELETE FROM total_minted_at_block_height WHERE height > ?`, height)
	if err != nil {
		return fmt.Errorf("delete mint snapshots above %d: %w", height, err)
	}
	return nil
}

// InsertDeployTx records an accepted deploy (the `deploys` collection, §6).
func InsertDeployTx(tx *sql.Tx, txID, tick string, height int64, txPosition int) error {
	_, err := tx.Exec(
		`INSERT INTO deploys (tx_id, tick, block_height, tx_position) VALUES (?, ?, ?, ?)`,
		txID, tick, height, txPosition,
	)
	if err != nil {
		return fmt.Errorf("insert deploy %s: %w", txID, err)
	}
	return nil
}

// InsertMintTx records an accepted (possibly clamped) mint.
func InsertMintTx(tx *sql.Tx, txID, tick, address, requested, credited string, clamped bool, height int64, txPosition int) error {
	_, err := tx.Exec(
		`INSERT INTO mints (tx_id, tick, address, requested_amount, credited_amount, clamped, block_height, tx_position)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		txID, tick, address, requested, credited, boolToInt(clamped), height, txPosition,
	)
	if err != nil {
		return fmt.Errorf("insert mint %s: %w", txID, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
