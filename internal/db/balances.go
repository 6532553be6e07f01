package db

import (
	"database/sql"
	"fmt"

	"github.com/brc20network/indexer/internal/models"
)

// GetUserBalance returns the current balance row for (address, tick), or
// sql.ErrNoRows if none exists yet (§7 "user balance not found").
func (d *DB) GetUserBalance(address, tick string) (models.UserBalance, error) {
	var b models.UserBalance
	err := d.conn.QueryRow(
		`SELECT address, tick, available, transferable, overall, block_height
		 FROM user_balances WHERE address = ? AND tick = ?`, address, tick,
	).Scan(&b.Address, &b.Tick, &b.Available, &b.Transferable, &b.Overall, &b.BlockHeight)
	if err != nil {
		return models.UserBalance{}, err
	}
	return b, nil
}

// UpsertUserBalanceTx writes the post-operation balance row inside tx
// (§3 UserBalance — overall is recomputed and stored alongside available/
// transferable for query convenience, never trusted on its own).
func UpsertUserBalanceTx(tx *sql.Tx, b models.UserBalance) error {
	_, err := tx.Exec(
		`INSERT INTO user_balances (address, tick, available, transferable, overall, block_height)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(address, tick) DO UPDATE SET
		   available = excluded.available,
		   transferable = excluded.transferable,
		   overall = excluded.overall,
		   block_height = excluded.block_height`,
		b.Address, b.Tick, b.Available, b.Transferable, b.Overall, b.BlockHeight,
	)
	if err != nil {
		return fmt.Errorf("upsert user balance %s/%s: %w", b.Address, b.Tick, err)
	}
	return nil
}

// InsertUserBalanceEntryTx appends one history record inside tx (§3
// UserBalanceEntry — the ledger's current state must be reconstructible by
// folding these in block order).
func InsertUserBalanceEntryTx(tx *sql.Tx, e models.UserBalanceEntry) error {
	_, err := tx.Exec(
		`INSERT INTO user_balance_entry (address, tick, block_height, tx_position, input_position, amount, kind)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Address, e.Tick, e.BlockHeight, e.TxPosition, e.InputPosition, e.Amount, string(e.Kind),
	)
	if err != nil {
		return fmt.Errorf("insert balance entry for %s/%s: %w", e.Address, e.Tick, err)
	}
	return nil
}

// EntriesAboveHeight returns every history entry with block_height > height,
// ordered by (block_height, tx_position, input_position) — the order §5
// requires for deterministic replay — used by reorg rollback (§4.6) to
// invert deltas.
func (d *DB) EntriesAboveHeight(height int64) ([]models.UserBalanceEntry, error) {
	rows, err := d.conn.Query(
		`SELECT id, address, tick, block_height, tx_position, input_position, amount, kind
		 FROM user_balance_entry WHERE block_height > ?
		 ORDER BY block_height, tx_position, input_position`, height,
	)
	if err != nil {
		return nil, fmt.Errorf("query entries above %d: %w", height, err)
	}
	defer rows.Close()

	var out []models.UserBalanceEntry
	for rows.Next() {
		var e models.UserBalanceEntry
		var kind string
		if err := rows.Scan(&e.ID, &e.Address, &e.Tick, &e.BlockHeight, &e.TxPosition, &e.InputPosition, &e.Amount, &kind); err != nil {
			return nil, fmt.Errorf("scan balance entry: %w", err)
		}
		e.Kind = models.EntryKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteEntriesAboveHeightTx removes history rows above height inside tx,
// part of reorg rollback (§4.6) once their deltas have been inverted.
func DeleteEntriesAboveHeightTx(tx *sql.Tx, height int64) error {
	if _, err := tx.Exec(`DELETE FROM user_balance_entry WHERE block_height > ?`, height); err != nil {
		return fmt.Errorf("delete balance entries above %d: %w", height, err)
	}
	return nil
}

// DeleteMintsAboveHeightTx, DeleteDeploysAboveHeightTx, and
// DeleteTransfersAboveHeightTx remove accepted-op rows above height, part
// of reorg rollback (§4.6 "removes accepted ops in that range").
func DeleteMintsAboveHeightTx(tx *sql.Tx, height int64) error {
	_, err := tx.Exec(`DELETE FROM mints WHERE block_height > ?`, height)
	if err != nil {
		return fmt.Errorf("delete mints above %d: %w", height, err)
	}
	return nil
}

func DeleteDeploysAboveHeightTx(tx *sql.Tx, height int64) error {
	_, err := tx.Exec(`DELETE FROM deploys WHERE block_height > ?`, height)
	if err != nil {
		return fmt.Errorf("delete deploys above %d: %w", height, err)
	}
	return nil
}

func DeleteTickersDeployedAboveHeightTx(tx *sql.Tx, height int64) error {
	_, err := tx.Exec(`DELETE FROM tickers WHERE deploy_block_height > ?`, height)
	if err != nil {
		return fmt.Errorf("delete tickers deployed above %d: %w", height, err)
	}
	return nil
}

var ErrNotFound = sql.ErrNoRows

// ListUserBalances returns every current balance row, for cmd/verify's
// invariant sweep (§8).
func (d *DB) ListUserBalances() ([]models.UserBalance, error) {
	rows, err := d.conn.Query(
		`SELECT address, tick, available, transferable, overall, block_height FROM user_balances`,
	)
	if err != nil {
		return nil, fmt.Errorf("list user balances: %w", err)
	}
	defer rows.Close()

	var out []models.UserBalance
	for rows.Next() {
		var b models.UserBalance
		if err := rows.Scan(&b.Address, &b.Tick, &b.Available, &b.Transferable, &b.Overall, &b.BlockHeight); err != nil {
			return nil, fmt.Errorf("scan user balance: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// EntriesForAddress returns every history entry for (address, tick) in
// fold order, for cmd/verify's history-reconciliation check (§8).
func (d *DB) EntriesForAddress(address, tick string) ([]models.UserBalanceEntry, error) {
	rows, err := d.conn.Query(
		`SELECT id, address, tick, block_height, tx_position, input_position, amount, kind
		 FROM user_balance_entry WHERE address = ? AND tick = ?
		 ORDER BY block_height, tx_position, input_position`, address, tick,
	)
	if err != nil {
		return nil, fmt.Errorf("query entries for %s/%s: %w", address, tick, err)
	}
	defer rows.Close()

	var out []models.UserBalanceEntry
	for rows.Next() {
		var e models.UserBalanceEntry
		var kind string
		if err := rows.Scan(&e.ID, &e.Address, &e.Tick, &e.BlockHeight, &e.TxPosition, &e.InputPosition, &e.Amount, &kind); err != nil {
			return nil, fmt.Errorf("scan balance entry: %w", err)
		}
		e.Kind = models.EntryKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}
