package db

import (
	"database/sql"
	"fmt"

	"github.com/brc20network/indexer/internal/config"
)

// LastCompletedHeight returns blocks_completed's high-water mark (§3
// BlockHighWater), or ok=false if the indexer has never completed a block
// (fresh start — the caller resumes from the protocol activation height).
func (d *DB) LastCompletedHeight() (height int64, ok bool, err error) {
	var max sql.NullInt64
	if err := d.conn.QueryRow(`SELECT MAX(height) FROM blocks_completed`).Scan(&max); err != nil {
		return 0, false, fmt.Errorf("read last completed height: %w", err)
	}
	if !max.Valid {
		return 0, false, nil
	}
	return max.Int64, true, nil
}

// BlockHashAt returns the hash the indexer stored for height, for the
// processor's reorg check and for walking backward to find a reorg's
// common ancestor (§4.6). ok is false if height fell outside the retained
// window (config.MaxReorgDepth) or was never completed.
func (d *DB) BlockHashAt(height int64) (hash string, ok bool, err error) {
	err = d.conn.QueryRow(`SELECT hash FROM blocks_completed WHERE height = ?`, height).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read block hash at %d: %w", height, err)
	}
	return hash, true, nil
}

// SetLastCompletedHeightTx records height's block hash and bumps the
// high-water mark inside tx — must be the final write of a block's commit
// (§4.5 step 3, §5 ordering guarantee 2). It also prunes rows older than
// config.MaxReorgDepth, since only that trailing window is ever consulted
// by the reorg check.
func SetLastCompletedHeightTx(tx *sql.Tx, height int64, hash string) error {
	if _, err := tx.Exec(
		`INSERT INTO blocks_completed (height, hash) VALUES (?, ?)
		 ON CONFLICT(height) DO UPDATE SET hash = excluded.hash`,
		height, hash,
	); err != nil {
		return fmt.Errorf("set last completed height to %d: %w", height, err)
	}
	if _, err := tx.Exec(
		`DELETE FROM blocks_completed WHERE height <= ?`,
		height-config.MaxReorgDepth,
	); err != nil {
		return fmt.Errorf("prune blocks_completed below %d: %w", height-config.MaxReorgDepth, err)
	}
	return nil
}

// DeleteBlocksCompletedAboveHeightTx removes the retained hash rows for
// every height above targetHeight, used by rollback (§4.6) to keep
// LastCompletedHeight's MAX(height) from reporting a height the rollback
// just discarded.
func DeleteBlocksCompletedAboveHeightTx(tx *sql.Tx, targetHeight int64) error {
	if _, err := tx.Exec(`DELETE FROM blocks_completed WHERE height > ?`, targetHeight); err != nil {
		return fmt.Errorf("delete blocks_completed above %d: %w", targetHeight, err)
	}
	return nil
}

// BeginBlockTx opens the single transaction a block's writes are staged
// into, so the whole block commits or rolls back atomically (§4.5 step 3).
func (d *DB) BeginBlockTx() (*sql.Tx, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin block transaction: %w", err)
	}
	return tx, nil
}

// PartialBlockHeights reports heights present in user_balance_entry,
// active_transfers, or accepted-op tables strictly above
// last_completed_height — evidence of a crash mid-commit under the
// write-dependents-then-bump-mark discipline (§5 cancellation clause).
// These rows must be discarded before resume.
func (d *DB) PartialBlockHeights(lastCompleted int64) ([]int64, error) {
	seen := make(map[int64]struct{})
	queries := []string{
		`SELECT DISTINCT block_height FROM user_balance_entry WHERE block_height > ?`,
		`SELECT DISTINCT inscribe_block_height FROM active_transfers WHERE inscribe_block_height > ?`,
		`SELECT DISTINCT block_height FROM mints WHERE block_height > ?`,
		`SELECT DISTINCT block_height FROM deploys WHERE block_height > ?`,
		`SELECT DISTINCT inscribe_block_height FROM transfers WHERE inscribe_block_height > ?`,
		`SELECT DISTINCT block_height FROM invalids WHERE block_height > ?`,
	}

	for _, q := range queries {
		rows, err := d.conn.Query(q, lastCompleted)
		if err != nil {
			return nil, fmt.Errorf("scan for partial block rows: %w", err)
		}
		for rows.Next() {
			var h int64
			if err := rows.Scan(&h); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan partial block height: %w", err)
			}
			seen[h] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	out := make([]int64, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	return out, nil
}

// DiscardPartialBlockTx deletes every row tagged with height from all
// per-block tables, used to clean up a detected partial block before
// resume (§5).
func DiscardPartialBlockTx(tx *sql.Tx, height int64) error {
	tables := []struct {
		table  string
		column string
	}{
		{"user_balance_entry", "block_height"},
		{"active_transfers", "inscribe_block_height"},
		{"mints", "block_height"},
		{"deploys", "block_height"},
		{"transfers", "inscribe_block_height"},
		{"invalids", "block_height"},
		{"total_minted_at_block_height", "height"},
		{"tickers", "deploy_block_height"},
	}
	for _, t := range tables {
		q := fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, t.table, t.column)
		if _, err := tx.Exec(q, height); err != nil {
			return fmt.Errorf("discard partial block rows from %s: %w", t.table, err)
		}
	}
	return nil
}
