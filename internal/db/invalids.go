package db

import (
	"database/sql"
	"fmt"
)

// InsertInvalidTx records a rejected operation inside tx (§3 InvalidTx, §7
// protocol-invalid class) — kept for audit, never read by the validator.
func InsertInvalidTx(tx *sql.Tx, txID, rawInscription, reason string, height int64) error {
	_, err := tx.Exec(
		`INSERT INTO invalids (tx_id, raw_inscription, reason, block_height) VALUES (?, ?, ?, ?)`,
		txID, rawInscription, reason, height,
	)
	if err != nil {
		return fmt.Errorf("insert invalid tx %s: %w", txID, err)
	}
	return nil
}

// DeleteInvalidsAboveHeightTx removes invalid-op rows above height, part
// of reorg rollback (§4.6).
func DeleteInvalidsAboveHeightTx(tx *sql.Tx, height int64) error {
	_, err := tx.Exec(`DELETE FROM invalids WHERE block_height > ?`, height)
	if err != nil {
		return fmt.Errorf("delete invalids above %d: %w", height, err)
	}
	return nil
}
