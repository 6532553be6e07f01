package db

import (
	"database/sql"
	"fmt"

	"github.com/brc20network/indexer/internal/models"
)

// GetActiveTransfer looks up a live transfer-inscribe by its outpoint, or
// returns sql.ErrNoRows if the outpoint has no pending transfer.
func (d *DB) GetActiveTransfer(txid string, vout uint32) (models.ActiveTransfer, error) {
	var t models.ActiveTransfer
	err := d.conn.QueryRow(
		`SELECT outpoint_txid, outpoint_vout, tick, inscriber_address, amount, inscribe_block_height, inscribe_tx_position
		 FROM active_transfers WHERE outpoint_txid = ? AND outpoint_vout = ?`, txid, vout,
	).Scan(&t.OutPoint.TxID, &t.OutPoint.Vout, &t.Tick, &t.InscriberAddress, &t.Amount, &t.InscribeBlockHeight, &t.InscribeTxPosition)
	if err != nil {
		return models.ActiveTransfer{}, err
	}
	return t, nil
}

// ListActiveTransfers returns every pending transfer, for warming the
// Active Transfer Registry at startup (internal/transfer).
func (d *DB) ListActiveTransfers() ([]models.ActiveTransfer, error) {
	rows, err := d.conn.Query(
		`SELECT outpoint_txid, outpoint_vout, tick, inscriber_address, amount, inscribe_block_height, inscribe_tx_position
		 FROM active_transfers`,
	)
	if err != nil {
		return nil, fmt.Errorf("list active transfers: %w", err)
	}
	defer rows.Close()

	var out []models.ActiveTransfer
	for rows.Next() {
		var t models.ActiveTransfer
		if err := rows.Scan(&t.OutPoint.TxID, &t.OutPoint.Vout, &t.Tick, &t.InscriberAddress, &t.Amount, &t.InscribeBlockHeight, &t.InscribeTxPosition); err != nil {
			return nil, fmt.Errorf("scan active transfer: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertActiveTransferTx registers a new pending transfer inside tx (§4.4
// Transfer-Inscribe step 6).
func InsertActiveTransferTx(tx *sql.Tx, t models.ActiveTransfer) error {
	_, err := tx.Exec(
		`INSERT INTO active_transfers (outpoint_txid, outpoint_vout, tick, inscriber_address, amount, inscribe_block_height, inscribe_tx_position)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.OutPoint.TxID, t.OutPoint.Vout, t.Tick, t.InscriberAddress, t.Amount, t.InscribeBlockHeight, t.InscribeTxPosition,
	)
	if err != nil {
		return fmt.Errorf("insert active transfer %s: %w", t.OutPoint, err)
	}
	return nil
}

// ConsumeActiveTransferTx removes a pending transfer inside tx — exactly-once
// consumption on send (§4.4 Transfer-Send step 1, second-spend protection).
func ConsumeActiveTransferTx(tx *sql.Tx, txid string, vout uint32) error {
	result, err := tx.Exec(`DELETE FROM active_transfers WHERE outpoint_txid = ? AND outpoint_vout = ?`, txid, vout)
	if err != nil {
		return fmt.Errorf("consume active transfer %s:%d: %w", txid, vout, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume active transfer %s:%d: %w", txid, vout, err)
	}
	if affected == 0 {
		return fmt.Errorf("consume active transfer %s:%d: %w", txid, vout, sql.ErrNoRows)
	}
	return nil
}

// ActiveTransfersConsumedAbove returns transfers whose send happened
// above height, restoring them during reorg rollback (§4.6 "restores active
// transfers that were consumed in that range").
func (d *DB) ActiveTransfersConsumedAbove(height int64) ([]models.ActiveTransfer, error) {
	rows, err := d.conn.Query(
		`SELECT outpoint_txid, outpoint_vout, tick, inscriber_address, amount, inscribe_block_height, inscribe_tx_position
		 FROM transfers WHERE sent = 1 AND send_block_height > ?`, height,
	)
	if err != nil {
		return nil, fmt.Errorf("query consumed transfers above %d: %w", height, err)
	}
	defer rows.Close()

	var out []models.ActiveTransfer
	for rows.Next() {
		var t models.ActiveTransfer
		if err := rows.Scan(&t.OutPoint.TxID, &t.OutPoint.Vout, &t.Tick, &t.InscriberAddress, &t.Amount, &t.InscribeBlockHeight, &t.InscribeTxPosition); err != nil {
			return nil, fmt.Errorf("scan consumed transfer: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertTransferTx records an accepted transfer-inscribe (the `transfers`
// collection, §6), not yet sent.
func InsertTransferTx(tx *sql.Tx, txID, tick, inscriberAddress, amount, outpointTxid string, outpointVout uint32, height int64, txPosition int) error {
	_, err := tx.Exec(
		`INSERT INTO transfers (tx_id, tick, inscriber_address, amount, outpoint_txid, outpoint_vout, inscribe_block_height, inscribe_tx_position, sent)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		txID, tick, inscriberAddress, amount, outpointTxid, outpointVout, height, txPosition,
	)
	if err != nil {
		return fmt.Errorf("insert transfer %s: %w", txID, err)
	}
	return nil
}

// MarkTransferSentTx records the send leg of a transfer-inscribe inside tx
// (§4.4 Transfer-Send step 5).
func MarkTransferSentTx(tx *sql.Tx, outpointTxid string, outpointVout uint32, receiverAddress string, selfRefund bool, sendTxID string, sendHeight int64) error {
	_, err := tx.Exec(
		`UPDATE transfers SET sent = 1, receiver_address = ?, self_refund = ?, send_tx_id = ?, send_block_height = ?
		 WHERE outpoint_txid = ? AND outpoint_vout = ?`,
		receiverAddress, boolToInt(selfRefund), sendTxID, sendHeight, outpointTxid, outpointVout,
	)
	if err != nil {
		return fmt.Errorf("mark transfer sent %s:%d: %w", outpointTxid, outpointVout, err)
	}
	return nil
}

// UnmarkTransfersSentAboveTx reverts the send leg for transfers sent above
// height, part of reorg rollback (§4.6) — paired with
// ActiveTransfersConsumedAbove to restore the pending state.
func UnmarkTransfersSentAboveTx(tx *sql.Tx, height int64) error {
	_, err := tx.Exec(
		`UPDATE transfers SET sent = 0, receiver_address = NULL, self_refund = 0, send_tx_id = NULL, send_block_height = NULL
		 WHERE sent = 1 AND send_block_height > ?`, height,
	)
	if err != nil {
		return fmt.Errorf("unmark transfers sent above %d: %w", height, err)
	}
	return nil
}

// DeleteTransfersInscribedAboveHeightTx removes transfer-inscribe rows
// created above height, part of reorg rollback (§4.6).
func DeleteTransfersInscribedAboveHeightTx(tx *sql.Tx, height int64) error {
	_, err := tx.Exec(`DELETE FROM transfers WHERE inscribe_block_height > ?`, height)
	if err != nil {
		return fmt.Errorf("delete transfers inscribed above %d: %w", height, err)
	}
	return nil
}

// DeleteActiveTransfersCreatedAboveHeightTx removes active-transfer rows
// created above height (their originating transfer-inscribe is itself
// rolled back, so no restore is needed for these).
func DeleteActiveTransfersCreatedAboveHeightTx(tx *sql.Tx, height int64) error {
	_, err := tx.Exec(`DELETE FROM active_transfers WHERE inscribe_block_height > ?`, height)
	if err != nil {
		return fmt.Errorf("delete active transfers created above %d: %w", height, err)
	}
	return nil
}
