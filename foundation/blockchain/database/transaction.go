package database

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gsccoin/blockchain/foundation/blockchain/signature"
)

// Reserved pseudo-senders. Transactions from these accounts mint new units
// rather than transfer existing ones.
const (
	CoinbaseAccount = "COINBASE"
	GenesisAccount  = "GENESIS"
)

// ErrInvalidTx and friends describe the ways a transaction can fail
// structural validation. They are routine outcomes, never panics.
var (
	ErrZeroAmount   = errors.New("transaction amount must be greater than zero")
	ErrSelfTransfer = errors.New("sender and receiver must differ")
	ErrBadAddress   = errors.New("address is not properly formatted")
	ErrIDMismatch   = errors.New("transaction id does not match its contents")
	ErrMissingID    = errors.New("transaction id is missing")
)

// =============================================================================

// Tx is an atomic value transfer recorded on the chain or pending in the
// mempool. Once the ID is computed the other fields are immutable.
type Tx struct {
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Amount    uint64 `json:"amount"`
	Fee       uint64 `json:"fee"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
	ID        string `json:"tx_id"`
}

// NewTx constructs a transaction and computes its content hash.
func NewTx(sender string, receiver string, amount uint64, fee uint64, timestamp int64) Tx {
	tx := Tx{
		Sender:    sender,
		Receiver:  receiver,
		Amount:    amount,
		Fee:       fee,
		Timestamp: timestamp,
	}
	tx.ID = tx.ComputeID()

	return tx
}

// ComputeID returns the content hash over the value transfer fields. The
// signature is deliberately excluded so a re-signed transaction keeps its
// identity.
func (tx Tx) ComputeID() string {
	data := fmt.Sprintf("%s%s%d%d%d", tx.Sender, tx.Receiver, tx.Amount, tx.Fee, tx.Timestamp)
	return signature.Hash(data)
}

// IsMint reports whether the transaction creates new units instead of
// moving existing ones.
func (tx Tx) IsMint() bool {
	return tx.Sender == CoinbaseAccount || tx.Sender == GenesisAccount
}

// Validate enforces the structural invariants on the transaction. Malformed
// but well typed input yields an error value, never a panic.
func (tx Tx) Validate() error {
	if tx.Amount == 0 {
		return ErrZeroAmount
	}

	if tx.Sender == tx.Receiver && !tx.IsMint() {
		return ErrSelfTransfer
	}

	if !signature.IsAddress(tx.Sender) || !signature.IsAddress(tx.Receiver) {
		return ErrBadAddress
	}

	if tx.ID == "" {
		return ErrMissingID
	}

	if tx.ID != tx.ComputeID() {
		return ErrIDMismatch
	}

	return nil
}

// Size returns the encoded byte size of the transaction. The mempool uses
// it for fee-rate ordering and block byte budgeting.
func (tx Tx) Size() int {
	data, err := json.Marshal(tx)
	if err != nil {
		return 0
	}

	return len(data)
}

// MerkleHash makes Tx usable as a merkle tree leaf.
func (tx Tx) MerkleHash() string {
	return tx.ID
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	id := tx.ID
	if len(id) > 16 {
		id = id[:16]
	}

	return fmt.Sprintf("%s: %s->%s %d(+%d)", id, tx.Sender, tx.Receiver, tx.Amount, tx.Fee)
}
