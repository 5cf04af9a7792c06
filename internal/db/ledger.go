package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction kinds. Amounts are positive for credits to the agent and
// negative for debits.
const (
	TxAllocation         = "allocation"
	TxBidPayment         = "bid_payment"
	TxSellBackRefund     = "sell_back_refund"
	TxSplitPayment       = "split_payment"
	TxSplitReimbursement = "split_reimbursement"
)

// Transaction is one immutable ledger entry against an agent's balance.
type Transaction struct {
	ID          string          `json:"id"`
	AgentID     string          `json:"agent_id"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        string          `json:"kind"`
	ReferenceID string          `json:"reference_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// InsertTransaction appends a ledger entry, assigning id/created_at if unset.
func (s *Store) InsertTransaction(t *Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	var ref any
	if t.ReferenceID != "" {
		ref = t.ReferenceID
	}
	_, err := s.q.Exec(`
		INSERT INTO transactions (id, agent_id, amount, kind, reference_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.ID, t.AgentID, t.Amount.String(), t.Kind, ref, fmtTime(t.CreatedAt))
	return err
}

// ListTransactions returns an agent's ledger entries, newest first.
func (s *Store) ListTransactions(agentID string, limit int) ([]*Transaction, error) {
	query := `
		SELECT id, agent_id, amount, kind, reference_id, created_at
		  FROM transactions
		 WHERE agent_id = ?
		 ORDER BY created_at DESC, id`
	args := []any{agentID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		var t Transaction
		var amount, createdAt string
		var ref sql.NullString
		if err := rows.Scan(&t.ID, &t.AgentID, &amount, &t.Kind, &ref, &createdAt); err != nil {
			return nil, err
		}
		t.Amount = parseDecimal(amount)
		t.ReferenceID = ref.String
		t.CreatedAt = parseTime(createdAt)
		out = append(out, &t)
	}
	return out, rows.Err()
}

// TokenVolume sums the absolute value of all bid payments, which is the total
// token spend routed through the market.
func (s *Store) TokenVolume() (decimal.Decimal, error) {
	rows, err := s.q.Query("SELECT amount FROM transactions WHERE kind = ?", TxBidPayment)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, err
		}
		total = total.Add(parseDecimal(amount).Abs())
	}
	return total, rows.Err()
}

// CountTransactions counts entries of one kind, or all when kind is empty.
func (s *Store) CountTransactions(kind string) (int, error) {
	var n int
	var err error
	if kind == "" {
		err = s.q.QueryRow("SELECT COUNT(*) FROM transactions").Scan(&n)
	} else {
		err = s.q.QueryRow("SELECT COUNT(*) FROM transactions WHERE kind = ?", kind).Scan(&n)
	}
	return n, err
}
