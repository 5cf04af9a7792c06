package market

import (
	"fmt"
	"time"

	"slotmarket/internal/config"
	"slotmarket/internal/db"
	"slotmarket/internal/logger"

	"github.com/shopspring/decimal"
)

// AllocationResult summarizes one token grant round.
type AllocationResult struct {
	Agents  int             `json:"agents"`
	Amount  decimal.Decimal `json:"amount"`
	Granted decimal.Decimal `json:"granted"`
}

// AllocateTokens grants the configured allowance to every active agent in
// one transaction, ledgering each grant.
func AllocateTokens(d *db.DB, cfg *config.Config, now time.Time) (*AllocationResult, error) {
	amount := decimal.NewFromFloat(cfg.TokenStartingAmount)
	if !amount.IsPositive() {
		return nil, fail(ErrValidation, "allocation amount %s must be positive", amount)
	}

	result := &AllocationResult{Amount: amount, Granted: decimal.Zero}
	err := d.WithTx(func(tx *db.Tx) error {
		active := true
		agents, err := tx.ListAgents(&active)
		if err != nil {
			return err
		}
		for _, agent := range agents {
			if err := tx.UpdateAgentBalance(agent.ID, agent.TokenBalance.Add(amount)); err != nil {
				return err
			}
			if err := tx.InsertTransaction(&db.Transaction{
				AgentID:   agent.ID,
				Amount:    amount,
				Kind:      db.TxAllocation,
				CreatedAt: now,
			}); err != nil {
				return err
			}
			result.Agents++
			result.Granted = result.Granted.Add(amount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("TOKENS", fmt.Sprintf("Allocated %s to %d agents", amount, result.Agents))
	return result, nil
}
