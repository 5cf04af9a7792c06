package db

// ResetMarketData wipes all market activity while keeping the catalogue,
// the agent roster and the stored config. Slots go back to available so a
// fresh round of auctions can be opened over the same inventory.
func (s *Store) ResetMarketData() error {
	stmts := []string{
		"DELETE FROM group_bid_members",
		"DELETE FROM bookings",
		"DELETE FROM limit_orders",
		"DELETE FROM price_history",
		"DELETE FROM bids",
		"DELETE FROM auctions",
		"DELETE FROM transactions",
		"UPDATE time_slots SET status = 'available'",
	}
	for _, stmt := range stmts {
		if _, err := s.q.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
