package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Agent is a market participant with a token balance.
type Agent struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	TokenBalance decimal.Decimal `json:"token_balance"`
	IsActive     bool            `json:"is_active"`
	MaxBookings  int             `json:"max_bookings"`
	Behavior     *AgentBehavior  `json:"behavior,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// AgentBehavior is the optional behavior vector used by the semester
// simulation. Preferred days/hours are weekday and hour-of-day indices.
type AgentBehavior struct {
	Risk             float64   `json:"risk"`
	PriceSensitivity float64   `json:"price_sensitivity"`
	Flexibility      float64   `json:"flexibility"`
	PreferredDays    []int     `json:"preferred_days"`
	PreferredHours   []int     `json:"preferred_hours"`
	TimeWeight       float64   `json:"time_weight"`
	DayWeight        float64   `json:"day_weight"`
	LocationWeight   float64   `json:"location_weight"`
	CapacityWeight   float64   `json:"capacity_weight"`
}

// AgentPreference is a weighted (type, value) preference owned by an agent.
type AgentPreference struct {
	ID              string  `json:"id"`
	AgentID         string  `json:"agent_id"`
	PreferenceType  string  `json:"preference_type"` // "location" | "time"
	PreferenceValue string  `json:"preference_value"`
	Weight          float64 `json:"weight"`
}

// InsertAgent stores a new agent, assigning an id and created_at if unset.
func (s *Store) InsertAgent(a *Agent) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	var behavior any
	if a.Behavior != nil {
		b, err := json.Marshal(a.Behavior)
		if err != nil {
			return fmt.Errorf("marshal behavior: %w", err)
		}
		behavior = string(b)
	}
	_, err := s.q.Exec(`
		INSERT INTO agents (id, name, token_balance, is_active, max_bookings, behavior, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Name, a.TokenBalance.String(), a.IsActive, a.MaxBookings, behavior, fmtTime(a.CreatedAt))
	return err
}

func scanAgent(row interface{ Scan(...any) error }) (*Agent, error) {
	var a Agent
	var balance, createdAt string
	var behavior sql.NullString
	if err := row.Scan(&a.ID, &a.Name, &balance, &a.IsActive, &a.MaxBookings, &behavior, &createdAt); err != nil {
		return nil, err
	}
	a.TokenBalance = parseDecimal(balance)
	a.CreatedAt = parseTime(createdAt)
	if behavior.Valid && behavior.String != "" {
		var b AgentBehavior
		if err := json.Unmarshal([]byte(behavior.String), &b); err == nil {
			a.Behavior = &b
		}
	}
	return &a, nil
}

const agentCols = "id, name, token_balance, is_active, max_bookings, behavior, created_at"

// GetAgent returns the agent or nil when unknown.
func (s *Store) GetAgent(id string) (*Agent, error) {
	a, err := scanAgent(s.q.QueryRow("SELECT "+agentCols+" FROM agents WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// ListAgents returns agents, optionally filtered by is_active.
func (s *Store) ListAgents(isActive *bool) ([]*Agent, error) {
	query := "SELECT " + agentCols + " FROM agents"
	var args []any
	if isActive != nil {
		query += " WHERE is_active = ?"
		args = append(args, *isActive)
	}
	query += " ORDER BY created_at, id"
	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateAgent overwrites name, active flag, max bookings and behavior.
func (s *Store) UpdateAgent(a *Agent) error {
	var behavior any
	if a.Behavior != nil {
		b, err := json.Marshal(a.Behavior)
		if err != nil {
			return fmt.Errorf("marshal behavior: %w", err)
		}
		behavior = string(b)
	}
	_, err := s.q.Exec(`
		UPDATE agents SET name = ?, token_balance = ?, is_active = ?, max_bookings = ?, behavior = ?
		WHERE id = ?
	`, a.Name, a.TokenBalance.String(), a.IsActive, a.MaxBookings, behavior, a.ID)
	return err
}

// UpdateAgentBalance sets the balance for one agent.
func (s *Store) UpdateAgentBalance(agentID string, balance decimal.Decimal) error {
	_, err := s.q.Exec("UPDATE agents SET token_balance = ? WHERE id = ?", balance.String(), agentID)
	return err
}

// ReplacePreferences deletes and re-creates the agent's preference rows.
func (s *Store) ReplacePreferences(agentID string, prefs []AgentPreference) ([]AgentPreference, error) {
	if _, err := s.q.Exec("DELETE FROM agent_preferences WHERE agent_id = ?", agentID); err != nil {
		return nil, err
	}
	out := make([]AgentPreference, 0, len(prefs))
	for _, p := range prefs {
		p.ID = uuid.NewString()
		p.AgentID = agentID
		if _, err := s.q.Exec(`
			INSERT INTO agent_preferences (id, agent_id, preference_type, preference_value, weight)
			VALUES (?, ?, ?, ?, ?)
		`, p.ID, p.AgentID, p.PreferenceType, p.PreferenceValue, p.Weight); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ListPreferences returns the agent's preferences.
func (s *Store) ListPreferences(agentID string) ([]AgentPreference, error) {
	rows, err := s.q.Query(`
		SELECT id, agent_id, preference_type, preference_value, weight
		  FROM agent_preferences
		 WHERE agent_id = ?
		 ORDER BY preference_type, preference_value
	`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AgentPreference
	for rows.Next() {
		var p AgentPreference
		if err := rows.Scan(&p.ID, &p.AgentID, &p.PreferenceType, &p.PreferenceValue, &p.Weight); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
