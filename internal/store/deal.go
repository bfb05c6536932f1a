package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/aisleworks/aisle/internal/model"
)

type DealStore struct {
	db *sql.DB
}

func NewDealStore(db *sql.DB) *DealStore {
	return &DealStore{db: db}
}

func scanDeal(scanner interface{ Scan(...any) error }) (*model.Deal, error) {
	var d model.Deal
	err := scanner.Scan(
		&d.ID, &d.UserID, &d.Title, &d.Stage, &d.ValueCents,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

const dealCols = `id, user_id, title, stage, value_cents, created_at, updated_at`

func (s *DealStore) Create(userID int64, title, stage string, valueCents int64) (*model.Deal, error) {
	result, err := s.db.Exec(
		`INSERT INTO deals (user_id, title, stage, value_cents) VALUES (?, ?, ?, ?)`,
		userID, title, stage, valueCents,
	)
	if err != nil {
		return nil, fmt.Errorf("insert deal: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *DealStore) GetByID(id int64) (*model.Deal, error) {
	row := s.db.QueryRow(`SELECT `+dealCols+` FROM deals WHERE id = ?`, id)
	d, err := scanDeal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get deal: %w", err)
	}
	return d, nil
}

func (s *DealStore) ListByUser(userID int64) ([]model.Deal, error) {
	rows, err := s.db.Query(
		`SELECT `+dealCols+` FROM deals WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	defer rows.Close()

	var deals []model.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		deals = append(deals, *d)
	}
	return deals, rows.Err()
}

// CountActiveByUsers counts non-lost deals across a set of user ids. Deals
// are owned per-user, so the team quota aggregates owner and member ids.
func (s *DealStore) CountActiveByUsers(userIDs []int64) (int, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	placeholders := strings.Repeat("?,", len(userIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		args[i] = id
	}
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM deals WHERE user_id IN (`+placeholders+`) AND stage != 'lost'`,
		args...,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active deals: %w", err)
	}
	return n, nil
}

func (s *DealStore) UpdateStage(id int64, stage string) (*model.Deal, error) {
	_, err := s.db.Exec(
		`UPDATE deals SET stage = ?, updated_at = datetime('now') WHERE id = ?`,
		stage, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update deal stage: %w", err)
	}
	return s.GetByID(id)
}

func (s *DealStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM deals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete deal: %w", err)
	}
	return nil
}
