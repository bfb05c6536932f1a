package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aisleworks/aisle/internal/model"
)

type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

func scanEvent(scanner interface{ Scan(...any) error }) (*model.Event, error) {
	var e model.Event
	var teamID sql.NullInt64
	var eventDate sql.NullTime
	var archived int
	err := scanner.Scan(
		&e.ID, &teamID, &e.CreatedBy, &e.Title, &eventDate, &e.Venue,
		&archived, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if teamID.Valid {
		e.TeamID = &teamID.Int64
	}
	if eventDate.Valid {
		e.EventDate = &eventDate.Time
	}
	e.Archived = archived != 0
	return &e, nil
}

const eventCols = `id, team_id, created_by, title, event_date, venue, archived, created_at, updated_at`

// Create inserts an event. teamID is nil for personal events.
func (s *EventStore) Create(teamID *int64, createdBy int64, title string, eventDate *time.Time, venue string) (*model.Event, error) {
	var tID sql.NullInt64
	if teamID != nil {
		tID = sql.NullInt64{Int64: *teamID, Valid: true}
	}
	var date sql.NullTime
	if eventDate != nil {
		date = sql.NullTime{Time: *eventDate, Valid: true}
	}
	result, err := s.db.Exec(
		`INSERT INTO events (team_id, created_by, title, event_date, venue) VALUES (?, ?, ?, ?, ?)`,
		tID, createdBy, title, date, venue,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *EventStore) GetByID(id int64) (*model.Event, error) {
	row := s.db.QueryRow(`SELECT `+eventCols+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (s *EventStore) Update(id int64, title string, eventDate *time.Time, venue string) (*model.Event, error) {
	var date sql.NullTime
	if eventDate != nil {
		date = sql.NullTime{Time: *eventDate, Valid: true}
	}
	_, err := s.db.Exec(
		`UPDATE events SET title = ?, event_date = ?, venue = ?, updated_at = datetime('now') WHERE id = ?`,
		title, date, venue, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	return s.GetByID(id)
}

func (s *EventStore) SetArchived(id int64, archived bool) (*model.Event, error) {
	_, err := s.db.Exec(
		`UPDATE events SET archived = ?, updated_at = datetime('now') WHERE id = ?`,
		boolToInt(archived), id,
	)
	if err != nil {
		return nil, fmt.Errorf("set archived: %w", err)
	}
	return s.GetByID(id)
}

func (s *EventStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// CountActiveByTeam counts the team's non-archived events. Archived events
// do not consume quota.
func (s *EventStore) CountActiveByTeam(teamID int64) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM events WHERE team_id = ? AND archived = 0`,
		teamID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active events: %w", err)
	}
	return n, nil
}

func (s *EventStore) ListByTeam(teamID int64, includeArchived bool) ([]model.Event, error) {
	q := `SELECT ` + eventCols + ` FROM events WHERE team_id = ?`
	if !includeArchived {
		q += ` AND archived = 0`
	}
	q += ` ORDER BY event_date ASC, id ASC`
	rows, err := s.db.Query(q, teamID)
	if err != nil {
		return nil, fmt.Errorf("list team events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// ListPersonal returns the user's events that have no team association.
func (s *EventStore) ListPersonal(userID int64) ([]model.Event, error) {
	rows, err := s.db.Query(
		`SELECT `+eventCols+` FROM events WHERE team_id IS NULL AND created_by = ? ORDER BY event_date ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list personal events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}
