package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aisleworks/aisle/internal/model"
)

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

func scanTask(scanner interface{ Scan(...any) error }) (*model.Task, error) {
	var t model.Task
	var assigneeID sql.NullInt64
	var dueDate sql.NullTime
	err := scanner.Scan(
		&t.ID, &t.EventID, &t.Title, &t.Status, &assigneeID, &dueDate,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if assigneeID.Valid {
		t.AssigneeID = &assigneeID.Int64
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.Time
	}
	return &t, nil
}

const taskCols = `id, event_id, title, status, assignee_id, due_date, created_at, updated_at`

func (s *TaskStore) Create(eventID int64, title string, assigneeID *int64, dueDate *time.Time) (*model.Task, error) {
	var aID sql.NullInt64
	if assigneeID != nil {
		aID = sql.NullInt64{Int64: *assigneeID, Valid: true}
	}
	var due sql.NullTime
	if dueDate != nil {
		due = sql.NullTime{Time: *dueDate, Valid: true}
	}
	result, err := s.db.Exec(
		`INSERT INTO tasks (event_id, title, assignee_id, due_date) VALUES (?, ?, ?, ?)`,
		eventID, title, aID, due,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *TaskStore) GetByID(id int64) (*model.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskCols+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *TaskStore) ListByEvent(eventID int64) ([]model.Task, error) {
	rows, err := s.db.Query(
		`SELECT `+taskCols+` FROM tasks WHERE event_id = ? ORDER BY due_date ASC, id ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// CountByEvent counts all tasks for one event; the per-event task quota is
// scoped to the event, not the team.
func (s *TaskStore) CountByEvent(eventID int64) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM tasks WHERE event_id = ?`, eventID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

func (s *TaskStore) UpdateStatus(id int64, status string) (*model.Task, error) {
	_, err := s.db.Exec(
		`UPDATE tasks SET status = ?, updated_at = datetime('now') WHERE id = ?`,
		status, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update task status: %w", err)
	}
	return s.GetByID(id)
}

func (s *TaskStore) Assign(id int64, assigneeID *int64) (*model.Task, error) {
	var aID sql.NullInt64
	if assigneeID != nil {
		aID = sql.NullInt64{Int64: *assigneeID, Valid: true}
	}
	_, err := s.db.Exec(
		`UPDATE tasks SET assignee_id = ?, updated_at = datetime('now') WHERE id = ?`,
		aID, id,
	)
	if err != nil {
		return nil, fmt.Errorf("assign task: %w", err)
	}
	return s.GetByID(id)
}

func (s *TaskStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}
