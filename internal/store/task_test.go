package store

import "testing"

func TestTaskLifecycle(t *testing.T) {
	db := setupTestDB(t)
	team, owner := seedTeam(t, db, "owner@example.com")
	event, err := NewEventStore(db).Create(&team.ID, owner.ID, "Smith Wedding", nil, "")
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	ts := NewTaskStore(db)

	task, err := ts.Create(event.ID, "Book florist", nil, nil)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Status != "todo" {
		t.Errorf("status = %q, want todo", task.Status)
	}
	if task.AssigneeID != nil {
		t.Error("expected unassigned task")
	}

	updated, err := ts.UpdateStatus(task.ID, "done")
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != "done" {
		t.Errorf("status = %q, want done", updated.Status)
	}

	assigned, err := ts.Assign(task.ID, &owner.ID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if assigned.AssigneeID == nil || *assigned.AssigneeID != owner.ID {
		t.Error("assignee not persisted")
	}

	cleared, err := ts.Assign(task.ID, nil)
	if err != nil {
		t.Fatalf("clear assignee: %v", err)
	}
	if cleared.AssigneeID != nil {
		t.Error("assignee not cleared")
	}

	count, err := ts.CountByEvent(event.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	if err := ts.Delete(task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	count, _ = ts.CountByEvent(event.ID)
	if count != 0 {
		t.Errorf("count after delete = %d, want 0", count)
	}
}

func TestTaskCascadeOnEventDelete(t *testing.T) {
	db := setupTestDB(t)
	team, owner := seedTeam(t, db, "owner@example.com")
	es := NewEventStore(db)
	event, err := es.Create(&team.ID, owner.ID, "Smith Wedding", nil, "")
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	ts := NewTaskStore(db)
	task, err := ts.Create(event.ID, "Book florist", nil, nil)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	if err := es.Delete(event.ID); err != nil {
		t.Fatalf("delete event: %v", err)
	}
	got, err := ts.GetByID(task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got != nil {
		t.Error("tasks should cascade on event delete")
	}
}
