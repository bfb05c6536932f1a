package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aisleworks/aisle/internal/auth"
	"github.com/aisleworks/aisle/internal/entitlement"
	"github.com/aisleworks/aisle/internal/model"
	"github.com/aisleworks/aisle/internal/store"
	"github.com/aisleworks/aisle/internal/tenant"
	"github.com/aisleworks/aisle/internal/websocket"
)

var taskStatuses = map[string]bool{
	"todo":        true,
	"in_progress": true,
	"done":        true,
}

type TaskHandler struct {
	taskStore *store.TaskStore
	teamStore *store.TeamStore
	guard     *tenant.AccessGuard
	enforcer  *entitlement.Enforcer
	hub       *websocket.Hub
	logger    *slog.Logger
}

func NewTaskHandler(
	ts *store.TaskStore,
	teams *store.TeamStore,
	guard *tenant.AccessGuard,
	enforcer *entitlement.Enforcer,
	hub *websocket.Hub,
	logger *slog.Logger,
) *TaskHandler {
	return &TaskHandler{
		taskStore: ts,
		teamStore: teams,
		guard:     guard,
		enforcer:  enforcer,
		hub:       hub,
		logger:    logger,
	}
}

func (h *TaskHandler) broadcast(teamID *int64, msg websocket.Message) {
	if h.hub != nil && teamID != nil {
		h.hub.BroadcastTeam(*teamID, msg)
	}
}

// loadEvent resolves the event path parameter through the access guard.
func (h *TaskHandler) loadEvent(w http.ResponseWriter, r *http.Request) *model.Event {
	eventID, err := parseIDParam(r, "eventID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return nil
	}

	decision, event, err := h.guard.CheckAccess(eventID, auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("task event access check", "event_id", eventID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil
	}
	if decision != tenant.DecisionAllowed {
		writeError(w, http.StatusNotFound, "event not found")
		return nil
	}
	return event
}

// checkAssignee validates that an assignee belongs to the event's team and
// that the plan allows task assignment. Personal events cannot assign.
func (h *TaskHandler) checkAssignee(w http.ResponseWriter, event *model.Event, assigneeID int64) bool {
	if event.TeamID == nil {
		writeError(w, http.StatusBadRequest, "personal events do not support assignment")
		return false
	}

	if res := h.enforcer.CheckFeature(*event.TeamID, entitlement.FeatureTaskAssignment); !res.Allowed {
		writeFeatureDenied(w, res)
		return false
	}

	team, err := h.teamStore.GetByID(*event.TeamID)
	if err != nil || team == nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return false
	}
	if assigneeID == team.OwnerID {
		return true
	}
	member, err := h.teamStore.GetMember(*event.TeamID, assigneeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return false
	}
	if member == nil {
		writeError(w, http.StatusBadRequest, "assignee is not a team member")
		return false
	}
	return true
}

type taskRequest struct {
	Title      string `json:"title"`
	AssigneeID *int64 `json:"assignee_id"`
	DueDate    string `json:"due_date"`
}

// Create adds a task to an event. Team events enforce the per-event task
// quota; assignment is feature-gated by plan.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	event := h.loadEvent(w, r)
	if event == nil {
		return
	}

	var req taskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	var dueDate *time.Time
	if req.DueDate != "" {
		t, err := time.Parse(dateLayout, req.DueDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "due_date must be YYYY-MM-DD")
			return
		}
		dueDate = &t
	}

	if event.TeamID != nil {
		if res := h.enforcer.CheckLimit(*event.TeamID, entitlement.DimensionTasks, event.ID); !res.Allowed {
			writeLimitDenied(w, res)
			return
		}
	}
	if req.AssigneeID != nil && !h.checkAssignee(w, event, *req.AssigneeID) {
		return
	}

	task, err := h.taskStore.Create(event.ID, req.Title, req.AssigneeID, dueDate)
	if err != nil {
		h.logger.Error("create task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	h.broadcast(event.TeamID, websocket.NewMessage("task", "created", task.ID, map[string]any{"event_id": event.ID}))
	writeJSON(w, http.StatusCreated, task)
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	event := h.loadEvent(w, r)
	if event == nil {
		return
	}

	tasks, err := h.taskStore.ListByEvent(event.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// loadTask fetches the task path parameter and verifies it belongs to the
// already access-checked event.
func (h *TaskHandler) loadTask(w http.ResponseWriter, r *http.Request, event *model.Event) *model.Task {
	taskID, err := parseIDParam(r, "taskID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return nil
	}
	task, err := h.taskStore.GetByID(taskID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil
	}
	if task == nil || task.EventID != event.ID {
		writeError(w, http.StatusNotFound, "task not found")
		return nil
	}
	return task
}

type taskStatusRequest struct {
	Status string `json:"status"`
}

func (h *TaskHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	event := h.loadEvent(w, r)
	if event == nil {
		return
	}
	task := h.loadTask(w, r, event)
	if task == nil {
		return
	}

	var req taskStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !taskStatuses[req.Status] {
		writeError(w, http.StatusBadRequest, "status must be todo, in_progress, or done")
		return
	}

	updated, err := h.taskStore.UpdateStatus(task.ID, req.Status)
	if err != nil {
		h.logger.Error("update task status", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}

	h.broadcast(event.TeamID, websocket.NewMessage("task", "updated", task.ID, map[string]any{"event_id": event.ID}))
	writeJSON(w, http.StatusOK, updated)
}

type taskAssignRequest struct {
	AssigneeID *int64 `json:"assignee_id"`
}

// Assign sets or clears the task assignee. Clearing is always allowed;
// setting goes through the feature gate and membership check.
func (h *TaskHandler) Assign(w http.ResponseWriter, r *http.Request) {
	event := h.loadEvent(w, r)
	if event == nil {
		return
	}
	task := h.loadTask(w, r, event)
	if task == nil {
		return
	}

	var req taskAssignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.AssigneeID != nil && !h.checkAssignee(w, event, *req.AssigneeID) {
		return
	}

	updated, err := h.taskStore.Assign(task.ID, req.AssigneeID)
	if err != nil {
		h.logger.Error("assign task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to assign task")
		return
	}

	h.broadcast(event.TeamID, websocket.NewMessage("task", "assigned", task.ID, map[string]any{"event_id": event.ID}))
	writeJSON(w, http.StatusOK, updated)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	event := h.loadEvent(w, r)
	if event == nil {
		return
	}
	task := h.loadTask(w, r, event)
	if task == nil {
		return
	}

	if err := h.taskStore.Delete(task.ID); err != nil {
		h.logger.Error("delete task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete task")
		return
	}

	h.broadcast(event.TeamID, websocket.NewMessage("task", "deleted", task.ID, map[string]any{"event_id": event.ID}))
	w.WriteHeader(http.StatusNoContent)
}
