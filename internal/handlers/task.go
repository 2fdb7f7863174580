package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/steward-platform/apiserver/internal/apperr"
	"github.com/steward-platform/apiserver/internal/services"
	"github.com/steward-platform/apiserver/types"
)

// TaskHandler provides HTTP handlers for tasks.
type TaskHandler struct {
	taskService *services.TaskService
	errs        errorResponder
}

// NewTaskHandler constructs a TaskHandler.
func NewTaskHandler(taskService *services.TaskService, logger *slog.Logger, verbose bool) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
		errs:        errorResponder{logger: logger, verbose: verbose},
	}
}

// TaskRouter registers task routes. Every route requires authentication.
func TaskRouter(r chi.Router, handler *TaskHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Use(authMiddleware)

	r.Post("/", handler.CreateTask)
	r.Get("/account/{accountID}", handler.ListAccountTasks)
	r.Get("/manager", handler.ListManagerTasks)
	r.Get("/manager/{managerID}", handler.ListManagerTasks)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", handler.GetTask)
		r.Put("/", handler.UpdateTask)
		r.Delete("/", handler.DeleteTask)
		r.Put("/status", handler.UpdateStatus)
		r.Put("/progress", handler.UpdateProgress)
		r.Post("/assign", handler.AssignManager)
	})
}

type progressRequest struct {
	Progress *float64 `json:"progress"`
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	var req types.TaskCreate
	if err := decodeJSON(r, &req); err != nil {
		h.errs.fail(w, r, "create task", err)
		return
	}
	task, err := h.taskService.Create(r.Context(), actor, req)
	if err != nil {
		h.errs.fail(w, r, "create task", err)
		return
	}
	writeData(w, http.StatusCreated, task)
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id", "task")
	if err != nil {
		h.errs.fail(w, r, "get task", err)
		return
	}
	task, err := h.taskService.Get(r.Context(), actor, id)
	if err != nil {
		h.errs.fail(w, r, "get task", err)
		return
	}
	writeData(w, http.StatusOK, task)
}

func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id", "task")
	if err != nil {
		h.errs.fail(w, r, "update task", err)
		return
	}
	var update types.TaskUpdate
	if err := decodeJSON(r, &update); err != nil {
		h.errs.fail(w, r, "update task", err)
		return
	}
	task, err := h.taskService.Update(r.Context(), actor, id, update)
	if err != nil {
		h.errs.fail(w, r, "update task", err)
		return
	}
	writeData(w, http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id", "task")
	if err != nil {
		h.errs.fail(w, r, "delete task", err)
		return
	}
	if err := h.taskService.Delete(r.Context(), actor, id); err != nil {
		h.errs.fail(w, r, "delete task", err)
		return
	}
	writeDeleted(w, "Task deleted successfully")
}

func (h *TaskHandler) ListAccountTasks(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	accountID, err := pathID(r, "accountID", "account")
	if err != nil {
		h.errs.fail(w, r, "list account tasks", err)
		return
	}
	q, err := taskQuery(r)
	if err != nil {
		h.errs.fail(w, r, "list account tasks", err)
		return
	}
	list, err := h.taskService.ListByAccount(r.Context(), actor, accountID, q)
	if err != nil {
		h.errs.fail(w, r, "list account tasks", err)
		return
	}
	writeTaskList(w, list)
}

// ListManagerTasks lists the caller's tasks, or another manager's for admins.
func (h *TaskHandler) ListManagerTasks(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	managerID := actor.ID
	if chi.URLParam(r, "managerID") != "" {
		id, err := pathID(r, "managerID", "manager")
		if err != nil {
			h.errs.fail(w, r, "list manager tasks", err)
			return
		}
		managerID = id
	}
	q, err := taskQuery(r)
	if err != nil {
		h.errs.fail(w, r, "list manager tasks", err)
		return
	}
	accountID, err := queryInt(r, "account_id")
	if err != nil {
		h.errs.fail(w, r, "list manager tasks", err)
		return
	}
	if accountID > 0 {
		q.AccountID = &accountID
	}
	list, err := h.taskService.ListByManager(r.Context(), actor, managerID, q)
	if err != nil {
		h.errs.fail(w, r, "list manager tasks", err)
		return
	}
	writeTaskList(w, list)
}

func (h *TaskHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id", "task")
	if err != nil {
		h.errs.fail(w, r, "update task status", err)
		return
	}
	var req statusRequest[types.TaskStatus]
	if err := decodeJSON(r, &req); err != nil {
		h.errs.fail(w, r, "update task status", err)
		return
	}
	task, err := h.taskService.UpdateStatus(r.Context(), actor, id, req.Status)
	if err != nil {
		h.errs.fail(w, r, "update task status", err)
		return
	}
	writeData(w, http.StatusOK, task)
}

func (h *TaskHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id", "task")
	if err != nil {
		h.errs.fail(w, r, "update task progress", err)
		return
	}
	var req progressRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errs.fail(w, r, "update task progress", err)
		return
	}
	if req.Progress == nil {
		h.errs.fail(w, r, "update task progress", apperr.Validation("Progress must be a number between 0 and 100"))
		return
	}
	task, err := h.taskService.UpdateProgress(r.Context(), actor, id, *req.Progress)
	if err != nil {
		h.errs.fail(w, r, "update task progress", err)
		return
	}
	writeData(w, http.StatusOK, task)
}

func (h *TaskHandler) AssignManager(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id", "task")
	if err != nil {
		h.errs.fail(w, r, "assign task", err)
		return
	}
	var req managerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errs.fail(w, r, "assign task", err)
		return
	}
	task, err := h.taskService.AssignManager(r.Context(), actor, id, req.ManagerID)
	if err != nil {
		h.errs.fail(w, r, "assign task", err)
		return
	}
	writeData(w, http.StatusOK, task)
}

func writeTaskList(w http.ResponseWriter, list services.TaskList) {
	tasks := list.Tasks
	if tasks == nil {
		tasks = []types.Task{}
	}
	count := len(tasks)
	writeJSON(w, http.StatusOK, Response{Success: true, Data: tasks, Count: &count, Counts: list.Counts})
}

func taskQuery(r *http.Request) (types.TaskQuery, error) {
	var q types.TaskQuery
	if status := queryString(r, "status"); status != nil {
		value := types.TaskStatus(*status)
		q.Status = &value
	}
	if priority := queryString(r, "priority"); priority != nil {
		value := types.Priority(*priority)
		q.Priority = &value
	}
	if sortBy := queryString(r, "sort_by"); sortBy != nil {
		q.SortBy = *sortBy
	}
	if dir := queryString(r, "sort_dir"); dir != nil {
		switch strings.ToLower(*dir) {
		case "asc":
		case "desc":
			q.SortDesc = true
		default:
			return q, apperr.Validation("sort_dir must be asc or desc")
		}
	}
	var err error
	if q.Limit, err = queryInt(r, "limit"); err != nil {
		return q, err
	}
	if q.Offset, err = queryInt(r, "offset"); err != nil {
		return q, err
	}
	return q, nil
}
