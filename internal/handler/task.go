package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/todo-api/internal/apperror"
	"github.com/sakif/todo-api/internal/model"
	"github.com/sakif/todo-api/internal/service"
)

// errNotAuthenticated is returned when a guarded handler runs without an
// identity in the context, i.e. it was mounted outside RequireAuth.
var errNotAuthenticated = apperror.Unauthenticated("Not authenticated")

// TaskHandler serves /users/{userId}/tasks.
//
// Every route is mounted behind RequireAuth and RequireOwner, so by the
// time a handler runs the {userId} path parameter is known to be the
// caller's own id. That id is the only owner the service ever sees; an
// owner field in the body is ignored.
type TaskHandler struct {
	tasks    *service.TaskService
	validate *requestValidator
}

func NewTaskHandler(tasks *service.TaskService) *TaskHandler {
	return &TaskHandler{
		tasks:    tasks,
		validate: newRequestValidator(),
	}
}

type createTaskRequest struct {
	Title string `json:"title" validate:"required,max=255"`
}

// updateTaskRequest backs both PUT and PATCH; absent fields stay as they are.
type updateTaskRequest struct {
	Title     *string `json:"title"     validate:"omitnil,min=1,max=255"`
	Completed *bool   `json:"completed"`
}

func ownerID(r *http.Request) string {
	return chi.URLParam(r, "userId")
}

func taskID(r *http.Request) string {
	return chi.URLParam(r, "taskId")
}

// HandleList returns the owner's tasks, newest first.
//
// HTTP: GET /users/{userId}/tasks
func (h *TaskHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.List(r.Context(), ownerID(r))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, tasks)
}

// HandleCreate adds a task.
//
// HTTP: POST /users/{userId}/tasks
// REQUEST BODY: {"title": "Buy milk"}
func (h *TaskHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := h.validate.Validate(req); err != nil {
		WriteError(w, r, err)
		return
	}

	task, err := h.tasks.Create(r.Context(), ownerID(r), req.Title)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, task)
}

// HandleGet returns one task.
//
// HTTP: GET /users/{userId}/tasks/{taskId}
func (h *TaskHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.Get(r.Context(), ownerID(r), taskID(r))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, task)
}

// HandleUpdate applies a partial update.
//
// HTTP: PUT or PATCH /users/{userId}/tasks/{taskId}
// REQUEST BODY: {"title": "Buy oat milk", "completed": true} (both optional)
func (h *TaskHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	if req.Title != nil {
		trimmed := strings.TrimSpace(*req.Title)
		req.Title = &trimmed
	}
	if err := h.validate.Validate(req); err != nil {
		WriteError(w, r, err)
		return
	}

	patch := model.TaskPatch{Title: req.Title, Completed: req.Completed}
	task, err := h.tasks.Update(r.Context(), ownerID(r), taskID(r), patch)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, task)
}

// HandleToggle flips the completed flag.
//
// HTTP: PATCH /users/{userId}/tasks/{taskId}/toggle-complete
func (h *TaskHandler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.ToggleCompletion(r.Context(), ownerID(r), taskID(r))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, task)
}

// HandleDelete removes a task.
//
// HTTP: DELETE /users/{userId}/tasks/{taskId}
// 204 No Content on success: nothing left to return.
func (h *TaskHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.Delete(r.Context(), ownerID(r), taskID(r)); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
