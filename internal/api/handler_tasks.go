package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dotcommander/taskbrew/internal/board"
	"github.com/dotcommander/taskbrew/internal/models"
	"github.com/dotcommander/taskbrew/internal/store"
)

type createTaskRequest struct {
	GroupID     string   `json:"group_id"`
	Title       string   `json:"title" binding:"required"`
	Description string   `json:"description"`
	TaskType    string   `json:"task_type" binding:"required"`
	Priority    string   `json:"priority"`
	AssignedTo  string   `json:"assigned_to" binding:"required"`
	AssignedBy  string   `json:"assigned_by"`
	ParentID    string   `json:"parent_id"`
	RevisionOf  string   `json:"revision_of"`
	BlockedBy   []string `json:"blocked_by"`
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Priority != "" && !models.Priority(req.Priority).Valid() {
		badRequest(c, "unknown priority: "+req.Priority)
		return
	}
	createdBy := req.AssignedBy
	if createdBy == "" {
		createdBy = "human"
	}

	task, err := s.board.CreateTask(board.CreateTaskParams{
		GroupID:     req.GroupID,
		ParentID:    req.ParentID,
		Title:       req.Title,
		Description: req.Description,
		TaskType:    req.TaskType,
		Priority:    models.Priority(req.Priority),
		AssignedTo:  req.AssignedTo,
		CreatedBy:   createdBy,
		RevisionOf:  req.RevisionOf,
		BlockedBy:   req.BlockedBy,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.board.GetTask(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func taskFilterFromQuery(c *gin.Context) store.TaskFilter {
	return store.TaskFilter{
		Status:     models.TaskStatus(c.Query("status")),
		GroupID:    c.Query("group_id"),
		AssignedTo: c.Query("assigned_to"),
		ClaimedBy:  c.Query("claimed_by"),
		TaskType:   c.Query("task_type"),
		Priority:   models.Priority(c.Query("priority")),
		CreatedBy:  c.Query("created_by"),
	}
}

func (s *Server) handleListTasks(c *gin.Context) {
	tasks, err := s.board.ListTasks(taskFilterFromQuery(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (s *Server) handleSearchTasks(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	tasks, total, err := s.board.SearchTasks(c.Query("q"), taskFilterFromQuery(c), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tasks":  tasks,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type completeRequest struct {
	Output string `json:"output"`
}

func (s *Server) handleCompleteTask(c *gin.Context) {
	var req completeRequest
	_ = c.ShouldBindJSON(&req)
	task, err := s.board.CompleteTaskWithOutput(c.Param("id"), req.Output)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleFailTask(c *gin.Context) {
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)
	task, err := s.board.FailTask(c.Param("id"), req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleCancelTask(c *gin.Context) {
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)
	task, err := s.board.CancelTask(c.Param("id"), req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleRejectTask(c *gin.Context) {
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Reason == "" {
		badRequest(c, "reason is required")
		return
	}
	task, err := s.board.RejectTask(c.Param("id"), req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleRetryTask(c *gin.Context) {
	task, err := s.board.RetryTask(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

type reassignRequest struct {
	AssignedTo string `json:"assigned_to" binding:"required"`
}

func (s *Server) handleReassignTask(c *gin.Context) {
	var req reassignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	task, err := s.board.ReassignTask(c.Param("id"), req.AssignedTo)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

type patchTaskRequest struct {
	Priority   *string `json:"priority"`
	AssignedTo *string `json:"assigned_to"`
	Status     *string `json:"status"`
}

// handlePatchTask applies whitelisted field updates. Status changes are
// limited to the retry and cancel transitions the board supports.
func (s *Server) handlePatchTask(c *gin.Context) {
	var req patchTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	id := c.Param("id")

	var task *models.Task
	var err error
	switch {
	case req.Priority != nil:
		p := models.Priority(*req.Priority)
		if !p.Valid() {
			badRequest(c, "unknown priority: "+*req.Priority)
			return
		}
		task, err = s.board.ChangeTaskPriority(id, p)
	case req.AssignedTo != nil:
		task, err = s.board.ReassignTask(id, *req.AssignedTo)
	case req.Status != nil:
		switch models.TaskStatus(*req.Status) {
		case models.TaskStatusPending:
			task, err = s.board.RetryTask(id)
		case models.TaskStatusCancelled:
			task, err = s.board.CancelTask(id, "cancelled via api")
		default:
			badRequest(c, "status may only be set to pending or cancelled")
			return
		}
	default:
		badRequest(c, "no updatable field provided")
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

type batchRequest struct {
	TaskIDs []string `json:"task_ids" binding:"required"`
	Action  string   `json:"action" binding:"required"`
	Params  struct {
		Reason     string `json:"reason"`
		AssignedTo string `json:"assigned_to"`
		Priority   string `json:"priority"`
	} `json:"params"`
}

func (s *Server) handleBatchTasks(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	results, err := s.board.BatchUpdateTasks(req.TaskIDs, req.Action, board.BatchParams{
		Reason:   req.Params.Reason,
		NewRole:  req.Params.AssignedTo,
		Priority: models.Priority(req.Params.Priority),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
