package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dotcommander/taskbrew/internal/store"
)

func (s *Server) handleListWorkflows(c *gin.Context) {
	workflows, err := store.ListWorkflows(s.board.Store().Reader())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflows": workflows})
}

type startWorkflowRequest struct {
	GroupID   string `json:"group_id"`
	CreatedBy string `json:"created_by"`
}

func (s *Server) handleStartWorkflow(c *gin.Context) {
	var req startWorkflowRequest
	_ = c.ShouldBindJSON(&req)
	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = "human"
	}
	tasks, err := s.board.StartWorkflow(c.Param("id"), req.GroupID, createdBy)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"tasks": tasks})
}

func (s *Server) handleListTemplates(c *gin.Context) {
	templates, err := store.ListTemplates(s.board.Store().Reader())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

type createFromTemplateRequest struct {
	GroupID   string            `json:"group_id"`
	Variables map[string]string `json:"variables"`
	CreatedBy string            `json:"created_by"`
}

func (s *Server) handleCreateFromTemplate(c *gin.Context) {
	var req createFromTemplateRequest
	_ = c.ShouldBindJSON(&req)
	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = "human"
	}
	task, err := s.board.CreateFromTemplate(c.Param("name"), req.GroupID, req.Variables, createdBy)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}
