package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dotcommander/taskbrew/internal/store"
)

func (s *Server) handleListGroups(c *gin.Context) {
	groups, err := s.board.ListGroups(c.Query("status"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (s *Server) handleGetGroup(c *gin.Context) {
	group, err := s.board.GetGroup(c.Param("group_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

// graphNode is the dashboard's node shape for the dependency graph.
type graphNode struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	AssignedTo string `json:"assigned_to"`
	TaskType   string `json:"task_type"`
}

type graphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"` // parent | blocked_by
}

func (s *Server) handleGroupGraph(c *gin.Context) {
	graph, err := s.board.GetGroupGraph(c.Param("group_id"))
	if err != nil {
		fail(c, err)
		return
	}

	nodes := make([]graphNode, 0, len(graph.Tasks))
	edges := make([]graphEdge, 0, len(graph.Edges))
	for _, task := range graph.Tasks {
		nodes = append(nodes, graphNode{
			ID:         task.ID,
			Title:      task.Title,
			Status:     string(task.Status),
			AssignedTo: task.AssignedTo,
			TaskType:   task.TaskType,
		})
		if task.ParentID != "" {
			edges = append(edges, graphEdge{From: task.ParentID, To: task.ID, Type: "parent"})
		}
	}
	for _, e := range graph.Edges {
		edges = append(edges, graphEdge{From: e.From, To: e.To, Type: "blocked_by"})
	}
	c.JSON(http.StatusOK, gin.H{"nodes": nodes, "edges": edges})
}

func (s *Server) handleGroupUsage(c *gin.Context) {
	totals, err := store.SumUsage(s.board.Store().Reader(), c.Param("group_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, totals)
}

type createGoalRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	CreatedBy   string `json:"created_by"`
}

func (s *Server) handleCreateGoal(c *gin.Context) {
	var req createGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = "human"
	}
	group, task, err := s.board.CreateGoal(req.Title, req.Description, createdBy)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"group_id": group.ID, "task_id": task.ID})
}
