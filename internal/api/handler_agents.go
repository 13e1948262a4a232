package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dotcommander/taskbrew/internal/models"
)

func (s *Server) handleListAgents(c *gin.Context) {
	instances, err := s.mgr.List(c.Query("role"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"agents": instances,
		"paused": s.mgr.PausedRoles(),
	})
}

func (s *Server) handlePauseRole(c *gin.Context) {
	role := c.Param("role")
	if s.board.Team().Role(role) == nil {
		fail(c, models.NewPreconditionError(models.KindInvalidRole, "unknown role: "+role, nil))
		return
	}
	s.mgr.PauseRole(role)
	c.JSON(http.StatusOK, gin.H{"role": role, "paused": true})
}

func (s *Server) handleResumeRole(c *gin.Context) {
	role := c.Param("role")
	if s.board.Team().Role(role) == nil {
		fail(c, models.NewPreconditionError(models.KindInvalidRole, "unknown role: "+role, nil))
		return
	}
	s.mgr.ResumeRole(role)
	c.JSON(http.StatusOK, gin.H{"role": role, "paused": false})
}
