package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dotcommander/taskbrew/internal/models"
	"github.com/dotcommander/taskbrew/internal/store"
)

func intQuery(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (s *Server) handleHealth(c *gin.Context) {
	status, db := "ok", "connected"
	if err := s.board.Store().Reader().Ping(); err != nil {
		status, db = "degraded", err.Error()
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "db": db})
}

func (s *Server) handleBoard(c *gin.Context) {
	tasks, err := s.board.ListTasks(taskFilterFromQuery(c))
	if err != nil {
		fail(c, err)
		return
	}

	columns := make(map[string][]*models.Task, len(models.AllTaskStatuses()))
	for _, status := range models.AllTaskStatuses() {
		columns[string(status)] = []*models.Task{}
	}
	for _, task := range tasks {
		columns[string(task.Status)] = append(columns[string(task.Status)], task)
	}
	c.JSON(http.StatusOK, columns)
}

// handleBoardFilters returns the filterable vocabulary the dashboard offers.
func (s *Server) handleBoardFilters(c *gin.Context) {
	team := s.board.Team()

	roles := team.RoleNames()
	typeSet := map[string]bool{}
	for _, name := range roles {
		for _, t := range team.Role(name).Accepts {
			typeSet[t] = true
		}
	}
	taskTypes := make([]string, 0, len(typeSet))
	for t := range typeSet {
		taskTypes = append(taskTypes, t)
	}

	statuses := make([]string, 0, len(models.AllTaskStatuses()))
	for _, st := range models.AllTaskStatuses() {
		statuses = append(statuses, string(st))
	}

	c.JSON(http.StatusOK, gin.H{
		"roles":      roles,
		"task_types": taskTypes,
		"statuses":   statuses,
		"priorities": []string{
			string(models.PriorityCritical), string(models.PriorityHigh),
			string(models.PriorityMedium), string(models.PriorityLow),
		},
	})
}

func (s *Server) handleListEvents(c *gin.Context) {
	filter := store.EventFilter{
		Type:    c.Query("type"),
		TaskID:  c.Query("task_id"),
		GroupID: c.Query("group_id"),
		AfterID: int64(intQuery(c, "after_id", 0)),
	}
	events, err := store.ListEvents(s.board.Store().Reader(), filter, intQuery(c, "limit", 100))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// handleTimeseries buckets event counts for the dashboard charts.
// time_range accepts 1h, 24h, 7d, 30d (default 24h).
func (s *Server) handleTimeseries(c *gin.Context) {
	var span time.Duration
	switch c.DefaultQuery("time_range", "24h") {
	case "1h":
		span = time.Hour
	case "24h":
		span = 24 * time.Hour
	case "7d":
		span = 7 * 24 * time.Hour
	case "30d":
		span = 30 * 24 * time.Hour
	default:
		badRequest(c, "time_range must be one of 1h, 24h, 7d, 30d")
		return
	}
	since := store.FormatTime(time.Now().UTC().Add(-span))

	buckets, err := store.EventTimeseries(s.board.Store().Reader(), since, c.Query("granularity"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"since": since, "buckets": buckets})
}
