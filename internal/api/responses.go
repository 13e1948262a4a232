package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dotcommander/taskbrew/internal/models"
)

// detail is the uniform error body: {"detail": "..."} with optional
// structured context.
type detail struct {
	Detail string            `json:"detail"`
	Code   string            `json:"code,omitempty"`
	Ctx    map[string]string `json:"context,omitempty"`
}

// fail writes an error response, mapping precondition errors to their
// status codes and everything else to 500.
func fail(c *gin.Context, err error) {
	var pe *models.PreconditionError
	if errors.As(err, &pe) {
		c.JSON(pe.HTTPStatus(), detail{Detail: pe.Message, Code: pe.ErrorCode(), Ctx: pe.Context()})
		return
	}
	c.JSON(http.StatusInternalServerError, detail{Detail: err.Error()})
}

// badRequest writes a 400 with a plain message.
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, detail{Detail: msg})
}
