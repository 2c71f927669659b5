package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/karhabty/karhabty-backend/internal/engine"
)

// respondError maps an engine error onto the wire shape the clients parse:
// {"code": "...", "error": "...", "details": ...}.
func respondError(c *gin.Context, err error) {
	e := engine.AsError(err)
	body := gin.H{"code": e.Code, "error": e.Message}
	if e.Details != nil {
		body["details"] = e.Details
	}
	c.JSON(e.Status, body)
}

func currentUserID(c *gin.Context) uint {
	return c.GetUint("userId")
}

func intQuery(c *gin.Context, name string) (int, error) {
	return strconv.Atoi(c.Query(name))
}

func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(400, gin.H{"code": engine.CodeInvalidData, "error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}
