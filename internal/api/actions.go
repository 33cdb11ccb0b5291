package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mkarolys/handbox/internal/action"
)

// submitAction accepts an action request and returns its id immediately.
func (s *Server) submitAction(c *gin.Context) {
	var req action.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actionID := s.actions.Submit(req)
	c.JSON(http.StatusAccepted, gin.H{
		"action_id": actionID,
		"status":    action.StatusPending,
	})
}

// listActions returns the ids of all tracked actions.
func (s *Server) listActions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"actions": s.actions.Running()})
}

// getActionResult is the consuming poll: a finished action is returned
// once and then forgotten.
func (s *Server) getActionResult(c *gin.Context) {
	actionID := c.Param("id")

	resp, err := s.actions.Result(actionID)
	switch {
	case errors.Is(err, action.ErrActionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "no such action"})
	case errors.Is(err, action.ErrActionRunning):
		c.JSON(http.StatusOK, gin.H{
			"action_id": actionID,
			"status":    action.StatusRunning,
		})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, resp)
	}
}

// cancelAction requests cooperative cancellation.
func (s *Server) cancelAction(c *gin.Context) {
	actionID := c.Param("id")
	if !s.actions.Cancel(actionID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such running action"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"action_id": actionID, "cancelled": true})
}
