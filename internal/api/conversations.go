package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mkarolys/handbox/internal/session"
)

type createConversationRequest struct {
	Title string `json:"title"`
}

type postMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// createConversation starts a new conversation.
func (s *Server) createConversation(c *gin.Context) {
	// The body is optional; an empty one creates an untitled conversation.
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, err := s.sessions.Create(req.Title)
	if err != nil {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, conv.Info())
}

// listConversations returns all conversation summaries.
func (s *Server) listConversations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"conversations": s.sessions.List()})
}

// getConversation returns one conversation with its messages.
func (s *Server) getConversation(c *gin.Context) {
	conv, err := s.sessions.Get(c.Param("id"))
	if errors.Is(err, session.ErrConversationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such conversation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation": conv.Info(),
		"messages":     conv.Messages(),
	})
}

// deleteConversation removes a conversation.
func (s *Server) deleteConversation(c *gin.Context) {
	if err := s.sessions.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such conversation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// postMessage appends a user message and runs the agent on it.
func (s *Server) postMessage(c *gin.Context) {
	conv, err := s.sessions.Get(c.Param("id"))
	if errors.Is(err, session.ErrConversationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such conversation"})
		return
	}

	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv.AddMessage("user", req.Content, nil)

	out, err := s.agent.Respond(c.Request.Context(), conv.ID, conv.History(0))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	conv.AddMessage("assistant", out.Response, out.Metadata)

	c.JSON(http.StatusOK, gin.H{
		"response": out.Response,
		"executed": out.Executed,
		"metadata": out.Metadata,
	})
}
