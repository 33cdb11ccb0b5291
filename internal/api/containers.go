package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mkarolys/handbox/internal/sandbox"
)

// listContainers returns the runtime's tracked containers.
func (s *Server) listContainers(c *gin.Context) {
	rt, err := s.exec.Runtime()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"containers": rt.Containers()})
}

// removeContainer force-removes one container.
func (s *Server) removeContainer(c *gin.Context) {
	rt, err := s.exec.Runtime()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	containerID := c.Param("id")
	if err := rt.RemoveContainer(c.Request.Context(), containerID, true); err != nil {
		var notFound sandbox.ErrContainerNotFound
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"container_id": containerID, "removed": true})
}

// cleanupContainers removes every tracked container, best effort.
func (s *Server) cleanupContainers(c *gin.Context) {
	rt, err := s.exec.Runtime()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	if err := rt.CleanupAll(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleaned": true})
}
