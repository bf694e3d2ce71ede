package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"roster/presence-server/models"
	"roster/presence-server/services"
	"roster/presence-server/utils"
)

type PresenceHandler struct {
	presence *services.PresenceService
	logger   *utils.Logger
}

func NewPresenceHandler(presence *services.PresenceService, logger *utils.Logger) *PresenceHandler {
	return &PresenceHandler{
		presence: presence,
		logger:   logger,
	}
}

// Heartbeat handles POST /presence/heartbeat. The user comes from the
// session token, never from the body.
func (h *PresenceHandler) Heartbeat(c *gin.Context) {
	username := c.GetString("username")

	if err := h.presence.Heartbeat(c.Request.Context(), username); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
			return
		}
		h.logger.Error("Failed to record heartbeat", "username", username, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// UpdateStatus handles POST /presence/status
func (h *PresenceHandler) UpdateStatus(c *gin.Context) {
	username := c.GetString("username")

	var req models.StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "busy is required",
		})
		return
	}

	if err := h.presence.SetBusy(c.Request.Context(), username, *req.Busy); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
			return
		}
		h.logger.Error("Failed to update busy flag", "username", username, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "updated",
	})
}

// GetStatus handles GET /presence/status. Without a username query
// parameter it reports on the authenticated user.
func (h *PresenceHandler) GetStatus(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		username = c.GetString("username")
	}

	status, err := h.presence.Status(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
			return
		}
		h.logger.Error("Failed to get status", "username", username, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, status)
}

// ListAvailable handles GET /presence/available
func (h *PresenceHandler) ListAvailable(c *gin.Context) {
	users, err := h.presence.ListAvailable(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list available users", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, models.AvailableUsersResponse{
		Count: len(users),
		Users: users,
	})
}
