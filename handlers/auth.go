package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"roster/presence-server/models"
	"roster/presence-server/services"
	"roster/presence-server/utils"
)

type AuthHandler struct {
	auth   *services.AuthService
	logger *utils.Logger
}

func NewAuthHandler(auth *services.AuthService, logger *utils.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   auth,
		logger: logger,
	}
}

// Register handles POST /register
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if err := h.auth.Register(c.Request.Context(), req.Username, req.Password); err != nil {
		if errors.Is(err, services.ErrDuplicateKey) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Username already registered",
			})
			return
		}
		h.logger.Error("Failed to register user", "username", req.Username, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User created successfully",
	})
}

// Login handles POST /login
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	token, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrAuthenticationFailed) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid credentials",
			})
			return
		}
		h.logger.Error("Failed to log in user", "username", req.Username, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, models.LoginResponse{
		Username: req.Username,
		Token:    token,
		Message:  "Login successful",
	})
}
