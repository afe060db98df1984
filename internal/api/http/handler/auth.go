package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/brigadepos/edgelink/internal/api/http/dto"
	"github.com/brigadepos/edgelink/internal/auth"
	"github.com/brigadepos/edgelink/internal/operators"
)

type AuthHandler struct {
	operators *operators.Store
	jwtConfig auth.JWTConfig
}

func NewAuthHandler(operators *operators.Store, jwtConfig auth.JWTConfig) *AuthHandler {
	return &AuthHandler{
		operators: operators,
		jwtConfig: jwtConfig,
	}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	op, err := h.operators.Get(c.Request.Context())
	if err != nil {
		if errors.Is(err, operators.ErrOperatorNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		slog.Error("Failed to load operator", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if op.Username != req.Username || !operators.CheckPassword(req.Password, op.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := auth.GenerateToken(h.jwtConfig, op.Username)
	if err != nil {
		slog.Error("Failed to generate token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, dto.LoginResponse{Token: token})
}
