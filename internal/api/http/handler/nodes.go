package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brigadepos/edgelink/internal/api/http/dto"
	"github.com/brigadepos/edgelink/internal/api/http/middleware"
	"github.com/brigadepos/edgelink/internal/nodes"
)

// NodeHandler serves the cloud surface: node heartbeats and bootstrap
// provisioning.
type NodeHandler struct {
	svc *nodes.Service
}

func NewNodeHandler(svc *nodes.Service) *NodeHandler {
	return &NodeHandler{svc: svc}
}

func nodeView(node *nodes.StoreNode) dto.NodeResponse {
	return dto.NodeResponse{
		ID:              node.ID,
		StoreID:         node.StoreID,
		Label:           node.Label,
		Status:          node.Status,
		SoftwareVersion: node.SoftwareVersion,
		Metadata:        node.Metadata,
		LastSeenAt:      node.LastSeenAt,
	}
}

// Heartbeat runs after NodeAuth; the authenticated descriptor is
// already in the request context and liveness is already updated.
func (h *NodeHandler) Heartbeat(c *gin.Context) {
	value, exists := c.Get(middleware.NodeContextKey)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid node credentials"})
		return
	}
	node, ok := value.(*nodes.StoreNode)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, nodeView(node))
}

// Register redeems an administrator-issued bootstrap token for fresh
// node credentials.
func (h *NodeHandler) Register(c *gin.Context) {
	var req dto.RegisterNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	creds, err := h.svc.RedeemBootstrapToken(c.Request.Context(), req.BootstrapToken, req.Label, req.SoftwareVersion)
	if err != nil {
		switch {
		case errors.Is(err, nodes.ErrBootstrapInvalid),
			errors.Is(err, nodes.ErrBootstrapUsed),
			errors.Is(err, nodes.ErrBootstrapExpired):
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		default:
			slog.Error("Failed to redeem bootstrap token", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register node"})
		}
		return
	}

	c.JSON(http.StatusCreated, dto.RegisterNodeResponse{
		NodeID:    creds.NodeID,
		StoreID:   creds.StoreID,
		NodeKey:   creds.NodeKey,
		NodeToken: creds.NodeToken,
	})
}

// CreateBootstrapToken mints a one-time provisioning credential for a
// store. Guarded by the admin API key, not node credentials.
func (h *NodeHandler) CreateBootstrapToken(c *gin.Context) {
	storeID := c.Param("storeId")
	if storeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "storeId is required"})
		return
	}

	var req dto.CreateBootstrapTokenRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	ttl := time.Duration(req.ExpiresInMinutes) * time.Minute

	// The admin API key is a shared credential; attribution comes from
	// the caller, with a fixed principal as the floor.
	issuedBy := req.IssuedBy
	if issuedBy == "" {
		issuedBy = "admin-api"
	}

	result, err := h.svc.IssueBootstrapToken(c.Request.Context(), storeID, req.Label, ttl, issuedBy)
	if err != nil {
		slog.Error("Failed to issue bootstrap token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue bootstrap token"})
		return
	}

	c.JSON(http.StatusCreated, dto.CreateBootstrapTokenResponse{
		TokenID:        result.Token.ID,
		BootstrapToken: result.Plaintext,
		StoreID:        result.Token.StoreID,
		ExpiresAt:      result.Token.ExpiresAt,
	})
}
