package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brigadepos/edgelink/internal/api/http/dto"
	"github.com/brigadepos/edgelink/internal/heartbeat"
	"github.com/brigadepos/edgelink/internal/identity"
	"github.com/brigadepos/edgelink/internal/pairing"
)

// OnsiteHandler serves the onsite pairing surface: identity, claim
// lifecycle, cloud link, and the manual heartbeat trigger.
type OnsiteHandler struct {
	pairing   *pairing.Service
	publisher *heartbeat.Publisher
}

func NewOnsiteHandler(pairingService *pairing.Service, publisher *heartbeat.Publisher) *OnsiteHandler {
	return &OnsiteHandler{
		pairing:   pairingService,
		publisher: publisher,
	}
}

func linkView(link *identity.CloudLink) *dto.CloudLinkView {
	if link == nil {
		return nil
	}
	return &dto.CloudLinkView{
		CloudStoreID:   link.CloudStoreID,
		CloudStoreCode: link.CloudStoreCode,
		CloudNodeID:    link.CloudNodeID,
		NodeKey:        link.NodeKey,
		CloudBaseURL:   link.CloudBaseURL,
		LinkedAt:       link.LinkedAt,
		LinkedBy:       link.LinkedBy,
	}
}

func (h *OnsiteHandler) Identity(c *gin.Context) {
	id, err := h.pairing.Identity(c.Request.Context())
	if err != nil {
		slog.Error("Failed to load identity", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load identity"})
		return
	}

	claimActive := id.Claim != nil && !id.Claim.Used() && !id.Claim.Expired(time.Now().UTC())
	hints := h.pairing.Hints(c.Request.Context())

	c.JSON(http.StatusOK, dto.IdentityResponse{
		ServerUID:     id.ServerUID,
		Label:         id.Label,
		State:         string(id.State),
		ClaimActive:   claimActive,
		Linked:        id.Linked(),
		CloudLink:     linkView(id.Link),
		StoreNameHint: hints.Name,
		AddressHint:   hints.Address,
		TimezoneHint:  hints.Timezone,
	})
}

func (h *OnsiteHandler) CreateClaim(c *gin.Context) {
	var req dto.CreateClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	issuedBy := c.GetString("username")
	ttl := time.Duration(req.ExpiresInMinutes) * time.Minute

	result, err := h.pairing.IssueClaim(c.Request.Context(), req.Label, ttl, issuedBy)
	if err != nil {
		slog.Error("Failed to issue claim", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue claim"})
		return
	}

	c.JSON(http.StatusCreated, dto.CreateClaimResponse{
		ServerUID:   result.ServerUID,
		ServerLabel: result.ServerLabel,
		ClaimID:     result.ClaimID,
		ClaimCode:   result.ClaimCode,
		IssuedAt:    result.IssuedAt,
		ExpiresAt:   result.ExpiresAt,
	})
}

func (h *OnsiteHandler) ConsumeClaim(c *gin.Context) {
	var req dto.ConsumeClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.pairing.ConsumeClaim(c.Request.Context(), req.ClaimID, req.ClaimCode)
	if err != nil {
		switch {
		case errors.Is(err, pairing.ErrClaimNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, pairing.ErrClaimUsed),
			errors.Is(err, pairing.ErrClaimExpired),
			errors.Is(err, pairing.ErrClaimMismatch):
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		default:
			slog.Error("Failed to consume claim", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to consume claim"})
		}
		return
	}

	c.JSON(http.StatusOK, dto.ConsumeClaimResponse{
		ServerUID:         result.ServerUID,
		ServerLabel:       result.ServerLabel,
		StoreNameHint:     result.StoreNameHint,
		AddressHint:       result.AddressHint,
		TimezoneHint:      result.TimezoneHint,
		FinalizeToken:     result.FinalizeToken,
		FinalizeExpiresAt: result.FinalizeExpiresAt,
	})
}

func (h *OnsiteHandler) Finalize(c *gin.Context) {
	var req dto.FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	link, err := h.pairing.Finalize(c.Request.Context(), pairing.FinalizeParams{
		Token:          req.FinalizeToken,
		CloudStoreID:   req.CloudStoreID,
		CloudStoreCode: req.CloudStoreCode,
		CloudNodeID:    req.CloudNodeID,
		NodeKey:        req.NodeKey,
		NodeToken:      req.NodeToken,
		CloudBaseURL:   req.CloudBaseURL,
		LinkedBy:       req.LinkedBy,
	})
	if err != nil {
		switch {
		case errors.Is(err, pairing.ErrFinalizeNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, pairing.ErrFinalizeUsed),
			errors.Is(err, pairing.ErrFinalizeExpired),
			errors.Is(err, pairing.ErrFinalizeMismatch):
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		default:
			slog.Error("Failed to finalize pairing", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to finalize pairing"})
		}
		return
	}

	id, err := h.pairing.Identity(c.Request.Context())
	if err != nil {
		slog.Error("Failed to load identity after finalize", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load identity"})
		return
	}

	c.JSON(http.StatusOK, dto.FinalizeResponse{
		OK:        true,
		ServerUID: id.ServerUID,
		CloudLink: *linkView(link),
	})
}

func (h *OnsiteHandler) Link(c *gin.Context) {
	id, err := h.pairing.Identity(c.Request.Context())
	if err != nil {
		slog.Error("Failed to load identity", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load identity"})
		return
	}

	c.JSON(http.StatusOK, dto.LinkResponse{
		Linked:    id.Linked(),
		CloudLink: linkView(id.Link),
	})
}

// Heartbeat forces an immediate push and surfaces the result, unlike
// the background scheduler which swallows failures.
func (h *OnsiteHandler) Heartbeat(c *gin.Context) {
	var req dto.HeartbeatRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if err := h.publisher.PushNow(c.Request.Context(), req.CloudBaseURL); err != nil {
		switch {
		case errors.Is(err, heartbeat.ErrNotLinked):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, heartbeat.ErrNoBaseURL):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			slog.Warn("Manual heartbeat failed", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
