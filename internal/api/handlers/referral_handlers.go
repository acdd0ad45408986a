package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ledger-service/ledger_service/internal/domain/services/referral"
	"github.com/ledger-service/ledger_service/pkg/logger"
)

// ReferralHandlers exposes referral registration and statistics
type ReferralHandlers struct {
	referralService *referral.Service
	logger          *logger.Logger
}

// NewReferralHandlers creates a new ReferralHandlers instance
func NewReferralHandlers(referralService *referral.Service, log *logger.Logger) *ReferralHandlers {
	return &ReferralHandlers{referralService: referralService, logger: log}
}

// RegisterReferralRequest is the payload for creating a referral profile
type RegisterReferralRequest struct {
	UserID       string `json:"user_id" binding:"required,uuid"`
	ReferralCode string `json:"referral_code,omitempty"`
}

// RegisterReferral handles POST /referrals
func (h *ReferralHandlers) RegisterReferral(c *gin.Context) {
	ctx := c.Request.Context()

	var req RegisterReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	userID, err := parseUUID(req.UserID)
	if err != nil {
		respondBadRequest(c, "invalid user_id")
		return
	}

	profile, err := h.referralService.RegisterReferral(ctx, userID, req.ReferralCode)
	if err != nil {
		h.logger.Warn("referral registration failed",
			"user_id", req.UserID, "error", err, "request_id", getRequestID(c))
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, http.StatusCreated, profile)
}

// GetProfile handles GET /users/:user_id/referral
func (h *ReferralHandlers) GetProfile(c *gin.Context) {
	ctx := c.Request.Context()

	userID, ok := parseUUIDParam(c, "user_id")
	if !ok {
		return
	}

	profile, err := h.referralService.GetProfile(ctx, userID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, profile)
}

// GetStats handles GET /users/:user_id/referral/stats
func (h *ReferralHandlers) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	userID, ok := parseUUIDParam(c, "user_id")
	if !ok {
		return
	}

	stats, err := h.referralService.Stats(ctx, userID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, stats)
}

// InvalidateUser handles POST /users/:user_id/referral/invalidate.
// Marks every edge touching the user as invalidated so future cascades
// stop at that link.
func (h *ReferralHandlers) InvalidateUser(c *gin.Context) {
	ctx := c.Request.Context()

	userID, ok := parseUUIDParam(c, "user_id")
	if !ok {
		return
	}

	count, err := h.referralService.InvalidateUser(ctx, userID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"invalidated_edges": count})
}
