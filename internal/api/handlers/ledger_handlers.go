package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	apperrors "github.com/ledger-service/ledger_service/internal/domain/errors"
	"github.com/ledger-service/ledger_service/internal/domain/services/engine"
	"github.com/ledger-service/ledger_service/pkg/logger"
)

// LedgerHandlers exposes the settlement engine over HTTP
type LedgerHandlers struct {
	engine    *engine.Service
	validator *validator.Validate
	logger    *logger.Logger
}

// NewLedgerHandlers creates a new LedgerHandlers instance
func NewLedgerHandlers(engineService *engine.Service, log *logger.Logger) *LedgerHandlers {
	return &LedgerHandlers{
		engine:    engineService,
		validator: validator.New(),
		logger:    log,
	}
}

// SubmitEventRequest is the payload for appending a ledger entry
type SubmitEventRequest struct {
	UserID    string                 `json:"user_id" binding:"required,uuid"`
	Kind      string                 `json:"kind" binding:"required" validate:"oneof=DEPOSIT WITHDRAWAL ROI REFERRAL_BONUS MILESTONE_BONUS ADMIN_ADJUSTMENT PLAN_PURCHASE BREAKDOWN_REFUND"`
	Currency  string                 `json:"currency" binding:"required" validate:"oneof=INR USDT"`
	Amount    string                 `json:"amount" binding:"required"`
	Reference string                 `json:"reference" binding:"required" validate:"max=255"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// SubmitEvent handles POST /events. A replayed reference returns the
// previously settled entry with 200 instead of creating a new one.
func (h *LedgerHandlers) SubmitEvent(c *gin.Context) {
	ctx := c.Request.Context()

	var req SubmitEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondBadRequest(c, "invalid amount")
		return
	}

	draft := &entities.EntryDraft{
		Kind:      entities.EntryKind(req.Kind),
		Currency:  entities.Currency(req.Currency),
		Amount:    amount,
		Reference: req.Reference,
		Metadata:  req.Metadata,
	}
	draft.UserID, _ = parseUUID(req.UserID)

	entry, err := h.engine.SubmitEvent(ctx, draft)
	if err != nil {
		if apperrors.IsDuplicateReference(err) && entry != nil {
			// Replay of a settled reference: same entry, not an error.
			respondSuccess(c, http.StatusOK, entry)
			return
		}
		h.logger.Warn("event rejected",
			"reference", req.Reference, "error", err,
			"request_id", getRequestID(c))
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, http.StatusCreated, entry)
}

// GetBalance handles GET /users/:user_id/balances/:currency
func (h *LedgerHandlers) GetBalance(c *gin.Context) {
	ctx := c.Request.Context()

	userID, ok := parseUUIDParam(c, "user_id")
	if !ok {
		return
	}

	wallet, err := h.engine.GetBalance(ctx, userID, entities.Currency(c.Param("currency")))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, wallet)
}

// GetLedger handles GET /users/:user_id/ledger
func (h *LedgerHandlers) GetLedger(c *gin.Context) {
	ctx := c.Request.Context()

	userID, ok := parseUUIDParam(c, "user_id")
	if !ok {
		return
	}

	filter, err := parseLedgerFilter(c)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	entries, err := h.engine.GetLedger(ctx, userID, filter)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	if entries == nil {
		entries = []*entities.LedgerEntry{}
	}

	// A full page suggests more rows; a short page is the end
	var nextOffset *int
	if len(entries) == filter.Limit {
		n := filter.Offset + len(entries)
		nextOffset = &n
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"entries":     entries,
		"next_offset": nextOffset,
	})
}

// GetEntry handles GET /entries/:entry_id
func (h *LedgerHandlers) GetEntry(c *gin.Context) {
	ctx := c.Request.Context()

	entryID, ok := parseUUIDParam(c, "entry_id")
	if !ok {
		return
	}

	entry, err := h.engine.GetEntry(ctx, entryID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, entry)
}

// ReverseEntryRequest is the payload for reversing a settled entry
type ReverseEntryRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ReverseEntry handles POST /entries/:entry_id/reverse
func (h *LedgerHandlers) ReverseEntry(c *gin.Context) {
	ctx := c.Request.Context()

	entryID, ok := parseUUIDParam(c, "entry_id")
	if !ok {
		return
	}

	var req ReverseEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	reversal, err := h.engine.ReverseEntry(ctx, entryID, req.Reason)
	if err != nil {
		if apperrors.IsDuplicateReference(err) && reversal != nil {
			respondSuccess(c, http.StatusOK, reversal)
			return
		}
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, reversal)
}

func parseLedgerFilter(c *gin.Context) (*entities.LedgerFilter, error) {
	filter := &entities.LedgerFilter{}

	if v := c.Query("kind"); v != "" {
		kind := entities.EntryKind(v)
		if err := kind.Validate(); err != nil {
			return nil, err
		}
		filter.Kind = &kind
	}
	if v := c.Query("currency"); v != "" {
		currency := entities.Currency(v)
		if err := currency.Validate(); err != nil {
			return nil, err
		}
		filter.Currency = &currency
	}
	if v := c.Query("status"); v != "" {
		status := entities.EntryStatus(v)
		if err := status.Validate(); err != nil {
			return nil, err
		}
		filter.Status = &status
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, err
		}
		filter.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, err
		}
		filter.To = &t
	}
	filter.Limit = queryInt(c, "limit", 0)
	filter.Offset = queryInt(c, "offset", 0)
	filter.Normalize()
	return filter, nil
}
