package handler

import (
	"errors"
	"sort"
	"strconv"

	"rewardledger/internal/config"
	"rewardledger/internal/logging"
	"rewardledger/internal/service"
	"rewardledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Handler is the HTTP boundary: it validates typed requests and delegates
// to the ledger, the gate and the ad reward adapter.
type Handler struct {
	ledger *service.Ledger
	gate   *service.Gate
	ads    *service.AdRewardService
	cfg    config.LedgerConfig
	logger zerolog.Logger
}

func NewHandler(ledger *service.Ledger, gate *service.Gate, ads *service.AdRewardService, cfg config.LedgerConfig, logger zerolog.Logger) *Handler {
	return &Handler{
		ledger: ledger,
		gate:   gate,
		ads:    ads,
		cfg:    cfg,
		logger: logging.Component(logger, "http"),
	}
}

// ErrorPayload is the data of every failed ledger call.
type ErrorPayload struct {
	Kind    service.Kind      `json:"kind"`
	Message string            `json:"message"`
	Details *ShortfallDetails `json:"details,omitempty"`
}

type ShortfallDetails struct {
	Have   int64 `json:"have"`
	Needed int64 `json:"needed"`
}

var kindCodes = map[service.Kind]int{
	service.KindInvalidAmount:       response.CodeInvalidAmount,
	service.KindInsufficientBalance: response.CodeInsufficientBalance,
	service.KindAlreadyEntitled:     response.CodeAlreadyEntitled,
	service.KindStoreUnavailable:    response.CodeStoreUnavailable,
}

func (h *Handler) writeError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrDuplicateAdEvent) {
		response.Error(c, response.CodeDuplicateAdEvent, err.Error())
		return
	}

	var ledgerErr *service.Error
	if !errors.As(err, &ledgerErr) {
		logging.FromContext(c.Request.Context(), h.logger).Error().Err(err).Msg("unclassified error")
		response.ServerError(c, "internal error")
		return
	}

	payload := ErrorPayload{Kind: ledgerErr.Kind, Message: ledgerErr.Message}
	switch ledgerErr.Kind {
	case service.KindInsufficientBalance:
		payload.Details = &ShortfallDetails{Have: ledgerErr.Have, Needed: ledgerErr.Needed}
	case service.KindStoreUnavailable:
		// the cause stays in the logs
		logging.FromContext(c.Request.Context(), h.logger).Error().Err(err).Msg("store unavailable")
		payload.Message = "temporarily unavailable, try again"
	}
	response.ErrorWithData(c, kindCodes[ledgerErr.Kind], payload.Message, payload)
}

// bindError reports a request that failed schema validation. Such requests
// never reach the ledger.
func (h *Handler) bindError(c *gin.Context, err error) {
	h.writeError(c, &service.Error{Kind: service.KindInvalidAmount, Message: "invalid request: " + err.Error()})
}

// ============================================================
// Units
// ============================================================

type AccountQuery struct {
	AccountID string `form:"account_id" binding:"required,max=64"`
}

// GetBalance
// GET /api/v1/units/balance?account_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	var q AccountQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.bindError(c, err)
		return
	}

	units, err := h.ledger.Balance(c.Request.Context(), q.AccountID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"account_id": q.AccountID,
		"balance":    units,
	})
}

// ListTransactions
// GET /api/v1/units/transactions?account_id=xxx&page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	var q AccountQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.bindError(c, err)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	list, total, err := h.ledger.Transactions(c.Request.Context(), q.AccountID, page, pageSize)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

type EarnRequest struct {
	AccountID string `json:"account_id" binding:"required,max=64"`
	Amount    int64  `json:"amount" binding:"required,gt=0"`
}

// Earn credits units directly, for internal callers such as support tooling.
// POST /api/v1/units/earn
func (h *Handler) Earn(c *gin.Context) {
	var req EarnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	result, err := h.ledger.Earn(c.Request.Context(), req.AccountID, req.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"account_id": req.AccountID,
		"balance":    result.Balance,
	})
}

type SpendRequest struct {
	AccountID string `json:"account_id" binding:"required,max=64"`
	Feature   string `json:"feature" binding:"required,max=64"`
	// GrantHours overrides ledger.default_grant_hours, up to
	// ledger.max_grant_hours.
	GrantHours *int `json:"grant_hours" binding:"omitempty,gt=0"`
}

// Spend unlocks a feature for units. The cost comes from the configured
// feature table, never from the client, and the window is bounded by
// ledger.max_grant_hours.
// POST /api/v1/units/spend
func (h *Handler) Spend(c *gin.Context) {
	var req SpendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	cost, ok := h.cfg.FeatureCost(req.Feature)
	if !ok {
		response.Error(c, response.CodeUnknownFeature, "unknown feature: "+req.Feature)
		return
	}
	duration := h.cfg.GrantDuration()
	if req.GrantHours != nil {
		d, err := h.cfg.GrantDurationFor(*req.GrantHours)
		if err != nil {
			h.writeError(c, &service.Error{Kind: service.KindInvalidAmount, Message: err.Error()})
			return
		}
		duration = d
	}

	result, err := h.ledger.Spend(c.Request.Context(), service.SpendRequest{
		AccountID:     req.AccountID,
		Feature:       req.Feature,
		UnitsRequired: cost,
		GrantDuration: duration,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"account_id": req.AccountID,
		"feature":    config.FeatureKey(req.Feature),
		"units":      cost,
		"balance":    result.Balance,
		"expires_at": result.ExpiresAt,
	})
}

// ============================================================
// Rewards
// ============================================================

type AdCompleteRequest struct {
	AccountID string `json:"account_id" binding:"required,max=64"`
	AdEventID string `json:"ad_event_id" binding:"required,max=128"`
}

// AdComplete credits one verified ad view.
// POST /api/v1/rewards/ad-complete
func (h *Handler) AdComplete(c *gin.Context) {
	var req AdCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	result, err := h.ads.Complete(c.Request.Context(), service.AdCompletion{
		AccountID: req.AccountID,
		EventID:   req.AdEventID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"account_id": req.AccountID,
		"reward":     h.ads.RewardUnits(),
		"balance":    result.Balance,
	})
}

// ============================================================
// Features
// ============================================================

type FeatureCost struct {
	Feature string `json:"feature"`
	Units   int64  `json:"units"`
}

// ListFeatures returns the unit economy clients render prices from.
// GET /api/v1/features
func (h *Handler) ListFeatures(c *gin.Context) {
	features := make([]FeatureCost, 0, len(h.cfg.Features))
	for name, units := range h.cfg.Features {
		features = append(features, FeatureCost{Feature: name, Units: units})
	}
	sort.Slice(features, func(i, j int) bool { return features[i].Feature < features[j].Feature })

	response.Success(c, gin.H{
		"features":            features,
		"ad_reward_units":     h.cfg.AdRewardUnits,
		"default_grant_hours": h.cfg.DefaultGrantHours,
		"max_grant_hours":     h.cfg.MaxGrantHours,
	})
}

type CheckQuery struct {
	AccountID string `form:"account_id" binding:"required,max=64"`
	Feature   string `form:"feature" binding:"required,max=64"`
}

// CheckFeature
// GET /api/v1/features/check?account_id=xxx&feature=analytics
func (h *Handler) CheckFeature(c *gin.Context) {
	var q CheckQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.bindError(c, err)
		return
	}

	access, err := h.gate.Check(c.Request.Context(), q.AccountID, q.Feature)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, access)
}
