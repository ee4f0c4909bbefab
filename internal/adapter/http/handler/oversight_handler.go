package handler

import (
	"strconv"
	"time"

	"wallet-ledger-engine/internal/adapter/http/dto"
	"wallet-ledger-engine/internal/adapter/http/middleware"
	"wallet-ledger-engine/internal/core/domain"
	"wallet-ledger-engine/internal/core/ports"
	"wallet-ledger-engine/pkg/apperror"
	"wallet-ledger-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OversightHandler handles the operator-only oversight surface: the
// emergency freeze, the quarantine review queue, fraud findings, and
// the audit ledger feed.
type OversightHandler struct {
	panicSvc      ports.PanicService
	quarantineSvc ports.QuarantineService
	fraudSvc      ports.FraudService
	ledgerSvc     ports.LedgerService
}

// NewOversightHandler creates a new OversightHandler.
func NewOversightHandler(
	panicSvc ports.PanicService,
	quarantineSvc ports.QuarantineService,
	fraudSvc ports.FraudService,
	ledgerSvc ports.LedgerService,
) *OversightHandler {
	return &OversightHandler{
		panicSvc:      panicSvc,
		quarantineSvc: quarantineSvc,
		fraudSvc:      fraudSvc,
		ledgerSvc:     ledgerSvc,
	}
}

func operatorID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(middleware.CtxUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// GetPanicState handles GET /api/v1/oversight/panic.
func (h *OversightHandler) GetPanicState(c *gin.Context) {
	state, err := h.panicSvc.State(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toPanicStateResponse(state))
}

// TogglePanic handles POST /api/v1/oversight/panic.
func (h *OversightHandler) TogglePanic(c *gin.Context) {
	opID, ok := operatorID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.PanicToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	var err error
	if req.Active {
		if req.Reason == "" {
			response.Error(c, apperror.Validation("reason is required when activating the freeze"))
			return
		}
		err = h.panicSvc.Activate(c.Request.Context(), opID, req.Reason)
	} else {
		err = h.panicSvc.Deactivate(c.Request.Context(), opID)
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	state, err := h.panicSvc.State(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toPanicStateResponse(state))
}

// ListQuarantine handles GET /api/v1/oversight/quarantine.
func (h *OversightHandler) ListQuarantine(c *gin.Context) {
	held, err := h.quarantineSvc.ListPending(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dto.QuarantineResponse, 0, len(held))
	for _, q := range held {
		out = append(out, dto.FromQuarantined(q))
	}
	response.OK(c, out)
}

// ResolveQuarantine handles POST /api/v1/oversight/quarantine/:id/resolve.
func (h *OversightHandler) ResolveQuarantine(c *gin.Context) {
	opID, ok := operatorID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid quarantine id"))
		return
	}

	var req dto.QuarantineResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	if err := h.quarantineSvc.Resolve(c.Request.Context(), id, domain.QuarantineStatus(req.Decision), opID); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"id": id.String(), "status": req.Decision})
}

// ListSuspicious handles GET /api/v1/oversight/suspicious.
func (h *OversightHandler) ListSuspicious(c *gin.Context) {
	items, err := h.fraudSvc.ListSuspicious(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dto.SuspiciousActivityResponse, 0, len(items))
	for _, a := range items {
		out = append(out, dto.FromSuspiciousActivity(a))
	}
	response.OK(c, out)
}

// AcknowledgeSuspicious handles POST /api/v1/oversight/suspicious/:id/ack.
func (h *OversightHandler) AcknowledgeSuspicious(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid activity id"))
		return
	}

	if err := h.fraudSvc.Acknowledge(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"id": id.String(), "acknowledged": true})
}

// LedgerFeed handles GET /api/v1/oversight/ledger.
func (h *OversightHandler) LedgerFeed(c *gin.Context) {
	var walletID *uuid.UUID
	if raw := c.Query("wallet_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Error(c, apperror.Validation("invalid wallet_id"))
			return
		}
		walletID = &id
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	entries, total, err := h.ledgerSvc.Feed(c.Request.Context(), walletID, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, dto.FromLedgerEntry(e))
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))

	response.OK(c, dto.LedgerFeedResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	})
}

// VerifyLedger handles GET /api/v1/oversight/ledger/verify.
func (h *OversightHandler) VerifyLedger(c *gin.Context) {
	raw := c.Query("wallet_id")
	walletID, err := uuid.Parse(raw)
	if err != nil {
		response.Error(c, apperror.Validation("wallet_id is required"))
		return
	}

	broken, err := h.ledgerSvc.VerifyWallet(c.Request.Context(), walletID)
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.ChainVerifyResponse{
		WalletID: walletID.String(),
		Intact:   broken == nil,
	}
	if broken != nil {
		id := broken.ID.String()
		resp.BrokenEntryID = &id
	}
	response.OK(c, resp)
}

func toPanicStateResponse(state *domain.PanicState) dto.PanicStateResponse {
	resp := dto.PanicStateResponse{Active: state.Active}
	if state.ActivatedBy != nil {
		s := state.ActivatedBy.String()
		resp.ActivatedBy = &s
	}
	resp.Reason = state.Reason
	if state.ActivatedAt != nil {
		s := state.ActivatedAt.UTC().Format(time.RFC3339)
		resp.ActivatedAt = &s
	}
	return resp
}
