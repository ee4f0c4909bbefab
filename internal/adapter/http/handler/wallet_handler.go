package handler

import (
	"wallet-ledger-engine/internal/adapter/http/dto"
	"wallet-ledger-engine/internal/adapter/http/middleware"
	"wallet-ledger-engine/internal/core/domain"
	"wallet-ledger-engine/internal/core/ports"
	"wallet-ledger-engine/pkg/apperror"
	"wallet-ledger-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WalletHandler handles wallet-facing endpoints.
type WalletHandler struct {
	transferSvc ports.TransferService
	walletRepo  ports.WalletRepository
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(transferSvc ports.TransferService, walletRepo ports.WalletRepository) *WalletHandler {
	return &WalletHandler{
		transferSvc: transferSvc,
		walletRepo:  walletRepo,
	}
}

// Operate handles POST /api/v1/wallet/operations. A single endpoint
// dispatches on the operation field so idempotency keys cover all three
// money movements uniformly.
func (h *WalletHandler) Operate(c *gin.Context) {
	userID, ok := c.Get(middleware.CtxUserID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.OperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	uid := userID.(uuid.UUID)
	var (
		result *ports.OperationResult
		err    error
	)

	switch domain.TransactionType(req.Operation) {
	case domain.TransactionTypeTransfer:
		if req.RecipientID == nil || *req.RecipientID == "" {
			response.Error(c, apperror.Validation("recipient_id is required for transfers"))
			return
		}
		result, err = h.transferSvc.Transfer(c.Request.Context(), ports.TransferRequest{
			SenderID:       uid,
			Recipient:      *req.RecipientID,
			Amount:         req.Amount,
			Description:    req.Description,
			Pin:            req.Pin,
			IdempotencyKey: req.IdempotencyKey,
		})
	case domain.TransactionTypeDeposit:
		result, err = h.transferSvc.Deposit(c.Request.Context(), ports.DepositRequest{
			UserID:         uid,
			Amount:         req.Amount,
			Description:    req.Description,
			IdempotencyKey: req.IdempotencyKey,
		})
	case domain.TransactionTypeWithdraw:
		result, err = h.transferSvc.Withdraw(c.Request.Context(), ports.WithdrawRequest{
			UserID:         uid,
			Amount:         req.Amount,
			Description:    req.Description,
			Pin:            req.Pin,
			IdempotencyKey: req.IdempotencyKey,
		})
	default:
		response.Error(c, apperror.Validation("unknown operation type"))
		return
	}

	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromOperationResult(result))
}

// GetBalance handles GET /api/v1/wallet/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID, ok := c.Get(middleware.CtxUserID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	wallet, err := h.walletRepo.GetByOwnerID(c.Request.Context(), userID.(uuid.UUID))
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}
	if wallet == nil {
		response.Error(c, apperror.ErrNotFound("wallet"))
		return
	}

	response.OK(c, dto.BalanceResponse{
		WalletID:   wallet.ID.String(),
		PublicCode: wallet.PublicCode,
		Balance:    wallet.Balance,
		Currency:   wallet.Currency,
		Blocked:    wallet.IsBlocked,
	})
}
