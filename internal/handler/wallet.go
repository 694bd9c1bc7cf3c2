package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kstarkov/craftmarket-system/internal/middleware"
	"github.com/kstarkov/craftmarket-system/internal/model"
	"github.com/kstarkov/craftmarket-system/internal/repository"
	"github.com/kstarkov/craftmarket-system/internal/service"
	"github.com/kstarkov/craftmarket-system/internal/validation"
)

type transactionResponse struct {
	ID          int64   `json:"id"`
	Amount      float64 `json:"amount"`
	Kind        string  `json:"kind"`
	Status      string  `json:"status"`
	Description string  `json:"description,omitempty"`
	AuctionID   *int64  `json:"auction_id,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

func newTransactionResponse(t *model.Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		Amount:      model.FromCents(t.Amount),
		Kind:        string(t.Kind),
		Status:      string(t.Status),
		Description: t.Description,
		AuctionID:   t.AuctionID,
		CreatedAt:   t.CreatedAt.Format(time.RFC3339),
	}
}

type withdrawalResponse struct {
	ID             int64   `json:"id"`
	UserID         int64   `json:"user_id"`
	Amount         float64 `json:"amount"`
	Status         string  `json:"status"`
	PaymentDetails string  `json:"payment_details"`
	AdminNotes     string  `json:"admin_notes,omitempty"`
	RequestedAt    string  `json:"requested_at"`
	ProcessedAt    *string `json:"processed_at,omitempty"`
}

func newWithdrawalResponse(wr *model.WithdrawalRequest) withdrawalResponse {
	resp := withdrawalResponse{
		ID:             wr.ID,
		UserID:         wr.UserID,
		Amount:         model.FromCents(wr.Amount),
		Status:         string(wr.Status),
		PaymentDetails: wr.PaymentDetails,
		AdminNotes:     wr.AdminNotes,
		RequestedAt:    wr.RequestedAt.Format(time.RFC3339),
	}
	if wr.ProcessedAt != nil {
		processed := wr.ProcessedAt.Format(time.RFC3339)
		resp.ProcessedAt = &processed
	}
	return resp
}

// GetBalance возвращает текущий баланс кошелька и сумму всех выводов.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		h.logger.Error("get balance error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, balance)
}

type depositRequest struct {
	Amount float64 `json:"amount"`
}

// Deposit пополняет кошелёк текущего пользователя.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	t, newBalance, err := h.service.CreateDeposit(r.Context(), userID, req.Amount)
	if err != nil {
		if errors.Is(err, service.ErrInvalidAmount) {
			h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"amount": "amount must be positive",
			})
			return
		}
		h.logger.Error("deposit error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"new_balance": newBalance,
		"transaction": newTransactionResponse(t),
	})
}

// GetTransactions возвращает журнал операций по кошельку текущего пользователя.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	transactions, err := h.service.GetTransactions(r.Context(), userID)
	if err != nil {
		h.logger.Error("get transactions error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(transactions) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]transactionResponse, 0, len(transactions))
	for i := range transactions {
		resp = append(resp, newTransactionResponse(&transactions[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type withdrawalCreateRequest struct {
	Amount         float64 `json:"amount"`
	PaymentDetails string  `json:"payment_details"`
}

// RequestWithdrawal создаёт заявку текущего пользователя на вывод средств.
func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req withdrawalCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validation.IsValidCardNumber(req.PaymentDetails) {
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"payment_details": "invalid card number",
		})
		return
	}

	wr, err := h.service.RequestWithdrawal(r.Context(), userID, req.Amount, req.PaymentDetails)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount):
			h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"amount": "amount must be positive",
			})
		case errors.Is(err, repository.ErrInsufficientBalance):
			http.Error(w, http.StatusText(http.StatusPaymentRequired), http.StatusPaymentRequired)
		default:
			h.logger.Error("request withdrawal error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusAccepted, newWithdrawalResponse(wr))
}

// GetWithdrawals возвращает заявки текущего пользователя на вывод средств.
func (h *Handler) GetWithdrawals(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	withdrawals, err := h.service.GetWithdrawalsByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("get withdrawals error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(withdrawals) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]withdrawalResponse, 0, len(withdrawals))
	for i := range withdrawals {
		resp = append(resp, newWithdrawalResponse(&withdrawals[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}
