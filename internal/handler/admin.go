package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kstarkov/craftmarket-system/internal/model"
	"github.com/kstarkov/craftmarket-system/internal/repository"
	"github.com/kstarkov/craftmarket-system/internal/service"
)

func withdrawalIDFromRequest(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "withdrawalID"), 10, 64)
}

func (h *Handler) writeWithdrawalError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, repository.ErrWithdrawalNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, model.ErrInvalidWithdrawalState):
		http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
	case errors.Is(err, repository.ErrInsufficientBalance):
		http.Error(w, http.StatusText(http.StatusPaymentRequired), http.StatusPaymentRequired)
	default:
		h.logger.Error(action+" withdrawal error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// ListWithdrawals возвращает заявки на вывод средств для администратора.
// Статус задаётся query-параметром status; пустой статус означает все заявки.
func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	status := model.WithdrawalStatus(r.URL.Query().Get("status"))

	withdrawals, err := h.service.ListWithdrawals(r.Context(), status)
	if err != nil {
		h.logger.Error("list withdrawals error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]withdrawalResponse, 0, len(withdrawals))
	for i := range withdrawals {
		resp = append(resp, newWithdrawalResponse(&withdrawals[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type approveWithdrawalRequest struct {
	Notes string `json:"notes"`
}

// ApproveWithdrawal одобряет заявку на вывод средств.
func (h *Handler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, err := withdrawalIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req approveWithdrawalRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
	}

	wr, err := h.service.ApproveWithdrawal(r.Context(), id, req.Notes)
	if err != nil {
		h.writeWithdrawalError(w, err, "approve")
		return
	}

	h.writeJSON(w, http.StatusOK, newWithdrawalResponse(wr))
}

type rejectWithdrawalRequest struct {
	Reason string `json:"reason"`
}

// RejectWithdrawal отклоняет заявку на вывод средств. Причина обязательна.
func (h *Handler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, err := withdrawalIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req rejectWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"reason": "rejection reason is required",
		})
		return
	}

	wr, err := h.service.RejectWithdrawal(r.Context(), id, req.Reason)
	if err != nil {
		h.writeWithdrawalError(w, err, "reject")
		return
	}

	h.writeJSON(w, http.StatusOK, newWithdrawalResponse(wr))
}

// ProcessWithdrawal списывает средства по одобренной заявке.
func (h *Handler) ProcessWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, err := withdrawalIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	wr, t, err := h.service.ProcessWithdrawal(r.Context(), id)
	if err != nil {
		h.writeWithdrawalError(w, err, "process")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"withdrawal":  newWithdrawalResponse(wr),
		"transaction": newTransactionResponse(t),
	})
}

// CompleteWithdrawal отмечает выплату по заявке завершённой.
func (h *Handler) CompleteWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, err := withdrawalIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	wr, err := h.service.CompleteWithdrawal(r.Context(), id)
	if err != nil {
		h.writeWithdrawalError(w, err, "complete")
		return
	}

	h.writeJSON(w, http.StatusOK, newWithdrawalResponse(wr))
}

type manualDepositRequest struct {
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

// ManualDeposit пополняет кошелёк пользователя от имени администратора.
func (h *Handler) ManualDeposit(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req manualDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	t, newBalance, err := h.service.CreateManualDeposit(r.Context(), userID, req.Amount, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount):
			h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"amount": "amount must be positive",
			})
		case errors.Is(err, repository.ErrWalletNotFound), errors.Is(err, repository.ErrUserNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("manual deposit error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"new_balance": newBalance,
		"transaction": newTransactionResponse(t),
	})
}

// RefreshSettings сбрасывает кэш настроек коммерческих параметров.
func (h *Handler) RefreshSettings(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateSettings()
	w.WriteHeader(http.StatusNoContent)
}
