// Package handler содержит HTTP-обработчики API сервиса крафтмаркет.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kstarkov/craftmarket-system/internal/middleware"
	"github.com/kstarkov/craftmarket-system/internal/model"
	"github.com/kstarkov/craftmarket-system/internal/repository"
	"github.com/kstarkov/craftmarket-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string, role model.Role) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, error)
	GetUserRole(ctx context.Context, userID int64) (model.Role, error)

	GetBalance(ctx context.Context, userID int64) (*model.Balance, error)
	CreateDeposit(ctx context.Context, userID int64, sum float64) (*model.Transaction, float64, error)
	CreateManualDeposit(ctx context.Context, userID int64, sum float64, description string) (*model.Transaction, float64, error)
	GetTransactions(ctx context.Context, userID int64) ([]model.Transaction, error)

	RequestWithdrawal(ctx context.Context, userID int64, sum float64, paymentDetails string) (*model.WithdrawalRequest, error)
	GetWithdrawalsByUser(ctx context.Context, userID int64) ([]model.WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, status model.WithdrawalStatus) ([]model.WithdrawalRequest, error)
	ApproveWithdrawal(ctx context.Context, id int64, notes string) (*model.WithdrawalRequest, error)
	RejectWithdrawal(ctx context.Context, id int64, reason string) (*model.WithdrawalRequest, error)
	ProcessWithdrawal(ctx context.Context, id int64) (*model.WithdrawalRequest, *model.Transaction, error)
	CompleteWithdrawal(ctx context.Context, id int64) (*model.WithdrawalRequest, error)

	GetActiveAuctions(ctx context.Context) ([]model.Auction, error)
	GetAuctionByID(ctx context.Context, id int64) (*model.Auction, error)
	GetBidsByAuction(ctx context.Context, auctionID int64) ([]model.Bid, error)
	PlaceBid(ctx context.Context, userID, auctionID int64, sum float64, ipAddress string) (*model.Bid, *model.Auction, error)

	InvalidateSettings()
}

// Handler реализует HTTP-обработчики API сервиса крафтмаркет.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password, model.Role(req.Role))
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}
