// Package service реализует бизнес-логику сервиса крафтмаркет.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kstarkov/craftmarket-system/internal/broadcast"
	"github.com/kstarkov/craftmarket-system/internal/model"
	"github.com/kstarkov/craftmarket-system/internal/repository"
	"github.com/kstarkov/craftmarket-system/internal/settings"
)

// ErrInvalidAmount возвращается при неположительной сумме операции.
var (
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInvalidCredentials возвращается при неверном логине или пароле.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, login string, passwordHash []byte, role model.Role) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)

	GetWalletByUser(ctx context.Context, userID int64) (*model.Wallet, error)
	Adjust(ctx context.Context, walletID int64, deltaCents int64, kind model.TransactionKind, status model.TransactionStatus, description string, auctionID *int64) (*model.Transaction, int64, error)
	GetTransactionsByWallet(ctx context.Context, walletID int64) ([]model.Transaction, error)
	GetWithdrawnTotal(ctx context.Context, walletID int64) (int64, error)

	GetAuctionByID(ctx context.Context, id int64) (*model.Auction, error)
	GetActiveAuctions(ctx context.Context) ([]model.Auction, error)
	PlaceBid(ctx context.Context, auctionID, userID int64, amountCents int64, ipAddress string, antiSnipingWindow time.Duration) (*model.Bid, *model.Auction, error)
	GetBidsByAuction(ctx context.Context, auctionID int64) ([]model.Bid, error)
	PromotePendingAuctions(ctx context.Context) (int64, error)
	EndExpiredAuctions(ctx context.Context) ([]model.Auction, error)
	GetUnsettledAuctions(ctx context.Context, limit int) ([]model.Auction, error)
	SettleAuction(ctx context.Context, auctionID int64, split model.PaymentSplit, buyerWalletID, sellerWalletID int64) error

	CreateWithdrawalRequest(ctx context.Context, userID int64, amountCents int64, paymentDetails string) (*model.WithdrawalRequest, error)
	GetWithdrawalByID(ctx context.Context, id int64) (*model.WithdrawalRequest, error)
	TransitionWithdrawal(ctx context.Context, id int64, to model.WithdrawalStatus, notes string, setProcessedAt bool) (*model.WithdrawalRequest, error)
	ProcessWithdrawal(ctx context.Context, id int64) (*model.WithdrawalRequest, *model.Transaction, error)
	GetWithdrawalsByUser(ctx context.Context, userID int64) ([]model.WithdrawalRequest, error)
	ListWithdrawalsByStatus(ctx context.Context, status model.WithdrawalStatus) ([]model.WithdrawalRequest, error)
}

// Service содержит бизнес-логику сервиса крафтмаркет.
type Service struct {
	repo      Repository
	publisher broadcast.Publisher
	settings  *settings.Cache
	logger    *zap.Logger
}

// NewService создаёт новый сервис с указанным репозиторием, публикатором событий и кэшем настроек.
func NewService(repo Repository, publisher broadcast.Publisher, settingsCache *settings.Cache, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		settings:  settingsCache,
		logger:    logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя и создаёт ему кошелёк.
// Допустимые роли при регистрации — user и artisan.
func (s *Service) RegisterUser(ctx context.Context, login, password string, role model.Role) (int64, error) {
	if role == "" {
		role = model.RoleUser
	}
	if role != model.RoleUser && role != model.RoleArtisan {
		return 0, errors.New("invalid role")
	}

	hashed := hashPassword(login, password)
	id, err := s.repo.CreateUser(ctx, login, hashed, role)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return 0, repository.ErrUserExists
		}
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return 0, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return 0, ErrInvalidCredentials
	}

	return u.ID, nil
}

// GetUserRole возвращает роль пользователя.
func (s *Service) GetUserRole(ctx context.Context, userID int64) (model.Role, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.Role, nil
}

// InvalidateSettings сбрасывает кэш настроек площадки.
func (s *Service) InvalidateSettings() {
	s.settings.Invalidate()
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}
