package service

import (
	"context"

	"github.com/kstarkov/craftmarket-system/internal/model"
)

// GetBalance возвращает баланс кошелька пользователя и сумму всех выводов.
func (s *Service) GetBalance(ctx context.Context, userID int64) (*model.Balance, error) {
	wallet, err := s.repo.GetWalletByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	withdrawn, err := s.repo.GetWithdrawnTotal(ctx, wallet.ID)
	if err != nil {
		return nil, err
	}

	return &model.Balance{
		Current:   model.FromCents(wallet.Balance),
		Withdrawn: model.FromCents(withdrawn),
	}, nil
}

// CreateDeposit пополняет кошелёк пользователя. Возвращает созданную запись
// журнала и новый баланс в рублях.
func (s *Service) CreateDeposit(ctx context.Context, userID int64, sum float64) (*model.Transaction, float64, error) {
	amountCents := model.ToCents(sum)
	if amountCents <= 0 {
		return nil, 0, ErrInvalidAmount
	}

	wallet, err := s.repo.GetWalletByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	t, newBalance, err := s.repo.Adjust(ctx, wallet.ID, amountCents,
		model.TransactionKindDeposit, model.TransactionStatusCompleted, "wallet deposit", nil)
	if err != nil {
		return nil, 0, err
	}

	return t, model.FromCents(newBalance), nil
}

// CreateManualDeposit пополняет кошелёк пользователя от имени администратора.
func (s *Service) CreateManualDeposit(ctx context.Context, userID int64, sum float64, description string) (*model.Transaction, float64, error) {
	amountCents := model.ToCents(sum)
	if amountCents <= 0 {
		return nil, 0, ErrInvalidAmount
	}
	if description == "" {
		description = "manual deposit"
	}

	wallet, err := s.repo.GetWalletByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	t, newBalance, err := s.repo.Adjust(ctx, wallet.ID, amountCents,
		model.TransactionKindManualDeposit, model.TransactionStatusCompleted, description, nil)
	if err != nil {
		return nil, 0, err
	}

	return t, model.FromCents(newBalance), nil
}

// GetTransactions возвращает журнал операций по кошельку пользователя.
func (s *Service) GetTransactions(ctx context.Context, userID int64) ([]model.Transaction, error) {
	wallet, err := s.repo.GetWalletByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetTransactionsByWallet(ctx, wallet.ID)
}

// RequestWithdrawal создаёт заявку на вывод средств. Средства при этом не
// резервируются: баланс проверяется ещё раз при обработке заявки.
func (s *Service) RequestWithdrawal(ctx context.Context, userID int64, sum float64, paymentDetails string) (*model.WithdrawalRequest, error) {
	amountCents := model.ToCents(sum)
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.repo.CreateWithdrawalRequest(ctx, userID, amountCents, paymentDetails)
}

// GetWithdrawalsByUser возвращает заявки пользователя на вывод средств.
func (s *Service) GetWithdrawalsByUser(ctx context.Context, userID int64) ([]model.WithdrawalRequest, error) {
	return s.repo.GetWithdrawalsByUser(ctx, userID)
}

// ListWithdrawals возвращает заявки в указанном статусе для администратора.
func (s *Service) ListWithdrawals(ctx context.Context, status model.WithdrawalStatus) ([]model.WithdrawalRequest, error) {
	return s.repo.ListWithdrawalsByStatus(ctx, status)
}

// ApproveWithdrawal одобряет заявку на вывод средств. Допустим только из статуса pending.
func (s *Service) ApproveWithdrawal(ctx context.Context, id int64, notes string) (*model.WithdrawalRequest, error) {
	return s.repo.TransitionWithdrawal(ctx, id, model.WithdrawalStatusApproved, notes, false)
}

// RejectWithdrawal отклоняет заявку на вывод средств с указанием причины.
func (s *Service) RejectWithdrawal(ctx context.Context, id int64, reason string) (*model.WithdrawalRequest, error) {
	return s.repo.TransitionWithdrawal(ctx, id, model.WithdrawalStatusRejected, reason, true)
}

// ProcessWithdrawal списывает средства по одобренной заявке и переводит её в processing.
func (s *Service) ProcessWithdrawal(ctx context.Context, id int64) (*model.WithdrawalRequest, *model.Transaction, error) {
	return s.repo.ProcessWithdrawal(ctx, id)
}

// CompleteWithdrawal отмечает выплату по заявке завершённой.
func (s *Service) CompleteWithdrawal(ctx context.Context, id int64) (*model.WithdrawalRequest, error) {
	return s.repo.TransitionWithdrawal(ctx, id, model.WithdrawalStatusCompleted, "", false)
}
