package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kstarkov/craftmarket-system/internal/model"
)

// GetWalletByUser возвращает активный кошелёк пользователя.
func (r *PostgresRepository) GetWalletByUser(ctx context.Context, userID int64) (*model.Wallet, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, balance, is_active, created_at FROM wallets WHERE user_id = $1 AND is_active`,
		userID,
	)

	var w model.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.IsActive, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}

	return &w, nil
}

// adjustInTx применяет изменение баланса внутри уже открытой транзакции.
// Блокирует строку кошелька, проверяет, что баланс не уходит в минус,
// создаёт запись журнала и записывает новый баланс. При нехватке средств
// не изменяет ничего.
func (r *PostgresRepository) adjustInTx(ctx context.Context, tx pgx.Tx, walletID int64, deltaCents int64, kind model.TransactionKind, status model.TransactionStatus, description string, auctionID *int64) (*model.Transaction, int64, error) {
	var balance int64
	err := tx.QueryRow(ctx,
		`SELECT balance FROM wallets WHERE id = $1 AND is_active FOR UPDATE`,
		walletID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, ErrWalletNotFound
		}
		return nil, 0, fmt.Errorf("lock wallet: %w", err)
	}

	newBalance := balance + deltaCents
	if newBalance < 0 {
		return nil, 0, ErrInsufficientBalance
	}

	t := model.Transaction{
		WalletID:    walletID,
		Amount:      deltaCents,
		Kind:        kind,
		Status:      status,
		Description: description,
		AuctionID:   auctionID,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO transactions (wallet_id, amount, kind, status, description, auction_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		walletID, deltaCents, string(kind), string(status), description, auctionID,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return nil, 0, fmt.Errorf("insert transaction: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = $2 WHERE id = $1`,
		walletID, newBalance,
	); err != nil {
		return nil, 0, fmt.Errorf("update balance: %w", err)
	}

	return &t, newBalance, nil
}

// Adjust — единственная точка изменения баланса кошелька. Все операции
// пополнения, вывода и расчётов по аукционам проходят через неё. Возвращает
// созданную запись журнала и новый баланс в копейках.
func (r *PostgresRepository) Adjust(ctx context.Context, walletID int64, deltaCents int64, kind model.TransactionKind, status model.TransactionStatus, description string, auctionID *int64) (*model.Transaction, int64, error) {
	var t *model.Transaction
	var newBalance int64

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		t, newBalance, err = r.adjustInTx(ctx, tx, walletID, deltaCents, kind, status, description, auctionID)
		if err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	return t, newBalance, nil
}

// GetTransactionsByWallet возвращает журнал операций по кошельку, новые записи первыми.
func (r *PostgresRepository) GetTransactionsByWallet(ctx context.Context, walletID int64) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, wallet_id, amount, kind, status, description, auction_id, created_at
		 FROM transactions
		 WHERE wallet_id = $1
		 ORDER BY created_at DESC`,
		walletID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.Transaction
	for rows.Next() {
		var (
			t         model.Transaction
			kind      string
			status    string
			auctionID *int64
			createdAt time.Time
		)
		if err := rows.Scan(&t.ID, &t.WalletID, &t.Amount, &kind, &status, &t.Description, &auctionID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Kind = model.TransactionKind(kind)
		t.Status = model.TransactionStatus(status)
		t.AuctionID = auctionID
		t.CreatedAt = createdAt

		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetWithdrawnTotal возвращает сумму всех завершённых выводов с кошелька в копейках.
func (r *PostgresRepository) GetWithdrawnTotal(ctx context.Context, walletID int64) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(-amount), 0)
		 FROM transactions
		 WHERE wallet_id = $1 AND kind = $2 AND status = $3`,
		walletID, string(model.TransactionKindWithdrawal), string(model.TransactionStatusCompleted),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum withdrawals: %w", err)
	}
	return total, nil
}
