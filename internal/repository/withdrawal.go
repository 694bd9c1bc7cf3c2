package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kstarkov/craftmarket-system/internal/model"
)

const withdrawalColumns = `id, user_id, wallet_id, amount, status, payment_details, admin_notes, requested_at, processed_at`

func scanWithdrawal(row pgx.Row) (*model.WithdrawalRequest, error) {
	var wr model.WithdrawalRequest
	var status string
	err := row.Scan(&wr.ID, &wr.UserID, &wr.WalletID, &wr.Amount, &status,
		&wr.PaymentDetails, &wr.AdminNotes, &wr.RequestedAt, &wr.ProcessedAt)
	if err != nil {
		return nil, err
	}
	wr.Status = model.WithdrawalStatus(status)
	return &wr, nil
}

// CreateWithdrawalRequest создаёт заявку на вывод средств в статусе pending.
// Баланс проверяется на момент создания, но средства не резервируются:
// нехватка при одновременных заявках выявляется при обработке под блокировкой.
func (r *PostgresRepository) CreateWithdrawalRequest(ctx context.Context, userID int64, amountCents int64, paymentDetails string) (*model.WithdrawalRequest, error) {
	wallet, err := r.GetWalletByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if wallet.Balance < amountCents {
		return nil, ErrInsufficientBalance
	}

	wr, err := scanWithdrawal(r.pool.QueryRow(ctx,
		`INSERT INTO withdrawal_requests (user_id, wallet_id, amount, payment_details)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+withdrawalColumns,
		userID, wallet.ID, amountCents, paymentDetails,
	))
	if err != nil {
		return nil, fmt.Errorf("insert withdrawal request: %w", err)
	}

	return wr, nil
}

// GetWithdrawalByID возвращает заявку на вывод средств по идентификатору.
func (r *PostgresRepository) GetWithdrawalByID(ctx context.Context, id int64) (*model.WithdrawalRequest, error) {
	wr, err := scanWithdrawal(r.pool.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("get withdrawal request: %w", err)
	}
	return wr, nil
}

// TransitionWithdrawal переводит заявку в новый статус, проверяя допустимость
// перехода под блокировкой строки заявки. Недопустимый переход не изменяет ничего.
func (r *PostgresRepository) TransitionWithdrawal(ctx context.Context, id int64, to model.WithdrawalStatus, notes string, setProcessedAt bool) (*model.WithdrawalRequest, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	wr, err := scanWithdrawal(tx.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("lock withdrawal request: %w", err)
	}

	if !model.CanTransitionWithdrawal(wr.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", model.ErrInvalidWithdrawalState, wr.Status, to)
	}

	wr, err = scanWithdrawal(tx.QueryRow(ctx,
		`UPDATE withdrawal_requests
		 SET status = $2,
		     admin_notes = CASE WHEN $3 <> '' THEN $3 ELSE admin_notes END,
		     processed_at = CASE WHEN $4 THEN now() ELSE processed_at END
		 WHERE id = $1
		 RETURNING `+withdrawalColumns,
		id, string(to), notes, setProcessedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("update withdrawal request: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return wr, nil
}

// ProcessWithdrawal списывает средства по одобренной заявке. Повторная
// проверка баланса, списание и смена статуса выполняются в одной транзакции
// под блокировкой кошелька. При нехватке средств заявка переводится в failed,
// списания не происходит.
func (r *PostgresRepository) ProcessWithdrawal(ctx context.Context, id int64) (*model.WithdrawalRequest, *model.Transaction, error) {
	var result *model.WithdrawalRequest
	var transaction *model.Transaction

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		wr, err := scanWithdrawal(tx.QueryRow(ctx,
			`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id,
		))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrWithdrawalNotFound
			}
			return fmt.Errorf("lock withdrawal request: %w", err)
		}

		if !model.CanTransitionWithdrawal(wr.Status, model.WithdrawalStatusProcessing) {
			return fmt.Errorf("%w: %s -> %s", model.ErrInvalidWithdrawalState, wr.Status, model.WithdrawalStatusProcessing)
		}

		t, _, err := r.adjustInTx(ctx, tx, wr.WalletID, -wr.Amount,
			model.TransactionKindWithdrawal, model.TransactionStatusCompleted,
			"withdrawal payout", nil)
		if errors.Is(err, ErrInsufficientBalance) {
			// Средства не резервировались при создании заявки; фиксируем нехватку.
			wr, updErr := scanWithdrawal(tx.QueryRow(ctx,
				`UPDATE withdrawal_requests
				 SET status = $2, admin_notes = $3, processed_at = now()
				 WHERE id = $1
				 RETURNING `+withdrawalColumns,
				id, string(model.WithdrawalStatusFailed), "insufficient balance at processing time",
			))
			if updErr != nil {
				return fmt.Errorf("mark withdrawal failed: %w", updErr)
			}
			if commitErr := tx.Commit(ctx); commitErr != nil {
				return fmt.Errorf("commit tx: %w", commitErr)
			}
			result = wr
			return ErrInsufficientBalance
		}
		if err != nil {
			return err
		}

		wr, err = scanWithdrawal(tx.QueryRow(ctx,
			`UPDATE withdrawal_requests SET status = $2, processed_at = now() WHERE id = $1 RETURNING `+withdrawalColumns,
			id, string(model.WithdrawalStatusProcessing),
		))
		if err != nil {
			return fmt.Errorf("update withdrawal request: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		result = wr
		transaction = t
		return nil
	})
	if err != nil {
		return result, nil, err
	}

	return result, transaction, nil
}

// GetWithdrawalsByUser возвращает заявки пользователя, новые первыми.
func (r *PostgresRepository) GetWithdrawalsByUser(ctx context.Context, userID int64) ([]model.WithdrawalRequest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+withdrawalColumns+`
		 FROM withdrawal_requests
		 WHERE user_id = $1
		 ORDER BY requested_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select withdrawal requests: %w", err)
	}
	defer rows.Close()

	var res []model.WithdrawalRequest
	for rows.Next() {
		wr, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan withdrawal request: %w", err)
		}
		res = append(res, *wr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListWithdrawalsByStatus возвращает заявки в указанном статусе, старые первыми.
// Пустой статус возвращает все заявки.
func (r *PostgresRepository) ListWithdrawalsByStatus(ctx context.Context, status model.WithdrawalStatus) ([]model.WithdrawalRequest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+withdrawalColumns+`
		 FROM withdrawal_requests
		 WHERE $1 = '' OR status = $1
		 ORDER BY requested_at`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("select withdrawal requests: %w", err)
	}
	defer rows.Close()

	var res []model.WithdrawalRequest
	for rows.Next() {
		wr, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan withdrawal request: %w", err)
		}
		res = append(res, *wr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
