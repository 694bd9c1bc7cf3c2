package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kstarkov/craftmarket-system/internal/model"
)

const auctionColumns = `id, seller_id, product_name, reserve_price, price, bid_increment, bid_count,
	 anti_sniping, start_date, end_date, status, winner_id, type, is_visible, is_settled, created_at`

func scanAuction(row pgx.Row) (*model.Auction, error) {
	var a model.Auction
	var status string
	err := row.Scan(
		&a.ID, &a.SellerID, &a.ProductName, &a.ReservePrice, &a.Price, &a.BidIncrement, &a.BidCount,
		&a.AntiSniping, &a.StartDate, &a.EndDate, &status, &a.WinnerID, &a.Type, &a.IsVisible,
		&a.IsSettled, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = model.AuctionStatus(status)
	return &a, nil
}

// GetAuctionByID возвращает аукцион по идентификатору.
func (r *PostgresRepository) GetAuctionByID(ctx context.Context, id int64) (*model.Auction, error) {
	a, err := scanAuction(r.pool.QueryRow(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAuctionNotFound
		}
		return nil, fmt.Errorf("get auction: %w", err)
	}
	return a, nil
}

// GetActiveAuctions возвращает видимые активные аукционы, ближайшие к завершению первыми.
func (r *PostgresRepository) GetActiveAuctions(ctx context.Context) ([]model.Auction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+auctionColumns+`
		 FROM auctions
		 WHERE status = $1 AND is_visible
		 ORDER BY end_date`,
		string(model.AuctionStatusActive),
	)
	if err != nil {
		return nil, fmt.Errorf("select auctions: %w", err)
	}
	defer rows.Close()

	var res []model.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan auction: %w", err)
		}
		res = append(res, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// PlaceBid фиксирует ставку по аукциону. Проверка допустимости, вставка
// ставки, обновление цены и продление времени окончания выполняются в одной
// транзакции под блокировкой строки аукциона, поэтому две одновременные
// ставки не могут обе пройти проверку по одной и той же текущей цене.
func (r *PostgresRepository) PlaceBid(ctx context.Context, auctionID, userID int64, amountCents int64, ipAddress string, antiSnipingWindow time.Duration) (*model.Bid, *model.Auction, error) {
	var bid *model.Bid
	var auction *model.Auction

	err := r.withRetry(ctx, func() error {
		b, a, err := r.placeBidTx(ctx, auctionID, userID, amountCents, ipAddress, antiSnipingWindow)
		if err != nil {
			return err
		}
		bid, auction = b, a
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return bid, auction, nil
}

func (r *PostgresRepository) placeBidTx(ctx context.Context, auctionID, userID int64, amountCents int64, ipAddress string, antiSnipingWindow time.Duration) (*model.Bid, *model.Auction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	a, err := scanAuction(tx.QueryRow(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = $1 FOR UPDATE`, auctionID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrAuctionNotFound
		}
		return nil, nil, fmt.Errorf("lock auction: %w", err)
	}

	now := time.Now()
	if err := model.ValidateBid(a, amountCents, now); err != nil {
		return nil, nil, err
	}

	// Снимаем флаг с предыдущей выигрывающей ставки; затрагивается не больше одной строки.
	if _, err := tx.Exec(ctx,
		`UPDATE bids SET is_winning = FALSE WHERE auction_id = $1 AND is_winning`,
		auctionID,
	); err != nil {
		return nil, nil, fmt.Errorf("unset winning bid: %w", err)
	}

	b := model.Bid{
		AuctionID: auctionID,
		UserID:    userID,
		Amount:    amountCents,
		IsWinning: true,
		IPAddress: ipAddress,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO bids (auction_id, user_id, amount, is_winning, ip_address)
		 VALUES ($1, $2, $3, TRUE, $4)
		 RETURNING id, created_at`,
		auctionID, userID, amountCents, ipAddress,
	).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("insert bid: %w", err)
	}

	newEndDate := model.ExtendedEndDate(a, now, antiSnipingWindow)

	if _, err := tx.Exec(ctx,
		`UPDATE auctions SET price = $2, bid_count = bid_count + 1, end_date = $3 WHERE id = $1`,
		auctionID, amountCents, newEndDate,
	); err != nil {
		return nil, nil, fmt.Errorf("update auction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit tx: %w", err)
	}

	a.Price = &amountCents
	a.BidCount++
	a.EndDate = newEndDate

	return &b, a, nil
}

// GetBidsByAuction возвращает ставки по аукциону, новые первыми.
func (r *PostgresRepository) GetBidsByAuction(ctx context.Context, auctionID int64) ([]model.Bid, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, auction_id, user_id, amount, is_winning, ip_address, created_at
		 FROM bids
		 WHERE auction_id = $1
		 ORDER BY created_at DESC`,
		auctionID,
	)
	if err != nil {
		return nil, fmt.Errorf("select bids: %w", err)
	}
	defer rows.Close()

	var res []model.Bid
	for rows.Next() {
		var b model.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.UserID, &b.Amount, &b.IsWinning, &b.IPAddress, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		res = append(res, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// PromotePendingAuctions переводит в статус active аукционы, чьё время начала наступило.
func (r *PostgresRepository) PromotePendingAuctions(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE auctions SET status = $1 WHERE status = $2 AND start_date <= now()`,
		string(model.AuctionStatusActive), string(model.AuctionStatusPending),
	)
	if err != nil {
		return 0, fmt.Errorf("promote auctions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// EndExpiredAuctions переводит завершившиеся по времени аукционы в статус ended
// и назначает победителя по выигрывающей ставке, если она не ниже стартовой
// цены. Возвращает завершённые аукционы.
func (r *PostgresRepository) EndExpiredAuctions(ctx context.Context) ([]model.Auction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT `+auctionColumns+`
		 FROM auctions
		 WHERE status = $1 AND end_date <= now()
		 FOR UPDATE`,
		string(model.AuctionStatusActive),
	)
	if err != nil {
		return nil, fmt.Errorf("select expired auctions: %w", err)
	}

	var expired []model.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan auction: %w", err)
		}
		expired = append(expired, *a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for i := range expired {
		a := &expired[i]

		var winnerID *int64
		var winAmount int64
		err := tx.QueryRow(ctx,
			`SELECT user_id, amount FROM bids WHERE auction_id = $1 AND is_winning`,
			a.ID,
		).Scan(&winnerID, &winAmount)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("select winning bid: %w", err)
		}

		// Победитель есть только если выигрывающая ставка не ниже стартовой цены.
		if winnerID != nil && winAmount < a.ReservePrice {
			winnerID = nil
		}

		if _, err := tx.Exec(ctx,
			`UPDATE auctions SET status = $2, winner_id = $3 WHERE id = $1`,
			a.ID, string(model.AuctionStatusEnded), winnerID,
		); err != nil {
			return nil, fmt.Errorf("end auction: %w", err)
		}

		a.Status = model.AuctionStatusEnded
		a.WinnerID = winnerID
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return expired, nil
}

// GetUnsettledAuctions возвращает завершённые аукционы с победителем, по которым ещё не прошёл расчёт.
func (r *PostgresRepository) GetUnsettledAuctions(ctx context.Context, limit int) ([]model.Auction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+auctionColumns+`
		 FROM auctions
		 WHERE status = $1 AND winner_id IS NOT NULL AND NOT is_settled
		 ORDER BY end_date
		 LIMIT $2`,
		string(model.AuctionStatusEnded), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select unsettled auctions: %w", err)
	}
	defer rows.Close()

	var res []model.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan auction: %w", err)
		}
		res = append(res, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// SettleAuction проводит расчёт по завершённому аукциону: списывает оплату с
// покупателя, зачисляет продавцу выручку и отдельно списывает комиссию
// площадки. Три операции по кошелькам и отметка о расчёте выполняются в одной
// транзакции: либо проходят все, либо ни одна.
func (r *PostgresRepository) SettleAuction(ctx context.Context, auctionID int64, split model.PaymentSplit, buyerWalletID, sellerWalletID int64) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		aID := auctionID

		if _, _, err := r.adjustInTx(ctx, tx, buyerWalletID, -split.Price,
			model.TransactionKindPaymentSent, model.TransactionStatusCompleted,
			"auction payment", &aID); err != nil {
			return err
		}

		if _, _, err := r.adjustInTx(ctx, tx, sellerWalletID, split.SellerEarnings,
			model.TransactionKindPaymentReceived, model.TransactionStatusCompleted,
			"auction earnings", &aID); err != nil {
			return err
		}

		if _, _, err := r.adjustInTx(ctx, tx, sellerWalletID, -split.Commission,
			model.TransactionKindCommission, model.TransactionStatusCompleted,
			"platform commission", &aID); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE auctions SET is_settled = TRUE WHERE id = $1`,
			auctionID,
		); err != nil {
			return fmt.Errorf("mark settled: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}
