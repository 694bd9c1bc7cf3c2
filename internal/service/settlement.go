package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kstarkov/craftmarket-system/internal/broadcast"
	"github.com/kstarkov/craftmarket-system/internal/model"
	"github.com/kstarkov/craftmarket-system/internal/repository"
)

// ProcessAuctionPayment проводит расчёт по завершённому аукциону: списывает
// финальную цену с победителя и зачисляет продавцу выручку за вычетом
// комиссии площадки. Возвращает false без ошибки, если расчёт сейчас
// невозможен (нет победителя, нет кошелька, не хватает средств) — вызывающий
// обход повторит попытку позже.
func (s *Service) ProcessAuctionPayment(ctx context.Context, auctionID int64) (bool, error) {
	auction, err := s.repo.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return false, err
	}

	if auction.Status != model.AuctionStatusEnded || auction.WinnerID == nil {
		s.logger.Info("auction not ready for settlement", zap.Int64("auctionID", auctionID))
		return false, nil
	}
	if auction.IsSettled {
		return false, nil
	}

	price := auction.CurrentPrice()

	buyerWallet, err := s.repo.GetWalletByUser(ctx, *auction.WinnerID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			s.logger.Warn("buyer wallet missing", zap.Int64("auctionID", auctionID), zap.Int64("userID", *auction.WinnerID))
			return false, nil
		}
		return false, err
	}

	sellerWallet, err := s.repo.GetWalletByUser(ctx, auction.SellerID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			s.logger.Warn("seller wallet missing", zap.Int64("auctionID", auctionID), zap.Int64("userID", auction.SellerID))
			return false, nil
		}
		return false, err
	}

	if buyerWallet.Balance < price {
		s.logger.Info("buyer has insufficient funds for settlement",
			zap.Int64("auctionID", auctionID), zap.Int64("priceCents", price))
		return false, nil
	}

	rate, err := s.settings.CommissionRatePercent(ctx)
	if err != nil {
		return false, err
	}

	split := model.SplitPayment(price, rate)

	err = s.repo.SettleAuction(ctx, auctionID, split, buyerWallet.ID, sellerWallet.ID)
	if err != nil {
		// Баланс мог измениться между проверкой и списанием под блокировкой.
		if errors.Is(err, repository.ErrInsufficientBalance) {
			return false, nil
		}
		return false, err
	}

	s.logger.Info("auction settled",
		zap.Int64("auctionID", auctionID),
		zap.Int64("priceCents", split.Price),
		zap.Int64("commissionCents", split.Commission),
	)

	return true, nil
}

// StartAuctionSweep запускает фоновый обход аукционов: перевод статусов по
// времени, назначение победителей и расчёты по завершённым аукционам.
func (s *Service) StartAuctionSweep(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweepAuctions(ctx)
			}
		}
	}()
}

func (s *Service) sweepAuctions(ctx context.Context) {
	if _, err := s.repo.PromotePendingAuctions(ctx); err != nil {
		s.logger.Error("promote pending auctions", zap.Error(err))
	}

	ended, err := s.repo.EndExpiredAuctions(ctx)
	if err != nil {
		s.logger.Error("end expired auctions", zap.Error(err))
	}
	for i := range ended {
		a := &ended[i]
		fact := broadcast.AuctionEndedFact{
			AuctionID:  a.ID,
			WinnerID:   a.WinnerID,
			FinalPrice: model.FromCents(a.CurrentPrice()),
		}
		if err := s.publisher.PublishAuctionEnded(ctx, fact); err != nil {
			s.logger.Error("publish auction ended", zap.Error(err), zap.Int64("auctionID", a.ID))
		}
	}

	unsettled, err := s.repo.GetUnsettledAuctions(ctx, 100)
	if err != nil {
		s.logger.Error("select unsettled auctions", zap.Error(err))
		return
	}

	for i := range unsettled {
		if _, err := s.ProcessAuctionPayment(ctx, unsettled[i].ID); err != nil {
			s.logger.Error("process auction payment", zap.Error(err), zap.Int64("auctionID", unsettled[i].ID))
		}
	}
}
