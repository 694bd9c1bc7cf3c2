package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kstarkov/craftmarket-system/internal/broadcast"
	"github.com/kstarkov/craftmarket-system/internal/model"
)

// GetActiveAuctions возвращает видимые активные аукционы.
func (s *Service) GetActiveAuctions(ctx context.Context) ([]model.Auction, error) {
	return s.repo.GetActiveAuctions(ctx)
}

// GetAuctionByID возвращает аукцион по идентификатору.
func (s *Service) GetAuctionByID(ctx context.Context, id int64) (*model.Auction, error) {
	return s.repo.GetAuctionByID(ctx, id)
}

// GetBidsByAuction возвращает ставки по аукциону.
func (s *Service) GetBidsByAuction(ctx context.Context, auctionID int64) ([]model.Bid, error) {
	return s.repo.GetBidsByAuction(ctx, auctionID)
}

// PlaceBid принимает ставку пользователя по аукциону и публикует факт о ней.
// Ошибка публикации не отменяет уже зафиксированную ставку.
func (s *Service) PlaceBid(ctx context.Context, userID, auctionID int64, sum float64, ipAddress string) (*model.Bid, *model.Auction, error) {
	amountCents := model.ToCents(sum)
	if amountCents <= 0 {
		return nil, nil, ErrInvalidAmount
	}

	window, err := s.settings.AntiSnipingWindow(ctx)
	if err != nil {
		return nil, nil, err
	}

	bid, auction, err := s.repo.PlaceBid(ctx, auctionID, userID, amountCents, ipAddress, window)
	if err != nil {
		return nil, nil, err
	}

	s.publishBidPlaced(ctx, bid, auction)

	return bid, auction, nil
}

func (s *Service) publishBidPlaced(ctx context.Context, bid *model.Bid, auction *model.Auction) {
	userName := ""
	if u, err := s.repo.GetUserByID(ctx, bid.UserID); err == nil {
		userName = u.Login
	}

	fact := broadcast.BidPlacedFact{
		Bid: broadcast.BidFact{
			ID:        bid.ID,
			AuctionID: bid.AuctionID,
			UserID:    bid.UserID,
			Amount:    model.FromCents(bid.Amount),
			CreatedAt: bid.CreatedAt.Format(time.RFC3339),
			User:      broadcast.BidUser{ID: bid.UserID, Name: userName},
		},
		Auction: broadcast.AuctionSnapshot{
			ID:       auction.ID,
			Price:    model.FromCents(auction.CurrentPrice()),
			BidCount: auction.BidCount,
		},
	}

	if err := s.publisher.PublishBidPlaced(ctx, fact); err != nil {
		s.logger.Error("publish bid placed", zap.Error(err), zap.Int64("auctionID", auction.ID))
	}
}
