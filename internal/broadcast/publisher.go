// Package broadcast публикует факты о событиях аукционов во внешний приёмник.
package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// BidUser содержит публичные данные автора ставки.
type BidUser struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// BidFact описывает принятую ставку в событии.
type BidFact struct {
	ID        int64   `json:"id"`
	AuctionID int64   `json:"auction_id"`
	UserID    int64   `json:"user_id"`
	Amount    float64 `json:"amount"`
	CreatedAt string  `json:"created_at"`
	User      BidUser `json:"user"`
}

// AuctionSnapshot содержит срез состояния аукциона после принятия ставки.
type AuctionSnapshot struct {
	ID       int64   `json:"id"`
	Price    float64 `json:"price"`
	BidCount int     `json:"bid_count"`
}

// BidPlacedFact публикуется после фиксации ставки.
type BidPlacedFact struct {
	Bid     BidFact         `json:"bid"`
	Auction AuctionSnapshot `json:"auction"`
}

// AuctionEndedFact публикуется после завершения аукциона.
type AuctionEndedFact struct {
	AuctionID  int64   `json:"auction_id"`
	WinnerID   *int64  `json:"winner_id"`
	FinalPrice float64 `json:"final_price"`
}

// Publisher описывает приёмник фактов о событиях аукционов.
type Publisher interface {
	PublishBidPlaced(ctx context.Context, fact BidPlacedFact) error
	PublishAuctionEnded(ctx context.Context, fact AuctionEndedFact) error
}

// envelope оборачивает факт каналом и именем события. Канал именуется по
// идентификатору аукциона, чтобы подписчики получали только свои события.
type envelope struct {
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// WebhookPublisher отправляет события HTTP-запросом на настроенный URL с повторами.
type WebhookPublisher struct {
	url    string
	client *retryablehttp.Client
}

// NewWebhookPublisher создаёт публикатор событий для указанного URL.
func NewWebhookPublisher(url string) *WebhookPublisher {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = 5 * time.Second
	client.Logger = nil

	return &WebhookPublisher{
		url:    url,
		client: client,
	}
}

// AuctionChannel возвращает имя канала трансляции для аукциона.
func AuctionChannel(auctionID int64) string {
	return fmt.Sprintf("auction.%d", auctionID)
}

// PublishBidPlaced отправляет факт о принятой ставке.
func (p *WebhookPublisher) PublishBidPlaced(ctx context.Context, fact BidPlacedFact) error {
	return p.publish(ctx, AuctionChannel(fact.Auction.ID), "bid.placed", fact)
}

// PublishAuctionEnded отправляет факт о завершении аукциона.
func (p *WebhookPublisher) PublishAuctionEnded(ctx context.Context, fact AuctionEndedFact) error {
	return p.publish(ctx, AuctionChannel(fact.AuctionID), "auction.ended", fact)
}

func (p *WebhookPublisher) publish(ctx context.Context, channel, event string, payload any) error {
	body, err := json.Marshal(envelope{
		Channel: channel,
		Event:   event,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("broadcast endpoint returned status %d", resp.StatusCode)
	}

	return nil
}

// NopPublisher используется, когда внешний приёмник событий не настроен.
type NopPublisher struct{}

// PublishBidPlaced ничего не делает.
func (NopPublisher) PublishBidPlaced(ctx context.Context, fact BidPlacedFact) error { return nil }

// PublishAuctionEnded ничего не делает.
func (NopPublisher) PublishAuctionEnded(ctx context.Context, fact AuctionEndedFact) error {
	return nil
}

// LoggingPublisher дублирует публикацию в журнал и передаёт её вложенному публикатору.
type LoggingPublisher struct {
	Next   Publisher
	Logger *zap.Logger
}

// PublishBidPlaced логирует факт и передаёт его дальше.
func (p LoggingPublisher) PublishBidPlaced(ctx context.Context, fact BidPlacedFact) error {
	p.Logger.Info("bid placed",
		zap.Int64("auctionID", fact.Auction.ID),
		zap.Int64("bidID", fact.Bid.ID),
		zap.Float64("amount", fact.Bid.Amount),
	)
	return p.Next.PublishBidPlaced(ctx, fact)
}

// PublishAuctionEnded логирует факт и передаёт его дальше.
func (p LoggingPublisher) PublishAuctionEnded(ctx context.Context, fact AuctionEndedFact) error {
	p.Logger.Info("auction ended",
		zap.Int64("auctionID", fact.AuctionID),
		zap.Float64("finalPrice", fact.FinalPrice),
	)
	return p.Next.PublishAuctionEnded(ctx, fact)
}
