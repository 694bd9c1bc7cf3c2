package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kstarkov/craftmarket-system/internal/middleware"
	"github.com/kstarkov/craftmarket-system/internal/model"
	"github.com/kstarkov/craftmarket-system/internal/repository"
	"github.com/kstarkov/craftmarket-system/internal/service"
)

type auctionResponse struct {
	ID           int64    `json:"id"`
	SellerID     int64    `json:"seller_id"`
	ProductName  string   `json:"product_name"`
	ReservePrice float64  `json:"reserve_price"`
	Price        *float64 `json:"price"`
	CurrentPrice float64  `json:"current_price"`
	BidIncrement float64  `json:"bid_increment"`
	BidCount     int      `json:"bid_count"`
	AntiSniping  bool     `json:"anti_sniping"`
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date"`
	Status       string   `json:"status"`
	WinnerID     *int64   `json:"winner_id,omitempty"`
	Type         string   `json:"type"`
}

func newAuctionResponse(a *model.Auction) auctionResponse {
	resp := auctionResponse{
		ID:           a.ID,
		SellerID:     a.SellerID,
		ProductName:  a.ProductName,
		ReservePrice: model.FromCents(a.ReservePrice),
		CurrentPrice: model.FromCents(a.CurrentPrice()),
		BidIncrement: model.FromCents(a.BidIncrement),
		BidCount:     a.BidCount,
		AntiSniping:  a.AntiSniping,
		StartDate:    a.StartDate.Format(time.RFC3339),
		EndDate:      a.EndDate.Format(time.RFC3339),
		Status:       string(a.Status),
		WinnerID:     a.WinnerID,
		Type:         a.Type,
	}
	if a.Price != nil {
		price := model.FromCents(*a.Price)
		resp.Price = &price
	}
	return resp
}

type bidResponse struct {
	ID        int64   `json:"id"`
	AuctionID int64   `json:"auction_id"`
	UserID    int64   `json:"user_id"`
	Amount    float64 `json:"amount"`
	IsWinning bool    `json:"is_winning"`
	CreatedAt string  `json:"created_at"`
}

func newBidResponse(b *model.Bid) bidResponse {
	return bidResponse{
		ID:        b.ID,
		AuctionID: b.AuctionID,
		UserID:    b.UserID,
		Amount:    model.FromCents(b.Amount),
		IsWinning: b.IsWinning,
		CreatedAt: b.CreatedAt.Format(time.RFC3339),
	}
}

func auctionIDFromRequest(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "auctionID"), 10, 64)
}

// GetActiveAuctions возвращает список видимых активных аукционов.
func (h *Handler) GetActiveAuctions(w http.ResponseWriter, r *http.Request) {
	auctions, err := h.service.GetActiveAuctions(r.Context())
	if err != nil {
		h.logger.Error("get active auctions error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]auctionResponse, 0, len(auctions))
	for i := range auctions {
		resp = append(resp, newAuctionResponse(&auctions[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetAuction возвращает аукцион вместе с его ставками.
func (h *Handler) GetAuction(w http.ResponseWriter, r *http.Request) {
	auctionID, err := auctionIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	auction, err := h.service.GetAuctionByID(r.Context(), auctionID)
	if err != nil {
		if errors.Is(err, repository.ErrAuctionNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get auction error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	bids, err := h.service.GetBidsByAuction(r.Context(), auctionID)
	if err != nil {
		h.logger.Error("get auction bids error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	bidResponses := make([]bidResponse, 0, len(bids))
	for i := range bids {
		bidResponses = append(bidResponses, newBidResponse(&bids[i]))
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"auction": newAuctionResponse(auction),
		"bids":    bidResponses,
	})
}

type placeBidRequest struct {
	Amount float64 `json:"amount"`
}

// PlaceBid принимает ставку текущего пользователя по аукциону.
// Ошибки бизнес-правил возвращаются по ключу нарушенного поля.
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	auctionID, err := auctionIDFromRequest(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	ip := r.RemoteAddr
	if host, _, splitErr := net.SplitHostPort(r.RemoteAddr); splitErr == nil {
		ip = host
	}

	bid, auction, err := h.service.PlaceBid(r.Context(), userID, auctionID, req.Amount, ip)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAuctionNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, service.ErrInvalidAmount),
			errors.Is(err, model.ErrBidTooLow),
			errors.Is(err, model.ErrBidIncrementTooSmall):
			h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"amount": err.Error(),
			})
		case errors.Is(err, model.ErrAuctionNotActive),
			errors.Is(err, model.ErrAuctionEnded):
			h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"auction": err.Error(),
			})
		default:
			h.logger.Error("place bid error", zap.Error(err), zap.Int64("auctionID", auctionID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"bid":     newBidResponse(bid),
		"auction": newAuctionResponse(auction),
	})
}
