package handler

import (
	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/kstarkov/craftmarket-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса крафтмаркет.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/balance", h.GetBalance)
			r.Post("/balance/deposit", h.Deposit)
			r.Get("/transactions", h.GetTransactions)

			r.Post("/withdrawals", h.RequestWithdrawal)
			r.Get("/withdrawals", h.GetWithdrawals)
		})
	})

	r.Route("/api/auctions", func(r chi.Router) {
		r.Get("/", h.GetActiveAuctions)
		r.Get("/{auctionID}", h.GetAuction)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/{auctionID}/bids", h.PlaceBid)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)
		r.Use(custommiddleware.RequireAdmin(h.service))

		r.Get("/withdrawals", h.ListWithdrawals)
		r.Post("/withdrawals/{withdrawalID}/approve", h.ApproveWithdrawal)
		r.Post("/withdrawals/{withdrawalID}/reject", h.RejectWithdrawal)
		r.Post("/withdrawals/{withdrawalID}/process", h.ProcessWithdrawal)
		r.Post("/withdrawals/{withdrawalID}/complete", h.CompleteWithdrawal)

		r.Post("/users/{userID}/deposit", h.ManualDeposit)
		r.Post("/settings/refresh", h.RefreshSettings)
	})

	return r
}
