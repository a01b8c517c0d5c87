package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/hivestin/internal/middleware"
	"github.com/mmeshcher/hivestin/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware инвестиционной платформы.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(requestMeta)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/plans", h.GetPlans)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)
			r.With(h.authMiddleware.Middleware).Get("/check", h.CheckAuth)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/user/profile", h.GetProfile)
			r.Get("/referrals", h.GetReferrals)

			r.Post("/deposits", h.CreateDeposit)
			r.Get("/deposits", h.GetDeposits)
			r.Get("/deposits/{id}/status", h.GetDepositStatus)

			r.Get("/investments", h.GetInvestments)
			r.Get("/investments/distributions", h.GetProfitHistory)

			r.Get("/transactions", h.GetTransactions)
			r.Get("/transactions/export", h.ExportTransactions)

			r.Get("/withdrawals/eligibility", h.GetEligibility)
			r.Post("/withdrawals", h.Withdraw)
			r.Get("/withdrawals", h.GetWithdrawals)

			r.Route("/support", func(r chi.Router) {
				r.Post("/tickets", h.CreateTicket)
				r.Get("/tickets", h.GetTickets)
				r.Get("/tickets/{id}", h.GetTicket)
				r.Post("/tickets/{id}/replies", h.ReplyTicket)

				r.Get("/slots", h.GetSlots)
				r.Post("/calls", h.BookCall)
				r.Get("/calls", h.GetCalls)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(custommiddleware.RequireRole(h.service, model.RoleAdmin))

				r.Get("/stats", h.AdminStats)
				r.Get("/audit", h.AdminAudit)

				r.Get("/deposits", h.AdminDeposits)
				r.Patch("/deposits/{id}", h.AdminDecideDeposit)

				r.Get("/withdrawals", h.AdminWithdrawals)
				r.Patch("/withdrawals/{id}", h.AdminDecideWithdrawal)

				r.Post("/accruals/run", h.AdminRunAccrual)

				r.Get("/users", h.AdminUsers)
				r.Delete("/users/{id}", h.AdminDeleteUser)
				r.Patch("/users/{id}/role", h.AdminSetRole)

				r.Get("/support/calls", h.AdminCalls)
				r.Patch("/support/calls/{id}", h.AdminDecideCall)
				r.Get("/support/tickets", h.AdminTickets)
				r.Post("/support/tickets/{id}/close", h.AdminCloseTicket)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
