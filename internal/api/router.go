package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the escrow gateway routes.
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/agreements", s.handleListAgreements)
	r.Post("/agreements/{agreementID}/sign", s.handleSign)
	r.Post("/agreements/{agreementID}/activate", s.handleActivate)

	r.Get("/accounts/{address}/leases", s.handleLeases)
	r.Get("/accounts/{address}/payments", s.handlePayments)
	r.Get("/accounts/{address}/next-actions", s.handleNextActions)

	r.Post("/leases/{leaseID}/deposit", s.handleFundDeposit)
	r.Post("/leases/{leaseID}/rent", s.handlePayRent)
	r.Post("/leases/{leaseID}/withdraw", s.handleWithdrawRent)
	r.Post("/leases/{leaseID}/return", s.handleReturnDeposit)
	r.Post("/leases/{leaseID}/end", s.handleEndLease)
	r.Put("/leases/{leaseID}", s.handleEditLease)

	return r
}
