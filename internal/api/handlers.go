package api

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/subletsquare/lease-escrow-service/internal/activation"
	"github.com/subletsquare/lease-escrow-service/internal/escrow"
	"github.com/subletsquare/lease-escrow-service/internal/model"
	"github.com/subletsquare/lease-escrow-service/internal/units"
)

// AgreementSource reads and signs off-chain agreements.
type AgreementSource interface {
	Get(ctx context.Context, agreementID string) (*model.Agreement, error)
	ListByUser(ctx context.Context, userID string) ([]model.Agreement, error)
	Sign(ctx context.Context, agreementID, userID string) (*model.Agreement, error)
}

// Activator runs the activation workflow.
type Activator interface {
	Activate(ctx context.Context, ag *model.Agreement) (*activation.Result, error)
}

// LeaseCache is the optional read cache for lease queries.
type LeaseCache interface {
	Get(ctx context.Context, role, address string) ([]model.Lease, bool)
	Set(ctx context.Context, role, address string, leases []model.Lease)
	Invalidate(ctx context.Context, address string)
}

// Server wires the escrow protocol to the HTTP surface.
type Server struct {
	agreements AgreementSource
	activator  Activator
	dispatcher *escrow.Dispatcher
	reader     *escrow.Reader
	wallet     escrow.Wallet
	cache      LeaseCache
	watcher    *activation.Watcher
}

func NewServer(agreements AgreementSource, activator Activator, dispatcher *escrow.Dispatcher, reader *escrow.Reader, wallet escrow.Wallet, cache LeaseCache, watcher *activation.Watcher) *Server {
	return &Server{
		agreements: agreements,
		activator:  activator,
		dispatcher: dispatcher,
		reader:     reader,
		wallet:     wallet,
		cache:      cache,
		watcher:    watcher,
	}
}

// leaseDTO is the JSON shape of a lease. Base-unit amounts travel as decimal
// strings; display strings are for rendering only.
type leaseDTO struct {
	LeaseID                        string   `json:"leaseId"`
	Tenant                         string   `json:"tenant"`
	Subletter                      string   `json:"subletter"`
	StartDate                      int64    `json:"startDate"`
	PaymentTimestamps              []int64  `json:"paymentTimestamps"`
	MonthlyRent                    string   `json:"monthlyRent"`
	MonthlyRentDisplay             string   `json:"monthlyRentDisplay"`
	RentAvailableToWithdraw        string   `json:"rentAvailableToWithdraw"`
	RentAvailableToWithdrawDisplay string   `json:"rentAvailableToWithdrawDisplay"`
	SecurityDeposit                string   `json:"securityDeposit"`
	SecurityDepositDisplay         string   `json:"securityDepositDisplay"`
	DepositHeld                    string   `json:"depositHeld"`
	DepositHeldDisplay             string   `json:"depositHeldDisplay"`
	IsActive                       bool     `json:"isActive"`
	Status                         string   `json:"status"`
	NextAction                     string   `json:"nextAction"`
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func toLeaseDTO(l model.Lease) leaseDTO {
	timestamps := make([]int64, 0, len(l.PaymentTimestamps))
	for _, ts := range l.PaymentTimestamps {
		if ts != nil {
			timestamps = append(timestamps, ts.Int64())
		}
	}
	var start int64
	if l.StartDate != nil {
		start = l.StartDate.Int64()
	}
	return leaseDTO{
		LeaseID:                        bigString(l.LeaseID),
		Tenant:                         l.Tenant.Hex(),
		Subletter:                      l.Subletter.Hex(),
		StartDate:                      start,
		PaymentTimestamps:              timestamps,
		MonthlyRent:                    bigString(l.MonthlyRent),
		MonthlyRentDisplay:             units.FromBaseUnits(l.MonthlyRent),
		RentAvailableToWithdraw:        bigString(l.RentAvailableToWithdraw),
		RentAvailableToWithdrawDisplay: units.FromBaseUnits(l.RentAvailableToWithdraw),
		SecurityDeposit:                bigString(l.SecurityDeposit),
		SecurityDepositDisplay:         units.FromBaseUnits(l.SecurityDeposit),
		DepositHeld:                    bigString(l.DepositHeld),
		DepositHeldDisplay:             units.FromBaseUnits(l.DepositHeld),
		IsActive:                       l.IsActive,
		Status:                         escrow.StatusLabel(l),
		NextAction:                     string(escrow.NextAction(l)),
	}
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	agreementID := chi.URLParam(r, "agreementID")
	ag, err := s.agreements.Get(r.Context(), agreementID)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.activator.Activate(r.Context(), ag)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.watcher != nil {
		if owner, werr := s.wallet.Current(r.Context()); werr == nil {
			s.watcher.Enqueue(activation.Confirmation{
				ActivationID: res.ActivationID,
				Owner:        owner,
				LeaseKey:     res.LeaseKey,
				TxHash:       res.TxHash,
			})
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"activationId": res.ActivationID.String(),
		"leaseKey":     res.LeaseKey.String(),
		"tenant":       res.Tenant.Hex(),
		"txHash":       res.TxHash.Hex(),
	})
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
		writeError(w, escrow.Errorf(escrow.KindInvalidAgreement, "api.handleSign", "userId is required"))
		return
	}
	ag, err := s.agreements.Sign(r.Context(), chi.URLParam(r, "agreementID"), body.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ag)
}

func (s *Server) handleListAgreements(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, escrow.Errorf(escrow.KindInvalidAgreement, "api.handleListAgreements", "userId is required"))
		return
	}
	ags, err := s.agreements.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ags)
}

func (s *Server) accountLeases(r *http.Request, role string, addr common.Address) ([]model.Lease, error) {
	ctx := r.Context()
	if s.cache != nil {
		if leases, ok := s.cache.Get(ctx, role, addr.Hex()); ok {
			return leases, nil
		}
	}
	var (
		leases []model.Lease
		err    error
	)
	if role == "owner" {
		leases, err = s.reader.LeasesByOwner(ctx, addr)
	} else {
		leases, err = s.reader.LeasesByTenant(ctx, addr)
	}
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, role, addr.Hex(), leases)
	}
	return leases, nil
}

func (s *Server) handleLeases(w http.ResponseWriter, r *http.Request) {
	addrParam := chi.URLParam(r, "address")
	if !common.IsHexAddress(addrParam) {
		writeError(w, escrow.Errorf(escrow.KindInvalidAgreement, "api.handleLeases", "invalid address %q", addrParam))
		return
	}
	role := r.URL.Query().Get("role")
	if role != "owner" {
		role = "tenant"
	}
	leases, err := s.accountLeases(r, role, common.HexToAddress(addrParam))
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]leaseDTO, 0, len(leases))
	for _, l := range leases {
		dtos = append(dtos, toLeaseDTO(l))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"leases": dtos})
}

func (s *Server) handleNextActions(w http.ResponseWriter, r *http.Request) {
	addrParam := chi.URLParam(r, "address")
	if !common.IsHexAddress(addrParam) {
		writeError(w, escrow.Errorf(escrow.KindInvalidAgreement, "api.handleNextActions", "invalid address %q", addrParam))
		return
	}
	role := r.URL.Query().Get("role")
	if role != "owner" {
		role = "tenant"
	}
	leases, err := s.accountLeases(r, role, common.HexToAddress(addrParam))
	if err != nil {
		writeError(w, err)
		return
	}
	type nextActionDTO struct {
		LeaseID    string `json:"leaseId"`
		NextAction string `json:"nextAction"`
	}
	dtos := make([]nextActionDTO, 0, len(leases))
	for _, l := range leases {
		dtos = append(dtos, nextActionDTO{
			LeaseID:    bigString(l.LeaseID),
			NextAction: string(escrow.NextAction(l)),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"nextActions": dtos})
}

func (s *Server) handlePayments(w http.ResponseWriter, r *http.Request) {
	addrParam := chi.URLParam(r, "address")
	if !common.IsHexAddress(addrParam) {
		writeError(w, escrow.Errorf(escrow.KindInvalidAgreement, "api.handlePayments", "invalid address %q", addrParam))
		return
	}
	leases, err := s.accountLeases(r, "tenant", common.HexToAddress(addrParam))
	if err != nil {
		writeError(w, err)
		return
	}
	type paymentDTO struct {
		ID       string `json:"id"`
		LeaseID  string `json:"leaseId"`
		Date     string `json:"date"`
		Amount   string `json:"amount"`
		Display  string `json:"amountDisplay"`
		Property string `json:"property"`
		Status   string `json:"status"`
	}
	items := escrow.Payments(leases)
	dtos := make([]paymentDTO, 0, len(items))
	for _, p := range items {
		dtos = append(dtos, paymentDTO{
			ID:       p.ID,
			LeaseID:  p.LeaseID,
			Date:     p.Date.Format("2006-01-02"),
			Amount:   bigString(p.Amount),
			Display:  units.FromBaseUnits(p.Amount),
			Property: p.Property,
			Status:   p.Status,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payments": dtos})
}

type amountRequest struct {
	AmountSubunits int64 `json:"amountSubunits"`
}

func (s *Server) leaseAmountOp(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, leaseID, amount *big.Int) (common.Hash, error)) {
	leaseID, ok := new(big.Int).SetString(chi.URLParam(r, "leaseID"), 10)
	if !ok {
		writeError(w, escrow.Errorf(escrow.KindInvalidAgreement, "api.leaseAmountOp", "invalid lease id"))
		return
	}
	var body amountRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, escrow.Errorf(escrow.KindInvalidAmount, "api.leaseAmountOp", "invalid body: %v", err))
		return
	}
	amount, err := units.ToBaseUnits(body.AmountSubunits)
	if err != nil {
		writeError(w, err)
		return
	}
	txHash, err := op(r.Context(), leaseID, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	s.invalidateCaller(r)
	writeJSON(w, http.StatusAccepted, map[string]string{"txHash": txHash.Hex()})
}

func (s *Server) handleFundDeposit(w http.ResponseWriter, r *http.Request) {
	s.leaseAmountOp(w, r, s.dispatcher.FundSecurityDeposit)
}

func (s *Server) handlePayRent(w http.ResponseWriter, r *http.Request) {
	s.leaseAmountOp(w, r, s.dispatcher.DepositRent)
}

func (s *Server) handleWithdrawRent(w http.ResponseWriter, r *http.Request) {
	s.leaseAmountOp(w, r, s.dispatcher.WithdrawRent)
}

func (s *Server) handleReturnDeposit(w http.ResponseWriter, r *http.Request) {
	s.leaseAmountOp(w, r, s.dispatcher.ReturnSecurityDeposit)
}

func (s *Server) handleEndLease(w http.ResponseWriter, r *http.Request) {
	leaseID, ok := new(big.Int).SetString(chi.URLParam(r, "leaseID"), 10)
	if !ok {
		writeError(w, escrow.Errorf(escrow.KindInvalidAgreement, "api.handleEndLease", "invalid lease id"))
		return
	}
	txHash, err := s.dispatcher.EndLease(r.Context(), leaseID)
	if err != nil {
		writeError(w, err)
		return
	}
	s.invalidateCaller(r)
	writeJSON(w, http.StatusAccepted, map[string]string{"txHash": txHash.Hex()})
}

func (s *Server) handleEditLease(w http.ResponseWriter, r *http.Request) {
	leaseID, ok := new(big.Int).SetString(chi.URLParam(r, "leaseID"), 10)
	if !ok {
		writeError(w, escrow.Errorf(escrow.KindInvalidAgreement, "api.handleEditLease", "invalid lease id"))
		return
	}
	var body struct {
		RentSubunits            int64  `json:"rentSubunits"`
		SecurityDepositSubunits int64  `json:"securityDepositSubunits"`
		StartDate               string `json:"startDate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, escrow.Errorf(escrow.KindInvalidAmount, "api.handleEditLease", "invalid body: %v", err))
		return
	}
	rentWei, err := units.ToBaseUnits(body.RentSubunits)
	if err != nil {
		writeError(w, err)
		return
	}
	depositWei, err := units.ToBaseUnits(body.SecurityDepositSubunits)
	if err != nil {
		writeError(w, err)
		return
	}
	ag := model.Agreement{StartDate: body.StartDate}
	start, err := ag.Start()
	if err != nil {
		writeError(w, escrow.Errorf(escrow.KindInvalidAgreement, "api.handleEditLease", "%v", err))
		return
	}
	txHash, err := s.dispatcher.EditLease(r.Context(), leaseID, rentWei, depositWei, start.Unix())
	if err != nil {
		writeError(w, err)
		return
	}
	s.invalidateCaller(r)
	writeJSON(w, http.StatusAccepted, map[string]string{"txHash": txHash.Hex()})
}

// invalidateCaller drops the cached leases of the account that just wrote.
func (s *Server) invalidateCaller(r *http.Request) {
	if s.cache == nil {
		return
	}
	if addr, err := s.wallet.Current(r.Context()); err == nil {
		s.cache.Invalidate(r.Context(), addr.Hex())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps the failure taxonomy onto HTTP statuses; every kind keeps
// a distinct machine-readable code so the front-end can render a specific
// remedy.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := escrow.KindOf(err)
	switch kind {
	case escrow.KindInvalidAgreement, escrow.KindInvalidAmount:
		status = http.StatusBadRequest
	case escrow.KindWalletNotConnected, escrow.KindPreconditionFailed, escrow.KindUserRejected:
		status = http.StatusConflict
	case escrow.KindTenantWalletMissing:
		status = http.StatusUnprocessableEntity
	case escrow.KindNetworkRejected:
		status = http.StatusBadGateway
	}
	if kind == "" {
		kind = "internal"
	}
	writeJSON(w, status, map[string]string{
		"error":   string(kind),
		"message": err.Error(),
	})
}
