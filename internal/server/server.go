// Package server exposes the vault operations over HTTP. Callers are
// declared 0x addresses; the trust boundary is the optional bearer token.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"burnvault/internal/config"
	"burnvault/internal/vault"
)

// Vault is the engine surface the API serves.
type Vault interface {
	DepositFee(ctx context.Context, caller common.Address, amount *uint256.Int) error
	ConsumeFunds(ctx context.Context, caller common.Address, amount *uint256.Int) error
	CreditEscrow(ctx context.Context, caller common.Address, amount *uint256.Int) error
	ExecuteBurn(ctx context.Context, caller common.Address) (vault.BurnReceipt, error)
	WithCall(ctx context.Context, caller common.Address, fn func(ctx context.Context, call *vault.Call) error) error
	SetPriceMultiplier(ctx context.Context, caller common.Address, bps uint64) error
	SetDistributor(ctx context.Context, caller, addr common.Address, enabled bool) error
	UpdateHookAddress(ctx context.Context, caller, addr common.Address) error
	Status(ctx context.Context) (vault.Status, error)
}

type Server struct {
	vault Vault
	token string
	log   *zap.Logger
	mux   *http.ServeMux
	http  *http.Server
}

func New(cfg config.ServerConfig, v Vault, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{vault: v, token: cfg.APIToken, log: log}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/v1/fees/deposit", s.api(s.handleDeposit))
	mux.HandleFunc("/v1/fees/consume", s.api(s.handleConsume))
	mux.HandleFunc("/v1/escrow/credit", s.api(s.handleCredit))
	mux.HandleFunc("/v1/burn/execute", s.api(s.handleBurn))
	mux.HandleFunc("/v1/transfer", s.api(s.handleTransfer))
	mux.HandleFunc("/v1/admin/multiplier", s.api(s.handleMultiplier))
	mux.HandleFunc("/v1/admin/distributor", s.api(s.handleDistributor))
	mux.HandleFunc("/v1/admin/authority", s.api(s.handleAuthority))
	s.mux = mux
	s.http = &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the route table without the listener, for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe() error {
	s.log.Info("control plane listening", zap.String("address", s.http.Addr))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// api wraps the mutating routes with the method check and bearer guard.
func (s *Server) api(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
			return
		}
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			writeError(w, http.StatusUnauthorized, errors.New("invalid api token"))
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.vault.Status(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type amountRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.applyAmount(w, r, s.vault.DepositFee)
}

func (s *Server) handleConsume(w http.ResponseWriter, r *http.Request) {
	s.applyAmount(w, r, s.vault.ConsumeFunds)
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	s.applyAmount(w, r, s.vault.CreditEscrow)
}

func (s *Server) applyAmount(w http.ResponseWriter, r *http.Request, op func(context.Context, common.Address, *uint256.Int) error) {
	var req amountRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := vault.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := vault.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := op(r.Context(), caller, amount); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

type burnRequest struct {
	Caller string `json:"caller"`
}

type burnResponse struct {
	Spend  string `json:"spend"`
	Reward string `json:"reward"`
	Burned string `json:"burned"`
	Tick   uint64 `json:"tick"`
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	var req burnRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := vault.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	receipt, err := s.vault.ExecuteBurn(r.Context(), caller)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, burnResponse{
		Spend:  receipt.Spend.Dec(),
		Reward: receipt.Reward.Dec(),
		Burned: receipt.Burned.Dec(),
		Tick:   uint64(receipt.Tick),
	})
}

type transferRequest struct {
	Caller            string         `json:"caller"`
	AllowanceIncrease string         `json:"allowance_increase"`
	Transfers         []transferItem `json:"transfers"`
}

type transferItem struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type parsedTransfer struct {
	from   common.Address
	to     common.Address
	amount *uint256.Int
}

// handleTransfer runs an optional allowance top-up and a batch of transfers
// inside one call scope, so a rejection reverts the whole batch.
func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := vault.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Transfers) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("transfers are required"))
		return
	}
	var allowance *uint256.Int
	if req.AllowanceIncrease != "" {
		allowance, err = vault.ParseAmount(req.AllowanceIncrease)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	parsed := make([]parsedTransfer, 0, len(req.Transfers))
	for _, item := range req.Transfers {
		from, err := vault.ParseAddress(item.From)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		to, err := vault.ParseAddress(item.To)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		amount, err := vault.ParseAmount(item.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		parsed = append(parsed, parsedTransfer{from: from, to: to, amount: amount})
	}

	outcomes := make([]string, 0, len(parsed))
	err = s.vault.WithCall(r.Context(), caller, func(ctx context.Context, call *vault.Call) error {
		if allowance != nil {
			if err := call.IncreaseAllowance(allowance); err != nil {
				return err
			}
		}
		for _, tr := range parsed {
			outcome, err := call.Transfer(ctx, tr.from, tr.to, tr.amount)
			if err != nil {
				return err
			}
			outcomes = append(outcomes, string(outcome))
		}
		return nil
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"outcomes": outcomes})
}

type multiplierRequest struct {
	Caller        string `json:"caller"`
	MultiplierBps uint64 `json:"multiplier_bps"`
}

func (s *Server) handleMultiplier(w http.ResponseWriter, r *http.Request) {
	var req multiplierRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := vault.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.vault.SetPriceMultiplier(r.Context(), caller, req.MultiplierBps); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

type distributorRequest struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
	Enabled bool   `json:"enabled"`
}

func (s *Server) handleDistributor(w http.ResponseWriter, r *http.Request) {
	var req distributorRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := vault.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	addr, err := vault.ParseAddress(req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.vault.SetDistributor(r.Context(), caller, addr, req.Enabled); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

type authorityRequest struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
}

func (s *Server) handleAuthority(w http.ResponseWriter, r *http.Request) {
	var req authorityRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := vault.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	addr, err := vault.ParseAddress(req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.vault.UpdateHookAddress(r.Context(), caller, addr); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

var okResponse = map[string]bool{"ok": true}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch vault.Classify(err) {
	case vault.KindAuthorization:
		return http.StatusForbidden
	case vault.KindRange:
		return http.StatusBadRequest
	case vault.KindTiming, vault.KindState:
		return http.StatusConflict
	case vault.KindPolicy:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
