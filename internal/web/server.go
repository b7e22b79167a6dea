// Package web serves the portfolio HTTP API and an SSE event stream.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/folio/internal/domain"
	"github.com/vadiminshakov/folio/internal/events"
	"github.com/vadiminshakov/folio/internal/services/ledger"
	"github.com/vadiminshakov/folio/internal/services/portfolio"
	"github.com/vadiminshakov/folio/internal/storage"
)

const (
	// UserHeader carries the caller identity established by the auth gateway.
	UserHeader = "X-User-ID"

	heartbeatInterval = 30 * time.Second
	maxBodyBytes      = 1 << 20
)

type portfolioService interface {
	OpenWallet(ctx context.Context, userID, name string) (domain.Wallet, error)
	WalletOf(ctx context.Context, userID string) (domain.Wallet, error)
	RenameWallet(ctx context.Context, userID, name string) (domain.Wallet, error)
	ApplyTransaction(ctx context.Context, userID, walletID string, in portfolio.TransactionInput) (domain.Transaction, error)
	Portfolio(ctx context.Context, userID, walletID string, summaryOnly bool) (domain.PortfolioSnapshot, error)
	PortfolioOf(ctx context.Context, userID string, summaryOnly bool) (domain.PortfolioSnapshot, error)
	Transactions(ctx context.Context, userID, walletID string) ([]domain.Transaction, error)
	TransactionsOf(ctx context.Context, userID string) ([]domain.Transaction, error)
	Audit(ctx context.Context, userID, walletID string) ([]ledger.AuditResult, error)
	TriggerSync()
}

// Server exposes the portfolio API over HTTP.
type Server struct {
	Addr   string
	l      *zap.Logger
	svc    portfolioService
	events *events.Broadcaster
}

// NewServer creates a new web server instance. b may be nil, then the event stream is unavailable.
func NewServer(l *zap.Logger, addr string, svc portfolioService, b *events.Broadcaster) *Server {
	return &Server{Addr: addr, l: l, svc: svc, events: b}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /wallets", s.withUser(s.handleOpenWallet))
	mux.HandleFunc("GET /wallets/me", s.withUser(s.handleMyWallet))
	mux.HandleFunc("PATCH /wallets/me", s.withUser(s.handleRenameWallet))
	mux.HandleFunc("GET /wallets/me/portfolio", s.withUser(s.handleMyPortfolio))
	mux.HandleFunc("GET /wallets/me/transactions", s.withUser(s.handleMyTransactions))
	mux.HandleFunc("POST /wallets/{walletID}/transactions", s.withUser(s.handleApplyTransaction))
	mux.HandleFunc("GET /wallets/{walletID}/transactions", s.withUser(s.handleTransactions))
	mux.HandleFunc("GET /wallets/{walletID}/portfolio", s.withUser(s.handlePortfolio))
	mux.HandleFunc("GET /wallets/{walletID}/audit", s.withUser(s.handleAudit))
	mux.HandleFunc("POST /sync", s.withUser(s.handleSync))
	mux.HandleFunc("GET /events/stream", s.withUser(s.handleEventStream))

	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.l.Info("http server listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server")
	}
	return nil
}

type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

func (s *Server) withUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(UserHeader)
		if userID == "" {
			s.writeError(w, http.StatusUnauthorized, "missing "+UserHeader+" header")
			return
		}
		next(w, r, userID)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type walletRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleOpenWallet(w http.ResponseWriter, r *http.Request, userID string) {
	var req walletRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			s.fail(w, err)
			return
		}
	}
	wallet, err := s.svc.OpenWallet(r.Context(), userID, req.Name)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, wallet)
}

func (s *Server) handleMyWallet(w http.ResponseWriter, r *http.Request, userID string) {
	wallet, err := s.svc.WalletOf(r.Context(), userID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, wallet)
}

func (s *Server) handleRenameWallet(w http.ResponseWriter, r *http.Request, userID string) {
	var req walletRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	wallet, err := s.svc.RenameWallet(r.Context(), userID, req.Name)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, wallet)
}

func (s *Server) handleApplyTransaction(w http.ResponseWriter, r *http.Request, userID string) {
	var in portfolio.TransactionInput
	if err := decode(w, r, &in); err != nil {
		s.fail(w, err)
		return
	}
	tx, err := s.svc.ApplyTransaction(r.Context(), userID, r.PathValue("walletID"), in)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request, userID string) {
	txs, err := s.svc.Transactions(r.Context(), userID, r.PathValue("walletID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleMyTransactions(w http.ResponseWriter, r *http.Request, userID string) {
	txs, err := s.svc.TransactionsOf(r.Context(), userID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, txs)
}

// summaryResponse portfolio snapshot without per-holding lines.
type summaryResponse struct {
	WalletID string `json:"walletId"`
	domain.PortfolioSummary
	ValuedAt time.Time `json:"valuedAt"`
}

func (s *Server) writeSnapshot(w http.ResponseWriter, snap domain.PortfolioSnapshot, summaryOnly bool) {
	if summaryOnly {
		s.writeJSON(w, http.StatusOK, summaryResponse{
			WalletID:         snap.WalletID,
			PortfolioSummary: snap.PortfolioSummary,
			ValuedAt:         snap.ValuedAt,
		})
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func summaryParam(r *http.Request) (bool, error) {
	raw := r.URL.Query().Get("summary")
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, domain.Invalid("summary must be a boolean, got %q", raw)
	}
	return v, nil
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request, userID string) {
	summaryOnly, err := summaryParam(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	snap, err := s.svc.Portfolio(r.Context(), userID, r.PathValue("walletID"), summaryOnly)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeSnapshot(w, snap, summaryOnly)
}

func (s *Server) handleMyPortfolio(w http.ResponseWriter, r *http.Request, userID string) {
	summaryOnly, err := summaryParam(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	snap, err := s.svc.PortfolioOf(r.Context(), userID, summaryOnly)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeSnapshot(w, snap, summaryOnly)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request, userID string) {
	results, err := s.svc.Audit(r.Context(), userID, r.PathValue("walletID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleSync(w http.ResponseWriter, _ *http.Request, _ string) {
	s.svc.TriggerSync()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleEventStream streams the caller's own wallet events plus global ones.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request, userID string) {
	if s.events == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "event stream not available")
		return
	}
	var walletID string
	wallet, err := s.svc.WalletOf(r.Context(), userID)
	switch {
	case err == nil:
		walletID = wallet.ID
	case !errors.Is(err, domain.ErrWalletNotFound):
		s.fail(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.events.Subscribe()
	defer s.events.Unsubscribe(sub)

	// comment heartbeat keeps proxies from closing the connection
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case e, ok := <-sub:
			if !ok {
				return
			}
			if !visibleTo(e, walletID) {
				continue
			}
			payload, err := json.Marshal(e)
			if err != nil {
				s.l.Warn("failed to encode event", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\n", e.Kind)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// visibleTo reports whether e may be sent to the owner of walletID.
// Events without a wallet are global.
func visibleTo(e events.Event, walletID string) bool {
	return e.WalletID == "" || (walletID != "" && e.WalletID == walletID)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.Invalid("malformed request body: %v", err)
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusOf maps error kinds to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrWalletAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrWalletNotFound), errors.Is(err, domain.ErrInstrumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientQuantity):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrTransientProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.l.Error("request failed", zap.Error(err))
		msg = http.StatusText(status)
	}
	s.writeError(w, status, msg)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.l.Warn("failed to write response", zap.Error(err))
	}
}
