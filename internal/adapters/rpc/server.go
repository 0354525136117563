// Package rpc exposes the daemon's local control surface: a JSON-RPC 2.0
// endpoint on POST /rpc plus /healthz and Prometheus /metrics. It is meant to
// be bound to loopback; a bearer token gates it when one is configured.
package rpc

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"clearpay/go-backend/pkg/models"
)

const DefaultAddr = "127.0.0.1:8787"

// PaymentService is the daemon-side contract the control surface drives.
type PaymentService interface {
	ChannelStatus() models.ChannelStatus
	EnsureChannel(ctx context.Context) error
	RefreshBalance(ctx context.Context) (string, error)
	SendPayment(ctx context.Context, payee, asset string, amount decimal.Decimal) (models.PaymentReceipt, error)
	ClearChannel() error
}

type Server struct {
	httpServer *http.Server
	service    PaymentService
	token      string
	log        *slog.Logger
}

func NewServer(addr string, svc PaymentService, token string, log *slog.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	if log == nil {
		log = slog.Default()
	}

	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		service: svc,
		token:   strings.TrimSpace(token),
		log:     log,
	}
	if s.token == "" {
		log.Warn("CLEARPAY_RPC_TOKEN is not set; RPC auth disabled")
	}
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.Handle("/metrics", promhttp.Handler())
	return s
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler exposes the mux for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	if s.token == "" {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	presented, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(presented)), []byte(s.token)) != 1 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}
