// Package paydaemon assembles the payment core into a runnable daemon:
// wallet signer, clearing connection, channel manager, session orchestrator,
// and the local control surface, wired from one Settings value.
package paydaemon

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"clearpay/go-backend/internal/adapters/rpc"
	"clearpay/go-backend/internal/bootstrap/payconfig"
	"clearpay/go-backend/internal/channel"
	"clearpay/go-backend/internal/clearing"
	"clearpay/go-backend/internal/fault"
	"clearpay/go-backend/internal/session"
	"clearpay/go-backend/internal/signer"
	"clearpay/go-backend/pkg/models"

	"github.com/shopspring/decimal"
)

// Options carries collaborators the daemon cannot construct itself. Chain is
// the host-provided on-chain custody client; without it the channel can never
// open and ensure_channel reports a precondition error.
type Options struct {
	Chain channel.ChainClient
	Log   *slog.Logger
}

type Service struct {
	settings payconfig.Settings
	log      *slog.Logger

	sig      signer.Signer
	conn     *clearing.Conn
	manager  *channel.Manager
	payments *session.Orchestrator
}

func BuildService(settings payconfig.Settings, opts Options) (*Service, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	sig, err := buildSigner(settings.Wallet)
	if err != nil {
		return nil, err
	}

	conn := clearing.NewConn(settings.Clearing, sig, log)
	store := channel.NewRecordStore(settings.Channel.DataDir, settings.Channel.RecordSecret)
	stats := clearing.NewLedgerBalanceReader(conn, sig, settings.Channel.Asset)

	manager, err := channel.NewManager(channel.Deps{
		Signer:    sig,
		Chain:     opts.Chain,
		Link:      conn,
		Stats:     stats,
		Store:     store,
		EventSlug: settings.Channel.EventSlug,
		Asset:     settings.Channel.Asset,
		Log:       log,
	})
	if err != nil {
		return nil, err
	}

	return &Service{
		settings: settings,
		log:      log,
		sig:      sig,
		conn:     conn,
		manager:  manager,
		payments: session.NewOrchestrator(conn, sig, manager, settings.Session, log),
	}, nil
}

func buildSigner(w payconfig.Wallet) (signer.Signer, error) {
	switch {
	case w.PrivateKeyHex != "":
		return signer.FromHexKey(w.PrivateKeyHex)
	case w.Mnemonic != "":
		return signer.FromMnemonic(w.Mnemonic, w.Passphrase)
	default:
		return nil, errors.New("wallet is not configured: set CLEARPAY_WALLET_KEY or CLEARPAY_WALLET_MNEMONIC")
	}
}

func (s *Service) ChannelStatus() models.ChannelStatus {
	return s.manager.Status()
}

func (s *Service) EnsureChannel(ctx context.Context) error {
	return s.manager.EnsureChannel(ctx)
}

func (s *Service) RefreshBalance(ctx context.Context) (string, error) {
	return s.manager.RefreshBalance(ctx)
}

func (s *Service) SendPayment(ctx context.Context, payee, asset string, amount decimal.Decimal) (models.PaymentReceipt, error) {
	return s.payments.SendPayment(ctx, payee, asset, amount)
}

func (s *Service) ClearChannel() error {
	return s.manager.Clear()
}

var _ rpc.PaymentService = (*Service)(nil)

const ensureInterval = 5 * time.Second

// Run drives the background channel bring-up: one automatic EnsureChannel per
// pass through the none state. Failed channels wait for an explicit retry via
// the ensure_channel RPC; transport problems inside an open channel are the
// clearing connection's reconnect loop's job, not ours.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(ensureInterval)
	defer ticker.Stop()

	attempted := false
	for {
		select {
		case <-ctx.Done():
			return s.conn.Close()
		case <-ticker.C:
		}

		state := s.manager.State()
		if state != channel.StateNone {
			// clear_channel resets to none and re-arms the automatic attempt.
			attempted = false
			continue
		}
		if attempted {
			continue
		}
		attempted = true

		if err := s.manager.EnsureChannel(ctx); err != nil {
			if fault.IsPrecondition(err) {
				s.log.Warn("automatic channel bring-up skipped", "error", err)
			} else {
				s.log.Error("automatic channel bring-up failed", "error", err)
			}
		}
	}
}
