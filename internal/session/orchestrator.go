// Package session drives the two-phase app-session protocol that moves a
// fixed amount from payer to payee inside an open settlement channel. The
// open phase allocates the full amount to the payer, the close phase inverts
// the allocation; the clearing service accepts or rejects each phase as a
// unit, so no intermediate state lets both parties claim the same funds.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"clearpay/go-backend/internal/channel"
	"clearpay/go-backend/internal/fault"
	"clearpay/go-backend/internal/signer"
	"clearpay/go-backend/internal/wire"
	"clearpay/go-backend/pkg/models"
)

const (
	DefaultProtocol = "clearpay-rpc/1.0"
	DefaultTimeout  = 10 * time.Second

	PhaseCreated = "created"
	PhaseSettled = "settled"
	PhaseAborted = "aborted"
)

// The payer keeps unilateral control for the session's lifetime: weight 100
// against 0 with a quorum of 100 means the payer's signature alone acts. The
// zero challenge period means settlement finality rests on the clearing
// service; there is no on-chain dispute window for these ephemeral sessions.
var (
	sessionWeights = []int64{100, 0}
	sessionQuorum  = uint64(100)
)

var paymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "clearpay_payments_total",
	Help: "Payment attempts by final phase.",
}, []string{"phase"})

// Caller is the slice of the clearing connection the orchestrator needs.
type Caller interface {
	Call(ctx context.Context, req wire.SignedRequest, timeout time.Duration) (wire.Inbound, error)
	IsConnected() bool
}

// ChannelView exposes the lifecycle state the orchestrator gates on.
type ChannelView interface {
	State() string
}

type Config struct {
	Protocol string        `yaml:"protocol"`
	Timeout  time.Duration `yaml:"timeout"`
}

type Orchestrator struct {
	conn Caller
	sig  signer.Signer
	ch   ChannelView
	cfg  Config
	log  *slog.Logger
}

func NewOrchestrator(conn Caller, sig signer.Signer, ch ChannelView, cfg Config, log *slog.Logger) *Orchestrator {
	if cfg.Protocol == "" {
		cfg.Protocol = DefaultProtocol
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{conn: conn, sig: sig, ch: ch, cfg: cfg, log: log}
}

// SendPayment moves amount of asset from the wallet to payee. Any transport
// error, timeout, or malformed acknowledgment aborts the whole payment; the
// caller decides whether to retry with a fresh session. The channel itself
// stays open regardless of the outcome.
func (o *Orchestrator) SendPayment(ctx context.Context, payee, asset string, amount decimal.Decimal) (models.PaymentReceipt, error) {
	const op = "session.send_payment"

	if o.sig == nil {
		return models.PaymentReceipt{}, fault.New(fault.KindPrecondition, op, "wallet signer is not available")
	}
	payer := o.sig.Address()
	if o.ch == nil || o.ch.State() != channel.StateOpen {
		return models.PaymentReceipt{}, fault.New(fault.KindPrecondition, op, "settlement channel is not open")
	}
	if !o.conn.IsConnected() {
		return models.PaymentReceipt{}, fault.New(fault.KindPrecondition, op, "clearing connection is not established")
	}
	if !amount.IsPositive() {
		return models.PaymentReceipt{}, fault.Newf(fault.KindPrecondition, op, "amount must be positive, got %s", amount)
	}
	if payee == "" || models.NormalizeAddress(payee) == models.NormalizeAddress(payer) {
		return models.PaymentReceipt{}, fault.New(fault.KindPrecondition, op, "payee must be a distinct participant")
	}

	phase := PhaseCreated
	defer func() { paymentsTotal.WithLabelValues(phase).Inc() }()

	sessionID, err := o.openPhase(ctx, payer, payee, asset, amount)
	if err != nil {
		phase = PhaseAborted
		return models.PaymentReceipt{}, err
	}

	if err := o.closePhase(ctx, sessionID, payer, payee, asset, amount); err != nil {
		phase = PhaseAborted
		return models.PaymentReceipt{}, err
	}
	phase = PhaseSettled

	receipt := models.PaymentReceipt{
		Success:   true,
		SessionID: sessionID,
		Payee:     payee,
		Asset:     asset,
		Amount:    amount.String(),
		Timestamp: time.Now().UTC(),
	}
	o.log.Info("payment settled", "session_id", sessionID, "payee", payee, "asset", asset, "amount", amount.String())
	return receipt, nil
}

// openPhase creates the app session with the full amount still allocated to
// the payer. Nothing has moved yet if this phase fails.
func (o *Orchestrator) openPhase(ctx context.Context, payer, payee, asset string, amount decimal.Decimal) (string, error) {
	const op = "session.open"

	def := models.SessionDefinition{
		Protocol:     o.cfg.Protocol,
		Participants: []string{payer, payee},
		Weights:      sessionWeights,
		Quorum:       sessionQuorum,
		Challenge:    0,
		Nonce:        wire.NextNonce(),
	}
	allocations := []models.Allocation{
		{Participant: payer, Asset: asset, Amount: amount},
		{Participant: payee, Asset: asset, Amount: decimal.Zero},
	}

	req, err := wire.EncodeCreateSession(def, allocations, o.sig.Sign)
	if err != nil {
		return "", fault.Wrap(fault.KindProtocol, op, err)
	}
	in, err := o.conn.Call(ctx, req, o.cfg.Timeout)
	if err != nil {
		return "", err
	}

	switch resp := in.(type) {
	case wire.CreateSessionAck:
		if resp.SessionID == "" {
			return "", fault.New(fault.KindProtocol, op, "create acknowledgment is missing the session id")
		}
		return resp.SessionID, nil
	case wire.ErrorFrame:
		return "", fault.Newf(fault.KindProtocol, op, "session rejected: %s", resp.Message)
	default:
		return "", fault.Newf(fault.KindProtocol, op, "unexpected response %T", in)
	}
}

// closePhase inverts the allocation and is the only point at which the
// payment settles.
func (o *Orchestrator) closePhase(ctx context.Context, sessionID, payer, payee, asset string, amount decimal.Decimal) error {
	const op = "session.close"

	final := []models.Allocation{
		{Participant: payer, Asset: asset, Amount: decimal.Zero},
		{Participant: payee, Asset: asset, Amount: amount},
	}
	req, err := wire.EncodeCloseSession(sessionID, final, o.sig.Sign)
	if err != nil {
		return fault.Wrap(fault.KindProtocol, op, err)
	}
	in, err := o.conn.Call(ctx, req, o.cfg.Timeout)
	if err != nil {
		return err
	}

	switch resp := in.(type) {
	case wire.CloseSessionAck:
		return nil
	case wire.ErrorFrame:
		return fault.Newf(fault.KindProtocol, op, "close rejected: %s", resp.Message)
	default:
		return fault.Newf(fault.KindProtocol, op, "unexpected response %T", resp)
	}
}
