// Package channel tracks the lifecycle of the bilateral settlement channel:
// none -> pending -> connecting -> open, with failed reachable from every
// active state. Only this package mutates the persisted ChannelRecord.
package channel

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"clearpay/go-backend/internal/fault"
	"clearpay/go-backend/internal/signer"
	"clearpay/go-backend/pkg/models"
)

const (
	StateNone       = "none"
	StatePending    = "pending"
	StateConnecting = "connecting"
	StateOpen       = "open"
	StateFailed     = "failed"
)

var stateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "clearpay_channel_state_transitions_total",
	Help: "Channel lifecycle transitions by target state.",
}, []string{"state"})

// Record is the durable view of one settlement channel.
type Record struct {
	ChannelID         string `json:"channel_id"`
	OwnerAddress      string `json:"owner_address"`
	State             string `json:"state"`
	LatestSignedState []byte `json:"latest_signed_state"`
	OffchainBalance   string `json:"offchain_balance"`
}

// ChainChannel is the on-chain client's answer to a channel creation.
type ChainChannel struct {
	ChannelID    string
	InitialState []byte
}

// ChainClient is the external on-chain channel-management collaborator. Its
// result is authoritative and is not re-verified here.
type ChainClient interface {
	CreateChannel(ctx context.Context, initialAllocations []models.Allocation, stateData []byte) (ChainChannel, error)
}

// BalanceReader is the participant-stats read model for off-chain balances.
type BalanceReader interface {
	Balance(ctx context.Context, owner string) (string, error)
}

// ClearingLink is the slice of the clearing connection the manager needs.
type ClearingLink interface {
	Connect(ctx context.Context) error
	IsConnected() bool
}

type Deps struct {
	Signer     signer.Signer
	Chain      ChainClient
	Link       ClearingLink
	Stats      BalanceReader
	Store      *RecordStore
	EventSlug  string
	RecordKind string
	Asset      string
	Log        *slog.Logger
}

type Manager struct {
	d Deps

	mu      sync.Mutex
	rec     Record
	lastErr string

	// Single-flight guard: one in-flight creation attempt at most; concurrent
	// EnsureChannel callers share its outcome.
	inflight *attempt
}

type attempt struct {
	done chan struct{}
	err  error
}

func NewManager(d Deps) (*Manager, error) {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.RecordKind == "" {
		d.RecordKind = "settlement"
	}
	m := &Manager{d: d, rec: Record{State: StateNone}}
	if d.Signer != nil {
		m.rec.OwnerAddress = d.Signer.Address()
	}

	if d.Store != nil && d.Signer != nil {
		rec, ok, err := d.Store.Load(d.Signer.Address(), d.EventSlug, d.RecordKind)
		if err != nil {
			return nil, err
		}
		if ok {
			// A crash mid-creation leaves pending/connecting on disk with an
			// unknown on-chain outcome; demote to failed so the owner retries
			// explicitly instead of racing a duplicate creation.
			if rec.State == StatePending || rec.State == StateConnecting {
				rec.State = StateFailed
			}
			m.rec = rec
		}
	}
	return m, nil
}

func (m *Manager) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec.State
}

// Record returns a copy of the current channel record.
func (m *Manager) Record() Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec
}

func (m *Manager) Status() models.ChannelStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.ChannelStatus{
		State:           m.rec.State,
		ChannelID:       m.rec.ChannelID,
		OwnerAddress:    m.rec.OwnerAddress,
		OffchainBalance: m.rec.OffchainBalance,
		LastError:       m.lastErr,
	}
}

// InitializeChannel creates a fresh settlement channel. Valid only from none
// or failed; the channel opens empty (zero allocations on both sides) and
// failures park the record in failed until the owner retries explicitly.
func (m *Manager) InitializeChannel(ctx context.Context) error {
	if err := m.begin(); err != nil {
		return err
	}
	err := m.create(ctx)
	if err != nil {
		m.fail(err)
		return err
	}
	return nil
}

// EnsureChannel is the idempotent entry point for host control loops: a no-op
// when open, an attached wait when a creation is already in flight, and a
// fresh InitializeChannel otherwise.
func (m *Manager) EnsureChannel(ctx context.Context) error {
	for {
		m.mu.Lock()
		if m.rec.State == StateOpen {
			m.mu.Unlock()
			return nil
		}
		a := m.inflight
		m.mu.Unlock()

		if a != nil {
			select {
			case <-a.done:
				return a.err
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := m.InitializeChannel(ctx)
		if err != nil && fault.IsPrecondition(err) && m.inflightActive() {
			// Lost the start race to a concurrent caller; attach to theirs.
			continue
		}
		return err
	}
}

func (m *Manager) inflightActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight != nil
}

func (m *Manager) begin() error {
	const op = "channel.initialize"
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.d.Signer == nil {
		return fault.New(fault.KindPrecondition, op, "wallet signer is not available")
	}
	if m.d.Chain == nil {
		return fault.New(fault.KindPrecondition, op, "on-chain channel client is not available")
	}
	if m.d.Link == nil {
		return fault.New(fault.KindPrecondition, op, "clearing connection is not available")
	}
	switch m.rec.State {
	case StateNone, StateFailed:
	default:
		return fault.Newf(fault.KindPrecondition, op, "channel already %s", m.rec.State)
	}
	if m.inflight != nil {
		return fault.New(fault.KindPrecondition, op, "channel creation already in flight")
	}

	m.inflight = &attempt{done: make(chan struct{})}
	m.transitionLocked(StatePending)
	m.persistLocked()
	return nil
}

func (m *Manager) create(ctx context.Context) error {
	if !m.d.Link.IsConnected() {
		if err := m.d.Link.Connect(ctx); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.transitionLocked(StateConnecting)
	m.persistLocked()
	owner := m.rec.OwnerAddress
	m.mu.Unlock()

	initial := []models.Allocation{{Participant: owner, Asset: m.d.Asset, Amount: decimal.Zero}}
	created, err := m.d.Chain.CreateChannel(ctx, initial, nil)
	if err != nil {
		return fault.Wrap(fault.KindOnChain, "channel.create", err)
	}

	m.mu.Lock()
	m.rec.ChannelID = created.ChannelID
	m.rec.LatestSignedState = created.InitialState
	m.transitionLocked(StateOpen)
	m.persistLocked()
	m.lastErr = ""
	m.finishLocked(nil)
	m.mu.Unlock()

	m.d.Log.Info("settlement channel open", "channel_id", created.ChannelID, "owner", owner)
	return nil
}

func (m *Manager) fail(err error) {
	m.mu.Lock()
	m.transitionLocked(StateFailed)
	m.lastErr = err.Error()
	m.persistLocked()
	m.finishLocked(err)
	m.mu.Unlock()
	m.d.Log.Error("channel initialization failed", "error", err)
}

func (m *Manager) finishLocked(err error) {
	if m.inflight != nil {
		m.inflight.err = err
		close(m.inflight.done)
		m.inflight = nil
	}
}

// RefreshBalance re-reads the authoritative off-chain balance. Valid only
// while open; on failure the previous balance stays in place.
func (m *Manager) RefreshBalance(ctx context.Context) (string, error) {
	const op = "channel.refresh_balance"
	m.mu.Lock()
	if m.rec.State != StateOpen {
		state := m.rec.State
		m.mu.Unlock()
		return "", fault.Newf(fault.KindPrecondition, op, "channel is %s, not open", state)
	}
	if m.d.Stats == nil {
		m.mu.Unlock()
		return "", fault.New(fault.KindPrecondition, op, "participant stats reader is not available")
	}
	owner := m.rec.OwnerAddress
	m.mu.Unlock()

	balance, err := m.d.Stats.Balance(ctx, owner)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.rec.OffchainBalance = balance
	m.persistLocked()
	m.mu.Unlock()
	return balance, nil
}

// Clear erases the persisted record and resets to none. Valid in any state.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.d.Store != nil {
		if err := m.d.Store.Delete(m.rec.OwnerAddress, m.d.EventSlug, m.d.RecordKind); err != nil {
			return err
		}
	}
	owner := m.rec.OwnerAddress
	m.rec = Record{State: StateNone, OwnerAddress: owner}
	m.lastErr = ""
	stateTransitions.WithLabelValues(StateNone).Inc()
	return nil
}

func (m *Manager) transitionLocked(next string) {
	if m.rec.State == next {
		return
	}
	m.rec.State = next
	stateTransitions.WithLabelValues(next).Inc()
}

func (m *Manager) persistLocked() {
	if m.d.Store == nil {
		return
	}
	if err := m.d.Store.Save(m.rec.OwnerAddress, m.d.EventSlug, m.d.RecordKind, m.rec); err != nil {
		m.d.Log.Error("failed to persist channel record", "error", err)
	}
}
