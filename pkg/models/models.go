package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Allocation maps an asset amount to one participant at a protocol phase.
type Allocation struct {
	Participant string          `json:"participant"`
	Asset       string          `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
}

// SessionDefinition describes an ephemeral app session to the clearing service.
type SessionDefinition struct {
	Protocol     string   `json:"protocol"`
	Participants []string `json:"participants"`
	Weights      []int64  `json:"weights"`
	Quorum       uint64   `json:"quorum"`
	Challenge    uint64   `json:"challenge"`
	Nonce        uint64   `json:"nonce"`
}

// PaymentReceipt is returned to the caller once a payment has settled.
type PaymentReceipt struct {
	Success   bool      `json:"success"`
	SessionID string    `json:"session_id"`
	Payee     string    `json:"payee"`
	Asset     string    `json:"asset"`
	Amount    string    `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// AssetBalance is one entry of the off-chain ledger read model.
type AssetBalance struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// ChannelStatus is the lifecycle view exposed to host applications.
type ChannelStatus struct {
	State           string `json:"state"`
	ChannelID       string `json:"channel_id,omitempty"`
	OwnerAddress    string `json:"owner_address,omitempty"`
	OffchainBalance string `json:"offchain_balance,omitempty"`
	LastError       string `json:"last_error,omitempty"`
}

// NormalizeAddress lowercases a hex address for map keys and comparisons.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
