// Package wire builds and parses the signed frames exchanged with the
// clearing service. Outbound frames are {"req":[id,method,params,ts],"sig":[...]}
// where the signature covers the serialized req payload; inbound frames are
// {"res":[id,method,result,ts]}. Transforms are pure apart from the signature
// callback and timestamping.
package wire

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"clearpay/go-backend/pkg/models"
)

const (
	MethodAuthRequest    = "auth_request"
	MethodCreateSession  = "create_app_session"
	MethodCloseSession   = "close_app_session"
	MethodLedgerBalances = "get_ledger_balances"

	methodError = "error"
)

// SignFn produces a detached signature over a serialized request payload.
type SignFn func(payload []byte) ([]byte, error)

// SignedRequest is a ready-to-transmit frame plus the correlation id the
// sender embedded in it.
type SignedRequest struct {
	ID     uint64
	Method string
	Frame  []byte
}

type requestEnvelope struct {
	Req json.RawMessage `json:"req"`
	Sig []string        `json:"sig"`
}

type createSessionParams struct {
	Definition  models.SessionDefinition `json:"definition"`
	Allocations []models.Allocation      `json:"allocations"`
}

type closeSessionParams struct {
	AppSessionID string              `json:"app_session_id"`
	Allocations  []models.Allocation `json:"allocations"`
}

type ledgerBalancesParams struct {
	Participant string `json:"participant"`
}

// NewRequestID returns a random correlation id. Random ids keep concurrent
// requests of the same method from ever sharing a correlator slot.
func NewRequestID() uint64 {
	id := uuid.New()
	return binary.BigEndian.Uint64(id[:8])
}

var lastNonce atomic.Uint64

// NextNonce returns a wall-clock-derived nonce that is strictly increasing
// within this process, so replayed creation payloads are rejected server-side.
func NextNonce() uint64 {
	for {
		prev := lastNonce.Load()
		next := uint64(time.Now().UnixMicro())
		if next <= prev {
			next = prev + 1
		}
		if lastNonce.CompareAndSwap(prev, next) {
			return next
		}
	}
}

func EncodeAuthRequest(address string, sign SignFn) (SignedRequest, error) {
	if address == "" {
		return SignedRequest{}, errors.New("address is required")
	}
	return encodeRequest(MethodAuthRequest, []string{address}, sign)
}

func EncodeCreateSession(def models.SessionDefinition, allocations []models.Allocation, sign SignFn) (SignedRequest, error) {
	if len(def.Participants) < 2 {
		return SignedRequest{}, errors.New("session definition needs at least two participants")
	}
	if len(def.Weights) != len(def.Participants) {
		return SignedRequest{}, errors.New("weights must match participants")
	}
	if def.Nonce == 0 {
		return SignedRequest{}, errors.New("nonce is required")
	}
	params := []createSessionParams{{Definition: def, Allocations: allocations}}
	return encodeRequest(MethodCreateSession, params, sign)
}

func EncodeCloseSession(sessionID string, finalAllocations []models.Allocation, sign SignFn) (SignedRequest, error) {
	if sessionID == "" {
		return SignedRequest{}, errors.New("session id is required")
	}
	if len(finalAllocations) == 0 {
		return SignedRequest{}, errors.New("final allocations are required")
	}
	params := []closeSessionParams{{AppSessionID: sessionID, Allocations: finalAllocations}}
	return encodeRequest(MethodCloseSession, params, sign)
}

func EncodeLedgerBalances(participant string, sign SignFn) (SignedRequest, error) {
	if participant == "" {
		return SignedRequest{}, errors.New("participant is required")
	}
	params := []ledgerBalancesParams{{Participant: participant}}
	return encodeRequest(MethodLedgerBalances, params, sign)
}

func encodeRequest(method string, params any, sign SignFn) (SignedRequest, error) {
	if sign == nil {
		return SignedRequest{}, errors.New("signer is required")
	}
	id := NewRequestID()
	payload, err := json.Marshal([]any{id, method, params, uint64(time.Now().UnixMilli())})
	if err != nil {
		return SignedRequest{}, err
	}
	sig, err := sign(payload)
	if err != nil {
		return SignedRequest{}, err
	}
	env := requestEnvelope{
		Req: payload,
		Sig: []string{"0x" + hex.EncodeToString(sig)},
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return SignedRequest{}, err
	}
	return SignedRequest{ID: id, Method: method, Frame: frame}, nil
}
