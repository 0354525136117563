package wire

import (
	"encoding/json"
	"errors"

	"clearpay/go-backend/pkg/models"
)

// ErrMalformed marks frames that are not parseable structured data. It is a
// transport-level condition, not a protocol rejection by the clearing service.
var ErrMalformed = errors.New("malformed clearing frame")

// Inbound is one decoded frame from the clearing service.
type Inbound interface {
	CorrelationID() uint64
}

type AuthAck struct {
	RequestID uint64
}

type CreateSessionAck struct {
	RequestID uint64
	SessionID string
	Version   uint64
	Status    string
}

type CloseSessionAck struct {
	RequestID uint64
	SessionID string
	Status    string
}

type BalanceResult struct {
	RequestID uint64
	Balances  []models.AssetBalance
}

// ErrorFrame is an explicit rejection from the clearing service.
type ErrorFrame struct {
	RequestID uint64
	Message   string
}

// Unrecognized carries frames of methods this core does not consume, so the
// correlator can still fail the matching request instead of timing it out.
type Unrecognized struct {
	RequestID uint64
	Method    string
	Result    json.RawMessage
}

func (a AuthAck) CorrelationID() uint64          { return a.RequestID }
func (a CreateSessionAck) CorrelationID() uint64 { return a.RequestID }
func (a CloseSessionAck) CorrelationID() uint64  { return a.RequestID }
func (b BalanceResult) CorrelationID() uint64    { return b.RequestID }
func (e ErrorFrame) CorrelationID() uint64       { return e.RequestID }
func (u Unrecognized) CorrelationID() uint64     { return u.RequestID }

type sessionAckResult struct {
	AppSessionID string `json:"app_session_id"`
	Version      uint64 `json:"version"`
	Status       string `json:"status"`
}

type errorResult struct {
	Error string `json:"error"`
}

type balancesResult struct {
	LedgerBalances []models.AssetBalance `json:"ledger_balances"`
}

// Decode parses one inbound frame into its discriminated form. Unparseable
// input yields ErrMalformed; unknown methods decode to Unrecognized.
func Decode(raw []byte) (Inbound, error) {
	var frame struct {
		Res []json.RawMessage `json:"res"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil || len(frame.Res) != 4 {
		return nil, ErrMalformed
	}

	var id uint64
	if err := json.Unmarshal(frame.Res[0], &id); err != nil {
		return nil, ErrMalformed
	}
	var method string
	if err := json.Unmarshal(frame.Res[1], &method); err != nil {
		return nil, ErrMalformed
	}
	result := frame.Res[2]

	switch method {
	case MethodAuthRequest:
		return AuthAck{RequestID: id}, nil

	case MethodCreateSession:
		var res sessionAckResult
		if err := json.Unmarshal(result, &res); err != nil {
			return nil, ErrMalformed
		}
		return CreateSessionAck{RequestID: id, SessionID: res.AppSessionID, Version: res.Version, Status: res.Status}, nil

	case MethodCloseSession:
		var res sessionAckResult
		if err := json.Unmarshal(result, &res); err != nil {
			return nil, ErrMalformed
		}
		return CloseSessionAck{RequestID: id, SessionID: res.AppSessionID, Status: res.Status}, nil

	case MethodLedgerBalances:
		var res balancesResult
		if err := json.Unmarshal(result, &res); err != nil {
			return nil, ErrMalformed
		}
		return BalanceResult{RequestID: id, Balances: res.LedgerBalances}, nil

	case methodError:
		var res errorResult
		if err := json.Unmarshal(result, &res); err != nil || res.Error == "" {
			res.Error = "clearing service rejected the request"
		}
		return ErrorFrame{RequestID: id, Message: res.Error}, nil

	default:
		return Unrecognized{RequestID: id, Method: method, Result: result}, nil
	}
}
