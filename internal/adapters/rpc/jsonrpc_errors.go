package rpc

import "clearpay/go-backend/internal/fault"

func rpcInvalidParams() *rpcError {
	return &rpcError{Code: -32602, Message: "invalid params"}
}

// mapServiceError keeps the fault taxonomy visible to RPC clients so they can
// distinguish "fix your request" from "retry later".
func mapServiceError(err error) *rpcError {
	code := -32000
	switch fault.KindOf(err) {
	case fault.KindPrecondition:
		code = -32001
	case fault.KindTimeout:
		code = -32002
	case fault.KindTransport:
		code = -32003
	case fault.KindProtocol:
		code = -32004
	case fault.KindOnChain:
		code = -32005
	}
	return &rpcError{Code: code, Message: err.Error()}
}
