package clearing

import (
	"context"
	"strings"

	"clearpay/go-backend/internal/fault"
	"clearpay/go-backend/internal/signer"
	"clearpay/go-backend/internal/wire"
)

// LedgerBalanceReader hydrates off-chain balances from the clearing service's
// participant-stats read model over the shared connection.
type LedgerBalanceReader struct {
	conn  *Conn
	sig   signer.Signer
	asset string
}

func NewLedgerBalanceReader(conn *Conn, sig signer.Signer, asset string) *LedgerBalanceReader {
	return &LedgerBalanceReader{conn: conn, sig: sig, asset: strings.ToLower(strings.TrimSpace(asset))}
}

// Balance returns the participant's balance for the configured asset as a
// decimal string. A participant unknown to the ledger reads as "0".
func (r *LedgerBalanceReader) Balance(ctx context.Context, owner string) (string, error) {
	req, err := wire.EncodeLedgerBalances(owner, r.sig.Sign)
	if err != nil {
		return "", fault.Wrap(fault.KindProtocol, "clearing.balance", err)
	}
	in, err := r.conn.Call(ctx, req, 0)
	if err != nil {
		return "", err
	}
	switch res := in.(type) {
	case wire.BalanceResult:
		for _, b := range res.Balances {
			if strings.ToLower(b.Asset) == r.asset {
				return b.Amount, nil
			}
		}
		return "0", nil
	case wire.ErrorFrame:
		return "", fault.Newf(fault.KindProtocol, "clearing.balance", "balance query rejected: %s", res.Message)
	default:
		return "", fault.Newf(fault.KindProtocol, "clearing.balance", "unexpected response %T", in)
	}
}
