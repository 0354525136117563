package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"clearpay/go-backend/internal/fault"
	"clearpay/go-backend/pkg/models"
)

type fakeService struct {
	status     models.ChannelStatus
	ensureErr  error
	balance    string
	balanceErr error
	receipt    models.PaymentReceipt
	payErr     error
	cleared    bool

	lastPayee  string
	lastAmount decimal.Decimal
}

func (f *fakeService) ChannelStatus() models.ChannelStatus     { return f.status }
func (f *fakeService) EnsureChannel(ctx context.Context) error { return f.ensureErr }
func (f *fakeService) ClearChannel() error                     { f.cleared = true; return nil }

func (f *fakeService) RefreshBalance(ctx context.Context) (string, error) {
	return f.balance, f.balanceErr
}

func (f *fakeService) SendPayment(ctx context.Context, payee, asset string, amount decimal.Decimal) (models.PaymentReceipt, error) {
	f.lastPayee = payee
	f.lastAmount = amount
	return f.receipt, f.payErr
}

func postRPC(t *testing.T, s *Server, body string, headers map[string]string) rpcResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected http status %d: %s", rec.Code, rec.Body.String())
	}
	var resp rpcResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unparseable response: %v", err)
	}
	return resp
}

func TestChannelStatus(t *testing.T) {
	svc := &fakeService{status: models.ChannelStatus{State: "open", ChannelID: "ch_1", OffchainBalance: "10"}}
	s := NewServer("", svc, "", nil)

	resp := postRPC(t, s, `{"jsonrpc":"2.0","id":1,"method":"channel_status"}`, nil)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	result, _ := json.Marshal(resp.Result)
	var status models.ChannelStatus
	if err := json.Unmarshal(result, &status); err != nil {
		t.Fatalf("bad result shape: %v", err)
	}
	if status.State != "open" || status.ChannelID != "ch_1" {
		t.Fatalf("bad status: %+v", status)
	}
}

func TestSendPayment(t *testing.T) {
	svc := &fakeService{receipt: models.PaymentReceipt{Success: true, SessionID: "sess_1"}}
	s := NewServer("", svc, "", nil)

	resp := postRPC(t, s, `{"jsonrpc":"2.0","id":2,"method":"send_payment","params":{"payee":"0xPayee","asset":"usdc","amount":"12.50"}}`, nil)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if svc.lastPayee != "0xPayee" || !svc.lastAmount.Equal(decimal.RequireFromString("12.50")) {
		t.Fatalf("params not forwarded: payee=%q amount=%s", svc.lastPayee, svc.lastAmount)
	}
}

func TestSendPaymentInvalidParams(t *testing.T) {
	s := NewServer("", &fakeService{}, "", nil)
	cases := []string{
		`{"jsonrpc":"2.0","id":1,"method":"send_payment"}`,
		`{"jsonrpc":"2.0","id":1,"method":"send_payment","params":{"payee":"0xPayee","asset":"usdc"}}`,
		`{"jsonrpc":"2.0","id":1,"method":"send_payment","params":{"payee":"0xPayee","asset":"usdc","amount":"a lot"}}`,
	}
	for _, body := range cases {
		resp := postRPC(t, s, body, nil)
		if resp.Error == nil || resp.Error.Code != -32602 {
			t.Fatalf("expected invalid params for %s, got %+v", body, resp.Error)
		}
	}
}

func TestServiceErrorMapping(t *testing.T) {
	cases := []struct {
		kind fault.Kind
		code int
	}{
		{fault.KindPrecondition, -32001},
		{fault.KindTimeout, -32002},
		{fault.KindTransport, -32003},
		{fault.KindProtocol, -32004},
		{fault.KindOnChain, -32005},
		{fault.KindUnknown, -32000},
	}
	for _, tc := range cases {
		svc := &fakeService{payErr: fault.New(tc.kind, "session.send_payment", "boom")}
		s := NewServer("", svc, "", nil)
		resp := postRPC(t, s, `{"jsonrpc":"2.0","id":1,"method":"send_payment","params":{"payee":"0xPayee","asset":"usdc","amount":"1"}}`, nil)
		if resp.Error == nil || resp.Error.Code != tc.code {
			t.Fatalf("kind %s: expected code %d, got %+v", tc.kind, tc.code, resp.Error)
		}
	}
}

func TestEnsureChannelReturnsStatus(t *testing.T) {
	svc := &fakeService{status: models.ChannelStatus{State: "open"}}
	s := NewServer("", svc, "", nil)
	resp := postRPC(t, s, `{"jsonrpc":"2.0","id":1,"method":"ensure_channel"}`, nil)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
}

func TestClearChannel(t *testing.T) {
	svc := &fakeService{}
	s := NewServer("", svc, "", nil)
	if resp := postRPC(t, s, `{"jsonrpc":"2.0","id":1,"method":"clear_channel"}`, nil); resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if !svc.cleared {
		t.Fatal("clear_channel must reach the service")
	}
}

func TestRefreshBalance(t *testing.T) {
	svc := &fakeService{balance: "42.1"}
	s := NewServer("", svc, "", nil)
	resp := postRPC(t, s, `{"jsonrpc":"2.0","id":1,"method":"refresh_balance"}`, nil)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	result, _ := json.Marshal(resp.Result)
	if string(result) != `{"balance":"42.1"}` {
		t.Fatalf("bad result: %s", result)
	}
}

func TestMethodNotFound(t *testing.T) {
	s := NewServer("", &fakeService{}, "", nil)
	resp := postRPC(t, s, `{"jsonrpc":"2.0","id":1,"method":"does_not_exist"}`, nil)
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("expected method not found, got %+v", resp.Error)
	}
}

func TestMalformedRequests(t *testing.T) {
	s := NewServer("", &fakeService{}, "", nil)

	resp := postRPC(t, s, `{not json`, nil)
	if resp.Error == nil || resp.Error.Code != -32700 {
		t.Fatalf("expected parse error, got %+v", resp.Error)
	}

	resp = postRPC(t, s, `{"jsonrpc":"1.0","id":1,"method":"channel_status"}`, nil)
	if resp.Error == nil || resp.Error.Code != -32600 {
		t.Fatalf("expected invalid request, got %+v", resp.Error)
	}
}

func TestBearerTokenRequired(t *testing.T) {
	s := NewServer("", &fakeService{}, "sekret", nil)

	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"channel_status"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	resp := postRPC(t, s, `{"jsonrpc":"2.0","id":1,"method":"channel_status"}`, map[string]string{"Authorization": "Bearer sekret"})
	if resp.Error != nil {
		t.Fatalf("valid token rejected: %+v", resp.Error)
	}
}

func TestHealthz(t *testing.T) {
	s := NewServer("", &fakeService{}, "", nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("bad health response: %d %s", rec.Code, rec.Body.String())
	}
}

func TestGetOnRPCRejected(t *testing.T) {
	s := NewServer("", &fakeService{}, "", nil)
	req := httptest.NewRequest(http.MethodGet, "/rpc", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET /rpc, got %d", rec.Code)
	}
}
