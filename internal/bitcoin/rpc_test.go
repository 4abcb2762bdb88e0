package bitcoin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"go.uber.org/zap"
)

const testURL = "http://127.0.0.1:18443"

func newTestClient(t *testing.T, cfg Config) (*RPCClient, *httpmock.MockTransport) {
	t.Helper()
	if cfg.URL == "" {
		cfg.URL = testURL
	}
	c := NewRPCClient(cfg, zap.NewNop())
	mt := httpmock.NewMockTransport()
	c.client.Transport = mt
	return c, mt
}

// rpcResponder decodes the request, hands it to check, and replies with
// result or rpcErr.
func rpcResponder(t *testing.T, check func(req RPCRequest), result interface{}, rpcErr *RPCError) httpmock.Responder {
	return func(r *http.Request) (*http.Response, error) {
		var req RPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "user" || pass != "pass" {
			t.Errorf("basic auth = %q/%q, %v", user, pass, ok)
		}
		if check != nil {
			check(req)
		}
		raw, _ := json.Marshal(result)
		resp := map[string]interface{}{"result": json.RawMessage(raw), "error": rpcErr, "id": req.ID}
		status := http.StatusOK
		if rpcErr != nil {
			status = http.StatusInternalServerError
		}
		return httpmock.NewJsonResponse(status, resp)
	}
}

func TestRPCClient_GetBlockCount(t *testing.T) {
	c, mt := newTestClient(t, DefaultConfig())
	mt.RegisterResponder("POST", testURL, rpcResponder(t, func(req RPCRequest) {
		if req.Method != "getblockcount" || len(req.Params) != 0 {
			t.Errorf("request = %+v", req)
		}
		if req.JSONRPC != "1.0" {
			t.Errorf("jsonrpc = %q", req.JSONRPC)
		}
	}, 101, nil))

	height, err := c.GetBlockCount(context.Background())
	if err != nil {
		t.Fatalf("GetBlockCount: %v", err)
	}
	if height != 101 {
		t.Errorf("height = %d, want 101", height)
	}
}

func TestRPCClient_ScanTxOutSet(t *testing.T) {
	c, mt := newTestClient(t, DefaultConfig())
	body := `{"result":{"success":true,"txouts":9,"height":102,"bestblock":"00ab",
		"unspents":[{"txid":"9f96ade4b41d5433f4eda31e1738ec2b36f6e7d1420d94a6af99801a88f7f7ff","vout":0,
		"scriptPubKey":"0014751e76e8199196d454941c45d1b3a323f1433bd6","desc":"addr(x)#y",
		"amount":49.99999000,"coinbase":false,"height":102}],
		"total_amount":49.99999000},"error":null,"id":1}`
	mt.RegisterResponder("POST", testURL, func(r *http.Request) (*http.Response, error) {
		var req RPCRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Method != "scantxoutset" || req.Params[0] != "start" {
			t.Errorf("request = %+v", req)
		}
		descs, _ := req.Params[1].([]interface{})
		if len(descs) != 1 || descs[0] != "addr(bcrt1qtest)" {
			t.Errorf("descriptors = %v", req.Params[1])
		}
		return httpmock.NewStringResponse(200, body), nil
	})

	res, err := c.ScanTxOutSet(context.Background(), []string{"addr(bcrt1qtest)"})
	if err != nil {
		t.Fatalf("ScanTxOutSet: %v", err)
	}
	if len(res.Unspents) != 1 {
		t.Fatalf("got %d unspents", len(res.Unspents))
	}
	u := res.Unspents[0]
	sats, err := BTCToSats(u.Amount)
	if err != nil {
		t.Fatalf("BTCToSats: %v", err)
	}
	if sats != 4_999_999_000 {
		t.Errorf("amount = %d sats, want 4999999000", sats)
	}
	if u.Amount.String() != "49.99999000" {
		t.Errorf("amount text = %s, want the node's decimal verbatim", u.Amount)
	}
}

func TestRPCClient_ScanTxOutSet_EmptyIsNonNil(t *testing.T) {
	c, mt := newTestClient(t, DefaultConfig())
	mt.RegisterResponder("POST", testURL, httpmock.NewStringResponder(200,
		`{"result":{"success":true,"txouts":9,"height":1,"unspents":[],"total_amount":0.00000000},"error":null,"id":1}`))

	res, err := c.ScanTxOutSet(context.Background(), []string{"addr(x)"})
	if err != nil {
		t.Fatalf("ScanTxOutSet: %v", err)
	}
	if res.Unspents == nil || len(res.Unspents) != 0 {
		t.Errorf("unspents = %#v, want empty non-nil", res.Unspents)
	}
}

func TestRPCClient_SendRawTransaction(t *testing.T) {
	tests := []struct {
		name         string
		rpcErr       *RPCError
		wantRejected bool
	}{
		{"accepted", nil, false},
		{"verify error", &RPCError{Code: -25, Message: "bad-txns-inputs-missingorspent"}, true},
		{"policy rejection", &RPCError{Code: -26, Message: "min relay fee not met"}, true},
		{"already in chain", &RPCError{Code: -27, Message: "Transaction already in block chain"}, true},
		{"decode failure", &RPCError{Code: -22, Message: "TX decode failed"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, mt := newTestClient(t, DefaultConfig())
			mt.RegisterResponder("POST", testURL, rpcResponder(t, func(req RPCRequest) {
				if req.Method != "sendrawtransaction" || req.Params[0] != "0200" {
					t.Errorf("request = %+v", req)
				}
			}, "ab", tt.rpcErr))

			txid, err := c.SendRawTransaction(context.Background(), "0200")
			var rejected *BroadcastRejectedError
			isRejected := errors.As(err, &rejected)
			if isRejected != tt.wantRejected {
				t.Fatalf("err = %v, rejected = %v, want %v", err, isRejected, tt.wantRejected)
			}
			switch {
			case tt.rpcErr == nil:
				if err != nil || txid != "ab" {
					t.Errorf("txid = %q, err = %v", txid, err)
				}
			case isRejected:
				if rejected.Code != tt.rpcErr.Code || rejected.Reason != tt.rpcErr.Message {
					t.Errorf("rejection = %+v, want node reason verbatim", rejected)
				}
			default:
				if !IsRPCErrorCode(err, tt.rpcErr.Code) {
					t.Errorf("err = %v, want wrapped RPC error %d", err, tt.rpcErr.Code)
				}
			}
		})
	}
}

func TestRPCClient_EstimateSmartFee(t *testing.T) {
	c, mt := newTestClient(t, DefaultConfig())
	mt.RegisterResponder("POST", testURL, httpmock.NewStringResponder(200,
		`{"result":{"errors":["Insufficient data or no feerate found"],"blocks":0},"error":null,"id":1}`))

	est, err := c.EstimateSmartFee(context.Background(), 6, "economical")
	if err != nil {
		t.Fatalf("EstimateSmartFee: %v", err)
	}
	if est.FeeRate != "" || len(est.Errors) != 1 {
		t.Errorf("estimate = %+v", est)
	}
}

func TestRPCClient_GetBlock(t *testing.T) {
	c, mt := newTestClient(t, DefaultConfig())
	body := `{"result":{"hash":"aa","height":1,"tx":[{"txid":"cb","hash":"cb","vout":[
		{"value":50.00000000,"n":0,"scriptPubKey":{"hex":"0014751e76e8199196d454941c45d1b3a323f1433bd6","address":"bcrt1qw508d6qejxtdg4y5r3zarvary0c5xw7kygt080","type":"witness_v0_keyhash"}}]}]},"error":null,"id":1}`
	mt.RegisterResponder("POST", testURL, func(r *http.Request) (*http.Response, error) {
		var req RPCRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Method != "getblock" || req.Params[0] != "aa" || req.Params[1] != float64(2) {
			t.Errorf("request = %+v", req)
		}
		return httpmock.NewStringResponse(200, body), nil
	})

	block, err := c.GetBlock(context.Background(), "aa")
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if len(block.Tx) != 1 || len(block.Tx[0].Vout) != 1 {
		t.Fatalf("block = %+v", block)
	}
	out := block.Tx[0].Vout[0]
	if out.Value.String() != "50.00000000" || out.ScriptPubKey.Type != "witness_v0_keyhash" {
		t.Errorf("output = %+v", out)
	}
}

func TestRPCClient_UnloadWalletUsesWalletEndpoint(t *testing.T) {
	c, mt := newTestClient(t, DefaultConfig())
	mt.RegisterResponder("POST", testURL+"/wallet/test", rpcResponder(t, nil, nil, nil))

	if err := c.UnloadWallet(context.Background(), "test"); err != nil {
		t.Fatalf("UnloadWallet: %v", err)
	}
	if n := mt.GetCallCountInfo()["POST "+testURL+"/wallet/test"]; n != 1 {
		t.Errorf("wallet endpoint called %d times", n)
	}
}

func TestRPCClient_ListWalletDir(t *testing.T) {
	c, mt := newTestClient(t, DefaultConfig())
	mt.RegisterResponder("POST", testURL, httpmock.NewStringResponder(200,
		`{"result":{"wallets":[{"name":"test"},{"name":"other"}]},"error":null,"id":1}`))

	names, err := c.ListWalletDir(context.Background())
	if err != nil {
		t.Fatalf("ListWalletDir: %v", err)
	}
	if strings.Join(names, ",") != "test,other" {
		t.Errorf("names = %v", names)
	}
}

func TestRPCClient_Unauthorized(t *testing.T) {
	c, mt := newTestClient(t, DefaultConfig())
	mt.RegisterResponder("POST", testURL, httpmock.NewStringResponder(http.StatusUnauthorized, ""))

	_, err := c.GetBlockCount(context.Background())
	if err == nil || !strings.Contains(err.Error(), "authentication") {
		t.Errorf("err = %v, want authentication failure", err)
	}
}

func TestRPCClient_TransportError(t *testing.T) {
	c, mt := newTestClient(t, DefaultConfig())
	mt.RegisterResponder("POST", testURL, httpmock.NewErrorResponder(errors.New("connection refused")))

	_, err := c.GetBlockchainInfo(context.Background())
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("err = %v", err)
	}
}

func TestRPCClient_RateLimited(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestsPerSecond = 0.01
	cfg.Burst = 1
	c, mt := newTestClient(t, cfg)
	mt.RegisterResponder("POST", testURL, rpcResponder(t, nil, 1, nil))

	if _, err := c.GetBlockCount(context.Background()); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.GetBlockCount(ctx)
	if err == nil || !strings.Contains(err.Error(), "rate limit") {
		t.Errorf("err = %v, want rate limit error", err)
	}
	if n := mt.GetTotalCallCount(); n != 1 {
		t.Errorf("node called %d times, want 1", n)
	}
}

func TestMockRPC_ScanAndBroadcast(t *testing.T) {
	mock := NewMockRPC()
	ctx := context.Background()
	mock.AddUnspent("bcrt1qa", ScanUnspent{TxID: "aa", Amount: "1.5"})
	mock.AddUnspent("bcrt1qa", ScanUnspent{TxID: "bb", Vout: 1, Amount: "0.00000001"})

	res, err := mock.ScanTxOutSet(ctx, []string{"addr(bcrt1qa)"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Unspents) != 2 || res.TotalAmount != "1.50000001" {
		t.Errorf("scan = %+v", res)
	}

	empty, _ := mock.ScanTxOutSet(ctx, []string{"addr(bcrt1qb)"})
	if empty.Unspents == nil || len(empty.Unspents) != 0 {
		t.Errorf("unspents = %#v", empty.Unspents)
	}

	if _, err := mock.SendRawTransaction(ctx, "deadbeef"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.BroadcastCount() != 1 || mock.Broadcasts[0] != "deadbeef" {
		t.Error("broadcast not recorded")
	}
}

func TestMockRPC_Errors(t *testing.T) {
	mock := NewMockRPC()
	mock.ScanTxOutSetErr = errors.New("connection refused")
	ctx := context.Background()

	if _, err := mock.ScanTxOutSet(ctx, nil); err == nil {
		t.Fatal("expected error, got nil")
	}
	if _, err := mock.GetBlockHash(ctx, 5); !IsRPCErrorCode(err, -8) {
		t.Errorf("err = %v, want height out of range", err)
	}
}

func TestRPCError(t *testing.T) {
	err := &RPCError{Code: -1, Message: "test error"}
	if err.Error() != "RPC error -1: test error" {
		t.Errorf("unexpected error string: %s", err.Error())
	}
}
