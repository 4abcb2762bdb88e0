package bitcoin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/djkazic/p2wpkh-go/internal/metrics"
)

// BitcoinRPC defines the interface for communicating with bitcoind.
type BitcoinRPC interface {
	GetBlockchainInfo(ctx context.Context) (*BlockchainInfo, error)
	GetBlockCount(ctx context.Context) (int64, error)
	GetBlockHash(ctx context.Context, height int64) (string, error)
	GetBlock(ctx context.Context, hash string) (*Block, error)
	GenerateToAddress(ctx context.Context, blocks int, address string) ([]string, error)
	ScanTxOutSet(ctx context.Context, descriptors []string) (*ScanResult, error)
	EstimateSmartFee(ctx context.Context, confTarget int, mode string) (*FeeEstimate, error)
	SendRawTransaction(ctx context.Context, txHex string) (string, error)
	ListWalletDir(ctx context.Context) ([]string, error)
	CreateWallet(ctx context.Context, name string) error
	LoadWallet(ctx context.Context, name string) error
	UnloadWallet(ctx context.Context, name string) error
}

// Config holds connection settings for the node.
type Config struct {
	URL      string
	User     string
	Password string
	Timeout  time.Duration

	// RequestsPerSecond limits outgoing calls; zero disables the limiter.
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig returns settings for a local regtest node.
func DefaultConfig() Config {
	return Config{
		URL:      "http://127.0.0.1:18443",
		User:     "user",
		Password: "pass",
		Timeout:  30 * time.Second,
		Burst:    1,
	}
}

// RPCClient implements BitcoinRPC using JSON-RPC over HTTP.
type RPCClient struct {
	url      string
	user     string
	password string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
	idSeq    atomic.Int64
}

// NewRPCClient creates a new Bitcoin JSON-RPC client.
func NewRPCClient(cfg Config, logger *zap.Logger) *RPCClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &RPCClient{
		url:      strings.TrimRight(cfg.URL, "/"),
		user:     cfg.User,
		password: cfg.Password,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

// call makes a JSON-RPC call against the node endpoint.
func (c *RPCClient) call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	return c.callPath(ctx, "", method, params...)
}

// callPath makes a JSON-RPC call and returns the raw result. path selects a
// wallet endpoint such as "/wallet/name".
func (c *RPCClient) callPath(ctx context.Context, path, method string, params ...interface{}) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	start := time.Now()
	defer func() {
		metrics.RPCRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	id := c.idSeq.Add(1)

	if params == nil {
		params = []interface{}{}
	}
	req := RPCRequest{
		JSONRPC: "1.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.user, c.password)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("RPC request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	// bitcoind answers RPC errors with HTTP 500 and a JSON body, but auth
	// failures carry no body at all.
	if httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("RPC authentication failed: %s", httpResp.Status)
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w (status %s, body: %s)", err, httpResp.Status, string(respBody))
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	c.logger.Debug("rpc call",
		zap.String("method", method),
		zap.Int64("id", id),
		zap.Duration("elapsed", time.Since(start)),
	)
	return rpcResp.Result, nil
}

func unmarshalResult(result json.RawMessage, method string, v interface{}) error {
	if err := json.Unmarshal(result, v); err != nil {
		return fmt.Errorf("unmarshal %s result: %w", method, err)
	}
	return nil
}

// GetBlockchainInfo returns chain state; used as a connectivity check.
func (c *RPCClient) GetBlockchainInfo(ctx context.Context) (*BlockchainInfo, error) {
	result, err := c.call(ctx, "getblockchaininfo")
	if err != nil {
		return nil, fmt.Errorf("getblockchaininfo: %w", err)
	}
	var info BlockchainInfo
	if err := unmarshalResult(result, "getblockchaininfo", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetBlockCount returns the current block height.
func (c *RPCClient) GetBlockCount(ctx context.Context) (int64, error) {
	result, err := c.call(ctx, "getblockcount")
	if err != nil {
		return 0, fmt.Errorf("getblockcount: %w", err)
	}

	var height int64
	if err := unmarshalResult(result, "getblockcount", &height); err != nil {
		return 0, err
	}
	return height, nil
}

// GetBlockHash returns the hash of the block at height in the best chain.
func (c *RPCClient) GetBlockHash(ctx context.Context, height int64) (string, error) {
	result, err := c.call(ctx, "getblockhash", height)
	if err != nil {
		return "", fmt.Errorf("getblockhash %d: %w", height, err)
	}

	var hash string
	if err := unmarshalResult(result, "getblockhash", &hash); err != nil {
		return "", err
	}
	return hash, nil
}

// GetBlock returns the block with fully decoded transactions.
func (c *RPCClient) GetBlock(ctx context.Context, hash string) (*Block, error) {
	result, err := c.call(ctx, "getblock", hash, 2)
	if err != nil {
		return nil, fmt.Errorf("getblock %s: %w", hash, err)
	}

	var block Block
	if err := unmarshalResult(result, "getblock", &block); err != nil {
		return nil, err
	}
	return &block, nil
}

// GenerateToAddress mines blocks paying their coinbase to address. Regtest
// only.
func (c *RPCClient) GenerateToAddress(ctx context.Context, blocks int, address string) ([]string, error) {
	result, err := c.call(ctx, "generatetoaddress", blocks, address)
	if err != nil {
		return nil, fmt.Errorf("generatetoaddress: %w", err)
	}

	var hashes []string
	if err := unmarshalResult(result, "generatetoaddress", &hashes); err != nil {
		return nil, err
	}
	return hashes, nil
}

// ScanTxOutSet scans the UTXO set for outputs matching descriptors. The scan
// runs synchronously on the node and can take a while on mainnet.
func (c *RPCClient) ScanTxOutSet(ctx context.Context, descriptors []string) (*ScanResult, error) {
	result, err := c.call(ctx, "scantxoutset", "start", descriptors)
	if err != nil {
		return nil, fmt.Errorf("scantxoutset: %w", err)
	}

	var scan ScanResult
	if err := unmarshalResult(result, "scantxoutset", &scan); err != nil {
		return nil, err
	}
	if !scan.Success {
		return nil, fmt.Errorf("scantxoutset: scan did not complete")
	}
	if scan.Unspents == nil {
		scan.Unspents = []ScanUnspent{}
	}
	return &scan, nil
}

// EstimateSmartFee asks the node for a fee rate confirming within confTarget
// blocks. mode is "economical" or "conservative".
func (c *RPCClient) EstimateSmartFee(ctx context.Context, confTarget int, mode string) (*FeeEstimate, error) {
	result, err := c.call(ctx, "estimatesmartfee", confTarget, mode)
	if err != nil {
		return nil, fmt.Errorf("estimatesmartfee: %w", err)
	}

	var est FeeEstimate
	if err := unmarshalResult(result, "estimatesmartfee", &est); err != nil {
		return nil, err
	}
	return &est, nil
}

// SendRawTransaction broadcasts a serialized transaction and returns its
// txid. Policy and consensus rejections come back as *BroadcastRejectedError.
func (c *RPCClient) SendRawTransaction(ctx context.Context, txHex string) (string, error) {
	result, err := c.call(ctx, "sendrawtransaction", txHex)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			switch rpcErr.Code {
			case ErrCodeVerify, ErrCodeVerifyRejected, ErrCodeAlreadyInChain:
				return "", &BroadcastRejectedError{Code: rpcErr.Code, Reason: rpcErr.Message}
			}
		}
		return "", fmt.Errorf("sendrawtransaction: %w", err)
	}

	var txid string
	if err := unmarshalResult(result, "sendrawtransaction", &txid); err != nil {
		return "", err
	}
	return txid, nil
}

// ListWalletDir returns the names of wallets on disk.
func (c *RPCClient) ListWalletDir(ctx context.Context) ([]string, error) {
	result, err := c.call(ctx, "listwalletdir")
	if err != nil {
		return nil, fmt.Errorf("listwalletdir: %w", err)
	}

	var dir walletDir
	if err := unmarshalResult(result, "listwalletdir", &dir); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(dir.Wallets))
	for _, w := range dir.Wallets {
		names = append(names, w.Name)
	}
	return names, nil
}

// CreateWallet creates and loads a new wallet.
func (c *RPCClient) CreateWallet(ctx context.Context, name string) error {
	if _, err := c.call(ctx, "createwallet", name); err != nil {
		return fmt.Errorf("createwallet %s: %w", name, err)
	}
	return nil
}

// LoadWallet loads an existing wallet.
func (c *RPCClient) LoadWallet(ctx context.Context, name string) error {
	if _, err := c.call(ctx, "loadwallet", name); err != nil {
		return fmt.Errorf("loadwallet %s: %w", name, err)
	}
	return nil
}

// UnloadWallet unloads a wallet through its own endpoint.
func (c *RPCClient) UnloadWallet(ctx context.Context, name string) error {
	if _, err := c.callPath(ctx, "/wallet/"+name, "unloadwallet", name); err != nil {
		return fmt.Errorf("unloadwallet %s: %w", name, err)
	}
	return nil
}

// IsRPCErrorCode reports whether err wraps a node error with the given code.
func IsRPCErrorCode(err error, code int) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == code
}
