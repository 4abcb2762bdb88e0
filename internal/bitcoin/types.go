package bitcoin

import (
	"encoding/json"
	"fmt"
)

// BlockchainInfo is the subset of getblockchaininfo used to check the node.
type BlockchainInfo struct {
	Chain                string `json:"chain"`
	Blocks               int64  `json:"blocks"`
	Headers              int64  `json:"headers"`
	BestBlockHash        string `json:"bestblockhash"`
	InitialBlockDownload bool   `json:"initialblockdownload"`
}

// ScanResult is the response of scantxoutset "start". Amounts are BTC
// decimals kept as json.Number so they convert to satoshis exactly.
type ScanResult struct {
	Success     bool          `json:"success"`
	TxOuts      int64         `json:"txouts"`
	Height      int64         `json:"height"`
	BestBlock   string        `json:"bestblock"`
	Unspents    []ScanUnspent `json:"unspents"`
	TotalAmount json.Number   `json:"total_amount"`
}

// ScanUnspent is one output matched by a scan descriptor.
type ScanUnspent struct {
	TxID         string      `json:"txid"`
	Vout         uint32      `json:"vout"`
	ScriptPubKey string      `json:"scriptPubKey"`
	Desc         string      `json:"desc"`
	Amount       json.Number `json:"amount"`
	Coinbase     bool        `json:"coinbase"`
	Height       int64       `json:"height"`
}

// FeeEstimate is the response of estimatesmartfee. FeeRate is in BTC/kvB
// and absent when the node has no estimate.
type FeeEstimate struct {
	FeeRate json.Number `json:"feerate"`
	Errors  []string    `json:"errors"`
	Blocks  int64       `json:"blocks"`
}

// Block is a getblock result at verbosity 2.
type Block struct {
	Hash          string    `json:"hash"`
	Height        int64     `json:"height"`
	PreviousHash  string    `json:"previousblockhash"`
	Time          int64     `json:"time"`
	Confirmations int64     `json:"confirmations"`
	Tx            []BlockTx `json:"tx"`
}

// BlockTx is a decoded transaction inside a Block.
type BlockTx struct {
	TxID string       `json:"txid"`
	Hash string       `json:"hash"`
	Hex  string       `json:"hex"`
	Vout []BlockTxOut `json:"vout"`
}

// BlockTxOut is a decoded transaction output.
type BlockTxOut struct {
	Value        json.Number  `json:"value"`
	N            uint32       `json:"n"`
	ScriptPubKey ScriptPubKey `json:"scriptPubKey"`
}

// ScriptPubKey describes an output script as decoded by the node.
type ScriptPubKey struct {
	Hex     string `json:"hex"`
	Address string `json:"address"`
	Type    string `json:"type"`
}

type walletDir struct {
	Wallets []struct {
		Name string `json:"name"`
	} `json:"wallets"`
}

// RPCRequest represents a JSON-RPC request.
type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// RPCResponse represents a JSON-RPC response.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// RPCError represents a JSON-RPC error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Node error codes returned by sendrawtransaction for policy and consensus
// rejections.
const (
	ErrCodeVerify         = -25 // RPC_VERIFY_ERROR
	ErrCodeVerifyRejected = -26 // RPC_VERIFY_REJECTED
	ErrCodeAlreadyInChain = -27 // RPC_VERIFY_ALREADY_IN_CHAIN

	ErrCodeWalletNotFound = -18 // RPC_WALLET_NOT_FOUND
	ErrCodeWalletLoaded   = -35 // RPC_WALLET_ALREADY_LOADED
)

// BroadcastRejectedError is returned when the node refuses a transaction
// (as opposed to a transport/RPC error). Rejected transactions should not be
// retried unchanged.
type BroadcastRejectedError struct {
	Code   int
	Reason string
}

func (e *BroadcastRejectedError) Error() string {
	return fmt.Sprintf("transaction rejected (%d): %s", e.Code, e.Reason)
}
