package bitcoin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// MockRPC implements BitcoinRPC for testing.
type MockRPC struct {
	mu sync.Mutex

	Info        BlockchainInfo
	BlockCount  int64
	BlockHashes map[int64]string
	Blocks      map[string]*Block
	Unspents    map[string][]ScanUnspent // keyed by address
	FeeEstimate *FeeEstimate
	Wallets     []string
	Loaded      map[string]bool

	Broadcasts []string
	Generated  map[string]int // address -> blocks mined
	ScanCalls  int
	FeeCalls   int

	// OnScan runs before each scan, without the lock held.
	OnScan func(descriptors []string)

	// Error overrides
	GetBlockchainInfoErr  error
	GetBlockCountErr      error
	GetBlockHashErr       error
	GetBlockErr           error
	GenerateToAddressErr  error
	ScanTxOutSetErr       error
	EstimateSmartFeeErr   error
	SendRawTransactionErr error
	WalletErr             error
}

// NewMockRPC creates a new mock Bitcoin RPC client with sensible defaults.
func NewMockRPC() *MockRPC {
	return &MockRPC{
		Info: BlockchainInfo{
			Chain:         "regtest",
			BestBlockHash: "0f9188f13cb7b2c71f2a335e3a4fc328bf5beb436012afca590b1a11466e2206",
		},
		BlockHashes: make(map[int64]string),
		Blocks:      make(map[string]*Block),
		Unspents:    make(map[string][]ScanUnspent),
		FeeEstimate: &FeeEstimate{FeeRate: json.Number("0.00001000"), Blocks: 6},
		Loaded:      make(map[string]bool),
		Generated:   make(map[string]int),
	}
}

// AddUnspent makes u visible to scans of address.
func (m *MockRPC) AddUnspent(address string, u ScanUnspent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Unspents[address] = append(m.Unspents[address], u)
}

// AddBlock registers block at its height.
func (m *MockRPC) AddBlock(block *Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BlockHashes[block.Height] = block.Hash
	m.Blocks[block.Hash] = block
	if block.Height > m.BlockCount {
		m.BlockCount = block.Height
	}
}

// SetScanError changes ScanTxOutSetErr while scans may be running.
func (m *MockRPC) SetScanError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ScanTxOutSetErr = err
}

// BroadcastCount returns how many transactions were accepted.
func (m *MockRPC) BroadcastCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Broadcasts)
}

func (m *MockRPC) GetBlockchainInfo(_ context.Context) (*BlockchainInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetBlockchainInfoErr != nil {
		return nil, m.GetBlockchainInfoErr
	}
	info := m.Info
	info.Blocks = m.BlockCount
	info.Headers = m.BlockCount
	return &info, nil
}

func (m *MockRPC) GetBlockCount(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetBlockCountErr != nil {
		return 0, m.GetBlockCountErr
	}
	return m.BlockCount, nil
}

func (m *MockRPC) GetBlockHash(_ context.Context, height int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetBlockHashErr != nil {
		return "", m.GetBlockHashErr
	}
	hash, ok := m.BlockHashes[height]
	if !ok {
		return "", &RPCError{Code: -8, Message: "Block height out of range"}
	}
	return hash, nil
}

func (m *MockRPC) GetBlock(_ context.Context, hash string) (*Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetBlockErr != nil {
		return nil, m.GetBlockErr
	}
	block, ok := m.Blocks[hash]
	if !ok {
		return nil, &RPCError{Code: -5, Message: "Block not found"}
	}
	return block, nil
}

func (m *MockRPC) GenerateToAddress(_ context.Context, blocks int, address string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GenerateToAddressErr != nil {
		return nil, m.GenerateToAddressErr
	}
	hashes := make([]string, blocks)
	for i := range hashes {
		m.BlockCount++
		hashes[i] = fmt.Sprintf("%064x", m.BlockCount)
	}
	m.Generated[address] += blocks
	return hashes, nil
}

func (m *MockRPC) ScanTxOutSet(_ context.Context, descriptors []string) (*ScanResult, error) {
	m.mu.Lock()
	hook := m.OnScan
	m.mu.Unlock()
	if hook != nil {
		hook(descriptors)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ScanCalls++
	if m.ScanTxOutSetErr != nil {
		return nil, m.ScanTxOutSetErr
	}

	res := &ScanResult{Success: true, Height: m.BlockCount, Unspents: []ScanUnspent{}}
	var total int64
	for _, desc := range descriptors {
		addr := strings.TrimSuffix(strings.TrimPrefix(desc, "addr("), ")")
		for _, u := range m.Unspents[addr] {
			sats, err := BTCToSats(u.Amount)
			if err != nil {
				return nil, err
			}
			total += sats
			u.Desc = desc
			res.Unspents = append(res.Unspents, u)
		}
	}
	res.TxOuts = int64(len(res.Unspents))
	res.TotalAmount = json.Number(SatsToBTC(total))
	return res, nil
}

func (m *MockRPC) EstimateSmartFee(_ context.Context, _ int, _ string) (*FeeEstimate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FeeCalls++
	if m.EstimateSmartFeeErr != nil {
		return nil, m.EstimateSmartFeeErr
	}
	est := *m.FeeEstimate
	return &est, nil
}

func (m *MockRPC) SendRawTransaction(_ context.Context, txHex string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendRawTransactionErr != nil {
		return "", m.SendRawTransactionErr
	}
	m.Broadcasts = append(m.Broadcasts, txHex)
	return fmt.Sprintf("%064x", len(m.Broadcasts)), nil
}

func (m *MockRPC) ListWalletDir(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WalletErr != nil {
		return nil, m.WalletErr
	}
	return append([]string(nil), m.Wallets...), nil
}

func (m *MockRPC) CreateWallet(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WalletErr != nil {
		return m.WalletErr
	}
	for _, w := range m.Wallets {
		if w == name {
			return &RPCError{Code: -4, Message: "Wallet file verification failed. Failed to create database path"}
		}
	}
	m.Wallets = append(m.Wallets, name)
	m.Loaded[name] = true
	return nil
}

func (m *MockRPC) LoadWallet(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WalletErr != nil {
		return m.WalletErr
	}
	if m.Loaded[name] {
		return &RPCError{Code: ErrCodeWalletLoaded, Message: "Wallet \"" + name + "\" is already loaded."}
	}
	m.Loaded[name] = true
	return nil
}

func (m *MockRPC) UnloadWallet(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WalletErr != nil {
		return m.WalletErr
	}
	if !m.Loaded[name] {
		return &RPCError{Code: ErrCodeWalletNotFound, Message: "Requested wallet does not exist or is not loaded"}
	}
	delete(m.Loaded, name)
	return nil
}
