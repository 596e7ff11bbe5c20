package testutils

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sync"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/crytic/medusa-geth/rpc"
	"github.com/holiman/uint256"
)

// FakeAccount describes the remote view of an account at one block.
type FakeAccount struct {
	Balance *uint256.Int
	Nonce   uint64
	Code    []byte
	Storage map[common.Hash]common.Hash
}

// FakeProvider is an in-process JSON-RPC server answering the eth_* queries a forking store issues. State is recorded
// per block so tests can verify that queries are pinned to the right one. Every call is counted per method.
type FakeProvider struct {
	lock        sync.Mutex
	states      map[uint64]map[common.Address]*FakeAccount
	blockHashes map[uint64]common.Hash
	latest      uint64
	failing     map[string]error
	nulls       map[string]bool
	calls       map[string]int

	server     *rpc.Server
	httpServer *httptest.Server
}

// NewFakeProvider starts a fake provider listening on a local HTTP endpoint. Callers must Close it.
func NewFakeProvider(latest uint64) (*FakeProvider, error) {
	p := &FakeProvider{
		states:      make(map[uint64]map[common.Address]*FakeAccount),
		blockHashes: make(map[uint64]common.Hash),
		latest:      latest,
		failing:     make(map[string]error),
		nulls:       make(map[string]bool),
		calls:       make(map[string]int),
		server:      rpc.NewServer(),
	}
	if err := p.server.RegisterName("eth", &fakeEthAPI{provider: p}); err != nil {
		return nil, err
	}
	p.httpServer = httptest.NewServer(p.server)
	return p, nil
}

// URL returns the HTTP endpoint of the provider.
func (p *FakeProvider) URL() string {
	return p.httpServer.URL
}

// Close stops the provider.
func (p *FakeProvider) Close() {
	p.httpServer.Close()
	p.server.Stop()
}

// SetAccount records the account at the given block.
func (p *FakeProvider) SetAccount(block uint64, addr common.Address, account FakeAccount) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if _, ok := p.states[block]; !ok {
		p.states[block] = make(map[common.Address]*FakeAccount)
	}
	if account.Storage == nil {
		account.Storage = make(map[common.Hash]common.Hash)
	}
	p.states[block][addr] = &account
}

// SetStorageAt records a storage value at the given block, creating an empty account if needed.
func (p *FakeProvider) SetStorageAt(block uint64, addr common.Address, slot common.Hash, value common.Hash) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if _, ok := p.states[block]; !ok {
		p.states[block] = make(map[common.Address]*FakeAccount)
	}
	account, ok := p.states[block][addr]
	if !ok {
		account = &FakeAccount{Balance: uint256.NewInt(0), Storage: make(map[common.Hash]common.Hash)}
		p.states[block][addr] = account
	}
	account.Storage[slot] = value
}

// SetBlockHash records the hash of a block, which also allows queries pinned by that hash.
func (p *FakeProvider) SetBlockHash(number uint64, hash common.Hash) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.blockHashes[number] = hash
}

// FailMethod makes every subsequent call of method return err. A nil err clears the failure.
func (p *FakeProvider) FailMethod(method string, err error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if err == nil {
		delete(p.failing, method)
	} else {
		p.failing[method] = err
	}
}

// AnswerNull makes every subsequent call of method answer JSON null, the way providers answer for unknown entities.
func (p *FakeProvider) AnswerNull(method string, enabled bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if enabled {
		p.nulls[method] = true
	} else {
		delete(p.nulls, method)
	}
}

// Calls returns how many times method was called.
func (p *FakeProvider) Calls(method string) int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.calls[method]
}

// TotalCalls returns how many calls were made across all methods.
func (p *FakeProvider) TotalCalls() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	total := 0
	for _, n := range p.calls {
		total += n
	}
	return total
}

// record counts a call and returns the injected failure for method, if any. The caller must hold the lock.
func (p *FakeProvider) record(method string) error {
	p.calls[method]++
	return p.failing[method]
}

// resolveBlock maps a block parameter to a block number. The caller must hold the lock.
func (p *FakeProvider) resolveBlock(block rpc.BlockNumberOrHash) (uint64, error) {
	if hash, ok := block.Hash(); ok {
		for number, h := range p.blockHashes {
			if h == hash {
				return number, nil
			}
		}
		return 0, fmt.Errorf("header for hash not found")
	}
	number, _ := block.Number()
	if number < 0 {
		return p.latest, nil
	}
	if uint64(number) > p.latest {
		return 0, fmt.Errorf("header not found")
	}
	return uint64(number), nil
}

// account returns the account at the resolved block, or nil. null reports that method must answer JSON null. The
// caller must hold the lock.
func (p *FakeProvider) account(method string, addr common.Address, block rpc.BlockNumberOrHash) (account *FakeAccount, null bool, err error) {
	if failure := p.record(method); failure != nil {
		return nil, false, failure
	}
	if p.nulls[method] {
		return nil, true, nil
	}
	number, err := p.resolveBlock(block)
	if err != nil {
		return nil, false, err
	}
	return p.states[number][addr], false, nil
}

// fakeEthAPI is registered under the "eth" namespace, so GetBalance serves eth_getBalance and so on.
type fakeEthAPI struct {
	provider *FakeProvider
}

func (api *fakeEthAPI) BlockNumber() (hexutil.Uint64, error) {
	p := api.provider
	p.lock.Lock()
	defer p.lock.Unlock()
	if err := p.record("eth_blockNumber"); err != nil {
		return 0, err
	}
	return hexutil.Uint64(p.latest), nil
}

func (api *fakeEthAPI) GetBalance(ctx context.Context, addr common.Address, block rpc.BlockNumberOrHash) (*hexutil.Big, error) {
	p := api.provider
	p.lock.Lock()
	defer p.lock.Unlock()
	account, null, err := p.account("eth_getBalance", addr, block)
	if err != nil || null {
		return nil, err
	}
	if account == nil || account.Balance == nil {
		return (*hexutil.Big)(uint256.NewInt(0).ToBig()), nil
	}
	return (*hexutil.Big)(account.Balance.ToBig()), nil
}

func (api *fakeEthAPI) GetTransactionCount(ctx context.Context, addr common.Address, block rpc.BlockNumberOrHash) (*hexutil.Uint64, error) {
	p := api.provider
	p.lock.Lock()
	defer p.lock.Unlock()
	account, null, err := p.account("eth_getTransactionCount", addr, block)
	if err != nil || null {
		return nil, err
	}
	nonce := hexutil.Uint64(0)
	if account != nil {
		nonce = hexutil.Uint64(account.Nonce)
	}
	return &nonce, nil
}

func (api *fakeEthAPI) GetCode(ctx context.Context, addr common.Address, block rpc.BlockNumberOrHash) (*hexutil.Bytes, error) {
	p := api.provider
	p.lock.Lock()
	defer p.lock.Unlock()
	account, null, err := p.account("eth_getCode", addr, block)
	if err != nil || null {
		return nil, err
	}
	code := hexutil.Bytes{}
	if account != nil {
		code = account.Code
	}
	return &code, nil
}

func (api *fakeEthAPI) GetStorageAt(ctx context.Context, addr common.Address, slot common.Hash, block rpc.BlockNumberOrHash) (*hexutil.Bytes, error) {
	p := api.provider
	p.lock.Lock()
	defer p.lock.Unlock()
	account, null, err := p.account("eth_getStorageAt", addr, block)
	if err != nil || null {
		return nil, err
	}
	value := common.Hash{}
	if account != nil {
		value = account.Storage[slot]
	}
	encoded := hexutil.Bytes(value.Bytes())
	return &encoded, nil
}

func (api *fakeEthAPI) GetBlockByNumber(ctx context.Context, number rpc.BlockNumber, fullTx bool) (map[string]any, error) {
	p := api.provider
	p.lock.Lock()
	defer p.lock.Unlock()
	if err := p.record("eth_getBlockByNumber"); err != nil {
		return nil, err
	}
	if number < 0 {
		return nil, nil
	}
	hash, ok := p.blockHashes[uint64(number)]
	if !ok {
		return nil, nil
	}
	return map[string]any{
		"number": hexutil.Uint64(number),
		"hash":   hash,
	}, nil
}

func (api *fakeEthAPI) GetBlockByHash(ctx context.Context, hash common.Hash, fullTx bool) (map[string]any, error) {
	p := api.provider
	p.lock.Lock()
	defer p.lock.Unlock()
	if err := p.record("eth_getBlockByHash"); err != nil {
		return nil, err
	}
	for number, h := range p.blockHashes {
		if h == hash {
			return map[string]any{
				"number": hexutil.Uint64(number),
				"hash":   h,
			}, nil
		}
	}
	return nil, nil
}
