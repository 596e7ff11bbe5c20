package state

import (
	"context"
	"time"

	"github.com/crytic/forkdb/chain/state/rpc"
	"github.com/crytic/forkdb/events"
	"github.com/crytic/forkdb/logging"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

/*
Backend defines an interface for fetching state from a different source such as a remote RPC server. Every read is
made against the block returned by PinnedBlock. A value that does not exist remotely is returned as zero, not as an
error.
*/
type Backend interface {
	GetStorageAt(addr common.Address, slot common.Hash) (common.Hash, error)
	GetStateObject(addr common.Address) (*uint256.Int, uint64, []byte, error)
	GetBlockHash(number uint64) (common.Hash, error)
	PinnedBlock() BlockReference
}

var _ Backend = (*EmptyBackend)(nil)
var _ Backend = (*RPCBackend)(nil)

/*
RPCBackend defines a Backend for fetching state from a remote RPC server. It is locked to a single block. It does not
cache: memoization is the job of the Store's fetch cache.
*/
type RPCBackend struct {
	context    context.Context
	clientPool *rpc.ClientPool
	block      BlockReference
	logger     *logging.Logger

	// Events defines the event system for the RPCBackend.
	Events RPCBackendEvents
}

// RPCBackendEvents defines event emitters for an RPCBackend.
type RPCBackendEvents struct {
	// RemoteFetch emits events after every successful read from the remote provider.
	RemoteFetch events.EventEmitter[RemoteFetchEvent]
}

// RemoteFetchEvent describes a read served by the remote provider.
type RemoteFetchEvent struct {
	// Op is the operation: FetchOpAccount, FetchOpStorage or FetchOpBlockHash.
	Op string
	// Address is the account read, if any.
	Address common.Address
	// Slot is the storage key read, for storage reads.
	Slot common.Hash
	// Number is the block number read, for block hash reads.
	Number uint64
	// Duration is how long the remote took to answer.
	Duration time.Duration
}

/*
NewRPCBackend dials url and pins the backend to block. If block is unset, the latest block number is resolved once and
pinned. If block is a hash, its number is resolved so block hash lookups can be bounded.
*/
func NewRPCBackend(
	ctx context.Context,
	url string,
	block BlockReference,
	poolSize uint) (*RPCBackend, error) {
	clientPool, err := rpc.NewClientPool(ctx, url, poolSize)
	if err != nil {
		return nil, err
	}

	backend := &RPCBackend{
		context:    ctx,
		clientPool: clientPool,
		logger:     logging.GlobalLogger.NewSubLogger("module", logging.FORK_SERVICE),
	}

	block, err = backend.resolveBlock(block)
	if err != nil {
		clientPool.Close()
		return nil, err
	}
	backend.block = block
	backend.logger.Debug("Pinned remote state at block ", block.String(), " of ", url)
	return backend, nil
}

// resolveBlock fills in the block number of an unset or hash-only reference.
func (q *RPCBackend) resolveBlock(block BlockReference) (BlockReference, error) {
	if !block.IsSet() {
		var latest hexutil.Uint64
		if err := q.clientPool.ExecuteRequestBlocking(q.context, &latest, "eth_blockNumber"); err != nil {
			return BlockReference{}, errors.Wrap(err, "could not resolve the latest block")
		}
		return BlockByNumber(uint64(latest)), nil
	}

	hash, byHash := block.Hash()
	if !byHash {
		return block, nil
	}
	var header *struct {
		Number hexutil.Uint64 `json:"number"`
	}
	if err := q.clientPool.ExecuteRequestBlocking(q.context, &header, "eth_getBlockByHash", hash, false); err != nil {
		return BlockReference{}, errors.Wrapf(err, "could not resolve block %s", hash.Hex())
	}
	if header == nil {
		return BlockReference{}, errors.Errorf("block %s not found", hash.Hex())
	}
	return block.withNumber(uint64(header.Number)), nil
}

// PinnedBlock returns the block every read is made against.
func (q *RPCBackend) PinnedBlock() BlockReference {
	return q.block
}

// Endpoint returns the URL of the remote provider.
func (q *RPCBackend) Endpoint() string {
	return q.clientPool.Endpoint()
}

// Close closes the connections to the remote provider.
func (q *RPCBackend) Close() {
	q.clientPool.Close()
}

/*
GetStorageAt returns data stored in the remote RPC for the given address/slot.
Note that Ethereum RPC will return zero for slots that have never been written to or are associated with undeployed
contracts.
Errors may be network errors or a context cancelled error when the process is shutting down.
*/
func (q *RPCBackend) GetStorageAt(addr common.Address, slot common.Hash) (common.Hash, error) {
	start := time.Now()
	var result hexutil.Bytes
	err := q.clientPool.ExecuteRequestBlocking(q.context, &result, "eth_getStorageAt", addr, slot, q.block)
	if err != nil {
		return common.Hash{}, err
	}
	if len(result) > common.HashLength {
		return common.Hash{}, errors.Errorf("storage value of %d bytes exceeds a word", len(result))
	}
	q.logger.Trace("Fetched storage ", slot.Hex(), " of ", addr.Hex())
	q.publishFetch(RemoteFetchEvent{Op: FetchOpStorage, Address: addr, Slot: slot, Duration: time.Since(start)})
	return common.BytesToHash(result), nil
}

/*
GetStateObject returns the data stored in the remote RPC for the specified state object.
Note that the Ethereum RPC will return zero for accounts that do not exist.
Errors may be network errors or a context cancelled error when the process is shutting down.
*/
func (q *RPCBackend) GetStateObject(addr common.Address) (*uint256.Int, uint64, []byte, error) {
	start := time.Now()
	var balance *hexutil.Big
	var nonce *hexutil.Uint64
	var code *hexutil.Bytes

	pendingBalance, err := q.clientPool.ExecuteRequestAsync(q.context, "eth_getBalance", addr, q.block)
	if err != nil {
		return nil, 0, nil, err
	}
	pendingNonce, err := q.clientPool.ExecuteRequestAsync(q.context, "eth_getTransactionCount", addr, q.block)
	if err != nil {
		return nil, 0, nil, err
	}
	pendingCode, err := q.clientPool.ExecuteRequestAsync(q.context, "eth_getCode", addr, q.block)
	if err != nil {
		return nil, 0, nil, err
	}

	// a null field means the remote does not know the account, which reads as zero
	balanceTyped := uint256.NewInt(0)
	if err = pendingBalance.GetResultBlocking(&balance); err != nil {
		return nil, 0, nil, err
	}
	if balance != nil {
		var overflow bool
		balanceTyped, overflow = uint256.FromBig(balance.ToInt())
		if overflow || balance.ToInt().Sign() < 0 {
			return nil, 0, nil, errors.Errorf("balance %s of %s is not a 256-bit unsigned integer", balance.String(), addr.Hex())
		}
	}

	if err = pendingNonce.GetResultBlocking(&nonce); err != nil {
		return nil, 0, nil, err
	}
	if err = pendingCode.GetResultBlocking(&code); err != nil {
		return nil, 0, nil, err
	}
	nonceTyped := uint64(0)
	if nonce != nil {
		nonceTyped = uint64(*nonce)
	}
	var codeTyped []byte
	if code != nil {
		codeTyped = *code
	}

	q.logger.Trace("Fetched account ", addr.Hex())
	q.publishFetch(RemoteFetchEvent{Op: FetchOpAccount, Address: addr, Duration: time.Since(start)})
	return balanceTyped, nonceTyped, codeTyped, nil
}

/*
GetBlockHash returns the hash of the block with the given number. Blocks after the pinned block, and blocks the remote
does not know, resolve to the zero hash.
*/
func (q *RPCBackend) GetBlockHash(number uint64) (common.Hash, error) {
	if pinned, ok := q.block.Number(); ok && number > pinned {
		return common.Hash{}, nil
	}
	start := time.Now()
	var header *struct {
		Hash common.Hash `json:"hash"`
	}
	err := q.clientPool.ExecuteRequestBlocking(q.context, &header, "eth_getBlockByNumber", hexutil.Uint64(number), false)
	if err != nil {
		return common.Hash{}, err
	}
	q.publishFetch(RemoteFetchEvent{Op: FetchOpBlockHash, Number: number, Duration: time.Since(start)})
	if header == nil {
		return common.Hash{}, nil
	}
	return header.Hash, nil
}

// publishFetch emits a RemoteFetch event. A failing handler does not fail the read.
func (q *RPCBackend) publishFetch(event RemoteFetchEvent) {
	if err := q.Events.RemoteFetch.Publish(event); err != nil {
		q.logger.Warn("A remote fetch event handler failed", err)
	}
}
