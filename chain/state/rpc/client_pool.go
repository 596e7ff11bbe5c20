package rpc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/crytic/forkdb/logging"
	"github.com/crytic/medusa-geth/rpc"
	"github.com/pkg/errors"
)

const maxRetries = 3

// retryBackoff is the base delay between attempts. Attempt n waits n * retryBackoff.
const retryBackoff = 100 * time.Millisecond

// ClientPool distributes JSON-RPC requests over a fixed set of connections to one endpoint. Identical requests that are
// in flight at the same time are only sent once.
type ClientPool struct {
	rpcClients       []*rpc.Client
	currentClientIdx int
	clientLock       sync.Mutex

	inflightRequests map[requestKey]*inflightRequest
	inflightLock     sync.Mutex

	endpoint   string
	maxRetries int
	logger     *logging.Logger
}

// NewClientPool dials poolSize connections to endpoint. A poolSize of zero is treated as one.
func NewClientPool(ctx context.Context, endpoint string, poolSize uint) (*ClientPool, error) {
	if poolSize == 0 {
		poolSize = 1
	}
	pool := &ClientPool{
		rpcClients:       make([]*rpc.Client, 0, poolSize),
		inflightRequests: make(map[requestKey]*inflightRequest),
		endpoint:         endpoint,
		maxRetries:       maxRetries,
		logger:           logging.GlobalLogger.NewSubLogger("module", logging.RPC_SERVICE),
	}

	// dial out
	for i := uint(0); i < poolSize; i++ {
		client, err := rpc.DialContext(ctx, endpoint)
		if err != nil {
			pool.Close()
			return nil, errors.Wrapf(err, "error when creating rpc client for %s", endpoint)
		}
		pool.rpcClients = append(pool.rpcClients, client)
	}

	return pool, nil
}

// Endpoint returns the URL the pool is connected to.
func (c *ClientPool) Endpoint() string {
	return c.endpoint
}

// ExecuteRequestBlocking sends a request and decodes its result into result, which must be a pointer.
func (c *ClientPool) ExecuteRequestBlocking(ctx context.Context, result any, method string, args ...any) error {
	pending, err := c.ExecuteRequestAsync(ctx, method, args...)
	if err != nil {
		return err
	}
	return pending.GetResultBlocking(result)
}

// ExecuteRequestAsync sends a request without waiting for its result. If an identical request is already in flight,
// the returned PendingResult shares it.
func (c *ClientPool) ExecuteRequestAsync(ctx context.Context, method string, args ...any) (*PendingResult, error) {
	key, err := makeRequestKey(method, args...)
	if err != nil {
		return nil, err
	}

	// check for in-flight requests
	c.inflightLock.Lock()
	defer c.inflightLock.Unlock()
	if inflight, exists := c.inflightRequests[key]; exists {
		return newPendingResult(inflight, ctx), nil
	}

	inflight := &inflightRequest{
		Done:    make(chan struct{}),
		Context: ctx,
	}
	c.inflightRequests[key] = inflight

	go c.launchRequest(c.getClient(), key, inflight, method, args...)
	return newPendingResult(inflight, ctx), nil
}

func (c *ClientPool) getClient() *rpc.Client {
	c.clientLock.Lock()
	defer c.clientLock.Unlock()

	client := c.rpcClients[c.currentClientIdx]
	c.currentClientIdx = (c.currentClientIdx + 1) % len(c.rpcClients)

	return client
}

func (c *ClientPool) launchRequest(
	client *rpc.Client,
	key requestKey,
	request *inflightRequest,
	method string,
	args ...any) {
	defer func() {
		c.inflightLock.Lock()
		delete(c.inflightRequests, key)
		c.inflightLock.Unlock()
		close(request.Done)
	}()

	var err error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		var result json.RawMessage
		err = client.CallContext(request.Context, &result, method, args...)
		if err == nil {
			request.Result = result
			return
		}

		// errors returned by the server are final, as are cancellations
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) || request.Context.Err() != nil {
			break
		}
		c.logger.Debug("Retrying ", method, " after transport error", err)
		time.Sleep(time.Duration(attempt+1) * retryBackoff)
	}
	request.Error = errors.Wrapf(err, "%s request failed", method)
}

// Close closes every connection in the pool.
func (c *ClientPool) Close() {
	c.clientLock.Lock()
	defer c.clientLock.Unlock()
	for _, client := range c.rpcClients {
		client.Close()
	}
}
