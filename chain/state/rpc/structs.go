package rpc

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

/*
PendingResult defines an object that can be returned when calling the RPC asynchronously. It's kind of like a promise as
seen in other languages.
*/
type PendingResult struct {
	request *inflightRequest
	ctx     context.Context
}

func newPendingResult(request *inflightRequest, ctx context.Context) *PendingResult {
	return &PendingResult{
		request: request,
		ctx:     ctx,
	}
}

/*
GetResultBlocking obtains the result from the client, blocking until the result or an error is available. Callers must
pass a pointer to their data through result. A JSON null result leaves result untouched. If the waiter's context is
cancelled first, its error is returned.
*/
func (p *PendingResult) GetResultBlocking(result any) error {
	select {
	case <-p.request.Done:
		if p.request.Error != nil {
			return p.request.Error
		}
		// null means not found
		if len(p.request.Result) == 0 || bytes.Equal(bytes.TrimSpace(p.request.Result), nullResult) {
			return nil
		}
		if err := json.Unmarshal(p.request.Result, result); err != nil {
			return errors.Wrap(err, "malformed rpc response")
		}
		return nil
	case <-p.ctx.Done():
		return errors.WithStack(p.ctx.Err())
	}
}

var nullResult = []byte("null")

// requestKey defines a struct that can uniquely identify an Ethereum RPC request for request deduplication purposes.
type requestKey struct {
	Method string
	Args   string
}

func makeRequestKey(method string, args ...any) (requestKey, error) {
	serialized, err := json.Marshal(args)
	if err != nil {
		return requestKey{}, errors.WithStack(err)
	}
	return requestKey{Method: method, Args: string(serialized)}, nil
}

// inflightRequest represents an HTTP-JSON request that is currently traversing the network.
type inflightRequest struct {
	// Done is used to signal to each interested worker that the request is completed (possibly with error).
	Done    chan struct{}
	Error   error
	Result  json.RawMessage
	Context context.Context
}
