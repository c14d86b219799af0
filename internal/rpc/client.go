package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/byteowlz/hstry/internal/types"
)

// Client is a connection to a running Service's RPC endpoint. One Client
// serializes calls over one connection; callers wanting concurrency
// should Dial multiple Clients (cheap: a UNIX socket connect).
type Client struct {
	conn net.Conn
	r    *bufio.Reader
	mu   sync.Mutex
	seq  atomic.Uint64
}

// Dial connects to the RPC endpoint at socketPath.
func Dial(ctx context.Context, socketPath string, timeout time.Duration) (*Client, error) {
	if !endpointExists(socketPath) {
		return nil, ErrDaemonUnavailable
	}
	conn, err := dialRPC(socketPath, timeout)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", socketPath, err)
	}
	return &Client{conn: conn, r: bufio.NewReader(conn)}, nil
}

// DialAddr connects to a TCP RPC endpoint.
func DialAddr(ctx context.Context, addr string, timeout time.Duration) (*Client, error) {
	conn, err := dialTCP(addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", addr, err)
	}
	return &Client{conn: conn, r: bufio.NewReader(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// call writes req and streams every Response until KindDone, invoking
// onItem for each KindItem frame. Serialized by c.mu so a Client is safe
// for sequential reuse across goroutines, one call completing before the
// next sends.
func (c *Client) call(req Request, onItem func(json.RawMessage) error) (truncated bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req.Seq = c.seq.Add(1)
	if err := writeFrame(c.conn, req); err != nil {
		return false, err
	}

	for {
		var resp Response
		if err := readFrame(c.r, &resp); err != nil {
			if err == io.EOF {
				return false, fmt.Errorf("rpc: %w", ErrDaemonUnavailable)
			}
			return false, err
		}
		switch resp.Kind {
		case KindItem:
			if onItem != nil {
				if err := onItem(resp.Payload); err != nil {
					return false, err
				}
			}
		case KindDone:
			return resp.Truncated, nil
		case KindError:
			return false, fmt.Errorf("rpc: %s", resp.Error)
		default:
			return false, fmt.Errorf("rpc: unexpected response kind %q", resp.Kind)
		}
	}
}

// Search streams ranked hits for a query.
func (c *Client) Search(ctx context.Context, p SearchRequestPayload) ([]HitPayload, bool, error) {
	var hits []HitPayload
	truncated, err := c.call(Request{Method: MethodSearch, Payload: mustMarshal(p)}, func(raw json.RawMessage) error {
		var h HitPayload
		if err := json.Unmarshal(raw, &h); err != nil {
			return err
		}
		hits = append(hits, h)
		return nil
	})
	return hits, truncated, err
}

// Get fetches one conversation by id.
func (c *Client) Get(ctx context.Context, id string) (*types.Conversation, error) {
	var conv *types.Conversation
	_, err := c.call(Request{Method: MethodGet, Payload: mustMarshal(GetRequestPayload{ID: id})}, func(raw json.RawMessage) error {
		conv = &types.Conversation{}
		return json.Unmarshal(raw, conv)
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// List fetches a filtered, paged conversation list.
func (c *Client) List(ctx context.Context, filter types.Filter, paging types.Paging) ([]*types.Conversation, error) {
	var convs []*types.Conversation
	_, err := c.call(Request{Method: MethodList, Payload: mustMarshal(ListRequestPayload{Filter: filter, Paging: paging})}, func(raw json.RawMessage) error {
		var conv types.Conversation
		if err := json.Unmarshal(raw, &conv); err != nil {
			return err
		}
		convs = append(convs, &conv)
		return nil
	})
	return convs, err
}

// Stats fetches the global/per-source counts.
func (c *Client) Stats(ctx context.Context) (*types.Stats, error) {
	var stats *types.Stats
	_, err := c.call(Request{Method: MethodStats}, func(raw json.RawMessage) error {
		stats = &types.Stats{}
		return json.Unmarshal(raw, stats)
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ListWatch blocks server-side until a conversation updates after since,
// or timeout elapses, then returns the matching page.
func (c *Client) ListWatch(ctx context.Context, filter types.Filter, since int64, timeout time.Duration) ([]*types.Conversation, error) {
	var convs []*types.Conversation
	_, err := c.call(Request{Method: MethodListWatch, Payload: mustMarshal(ListWatchRequestPayload{
		Filter: filter, Since: since, TimeoutMs: timeout.Milliseconds(),
	})}, func(raw json.RawMessage) error {
		var conv types.Conversation
		if err := json.Unmarshal(raw, &conv); err != nil {
			return err
		}
		convs = append(convs, &conv)
		return nil
	})
	return convs, err
}

// GetMutations returns conversations updated since the given epoch-ms
// timestamp without blocking.
func (c *Client) GetMutations(ctx context.Context, since int64) ([]*types.Conversation, error) {
	var convs []*types.Conversation
	_, err := c.call(Request{Method: MethodGetMutations, Payload: mustMarshal(GetMutationsRequestPayload{Since: since})}, func(raw json.RawMessage) error {
		var conv types.Conversation
		if err := json.Unmarshal(raw, &conv); err != nil {
			return err
		}
		convs = append(convs, &conv)
		return nil
	})
	return convs, err
}

// mustMarshal is only used on request payload types that are always
// marshalable (no channels, funcs, or cyclic pointers), so a marshal
// error here indicates a programming mistake, not bad input.
func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("rpc: marshal request payload: %v", err))
	}
	return b
}
