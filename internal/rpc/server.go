package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/byteowlz/hstry/internal/index"
	"github.com/byteowlz/hstry/internal/search"
	"github.com/byteowlz/hstry/internal/storage"
	"github.com/byteowlz/hstry/internal/types"
)

// Server answers Search/Get/List/Stats plus the ListWatch/GetMutations
// change-feed methods over a UNIX socket (or, where listenTCP is used,
// a loopback TCP port).
type Server struct {
	Store storage.Storage
	Index *index.Index

	// OnRequest, when set, is called once per dispatched request. The
	// Service uses it to count RPC traffic.
	OnRequest func(Method)

	listener net.Listener

	mu        sync.Mutex
	waiters   []chan struct{} // woken by NotifyMutation for blocking ListWatch calls
	lastWrite int64           // epoch ms of the most recent successful mutation
}

// NewServer builds a Server bound to store and idx. Call Serve to accept
// connections on a listener obtained from Listen.
func NewServer(store storage.Storage, idx *index.Index) *Server {
	return &Server{Store: store, Index: idx}
}

// Listen opens the RPC endpoint at socketPath, removing any stale socket
// left by a prior unclean shutdown first.
func Listen(socketPath string) (net.Listener, error) {
	return listenRPC(socketPath)
}

// ListenAddr opens a TCP RPC endpoint, for deployments that expose the
// Service over loopback TCP instead of a UNIX socket.
func ListenAddr(addr string) (net.Listener, error) {
	return listenTCP(addr)
}

// Serve accepts connections on l until ctx is cancelled or l is closed.
// Each connection is handled by its own goroutine so a slow or
// long-polling client (ListWatch) never blocks other callers.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.listener = l
	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := l.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("rpc: accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// NotifyMutation wakes every pending ListWatch call. The Service's
// Watcher calls this after a poll that committed at least one batch
// (and ran the index drain and at-ingest dedup) so a watching client
// observes new data without polling.
func (s *Server) NotifyMutation(atMs int64) {
	s.mu.Lock()
	if atMs > s.lastWrite {
		s.lastWrite = atMs
	}
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()
	for _, ch := range waiters {
		close(ch)
	}
}

func (s *Server) await(ctx context.Context, timeout time.Duration) {
	s.mu.Lock()
	ch := make(chan struct{})
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)

	for {
		var req Request
		if err := readFrame(r, &req); err != nil {
			return // client closed or frame error; nothing more to answer
		}
		s.dispatch(ctx, conn, req)
	}
}

func (s *Server) dispatch(ctx context.Context, conn net.Conn, req Request) {
	if s.OnRequest != nil {
		s.OnRequest(req.Method)
	}
	switch req.Method {
	case MethodSearch:
		s.handleSearch(ctx, conn, req)
	case MethodGet:
		s.handleGet(ctx, conn, req)
	case MethodList:
		s.handleList(ctx, conn, req)
	case MethodStats:
		s.handleStats(ctx, conn, req)
	case MethodListWatch:
		s.handleListWatch(ctx, conn, req)
	case MethodGetMutations:
		s.handleGetMutations(ctx, conn, req)
	default:
		s.sendError(conn, req.Seq, fmt.Errorf("rpc: unknown method %q", req.Method))
	}
}

func (s *Server) handleSearch(ctx context.Context, conn net.Conn, req Request) {
	var p SearchRequestPayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		s.sendError(conn, req.Seq, err)
		return
	}
	res, err := search.Search(ctx, s.Index, s.Store, search.Request{
		Query: p.Query, Mode: index.Mode(p.Mode), Filter: p.Filter, Limit: p.Limit,
	})
	if err != nil {
		s.sendError(conn, req.Seq, err)
		return
	}
	for _, h := range res.Hits {
		if err := s.sendItem(conn, req.Seq, HitPayload{Conversation: h.Conversation, Rank: h.Rank, Remote: h.Remote}); err != nil {
			return
		}
	}
	s.sendDone(conn, req.Seq, res.Truncated)
}

func (s *Server) handleGet(ctx context.Context, conn net.Conn, req Request) {
	var p GetRequestPayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		s.sendError(conn, req.Seq, err)
		return
	}
	conv, err := s.Store.GetConversation(ctx, p.ID)
	if err != nil {
		s.sendError(conn, req.Seq, err)
		return
	}
	if err := s.sendItem(conn, req.Seq, conv); err != nil {
		return
	}
	s.sendDone(conn, req.Seq, false)
}

func (s *Server) handleList(ctx context.Context, conn net.Conn, req Request) {
	var p ListRequestPayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		s.sendError(conn, req.Seq, err)
		return
	}
	convs, err := s.Store.ListConversations(ctx, p.Filter, p.Paging)
	if err != nil {
		s.sendError(conn, req.Seq, err)
		return
	}
	for _, c := range convs {
		if err := s.sendItem(conn, req.Seq, c); err != nil {
			return
		}
	}
	s.sendDone(conn, req.Seq, false)
}

func (s *Server) handleStats(ctx context.Context, conn net.Conn, req Request) {
	stats, err := s.Store.Stats(ctx)
	if err != nil {
		s.sendError(conn, req.Seq, err)
		return
	}
	if err := s.sendItem(conn, req.Seq, stats); err != nil {
		return
	}
	s.sendDone(conn, req.Seq, false)
}

// handleListWatch blocks until a mutation lands after p.Since, or the
// client's timeout elapses, then returns the matching page (possibly
// empty on timeout) exactly like List.
func (s *Server) handleListWatch(ctx context.Context, conn net.Conn, req Request) {
	var p ListWatchRequestPayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		s.sendError(conn, req.Seq, err)
		return
	}
	timeout := time.Duration(p.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	s.mu.Lock()
	pending := s.lastWrite <= p.Since
	s.mu.Unlock()
	if pending {
		s.await(ctx, timeout)
	}

	convs, err := s.Store.ListConversations(ctx, p.Filter, types.Paging{Limit: 200})
	if err != nil {
		s.sendError(conn, req.Seq, err)
		return
	}
	for _, c := range convs {
		if c.UpdatedAt <= p.Since {
			continue
		}
		if err := s.sendItem(conn, req.Seq, c); err != nil {
			return
		}
	}
	s.sendDone(conn, req.Seq, false)
}

// handleGetMutations returns conversations updated since p.Since without
// blocking, for clients that prefer polling over ListWatch.
func (s *Server) handleGetMutations(ctx context.Context, conn net.Conn, req Request) {
	var p GetMutationsRequestPayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		s.sendError(conn, req.Seq, err)
		return
	}
	convs, err := s.Store.ListConversations(ctx, types.Filter{}, types.Paging{Limit: 1000})
	if err != nil {
		s.sendError(conn, req.Seq, err)
		return
	}
	for _, c := range convs {
		if c.UpdatedAt <= p.Since {
			continue
		}
		if err := s.sendItem(conn, req.Seq, c); err != nil {
			return
		}
	}
	s.sendDone(conn, req.Seq, false)
}

func (s *Server) sendItem(conn net.Conn, seq uint64, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return writeFrame(conn, Response{Seq: seq, Kind: KindError, Error: err.Error()})
	}
	return writeFrame(conn, Response{Seq: seq, Kind: KindItem, Payload: payload})
}

func (s *Server) sendDone(conn net.Conn, seq uint64, truncated bool) {
	_ = writeFrame(conn, Response{Seq: seq, Kind: KindDone, Truncated: truncated})
}

func (s *Server) sendError(conn net.Conn, seq uint64, err error) {
	if errors.Is(err, io.EOF) {
		return
	}
	_ = writeFrame(conn, Response{Seq: seq, Kind: KindError, Error: err.Error()})
}
