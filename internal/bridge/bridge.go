package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tempo/internal/logging"
	"tempo/internal/protocol"
	"tempo/internal/transport"
)

// CancelFunc releases a callback registration. Calling it more than once is safe.
type CancelFunc func()

type result struct {
	env protocol.Envelope
	err error
}

type waiter struct {
	ch chan result
}

func newWaiter() *waiter {
	return &waiter{ch: make(chan result, 1)}
}

func (w *waiter) resolve(r result) {
	select {
	case w.ch <- r:
	default:
	}
}

type pendingRequest struct {
	id      string
	request protocol.Channel
	reply   protocol.Channel
	w       *waiter
}

type handler struct {
	id uint64
	fn func(protocol.Envelope)
}

// Bridge pairs requests with replies over a transport.Conn.
type Bridge struct {
	conn   transport.Conn
	logger *slog.Logger
	newID  func() string

	mu       sync.Mutex
	waiters  map[protocol.Channel]*waiter
	pending  map[string]*pendingRequest
	order    []string
	once     map[protocol.Channel][]handler
	subs     map[protocol.Channel][]handler
	nextID   uint64
	outbound []protocol.Envelope
	signal   chan struct{}
	closed   bool
	done     chan struct{}
}

// New builds a Bridge over conn. Call Run to start moving envelopes.
func New(conn transport.Conn, logger *slog.Logger) *Bridge {
	return &Bridge{
		conn:    conn,
		logger:  logging.NewComponentLogger(logger, "bridge"),
		newID:   uuid.NewString,
		waiters: map[protocol.Channel]*waiter{},
		pending: map[string]*pendingRequest{},
		once:    map[protocol.Channel][]handler{},
		subs:    map[protocol.Channel][]handler{},
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Run reads inbound envelopes and flushes the outbound queue until ctx ends
// or the connection closes. Pending calls fail with ErrClosed on return.
func (b *Bridge) Run(ctx context.Context) error {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		b.writeLoop(ctx)
	}()

	readErr := make(chan error, 1)
	go func() {
		for {
			env, err := b.conn.Receive()
			if err != nil {
				readErr <- err
				return
			}
			b.dispatch(env)
		}
	}()

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-readErr:
		if errors.Is(err, transport.ErrClosed) {
			err = nil
		}
	}
	b.shutdown()
	_ = b.conn.Close()
	<-writerDone
	return err
}

// Done is closed once the bridge stops.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

func (b *Bridge) shutdown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	waiters := b.waiters
	pending := b.pending
	b.waiters = map[protocol.Channel]*waiter{}
	b.pending = map[string]*pendingRequest{}
	b.order = nil
	b.mu.Unlock()

	for _, w := range waiters {
		w.resolve(result{err: ErrClosed})
	}
	for _, p := range pending {
		p.w.resolve(result{err: ErrClosed})
	}
	close(b.done)
}

func (b *Bridge) writeLoop(ctx context.Context) {
	for {
		b.mu.Lock()
		batch := b.outbound
		b.outbound = nil
		closed := b.closed
		b.mu.Unlock()

		for _, env := range batch {
			if err := b.conn.Send(env); err != nil {
				b.logger.Warn("send failed",
					logging.Channel(string(env.Channel)),
					logging.Error(err))
			}
		}
		if closed {
			return
		}
		select {
		case <-b.signal:
		case <-b.done:
		case <-ctx.Done():
			return
		}
	}
}

// Send enqueues a fire-and-forget envelope. It never blocks on the transport.
func (b *Bridge) Send(channel protocol.Channel, payload any) error {
	return b.send(channel, "", payload)
}

// Reply sends payload on channel carrying the correlation ID of req.
func (b *Bridge) Reply(req protocol.Envelope, channel protocol.Channel, payload any) error {
	return b.send(channel, req.CorrelationID, payload)
}

func (b *Bridge) send(channel protocol.Channel, correlationID string, payload any) error {
	env, err := protocol.NewEnvelope(channel, correlationID, payload)
	if err != nil {
		return err
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.outbound = append(b.outbound, env)
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
	return nil
}

// Request sends payload on channel and waits for the reply channel registered
// for it. A server-error carrying the same correlation ID fails the call with
// a RemoteError.
func (b *Bridge) Request(ctx context.Context, channel protocol.Channel, payload any, timeout time.Duration) (protocol.Envelope, error) {
	reply, ok := channel.Reply()
	if !ok {
		reply = protocol.ServerError
	}
	p := &pendingRequest{id: b.newID(), request: channel, reply: reply, w: newWaiter()}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return protocol.Envelope{}, ErrClosed
	}
	b.pending[p.id] = p
	b.order = append(b.order, p.id)
	b.mu.Unlock()
	defer b.removePending(p.id)

	if err := b.send(channel, p.id, payload); err != nil {
		return protocol.Envelope{}, err
	}
	b.logger.Debug("request sent",
		logging.Channel(string(channel)),
		logging.String(logging.FieldCorrelationID, p.id))
	return b.await(ctx, p.w, reply, timeout)
}

// WaitForResponse waits for the next envelope on channel. A second wait on the
// same channel replaces the first, which then fails with ErrReplaced.
func (b *Bridge) WaitForResponse(ctx context.Context, channel protocol.Channel, timeout time.Duration) (protocol.Envelope, error) {
	w := newWaiter()
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return protocol.Envelope{}, ErrClosed
	}
	if prev, ok := b.waiters[channel]; ok {
		prev.resolve(result{err: ErrReplaced})
	}
	b.waiters[channel] = w
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		if b.waiters[channel] == w {
			delete(b.waiters, channel)
		}
		b.mu.Unlock()
	}()
	return b.await(ctx, w, channel, timeout)
}

func (b *Bridge) await(ctx context.Context, w *waiter, channel protocol.Channel, timeout time.Duration) (protocol.Envelope, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-w.ch:
		return r.env, r.err
	case <-timer.C:
		b.logger.Debug("wait timed out",
			logging.Channel(string(channel)),
			logging.Duration("timeout", timeout))
		return protocol.Envelope{}, &TimeoutError{Channel: channel, After: timeout}
	case <-ctx.Done():
		return protocol.Envelope{}, ctx.Err()
	}
}

func (b *Bridge) removePending(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// HandleOnce runs fn for the next envelope on channel, then deregisters.
func (b *Bridge) HandleOnce(channel protocol.Channel, fn func(protocol.Envelope)) CancelFunc {
	return b.register(b.once, channel, fn)
}

// Subscribe runs fn for every envelope on channel until cancelled. Callbacks
// run on the read loop and must not block.
func (b *Bridge) Subscribe(channel protocol.Channel, fn func(protocol.Envelope)) CancelFunc {
	return b.register(b.subs, channel, fn)
}

func (b *Bridge) register(table map[protocol.Channel][]handler, channel protocol.Channel, fn func(protocol.Envelope)) CancelFunc {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	table[channel] = append(table[channel], handler{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := table[channel]
		for i, h := range list {
			if h.id == id {
				table[channel] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(table[channel]) == 0 {
			delete(table, channel)
		}
	}
}

// PendingCount reports outstanding requests and waiters.
func (b *Bridge) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending) + len(b.waiters)
}

func (b *Bridge) dispatch(env protocol.Envelope) {
	b.mu.Lock()
	var target *waiter
	var res result

	if p, ok := b.pending[env.CorrelationID]; ok && env.CorrelationID != "" {
		switch env.Channel {
		case p.reply:
			target, res = p.w, result{env: env}
		case protocol.ServerError:
			target, res = p.w, result{err: decodeRemoteError(env, p.request)}
		}
	}
	if target == nil {
		if w, ok := b.waiters[env.Channel]; ok {
			target, res = w, result{env: env}
			delete(b.waiters, env.Channel)
		}
	}
	if target == nil && env.CorrelationID == "" {
		for _, id := range b.order {
			if p := b.pending[id]; p != nil && p.reply == env.Channel {
				target, res = p.w, result{env: env}
				break
			}
		}
	}

	once := b.once[env.Channel]
	delete(b.once, env.Channel)
	subs := append([]handler(nil), b.subs[env.Channel]...)
	b.mu.Unlock()

	if target != nil {
		target.resolve(res)
	}
	for _, h := range once {
		h.fn(env)
	}
	for _, h := range subs {
		h.fn(env)
	}
	if target == nil && len(once) == 0 && len(subs) == 0 {
		b.logger.Debug("dropping unmatched envelope",
			logging.Channel(string(env.Channel)),
			logging.String(logging.FieldCorrelationID, env.CorrelationID))
	}
}

func decodeRemoteError(env protocol.Envelope, request protocol.Channel) error {
	var reply protocol.ServerErrorReply
	if err := env.Decode(&reply); err != nil {
		return &RemoteError{Channel: request, Message: err.Error()}
	}
	channel := reply.Channel
	if channel == "" {
		channel = request
	}
	return &RemoteError{Channel: channel, Message: reply.Error, Kind: reply.Kind}
}
