package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"tempo/internal/bridge"
	"tempo/internal/logging"
	"tempo/internal/protocol"
	"tempo/internal/services"
)

// HandlerFunc serves one request and returns the payload of its success reply.
type HandlerFunc func(ctx context.Context, env protocol.Envelope) (any, error)

// Dispatcher routes client requests to handlers.
type Dispatcher struct {
	logger *slog.Logger
	routes map[protocol.Channel]HandlerFunc
	wg     sync.WaitGroup
}

// NewDispatcher returns an empty routing table.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		logger: logging.NewComponentLogger(logger, "dispatcher"),
		routes: map[protocol.Channel]HandlerFunc{},
	}
}

// Handle registers fn for channel. Only client-originated channels can be routed.
func (d *Dispatcher) Handle(channel protocol.Channel, fn HandlerFunc) {
	if dir, ok := channel.Direction(); !ok || dir != protocol.ClientToServer {
		panic(fmt.Sprintf("dispatcher: %s is not a client channel", channel))
	}
	d.routes[channel] = fn
}

// Attach subscribes every route on b. The returned func detaches them.
func (d *Dispatcher) Attach(ctx context.Context, b *bridge.Bridge) bridge.CancelFunc {
	cancels := make([]bridge.CancelFunc, 0, len(d.routes))
	for channel, fn := range d.routes {
		cancels = append(cancels, b.Subscribe(channel, func(env protocol.Envelope) {
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				d.serve(ctx, b, env, fn)
			}()
		}))
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

// Wait blocks until in-flight handlers return.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) serve(ctx context.Context, b *bridge.Bridge, env protocol.Envelope, fn HandlerFunc) {
	ctx = services.WithScope(ctx, services.Scope{Channel: string(env.Channel), RequestID: env.CorrelationID})
	logger := logging.WithContext(ctx, d.logger)

	payload, err := d.invoke(ctx, env, fn)
	if err != nil {
		logging.WarnWithContext(logger, "request failed", "request_failed",
			logging.Error(err),
			logging.String("kind", services.Kind(err)),
			logging.String(logging.FieldImpact, "client receives server-error"))
		reply := protocol.ServerErrorReply{Error: err.Error(), Kind: services.Kind(err), Channel: env.Channel}
		if sendErr := b.Reply(env, protocol.ServerError, reply); sendErr != nil {
			logger.Warn("server-error reply not sent", logging.Error(sendErr))
		}
		return
	}

	reply, ok := env.Channel.Reply()
	if !ok {
		return
	}
	if payload == nil {
		payload = protocol.Empty{}
	}
	if err := b.Reply(env, reply, payload); err != nil {
		logger.Warn("reply not sent", logging.String("reply", string(reply)), logging.Error(err))
		return
	}
	logger.Debug("request served", logging.String("reply", string(reply)))
}

func (d *Dispatcher) invoke(ctx context.Context, env protocol.Envelope, fn HandlerFunc) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(d.logger, "handler panic", "handler_panic",
				logging.Channel(string(env.Channel)),
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())))
			err = fmt.Errorf("%s handler panicked: %v", env.Channel, r)
		}
	}()
	return fn(ctx, env)
}
