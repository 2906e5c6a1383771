package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/MegaGrindStone/go-mcp"
	"github.com/tmaxmax/go-sse"
)

// conn is a single-session mcp.ServerTransport bound to one SSE stream. It
// is both the transport and its only session: Sessions yields the conn once
// and parks until the session stops. Inbound messages arrive from the
// message handler through Deliver; outbound messages are written onto the
// SSE stream by a dedicated goroutine, since the protocol server sends from
// several goroutines and the stream writer is not safe for concurrent use.
type conn struct {
	id     string
	sess   *sse.Session
	logger *slog.Logger

	inbound  chan mcp.JSONRPCMessage
	outbound chan connSendMsg

	stopOnce    sync.Once
	done        chan struct{}
	serving     chan struct{}
	readClosed  chan struct{}
	writeClosed chan struct{}
	closed      chan struct{}
}

type connSendMsg struct {
	msg  *sse.Message
	errs chan error
}

func newConn(id string, sess *sse.Session, logger *slog.Logger) *conn {
	return &conn{
		id:          id,
		sess:        sess,
		logger:      logger,
		inbound:     make(chan mcp.JSONRPCMessage, 5),
		outbound:    make(chan connSendMsg, 5),
		done:        make(chan struct{}),
		serving:     make(chan struct{}),
		readClosed:  make(chan struct{}),
		writeClosed: make(chan struct{}),
		closed:      make(chan struct{}),
	}
}

// Sessions implements the mcp.ServerTransport interface. The iterator
// yields the conn itself as the only session and keeps the transport open
// until Stop.
func (c *conn) Sessions() iter.Seq[mcp.Session] {
	return func(yield func(mcp.Session) bool) {
		defer close(c.closed)

		close(c.serving)
		go c.processOutbound()

		yield(c)
		<-c.done
	}
}

// Shutdown implements the mcp.ServerTransport interface by waiting for the
// Sessions loop to exit.
func (c *conn) Shutdown(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
	}
	return nil
}

func (c *conn) ID() string { return c.id }

// Send implements the mcp.Session interface. The message is queued for the
// stream writer and the call reports the write result, so protocol-server
// send timeouts apply to the actual SSE write.
func (c *conn) Send(ctx context.Context, msg mcp.JSONRPCMessage) error {
	msgBs, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	sseMsg := &sse.Message{
		Type: sse.Type("message"),
	}
	sseMsg.AppendData(string(msgBs))

	out := connSendMsg{
		msg:  sseMsg,
		errs: make(chan error, 1),
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return fmt.Errorf("session is closed")
	case c.outbound <- out:
	}

	select {
	case err := <-out.errs:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return fmt.Errorf("session is closed")
	}
}

// Messages implements the mcp.Session interface, yielding messages the
// client POSTed to the message endpoint.
func (c *conn) Messages() iter.Seq[mcp.JSONRPCMessage] {
	return func(yield func(mcp.JSONRPCMessage) bool) {
		defer close(c.readClosed)

		for {
			select {
			case <-c.done:
				return
			case msg := <-c.inbound:
				if !yield(msg) {
					return
				}
			}
		}
	}
}

// Stop implements the mcp.Session interface. Both the protocol server and
// the registry release sessions, so Stop tolerates repeat calls.
func (c *conn) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
	// The pumps only run once a protocol server starts consuming the
	// transport; a session refused before that has nothing to drain.
	select {
	case <-c.serving:
	default:
		return
	}
	<-c.readClosed
	<-c.writeClosed
}

// Deliver routes one client message into the session. It fails once the
// session has stopped, which the message handler reports as an expired
// session.
func (c *conn) Deliver(ctx context.Context, msg mcp.JSONRPCMessage) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return fmt.Errorf("session is closed")
	case c.inbound <- msg:
		return nil
	}
}

func (c *conn) processOutbound() {
	defer close(c.writeClosed)

	for {
		var out connSendMsg
		select {
		case <-c.done:
			return
		case out = <-c.outbound:
		}

		if err := c.sess.Send(out.msg); err != nil {
			c.logger.Warn("failed to send message", slog.String("err", err.Error()))
			out.errs <- err
			continue
		}
		if err := c.sess.Flush(); err != nil {
			c.logger.Warn("failed to flush message", slog.String("err", err.Error()))
			out.errs <- err
			continue
		}

		out.errs <- nil
	}
}
