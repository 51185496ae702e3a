package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/respkit/protocol"
)

const readBufferSize = 16 * 1024

var (
	ErrClosed = errors.New("Connection is closed")
	ErrBroken = errors.New("Connection is broken")
)

type Options struct {
	// Reader configures decoding. With RESP3, the default, Dial negotiates the
	// protocol with HELLO 3.
	Reader protocol.Options

	// PushHandler receives RESP3 push messages that arrive between replies.
	// Without one they are dropped.
	PushHandler func(protocol.Value)

	DialTimeout time.Duration

	Log *zap.Logger
}

// Conn is a single connection speaking RESP. Requests are serialised: one
// command, or one pipeline, is in flight at a time.
type Conn struct {
	mu sync.Mutex

	conn   net.Conn
	reader *protocol.Reader
	buf    []byte

	// err is set once the connection cannot be used anymore.
	err    error
	closed bool

	onPush func(protocol.Value)
	log    *zap.Logger
}

// Dial connects to addr and negotiates the protocol version.
func Dial(ctx context.Context, addr string, options Options) (*Conn, error) {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	if err := options.Reader.Validate(); err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: options.DialTimeout}

	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("Failed to connect to %s: %w", addr, err)
	}

	readerOpts := options.Reader
	readerOpts.Log = log.Named("reader")

	c := &Conn{
		conn:   netConn,
		reader: protocol.NewReader(readerOpts),
		buf:    make([]byte, readBufferSize),
		onPush: options.PushHandler,
		log:    log.With(zap.String("addr", addr)),
	}

	if options.Reader.Protocol != protocol.RESP2 {
		v, err := c.Do(ctx, "HELLO", 3)
		if err == nil {
			err = v.ErrorOrNil()
		}

		if err != nil {
			return nil, multierr.Append(fmt.Errorf("Failed to negotiate RESP3: %w", err), c.Close())
		}
	}

	c.log.Debug("Connected")

	return c, nil
}

// Do sends one command and waits for its reply. A reply error is returned as a
// value unless the reader was configured to raise it.
func (c *Conn) Do(ctx context.Context, args ...interface{}) (protocol.Value, error) {
	replies, err := c.roundTrip(ctx, 1, args)
	if len(replies) == 0 {
		return protocol.Value{}, err
	}

	return replies[0], err
}

// Pipeline sends all commands in a single write and reads their replies in
// order. Non-fatal errors of individual replies are combined with multierr.
func (c *Conn) Pipeline(ctx context.Context, cmds ...[]interface{}) ([]protocol.Value, error) {
	if len(cmds) == 0 {
		return nil, nil
	}

	return c.roundTrip(ctx, len(cmds), cmds...)
}

// Close closes the connection. It is safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.err = ErrClosed

	return c.conn.Close()
}

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *Conn) roundTrip(ctx context.Context, n int, cmds ...[]interface{}) ([]protocol.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}

	payload, err := protocol.PackPipeline(cmds...)
	if err != nil {
		return nil, err
	}

	defer c.watch(ctx)()

	if _, err := c.conn.Write(payload); err != nil {
		return nil, c.fail(ctx, err)
	}

	var (
		replies = make([]protocol.Value, 0, n)
		errs    error
	)

	for len(replies) < n {
		v, err := c.readReply()
		switch {
		case err == nil:
		case errors.Is(err, protocol.ErrProtocol), isNetError(err):
			return replies, c.fail(ctx, err)
		default:
			errs = multierr.Append(errs, err)
		}

		if v.Kind == protocol.KindPush {
			c.push(v)
			continue
		}

		replies = append(replies, v)
	}

	return replies, errs
}

// watch makes blocking network calls return once ctx is done. The returned
// func stops watching and waits for a running cancellation to finish, so it
// cannot touch the deadline of a later call.
func (c *Conn) watch(ctx context.Context) func() {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
	} else {
		_ = c.conn.SetDeadline(time.Time{})
	}

	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		_ = c.conn.SetDeadline(time.Now())
	})

	return func() {
		if !stop() {
			<-fired
		}
	}
}

func (c *Conn) readReply() (protocol.Value, error) {
	for {
		v, err := c.reader.GetReply()
		if !errors.Is(err, protocol.ErrNeedMoreData) {
			return v, err
		}

		n, err := c.conn.Read(c.buf)
		if n > 0 {
			c.reader.Feed(c.buf[:n])
			continue
		}

		if err != nil {
			return protocol.Value{}, &net.OpError{Op: "read", Net: "tcp", Addr: c.conn.RemoteAddr(), Err: err}
		}
	}
}

// push hands an out of band push message to the push handler.
func (c *Conn) push(v protocol.Value) {
	if c.onPush == nil {
		c.log.Debug("Dropped push message", zap.Int("len", v.Len()))
		return
	}

	c.onPush(v)
}

// fail breaks the connection after an error that leaves the stream in an
// unknown state.
func (c *Conn) fail(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}

	c.log.Warn("Connection broken", zap.Error(err))

	c.err = fmt.Errorf("%w: %s", ErrBroken, err)
	c.closed = true

	if cerr := c.conn.Close(); cerr != nil {
		err = multierr.Append(err, cerr)
	}

	return err
}

func isNetError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}
