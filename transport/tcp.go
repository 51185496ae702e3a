package transport

import (
	"context"
	"errors"
	"net"
	"runtime"
	"strconv"
	"sync"

	reuseport "github.com/kavu/go_reuseport"
	"github.com/tidwall/redcon"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// TCP is a small RESP server answering from canned replies. It is what the
// client is tested against and what `respkit stub` runs.
type TCP struct {
	cancel     context.CancelFunc
	stopWaiter sync.WaitGroup

	addr      string
	reuseport bool

	numListeners int
	listeners    []*TCPListener

	handler *handler

	log *zap.Logger
}

func NewTCP(options Options) *TCP {
	numListeners := options.NumListeners

	if numListeners < 1 {
		numListeners = runtime.NumCPU()
	}

	// Without SO_REUSEPORT, or with an ephemeral port, listeners cannot share
	// an address.
	if !options.Reuseport || options.Port == 0 {
		numListeners = 1
	}

	protocol := options.Protocol
	if protocol == 0 {
		protocol = 2
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &TCP{
		addr:         net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		reuseport:    options.Reuseport,
		numListeners: numListeners,
		listeners:    make([]*TCPListener, 0, numListeners),
		handler:      newHandler(options.Replies, protocol, log.Named("handler")),
		log:          log,
	}
}

// Start binds all listeners and serves them in the background. It returns once
// the server accepts connections.
func (t *TCP) Start(parentCtx context.Context) error {
	ctx, cancel := context.WithCancel(parentCtx)
	t.cancel = cancel

	t.log.Info("Starting tcp listeners", zap.Int("count", t.numListeners))

	for i := 0; i < t.numListeners; i++ {
		if err := t.startListener(ctx); err != nil {
			return multierr.Append(err, t.Close())
		}
	}

	return nil
}

// Addr returns the address the first listener is bound to.
func (t *TCP) Addr() net.Addr {
	if len(t.listeners) == 0 {
		return nil
	}

	return t.listeners[0].Addr()
}

// ListenToCommands returns a channel receiving every command the server
// handles from now on. It is closed by Close.
func (t *TCP) ListenToCommands() <-chan Command {
	return t.handler.listen()
}

func (t *TCP) startListener(ctx context.Context) error {
	ln, err := t.listen()
	if err != nil {
		return err
	}

	listener := newTCPListener(
		ctx,
		ln,
		t.handler,
		t.log.Named("listener").With(zap.Int("listener", len(t.listeners))),
	)

	t.listeners = append(t.listeners, listener)

	t.stopWaiter.Add(1)
	go func() {
		defer t.stopWaiter.Done()

		if err := listener.Serve(); err != nil {
			t.log.Error("Listener stopped serving", zap.Error(err))
		}
	}()

	return nil
}

func (t *TCP) listen() (net.Listener, error) {
	if t.reuseport {
		return reuseport.Listen("tcp", t.addr)
	}

	return net.Listen("tcp", t.addr)
}

// Close immediately closes all listeners and their connections.
func (t *TCP) Close() (err error) {
	t.log.Info("Stopping TCP server")

	if t.cancel != nil {
		t.cancel()
	}

	for _, listener := range t.listeners {
		err = multierr.Append(err, listener.Close())
	}

	t.stopWaiter.Wait()
	t.handler.close()

	t.log.Info("TCP server stopped")

	return err
}

// TCPListener serves RESP on one listening socket.
type TCPListener struct {
	ctx context.Context
	ln  net.Listener

	handler *handler
	log     *zap.Logger

	mu          sync.Mutex
	activeConns map[redcon.Conn]struct{}
	closed      bool
}

func newTCPListener(
	ctx context.Context,
	ln net.Listener,
	handler *handler,
	log *zap.Logger,
) *TCPListener {
	return &TCPListener{
		ctx:         ctx,
		ln:          ln,
		handler:     handler,
		activeConns: make(map[redcon.Conn]struct{}),
		log:         log,
	}
}

func (t *TCPListener) Addr() net.Addr {
	return t.ln.Addr()
}

// Serve blocks until the listener is closed or its context is done.
func (t *TCPListener) Serve() error {
	go func() {
		<-t.ctx.Done()

		if err := t.Close(); err != nil {
			t.log.Warn("TCP Listener did not close cleanly", zap.Error(err))
		}
	}()

	t.log.Info("Listening", zap.String("addr", t.ln.Addr().String()))

	err := redcon.Serve(t.ln, t.handler.serve, t.accept, t.closeConn)
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	t.log.Info("Listener stopped")
	return nil
}

// ActiveConns returns the number of open client connections.
func (t *TCPListener) ActiveConns() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.activeConns)
}

// Close stops accepting and closes every active connection.
func (t *TCPListener) Close() (err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	if cerr := t.ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		err = multierr.Append(err, cerr)
	}

	for conn := range t.activeConns {
		if cerr := conn.NetConn().Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
		delete(t.activeConns, conn)
	}

	return err
}

func (t *TCPListener) accept(conn redcon.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}

	t.activeConns[conn] = struct{}{}

	return t.handler.accept(conn)
}

func (t *TCPListener) closeConn(conn redcon.Conn, err error) {
	t.mu.Lock()
	delete(t.activeConns, conn)
	t.mu.Unlock()

	if err != nil {
		t.log.Debug("Connection closed with error",
			zap.String("remote", conn.RemoteAddr()),
			zap.Error(err))
	}
}
