package adapter

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davgate/davgate/internal/logger"
)

// ConnectionHandler serves one accepted socket. Serve blocks until the
// connection closes or the context is cancelled.
type ConnectionHandler interface {
	Serve(ctx context.Context)
}

// ConnectionFactory wraps accepted sockets in protocol handlers.
type ConnectionFactory interface {
	NewConnection(conn net.Conn) ConnectionHandler
}

// BaseConfig holds the listener settings shared by all front-ends.
type BaseConfig struct {
	// BindAddress is the IP to bind. Empty binds all interfaces.
	BindAddress string

	// Port is the TCP port to listen on.
	Port int

	// MaxConnections caps concurrent clients. 0 means unlimited.
	MaxConnections int

	// ShutdownTimeout bounds the wait for active connections during
	// graceful shutdown before they are force-closed.
	ShutdownTimeout time.Duration

	// MetricsLogInterval enables periodic connection-count logging
	// when non-zero.
	MetricsLogInterval time.Duration
}

// MetricsRecorder records connection lifecycle metrics. A nil recorder
// disables collection.
type MetricsRecorder interface {
	RecordConnectionAccepted()
	RecordConnectionClosed()
	RecordConnectionForceClosed()
	SetActiveConnections(count int32)
}

// OnConnectionClose runs when a connection goroutine exits, before the
// WaitGroup and semaphore release. Used for protocol cleanup such as
// releasing the Exchange session of an abruptly dropped socket.
type OnConnectionClose func(addr string)

// BaseAdapter owns the accept loop, connection tracking and graceful
// shutdown shared by protocol front-ends. All exported methods are safe
// for concurrent use; Stop is idempotent via sync.Once.
type BaseAdapter struct {
	Config BaseConfig

	protocolName string

	// Metrics is optional; nil disables recording.
	Metrics MetricsRecorder

	// TLSConfig upgrades the listener to TLS when non-nil.
	TLSConfig *tls.Config

	listener   net.Listener
	listenerMu sync.RWMutex

	// ListenerReady closes once the listener accepts; tests use it to
	// synchronize with startup.
	ListenerReady chan struct{}

	// Shutdown closes when shutdown starts; the accept loop and any
	// helper goroutines watch it.
	Shutdown     chan struct{}
	shutdownOnce sync.Once

	// ShutdownCtx is cancelled at shutdown so in-flight requests abort.
	ShutdownCtx    context.Context
	CancelRequests context.CancelFunc

	activeConns sync.WaitGroup
	ConnCount   atomic.Int32

	// ActiveConnections maps remote address to net.Conn for interrupt
	// and force-close during shutdown.
	ActiveConnections sync.Map

	// connSemaphore enforces MaxConnections; nil when unlimited.
	connSemaphore chan struct{}
}

// NewBaseAdapter builds an adapter in the stopped state. Call
// ServeWithFactory to start accepting.
func NewBaseAdapter(config BaseConfig, protocol string) *BaseAdapter {
	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
		logger.Debug(protocol+" connection limit", "max_connections", config.MaxConnections)
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &BaseAdapter{
		Config:         config,
		protocolName:   protocol,
		Shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		ShutdownCtx:    shutdownCtx,
		CancelRequests: cancelRequests,
		ListenerReady:  make(chan struct{}),
	}
}

// ServeWithFactory runs the accept loop until shutdown.
//
// preAccept runs after TCP accept and before tracking; returning false
// closes the socket without starting a handler. onClose runs when a
// connection goroutine exits. Both may be nil.
func (b *BaseAdapter) ServeWithFactory(
	ctx context.Context,
	factory ConnectionFactory,
	preAccept func(net.Conn) bool,
	onClose OnConnectionClose,
) error {
	listenAddr := fmt.Sprintf("%s:%d", b.Config.BindAddress, b.Config.Port)
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("%s listener on %s: %w", b.protocolName, listenAddr, err)
	}
	if b.TLSConfig != nil {
		listener = tls.NewListener(listener, b.TLSConfig)
	}

	b.listenerMu.Lock()
	b.listener = listener
	b.listenerMu.Unlock()
	close(b.ListenerReady)

	logger.Info(b.protocolName+" server listening",
		logger.KeyListener, listener.Addr().String(),
		logger.KeyPort, b.Config.Port)

	go func() {
		<-ctx.Done()
		logger.Info(b.protocolName+" shutdown signal received", logger.KeyError, ctx.Err())
		b.initiateShutdown()
	}()

	if b.Config.MetricsLogInterval > 0 {
		go b.logMetrics(ctx)
	}

	for {
		if b.connSemaphore != nil {
			select {
			case b.connSemaphore <- struct{}{}:
			case <-b.Shutdown:
				return b.gracefulShutdown()
			}
		}

		tcpConn, err := b.listener.Accept()
		if err != nil {
			if b.connSemaphore != nil {
				<-b.connSemaphore
			}
			select {
			case <-b.Shutdown:
				// Listener closed by shutdown.
				return b.gracefulShutdown()
			default:
				logger.Debug("Error accepting "+b.protocolName+" connection", logger.KeyError, err)
				continue
			}
		}

		setNoDelay(tcpConn)

		if preAccept != nil && !preAccept(tcpConn) {
			_ = tcpConn.Close()
			if b.connSemaphore != nil {
				<-b.connSemaphore
			}
			continue
		}

		b.activeConns.Add(1)
		b.ConnCount.Add(1)

		connAddr := tcpConn.RemoteAddr().String()
		b.ActiveConnections.Store(connAddr, tcpConn)

		currentConns := b.ConnCount.Load()
		if b.Metrics != nil {
			b.Metrics.RecordConnectionAccepted()
			b.Metrics.SetActiveConnections(currentConns)
		}

		logger.Debug(b.protocolName+" connection accepted",
			logger.KeyClientIP, connAddr, "active", currentConns)

		conn := factory.NewConnection(tcpConn)

		go func(addr string) {
			defer func() {
				if onClose != nil {
					onClose(addr)
				}
				b.ActiveConnections.Delete(addr)
				b.activeConns.Done()
				b.ConnCount.Add(-1)
				if b.connSemaphore != nil {
					<-b.connSemaphore
				}
				if b.Metrics != nil {
					b.Metrics.RecordConnectionClosed()
					b.Metrics.SetActiveConnections(b.ConnCount.Load())
				}
				logger.Debug(b.protocolName+" connection closed",
					logger.KeyClientIP, addr, "active", b.ConnCount.Load())
			}()

			conn.Serve(b.ShutdownCtx)
		}(connAddr)
	}
}

// setNoDelay disables Nagle on the underlying TCP socket, reaching
// through a TLS wrapper when present.
func setNoDelay(conn net.Conn) {
	raw := conn
	if tlsConn, ok := conn.(*tls.Conn); ok {
		raw = tlsConn.NetConn()
	}
	if tcp, ok := raw.(*net.TCPConn); ok {
		if err := tcp.SetNoDelay(true); err != nil {
			logger.Debug("Failed to set TCP_NODELAY", logger.KeyError, err)
		}
	}
}

// initiateShutdown closes the shutdown channel and listener, unblocks
// pending reads and cancels in-flight requests. Safe to call from
// multiple goroutines.
func (b *BaseAdapter) initiateShutdown() {
	b.shutdownOnce.Do(func() {
		logger.Debug(b.protocolName + " shutdown initiated")
		close(b.Shutdown)

		b.listenerMu.Lock()
		if b.listener != nil {
			if err := b.listener.Close(); err != nil {
				logger.Debug("Error closing "+b.protocolName+" listener", logger.KeyError, err)
			}
		}
		b.listenerMu.Unlock()

		b.interruptBlockingReads()
		b.CancelRequests()
	})
}

// interruptBlockingReads sets a short deadline on every tracked socket
// so connection loops blocked in Read wake up and observe shutdown.
func (b *BaseAdapter) interruptBlockingReads() {
	deadline := time.Now().Add(100 * time.Millisecond)

	b.ActiveConnections.Range(func(key, value any) bool {
		if conn, ok := value.(net.Conn); ok {
			if err := conn.SetReadDeadline(deadline); err != nil {
				logger.Debug("Error setting shutdown deadline",
					logger.KeyClientIP, key, logger.KeyError, err)
			}
		}
		return true
	})
}

// gracefulShutdown waits for active connections up to ShutdownTimeout,
// then force-closes the stragglers.
func (b *BaseAdapter) gracefulShutdown() error {
	activeCount := b.ConnCount.Load()
	logger.Info(b.protocolName+" graceful shutdown: waiting for active connections",
		"active", activeCount, "timeout", b.Config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		b.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info(b.protocolName + " graceful shutdown complete")
		return nil

	case <-time.After(b.Config.ShutdownTimeout):
		remaining := b.ConnCount.Load()
		logger.Warn(b.protocolName+" shutdown timeout exceeded, forcing closure",
			"active", remaining, "timeout", b.Config.ShutdownTimeout)
		b.forceCloseConnections()
		return fmt.Errorf("%s shutdown timeout: %d connections force-closed", b.protocolName, remaining)
	}
}

// forceCloseConnections closes every tracked socket.
func (b *BaseAdapter) forceCloseConnections() {
	closed := 0
	b.ActiveConnections.Range(func(key, value any) bool {
		conn := value.(net.Conn)
		if err := conn.Close(); err == nil {
			closed++
			if b.Metrics != nil {
				b.Metrics.RecordConnectionForceClosed()
			}
		}
		return true
	})
	if closed > 0 {
		logger.Info("Force-closed connections", "count", closed)
	}
}

// Stop initiates shutdown and waits for active connections. A nil ctx
// falls back to the configured ShutdownTimeout; otherwise the context
// bounds the wait.
func (b *BaseAdapter) Stop(ctx context.Context) error {
	b.initiateShutdown()

	if ctx == nil {
		return b.gracefulShutdown()
	}

	done := make(chan struct{})
	go func() {
		b.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info(b.protocolName + " graceful shutdown complete")
		return nil
	case <-ctx.Done():
		logger.Warn(b.protocolName+" shutdown context cancelled",
			"active", b.ConnCount.Load(), logger.KeyError, ctx.Err())
		return ctx.Err()
	}
}

// logMetrics periodically logs the active connection count.
func (b *BaseAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(b.Config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.Shutdown:
			return
		case <-ticker.C:
			logger.Info(b.protocolName+" metrics", "active_connections", b.ConnCount.Load())
		}
	}
}

// GetActiveConnections returns the current connection count.
func (b *BaseAdapter) GetActiveConnections() int32 {
	return b.ConnCount.Load()
}

// GetListenerAddr blocks until the listener is up and returns its
// address. Tests bind port 0 and read the real port from here.
func (b *BaseAdapter) GetListenerAddr() string {
	<-b.ListenerReady

	b.listenerMu.RLock()
	defer b.listenerMu.RUnlock()

	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
}

// Port returns the configured TCP port.
func (b *BaseAdapter) Port() int {
	return b.Config.Port
}

// Protocol returns the front-end name.
func (b *BaseAdapter) Protocol() string {
	return b.protocolName
}

// MapError is a stub; protocol adapters override it.
func (b *BaseAdapter) MapError(_ error) ProtocolError {
	return nil
}
