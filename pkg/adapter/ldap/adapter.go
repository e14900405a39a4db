package ldap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/davgate/davgate/internal/ber"
	"github.com/davgate/davgate/pkg/adapter"
	"github.com/davgate/davgate/pkg/exchange"
	"github.com/davgate/davgate/pkg/exchange/httpclient"
	"github.com/davgate/davgate/pkg/metrics"
)

// Config holds the LDAP front-end settings.
type Config struct {
	// BindAddress and Port locate the listener. Port 0 is replaced by
	// DefaultPort.
	BindAddress string
	Port        int

	// AllowRemote accepts non-loopback clients.
	AllowRemote bool

	// ClientSoTimeout is the per-read socket deadline. Expiry closes
	// the connection silently, like an idle drop.
	ClientSoTimeout time.Duration

	// MaxConnections caps concurrent clients. 0 means unlimited.
	MaxConnections int

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration

	// MaxMessageSize rejects oversized frames. 0 means DefaultMaxMessageSize.
	MaxMessageSize int

	// GatewayURL appears in the base-context description attribute.
	GatewayURL string

	// TLS upgrades the listener to LDAPS when non-nil.
	TLS *tls.Config
}

// DefaultPort is the non-privileged LDAP port.
const DefaultPort = 1389

// DefaultMaxMessageSize bounds one framed request.
const DefaultMaxMessageSize = 1 << 20

// Adapter is the LDAP protocol adapter. It embeds BaseAdapter for the
// accept loop and implements ConnectionFactory for its own sockets.
type Adapter struct {
	*adapter.BaseAdapter

	config  Config
	factory exchange.SessionFactory
	metrics metrics.LDAPMetrics
}

// New builds the LDAP adapter. metrics may be nil.
func New(cfg Config, factory exchange.SessionFactory, m metrics.LDAPMetrics) *Adapter {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}

	protocol := "LDAP"
	if cfg.TLS != nil {
		protocol = "LDAPS"
	}

	base := adapter.NewBaseAdapter(adapter.BaseConfig{
		BindAddress:     cfg.BindAddress,
		Port:            cfg.Port,
		MaxConnections:  cfg.MaxConnections,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, protocol)
	base.TLSConfig = cfg.TLS
	if m != nil {
		base.Metrics = m
	}

	return &Adapter{
		BaseAdapter: base,
		config:      cfg,
		factory:     factory,
		metrics:     m,
	}
}

// Serve runs the accept loop until ctx is cancelled.
func (a *Adapter) Serve(ctx context.Context) error {
	return a.ServeWithFactory(ctx, a, adapter.LoopbackGate(a.config.AllowRemote), nil)
}

// NewConnection implements adapter.ConnectionFactory.
func (a *Adapter) NewConnection(conn net.Conn) adapter.ConnectionHandler {
	return newConnection(a, conn)
}

// ldapError carries an LDAP result code alongside the domain error.
type ldapError struct {
	code    uint32
	message string
	err     error
}

func (e *ldapError) Error() string {
	return fmt.Sprintf("ldap result %d: %s", e.code, e.message)
}

func (e *ldapError) Code() uint32    { return e.code }
func (e *ldapError) Message() string { return e.message }
func (e *ldapError) Unwrap() error   { return e.err }

// MapError translates domain errors into LDAP result codes. Backend
// failures become LDAP_OTHER with the backend text.
func (a *Adapter) MapError(err error) adapter.ProtocolError {
	if err == nil {
		return nil
	}

	if errors.Is(err, exchange.ErrAuthFailed) {
		return &ldapError{code: resultInvalidCredentials, message: "Invalid credentials", err: err}
	}

	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return &ldapError{code: resultOther, message: statusErr.Error(), err: err}
	}

	var decodeErr *ber.DecodeError
	if errors.As(err, &decodeErr) {
		return &ldapError{code: resultOther, message: "Malformed request", err: err}
	}

	return &ldapError{code: resultOther, message: err.Error(), err: err}
}
