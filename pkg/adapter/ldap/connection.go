package ldap

import (
	"context"
	"errors"
	"io"
	"net"
	"runtime/debug"
	"time"

	"github.com/davgate/davgate/internal/ber"
	"github.com/davgate/davgate/internal/logger"
	"github.com/davgate/davgate/pkg/bufpool"
	"github.com/davgate/davgate/pkg/exchange"
	"github.com/google/uuid"
)

// connection is the per-socket LDAP state machine. One goroutine owns
// it; handling within a connection is strictly serial, so responses go
// out in request order.
type connection struct {
	adapter *Adapter
	conn    net.Conn
	id      string

	// utf8 tracks the negotiated charset: LDAPv3 strings are UTF-8,
	// v2 strings ISO-8859-1. Assumed v3 until a bind says otherwise.
	utf8 bool

	// session is the bound Exchange session, nil while anonymous.
	session exchange.Session
	user    string

	enc *ber.Encoder
}

func newConnection(a *Adapter, conn net.Conn) *connection {
	return &connection{
		adapter: a,
		conn:    conn,
		id:      uuid.NewString(),
		utf8:    true,
		enc:     ber.NewEncoder(512),
	}
}

// errUnbind signals a clean client-initiated teardown.
var errUnbind = errors.New("ldap: unbind")

// Serve reads framed requests until the client goes away, the deadline
// expires or shutdown cancels the context.
func (c *connection) Serve(ctx context.Context) {
	defer c.close()

	clientAddr := c.conn.RemoteAddr().String()
	logger.Debug("LDAP connection open",
		logger.KeyConnectionID, c.id,
		logger.KeyClientIP, clientAddr)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := c.readFrame()
		if err != nil {
			c.logReadError(clientAddr, err)
			return
		}

		err = c.handleMessage(ctx, frame)
		bufpool.Put(frame)
		if err != nil {
			if !errors.Is(err, errUnbind) {
				logger.Debug("LDAP connection closing on error",
					logger.KeyConnectionID, c.id,
					logger.KeyError, err)
			}
			return
		}
	}
}

// close releases the Exchange session and the socket, recovering from
// handler panics so one client cannot take the server down.
func (c *connection) close() {
	if r := recover(); r != nil {
		logger.Error("Panic in LDAP connection handler",
			logger.KeyConnectionID, c.id,
			logger.KeyError, r,
			"stack", string(debug.Stack()))
	}

	if c.session != nil {
		c.adapter.factory.Release(c.session)
		c.session = nil
	}
	_ = c.conn.Close()
}

// readFrame reads one BER message: outer SEQUENCE tag, length, then
// the announced number of content bytes into a pooled buffer. The
// caller returns the buffer with bufpool.Put.
func (c *connection) readFrame() ([]byte, error) {
	if c.adapter.config.ClientSoTimeout > 0 {
		deadline := time.Now().Add(c.adapter.config.ClientSoTimeout)
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
	}

	var tag [1]byte
	if _, err := io.ReadFull(c.conn, tag[:]); err != nil {
		return nil, err
	}
	if tag[0] != ber.TagSequence {
		return nil, &ber.TagError{Want: ber.TagSequence, Got: tag[0]}
	}

	length, err := c.readWireLength()
	if err != nil {
		return nil, err
	}
	if length > c.adapter.config.MaxMessageSize {
		return nil, &ber.DecodeError{Message: "message exceeds size limit", Err: ber.ErrInvalidLength}
	}

	frame := bufpool.Get(length)
	if _, err := io.ReadFull(c.conn, frame); err != nil {
		bufpool.Put(frame)
		return nil, err
	}
	return frame, nil
}

// readWireLength reads a short or long form BER length directly from
// the socket.
func (c *connection) readWireLength() (int, error) {
	var b [1]byte
	if _, err := io.ReadFull(c.conn, b[:]); err != nil {
		return 0, err
	}
	if b[0]&0x80 == 0 {
		return int(b[0]), nil
	}

	numOctets := int(b[0] & 0x7F)
	if numOctets == 0 {
		return 0, &ber.DecodeError{Message: "length", Err: ber.ErrIndefiniteLength}
	}
	if numOctets > 4 {
		return 0, &ber.DecodeError{Message: "length too wide", Err: ber.ErrInvalidLength}
	}

	var octets [4]byte
	if _, err := io.ReadFull(c.conn, octets[:numOctets]); err != nil {
		return 0, err
	}
	length := 0
	for i := 0; i < numOctets; i++ {
		length = length<<8 | int(octets[i])
	}
	if length < 0 {
		return 0, &ber.DecodeError{Message: "negative length", Err: ber.ErrInvalidLength}
	}
	return length, nil
}

// logReadError classifies the read failure: idle drops and client
// disconnects are routine, anything else is worth a debug line.
func (c *connection) logReadError(clientAddr string, err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		logger.Debug("LDAP client disconnected",
			logger.KeyConnectionID, c.id, logger.KeyClientIP, clientAddr)
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.Debug("LDAP connection idle timeout",
			logger.KeyConnectionID, c.id, logger.KeyClientIP, clientAddr)
	default:
		logger.Debug("LDAP read error",
			logger.KeyConnectionID, c.id,
			logger.KeyClientIP, clientAddr,
			logger.KeyError, err)
	}
}

// write sends one encoded response with a single Write call.
func (c *connection) write(data []byte) error {
	_, err := c.conn.Write(data)
	return err
}
