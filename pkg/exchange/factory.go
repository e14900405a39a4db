package exchange

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/davgate/davgate/internal/logger"
)

// DialFunc opens a new authenticated session against Exchange. The OWA
// implementation provides this; tests substitute stubs.
type DialFunc func(ctx context.Context, user, password string) (Session, error)

// CachingFactory reuses sessions across binds with the same
// credentials. Mail clients open a fresh LDAP connection per address
// book query; without reuse every keystroke would re-authenticate
// against Exchange.
//
// Sessions are keyed by a SHA-256 digest of the credentials so the
// cache never holds the password itself. A cached session stays in the
// pool after Release; Close discards the pool.
type CachingFactory struct {
	dial DialFunc

	mu       sync.Mutex
	sessions map[string]*cachedSession
}

type cachedSession struct {
	session Session
	refs    int
}

// NewCachingFactory returns a factory that opens sessions with dial
// and caches them per credential pair.
func NewCachingFactory(dial DialFunc) *CachingFactory {
	return &CachingFactory{
		dial:     dial,
		sessions: make(map[string]*cachedSession),
	}
}

// Acquire returns a cached session for the credentials or dials a new
// one. Returns ErrAuthFailed when Exchange rejects the credentials.
func (f *CachingFactory) Acquire(ctx context.Context, user, password string) (Session, error) {
	key := credentialKey(user, password)

	f.mu.Lock()
	if cached, ok := f.sessions[key]; ok {
		cached.refs++
		f.mu.Unlock()
		logger.Debug("Reusing Exchange session",
			logger.KeyUsername, user,
			logger.KeySessionID, cached.session.ID())
		return cached.session, nil
	}
	f.mu.Unlock()

	// Dial outside the lock: authentication is a blocking HTTP
	// round-trip and must not serialize unrelated binds.
	session, err := f.dial(ctx, user, password)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if cached, ok := f.sessions[key]; ok {
		// Another bind raced us; keep the first session and close the
		// one we just dialed.
		cached.refs++
		session.Close()
		return cached.session, nil
	}
	f.sessions[key] = &cachedSession{session: session, refs: 1}
	logger.Info("Exchange session established",
		logger.KeyUsername, user,
		logger.KeySessionID, session.ID())
	return session, nil
}

// Release returns a session to the pool. The session stays cached for
// the next bind with the same credentials.
func (f *CachingFactory) Release(session Session) {
	if session == nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cached := range f.sessions {
		if cached.session == session {
			if cached.refs > 0 {
				cached.refs--
			}
			return
		}
	}
}

// Close drains the session pool, closing every pooled session. Called
// at gateway shutdown after the listener stops handing out sessions.
func (f *CachingFactory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cached := range f.sessions {
		cached.session.Close()
	}
	f.sessions = make(map[string]*cachedSession)
}

// Len reports the number of pooled sessions.
func (f *CachingFactory) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// credentialKey digests the credential pair so the pool never stores
// the password.
func credentialKey(user, password string) string {
	sum := sha256.Sum256([]byte(user + ":" + password))
	return hex.EncodeToString(sum[:])
}

// NewSessionID returns a fresh session correlation ID for logs.
func NewSessionID() string {
	return uuid.NewString()
}

// ConnectivityChecker verifies the Exchange URL is reachable. The HTTP
// facade implements it; `davgate check` and gateway startup both probe
// through this interface.
type ConnectivityChecker interface {
	CheckConnectivity(ctx context.Context, url string) (int, error)
}

// CheckConfig probes url through checker and returns a descriptive
// error when Exchange is unreachable or answers with a server error.
func CheckConfig(ctx context.Context, checker ConnectivityChecker, url string) error {
	status, err := checker.CheckConnectivity(ctx, url)
	if err != nil {
		return fmt.Errorf("exchange: %s unreachable: %w", url, err)
	}
	if status >= 500 {
		return fmt.Errorf("exchange: %s answered status %d", url, status)
	}
	logger.Debug("Exchange connectivity verified", logger.KeyURL, url, logger.KeyHTTPStatus, status)
	return nil
}
