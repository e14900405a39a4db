// Package httpclient provides the process-wide pooled HTTP client all
// Exchange-facing code shares: fixed identity headers, Digest-then-
// Basic authentication (optionally SPNEGO), proxy support including
// NTLM proxy credentials, manual redirect following, WebDAV helpers,
// and an idle-connection reaper.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/davgate/davgate/internal/logger"
)

const (
	// UserAgent is pinned to the IE 6 string: Exchange 2003 OWA only
	// returns parseable XML to clients it recognizes as IE.
	UserAgent = "Mozilla/4.0 (compatible; MSIE 6.0; Windows NT 5.1; SV1)"

	// MaxRedirects caps manual redirect following.
	MaxRedirects = 10

	// maxConnsPerHost caps the pool per Exchange host.
	maxConnsPerHost = 100

	// idleTimeout is both the per-connection idle cutoff and the
	// reaper wake interval.
	idleTimeout = 60 * time.Second
)

// Config carries the connection and authentication settings of the
// facade, lifted from the davmail.* settings store.
type Config struct {
	// BaseURL is the Exchange OWA base URL.
	BaseURL string

	// Username and Password authenticate against Exchange.
	Username string
	Password string

	// Proxy settings (davmail.enableProxy and friends). A backslash
	// in ProxyUser selects NTLM proxy credentials (DOMAIN\user).
	EnableProxy   bool
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string

	// EnableKerberos swaps the Digest/Basic scheme order for SPNEGO.
	EnableKerberos bool
	Krb5Conf       string
}

// Facade is the shared pooled HTTP client toward Exchange. One Facade
// is constructed at startup and passed to every back-end consumer; all
// helpers drain and close response bodies on every exit path so the
// pool never leaks connections.
type Facade struct {
	cfg       Config
	transport *http.Transport

	// client authenticates and never auto-follows redirects; the
	// facade follows them manually (the stock client mishandles
	// absolute redirects through an HTTPS proxy).
	client *http.Client

	// plain shares the pool but skips authentication, for status
	// probes that must not consume an Exchange logon.
	plain *http.Client

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	reaperWG  sync.WaitGroup
}

// New builds the facade from config. The connection pool is created
// eagerly; the idle reaper starts with Start.
func New(cfg Config) (*Facade, error) {
	transport := &http.Transport{
		MaxConnsPerHost:     maxConnsPerHost,
		MaxIdleConnsPerHost: maxConnsPerHost,
		IdleConnTimeout:     idleTimeout,
	}

	if cfg.EnableProxy {
		if cfg.ProxyHost == "" || cfg.ProxyPort == 0 {
			return nil, fmt.Errorf("httpclient: proxy enabled without host/port")
		}
		proxyURL := &url.URL{
			Scheme: "http",
			Host:   fmt.Sprintf("%s:%d", cfg.ProxyHost, cfg.ProxyPort),
		}
		transport.Proxy = http.ProxyURL(proxyURL)
		if cfg.ProxyUser != "" {
			// CONNECT tunnels authenticate at dial time; plain HTTP
			// requests get the header per request in proxyAuth.
			transport.ProxyConnectHeader = http.Header{
				"Proxy-Authorization": {proxyAuthorization(cfg.ProxyUser, cfg.ProxyPassword)},
			}
		}
	}

	rt, err := buildAuthChain(cfg, transport)
	if err != nil {
		return nil, err
	}

	noRedirect := func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Facade{
		cfg:       cfg,
		transport: transport,
		client:    &http.Client{Transport: rt, CheckRedirect: noRedirect},
		plain:     &http.Client{Transport: &identityTransport{next: transport}, CheckRedirect: noRedirect},
		stopCh:    make(chan struct{}),
	}, nil
}

// Start launches the idle-connection reaper. Idempotent.
func (f *Facade) Start() {
	f.startOnce.Do(func() {
		f.reaperWG.Add(1)
		go f.reap()
	})
}

// Stop halts the reaper and drops idle pool connections. Idempotent
// and safe to call without Start or concurrently with the reaper.
func (f *Facade) Stop() {
	f.stopOnce.Do(func() {
		close(f.stopCh)
	})
	f.reaperWG.Wait()
	f.transport.CloseIdleConnections()
}

// reap closes idle connections every minute until Stop.
func (f *Facade) reap() {
	defer f.reaperWG.Done()
	ticker := time.NewTicker(idleTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.transport.CloseIdleConnections()
			logger.Debug("Closed idle Exchange connections")
		}
	}
}

// Do executes one authenticated request without following redirects.
// The caller owns the response body.
func (f *Facade) Do(req *http.Request) (*http.Response, error) {
	return f.client.Do(req)
}

// GetStatus issues an unauthenticated GET and returns the HTTP status.
// The body is always drained and the connection released.
func (f *Facade) GetStatus(ctx context.Context, rawurl string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return 0, err
	}

	resp, err := f.plain.Do(req)
	if err != nil {
		return 0, err
	}
	drainAndClose(resp)
	return resp.StatusCode, nil
}

// redirectStatuses are the codes the facade follows manually.
func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound,
		http.StatusSeeOther, http.StatusTemporaryRedirect:
		return true
	}
	return false
}

// ExecuteFollowRedirects GETs rawurl, following up to MaxRedirects
// Location hops manually. Every intermediate body is drained and
// closed; the caller owns the final response body. Exceeding the hop
// budget returns ErrTooManyRedirects with the last body closed.
func (f *Facade) ExecuteFollowRedirects(ctx context.Context, rawurl string) (*http.Response, error) {
	current := rawurl
	for hop := 0; hop <= MaxRedirects; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return nil, err
		}

		resp, err := f.Do(req)
		if err != nil {
			return nil, err
		}

		location := resp.Header.Get("Location")
		if !isRedirect(resp.StatusCode) || location == "" {
			return resp, nil
		}

		next, err := resp.Request.URL.Parse(location)
		drainAndClose(resp)
		if err != nil {
			return nil, fmt.Errorf("httpclient: bad Location %q: %w", location, err)
		}

		logger.Debug("Following redirect",
			logger.KeyURL, next.String(),
			logger.KeyRedirects, hop+1)
		current = next.String()
	}

	return nil, fmt.Errorf("%w: %s (max %d)", ErrTooManyRedirects, rawurl, MaxRedirects)
}

// CheckConnectivity probes rawurl through the redirect follower and
// returns the final status. Implements exchange.ConnectivityChecker.
func (f *Facade) CheckConnectivity(ctx context.Context, rawurl string) (int, error) {
	resp, err := f.ExecuteFollowRedirects(ctx, rawurl)
	if err != nil {
		return 0, err
	}
	drainAndClose(resp)
	return resp.StatusCode, nil
}

// BaseURL returns the configured Exchange base URL.
func (f *Facade) BaseURL() string {
	return f.cfg.BaseURL
}

// ResolveURL joins a path with the Exchange base URL. Absolute URLs
// pass through untouched.
func (f *Facade) ResolveURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	base := strings.TrimSuffix(f.cfg.BaseURL, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// drainAndClose consumes the remaining body so the underlying
// connection returns to the pool, then closes it.
func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
