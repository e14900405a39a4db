package httpclient

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/go-ntlmssp"
	"github.com/icholy/digest"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
	krb5config "github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/spnego"

	"github.com/davgate/davgate/internal/logger"
)

// buildAuthChain assembles the round-tripper stack for authenticated
// Exchange traffic.
//
// Origin auth order is DIGEST then BASIC; NTLM is deliberately absent
// from the origin chain. The proxy is a different trust boundary:
// DOMAIN\user proxy credentials select the NTLM proxy handshake even
// though the origin never speaks NTLM.
func buildAuthChain(cfg Config, transport *http.Transport) (http.RoundTripper, error) {
	var rt http.RoundTripper = transport

	if cfg.EnableProxy && cfg.ProxyUser != "" {
		if domain, user, ok := splitNTLMUser(cfg.ProxyUser); ok {
			rt = &ntlmProxyTransport{
				next:     rt,
				domain:   domain,
				user:     user,
				password: cfg.ProxyPassword,
			}
		} else {
			rt = &proxyAuthTransport{
				next:   rt,
				header: proxyAuthorization(cfg.ProxyUser, cfg.ProxyPassword),
			}
		}
	}

	if cfg.EnableKerberos {
		st, err := newSPNEGOTransport(cfg, rt)
		if err != nil {
			return nil, err
		}
		return &identityTransport{next: st}, nil
	}

	// Digest answers Digest challenges and passes anything else
	// through; the Basic fallback then catches Basic-only servers.
	rt = &digest.Transport{
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: rt,
	}
	rt = &basicFallbackTransport{
		next:     rt,
		username: cfg.Username,
		password: cfg.Password,
	}

	return &identityTransport{next: rt}, nil
}

// identityTransport pins the headers Exchange keys its responses on.
type identityTransport struct {
	next http.RoundTripper
}

func (t *identityTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", UserAgent)
	}
	return t.next.RoundTrip(req)
}

// basicFallbackTransport retries one request with Basic credentials
// when the server's challenge offered Basic and the inner (Digest)
// layer left the 401 unanswered.
type basicFallbackTransport struct {
	next     http.RoundTripper
	username string
	password string
}

func (t *basicFallbackTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || !challengeOffers(resp, "Basic") {
		return resp, nil
	}

	retry, err := cloneRequest(req)
	if err != nil {
		return resp, nil
	}
	drainAndClose(resp)

	retry.SetBasicAuth(t.username, t.password)
	return t.next.RoundTrip(retry)
}

// proxyAuthTransport adds Proxy-Authorization on plain-HTTP proxy
// requests. CONNECT tunnels carry the header at dial time via
// Transport.ProxyConnectHeader instead.
type proxyAuthTransport struct {
	next   http.RoundTripper
	header string
}

func (t *proxyAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme == "http" && req.Header.Get("Proxy-Authorization") == "" {
		req.Header.Set("Proxy-Authorization", t.header)
	}
	return t.next.RoundTrip(req)
}

// ntlmProxyTransport performs the three-leg NTLM handshake against a
// proxy answering 407 Proxy-Authenticate: NTLM. Only the proxy speaks
// NTLM; the origin auth order stays Digest/Basic.
type ntlmProxyTransport struct {
	next     http.RoundTripper
	domain   string
	user     string
	password string
}

func (t *ntlmProxyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusProxyAuthRequired || !challengeOffersProxy(resp, "NTLM") {
		return resp, nil
	}

	negotiate, err := ntlmssp.NewNegotiateMessage(t.domain, "")
	if err != nil {
		return resp, nil
	}

	retry, err := cloneRequest(req)
	if err != nil {
		return resp, nil
	}
	drainAndClose(resp)

	retry.Header.Set("Proxy-Authorization", "NTLM "+base64.StdEncoding.EncodeToString(negotiate))
	resp, err = t.next.RoundTrip(retry)
	if err != nil {
		return nil, err
	}

	challenge, ok := proxyNTLMChallenge(resp)
	if !ok {
		return resp, nil
	}

	authenticate, err := ntlmssp.ProcessChallenge(challenge, t.user, t.password, t.domain != "")
	if err != nil {
		logger.Warn("NTLM proxy challenge failed", logger.KeyDomain, t.domain, logger.KeyError, err)
		return resp, nil
	}

	final, err := cloneRequest(req)
	if err != nil {
		return resp, nil
	}
	drainAndClose(resp)

	final.Header.Set("Proxy-Authorization", "NTLM "+base64.StdEncoding.EncodeToString(authenticate))
	return t.next.RoundTrip(final)
}

// spnegoTransport attaches a SPNEGO token to every request.
type spnegoTransport struct {
	next   http.RoundTripper
	client *krb5client.Client
}

func newSPNEGOTransport(cfg Config, next http.RoundTripper) (*spnegoTransport, error) {
	krbConf, err := krb5config.Load(cfg.Krb5Conf)
	if err != nil {
		return nil, fmt.Errorf("httpclient: load krb5.conf %s: %w", cfg.Krb5Conf, err)
	}

	user, realm := splitPrincipal(cfg.Username, krbConf.LibDefaults.DefaultRealm)
	cl := krb5client.NewWithPassword(user, realm, cfg.Password, krbConf,
		krb5client.DisablePAFXFAST(true))

	return &spnegoTransport{next: next, client: cl}, nil
}

func (t *spnegoTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := spnego.SetSPNEGOHeader(t.client, req, ""); err != nil {
		return nil, fmt.Errorf("httpclient: SPNEGO negotiation: %w", err)
	}
	return t.next.RoundTrip(req)
}

// splitNTLMUser detects DOMAIN\user proxy credentials.
func splitNTLMUser(user string) (domain, name string, ok bool) {
	idx := strings.Index(user, "\\")
	if idx < 0 {
		return "", "", false
	}
	return user[:idx], user[idx+1:], true
}

// splitPrincipal splits user@REALM, falling back to the default realm.
func splitPrincipal(user, defaultRealm string) (name, realm string) {
	if idx := strings.Index(user, "@"); idx >= 0 {
		return user[:idx], strings.ToUpper(user[idx+1:])
	}
	if domain, name, ok := splitNTLMUser(user); ok {
		return name, strings.ToUpper(domain)
	}
	return user, defaultRealm
}

// proxyAuthorization builds a basic Proxy-Authorization value.
func proxyAuthorization(user, password string) string {
	creds := base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
	return "Basic " + creds
}

// challengeOffers reports whether a WWW-Authenticate header offers the
// given scheme.
func challengeOffers(resp *http.Response, scheme string) bool {
	for _, challenge := range resp.Header.Values("Www-Authenticate") {
		if strings.HasPrefix(strings.ToLower(challenge), strings.ToLower(scheme)) {
			return true
		}
	}
	return false
}

// challengeOffersProxy is challengeOffers for Proxy-Authenticate.
func challengeOffersProxy(resp *http.Response, scheme string) bool {
	for _, challenge := range resp.Header.Values("Proxy-Authenticate") {
		if strings.HasPrefix(strings.ToLower(challenge), strings.ToLower(scheme)) {
			return true
		}
	}
	return false
}

// proxyNTLMChallenge extracts the NTLM challenge token from a 407.
func proxyNTLMChallenge(resp *http.Response) ([]byte, bool) {
	if resp.StatusCode != http.StatusProxyAuthRequired {
		return nil, false
	}
	for _, challenge := range resp.Header.Values("Proxy-Authenticate") {
		if strings.HasPrefix(challenge, "NTLM ") {
			token, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(challenge, "NTLM "))
			if err != nil {
				return nil, false
			}
			return token, true
		}
	}
	return nil, false
}

// cloneRequest copies a request for a retry, rewinding the body via
// GetBody. Requests without a replayable body cannot be retried.
func cloneRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("httpclient: request body is not replayable")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}
