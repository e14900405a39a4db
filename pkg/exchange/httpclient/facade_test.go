package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFacade(t *testing.T, baseURL string) *Facade {
	t.Helper()
	f, err := New(Config{BaseURL: baseURL, Username: "jdoe", Password: "secret"})
	require.NoError(t, err)
	t.Cleanup(f.Stop)
	return f
}

func TestFacade_SetsIdentityUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
	}))
	defer srv.Close()

	f := newTestFacade(t, srv.URL)
	status, err := f.GetStatus(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, UserAgent, gotUA)
}

func TestFacade_ExecuteFollowRedirects(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/hop", http.StatusFound)
	})
	mux.HandleFunc("/hop", func(w http.ResponseWriter, r *http.Request) {
		// Relative Location, resolved against the request URL.
		w.Header().Set("Location", "final")
		w.WriteHeader(http.StatusMovedPermanently)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "landed")
	})

	f := newTestFacade(t, srv.URL)
	resp, err := f.ExecuteFollowRedirects(context.Background(), srv.URL+"/start")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/final", resp.Request.URL.Path)
}

func TestFacade_ExecuteFollowRedirects_TooMany(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
	}))
	defer srv.Close()

	f := newTestFacade(t, srv.URL)
	_, err := f.ExecuteFollowRedirects(context.Background(), srv.URL+"/loop")
	assert.ErrorIs(t, err, ErrTooManyRedirects)
}

func TestFacade_DoDoesNotFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	f := newTestFacade(t, srv.URL)
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := f.Do(req)
	require.NoError(t, err)
	drainAndClose(resp)

	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestFacade_BasicFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "jdoe" || pass != "secret" {
			w.Header().Set("WWW-Authenticate", `Basic realm="exchange"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newTestFacade(t, srv.URL)
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := f.Do(req)
	require.NoError(t, err)
	drainAndClose(resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFacade_ResolveURL(t *testing.T) {
	f := newTestFacade(t, "https://mail.example.com/exchange/")

	assert.Equal(t, "https://mail.example.com/exchange/public", f.ResolveURL("public"))
	assert.Equal(t, "https://mail.example.com/exchange/public", f.ResolveURL("/public"))
	assert.Equal(t, "http://other.example.com/x", f.ResolveURL("http://other.example.com/x"))
}

func TestFacade_ProxyRequiresHostAndPort(t *testing.T) {
	_, err := New(Config{BaseURL: "https://mail.example.com", EnableProxy: true})
	assert.Error(t, err)
}

func TestBuildHTTPError(t *testing.T) {
	err := BuildHTTPError(440, "Login Timeout")
	assert.Equal(t, http.StatusForbidden, err.Status)
	assert.Equal(t, "403 Forbidden", err.Error())

	err = BuildHTTPError(http.StatusBadGateway, "")
	assert.Equal(t, http.StatusBadGateway, err.Status)
}

func TestSplitNTLMUser(t *testing.T) {
	domain, user, ok := splitNTLMUser(`CORP\jdoe`)
	assert.True(t, ok)
	assert.Equal(t, "CORP", domain)
	assert.Equal(t, "jdoe", user)

	_, _, ok = splitNTLMUser("jdoe")
	assert.False(t, ok)
}

func TestSplitPrincipal(t *testing.T) {
	name, realm := splitPrincipal("jdoe@corp.example.com", "FALLBACK")
	assert.Equal(t, "jdoe", name)
	assert.Equal(t, "CORP.EXAMPLE.COM", realm)

	name, realm = splitPrincipal(`corp\jdoe`, "FALLBACK")
	assert.Equal(t, "jdoe", name)
	assert.Equal(t, "CORP", realm)

	name, realm = splitPrincipal("jdoe", "FALLBACK")
	assert.Equal(t, "jdoe", name)
	assert.Equal(t, "FALLBACK", realm)
}
