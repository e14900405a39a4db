package owa

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davgate/davgate/pkg/exchange"
	"github.com/davgate/davgate/pkg/exchange/httpclient"
)

const galfindResponse = `<?xml version="1.0"?>
<response>
  <plt>2</plt>
  <item>
    <AN>jdoe</AN>
    <DN>John Doe</DN>
    <EM>jdoe@example.com</EM>
    <PH>555-0100</PH>
  </item>
  <item>
    <AN>JSMITH</AN>
    <DN>Jane Smith</DN>
    <EM>jsmith@example.com</EM>
  </item>
</response>`

const gallookupResponse = `<?xml version="1.0"?>
<response>
  <item>
    <EM>jdoe@example.com</EM>
    <street>1 Main St</street>
    <department>Engineering</department>
    <mobile>555-0199</mobile>
  </item>
</response>`

func newGalServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/public/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("Cmd") {
		case "galfind":
			fmt.Fprint(w, galfindResponse)
		case "gallookup":
			fmt.Fprint(w, gallookupResponse)
		default:
			http.Error(w, "unknown command", http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDialer_DialAndGalFind(t *testing.T) {
	srv := newGalServer(t)
	dialer := NewDialer(httpclient.Config{BaseURL: srv.URL}, nil)

	session, err := dialer.Dial(context.Background(), "jdoe", "secret")
	require.NoError(t, err)
	defer session.Close()
	assert.NotEmpty(t, session.ID())

	persons, err := session.GalFind(context.Background(), exchange.GalCodeDisplayName, "j")
	require.NoError(t, err)
	require.Len(t, persons, 2)

	jdoe, ok := persons["jdoe"]
	require.True(t, ok)
	assert.Equal(t, "John Doe", jdoe[exchange.GalCodeDisplayName])
	assert.Equal(t, "jdoe@example.com", jdoe.Email())
	assert.Equal(t, "555-0100", jdoe[exchange.FieldPhone])

	// Result keys are lowercased; the record keeps the server casing.
	jsmith, ok := persons["jsmith"]
	require.True(t, ok)
	assert.Equal(t, "JSMITH", jsmith.AN())
}

func TestSession_GalLookupMergesExtendedFields(t *testing.T) {
	srv := newGalServer(t)
	dialer := NewDialer(httpclient.Config{BaseURL: srv.URL}, nil)

	session, err := dialer.Dial(context.Background(), "jdoe", "secret")
	require.NoError(t, err)

	person := exchange.Person{
		exchange.GalCodeAccountName: "jdoe",
		exchange.FieldEmail:         "jdoe@example.com",
		exchange.FieldMobile:        "from-galfind",
	}
	require.NoError(t, session.GalLookup(context.Background(), person))

	assert.Equal(t, "1 Main St", person[exchange.FieldStreet])
	assert.Equal(t, "Engineering", person[exchange.FieldDepartment])
	// galfind values are authoritative over gallookup.
	assert.Equal(t, "from-galfind", person[exchange.FieldMobile])
}

func TestSession_GalLookupWithoutEmailIsNoop(t *testing.T) {
	srv := newGalServer(t)
	dialer := NewDialer(httpclient.Config{BaseURL: srv.URL}, nil)

	session, err := dialer.Dial(context.Background(), "jdoe", "secret")
	require.NoError(t, err)

	person := exchange.Person{exchange.GalCodeAccountName: "noemail"}
	require.NoError(t, session.GalLookup(context.Background(), person))
	assert.Len(t, person, 1)
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	srv := newGalServer(t)
	dialer := NewDialer(httpclient.Config{BaseURL: srv.URL}, nil)

	session, err := dialer.Dial(context.Background(), "jdoe", "secret")
	require.NoError(t, err)

	session.Close()
	session.Close()
}

func TestDialer_RejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", `Basic realm="owa"`)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	dialer := NewDialer(httpclient.Config{BaseURL: srv.URL}, nil)
	_, err := dialer.Dial(context.Background(), "jdoe", "wrong")
	assert.ErrorIs(t, err, exchange.ErrAuthFailed)
}

func TestDialer_ServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dialer := NewDialer(httpclient.Config{BaseURL: srv.URL}, nil)
	_, err := dialer.Dial(context.Background(), "jdoe", "secret")
	require.Error(t, err)
	assert.NotErrorIs(t, err, exchange.ErrAuthFailed)
}
