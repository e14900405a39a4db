// Package owa implements the Exchange session against the Outlook Web
// Access galfind/gallookup endpoints.
package owa

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/davgate/davgate/internal/logger"
	"github.com/davgate/davgate/pkg/exchange"
	"github.com/davgate/davgate/pkg/exchange/httpclient"
	"github.com/davgate/davgate/pkg/metrics"
)

// galPath is the public-folder endpoint serving the address book.
const galPath = "/public/"

// Dialer opens authenticated OWA sessions. Each session gets its own
// facade so the bound credentials, not the gateway's, authenticate the
// GAL traffic.
type Dialer struct {
	template httpclient.Config
	metrics  metrics.ExchangeMetrics
}

// NewDialer builds a dialer from the facade template. Username and
// Password in the template are ignored; every dial substitutes the
// credentials from the LDAP bind. m may be nil.
func NewDialer(template httpclient.Config, m metrics.ExchangeMetrics) *Dialer {
	return &Dialer{template: template, metrics: m}
}

// DialFunc adapts the dialer for the caching session factory.
func (d *Dialer) DialFunc() exchange.DialFunc {
	return d.Dial
}

// Dial authenticates against OWA and returns a live session. Exchange
// answering the probe with 401 or 403 means bad credentials.
func (d *Dialer) Dial(ctx context.Context, user, password string) (exchange.Session, error) {
	cfg := d.template
	cfg.Username = user
	cfg.Password = password

	facade, err := httpclient.New(cfg)
	if err != nil {
		return nil, err
	}
	facade.Start()

	resp, err := facade.ExecuteFollowRedirects(ctx, facade.BaseURL())
	if err != nil {
		facade.Stop()
		d.recordDial(false)
		return nil, fmt.Errorf("owa: authentication probe: %w", err)
	}
	status := resp.StatusCode
	drain(resp)

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		facade.Stop()
		d.recordDial(false)
		logger.Info("OWA rejected credentials",
			logger.KeyUsername, user,
			logger.KeyHTTPStatus, status)
		return nil, exchange.ErrAuthFailed
	case status >= 400:
		facade.Stop()
		d.recordDial(false)
		return nil, httpclient.BuildHTTPError(status, "")
	}

	d.recordDial(true)
	session := &Session{
		id:      exchange.NewSessionID(),
		facade:  facade,
		metrics: d.metrics,
	}
	logger.Debug("OWA session opened",
		logger.KeyUsername, user,
		logger.KeySessionID, session.id)
	return session, nil
}

func (d *Dialer) recordDial(success bool) {
	if d.metrics != nil {
		d.metrics.RecordSessionDial(success)
	}
}

// Session talks to one OWA endpoint with one credential pair.
type Session struct {
	id      string
	facade  *httpclient.Facade
	metrics metrics.ExchangeMetrics
}

// ID returns the session correlation ID.
func (s *Session) ID() string {
	return s.id
}

// Close stops the session's facade, ending its idle reaper and
// shutting pooled connections.
func (s *Session) Close() {
	s.facade.Stop()
	logger.Debug("OWA session closed", logger.KeySessionID, s.id)
}

// GalFind searches the GAL on one indexed code. Matching is
// case-insensitive on the server side. Results are keyed by lowercased
// alias so sweep merges deduplicate regardless of mailbox casing.
func (s *Session) GalFind(ctx context.Context, code, value string) (map[string]exchange.Person, error) {
	query := url.Values{}
	query.Set("Cmd", "galfind")
	query.Set(code, value)

	started := time.Now()
	items, err := s.galQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("owa: galfind %s=%s: %w", code, value, err)
	}

	persons := make(map[string]exchange.Person, len(items))
	for _, item := range items {
		person := exchange.Person(item)
		alias := person.AN()
		if alias == "" {
			continue
		}
		persons[strings.ToLower(alias)] = person
	}

	elapsed := time.Since(started)
	if s.metrics != nil {
		s.metrics.ObserveGalFind(code, len(persons), elapsed)
	}
	logger.Debug("GAL search completed",
		logger.KeySessionID, s.id,
		logger.KeyGalCode, code,
		logger.KeyEntries, len(persons),
		logger.KeyDurationMs, float64(elapsed.Microseconds())/1000.0)
	return persons, nil
}

// GalLookup fills extended fields (phone, address, department) into the
// person record. Fields already present from galfind win.
func (s *Session) GalLookup(ctx context.Context, person exchange.Person) error {
	email := person.Email()
	if email == "" {
		return nil
	}

	query := url.Values{}
	query.Set("Cmd", "gallookup")
	query.Set("ADDR", email)

	started := time.Now()
	items, err := s.galQuery(ctx, query)
	if err != nil {
		return fmt.Errorf("owa: gallookup %s: %w", email, err)
	}
	if s.metrics != nil {
		s.metrics.ObserveGalLookup(time.Since(started))
	}

	for _, item := range items {
		for key, value := range item {
			if _, present := person[key]; !present && value != "" {
				person[key] = value
			}
		}
	}
	return nil
}

// galQuery executes one Cmd request and parses the item list.
func (s *Session) galQuery(ctx context.Context, query url.Values) ([]map[string]string, error) {
	rawurl := s.facade.ResolveURL(galPath) + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.facade.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if s.metrics != nil {
		s.metrics.RecordHTTPStatus(http.MethodGet, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, httpclient.BuildHTTPError(resp.StatusCode, "")
	}

	return parseItems(resp.Body)
}

// parseItems streams the OWA XML and collects each <item> element's
// children as field name/value pairs. OWA emits the GAL codes verbatim
// as element names (AN, DN, EM, ...).
func parseItems(r io.Reader) ([]map[string]string, error) {
	decoder := xml.NewDecoder(r)

	var items []map[string]string
	var current map[string]string
	var field string

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			return items, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse OWA response: %w", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch {
			case strings.EqualFold(t.Name.Local, "item"):
				current = make(map[string]string)
			case current != nil:
				field = t.Name.Local
			}
		case xml.EndElement:
			switch {
			case strings.EqualFold(t.Name.Local, "item"):
				if current != nil {
					items = append(items, current)
				}
				current = nil
			default:
				field = ""
			}
		case xml.CharData:
			if current != nil && field != "" {
				current[field] += string(t)
			}
		}
	}
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
