package httpclient

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/davgate/davgate/internal/logger"
)

// Multistatus is a parsed 207 Multi-Status WebDAV body.
type Multistatus struct {
	XMLName   xml.Name   `xml:"DAV: multistatus"`
	Responses []Response `xml:"response"`
}

// Response is one resource entry in a Multi-Status body.
type Response struct {
	Href      string     `xml:"href"`
	Propstats []Propstat `xml:"propstat"`
}

// Propstat groups properties sharing one status line.
type Propstat struct {
	Status string `xml:"status"`
	Prop   Prop   `xml:"prop"`
}

// Prop holds the property elements as raw name/value pairs. Exchange
// WebDAV properties live in several namespaces; the catch-all keeps the
// local names without forcing a schema per query.
type Prop struct {
	Values []PropValue `xml:",any"`
}

// PropValue is a single property element.
type PropValue struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// Get returns the value of the named property from the first propstat
// that carries it.
func (r *Response) Get(name string) (string, bool) {
	for _, ps := range r.Propstats {
		for _, pv := range ps.Prop.Values {
			if pv.XMLName.Local == name {
				return pv.Value, true
			}
		}
	}
	return "", false
}

// ExecuteSearch runs a WebDAV SEARCH with the given SQL-ish query and
// returns the parsed Multi-Status body. Any status other than 207 is an
// error.
func (f *Facade) ExecuteSearch(ctx context.Context, path, query string) (*Multistatus, error) {
	body, err := searchRequestBody(query)
	if err != nil {
		return nil, err
	}

	req, err := f.newDavRequest(ctx, "SEARCH", path, body)
	if err != nil {
		return nil, err
	}

	return f.doMultistatus(req)
}

// ExecutePropFind runs a WebDAV PROPFIND at the given depth and returns
// the parsed Multi-Status body. An empty body asks for allprop.
func (f *Facade) ExecutePropFind(ctx context.Context, path string, depth int, body string) (*Multistatus, error) {
	if body == "" {
		body = `<?xml version="1.0" encoding="utf-8"?><d:propfind xmlns:d="DAV:"><d:allprop/></d:propfind>`
	}

	req, err := f.newDavRequest(ctx, "PROPFIND", path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Depth", fmt.Sprintf("%d", depth))

	return f.doMultistatus(req)
}

// ExecuteDelete removes a resource. A 404 counts as success: the goal
// state is reached either way.
func (f *Facade) ExecuteDelete(ctx context.Context, path string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, f.ResolveURL(path), nil)
	if err != nil {
		return 0, err
	}

	resp, err := f.Do(req)
	if err != nil {
		return 0, err
	}
	drainAndClose(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return http.StatusOK, nil
	default:
		return resp.StatusCode, BuildHTTPError(resp.StatusCode, "")
	}
}

// newDavRequest builds a WebDAV request with a replayable XML body.
func (f *Facade) newDavRequest(ctx context.Context, method, path, body string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, f.ResolveURL(path), strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	return req, nil
}

// doMultistatus executes the request and decodes a 207 body.
func (f *Facade) doMultistatus(req *http.Request) (*Multistatus, error) {
	resp, err := f.Do(req)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp)

	if resp.StatusCode != http.StatusMultiStatus {
		logger.Warn("WebDAV request rejected",
			logger.KeyURL, req.URL.String(),
			logger.KeyHTTPStatus, resp.StatusCode)
		return nil, BuildHTTPError(resp.StatusCode, "")
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read multistatus body: %w", err)
	}

	var ms Multistatus
	if err := xml.Unmarshal(data, &ms); err != nil {
		return nil, fmt.Errorf("httpclient: parse multistatus body: %w", err)
	}
	return &ms, nil
}

// searchRequestBody wraps the query in a DAV: searchrequest envelope,
// escaping it so folder names with XML metacharacters survive.
func searchRequestBody(query string) (string, error) {
	var escaped bytes.Buffer
	if err := xml.EscapeText(&escaped, []byte(query)); err != nil {
		return "", fmt.Errorf("httpclient: escape search query: %w", err)
	}
	return `<?xml version="1.0" encoding="utf-8"?><d:searchrequest xmlns:d="DAV:"><d:sql>` +
		escaped.String() + `</d:sql></d:searchrequest>`, nil
}
