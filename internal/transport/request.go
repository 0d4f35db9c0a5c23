// Package transport provides the HTTP transport abstraction layer
// used by every backend call the console makes.
package transport

import (
	"net/url"
	"time"
)

// Request represents an HTTP request to be sent by the transport client.
type Request struct {
	// Method is the HTTP method (GET, POST, PUT, etc.).
	Method string

	// URL is the target URL.
	URL string

	// Query is merged into the URL's query string.
	Query url.Values

	// Headers contains custom HTTP headers to include.
	Headers map[string]string

	// Body is the request body content.
	Body string

	// ContentType is the Content-Type header value.
	ContentType string

	// Timeout overrides the client-level timeout for this specific
	// request. Zero means use the client default.
	Timeout time.Duration
}

// FullURL returns URL with Query merged into any query string it already has.
func (r *Request) FullURL() (string, error) {
	if len(r.Query) == 0 {
		return r.URL, nil
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, vs := range r.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
